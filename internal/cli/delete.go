package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/elementstore/internal/engine"
)

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <type> <id>",
		Short: "Mark an element as deleted",
		Long: `Soft-delete an element. The element keeps its history and stays readable
with get and find --include-deleted.

Example:
  elementstore delete Customer 0190e1c2-... --user alice`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withEngine(cmd, func(eng *engine.Engine, f *OutputFormatter) error {
				if err := eng.DeleteByID(cmd.Context(), args[1], args[0], rootOpts.User); err != nil {
					return f.Fail("delete failed", err)
				}
				if f.Format == "json" {
					return f.Success(map[string]string{"deleted": args[1]})
				}
				return f.Success(fmt.Sprintf("Deleted %s %s", args[0], args[1]))
			})
		},
	}
}

// NewCheckVersionCommand creates the check-version command.
func NewCheckVersionCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check-version <type> <id> <version>",
		Short: "Check that an element is still at a version",
		Long: `Exit 0 when the stored version of the element equals <version>, or the
element does not exist. Otherwise report a CONFLICT and exit 1.

Example:
  elementstore check-version Customer 0190e1c2-... 3`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			version, err := strconv.ParseInt(args[2], 10, 64)
			if err != nil {
				return f.Fail("invalid version", err)
			}
			return rootOpts.withEngine(cmd, func(eng *engine.Engine, f *OutputFormatter) error {
				if err := eng.CheckVersion(cmd.Context(), args[1], version, args[0]); err != nil {
					return f.Fail("version check failed", err)
				}
				if f.Format == "json" {
					return f.Success(map[string]any{"id": args[1], "version": version})
				}
				return f.Success(fmt.Sprintf("✓ %s is at version %d", args[1], version))
			})
		},
	}
}
