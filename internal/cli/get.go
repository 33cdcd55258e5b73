package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/elementstore/internal/engine"
	"github.com/roach88/elementstore/internal/ir"
	"github.com/roach88/elementstore/internal/model"
)

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	var at int64

	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Print an element",
		Long: `Print the head of an element, or its state at a past revision with --at.
Deleted elements are printed with deleted: true.

Examples:
  elementstore get 0190e1c2-...
  elementstore get 0190e1c2-... --at 12 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withEngine(cmd, func(eng *engine.Engine, f *OutputFormatter) error {
				var (
					m   model.EntityMap
					err error
				)
				if cmd.Flags().Changed("at") {
					m, err = eng.GetElementMapAt(cmd.Context(), args[0], at)
				} else {
					m, err = eng.GetElementMap(cmd.Context(), args[0])
				}
				if err != nil {
					return f.Fail("get failed", err)
				}
				return f.Success(m)
			})
		},
	}
	cmd.Flags().Int64Var(&at, "at", 0, "revision to read the element at")

	return cmd
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "history <id>",
		Short: "Show the modification history of an element",
		Long: `List every revision that modified an element, oldest first.

Example:
  elementstore history 0190e1c2-...`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withEngine(cmd, func(eng *engine.Engine, f *OutputFormatter) error {
				mods, err := eng.History(cmd.Context(), args[0])
				if err != nil {
					return f.Fail("history failed", err)
				}
				if f.Format == "json" {
					return f.Success(mods)
				}
				return writeHistory(f, mods)
			})
		},
	}
}

func writeHistory(f *OutputFormatter, mods []ir.Modification) error {
	w := tabwriter.NewWriter(f.Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "REVISION\tTIMESTAMP\tUSER\tCOMMENT")
	for _, m := range mods {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", m.Revision, textValue(m.Timestamp), m.User, m.Comment)
	}
	return w.Flush()
}
