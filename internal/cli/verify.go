package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/elementstore/internal/store"
)

// VerifyResult is the JSON form of a store check.
type VerifyResult struct {
	Elements     int      `json:"elements"`
	LastRevision int64    `json:"last_revision"`
	Problems     []string `json:"problems"`
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check the revision chains of a SQLite store",
		Long: `Replay every stored element through the revision chain invariants and
report broken chains and unrecorded revisions.

Exit codes:
  0 - Store is consistent
  1 - One or more problems were found
  2 - Command error (store could not be opened or read)

Example:
  elementstore verify --db ./store.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			if rootOpts.Backend != "sqlite" {
				return f.Fail("verify failed", fmt.Errorf("verify supports the sqlite backend only, got %s", rootOpts.Backend))
			}

			backend, err := rootOpts.openBackend(cmd.Context(), rootOpts.newLogger(cmd))
			if err != nil {
				return f.Fail("failed to open store", err)
			}
			defer backend.Close()
			st := backend.(*store.Store)

			report, err := st.Check(cmd.Context())
			if err != nil {
				return f.Fail("failed to read store", err)
			}

			result := VerifyResult{
				Elements:     report.Elements,
				LastRevision: report.LastRevision,
				Problems:     make([]string, len(report.Problems)),
			}
			for i, p := range report.Problems {
				result.Problems[i] = fmt.Sprintf("%s: %v", p.ElementID, p.Err)
			}

			if report.OK() {
				if f.Format == "json" {
					return f.Success(result)
				}
				return f.Success(fmt.Sprintf("✓ %d element(s) consistent through revision %d", result.Elements, result.LastRevision))
			}

			msg := fmt.Sprintf("%d problem(s) in %d element(s)", len(result.Problems), result.Elements)
			if f.Format == "json" {
				if err := f.encode(CLIResponse{
					Status: "error",
					Data:   result,
					Error:  &CLIError{Code: "CORRUPTION", Message: msg},
				}); err != nil {
					return err
				}
			} else {
				for _, p := range result.Problems {
					fmt.Fprintf(f.Writer, "✗ %s\n", p)
				}
				fmt.Fprintln(f.Writer, msg)
			}
			return NewExitError(ExitFailure, msg)
		},
	}
}
