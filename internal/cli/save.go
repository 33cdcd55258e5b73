package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/elementstore/internal/engine"
	"github.com/roach88/elementstore/internal/ir"
	"github.com/roach88/elementstore/internal/model"
)

// SaveOptions holds flags for the save command.
type SaveOptions struct {
	*RootOptions
	Data    string // element map as JSON
	File    string // file holding the element map, "-" for stdin
	Comment string
}

// NewSaveCommand creates the save command.
func NewSaveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SaveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "save <type>",
		Short: "Create or update an element",
		Long: `Save an element map. A map without "id" creates a new element; a map with
"id" must carry the "version" it was read at and updates that element.

Examples:
  elementstore save Customer --data '{"name":"Jo","customerNumber":1}'
  elementstore save Customer --data '{"id":"...","version":1,"name":"Joe"}' --user alice
  elementstore save Customer --file customer.json --comment "import"`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withEngine(cmd, func(eng *engine.Engine, f *OutputFormatter) error {
				data, err := opts.input(cmd.InOrStdin())
				if err != nil {
					return f.Fail("failed to read element", err)
				}
				m, err := model.DecodeJSON(data)
				if err != nil {
					return f.Fail("invalid element map", err)
				}

				out, err := eng.Save(cmd.Context(), args[0], m, engine.SaveOptions{
					User:    opts.User,
					Comment: opts.Comment,
				})
				if err != nil {
					return f.Fail("save failed", err)
				}
				f.VerboseLog("saved %v at revision %v", out[ir.FieldID], out[ir.FieldRevision])
				return f.Success(out)
			})
		},
	}

	cmd.Flags().StringVarP(&opts.Data, "data", "d", "", "element map as JSON")
	cmd.Flags().StringVarP(&opts.File, "file", "f", "", `file holding the element map ("-" for stdin)`)
	cmd.Flags().StringVar(&opts.Comment, "comment", "", "comment recorded in the modification history")
	cmd.MarkFlagsMutuallyExclusive("data", "file")

	return cmd
}

func (o *SaveOptions) input(stdin io.Reader) ([]byte, error) {
	switch {
	case o.Data != "":
		return []byte(o.Data), nil
	case o.File == "-":
		return io.ReadAll(stdin)
	case o.File != "":
		return os.ReadFile(o.File)
	default:
		return nil, fmt.Errorf("one of --data or --file is required")
	}
}
