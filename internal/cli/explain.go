package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/elementstore/internal/engine"
	"github.com/roach88/elementstore/internal/querydoc"
	"github.com/roach88/elementstore/internal/querysql"
)

// Explanation is the compiled form of a find for both backend families.
type Explanation struct {
	Type      string `json:"type"`
	AttrView  string `json:"attr_view"`
	StateView string `json:"state_view"`
	Offset    int    `json:"offset"`
	Limit     int    `json:"limit"`
	SQL       string `json:"sql"`
	Params    []any  `json:"params"`

	Collection string `json:"collection"`
	Criteria   string `json:"criteria"`
}

func (e Explanation) String() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "type:       %s\n", e.Type)
	fmt.Fprintf(&buf, "attr view:  %s\n", e.AttrView)
	fmt.Fprintf(&buf, "state view: %s\n", e.StateView)
	if e.Limit > 0 {
		fmt.Fprintf(&buf, "page:       offset %d limit %d\n", e.Offset, e.Limit)
	}
	fmt.Fprintf(&buf, "\nsql:\n  %s\nparams: %v\n", e.SQL, e.Params)
	fmt.Fprintf(&buf, "\ndocument (%s):\n  %s", e.Collection, e.Criteria)
	return buf.String()
}

// NewExplainCommand creates the explain command.
func NewExplainCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FindOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "explain <type>",
		Short: "Show how a find compiles for each backend",
		Long: `Bind a find against the type registry and print the SQL statement and the
document criteria it compiles to. Nothing is executed. Takes the same flags
as find.

Example:
  elementstore explain Customer --where 'customerNumber=>100' --child addresses.city=Berlin`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withEngine(cmd, func(eng *engine.Engine, f *OutputFormatter) error {
				find, err := opts.build(args[0])
				if err != nil {
					return f.Fail("invalid find", err)
				}
				plan, err := eng.Plan(cmd.Context(), find)
				if err != nil {
					return f.Fail("bind failed", err)
				}

				sql, params, err := querysql.Compile(plan)
				if err != nil {
					return f.Fail("sql compilation failed", err)
				}
				doc, err := querydoc.Compile(plan)
				if err != nil {
					return f.Fail("document compilation failed", err)
				}
				if params == nil {
					params = []any{}
				}

				return f.Success(Explanation{
					Type:       plan.Type.Name,
					AttrView:   plan.AttrView.String(),
					StateView:  plan.StateView.String(),
					Offset:     plan.Offset,
					Limit:      plan.Limit,
					SQL:        sql,
					Params:     params,
					Collection: doc.Collection,
					Criteria:   doc.Where.String(),
				})
			})
		},
	}
	opts.addFlags(cmd)

	return cmd
}
