package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/elementstore/internal/engine"
	"github.com/roach88/elementstore/internal/model"
	"github.com/roach88/elementstore/internal/queryir"
)

// FindOptions holds flags shared by the find and explain commands.
type FindOptions struct {
	*RootOptions
	Where          []string // attr=op, repeatable
	Children       []string // ref.attr=op, repeatable
	Owner          string
	Page           int
	PageSize       int
	Sort           []string
	Latest         bool
	StaleRefs      bool
	AsOf           int64
	IncludeDeleted bool
	ChangedSince   string
}

func (o *FindOptions) addFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringArrayVarP(&o.Where, "where", "w", nil, `attribute filter "attr=op" (repeatable)`)
	flags.StringArrayVar(&o.Children, "child", nil, `referenced element filter "ref.attr=op" (repeatable)`)
	flags.StringVar(&o.Owner, "owner", "", "only elements owned by this owner")
	flags.IntVar(&o.Page, "page", 0, "page number, starting at 0")
	flags.IntVar(&o.PageSize, "page-size", 0, "page size; 0 returns every match")
	flags.StringArrayVar(&o.Sort, "sort", nil, `sort key "field[:asc|:desc]" (repeatable)`)
	flags.BoolVar(&o.Latest, "latest", false, "match head attribute values only")
	flags.BoolVar(&o.StaleRefs, "stale-refs", false, "match reference filters against every version of a reference list")
	flags.Int64Var(&o.AsOf, "as-of", 0, "evaluate the query as of this revision")
	flags.BoolVar(&o.IncludeDeleted, "include-deleted", false, "also return deleted elements")
	flags.StringVar(&o.ChangedSince, "changed-since", "", "only elements changed at or after this RFC3339 time")
}

// build converts the flags into a find request for typeName.
func (o *FindOptions) build(typeName string) (queryir.Find, error) {
	f := queryir.Find{
		Type:           typeName,
		Owner:          o.Owner,
		Page:           o.Page,
		PageSize:       o.PageSize,
		LatestOnly:     o.Latest,
		LatestRefsOnly: !o.StaleRefs,
		AsOfRevision:   o.AsOf,
		IncludeDeleted: o.IncludeDeleted,
	}

	raw, err := splitFilters(o.Where)
	if err != nil {
		return f, err
	}
	if f.Attrs, err = queryir.ParseFilters(raw); err != nil {
		return f, err
	}

	if len(o.Children) > 0 {
		f.ChildAttrs = make(map[string]map[string]queryir.SearchOp)
		rawChildren, err := splitFilters(o.Children)
		if err != nil {
			return f, err
		}
		for key, text := range rawChildren {
			ref, attr, ok := strings.Cut(key, ".")
			if !ok || ref == "" || attr == "" {
				return f, fmt.Errorf("child filter %q must have the form ref.attr=op", key)
			}
			op, err := queryir.ParseOp(text)
			if err != nil {
				return f, err
			}
			if f.ChildAttrs[ref] == nil {
				f.ChildAttrs[ref] = make(map[string]queryir.SearchOp)
			}
			f.ChildAttrs[ref][attr] = op
		}
	}

	for _, s := range o.Sort {
		key, err := queryir.ParseSort(s)
		if err != nil {
			return f, err
		}
		f.Sort = append(f.Sort, key)
	}

	if o.ChangedSince != "" {
		t, err := time.Parse(time.RFC3339, o.ChangedSince)
		if err != nil {
			return f, fmt.Errorf("invalid --changed-since: %w", err)
		}
		f.ChangedSince = &t
	}
	return f, nil
}

// splitFilters splits "key=op" pairs on the first "=". Operators may
// themselves contain "=".
func splitFilters(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		key, op, ok := strings.Cut(p, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("filter %q must have the form key=op", p)
		}
		out[key] = op
	}
	return out, nil
}

// NewFindCommand creates the find command.
func NewFindCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FindOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "find <type>",
		Short: "Find elements of a type",
		Long: `Find elements matching attribute and reference filters.

Filter operators:
  value      equality ("%" is a wildcard for textual attributes)
  >value     strictly greater than
  [a,b]      closed interval; "(" and ")" make a bound open
  {a,b,c}    any of the listed values

Keys may be prefixed with "!" to negate or "~" to compare case-insensitively.

Examples:
  elementstore find Customer --where name=Jo%
  elementstore find Customer --where 'customerNumber=[100,200)' --sort name:desc
  elementstore find Customer --child addresses.city=Berlin --page 0 --page-size 20
  elementstore find Customer --as-of 42 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withEngine(cmd, func(eng *engine.Engine, f *OutputFormatter) error {
				find, err := opts.build(args[0])
				if err != nil {
					return f.Fail("invalid find", err)
				}
				maps, err := eng.FindMaps(cmd.Context(), find)
				if err != nil {
					return f.Fail("find failed", err)
				}
				if maps == nil {
					maps = []model.EntityMap{}
				}
				f.VerboseLog("%d element(s)", len(maps))
				if f.Format != "json" && len(maps) == 0 {
					return f.Success("No elements found.")
				}
				return f.Success(maps)
			})
		},
	}
	opts.addFlags(cmd)

	return cmd
}
