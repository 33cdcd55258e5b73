package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/elementstore/internal/engine"
	"github.com/roach88/elementstore/internal/ir"
	"github.com/roach88/elementstore/internal/schema"
)

// TypeSummary is the JSON form of an element type.
type TypeSummary struct {
	Name       string             `json:"name"`
	Properties []PropertySummary  `json:"properties"`
	References []ir.ReferenceType `json:"references"`
}

// PropertySummary is the JSON form of an attribute.
type PropertySummary struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
	Unit string `json:"unit,omitempty"`
}

func summarize(t *ir.ElementType) TypeSummary {
	s := TypeSummary{
		Name:       t.Name,
		Properties: make([]PropertySummary, len(t.Properties)),
		References: t.References,
	}
	for i, p := range t.Properties {
		s.Properties[i] = PropertySummary{Name: p.Name, Kind: p.Kind.String(), Unit: p.Unit}
	}
	if s.References == nil {
		s.References = []ir.ReferenceType{}
	}
	return s
}

func (s TypeSummary) String() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "%s\n", s.Name)
	for _, p := range s.Properties {
		if p.Unit != "" {
			fmt.Fprintf(&buf, "  %s %s [%s]\n", p.Name, p.Kind, p.Unit)
		} else {
			fmt.Fprintf(&buf, "  %s %s\n", p.Name, p.Kind)
		}
	}
	for _, r := range s.References {
		fmt.Fprintf(&buf, "  %s -> %s\n", r.Name, r.Target)
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

// NewSchemaCommand creates the schema command group.
func NewSchemaCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Inspect and evolve element types",
	}
	cmd.AddCommand(newSchemaApplyCommand(rootOpts))
	cmd.AddCommand(newSchemaListCommand(rootOpts))
	cmd.AddCommand(newSchemaShowCommand(rootOpts))
	cmd.AddCommand(newSchemaValidateCommand(rootOpts))
	return cmd
}

func newSchemaApplyCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "apply <schema-path>",
		Short: "Create or extend element types in the store",
		Long: `Create or extend element types from a CUE directory, .cue or .yaml file.

Evolution is additive: new attributes and references are added, units may
change, and changing the kind of an existing attribute is rejected.

Example:
  elementstore schema apply ./schema/customer.yaml --db ./store.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withEngine(cmd, func(eng *engine.Engine, f *OutputFormatter) error {
				types, err := schema.LoadPath(args[0])
				if err != nil {
					return f.Fail("failed to load schema", err)
				}
				if err := eng.DefineTypes(cmd.Context(), types); err != nil {
					return f.Fail("failed to apply schema", err)
				}
				names := make([]string, len(types))
				for i, t := range types {
					names[i] = t.Name
				}
				if f.Format == "json" {
					return f.Success(map[string]any{"applied": names})
				}
				return f.Success(fmt.Sprintf("Applied %d element type(s): %s", len(names), strings.Join(names, ", ")))
			})
		},
	}
}

func newSchemaListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List element types",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withEngine(cmd, func(eng *engine.Engine, f *OutputFormatter) error {
				names, err := eng.TypeNames(cmd.Context())
				if err != nil {
					return f.Fail("failed to list types", err)
				}
				if f.Format == "json" {
					return f.Success(names)
				}
				return f.Success(strings.Join(names, "\n"))
			})
		},
	}
}

func newSchemaShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "show <type>",
		Short:         "Show the attributes and references of an element type",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withEngine(cmd, func(eng *engine.Engine, f *OutputFormatter) error {
				t, err := eng.Type(cmd.Context(), args[0])
				if err != nil {
					return f.Fail("failed to resolve type", err)
				}
				return f.Success(summarize(t))
			})
		},
	}
}

func newSchemaValidateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <schema-path>",
		Short: "Check a schema without touching a store",
		Long: `Load a schema and define it against an empty in-memory registry, reporting
the first invalid type, reserved name or unknown reference target.

Example:
  elementstore schema validate ./schema`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := opts.formatter(cmd)
			types, err := validateSchema(cmd.Context(), args[0])
			if err != nil {
				return f.Fail("invalid schema", err)
			}
			summaries := make([]TypeSummary, len(types))
			for i := range types {
				summaries[i] = summarize(&types[i])
			}
			if f.Format == "json" {
				return f.Success(summaries)
			}
			f.VerboseLog("validated %s", args[0])
			return f.Success(fmt.Sprintf("✓ %d element type(s) valid", len(types)))
		},
	}
}

// validateSchema loads path and defines it in a scratch registry, then
// checks that every reference target exists.
func validateSchema(ctx context.Context, path string) ([]ir.ElementType, error) {
	types, err := schema.LoadPath(path)
	if err != nil {
		return nil, err
	}
	reg, err := schema.New(schema.NewMemorySource())
	if err != nil {
		return nil, err
	}
	if err := reg.DefineAll(ctx, types); err != nil {
		return nil, err
	}
	for i := range types {
		t, err := reg.Resolve(ctx, types[i].Name)
		if err != nil {
			return nil, err
		}
		for _, ref := range t.References {
			if _, _, err := reg.ResolveReference(ctx, t, ref.Name); err != nil {
				return nil, err
			}
		}
	}
	return types, nil
}
