package schema

import (
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/elementstore/internal/ir"
)

// CompileError is a schema definition error with its CUE source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// LoadCUEDir loads every CUE file of dir as one instance and compiles the
// element types declared under the top-level "elementType" field:
//
//	elementType: Customer: {
//		properties: {
//			customerNumber: "integer"
//			weight: {kind: "double", unit: "kg"}
//		}
//		references: addresses: "Address"
//	}
func LoadCUEDir(dir string) ([]ir.ElementType, error) {
	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, fmt.Errorf("no CUE instances loaded from %s", dir)
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, fmt.Errorf("loading CUE files: %w", inst.Err)
	}
	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return CompileCUE(value)
}

// LoadCUEFile compiles a single CUE file.
func LoadCUEFile(path string) ([]ir.ElementType, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema file: %w", err)
	}
	value := cuecontext.New().CompileBytes(src, cue.Filename(filepath.Base(path)))
	if err := value.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return CompileCUE(value)
}

// CompileCUEString compiles CUE source text. Used by tests.
func CompileCUEString(src string) ([]ir.ElementType, error) {
	value := cuecontext.New().CompileString(src)
	if err := value.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return CompileCUE(value)
}

// CompileCUE extracts element types from a built CUE value.
// Types, properties and references keep their declaration order.
func CompileCUE(v cue.Value) ([]ir.ElementType, error) {
	typesVal := v.LookupPath(cue.ParsePath("elementType"))
	if !typesVal.Exists() {
		return nil, &CompileError{Field: "elementType", Message: "no element types declared", Pos: v.Pos()}
	}
	iter, err := typesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var types []ir.ElementType
	for iter.Next() {
		t, err := compileType(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		types = append(types, *t)
	}
	return types, nil
}

func compileType(name string, v cue.Value) (*ir.ElementType, error) {
	t := &ir.ElementType{Name: name}

	propsVal := v.LookupPath(cue.ParsePath("properties"))
	if propsVal.Exists() {
		iter, err := propsVal.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			p, err := compileProperty(name, iter.Label(), iter.Value())
			if err != nil {
				return nil, err
			}
			t.Properties = append(t.Properties, p)
		}
	}

	refsVal := v.LookupPath(cue.ParsePath("references"))
	if refsVal.Exists() {
		iter, err := refsVal.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			target, err := iter.Value().String()
			if err != nil {
				return nil, &CompileError{
					Field:   fmt.Sprintf("elementType.%s.references.%s", name, iter.Label()),
					Message: "reference target must be a type name",
					Pos:     iter.Value().Pos(),
				}
			}
			t.References = append(t.References, ir.ReferenceType{Name: iter.Label(), Target: target})
		}
	}
	return t, nil
}

// compileProperty accepts either a bare kind string or {kind, unit}.
func compileProperty(typeName, name string, v cue.Value) (ir.PropertyType, error) {
	field := fmt.Sprintf("elementType.%s.properties.%s", typeName, name)
	p := ir.PropertyType{Name: name}

	kindText, err := v.String()
	if err != nil {
		kindVal := v.LookupPath(cue.ParsePath("kind"))
		if !kindVal.Exists() {
			return p, &CompileError{Field: field, Message: "kind is required", Pos: v.Pos()}
		}
		if kindText, err = kindVal.String(); err != nil {
			return p, &CompileError{Field: field + ".kind", Message: "kind must be a string", Pos: kindVal.Pos()}
		}
		if unitVal := v.LookupPath(cue.ParsePath("unit")); unitVal.Exists() {
			if p.Unit, err = unitVal.String(); err != nil {
				return p, &CompileError{Field: field + ".unit", Message: "unit must be a string", Pos: unitVal.Pos()}
			}
		}
	}

	k, err := ir.ParseKind(kindText)
	if err != nil {
		return p, &CompileError{Field: field, Message: err.Error(), Pos: v.Pos()}
	}
	p.Kind = k
	return p, nil
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		return &CompileError{Field: "cue", Message: first.Error(), Pos: positions[0]}
	}
	return &CompileError{Field: "cue", Message: first.Error()}
}
