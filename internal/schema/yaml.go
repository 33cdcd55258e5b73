package schema

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/elementstore/internal/ir"
)

// File is the YAML schema document:
//
//	elementTypes:
//	  - name: Customer
//	    properties:
//	      - {name: customerNumber, kind: integer}
//	    references:
//	      - {name: addresses, target: Address}
type File struct {
	ElementTypes []TypeDoc `yaml:"elementTypes"`
}

// TypeDoc is one element type in a YAML schema document.
type TypeDoc struct {
	Name       string             `yaml:"name"`
	Properties []PropertyDoc      `yaml:"properties"`
	References []ir.ReferenceType `yaml:"references"`
}

// PropertyDoc is one attribute in a YAML schema document.
type PropertyDoc struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind"`
	Unit string `yaml:"unit"`
}

// LoadYAMLFile reads a YAML schema file.
func LoadYAMLFile(path string) ([]ir.ElementType, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open schema file: %w", err)
	}
	defer f.Close()
	return DecodeYAML(f)
}

// DecodeYAML decodes a YAML schema document. Unknown fields are rejected.
func DecodeYAML(r io.Reader) ([]ir.ElementType, error) {
	var doc File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("parse YAML schema: %w", err)
	}
	return doc.Types()
}

// Types converts the document into element types.
func (f File) Types() ([]ir.ElementType, error) {
	types := make([]ir.ElementType, 0, len(f.ElementTypes))
	for _, td := range f.ElementTypes {
		t := ir.ElementType{Name: td.Name, References: td.References}
		for _, pd := range td.Properties {
			k, err := ir.ParseKind(pd.Kind)
			if err != nil {
				return nil, fmt.Errorf("element type %s attribute %s: %w", td.Name, pd.Name, err)
			}
			t.Properties = append(t.Properties, ir.PropertyType{Name: pd.Name, Kind: k, Unit: pd.Unit})
		}
		types = append(types, t)
	}
	return types, nil
}

// LoadPath loads definitions from a CUE directory, a .cue file or a
// .yaml/.yml file.
func LoadPath(path string) ([]ir.ElementType, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("schema path: %w", err)
	}
	if info.IsDir() {
		return LoadCUEDir(path)
	}
	switch filepath.Ext(path) {
	case ".cue":
		return LoadCUEFile(path)
	case ".yaml", ".yml":
		return LoadYAMLFile(path)
	default:
		return nil, fmt.Errorf("unsupported schema file %s (want .cue, .yaml or a directory)", path)
	}
}
