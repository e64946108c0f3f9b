// Package dataset assembles full-sequence datasets from interval-list datasets.
package dataset

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/inodb/seqfill/internal/reference"
)

// MetadataFileName is the metadata file expected in a dataset directory.
const MetadataFileName = "metadata.yaml"

// ClassSpec is the reference declaration of one dataset class.
type ClassSpec struct {
	URL             string `yaml:"url"`
	Type            string `yaml:"type"`
	ExtraProcessing string `yaml:"extra_processing"`
}

// Class is a named dataset class. Each class has its own interval table.
type Class struct {
	Name string
	ClassSpec
}

// Descriptor returns the reference descriptor for the class.
func (c Class) Descriptor() reference.Descriptor {
	return reference.Descriptor{
		Locator: c.URL,
		Kind:    reference.Kind(c.Type),
		Policy:  c.ExtraProcessing,
	}
}

// Metadata describes an interval-list dataset. Classes keep the order they
// are declared in, which is the order they are written to the output.
type Metadata struct {
	Version int
	Classes []Class
}

// UnmarshalYAML decodes metadata while preserving class declaration order.
func (m *Metadata) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: metadata must be a mapping", value.Line)
	}

	for i := 0; i+1 < len(value.Content); i += 2 {
		key, val := value.Content[i], value.Content[i+1]
		switch key.Value {
		case "version":
			if err := val.Decode(&m.Version); err != nil {
				return fmt.Errorf("decode version: %w", err)
			}
		case "classes":
			if val.Kind != yaml.MappingNode {
				return fmt.Errorf("line %d: classes must be a mapping", val.Line)
			}
			for j := 0; j+1 < len(val.Content); j += 2 {
				var spec ClassSpec
				if err := val.Content[j+1].Decode(&spec); err != nil {
					return fmt.Errorf("decode class %s: %w", val.Content[j].Value, err)
				}
				m.Classes = append(m.Classes, Class{Name: val.Content[j].Value, ClassSpec: spec})
			}
		}
	}
	return nil
}

// LoadMetadata reads a metadata YAML file.
func LoadMetadata(path string) (*Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	return ParseMetadata(data)
}

// ParseMetadata decodes metadata YAML content.
func ParseMetadata(data []byte) (*Metadata, error) {
	var m Metadata
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse metadata: %w", err)
	}
	if len(m.Classes) == 0 {
		return nil, fmt.Errorf("parse metadata: no classes declared")
	}
	for _, c := range m.Classes {
		if c.URL == "" {
			return nil, fmt.Errorf("parse metadata: class %s has no url", c.Name)
		}
	}
	return &m, nil
}

// Descriptors returns the reference descriptors of all classes, in class order.
func (m *Metadata) Descriptors() []reference.Descriptor {
	ds := make([]reference.Descriptor, len(m.Classes))
	for i, c := range m.Classes {
		ds[i] = c.Descriptor()
	}
	return ds
}
