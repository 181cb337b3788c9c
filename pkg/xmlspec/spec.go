package xmlspec

import (
	"fmt"
	"strings"
)

// Namespaces binds XPath prefixes to namespace URIs.
type Namespaces map[string]string

// FieldSpec maps one path (or attribute) to an output key.
//
// With only Attribute set, the attribute is read from the context node. With
// both set, the attribute is read from the first node matched by Path.
type FieldSpec struct {
	Path      string   `yaml:"path,omitempty"`
	Attribute string   `yaml:"attribute,omitempty"`
	Key       string   `yaml:"key"`
	Coerce    Coercion `yaml:"coerce"`
}

// SectionSpec describes a repeating substructure: one record per node matched
// by ParentPath, with Children evaluated relative to that node.
type SectionSpec struct {
	Name       string      `yaml:"name"`
	ParentPath string      `yaml:"parent"`
	Children   []FieldSpec `yaml:"children"`
}

// Spec is a complete mapping table.
type Spec struct {
	Namespaces Namespaces    `yaml:"namespaces,omitempty"`
	Fields     []FieldSpec   `yaml:"fields"`
	Sections   []SectionSpec `yaml:"sections,omitempty"`
}

func (s Spec) Section(name string) (SectionSpec, bool) {
	for _, sec := range s.Sections {
		if sec.Name == name {
			return sec, true
		}
	}
	return SectionSpec{}, false
}

// Validate checks key uniqueness and compiles every path.
func (s Spec) Validate() error {
	if err := validateFields("fields", s.Fields, s.Namespaces); err != nil {
		return err
	}
	names := make(map[string]struct{}, len(s.Sections))
	for i, sec := range s.Sections {
		if err := sec.validate(s.Namespaces); err != nil {
			return fmt.Errorf("sections[%d]: %w", i, err)
		}
		if _, dup := names[sec.Name]; dup {
			return fmt.Errorf("sections[%d]: duplicate section name %q", i, sec.Name)
		}
		names[sec.Name] = struct{}{}
	}
	return nil
}

func (sec SectionSpec) validate(ns Namespaces) error {
	if strings.TrimSpace(sec.Name) == "" {
		return fmt.Errorf("section name is required")
	}
	if strings.TrimSpace(sec.ParentPath) == "" {
		return fmt.Errorf("section %q: parent path is required", sec.Name)
	}
	if _, err := compile(sec.ParentPath, ns); err != nil {
		return fmt.Errorf("section %q: %w", sec.Name, err)
	}
	return validateFields(sec.Name, sec.Children, ns)
}

func validateFields(list string, fields []FieldSpec, ns Namespaces) error {
	seen := make(map[string]struct{}, len(fields))
	for i, f := range fields {
		if strings.TrimSpace(f.Key) == "" {
			return fmt.Errorf("%s[%d]: key is required", list, i)
		}
		if _, dup := seen[f.Key]; dup {
			return fmt.Errorf("%s[%d]: duplicate key %q", list, i, f.Key)
		}
		seen[f.Key] = struct{}{}
		if f.Path == "" && f.Attribute == "" {
			return fmt.Errorf("%s[%d] (%s): path or attribute is required", list, i, f.Key)
		}
		if _, ok := coercionNames[f.Coerce]; !ok {
			return fmt.Errorf("%s[%d] (%s): unknown coercion %d", list, i, f.Key, int(f.Coerce))
		}
		if f.Path != "" {
			if _, err := compile(f.Path, ns); err != nil {
				return fmt.Errorf("%s[%d] (%s): %w", list, i, f.Key, err)
			}
		}
	}
	return nil
}
