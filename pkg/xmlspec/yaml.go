package xmlspec

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadYAML reads and validates a mapping table.
func LoadYAML(r io.Reader) (Spec, error) {
	var spec Spec
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&spec); err != nil {
		return Spec{}, fmt.Errorf("decode spec: %w", err)
	}
	if err := spec.Validate(); err != nil {
		return Spec{}, fmt.Errorf("invalid spec: %w", err)
	}
	return spec, nil
}

func LoadYAMLFile(path string) (Spec, error) {
	f, err := os.Open(path)
	if err != nil {
		return Spec{}, err
	}
	defer f.Close()
	return LoadYAML(f)
}

// YAML renders the spec in the LoadYAML format.
func (s Spec) YAML() ([]byte, error) {
	return yaml.Marshal(s)
}
