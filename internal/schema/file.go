package schema

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// schemaFile is the on-disk shape of a schema definition file.
type schemaFile struct {
	Schemas []Schema `yaml:"schemas"`
}

// LoadFile reads schema definitions from a YAML file. The file holds a
// top-level "schemas" list; each entry has a name and a list of
// name/type/description fields.
func LoadFile(path string) ([]Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "schema: read %s", path)
	}
	var f schemaFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrapf(err, "schema: parse %s", path)
	}
	for _, s := range f.Schemas {
		if err := s.Validate(); err != nil {
			return nil, err
		}
	}
	return f.Schemas, nil
}

// LoadRegistry builds a registry from the built-in schemas plus an optional
// schema definition file. File schemas may not shadow built-in names.
func LoadRegistry(path string) (*Registry, error) {
	schemas := Builtin()
	if path != "" {
		fromFile, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		schemas = append(schemas, fromFile...)
	}
	return NewRegistry(schemas...)
}
