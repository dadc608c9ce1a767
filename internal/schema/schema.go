// Package schema defines named, typed record definitions used to constrain
// and validate extraction output.
package schema

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/fieldglass/needlefinder/internal/model"
)

// FieldType is the declared type of a schema field.
type FieldType string

const (
	TypeString     FieldType = "string"
	TypeInt        FieldType = "int"
	TypeFloat      FieldType = "float"
	TypeBool       FieldType = "bool"
	TypeStringList FieldType = "string_list"
)

// knownTypes guards against typos in schema files.
var knownTypes = map[FieldType]bool{
	TypeString:     true,
	TypeInt:        true,
	TypeFloat:      true,
	TypeBool:       true,
	TypeStringList: true,
}

// Field is one typed field of a schema. The description is shown to the
// model as extraction guidance.
type Field struct {
	Name        string    `yaml:"name"`
	Type        FieldType `yaml:"type"`
	Description string    `yaml:"description"`
}

// Schema is a named, immutable set of typed fields.
type Schema struct {
	Name   string  `yaml:"name"`
	Fields []Field `yaml:"fields"`
}

// Validate checks the schema definition itself: non-empty name, at least one
// field, no duplicate field names, known field types.
func (s Schema) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return eris.New("schema: name is required")
	}
	if len(s.Fields) == 0 {
		return eris.Errorf("schema %s: at least one field is required", s.Name)
	}
	seen := make(map[string]bool, len(s.Fields))
	for _, f := range s.Fields {
		if strings.TrimSpace(f.Name) == "" {
			return eris.Errorf("schema %s: field with empty name", s.Name)
		}
		if seen[f.Name] {
			return eris.Errorf("schema %s: duplicate field %q", s.Name, f.Name)
		}
		seen[f.Name] = true
		if !knownTypes[f.Type] {
			return eris.Errorf("schema %s: field %q has unknown type %q", s.Name, f.Name, f.Type)
		}
	}
	return nil
}

// FieldNames returns field names in declaration order.
func (s Schema) FieldNames() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// PromptFields renders the field list the way the model sees it:
// one "name (type): description" line per field.
func (s Schema) PromptFields() string {
	var b strings.Builder
	for i, f := range s.Fields {
		if i > 0 {
			b.WriteString("\n")
		}
		desc := f.Description
		if desc == "" {
			desc = "No description provided"
		}
		fmt.Fprintf(&b, "%s (%s): %s", f.Name, f.Type, desc)
	}
	return b.String()
}

// MismatchError reports model output that does not conform to the schema.
type MismatchError struct {
	Schema string
	Reason string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("schema %s: output mismatch: %s", e.Schema, e.Reason)
}

// IsMismatch reports whether err (or its chain) is a MismatchError.
func IsMismatch(err error) bool {
	var me *MismatchError
	return errors.As(err, &me)
}

// Conform validates a raw decoded object against the schema and produces a
// needle with exactly the schema's field set. Missing fields become null;
// unknown fields or uncoercible values are a mismatch. String values are
// trimmed, and empty or literal "null" strings collapse to null.
func (s Schema) Conform(raw map[string]any) (model.Needle, error) {
	byName := make(map[string]Field, len(s.Fields))
	for _, f := range s.Fields {
		byName[f.Name] = f
	}
	for key := range raw {
		if _, ok := byName[key]; !ok {
			return nil, &MismatchError{Schema: s.Name, Reason: fmt.Sprintf("unknown field %q", key)}
		}
	}

	needle := make(model.Needle, len(s.Fields))
	for _, f := range s.Fields {
		rawVal, present := raw[f.Name]
		if !present || rawVal == nil {
			needle[f.Name] = model.Null()
			continue
		}
		val, err := coerce(f, rawVal)
		if err != nil {
			return nil, &MismatchError{Schema: s.Name, Reason: fmt.Sprintf("field %q: %v", f.Name, err)}
		}
		needle[f.Name] = val
	}
	return needle, nil
}

// coerce converts a decoded JSON value into the field's declared variant.
func coerce(f Field, raw any) (model.Value, error) {
	val, err := model.ValueFromAny(raw)
	if err != nil {
		return model.Value{}, err
	}

	// Clean strings before type dispatch: trim, and treat "" / "null" as null.
	if val.Kind == model.KindString {
		trimmed := strings.TrimSpace(val.Str)
		if trimmed == "" || strings.EqualFold(trimmed, "null") {
			return model.Null(), nil
		}
		val = model.String(trimmed)
	}
	if val.IsNull() {
		return val, nil
	}

	switch f.Type {
	case TypeString:
		if val.Kind == model.KindString {
			return val, nil
		}
		// Models sometimes return numbers for string fields; stringify.
		if val.Kind == model.KindInt || val.Kind == model.KindFloat || val.Kind == model.KindBool {
			return model.String(val.Display()), nil
		}
	case TypeInt:
		switch val.Kind {
		case model.KindInt:
			return val, nil
		case model.KindFloat:
			if val.Float == float64(int64(val.Float)) {
				return model.Int(int64(val.Float)), nil
			}
		case model.KindString:
			if i, err := strconv.ParseInt(val.Str, 10, 64); err == nil {
				return model.Int(i), nil
			}
		}
	case TypeFloat:
		switch val.Kind {
		case model.KindFloat:
			return val, nil
		case model.KindInt:
			return model.Float(float64(val.Int)), nil
		case model.KindString:
			if f64, err := strconv.ParseFloat(val.Str, 64); err == nil {
				return model.Float(f64), nil
			}
		}
	case TypeBool:
		switch val.Kind {
		case model.KindBool:
			return val, nil
		case model.KindString:
			if b, err := strconv.ParseBool(strings.ToLower(val.Str)); err == nil {
				return model.Bool(b), nil
			}
		}
	case TypeStringList:
		switch val.Kind {
		case model.KindList:
			return val, nil
		case model.KindString:
			// A lone string is accepted as a single-element list.
			return model.List([]string{val.Str}), nil
		}
	}
	return model.Value{}, fmt.Errorf("cannot use %s value as %s", kindName(val.Kind), f.Type)
}

func kindName(k model.Kind) string {
	switch k {
	case model.KindNull:
		return "null"
	case model.KindString:
		return "string"
	case model.KindInt:
		return "int"
	case model.KindFloat:
		return "float"
	case model.KindBool:
		return "bool"
	case model.KindList:
		return "list"
	default:
		return "unknown"
	}
}
