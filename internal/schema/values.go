package schema

import (
	"fmt"
	"strconv"
	"strings"
)

// Values holds one part's generic column contents keyed by slot. Integer
// slots carry their decimal text; an empty string means NULL.
type Values map[Slot]string

// LabeledValue is a slot value presented under its field name.
type LabeledValue struct {
	Name  string `json:"name"`
	Slot  Slot   `json:"slot"`
	Value string `json:"value"`
}

// Label resolves values through the Type's fields, in field order. Slots that
// no field maps to are not shown.
func Label(values Values, fields []Field) []LabeledValue {
	out := make([]LabeledValue, 0, len(fields))
	for _, f := range fields {
		out = append(out, LabeledValue{Name: f.Name, Slot: f.Slot, Value: values[f.Slot]})
	}
	return out
}

// Bind maps input keyed by field name onto slots. Field names match case
// insensitively; slot names are accepted as keys too.
func Bind(input map[string]string, fields []Field) (Values, error) {
	byName := make(map[string]Field, len(fields)*2)
	for _, f := range fields {
		byName[strings.ToLower(f.Name)] = f
		byName[string(f.Slot)] = f
	}
	out := make(Values, len(input))
	for key, raw := range input {
		f, ok := byName[strings.ToLower(strings.TrimSpace(key))]
		if !ok {
			return nil, fmt.Errorf("%w %q", ErrUnknownField, key)
		}
		v := strings.TrimSpace(raw)
		if f.Slot.IsInteger() && v != "" {
			if _, err := strconv.ParseInt(v, 10, 64); err != nil {
				return nil, fmt.Errorf("%s: %w", f.Name, ErrNotInteger)
			}
		}
		out[f.Slot] = v
	}
	return out, nil
}

// Mapping returns slot -> field name for the given fields.
func Mapping(fields []Field) map[Slot]string {
	m := make(map[Slot]string, len(fields))
	for _, f := range fields {
		m[f.Slot] = f.Name
	}
	return m
}

// FieldFor finds the field bound to name, case insensitively.
func FieldFor(fields []Field, name string) (Field, bool) {
	for _, f := range fields {
		if strings.EqualFold(f.Name, name) {
			return f, true
		}
	}
	return Field{}, false
}
