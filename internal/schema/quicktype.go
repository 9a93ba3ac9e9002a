package schema

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var wordRe = regexp.MustCompile(`\w+`)

// ParseQuickType builds a Type from "Name, PFX, field1, field2, ...". Fields
// are bound to char1, char2, ... in the order given.
func ParseQuickType(line string) (Type, error) {
	parts := strings.Split(line, ",")
	if len(parts) < 2 {
		return Type{}, errors.New("expected \"Name, PREFIX, field, ...\"")
	}
	name := strings.TrimSpace(parts[0])
	if name == "" {
		return Type{}, errors.New("type name is required")
	}
	prefix, err := NormalizePrefix(parts[1])
	if err != nil {
		return Type{}, err
	}

	var names []string
	for _, p := range parts[2:] {
		if n := strings.TrimSpace(p); n != "" {
			names = append(names, n)
		}
	}
	fields, err := CharFields(names)
	if err != nil {
		return Type{}, err
	}
	return Type{Name: name, Prefix: prefix, Fields: fields}, nil
}

// CharFields binds names to consecutive text slots starting at char1.
func CharFields(names []string) ([]Field, error) {
	if len(names) > CharSlots {
		return nil, fmt.Errorf("%d fields: %w", len(names), ErrTooManyFields)
	}
	fields := make([]Field, 0, len(names))
	for i, n := range names {
		fields = append(fields, Field{Name: n, Slot: CharSlot(i + 1)})
	}
	if err := ValidateFields(fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// DerivePrefix makes a Type prefix from a distributor family name: the first
// three letters of a single word, first letter plus two of the second for two
// words, otherwise the initials of the first three words.
func DerivePrefix(family string) string {
	words := wordRe.FindAllString(family, -1)
	var p string
	switch len(words) {
	case 0:
		return ""
	case 1:
		p = head(words[0], 3)
	case 2:
		p = head(words[0], 1) + head(words[1], 2)
	default:
		p = head(words[0], 1) + head(words[1], 1) + head(words[2], 1)
	}
	return strings.ToUpper(p)
}

func head(s string, n int) string {
	r := []rune(s)
	if len(r) < n {
		return s
	}
	return string(r[:n])
}
