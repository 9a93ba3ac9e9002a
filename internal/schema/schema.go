// Package schema maps per-Type named fields onto the fixed pool of generic
// columns carried by every part row.
package schema

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	// CharSlots is the number of generic text columns on a part.
	CharSlots = 35
	// IntegerSlots is the number of generic integer columns on a part.
	IntegerSlots = 2
	// MaxFields is the most fields a single Type can bind.
	MaxFields = CharSlots + IntegerSlots
)

var (
	ErrUnknownSlot     = errors.New("unknown storage slot")
	ErrDuplicateSlot   = errors.New("fields must have unique types")
	ErrDuplicateName   = errors.New("fields must have unique names")
	ErrIncompleteField = errors.New("all field names must have an associated type")
	ErrTooManyFields   = errors.New("too many fields for one type")
	ErrInvalidPrefix   = errors.New("prefix must be 1 to 3 letters or digits")
	ErrUnknownField    = errors.New("unknown field")
	ErrNotInteger      = errors.New("value must be a whole number")
)

// Slot names one generic storage column: char1..char35, integer1, integer2.
type Slot string

// CharSlot returns the n-th text slot (1-based).
func CharSlot(n int) Slot { return Slot("char" + strconv.Itoa(n)) }

// IntegerSlot returns the n-th integer slot (1-based).
func IntegerSlot(n int) Slot { return Slot("integer" + strconv.Itoa(n)) }

// AllSlots lists every slot in column order.
func AllSlots() []Slot {
	out := make([]Slot, 0, MaxFields)
	for i := 1; i <= CharSlots; i++ {
		out = append(out, CharSlot(i))
	}
	for i := 1; i <= IntegerSlots; i++ {
		out = append(out, IntegerSlot(i))
	}
	return out
}

// Valid reports whether s is one of the known slots.
func (s Slot) Valid() bool {
	var prefix string
	var limit int
	switch {
	case strings.HasPrefix(string(s), "char"):
		prefix, limit = "char", CharSlots
	case strings.HasPrefix(string(s), "integer"):
		prefix, limit = "integer", IntegerSlots
	default:
		return false
	}
	digits := strings.TrimPrefix(string(s), prefix)
	if digits == "" || digits[0] == '0' {
		return false
	}
	n, err := strconv.Atoi(digits)
	return err == nil && n >= 1 && n <= limit
}

// IsInteger reports whether s is an integer column.
func (s Slot) IsInteger() bool {
	return strings.HasPrefix(string(s), "integer")
}

// Field binds a display name to a storage slot within one Type.
type Field struct {
	ID     int64  `json:"id,omitempty"`
	TypeID int64  `json:"type_id,omitempty"`
	Name   string `json:"name"`
	Slot   Slot   `json:"slot"`
}

// Type is a part category with its ID prefix and ordered fields.
type Type struct {
	ID     int64   `json:"id"`
	Name   string  `json:"name"`
	Prefix string  `json:"prefix"`
	Fields []Field `json:"fields"`
}

// ValidateFields checks a Type's field set. Every problem found is returned,
// joined, so callers can report them together.
func ValidateFields(fields []Field) error {
	if len(fields) > MaxFields {
		return fmt.Errorf("%d fields: %w", len(fields), ErrTooManyFields)
	}
	var errs []error
	names := make(map[string]bool, len(fields))
	slots := make(map[Slot]bool, len(fields))
	for i, f := range fields {
		name := strings.TrimSpace(f.Name)
		if name == "" && f.Slot == "" {
			continue
		}
		if name == "" || f.Slot == "" {
			errs = append(errs, fmt.Errorf("field %d: %w", i+1, ErrIncompleteField))
			continue
		}
		if !f.Slot.Valid() {
			errs = append(errs, fmt.Errorf("field %q: %w %q", name, ErrUnknownSlot, f.Slot))
			continue
		}
		key := strings.ToLower(name)
		if names[key] {
			errs = append(errs, fmt.Errorf("field %q: %w", name, ErrDuplicateName))
		}
		if slots[f.Slot] {
			errs = append(errs, fmt.Errorf("slot %s: %w", f.Slot, ErrDuplicateSlot))
		}
		names[key] = true
		slots[f.Slot] = true
	}
	return errors.Join(errs...)
}

// Compact drops fully blank rows (no name and no slot) and trims names.
func Compact(fields []Field) []Field {
	out := make([]Field, 0, len(fields))
	for _, f := range fields {
		f.Name = strings.TrimSpace(f.Name)
		if f.Name == "" && f.Slot == "" {
			continue
		}
		out = append(out, f)
	}
	return out
}

// NormalizePrefix upper-cases and validates a Type prefix.
func NormalizePrefix(prefix string) (string, error) {
	p := strings.ToUpper(strings.TrimSpace(prefix))
	if len(p) == 0 || len(p) > 3 {
		return "", ErrInvalidPrefix
	}
	for _, r := range p {
		if !(r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return "", ErrInvalidPrefix
		}
	}
	return p, nil
}
