package layout

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

var (
	ErrLayoutNotFound = errors.New("layout: layout not found")
	ErrFieldIndex     = errors.New("layout: field index out of range")
	ErrInvalidField   = errors.New("layout: invalid field")
	ErrInvalidName    = errors.New("layout: invalid layout name")
)

// DefaultLayoutName is seeded into every new store.
const DefaultLayoutName = "HPDH"

// MaxBMPPosition is the last position addressable with a secondary bitmap.
const MaxBMPPosition = 128

type LengthType string

const (
	LengthFixed    LengthType = "fixed"
	LengthVariable LengthType = "variable"
)

type DataType string

const (
	DataNumeric      DataType = "numeric"
	DataAlphanumeric DataType = "alphanumeric"
)

type Justification string

const (
	JustifyLeft  Justification = "left"
	JustifyRight Justification = "right"
)

// Field describes one bitmap-addressed message field.
type Field struct {
	BMPPosition   int           `json:"bmp_position" toml:"bmp_position"`
	LengthType    LengthType    `json:"length_type" toml:"length_type"`
	DataType      DataType      `json:"data_type" toml:"data_type"`
	Justification Justification `json:"justification" toml:"justification"`
	Filler        string        `json:"filler" toml:"filler"`
	FieldName     string        `json:"field_name" toml:"field_name"`
	DefaultValue  string        `json:"default_value" toml:"default_value"`
}

// Layout is a named, position-ordered field list.
type Layout struct {
	Name   string  `json:"name"`
	Fields []Field `json:"fields"`
}

// DefaultLayout returns the HPDH layout a fresh store starts with.
func DefaultLayout() Layout {
	return Layout{
		Name: DefaultLayoutName,
		Fields: []Field{
			{
				BMPPosition:   1,
				LengthType:    LengthFixed,
				DataType:      DataNumeric,
				Justification: JustifyRight,
				Filler:        "0",
				FieldName:     "Transaction Code",
				DefaultValue:  "000000",
			},
			{
				BMPPosition:   2,
				LengthType:    LengthVariable,
				DataType:      DataAlphanumeric,
				Justification: JustifyLeft,
				Filler:        " ",
				FieldName:     "Primary Account Number",
				DefaultValue:  "",
			},
		},
	}
}

// Normalize lowercases enum values and trims the field name.
func (f Field) Normalize() Field {
	f.LengthType = LengthType(strings.ToLower(strings.TrimSpace(string(f.LengthType))))
	f.DataType = DataType(strings.ToLower(strings.TrimSpace(string(f.DataType))))
	f.Justification = Justification(strings.ToLower(strings.TrimSpace(string(f.Justification))))
	f.FieldName = strings.TrimSpace(f.FieldName)
	return f
}

// Validate expects a normalized field.
func (f Field) Validate() error {
	if f.BMPPosition < 1 || f.BMPPosition > MaxBMPPosition {
		return fmt.Errorf("%w: bmp_position %d outside 1..%d", ErrInvalidField, f.BMPPosition, MaxBMPPosition)
	}
	switch f.LengthType {
	case LengthFixed, LengthVariable:
	default:
		return fmt.Errorf("%w: length_type %q", ErrInvalidField, f.LengthType)
	}
	switch f.DataType {
	case DataNumeric, DataAlphanumeric:
	default:
		return fmt.Errorf("%w: data_type %q", ErrInvalidField, f.DataType)
	}
	switch f.Justification {
	case JustifyLeft, JustifyRight:
	default:
		return fmt.Errorf("%w: justification %q", ErrInvalidField, f.Justification)
	}
	if utf8.RuneCountInString(f.Filler) != 1 {
		return fmt.Errorf("%w: filler must be exactly one character, got %q", ErrInvalidField, f.Filler)
	}
	if f.FieldName == "" {
		return fmt.Errorf("%w: field_name required (bmp_position=%d)", ErrInvalidField, f.BMPPosition)
	}
	if f.DataType == DataNumeric {
		for _, r := range f.DefaultValue {
			if r < '0' || r > '9' {
				return fmt.Errorf("%w: numeric default_value %q", ErrInvalidField, f.DefaultValue)
			}
		}
	}
	return nil
}

// normalizeFields validates every field, sorts by position and rejects
// duplicate positions. The input slice is not modified.
func normalizeFields(in []Field) ([]Field, error) {
	out := make([]Field, len(in))
	for i, f := range in {
		f = f.Normalize()
		if err := f.Validate(); err != nil {
			return nil, err
		}
		out[i] = f
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].BMPPosition < out[j].BMPPosition })
	for i := 1; i < len(out); i++ {
		if out[i].BMPPosition == out[i-1].BMPPosition {
			return nil, fmt.Errorf("%w: duplicate bmp_position %d", ErrInvalidField, out[i].BMPPosition)
		}
	}
	return out, nil
}

func normalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrInvalidName
	}
	return name, nil
}
