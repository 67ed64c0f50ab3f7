// Package convert maps between structpb request/response messages and domain types.
package convert

import (
	"fmt"
	"math"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/shopspring/decimal"
	"google.golang.org/protobuf/types/known/structpb"
)

// Fields reads typed values out of a request struct. Missing keys read as zero values.
type Fields struct {
	m map[string]*structpb.Value
}

// Of wraps s. A nil struct has no fields.
func Of(s *structpb.Struct) Fields {
	return Fields{m: s.GetFields()}
}

// Has reports whether key is present and not null.
func (f Fields) Has(key string) bool {
	v, ok := f.m[key]
	if !ok {
		return false
	}
	_, null := v.GetKind().(*structpb.Value_NullValue)
	return !null
}

func (f Fields) String(key string) string {
	return f.m[key].GetStringValue()
}

// OptString is nil when key is absent.
func (f Fields) OptString(key string) *string {
	if !f.Has(key) {
		return nil
	}
	s := f.String(key)
	return &s
}

func (f Fields) Bool(key string) bool {
	return f.m[key].GetBoolValue()
}

// OptBool is nil when key is absent.
func (f Fields) OptBool(key string) *bool {
	if !f.Has(key) {
		return nil
	}
	b := f.Bool(key)
	return &b
}

// Int reads an integral number.
func (f Fields) Int(key string) (int, error) {
	if !f.Has(key) {
		return 0, nil
	}
	v, ok := f.m[key].GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, fmt.Errorf("%s: not a number", key)
	}
	n := v.NumberValue
	if n != math.Trunc(n) || math.Abs(n) > math.MaxInt32 {
		return 0, fmt.Errorf("%s: not an integer", key)
	}
	return int(n), nil
}

// Float reads a number.
func (f Fields) Float(key string) float64 {
	return f.m[key].GetNumberValue()
}

// Strings reads a list of strings, skipping other element kinds.
func (f Fields) Strings(key string) []string {
	vs := f.m[key].GetListValue().GetValues()
	if len(vs) == 0 {
		return nil
	}
	out := make([]string, 0, len(vs))
	for _, v := range vs {
		if s, ok := v.GetKind().(*structpb.Value_StringValue); ok {
			out = append(out, s.StringValue)
		}
	}
	return out
}

// Time reads an RFC 3339 timestamp.
func (f Fields) Time(key string) (time.Time, error) {
	s := f.String(key)
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", key, err)
	}
	return t.UTC(), nil
}

// UUID reads a UUID in canonical text form.
func (f Fields) UUID(key string) (uuid.UUID, error) {
	id, err := uuid.FromString(f.String(key))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s: %w", key, err)
	}
	return id, nil
}

// Decimal reads a decimal given as a string or a number.
func (f Fields) Decimal(key string) (decimal.Decimal, error) {
	switch v := f.m[key].GetKind().(type) {
	case *structpb.Value_StringValue:
		d, err := decimal.NewFromString(v.StringValue)
		if err != nil {
			return decimal.Zero, fmt.Errorf("%s: %w", key, err)
		}
		return d, nil
	case *structpb.Value_NumberValue:
		return decimal.NewFromFloat(v.NumberValue), nil
	default:
		return decimal.Zero, fmt.Errorf("%s: not a decimal", key)
	}
}

// Struct reads a nested object.
func (f Fields) Struct(key string) Fields {
	return Of(f.m[key].GetStructValue())
}

// List reads a list of nested objects.
func (f Fields) List(key string) []Fields {
	vs := f.m[key].GetListValue().GetValues()
	out := make([]Fields, 0, len(vs))
	for _, v := range vs {
		if s := v.GetStructValue(); s != nil {
			out = append(out, Of(s))
		}
	}
	return out
}
