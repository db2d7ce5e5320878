package channel

import (
	"fmt"
	"slices"
)

const (
	// TimestampField is the name of the mandatory first field of every schema.
	TimestampField = "t"

	Touch = "touch"
	Acc   = "acc"
	Gyro  = "gyro"
)

// FieldType is the fixed-width numeric type of a column.
type FieldType uint8

const (
	Int64 FieldType = iota + 1
	Float32
	Float64
)

// Width returns the number of bytes a single value occupies on the wire.
func (t FieldType) Width() int {
	switch t {
	case Int64, Float64:
		return 8
	case Float32:
		return 4
	default:
		return 0
	}
}

func (t FieldType) String() string {
	switch t {
	case Int64:
		return "int64"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	default:
		return fmt.Sprintf("FieldType(%d)", uint8(t))
	}
}

// Field is a named column.
type Field struct {
	Name string
	Type FieldType
}

// Schema is the ordered list of fields of a channel. The first field is always
// the int64 microsecond timestamp; all others are floating point.
type Schema struct {
	Fields []Field
}

var (
	// TouchSchema is the layout of the touch trajectory channel.
	TouchSchema = NewSchema(Float64, "x", "y", "pressure", "size")

	// IMUSchema is the layout of the accelerometer and gyroscope channels.
	IMUSchema = NewSchema(Float64, "x", "y", "z")
)

// NewSchema returns a schema with the timestamp field followed by the named
// value fields, all of type typ.
func NewSchema(typ FieldType, names ...string) Schema {
	fields := make([]Field, 0, len(names)+1)
	fields = append(fields, Field{Name: TimestampField, Type: Int64})
	for _, name := range names {
		fields = append(fields, Field{Name: name, Type: typ})
	}
	return Schema{Fields: fields}
}

// Validate checks the schema is well formed.
func (s Schema) Validate() error {
	if len(s.Fields) == 0 || s.Fields[0].Name != TimestampField || s.Fields[0].Type != Int64 {
		return NewEncodingError("schema must start with an int64 %q field", TimestampField)
	}
	if len(s.Fields) > 255 {
		return NewEncodingError("schema has %d fields, at most 255 supported", len(s.Fields))
	}

	seen := make(map[string]struct{}, len(s.Fields))
	for i, f := range s.Fields {
		if f.Name == "" || len(f.Name) > 255 {
			return NewEncodingError("field %d has an invalid name", i)
		}
		if _, ok := seen[f.Name]; ok {
			return NewEncodingError("duplicate field %q", f.Name)
		}
		seen[f.Name] = struct{}{}

		if i > 0 && f.Type != Float32 && f.Type != Float64 {
			return NewEncodingError("field %q: value fields must be float32 or float64, got %s", f.Name, f.Type)
		}
	}
	return nil
}

// Index returns the position of the named value field in Channel.Values, or -1.
func (s Schema) Index(name string) int {
	i := slices.IndexFunc(s.Fields, func(f Field) bool { return f.Name == name })
	if i <= 0 {
		return -1
	}
	return i - 1
}

// Equal reports whether two schemas have the same fields in the same order.
func (s Schema) Equal(o Schema) bool {
	return slices.Equal(s.Fields, o.Fields)
}
