package domain

import (
	"bytes"
	"fmt"
)

// ValueKind tags the variant held by a Value.
type ValueKind uint8

const (
	ValueNull ValueKind = iota
	ValueBool
	ValueInt
	ValueFloat
	ValueText
	ValueBinary
	ValueJSON
)

func (k ValueKind) String() string {
	switch k {
	case ValueNull:
		return "null"
	case ValueBool:
		return "bool"
	case ValueInt:
		return "int"
	case ValueFloat:
		return "float"
	case ValueText:
		return "text"
	case ValueBinary:
		return "binary"
	case ValueJSON:
		return "json"
	default:
		return fmt.Sprintf("ValueKind(%d)", uint8(k))
	}
}

// Value is a column value captured in a pre-image. The zero Value is null.
type Value struct {
	kind ValueKind
	b    bool
	i    int64
	f    float64
	s    string
	raw  []byte
}

func Null() Value            { return Value{} }
func Bool(v bool) Value      { return Value{kind: ValueBool, b: v} }
func Int(v int64) Value      { return Value{kind: ValueInt, i: v} }
func Float(v float64) Value  { return Value{kind: ValueFloat, f: v} }
func Text(v string) Value    { return Value{kind: ValueText, s: v} }
func JSON(text string) Value { return Value{kind: ValueJSON, s: text} }
func Binary(v []byte) Value {
	raw := make([]byte, len(v))
	copy(raw, v)
	return Value{kind: ValueBinary, raw: raw}
}

func (v Value) Kind() ValueKind { return v.kind }
func (v Value) IsNull() bool    { return v.kind == ValueNull }

func (v Value) AsBool() bool     { return v.b }
func (v Value) AsInt() int64     { return v.i }
func (v Value) AsFloat() float64 { return v.f }
func (v Value) AsText() string   { return v.s }
func (v Value) AsBytes() []byte  { return v.raw }

// Arg returns the value in the form a database driver accepts as a parameter.
func (v Value) Arg() any {
	switch v.kind {
	case ValueBool:
		return v.b
	case ValueInt:
		return v.i
	case ValueFloat:
		return v.f
	case ValueText, ValueJSON:
		return v.s
	case ValueBinary:
		return v.raw
	default:
		return nil
	}
}

// Equal reports whether both values hold the same variant and payload.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case ValueBool:
		return v.b == o.b
	case ValueInt:
		return v.i == o.i
	case ValueFloat:
		return v.f == o.f
	case ValueText, ValueJSON:
		return v.s == o.s
	case ValueBinary:
		return bytes.Equal(v.raw, o.raw)
	default:
		return true
	}
}

func (v Value) String() string {
	switch v.kind {
	case ValueNull:
		return "null"
	case ValueBinary:
		return fmt.Sprintf("binary(%x)", v.raw)
	default:
		return fmt.Sprintf("%s(%v)", v.kind, v.Arg())
	}
}

// Field is one captured column of a pre-image.
type Field struct {
	Column string
	Value  Value
}

// Fields is an ordered column -> prior value list.
type Fields []Field

// Get returns the value stored for column.
func (fs Fields) Get(column string) (Value, bool) {
	for _, f := range fs {
		if f.Column == column {
			return f.Value, true
		}
	}
	return Value{}, false
}

// Columns returns the column names in order.
func (fs Fields) Columns() []string {
	cols := make([]string, len(fs))
	for i, f := range fs {
		cols[i] = f.Column
	}
	return cols
}
