// Package codec converts column values between their live form, the tagged
// domain.Value captured in a pre-image, and the text stored in the change log.
package codec

import (
	"database/sql"
	"database/sql/driver"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/vietddude/hotstore/internal/core/domain"
	"github.com/vietddude/hotstore/internal/hot/schema"
)

// BinaryPrefix marks a text value as hex-encoded bytes.
const BinaryPrefix = `\x`

var (
	// ErrMalformedChange is returned when change-log text cannot be decoded.
	ErrMalformedChange = errors.New("malformed change record")

	// ErrUnsupportedValue is returned when a live value does not fit its column kind.
	ErrUnsupportedValue = errors.New("unsupported value")
)

// EncodeBinary renders b as BinaryPrefix followed by uppercase hex.
func EncodeBinary(b []byte) string {
	return BinaryPrefix + strings.ToUpper(hex.EncodeToString(b))
}

// DecodeBinary reverses EncodeBinary.
func DecodeBinary(s string) ([]byte, error) {
	if !IsBinaryText(s) {
		return nil, fmt.Errorf("%w: binary value without %q prefix", ErrMalformedChange, BinaryPrefix)
	}
	b, err := hex.DecodeString(s[len(BinaryPrefix):])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedChange, err)
	}
	return b, nil
}

// IsBinaryText reports whether s carries the binary prefix.
func IsBinaryText(s string) bool {
	return strings.HasPrefix(s, BinaryPrefix)
}

// Encode converts a live column value into a tagged Value. The column kind
// alone decides the conversion.
func Encode(kind schema.Kind, v any) (domain.Value, error) {
	if valuer, ok := v.(driver.Valuer); ok {
		dv, err := valuer.Value()
		if err != nil {
			return domain.Value{}, err
		}
		v = dv
	}
	if v == nil {
		return domain.Null(), nil
	}

	switch kind {
	case schema.KindText:
		switch t := v.(type) {
		case string:
			return text(domain.Text, t)
		case []byte:
			return text(domain.Text, string(t))
		case time.Time:
			return domain.Text(t.UTC().Format(time.RFC3339Nano)), nil
		case fmt.Stringer:
			return text(domain.Text, t.String())
		}
	case schema.KindDecimal:
		switch t := v.(type) {
		case string:
			return text(domain.Text, t)
		case []byte:
			return text(domain.Text, string(t))
		case float64:
			return domain.Text(strconv.FormatFloat(t, 'f', -1, 64)), nil
		case float32:
			return domain.Text(strconv.FormatFloat(float64(t), 'f', -1, 32)), nil
		case fmt.Stringer:
			return text(domain.Text, t.String())
		}
		if i, ok := toInt64(v); ok {
			return domain.Text(strconv.FormatInt(i, 10)), nil
		}
		if u, ok := v.(uint64); ok {
			return domain.Text(strconv.FormatUint(u, 10)), nil
		}
	case schema.KindInt:
		if i, ok := toInt64(v); ok {
			return domain.Int(i), nil
		}
	case schema.KindFloat:
		switch t := v.(type) {
		case float64:
			return domain.Float(t), nil
		case float32:
			return domain.Float(float64(t)), nil
		}
		if i, ok := toInt64(v); ok {
			return domain.Float(float64(i)), nil
		}
	case schema.KindBool:
		switch t := v.(type) {
		case bool:
			return domain.Bool(t), nil
		case int64:
			return domain.Bool(t != 0), nil
		}
	case schema.KindBinary:
		switch t := v.(type) {
		case []byte:
			return domain.Binary(t), nil
		case string:
			return domain.Binary([]byte(t)), nil
		}
	case schema.KindJSON:
		switch t := v.(type) {
		case string:
			return text(domain.JSON, t)
		case []byte:
			return text(domain.JSON, string(t))
		case json.RawMessage:
			return text(domain.JSON, string(t))
		default:
			text, err := json.Marshal(t)
			if err != nil {
				return domain.Value{}, fmt.Errorf("%w: %v", ErrUnsupportedValue, err)
			}
			return domain.JSON(string(text)), nil
		}
	}
	return domain.Value{}, fmt.Errorf("%w: %T for %s column", ErrUnsupportedValue, v, kind)
}

// Param converts a live column value into a write parameter, serialising
// structured values for JSON columns.
func Param(kind schema.Kind, v any) (any, error) {
	if kind.Plain() || kind == schema.KindBinary {
		return v, nil
	}
	val, err := Encode(kind, v)
	if err != nil {
		return nil, err
	}
	return val.Arg(), nil
}

// Marshal renders a tagged value as the JSON token stored in a change record.
func Marshal(v domain.Value) ([]byte, error) {
	switch v.Kind() {
	case domain.ValueNull:
		return []byte("null"), nil
	case domain.ValueBool:
		return json.Marshal(v.AsBool())
	case domain.ValueInt:
		return strconv.AppendInt(nil, v.AsInt(), 10), nil
	case domain.ValueFloat:
		return json.Marshal(v.AsFloat())
	case domain.ValueText, domain.ValueJSON:
		// encoding/json replaces invalid bytes with U+FFFD.
		if !utf8.ValidString(v.AsText()) {
			return nil, fmt.Errorf("%w: text is not valid UTF-8", ErrUnsupportedValue)
		}
		return json.Marshal(v.AsText())
	case domain.ValueBinary:
		return json.Marshal(EncodeBinary(v.AsBytes()))
	default:
		return nil, fmt.Errorf("%w: value kind %s", ErrUnsupportedValue, v.Kind())
	}
}

// Unmarshal decodes a change-record token for a column of the given kind.
func Unmarshal(kind schema.Kind, data []byte) (domain.Value, error) {
	data = trimSpace(data)
	if isNull(data) {
		return domain.Null(), nil
	}

	switch kind {
	case schema.KindText:
		if data[0] == '"' {
			s, err := unquote(data)
			if err != nil {
				return domain.Value{}, err
			}
			return domain.Text(s), nil
		}
		return domain.Text(string(data)), nil
	case schema.KindDecimal:
		if data[0] == '"' {
			s, err := unquote(data)
			if err != nil {
				return domain.Value{}, err
			}
			return domain.Text(s), nil
		}
		if _, ok := new(big.Rat).SetString(string(data)); !ok {
			return domain.Value{}, fmt.Errorf("%w: decimal value %s", ErrMalformedChange, data)
		}
		return domain.Text(string(data)), nil
	case schema.KindInt:
		i, err := strconv.ParseInt(string(stripQuotes(data)), 10, 64)
		if err != nil {
			return domain.Value{}, fmt.Errorf("%w: int value %s", ErrMalformedChange, data)
		}
		return domain.Int(i), nil
	case schema.KindFloat:
		f, err := strconv.ParseFloat(string(stripQuotes(data)), 64)
		if err != nil {
			return domain.Value{}, fmt.Errorf("%w: float value %s", ErrMalformedChange, data)
		}
		return domain.Float(f), nil
	case schema.KindBool:
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return domain.Value{}, fmt.Errorf("%w: bool value %s", ErrMalformedChange, data)
		}
		return domain.Bool(b), nil
	case schema.KindBinary:
		s, err := unquote(data)
		if err != nil {
			return domain.Value{}, err
		}
		b, err := DecodeBinary(s)
		if err != nil {
			return domain.Value{}, err
		}
		return domain.Binary(b), nil
	case schema.KindJSON:
		if data[0] == '"' {
			s, err := unquote(data)
			if err != nil {
				return domain.Value{}, err
			}
			return domain.JSON(s), nil
		}
		return domain.JSON(string(data)), nil
	default:
		return domain.Value{}, fmt.Errorf("%w: column kind %s", ErrMalformedChange, kind)
	}
}

// UnmarshalUntyped decodes a token for a column the registry does not know.
// Strings carrying BinaryPrefix are taken to be binary.
func UnmarshalUntyped(data []byte) (domain.Value, error) {
	data = trimSpace(data)
	if len(data) == 0 {
		return domain.Value{}, fmt.Errorf("%w: empty value", ErrMalformedChange)
	}
	switch data[0] {
	case 'n':
		if isNull(data) {
			return domain.Null(), nil
		}
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err == nil {
			return domain.Bool(b), nil
		}
	case '"':
		s, err := unquote(data)
		if err != nil {
			return domain.Value{}, err
		}
		if IsBinaryText(s) {
			if b, err := DecodeBinary(s); err == nil {
				return domain.Binary(b), nil
			}
		}
		return domain.Text(s), nil
	case '{', '[':
		return domain.JSON(string(data)), nil
	default:
		if i, err := strconv.ParseInt(string(data), 10, 64); err == nil {
			return domain.Int(i), nil
		}
		if f, err := strconv.ParseFloat(string(data), 64); err == nil {
			return domain.Float(f), nil
		}
	}
	return domain.Value{}, fmt.Errorf("%w: value %s", ErrMalformedChange, data)
}

// text builds a text-carrying value. The change log is JSON, which cannot
// hold invalid UTF-8 without loss.
func text(build func(string) domain.Value, s string) (domain.Value, error) {
	if !utf8.ValidString(s) {
		return domain.Value{}, fmt.Errorf("%w: text is not valid UTF-8", ErrUnsupportedValue)
	}
	return build(s), nil
}

func toInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case int64:
		return t, true
	case int:
		return int64(t), true
	case int32:
		return int64(t), true
	case int16:
		return int64(t), true
	case int8:
		return int64(t), true
	case uint32:
		return int64(t), true
	case uint16:
		return int64(t), true
	case uint8:
		return int64(t), true
	case uint64:
		if t > 1<<63-1 {
			return 0, false
		}
		return int64(t), true
	case sql.NullInt64:
		return t.Int64, t.Valid
	}
	return 0, false
}

func trimSpace(b []byte) []byte {
	return []byte(strings.TrimSpace(string(b)))
}

func isNull(b []byte) bool {
	return string(b) == "null"
}

func stripQuotes(b []byte) []byte {
	if len(b) >= 2 && b[0] == '"' && b[len(b)-1] == '"' {
		return b[1 : len(b)-1]
	}
	return b
}

func unquote(data []byte) (string, error) {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return "", fmt.Errorf("%w: expected string, got %s", ErrMalformedChange, data)
	}
	return s, nil
}
