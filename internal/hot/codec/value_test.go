package codec

import (
	"bytes"
	"database/sql"
	"errors"
	"math/rand"
	"testing"

	"github.com/vietddude/hotstore/internal/core/domain"
	"github.com/vietddude/hotstore/internal/hot/schema"
)

func TestBinaryRoundTrip(t *testing.T) {
	inputs := [][]byte{
		nil,
		{},
		{0x00},
		{0xff, 0x00, 0xab},
		[]byte(`\x`),
		[]byte("plain text"),
	}
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 200; i++ {
		b := make([]byte, rng.Intn(64))
		rng.Read(b)
		inputs = append(inputs, b)
	}

	for _, in := range inputs {
		token, err := Marshal(domain.Binary(in))
		if err != nil {
			t.Fatalf("Marshal(%x) failed: %v", in, err)
		}
		out, err := Unmarshal(schema.KindBinary, token)
		if err != nil {
			t.Fatalf("Unmarshal(%s) failed: %v", token, err)
		}
		if out.Kind() != domain.ValueBinary {
			t.Fatalf("expected binary value, got %s", out.Kind())
		}
		if !bytes.Equal(out.AsBytes(), in) {
			t.Fatalf("round trip mismatch: want %x, got %x", in, out.AsBytes())
		}
	}
}

func TestEncodeBinary_UppercaseHex(t *testing.T) {
	got := EncodeBinary([]byte{0xde, 0xad, 0xbe, 0xef})
	if got != `\xDEADBEEF` {
		t.Errorf("expected \\xDEADBEEF, got %s", got)
	}
}

func TestDecodeBinary_Errors(t *testing.T) {
	if _, err := DecodeBinary("DEAD"); !errors.Is(err, ErrMalformedChange) {
		t.Errorf("expected missing prefix to fail, got %v", err)
	}
	if _, err := DecodeBinary(`\xZZ`); !errors.Is(err, ErrMalformedChange) {
		t.Errorf("expected bad hex to fail, got %v", err)
	}
}

func TestEncode_ByKind(t *testing.T) {
	tcs := []struct {
		name string
		kind schema.Kind
		in   any
		want domain.Value
	}{
		{name: "nil", kind: schema.KindText, in: nil, want: domain.Null()},
		{name: "text", kind: schema.KindText, in: "abc", want: domain.Text("abc")},
		{name: "text from bytes", kind: schema.KindText, in: []byte("abc"), want: domain.Text("abc")},
		{name: "int", kind: schema.KindInt, in: 7, want: domain.Int(7)},
		{name: "int64", kind: schema.KindInt, in: int64(-3), want: domain.Int(-3)},
		{name: "null int", kind: schema.KindInt, in: sql.NullInt64{}, want: domain.Null()},
		{name: "valid null int", kind: schema.KindInt, in: sql.NullInt64{Int64: 5, Valid: true}, want: domain.Int(5)},
		{name: "float", kind: schema.KindFloat, in: 1.5, want: domain.Float(1.5)},
		{name: "bool", kind: schema.KindBool, in: true, want: domain.Bool(true)},
		{name: "bool from sqlite int", kind: schema.KindBool, in: int64(0), want: domain.Bool(false)},
		{name: "binary", kind: schema.KindBinary, in: []byte{1, 2}, want: domain.Binary([]byte{1, 2})},
		{name: "json text", kind: schema.KindJSON, in: `{"a":1}`, want: domain.JSON(`{"a":1}`)},
		{name: "json sequence", kind: schema.KindJSON, in: []int{1, 2, 3}, want: domain.JSON(`[1,2,3]`)},
		{name: "json strings", kind: schema.KindJSON, in: []string{"a"}, want: domain.JSON(`["a"]`)},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Encode(tc.kind, tc.in)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
			if !got.Equal(tc.want) {
				t.Errorf("Encode(%s, %v) = %s, want %s", tc.kind, tc.in, got, tc.want)
			}
		})
	}
}

func TestEncode_Unsupported(t *testing.T) {
	if _, err := Encode(schema.KindInt, "seven"); !errors.Is(err, ErrUnsupportedValue) {
		t.Errorf("expected ErrUnsupportedValue, got %v", err)
	}
	if _, err := Encode(schema.KindBool, 1.5); !errors.Is(err, ErrUnsupportedValue) {
		t.Errorf("expected ErrUnsupportedValue, got %v", err)
	}
}

func TestParam(t *testing.T) {
	got, err := Param(schema.KindJSON, []string{"x", "y"})
	if err != nil {
		t.Fatalf("Param failed: %v", err)
	}
	if got != `["x","y"]` {
		t.Errorf("expected JSON text, got %v", got)
	}

	plain, err := Param(schema.KindInt, 10)
	if err != nil {
		t.Fatalf("Param failed: %v", err)
	}
	if plain != 10 {
		t.Errorf("expected plain value to pass through, got %v", plain)
	}

	raw := []byte{9}
	bin, _ := Param(schema.KindBinary, raw)
	if !bytes.Equal(bin.([]byte), raw) {
		t.Errorf("expected binary to pass through, got %v", bin)
	}
}

func TestMarshalUnmarshal_ByKind(t *testing.T) {
	tcs := []struct {
		kind schema.Kind
		v    domain.Value
	}{
		{schema.KindText, domain.Text("hello")},
		{schema.KindText, domain.Text(`\xnot binary`)},
		{schema.KindText, domain.Null()},
		{schema.KindInt, domain.Int(-9007199254740993)},
		{schema.KindFloat, domain.Float(0.25)},
		{schema.KindBool, domain.Bool(false)},
		{schema.KindJSON, domain.JSON(`[1,"two"]`)},
		{schema.KindBinary, domain.Binary([]byte{0x0a})},
	}

	for _, tc := range tcs {
		token, err := Marshal(tc.v)
		if err != nil {
			t.Fatalf("Marshal(%s) failed: %v", tc.v, err)
		}
		got, err := Unmarshal(tc.kind, token)
		if err != nil {
			t.Fatalf("Unmarshal(%s, %s) failed: %v", tc.kind, token, err)
		}
		if !got.Equal(tc.v) {
			t.Errorf("round trip for %s: want %s, got %s", tc.kind, tc.v, got)
		}
	}
}

func TestUnmarshal_JSONObjectToken(t *testing.T) {
	got, err := Unmarshal(schema.KindJSON, []byte(`{"a":[1,2]}`))
	if err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if !got.Equal(domain.JSON(`{"a":[1,2]}`)) {
		t.Errorf("unexpected value %s", got)
	}
}

func TestUnmarshal_Malformed(t *testing.T) {
	tcs := []struct {
		kind schema.Kind
		data string
	}{
		{schema.KindInt, `"abc"`},
		{schema.KindFloat, `true`},
		{schema.KindBool, `1`},
		{schema.KindBinary, `"DEAD"`},
		{schema.KindBinary, `12`},
	}
	for _, tc := range tcs {
		if _, err := Unmarshal(tc.kind, []byte(tc.data)); !errors.Is(err, ErrMalformedChange) {
			t.Errorf("Unmarshal(%s, %s): expected ErrMalformedChange, got %v", tc.kind, tc.data, err)
		}
	}
}

func TestUnmarshalUntyped(t *testing.T) {
	tcs := []struct {
		data string
		want domain.Value
	}{
		{`null`, domain.Null()},
		{`true`, domain.Bool(true)},
		{`42`, domain.Int(42)},
		{`4.5`, domain.Float(4.5)},
		{`"text"`, domain.Text("text")},
		{`"\\xCAFE"`, domain.Binary([]byte{0xca, 0xfe})},
		{`"\\xnothex"`, domain.Text(`\xnothex`)},
		{`[1,2]`, domain.JSON(`[1,2]`)},
	}
	for _, tc := range tcs {
		got, err := UnmarshalUntyped([]byte(tc.data))
		if err != nil {
			t.Fatalf("UnmarshalUntyped(%s) failed: %v", tc.data, err)
		}
		if !got.Equal(tc.want) {
			t.Errorf("UnmarshalUntyped(%s) = %s, want %s", tc.data, got, tc.want)
		}
	}

	if _, err := UnmarshalUntyped([]byte(`nope`)); !errors.Is(err, ErrMalformedChange) {
		t.Errorf("expected ErrMalformedChange, got %v", err)
	}
}

func TestDecimal_KeepsEveryDigit(t *testing.T) {
	tcs := []struct {
		in   any
		want string
	}{
		{"9007199254740993", "9007199254740993"},
		{"123456789012345678901234567890.000000000000000001", "123456789012345678901234567890.000000000000000001"},
		{int64(9007199254740993), "9007199254740993"},
		{uint64(18446744073709551615), "18446744073709551615"},
		{[]byte("-0.5"), "-0.5"},
		{0.25, "0.25"},
	}
	for _, tc := range tcs {
		v, err := Encode(schema.KindDecimal, tc.in)
		if err != nil {
			t.Fatalf("Encode(%v) failed: %v", tc.in, err)
		}
		token, err := Marshal(v)
		if err != nil {
			t.Fatalf("Marshal failed: %v", err)
		}
		out, err := Unmarshal(schema.KindDecimal, token)
		if err != nil {
			t.Fatalf("Unmarshal(%s) failed: %v", token, err)
		}
		if out.AsText() != tc.want {
			t.Errorf("expected %s, got %s", tc.want, out.AsText())
		}
		if out.Arg() != tc.want {
			t.Errorf("expected string parameter %s, got %#v", tc.want, out.Arg())
		}
	}

	// A bare number token is taken verbatim, not through float64.
	out, err := Unmarshal(schema.KindDecimal, []byte("9007199254740993"))
	if err != nil || out.AsText() != "9007199254740993" {
		t.Errorf("expected 9007199254740993, got %v (%v)", out.AsText(), err)
	}
	if _, err := Unmarshal(schema.KindDecimal, []byte("twelve")); !errors.Is(err, ErrMalformedChange) {
		t.Errorf("expected ErrMalformedChange, got %v", err)
	}
}

func TestInvalidUTF8Text_IsRejected(t *testing.T) {
	bad := "\xff\xfeA"
	for _, kind := range []schema.Kind{schema.KindText, schema.KindJSON, schema.KindDecimal} {
		if _, err := Encode(kind, bad); !errors.Is(err, ErrUnsupportedValue) {
			t.Errorf("Encode(%s): expected ErrUnsupportedValue, got %v", kind, err)
		}
		if _, err := Encode(kind, []byte(bad)); !errors.Is(err, ErrUnsupportedValue) {
			t.Errorf("Encode(%s, []byte): expected ErrUnsupportedValue, got %v", kind, err)
		}
	}
	if _, err := Marshal(domain.Text(bad)); !errors.Is(err, ErrUnsupportedValue) {
		t.Errorf("Marshal: expected ErrUnsupportedValue, got %v", err)
	}

	// Bytes in a binary column are fine.
	if _, err := Encode(schema.KindBinary, bad); err != nil {
		t.Errorf("expected binary column to accept raw bytes, got %v", err)
	}
}
