package s7

import (
	"bytes"
	"testing"
	"time"
)

func TestPrimitiveRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		v    Value
		typ  DataType
	}{
		{"BOOL", NewBool(true), Bool()},
		{"BYTE", NewByte(0xAB), Byte()},
		{"WORD", NewWord(0x1234), Word()},
		{"INT", NewInt(-100), Int()},
		{"DWORD", NewDWord(0xDEADBEEF), DWord()},
		{"DINT", NewDInt(-123456), DInt()},
		{"UDINT", NewUDInt(123456), UDInt()},
		{"REAL", NewReal(3.5), Real()},
		{"LREAL", NewLReal(3.14159), LReal()},
		{"TIME", NewTime(-1500 * time.Millisecond), Time()},
	}
	for _, c := range cases {
		raw, err := Encode(c.v, c.typ)
		if err != nil {
			t.Fatalf("%s: encode error: %v", c.name, err)
		}
		got, err := Decode(raw, c.typ, -1)
		if err != nil {
			t.Fatalf("%s: decode error: %v", c.name, err)
		}
		if !got.Equal(c.v) {
			t.Fatalf("%s: round trip mismatch: got %+v, want %+v", c.name, got.Raw, c.v.Raw)
		}
	}
}

func TestBoolBitExtraction(t *testing.T) {
	raw := []byte{0b0000_0100}
	v, err := Decode(raw, Bool(), 2)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := v.Bool()
	if !b {
		t.Fatal("expected bit 2 set")
	}
	v, _ = Decode(raw, Bool(), 3)
	b, _ = v.Bool()
	if b {
		t.Fatal("expected bit 3 clear")
	}
}

func TestS7StringEncodeDecodeVector(t *testing.T) {
	// "HELLO", reserved=10 -> 0A 05 48 45 4C 4C 4F 00 00 00 00 00
	want := []byte{0x0A, 0x05, 0x48, 0x45, 0x4C, 0x4C, 0x4F, 0x00, 0x00, 0x00, 0x00, 0x00}
	got, err := encodeS7String("HELLO", 10)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("encodeS7String: got % X, want % X", got, want)
	}
	v, err := decodeS7String(got)
	if err != nil {
		t.Fatal(err)
	}
	s, _ := v.String()
	if s != "HELLO" {
		t.Fatalf("decodeS7String: got %q, want HELLO", s)
	}
}

func TestS7WStringRoundTrip(t *testing.T) {
	raw, err := encodeS7WString("hi", 16)
	if err != nil {
		t.Fatal(err)
	}
	v, err := decodeS7WString(raw)
	if err != nil {
		t.Fatal(err)
	}
	s, _ := v.String()
	if s != "hi" {
		t.Fatalf("got %q, want hi", s)
	}
}

func TestCounterDecodesAsBCD(t *testing.T) {
	// BCD 0x0123 -> decimal 123
	v, err := decodeCounter(0x0123)
	if err != nil {
		t.Fatal(err)
	}
	if v != 123 {
		t.Fatalf("got %d, want 123", v)
	}
	raw := encodeCounter(123)
	if raw[0] != 0x01 || raw[1] != 0x23 {
		t.Fatalf("encodeCounter(123) = % X, want 01 23", raw)
	}
}

func TestTimerDecode(t *testing.T) {
	// base=1 (100ms), BCD digits = 005 -> 5*100ms = 500ms
	raw := uint16(1<<12) | 0x0005
	d, err := decodeTimer(raw)
	if err != nil {
		t.Fatal(err)
	}
	if d != 500*time.Millisecond {
		t.Fatalf("got %v, want 500ms", d)
	}
}

func TestTimerTopBitsIgnoredOnDecode(t *testing.T) {
	raw := uint16(0xC000) | uint16(1<<12) | 0x0005
	d, err := decodeTimer(raw)
	if err != nil {
		t.Fatal(err)
	}
	if d != 500*time.Millisecond {
		t.Fatalf("reserved bits changed decode result: got %v", d)
	}
}

func TestTimerEncodeMasksReservedBits(t *testing.T) {
	raw := encodeTimer(500 * time.Millisecond)
	if raw[0]&0xC0 != 0 {
		t.Fatalf("expected top 2 bits clear, got % X", raw)
	}
}

func TestDateAndTimeRoundTrip(t *testing.T) {
	tm := time.Date(2024, time.March, 15, 13, 45, 30, 250*int(time.Millisecond), time.UTC)
	raw := encodeDateAndTime(tm)
	if len(raw) != 8 {
		t.Fatalf("expected 8 bytes, got %d", len(raw))
	}
	got, err := decodeDateAndTime(raw)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(tm) {
		t.Fatalf("got %v, want %v", got, tm)
	}
}

func TestDateAndTimeYearPivot(t *testing.T) {
	raw := []byte{0x00, 0x01, 0x01, 0x00, 0x00, 0x00, 0x00, 0x01}
	got, err := decodeDateAndTime(raw)
	if err != nil {
		t.Fatal(err)
	}
	if got.Year() != 2000 {
		t.Fatalf("expected year 2000 for BCD 00, got %d", got.Year())
	}
	raw[0] = 0x99
	got, _ = decodeDateAndTime(raw)
	if got.Year() != 1999 {
		t.Fatalf("expected year 1999 for BCD 99, got %d", got.Year())
	}
}

func TestDTLRoundTrip(t *testing.T) {
	tm := time.Date(2024, time.December, 25, 8, 30, 15, 123456789, time.UTC)
	raw := encodeDTL(tm)
	if len(raw) != 12 {
		t.Fatalf("expected 12 bytes, got %d", len(raw))
	}
	got := decodeDTL(raw)
	if !got.Equal(tm) {
		t.Fatalf("got %v, want %v", got, tm)
	}
}

func TestArrayRoundTrip(t *testing.T) {
	elemType := Int()
	elems := []Value{NewInt(1), NewInt(2), NewInt(3)}
	arr := NewArrayValue(elems, elemType)
	raw, err := Encode(arr, Array(elemType, 3))
	if err != nil {
		t.Fatal(err)
	}
	if len(raw) != 6 {
		t.Fatalf("expected 6 bytes, got %d", len(raw))
	}
	got, err := Decode(raw, Array(elemType, 3), -1)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(arr) {
		t.Fatalf("round trip mismatch")
	}
}

func TestTypeMismatch(t *testing.T) {
	_, err := Encode(NewBool(true), Word())
	if err == nil {
		t.Fatal("expected TypeMismatch error")
	}
	var s7err *Error
	if !asError(err, &s7err) || s7err.Kind() != ErrTypeMismatch {
		t.Fatalf("expected ErrTypeMismatch, got %v", err)
	}
}

func asError(err error, target **Error) bool {
	e, ok := err.(*Error)
	if !ok {
		return false
	}
	*target = e
	return true
}
