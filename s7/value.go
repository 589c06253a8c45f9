package s7

import "time"

// Value is a tagged variant carrying one decoded PLC value. Type names the
// variant; Raw holds the underlying Go representation for that variant
// (bool, int64, uint64, float64, string, time.Duration, time.Time, []byte,
// or []Value for KindArray). Constructing a Value through one of the
// New* functions below keeps Type and Raw in sync; the typed accessors
// return TypeMismatch if Raw doesn't match what Type promises.
type Value struct {
	Type DataType
	Raw  interface{}
}

func NewBool(v bool) Value                    { return Value{Type: Bool(), Raw: v} }
func NewByte(v uint8) Value                   { return Value{Type: Byte(), Raw: uint64(v)} }
func NewWord(v uint16) Value                  { return Value{Type: Word(), Raw: uint64(v)} }
func NewInt(v int16) Value                    { return Value{Type: Int(), Raw: int64(v)} }
func NewDWord(v uint32) Value                 { return Value{Type: DWord(), Raw: uint64(v)} }
func NewDInt(v int32) Value                   { return Value{Type: DInt(), Raw: int64(v)} }
func NewUDInt(v uint32) Value                 { return Value{Type: UDInt(), Raw: uint64(v)} }
func NewReal(v float32) Value                 { return Value{Type: Real(), Raw: float64(v)} }
func NewLReal(v float64) Value                { return Value{Type: LReal(), Raw: v} }
func NewChar(v byte) Value                    { return Value{Type: Char(), Raw: uint64(v)} }
func NewCounter(v uint16) Value               { return Value{Type: Counter(), Raw: uint64(v)} }
func NewTimer(d time.Duration) Value          { return Value{Type: Timer(), Raw: d} }
func NewTime(d time.Duration) Value           { return Value{Type: Time(), Raw: d} }
func NewDateTime(t time.Time) Value           { return Value{Type: DateTime(), Raw: t} }
func NewDTL(t time.Time) Value                { return Value{Type: DTL(), Raw: t} }
func NewString(s string, reservedLen int) Value {
	return Value{Type: String(reservedLen), Raw: s}
}
func NewWString(s string, reservedLen int) Value {
	return Value{Type: WString(reservedLen), Raw: s}
}
func NewBytesValue(b []byte) Value {
	return Value{Type: Bytes(len(b)), Raw: append([]byte(nil), b...)}
}
func NewArrayValue(elems []Value, elem DataType) Value {
	return Value{Type: Array(elem, len(elems)), Raw: elems}
}

// Bool returns the boolean payload, or TypeMismatch if Raw isn't a bool.
func (v Value) Bool() (bool, error) {
	b, ok := v.Raw.(bool)
	if !ok {
		return false, newErr(ErrTypeMismatch, "value of type %s is not BOOL", v.Type)
	}
	return b, nil
}

// Int returns a signed integer payload (INT/DINT).
func (v Value) Int() (int64, error) {
	i, ok := v.Raw.(int64)
	if !ok {
		return 0, newErr(ErrTypeMismatch, "value of type %s is not a signed integer", v.Type)
	}
	return i, nil
}

// Uint returns an unsigned integer payload (BYTE/WORD/DWORD/UDINT/CHAR/COUNTER).
func (v Value) Uint() (uint64, error) {
	u, ok := v.Raw.(uint64)
	if !ok {
		return 0, newErr(ErrTypeMismatch, "value of type %s is not an unsigned integer", v.Type)
	}
	return u, nil
}

// Float returns a float payload (REAL/LREAL).
func (v Value) Float() (float64, error) {
	f, ok := v.Raw.(float64)
	if !ok {
		return 0, newErr(ErrTypeMismatch, "value of type %s is not a float", v.Type)
	}
	return f, nil
}

// String returns a string payload (STRING/WSTRING).
func (v Value) String() (string, error) {
	s, ok := v.Raw.(string)
	if !ok {
		return "", newErr(ErrTypeMismatch, "value of type %s is not a string", v.Type)
	}
	return s, nil
}

// Duration returns a duration payload (TIME/TIMER).
func (v Value) Duration() (time.Duration, error) {
	d, ok := v.Raw.(time.Duration)
	if !ok {
		return 0, newErr(ErrTypeMismatch, "value of type %s is not a duration", v.Type)
	}
	return d, nil
}

// TimeValue returns a time.Time payload (DATE_AND_TIME/DTL).
func (v Value) TimeValue() (time.Time, error) {
	t, ok := v.Raw.(time.Time)
	if !ok {
		return time.Time{}, newErr(ErrTypeMismatch, "value of type %s is not a timestamp", v.Type)
	}
	return t, nil
}

// BytesValue returns a raw byte-blob payload (BYTES).
func (v Value) BytesValue() ([]byte, error) {
	b, ok := v.Raw.([]byte)
	if !ok {
		return nil, newErr(ErrTypeMismatch, "value of type %s is not BYTES", v.Type)
	}
	return b, nil
}

// Elements returns an array payload.
func (v Value) Elements() ([]Value, error) {
	e, ok := v.Raw.([]Value)
	if !ok {
		return nil, newErr(ErrTypeMismatch, "value of type %s is not an array", v.Type)
	}
	return e, nil
}

// Equal reports whether two values carry the same type and payload. Used by
// the poll scheduler for change detection; unlike the teacher's
// fmt.Sprintf("%v", ...) string-comparison idiom, this compares the typed
// Go representation directly.
func (v Value) Equal(other Value) bool {
	if v.Type != other.Type {
		// DataType with an Elem pointer never compares equal via ==; fall
		// back to comparing the rendered type string for array types.
		if v.Type.String() != other.Type.String() {
			return false
		}
	}
	switch a := v.Raw.(type) {
	case []byte:
		b, ok := other.Raw.([]byte)
		if !ok || len(a) != len(b) {
			return false
		}
		for i := range a {
			if a[i] != b[i] {
				return false
			}
		}
		return true
	case []Value:
		b, ok := other.Raw.([]Value)
		if !ok || len(a) != len(b) {
			return false
		}
		for i := range a {
			if !a[i].Equal(b[i]) {
				return false
			}
		}
		return true
	case time.Time:
		b, ok := other.Raw.(time.Time)
		return ok && a.Equal(b)
	default:
		return v.Raw == other.Raw
	}
}
