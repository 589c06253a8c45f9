package s7

import "fmt"

// Area identifies an S7 memory area. The numeric values are the area codes
// used on the wire in S7ANY addressing items (§ S7ANY item encoding).
type Area byte

const (
	AreaInput      Area = 0x81 // Process image input (I)
	AreaOutput     Area = 0x82 // Process image output (Q)
	AreaMarker     Area = 0x83 // Merker / flag memory (M)
	AreaDataBlock  Area = 0x84 // Data block (DB)
	AreaCounter    Area = 0x1C // Counter (C)
	AreaTimer      Area = 0x1D // Timer (T)
)

// String returns the conventional one-or-two letter mnemonic for the area.
func (a Area) String() string {
	switch a {
	case AreaInput:
		return "I"
	case AreaOutput:
		return "Q"
	case AreaMarker:
		return "M"
	case AreaDataBlock:
		return "DB"
	case AreaCounter:
		return "C"
	case AreaTimer:
		return "T"
	default:
		return fmt.Sprintf("Area(0x%02X)", byte(a))
	}
}

// Location is a fully resolved PLC memory address: an area, an optional
// data block number, a byte offset, an optional bit within that byte, and
// the width in bits that a read/write against this location covers.
type Location struct {
	Area      Area
	DBNumber  int
	StartByte int
	BitOffset int // 0-7 for bit access, -1 when the location is byte-granular
	WidthBits int
}

// IsBit reports whether this location addresses a single bit.
func (l Location) IsBit() bool {
	return l.BitOffset >= 0
}

// String renders the location in the conventional Sn syntax, e.g. "DB1.DBX0.3".
func (l Location) String() string {
	if l.Area == AreaDataBlock {
		if l.IsBit() {
			return fmt.Sprintf("DB%d.DBX%d.%d", l.DBNumber, l.StartByte, l.BitOffset)
		}
		return fmt.Sprintf("DB%d.DB%s%d", l.DBNumber, widthLetter(l.WidthBits), l.StartByte)
	}
	if l.Area == AreaCounter || l.Area == AreaTimer {
		return fmt.Sprintf("%s%d", l.Area, l.StartByte)
	}
	if l.IsBit() {
		return fmt.Sprintf("%s%d.%d", l.Area, l.StartByte, l.BitOffset)
	}
	return fmt.Sprintf("%s%s%d", l.Area, widthLetter(l.WidthBits), l.StartByte)
}

func widthLetter(bits int) string {
	switch bits {
	case 8:
		return "B"
	case 16:
		return "W"
	case 32:
		return "D"
	default:
		return "B"
	}
}

// Kind enumerates the PLC-data kinds this library understands. It is the
// discriminant of DataType's tagged-variant shape.
type Kind uint8

const (
	KindBool Kind = iota
	KindByte
	KindWord
	KindInt
	KindDWord
	KindDInt
	KindUDInt
	KindReal
	KindLReal
	KindCounter
	KindTimer
	KindChar
	KindString
	KindWString
	KindTime
	KindDateTime
	KindDTL
	KindArray
	KindBytes
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "BOOL"
	case KindByte:
		return "BYTE"
	case KindWord:
		return "WORD"
	case KindInt:
		return "INT"
	case KindDWord:
		return "DWORD"
	case KindDInt:
		return "DINT"
	case KindUDInt:
		return "UDINT"
	case KindReal:
		return "REAL"
	case KindLReal:
		return "LREAL"
	case KindCounter:
		return "COUNTER"
	case KindTimer:
		return "TIMER"
	case KindChar:
		return "CHAR"
	case KindString:
		return "STRING"
	case KindWString:
		return "WSTRING"
	case KindTime:
		return "TIME"
	case KindDateTime:
		return "DATE_AND_TIME"
	case KindDTL:
		return "DTL"
	case KindArray:
		return "ARRAY"
	case KindBytes:
		return "BYTES"
	default:
		return "UNKNOWN"
	}
}

// DataType describes the PLC-facing type of a tag. It is a small tagged
// variant rather than an interface hierarchy: Len carries the declared
// string/bytes length (for KindString, KindWString, KindBytes) and Elem
// carries the element type for KindArray.
type DataType struct {
	Kind Kind
	Len  int       // declared length: STRING/WSTRING max chars, BYTES byte count, ARRAY element count
	Elem *DataType // element type, only meaningful for KindArray
}

func Bool() DataType     { return DataType{Kind: KindBool} }
func Byte() DataType     { return DataType{Kind: KindByte} }
func Word() DataType     { return DataType{Kind: KindWord} }
func Int() DataType      { return DataType{Kind: KindInt} }
func DWord() DataType    { return DataType{Kind: KindDWord} }
func DInt() DataType     { return DataType{Kind: KindDInt} }
func UDInt() DataType    { return DataType{Kind: KindUDInt} }
func Real() DataType     { return DataType{Kind: KindReal} }
func LReal() DataType    { return DataType{Kind: KindLReal} }
func Counter() DataType  { return DataType{Kind: KindCounter} }
func Timer() DataType    { return DataType{Kind: KindTimer} }
func Char() DataType     { return DataType{Kind: KindChar} }
func Time() DataType     { return DataType{Kind: KindTime} }
func DateTime() DataType { return DataType{Kind: KindDateTime} }
func DTL() DataType      { return DataType{Kind: KindDTL} }

// String returns an S7String type with the given reserved (maximum) length.
func String(reservedLen int) DataType { return DataType{Kind: KindString, Len: reservedLen} }

// WString returns an S7WString type with the given reserved (maximum) length.
func WString(reservedLen int) DataType { return DataType{Kind: KindWString, Len: reservedLen} }

// Bytes returns an opaque fixed-width byte blob type.
func Bytes(n int) DataType { return DataType{Kind: KindBytes, Len: n} }

// Array returns an array of n elements of the given element type.
func Array(elem DataType, n int) DataType {
	e := elem
	return DataType{Kind: KindArray, Len: n, Elem: &e}
}

// ElementByteWidth returns the on-wire byte width of a single element of
// this type (for KindArray, of one array element; arrays of arrays are not
// supported).
func (t DataType) ElementByteWidth() int {
	switch t.Kind {
	case KindBool, KindByte, KindChar:
		return 1
	case KindWord, KindInt, KindCounter, KindTimer:
		return 2
	case KindDWord, KindDInt, KindUDInt, KindReal, KindTime:
		return 4
	case KindLReal:
		return 8
	case KindDateTime:
		return 8
	case KindDTL:
		return 12
	case KindString:
		return t.Len + 2
	case KindWString:
		return t.Len*2 + 4
	case KindBytes:
		return t.Len
	case KindArray:
		if t.Elem == nil {
			return 0
		}
		return t.Elem.ElementByteWidth()
	default:
		return 0
	}
}

// ByteWidth returns the total on-wire byte width of a value of this type,
// including array repetition.
func (t DataType) ByteWidth() int {
	if t.Kind == KindArray {
		return t.ElementByteWidth() * t.Len
	}
	return t.ElementByteWidth()
}

// BitWidth returns the width in bits. Only KindBool is ever narrower than
// one byte on the wire; every other type reports ByteWidth()*8.
func (t DataType) BitWidth() int {
	if t.Kind == KindBool {
		return 1
	}
	return t.ByteWidth() * 8
}

func (t DataType) String() string {
	switch t.Kind {
	case KindString:
		return fmt.Sprintf("STRING[%d]", t.Len)
	case KindWString:
		return fmt.Sprintf("WSTRING[%d]", t.Len)
	case KindBytes:
		return fmt.Sprintf("BYTES[%d]", t.Len)
	case KindArray:
		return fmt.Sprintf("ARRAY[%d] OF %s", t.Len, t.Elem)
	default:
		return t.Kind.String()
	}
}
