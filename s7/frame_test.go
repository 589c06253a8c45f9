package s7

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// fullReadFrame composes the complete wire frame (TPKT+COTP+S7-Job) the
// way transport.sendTPKT does, so byte-offset assertions can be checked
// against the same layout a packet capture would show.
func fullReadFrame(t *testing.T, items []ReadItem, pduRef uint16) []byte {
	t.Helper()
	pdu, err := BuildReadVarRequest(items, pduRef)
	if err != nil {
		t.Fatal(err)
	}
	return WrapTPKT(WrapCOTP(pdu))
}

func TestFrameWellFormedness(t *testing.T) {
	loc := Location{Area: AreaDataBlock, DBNumber: 1, StartByte: 0, BitOffset: -1, WidthBits: 16}
	items := []ReadItem{{Location: loc, Type: Word()}}
	frame := fullReadFrame(t, items, 1)

	if frame[0] != 0x03 || frame[1] != 0x00 {
		t.Fatalf("expected TPKT header 03 00.., got % X", frame[:4])
	}
	tpktLen := int(binary.BigEndian.Uint16(frame[2:4]))
	if tpktLen != len(frame) {
		t.Fatalf("TPKT length %d != buffer length %d", tpktLen, len(frame))
	}
	if frame[17] != s7FuncRead {
		t.Fatalf("expected func 0x04 at offset 17, got 0x%02X", frame[17])
	}
	if int(frame[18]) != len(items) {
		t.Fatalf("expected item count %d at offset 18, got %d", len(items), frame[18])
	}
	if len(frame) < 19+12*len(items) {
		t.Fatalf("frame too short: %d < %d", len(frame), 19+12*len(items))
	}

	// 12-byte S7ANY item spec: area=0x84 db=1 start_byte=0 bit_offset=0
	// width=2 bytes, transport=0x04 (word), length=16 bits.
	item := frame[19 : 19+12]
	want := []byte{
		s7AnySpecType, s7AnyLen, s7AnySyntaxID,
		tsWord,
		0x00, 0x01, // count = 1
		0x00, 0x01, // db number = 1
		byte(AreaDataBlock),
		0x00, 0x00, 0x00, // bit address (start_byte*8 + bit_offset) = 0
	}
	if !bytes.Equal(item, want) {
		t.Fatalf("item spec mismatch: got % X, want % X", item, want)
	}
}

func TestWriteBuilderDataSectionNonEmpty(t *testing.T) {
	loc := Location{Area: AreaDataBlock, DBNumber: 1, StartByte: 0, BitOffset: -1, WidthBits: 16}
	items := []WriteItem{{Location: loc, Value: NewWord(0x1234)}}
	pdu, err := BuildWriteVarRequest(items, 1)
	if err != nil {
		t.Fatal(err)
	}
	dataLen := binary.BigEndian.Uint16(pdu[8:10])
	if dataLen == 0 {
		t.Fatal("expected non-zero data length field")
	}
}

func TestWriteOneWordVector(t *testing.T) {
	loc := Location{Area: AreaDataBlock, DBNumber: 1, StartByte: 0, BitOffset: -1, WidthBits: 16}
	items := []WriteItem{{Location: loc, Value: NewWord(0x1234)}}
	pdu, err := BuildWriteVarRequest(items, 1)
	if err != nil {
		t.Fatal(err)
	}
	if pdu[12] != s7FuncWrite {
		t.Fatalf("expected function 0x05, got 0x%02X", pdu[12])
	}
	if pdu[13] != 1 {
		t.Fatalf("expected item count 1, got %d", pdu[13])
	}
	dataStart := s7JobHeaderSize + 2 + 12
	data := pdu[dataStart:]
	want := []byte{0xFF, 0x04, 0x00, 0x10, 0x12, 0x34}
	if !bytes.Equal(data, want) {
		t.Fatalf("data section mismatch: got % X, want % X", data, want)
	}
}

func TestItemCapExceeded(t *testing.T) {
	items := make([]ReadItem, 256)
	_, err := BuildReadVarRequest(items, 1)
	if err == nil {
		t.Fatal("expected TooManyItems error")
	}
	var s7err *Error
	if !asError(err, &s7err) || s7err.Kind() != ErrTooManyItems {
		t.Fatalf("expected ErrTooManyItems, got %v", err)
	}
}

func TestOddLengthPaddingBetweenTwoItems(t *testing.T) {
	header := make([]byte, s7AckHeaderSize)
	header[0] = s7ProtocolID
	header[1] = s7MsgAckData
	binary.BigEndian.PutUint16(header[6:8], 2) // paramLen
	binary.BigEndian.PutUint16(header[8:10], 0)

	params := []byte{s7FuncRead, 0x02}

	item0 := []byte{itemReturnOK, respTSByteWord, 0x00, 0x08, 0xAA, 0x00} // 1 byte payload, 1 pad byte
	item1 := []byte{itemReturnOK, respTSByteWord, 0x00, 0x08, 0xBB}       // last item, no pad

	data := append(append([]byte{}, item0...), item1...)
	dataLen := len(data)
	binary.BigEndian.PutUint16(header[8:10], uint16(dataLen))

	full := append(append(append([]byte{}, header...), params...), data...)
	results, err := ParseReadVarResponse(full, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ReturnCode != itemReturnOK || !bytes.Equal(results[0].Payload, []byte{0xAA}) {
		t.Fatalf("item0 mismatch: %+v", results[0])
	}
	if results[1].ReturnCode != itemReturnOK || !bytes.Equal(results[1].Payload, []byte{0xBB}) {
		t.Fatalf("item1 mismatch: %+v", results[1])
	}
}

func TestParseReadVarResponseTooShortReturnsEmpty(t *testing.T) {
	results, err := ParseReadVarResponse(make([]byte, 20), 1)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if results != nil {
		t.Fatalf("expected a nil result slice for an undersized response, got %+v", results)
	}
}

func TestWriteResultLengthMatchesCount(t *testing.T) {
	header := make([]byte, s7AckHeaderSize)
	header[0] = s7ProtocolID
	header[1] = s7MsgAckData
	binary.BigEndian.PutUint16(header[6:8], 2)
	params := []byte{s7FuncWrite, 0x03}
	data := []byte{0xFF, 0x0A, 0xFF}
	full := append(append(append([]byte{}, header...), params...), data...)

	results, err := ParseWriteVarResponse(full, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	codes := []byte{results[0].ReturnCode, results[1].ReturnCode, results[2].ReturnCode}
	want := []byte{0xFF, 0x0A, 0xFF}
	if !bytes.Equal(codes, want) {
		t.Fatalf("return codes mismatch: got % X, want % X", codes, want)
	}
	if results[1].OK() {
		t.Fatal("expected middle item to be a failure")
	}
	if !results[0].OK() || !results[2].OK() {
		t.Fatal("expected items 0 and 2 to be successful")
	}
}
