// Frame codec: S7-Comm Job/Ack-Data PDUs layered on top of the TPKT/COTP
// transport (transport.go handles that lower layer). Grounded on the
// teacher's protocol.go, restructured around this package's
// Location/DataType pair instead of a combined Address struct, and
// generalized to accept a batch of heterogeneous ReadItem/WriteItem
// entries rather than protocol.go's single-address write path.
package s7

import (
	"encoding/binary"
)

const (
	s7ProtocolID = 0x32

	s7MsgJob     = 0x01
	s7MsgAck     = 0x02
	s7MsgAckData = 0x03

	s7FuncSetupComm = 0xF0
	s7FuncRead      = 0x04
	s7FuncWrite     = 0x05

	s7JobHeaderSize = 10
	s7AckHeaderSize = 12

	s7AnySpecType = 0x12
	s7AnyLen      = 0x0A
	s7AnySyntaxID = 0x10

	// Request-side transport size codes (S7ANY item).
	tsBit   = 0x01
	tsByte  = 0x02
	tsChar  = 0x03
	tsWord  = 0x04
	tsInt   = 0x05
	tsDWord = 0x06
	tsDInt  = 0x07
	tsReal  = 0x08

	// Response-side transport size codes (data item header).
	respTSBit         = 0x03
	respTSByteWord    = 0x04
	respTSOctetString = 0x09
)

// ReadItem is one entry of a batched ReadVar request.
type ReadItem struct {
	Location Location
	Type     DataType
}

// WriteItem is one entry of a batched WriteVar request. Name is optional
// bookkeeping used by the registry/scheduler to map a write result back to
// a tag; the frame codec itself never reads it.
type WriteItem struct {
	Name     string
	Location Location
	Value    Value
}

// ItemResult is the outcome of one item in a read or write response.
type ItemResult struct {
	ReturnCode byte
	Payload    []byte // read only; empty for write results
}

// OK reports whether the item's return code was success (0xFF).
func (r ItemResult) OK() bool { return r.ReturnCode == itemReturnOK }

func areaCode(a Area) byte { return byte(a) }

// itemTransport returns the request-side transport size code and element
// count for the given type, per the S7ANY addressing item layout.
func itemTransport(t DataType) (code byte, count int) {
	base := t
	mult := 1
	if t.Kind == KindArray {
		base = *t.Elem
		mult = t.Len
	}
	switch base.Kind {
	case KindBool:
		return tsBit, mult
	case KindWord, KindCounter, KindTimer:
		return tsWord, mult
	case KindInt:
		return tsInt, mult
	case KindDWord, KindUDInt, KindTime:
		return tsDWord, mult
	case KindDInt:
		return tsDInt, mult
	case KindReal:
		return tsReal, mult
	default:
		return tsByte, base.ElementByteWidth() * mult
	}
}

// bitAddress24 encodes (start_byte*8 + bit_offset) as a 24-bit big-endian
// value, per the S7ANY item address field.
func bitAddress24(loc Location) [3]byte {
	bitAddr := loc.StartByte * 8
	if loc.IsBit() {
		bitAddr += loc.BitOffset
	}
	return [3]byte{byte(bitAddr >> 16), byte(bitAddr >> 8), byte(bitAddr)}
}

// encodeS7Any serializes one address into a 12-byte S7ANY addressing item.
func encodeS7Any(loc Location, t DataType) []byte {
	transport, count := itemTransport(t)
	dbNumber := loc.DBNumber
	if loc.Area != AreaDataBlock {
		dbNumber = 0
	}
	addr := bitAddress24(loc)
	return []byte{
		s7AnySpecType,
		s7AnyLen,
		s7AnySyntaxID,
		transport,
		byte(count >> 8), byte(count),
		byte(dbNumber >> 8), byte(dbNumber),
		areaCode(loc.Area),
		addr[0], addr[1], addr[2],
	}
}

func jobHeader(pduRef uint16, paramLen, dataLen int) []byte {
	return []byte{
		s7ProtocolID, s7MsgJob,
		0x00, 0x00,
		byte(pduRef >> 8), byte(pduRef),
		byte(paramLen >> 8), byte(paramLen),
		byte(dataLen >> 8), byte(dataLen),
	}
}

// BuildSetupCommRequest builds the Setup Communication Job PDU proposing
// pduSize as both max AMQ caller/callee and the desired PDU length.
func BuildSetupCommRequest(pduSize uint16, pduRef uint16) []byte {
	header := jobHeader(pduRef, 8, 0)
	params := []byte{
		s7FuncSetupComm, 0x00,
		0x00, 0x01,
		0x00, 0x01,
		byte(pduSize >> 8), byte(pduSize),
	}
	return append(header, params...)
}

// ParseSetupCommResponse parses a Setup Communication Ack-Data PDU and
// returns the negotiated PDU length.
func ParseSetupCommResponse(data []byte) (uint16, error) {
	if len(data) < s7AckHeaderSize+8 {
		return 0, newErr(ErrPduTooShort, "setup response too short: %d bytes", len(data))
	}
	if data[0] != s7ProtocolID {
		return 0, newErr(ErrMalformedFrame, "invalid protocol ID 0x%02X", data[0])
	}
	if data[1] != s7MsgAckData {
		return 0, newErr(ErrMalformedFrame, "unexpected message type 0x%02X", data[1])
	}
	if data[10] != 0 || data[11] != 0 {
		return 0, &Error{kind: ErrSetupRejected, cause: S7ProtocolError{Class: data[10], Code: data[11]}, msg: "setup communication rejected"}
	}
	if data[12] != s7FuncSetupComm {
		return 0, newErr(ErrMalformedFrame, "unexpected function 0x%02X in setup response", data[12])
	}
	return binary.BigEndian.Uint16(data[18:20]), nil
}

// BuildReadVarRequest builds a ReadVar Job PDU for up to 255 items. It
// fails with TooManyItems if len(items) > 255, per spec.
func BuildReadVarRequest(items []ReadItem, pduRef uint16) ([]byte, error) {
	if len(items) > 255 {
		return nil, newErr(ErrTooManyItems, "read request has %d items, max is 255", len(items))
	}
	paramLen := 2 + len(items)*12
	header := jobHeader(pduRef, paramLen, 0)
	params := make([]byte, 0, paramLen)
	params = append(params, s7FuncRead, byte(len(items)))
	for _, it := range items {
		params = append(params, encodeS7Any(it.Location, it.Type)...)
	}
	return append(header, params...), nil
}

// ParseReadVarResponse parses a ReadVar Ack-Data PDU into count item
// results. If the payload is under 21 bytes the function returns an empty
// result slice, per spec (too short to carry even a single item header).
func ParseReadVarResponse(data []byte, count int) ([]ItemResult, error) {
	if len(data) < 21 {
		return nil, nil
	}
	if data[0] != s7ProtocolID {
		return nil, newErr(ErrMalformedFrame, "invalid protocol ID 0x%02X", data[0])
	}
	if data[1] == s7MsgAck {
		if len(data) < s7AckHeaderSize {
			return nil, newErr(ErrPduTooShort, "ack response too short")
		}
		return nil, &Error{kind: ErrItem, cause: S7ProtocolError{Class: data[10], Code: data[11]}, msg: "PDU-level error"}
	}
	if data[1] != s7MsgAckData {
		return nil, newErr(ErrMalformedFrame, "unexpected message type 0x%02X", data[1])
	}
	if data[10] != 0 || data[11] != 0 {
		return nil, &Error{kind: ErrItem, cause: S7ProtocolError{Class: data[10], Code: data[11]}, msg: "PDU-level error"}
	}

	paramLen := int(binary.BigEndian.Uint16(data[6:8]))
	dataLen := int(binary.BigEndian.Uint16(data[8:10]))
	dataStart := s7AckHeaderSize + paramLen
	if dataStart > len(data) || dataLen > len(data)-dataStart {
		return nil, newErr(ErrMalformedFrame, "invalid response lengths: dataStart=%d dataLen=%d total=%d", dataStart, dataLen, len(data))
	}

	results := make([]ItemResult, count)
	pos := dataStart
	for i := 0; i < count; i++ {
		if pos >= len(data) {
			return nil, newErr(ErrPduTooShort, "response truncated at item %d of %d", i, count)
		}
		returnCode := data[pos]
		if returnCode != itemReturnOK {
			results[i] = ItemResult{ReturnCode: returnCode}
			pos++
			continue
		}
		if pos+4 > len(data) {
			return nil, newErr(ErrPduTooShort, "item %d header truncated", i)
		}
		transportSize := data[pos+1]
		length := int(binary.BigEndian.Uint16(data[pos+2 : pos+4]))

		var byteLen int
		if transportSize == respTSOctetString {
			byteLen = length
		} else {
			byteLen = (length + 7) / 8
		}
		pos += 4
		if pos+byteLen > len(data) {
			return nil, newErr(ErrPduTooShort, "item %d payload truncated: need %d, have %d", i, byteLen, len(data)-pos)
		}
		payload := make([]byte, byteLen)
		copy(payload, data[pos:pos+byteLen])
		results[i] = ItemResult{ReturnCode: returnCode, Payload: payload}
		pos += byteLen

		if i < count-1 && byteLen%2 == 1 {
			pos++
		}
	}
	return results, nil
}

// BuildWriteVarRequest builds a WriteVar Job PDU for up to 255 items,
// encoding each item's value with Encode and padding odd-length payloads
// to an even byte count except after the last item.
func BuildWriteVarRequest(items []WriteItem, pduRef uint16) ([]byte, error) {
	if len(items) > 255 {
		return nil, newErr(ErrTooManyItems, "write request has %d items, max is 255", len(items))
	}
	paramLen := 2 + len(items)*12
	params := make([]byte, 0, paramLen)
	params = append(params, s7FuncWrite, byte(len(items)))

	payloads := make([][]byte, len(items))
	for i, it := range items {
		params = append(params, encodeS7Any(it.Location, it.Value.Type)...)
		enc, err := Encode(it.Value, it.Value.Type)
		if err != nil {
			return nil, err
		}
		payloads[i] = enc
	}

	dataSection := make([]byte, 0)
	for i, enc := range payloads {
		transport := byte(respTSByteWord)
		bitLen := len(enc) * 8
		if items[i].Location.IsBit() {
			bitLen = 1
			transport = respTSBit
		}
		dataSection = append(dataSection, itemReturnOK, transport, byte(bitLen>>8), byte(bitLen))
		dataSection = append(dataSection, enc...)
		if i < len(items)-1 && len(enc)%2 == 1 {
			dataSection = append(dataSection, 0x00)
		}
	}

	header := jobHeader(pduRef, paramLen, len(dataSection))
	out := append(header, params...)
	out = append(out, dataSection...)
	return out, nil
}

// ParseWriteVarResponse parses a WriteVar Ack-Data PDU's n single-byte
// return codes into item results.
func ParseWriteVarResponse(data []byte, count int) ([]ItemResult, error) {
	if len(data) < s7AckHeaderSize {
		return nil, newErr(ErrPduTooShort, "write response too short: %d bytes", len(data))
	}
	if data[0] != s7ProtocolID {
		return nil, newErr(ErrMalformedFrame, "invalid protocol ID 0x%02X", data[0])
	}
	if data[1] != s7MsgAckData {
		return nil, newErr(ErrMalformedFrame, "unexpected message type 0x%02X", data[1])
	}
	if data[10] != 0 || data[11] != 0 {
		return nil, &Error{kind: ErrItem, cause: S7ProtocolError{Class: data[10], Code: data[11]}, msg: "PDU-level error"}
	}

	paramLen := int(binary.BigEndian.Uint16(data[6:8]))
	dataStart := s7AckHeaderSize + paramLen
	if dataStart+count > len(data) {
		return nil, newErr(ErrPduTooShort, "write response data section truncated")
	}
	results := make([]ItemResult, count)
	for i := 0; i < count; i++ {
		results[i] = ItemResult{ReturnCode: data[dataStart+i]}
	}
	return results, nil
}
