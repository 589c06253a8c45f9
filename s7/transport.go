// TPKT/COTP transport: ISO-on-TCP framing (RFC 1006) and the COTP class-0
// connection request/confirm handshake (ISO 8073), plus the S7 Setup
// Communication exchange that negotiates the PDU size batching is bounded
// by. Grounded on the teacher's transport.go, generalized to accept a
// cancellation context on every suspension point per spec.md §5, and to
// report typed *Error values instead of ad-hoc fmt.Errorf strings.
package s7

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"

	"s7comm/internal/logging"
)

const (
	defaultS7Port = 102

	tpktVersion    = 0x03
	tpktHeaderSize = 4

	cotpCR = 0xE0
	cotpCC = 0xD0
	cotpDT = 0xF0

	cotpParamSrcTSAP  = 0xC1
	cotpParamDstTSAP  = 0xC2
	cotpParamTPDUSize = 0xC0
	cotpTPDUSize1024  = 0x0A

	DefaultProposedPDULength = 960
)

// WrapCOTP prepends the 3-byte COTP Data Transfer header to an S7 PDU.
func WrapCOTP(s7PDU []byte) []byte {
	out := make([]byte, 0, 3+len(s7PDU))
	out = append(out, 0x02, cotpDT, 0x80)
	return append(out, s7PDU...)
}

// WrapTPKT prepends the 4-byte TPKT header (version, reserved, length hi/lo)
// to a COTP-framed payload.
func WrapTPKT(data []byte) []byte {
	length := len(data) + tpktHeaderSize
	out := make([]byte, tpktHeaderSize, tpktHeaderSize+len(data))
	out[0] = tpktVersion
	out[1] = 0x00
	binary.BigEndian.PutUint16(out[2:4], uint16(length))
	return append(out, data...)
}

// transport owns the TCP socket and implements TPKT reassembly and the
// COTP/S7-setup handshake. It performs no protocol-level batching or
// scheduling; Connection composes it with the tag registry and scheduler.
type transport struct {
	conn    net.Conn
	rack    int
	slot    int
	pduSize uint16
	log     *logging.Logger
}

func newTransport(log *logging.Logger) *transport {
	if log == nil {
		log = logging.New()
	}
	return &transport{log: log}
}

// dial performs the full connection sequence: TCP dial, COTP CR/CC, and
// S7 Setup Communication. ctx governs every suspension point; a cancelled
// ctx aborts before any socket I/O is attempted.
func (t *transport) dial(ctx context.Context, endpoint string, rack, slot int, proposedPDULength uint16, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return wrapErr(ErrCancelled, err, "dial cancelled before connecting")
	}

	host, port, err := net.SplitHostPort(endpoint)
	if err != nil {
		endpoint = fmt.Sprintf("%s:%d", endpoint, defaultS7Port)
	} else if port == "" {
		endpoint = fmt.Sprintf("%s:%d", host, defaultS7Port)
	}

	t.log.Connect(endpoint)

	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", endpoint)
	if err != nil {
		t.log.ConnectError(endpoint, err)
		return wrapErr(ErrTransportClosed, err, "TCP connect to %s failed", endpoint)
	}

	if err := t.dialConn(ctx, conn, rack, slot, proposedPDULength, timeout); err != nil {
		return err
	}
	t.log.ConnectSuccess(endpoint, fmt.Sprintf("rack=%d slot=%d pdu=%d", rack, slot, t.pduSize))
	return nil
}

// dialConn runs the COTP CR/CC and Setup Communication handshake over an
// already-established net.Conn. Split out from dial so tests can exercise
// the handshake against a net.Pipe or in-process listener without a real
// TCP dial.
func (t *transport) dialConn(ctx context.Context, conn net.Conn, rack, slot int, proposedPDULength uint16, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		conn.Close()
		return wrapErr(ErrCancelled, err, "dial cancelled before handshake")
	}

	t.rack = rack
	t.slot = slot
	t.conn = conn

	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		conn.Close()
		return wrapErr(ErrTransportClosed, err, "failed to set deadline")
	}

	if err := t.cotpConnect(); err != nil {
		conn.Close()
		return err
	}

	pduSize, err := t.setupComm(proposedPDULength)
	if err != nil {
		conn.Close()
		return err
	}
	t.pduSize = pduSize
	conn.SetDeadline(time.Time{})
	return nil
}

func (t *transport) close() error {
	if t.conn == nil {
		return nil
	}
	t.log.Disconnect(t.conn.RemoteAddr().String(), "close requested")
	err := t.conn.Close()
	t.conn = nil
	return err
}

func (t *transport) getPDUSize() uint16 { return t.pduSize }

// sendReceive sends an S7-Comm PDU wrapped in COTP/TPKT and returns the
// peer's S7-Comm PDU, similarly unwrapped. ctx is checked before the
// socket write and governs the read deadline.
func (t *transport) sendReceive(ctx context.Context, s7PDU []byte, timeout time.Duration) ([]byte, error) {
	if t.conn == nil {
		return nil, newErr(ErrTransportClosed, "not connected")
	}
	if err := ctx.Err(); err != nil {
		return nil, wrapErr(ErrCancelled, err, "sendReceive cancelled before I/O")
	}
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := t.conn.SetDeadline(deadline); err != nil {
		return nil, wrapErr(ErrTransportClosed, err, "failed to set deadline")
	}

	if err := t.sendTPKT(WrapCOTP(s7PDU)); err != nil {
		return nil, err
	}
	resp, err := t.recvTPKT()
	if err != nil {
		return nil, err
	}
	if len(resp) < 3 {
		return nil, newErr(ErrMalformedFrame, "COTP response too short: %d bytes", len(resp))
	}
	if resp[1] != cotpDT {
		return nil, newErr(ErrMalformedFrame, "expected COTP DT (0x%02X), got 0x%02X", cotpDT, resp[1])
	}
	return resp[3:], nil
}

func (t *transport) sendTPKT(data []byte) error {
	packet := WrapTPKT(data)
	t.log.TX(packet)
	if _, err := t.conn.Write(packet); err != nil {
		return wrapErr(ErrTransportClosed, err, "write failed")
	}
	return nil
}

func (t *transport) recvTPKT() ([]byte, error) {
	header := make([]byte, tpktHeaderSize)
	if _, err := io.ReadFull(t.conn, header); err != nil {
		if isTimeout(err) {
			return nil, wrapErr(ErrTimedOut, err, "read TPKT header timed out")
		}
		return nil, wrapErr(ErrTransportClosed, err, "read TPKT header failed")
	}
	if header[0] != tpktVersion {
		return nil, newErr(ErrMalformedFrame, "invalid TPKT version: %d", header[0])
	}
	length := int(binary.BigEndian.Uint16(header[2:4]))
	if length < tpktHeaderSize {
		return nil, newErr(ErrMalformedFrame, "invalid TPKT length: %d", length)
	}

	payload := make([]byte, length-tpktHeaderSize)
	if _, err := io.ReadFull(t.conn, payload); err != nil {
		if isTimeout(err) {
			return nil, wrapErr(ErrTimedOut, err, "read TPKT payload timed out")
		}
		return nil, wrapErr(ErrTransportClosed, err, "read TPKT payload failed")
	}
	full := append(header, payload...)
	t.log.RX(full)
	return payload, nil
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}

func (t *transport) cotpConnect() error {
	srcTSAP := []byte{0x01, 0x00}
	dstTSAP := []byte{0x01, byte(t.rack<<5 | t.slot)}

	cr := []byte{
		0x00, cotpCR,
		0x00, 0x00,
		0x00, 0x01,
		0x00,
	}
	cr = append(cr, cotpParamSrcTSAP, byte(len(srcTSAP)))
	cr = append(cr, srcTSAP...)
	cr = append(cr, cotpParamDstTSAP, byte(len(dstTSAP)))
	cr = append(cr, dstTSAP...)
	cr = append(cr, cotpParamTPDUSize, 0x01, cotpTPDUSize1024)
	cr[0] = byte(len(cr) - 1)

	if err := t.sendTPKT(cr); err != nil {
		return err
	}
	cc, err := t.recvTPKT()
	if err != nil {
		return err
	}
	if len(cc) < 2 {
		return newErr(ErrMalformedFrame, "COTP CC too short")
	}
	if cc[1] != cotpCC {
		return newErr(ErrMalformedFrame, "expected COTP CC (0x%02X), got 0x%02X", cotpCC, cc[1])
	}
	return nil
}

func (t *transport) setupComm(proposedPDULength uint16) (uint16, error) {
	request := BuildSetupCommRequest(proposedPDULength, 0)
	if err := t.sendTPKT(WrapCOTP(request)); err != nil {
		return 0, err
	}
	resp, err := t.recvTPKT()
	if err != nil {
		return 0, err
	}
	if len(resp) < 3 {
		return 0, newErr(ErrPduTooShort, "setup response too short")
	}
	if resp[1] != cotpDT {
		return 0, newErr(ErrMalformedFrame, "expected COTP DT in setup response")
	}
	return ParseSetupCommResponse(resp[3:])
}
