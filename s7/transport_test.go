package s7

import (
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"s7comm/internal/logging"
)

// fakeServer runs a minimal COTP CR/CC + Setup Communication responder on
// one end of a net.Pipe, standing in for a PLC. It never parses the CR
// beyond length-prefix framing, matching how a real device's listener
// accepts any well-formed TPKT frame.
func fakeServer(t *testing.T, conn net.Conn, pduSize uint16) {
	t.Helper()
	go func() {
		// COTP CR
		if _, err := readTPKTFrame(conn); err != nil {
			return
		}
		cc := []byte{0x00, cotpCC, 0x00, 0x00, 0x00, 0x01, 0x00}
		cc[0] = byte(len(cc) - 1)
		conn.Write(WrapTPKT(cc))

		// Setup Communication request (a COTP Data Transfer PDU)
		if _, err := readTPKTFrame(conn); err != nil {
			return
		}
		resp := BuildSetupCommAckForTest(pduSize, 0)
		conn.Write(WrapTPKT(WrapCOTP(resp)))
	}()
}

func readTPKTFrame(conn net.Conn) ([]byte, error) {
	header := make([]byte, 4)
	if _, err := readFull(conn, header); err != nil {
		return nil, err
	}
	length := int(binary.BigEndian.Uint16(header[2:4]))
	payload := make([]byte, length-4)
	if _, err := readFull(conn, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// BuildSetupCommAckForTest builds a minimal Setup Communication Ack-Data
// PDU the way a PLC would respond, for use only by this package's tests.
func BuildSetupCommAckForTest(pduSize uint16, pduRef uint16) []byte {
	header := []byte{
		s7ProtocolID, s7MsgAckData,
		0x00, 0x00,
		byte(pduRef >> 8), byte(pduRef),
		0x00, 0x08,
		0x00, 0x00,
		0x00, 0x00,
	}
	params := []byte{
		s7FuncSetupComm, 0x00,
		0x00, 0x01,
		0x00, 0x01,
		byte(pduSize >> 8), byte(pduSize),
	}
	return append(header, params...)
}

func TestTransportDialAndSetupComm(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	fakeServer(t, server, 480)

	tr := newTransport(logging.New())
	done := make(chan error, 1)
	go func() {
		done <- tr.dialConn(context.Background(), client, 0, 2, 480, time.Second)
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("dial timed out")
	}
	if tr.getPDUSize() != 480 {
		t.Fatalf("expected negotiated PDU size 480, got %d", tr.getPDUSize())
	}
}

func TestTransportPreCancelledContextPerformsNoIO(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tr := newTransport(logging.New())
	err := tr.dial(ctx, "127.0.0.1:0", 0, 2, 480, time.Second)
	if err == nil {
		t.Fatal("expected error for pre-cancelled context")
	}
	var s7err *Error
	if !asError(err, &s7err) || s7err.Kind() != ErrCancelled {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
}
