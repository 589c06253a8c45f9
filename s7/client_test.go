package s7

import (
	"context"
	"net"
	"sync"
	"testing"
)

func TestClientAddTagWriteReadNow(t *testing.T) {
	mem := make([]byte, 256)
	var mu sync.Mutex
	addr, closeFn := fakePLCFull(t, 480, mem, &mu)
	defer closeFn()

	c := NewClient(addr, WithRackSlot(0, 2), WithProposedPDULength(480))
	if err := c.conn.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	if err := c.AddTag("speed", "DB1.DBW0", Word(), false); err != nil {
		t.Fatal(err)
	}
	if err := c.Write("speed", NewWord(42)); err != nil {
		t.Fatal(err)
	}

	// Write is staged, not applied until the scheduler drains it; drive one
	// tick manually via the same writes-then-read path the scheduler uses.
	c.sched.tick(context.Background())

	v, err := c.ReadNow(context.Background(), "speed")
	if err != nil {
		t.Fatal(err)
	}
	got, _ := v.Uint()
	if got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
}

func TestClientReadNowUnknownTag(t *testing.T) {
	c := NewClient("127.0.0.1:0")
	if _, err := c.ReadNow(context.Background(), "missing"); err == nil {
		t.Fatal("expected error for unknown tag")
	}
}

func TestClientSetPollUnknownTag(t *testing.T) {
	c := NewClient("127.0.0.1:0")
	if err := c.SetPoll("missing", true); err == nil {
		t.Fatal("expected error for unknown tag")
	}
}

// TestClientReadNowUndersizedResponseReturnsError guards against a regression
// where ParseReadVarResponse's documented "too short -> (nil, nil)" contract
// made ReadNow index into an empty result slice instead of reporting an error.
func TestClientReadNowUndersizedResponseReturnsError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		serveFakePLCHandshakeThenUndersizedRead(conn, 480)
	}()

	c := NewClient(ln.Addr().String(), WithRackSlot(0, 2), WithProposedPDULength(480))
	if err := c.conn.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := c.AddTag("a", "DB1.DBW0", Word(), false); err != nil {
		t.Fatal(err)
	}

	if _, err := c.ReadNow(context.Background(), "a"); err == nil {
		t.Fatal("expected an error instead of a panic/zero-value success")
	}
}

func serveFakePLCHandshakeThenUndersizedRead(conn net.Conn, pduSize uint16) {
	if _, err := readTPKTFrame(conn); err != nil {
		return
	}
	cc := []byte{0x00, cotpCC, 0x00, 0x00, 0x00, 0x01, 0x00}
	cc[0] = byte(len(cc) - 1)
	if _, err := conn.Write(WrapTPKT(cc)); err != nil {
		return
	}
	if _, err := readTPKTFrame(conn); err != nil {
		return
	}
	if _, err := conn.Write(WrapTPKT(WrapCOTP(BuildSetupCommAckForTest(pduSize, 0)))); err != nil {
		return
	}

	if _, err := readTPKTFrame(conn); err != nil {
		return
	}
	// An Ack-Data PDU under 21 bytes: valid protocol ID/message type, but
	// far too short to carry even one item header.
	short := []byte{s7ProtocolID, s7MsgAckData, 0, 0, 0, 0, 0, 2, 0, 0, 0, 0, s7FuncRead, 1}
	conn.Write(WrapTPKT(WrapCOTP(short)))
}
