package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestLoggerDisabledByDefault(t *testing.T) {
	l := New()
	if l.Enabled() {
		t.Fatal("expected logger to be disabled with no output configured")
	}
	l.Debugf("should not panic")
}

func TestLoggerWritesWhenEnabled(t *testing.T) {
	var buf bytes.Buffer
	l := New()
	l.SetOutput(&buf)
	if !l.Enabled() {
		t.Fatal("expected logger to be enabled after SetOutput")
	}
	l.Debugf("hello %s", "world")
	if !strings.Contains(buf.String(), "hello world") {
		t.Fatalf("expected message in output, got: %q", buf.String())
	}
}

func TestHexDump(t *testing.T) {
	out := hexDump([]byte{0x03, 0x00, 0x00, 0x16, 0x02, 0xf0, 0x80})
	if !strings.Contains(out, "0000") {
		t.Fatalf("expected offset column, got: %q", out)
	}
	if !strings.Contains(out, "03 00 00 16") {
		t.Fatalf("expected hex bytes, got: %q", out)
	}
}
