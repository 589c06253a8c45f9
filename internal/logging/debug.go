// Package logging provides verbose, protocol-framed debug logging with a
// hex-dump formatter for raw S7 frame bytes. It mirrors the file-backed
// debug logger pattern used across the rest of the codebase rather than
// reaching for a third-party logging library: output is opt-in, off by
// default, and intended for troubleshooting connection and framing issues
// in the field.
package logging

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// Logger writes timestamped, optionally hex-dumped trace lines to an
// underlying writer. The zero value discards everything, so a *Logger is
// always safe to use even before SetOutput is called.
type Logger struct {
	mu     sync.Mutex
	out    io.Writer
	closer io.Closer
}

// New returns a Logger with no destination configured; all calls are no-ops
// until SetOutput is used.
func New() *Logger {
	return &Logger{}
}

// SetOutput directs subsequent log lines to w. Passing nil disables logging.
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.out = w
}

// Enabled reports whether a destination has been configured.
func (l *Logger) Enabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.out != nil
}

func (l *Logger) writeLine(line string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.out == nil {
		return
	}
	fmt.Fprintf(l.out, "%s %s\n", time.Now().Format("2006-01-02 15:04:05.000"), line)
}

// Debugf logs a formatted message.
func (l *Logger) Debugf(format string, args ...interface{}) {
	if !l.Enabled() {
		return
	}
	l.writeLine(fmt.Sprintf(format, args...))
}

// Errorf logs a formatted error message.
func (l *Logger) Errorf(context string, err error) {
	if !l.Enabled() {
		return
	}
	l.writeLine(fmt.Sprintf("ERROR %s: %v", context, err))
}

// TX logs raw bytes being sent, with a hex dump.
func (l *Logger) TX(data []byte) {
	if !l.Enabled() {
		return
	}
	l.writeLine("TX " + fmt.Sprintf("%d bytes", len(data)) + "\n" + hexDump(data))
}

// RX logs raw bytes being received, with a hex dump.
func (l *Logger) RX(data []byte) {
	if !l.Enabled() {
		return
	}
	l.writeLine("RX " + fmt.Sprintf("%d bytes", len(data)) + "\n" + hexDump(data))
}

// Connect logs the start of a connection attempt.
func (l *Logger) Connect(endpoint string) {
	l.Debugf("connecting to %s", endpoint)
}

// ConnectSuccess logs a successful connection, with a detail string (e.g. negotiated PDU size).
func (l *Logger) ConnectSuccess(endpoint, detail string) {
	l.Debugf("connected to %s (%s)", endpoint, detail)
}

// ConnectError logs a failed connection attempt.
func (l *Logger) ConnectError(endpoint string, err error) {
	l.Debugf("connect to %s failed: %v", endpoint, err)
}

// Disconnect logs a disconnection, with a reason string.
func (l *Logger) Disconnect(endpoint, reason string) {
	l.Debugf("disconnected from %s: %s", endpoint, reason)
}

// hexDump formats data as 16-bytes-per-line offset + hex + ASCII, in the
// style conventionally used for wire-protocol tracing.
func hexDump(data []byte) string {
	var b strings.Builder
	for i := 0; i < len(data); i += 16 {
		end := i + 16
		if end > len(data) {
			end = len(data)
		}
		line := data[i:end]
		fmt.Fprintf(&b, "  %04x  ", i)
		for j := 0; j < 16; j++ {
			if j < len(line) {
				fmt.Fprintf(&b, "%02x ", line[j])
			} else {
				b.WriteString("   ")
			}
			if j == 7 {
				b.WriteByte(' ')
			}
		}
		b.WriteString(" |")
		for _, c := range line {
			if c >= 0x20 && c < 0x7f {
				b.WriteByte(c)
			} else {
				b.WriteByte('.')
			}
		}
		b.WriteString("|\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}
