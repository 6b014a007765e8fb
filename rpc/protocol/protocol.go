package protocol

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"
)

// MaxLineBytes bounds a single request line. Longer lines are still consumed
// in full, so the stream stays framed and the session can keep going.
const MaxLineBytes = 1024

// --------------------------------------------------------------------------
// Request Types
// --------------------------------------------------------------------------

// Command identifies a request kind.
type Command uint8

const (
	CmdAcquire Command = iota
	CmdRelease
	CmdHealth
)

// String returns the wire name of a command.
func (c Command) String() string {
	switch c {
	case CmdAcquire:
		return "ACQUIRE"
	case CmdRelease:
		return "RELEASE"
	case CmdHealth:
		return "HEALTH"
	default:
		return "UNKNOWN"
	}
}

// Request is one complete, validated request frame.
type Request struct {
	Cmd     Command
	Name    string
	Timeout time.Duration // acquire only; zero means non-blocking
}

// --------------------------------------------------------------------------
// Protocol Error
// --------------------------------------------------------------------------

// Error marks malformed input. The session answers it with an ERROR response
// and keeps the connection open; any other read error terminates the session.
type Error struct {
	Reason string
}

func (e *Error) Error() string {
	return e.Reason
}

func errorf(format string, args ...interface{}) *Error {
	return &Error{Reason: fmt.Sprintf(format, args...)}
}

// --------------------------------------------------------------------------
// Request Reader
// --------------------------------------------------------------------------

// RequestReader produces a lazy sequence of complete request frames from a
// byte stream. It never yields a partial message: a malformed line is
// consumed in full and reported as *Error, so the caller can answer and
// continue reading from a clean frame boundary.
type RequestReader struct {
	r *bufio.Reader
}

// NewRequestReader wraps a stream in a RequestReader.
func NewRequestReader(r io.Reader) *RequestReader {
	return &RequestReader{r: bufio.NewReader(r)}
}

// Next reads and parses the next request. A returned *Error means malformed
// input on an intact stream; any other error means the stream is dead.
func (rr *RequestReader) Next() (*Request, error) {
	line, err := rr.r.ReadString('\n')
	if err != nil {
		return nil, err
	}
	if len(line) > MaxLineBytes {
		return nil, errorf("line too long")
	}
	return Parse(strings.TrimRight(line, "\r\n"))
}

// Parse parses a single request line (without the trailing delimiter).
func Parse(line string) (*Request, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, errorf("empty request")
	}

	switch fields[0] {
	case "ACQUIRE":
		if len(fields) != 3 {
			return nil, errorf("ACQUIRE expects: ACQUIRE <name> <timeout_seconds>")
		}
		timeout, err := parseTimeout(fields[2])
		if err != nil {
			return nil, err
		}
		return &Request{Cmd: CmdAcquire, Name: fields[1], Timeout: timeout}, nil

	case "RELEASE":
		if len(fields) != 2 {
			return nil, errorf("RELEASE expects: RELEASE <name>")
		}
		return &Request{Cmd: CmdRelease, Name: fields[1]}, nil

	case "HEALTH":
		if len(fields) != 1 {
			return nil, errorf("HEALTH takes no arguments")
		}
		return &Request{Cmd: CmdHealth}, nil

	default:
		return nil, errorf("unknown command %q", fields[0])
	}
}

// parseTimeout parses a non-negative decimal number of seconds. Fractional
// values are allowed so clients can wait sub-second.
func parseTimeout(s string) (time.Duration, error) {
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(secs) || math.IsInf(secs, 0) {
		return 0, errorf("invalid timeout %q", s)
	}
	if secs < 0 {
		return 0, errorf("timeout must be >= 0")
	}
	// Values past the nanosecond range would overflow to a negative
	// duration; cap them at the longest representable wait instead.
	if secs >= float64(math.MaxInt64)/float64(time.Second) {
		return math.MaxInt64, nil
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// --------------------------------------------------------------------------
// Responses
// --------------------------------------------------------------------------

// Status is the first token of a response line.
type Status string

const (
	StatusGranted       Status = "GRANTED"
	StatusDeniedTimeout Status = "DENIED_TIMEOUT"
	StatusReleased      Status = "RELEASED"
	StatusOK            Status = "OK"
	StatusError         Status = "ERROR"
)

// Granted encodes the GRANTED response.
func Granted() []byte { return []byte("GRANTED\n") }

// DeniedTimeout encodes the DENIED_TIMEOUT response.
func DeniedTimeout() []byte { return []byte("DENIED_TIMEOUT\n") }

// Released encodes the RELEASED response.
func Released() []byte { return []byte("RELEASED\n") }

// OK encodes the OK response (health checks).
func OK() []byte { return []byte("OK\n") }

// ErrorResponse encodes an ERROR response. Embedded newlines in the reason
// are flattened so the encoding stays unambiguous.
func ErrorResponse(reason string) []byte {
	reason = strings.ReplaceAll(reason, "\n", " ")
	reason = strings.ReplaceAll(reason, "\r", " ")
	return []byte("ERROR " + reason + "\n")
}

// ParseResponse splits a response line into its status and optional detail
// (the ERROR reason). Used by the client side.
func ParseResponse(line string) (Status, string, error) {
	line = strings.TrimRight(line, "\r\n")
	status, rest, _ := strings.Cut(line, " ")
	switch Status(status) {
	case StatusGranted, StatusDeniedTimeout, StatusReleased, StatusOK:
		return Status(status), "", nil
	case StatusError:
		return StatusError, rest, nil
	default:
		return "", "", fmt.Errorf("unexpected response %q", line)
	}
}
