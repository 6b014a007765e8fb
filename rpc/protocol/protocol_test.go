package protocol

import (
	"errors"
	"io"
	"strings"
	"testing"
	"time"
)

// TestParseAcquire tests parsing of valid ACQUIRE lines
func TestParseAcquire(t *testing.T) {
	tests := []struct {
		line    string
		name    string
		timeout time.Duration
	}{
		{"ACQUIRE mylock 5", "mylock", 5 * time.Second},
		{"ACQUIRE mylock 0", "mylock", 0},
		{"ACQUIRE mylock 0.5", "mylock", 500 * time.Millisecond},
		{"ACQUIRE a 1.25", "a", 1250 * time.Millisecond},
		{"  ACQUIRE   spaced   2  ", "spaced", 2 * time.Second},
	}

	for _, tc := range tests {
		req, err := Parse(tc.line)
		if err != nil {
			t.Errorf("Parse(%q) failed: %v", tc.line, err)
			continue
		}
		if req.Cmd != CmdAcquire {
			t.Errorf("Parse(%q): expected CmdAcquire, got %v", tc.line, req.Cmd)
		}
		if req.Name != tc.name {
			t.Errorf("Parse(%q): expected name %q, got %q", tc.line, tc.name, req.Name)
		}
		if req.Timeout != tc.timeout {
			t.Errorf("Parse(%q): expected timeout %v, got %v", tc.line, tc.timeout, req.Timeout)
		}
	}
}

// TestParseReleaseAndHealth tests parsing of the other commands
func TestParseReleaseAndHealth(t *testing.T) {
	req, err := Parse("RELEASE mylock")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if req.Cmd != CmdRelease || req.Name != "mylock" {
		t.Errorf("unexpected request: %+v", req)
	}

	req, err = Parse("HEALTH")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if req.Cmd != CmdHealth {
		t.Errorf("unexpected request: %+v", req)
	}
}

// TestParseTimeoutHuge tests that timeouts past the nanosecond range are
// capped instead of wrapping into a negative duration
func TestParseTimeoutHuge(t *testing.T) {
	for _, s := range []string{"9999999999", "1e18", "1e300"} {
		req, err := Parse("ACQUIRE mylock " + s)
		if err != nil {
			t.Errorf("Parse rejected timeout %q: %v", s, err)
			continue
		}
		if req.Timeout <= 0 {
			t.Errorf("timeout %q parsed to %v", s, req.Timeout)
		}
	}
}

// TestParseMalformed tests that malformed lines produce a *Error
func TestParseMalformed(t *testing.T) {
	lines := []string{
		"",
		"   ",
		"BOGUS",
		"acquire mylock 5", // commands are case sensitive
		"ACQUIRE",
		"ACQUIRE mylock",
		"ACQUIRE mylock 5 extra",
		"ACQUIRE mylock -1",
		"ACQUIRE mylock NaN",
		"ACQUIRE mylock Inf",
		"ACQUIRE mylock abc",
		"RELEASE",
		"RELEASE mylock extra",
		"HEALTH now",
	}

	for _, line := range lines {
		_, err := Parse(line)
		if err == nil {
			t.Errorf("Parse(%q) should have failed", line)
			continue
		}
		var perr *Error
		if !errors.As(err, &perr) {
			t.Errorf("Parse(%q) returned %T, expected *Error", line, err)
		}
	}
}

// TestRequestReader tests that a malformed line does not kill the stream
func TestRequestReader(t *testing.T) {
	input := "BOGUS\nACQUIRE mylock 1\nRELEASE mylock\n"
	rr := NewRequestReader(strings.NewReader(input))

	// first line is malformed but recoverable
	_, err := rr.Next()
	var perr *Error
	if !errors.As(err, &perr) {
		t.Fatalf("expected *Error, got %v", err)
	}

	// the stream continues at the next line
	req, err := rr.Next()
	if err != nil {
		t.Fatalf("Next failed after protocol error: %v", err)
	}
	if req.Cmd != CmdAcquire || req.Name != "mylock" {
		t.Errorf("unexpected request: %+v", req)
	}

	req, err = rr.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if req.Cmd != CmdRelease {
		t.Errorf("unexpected request: %+v", req)
	}

	// end of stream is a transport error, not a protocol error
	_, err = rr.Next()
	if !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

// TestRequestReaderLineTooLong tests the line length cap
func TestRequestReaderLineTooLong(t *testing.T) {
	input := "ACQUIRE " + strings.Repeat("x", MaxLineBytes) + " 1\n"
	rr := NewRequestReader(strings.NewReader(input))

	_, err := rr.Next()
	var perr *Error
	if !errors.As(err, &perr) {
		t.Fatalf("expected *Error for oversized line, got %v", err)
	}
}

// TestRequestReaderCRLF tests that carriage returns are tolerated
func TestRequestReaderCRLF(t *testing.T) {
	rr := NewRequestReader(strings.NewReader("HEALTH\r\n"))
	req, err := rr.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if req.Cmd != CmdHealth {
		t.Errorf("unexpected request: %+v", req)
	}
}

// TestErrorResponse tests that reasons stay on one line
func TestErrorResponse(t *testing.T) {
	resp := string(ErrorResponse("multi\nline\rreason"))
	if strings.Count(resp, "\n") != 1 {
		t.Errorf("ErrorResponse leaked newlines: %q", resp)
	}
	if !strings.HasPrefix(resp, "ERROR ") {
		t.Errorf("unexpected response %q", resp)
	}
}

// TestParseResponse tests the client-side response decoder
func TestParseResponse(t *testing.T) {
	tests := []struct {
		line   string
		status Status
		detail string
	}{
		{"GRANTED\n", StatusGranted, ""},
		{"DENIED_TIMEOUT\n", StatusDeniedTimeout, ""},
		{"RELEASED\n", StatusReleased, ""},
		{"OK\n", StatusOK, ""},
		{"ERROR lock not held\n", StatusError, "lock not held"},
	}

	for _, tc := range tests {
		status, detail, err := ParseResponse(tc.line)
		if err != nil {
			t.Errorf("ParseResponse(%q) failed: %v", tc.line, err)
			continue
		}
		if status != tc.status || detail != tc.detail {
			t.Errorf("ParseResponse(%q) = %q, %q", tc.line, status, detail)
		}
	}

	if _, _, err := ParseResponse("WAT\n"); err == nil {
		t.Error("ParseResponse should reject unknown status")
	}
}
