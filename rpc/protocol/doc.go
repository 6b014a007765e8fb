// Package protocol implements the line-oriented wire codec of the lock
// server. It is stateless: a RequestReader turns a byte stream into a lazy
// sequence of complete request frames, and the response helpers produce the
// exact on-wire encoding of each outcome.
//
// Wire Format (UTF-8 text, newline-terminated):
//
//	ACQUIRE <name> <timeout_seconds>
//	RELEASE <name>
//	HEALTH
//
//	GRANTED | DENIED_TIMEOUT | RELEASED | OK | ERROR <reason>
//
// The timeout is a non-negative decimal in seconds; 0 means non-blocking.
// Lock names are opaque, case-sensitive and must not contain whitespace or
// the line delimiter. Malformed input surfaces as *Error so the session can
// answer ERROR and keep the connection; only a dead stream ends a session.
package protocol
