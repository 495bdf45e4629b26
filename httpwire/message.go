// Package httpwire implements the HTTP/1 message model and an incremental,
// suspension-safe write engine: header normalization (Prepare) and an
// identity/chunked serializer that performs bounded work per call, per
// spec.md §3-4.2.
package httpwire

import (
	"fmt"
	"strings"

	"github.com/andycostintoma/httpx/internal/httpx"
)

// Header is the header container from the teacher's httpx package: an
// ordered, case-insensitive multimap. Reused as-is (spec.md §3's Header
// model already matches it exactly).
type Header = httpx.Header

// Message is a Header plus a Body, optionally tagged as a request or a
// response. Exactly one of the request fields (Method, Target) or the
// response fields (StatusCode, Reason) is meaningful, per IsRequest.
type Message struct {
	IsRequest bool

	// Request-only.
	Method string
	Target string

	// Response-only.
	StatusCode int
	Reason     string // derived from StatusCode when empty, at write time

	// Version is encoded as a two-digit integer; only 10 and 11 are
	// permitted (HTTP/1.0 and HTTP/1.1).
	Version int

	Header Header
	Body   Body
}

// NewRequest returns a request Message with an initialized Header.
func NewRequest(method, target string, version int, body Body) *Message {
	if body == nil {
		body = EmptyBody{}
	}
	return &Message{
		IsRequest: true,
		Method:    method,
		Target:    target,
		Version:   version,
		Header:    Header{},
		Body:      body,
	}
}

// NewResponse returns a response Message with an initialized Header.
func NewResponse(statusCode int, version int, body Body) *Message {
	if body == nil {
		body = EmptyBody{}
	}
	return &Message{
		IsRequest:  false,
		StatusCode: statusCode,
		Version:    version,
		Header:     Header{},
		Body:       body,
	}
}

// isPseudoField reports whether name begins with ':', the convention this
// model uses for fields that are never serialized on the wire (reserved
// for internal bookkeeping, mirroring HTTP/2-style pseudo-headers used as
// a carrier in some of the pack's proxies).
func isPseudoField(name string) bool {
	return strings.HasPrefix(name, ":")
}

// versionString renders Version (10 or 11) as "HTTP/1.x".
func versionString(v int) string {
	switch v {
	case 10:
		return "HTTP/1.0"
	case 11:
		return "HTTP/1.1"
	default:
		return fmt.Sprintf("HTTP/1.%d", v-10)
	}
}

// reasonFor derives a default reason phrase for common status codes when
// the caller hasn't set one, mirroring net/http's StatusText for the
// subset this engine cares about (1xx/2xx/3xx/4xx used by the handshake
// and the example servers).
func reasonFor(code int) string {
	switch code {
	case 100:
		return "Continue"
	case 101:
		return "Switching Protocols"
	case 200:
		return "OK"
	case 204:
		return "No Content"
	case 304:
		return "Not Modified"
	case 400:
		return "Bad Request"
	case 404:
		return "Not Found"
	case 405:
		return "Method Not Allowed"
	case 426:
		return "Upgrade Required"
	case 500:
		return "Internal Server Error"
	default:
		return ""
	}
}
