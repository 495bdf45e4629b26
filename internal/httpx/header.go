package httpx

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/andycostintoma/httpx/internal/netx"
)

// Header is an ordered multimap from canonical field name to its values, in
// the order fields were first added -- spec.md §3 models headers as an
// "ordered multimap", and the write engine's serialized byte-for-byte output
// depends on that order being stable rather than a plain Go map's
// per-process randomized iteration order.
type Header struct {
	vals  map[string][]string
	order []string // canonical keys, each appearing once, in first-Add order
}

// Sentinel errors for higher-level handling.
var (
	ErrInvalidFieldName    = errors.New("httpx: invalid header field name")
	ErrInvalidValue        = errors.New("httpx: invalid header value")
	ErrHeaderTooLarge      = errors.New("httpx: too many header fields")
	ErrKeyTooLarge         = errors.New("httpx: header key too long")
	ErrValueTooLarge       = errors.New("httpx: header value too long")
	ErrTotalValuesTooLarge = errors.New("httpx: total header values too large")
)

// CanonicalHeaderKey returns the canonical format of the HTTP header key:
// each '-'-separated word upper-cased first letter, rest lower-cased, as
// textproto.CanonicalMIMEHeaderKey does for valid field names. Unlike the
// stdlib, it also rewrites keys containing spaces or other invalid bytes.
func CanonicalHeaderKey(s string) string {
	if s == "" {
		return ""
	}
	parts := strings.Split(s, "-")
	for i, p := range parts {
		if p == "" {
			continue
		}
		runes := []rune(p)
		runes[0] = unicode.ToUpper(runes[0])
		for j := 1; j < len(runes); j++ {
			runes[j] = unicode.ToLower(runes[j])
		}
		parts[i] = string(runes)
	}
	return strings.Join(parts, "-")
}

// Add appends a value to the header key, canonicalizing the key first. The
// key is appended to the iteration order the first time it's seen.
func (h *Header) Add(key, value string) {
	k := CanonicalHeaderKey(key)
	if h.vals == nil {
		h.vals = make(map[string][]string)
	}
	if _, exists := h.vals[k]; !exists {
		h.order = append(h.order, k)
	}
	h.vals[k] = append(h.vals[k], value)
}

// Set replaces any existing values for key with a single value, preserving
// key's existing position in iteration order if it was already present.
func (h *Header) Set(key, value string) {
	k := CanonicalHeaderKey(key)
	if h.vals == nil {
		h.vals = make(map[string][]string)
	}
	if _, exists := h.vals[k]; !exists {
		h.order = append(h.order, k)
	}
	h.vals[k] = []string{value}
}

// Get returns the first value associated with key, or "" if none.
func (h Header) Get(key string) string {
	k := CanonicalHeaderKey(key)
	if v, ok := h.vals[k]; ok && len(v) > 0 {
		return v[0]
	}
	return ""
}

// Values returns all values associated with key (the original slice, not a copy).
func (h Header) Values(key string) []string {
	return h.vals[CanonicalHeaderKey(key)]
}

// Del deletes the header key (case-insensitive), including its iteration
// order slot.
func (h *Header) Del(key string) {
	k := CanonicalHeaderKey(key)
	if _, ok := h.vals[k]; !ok {
		return
	}
	delete(h.vals, k)
	for i, ok := range h.order {
		if ok == k {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
}

// Len returns the number of distinct header keys.
func (h Header) Len() int {
	return len(h.order)
}

// Keys returns the header's canonical field names in insertion order. The
// returned slice must not be mutated.
func (h Header) Keys() []string {
	return h.order
}

// Clone returns a deep copy of the header, preserving key order.
// Used by client and server to duplicate headers safely.
func (h Header) Clone() Header {
	if h.vals == nil {
		return Header{}
	}
	c := Header{
		vals:  make(map[string][]string, len(h.vals)),
		order: append([]string(nil), h.order...),
	}
	for k, v := range h.vals {
		vv := make([]string, len(v))
		copy(vv, v)
		c.vals[k] = vv
	}
	return c
}

// Write serializes headers to wire format: "Key: Value\r\n...", in order.
func (h Header) Write(w io.Writer) error {
	for _, k := range h.order {
		for _, v := range h.vals[k] {
			if _, err := fmt.Fprintf(w, "%s: %s\r\n", k, v); err != nil {
				return err
			}
		}
	}
	_, err := io.WriteString(w, "\r\n")
	return err
}

// -----------------------------------------------------------------------------
// Validation
// -----------------------------------------------------------------------------

type HeaderLimits struct {
	MaxFields           int // maximum distinct header keys allowed
	MaxKeyBytes         int // maximum length of a single header field-name (bytes)
	MaxValueBytes       int // maximum length of a single header field-value (bytes)
	MaxTotalValuesBytes int // cap on sum of all value lengths (optional hard cap)
}

// isValidFieldName reports whether s is a valid HTTP header field name per RFC 7230 §3.2.6.
// Allowed characters: A–Z a–z 0–9 ! # $ % & ' * + - . ^ _ ` | ~
func isValidFieldName(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z',
			c >= 'a' && c <= 'z',
			c >= '0' && c <= '9',
			c == '!', c == '#', c == '$', c == '%', c == '&', c == '\'',
			c == '*', c == '+', c == '-', c == '.', c == '^', c == '_',
			c == '`', c == '|', c == '~':
			continue
		default:
			return false
		}
	}
	return true
}

// isValidValue checks that a value contains only printable ASCII or HTAB,
// per RFC 7230 §3.2.6 (no CTL except HTAB).
func isValidValue(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\t' {
			continue
		}
		if c < 32 || c == 127 {
			return false
		}
	}
	return true
}

// ValidateHeader enforces field counts, key/value size limits, and valid chars.
func ValidateHeader(h Header, lim HeaderLimits) error {
	if lim.MaxFields > 0 && h.Len() > lim.MaxFields {
		return fmt.Errorf("%w: %d fields", ErrHeaderTooLarge, h.Len())
	}

	totalBytes := 0
	for _, k := range h.order {
		vals := h.vals[k]
		if !isValidFieldName(k) {
			return fmt.Errorf("%w: %q", ErrInvalidFieldName, k)
		}
		if lim.MaxKeyBytes > 0 && len(k) > lim.MaxKeyBytes {
			return fmt.Errorf("%w: %s", ErrKeyTooLarge, k)
		}
		for _, v := range vals {
			if lim.MaxValueBytes > 0 && len(v) > lim.MaxValueBytes {
				return fmt.Errorf("%w: %s", ErrValueTooLarge, k)
			}
			if !isValidValue(v) {
				return fmt.Errorf("%w: %q", ErrInvalidValue, v)
			}
			totalBytes += len(v)
		}
	}
	if lim.MaxTotalValuesBytes > 0 && totalBytes > lim.MaxTotalValuesBytes {
		return fmt.Errorf("%w: %d bytes", ErrTotalValuesTooLarge, totalBytes)
	}
	return nil
}

// ErrMalformedHeaderLine indicates a header line without a ':' separator.
var ErrMalformedHeaderLine = errors.New("httpx: malformed header line")

// ParseHeaders reads header lines from r until a blank line terminates the
// header block, folding duplicate field names per Header.Add semantics.
// maxLineBytes bounds each individual line; maxHeaderBytes bounds the sum
// of all header line lengths read.
func ParseHeaders(r *netx.CRLFFastReader, maxLineBytes, maxHeaderBytes int) (Header, error) {
	var h Header
	total := 0
	for {
		line, _, err := r.ReadLine(maxLineBytes)
		if err != nil {
			return Header{}, fmt.Errorf("read header line: %w", err)
		}
		total += len(line)
		if maxHeaderBytes > 0 && total > maxHeaderBytes {
			return Header{}, fmt.Errorf("%w: header block exceeds %d bytes", ErrHeaderTooLarge, maxHeaderBytes)
		}
		if len(line) == 0 {
			return h, nil
		}
		i := strings.IndexByte(string(line), ':')
		if i <= 0 {
			return Header{}, fmt.Errorf("%w: %q", ErrMalformedHeaderLine, line)
		}
		name := string(line[:i])
		value := strings.TrimSpace(string(line[i+1:]))
		if !isValidFieldName(name) {
			return Header{}, fmt.Errorf("%w: %q", ErrInvalidFieldName, name)
		}
		h.Add(name, value)
	}
}
