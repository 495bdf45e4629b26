package httpx

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/andycostintoma/httpx/internal/netx"
)

// Response represents a parsed HTTP/1.x status line plus headers. It is
// what the WebSocket client handshake (ws.ClientHandshake's
// ValidateServerResponse) checks the server's response against. Serialization of outgoing messages, including chunked framing,
// is handled by package httpwire's incremental write engine; this package
// only parses.
type Response struct {
	Proto         string // e.g. "HTTP/1.1"
	ProtoMajor    int
	ProtoMinor    int
	StatusCode    int
	Status        string // reason phrase, e.g. "OK"
	Header        Header
	ContentLength int64 // -1 if unknown
}

// ErrMalformedStatusLine indicates a status line that doesn't parse as
// "HTTP/x.y SP code SP reason".
var ErrMalformedStatusLine = errors.New("httpx: malformed status line")

// ParseResponse reads and parses a status line and header block from r.
// The body, if any, is left unread; callers use NewBodyReader with the
// returned Header to obtain it.
func ParseResponse(r *netx.CRLFFastReader, limits ParseLimits) (*Response, error) {
	line, _, err := r.ReadLine(limits.MaxLineBytes)
	if err != nil {
		return nil, fmt.Errorf("read status line: %w", err)
	}
	if len(line) == 0 {
		return nil, errors.New("empty status line")
	}

	resp, err := parseStatusLine(string(line))
	if err != nil {
		return nil, err
	}

	hdr, err := ParseHeaders(r, limits.MaxLineBytes, limits.MaxHeaderBytes)
	if err != nil {
		return nil, err
	}
	resp.Header = hdr
	resp.ContentLength = -1

	if cl := hdr.Get("Content-Length"); cl != "" {
		if n, err := strconv.ParseInt(strings.TrimSpace(cl), 10, 64); err == nil && n >= 0 {
			resp.ContentLength = n
		}
	}

	return resp, nil
}

// parseStatusLine parses "HTTP/x.y SP code SP reason".
func parseStatusLine(line string) (*Response, error) {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 {
		return nil, fmt.Errorf("%w: %q", ErrMalformedStatusLine, line)
	}

	proto := parts[0]
	if !strings.HasPrefix(proto, "HTTP/") {
		return nil, fmt.Errorf("%w: bad protocol %q", ErrMalformedStatusLine, proto)
	}
	ver := strings.TrimPrefix(proto, "HTTP/")
	dot := strings.IndexByte(ver, '.')
	if dot < 0 {
		return nil, fmt.Errorf("%w: bad version %q", ErrMalformedStatusLine, proto)
	}
	major, err1 := strconv.Atoi(ver[:dot])
	minor, err2 := strconv.Atoi(ver[dot+1:])
	if err1 != nil || err2 != nil {
		return nil, fmt.Errorf("%w: bad version numbers %q", ErrMalformedStatusLine, proto)
	}

	code, err := strconv.Atoi(parts[1])
	if err != nil || code < 100 || code > 999 {
		return nil, fmt.Errorf("%w: bad status code %q", ErrMalformedStatusLine, parts[1])
	}

	reason := ""
	if len(parts) == 3 {
		reason = parts[2]
	}

	return &Response{
		Proto:      proto,
		ProtoMajor: major,
		ProtoMinor: minor,
		StatusCode: code,
		Status:     reason,
	}, nil
}
