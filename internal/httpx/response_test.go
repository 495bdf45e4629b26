package httpx

import (
	"bytes"
	"testing"

	"github.com/andycostintoma/httpx/internal/netx"
)

func TestParseResponseStatusLineAndHeaders(t *testing.T) {
	raw := "HTTP/1.1 101 Switching Protocols\r\nUpgrade: websocket\r\nConnection: Upgrade\r\nSec-WebSocket-Accept: s3pPLMBiTxaQ9kYGzzhZRbK+xOo=\r\n\r\n"
	r := netx.NewCRLFFastReader(bytes.NewBufferString(raw))

	resp, err := ParseResponse(r, ParseLimits{MaxLineBytes: 4096})
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 101 || resp.Status != "Switching Protocols" {
		t.Fatalf("status mismatch: %d %q", resp.StatusCode, resp.Status)
	}
	if resp.ProtoMajor != 1 || resp.ProtoMinor != 1 {
		t.Fatalf("proto mismatch: %d.%d", resp.ProtoMajor, resp.ProtoMinor)
	}
	if resp.Header.Get("Upgrade") != "websocket" {
		t.Fatalf("missing Upgrade header: %#v", resp.Header)
	}
	if resp.Header.Get("Sec-WebSocket-Accept") != "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=" {
		t.Fatalf("missing Sec-WebSocket-Accept header: %#v", resp.Header)
	}
	if resp.ContentLength != -1 {
		t.Fatalf("expected unknown content length, got %d", resp.ContentLength)
	}
}

func TestParseResponseWithContentLength(t *testing.T) {
	raw := "HTTP/1.0 200 OK\r\nContent-Length: 5\r\n\r\nhello"
	r := netx.NewCRLFFastReader(bytes.NewBufferString(raw))

	resp, err := ParseResponse(r, ParseLimits{MaxLineBytes: 4096})
	if err != nil {
		t.Fatal(err)
	}
	if resp.ContentLength != 5 {
		t.Fatalf("ContentLength = %d, want 5", resp.ContentLength)
	}
	if resp.ProtoMajor != 1 || resp.ProtoMinor != 0 {
		t.Fatalf("proto mismatch: %d.%d", resp.ProtoMajor, resp.ProtoMinor)
	}
}

func TestParseResponseNoReason(t *testing.T) {
	raw := "HTTP/1.1 204\r\n\r\n"
	r := netx.NewCRLFFastReader(bytes.NewBufferString(raw))

	resp, err := ParseResponse(r, ParseLimits{MaxLineBytes: 4096})
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 204 || resp.Status != "" {
		t.Fatalf("got code=%d reason=%q", resp.StatusCode, resp.Status)
	}
}

func TestParseResponseMalformed(t *testing.T) {
	cases := []string{
		"NOT A STATUS LINE\r\n\r\n",
		"HTTP/x.y 200 OK\r\n\r\n",
		"HTTP/1.1 abc OK\r\n\r\n",
	}
	for _, raw := range cases {
		r := netx.NewCRLFFastReader(bytes.NewBufferString(raw))
		if _, err := ParseResponse(r, ParseLimits{MaxLineBytes: 4096}); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}
