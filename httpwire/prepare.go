package httpwire

import (
	"strconv"
	"strings"

	"github.com/andycostintoma/httpx/internal/wire"
)

// ConnOption selects the Connection-header behavior Prepare applies, per
// spec.md §4.1 step 4. Callers must not set Connection themselves; Prepare
// owns it entirely.
type ConnOption int

const (
	// OptKeepAlive requests "Connection: keep-alive", only meaningful (and
	// only emitted) on HTTP/1.0 when a length was established.
	OptKeepAlive ConnOption = iota
	// OptClose requests "Connection: close", only emitted on HTTP/1.1+.
	OptClose
	// OptUpgrade requests "Connection: upgrade" for a protocol switch;
	// valid only on HTTP/1.1.
	OptUpgrade
)

// Prepare normalizes msg's header per spec.md §4.1: it establishes exactly
// one of Content-Length/Transfer-Encoding: chunked (except where neither is
// required), and sets Connection according to opt. Prepare rejects a
// message whose header already carries Connection, Content-Length, or a
// chunked Transfer-Encoding — those are Prepare's to set, not the caller's.
func Prepare(msg *Message, opt ...ConnOption) error {
	var upgrade, keepAlive, closeConn bool
	for _, o := range opt {
		switch o {
		case OptUpgrade:
			upgrade = true
		case OptKeepAlive:
			keepAlive = true
		case OptClose:
			closeConn = true
		}
	}

	if msg.Header.Get("Connection") != "" {
		return wire.New(wire.InvalidArgument, "Connection must not be pre-set; Prepare sets it")
	}
	if msg.Header.Get("Content-Length") != "" {
		return wire.New(wire.InvalidArgument, "Content-Length must not be pre-set; Prepare sets it")
	}
	if hasToken(msg.Header.Get("Transfer-Encoding"), "chunked") {
		return wire.New(wire.InvalidArgument, "Transfer-Encoding: chunked must not be pre-set; Prepare sets it")
	}
	if upgrade && msg.Version != 11 {
		return wire.New(wire.InvalidArgument, "Connection: upgrade requires HTTP/1.1")
	}

	length, known := msg.Body.ContentLength()
	deferred := msg.Body.Deferred()

	if !upgrade {
		switch {
		case known && !deferred:
			if shouldEmitLength(msg, length) {
				msg.Header.Set("Content-Length", strconv.FormatInt(length, 10))
			}
		case msg.Version >= 11:
			msg.Header.Set("Transfer-Encoding", "chunked")
		}
	}

	switch {
	case upgrade:
		msg.Header.Set("Connection", "upgrade")
	case keepAlive:
		if msg.Version == 10 && msg.Header.Get("Content-Length") != "" {
			msg.Header.Set("Connection", "keep-alive")
		}
	case closeConn:
		if msg.Version >= 11 {
			msg.Header.Set("Connection", "close")
		}
	}

	return nil
}

// shouldEmitLength implements step 3's per-role Content-Length rule.
func shouldEmitLength(msg *Message, length int64) bool {
	if msg.IsRequest {
		return length > 0 || msg.Method == "POST"
	}
	switch msg.StatusCode {
	case 204, 304:
		return false
	default:
		if msg.StatusCode >= 100 && msg.StatusCode < 200 {
			return false
		}
		return true
	}
}

func hasToken(header, token string) bool {
	for _, part := range strings.Split(header, ",") {
		if strings.EqualFold(strings.TrimSpace(part), token) {
			return true
		}
	}
	return false
}

