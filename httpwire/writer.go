package httpwire

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/andycostintoma/httpx/internal/wire"
)

// Stream is the byte-stream collaborator the write engine pushes bytes
// into. It is out of scope per spec.md §1 ("the underlying byte-stream
// abstraction"); this is the minimal surface the engine needs from it.
// WriteSome must write at least one byte from bufs (short of an error) and
// report exactly how many bytes across the whole buffer sequence were
// consumed.
type Stream interface {
	WriteSome(ctx context.Context, bufs [][]byte) (n int, err error)
}

type writerState int

const (
	stateHeader writerState = iota
	stateBodyInit // deferred body: header already flushed, need Init+first Read
	stateBodyNext // identity body: cursor draining, next action reads another chunk
	stateChunkCRLF // chunked body: cursor draining one "size\r\ndata\r\n" frame
	stateChunkFinal
	stateComplete
	stateFailed
)

// cursor is a "consuming buffers" view: a buffer sequence plus an offset
// that advances across possibly-partial underlying writes.
type cursor struct {
	bufs [][]byte
}

func (c *cursor) remaining() bool {
	for _, b := range c.bufs {
		if len(b) > 0 {
			return true
		}
	}
	return false
}

// advance trims n bytes from the front of the sequence, across slices.
func (c *cursor) advance(n int) {
	for n > 0 && len(c.bufs) > 0 {
		b := c.bufs[0]
		if n < len(b) {
			c.bufs[0] = b[n:]
			return
		}
		n -= len(b)
		c.bufs = c.bufs[1:]
	}
}

// Writer is the incremental HTTP/1 message serializer from spec.md §4.2: a
// single-use state machine that performs at most one underlying Stream
// write per WriteSome call, so callers can interleave timeouts and other
// I/O between calls.
type Writer struct {
	msg *Message

	chunked         bool
	closeOnComplete bool

	headerBuf []byte
	bw        BodyWriter
	deferred  bool

	cur   cursor
	state writerState
	err   error
}

// NewWriter constructs a Writer over msg, which must already have passed
// through Prepare. msg must outlive the Writer; the engine never copies
// the body.
func NewWriter(msg *Message) *Writer {
	w := &Writer{msg: msg, state: stateHeader}
	w.chunked = hasToken(msg.Header.Get("Transfer-Encoding"), "chunked")
	w.closeOnComplete = hasToken(msg.Header.Get("Connection"), "close") ||
		(msg.Version < 11 && msg.Header.Get("Content-Length") == "")
	w.headerBuf = serializeHeader(msg)
	w.bw = msg.Body.NewWriter()
	w.deferred = msg.Body.Deferred()
	w.cur = cursor{bufs: [][]byte{w.headerBuf}}
	return w
}

// Done reports whether the Writer has finished (successfully or not).
func (w *Writer) Done() bool {
	return w.state == stateComplete || w.state == stateFailed
}

// WriteSome performs at most one underlying Stream.WriteSome call and
// returns the number of bytes it accepted. Callers loop until Done.
//
// On the call that completes a message whose framing calls for
// close-on-complete (Connection: close, or HTTP/1.0 without a known
// length), WriteSome returns wire.ErrClosed alongside the final byte
// count — the error-as-closure convention from spec.md §4.2/§7.
func (w *Writer) WriteSome(ctx context.Context, s Stream) (int, error) {
	if w.state == stateFailed {
		return 0, w.err
	}
	if w.state == stateComplete {
		if w.closeOnComplete {
			return 0, wire.ErrClosed
		}
		return 0, nil
	}

	for {
		if w.cur.remaining() {
			n, err := s.WriteSome(ctx, w.cur.bufs)
			w.cur.advance(n)
			if err != nil {
				w.state = stateFailed
				w.err = wire.Wrap(wire.Stream, "write", err)
				return n, w.err
			}
			if w.cur.remaining() {
				return n, nil
			}
			// This chunk of wire bytes fully drained; advance the
			// logical state for the *next* call. No further stream I/O
			// happens in this call.
			if err := w.advance(ctx); err != nil {
				if errors.Is(err, io.EOF) {
					w.state = stateComplete
					if w.closeOnComplete {
						return n, wire.ErrClosed
					}
					return n, nil
				}
				w.state = stateFailed
				w.err = err
				return n, err
			}
			return n, nil
		}

		// No bytes staged yet (only happens before the very first write,
		// since advance() above always stages the next cursor or signals
		// completion/failure).
		if err := w.advance(ctx); err != nil {
			if errors.Is(err, io.EOF) {
				w.state = stateComplete
				if w.closeOnComplete {
					return 0, wire.ErrClosed
				}
				return 0, nil
			}
			w.state = stateFailed
			w.err = err
			return 0, err
		}
	}
}

// advance moves the state machine forward by one logical step, staging the
// next cursor. It performs no Stream I/O but may call the body writer's
// Init/Read, which are separate collaborators. Returns io.EOF when the
// message is fully serialized.
func (w *Writer) advance(ctx context.Context) error {
	switch w.state {
	case stateHeader:
		if w.deferred {
			w.state = stateBodyInit
			return w.enterBodyInit(ctx)
		}
		return w.enterFirstBody(ctx)

	case stateBodyInit:
		return w.enterFirstBody(ctx)

	case stateBodyNext:
		return w.fetchNext(ctx)

	case stateChunkCRLF:
		return w.fetchNext(ctx)

	case stateChunkFinal:
		return io.EOF

	default:
		return fmt.Errorf("httpwire: writer advance in unexpected state %d", w.state)
	}
}

// enterBodyInit calls Init for a deferred body, once the header has
// already been flushed on the wire.
func (w *Writer) enterBodyInit(ctx context.Context) error {
	if err := w.bw.Init(ctx); err != nil {
		return wire.Wrap(wire.Stream, "body writer init", err)
	}
	return w.enterFirstBody(ctx)
}

// enterFirstBody calls Init (for a non-deferred body) and fetches the
// first chunk, staging it (identity) or its chunk-size line (chunked).
func (w *Writer) enterFirstBody(ctx context.Context) error {
	if !w.deferred && w.state == stateHeader {
		if err := w.bw.Init(ctx); err != nil {
			return wire.Wrap(wire.Stream, "body writer init", err)
		}
	}
	return w.fetchNext(ctx)
}

// fetchNext reads the next body chunk and stages it for writing, looping
// past wire.ErrNeedMore and empty chunks without doing any Stream I/O.
func (w *Writer) fetchNext(ctx context.Context) error {
	for {
		bufs, more, err := w.bw.Read(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				if w.chunked {
					w.state = stateChunkFinal
					w.cur = cursor{bufs: [][]byte{[]byte("0\r\n\r\n")}}
					return nil
				}
				return io.EOF
			}
			if errors.Is(err, wire.ErrNeedMore) {
				continue
			}
			return wire.Wrap(wire.Stream, "body read", err)
		}

		n := bufLen(bufs)
		if n == 0 {
			if !more {
				if w.chunked {
					w.state = stateChunkFinal
					w.cur = cursor{bufs: [][]byte{[]byte("0\r\n\r\n")}}
					return nil
				}
				return io.EOF
			}
			continue
		}

		if w.chunked {
			head := []byte(strconv.FormatInt(int64(n), 16) + "\r\n")
			tail := []byte("\r\n")
			all := make([][]byte, 0, len(bufs)+2)
			all = append(all, head)
			all = append(all, bufs...)
			all = append(all, tail)
			w.cur = cursor{bufs: all}
			w.state = stateChunkCRLF
			return nil
		}
		w.state = stateBodyNext
		w.cur = cursor{bufs: bufs}
		return nil
	}
}

func bufLen(bufs [][]byte) int {
	n := 0
	for _, b := range bufs {
		n += len(b)
	}
	return n
}

// serializeHeader renders the request/status line and header block.
// Pseudo-fields (leading ':') are never emitted, per spec.md §3.
func serializeHeader(msg *Message) []byte {
	var buf bytes.Buffer
	if msg.IsRequest {
		buf.WriteString(msg.Method)
		buf.WriteByte(' ')
		buf.WriteString(msg.Target)
		buf.WriteByte(' ')
		buf.WriteString(versionString(msg.Version))
		buf.WriteString("\r\n")
	} else {
		reason := msg.Reason
		if reason == "" {
			reason = reasonFor(msg.StatusCode)
		}
		buf.WriteString(versionString(msg.Version))
		buf.WriteByte(' ')
		buf.WriteString(strconv.Itoa(msg.StatusCode))
		if reason != "" {
			buf.WriteByte(' ')
			buf.WriteString(reason)
		}
		buf.WriteString("\r\n")
	}
	for _, k := range msg.Header.Keys() {
		if isPseudoField(k) {
			continue
		}
		for _, v := range msg.Header.Values(k) {
			buf.WriteString(k)
			buf.WriteString(": ")
			buf.WriteString(v)
			buf.WriteString("\r\n")
		}
	}
	buf.WriteString("\r\n")
	return buf.Bytes()
}
