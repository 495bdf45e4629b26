package httpwire

import (
	"context"
	"io"
	"os"

	"github.com/andycostintoma/httpx/internal/wire"
)

// Body is the polymorphic body kind capability from spec.md §3/§9: a value
// that knows whether it has a known length, whether its payload is
// deferred (not available at header-emission time), and how to construct a
// fresh Writer over its content.
//
// ContentLength and Deferred answer without constructing a Writer, so
// Prepare never has to build-and-discard one to learn them (see
// SPEC_FULL.md's Open Question resolution). Each Writer returned by
// NewWriter is single-use: callers must not call NewWriter's Init twice on
// the same Writer, though NewWriter itself may be called any number of
// times for the same Body (Prepare may probe a Body's length and the
// eventual send builds its own Writer independently).
type Body interface {
	// ContentLength returns the body's length and true if known ahead of
	// time. Empty/String/File bodies know it, and a RawBody does when
	// Known is set; a BufferedBody never reports one.
	ContentLength() (int64, bool)
	// Deferred reports whether the first chunk of payload is not
	// available until after the header has been flushed.
	Deferred() bool
	// NewWriter returns a fresh BodyWriter over this body's content.
	NewWriter() BodyWriter
}

// BodyWriter produces the payload of a single logical send. Read returns
// the next batch of buffers to write, whether this is the last call
// (more=false means no further non-empty batches will follow), or
// io.EOF when the body is exhausted, or wire.ErrNeedMore when no data is
// ready yet and the caller should retry.
type BodyWriter interface {
	Init(ctx context.Context) error
	Read(ctx context.Context) (bufs [][]byte, more bool, err error)
}

// -----------------------------------------------------------------------------
// EmptyBody
// -----------------------------------------------------------------------------

// EmptyBody is a body with no payload.
type EmptyBody struct{}

func (EmptyBody) ContentLength() (int64, bool) { return 0, true }
func (EmptyBody) Deferred() bool               { return false }
func (EmptyBody) NewWriter() BodyWriter        { return emptyWriter{} }

type emptyWriter struct{}

func (emptyWriter) Init(context.Context) error { return nil }
func (emptyWriter) Read(context.Context) ([][]byte, bool, error) {
	return nil, false, io.EOF
}

// -----------------------------------------------------------------------------
// StringBody
// -----------------------------------------------------------------------------

// StringBody is a body whose entire payload is known up front.
type StringBody string

func (s StringBody) ContentLength() (int64, bool) { return int64(len(s)), true }
func (StringBody) Deferred() bool                 { return false }
func (s StringBody) NewWriter() BodyWriter        { return &stringWriter{data: []byte(s)} }

type stringWriter struct {
	data []byte
	sent bool
}

func (w *stringWriter) Init(context.Context) error { return nil }

func (w *stringWriter) Read(context.Context) ([][]byte, bool, error) {
	if w.sent {
		return nil, false, io.EOF
	}
	w.sent = true
	if len(w.data) == 0 {
		return nil, false, io.EOF
	}
	return [][]byte{w.data}, false, nil
}

// -----------------------------------------------------------------------------
// RawBody — fixed bytes with an overridable length/deferred advertisement
// -----------------------------------------------------------------------------

// RawBody holds payload that is entirely ready up front but lets the
// caller control what Prepare sees: Known=false models a body whose
// producer can't or won't report a length ahead of time (e.g. proxying an
// upstream response verbatim), forcing Prepare into chunked or
// close-on-complete framing even though the data itself isn't deferred.
type RawBody struct {
	Data       []byte
	Known      bool
	IsDeferred bool
}

func (b RawBody) ContentLength() (int64, bool) {
	if !b.Known {
		return 0, false
	}
	return int64(len(b.Data)), true
}

func (b RawBody) Deferred() bool { return b.IsDeferred }

func (b RawBody) NewWriter() BodyWriter { return &stringWriter{data: b.Data} }

// -----------------------------------------------------------------------------
// BufferedBody — caller-pushed chunks
// -----------------------------------------------------------------------------

// BufferedBody lets a caller push chunks of payload as they become
// available, e.g. when proxying a body whose total length is unknown
// until the producer signals completion. It is deferred: the write engine
// flushes the header before the first chunk is necessarily ready.
type BufferedBody struct {
	ch     chan []byte
	closed chan struct{}
	length int64 // -1 if unknown
}

// NewBufferedBody returns a BufferedBody with an unknown length. Push
// chunks with Push and call Close when done.
func NewBufferedBody() *BufferedBody {
	return &BufferedBody{ch: make(chan []byte, 16), closed: make(chan struct{}), length: -1}
}

// Push enqueues a chunk of payload. Must not be called after Close.
func (b *BufferedBody) Push(p []byte) {
	if len(p) == 0 {
		return
	}
	cp := make([]byte, len(p))
	copy(cp, p)
	b.ch <- cp
}

// Close signals that no more chunks will be pushed.
func (b *BufferedBody) Close() { close(b.closed) }

func (b *BufferedBody) ContentLength() (int64, bool) {
	if b.length < 0 {
		return 0, false
	}
	return b.length, true
}

func (b *BufferedBody) Deferred() bool { return true }

func (b *BufferedBody) NewWriter() BodyWriter { return &bufferedWriter{b: b} }

type bufferedWriter struct{ b *BufferedBody }

func (w *bufferedWriter) Init(context.Context) error { return nil }

func (w *bufferedWriter) Read(ctx context.Context) ([][]byte, bool, error) {
	select {
	case p := <-w.b.ch:
		return [][]byte{p}, true, nil
	case <-w.b.closed:
		select {
		case p := <-w.b.ch:
			return [][]byte{p}, true, nil
		default:
			return nil, false, io.EOF
		}
	case <-ctx.Done():
		return nil, false, wire.Wrap(wire.Aborted, "buffered body read", ctx.Err())
	default:
		return nil, false, wire.ErrNeedMore
	}
}

// -----------------------------------------------------------------------------
// FileBody — supplemented from Boost.Beast's file_body.hpp
// -----------------------------------------------------------------------------

// FileBody streams a file's contents lazily, opening it in Init rather
// than at construction so header preparation (which only needs the size)
// never holds an open file descriptor.
type FileBody struct {
	Path      string
	ChunkSize int // default 64KiB if zero
}

func (f FileBody) ContentLength() (int64, bool) {
	fi, err := os.Stat(f.Path)
	if err != nil {
		return 0, false
	}
	return fi.Size(), true
}

func (FileBody) Deferred() bool { return false }

func (f FileBody) NewWriter() BodyWriter {
	chunk := f.ChunkSize
	if chunk <= 0 {
		chunk = 64 << 10
	}
	return &fileWriter{path: f.Path, chunkSize: chunk}
}

type fileWriter struct {
	path      string
	chunkSize int
	f         *os.File
	buf       []byte
}

func (w *fileWriter) Init(ctx context.Context) error {
	f, err := os.Open(w.path)
	if err != nil {
		return wire.Wrap(wire.Stream, "open file body", err)
	}
	w.f = f
	w.buf = make([]byte, w.chunkSize)
	return nil
}

func (w *fileWriter) Read(ctx context.Context) ([][]byte, bool, error) {
	n, err := w.f.Read(w.buf)
	if n > 0 {
		data := make([]byte, n)
		copy(data, w.buf[:n])
		if err == io.EOF {
			_ = w.f.Close()
			return [][]byte{data}, false, nil
		}
		if err != nil {
			_ = w.f.Close()
			return [][]byte{data}, false, wire.Wrap(wire.Stream, "read file body", err)
		}
		return [][]byte{data}, true, nil
	}
	_ = w.f.Close()
	if err != nil && err != io.EOF {
		return nil, false, wire.Wrap(wire.Stream, "read file body", err)
	}
	return nil, false, io.EOF
}
