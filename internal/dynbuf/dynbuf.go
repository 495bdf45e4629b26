// Package dynbuf implements the dynamic buffer contract consumed by the
// WebSocket read engine: a growable FIFO of bytes exposing separate
// readable and writable region views, per spec.md §6.
package dynbuf

// Buffer is a growable byte FIFO. Prepare reserves writable space at the
// tail; Commit advances the readable region over bytes actually written;
// Consume advances the head of the readable region, discarding bytes
// already processed by the caller. The readable and writable regions never
// alias after a Commit: writing into a slice previously returned by
// Prepare and not yet Committed is safe, but reusing a slice after Commit
// has been called for a different length is not.
type Buffer struct {
	buf []byte
	r   int // start of readable region
	w   int // end of readable region / start of writable region
}

// New returns an empty Buffer with initial capacity hint.
func New(capHint int) *Buffer {
	if capHint < 0 {
		capHint = 0
	}
	return &Buffer{buf: make([]byte, 0, capHint)}
}

// Len returns the number of readable bytes currently buffered.
func (b *Buffer) Len() int { return b.w - b.r }

// Cap returns the total capacity of the backing array.
func (b *Buffer) Cap() int { return cap(b.buf) }

// Data returns the current readable region. The returned slice is only
// valid until the next call to Prepare, Commit, or Consume.
func (b *Buffer) Data() []byte { return b.buf[b.r:b.w] }

// Prepare reserves n writable bytes at the tail of the buffer, growing and
// compacting the backing array as needed, and returns that region. The
// caller must write into the returned slice and then call Commit with the
// number of bytes actually written.
func (b *Buffer) Prepare(n int) []byte {
	if n < 0 {
		panic("dynbuf: negative Prepare size")
	}
	need := b.w + n
	if need <= cap(b.buf) {
		b.buf = b.buf[:need]
		return b.buf[b.w:need]
	}
	// Compact first: sliding the readable region to the front may free
	// enough room without growing.
	readable := b.Len()
	if b.r > 0 {
		copy(b.buf[:readable], b.buf[b.r:b.w])
		b.r = 0
		b.w = readable
		need = b.w + n
		if need <= cap(b.buf) {
			b.buf = b.buf[:need]
			return b.buf[b.w:need]
		}
	}
	grown := make([]byte, need, growCap(cap(b.buf), need))
	copy(grown, b.buf[b.r:b.w])
	b.buf = grown
	b.r = 0
	b.w = readable
	return b.buf[b.w : b.w+n]
}

func growCap(old, need int) int {
	c := old
	if c == 0 {
		c = 64
	}
	for c < need {
		c *= 2
	}
	return c
}

// Commit advances the readable region by n bytes following a Prepare call.
func (b *Buffer) Commit(n int) {
	if n < 0 || b.w+n > cap(b.buf) {
		panic("dynbuf: Commit out of range")
	}
	b.w += n
	b.buf = b.buf[:b.w]
}

// Consume discards n bytes from the front of the readable region.
func (b *Buffer) Consume(n int) {
	if n < 0 || n > b.Len() {
		panic("dynbuf: Consume out of range")
	}
	b.r += n
	if b.r == b.w {
		b.r, b.w = 0, 0
		b.buf = b.buf[:0]
	}
}

// Reset empties the buffer without releasing its backing array.
func (b *Buffer) Reset() {
	b.r, b.w = 0, 0
	b.buf = b.buf[:0]
}
