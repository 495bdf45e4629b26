package ws

import (
	"bytes"
	"context"
	"crypto/rand"

	"github.com/andycostintoma/httpx/internal/wire"
)

// writeRawFrame assembles one complete frame (header + payload, masking the
// payload in place if role is client) and pushes it onto the stream. It
// loops over WriteSome until every byte is accepted -- the one-call-per-
// WriteSome bound from spec.md §4.2 belongs to the HTTP write engine; here
// a frame write is one synchronous call bounded by ctx.
func (c *Conn) writeRawFrame(ctx context.Context, hdr FrameHeader, payload []byte) error {
	if c.role == RoleClient {
		hdr.Masked = true
		if _, err := rand.Read(hdr.MaskKey[:]); err != nil {
			return wire.Wrap(wire.Stream, "generate frame mask key", err)
		}
		Mask(hdr.MaskKey, payload)
	}

	buf := EncodeHeader(make([]byte, 0, HeaderLen(hdr)+len(payload)), hdr)
	buf = append(buf, payload...)

	for len(buf) > 0 {
		n, err := c.stream.WriteSome(ctx, [][]byte{buf})
		if err != nil {
			return wire.Wrap(wire.Stream, "write frame", err)
		}
		buf = buf[n:]
	}
	return nil
}

// writeControlFrame emits a complete control frame, queuing behind any
// in-flight user write by taking writeMu -- the serialization point from
// spec.md §4.6's "at most one in-flight write" invariant, extended to cover
// engine-generated pong/close frames per §4.5.
func (c *Conn) writeControlFrame(ctx context.Context, op Opcode, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.writeRawFrame(ctx, FrameHeader{Fin: true, Opcode: op, PayloadLen: int64(len(payload))}, payload)
}

// Write sends p as one complete message using the configured message type
// (text or binary), auto-fragmenting into frames no larger than
// WriteBufferSize when AutoFragment is set, and deflating when
// permessage-deflate is negotiated.
func (c *Conn) Write(ctx context.Context, p []byte) error {
	return c.WriteOpcode(ctx, c.opt.MessageType, p)
}

// WriteOpcode is Write with an explicit opcode, letting callers send binary
// even when MessageType defaults to text (or vice versa) without mutating
// shared Options.
func (c *Conn) WriteOpcode(ctx context.Context, op Opcode, p []byte) error {
	if c.isClosed() {
		return wire.ErrClosed
	}
	if op.IsControl() {
		return wire.New(wire.InvalidArgument, "WriteOpcode requires a data opcode")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	rsv1 := false
	payload := p
	if c.pmd != nil {
		if c.compressor == nil {
			level := 0
			if c.opt.PMD != nil {
				level = c.opt.PMD.CompLevel
			}
			maxBits := c.pmd.ServerMaxWindowBits
			noCtx := c.pmd.ServerNoContextTakeover
			if c.role == RoleClient {
				maxBits = c.pmd.ClientMaxWindowBits
				noCtx = c.pmd.ClientNoContextTakeover
			}
			c.compressor = newPMDCompressor(level, maxBits, noCtx)
		}
		var out bytes.Buffer
		if err := c.compressor.compress(&out, p); err != nil {
			return err
		}
		payload = out.Bytes()
		rsv1 = true
	}

	if err := c.flushPendingControlLocked(ctx); err != nil {
		return err
	}

	threshold := c.opt.WriteBufferSize
	if !c.opt.AutoFragment || threshold <= 0 || len(payload) <= threshold {
		return c.writeRawFrame(ctx, FrameHeader{
			Fin: true, RSV1: rsv1, Opcode: op, PayloadLen: int64(len(payload)),
		}, payload)
	}

	for off := 0; off < len(payload); off += threshold {
		end := off + threshold
		if end > len(payload) {
			end = len(payload)
		}
		frameOp := op
		if off > 0 {
			frameOp = OpContinuation
		}
		fin := end == len(payload)
		chunk := payload[off:end]
		hdr := FrameHeader{Fin: fin, Opcode: frameOp, PayloadLen: int64(len(chunk))}
		if off == 0 {
			hdr.RSV1 = rsv1
		}
		if err := c.writeRawFrame(ctx, hdr, chunk); err != nil {
			return err
		}
	}
	return nil
}

// WriteFrame sends a single fragment with an explicit FIN bit, for callers
// that want to stream a message incrementally rather than hand Write a
// fully-assembled payload. Compression is not applied per-fragment here:
// permessage-deflate frames the whole message through one deflate stream,
// which requires the caller to use Write for compressed sends.
func (c *Conn) WriteFrame(ctx context.Context, op Opcode, fin bool, payload []byte) error {
	if c.isClosed() {
		return wire.ErrClosed
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.flushPendingControlLocked(ctx); err != nil {
		return err
	}
	return c.writeRawFrame(ctx, FrameHeader{Fin: fin, Opcode: op, PayloadLen: int64(len(payload))}, payload)
}

// flushPendingControlLocked emits any control frames the read side queued
// while a user write held writeMu. Caller must hold writeMu.
func (c *Conn) flushPendingControlLocked(ctx context.Context) error {
	c.ctrlMu.Lock()
	pending := c.pendingCtrl
	c.pendingCtrl = nil
	c.ctrlMu.Unlock()

	for _, frame := range pending {
		for len(frame) > 0 {
			n, err := c.stream.WriteSome(ctx, [][]byte{frame})
			if err != nil {
				return wire.Wrap(wire.Stream, "flush queued control frame", err)
			}
			frame = frame[n:]
		}
	}
	return nil
}

// sendOrQueueControl emits a control frame immediately if the write mutex
// is free, or stages it for the next writeMu holder to flush otherwise --
// the read path's half of spec.md §4.5's "acquires the write mutex to
// serialize with user data writes; if a user write is in flight the pong is
// queued" rule.
func (c *Conn) sendOrQueueControl(ctx context.Context, op Opcode, payload []byte) error {
	if c.writeMu.TryLock() {
		defer c.writeMu.Unlock()
		if err := c.flushPendingControlLocked(ctx); err != nil {
			return err
		}
		return c.writeRawFrame(ctx, FrameHeader{Fin: true, Opcode: op, PayloadLen: int64(len(payload))}, payload)
	}

	hdr := FrameHeader{Fin: true, Opcode: op, PayloadLen: int64(len(payload))}
	if c.role == RoleClient {
		hdr.Masked = true
		_, _ = rand.Read(hdr.MaskKey[:])
		Mask(hdr.MaskKey, payload)
	}
	buf := EncodeHeader(make([]byte, 0, HeaderLen(hdr)+len(payload)), hdr)
	buf = append(buf, payload...)

	c.ctrlMu.Lock()
	c.pendingCtrl = append(c.pendingCtrl, buf)
	c.ctrlMu.Unlock()
	return nil
}
