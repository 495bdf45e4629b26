package ws

import (
	"bytes"
	"context"

	"github.com/andycostintoma/httpx/internal/dynbuf"
	"github.com/andycostintoma/httpx/internal/wire"
)

// FrameInfo is what ReadFrame reports about the frame it just decoded, per
// spec.md §4.5's `read_frame(buffer) -> frame_info{opcode,fin}`.
type FrameInfo struct {
	Opcode Opcode
	Fin    bool
	// MessageOpcode is the data-message opcode this frame belongs to: equal
	// to Opcode except on a continuation frame, where it's the opcode the
	// fragmented message started with.
	MessageOpcode Opcode
}

// ensureHeader blocks reading from the stream until readRaw holds a
// complete frame header (and its mask key, if present), then returns the
// decoded header and its byte length without consuming it from readRaw --
// callers consume once they know how much payload follows.
func (c *Conn) ensureHeader(ctx context.Context) (FrameHeader, int, error) {
	for {
		if h, n, ok, err := DecodeHeader(c.readRaw.Data()); err != nil {
			return h, 0, err
		} else if ok {
			if c.role == RoleServer && !h.Masked {
				return h, 0, wire.New(wire.Protocol, "server received an unmasked frame")
			}
			if c.role == RoleClient && h.Masked {
				return h, 0, wire.New(wire.Protocol, "client received a masked frame")
			}
			return h, n, nil
		}
		if err := c.fillMore(ctx); err != nil {
			return FrameHeader{}, 0, err
		}
	}
}

// fillMore reads more bytes from the stream into readRaw.
func (c *Conn) fillMore(ctx context.Context) error {
	buf := c.readRaw.Prepare(c.opt.ReadBufferSize)
	n, err := c.stream.ReadSome(ctx, buf)
	if n > 0 {
		c.readRaw.Commit(n)
	}
	if err != nil {
		return wire.Wrap(wire.Stream, "read frame bytes", err)
	}
	if n == 0 {
		return wire.Wrap(wire.Stream, "read frame bytes", errEOF{})
	}
	return nil
}

type errEOF struct{}

func (errEOF) Error() string { return "EOF" }

// ensurePayload blocks until at least n bytes of payload follow the header
// in readRaw.
func (c *Conn) ensurePayload(ctx context.Context, headerLen int, n int64) error {
	for int64(c.readRaw.Len()-headerLen) < n {
		if err := c.fillMore(ctx); err != nil {
			return err
		}
	}
	return nil
}

// ReadFrame reads and fully consumes exactly one frame from the stream,
// handling control frames internally (autopong, close mirroring, ping
// callback) and appending data-frame payload to dst. It also enforces the
// fragmentation sequence and validates UTF-8 for text messages across
// frames; Read calls it in a loop until a FIN data frame arrives.
func (c *Conn) ReadFrame(ctx context.Context, dst *dynbuf.Buffer) (FrameInfo, error) {
	if c.isClosed() {
		return FrameInfo{}, wire.ErrClosed
	}

	hdr, headerLen, err := c.ensureHeader(ctx)
	if err != nil {
		return FrameInfo{}, err
	}
	if err := c.ensurePayload(ctx, headerLen, hdr.PayloadLen); err != nil {
		return FrameInfo{}, err
	}

	payload := make([]byte, hdr.PayloadLen)
	copy(payload, c.readRaw.Data()[headerLen:headerLen+int(hdr.PayloadLen)])
	c.readRaw.Consume(headerLen + int(hdr.PayloadLen))

	if hdr.Masked {
		Mask(hdr.MaskKey, payload)
	}

	if hdr.Opcode.IsControl() {
		if err := c.handleControlFrame(ctx, hdr, payload); err != nil {
			return FrameInfo{}, err
		}
		return FrameInfo{Opcode: hdr.Opcode, Fin: true}, nil
	}

	if err := c.validateDataFrameSequencing(hdr); err != nil {
		return FrameInfo{}, err
	}

	if hdr.RSV1 {
		if c.pmd == nil {
			return FrameInfo{}, wire.New(wire.Protocol, "RSV1 set without negotiated permessage-deflate")
		}
		if hdr.Opcode == OpContinuation {
			return FrameInfo{}, wire.New(wire.Protocol, "RSV1 set on a continuation frame")
		}
		if c.decompressor == nil {
			noCtx := c.pmd.ClientNoContextTakeover
			if c.role == RoleClient {
				noCtx = c.pmd.ServerNoContextTakeover
			}
			c.decompressor = newPMDDecompressor(noCtx)
		}
		var out bytes.Buffer
		if err := c.decompressor.decompress(&out, payload); err != nil {
			return FrameInfo{}, err
		}
		payload = out.Bytes()
	}

	if c.opt.ReadMessageMax > 0 && int64(dst.Len())+int64(len(payload)) > c.opt.ReadMessageMax {
		return FrameInfo{}, wire.New(wire.Protocol, "message exceeds read_message_max")
	}

	buf := dst.Prepare(len(payload))
	copy(buf, payload)
	dst.Commit(len(payload))

	if hdr.Opcode == OpText || (hdr.Opcode == OpContinuation && c.fragOpcode == OpText) {
		if !c.utf8.write(payload) {
			return FrameInfo{}, wire.New(wire.Protocol, "invalid UTF-8 in text message")
		}
	}

	msgOp := hdr.Opcode
	if hdr.Opcode == OpContinuation {
		msgOp = c.fragOpcode
	}

	if hdr.Fin {
		if (hdr.Opcode == OpText || c.fragOpcode == OpText) && !c.utf8.complete() {
			c.resetFragmentState()
			return FrameInfo{}, wire.New(wire.Protocol, "text message ends mid UTF-8 sequence")
		}
		c.resetFragmentState()
	}

	return FrameInfo{Opcode: hdr.Opcode, Fin: hdr.Fin, MessageOpcode: msgOp}, nil
}

func (c *Conn) resetFragmentState() {
	c.inFragment = false
	c.fragOpcode = 0
	c.utf8 = utf8Validator{}
}

// validateDataFrameSequencing enforces spec.md §4.4's fragmentation rule:
// continuation is valid only mid-message; a non-continuation data opcode
// mid-message is invalid.
func (c *Conn) validateDataFrameSequencing(hdr FrameHeader) error {
	if hdr.Opcode == OpContinuation {
		if !c.inFragment {
			return wire.New(wire.Protocol, "continuation frame without a prior fragmented message")
		}
		if hdr.Fin {
			c.inFragment = false
		}
		return nil
	}
	if c.inFragment {
		return wire.New(wire.Protocol, "new data frame opcode while a fragmented message is in progress")
	}
	if !hdr.Fin {
		c.inFragment = true
		c.fragOpcode = hdr.Opcode
	}
	return nil
}

// handleControlFrame implements spec.md §4.5 step 2: ping triggers an
// autopong plus the ping callback; pong just triggers the callback; close
// records the reason, mirrors a close frame if not already sent, and
// surfaces wire.ErrClosed.
func (c *Conn) handleControlFrame(ctx context.Context, hdr FrameHeader, payload []byte) error {
	switch hdr.Opcode {
	case OpPing:
		if c.opt.PingCallback != nil {
			c.opt.PingCallback(false, payload)
		}
		return c.sendOrQueueControl(ctx, OpPong, append([]byte(nil), payload...))

	case OpPong:
		if c.opt.PingCallback != nil {
			c.opt.PingCallback(true, payload)
		}
		return nil

	case OpClose:
		code, reason, err := parseClosePayload(payload)
		if err != nil {
			return err
		}
		c.log.Debug().Uint16("code", code).Str("reason", reason).Msg("received close frame")
		c.closeMu.Lock()
		alreadySent := c.sentClose
		c.recvClose = true
		c.closeCode = code
		c.closeReason = reason
		c.closeMu.Unlock()

		if !alreadySent {
			mirrorCode := code
			if mirrorCode == 0 {
				mirrorCode = CloseNormal
			}
			if err := c.mirrorClose(ctx, mirrorCode, ""); err != nil {
				return err
			}
		}
		return wire.ErrClosed

	default:
		return wire.New(wire.Protocol, "unhandled control opcode")
	}
}

// Read reads one complete message (looping over ReadFrame across
// continuation frames) and appends its payload to dst, returning the
// message's opcode. wire.ErrClosed propagates once a close has been sent or
// received, per spec.md §4.5's cancellation rule.
func (c *Conn) Read(ctx context.Context, dst *dynbuf.Buffer) (Opcode, error) {
	for {
		info, err := c.ReadFrame(ctx, dst)
		if err != nil {
			return 0, err
		}
		if info.Opcode.IsControl() {
			continue
		}
		if info.Fin {
			return info.MessageOpcode, nil
		}
	}
}
