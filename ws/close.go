package ws

import (
	"context"
	"encoding/binary"
	"unicode/utf8"

	"github.com/andycostintoma/httpx/internal/wire"
)

// Valid close codes per RFC 6455 §7.4. 1005, 1006, 1015 are reserved for
// local use and must never appear on the wire.
const (
	CloseNormal           uint16 = 1000
	CloseGoingAway        uint16 = 1001
	CloseProtocolError    uint16 = 1002
	CloseUnsupportedData  uint16 = 1003
	CloseNoStatus         uint16 = 1005 // local use only
	CloseAbnormal         uint16 = 1006 // local use only
	CloseInvalidPayload   uint16 = 1007
	ClosePolicyViolation  uint16 = 1008
	CloseMessageTooBig    uint16 = 1009
	CloseMandatoryExt     uint16 = 1010
	CloseInternalErr      uint16 = 1011
	CloseTLSHandshakeFail uint16 = 1015 // local use only
)

func closeCodeOnWireValid(code uint16) bool {
	switch code {
	case CloseNoStatus, CloseAbnormal, CloseTLSHandshakeFail:
		return false
	}
	if code < 1000 {
		return false
	}
	if code >= 1000 && code <= 2999 {
		switch {
		case code == 1004, code == 1016, code >= 1017 && code <= 2999:
			return false
		}
		return true
	}
	return code >= 3000 && code <= 4999
}

// parseClosePayload decodes an optional 2-byte big-endian code followed by
// a UTF-8 reason, per spec.md §4.4. An empty payload is valid (no code, no
// reason). A 1-byte payload is a protocol error.
func parseClosePayload(p []byte) (code uint16, reason string, err error) {
	if len(p) == 0 {
		return 0, "", nil
	}
	if len(p) == 1 {
		return 0, "", wire.New(wire.Protocol, "close payload must be 0 or >=2 bytes")
	}
	code = binary.BigEndian.Uint16(p[:2])
	if !closeCodeOnWireValid(code) {
		return 0, "", wire.New(wire.Protocol, "invalid close code")
	}
	reason = string(p[2:])
	if !utf8.ValidString(reason) {
		return 0, "", wire.New(wire.Protocol, "close reason is not valid UTF-8")
	}
	return code, reason, nil
}

func buildClosePayload(code uint16, reason string) []byte {
	if code == 0 {
		return nil
	}
	p := make([]byte, 2+len(reason))
	binary.BigEndian.PutUint16(p, code)
	copy(p[2:], reason)
	return p
}

// markCloseSent atomically flips sentClose, reporting whether this call was
// the one that did so (false if a close frame was already sent).
func (c *Conn) markCloseSent() bool {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.sentClose {
		return false
	}
	c.sentClose = true
	return true
}

// initiateClose sends a close frame if one hasn't been sent yet, recording
// sentClose so subsequent writes are rejected. Used by the local Close()
// path, which blocks on writeMu until the frame is actually written.
func (c *Conn) initiateClose(ctx context.Context, code uint16, reason string) error {
	if !c.markCloseSent() {
		return nil
	}
	c.log.Debug().Uint16("code", code).Str("reason", reason).Msg("sending close frame")
	return c.writeControlFrame(ctx, OpClose, buildClosePayload(code, reason))
}

// mirrorClose sends the close frame mirroring a just-received close, from
// inside Read. Per spec.md §4.5's suspension-point model, a control frame
// generated by the read side is queued behind writeMu rather than blocking
// on it -- unlike initiateClose, which is the user-facing, blocking path.
func (c *Conn) mirrorClose(ctx context.Context, code uint16, reason string) error {
	if !c.markCloseSent() {
		return nil
	}
	c.log.Debug().Uint16("code", code).Str("reason", reason).Msg("sending close frame")
	return c.sendOrQueueControl(ctx, OpClose, buildClosePayload(code, reason))
}

// Close performs the local half of the close handshake: it sends a close
// frame (refusing further user writes from this point) but does not wait
// for the peer's mirroring close or touch the underlying transport, per
// spec.md §4.7 -- closing the stream itself remains the caller's job.
func (c *Conn) Close(ctx context.Context, code uint16, reason string) error {
	err := c.initiateClose(ctx, code, reason)
	c.writeMu.Lock()
	if c.compressor != nil {
		c.compressor.release()
		c.compressor = nil
	}
	c.writeMu.Unlock()
	return err
}

// CloseReason returns the code and reason from the close frame this
// connection has received, if any.
func (c *Conn) CloseReason() (code uint16, reason string, received bool) {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	return c.closeCode, c.closeReason, c.recvClose
}
