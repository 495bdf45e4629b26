package ws

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/andycostintoma/httpx/internal/wire"
	"github.com/klauspost/compress/flate"
)

// PermessageDeflateConfig is the negotiable surface from spec.md §6.
type PermessageDeflateConfig struct {
	ServerEnable            bool
	ClientEnable            bool
	ServerMaxWindowBits     int // 8-15, default 15
	ClientMaxWindowBits     int // 8-15, default 15
	ServerNoContextTakeover bool
	ClientNoContextTakeover bool
	CompLevel               int
	MemLevel                int // retained for grounding parity with the source's knob set; klauspost/compress has no memLevel equivalent
}

// PMDParams is what Accept/ValidateServerResponse agreed on: the values
// whoever ends up sending data needs to build a compressor/decompressor
// pair with matching context-takeover behavior.
type PMDParams struct {
	ServerMaxWindowBits     int
	ClientMaxWindowBits     int
	ServerNoContextTakeover bool
	ClientNoContextTakeover bool
}

type pmdOffer struct {
	cfg PermessageDeflateConfig
}

func newPMDOffer(cfg PermessageDeflateConfig) *pmdOffer {
	if cfg.ClientMaxWindowBits == 0 {
		cfg.ClientMaxWindowBits = 15
	}
	if cfg.ServerMaxWindowBits == 0 {
		cfg.ServerMaxWindowBits = 15
	}
	return &pmdOffer{cfg: cfg}
}

func (o *pmdOffer) String() string {
	var b strings.Builder
	b.WriteString("permessage-deflate")
	if o.cfg.ClientNoContextTakeover {
		b.WriteString("; client_no_context_takeover")
	}
	if o.cfg.ServerNoContextTakeover {
		b.WriteString("; server_no_context_takeover")
	}
	if o.cfg.ClientMaxWindowBits != 15 {
		fmt.Fprintf(&b, "; client_max_window_bits=%d", o.cfg.ClientMaxWindowBits)
	} else {
		b.WriteString("; client_max_window_bits")
	}
	return b.String()
}

// extensionParams parses one "name; p1=v1; p2" extension offer/response
// entry (the first of possibly several comma-separated alternatives) into
// its bare parameter map.
func extensionParams(entry string) (name string, params map[string]string) {
	parts := strings.Split(entry, ";")
	params = make(map[string]string)
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if i == 0 {
			name = p
			continue
		}
		if p == "" {
			continue
		}
		if eq := strings.IndexByte(p, '='); eq >= 0 {
			k := strings.TrimSpace(p[:eq])
			v := strings.Trim(strings.TrimSpace(p[eq+1:]), `"`)
			params[strings.ToLower(k)] = v
		} else {
			params[strings.ToLower(p)] = ""
		}
	}
	return name, params
}

// negotiatePMDServer parses the client's Sec-WebSocket-Extensions offer and,
// if permessage-deflate is present and acceptable, returns the agreed
// parameters plus the exact extension string to echo back.
func negotiatePMDServer(offerHeader string, cfg PermessageDeflateConfig) (*PMDParams, string, error) {
	for _, entry := range strings.Split(offerHeader, ",") {
		name, params := extensionParams(entry)
		if !strings.EqualFold(name, "permessage-deflate") {
			continue
		}

		p := &PMDParams{ServerMaxWindowBits: 15, ClientMaxWindowBits: 15}
		if cfg.ServerMaxWindowBits != 0 {
			p.ServerMaxWindowBits = cfg.ServerMaxWindowBits
		}
		if cfg.ClientMaxWindowBits != 0 {
			p.ClientMaxWindowBits = cfg.ClientMaxWindowBits
		}
		p.ServerNoContextTakeover = cfg.ServerNoContextTakeover
		p.ClientNoContextTakeover = cfg.ClientNoContextTakeover

		if _, ok := params["client_no_context_takeover"]; ok {
			p.ClientNoContextTakeover = true
		}
		if _, ok := params["server_no_context_takeover"]; ok {
			p.ServerNoContextTakeover = true
		}
		if v, ok := params["client_max_window_bits"]; ok && v != "" {
			bits, err := strconv.Atoi(v)
			if err != nil || bits < 8 || bits > 15 {
				return nil, "", wire.New(wire.Protocol, "invalid client_max_window_bits")
			}
			if bits < p.ClientMaxWindowBits {
				p.ClientMaxWindowBits = bits
			}
		}
		if v, ok := params["server_max_window_bits"]; ok && v != "" {
			bits, err := strconv.Atoi(v)
			if err != nil || bits < 8 || bits > 15 {
				return nil, "", wire.New(wire.Protocol, "invalid server_max_window_bits")
			}
			if bits < p.ServerMaxWindowBits {
				p.ServerMaxWindowBits = bits
			}
		}

		resp := newPMDOffer(PermessageDeflateConfig{
			ClientNoContextTakeover: p.ClientNoContextTakeover,
			ServerNoContextTakeover: p.ServerNoContextTakeover,
			ClientMaxWindowBits:     p.ClientMaxWindowBits,
			ServerMaxWindowBits:     p.ServerMaxWindowBits,
		})
		return p, resp.String(), nil
	}
	return nil, "", nil
}

// parsePMDResponse validates the server's single accepted extension entry
// against what the client offered.
func parsePMDResponse(respHeader string, offer pmdOffer) (*PMDParams, error) {
	name, params := extensionParams(strings.Split(respHeader, ",")[0])
	if !strings.EqualFold(name, "permessage-deflate") {
		return nil, wire.New(wire.Protocol, "server accepted an extension the client did not offer")
	}
	p := &PMDParams{ServerMaxWindowBits: 15, ClientMaxWindowBits: offer.cfg.ClientMaxWindowBits}
	if _, ok := params["client_no_context_takeover"]; ok {
		p.ClientNoContextTakeover = true
	}
	if _, ok := params["server_no_context_takeover"]; ok {
		p.ServerNoContextTakeover = true
	}
	if v, ok := params["server_max_window_bits"]; ok && v != "" {
		bits, err := strconv.Atoi(v)
		if err != nil || bits < 8 || bits > 15 {
			return nil, wire.New(wire.Protocol, "invalid server_max_window_bits in response")
		}
		p.ServerMaxWindowBits = bits
	}
	if v, ok := params["client_max_window_bits"]; ok && v != "" {
		bits, err := strconv.Atoi(v)
		if err == nil && bits >= 8 && bits <= 15 {
			p.ClientMaxWindowBits = bits
		}
	}
	return p, nil
}

// -----------------------------------------------------------------------------
// Compressor/decompressor, grounded on klauspost/compress/flate.
//
// Context takeover (RFC 7692 §7.2.3) means the LZ77 window -- the trailing
// bytes of plaintext a DEFLATE back-reference can point into -- carries
// forward across messages on the same connection instead of resetting to
// empty before each one. klauspost's flate.Writer has no "change
// destination, keep window" Reset variant, so each message is compressed
// with flate.NewWriterDict/NewReaderDict, seeded with the trailing window
// bytes from the previous message when context takeover is in effect (an
// empty dict otherwise, which is exactly "no context takeover" per message).
// -----------------------------------------------------------------------------

// deflateTail is the 4-byte suffix RFC 7692 §7.2.1 says senders must strip
// (and receivers must re-append) around every DEFLATE block boundary.
var deflateTail = []byte{0x00, 0x00, 0xff, 0xff}

// windowTail returns the trailing up-to-max bytes of (prev + fresh),
// the sliding window a context-takeover side carries into its next message.
func windowTail(prev, fresh []byte, max int) []byte {
	if max <= 0 {
		max = 1 << 15
	}
	combined := append(append([]byte(nil), prev...), fresh...)
	if len(combined) > max {
		combined = combined[len(combined)-max:]
	}
	return combined
}

type pmdCompressor struct {
	level             int
	maxWindow         int // bytes, derived from the negotiated *_max_window_bits
	noContextTakeover bool
	dict              []byte // retained sliding window; nil when no-context-takeover
}

// newPMDCompressor builds the compressor this connection's own side (client
// or server) uses for its outgoing messages, per the *_max_window_bits and
// *_no_context_takeover values negotiated for that side in PMDParams.
func newPMDCompressor(level, maxWindowBits int, noContextTakeover bool) *pmdCompressor {
	if level == 0 {
		level = flate.DefaultCompression
	}
	if maxWindowBits <= 0 {
		maxWindowBits = 15
	}
	return &pmdCompressor{level: level, maxWindow: 1 << uint(maxWindowBits), noContextTakeover: noContextTakeover}
}

// compress deflates p into a fresh buffer with the trailing empty
// stored-block/sync-flush marker stripped, per RFC 7692. When context
// takeover is in effect, it seeds the DEFLATE dictionary with the window
// carried over from the previous call and extends it with p afterward.
func (c *pmdCompressor) compress(dst *bytes.Buffer, p []byte) error {
	fw, err := flate.NewWriterDict(dst, c.level, c.dict)
	if err != nil {
		return wire.Wrap(wire.Protocol, "deflate compress", err)
	}
	if _, err := fw.Write(p); err != nil {
		return wire.Wrap(wire.Protocol, "deflate compress", err)
	}
	if err := fw.Flush(); err != nil {
		return wire.Wrap(wire.Protocol, "deflate flush", err)
	}
	b := dst.Bytes()
	if bytes.HasSuffix(b, deflateTail) {
		dst.Truncate(dst.Len() - len(deflateTail))
	}
	if c.noContextTakeover {
		c.dict = nil
	} else {
		c.dict = windowTail(c.dict, p, c.maxWindow)
	}
	return nil
}

// release is a no-op now that compression state lives in c.dict rather than
// a pooled *flate.Writer; kept so Close()'s call site needs no special-casing.
func (c *pmdCompressor) release() {}

type pmdDecompressor struct {
	noContextTakeover bool
	dict              []byte
}

// newPMDDecompressor builds the decompressor for messages arriving from the
// peer, per the *_no_context_takeover value negotiated for the peer's side.
func newPMDDecompressor(noContextTakeover bool) *pmdDecompressor {
	return &pmdDecompressor{noContextTakeover: noContextTakeover}
}

// decompress inflates p (with the RFC 7692 tail re-appended) into dst,
// seeding the dictionary with the window carried over from the previous
// message when context takeover is in effect.
func (d *pmdDecompressor) decompress(dst *bytes.Buffer, p []byte) error {
	src := make([]byte, 0, len(p)+len(deflateTail))
	src = append(src, p...)
	src = append(src, deflateTail...)

	fr := flate.NewReaderDict(bytes.NewReader(src), d.dict)
	defer fr.Close()

	before := dst.Len()
	if _, err := io.Copy(dst, fr); err != nil {
		return wire.Wrap(wire.Protocol, "deflate decompress", err)
	}

	if d.noContextTakeover {
		d.dict = nil
	} else {
		d.dict = windowTail(d.dict, dst.Bytes()[before:], 1<<15)
	}
	return nil
}
