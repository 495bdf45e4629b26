package ws

import (
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"strings"

	"github.com/andycostintoma/httpx/httpwire"
	"github.com/andycostintoma/httpx/internal/httpx"
	"github.com/andycostintoma/httpx/internal/wire"
)

// acceptGUID is the fixed GUID RFC 6455 §1.3 concatenates onto the client's
// nonce before hashing.
const acceptGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// acceptKey derives Sec-WebSocket-Accept from a client's Sec-WebSocket-Key.
func acceptKey(clientKey string) string {
	sum := sha1.Sum([]byte(clientKey + acceptGUID))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// newClientKey generates a fresh 16-byte nonce, base64-encoded, for
// Sec-WebSocket-Key.
func newClientKey() (string, error) {
	var nonce [16]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", wire.Wrap(wire.Stream, "generate handshake nonce", err)
	}
	return base64.StdEncoding.EncodeToString(nonce[:]), nil
}

// hasToken reports whether header contains token as a comma-separated,
// case-insensitive entry -- e.g. Connection: "keep-alive, Upgrade".
func hasToken(header, token string) bool {
	for _, part := range strings.Split(header, ",") {
		if strings.EqualFold(strings.TrimSpace(part), token) {
			return true
		}
	}
	return false
}

// ClientHandshake holds the state the client needs to remember to validate
// the server's response once it arrives.
type ClientHandshake struct {
	Request  *httpwire.Message
	wantAccept string
	pmd        *pmdOffer
}

// ClientOptions configures an outbound handshake request.
type ClientOptions struct {
	Host       string
	Target     string
	Extra      func(h httpwire.Header) // request decorator
	PMD        *PermessageDeflateConfig
}

// NewClientHandshake builds the upgrade request described in spec.md §4.3.
// The caller sends Request via httpwire's write engine, reads back a
// response, and passes it to ValidateServerResponse.
func NewClientHandshake(opt ClientOptions) (*ClientHandshake, error) {
	key, err := newClientKey()
	if err != nil {
		return nil, err
	}

	msg := httpwire.NewRequest("GET", opt.Target, 11, httpwire.EmptyBody{})
	msg.Header.Set("Host", opt.Host)
	msg.Header.Set("Upgrade", "websocket")
	msg.Header.Set("Connection", "Upgrade")
	msg.Header.Set("Sec-WebSocket-Version", "13")
	msg.Header.Set("Sec-WebSocket-Key", key)

	var offer *pmdOffer
	if opt.PMD != nil && opt.PMD.ClientEnable {
		offer = newPMDOffer(*opt.PMD)
		msg.Header.Set("Sec-WebSocket-Extensions", offer.String())
	}

	if opt.Extra != nil {
		opt.Extra(msg.Header)
	}

	return &ClientHandshake{Request: msg, wantAccept: acceptKey(key), pmd: offer}, nil
}

// ValidateServerResponse checks resp against the handshake's expectations
// and returns the negotiated permessage-deflate parameters, if any.
func (c *ClientHandshake) ValidateServerResponse(resp *httpx.Response) (*PMDParams, error) {
	if resp.StatusCode != 101 {
		return nil, wire.New(wire.Protocol, "handshake: expected status 101")
	}
	if !hasToken(resp.Header.Get("Upgrade"), "websocket") {
		return nil, wire.New(wire.Protocol, "handshake: missing Upgrade: websocket")
	}
	if !hasToken(resp.Header.Get("Connection"), "upgrade") {
		return nil, wire.New(wire.Protocol, "handshake: missing Connection: upgrade")
	}
	if resp.Header.Get("Sec-WebSocket-Accept") != c.wantAccept {
		return nil, wire.New(wire.Protocol, "handshake: Sec-WebSocket-Accept mismatch")
	}

	var params *PMDParams
	if c.pmd != nil {
		if ext := resp.Header.Get("Sec-WebSocket-Extensions"); ext != "" {
			p, err := parsePMDResponse(ext, *c.pmd)
			if err != nil {
				return nil, err
			}
			params = p
		}
	}
	return params, nil
}

// ServerOptions configures how Accept validates and responds to an
// upgrade request.
type ServerOptions struct {
	PMD   *PermessageDeflateConfig
	Extra func(h httpwire.Header) // response decorator, applied after reserved fields
}

// Accept validates req per spec.md §4.3 and returns the response message to
// send (101 on success, 400 with a descriptive reason on failure) along
// with the negotiated permessage-deflate parameters (nil if not
// negotiated). The returned error is non-nil exactly when the response is
// the 400 path; callers still send the returned message either way.
func Accept(req *httpx.Request, opt ServerOptions) (*httpwire.Message, *PMDParams, error) {
	fail := func(reason string) (*httpwire.Message, *PMDParams, error) {
		resp := httpwire.NewResponse(400, 11, httpwire.StringBody(reason))
		if err := httpwire.Prepare(resp); err != nil {
			return resp, nil, wire.Wrap(wire.Protocol, "handshake reject", err)
		}
		return resp, nil, wire.New(wire.Protocol, reason)
	}

	if req.Method != "GET" {
		return fail("method must be GET")
	}
	if req.ProtoMajor != 1 || req.ProtoMinor < 1 {
		return fail("version must be HTTP/1.1 or later")
	}
	if req.Host == "" {
		return fail("Host header required")
	}
	if !hasToken(req.Header.Get("Upgrade"), "websocket") {
		return fail("Upgrade: websocket required")
	}
	if !hasToken(req.Header.Get("Connection"), "upgrade") {
		return fail("Connection: upgrade required")
	}
	key := req.Header.Get("Sec-WebSocket-Key")
	if key == "" {
		return fail("Sec-WebSocket-Key required")
	}
	if req.Header.Get("Sec-WebSocket-Version") != "13" {
		return fail("Sec-WebSocket-Version must be 13")
	}

	var params *PMDParams
	resp := httpwire.NewResponse(101, 11, httpwire.EmptyBody{})
	resp.Header.Set("Upgrade", "websocket")
	resp.Header.Set("Sec-WebSocket-Accept", acceptKey(key))

	if offer := req.Header.Get("Sec-WebSocket-Extensions"); offer != "" && opt.PMD != nil && opt.PMD.ServerEnable {
		negotiated, respExt, err := negotiatePMDServer(offer, *opt.PMD)
		if err == nil && negotiated != nil {
			resp.Header.Set("Sec-WebSocket-Extensions", respExt)
			params = negotiated
		}
	}

	if err := httpwire.Prepare(resp, httpwire.OptUpgrade); err != nil {
		return nil, nil, wire.Wrap(wire.Protocol, "prepare handshake response", err)
	}
	if opt.Extra != nil {
		opt.Extra(resp.Header)
	}
	return resp, params, nil
}
