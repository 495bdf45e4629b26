package ws

import (
	"context"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/andycostintoma/httpx/internal/dynbuf"
)

// Role identifies which end of the connection this engine drives: it
// controls masking (clients mask outgoing frames, servers never do; each
// side rejects incoming frames with the wrong mask bit) and which side's
// negotiated permessage-deflate parameters apply to each direction.
type Role int

const (
	RoleClient Role = iota
	RoleServer
)

// Stream is the byte-stream collaborator the WebSocket engine reads and
// writes through, out of scope per spec.md §1. Unlike httpwire.Stream (write
// only, for the HTTP write engine), this adds ReadSome because WS connections
// are full-duplex.
type Stream interface {
	ReadSome(ctx context.Context, buf []byte) (n int, err error)
	WriteSome(ctx context.Context, bufs [][]byte) (n int, err error)
}

// NetStream adapts a net.Conn to Stream for callers driving the engine over
// real TCP (or TLS) connections.
type NetStream struct {
	Conn net.Conn
}

func (s NetStream) ReadSome(ctx context.Context, buf []byte) (int, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	default:
	}
	return s.Conn.Read(buf)
}

func (s NetStream) WriteSome(ctx context.Context, bufs [][]byte) (int, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	default:
	}
	for _, b := range bufs {
		if len(b) == 0 {
			continue
		}
		return s.Conn.Write(b)
	}
	return 0, nil
}

// Options is the configurable-options set from spec.md §6.
type Options struct {
	AutoFragment    bool
	MessageType     Opcode // OpText or OpBinary; default OpText
	ReadBufferSize  int    // default 4096
	ReadMessageMax  int64  // 0 = unlimited
	WriteBufferSize int    // default 4096; auto-fragmentation threshold
	PMD             *PermessageDeflateConfig
	PingCallback    func(isPong bool, payload []byte)
}

// DefaultOptions returns the recommended defaults. NewConn fills an unset
// MessageType, ReadBufferSize or WriteBufferSize with these values;
// AutoFragment is taken as given, so a zero Options leaves it off.
func DefaultOptions() Options {
	return Options{
		AutoFragment:    true,
		MessageType:     OpText,
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}
}

func (o *Options) applyDefaults() {
	if o.MessageType == 0 {
		o.MessageType = OpText
	}
	if o.ReadBufferSize <= 0 {
		o.ReadBufferSize = 4096
	}
	if o.WriteBufferSize <= 0 {
		o.WriteBufferSize = 4096
	}
}

// Conn is a live WebSocket connection: one read side and one write side
// sharing a Stream, coordinated by writeMu per spec.md §5 so engine-
// generated control frames (pong, close) never interleave with an
// in-flight user write.
type Conn struct {
	id     uuid.UUID
	log    zerolog.Logger
	stream Stream
	role   Role
	opt    Options
	pmd    *PMDParams

	// read side -- only one Read may be outstanding, so no lock needed.
	readRaw      *dynbuf.Buffer // undecoded bytes fresh off the stream
	fragOpcode   Opcode
	inFragment   bool
	utf8         utf8Validator
	decompressor *pmdDecompressor

	// write side.
	writeMu     sync.Mutex
	compressor  *pmdCompressor
	ctrlMu      sync.Mutex
	pendingCtrl [][]byte // control frames queued while a user write held writeMu

	closeMu     sync.Mutex
	sentClose   bool
	recvClose   bool
	closeCode   uint16
	closeReason string
}

// NewConn constructs a Conn over an already-upgraded stream. pmd is the
// negotiated parameters from the handshake, nil if permessage-deflate
// wasn't negotiated.
func NewConn(stream Stream, role Role, opt Options, pmd *PMDParams) *Conn {
	opt.applyDefaults()
	id := uuid.New()
	return &Conn{
		id:      id,
		log:     zerolog.Nop().With().Str("conn", id.String()).Logger(),
		stream:  stream,
		role:    role,
		opt:     opt,
		pmd:     pmd,
		readRaw: dynbuf.New(opt.ReadBufferSize),
	}
}

// ID returns the connection's unique identifier, generated at construction.
// Useful for correlating log lines across the read and write sides.
func (c *Conn) ID() uuid.UUID {
	return c.id
}

// SetLogger attaches a logger for connection lifecycle events (close frames
// sent and received, at debug level). The default is a no-op logger so callers that don't
// care about diagnostics pay nothing for them.
func (c *Conn) SetLogger(log zerolog.Logger) {
	c.log = log.With().Str("conn", c.id.String()).Logger()
}

// SetPingCallback installs (or replaces) the ping/pong callback invoked
// synchronously during Read, per spec.md §6's "ping/pong callback" exposed
// interface. Supplemented beyond the distilled spec.md's listed Conn
// fields, which name the callback but not a setter.
func (c *Conn) SetPingCallback(fn func(isPong bool, payload []byte)) {
	c.opt.PingCallback = fn
}

// SetWriteBufferSize adjusts the auto-fragmentation threshold at runtime.
// Supplemented: Options only configures this at construction; some callers
// need to shrink it after discovering a lossy path mid-connection.
func (c *Conn) SetWriteBufferSize(n int) {
	if n > 0 {
		c.writeMu.Lock()
		c.opt.WriteBufferSize = n
		c.writeMu.Unlock()
	}
}

func (c *Conn) isClosed() bool {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	return c.sentClose || c.recvClose
}
