package ws

import (
	"context"
	"sync"
	"testing"

	"github.com/andycostintoma/httpx/internal/dynbuf"
	"github.com/andycostintoma/httpx/internal/wire"
	"github.com/stretchr/testify/require"
)

// pipeStream is an in-memory full-duplex Stream: writes to one end become
// reads on the other, letting tests drive a client Conn and a server Conn
// against each other without real sockets.
type pipeStream struct {
	mu   sync.Mutex
	cond *sync.Cond
	buf  []byte
}

func newPipePair() (a, b *pipeStream) {
	a = &pipeStream{}
	b = &pipeStream{}
	a.cond = sync.NewCond(&a.mu)
	b.cond = sync.NewCond(&b.mu)
	return a, b
}

func (s *pipeStream) WriteSome(ctx context.Context, bufs [][]byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range bufs {
		s.buf = append(s.buf, b...)
		n += len(b)
	}
	s.cond.Broadcast()
	return n, nil
}

func (s *pipeStream) ReadSome(ctx context.Context, buf []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.buf) == 0 {
		s.cond.Wait()
	}
	n := copy(buf, s.buf)
	s.buf = s.buf[n:]
	return n, nil
}

// halfDuplex pairs a write-only side of one pipe with a read-only side of
// the other, so conn A's writes land in conn B's reads and vice versa.
type halfDuplex struct {
	r *pipeStream
	w *pipeStream
}

func (h halfDuplex) ReadSome(ctx context.Context, buf []byte) (int, error) {
	return h.r.ReadSome(ctx, buf)
}
func (h halfDuplex) WriteSome(ctx context.Context, bufs [][]byte) (int, error) {
	return h.w.WriteSome(ctx, bufs)
}

func newConnPair() (client, server *Conn) {
	c2s, s2c := newPipePair()
	clientStream := halfDuplex{r: s2c, w: c2s}
	serverStream := halfDuplex{r: c2s, w: s2c}
	client = NewConn(clientStream, RoleClient, DefaultOptions(), nil)
	server = NewConn(serverStream, RoleServer, DefaultOptions(), nil)
	return client, server
}

func TestTextMessageRoundTrip(t *testing.T) {
	client, server := newConnPair()
	ctx := context.Background()

	require.NoError(t, client.Write(ctx, []byte("Hello")))

	dst := dynbuf.New(64)
	op, err := server.Read(ctx, dst)
	require.NoError(t, err)
	require.Equal(t, OpText, op)
	require.Equal(t, "Hello", string(dst.Data()))
}

func TestBinaryMessageSurvivesFragmentation(t *testing.T) {
	client, server := newConnPair()
	client.SetWriteBufferSize(4)
	ctx := context.Background()

	payload := []byte("0123456789abcdef")
	require.NoError(t, client.WriteOpcode(ctx, OpBinary, payload))

	dst := dynbuf.New(64)
	op, err := server.Read(ctx, dst)
	require.NoError(t, err)
	require.Equal(t, OpBinary, op)
	require.Equal(t, string(payload), string(dst.Data()))
}

func TestCloseHandshakeScenario6(t *testing.T) {
	client, server := newConnPair()
	ctx := context.Background()

	require.NoError(t, client.Close(ctx, CloseNormal, "bye"))

	dst := dynbuf.New(64)
	_, err := server.Read(ctx, dst)
	require.ErrorIs(t, err, wire.ErrClosed)

	code, reason, received := server.CloseReason()
	require.True(t, received)
	require.Equal(t, CloseNormal, code)
	require.Equal(t, "bye", reason)
}

func TestSingleFrameTruncatedUTF8IsProtocolError(t *testing.T) {
	client, server := newConnPair()
	ctx := context.Background()

	// A lone 0xE2 starts a valid 3-byte UTF-8 sequence but never completes
	// it. Sent as a single FIN=1 text frame, this must fail at frame
	// completion even though fragOpcode never gets set (no continuation
	// frame is involved).
	payload := []byte{0xE2}
	key := [4]byte{1, 2, 3, 4}
	masked := append([]byte(nil), payload...)
	Mask(key, masked)
	hdr := FrameHeader{Fin: true, Opcode: OpText, Masked: true, MaskKey: key, PayloadLen: int64(len(payload))}
	raw := EncodeHeader(nil, hdr)
	raw = append(raw, masked...)

	_, err := client.stream.WriteSome(ctx, [][]byte{raw})
	require.NoError(t, err)

	_, err = server.ReadFrame(ctx, dynbuf.New(64))
	require.Error(t, err)
	k, ok := wire.KindOf(err)
	require.True(t, ok)
	require.Equal(t, wire.Protocol, k)
}

func TestPingTriggersAutopongAndCallback(t *testing.T) {
	client, server := newConnPair()
	ctx := context.Background()

	var gotPong []byte
	var gotIsPong bool
	client.SetPingCallback(func(isPong bool, payload []byte) {
		gotIsPong = isPong
		gotPong = append([]byte(nil), payload...)
	})

	require.NoError(t, server.writeControlFrame(ctx, OpPing, []byte("hi")))

	dst := dynbuf.New(64)
	info, err := client.ReadFrame(ctx, dst)
	require.NoError(t, err)
	require.Equal(t, OpPing, info.Opcode)
	require.False(t, gotIsPong)
	require.Equal(t, "hi", string(gotPong))

	pongInfo, err := server.ReadFrame(ctx, dynbuf.New(64))
	require.NoError(t, err)
	require.Equal(t, OpPong, pongInfo.Opcode)
}
