package ws

import (
	"context"
	"testing"

	"github.com/andycostintoma/httpx/internal/dynbuf"
	"github.com/stretchr/testify/require"
)

func TestPMDExtensionOfferNegotiatesServerSide(t *testing.T) {
	params, respExt, err := negotiatePMDServer(
		"permessage-deflate; client_max_window_bits",
		PermessageDeflateConfig{ServerEnable: true},
	)
	require.NoError(t, err)
	require.NotNil(t, params)
	require.Contains(t, respExt, "permessage-deflate")
}

func TestPMDExtensionIgnoredWhenServerDisabled(t *testing.T) {
	params, respExt, err := negotiatePMDServer(
		"permessage-deflate",
		PermessageDeflateConfig{ServerEnable: false},
	)
	require.NoError(t, err)
	require.Nil(t, params)
	require.Empty(t, respExt)
}

func TestCompressedMessageRoundTrip(t *testing.T) {
	pmd := &PMDParams{ServerMaxWindowBits: 15, ClientMaxWindowBits: 15}
	c2s, s2c := newPipePair()
	clientStream := halfDuplex{r: s2c, w: c2s}
	serverStream := halfDuplex{r: c2s, w: s2c}
	client := NewConn(clientStream, RoleClient, DefaultOptions(), pmd)
	server := NewConn(serverStream, RoleServer, DefaultOptions(), pmd)

	ctx := context.Background()
	payload := []byte("the quick brown fox jumps over the lazy dog, repeatedly, the quick brown fox jumps over the lazy dog")
	require.NoError(t, client.Write(ctx, payload))

	dst := dynbuf.New(256)
	op, err := server.Read(ctx, dst)
	require.NoError(t, err)
	require.Equal(t, OpText, op)
	require.Equal(t, string(payload), string(dst.Data()))
}

// TestCompressedContextTakeoverAcrossMessages sends several messages over
// one connection with context takeover enabled (the default -- neither
// *_no_context_takeover flag set) and checks each decodes correctly, the
// behavior review comment #3 found was silently replaced by always
// resetting per message.
func TestCompressedContextTakeoverAcrossMessages(t *testing.T) {
	pmd := &PMDParams{ServerMaxWindowBits: 15, ClientMaxWindowBits: 15}
	c2s, s2c := newPipePair()
	clientStream := halfDuplex{r: s2c, w: c2s}
	serverStream := halfDuplex{r: c2s, w: s2c}
	client := NewConn(clientStream, RoleClient, DefaultOptions(), pmd)
	server := NewConn(serverStream, RoleServer, DefaultOptions(), pmd)

	ctx := context.Background()
	messages := []string{
		"the quick brown fox jumps over the lazy dog",
		"the quick brown fox jumps over the lazy dog again",
		"a third message sharing a lot of the same words: the quick brown fox",
	}
	var firstComp *pmdCompressor
	var firstDecomp *pmdDecompressor
	for _, m := range messages {
		require.NoError(t, client.Write(ctx, []byte(m)))
		dst := dynbuf.New(256)
		op, err := server.Read(ctx, dst)
		require.NoError(t, err)
		require.Equal(t, OpText, op)
		require.Equal(t, m, string(dst.Data()))
		if firstComp == nil {
			firstComp, firstDecomp = client.compressor, server.decompressor
		}
	}
	// The same persistent compressor/decompressor pair should have been
	// reused across all three messages rather than rebuilt per message.
	require.NotNil(t, client.compressor)
	require.NotNil(t, server.decompressor)
	require.Same(t, firstComp, client.compressor)
	require.Same(t, firstDecomp, server.decompressor)
}

// TestCompressedNoContextTakeoverAcrossMessages exercises the opposite
// negotiated flag: each message must decode independently with no carried
// dictionary.
func TestCompressedNoContextTakeoverAcrossMessages(t *testing.T) {
	pmd := &PMDParams{
		ServerMaxWindowBits: 15, ClientMaxWindowBits: 15,
		ClientNoContextTakeover: true, ServerNoContextTakeover: true,
	}
	c2s, s2c := newPipePair()
	clientStream := halfDuplex{r: s2c, w: c2s}
	serverStream := halfDuplex{r: c2s, w: s2c}
	client := NewConn(clientStream, RoleClient, DefaultOptions(), pmd)
	server := NewConn(serverStream, RoleServer, DefaultOptions(), pmd)

	ctx := context.Background()
	for _, m := range []string{"first message", "second, unrelated message"} {
		require.NoError(t, client.Write(ctx, []byte(m)))
		dst := dynbuf.New(256)
		op, err := server.Read(ctx, dst)
		require.NoError(t, err)
		require.Equal(t, OpText, op)
		require.Equal(t, m, string(dst.Data()))
	}
	require.Nil(t, client.compressor.dict)
	require.Nil(t, server.decompressor.dict)
}
