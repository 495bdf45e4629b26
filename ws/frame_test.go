package ws

import (
	"testing"

	"github.com/andycostintoma/httpx/internal/wire"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestPayloadLengthEncodingBoundaries(t *testing.T) {
	cases := []struct {
		n          int64
		wantPrefix int // expected byte1 low-7-bit code
		wantLen    int // expected header length (unmasked)
	}{
		{125, 125, 2},
		{126, 126, 4},
		{65535, 126, 4},
		{65536, 127, 10},
	}
	for _, c := range cases {
		h := FrameHeader{Fin: true, Opcode: OpBinary, PayloadLen: c.n}
		enc := EncodeHeader(nil, h)
		require.Equal(t, c.wantLen, len(enc), "n=%d", c.n)
		require.Equal(t, c.wantPrefix, int(enc[1]&0x7F), "n=%d", c.n)

		dec, n, ok, err := DecodeHeader(enc)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, len(enc), n)
		require.Equal(t, c.n, dec.PayloadLen)
	}
}

func TestDecodeHeaderRejectsNonMinimalLength(t *testing.T) {
	// len7=126 but actual extended length is 100 (should have fit in 7 bits).
	buf := []byte{0x82, 126, 0, 100}
	_, _, _, err := DecodeHeader(buf)
	require.Error(t, err)
	k, ok := wire.KindOf(err)
	require.True(t, ok)
	require.Equal(t, wire.Protocol, k)
}

func TestDecodeHeaderIncompleteReturnsNotOkNoError(t *testing.T) {
	h := FrameHeader{Fin: true, Opcode: OpText, PayloadLen: 65536}
	full := EncodeHeader(nil, h)
	for i := 0; i < len(full); i++ {
		_, _, ok, err := DecodeHeader(full[:i])
		require.NoError(t, err)
		require.False(t, ok, "prefix length %d should be incomplete", i)
	}
	_, n, ok, err := DecodeHeader(full)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, len(full), n)
}

func TestControlFrameOver125IsProtocolError(t *testing.T) {
	h := FrameHeader{Fin: true, Opcode: OpPing, PayloadLen: 126}
	enc := EncodeHeader(nil, h)
	_, _, _, err := DecodeHeader(enc)
	require.Error(t, err)
}

func TestFragmentedControlFrameIsProtocolError(t *testing.T) {
	h := FrameHeader{Fin: false, Opcode: OpPing, PayloadLen: 10}
	enc := EncodeHeader(nil, h)
	_, _, _, err := DecodeHeader(enc)
	require.Error(t, err)
}

func TestUnknownOpcodeIsProtocolError(t *testing.T) {
	enc := []byte{0x80 | 0x3, 0x00}
	_, _, _, err := DecodeHeader(enc)
	require.Error(t, err)
}

func TestRSV2RSV3RejectedByDefault(t *testing.T) {
	enc := []byte{0x80 | byte(OpText) | 0x20, 0x00}
	_, _, _, err := DecodeHeader(enc)
	require.Error(t, err)
}

func TestMaskingIsInvolution(t *testing.T) {
	key := [4]byte{0x37, 0xfa, 0x21, 0x3d}
	orig := []byte("Hello, WebSocket world!")
	data := append([]byte(nil), orig...)
	Mask(key, data)
	require.NotEqual(t, orig, data)
	Mask(key, data)
	require.Equal(t, orig, data)
}

func TestEncodeDecodeRoundTripWithMask(t *testing.T) {
	key := [4]byte{1, 2, 3, 4}
	h := FrameHeader{Fin: true, Opcode: OpText, Masked: true, MaskKey: key, PayloadLen: 5}
	enc := EncodeHeader(nil, h)
	payload := []byte("Hello")
	Mask(key, payload)
	wire := append(enc, payload...)

	dec, n, ok, err := DecodeHeader(wire)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, h.Fin, dec.Fin)
	require.Equal(t, h.Opcode, dec.Opcode)
	require.True(t, dec.Masked)
	require.Equal(t, key, dec.MaskKey)
	require.Equal(t, int64(5), dec.PayloadLen)

	body := append([]byte(nil), wire[n:n+5]...)
	Mask(dec.MaskKey, body)
	require.Equal(t, "Hello", string(body))
}

func TestDecodeHeaderRoundTripsEveryField(t *testing.T) {
	want := FrameHeader{
		Fin: true, RSV1: true, Opcode: OpBinary,
		Masked: true, MaskKey: [4]byte{0xde, 0xad, 0xbe, 0xef}, PayloadLen: 70000,
	}
	enc := EncodeHeader(nil, want)
	got, n, ok, err := DecodeHeader(enc)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, len(enc), n)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("header round-trip mismatch (-want +got):\n%s", diff)
	}
}
