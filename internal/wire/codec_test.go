package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCipherRoundTrip(t *testing.T) {
	original := []byte("the quick brown fox jumps over four racers")
	buf := append([]byte(nil), original...)

	c := NewCipher()
	c.Apply(buf)
	require.NotEqual(t, original, buf)
	c2 := NewCipher()
	c2.Apply(buf)
	require.Equal(t, original, buf)
}

func TestCipherSeedRotation(t *testing.T) {
	buf := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	c := NewCipher()
	c.SetSeed([4]byte{1, 1, 1, 1})
	c.Apply(buf)
	require.Equal(t, []byte{0, 3, 2, 5, 4, 7, 6, 9}, buf)
}

func TestReaderWriterRoundTrip(t *testing.T) {
	w := NewWriter()
	w.U8(7)
	w.U16(1234)
	w.U32(567890)
	w.String("hello")
	w.F32(3.5)

	r := NewReader(w.Payload())
	u8, err := r.U8()
	require.NoError(t, err)
	require.EqualValues(t, 7, u8)

	u16, err := r.U16()
	require.NoError(t, err)
	require.EqualValues(t, 1234, u16)

	u32, err := r.U32()
	require.NoError(t, err)
	require.EqualValues(t, 567890, u32)

	s, err := r.String()
	require.NoError(t, err)
	require.Equal(t, "hello", s)

	f, err := r.F32()
	require.NoError(t, err)
	require.Equal(t, float32(3.5), f)

	require.Zero(t, r.Remaining())
}

func TestReaderTruncated(t *testing.T) {
	r := NewReader([]byte{1, 2})
	_, err := r.U32()
	require.ErrorIs(t, err, ErrTruncated)
}

func TestFrameRoundTrip(t *testing.T) {
	payload := NewWriter()
	payload.String("u")
	payload.String("t")

	cipher := NewCipher()
	frame, err := EncodeFrame(1, 0, payload.Payload(), cipher)
	require.NoError(t, err)

	var header [HeaderSize]byte
	copy(header[:], frame[:HeaderSize])
	id, length, err := DecodeFrameHeader(header)
	require.NoError(t, err)
	require.EqualValues(t, 1, id)
	require.EqualValues(t, len(payload.Payload()), length)

	body := append([]byte(nil), frame[HeaderSize:HeaderSize+int(length)]...)
	decipher := NewCipher()
	decipher.Apply(body)
	require.Equal(t, payload.Payload(), body)
}

func TestFrameRejectsOversizedPayload(t *testing.T) {
	oversized := make([]byte, MaxPayloadLength+1)
	_, err := EncodeFrame(1, 0, oversized, NewCipher())
	require.ErrorIs(t, err, ErrFraming)
}
