package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"
)

// Error kinds per-frame failures are classified into; see spec §4.1 and §7.
var (
	ErrFraming        = errors.New("wire: malformed frame header")
	ErrTruncated      = errors.New("wire: truncated payload")
	ErrUnknownCommand = errors.New("wire: unknown command id")
)

// HeaderSize is the fixed length, in bytes, of the frame header.
const HeaderSize = 4

// EncodeFrame builds a complete on-wire frame: header plus ciphered
// payload. payload must already hold the plaintext, serialized message
// body; EncodeFrame does not mutate it.
func EncodeFrame(id, jumbo uint16, payload []byte, cipher *Cipher) ([]byte, error) {
	if len(payload) > MaxPayloadLength {
		return nil, ErrFraming
	}
	header := EncodeHeader(id, jumbo, uint16(len(payload)), MaxPayloadLength)

	out := make([]byte, HeaderSize+len(payload))
	binary.LittleEndian.PutUint32(out[:HeaderSize], header)
	copy(out[HeaderSize:], payload)
	cipher.Apply(out[HeaderSize:])
	return out, nil
}

// DecodeFrameHeader parses the 4-byte little-endian header, returning the
// command id (with jumbo folded in, per DecodeCommandID) and the payload
// length the receiver should read next.
func DecodeFrameHeader(raw [HeaderSize]byte) (id uint16, length uint16, err error) {
	header := binary.LittleEndian.Uint32(raw[:])
	l, ok := DecodeLength(header)
	if !ok || l > MaxPayloadLength {
		return 0, 0, ErrFraming
	}
	return DecodeCommandID(header), uint16(l), nil
}

// Reader reads little-endian primitive fields from an already-deciphered
// message payload, in the order a command's wire shape defines them.
type Reader struct {
	r *bytes.Reader
}

// NewReader wraps payload for sequential field reads.
func NewReader(payload []byte) *Reader {
	return &Reader{r: bytes.NewReader(payload)}
}

// Remaining reports how many bytes are left unread.
func (r *Reader) Remaining() int {
	return r.r.Len()
}

func (r *Reader) byte() (byte, error) {
	b, err := r.r.ReadByte()
	if err != nil {
		return 0, ErrTruncated
	}
	return b, nil
}

// U8 reads a single unsigned byte.
func (r *Reader) U8() (uint8, error) {
	b, err := r.byte()
	return uint8(b), err
}

// U16 reads a little-endian uint16.
func (r *Reader) U16() (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(r.r, b[:]); err != nil {
		return 0, ErrTruncated
	}
	return binary.LittleEndian.Uint16(b[:]), nil
}

// U32 reads a little-endian uint32.
func (r *Reader) U32() (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r.r, b[:]); err != nil {
		return 0, ErrTruncated
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

// U64 reads a little-endian uint64.
func (r *Reader) U64() (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r.r, b[:]); err != nil {
		return 0, ErrTruncated
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

// F32 reads a little-endian IEEE-754 single-precision float.
func (r *Reader) F32() (float32, error) {
	v, err := r.U32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

// Bytes reads exactly n raw bytes.
func (r *Reader) Bytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(r.r, b); err != nil {
		return nil, ErrTruncated
	}
	return b, nil
}

// String reads a NUL-terminated ASCII/EUC-KR byte sequence and returns it
// as an opaque Go string without charset conversion; the wire codec never
// interprets string contents.
func (r *Reader) String() (string, error) {
	var buf bytes.Buffer
	for {
		b, err := r.byte()
		if err != nil {
			return "", ErrTruncated
		}
		if b == 0 {
			return buf.String(), nil
		}
		buf.WriteByte(b)
	}
}

// Writer accumulates little-endian primitive fields for a message payload.
type Writer struct {
	buf bytes.Buffer
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer {
	return &Writer{}
}

// U8 writes a single unsigned byte.
func (w *Writer) U8(v uint8) { w.buf.WriteByte(v) }

// U16 writes a little-endian uint16.
func (w *Writer) U16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.buf.Write(b[:])
}

// U32 writes a little-endian uint32.
func (w *Writer) U32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf.Write(b[:])
}

// U64 writes a little-endian uint64.
func (w *Writer) U64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf.Write(b[:])
}

// F32 writes a little-endian IEEE-754 single-precision float.
func (w *Writer) F32(v float32) { w.U32(math.Float32bits(v)) }

// Bytes writes raw bytes verbatim.
func (w *Writer) Bytes(b []byte) { w.buf.Write(b) }

// String writes s followed by a terminating NUL.
func (w *Writer) String(s string) {
	w.buf.WriteString(s)
	w.buf.WriteByte(0)
}

// Payload returns the accumulated payload.
func (w *Writer) Payload() []byte { return w.buf.Bytes() }

// Len reports the number of bytes written so far.
func (w *Writer) Len() int { return w.buf.Len() }
