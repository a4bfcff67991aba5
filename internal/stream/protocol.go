package stream

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// HeaderSize is the length of the width/height prefix on every binary
// frame message.
const HeaderSize = 8

// Compression names accepted in the ?compression= query parameter.
const (
	CompressionNone = ""
	CompressionZstd = "zstd"
)

// Notice types sent as text messages.
const (
	NoticeDropped = "dropped"
	NoticeError   = "error"
)

// ErrShortMessage is returned for binary messages without a full header.
var ErrShortMessage = errors.New("frame message shorter than header")

// Notice is the JSON text message that reports a skipped or failed frame.
// Neither closes the session.
type Notice struct {
	Type    string `json:"type"`
	Frame   uint64 `json:"frame"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// EncodeHeader writes width and height big-endian into the first
// HeaderSize bytes of dst.
func EncodeHeader(dst []byte, width, height int) {
	binary.BigEndian.PutUint32(dst[0:4], uint32(width))
	binary.BigEndian.PutUint32(dst[4:8], uint32(height))
}

// DecodeFrame splits a binary message into dimensions and pixel bytes. The
// payload aliases msg.
func DecodeFrame(msg []byte) (width, height int, payload []byte, err error) {
	if len(msg) < HeaderSize {
		return 0, 0, nil, fmt.Errorf("%w: %d bytes", ErrShortMessage, len(msg))
	}
	width = int(binary.BigEndian.Uint32(msg[0:4]))
	height = int(binary.BigEndian.Uint32(msg[4:8]))
	return width, height, msg[HeaderSize:], nil
}

// EncodeFrame builds a binary frame message.
func EncodeFrame(width, height int, payload []byte) []byte {
	msg := make([]byte, HeaderSize+len(payload))
	EncodeHeader(msg, width, height)
	copy(msg[HeaderSize:], payload)
	return msg
}

// ParseCompression normalises a compression name.
func ParseCompression(s string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return CompressionNone, nil
	case CompressionZstd:
		return CompressionZstd, nil
	default:
		return "", fmt.Errorf("unsupported compression %q", s)
	}
}

// codec compresses reply payloads. The header always stays raw.
type codec interface {
	encode(width, height int, pixels []byte) []byte
	Close() error
}

type rawCodec struct{}

func (rawCodec) Close() error { return nil }

func (rawCodec) encode(width, height int, pixels []byte) []byte {
	return EncodeFrame(width, height, pixels)
}

// zstdCodec holds one encoder per session.
type zstdCodec struct {
	enc *zstd.Encoder
}

func newZstdCodec() (*zstdCodec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest), zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	return &zstdCodec{enc: enc}, nil
}

func (c *zstdCodec) encode(width, height int, pixels []byte) []byte {
	dst := make([]byte, HeaderSize, HeaderSize+len(pixels)/4)
	EncodeHeader(dst, width, height)
	return c.enc.EncodeAll(pixels, dst)
}

func (c *zstdCodec) Close() error {
	return c.enc.Close()
}

func newCodec(compression string) (codec, error) {
	if compression == CompressionZstd {
		return newZstdCodec()
	}
	return rawCodec{}, nil
}

// DecompressPayload reverses zstd compression of a reply payload. Clients
// use it; the server never receives compressed frames.
func DecompressPayload(payload []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	defer dec.Close()

	out, err := dec.DecodeAll(payload, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decode: %w", err)
	}
	return out, nil
}
