// Package codec implements the serialization and compression strategies
// used by the cache tiers. Values are serialized to canonical JSON before
// compression so the remote tier stays readable by any client.
package codec

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zlib"

	"github.com/stratacache/stratacache/pkg/errors"
)

// Method names a compression strategy.
type Method string

const (
	// MethodNone serializes without compression.
	MethodNone Method = "none"
	// MethodZlib is the deflate-based codec for space-sensitive tiers.
	MethodZlib Method = "zlib"
	// MethodS2 is the fast block codec for latency-sensitive tiers.
	MethodS2 Method = "s2"
)

// ParseMethod validates a configured method name.
func ParseMethod(s string) (Method, error) {
	switch Method(s) {
	case MethodNone, MethodZlib, MethodS2:
		return Method(s), nil
	default:
		return "", errors.Newf(errors.ErrCodeInvalidConfig, "unknown codec %q", s)
	}
}

// Codec compresses and decompresses cache values with a fixed method.
type Codec struct {
	method Method
}

// New creates a codec for the given method.
func New(method Method) Codec {
	return Codec{method: method}
}

// Method returns the codec's method.
func (c Codec) Method() Method {
	return c.method
}

// Compress serializes value to canonical JSON and applies the codec's
// compression. originalSize is the serialized length before compression;
// for MethodNone the payload is the serialization itself.
func (c Codec) Compress(value interface{}) (payload []byte, originalSize int64, err error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, 0, errors.New(errors.ErrCodeSerializationFailed, "value not serializable").WithCause(err)
	}

	switch c.method {
	case MethodNone:
		return raw, int64(len(raw)), nil
	case MethodZlib:
		var buf bytes.Buffer
		zw := zlib.NewWriter(&buf)
		if _, err := zw.Write(raw); err != nil {
			return nil, 0, errors.New(errors.ErrCodeSerializationFailed, "zlib compression failed").WithCause(err)
		}
		if err := zw.Close(); err != nil {
			return nil, 0, errors.New(errors.ErrCodeSerializationFailed, "zlib compression failed").WithCause(err)
		}
		return buf.Bytes(), int64(len(raw)), nil
	case MethodS2:
		return s2.Encode(nil, raw), int64(len(raw)), nil
	default:
		return nil, 0, errors.Newf(errors.ErrCodeInvalidConfig, "unknown codec %q", c.method)
	}
}

// Decompress is the exact inverse of Compress. Calling it with a payload
// produced by a different method returns CODEC_MISMATCH.
func (c Codec) Decompress(payload []byte) (interface{}, error) {
	return Decode(payload, c.method)
}

// Decode decompresses payload with the named method and deserializes the
// canonical JSON inside.
func Decode(payload []byte, method Method) (interface{}, error) {
	var raw []byte

	switch method {
	case MethodNone:
		raw = payload
	case MethodZlib:
		zr, err := zlib.NewReader(bytes.NewReader(payload))
		if err != nil {
			return nil, errors.New(errors.ErrCodeCodecMismatch, "payload is not zlib data").WithCause(err)
		}
		raw, err = io.ReadAll(zr)
		closeErr := zr.Close()
		if err != nil {
			return nil, errors.New(errors.ErrCodeCodecMismatch, "zlib stream truncated or corrupt").WithCause(err)
		}
		if closeErr != nil {
			return nil, errors.New(errors.ErrCodeCodecMismatch, "zlib stream truncated or corrupt").WithCause(closeErr)
		}
	case MethodS2:
		var err error
		raw, err = s2.Decode(nil, payload)
		if err != nil {
			return nil, errors.New(errors.ErrCodeCodecMismatch, "payload is not s2 data").WithCause(err)
		}
	default:
		return nil, errors.Newf(errors.ErrCodeInvalidConfig, "unknown codec %q", method)
	}

	var value interface{}
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, errors.New(errors.ErrCodeSerializationFailed, "cached payload is not canonical JSON").WithCause(err)
	}
	return value, nil
}

// Ratio reports original/compressed. Defined as 1.0 when no compression
// was applied or the compressed size is zero.
func Ratio(originalSize, compressedSize int64) float64 {
	if compressedSize <= 0 || originalSize <= 0 {
		return 1.0
	}
	return float64(originalSize) / float64(compressedSize)
}
