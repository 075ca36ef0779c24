// Package codec provides the payload compression contract for offload
// sessions, plus the gzip and pass-through implementations selectable via
// the session config.
package codec

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"

	"github.com/splitbench/splitbench/pkg/offload/model"
)

// A Codec compresses intermediate payloads before they cross the network
// and decompresses them on the other side. Implementations must be safe for
// use by a single session at a time; they are not required to be safe for
// concurrent use.
type Codec interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
	Name() string
}

// FromConfig returns the Codec selected by the given compression config.
// Unknown codec names are rejected here, not at first use.
func FromConfig(c model.CompressionConfig) (Codec, error) {
	switch c.Codec {
	case "", "gzip":
		level := c.Level
		if level == 0 {
			level = gzip.DefaultCompression
		}
		if level < gzip.HuffmanOnly || level > gzip.BestCompression {
			return nil, fmt.Errorf("gzip level %d out of range", c.Level)
		}
		return &Gzip{Level: level}, nil
	case "none":
		return None{}, nil
	default:
		return nil, fmt.Errorf("unknown codec %q", c.Codec)
	}
}

// Gzip compresses payloads with compress/gzip at a fixed level.
type Gzip struct {
	Level int
}

var _ Codec = (*Gzip)(nil)

// Compress gzips data at the configured level.
func (g *Gzip) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, g.Level)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decompress gunzips data.
func (g *Gzip) Decompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// Name implements Codec.
func (g *Gzip) Name() string { return "gzip" }

// None passes payloads through unchanged.
type None struct{}

var _ Codec = None{}

// Compress implements Codec.
func (None) Compress(data []byte) ([]byte, error) { return data, nil }

// Decompress implements Codec.
func (None) Decompress(data []byte) ([]byte, error) { return data, nil }

// Name implements Codec.
func (None) Name() string { return "none" }

// ReceiveFull reads exactly n bytes from r, blocking until they arrive or
// the stream ends.
func ReceiveFull(r io.Reader, n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
