package codec_test

import (
	"bytes"
	"testing"

	"github.com/splitbench/splitbench/pkg/codec"
	"github.com/splitbench/splitbench/pkg/offload/model"
)

func TestFromConfig(t *testing.T) {
	tests := []struct {
		name     string
		config   model.CompressionConfig
		wantName string
		wantErr  bool
	}{
		{
			name:     "empty-selects-gzip",
			config:   model.CompressionConfig{},
			wantName: "gzip",
		},
		{
			name:     "gzip-minimal-profile",
			config:   model.CompressionConfig{Codec: "gzip", Level: 1},
			wantName: "gzip",
		},
		{
			name:     "none",
			config:   model.CompressionConfig{Codec: "none"},
			wantName: "none",
		},
		{
			name:    "unknown-codec",
			config:  model.CompressionConfig{Codec: "blosc"},
			wantErr: true,
		},
		{
			name:    "gzip-level-out-of-range",
			config:  model.CompressionConfig{Codec: "gzip", Level: 42},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := codec.FromConfig(tt.config)
			if (err != nil) != tt.wantErr {
				t.Fatalf("FromConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if c.Name() != tt.wantName {
				t.Errorf("Name() = %q, want %q", c.Name(), tt.wantName)
			}
		})
	}
}

func TestRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte("splitbench intermediate tensor "), 512)
	codecs := []model.CompressionConfig{
		{Codec: "gzip", Level: 1},
		{Codec: "gzip", Level: 9},
		{Codec: "none"},
	}
	for _, cfg := range codecs {
		t.Run(cfg.Codec, func(t *testing.T) {
			c, err := codec.FromConfig(cfg)
			if err != nil {
				t.Fatalf("FromConfig() error = %v", err)
			}
			compressed, err := c.Compress(payload)
			if err != nil {
				t.Fatalf("Compress() error = %v", err)
			}
			if cfg.Codec == "gzip" && len(compressed) >= len(payload) {
				t.Errorf("Compress() did not shrink a repetitive payload: %d >= %d",
					len(compressed), len(payload))
			}
			got, err := c.Decompress(compressed)
			if err != nil {
				t.Fatalf("Decompress() error = %v", err)
			}
			if !bytes.Equal(got, payload) {
				t.Errorf("Decompress() changed the payload: got %d bytes, want %d",
					len(got), len(payload))
			}
		})
	}
}

func TestDecompressGarbage(t *testing.T) {
	c, err := codec.FromConfig(model.CompressionConfig{Codec: "gzip", Level: 1})
	if err != nil {
		t.Fatalf("FromConfig() error = %v", err)
	}
	if _, err := c.Decompress([]byte("not a gzip stream")); err == nil {
		t.Fatal("Decompress() accepted garbage input")
	}
}
