// Package model contains the session config exchanged during the offload
// handshake and the archival record of a served session.
package model

import (
	"fmt"

	"github.com/splitbench/splitbench/pkg/offload/spec"
)

const (
	// DefaultCodec is the compression codec applied to payloads when the
	// session config does not request one.
	DefaultCodec = "gzip"

	// DefaultCompressionLevel is the compression level of the minimal
	// profile. It favors speed over ratio, keeping host-side compression
	// time out of the way of the timing measurements.
	DefaultCompressionLevel = 1

	// DefaultPipeline is the pipeline constructed when the session config
	// does not name one.
	DefaultPipeline = "synthetic"

	// DefaultStages is the number of stages of the default pipeline.
	DefaultStages = 8

	// DefaultWidth is the per-item tensor width in bytes of the default
	// pipeline.
	DefaultWidth = 1 << 16
)

// CompressionConfig selects the codec applied to every payload and result
// frame of a session.
type CompressionConfig struct {
	// Codec is the codec name ("gzip" or "none").
	Codec string `json:"codec"`
	// Level is the codec-specific compression level. Zero selects the
	// codec's default.
	Level int `json:"level"`
}

// ExperimentConfig selects how the sweep reaches the computation suffix.
type ExperimentConfig struct {
	// Type is one of "auto", "networked" or "local".
	Type spec.ExperimentKind `json:"type"`
}

// PipelineConfig describes the staged computation a session runs.
type PipelineConfig struct {
	// Name is the registered pipeline name.
	Name string `json:"name"`
	// Stages is the number of stages. A pipeline with N stages admits
	// split boundaries 1 through N-1.
	Stages int `json:"stages"`
	// Width is the per-item tensor width in bytes.
	Width int `json:"width"`
}

// SessionConfig is the typed session configuration carried by the config
// frame. The server applies it once per session, before acknowledging the
// handshake.
type SessionConfig struct {
	// MeasurementID correlates the host-side and server-side archival
	// records of the same sweep. Optional.
	MeasurementID string `json:"measurement_id,omitempty"`

	// CongestionControl is the TCP congestion control algorithm requested
	// for the session's connection. Empty keeps the kernel default. An
	// unavailable algorithm is not fatal: the server runs with whatever is
	// in use and archives it.
	CongestionControl string `json:"congestion_control,omitempty"`

	// Metadata is free-form host-provided metadata, archived verbatim with
	// the server-side session record.
	Metadata []NameValue `json:"metadata,omitempty"`

	Compression CompressionConfig `json:"compression"`
	Experiment  ExperimentConfig  `json:"experiment"`
	Pipeline    PipelineConfig    `json:"pipeline"`
}

// DefaultSessionConfig returns the minimal session profile: fast
// compression, auto experiment selection and the reference pipeline.
func DefaultSessionConfig() SessionConfig {
	c := SessionConfig{}
	c.ApplyDefaults()
	return c
}

// ApplyDefaults fills in every unset field.
func (c *SessionConfig) ApplyDefaults() {
	if c.Compression.Codec == "" {
		c.Compression.Codec = DefaultCodec
		if c.Compression.Level == 0 {
			c.Compression.Level = DefaultCompressionLevel
		}
	}
	if c.Experiment.Type == "" {
		c.Experiment.Type = spec.ExperimentAuto
	}
	if c.Pipeline.Name == "" {
		c.Pipeline.Name = DefaultPipeline
	}
	if c.Pipeline.Stages == 0 {
		c.Pipeline.Stages = DefaultStages
	}
	if c.Pipeline.Width == 0 {
		c.Pipeline.Width = DefaultWidth
	}
}

// Validate checks the config once, after defaults have been applied.
// Collaborator-specific settings (codec names, pipeline names) are validated
// by their constructors.
func (c *SessionConfig) Validate() error {
	switch c.Experiment.Type {
	case spec.ExperimentAuto, spec.ExperimentNetworked, spec.ExperimentLocal:
	default:
		return fmt.Errorf("unknown experiment type %q", c.Experiment.Type)
	}
	if c.Compression.Level < 0 || c.Compression.Level > 9 {
		return fmt.Errorf("compression level %d out of range [0, 9]",
			c.Compression.Level)
	}
	if c.Pipeline.Stages < 2 {
		return fmt.Errorf("pipeline %q has %d stages, need at least 2",
			c.Pipeline.Name, c.Pipeline.Stages)
	}
	if c.Pipeline.Width < 1 {
		return fmt.Errorf("pipeline width %d must be positive", c.Pipeline.Width)
	}
	for _, m := range c.Metadata {
		// This maximum length for names and values is meant to limit abuse.
		if len(m.Name) > 200 || len(m.Value) > 200 {
			return fmt.Errorf("metadata name or value exceeds 200 characters")
		}
	}
	return nil
}
