// Package pipeline defines the staged-computation contract split between
// host and server, and a synthetic reference implementation used by tests
// and demos. Real computations live outside this repository and plug in by
// implementing Runner.
package pipeline

import (
	"context"
	"fmt"

	"github.com/splitbench/splitbench/pkg/offload/model"
)

// Item is one unit of work fed to a pipeline.
type Item struct {
	// Index identifies the item within its work set.
	Index int
	// Data is the item's input tensor.
	Data []byte
}

// A Runner executes a staged computation that can be split at any boundary
// between two stages. The host runs stages [0, boundary) and ships the
// intermediate bytes; the server runs stages [boundary, Stages()).
// Intermediate serialization is owned by the Runner, so both halves must be
// implementations of the same pipeline.
type Runner interface {
	// Stages returns the number of stages. A Runner with N stages admits
	// split boundaries 1 through N-1.
	Stages() int
	// RunPrefix executes stages [0, boundary) on one item and returns the
	// serialized intermediate.
	RunPrefix(ctx context.Context, item Item, boundary int) ([]byte, error)
	// RunSuffix executes stages [boundary, Stages()) on a serialized
	// intermediate and returns the final output.
	RunSuffix(ctx context.Context, boundary int, intermediate []byte) ([]byte, error)
}

// New constructs the Runner named by the config. Unknown names are rejected
// here, not at first use.
func New(cfg model.PipelineConfig) (Runner, error) {
	switch cfg.Name {
	case "", model.DefaultPipeline:
		return NewSynthetic(cfg.Stages, cfg.Width)
	default:
		return nil, fmt.Errorf("unknown pipeline %q", cfg.Name)
	}
}
