package sweep

import (
	"context"
	"time"

	"github.com/splitbench/splitbench/pkg/codec"
	"github.com/splitbench/splitbench/pkg/pipeline"
)

// LocalBackend runs the computation suffix in-process. It keeps the sweep's
// timing decomposition intact when no server is involved: payloads pass
// through the same codec, and the reported time covers the same
// decompress-compute-compress span a remote server measures.
type LocalBackend struct {
	runner pipeline.Runner
	cdc    codec.Codec
}

// NewLocalBackend returns a backend running runner's suffix in-process.
func NewLocalBackend(runner pipeline.Runner, cdc codec.Codec) *LocalBackend {
	return &LocalBackend{
		runner: runner,
		cdc:    cdc,
	}
}

// Offload runs the suffix for splitIndex on the calling goroutine.
func (l *LocalBackend) Offload(ctx context.Context, splitIndex int, payload []byte) ([]byte, time.Duration, error) {
	start := time.Now()
	intermediate, err := l.cdc.Decompress(payload)
	if err != nil {
		return nil, 0, err
	}
	output, err := l.runner.RunSuffix(ctx, splitIndex, intermediate)
	if err != nil {
		return nil, 0, err
	}
	compressed, err := l.cdc.Compress(output)
	if err != nil {
		return nil, 0, err
	}
	return compressed, time.Since(start), nil
}

// Checks that LocalBackend implements Backend.
var _ Backend = &LocalBackend{}
