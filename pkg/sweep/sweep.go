// Package sweep implements the split-boundary search: it runs a work set
// through every candidate boundary of a staged pipeline, offloads the
// suffix through a Backend, and aggregates the host/network/server time
// decomposition into one row per boundary.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/m-lab/go/prometheusx"
	"github.com/splitbench/splitbench/pkg/codec"
	"github.com/splitbench/splitbench/pkg/pipeline"
	"github.com/splitbench/splitbench/pkg/version"
)

// ErrNoBoundaries is returned by Run when there is no boundary to sweep.
var ErrNoBoundaries = errors.New("no split boundaries to sweep")

// ErrNoItems is returned by Run when the work set is empty.
var ErrNoItems = errors.New("no work items to sweep")

// Backend runs the suffix of a split computation. The payload and the
// returned result are compressed; the returned duration is the time the
// backend spent decompressing, computing and compressing.
type Backend interface {
	Offload(ctx context.Context, splitIndex int, payload []byte) ([]byte, time.Duration, error)
}

// WorkItemError reports a failure processing one work item at one
// boundary. The item is excluded from that boundary's aggregate and the
// sweep continues.
type WorkItemError struct {
	SplitIndex int
	ItemIndex  int
	Err        error
}

func (e *WorkItemError) Error() string {
	return fmt.Sprintf("work item %d at boundary %d: %v", e.ItemIndex,
		e.SplitIndex, e.Err)
}

func (e *WorkItemError) Unwrap() error {
	return e.Err
}

// Boundaries enumerates every admissible split boundary of a pipeline with
// the given number of stages: 1 through stages-1.
func Boundaries(stages int) []int {
	if stages < 2 {
		return nil
	}
	boundaries := make([]int, 0, stages-1)
	for i := 1; i < stages; i++ {
		boundaries = append(boundaries, i)
	}
	return boundaries
}

// Controller drives a sweep. It owns the host side of the computation: the
// pipeline prefix and the payload codec run on its clock, so the timing
// decomposition separates host work from transit and from backend compute.
type Controller struct {
	backend Backend
	runner  pipeline.Runner
	cdc     codec.Codec
	emitter Emitter
	logger  *log.Logger
}

// NewController returns a Controller sweeping through backend. A nil
// emitter suppresses progress output.
func NewController(backend Backend, runner pipeline.Runner, cdc codec.Codec,
	emitter Emitter, logger *log.Logger) *Controller {
	if emitter == nil {
		emitter = quiet{}
	}
	return &Controller{
		backend: backend,
		runner:  runner,
		cdc:     cdc,
		emitter: emitter,
		logger:  logger,
	}
}

// Run sweeps every boundary over the whole work set and returns one
// aggregate row per boundary. A failing item is logged and excluded from
// its boundary's sums; only context cancellation aborts the sweep early.
func (c *Controller) Run(ctx context.Context, items []pipeline.Item, boundaries []int) (*Result, error) {
	if len(boundaries) == 0 {
		return nil, ErrNoBoundaries
	}
	if len(items) == 0 {
		return nil, ErrNoItems
	}

	result := &Result{
		GitShortCommit: prometheusx.GitShortCommit,
		Version:        version.Version,
		StartTime:      time.Now(),
	}
	c.emitter.OnSweepStart(boundaries, len(items))

	for _, boundary := range boundaries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c.emitter.OnBoundaryStart(boundary)
		row := BoundaryResult{SplitIndex: boundary}
		for _, item := range items {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if err := c.runItem(ctx, item, boundary, &row); err != nil {
				itemErr := &WorkItemError{
					SplitIndex: boundary,
					ItemIndex:  item.Index,
					Err:        err,
				}
				c.logger.Warn("work item failed",
					"boundary", boundary, "item", item.Index, "err", err)
				c.emitter.OnItemError(itemErr)
				row.Errors++
			}
		}
		result.Boundaries = append(result.Boundaries, row)
		c.emitter.OnBoundaryComplete(row)
	}

	result.EndTime = time.Now()
	c.emitter.OnSweepComplete(result)
	return result, nil
}

// runItem measures one item at one boundary and folds the timing into row.
// Host time covers the pipeline prefix and both codec passes; network time
// is the offload wall clock minus the backend's own measurement.
func (c *Controller) runItem(ctx context.Context, item pipeline.Item, boundary int, row *BoundaryResult) error {
	hostStart := time.Now()
	intermediate, err := c.runner.RunPrefix(ctx, item, boundary)
	if err != nil {
		return err
	}
	payload, err := c.cdc.Compress(intermediate)
	if err != nil {
		return err
	}
	hostTime := time.Since(hostStart)

	offloadStart := time.Now()
	compressed, backendTime, err := c.backend.Offload(ctx, boundary, payload)
	if err != nil {
		return err
	}
	wall := time.Since(offloadStart)

	hostStart = time.Now()
	if _, err := c.cdc.Decompress(compressed); err != nil {
		return err
	}
	hostTime += time.Since(hostStart)

	networkTime := wall - backendTime
	if networkTime < 0 {
		// The backend's ASCII time field loses sub-resolution digits;
		// never let that show up as negative transit time.
		networkTime = 0
	}

	row.Items++
	row.PayloadBytes += int64(len(payload))
	row.ResultBytes += int64(len(compressed))
	row.HostTime += hostTime
	row.NetworkTime += networkTime
	row.ServerTime += backendTime
	row.TotalTime += hostTime + networkTime + backendTime
	return nil
}
