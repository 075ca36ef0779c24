package sweep

import (
	"fmt"
)

// Emitter is an interface for emitting sweep progress and results.
type Emitter interface {
	// OnSweepStart is called once before the first boundary.
	OnSweepStart(boundaries []int, items int)
	// OnBoundaryStart is called before a boundary's work set runs.
	OnBoundaryStart(splitIndex int)
	// OnItemError is called for every excluded work item.
	OnItemError(err *WorkItemError)
	// OnBoundaryComplete is called with a boundary's aggregate row.
	OnBoundaryComplete(row BoundaryResult)
	// OnSweepComplete is called with the full result.
	OnSweepComplete(r *Result)
}

// HumanReadable prints human-readable progress to stdout.
// It can be configured to include debug output, too.
type HumanReadable struct {
	Debug bool
}

// OnSweepStart prints the sweep dimensions.
func (HumanReadable) OnSweepStart(boundaries []int, items int) {
	fmt.Printf("Sweeping %d boundaries over %d work items\n", len(boundaries), items)
}

// OnBoundaryStart is called before a boundary's work set runs.
func (e HumanReadable) OnBoundaryStart(splitIndex int) {
	if e.Debug {
		fmt.Printf("DEBUG: starting boundary %d\n", splitIndex)
	}
}

// OnItemError prints an excluded work item.
func (HumanReadable) OnItemError(err *WorkItemError) {
	fmt.Println(err)
}

// OnBoundaryComplete prints a boundary's aggregate row.
func (HumanReadable) OnBoundaryComplete(row BoundaryResult) {
	fmt.Printf("  boundary %d: host %.3fs, network %.3fs, server %.3fs, total %.3fs (%d items, %d errors)\n",
		row.SplitIndex, row.HostTime.Seconds(), row.NetworkTime.Seconds(),
		row.ServerTime.Seconds(), row.TotalTime.Seconds(), row.Items, row.Errors)
}

// OnSweepComplete prints the selected boundary.
func (HumanReadable) OnSweepComplete(r *Result) {
	fmt.Println()
	best, ok := r.Best()
	if !ok {
		fmt.Println("Sweep complete: no boundary produced a measurable result")
		return
	}
	fmt.Printf("Sweep complete: best boundary is %d (total %.3fs over %d items)\n",
		best.SplitIndex, best.TotalTime.Seconds(), best.Items)
}

// Checks that HumanReadable implements Emitter.
var _ Emitter = &HumanReadable{}

// quiet discards all progress output.
type quiet struct{}

func (quiet) OnSweepStart([]int, int)           {}
func (quiet) OnBoundaryStart(int)               {}
func (quiet) OnItemError(*WorkItemError)        {}
func (quiet) OnBoundaryComplete(BoundaryResult) {}
func (quiet) OnSweepComplete(*Result)           {}
