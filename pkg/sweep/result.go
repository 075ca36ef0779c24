package sweep

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/splitbench/splitbench/pkg/offload/model"
)

// BoundaryResult is one row of a sweep: the timing decomposition of every
// successfully measured work item at one split boundary, summed.
type BoundaryResult struct {
	// SplitIndex is the boundary this row describes.
	SplitIndex int
	// Items is the number of work items measured at this boundary.
	Items int
	// Errors is the number of work items excluded from the sums.
	Errors int
	// PayloadBytes is the total compressed payload bytes sent.
	PayloadBytes int64
	// ResultBytes is the total compressed result bytes received.
	ResultBytes int64
	// HostTime is the summed host-side time: pipeline prefix, payload
	// compression and result decompression.
	HostTime time.Duration
	// NetworkTime is the summed transit time: offload wall clock minus the
	// backend's reported processing time.
	NetworkTime time.Duration
	// ServerTime is the summed backend processing time.
	ServerTime time.Duration
	// TotalTime is HostTime + NetworkTime + ServerTime.
	TotalTime time.Duration
}

// Result is the archival record of one sweep.
type Result struct {
	// GitShortCommit is the Git commit (short form) of the running host code.
	GitShortCommit string
	// Version is the symbolic version (if any) of the running host code.
	Version string

	// MeasurementID identifies multiple sessions belonging to the same
	// measurement.
	MeasurementID string
	// Server is the backend endpoint the suffix ran on, or "local".
	Server string
	// StartTime is the time when the sweep started.
	StartTime time.Time
	// EndTime is the time when the sweep ended.
	EndTime time.Time
	// Config is the session configuration the sweep ran under.
	Config model.SessionConfig
	// Boundaries is one row per swept boundary, in sweep order.
	Boundaries []BoundaryResult
}

// Best returns the row with the smallest total time. Rows with no measured
// items are skipped; ties keep the first-encountered boundary.
func (r *Result) Best() (BoundaryResult, bool) {
	var best BoundaryResult
	found := false
	for _, row := range r.Boundaries {
		if row.Items == 0 {
			continue
		}
		if !found || row.TotalTime < best.TotalTime {
			best = row
			found = true
		}
	}
	return best, found
}

// WriteCSV writes the sweep rows to CSV with a fixed column order.
func WriteCSV(w io.Writer, r *Result) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	header := []string{
		"split_boundary",
		"host_time_s",
		"network_time_s",
		"server_time_s",
		"total_time_s",
		"items",
		"errors",
		"payload_bytes",
		"result_bytes",
	}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, row := range r.Boundaries {
		record := []string{
			strconv.Itoa(row.SplitIndex),
			strconv.FormatFloat(row.HostTime.Seconds(), 'f', 6, 64),
			strconv.FormatFloat(row.NetworkTime.Seconds(), 'f', 6, 64),
			strconv.FormatFloat(row.ServerTime.Seconds(), 'f', 6, 64),
			strconv.FormatFloat(row.TotalTime.Seconds(), 'f', 6, 64),
			strconv.Itoa(row.Items),
			strconv.Itoa(row.Errors),
			strconv.FormatInt(row.PayloadBytes, 10),
			strconv.FormatInt(row.ResultBytes, 10),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}
