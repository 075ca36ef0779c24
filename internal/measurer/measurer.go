// Package measurer periodically samples the kernel's view of a served
// connection. Samples feed the live session snapshot streamed to watch
// clients, so a session stuck in a long-running request still reports
// fresh byte counters and TCP_INFO.
package measurer

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"
	"github.com/m-lab/go/memoryless"
	"github.com/m-lab/go/rtx"
	"github.com/m-lab/ndt-server/tcpinfox"
	"github.com/splitbench/splitbench/internal/netx"
	"github.com/splitbench/splitbench/pkg/offload/model"
	"github.com/splitbench/splitbench/pkg/offload/spec"
)

// A Sample is one point-in-time reading of a served connection.
type Sample struct {
	// ElapsedTime is the time elapsed since the connection was accepted,
	// in microseconds.
	ElapsedTime int64
	// BytesReceived is the connection's received-bytes counter.
	BytesReceived uint64
	// BytesSent is the connection's sent-bytes counter.
	BytesSent uint64
	// TCPInfo is the TCP_INFO struct for the connection, nil on platforms
	// that do not support it.
	TCPInfo *model.TCPInfo
}

// Measurer samples connections on a memoryless schedule.
type Measurer struct {
	logger *log.Logger
}

// New returns a Measurer logging read failures to logger.
func New(logger *log.Logger) *Measurer {
	return &Measurer{logger: logger}
}

// Start samples ci until ctx is canceled, sending each Sample over the
// returned channel. The channel is buffered and samples are dropped rather
// than queued when the reader falls behind, so a slow reader observes
// recent samples instead of a backlog. The channel is closed once ctx is
// done.
func (m *Measurer) Start(ctx context.Context, ci netx.ConnInfo) <-chan Sample {
	dst := make(chan Sample, 16)

	t, err := memoryless.NewTicker(ctx, memoryless.Config{
		Min:      spec.MinMeasureInterval,
		Expected: spec.AvgMeasureInterval,
		Max:      spec.MaxMeasureInterval,
	})
	// This can only error if min/expected/max above are set to invalid
	// values. Since they are constants, we panic here.
	rtx.PanicOnError(err, "ticker creation failed (this should never happen)")

	go func() {
		defer close(dst)
		defer t.Stop()
		// The ticker channel closes when ctx is done.
		for range t.C {
			select {
			case dst <- m.Measure(ci):
			default:
			}
		}
	}()
	return dst
}

// Measure takes one Sample of ci.
func (m *Measurer) Measure(ci netx.ConnInfo) Sample {
	received, sent := ci.ByteCounters()
	sample := Sample{
		ElapsedTime:   time.Since(ci.AcceptTime()).Microseconds(),
		BytesReceived: received,
		BytesSent:     sent,
	}
	tcpInfo, err := ci.Info()
	if err != nil {
		// If TCP_INFO isn't available on this platform, this returns
		// ErrNoSupport. Anything else is worth logging.
		if !errors.Is(err, tcpinfox.ErrNoSupport) {
			m.logger.Debug("cannot read TCP_INFO", "err", err)
		}
		return sample
	}
	sample.TCPInfo = &model.TCPInfo{
		LinuxTCPInfo: *tcpInfo,
		ElapsedTime:  sample.ElapsedTime,
	}
	return sample
}
