package offload

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/m-lab/go/prometheusx"
	"github.com/splitbench/splitbench/internal/archive"
	"github.com/splitbench/splitbench/internal/measurer"
	"github.com/splitbench/splitbench/internal/metrics"
	"github.com/splitbench/splitbench/internal/netx"
	"github.com/splitbench/splitbench/pkg/codec"
	"github.com/splitbench/splitbench/pkg/offload/model"
	"github.com/splitbench/splitbench/pkg/offload/spec"
	"github.com/splitbench/splitbench/pkg/pipeline"
	"github.com/splitbench/splitbench/pkg/version"
)

// Listen opens the offload listening socket. If binding to host fails, it
// falls back to all interfaces: lab devices frequently carry stale
// addresses in their registry entries, and a server that cannot bind its
// advertised address should still come up.
func Listen(host string, port int) (*netx.Listener, error) {
	ln, err := net.ListenTCP("tcp", &net.TCPAddr{
		IP:   net.ParseIP(host),
		Port: port,
	})
	if err != nil && host != "" {
		ln, err = net.ListenTCP("tcp", &net.TCPAddr{Port: port})
	}
	if err != nil {
		return nil, err
	}
	return netx.NewListener(ln), nil
}

// Server serves offload sessions, one connection at a time. Per-session
// state is owned by the serving goroutine; the only synchronized surface is
// the live snapshot read by the monitor and updated by the measurer.
type Server struct {
	store    *archive.Store
	measurer *measurer.Measurer
	logger   *log.Logger

	mu       sync.Mutex
	snapshot *model.SessionSnapshot
}

// NewServer returns a Server archiving completed sessions to store.
func NewServer(store *archive.Store, logger *log.Logger) *Server {
	return &Server{
		store:    store,
		measurer: measurer.New(logger),
		logger:   logger,
	}
}

// Serve accepts and serves sessions until ctx is done. Sessions are served
// to completion before the next Accept: a second client connecting while a
// session is active waits in the backlog. The accept deadline bounds how
// long a shutdown can go unnoticed.
func (s *Server) Serve(ctx context.Context, ln *netx.Listener) error {
	defer ln.Close()
	s.logger.Info("listening for offload sessions", "addr", ln.Addr())

	for {
		if err := ctx.Err(); err != nil {
			s.logger.Info("offload server shutting down")
			return nil
		}
		if err := ln.SetDeadline(time.Now().Add(spec.AcceptInterval)); err != nil {
			return err
		}
		conn, err := ln.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Warn("accept failed", "err", err)
			continue
		}
		s.serveSession(ctx, conn)
	}
}

// serveSession runs one session to completion and tears the connection
// down on every exit path.
func (s *Server) serveSession(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	defer s.clearSnapshot()

	ci := netx.ToConnInfo(conn)
	uuid, err := ci.UUID()
	if err != nil {
		s.logger.Error("failed to get session uuid", "err", err)
		metrics.Sessions.WithLabelValues("io_error").Inc()
		return
	}
	start := ci.AcceptTime()
	logger := s.logger.With("uuid", uuid, "client", conn.RemoteAddr().String())
	logger.Info("session accepted")

	result := &model.SessionArchive{
		GitShortCommit: prometheusx.GitShortCommit,
		Version:        version.Version,
		UUID:           uuid,
		Server:         conn.LocalAddr().String(),
		Client:         conn.RemoteAddr().String(),
		StartTime:      start,
	}
	status := "completed"
	defer func() {
		result.EndTime = time.Now()
		if info, err := ci.Info(); err == nil {
			result.TCPInfo = &model.TCPInfo{
				LinuxTCPInfo: *info,
				ElapsedTime:  time.Since(start).Microseconds(),
			}
		}
		s.store.Put(result)
		metrics.Sessions.WithLabelValues(status).Inc()
	}()

	// Handshake: the config frame overrides the minimal default profile.
	cfg, err := ReadConfigFrame(conn)
	if err != nil {
		logger.Warn("bad config frame", "err", err)
		status = "protocol_error"
		return
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		logger.Warn("invalid session config", "err", err)
		status = "protocol_error"
		return
	}
	cdc, err := codec.FromConfig(cfg.Compression)
	if err != nil {
		logger.Warn("invalid session config", "err", err)
		status = "protocol_error"
		return
	}
	runner, err := pipeline.New(cfg.Pipeline)
	if err != nil {
		logger.Warn("invalid session config", "err", err)
		status = "protocol_error"
		return
	}
	result.MeasurementID = cfg.MeasurementID
	result.Config = cfg

	// Congestion control is applied before the ack. An unavailable
	// algorithm is not fatal: the client might have requested one this
	// kernel does not provide, in which case we run with the default and
	// archive the requested vs. actual algorithm.
	if cfg.CongestionControl != "" {
		if err := ci.SetCC(cfg.CongestionControl); err != nil {
			logger.Warn("failed to set congestion control",
				"cc", cfg.CongestionControl, "err", err)
		}
	}
	if cc, err := ci.GetCC(); err == nil {
		result.CongestionControl = cc
	}

	if err := WriteAck(conn); err != nil {
		logger.Warn("failed to ack config", "err", err)
		status = "io_error"
		return
	}
	logger.Info("session configured",
		"mid", cfg.MeasurementID,
		"codec", cdc.Name(),
		"pipeline", cfg.Pipeline.Name,
		"stages", cfg.Pipeline.Stages)

	sessionMetrics := model.SessionMetrics{}
	s.setSnapshot(&model.SessionSnapshot{
		UUID:   uuid,
		Client: conn.RemoteAddr().String(),
	})

	// Sample the connection while requests are served so watch clients see
	// fresh byte counters and TCP_INFO even mid-request. The sample channel
	// closes when the session context does.
	sessionCtx, cancelSession := context.WithCancel(ctx)
	defer cancelSession()
	samples := s.measurer.Start(sessionCtx, ci)
	go func() {
		for sample := range samples {
			s.updateSample(sample)
		}
	}()

	for {
		hdr, ok, err := ReadRequestHeader(conn)
		if err != nil {
			logger.Warn("failed to read request header", "err", err)
			status = "io_error"
			return
		}
		if !ok {
			// Short or absent header: the client is done.
			break
		}
		if hdr.PayloadLength == 0 || hdr.PayloadLength > spec.MaxFrameSize {
			logger.Warn("bad payload length", "length", hdr.PayloadLength)
			status = "protocol_error"
			return
		}
		payload, err := codec.ReceiveFull(conn, int(hdr.PayloadLength))
		if err != nil {
			logger.Warn("failed to read payload", "err", err)
			status = "io_error"
			return
		}

		// Processing time covers decompression, the pipeline suffix and
		// result compression, matching what the client subtracts from its
		// wall-clock roundtrip.
		processingStart := time.Now()
		intermediate, err := cdc.Decompress(payload)
		if err != nil {
			logger.Warn("failed to decompress payload",
				"split", hdr.SplitIndex, "err", err)
			status = "protocol_error"
			metrics.Requests.WithLabelValues("error").Inc()
			return
		}
		output, err := runner.RunSuffix(ctx, int(hdr.SplitIndex), intermediate)
		if err != nil {
			logger.Warn("pipeline suffix failed",
				"split", hdr.SplitIndex, "err", err)
			status = "protocol_error"
			metrics.Requests.WithLabelValues("error").Inc()
			return
		}
		compressed, err := cdc.Compress(output)
		if err != nil {
			logger.Warn("failed to compress result",
				"split", hdr.SplitIndex, "err", err)
			status = "io_error"
			metrics.Requests.WithLabelValues("error").Inc()
			return
		}
		processing := time.Since(processingStart)

		if err := WriteResponse(conn, compressed, processing); err != nil {
			logger.Warn("failed to write response", "err", err)
			status = "io_error"
			metrics.Requests.WithLabelValues("error").Inc()
			return
		}

		sessionMetrics.Update(processing)
		metrics.Requests.WithLabelValues("ok").Inc()
		metrics.ProcessingTime.WithLabelValues(cfg.Pipeline.Name).
			Observe(processing.Seconds())

		record := model.RequestRecord{
			SplitIndex:     hdr.SplitIndex,
			PayloadBytes:   int64(hdr.PayloadLength),
			ResultBytes:    int64(len(compressed)),
			ProcessingTime: processing,
			ElapsedTime:    time.Since(start).Microseconds(),
		}
		result.Requests = append(result.Requests, record)
		result.Metrics = sessionMetrics
		s.updateRequest(sessionMetrics, record)
	}

	result.Metrics = sessionMetrics
	if sessionMetrics.TotalRequests > 0 {
		logger.Info("session complete",
			"requests", sessionMetrics.TotalRequests,
			"total_processing", sessionMetrics.TotalProcessingTime,
			"avg_processing", sessionMetrics.AvgProcessingTime)
	} else {
		logger.Info("session closed without requests")
	}
}

// Snapshot returns a copy of the live session's state, if one is active.
func (s *Server) Snapshot() (model.SessionSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snapshot == nil {
		return model.SessionSnapshot{}, false
	}
	return *s.snapshot, true
}

func (s *Server) setSnapshot(snap *model.SessionSnapshot) {
	s.mu.Lock()
	s.snapshot = snap
	s.mu.Unlock()
}

// updateRequest folds a served request into the live snapshot.
func (s *Server) updateRequest(m model.SessionMetrics, record model.RequestRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snapshot == nil {
		return
	}
	s.snapshot.ElapsedTime = record.ElapsedTime
	s.snapshot.Metrics = m
	s.snapshot.LastRequest = &record
}

// updateSample folds a connection sample into the live snapshot.
func (s *Server) updateSample(sample measurer.Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snapshot == nil {
		return
	}
	s.snapshot.ElapsedTime = sample.ElapsedTime
	s.snapshot.BytesReceived = sample.BytesReceived
	s.snapshot.BytesSent = sample.BytesSent
	s.snapshot.TCPInfo = sample.TCPInfo
}

func (s *Server) clearSnapshot() {
	s.mu.Lock()
	s.snapshot = nil
	s.mu.Unlock()
}

// Addr formats a host/port pair for dialing, applying the default port
// when port is zero.
func Addr(host string, port int) string {
	if port == 0 {
		port = spec.DefaultPort
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}
