// Package spec contains constants for the offload protocol.
package spec

import "time"

const (
	// DefaultPort is the TCP port an offload server listens on when the
	// device registry does not provide an experiment port.
	DefaultPort = 12345

	// LengthPrefixSize is the size in bytes of the big-endian length prefix
	// preceding the session config frame and every result frame.
	LengthPrefixSize = 4

	// RequestHeaderSize is the size in bytes of a request header: a 4-byte
	// big-endian split index followed by a 4-byte big-endian payload length.
	// Receiving fewer bytes than this before the peer closes the connection
	// marks a clean end of session.
	RequestHeaderSize = 8

	// ProcessingTimeSize is the size in bytes of the ASCII processing-time
	// field included in every result frame. The field holds the server-side
	// processing time in seconds, space-padded or truncated to fit.
	ProcessingTimeSize = 4

	// Ack is the acknowledgment sent to the client after a session config
	// frame has been received and applied.
	Ack = "OK"

	// MaxFrameSize bounds the length prefix of config and payload frames.
	// Larger values are treated as a protocol violation rather than an
	// allocation request.
	MaxFrameSize = 1 << 30

	// AcceptInterval is the accept deadline on the listening socket. It
	// bounds how long a shutdown request can go unnoticed while the server
	// waits for a client.
	AcceptInterval = 1 * time.Second

	// DefaultDialTimeout is the default timeout for a client connecting to
	// an offload server.
	DefaultDialTimeout = 10 * time.Second

	// SessionPath selects the archived-session query endpoint.
	SessionPath = "/splitbench/v0/session"
	// WatchPath selects the live session watch endpoint.
	WatchPath = "/splitbench/v0/watch"

	// SecWebSocketProtocol is the value of the Sec-WebSocket-Protocol header
	// on the watch endpoint.
	SecWebSocketProtocol = "net.splitbench.v0"

	// MinMeasureInterval is the minimum interval between subsequent
	// connection measurements.
	MinMeasureInterval = 100 * time.Millisecond

	// AvgMeasureInterval is the average interval between subsequent
	// connection measurements.
	AvgMeasureInterval = 250 * time.Millisecond

	// MaxMeasureInterval is the maximum interval between subsequent
	// connection measurements.
	MaxMeasureInterval = 400 * time.Millisecond

	// MinWatchInterval is the minimum interval between subsequent live
	// session snapshots.
	MinWatchInterval = 100 * time.Millisecond

	// AvgWatchInterval is the average interval between subsequent live
	// session snapshots.
	AvgWatchInterval = 250 * time.Millisecond

	// MaxWatchInterval is the maximum interval between subsequent live
	// session snapshots.
	MaxWatchInterval = 400 * time.Millisecond
)

// ExperimentKind indicates how a sweep reaches the computation suffix.
type ExperimentKind string

const (
	// ExperimentAuto selects networked mode when a server device is
	// reachable and falls back to local mode otherwise.
	ExperimentAuto = ExperimentKind("auto")

	// ExperimentNetworked offloads the suffix to a remote server.
	ExperimentNetworked = ExperimentKind("networked")

	// ExperimentLocal runs the suffix in-process.
	ExperimentLocal = ExperimentKind("local")
)
