package model

import (
	"time"

	"github.com/m-lab/tcp-info/tcp"
)

// SessionArchive is the struct that is serialized as JSON to disk as the
// archival record of one served offload session.
type SessionArchive struct {
	// GitShortCommit is the Git commit (short form) of the running server code.
	GitShortCommit string
	// Version is the symbolic version (if any) of the running server code.
	Version string

	// MeasurementID identifies multiple sessions belonging to the same
	// measurement.
	MeasurementID string
	// UUID is the unique ID for this TCP flow.
	UUID string
	// Server is the server's TCP endpoint (ip:port).
	Server string
	// Client is the client's TCP endpoint (ip:port).
	Client string
	// CongestionControl is the congestion control algorithm in use on the
	// session's connection, read back after the handshake. It can differ
	// from the requested one when that is unavailable on the server.
	CongestionControl string `json:",omitempty"`
	// StartTime is the time when the session was accepted.
	StartTime time.Time
	// EndTime is the time when the session ended.
	EndTime time.Time
	// Config is the session configuration received during the handshake,
	// after defaults were applied.
	Config SessionConfig
	// Requests is one record per request served, in order.
	Requests []RequestRecord
	// Metrics is the final per-session aggregate.
	Metrics SessionMetrics
	// TCPInfo is an optional TCP_INFO snapshot taken at session end. Only
	// applicable when the server has access to it.
	TCPInfo *TCPInfo `json:",omitempty"`
}

// RequestRecord describes one request served within a session.
type RequestRecord struct {
	// SplitIndex is the split boundary the client requested.
	SplitIndex uint32
	// PayloadBytes is the compressed payload size received.
	PayloadBytes int64
	// ResultBytes is the compressed result size sent back.
	ResultBytes int64
	// ProcessingTime is the server-side wall-clock time spent decompressing,
	// running the pipeline suffix and compressing the result.
	ProcessingTime time.Duration
	// ElapsedTime is the time elapsed since the session was accepted, in
	// microseconds.
	ElapsedTime int64
}

// SessionMetrics is the per-session aggregate kept while a session is
// served and logged at teardown.
type SessionMetrics struct {
	// TotalRequests is the number of requests served so far.
	TotalRequests int64
	// TotalProcessingTime is the cumulative server-side processing time.
	TotalProcessingTime time.Duration
	// AvgProcessingTime is TotalProcessingTime / TotalRequests.
	AvgProcessingTime time.Duration
}

// Update folds one request's processing time into the aggregate.
func (m *SessionMetrics) Update(processing time.Duration) {
	m.TotalRequests++
	m.TotalProcessingTime += processing
	m.AvgProcessingTime = m.TotalProcessingTime / time.Duration(m.TotalRequests)
}

// SessionSnapshot is a point-in-time view of a running session. It is
// serialized as JSON and streamed to live watch clients.
type SessionSnapshot struct {
	// UUID is the unique ID for this TCP flow.
	UUID string `json:",omitempty"`
	// Client is the client's TCP endpoint (ip:port).
	Client string `json:",omitempty"`
	// ElapsedTime is the time elapsed since the session was accepted, in
	// microseconds.
	ElapsedTime int64
	// BytesReceived is the number of bytes received on the connection at
	// sample time.
	BytesReceived uint64
	// BytesSent is the number of bytes sent on the connection at sample
	// time.
	BytesSent uint64
	// Metrics is the aggregate at snapshot time.
	Metrics SessionMetrics
	// LastRequest is the most recently served request, if any.
	LastRequest *RequestRecord `json:",omitempty"`
	// TCPInfo is the most recent TCP_INFO sample. Only applicable when the
	// server has access to it.
	TCPInfo *TCPInfo `json:",omitempty"`
}

// TCPInfo is an extension to Linux's TCPInfo struct that includes the time
// elapsed since the connection was accepted.
type TCPInfo struct {
	tcp.LinuxTCPInfo
	ElapsedTime int64
}
