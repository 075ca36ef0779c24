// Package main implements a bare-bones minimal splitbench offload client.
// It speaks the wire protocol directly, without the offload client library,
// and doubles as executable protocol documentation for third-party
// implementations.
package main

import (
	"encoding/binary"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	clientName    = "splitbench-minimal-offload-go"
	clientVersion = "v0.0.1"
)

var (
	flagServer   = flag.String("server", "", "Offload server address (host:port)")
	flagSplit    = flag.Int("split", 1, "Split boundary to request")
	flagStages   = flag.Int("stages", 8, "Number of pipeline stages")
	flagWidth    = flag.Int("width", 65536, "Tensor width in bytes")
	flagRequests = flag.Int("requests", 1, "Number of requests to send")
	flagMID      = flag.String("mid", uuid.NewString(), "Measurement ID to use")
	flagTimeout  = flag.Duration("timeout", 30*time.Second, "Socket deadline")
)

// SessionConfig is the JSON payload of the handshake's config frame. The
// compression codec is pinned to "none" so this client needs no codec code:
// payloads and results travel as raw tensor bytes.
//
// Find the authoritative structures in:
// * github.com/splitbench/splitbench/pkg/offload/model/config.go
type SessionConfig struct {
	// MeasurementID correlates this session's server-side archive with
	// other records of the same measurement.
	MeasurementID string `json:"measurement_id,omitempty"`
	// Compression selects the payload codec.
	Compression CompressionConfig `json:"compression"`
	// Pipeline describes the staged computation to run.
	Pipeline PipelineConfig `json:"pipeline"`
	// Metadata is free-form metadata archived with the session record.
	Metadata []NameValue `json:"metadata,omitempty"`
}

// CompressionConfig selects the codec applied to payload and result frames.
type CompressionConfig struct {
	Codec string `json:"codec"`
	Level int    `json:"level"`
}

// PipelineConfig describes the staged computation a session runs.
type PipelineConfig struct {
	Name   string `json:"name"`
	Stages int    `json:"stages"`
	Width  int    `json:"width"`
}

// NameValue is a free-form name/value pair.
type NameValue struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func init() {
	// Disable all prefixing for logging.
	log.SetFlags(0)
}

// handshake writes the length-prefixed config frame and reads the 2-byte
// acknowledgment.
func handshake(conn net.Conn, cfg SessionConfig) error {
	body, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	prefix := make([]byte, 4)
	binary.BigEndian.PutUint32(prefix, uint32(len(body)))
	if _, err := conn.Write(append(prefix, body...)); err != nil {
		return err
	}
	ack := make([]byte, 2)
	if _, err := io.ReadFull(conn, ack); err != nil {
		return err
	}
	if string(ack) != "OK" {
		return fmt.Errorf("server rejected config: %q", ack)
	}
	return nil
}

// offload sends one request and reads its response, returning the result
// size and the server-reported processing time.
func offload(conn net.Conn, split int, payload []byte) (int, float64, error) {
	// Request: 4-byte big-endian split index, 4-byte big-endian payload
	// length, payload bytes.
	header := make([]byte, 8)
	binary.BigEndian.PutUint32(header[0:4], uint32(split))
	binary.BigEndian.PutUint32(header[4:8], uint32(len(payload)))
	if _, err := conn.Write(append(header, payload...)); err != nil {
		return 0, 0, err
	}

	// Response: 4-byte big-endian result length, 4-byte ASCII seconds
	// field, result bytes.
	prefix := make([]byte, 8)
	if _, err := io.ReadFull(conn, prefix); err != nil {
		return 0, 0, err
	}
	resultLen := int(binary.BigEndian.Uint32(prefix[0:4]))
	seconds, err := strconv.ParseFloat(strings.TrimSpace(string(prefix[4:8])), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed processing time field: %v", err)
	}
	if _, err := io.CopyN(io.Discard, conn, int64(resultLen)); err != nil {
		return 0, 0, err
	}
	return resultLen, seconds, nil
}

func main() {
	flag.Parse()
	if *flagServer == "" {
		log.Fatal("-server is required")
	}
	if *flagSplit < 1 || *flagSplit >= *flagStages {
		log.Fatalf("-split must be in [1, %d]", *flagStages-1)
	}

	conn, err := net.Dial("tcp", *flagServer)
	if err != nil {
		log.Fatal(err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(*flagTimeout))

	cfg := SessionConfig{
		MeasurementID: *flagMID,
		Compression:   CompressionConfig{Codec: "none"},
		Pipeline: PipelineConfig{
			Name:   "synthetic",
			Stages: *flagStages,
			Width:  *flagWidth,
		},
		Metadata: []NameValue{
			{Name: "client_name", Value: clientName},
			{Name: "client_version", Value: clientVersion},
		},
	}
	if err := handshake(conn, cfg); err != nil {
		log.Fatal(err)
	}

	// With codec "none" any width-sized payload is a valid intermediate.
	payload := make([]byte, *flagWidth)
	for i := range payload {
		payload[i] = byte(i)
	}

	for n := 1; n <= *flagRequests; n++ {
		start := time.Now()
		resultLen, seconds, err := offload(conn, *flagSplit, payload)
		if err != nil {
			log.Fatal(err)
		}
		wall := time.Since(start).Seconds()
		log.Printf("Offload #%d - boundary %d, wall %0.4fs, server %0.4fs, network %0.4fs, payload w/r: %d/%d\n",
			n, *flagSplit, wall, seconds, wall-seconds, len(payload), resultLen)
	}
	// Closing without a full request header ends the session cleanly.
}
