// Package offload implements the split-computation offload protocol: a
// one-time JSON config handshake followed by a loop of framed, compressed
// payload exchanges carrying server-side timing metadata.
//
// Wire layout, all integers big-endian:
//
//	config frame:  4-byte length | JSON session config
//	ack:           the 2 bytes "OK"
//	request:       4-byte split index | 4-byte payload length | payload
//	response:      4-byte result length | 4-byte ASCII seconds | result
//
// A request header shorter than 8 bytes marks the clean end of a session.
package offload

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/splitbench/splitbench/pkg/codec"
	"github.com/splitbench/splitbench/pkg/offload/model"
	"github.com/splitbench/splitbench/pkg/offload/spec"
)

// RequestHeader precedes every offload request payload.
type RequestHeader struct {
	// SplitIndex is the boundary the payload was split at.
	SplitIndex uint32
	// PayloadLength is the compressed payload size in bytes.
	PayloadLength uint32
}

// WriteConfigFrame writes the length-prefixed JSON session config.
func WriteConfigFrame(w io.Writer, cfg model.SessionConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	frame := make([]byte, spec.LengthPrefixSize+len(data))
	binary.BigEndian.PutUint32(frame, uint32(len(data)))
	copy(frame[spec.LengthPrefixSize:], data)
	_, err = w.Write(frame)
	return err
}

// ReadConfigFrame reads the length-prefixed JSON session config. Any
// malformed frame, a zero or oversized length included, is a
// *ProtocolError.
func ReadConfigFrame(r io.Reader) (model.SessionConfig, error) {
	var cfg model.SessionConfig
	length, err := readLength(r)
	if err != nil {
		return cfg, &ProtocolError{Frame: "config length", Err: err}
	}
	if length == 0 || length > spec.MaxFrameSize {
		return cfg, &ProtocolError{Frame: "config length",
			Err: fmt.Errorf("length %d out of range", length)}
	}
	data, err := codec.ReceiveFull(r, int(length))
	if err != nil {
		return cfg, &ProtocolError{Frame: "config", Err: err}
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, &ProtocolError{Frame: "config", Err: err}
	}
	return cfg, nil
}

// WriteAck writes the fixed acknowledgment bytes.
func WriteAck(w io.Writer) error {
	_, err := w.Write([]byte(spec.Ack))
	return err
}

// ReadAck consumes the acknowledgment bytes, failing with a *ProtocolError
// on anything else.
func ReadAck(r io.Reader) error {
	buf := make([]byte, len(spec.Ack))
	if _, err := io.ReadFull(r, buf); err != nil {
		return &ProtocolError{Frame: "ack", Err: err}
	}
	if string(buf) != spec.Ack {
		return &ProtocolError{Frame: "ack",
			Err: fmt.Errorf("unexpected acknowledgment %q", buf)}
	}
	return nil
}

// WriteRequest writes a request header and its payload.
func WriteRequest(w io.Writer, splitIndex uint32, payload []byte) error {
	header := make([]byte, spec.RequestHeaderSize)
	binary.BigEndian.PutUint32(header, splitIndex)
	binary.BigEndian.PutUint32(header[4:], uint32(len(payload)))
	if _, err := w.Write(header); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// ReadRequestHeader reads the next request header. A closed connection, or
// one that closes before a full header arrives, is a clean end of session:
// ok is false and err is nil. Transport failures set err.
func ReadRequestHeader(r io.Reader) (hdr RequestHeader, ok bool, err error) {
	buf := make([]byte, spec.RequestHeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return RequestHeader{}, false, nil
		}
		return RequestHeader{}, false, err
	}
	hdr.SplitIndex = binary.BigEndian.Uint32(buf)
	hdr.PayloadLength = binary.BigEndian.Uint32(buf[4:])
	return hdr, true, nil
}

// WriteResponse writes the result frame: length, ASCII processing time,
// result bytes.
func WriteResponse(w io.Writer, result []byte, processing time.Duration) error {
	frame := make([]byte, spec.LengthPrefixSize+spec.ProcessingTimeSize+len(result))
	binary.BigEndian.PutUint32(frame, uint32(len(result)))
	copy(frame[spec.LengthPrefixSize:], FormatProcessingTime(processing))
	copy(frame[spec.LengthPrefixSize+spec.ProcessingTimeSize:], result)
	_, err := w.Write(frame)
	return err
}

// ReadResponse reads a result frame and returns the result bytes and the
// server-side processing time.
func ReadResponse(r io.Reader) ([]byte, time.Duration, error) {
	length, err := readLength(r)
	if err != nil {
		return nil, 0, &ProtocolError{Frame: "result length", Err: err}
	}
	if length > spec.MaxFrameSize {
		return nil, 0, &ProtocolError{Frame: "result length",
			Err: fmt.Errorf("length %d out of range", length)}
	}
	timeField, err := codec.ReceiveFull(r, spec.ProcessingTimeSize)
	if err != nil {
		return nil, 0, &ProtocolError{Frame: "processing time", Err: err}
	}
	processing, err := ParseProcessingTime(timeField)
	if err != nil {
		return nil, 0, &ProtocolError{Frame: "processing time", Err: err}
	}
	result, err := codec.ReceiveFull(r, int(length))
	if err != nil {
		return nil, 0, &ProtocolError{Frame: "result", Err: err}
	}
	return result, processing, nil
}

// FormatProcessingTime renders a duration as the wire's 4-byte ASCII
// seconds field: the shortest decimal form, right-padded with spaces and
// truncated to exactly 4 bytes.
func FormatProcessingTime(d time.Duration) []byte {
	s := strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
	field := make([]byte, spec.ProcessingTimeSize)
	for i := range field {
		field[i] = ' '
	}
	copy(field, s)
	return field
}

// ParseProcessingTime parses the 4-byte ASCII seconds field.
func ParseProcessingTime(field []byte) (time.Duration, error) {
	s := strings.TrimSpace(string(field))
	seconds, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed processing time %q", field)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

func readLength(r io.Reader) (uint32, error) {
	buf := make([]byte, spec.LengthPrefixSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf), nil
}
