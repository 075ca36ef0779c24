package offload

import (
	"errors"
	"fmt"
)

// errNotTCP is returned when a dialed connection is not backed by a TCP
// socket and therefore cannot report kernel-level instrumentation.
var errNotTCP = errors.New("connection is not TCP")

// ProtocolError reports a violation of the offload wire protocol. It is
// session-fatal: the connection is torn down, but the listener keeps
// serving.
type ProtocolError struct {
	// Frame names the frame being read or written when the violation was
	// detected.
	Frame string
	Err   error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol: %s: %v", e.Frame, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}
