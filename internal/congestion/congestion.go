// Package congestion contains code required to read and set the congestion
// control algorithm of a net.Conn. This code currently only works on Linux
// systems, as TCP_CONGESTION is only available there.
package congestion

import (
	"errors"
	"os"
)

// ErrNoSupport indicates that this system does not support TCP_CONGESTION.
var ErrNoSupport = errors.New("TCP_CONGESTION not supported")

// Set sets the congestion control algorithm for |fp|.
func Set(fp *os.File, cc string) error {
	return set(fp, cc)
}

// Get returns the congestion control algorithm |fp| currently uses.
func Get(fp *os.File) (string, error) {
	return get(fp)
}
