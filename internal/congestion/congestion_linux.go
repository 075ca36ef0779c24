package congestion

import (
	"os"

	"golang.org/x/sys/unix"
)

func set(fp *os.File, cc string) error {
	return unix.SetsockoptString(int(fp.Fd()), unix.IPPROTO_TCP,
		unix.TCP_CONGESTION, cc)
}

func get(fp *os.File) (string, error) {
	return unix.GetsockoptString(int(fp.Fd()), unix.IPPROTO_TCP,
		unix.TCP_CONGESTION)
}
