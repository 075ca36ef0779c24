// Package probe answers one question about a host: does it accept TCP
// connections on a given port right now? It backs device reachability
// checks and local-network scans.
package probe

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/splitbench/splitbench/internal/metrics"
)

const (
	// DefaultCIDR is the network scanned when no candidate pool is given.
	DefaultCIDR = "192.168.1.0/24"

	// DefaultPort is the port probed when none is given. SSH is the one
	// service every managed device is expected to run.
	DefaultPort = 22

	// DefaultTimeout bounds a single probe.
	DefaultTimeout = 500 * time.Millisecond

	// DefaultWorkers is the size of the scan worker pool.
	DefaultWorkers = 10

	// maxScanHosts bounds CIDR expansion so a misconfigured prefix does not
	// turn a LAN scan into an internet scan.
	maxScanHosts = 1 << 16
)

// Prober runs TCP reachability checks.
type Prober struct {
	logger *log.Logger
}

// New returns a Prober logging through the given logger.
func New(logger *log.Logger) *Prober {
	return &Prober{logger: logger}
}

// IsReachable reports whether host accepts a TCP connection on port within
// timeout. Every failure class (refused, filtered, unresolvable, timed out)
// counts as unreachable.
func (p *Prober) IsReachable(host string, port int, timeout time.Duration) bool {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(host, strconv.Itoa(port)), timeout)
	if err != nil {
		p.logger.Debug("probe failed", "host", host, "port", port, "err", err)
		metrics.Probes.WithLabelValues("unreachable").Inc()
		return false
	}
	conn.Close()
	metrics.Probes.WithLabelValues("reachable").Inc()
	return true
}

// Scan probes every host on port with a bounded worker pool and returns the
// reachable ones, preserving the input order. Worker failures are
// independent: one unreachable host never affects the others. Scan stops
// launching new probes once ctx is done.
func (p *Prober) Scan(ctx context.Context, hosts []string, port int, timeout time.Duration, workers int) []string {
	if workers < 1 {
		workers = DefaultWorkers
	}
	// Each worker writes only its own slot, so the results need no lock.
	results := make([]bool, len(hosts))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for i, host := range hosts {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, host string) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = p.IsReachable(host, port, timeout)
		}(i, host)
	}
	wg.Wait()

	var reachable []string
	for i, ok := range results {
		if ok {
			reachable = append(reachable, hosts[i])
		}
	}
	p.logger.Debug("scan complete", "candidates", len(hosts), "reachable", len(reachable))
	return reachable
}

// Hosts expands an IPv4 CIDR into its host addresses, excluding the network
// and broadcast addresses.
func Hosts(cidr string) ([]string, error) {
	prefix, err := netip.ParsePrefix(cidr)
	if err != nil {
		return nil, err
	}
	if !prefix.Addr().Is4() {
		return nil, fmt.Errorf("cidr %s must be IPv4", cidr)
	}
	ones, bits := prefix.Bits(), 32
	size := 1 << uint(bits-ones)
	if size > maxScanHosts {
		return nil, fmt.Errorf("cidr %s is too large to scan (size=%d)", cidr, size)
	}
	if size <= 2 {
		// /31 and /32 have no network/broadcast split.
		return []string{prefix.Masked().Addr().String()}, nil
	}

	base := prefix.Masked().Addr()
	hosts := make([]string, 0, size-2)
	for i := 1; i < size-1; i++ { // skip network/broadcast
		hosts = append(hosts, addIPv4(base, uint32(i)).String())
	}
	return hosts, nil
}

func addIPv4(base netip.Addr, offset uint32) netip.Addr {
	v := base.As4()
	val := uint32(v[0])<<24 | uint32(v[1])<<16 | uint32(v[2])<<8 | uint32(v[3])
	val += offset
	return netip.AddrFrom4([4]byte{byte(val >> 24), byte(val >> 16), byte(val >> 8), byte(val)})
}
