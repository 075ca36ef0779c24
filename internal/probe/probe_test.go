package probe_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/m-lab/go/rtx"
	"github.com/splitbench/splitbench/internal/probe"
)

// listen opens a loopback listener that accepts and immediately closes
// connections until the test ends.
func listen(t *testing.T) *net.TCPAddr {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	rtx.Must(err, "failed to create listener")
	t.Cleanup(func() { l.Close() })
	go func() {
		for {
			c, err := l.Accept()
			if err != nil {
				return
			}
			c.Close()
		}
	}()
	return l.Addr().(*net.TCPAddr)
}

func TestIsReachable(t *testing.T) {
	p := probe.New(log.Default())
	addr := listen(t)

	if !p.IsReachable(addr.IP.String(), addr.Port, time.Second) {
		t.Errorf("IsReachable() = false for a listening socket")
	}

	// A freshly closed listener's port refuses connections.
	closed, err := net.Listen("tcp", "127.0.0.1:0")
	rtx.Must(err, "failed to create listener")
	closedAddr := closed.Addr().(*net.TCPAddr)
	closed.Close()
	if p.IsReachable(closedAddr.IP.String(), closedAddr.Port, time.Second) {
		t.Errorf("IsReachable() = true for a closed socket")
	}

	if p.IsReachable("host.invalid", 22, 100*time.Millisecond) {
		t.Errorf("IsReachable() = true for an unresolvable host")
	}
}

func TestScan(t *testing.T) {
	p := probe.New(log.Default())
	a := listen(t)

	got := p.Scan(context.Background(), []string{"127.0.0.1"}, a.Port, time.Second, 4)
	if len(got) != 1 || got[0] != "127.0.0.1" {
		t.Fatalf("Scan() = %v, want [127.0.0.1]", got)
	}

	closed, err := net.Listen("tcp", "127.0.0.1:0")
	rtx.Must(err, "failed to create listener")
	closedPort := closed.Addr().(*net.TCPAddr).Port
	closed.Close()
	got = p.Scan(context.Background(), []string{"127.0.0.1", "127.0.0.1"}, closedPort, 200*time.Millisecond, 2)
	if len(got) != 0 {
		t.Fatalf("Scan() = %v, want no reachable hosts", got)
	}
}

func TestScanCanceled(t *testing.T) {
	p := probe.New(log.Default())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	got := p.Scan(ctx, []string{"192.0.2.1", "192.0.2.2"}, 22, 50*time.Millisecond, 2)
	if len(got) != 0 {
		t.Fatalf("Scan() with canceled context = %v, want no hosts", got)
	}
}

func TestHosts(t *testing.T) {
	tests := []struct {
		name    string
		cidr    string
		want    int
		first   string
		last    string
		wantErr bool
	}{
		{
			name:  "slash-24",
			cidr:  "192.168.1.0/24",
			want:  254,
			first: "192.168.1.1",
			last:  "192.168.1.254",
		},
		{
			name:  "slash-30",
			cidr:  "10.0.0.0/30",
			want:  2,
			first: "10.0.0.1",
			last:  "10.0.0.2",
		},
		{
			name:  "slash-32",
			cidr:  "10.1.2.3/32",
			want:  1,
			first: "10.1.2.3",
			last:  "10.1.2.3",
		},
		{
			name:    "too-large",
			cidr:    "10.0.0.0/8",
			wantErr: true,
		},
		{
			name:    "ipv6",
			cidr:    "2001:db8::/64",
			wantErr: true,
		},
		{
			name:    "malformed",
			cidr:    "not-a-cidr",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := probe.Hosts(tt.cidr)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Hosts() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if len(got) != tt.want {
				t.Fatalf("Hosts() returned %d hosts, want %d", len(got), tt.want)
			}
			if got[0] != tt.first || got[len(got)-1] != tt.last {
				t.Errorf("Hosts() range = [%s, %s], want [%s, %s]",
					got[0], got[len(got)-1], tt.first, tt.last)
			}
		})
	}
}
