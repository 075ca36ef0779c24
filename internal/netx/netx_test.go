package netx_test

import (
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/m-lab/go/rtx"
	"github.com/splitbench/splitbench/internal/netx"
)

func dialAsync(t *testing.T, addr string) {
	go func() {
		// Because the socket already exists, Dial will block until Accept is
		// called below.
		c, err := net.Dial("tcp", addr)
		if err != nil {
			t.Errorf("unexpected failure to dial local conn: %v", err)
			return
		}
		// Wait until primary test routine closes conn and returns.
		buf := make([]byte, 1)
		c.Read(buf)
		c.Close()
	}()
}

func TestListener_Accept(t *testing.T) {
	tcpl, err := net.ListenTCP("tcp", &net.TCPAddr{})
	rtx.Must(err, "failed to create listener")
	l := netx.NewListener(tcpl)
	defer l.Close()
	dialAsync(t, tcpl.Addr().String())

	got, err := l.Accept()
	if err != nil {
		t.Fatalf("Listener.Accept() unexpected error = %v", err)
	}

	var c netx.ConnInfo
	var ok bool
	if c, ok = got.(netx.ConnInfo); !ok {
		t.Fatalf("Listener.Accept() wrong Conn type = %T, want netx.Conn", got)
	}
	// Check that the AcceptTime is in the past minute (i.e. that it has been
	// initialized).
	at := c.AcceptTime()
	if time.Since(at) > 1*time.Minute {
		t.Fatalf("invalid accept time")
	}

	// Accept error due to closed listener.
	tcpl, err = net.ListenTCP("tcp", &net.TCPAddr{})
	rtx.Must(err, "failed to create listener")
	l = netx.NewListener(tcpl)
	defer l.Close()

	tcpl.Close()
	_, err = l.Accept()
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
}

func TestConn_ByteCounters(t *testing.T) {
	tcpl, err := net.ListenTCP("tcp", &net.TCPAddr{})
	rtx.Must(err, "failed to create listener")
	l := netx.NewListener(tcpl)
	defer l.Close()

	go func() {
		c, err := net.Dial("tcp", tcpl.Addr().String())
		if err != nil {
			t.Errorf("unexpected failure to dial local conn: %v", err)
			return
		}
		defer c.Close()
		if _, err := c.Write([]byte("ping")); err != nil {
			t.Errorf("client write failed: %v", err)
			return
		}
		buf := make([]byte, 4)
		io.ReadFull(c, buf)
	}()

	got, err := l.Accept()
	if err != nil {
		t.Fatalf("Listener.Accept() unexpected error = %v", err)
	}
	defer got.Close()

	buf := make([]byte, 4)
	if _, err := io.ReadFull(got, buf); err != nil {
		t.Fatalf("server read failed: %v", err)
	}
	if _, err := got.Write([]byte("pong")); err != nil {
		t.Fatalf("server write failed: %v", err)
	}

	read, written := netx.ToConnInfo(got).ByteCounters()
	if read != 4 || written != 4 {
		t.Errorf("ByteCounters() = (%d, %d), want (4, 4)", read, written)
	}
}

func TestConn_InfoAndUUID(t *testing.T) {
	tcpl, err := net.ListenTCP("tcp", &net.TCPAddr{})
	rtx.Must(err, "failed to create listener")
	l := netx.NewListener(tcpl)
	defer l.Close()
	dialAsync(t, tcpl.Addr().String())
	got, err := l.Accept()
	if err != nil {
		t.Fatalf("Listener.Accept() unexpected error = %v", err)
	}
	defer got.Close()

	var c netx.ConnInfo
	var ok bool
	if c, ok = got.(netx.ConnInfo); !ok {
		t.Fatalf("Listener.Accept() wrong Conn type = %T, want netx.Conn", got)
	}
	if _, err := c.UUID(); err != nil {
		t.Errorf("UUID failed: %v", err)
	}
	// Info is only expected to succeed where TCP_INFO is supported; on other
	// platforms it must return an error rather than panic.
	c.Info()
}

func TestConn_CC(t *testing.T) {
	tcpl, err := net.ListenTCP("tcp", &net.TCPAddr{})
	rtx.Must(err, "failed to create listener")
	l := netx.NewListener(tcpl)
	defer l.Close()
	dialAsync(t, tcpl.Addr().String())
	got, err := l.Accept()
	if err != nil {
		t.Fatalf("Listener.Accept() unexpected error = %v", err)
	}
	defer got.Close()

	c := netx.ToConnInfo(got)
	cc, err := c.GetCC()
	if err != nil {
		t.Skipf("cannot read congestion control on this platform: %v", err)
	}
	if cc == "" {
		t.Errorf("GetCC() returned an empty algorithm")
	}
	// Re-applying the algorithm already in use must succeed.
	if err := c.SetCC(cc); err != nil {
		t.Errorf("SetCC(%q) failed: %v", cc, err)
	}
}

func TestFromTCPConn(t *testing.T) {
	tcpl, err := net.ListenTCP("tcp", &net.TCPAddr{})
	rtx.Must(err, "failed to create listener")
	defer tcpl.Close()
	go func() {
		c, err := tcpl.Accept()
		if err != nil {
			return
		}
		buf := make([]byte, 1)
		c.Read(buf)
		c.Close()
	}()

	tc, err := net.DialTCP("tcp", nil, tcpl.Addr().(*net.TCPAddr))
	rtx.Must(err, "failed to dial local listener")
	conn, err := netx.FromTCPConn(tc)
	if err != nil {
		t.Fatalf("FromTCPConn() error = %v", err)
	}
	defer conn.Close()
	if _, err := conn.UUID(); err != nil {
		t.Errorf("UUID failed: %v", err)
	}
	if time.Since(conn.AcceptTime()) > 1*time.Minute {
		t.Errorf("invalid accept time")
	}
}

func TestToConnInfo(t *testing.T) {
	// NOTE: because we cannot synthetically create a tls.Conn that wraps a
	// netx.Conn, we must setup an httptest server with TLS enabled. While we
	// do that, we use it to validate the regular HTTP server netx.Conn as
	// well.

	tests := []struct {
		name    string
		withTLS bool
	}{
		{
			name:    "success-Conn",
			withTLS: false,
		},
		{
			name:    "success-tls.Conn",
			withTLS: true,
		},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(rw http.ResponseWriter, req *http.Request) {
		hj, ok := rw.(http.Hijacker)
		if !ok {
			t.Errorf("httptest Server does not support Hijacker interface")
			return
		}
		conn, _, err := hj.Hijack()
		if err != nil {
			t.Errorf("failed to hijack responsewriter")
			return
		}
		defer conn.Close()
		// Write a fake reply for the client.
		conn.Write([]byte("HTTP/1.0 200 OK\n\ntest"))

		// Extract the ConnInfo from the hijacked conn.
		got := netx.ToConnInfo(conn)
		if got == nil {
			t.Errorf("ToConnInfo() failed to return ConnInfo from conn")
		}
	})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := httptest.NewUnstartedServer(mux)
			// Setup local listener using our Listener rather than the default.
			laddr := &net.TCPAddr{
				IP: net.ParseIP("127.0.0.1"),
			}
			tcpl, err := net.ListenTCP("tcp", laddr)
			rtx.Must(err, "failed to listen during unit test")
			// Use our listener in the httptest Server.
			s.Listener = netx.NewListener(tcpl)
			// Start a plain or tls server.
			if tt.withTLS {
				s.StartTLS()
			} else {
				s.Start()
			}
			defer s.Close()

			// Use the server-provided client for TLS settings.
			c := s.Client()
			req, err := http.NewRequest(http.MethodGet, s.URL, nil)
			rtx.Must(err, "Failed to create request to %s", s.URL)
			// Run request to run conn test in handler.
			resp, err := c.Do(req)
			rtx.Must(err, "failed to GET %s", s.URL)
			b, err := io.ReadAll(resp.Body)
			rtx.Must(err, "failed to read reply from %s", s.URL)

			if string(b) != "test" {
				t.Errorf("failed to receive reply from server")
			}
		})
	}
}

func TestToConnInfoPanic(t *testing.T) {
	// Verify that unsupported net.Conn types cause a panic.
	defer func() {
		if r := recover(); r == nil {
			t.Errorf("ToConnInfo did not panic on an unsupported type.")
		}
	}()

	netx.ToConnInfo(&net.UDPConn{})
}
