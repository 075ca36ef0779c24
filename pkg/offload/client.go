package offload

import (
	"context"
	"net"
	"time"

	"github.com/charmbracelet/log"
	"github.com/splitbench/splitbench/internal/netx"
	"github.com/splitbench/splitbench/pkg/offload/model"
	"github.com/splitbench/splitbench/pkg/offload/spec"
)

// Client is the host side of an offload session. It owns the transport
// only: payloads cross it already compressed and results come back still
// compressed, so the caller's clock can separate its own codec cost from
// the round trip.
type Client struct {
	conn   *netx.Conn
	logger *log.Logger
}

// Dial connects to an offload server, sends the session config and waits
// for the acknowledgment. The returned Client is ready for Offload calls.
func Dial(ctx context.Context, addr string, cfg model.SessionConfig, logger *log.Logger) (*Client, error) {
	dialer := &net.Dialer{Timeout: spec.DefaultDialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	c := &Client{
		logger: logger,
	}
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		conn.Close()
		return nil, errNotTCP
	}
	c.conn, err = netx.FromTCPConn(tcpConn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := c.handshake(ctx, cfg); err != nil {
		c.conn.Close()
		return nil, err
	}
	logger.Debug("session established", "server", addr,
		"codec", cfg.Compression.Codec, "stages", cfg.Pipeline.Stages)
	return c, nil
}

func (c *Client) handshake(ctx context.Context, cfg model.SessionConfig) error {
	if err := c.applyDeadline(ctx); err != nil {
		return err
	}
	if err := WriteConfigFrame(c.conn, cfg); err != nil {
		return err
	}
	return ReadAck(c.conn)
}

// Offload sends one compressed payload for suffix execution at splitIndex
// and returns the compressed result together with the server's reported
// processing time. The caller measures the wall clock around this call;
// subtracting the server time yields the transfer cost.
func (c *Client) Offload(ctx context.Context, splitIndex int, payload []byte) ([]byte, time.Duration, error) {
	if err := c.applyDeadline(ctx); err != nil {
		return nil, 0, err
	}
	if err := WriteRequest(c.conn, uint32(splitIndex), payload); err != nil {
		return nil, 0, err
	}
	return ReadResponse(c.conn)
}

// applyDeadline maps the context deadline onto the connection so blocked
// reads and writes observe cancellation.
func (c *Client) applyDeadline(ctx context.Context) error {
	if deadline, ok := ctx.Deadline(); ok {
		return c.conn.SetDeadline(deadline)
	}
	return c.conn.SetDeadline(time.Time{})
}

// ConnInfo exposes the underlying connection's kernel-level state for
// archival alongside the sweep results.
func (c *Client) ConnInfo() netx.ConnInfo {
	return c.conn
}

// Close ends the session. The server reads the closed connection as a
// clean end of the request stream.
func (c *Client) Close() error {
	return c.conn.Close()
}
