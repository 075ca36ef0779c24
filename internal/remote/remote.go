// Package remote executes commands and transfers files on managed devices
// over SSH. Host keys are not verified: devices live on a trusted lab
// network and are authenticated by their SSH key pairs.
package remote

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
)

// DefaultDialTimeout bounds the TCP+SSH handshake when dialing a device.
const DefaultDialTimeout = 10 * time.Second

// CommandResult holds the outcome of one remote command. A non-zero
// ExitCode is a result, not an error: transport failures are reported
// separately.
type CommandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// An Executor runs commands on a device. It exists so device fan-out can be
// tested without live SSH servers.
type Executor interface {
	Run(ctx context.Context, cmd string) (CommandResult, error)
	Transfer(ctx context.Context, localPath, remotePath string) error
	Close() error
}

// Client is an SSH Executor.
type Client struct {
	client *ssh.Client
}

var _ Executor = (*Client)(nil)

// Dial connects to host:port as user, authenticating with signer.
func Dial(host string, port int, user string, signer ssh.Signer, timeout time.Duration) (*Client, error) {
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}
	config := &ssh.ClientConfig{
		User: user,
		Auth: []ssh.AuthMethod{
			ssh.PublicKeys(signer),
		},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         timeout,
	}
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	client, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		return nil, fmt.Errorf("ssh dial %s: %w", addr, err)
	}
	return &Client{client: client}, nil
}

// Run executes cmd on the device and returns its output and exit code.
// Canceling ctx closes the session.
func (c *Client) Run(ctx context.Context, cmd string) (CommandResult, error) {
	session, err := c.client.NewSession()
	if err != nil {
		return CommandResult{}, fmt.Errorf("ssh session: %w", err)
	}
	defer session.Close()

	var stdout, stderr strings.Builder
	session.Stdout = &stdout
	session.Stderr = &stderr

	// x/crypto/ssh does not support context cancellation directly; closing
	// the session unblocks Run.
	done := make(chan error, 1)
	go func() {
		done <- session.Run(cmd)
	}()

	select {
	case <-ctx.Done():
		session.Close()
		return CommandResult{Stdout: stdout.String(), Stderr: stderr.String()}, ctx.Err()
	case err := <-done:
		result := CommandResult{Stdout: stdout.String(), Stderr: stderr.String()}
		if err != nil {
			var exitErr *ssh.ExitError
			if errors.As(err, &exitErr) {
				result.ExitCode = exitErr.ExitStatus()
				return result, nil
			}
			return result, err
		}
		return result, nil
	}
}

// Transfer copies a local file or directory tree to remotePath on the
// device. Directories are streamed as a tar archive and unpacked remotely;
// files are streamed through cat. The remote parent directory is created if
// needed.
func (c *Client) Transfer(ctx context.Context, localPath, remotePath string) error {
	info, err := os.Stat(localPath)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return c.transferDir(ctx, localPath, remotePath)
	}
	return c.transferFile(ctx, localPath, remotePath)
}

func (c *Client) transferFile(ctx context.Context, localPath, remotePath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()

	dir := filepath.ToSlash(filepath.Dir(remotePath))
	cmd := fmt.Sprintf("mkdir -p %s && cat > %s", shellQuote(dir), shellQuote(remotePath))
	return c.runWithStdin(ctx, cmd, f)
}

func (c *Client) transferDir(ctx context.Context, localDir, remoteDir string) error {
	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(writeTar(pw, localDir))
	}()

	cmd := fmt.Sprintf("mkdir -p %s && tar -xf - -C %s", shellQuote(remoteDir), shellQuote(remoteDir))
	return c.runWithStdin(ctx, cmd, pr)
}

func (c *Client) runWithStdin(ctx context.Context, cmd string, stdin io.Reader) error {
	session, err := c.client.NewSession()
	if err != nil {
		return fmt.Errorf("ssh session: %w", err)
	}
	defer session.Close()

	var stderr strings.Builder
	session.Stdin = stdin
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() {
		done <- session.Run(cmd)
	}()

	select {
	case <-ctx.Done():
		session.Close()
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return fmt.Errorf("remote %q: %w (stderr: %s)", cmd, err, stderr.String())
		}
		return nil
	}
}

// Close closes the SSH connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// writeTar streams dir's contents (not dir itself) as a tar archive.
func writeTar(w io.Writer, dir string) error {
	tw := tar.NewWriter(w)
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
	if err != nil {
		tw.Close()
		return err
	}
	return tw.Close()
}

// shellQuote wraps s in single quotes, escaping embedded single quotes, so
// paths survive the remote shell.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
