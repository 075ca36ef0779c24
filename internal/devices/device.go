package devices

import (
	"context"
	"fmt"
	"sort"

	"github.com/charmbracelet/log"
	"github.com/splitbench/splitbench/internal/probe"
	"github.com/splitbench/splitbench/internal/remote"
)

// DeviceType classifies the role a device plays in an experiment.
type DeviceType string

const (
	// Server devices run the offload listener.
	Server = DeviceType("SERVER")

	// Participant devices run the host side of an experiment.
	Participant = DeviceType("PARTICIPANT")
)

// ParseDeviceType validates a device_type value from the source file.
func ParseDeviceType(s string) (DeviceType, error) {
	switch t := DeviceType(s); t {
	case Server, Participant:
		return t, nil
	default:
		return "", fmt.Errorf("unknown device type %q", s)
	}
}

// Device is one managed device. Its working credential is bound once, at
// construction time: the first credential (defaults first) whose host
// answers a TCP probe on its SSH port. The binding is never re-evaluated.
type Device struct {
	// Type is the device's role.
	Type DeviceType
	// Credentials holds every validated credential, defaults first.
	Credentials []*Credential

	working *Credential
	logger  *log.Logger
}

// NewDevice validates the supplied credential specs and binds a working
// credential. Credentials failing permission checks or validation are
// logged and skipped; if none survive, NewDevice fails with
// ErrNoValidCredentials. A device whose credentials are all valid but
// unreachable is still constructed: it is just not reachable.
func NewDevice(typ DeviceType, specs []CredentialSpec, keyDir string, prober *probe.Prober, logger *log.Logger) (*Device, error) {
	var creds []*Credential
	for _, spec := range specs {
		cred, err := NewCredential(spec, keyDir)
		if err != nil {
			logger.Warn("skipping credential",
				"device", typ, "host", spec.Host, "err", err)
			continue
		}
		creds = append(creds, cred)
	}
	if len(creds) == 0 {
		return nil, fmt.Errorf("%w for %s device", ErrNoValidCredentials, typ)
	}

	// Default credentials first, preserving the source order within each
	// group.
	sort.SliceStable(creds, func(i, j int) bool {
		return creds[i].Default && !creds[j].Default
	})

	d := &Device{
		Type:        typ,
		Credentials: creds,
		logger:      logger,
	}
	for _, cred := range creds {
		if prober.IsReachable(cred.Host, cred.SSHPort, probe.DefaultTimeout) {
			d.working = cred
			break
		}
		logger.Debug("credential unreachable",
			"device", typ, "host", cred.Host, "port", cred.SSHPort)
	}
	if d.working == nil {
		logger.Warn("device constructed without a reachable credential", "device", typ)
	}
	return d, nil
}

// Reachable reports whether a working credential was bound at construction
// time.
func (d *Device) Reachable() bool {
	return d.working != nil
}

// Host returns the working credential's address.
func (d *Device) Host() (string, error) {
	if d.working == nil {
		return "", ErrNotBound
	}
	return d.working.Host, nil
}

// Port returns the working credential's experiment port. Zero means the
// credential does not name one and the caller should fall back to the
// protocol default.
func (d *Device) Port() (int, error) {
	if d.working == nil {
		return 0, ErrNotBound
	}
	return d.working.ExperimentPort, nil
}

// Username returns the working credential's login name.
func (d *Device) Username() (string, error) {
	if d.working == nil {
		return "", ErrNotBound
	}
	return d.working.Username, nil
}

// PrivateKeyPath returns the working credential's resolved key path.
func (d *Device) PrivateKeyPath() (string, error) {
	if d.working == nil {
		return "", ErrNotBound
	}
	return d.working.PrivateKeyPath, nil
}

// RunCommand executes a command on the device through its working
// credential.
func (d *Device) RunCommand(ctx context.Context, command string) (remote.CommandResult, error) {
	client, err := d.dial()
	if err != nil {
		return remote.CommandResult{}, err
	}
	defer client.Close()
	return client.Run(ctx, command)
}

// Transfer copies a local file or directory to the device through its
// working credential.
func (d *Device) Transfer(ctx context.Context, localPath, remotePath string) error {
	client, err := d.dial()
	if err != nil {
		return err
	}
	defer client.Close()
	return client.Transfer(ctx, localPath, remotePath)
}

func (d *Device) dial() (*remote.Client, error) {
	if d.working == nil {
		return nil, ErrNotBound
	}
	return remote.Dial(d.working.Host, d.working.SSHPort, d.working.Username,
		d.working.signer, remote.DefaultDialTimeout)
}
