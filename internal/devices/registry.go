package devices

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/splitbench/splitbench/internal/probe"
	"github.com/splitbench/splitbench/internal/remote"
	"gopkg.in/yaml.v3"
)

// RegistryConfig locates the device source file and the key store.
type RegistryConfig struct {
	// Source is the path of the YAML device list.
	Source string
	// KeyDir is the directory holding the private keys the source file
	// references.
	KeyDir string
}

// registryFile is the on-disk shape of the device source.
type registryFile struct {
	Devices []deviceEntry `yaml:"devices"`
}

type deviceEntry struct {
	DeviceType       string           `yaml:"device_type"`
	ConnectionParams []CredentialSpec `yaml:"connection_params"`
}

// Registry holds every device loaded from a source file. Each Device
// belongs to exactly one Registry.
type Registry struct {
	devices []*Device
	logger  *log.Logger
}

// NewRegistry loads the device source. A missing source file, a missing
// key store or an over-permissive key-store directory fail construction;
// individual devices that fail to build are logged and skipped.
func NewRegistry(cfg RegistryConfig, prober *probe.Prober, logger *log.Logger) (*Registry, error) {
	info, err := os.Stat(cfg.KeyDir)
	if err != nil {
		return nil, fmt.Errorf("key store: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("key store %s is not a directory", cfg.KeyDir)
	}
	if err := checkKeyPermissions(cfg.KeyDir, info.Mode()); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("device source: %w", err)
	}
	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("device source %s: %w", cfg.Source, err)
	}

	r := &Registry{logger: logger}
	for _, entry := range file.Devices {
		typ, err := ParseDeviceType(entry.DeviceType)
		if err != nil {
			logger.Warn("skipping device", "err", err)
			continue
		}
		device, err := NewDevice(typ, entry.ConnectionParams, cfg.KeyDir, prober, logger)
		if err != nil {
			logger.Warn("skipping device", "device", typ, "err", err)
			continue
		}
		r.devices = append(r.devices, device)
	}
	logger.Info("device registry loaded",
		"source", cfg.Source, "devices", len(r.devices))
	return r, nil
}

// Devices returns every loaded device in source order.
func (r *Registry) Devices() []*Device {
	return r.devices
}

// List returns the devices of the given type in source order. With
// availableOnly set, only devices with a working credential are included.
func (r *Registry) List(typ DeviceType, availableOnly bool) []*Device {
	var out []*Device
	for _, d := range r.devices {
		if d.Type != typ {
			continue
		}
		if availableOnly && !d.Reachable() {
			continue
		}
		out = append(out, d)
	}
	return out
}

// FindByType returns the first device of the given type. The second return
// value reports whether one exists.
func (r *Registry) FindByType(typ DeviceType) (*Device, bool) {
	for _, d := range r.devices {
		if d.Type == typ {
			return d, true
		}
	}
	return nil, false
}

// CommandOutcome is one device's result of a broadcast command. Err is set
// when the device could not be reached or the session failed; a non-zero
// exit code is reported through the embedded CommandResult instead.
type CommandOutcome struct {
	remote.CommandResult
	Err error
}

// BroadcastCommand runs a command on every available device of the given
// type concurrently and returns the outcomes keyed by host. One device's
// failure never affects the others.
func (r *Registry) BroadcastCommand(ctx context.Context, command string, typ DeviceType) map[string]CommandOutcome {
	targets := r.List(typ, true)
	outcomes := make(map[string]CommandOutcome, len(targets))

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, d := range targets {
		host, err := d.Host()
		if err != nil {
			// List(typ, true) only returns bound devices.
			continue
		}
		wg.Add(1)
		go func(d *Device, host string) {
			defer wg.Done()
			result, err := d.RunCommand(ctx, command)
			if err != nil {
				r.logger.Warn("broadcast command failed",
					"host", host, "err", err)
			}
			mu.Lock()
			outcomes[host] = CommandOutcome{CommandResult: result, Err: err}
			mu.Unlock()
		}(d, host)
	}
	wg.Wait()
	return outcomes
}

// BroadcastTransfer copies a local file or directory to every available
// device of the given type concurrently. It returns per-host success, with
// failures logged.
func (r *Registry) BroadcastTransfer(ctx context.Context, localPath, remotePath string, typ DeviceType) map[string]bool {
	targets := r.List(typ, true)
	results := make(map[string]bool, len(targets))

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, d := range targets {
		host, err := d.Host()
		if err != nil {
			continue
		}
		wg.Add(1)
		go func(d *Device, host string) {
			defer wg.Done()
			err := d.Transfer(ctx, localPath, remotePath)
			if err != nil {
				r.logger.Warn("broadcast transfer failed",
					"host", host, "err", err)
			}
			mu.Lock()
			results[host] = err == nil
			mu.Unlock()
		}(d, host)
	}
	wg.Wait()
	return results
}
