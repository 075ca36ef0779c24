// Package devices manages the connection credentials, device records and
// device registry behind splitbench experiments. A device is known by its
// type (SERVER or PARTICIPANT) and reached through the first of its
// credentials that passes validation and a reachability probe.
package devices

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/crypto/ssh"
)

const (
	// maxUsernameLength is the longest accepted username. It matches the
	// traditional Linux limit.
	maxUsernameLength = 31

	// DefaultSSHPort is the SSH port assumed when a credential does not
	// name one.
	DefaultSSHPort = 22
)

// CredentialSpec is one connection_params entry of the device source file.
type CredentialSpec struct {
	// Host is the device address.
	Host string `yaml:"host"`
	// User is the login username.
	User string `yaml:"user"`
	// KeyFile references a private key in the key store by file name.
	KeyFile string `yaml:"pkey_fp"`
	// Port is the experiment port offered by this device, if any.
	Port int `yaml:"port"`
	// SSHPort is the SSH port. Zero means DefaultSSHPort.
	SSHPort int `yaml:"ssh_port"`
	// Default marks this credential as preferred.
	Default bool `yaml:"default"`
}

// Credential is a validated connection credential. Its private key has been
// permission-checked and parsed; KeyType names the detected key algorithm.
type Credential struct {
	Host           string
	Username       string
	PrivateKeyPath string
	ExperimentPort int
	SSHPort        int
	Default        bool
	KeyType        string

	signer ssh.Signer
}

// NewCredential validates spec and loads its private key from the key
// store. The key is referenced by file name: any directory part of
// spec.KeyFile is discarded before resolving against keyDir. Validation
// failures return *ValidationError; an unreadable or unparseable key
// returns *CredentialError; a key with group or other permission bits set
// returns *PermissionError.
func NewCredential(spec CredentialSpec, keyDir string) (*Credential, error) {
	host := strings.TrimSpace(spec.Host)
	if host == "" {
		return nil, &ValidationError{Field: "host", Reason: "must not be empty"}
	}

	username := strings.TrimSpace(spec.User)
	if username == "" {
		return nil, &ValidationError{Field: "user", Reason: "must not be empty"}
	}
	if len(username) > maxUsernameLength {
		return nil, &ValidationError{Field: "user", Reason: "must be at most 31 characters"}
	}

	if strings.TrimSpace(spec.KeyFile) == "" {
		return nil, &ValidationError{Field: "pkey_fp", Reason: "must not be empty"}
	}
	keyPath := filepath.Join(keyDir, filepath.Base(spec.KeyFile))
	info, err := os.Stat(keyPath)
	if err != nil {
		return nil, &CredentialError{Path: keyPath, Err: err}
	}
	if !info.Mode().IsRegular() {
		return nil, &ValidationError{Field: "pkey_fp", Reason: "must be a regular file"}
	}
	if err := checkKeyPermissions(keyPath, info.Mode()); err != nil {
		return nil, err
	}

	keyData, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, &CredentialError{Path: keyPath, Err: err}
	}
	signer, err := ssh.ParsePrivateKey(keyData)
	if err != nil {
		return nil, &CredentialError{Path: keyPath, Err: err}
	}

	sshPort := spec.SSHPort
	if sshPort == 0 {
		sshPort = DefaultSSHPort
	}
	return &Credential{
		Host:           host,
		Username:       username,
		PrivateKeyPath: keyPath,
		ExperimentPort: spec.Port,
		SSHPort:        sshPort,
		Default:        spec.Default,
		KeyType:        signer.PublicKey().Type(),
		signer:         signer,
	}, nil
}

// Signer returns the parsed private key.
func (c *Credential) Signer() ssh.Signer {
	return c.signer
}

// checkKeyPermissions rejects keys readable by group or other, the same
// strictness OpenSSH applies. Windows has no POSIX permission bits, so the
// check is skipped there.
func checkKeyPermissions(path string, mode os.FileMode) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	if perm := mode.Perm(); perm&0o077 != 0 {
		return &PermissionError{Path: path, Mode: perm}
	}
	return nil
}
