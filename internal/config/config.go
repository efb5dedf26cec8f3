package config

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
)

const (
	DefaultShutdownTimeoutSeconds = 2
	DefaultRetryAttempts          = 3
	DefaultRetryDelayMs           = 2000
	DefaultMaxRetryDelayMs        = 30000
	DefaultHealthCheckSeconds     = 30
	DefaultDriver                 = "kasa"
)

// Settings is the process-lifetime configuration. It is validated once at
// startup and treated as immutable afterwards; edits from the settings
// window are persisted for the next start.
type Settings struct {
	Driver   string `json:"driver"`
	Address  string `json:"address"`
	Username string `json:"username"`
	Password string `json:"password"`

	ShutdownTimeoutSeconds int `json:"shutdownTimeoutSeconds"`
	RetryAttempts          int `json:"retryAttempts"`
	RetryDelayMs           int `json:"retryDelayMs"`
	MaxRetryDelayMs        int `json:"maxRetryDelayMs"`
	HealthCheckSeconds     int `json:"healthCheckSeconds"`

	StartMinimized bool `json:"startMinimized"`
	LaunchAtLogin  bool `json:"launchAtLogin"`
}

// ValidationError reports an invalid startup configuration. It is fatal at
// startup and never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s %s", e.Field, e.Reason)
}

// Normalize substitutes documented defaults for missing or non-positive
// numeric values and an empty driver. It does not touch the credentials.
func Normalize(s Settings) Settings {
	if s.Driver == "" {
		s.Driver = DefaultDriver
	}
	if s.ShutdownTimeoutSeconds <= 0 {
		s.ShutdownTimeoutSeconds = DefaultShutdownTimeoutSeconds
	}
	if s.RetryAttempts <= 0 {
		s.RetryAttempts = DefaultRetryAttempts
	}
	if s.RetryDelayMs <= 0 {
		s.RetryDelayMs = DefaultRetryDelayMs
	}
	if s.MaxRetryDelayMs <= 0 {
		s.MaxRetryDelayMs = DefaultMaxRetryDelayMs
	}
	if s.HealthCheckSeconds <= 0 {
		s.HealthCheckSeconds = DefaultHealthCheckSeconds
	}
	return s
}

// Validate checks the connection settings. Address must be a well-formed
// host or host:port, credentials must be non-empty.
func Validate(s Settings) error {
	if s.Address == "" {
		return &ValidationError{Field: "address", Reason: "is empty"}
	}
	if !validAddress(s.Address) {
		return &ValidationError{Field: "address", Reason: fmt.Sprintf("%q is not a valid network address", s.Address)}
	}
	if s.Username == "" {
		return &ValidationError{Field: "username", Reason: "is empty"}
	}
	if s.Password == "" {
		return &ValidationError{Field: "password", Reason: "is empty"}
	}
	return nil
}

func validAddress(addr string) bool {
	// A bare IPv6 literal contains colons but is not host:port.
	if net.ParseIP(addr) != nil {
		return true
	}
	host := addr
	if strings.Contains(addr, ":") {
		h, port, err := net.SplitHostPort(addr)
		if err != nil {
			return false
		}
		if p, err := strconv.Atoi(port); err != nil || p < 1 || p > 65535 {
			return false
		}
		host = h
	}
	if host == "" {
		return false
	}
	if net.ParseIP(host) != nil {
		return true
	}
	return validHostname(host)
}

func validHostname(host string) bool {
	if len(host) > 253 {
		return false
	}
	for _, label := range strings.Split(host, ".") {
		if label == "" || len(label) > 63 {
			return false
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
		for _, r := range label {
			switch {
			case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			default:
				return false
			}
		}
	}
	return true
}

// Store persists Settings as JSON in the platform config directory, written
// atomically via a temp file.
type Store struct {
	mu       sync.Mutex
	settings Settings
	filePath string
}

func Open() (*Store, error) {
	p, err := configPath()
	if err != nil {
		return nil, err
	}
	return OpenPath(p)
}

func OpenPath(path string) (*Store, error) {
	s := &Store{filePath: path}
	if err := s.load(); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	s.settings = Normalize(s.settings)
	return s, nil
}

func (s *Store) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

func (s *Store) SetSettings(settings Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = Normalize(settings)
	return s.saveLocked()
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return json.Unmarshal(data, &s.settings)
}

// saveLocked marshals settings and writes atomically. Caller must hold s.mu.
func (s *Store) saveLocked() error {
	data, err := json.MarshalIndent(s.settings, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp := s.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, s.filePath)
}

func configPath() (string, error) {
	var dir string
	switch runtime.GOOS {
	case "windows":
		dir = os.Getenv("APPDATA")
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(home, "Library", "Application Support")
	default:
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "switchtray", "config.json"), nil
}
