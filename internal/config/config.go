// Package config handles configuration file loading and parsing.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Default configuration values.
const (
	DefaultHostAddr   = "0.0.0.0"
	DefaultClientAddr = "127.0.0.1"
	DefaultPort       = 63063
	DefaultPath       = "/heart"

	DefaultHeartbeatInterval = 10 * time.Second
	DefaultWriteTimeout      = 5 * time.Second
	DefaultReadTimeout       = 20 * time.Second
	DefaultBackoff           = 5 * time.Second
	DefaultDialTimeout       = 10 * time.Second
	DefaultIPCReadTimeout    = 2 * time.Second

	DefaultVolume  = 100
	DefaultSummary = "clickr"
	DefaultBody    = "Ping received"
)

// Audio backends.
const (
	BackendCommand = "command"
	BackendBeep    = "beep"
)

// Duration is a time.Duration that can be unmarshaled from human-readable strings.
// Supports formats like "5s", "10s", "1m", "1h30m", or integer milliseconds.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler for TOML parsing.
func (d *Duration) UnmarshalText(text []byte) error {
	s := string(text)

	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}

	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: must be like '5s', '1m', '1h30m' or milliseconds: %w", s, err)
	}
	*d = Duration(dur)
	return nil
}

// MarshalText implements encoding.TextMarshaler for TOML output.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Config represents the clickr configuration.
// Loaded from ~/.config/clickr/config.toml
type Config struct {
	Host   HostConfig   `toml:"host"`
	Client ClientConfig `toml:"client"`
	IPC    IPCConfig    `toml:"ipc"`
	Audio  AudioConfig  `toml:"audio"`
	Notify NotifyConfig `toml:"notify"`
}

// HostConfig contains settings for `clickr host`.
type HostConfig struct {
	Addr              string   `toml:"addr"`
	Port              int      `toml:"port"`
	Path              string   `toml:"path"`
	HeartbeatInterval Duration `toml:"heartbeat_interval"`
	WriteTimeout      Duration `toml:"write_timeout"`
	Metrics           bool     `toml:"metrics"` // Serve /metrics next to the push endpoint
}

// ClientConfig contains settings for `clickr connect`.
type ClientConfig struct {
	Addr        string   `toml:"addr"`
	Port        int      `toml:"port"`
	Path        string   `toml:"path"`
	ReadTimeout Duration `toml:"read_timeout"` // Silence before the connection is presumed dead
	Backoff     Duration `toml:"backoff"`
	DialTimeout Duration `toml:"dial_timeout"`
}

// IPCConfig contains the local trigger socket settings.
type IPCConfig struct {
	Socket      string   `toml:"socket"`
	ReadTimeout Duration `toml:"read_timeout"`
}

// AudioConfig contains audio settings.
type AudioConfig struct {
	Enabled bool     `toml:"enabled"`
	Backend string   `toml:"backend"` // "command" or "beep"
	Command string   `toml:"command"`
	Args    []string `toml:"args"` // {file} and {volume} are substituted
	Sound   string   `toml:"sound"`
	Volume  int      `toml:"volume"` // 0-100
}

// NotifyConfig contains desktop notification settings.
type NotifyConfig struct {
	Desktop bool   `toml:"desktop"`
	Summary string `toml:"summary"`
	Body    string `toml:"body"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Host: HostConfig{
			Addr:              DefaultHostAddr,
			Port:              DefaultPort,
			Path:              DefaultPath,
			HeartbeatInterval: Duration(DefaultHeartbeatInterval),
			WriteTimeout:      Duration(DefaultWriteTimeout),
			Metrics:           false,
		},
		Client: ClientConfig{
			Addr:        DefaultClientAddr,
			Port:        DefaultPort,
			Path:        DefaultPath,
			ReadTimeout: Duration(DefaultReadTimeout),
			Backoff:     Duration(DefaultBackoff),
			DialTimeout: Duration(DefaultDialTimeout),
		},
		IPC: IPCConfig{
			Socket:      filepath.Join(ConfigDir(), "sock"),
			ReadTimeout: Duration(DefaultIPCReadTimeout),
		},
		Audio: AudioConfig{
			Enabled: true,
			Backend: BackendCommand,
			Command: "pw-cat",
			Args:    []string{"--playback", "--volume", "{volume}", "{file}"},
			Sound:   filepath.Join(ConfigDir(), "sound"),
			Volume:  DefaultVolume,
		},
		Notify: NotifyConfig{
			Desktop: false,
			Summary: DefaultSummary,
			Body:    DefaultBody,
		},
	}
}

// ConfigDir returns the clickr configuration directory.
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config.
func ConfigDir() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, "clickr")
}

// ConfigPath returns the path to the config file.
func ConfigPath() string {
	dir := ConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "config.toml")
}

// LoadConfig loads configuration from the specified path.
// If path is empty, uses the default config path.
// Returns default config if file doesn't exist.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.expandPaths()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to the specified path.
// Creates parent directories if needed.
func (c *Config) Save(path string) error {
	if path == "" {
		path = ConfigPath()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := c.Marshal()
	if err != nil {
		return err
	}

	// Write atomically via temp file
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return os.Rename(tmpPath, path)
}

// Marshal encodes the configuration as TOML.
func (c *Config) Marshal() ([]byte, error) {
	data, err := toml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := validatePort("host.port", c.Host.Port); err != nil {
		return err
	}
	if err := validatePort("client.port", c.Client.Port); err != nil {
		return err
	}

	for name, p := range map[string]string{"host.path": c.Host.Path, "client.path": c.Client.Path} {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("%s must start with '/', got %q", name, p)
		}
	}

	durations := []struct {
		name string
		d    Duration
	}{
		{"host.heartbeat_interval", c.Host.HeartbeatInterval},
		{"host.write_timeout", c.Host.WriteTimeout},
		{"client.read_timeout", c.Client.ReadTimeout},
		{"client.backoff", c.Client.Backoff},
		{"client.dial_timeout", c.Client.DialTimeout},
		{"ipc.read_timeout", c.IPC.ReadTimeout},
	}
	for _, d := range durations {
		if d.d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", d.name, d.d.Duration())
		}
	}

	// A heartbeat slower than the client's read timeout makes every idle
	// connection look dead.
	if c.Host.HeartbeatInterval >= c.Client.ReadTimeout {
		return fmt.Errorf("host.heartbeat_interval (%s) must be shorter than client.read_timeout (%s)",
			c.Host.HeartbeatInterval.Duration(), c.Client.ReadTimeout.Duration())
	}

	if c.IPC.Socket == "" {
		return errors.New("ipc.socket must be set")
	}

	switch c.Audio.Backend {
	case BackendCommand:
		if c.Audio.Enabled && c.Audio.Command == "" {
			return errors.New("audio.command must be set for the command backend")
		}
	case BackendBeep:
	default:
		return fmt.Errorf("invalid audio backend %q, must be one of: %s, %s", c.Audio.Backend, BackendCommand, BackendBeep)
	}

	if c.Audio.Volume < 0 || c.Audio.Volume > 100 {
		return fmt.Errorf("volume must be between 0 and 100, got %d", c.Audio.Volume)
	}

	return nil
}

// VolumeFraction returns the configured volume scaled to [0, 1].
func (c *Config) VolumeFraction() float64 {
	return float64(c.Audio.Volume) / 100
}

func validatePort(name string, port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%s must be between 1 and 65535, got %d", name, port)
	}
	return nil
}

func (c *Config) expandPaths() {
	c.IPC.Socket = expandPath(c.IPC.Socket)
	c.Audio.Sound = expandPath(c.Audio.Sound)
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
