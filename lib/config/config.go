// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// EnvironmentVariable names the variable Load reads the config path
// from.
const EnvironmentVariable = "SHMLINK_CONFIG"

// Config is the master configuration for shmlink.
type Config struct {
	// Log configures diagnostic output.
	Log LogConfig `yaml:"log"`

	// Local locates the local display session.
	Local LocalConfig `yaml:"local"`

	// Link configures the remote link transport.
	Link LinkConfig `yaml:"link"`

	// Congestion sets the frame-distance thresholds.
	Congestion CongestionConfig `yaml:"congestion"`

	// Events configures exit redirection and the fallback hint.
	Events EventsConfig `yaml:"events"`

	// Cache configures the resource cache directory.
	Cache CacheConfig `yaml:"cache"`

	// Video configures frame encoding.
	Video VideoConfig `yaml:"video"`
}

// LogConfig configures diagnostic output.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	// Default: info
	Level string `yaml:"level"`

	// Format is one of auto, text, json. Auto picks text on a
	// terminal and JSON otherwise.
	// Default: auto
	Format string `yaml:"format"`
}

// LocalConfig locates the local display session.
type LocalConfig struct {
	// Directory holds connection point sockets.
	// Default: ${SHMLINK_RUNTIME}
	Directory string `yaml:"directory"`

	// ConnectionPoint is the name served (serve) or connected to
	// (attach).
	// Default: shmlink
	ConnectionPoint string `yaml:"connection_point"`
}

// LinkConfig configures the remote link.
type LinkConfig struct {
	// Network is one of tcp, unix, quic.
	// Default: tcp
	Network string `yaml:"network"`

	// Address is the listen address (serve) or peer address (attach).
	// Default: 127.0.0.1:7780
	Address string `yaml:"address"`

	// DialTimeout bounds connection establishment for attach.
	// Default: 10s
	DialTimeout time.Duration `yaml:"dial_timeout"`

	// CertFile and KeyFile hold the QUIC server certificate. When
	// both are empty, serve generates a self-signed certificate and
	// logs its fingerprint.
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`

	// Fingerprint is the hex SHA-256 of the server certificate that
	// attach accepts on QUIC links.
	Fingerprint string `yaml:"fingerprint"`
}

// CongestionConfig sets the frame-distance thresholds.
type CongestionConfig struct {
	// SoftBlock is the distance at which only dirty-region frames
	// are sent.
	// Default: 4
	SoftBlock uint64 `yaml:"soft_block"`

	// Block is the distance at which no frames are sent.
	// Default: 8
	Block uint64 `yaml:"block"`
}

// EventsConfig configures event translation.
type EventsConfig struct {
	// RedirectExit turns exit events from the link into redirect
	// hints naming this connection point.
	RedirectExit string `yaml:"redirect_exit"`

	// DeviceHint is announced to local sessions as their fallback
	// connection point.
	DeviceHint string `yaml:"device_hint"`
}

// CacheConfig configures the resource cache.
type CacheConfig struct {
	// Enabled turns checksum references on. Without a cache every
	// resource is sent in full.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Directory is the cache directory, created if missing.
	// Default: ${HOME}/.cache/shmlink
	Directory string `yaml:"directory"`
}

// VideoConfig configures frame encoding.
type VideoConfig struct {
	// Compression is one of auto, none, lz4, zstd. Auto adapts to
	// congestion.
	// Default: auto
	Compression string `yaml:"compression"`
}

// Default returns the default configuration. Load and LoadFile start
// from it, so a file only needs the fields it changes.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
		Local: LocalConfig{
			Directory:       "${SHMLINK_RUNTIME}",
			ConnectionPoint: "shmlink",
		},
		Link: LinkConfig{
			Network:     "tcp",
			Address:     "127.0.0.1:7780",
			DialTimeout: 10 * time.Second,
		},
		Congestion: CongestionConfig{
			SoftBlock: 4,
			Block:     8,
		},
		Cache: CacheConfig{
			Enabled:   true,
			Directory: filepath.Join("${HOME}", ".cache", "shmlink"),
		},
		Video: VideoConfig{
			Compression: "auto",
		},
	}
}

// Load loads configuration from the file named by SHMLINK_CONFIG.
// There is no fallback: if the variable is unset, Load fails.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvironmentVariable)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your shmlink config file, or use --config flag", EnvironmentVariable)
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from path over the defaults and expands
// variables in path fields.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	cfg.expandVariables()
	return cfg, nil
}

// Defaults returns Default with variables expanded, for running without
// a config file.
func Defaults() *Config {
	cfg := Default()
	cfg.expandVariables()
	return cfg
}

// loadFile merges one file into c. JSON is a subset of YAML, so JSONC
// files are stripped of comments and trailing commas and then decoded
// by the same YAML decoder.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config %s: %w", path, err)
	}
	extension := strings.ToLower(filepath.Ext(path))
	if extension == ".json" || extension == ".jsonc" {
		data = jsonc.ToJSON(data)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	return nil
}

// runtimeDirectory is where connection points live by default.
func runtimeDirectory() string {
	if directory := os.Getenv("XDG_RUNTIME_DIR"); directory != "" {
		return filepath.Join(directory, "shmlink")
	}
	return filepath.Join(os.TempDir(), "shmlink")
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"SHMLINK_RUNTIME": runtimeDirectory(),
		"HOME":            os.Getenv("HOME"),
	}
	c.Local.Directory = expandVars(c.Local.Directory, vars)
	c.Cache.Directory = expandVars(c.Cache.Directory, vars)
	c.Link.CertFile = expandVars(c.Link.CertFile, vars)
	c.Link.KeyFile = expandVars(c.Link.KeyFile, vars)
	if c.Link.Network == "unix" {
		c.Link.Address = expandVars(c.Link.Address, vars)
	}
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} patterns. Provided vars
// take precedence over the environment.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors. All problems are
// reported together.
func (c *Config) Validate() error {
	var errs []error

	if !slices.Contains([]string{"debug", "info", "warn", "error"}, c.Log.Level) {
		errs = append(errs, fmt.Errorf("log.level must be one of debug, info, warn, error: %q", c.Log.Level))
	}
	if !slices.Contains([]string{"auto", "text", "json"}, c.Log.Format) {
		errs = append(errs, fmt.Errorf("log.format must be one of auto, text, json: %q", c.Log.Format))
	}

	if c.Local.Directory == "" {
		errs = append(errs, errors.New("local.directory is required"))
	}
	if c.Local.ConnectionPoint == "" {
		errs = append(errs, errors.New("local.connection_point is required"))
	}

	if !slices.Contains([]string{"tcp", "unix", "quic"}, c.Link.Network) {
		errs = append(errs, fmt.Errorf("link.network must be one of tcp, unix, quic: %q", c.Link.Network))
	}
	if c.Link.Address == "" {
		errs = append(errs, errors.New("link.address is required"))
	}
	if c.Link.DialTimeout < 0 {
		errs = append(errs, errors.New("link.dial_timeout must not be negative"))
	}
	if (c.Link.CertFile == "") != (c.Link.KeyFile == "") {
		errs = append(errs, errors.New("link.cert_file and link.key_file must be set together"))
	}
	if c.Link.Fingerprint != "" {
		if decoded, err := hex.DecodeString(c.Link.Fingerprint); err != nil || len(decoded) != 32 {
			errs = append(errs, fmt.Errorf("link.fingerprint must be 64 hex characters: %q", c.Link.Fingerprint))
		}
	}

	if c.Congestion.SoftBlock > c.Congestion.Block {
		errs = append(errs, fmt.Errorf("congestion.soft_block (%d) should not exceed congestion.block (%d)",
			c.Congestion.SoftBlock, c.Congestion.Block))
	}

	if c.Cache.Enabled && c.Cache.Directory == "" {
		errs = append(errs, errors.New("cache.directory is required when the cache is enabled"))
	}

	if !slices.Contains([]string{"auto", "none", "lz4", "zstd"}, c.Video.Compression) {
		errs = append(errs, fmt.Errorf("video.compression must be one of auto, none, lz4, zstd: %q", c.Video.Compression))
	}

	return errors.Join(errs...)
}

// Fingerprint returns the decoded link fingerprint. Call Validate
// first.
func (c *Config) Fingerprint() ([32]byte, bool) {
	var fingerprint [32]byte
	decoded, err := hex.DecodeString(c.Link.Fingerprint)
	if err != nil || len(decoded) != len(fingerprint) {
		return fingerprint, false
	}
	copy(fingerprint[:], decoded)
	return fingerprint, true
}

// EnsurePaths creates the local and cache directories if they don't
// exist.
func (c *Config) EnsurePaths() error {
	paths := []string{c.Local.Directory}
	if c.Cache.Enabled {
		paths = append(paths, c.Cache.Directory)
	}
	for _, path := range paths {
		if err := os.MkdirAll(path, 0o700); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}
	return nil
}
