// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/bureau-foundation/shmlink/lib/bcache"
	"github.com/bureau-foundation/shmlink/lib/compress"
	"github.com/bureau-foundation/shmlink/lib/config"
	"github.com/bureau-foundation/shmlink/lib/schema"
	"github.com/bureau-foundation/shmlink/link"
	"github.com/bureau-foundation/shmlink/pump"
)

// selfSignedValidity is the lifetime of a generated link certificate.
const selfSignedValidity = 30 * 24 * time.Hour

// commonFlags are the flags shared by serve and attach. Each overrides
// the matching config field when given.
type commonFlags struct {
	configPath      string
	network         string
	address         string
	directory       string
	connectionPoint string
	logLevel        string
}

func (f *commonFlags) add(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&f.configPath, "config", "", "path to config file (default: $SHMLINK_CONFIG, else built-in defaults)")
	flagSet.StringVar(&f.network, "network", "", "link network: tcp, unix, quic")
	flagSet.StringVar(&f.address, "address", "", "link address")
	flagSet.StringVar(&f.directory, "directory", "", "directory holding connection points")
	flagSet.StringVarP(&f.connectionPoint, "connection-point", "c", "", "local connection point name")
	flagSet.StringVar(&f.logLevel, "log-level", "", "log level: debug, info, warn, error")
}

// load reads the configuration, applies flag overrides, validates it
// and creates its directories.
func (f *commonFlags) load(flagSet *pflag.FlagSet) (*config.Config, error) {
	var cfg *config.Config
	var err error
	switch {
	case f.configPath != "":
		cfg, err = config.LoadFile(f.configPath)
	case os.Getenv(config.EnvironmentVariable) != "":
		cfg, err = config.Load()
	default:
		cfg = config.Defaults()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	overrides := []struct {
		flag  string
		value string
		field *string
	}{
		{"network", f.network, &cfg.Link.Network},
		{"address", f.address, &cfg.Link.Address},
		{"directory", f.directory, &cfg.Local.Directory},
		{"connection-point", f.connectionPoint, &cfg.Local.ConnectionPoint},
		{"log-level", f.logLevel, &cfg.Log.Level},
	}
	for _, override := range overrides {
		if flagSet.Changed(override.flag) {
			*override.field = override.value
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := cfg.EnsurePaths(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the process logger. Auto format uses text when w is
// a terminal and JSON otherwise.
func newLogger(w io.Writer, settings config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(settings.Level)); err != nil {
		level = slog.LevelInfo
	}
	options := &slog.HandlerOptions{Level: level}

	text := settings.Format == "text"
	if settings.Format == "auto" {
		if file, ok := w.(*os.File); ok {
			text = term.IsTerminal(int(file.Fd()))
		}
	}
	if text {
		return slog.New(slog.NewTextHandler(w, options))
	}
	return slog.New(slog.NewJSONHandler(w, options))
}

// pumpOptions maps the configuration onto pump options. The returned
// cache, if any, is owned by the caller.
func pumpOptions(cfg *config.Config, logger *slog.Logger) (pump.Options, *bcache.Cache, error) {
	options := pump.Options{
		SoftBlock:    cfg.Congestion.SoftBlock,
		Block:        cfg.Congestion.Block,
		RedirectExit: cfg.Events.RedirectExit,
		DeviceHintCP: cfg.Events.DeviceHint,
		Logger:       logger,
	}

	if cfg.Video.Compression != "auto" {
		tag, err := compress.ParseTag(cfg.Video.Compression)
		if err != nil {
			return pump.Options{}, nil, err
		}
		options.EvalVideo = func(pump.LinkState, uint32, *schema.Frame) pump.VideoParams {
			return pump.VideoParams{Compression: tag}
		}
	}

	if !cfg.Cache.Enabled {
		return options, nil, nil
	}
	cache, err := bcache.Open(cfg.Cache.Directory)
	if err != nil {
		return pump.Options{}, nil, err
	}
	logger.Info("binary cache enabled", "directory", cache.Name())
	options.Cache = cache
	return options, cache, nil
}

// serverTLS returns the certificate a QUIC listener presents: the
// configured key pair, or a fresh self-signed one.
func serverTLS(cfg *config.Config, logger *slog.Logger) (*tls.Config, error) {
	if cfg.Link.Network != link.NetworkQUIC {
		return nil, nil
	}
	var certificate tls.Certificate
	var fingerprint [32]byte
	if cfg.Link.CertFile != "" {
		var err error
		certificate, err = tls.LoadX509KeyPair(cfg.Link.CertFile, cfg.Link.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("loading link certificate: %w", err)
		}
		fingerprint = sha256.Sum256(certificate.Certificate[0])
	} else {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "shmlink"
		}
		certificate, fingerprint, err = link.SelfSigned(hostname, selfSignedValidity)
		if err != nil {
			return nil, err
		}
	}
	logger.Info("link certificate ready", "fingerprint", hex.EncodeToString(fingerprint[:]))
	return &tls.Config{
		MinVersion:   tls.VersionTLS13,
		Certificates: []tls.Certificate{certificate},
	}, nil
}

// dialer returns the link dialer. QUIC links require a pinned
// fingerprint.
func dialer(cfg *config.Config) (*link.Dialer, error) {
	d := &link.Dialer{Timeout: cfg.Link.DialTimeout}
	if cfg.Link.Network != link.NetworkQUIC {
		return d, nil
	}
	fingerprint, ok := cfg.Fingerprint()
	if !ok {
		return nil, errors.New("link.fingerprint is required for quic links")
	}
	d.TLSConfig = link.PinnedClientConfig(fingerprint)
	return d, nil
}
