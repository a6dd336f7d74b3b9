// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/shmlink/lib/compress"
	"github.com/bureau-foundation/shmlink/lib/config"
	"github.com/bureau-foundation/shmlink/link"
	"github.com/bureau-foundation/shmlink/pump"
)

func TestRunVersion(t *testing.T) {
	var stdout bytes.Buffer
	if err := run([]string{"version"}, &stdout); err != nil {
		t.Fatalf("run version: %v", err)
	}
	if !strings.HasPrefix(stdout.String(), "shmlink ") {
		t.Errorf("version output = %q", stdout.String())
	}

	stdout.Reset()
	if err := run([]string{"version", "--full"}, &stdout); err != nil {
		t.Fatalf("run version --full: %v", err)
	}
	if !strings.Contains(stdout.String(), "Protocol:") {
		t.Errorf("full version output = %q", stdout.String())
	}
}

func TestRunUsage(t *testing.T) {
	var stdout bytes.Buffer
	if err := run(nil, &stdout); err == nil {
		t.Error("expected error with no command")
	}
	if !strings.Contains(stdout.String(), "usage: shmlink") {
		t.Errorf("expected usage, got %q", stdout.String())
	}

	stdout.Reset()
	if err := run([]string{"frobnicate"}, &stdout); err == nil || !strings.Contains(err.Error(), "frobnicate") {
		t.Errorf("expected unknown command error, got %v", err)
	}
	if err := run([]string{"help"}, &stdout); err != nil {
		t.Errorf("help: %v", err)
	}
}

func TestLoadAppliesFlagOverrides(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv(config.EnvironmentVariable, "")

	configPath := filepath.Join(t.TempDir(), "shmlink.yaml")
	content := "link:\n  network: unix\n  address: /tmp/from-file.sock\nlocal:\n  directory: " + filepath.Join(home, "run") + "\n"
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	var flags commonFlags
	flagSet := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.add(flagSet)
	if err := flagSet.Parse([]string{"--config", configPath, "--address", "/tmp/from-flag.sock", "-c", "desk"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	cfg, err := flags.load(flagSet)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Link.Network != "unix" {
		t.Errorf("network = %q, want the file's value", cfg.Link.Network)
	}
	if cfg.Link.Address != "/tmp/from-flag.sock" {
		t.Errorf("address = %q, want the flag's value", cfg.Link.Address)
	}
	if cfg.Local.ConnectionPoint != "desk" {
		t.Errorf("connection point = %q", cfg.Local.ConnectionPoint)
	}
	if _, err := os.Stat(cfg.Cache.Directory); err != nil {
		t.Errorf("cache directory not created: %v", err)
	}
}

func TestLoadRejectsInvalidOverride(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv(config.EnvironmentVariable, "")

	var flags commonFlags
	flagSet := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.add(flagSet)
	if err := flagSet.Parse([]string{"--network", "carrier-pigeon"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, err := flags.load(flagSet); err == nil || !strings.Contains(err.Error(), "link.network") {
		t.Errorf("load = %v, want a link.network validation error", err)
	}
}

func TestNewLoggerFormats(t *testing.T) {
	t.Parallel()

	var buffer bytes.Buffer
	newLogger(&buffer, config.LogConfig{Level: "info", Format: "auto"}).Info("hello", "key", "value")
	var record map[string]any
	if err := json.Unmarshal(buffer.Bytes(), &record); err != nil {
		t.Fatalf("auto format on a non-terminal should be JSON: %q", buffer.String())
	}
	if record["key"] != "value" {
		t.Errorf("record = %v", record)
	}

	buffer.Reset()
	newLogger(&buffer, config.LogConfig{Level: "warn", Format: "text"}).Info("hidden")
	if buffer.Len() != 0 {
		t.Errorf("info logged at warn level: %q", buffer.String())
	}
	newLogger(&buffer, config.LogConfig{Level: "warn", Format: "text"}).Warn("shown")
	if !strings.Contains(buffer.String(), "msg=shown") {
		t.Errorf("text output = %q", buffer.String())
	}
}

func TestPumpOptions(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Congestion.SoftBlock = 3
	cfg.Congestion.Block = 7
	cfg.Events.RedirectExit = "lobby"
	cfg.Cache.Enabled = false

	options, cache, err := pumpOptions(cfg, nil)
	if err != nil {
		t.Fatalf("pumpOptions: %v", err)
	}
	if cache != nil || options.Cache != nil {
		t.Error("expected no cache when disabled")
	}
	if options.SoftBlock != 3 || options.Block != 7 || options.RedirectExit != "lobby" {
		t.Errorf("options = %+v", options)
	}
	if options.EvalVideo != nil {
		t.Error("auto compression should leave EvalVideo unset")
	}

	cfg.Video.Compression = "zstd"
	cfg.Cache.Enabled = true
	cfg.Cache.Directory = t.TempDir()
	options, cache, err = pumpOptions(cfg, nil)
	if err != nil {
		t.Fatalf("pumpOptions: %v", err)
	}
	defer cache.Close()
	if options.Cache == nil {
		t.Error("expected a cache")
	}
	if params := options.EvalVideo(pump.LinkState{}, 0, nil); params.Compression != compress.Zstd {
		t.Errorf("compression = %v, want zstd", params.Compression)
	}
}

func TestServerTLSSelfSigned(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	var logs bytes.Buffer
	logger := newLogger(&logs, cfg.Log)

	tlsConfig, err := serverTLS(cfg, logger)
	if err != nil || tlsConfig != nil {
		t.Fatalf("tcp link: serverTLS = %v, %v; want nil", tlsConfig, err)
	}

	cfg.Link.Network = link.NetworkQUIC
	tlsConfig, err = serverTLS(cfg, logger)
	if err != nil {
		t.Fatalf("serverTLS: %v", err)
	}
	if len(tlsConfig.Certificates) != 1 {
		t.Fatalf("certificates = %d", len(tlsConfig.Certificates))
	}
	if !strings.Contains(logs.String(), "fingerprint") {
		t.Errorf("fingerprint not logged: %q", logs.String())
	}
}

func TestDialerRequiresFingerprintForQUIC(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Link.Network = link.NetworkQUIC
	if _, err := dialer(cfg); err == nil {
		t.Error("expected error without a fingerprint")
	}

	cfg.Link.Fingerprint = strings.Repeat("0f", 32)
	d, err := dialer(cfg)
	if err != nil {
		t.Fatalf("dialer: %v", err)
	}
	if d.TLSConfig == nil || d.Timeout != cfg.Link.DialTimeout {
		t.Errorf("dialer = %+v", d)
	}
}
