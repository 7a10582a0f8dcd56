package main

import (
	"bytes"
	"context"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/mikey-austin/mpdbridge/internal/daemon"
)

func parseFlags(t *testing.T, args ...string) (options, *pflag.FlagSet) {
	t.Helper()
	var opts options
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	registerFlags(fs, &opts, filepath.Join(t.TempDir(), "missing.toml"))
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	return opts, fs
}

func noEnv(string) string { return "" }

func TestResolveConfigDefaults(t *testing.T) {
	opts, fs := parseFlags(t)
	cfg, err := resolveConfig(opts, fs, noEnv)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.Server.Broker != "mqtt://127.0.0.1:1883" {
		t.Fatalf("expected embedded broker url, got %s", cfg.Server.Broker)
	}
	if cfg.MPD.Host != "localhost" {
		t.Fatalf("unexpected host %s", cfg.MPD.Host)
	}
}

func TestResolveConfigExplicitMissingFile(t *testing.T) {
	opts, fs := parseFlags(t, "--config", filepath.Join(t.TempDir(), "nope.toml"))
	if _, err := resolveConfig(opts, fs, noEnv); err == nil {
		t.Fatalf("expected error for explicit missing config")
	}
}

func TestResolveConfigPrecedence(t *testing.T) {
	opts, fs := parseFlags(t, "--mpd-host", "flag.local", "--mpd-port", "6610", "--broker", "tcp://broker:1883", "--log-utc")
	env := map[string]string{"MPD_HOST": "secret@env.local", "MPD_PORT": "6601"}
	cfg, err := resolveConfig(opts, fs, func(k string) string { return env[k] })
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.MPD.Host != "flag.local" || cfg.MPD.Port != 6610 {
		t.Fatalf("flags should win: %+v", cfg.MPD)
	}
	if cfg.MPD.Password != "secret" {
		t.Fatalf("expected env password, got %q", cfg.MPD.Password)
	}
	if cfg.Server.Broker != "tcp://broker:1883" || !cfg.Server.LogUTC {
		t.Fatalf("unexpected server %+v", cfg.Server)
	}
}

func TestApplyOverridesLeavesPortUnlessSet(t *testing.T) {
	opts, fs := parseFlags(t)
	cfg := daemon.Default()
	cfg.MPD.Port = 6601
	applyOverrides(&cfg, opts, fs)
	if cfg.MPD.Port != 6601 {
		t.Fatalf("port overwritten: %d", cfg.MPD.Port)
	}
}

func TestBuildModulesModuleOnlyFilter(t *testing.T) {
	cfg := daemon.Default()
	cfg.Modules.Bridge.Enabled = false
	cfg.Modules.EmbeddedMQTT.Enabled = false
	cfg.Modules.StatusFeed.Enabled = true

	logger := zap.NewNop()
	modules, err := buildModules(cfg, nil, logger, "", nil, false)
	if err != nil {
		t.Fatalf("buildModules: %v", err)
	}
	if len(modules) != 2 || modules[0].Name != "status_feed" || modules[1].Name != "status_watch" {
		t.Fatalf("unexpected modules %v", moduleNames(modules))
	}

	modules, err = buildModules(cfg, nil, logger, "status_watch", nil, false)
	if err != nil {
		t.Fatalf("buildModules: %v", err)
	}
	if len(modules) != 1 || modules[0].Name != "status_watch" {
		t.Fatalf("unexpected modules %v", moduleNames(modules))
	}

	if _, err := buildModules(cfg, nil, logger, "bridge", nil, false); err == nil {
		t.Fatalf("expected error for filtered module")
	}
}

func TestBuildModulesBridgeNeedsBroker(t *testing.T) {
	cfg := daemon.Default()
	if _, err := buildModules(cfg, nil, zap.NewNop(), "bridge", nil, false); err == nil {
		t.Fatalf("expected error without client")
	}
}

func TestBuildModulesEmbedded(t *testing.T) {
	cfg := daemon.Default()
	cfg.Modules.Bridge.Enabled = false
	cfg.Modules.StatusWatch.Enabled = false
	embedded, err := newEmbedded(zap.NewNop(), cfg)
	if err != nil {
		t.Fatalf("new embedded: %v", err)
	}
	modules, err := buildModules(cfg, nil, zap.NewNop(), "", embedded, false)
	if err != nil || len(modules) != 1 || modules[0].Name != "embedded_mqtt" {
		t.Fatalf("expected embedded module, got %v %v", moduleNames(modules), err)
	}
	if _, err := buildModules(cfg, nil, zap.NewNop(), "embedded_mqtt", embedded, true); err == nil {
		t.Fatalf("expected error when embedded already started")
	}
}

func TestNeedsClient(t *testing.T) {
	cfg := daemon.Default()
	if needsClient(cfg, "") {
		t.Fatalf("no broker means no client")
	}
	cfg.Server.Broker = "tcp://broker:1883"
	if !needsClient(cfg, "") || needsClient(cfg, "status_feed") {
		t.Fatalf("unexpected needsClient result")
	}
}

func TestPrintResolvedConfigMasksSecrets(t *testing.T) {
	cfg := daemon.Default()
	cfg.MPD.Password = "hunter2"
	cfg.Server.Auth.Pass = "s3cret"

	var buf bytes.Buffer
	if err := printResolvedConfig(&buf, cfg); err != nil {
		t.Fatalf("print: %v", err)
	}
	out := buf.String()
	if strings.Contains(out, "hunter2") || strings.Contains(out, "s3cret") {
		t.Fatalf("secrets leaked:\n%s", out)
	}
	var decoded daemon.Config
	if _, err := toml.Decode(out, &decoded); err != nil {
		t.Fatalf("output is not toml: %v", err)
	}
	if decoded.MPD.Host != "localhost" || decoded.MPD.Password != "********" {
		t.Fatalf("unexpected round trip %+v", decoded.MPD)
	}
	if cfg.MPD.Password != "hunter2" {
		t.Fatalf("caller config modified")
	}
}

func TestEmbeddedBrokerOutlivesSignal(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	cfg := daemon.Default()
	cfg.Modules.EmbeddedMQTT.Listen = addr
	embedded, err := newEmbedded(zap.NewNop(), cfg)
	if err != nil {
		t.Fatalf("new embedded: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	stop, err := startEmbeddedBroker(ctx, zap.NewNop(), embedded, cancel)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	cancel()

	// Modules shut down after the signal and still need the broker.
	time.Sleep(50 * time.Millisecond)
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		t.Fatalf("broker stopped with the signal: %v", err)
	}
	_ = conn.Close()

	stopped := make(chan struct{})
	go func() {
		stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(3 * time.Second):
		t.Fatalf("stop did not return")
	}
}

func moduleNames(modules []daemon.ModuleRunner) []string {
	names := make([]string, 0, len(modules))
	for _, m := range modules {
		names = append(names, m.Name)
	}
	return names
}
