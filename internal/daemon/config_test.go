package daemon

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mikey-austin/mpdbridge/pkg/mpc"
)

func writeConfig(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mpdbridged.toml")
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, ""+
		"[server]\n"+
		"broker = \"mqtt://localhost:1883\"\n"+
		"log_level = \"debug\"\n"+
		"\n"+
		"[mpd]\n"+
		"host = \"music.local\"\n"+
		"port = 6601\n"+
		"timeout_ms = 1500\n"+
		"\n"+
		"[modules.bridge]\n"+
		"node_id = \"mpd:bridge:lounge\"\n"+
		"\n"+
		"[modules.status_feed]\n"+
		"enabled = true\n"+
		"allowed_origins = [\"http://localhost\"]\n")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Server.Broker != "mqtt://localhost:1883" || cfg.Server.LogLevel != "debug" {
		t.Fatalf("unexpected server %+v", cfg.Server)
	}
	if cfg.MPD.Host != "music.local" || cfg.MPD.Port != 6601 || cfg.MPD.TimeoutMS != 1500 {
		t.Fatalf("unexpected mpd %+v", cfg.MPD)
	}
	if !cfg.Modules.Bridge.Enabled || cfg.Modules.Bridge.NodeID != "mpd:bridge:lounge" {
		t.Fatalf("expected bridge defaults kept with node override")
	}
	if !cfg.Modules.StatusFeed.Enabled || len(cfg.Modules.StatusFeed.AllowedOrigins) != 1 {
		t.Fatalf("unexpected status feed %+v", cfg.Modules.StatusFeed)
	}
	if cfg.Server.TopicBase != mpc.BaseTopic {
		t.Fatalf("expected default topic base")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestLoadConfigRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, "[mpd]\nhots = \"typo\"\n")
	_, err := LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "mpd.hots") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	if _, err := LoadConfig(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
	if _, err := LoadConfig(t.TempDir()); err == nil {
		t.Fatalf("expected error for directory")
	}
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml")); !os.IsNotExist(err) {
		t.Fatalf("expected not exist, got %v", err)
	}
}

func TestDefaultConfigPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	path, err := DefaultConfigPath()
	if err != nil {
		t.Fatalf("default config path: %v", err)
	}
	if path != "/tmp/xdg/mpdbridge/mpdbridged.toml" {
		t.Fatalf("unexpected path %s", path)
	}
}

func TestApplyEnv(t *testing.T) {
	cases := []struct {
		host, port   string
		wantHost     string
		wantPassword string
		wantPort     int
	}{
		{"music.local", "", "music.local", "", 0},
		{"secret@music.local", "6601", "music.local", "secret", 6601},
		{"p@ss@music.local", "", "music.local", "p@ss", 0},
		{"@mpd-socket", "", "@mpd-socket", "", 0},
		{"/run/mpd/socket", "", "/run/mpd/socket", "", 0},
	}
	for _, tc := range cases {
		cfg := Default()
		cfg.MPD.Discover = true
		env := map[string]string{"MPD_HOST": tc.host, "MPD_PORT": tc.port}
		if err := ApplyEnv(&cfg, func(k string) string { return env[k] }); err != nil {
			t.Fatalf("%s: %v", tc.host, err)
		}
		if cfg.MPD.Host != tc.wantHost || cfg.MPD.Password != tc.wantPassword || cfg.MPD.Port != tc.wantPort {
			t.Fatalf("%s: unexpected mpd %+v", tc.host, cfg.MPD)
		}
		if cfg.MPD.Discover {
			t.Fatalf("%s: MPD_HOST should disable discovery", tc.host)
		}
	}

	cfg := Default()
	if err := ApplyEnv(&cfg, func(k string) string {
		if k == "MPD_PORT" {
			return "http"
		}
		return ""
	}); err == nil {
		t.Fatalf("expected invalid port error")
	}
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := Default()
	cfg.Modules.Bridge.NodeID = ""
	cfg.MPD.Port = -1
	cfg.Modules.EmbeddedMQTT.AllowAnonymous = false

	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected error")
	}
	for _, want := range []string{"node_id", "mpd.port", "embedded_mqtt"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %v", want, err)
		}
	}
}

func TestStateNodeIDFallsBack(t *testing.T) {
	cfg := Default()
	if cfg.StateNodeID() != cfg.Modules.Bridge.NodeID {
		t.Fatalf("expected bridge node id")
	}
	cfg.Modules.StatusWatch.NodeID = "mpd:state:x"
	if cfg.StateNodeID() != "mpd:state:x" {
		t.Fatalf("expected explicit node id")
	}
}
