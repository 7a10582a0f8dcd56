package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"go.uber.org/multierr"

	"github.com/mikey-austin/mpdbridge/pkg/mpc"
)

// Config is the top-level configuration for mpdbridged.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	MPD     MPDConfig     `toml:"mpd"`
	Modules ModulesConfig `toml:"modules"`
}

// ServerConfig defines shared daemon settings.
type ServerConfig struct {
	Broker    string     `toml:"broker"`
	Identity  string     `toml:"identity"`
	TopicBase string     `toml:"topic_base"`
	LogLevel  string     `toml:"log_level"`
	LogFormat string     `toml:"log_format"`
	LogOutput string     `toml:"log_output"`
	LogUTC    bool       `toml:"log_utc"`
	MQTTDebug bool       `toml:"mqtt_debug"`
	TLS       TLSConfig  `toml:"tls"`
	Auth      AuthConfig `toml:"auth"`
}

// TLSConfig holds TLS paths for MQTT.
type TLSConfig struct {
	CA   string `toml:"ca"`
	Cert string `toml:"cert"`
	Key  string `toml:"key"`
}

// AuthConfig holds MQTT credentials.
type AuthConfig struct {
	User string `toml:"user"`
	Pass string `toml:"pass"`
}

// MPDConfig locates the playback daemon watched by status_watch.
type MPDConfig struct {
	Host              string `toml:"host"`
	Port              int    `toml:"port"`
	Password          string `toml:"password"`
	TimeoutMS         int    `toml:"timeout_ms"`
	Discover          bool   `toml:"discover"`
	DiscoverTimeoutMS int    `toml:"discover_timeout_ms"`
}

// ModulesConfig holds module configurations.
type ModulesConfig struct {
	Bridge       BridgeConfig       `toml:"bridge"`
	StatusWatch  StatusWatchConfig  `toml:"status_watch"`
	StatusFeed   StatusFeedConfig   `toml:"status_feed"`
	EmbeddedMQTT EmbeddedMQTTConfig `toml:"embedded_mqtt"`
}

// BridgeConfig configures the MQTT call bridge.
type BridgeConfig struct {
	Enabled bool   `toml:"enabled"`
	NodeID  string `toml:"node_id"`
	Name    string `toml:"name"`
}

// StatusWatchConfig configures state publishing.
type StatusWatchConfig struct {
	Enabled         bool     `toml:"enabled"`
	NodeID          string   `toml:"node_id"`
	Subsystems      []string `toml:"subsystems"`
	RetryIntervalMS int      `toml:"retry_interval_ms"`
}

// StatusFeedConfig configures the websocket feed.
type StatusFeedConfig struct {
	Enabled        bool     `toml:"enabled"`
	Listen         string   `toml:"listen"`
	Path           string   `toml:"path"`
	AllowedOrigins []string `toml:"allowed_origins"`
}

// EmbeddedMQTTConfig configures the embedded MQTT broker.
type EmbeddedMQTTConfig struct {
	Enabled        bool   `toml:"enabled"`
	Listen         string `toml:"listen"`
	AllowAnonymous bool   `toml:"allow_anonymous"`
	Username       string `toml:"username"`
	Password       string `toml:"password"`
	TLSCA          string `toml:"tls_ca"`
	TLSCert        string `toml:"tls_cert"`
	TLSKey         string `toml:"tls_key"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	var cfg Config
	cfg.Server.TopicBase = mpc.BaseTopic
	cfg.Server.LogLevel = "info"
	cfg.Server.LogFormat = "text"
	cfg.Server.LogOutput = "stderr"
	cfg.MPD.Host = "localhost"
	cfg.MPD.DiscoverTimeoutMS = 3000
	cfg.Modules.Bridge.Enabled = true
	cfg.Modules.Bridge.NodeID = "mpd:bridge:default"
	cfg.Modules.StatusWatch.Enabled = true
	cfg.Modules.EmbeddedMQTT.Enabled = true
	cfg.Modules.EmbeddedMQTT.AllowAnonymous = true
	return cfg
}

// LoadConfig decodes path over Default.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path required")
	}
	info, err := os.Stat(path)
	if err != nil {
		return Config{}, err
	}
	if info.IsDir() {
		return Config{}, errors.New("config path is a directory")
	}

	cfg := Default()
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return Config{}, fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
	}
	return cfg, nil
}

// DefaultConfigPath returns the default config location.
func DefaultConfigPath() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "mpdbridge", "mpdbridged.toml"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "mpdbridge", "mpdbridged.toml"), nil
}

// ApplyEnv applies MPD_HOST ([password@]host) and MPD_PORT.
func ApplyEnv(cfg *Config, getenv func(string) string) error {
	if host := getenv("MPD_HOST"); host != "" {
		// A leading @ is an abstract socket, not a password separator.
		if i := strings.LastIndex(host, "@"); i > 0 {
			cfg.MPD.Password = host[:i]
			host = host[i+1:]
		}
		cfg.MPD.Host = host
		cfg.MPD.Discover = false
	}
	if port := getenv("MPD_PORT"); port != "" {
		n, err := strconv.Atoi(port)
		if err != nil || n < 0 || n > 65535 {
			return fmt.Errorf("invalid MPD_PORT %q", port)
		}
		cfg.MPD.Port = n
	}
	return nil
}

// StateNodeID is the node whose state topic status_watch publishes on. It
// falls back to the bridge node.
func (c Config) StateNodeID() string {
	if id := strings.TrimSpace(c.Modules.StatusWatch.NodeID); id != "" {
		return id
	}
	return c.Modules.Bridge.NodeID
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	var errs error
	if c.Modules.Bridge.Enabled && strings.TrimSpace(c.Modules.Bridge.NodeID) == "" {
		errs = multierr.Append(errs, errors.New("modules.bridge.node_id required"))
	}
	if c.Modules.StatusWatch.Enabled && !c.MPD.Discover && strings.TrimSpace(c.MPD.Host) == "" {
		errs = multierr.Append(errs, errors.New("mpd.host required"))
	}
	if c.MPD.Port < 0 || c.MPD.Port > 65535 {
		errs = multierr.Append(errs, errors.New("mpd.port must be between 0 and 65535"))
	}
	if c.MPD.TimeoutMS < 0 {
		errs = multierr.Append(errs, errors.New("mpd.timeout_ms must not be negative"))
	}
	if c.Modules.EmbeddedMQTT.Enabled && !c.Modules.EmbeddedMQTT.AllowAnonymous && c.Modules.EmbeddedMQTT.Username == "" {
		errs = multierr.Append(errs, errors.New("modules.embedded_mqtt requires allow_anonymous or username"))
	}
	if c.Modules.StatusWatch.Enabled && strings.TrimSpace(c.StateNodeID()) == "" {
		errs = multierr.Append(errs, errors.New("modules.status_watch.node_id required"))
	}
	return errs
}
