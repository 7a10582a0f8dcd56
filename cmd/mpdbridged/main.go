package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/mikey-austin/mpdbridge/internal/adapters/idgen"
	"github.com/mikey-austin/mpdbridge/internal/adapters/mqttserver"
	"github.com/mikey-austin/mpdbridge/internal/binding"
	"github.com/mikey-austin/mpdbridge/internal/daemon"
	"github.com/mikey-austin/mpdbridge/internal/discovery"
	"github.com/mikey-austin/mpdbridge/internal/modules/bridge"
	embeddedmqtt "github.com/mikey-austin/mpdbridge/internal/modules/embedded_mqtt"
	statusfeed "github.com/mikey-austin/mpdbridge/internal/modules/status_feed"
	statuswatch "github.com/mikey-austin/mpdbridge/internal/modules/status_watch"
	"github.com/mikey-austin/mpdbridge/internal/player"
	"github.com/mikey-austin/mpdbridge/pkg/mpc"
)

type options struct {
	configPath string
	broker     string
	identity   string
	topicBase  string
	logLevel   string
	logFormat  string
	logOutput  string
	logUTC     bool
	mpdHost    string
	mpdPort    int
	module     string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var opts options

	serve := func(cmd *cobra.Command, _ []string) error {
		return runServe(cmd.Context(), opts, cmd.Flags())
	}
	root := &cobra.Command{
		Use:           "mpdbridged",
		Short:         "Expose MPD playback control over MQTT",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve,
	}
	defaultConfig, err := daemon.DefaultConfigPath()
	if err != nil {
		defaultConfig = ""
	}
	registerFlags(root.PersistentFlags(), &opts, defaultConfig)

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the enabled modules (default)",
		Args:  cobra.NoArgs,
		RunE:  serve,
	})
	root.AddCommand(&cobra.Command{
		Use:   "print-config",
		Short: "Print the resolved configuration and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(opts, cmd.Flags(), os.Getenv)
			if err != nil {
				return err
			}
			return printResolvedConfig(cmd.OutOrStdout(), cfg)
		},
	})
	return root
}

func registerFlags(fs *pflag.FlagSet, opts *options, defaultConfig string) {
	fs.StringVarP(&opts.configPath, "config", "c", defaultConfig, "config file path")
	fs.StringVarP(&opts.broker, "broker", "b", "", "MQTT broker URL override")
	fs.StringVar(&opts.identity, "identity", "", "server identity override")
	fs.StringVar(&opts.topicBase, "topic-base", "", "topic base override")
	fs.StringVar(&opts.logLevel, "log-level", "", "log level override")
	fs.StringVar(&opts.logFormat, "log-format", "", "log format override (text|json)")
	fs.StringVar(&opts.logOutput, "log-output", "", "log output override (stdout|stderr|path)")
	fs.BoolVar(&opts.logUTC, "log-utc", false, "use UTC timestamps in logs")
	fs.StringVar(&opts.mpdHost, "mpd-host", "", "MPD host watched by status_watch")
	fs.IntVar(&opts.mpdPort, "mpd-port", 0, "MPD port watched by status_watch")
	fs.StringVarP(&opts.module, "module", "m", "", "limit to a single module")
}

// resolveConfig layers the config file, the environment and flags. A missing
// file at the default location means defaults.
func resolveConfig(opts options, flags *pflag.FlagSet, getenv func(string) string) (daemon.Config, error) {
	cfg := daemon.Default()
	if opts.configPath != "" {
		loaded, err := daemon.LoadConfig(opts.configPath)
		switch {
		case err == nil:
			cfg = loaded
		case errors.Is(err, os.ErrNotExist) && !flags.Changed("config"):
		default:
			return daemon.Config{}, err
		}
	}
	if err := daemon.ApplyEnv(&cfg, getenv); err != nil {
		return daemon.Config{}, err
	}
	applyOverrides(&cfg, opts, flags)
	if err := cfg.Validate(); err != nil {
		return daemon.Config{}, err
	}
	return cfg, nil
}

func applyOverrides(cfg *daemon.Config, opts options, flags *pflag.FlagSet) {
	if opts.broker != "" {
		cfg.Server.Broker = opts.broker
	}
	if opts.identity != "" {
		cfg.Server.Identity = opts.identity
	}
	if opts.topicBase != "" {
		cfg.Server.TopicBase = opts.topicBase
	}
	if opts.logLevel != "" {
		cfg.Server.LogLevel = opts.logLevel
	}
	if opts.logFormat != "" {
		cfg.Server.LogFormat = opts.logFormat
	}
	if opts.logOutput != "" {
		cfg.Server.LogOutput = opts.logOutput
	}
	if opts.logUTC {
		cfg.Server.LogUTC = true
	}
	if opts.mpdHost != "" {
		cfg.MPD.Host = opts.mpdHost
		cfg.MPD.Discover = false
	}
	if flags.Changed("mpd-port") {
		cfg.MPD.Port = opts.mpdPort
	}
	if cfg.Server.TopicBase == "" {
		cfg.Server.TopicBase = mpc.BaseTopic
	}
	if cfg.Server.Broker == "" && cfg.Modules.EmbeddedMQTT.Enabled {
		cfg.Server.Broker = embeddedBrokerURL(*cfg)
	}
}

func runServe(ctx context.Context, opts options, flags *pflag.FlagSet) error {
	cfg, err := resolveConfig(opts, flags, os.Getenv)
	if err != nil {
		return err
	}
	logger, err := daemon.NewLogger(daemon.LogConfigFrom(cfg))
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.MPD.Discover && cfg.Modules.StatusWatch.Enabled && wants(opts.module, "status_watch") {
		if err := discoverDaemon(ctx, logger, &cfg); err != nil {
			return err
		}
	}

	embedded, err := newEmbedded(logger, cfg)
	if err != nil {
		return err
	}
	if !wants(opts.module, "embedded_mqtt") {
		embedded = nil
	}
	skipEmbedded := false
	if embedded != nil && opts.module != "embedded_mqtt" && cfg.Server.Broker == embedded.URL() {
		stopBroker, err := startEmbeddedBroker(ctx, logger, embedded, cancel)
		if err != nil {
			return fmt.Errorf("embedded mqtt: %w", err)
		}
		// Deferred first so it runs last, after the modules and the client.
		defer stopBroker()
		skipEmbedded = true
	}

	logger.Info("mpdbridged starting",
		zap.String("broker", cfg.Server.Broker),
		zap.String("identity", cfg.Server.Identity),
		zap.String("topic_base", cfg.Server.TopicBase),
		zap.String("mpd_host", cfg.MPD.Host),
		zap.Int("mpd_port", cfg.MPD.Port),
		zap.Strings("modules", enabledModules(cfg)),
	)

	var client *mqttserver.Client
	if needsClient(cfg, opts.module) {
		client, err = connectClient(cfg, logger)
		if err != nil {
			return fmt.Errorf("mqtt connection failed: %w", err)
		}
		defer client.Close(250)
	}

	modules, err := buildModules(cfg, client, logger, opts.module, embedded, skipEmbedded)
	if err != nil {
		return fmt.Errorf("build modules: %w", err)
	}

	supervisor := daemon.Supervisor{Logger: logger}
	return supervisor.Run(ctx, modules)
}

func wants(moduleOnly, name string) bool {
	return moduleOnly == "" || moduleOnly == name
}

func needsClient(cfg daemon.Config, moduleOnly string) bool {
	if cfg.Server.Broker == "" {
		return false
	}
	return (cfg.Modules.Bridge.Enabled && wants(moduleOnly, "bridge")) ||
		(cfg.Modules.StatusWatch.Enabled && wants(moduleOnly, "status_watch"))
}

func connectClient(cfg daemon.Config, logger *zap.Logger) (*mqttserver.Client, error) {
	clientID := idgen.Generator{Prefix: "mpdbridged"}.NewID()
	if cfg.Server.Identity != "" {
		clientID = "mpdbridged-" + cfg.Server.Identity
	}
	opts := mqttserver.Options{
		BrokerURL: cfg.Server.Broker,
		ClientID:  clientID,
		Username:  cfg.Server.Auth.User,
		Password:  cfg.Server.Auth.Pass,
		TLSCA:     cfg.Server.TLS.CA,
		TLSCert:   cfg.Server.TLS.Cert,
		TLSKey:    cfg.Server.TLS.Key,
		Timeout:   2 * time.Second,
		Logger:    logger.With(zap.String("component", "mqtt")),
		Debug:     cfg.Server.MQTTDebug,
	}
	if cfg.Modules.Bridge.Enabled {
		topic, payload, err := bridge.Will(bridgeConfig(cfg))
		if err != nil {
			return nil, err
		}
		opts.WillTopic = topic
		opts.WillPayload = payload
	}
	return mqttserver.NewClient(opts)
}

func discoverDaemon(ctx context.Context, logger *zap.Logger, cfg *daemon.Config) error {
	timeout := time.Duration(cfg.MPD.DiscoverTimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	found, err := discovery.First(ctx, logger.With(zap.String("component", "discovery")), timeout)
	if err != nil {
		if cfg.MPD.Host != "" {
			logger.Warn("mpd discovery failed; using configured host", zap.String("host", cfg.MPD.Host), zap.Error(err))
			return nil
		}
		return fmt.Errorf("mpd discovery: %w", err)
	}
	logger.Info("discovered mpd",
		zap.String("instance", found.Instance),
		zap.String("host", found.Host),
		zap.Int("port", found.Port),
	)
	cfg.MPD.Host = found.Host
	cfg.MPD.Port = found.Port
	return nil
}

func bridgeConfig(cfg daemon.Config) bridge.Config {
	return bridge.Config{
		NodeID:    cfg.Modules.Bridge.NodeID,
		TopicBase: cfg.Server.TopicBase,
		Name:      cfg.Modules.Bridge.Name,
	}
}

func newEmbedded(logger *zap.Logger, cfg daemon.Config) (*embeddedmqtt.Module, error) {
	if !cfg.Modules.EmbeddedMQTT.Enabled {
		return nil, nil
	}
	return embeddedmqtt.NewModule(logger.With(zap.String("module", "embedded_mqtt")), embeddedConfig(cfg))
}

func embeddedConfig(cfg daemon.Config) embeddedmqtt.Config {
	return embeddedmqtt.Config{
		Listen:         cfg.Modules.EmbeddedMQTT.Listen,
		AllowAnonymous: cfg.Modules.EmbeddedMQTT.AllowAnonymous,
		Username:       cfg.Modules.EmbeddedMQTT.Username,
		Password:       cfg.Modules.EmbeddedMQTT.Password,
		TLSCA:          cfg.Modules.EmbeddedMQTT.TLSCA,
		TLSCert:        cfg.Modules.EmbeddedMQTT.TLSCert,
		TLSKey:         cfg.Modules.EmbeddedMQTT.TLSKey,
	}
}

func embeddedBrokerURL(cfg daemon.Config) string {
	ec := embeddedConfig(cfg)
	listen := ec.Listen
	if listen == "" {
		listen = embeddedmqtt.DefaultListen
	}
	return embeddedmqtt.BrokerURL(listen, ec.TLS())
}

// startEmbeddedBroker runs the broker ahead of the supervisor so the shared
// client can connect to it. The broker keeps running after ctx is done until
// the returned stop is called, so modules can still publish their offline
// presence. A broker failure stops the daemon.
func startEmbeddedBroker(ctx context.Context, logger *zap.Logger, mod *embeddedmqtt.Module, cancel context.CancelFunc) (func(), error) {
	brokerCtx, stopBroker := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := mod.Run(brokerCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("embedded mqtt exited", zap.Error(err))
			cancel()
		}
	}()
	stop := func() {
		stopBroker()
		<-done
	}
	if err := mod.WaitReady(ctx, 3*time.Second); err != nil {
		stop()
		return nil, err
	}
	return stop, nil
}

func buildModules(cfg daemon.Config, client *mqttserver.Client, logger *zap.Logger, moduleOnly string, embedded *embeddedmqtt.Module, skipEmbedded bool) ([]daemon.ModuleRunner, error) {
	modules := []daemon.ModuleRunner{}
	if embedded != nil && !skipEmbedded && wants(moduleOnly, "embedded_mqtt") {
		modules = append(modules, daemon.ModuleRunner{Name: "embedded_mqtt", Run: embedded.Run})
	}

	if cfg.Modules.Bridge.Enabled && wants(moduleOnly, "bridge") {
		if client == nil {
			return nil, errors.New("bridge requires a broker")
		}
		log := logger.With(zap.String("module", "bridge"))
		table := binding.New(log, binding.Options{})
		mod, err := bridge.NewModule(log, client, table, bridgeConfig(cfg))
		if err != nil {
			return nil, err
		}
		modules = append(modules, daemon.ModuleRunner{Name: "bridge", Run: mod.Run})
	}

	var sinks []statuswatch.Sink
	if cfg.Modules.StatusFeed.Enabled && wants(moduleOnly, "status_feed") {
		feed, err := statusfeed.NewModule(logger.With(zap.String("module", "status_feed")), statusfeed.Config{
			Listen:         cfg.Modules.StatusFeed.Listen,
			Path:           cfg.Modules.StatusFeed.Path,
			AllowedOrigins: cfg.Modules.StatusFeed.AllowedOrigins,
		})
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, feed)
		modules = append(modules, daemon.ModuleRunner{Name: "status_feed", Run: feed.Run})
	}

	watchWanted := wants(moduleOnly, "status_watch") || (moduleOnly == "status_feed" && len(sinks) > 0)
	if cfg.Modules.StatusWatch.Enabled && watchWanted {
		mod, err := statuswatch.NewModule(logger.With(zap.String("module", "status_watch")), client, statuswatch.Config{
			NodeID:    cfg.StateNodeID(),
			TopicBase: cfg.Server.TopicBase,
			Daemon: player.Config{
				Host:      cfg.MPD.Host,
				Port:      cfg.MPD.Port,
				TimeoutMS: cfg.MPD.TimeoutMS,
				Password:  cfg.MPD.Password,
			},
			Subsystems:    cfg.Modules.StatusWatch.Subsystems,
			RetryInterval: time.Duration(cfg.Modules.StatusWatch.RetryIntervalMS) * time.Millisecond,
		}, sinks...)
		if err != nil {
			return nil, err
		}
		modules = append(modules, daemon.ModuleRunner{Name: "status_watch", Run: mod.Run})
	}

	if moduleOnly != "" && len(modules) == 0 {
		return nil, fmt.Errorf("module %q is not enabled", moduleOnly)
	}
	return modules, nil
}

func enabledModules(cfg daemon.Config) []string {
	out := []string{}
	if cfg.Modules.EmbeddedMQTT.Enabled {
		out = append(out, "embedded_mqtt")
	}
	if cfg.Modules.Bridge.Enabled {
		out = append(out, "bridge")
	}
	if cfg.Modules.StatusFeed.Enabled {
		out = append(out, "status_feed")
	}
	if cfg.Modules.StatusWatch.Enabled {
		out = append(out, "status_watch")
	}
	return out
}

// printResolvedConfig writes cfg as TOML with secrets masked.
func printResolvedConfig(w io.Writer, cfg daemon.Config) error {
	mask := func(s *string) {
		if *s != "" {
			*s = "********"
		}
	}
	mask(&cfg.Server.Auth.Pass)
	mask(&cfg.MPD.Password)
	mask(&cfg.Modules.EmbeddedMQTT.Password)
	return toml.NewEncoder(w).Encode(cfg)
}
