// Command tempest-bridge runs the WeatherFlow Tempest bridge.
//
// The bridge discovers stations on the local network (UDP broadcasts) or
// reads them from the Tempest cloud (OAuth2 PKCE), exposes them as entities
// over an HTTP API and optionally publishes them to MQTT.
//
// Usage:
//
//	tempest-bridge [flags]
//
// Flags:
//
//	-config string      Configuration file path (YAML)
//	-log-level string   Log level: debug, info, warn, error (overrides config)
//	-state-dir string   Directory for persistent state (overrides config)
//	-interactive        Enable interactive command mode
//	-reset              Clear all persisted entries before starting
//
// Examples:
//
//	# Start with defaults, entries stored in the working directory
//	tempest-bridge
//
//	# Start with a config file and an interactive console
//	tempest-bridge -config /etc/tempest/bridge.yaml -interactive
//
//	# Record every datagram for later analysis with tempest-capture
//	tempest-bridge -config bridge.yaml -log-level debug
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/tempest-bridge/tempest-go/cmd/tempest-bridge/interactive"
	"github.com/tempest-bridge/tempest-go/pkg/cloud"
	"github.com/tempest-bridge/tempest-go/pkg/config"
	"github.com/tempest-bridge/tempest-go/pkg/configflow"
	"github.com/tempest-bridge/tempest-go/pkg/discovery"
	"github.com/tempest-bridge/tempest-go/pkg/host"
	"github.com/tempest-bridge/tempest-go/pkg/integration"
	caplog "github.com/tempest-bridge/tempest-go/pkg/log"
	"github.com/tempest-bridge/tempest-go/pkg/mqtt"
	"github.com/tempest-bridge/tempest-go/pkg/oauth"
	"github.com/tempest-bridge/tempest-go/pkg/persistence"
	"github.com/tempest-bridge/tempest-go/pkg/platform"
	"github.com/tempest-bridge/tempest-go/pkg/version"
	"github.com/tempest-bridge/tempest-go/pkg/web"
)

// Flags holds the command-line flags.
type Flags struct {
	ConfigFile  string
	LogLevel    string
	StateDir    string
	Interactive bool
	Reset       bool
}

var flags Flags

const mqttConnectTimeout = 30 * time.Second

func init() {
	flag.StringVar(&flags.ConfigFile, "config", "", "Configuration file path (YAML)")
	flag.StringVar(&flags.LogLevel, "log-level", "", "Log level: debug, info, warn, error")
	flag.StringVar(&flags.StateDir, "state-dir", "", "Directory for persistent state")
	flag.BoolVar(&flags.Interactive, "interactive", false, "Enable interactive command mode")
	flag.BoolVar(&flags.Reset, "reset", false, "Clear all persisted entries before starting")
}

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "tempest-bridge: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(flags.ConfigFile)
	if err != nil {
		return err
	}
	if flags.LogLevel != "" {
		cfg.LogLevel = flags.LogLevel
	}
	if flags.StateDir != "" {
		cfg.StateDir = flags.StateDir
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The console must exist before the logger so log lines do not
	// clobber the prompt.
	var console *interactive.Console
	var logOut io.Writer = os.Stderr
	if flags.Interactive {
		console, err = interactive.New()
		if err != nil {
			return err
		}
		logOut = console.Stdout()
	}

	logger := setupLogging(logOut, cfg.LogLevel)
	logger.Info("Tempest Bridge", "version", version.Version, "state_dir", cfg.StateDir)

	// Persistence
	if err := os.MkdirAll(cfg.StateDir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	store := persistence.NewEntryStore(cfg.EntriesPath())
	if flags.Reset {
		logger.Info("Clearing persisted entries")
		if err := store.Clear(); err != nil {
			return fmt.Errorf("reset state: %w", err)
		}
	}
	entries, err := store.Load()
	if err != nil {
		return fmt.Errorf("load entries: %w", err)
	}

	// Entity sink
	var sink host.EntitySink = host.NopSink{}
	if cfg.MQTT.Enabled {
		connectCtx, connectCancel := context.WithTimeout(ctx, mqttConnectTimeout)
		mqttSink, err := mqtt.Connect(connectCtx, mqtt.Config{
			Broker:          cfg.MQTT.Broker,
			ClientID:        cfg.MQTT.ClientID,
			Username:        cfg.MQTT.Username,
			Password:        cfg.MQTT.Password,
			DiscoveryPrefix: cfg.MQTT.DiscoveryPrefix,
			BaseTopic:       cfg.MQTT.BaseTopic,
			Logger:          logger,
		})
		connectCancel()
		if err != nil {
			return err
		}
		defer mqttSink.Close()
		sink = mqttSink
	}

	// Capture
	capture, closeCapture, err := setupCapture(cfg.Local.CaptureFile, logger)
	if err != nil {
		return err
	}
	defer closeCapture()

	listenerConfig := discovery.ListenerConfig{
		Address: cfg.Local.Address,
		Capture: capture,
		Logger:  logger,
	}

	// Host and integration
	h := host.New(host.Config{
		Logger: logger,
		Sink:   sink,
		Store:  store,
		Retry: host.BackoffConfig{
			Initial: cfg.Retry.Initial,
			Max:     cfg.Retry.Max,
		},
	})

	integCfg := integration.Config{
		NewListener: func() integration.LocalSource {
			return discovery.NewListener(listenerConfig)
		},
		Logger: logger,
	}
	if cfg.Cloud.Enabled {
		integCfg.NewCoordinator = cloud.NewFactory(cloud.FactoryConfig{
			BaseURL:        cfg.Cloud.BaseURL,
			UpdateInterval: cfg.Cloud.UpdateInterval,
			Logger:         logger,
		})
	}
	integ := integration.New(h, integCfg)
	h.RegisterPlatform(host.PlatformSensor, platform.NewSensors(h, integ))
	h.RegisterPlatform(host.PlatformWeather, platform.NewWeather(h, integ))

	// Config flows
	flowCfg := configflow.Config{
		Registry: h,
		Discover: func(ctx context.Context) (bool, error) {
			factory := discovery.NewListenerFactory(listenerConfig)
			return discovery.Discover(ctx, factory, cfg.Local.DiscoveryTimeout)
		},
		Logger: logger,
	}
	if cfg.Cloud.Enabled {
		flowCfg.Auth = oauth.NewImplementation(oauth.Config{
			ClientID:     cfg.Cloud.ClientID,
			AuthorizeURL: cfg.Cloud.AuthorizeURL,
			TokenURL:     cfg.Cloud.TokenURL,
			RedirectURL:  redirectURL(cfg),
		})
	}
	flows := configflow.NewManager(flowCfg)

	// Start
	logger.Info("Restoring entries", "count", len(entries))
	h.LoadEntries(ctx, entries)
	h.Start(ctx)

	var advertiser *web.Advertiser
	if cfg.Web.Advertise {
		advertiser = web.NewAdvertiser(web.AdvertiserConfig{InstanceName: cfg.Web.InstanceName})
	}
	server := web.NewServer(web.Config{
		Host:       h,
		Flows:      flows,
		Advertiser: advertiser,
		Logger:     logger,
	})
	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Serve(ctx, cfg.Web.Listen) }()

	if console != nil {
		console.Attach(h, flows)
		go console.Run(ctx, cancel)
	}

	// Wait for shutdown signal, console quit or server failure
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigCh:
		logger.Info("Received signal", "signal", sig.String())
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			runErr = err
		}
	}

	logger.Info("Shutting down...")
	cancel()
	h.Stop(context.Background())
	logger.Info("Goodbye!")
	return runErr
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func setupLogging(w io.Writer, level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	if opts.Level == slog.LevelDebug {
		opts.AddSource = true
	}
	logger := slog.New(slog.NewTextHandler(w, opts))
	slog.SetDefault(logger)
	return logger
}

// setupCapture returns the capture logger for listeners. Events always go to
// the debug log; with a capture file they are also recorded as CBOR.
func setupCapture(path string, logger *slog.Logger) (caplog.Logger, func(), error) {
	debug := caplog.NewSlogAdapter(logger)
	if path == "" {
		return debug, func() {}, nil
	}

	file, err := caplog.NewFileLogger(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open capture file: %w", err)
	}
	logger.Info("Recording datagrams", "file", path)

	closer := func() {
		if err := file.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			logger.Warn("capture file close failed", "error", err)
		}
		if n := file.Dropped(); n > 0 {
			logger.Warn("capture events dropped", "count", n)
		}
	}
	return caplog.NewMultiLogger(file, debug), closer, nil
}

// redirectURL is the configured OAuth redirect or the bridge's own callback.
func redirectURL(cfg config.Config) string {
	if cfg.Cloud.RedirectURL != "" {
		return cfg.Cloud.RedirectURL
	}
	listen := cfg.Web.Listen
	if strings.HasPrefix(listen, ":") {
		listen = "localhost" + listen
	}
	return "http://" + listen + web.CallbackPath
}
