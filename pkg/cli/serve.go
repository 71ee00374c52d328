package cli

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getfaultd/faultd/internal/cliconfig"
	"github.com/getfaultd/faultd/pkg/admin"
	"github.com/getfaultd/faultd/pkg/config"
	"github.com/getfaultd/faultd/pkg/engine"
	"github.com/getfaultd/faultd/pkg/fault"
	"github.com/getfaultd/faultd/pkg/logging"
	"github.com/getfaultd/faultd/pkg/source"
)

// shutdownTimeout is the maximum time to wait for graceful shutdown.
const shutdownTimeout = 15 * time.Second

// RunServe handles the serve command: the foreground fault injection
// server with its admin API.
func RunServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)

	configFile := fs.String("config", "", "Path to configuration file (YAML or JSON)")
	fs.StringVar(configFile, "c", "", "Path to configuration file (shorthand)")
	host := fs.String("host", "", "Admin API listen address (overrides config)")
	port := fs.Int("port", 0, "Admin API port (overrides config)")
	fs.IntVar(port, "p", 0, "Admin API port (shorthand)")
	pattern := fs.String("pattern", "", "Scheduling pattern: random, burst, periodic, wave (overrides config)")
	interval := fs.Float64("interval", 0, "Base interval between injections in seconds (overrides config)")
	logLevel := fs.String("log-level", "", "Log level: debug, info, warn, error (overrides config)")
	logFormat := fs.String("log-format", "", "Log format: text, json (overrides config)")
	logFile := fs.String("log-file", "", "Also write logs to this file (overrides config)")
	noAuth := fs.Bool("no-auth", false, "Disable API key authentication")
	autostart := fs.Bool("start", false, "Begin injecting immediately instead of waiting for the start command")

	fs.Usage = func() {
		fmt.Fprint(os.Stderr, `Usage: faultd serve [flags]

Start the fault injection server in the foreground.

The server exposes an admin API for controlling generation, injecting
faults on demand, and streaming injection events. Generation is idle
until started with 'faultd start' or the --start flag.

Flags:
  -c, --config      Path to configuration file (YAML or JSON)
      --host        Admin API listen address
  -p, --port        Admin API port (default: 7460)
      --pattern     Scheduling pattern: random, burst, periodic, wave
      --interval    Base interval between injections in seconds
      --log-level   Log level: debug, info, warn, error
      --log-format  Log format: text, json
      --log-file    Also write logs to this file
      --no-auth     Disable API key authentication
      --start       Begin injecting immediately

Examples:
  # Start with defaults, generation idle
  faultd serve

  # Start injecting immediately every 500ms
  faultd serve --start --interval 0.5

  # Load a tuned configuration
  faultd serve --config faultd.yaml

  # Burst pattern on a custom port
  faultd serve --pattern burst --port 9460
`)
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadServeConfig(*configFile)
	if err != nil {
		return err
	}

	// Flag overrides beat both file and environment.
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}
	if *pattern != "" {
		cfg.Generation.Pattern = *pattern
	}
	if *interval > 0 {
		cfg.Generation.IntervalSeconds = *interval
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Logging.Format = *logFormat
	}
	if *logFile != "" {
		cfg.Logging.File = *logFile
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log, cleanup, err := buildLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer cleanup()

	registry, names, err := buildRegistry(cfg, log)
	if err != nil {
		return err
	}

	coord, err := engine.New(registry, cfg.SchedulerConfig(names), engine.WithLogger(log))
	if err != nil {
		return fmt.Errorf("failed to build injection engine: %w", err)
	}
	defer coord.Close()

	keyCfg := admin.DefaultAPIKeyConfig()
	keyCfg.Key = cfg.Server.APIKey
	keyCfg.AllowLocalhost = cfg.Server.LocalhostBypass
	if *noAuth {
		keyCfg.Enabled = false
	}

	api, err := admin.New(coord, cfg.Server.Port,
		admin.WithHost(cfg.Server.Host),
		admin.WithLogger(log),
		admin.WithVersion(Version),
		admin.WithAPIKeyConfig(keyCfg),
	)
	if err != nil {
		return fmt.Errorf("failed to build admin API: %w", err)
	}

	if err := api.Start(); err != nil {
		return fmt.Errorf("failed to start admin API: %w", err)
	}

	if *autostart {
		coord.Start()
		log.Info("generation started", "pattern", string(coord.Pattern()))
	}

	// Block until interrupted.
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	s := <-sig
	log.Info("shutting down", "signal", s.String())

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	coord.Stop()
	if err := api.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}

// loadServeConfig picks the config file from the flag, then the
// environment, then falls back to defaults.
func loadServeConfig(flagPath string) (*config.Config, error) {
	path := flagPath
	if path == "" {
		path = cliconfig.GetConfigFile()
	}
	if path == "" {
		return config.Default(), nil
	}
	cfg, err := config.LoadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}
	return cfg, nil
}

// buildLogger assembles the slog logger from the logging section. The
// returned cleanup closes any file or remote handlers.
func buildLogger(cfg config.LoggingConfig) (*slog.Logger, func(), error) {
	base := logging.Config{
		Level:     logging.ParseLevel(cfg.Level),
		Format:    logging.Format(cfg.Format),
		AddSource: cfg.AddSource,
	}

	handlers := []slog.Handler{logging.NewHandler(base)}
	cleanup := func() {}

	if cfg.File != "" {
		f, err := logging.OpenLogFile(cfg.File)
		if err != nil {
			return nil, nil, err
		}
		fileCfg := base
		fileCfg.Output = f
		fileCfg.Format = logging.FormatJSON
		handlers = append(handlers, logging.NewHandler(fileCfg))
		cleanup = func() { _ = f.Close() }
	}
	if cfg.LokiURL != "" {
		loki := logging.NewLokiHandler(cfg.LokiURL)
		handlers = append(handlers, loki)
		prev := cleanup
		cleanup = func() {
			_ = loki.Close()
			prev()
		}
	}

	if len(handlers) == 1 {
		return slog.New(handlers[0]), cleanup, nil
	}
	return slog.New(logging.NewMultiHandler(handlers...)), cleanup, nil
}

// buildRegistry constructs fault sources from the config and returns the
// registry plus the source names in config order. The order matters: the
// scheduler weights are matched to sources by index.
func buildRegistry(cfg *config.Config, log *slog.Logger) (*fault.Registry, []string, error) {
	registry := fault.NewRegistry()
	names := make([]string, 0, len(cfg.Sources))
	for _, sc := range cfg.Sources {
		opts := []source.Option{source.WithLogger(log)}
		if sc.FailureProbability > 0 {
			opts = append(opts, source.WithFailureProbability(sc.FailureProbability))
		}
		if len(sc.KindWeights) > 0 {
			kw := make(map[fault.Kind]float64, len(sc.KindWeights))
			for k, w := range sc.KindWeights {
				kw[fault.Kind(k)] = w
			}
			opts = append(opts, source.WithKindWeights(kw))
		}
		svc := source.New(sc.Type, opts...)
		if svc == nil {
			return nil, nil, fmt.Errorf("unknown source type %q", sc.Type)
		}
		if err := registry.Register(svc); err != nil {
			return nil, nil, fmt.Errorf("failed to register source %q: %w", sc.Type, err)
		}
		names = append(names, svc.Name())
	}
	return registry, names, nil
}
