// Package servecmder implements `finvisor serve`.
package servecmder

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/finvisor/finvisor/api"
	"github.com/finvisor/finvisor/pkg/config"
	"github.com/finvisor/finvisor/pkg/logger"
	"github.com/finvisor/finvisor/pkg/ratelimit"
)

const serveLongDesc string = `Run the finvisor API server.

Settings come from an optional TOML file and the environment. When a
file is given it is watched: rate limits and the log level change
without a restart, everything else needs one.

Examples:
  finvisor serve
  finvisor serve --config finvisor.toml --debug
  OPENAI_API_KEY=sk-... finvisor serve --listen :9090`

const serveShortDesc string = "Run the API server"

type serveCommander struct {
	configPath string
	listen     string
	debug      bool
}

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd.Context())
		},
	}

	cmd.Flags().StringVarP(&cmder.configPath, "config", "c", "", "Path to a TOML config file")
	cmd.Flags().StringVarP(&cmder.listen, "listen", "l", "", "Address to listen on (overrides the config)")
	cmd.Flags().BoolVar(&cmder.debug, "debug", false, "Enable debug logging")

	return cmd
}

func (c *serveCommander) run(ctx context.Context) error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return fmt.Errorf("could not load config: %w", err)
	}
	c.override(cfg)

	level := zap.NewAtomicLevel()
	setLevel(level, cfg)

	var log *zap.Logger
	if cfg.Server.JSONLogs {
		log = logger.NewJSONLoggerWithLevel(level)
	} else {
		log = logger.NewLoggerWithLevel(level)
	}
	defer log.Sync()

	log.Info("finvisor starting",
		zap.String("listen", cfg.Server.Listen),
		zap.String("storage", cfg.Storage.Driver),
		zap.String("zoom", cfg.Zoom.Mode),
		zap.Bool("debug", cfg.Server.Debug),
	)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := api.NewFromConfig(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("could not build server: %w", err)
	}
	defer srv.Close()

	if c.configPath != "" {
		go func() {
			err := config.Watch(ctx, c.configPath, log, func(next *config.Config) {
				c.override(next)
				reload(level, srv.Limiter(), next)
			})
			if err != nil {
				log.Warn("config watch stopped", zap.Error(err))
			}
		}()
	}

	return srv.Run(ctx)
}

// override applies command-line flags over a loaded config.
func (c *serveCommander) override(cfg *config.Config) {
	if c.listen != "" {
		cfg.Server.Listen = c.listen
	}
	if c.debug {
		cfg.Server.Debug = true
	}
}

// reload applies the settings that can change while serving.
func reload(level zap.AtomicLevel, limiter *ratelimit.Limiter, cfg *config.Config) {
	setLevel(level, cfg)
	limiter.SetLimits(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
}

func setLevel(level zap.AtomicLevel, cfg *config.Config) {
	if cfg.Server.Debug {
		level.SetLevel(zap.DebugLevel)
		return
	}
	level.SetLevel(zap.InfoLevel)
}
