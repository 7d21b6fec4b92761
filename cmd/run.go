package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"firestige.xyz/framelat/internal/config"
	"firestige.xyz/framelat/internal/core"
	"firestige.xyz/framelat/internal/endpoint"
	"firestige.xyz/framelat/internal/gstpipe"
	"firestige.xyz/framelat/internal/log"
	"firestige.xyz/framelat/internal/metrics"
	"firestige.xyz/framelat/internal/synth"
)

// runner is one endpoint's Run.
type runner func(ctx context.Context) error

// prepare loads the configuration and initializes logging.
func prepare(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := log.Init(cfg.Log); err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}
	return cfg, nil
}

// newPipeline selects the media pipeline for one side.
func newPipeline(side core.Endpoint, cfg config.PipelineConfig) (endpoint.Pipeline, error) {
	switch cfg.Kind {
	case config.PipelineSynth:
		if side == core.EndpointSender {
			return synth.NewSender(cfg), nil
		}
		return synth.NewReceiver(cfg), nil
	case config.PipelineGst:
		build := gstpipe.NewReceiver
		if side == core.EndpointSender {
			build = gstpipe.NewSender
		}
		p, err := build(cfg)
		if err != nil {
			return nil, err
		}
		log.GetLogger().Infof("%s gst pipeline: %s", side, p.Launch())
		return p, nil
	default:
		return nil, fmt.Errorf("%w: pipeline kind %q", core.ErrConfigInvalid, cfg.Kind)
	}
}

// execute runs an endpoint until it finishes or a termination signal
// arrives, with the metrics endpoint served alongside when enabled.
func execute(cfg *config.Config, side core.Endpoint, run runner) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer func() {
		if err := log.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to close log output: %v\n", err)
		}
	}()

	logger := log.GetLogger().WithFields(map[string]interface{}{
		"endpoint": string(side),
		"node":     cfg.Node.Hostname,
	})

	if cfg.Metrics.Enabled {
		srv := metrics.NewServer(cfg.Metrics.Listen, cfg.Metrics.Path)
		if err := srv.Start(ctx); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Stop(shutdownCtx); err != nil {
				logger.WithError(err).Warn("metrics server shutdown failed")
			}
		}()
	}

	logger.Infof("starting %s", side)
	if err := run(ctx); err != nil {
		logger.WithError(err).Errorf("%s failed", side)
		return err
	}
	logger.Infof("%s finished", side)
	return nil
}
