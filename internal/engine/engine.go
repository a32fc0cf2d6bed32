package engine

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/genricoloni/nowplaying-xml/internal/domain"
	"github.com/genricoloni/nowplaying-xml/internal/exporter"
)

// Engine ties the exporter's lifetime to the player host.
// Start connects the host and activates the exporter; Stop undoes both.
type Engine struct {
	logger   *zap.Logger
	cfg      domain.Config
	host     domain.Host
	exporter *exporter.Exporter
}

// NewEngine creates a new orchestration engine
func NewEngine(
	logger *zap.Logger,
	cfg domain.Config,
	host domain.Host,
	exp *exporter.Exporter,
) *Engine {
	return &Engine{
		logger:   logger,
		cfg:      cfg,
		host:     host,
		exporter: exp,
	}
}

// Start activates the exporter and then connects to the player. The host
// loads the player's initial state during Start, so the first export runs
// through the regular handlers before any signal is processed.
// On failure everything started so far is torn down again.
func (e *Engine) Start(ctx context.Context) error {
	e.logger.Info("Engine starting...",
		zap.String("player", e.cfg.GetPlayer()),
		zap.String("output", e.cfg.GetOutputPath()))

	if err := e.exporter.Activate(e.host, e.host); err != nil {
		err = fmt.Errorf("failed to activate exporter: %w", err)
		return multierr.Append(err, e.exporter.Deactivate())
	}

	if err := e.host.Start(ctx); err != nil {
		err = fmt.Errorf("failed to start player host: %w", err)
		return multierr.Append(err, e.exporter.Deactivate())
	}

	e.logger.Info("Engine started")
	return nil
}

// Stop disconnects from the player and then deactivates the exporter,
// removing the output file
func (e *Engine) Stop(ctx context.Context) error {
	e.logger.Info("Engine stopping...")

	err := e.host.Stop(ctx)
	if err != nil {
		e.logger.Error("Failed to stop player host", zap.Error(err))
	}

	if derr := e.exporter.Deactivate(); derr != nil {
		e.logger.Error("Failed to deactivate exporter", zap.Error(derr))
		err = multierr.Append(err, derr)
	}

	return err
}
