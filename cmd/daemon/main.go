package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/genricoloni/nowplaying-xml/internal/config"
	"github.com/genricoloni/nowplaying-xml/internal/domain"
	"github.com/genricoloni/nowplaying-xml/internal/engine"
	"github.com/genricoloni/nowplaying-xml/internal/exporter"
	"github.com/genricoloni/nowplaying-xml/internal/monitor"
	"github.com/genricoloni/nowplaying-xml/internal/output"
)

// AppOptions is the application graph, minus the parsed command line
var AppOptions = fx.Options(
	fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
		return &fxevent.ZapLogger{Logger: log}
	}),

	fx.Provide(
		config.NewViper,
		newLogger,
		fx.Annotate(config.NewAppConfig, fx.As(new(domain.Config))),
		fx.Annotate(monitor.NewMprisHost, fx.As(new(domain.Host))),
		fx.Annotate(output.NewFileSink, fx.As(new(domain.Sink))),
		exporter.NewExporter,
		engine.NewEngine,
	),

	fx.Invoke(registerHooks),
)

func main() {
	flags := config.NewFlagSet()
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	app := fx.New(
		fx.Supply(flags),
		AppOptions,
	)

	// Handle graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := app.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	<-ctx.Done()

	if err := app.Stop(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newLogger creates a production logger, or a development one with --debug
func newLogger(v *viper.Viper) (*zap.Logger, error) {
	if config.IsDebug(v) {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// registerHooks sets up application lifecycle hooks
func registerHooks(lc fx.Lifecycle, logger *zap.Logger, eng *engine.Engine) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("Now playing daemon started")
			return eng.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Shutting down")
			defer func() { _ = logger.Sync() }()
			return eng.Stop(ctx)
		},
	})
}
