package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"

	"github.com/jfinfoproyectos/seiac-live/internal/app"
	"github.com/jfinfoproyectos/seiac-live/internal/config"
)

var (
	// Build information. Populated at build-time via -ldflags.
	version = "dev"
	commit  = "HEAD"
)

func main() {
	cmd := &cli.Command{
		Name:    "seiac-live",
		Usage:   "Live coordination service for SEIAC evaluation sessions",
		Version: fmt.Sprintf("%s (%s)", version, commit),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a config file (yaml/json/toml)",
			},
			&cli.StringFlag{
				Name:  "addr",
				Usage: "listen address, overrides config",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level, overrides config",
			},
		},
		Action: run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return err
	}
	if addr := cmd.String("addr"); addr != "" {
		cfg.ListenAddr = addr
	}
	if level := cmd.String("log-level"); level != "" {
		cfg.LogLevel = level
	}

	log, err := setupLogger(cfg.LogLevel)
	if err != nil {
		return err
	}

	application, err := app.New(cfg, log)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)

	appErr := make(chan error, 1)
	go func() {
		if err := application.Start(runCtx); err != nil {
			appErr <- err
		}
	}()

	select {
	case err := <-appErr:
		return err
	case sig := <-signalCh:
		log.Info().Str("signal", sig.String()).Msg("shutdown requested")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		return application.Stop(shutdownCtx)
	}
}

func setupLogger(level string) (zerolog.Logger, error) {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	out := zerolog.ConsoleWriter{Out: os.Stderr}
	return zerolog.New(out).Level(parsed).With().Timestamp().Logger(), nil
}
