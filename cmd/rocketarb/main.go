// Command rocketarb creates a Rocket Pool minipool deposit through the
// smartnode and submits it in a relay bundle together with an rETH
// arbitrage. It also reports the rETH premium, backruns other operators'
// deposits and lists the audit history.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/rocketarb/rocketarb/internal/app"
	"github.com/rocketarb/rocketarb/internal/config"
)

func main() {
	if err := newCLI(run).Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// runFunc executes a validated configuration.
type runFunc func(ctx context.Context, cfg *config.Config) error

// newCLI builds the command tree. run is invoked with the merged
// configuration of file, environment and flags.
func newCLI(run runFunc) *cli.App {
	mode := func(name string) cli.ActionFunc {
		return func(c *cli.Context) error {
			cfg, err := loadConfig(c, name)
			if err != nil {
				return err
			}
			return run(c.Context, cfg)
		}
	}
	return &cli.App{
		Name:  "rocketarb",
		Usage: "deposit a Rocket Pool minipool with an rETH arbitrage in the same bundle",
		Flags: globalFlags(),
		// Without a command rocketarb creates or resumes a deposit.
		Action: mode("deposit"),
		Commands: []*cli.Command{
			{
				Name:   "deposit",
				Usage:  "create (or resume) a minipool deposit bundle and submit it",
				Action: mode("deposit"),
			},
			{
				Name:   "premium",
				Usage:  "print the rETH protocol rate, market rate and premium",
				Action: mode("premium"),
			},
			{
				Name:   "watch",
				Usage:  "backrun pending minipool deposits with a flash-loan arbitrage",
				Action: mode("watch"),
			},
			{
				Name:   "history",
				Usage:  "list recent audit log entries",
				Action: mode("history"),
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Value: 20, Usage: "number of entries to print"},
				},
			},
			encryptKeyCommand(),
		},
	}
}

// loadConfig merges defaults, the config file, ROCKETARB_* variables and
// the command line, in that order, and validates the result.
func loadConfig(c *cli.Context, mode string) (*config.Config, error) {
	path := c.String("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	cfg.Mode = mode
	if err := applyFlags(c, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// run is the production runFunc.
func run(ctx context.Context, cfg *config.Config) error {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application := app.New(cfg, logger, os.Stdin, os.Stdout)
	defer application.Close()

	if err := application.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("interrupted")
			return nil
		}
		logger.Error("rocketarb exited with error", slog.String("error", err.Error()))
		return err
	}
	return nil
}

func logLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
