// Package app wires rocketarb's collaborators together and runs one command:
// a deposit (new or resumed), a premium check, the pending-deposit watcher
// or the audit history listing.
package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/rocketarb/rocketarb/internal/config"
)

// App owns the configuration, the operator's terminal and the cleanup
// functions registered while wiring.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	in      *bufio.Reader
	out     io.Writer
	closers []func()
}

// New creates an App. in and out are the operator's terminal.
func New(cfg *config.Config, logger *slog.Logger, in io.Reader, out io.Writer) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
		in:     bufio.NewReader(in),
		out:    out,
	}
}

// Run executes the configured mode.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting",
		slog.String("mode", a.cfg.Mode),
		slog.Any("config", config.RedactedConfig(a.cfg)),
	)

	switch a.cfg.Mode {
	case "history":
		return a.HistoryMode(ctx)
	case "premium", "deposit", "watch":
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	switch a.cfg.Mode {
	case "premium":
		return a.PremiumMode(ctx, deps)
	case "watch":
		return a.WatchMode(ctx, deps)
	default:
		return a.DepositMode(ctx, deps)
	}
}

// Close runs the registered cleanups in reverse order. Safe to call twice.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// say prints an operator-facing line.
func (a *App) say(format string, args ...any) {
	fmt.Fprintf(a.out, format+"\n", args...)
}

// confirm asks a yes/no question; only "y" and "yes" agree.
func (a *App) confirm(ctx context.Context, question string) (bool, error) {
	fmt.Fprintf(a.out, "%s ", question)
	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := a.in.ReadString('\n')
		ch <- result{line, err}
	}()
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case r := <-ch:
		if r.err != nil && r.line == "" {
			if r.err == io.EOF {
				return false, nil
			}
			return false, fmt.Errorf("app: read answer: %w", r.err)
		}
		answer := strings.ToLower(strings.TrimSpace(r.line))
		return answer == "y" || answer == "yes", nil
	}
}
