package signer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/rocketarb/rocketarb/internal/domain"
	"github.com/rocketarb/rocketarb/internal/units"
)

// CommandDaemon runs the smartnode CLI, e.g.
// "docker exec rocketpool_node /go/bin/rocketpool".
type CommandDaemon struct {
	argv         []string
	depositFlags []string
	logger       *slog.Logger
	run          func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// CommandOptions are extra flags passed to the deposit command only.
type CommandOptions struct {
	MaxFeeGwei  string
	MaxPrioGwei string
	ExtraArgs   string
}

// NewCommandDaemon creates a CommandDaemon for the given command line.
func NewCommandDaemon(command string, opts CommandOptions, logger *slog.Logger) (*CommandDaemon, error) {
	argv := strings.Fields(command)
	if len(argv) == 0 {
		return nil, fmt.Errorf("signer: %w: empty daemon command", domain.ErrInvalidOptions)
	}
	var flags []string
	if opts.MaxFeeGwei != "" {
		flags = append(flags, "--maxFee", opts.MaxFeeGwei)
	}
	if opts.MaxPrioGwei != "" {
		flags = append(flags, "--maxPrioFee", opts.MaxPrioGwei)
	}
	flags = append(flags, strings.Fields(opts.ExtraArgs)...)

	return &CommandDaemon{
		argv:         argv,
		depositFlags: flags,
		logger:       logger.With(slog.String("component", "smartnode")),
		run:          runCommand,
	}, nil
}

// Version returns the output of "--version".
func (d *CommandDaemon) Version(ctx context.Context) (string, error) {
	out, err := d.exec(ctx, "--version")
	if err != nil {
		return "", fmt.Errorf("signer: version: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Deposit implements Daemon.
func (d *CommandDaemon) Deposit(ctx context.Context, intent domain.DepositIntent) ([]byte, error) {
	args := append([]string{}, d.depositFlags...)
	args = append(args, "api", "node", "deposit",
		intent.Amount.String(),
		intent.MinimumNodeFee,
		intent.Salt.String(),
	)
	if intent.UseCredit {
		args = append(args, "true")
	}
	args = append(args, "false")

	d.logger.Info("creating deposit transaction",
		slog.String("command", strings.Join(append(append([]string{}, d.argv...), args...), " ")),
		slog.String("amount", units.FormatEther(intent.Amount)),
	)

	out, err := d.exec(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("signer: deposit: %w", err)
	}
	raw, err := decodeHex(string(out))
	if err != nil {
		return nil, fmt.Errorf("signer: deposit: %w: %v", domain.ErrDaemonRejected, err)
	}
	return raw, nil
}

// Sign implements Daemon.
func (d *CommandDaemon) Sign(ctx context.Context, placeholder []byte) (SignResponse, error) {
	out, err := d.exec(ctx, "api", "node", "sign", strings.TrimPrefix(hexutil.Encode(placeholder), "0x"))
	if err != nil {
		return SignResponse{}, fmt.Errorf("signer: sign: %w", err)
	}
	var resp SignResponse
	if err := json.Unmarshal(bytes.TrimSpace(out), &resp); err != nil {
		return SignResponse{}, fmt.Errorf("signer: sign: decode %q: %w", strings.TrimSpace(string(out)), err)
	}
	return resp, nil
}

func (d *CommandDaemon) exec(ctx context.Context, args ...string) ([]byte, error) {
	all := append(append([]string{}, d.argv[1:]...), args...)
	return d.run(ctx, d.argv[0], all...)
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(stderr.String()))
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

func decodeHex(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") {
		s = "0x" + s
	}
	return hexutil.Decode(s)
}
