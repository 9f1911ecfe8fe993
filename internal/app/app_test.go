package app

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rocketarb/rocketarb/internal/config"
	"github.com/rocketarb/rocketarb/internal/domain"
	"github.com/rocketarb/rocketarb/internal/platform/flashbots"
)

func newTestApp(t *testing.T, input string) (*App, *bytes.Buffer) {
	t.Helper()
	cfg := config.Defaults()
	out := &bytes.Buffer{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(&cfg, logger, strings.NewReader(input), out), out
}

func TestConfirm(t *testing.T) {
	for input, want := range map[string]bool{
		"y\n":   true,
		"YES\n": true,
		"n\n":   false,
		"maybe": false,
		"":      false,
		" yes ": true,
	} {
		a, out := newTestApp(t, input)
		ok, err := a.confirm(context.Background(), "Continue?")
		require.NoError(t, err, "input %q", input)
		require.Equal(t, want, ok, "input %q", input)
		require.Equal(t, "Continue? ", out.String())
	}
}

func TestCheckDepositOptionsRefusal(t *testing.T) {
	a, _ := newTestApp(t, "no\n")
	err := a.checkDepositOptions(context.Background(), false)
	require.ErrorIs(t, err, domain.ErrInvalidOptions)

	a, _ = newTestApp(t, "yes\n")
	require.NoError(t, a.checkDepositOptions(context.Background(), false))
}

func TestCheckDepositOptionsResumeWarnings(t *testing.T) {
	a, out := newTestApp(t, "")
	a.cfg.Deposit.Salt = "0x1"
	a.cfg.Gas.MaxFee = "20"
	require.NoError(t, a.checkDepositOptions(context.Background(), true))
	require.Contains(t, out.String(), "salt is ignored")
	require.Contains(t, out.String(), "not the deposit resumed from bundle.json")
}

func TestDepositIntent(t *testing.T) {
	cfg := config.Defaults()
	cfg.Deposit.Salt = "0x2a"
	intent, err := depositIntent(&cfg)
	require.NoError(t, err)
	require.Equal(t, int64(42), intent.Salt.Int64())
	require.Equal(t, "8000000000000000000", intent.Amount.String())
	require.Equal(t, "0.14", intent.MinimumNodeFee)

	cfg.Deposit.Salt = ""
	intent, err = depositIntent(&cfg)
	require.NoError(t, err)
	require.True(t, intent.Salt.Cmp(maxSafeSalt) < 0)
	require.True(t, intent.Salt.Sign() >= 0)
}

func TestFeeOverrides(t *testing.T) {
	cfg := config.Defaults()
	fees, err := feeOverrides(&cfg)
	require.NoError(t, err)
	require.Nil(t, fees.MaxFeePerGas)
	require.Nil(t, fees.MaxPriorityFeePerGas)

	cfg.Gas.MaxFee = "24"
	cfg.Gas.MaxPrio = "1.5"
	fees, err = feeOverrides(&cfg)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(24_000_000_000), fees.MaxFeePerGas)
	require.Equal(t, big.NewInt(1_500_000_000), fees.MaxPriorityFeePerGas)
}

type fakeAudit struct {
	entries []domain.AuditEntry
	limit   int
}

func (f *fakeAudit) Log(context.Context, string, map[string]any) error { return nil }

func (f *fakeAudit) Recent(_ context.Context, limit int) ([]domain.AuditEntry, error) {
	f.limit = limit
	return f.entries, nil
}

func TestPrintHistory(t *testing.T) {
	a, out := newTestApp(t, "")
	audit := &fakeAudit{entries: []domain.AuditEntry{{
		ID:        7,
		Event:     "bundle_included",
		Detail:    map[string]any{"block": 101},
		CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}}}
	require.NoError(t, a.printHistory(context.Background(), audit))
	require.Equal(t, defaultHistoryLimit, audit.limit)
	require.Contains(t, out.String(), "2026-03-01 12:00:00  bundle_included")
	require.Contains(t, out.String(), `{"block":101}`)

	a, out = newTestApp(t, "")
	a.cfg.Run.Limit = 3
	audit = &fakeAudit{}
	require.NoError(t, a.printHistory(context.Background(), audit))
	require.Equal(t, 3, audit.limit)
	require.Equal(t, "no audit entries\n", out.String())
}

func TestRunUnsupportedMode(t *testing.T) {
	a, _ := newTestApp(t, "")
	a.cfg.Mode = "bogus"
	require.Error(t, a.Run(context.Background()))
}

type fakeSimulator struct {
	sim flashbots.Simulation
	err error
}

func (f fakeSimulator) Simulate(context.Context, domain.Bundle) (flashbots.Simulation, error) {
	return f.sim, f.err
}

func TestSimulateReportsRelayErrors(t *testing.T) {
	a, out := newTestApp(t, "")
	a.simulate(context.Background(), fakeSimulator{
		err: &flashbots.RelayError{Code: -32000, Message: "bundle rejected"},
	}, nil)
	require.Equal(t, "Simulation failed: relay error -32000: bundle rejected\n", out.String())
}

func TestSimulateReportsOutcome(t *testing.T) {
	a, out := newTestApp(t, "")
	a.simulate(context.Background(), fakeSimulator{sim: flashbots.Simulation{
		TotalGasUsed: 1_200_000,
		CoinbaseDiff: "42",
	}}, nil)
	require.Equal(t, "Simulation succeeded: 1200000 gas, coinbase diff 42 wei\n", out.String())

	a, out = newTestApp(t, "")
	a.simulate(context.Background(), fakeSimulator{sim: flashbots.Simulation{
		Results: []flashbots.TxResult{{Revert: "not profitable"}},
	}}, nil)
	require.Contains(t, out.String(), "Simulation reverted")
	require.Contains(t, out.String(), "not profitable")
}
