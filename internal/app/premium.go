package app

import (
	"context"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/rocketarb/rocketarb/internal/arb"
	"github.com/rocketarb/rocketarb/internal/units"
)

// PremiumMode prints the protocol and market rates of rETH.
func (a *App) PremiumMode(ctx context.Context, deps *Dependencies) error {
	p, err := arb.MeasurePremium(ctx, deps.Reader, deps.OneInch,
		deps.Contracts.RETH, common.HexToAddress(a.cfg.Contracts.WETH), a.cfg.Gas.SwapLimit)
	if err != nil {
		return err
	}
	a.logger.InfoContext(ctx, "premium",
		slog.String("primary", p.Primary.String()),
		slog.String("secondary", p.Secondary.String()),
		slog.String("percentage", p.Percentage.StringFixed(3)),
		slog.String("direction", p.Direction),
	)
	a.say("rETH protocol rate: %s ETH", units.FormatEther(arb.RoundRate(p.Primary)))
	a.say("rETH   market rate: %s ETH", units.FormatEther(arb.RoundRate(p.Secondary)))
	a.say("%s", p)
	return nil
}
