package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/rocketarb/rocketarb/internal/config"
	"github.com/rocketarb/rocketarb/internal/domain"
)

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "config", Usage: "path to a TOML configuration file", EnvVars: []string{"ROCKETARB_CONFIG"}},
		&cli.StringFlag{Name: "rpc", Usage: "eth1 node RPC URL"},
		&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error"},
		&cli.BoolFlag{Name: "allow-any-chain", Usage: "do not refuse chains other than mainnet"},

		&cli.BoolFlag{Name: "dry-run", Aliases: []string{"n"}, Usage: "simulate the bundle instead of submitting it"},
		&cli.BoolFlag{Name: "resume", Usage: "resubmit the bundle saved in the bundle file"},
		&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "skip confirmation prompts"},
		&cli.StringFlag{Name: "bundle-file", Usage: "where the bundle is saved between runs"},

		&cli.StringFlag{Name: "amount", Usage: "node bond in ETH"},
		&cli.StringFlag{Name: "min-fee", Usage: "minimum minipool commission as a fraction"},
		&cli.StringFlag{Name: "salt", Usage: "minipool address salt in hex (random by default)"},
		&cli.BoolFlag{Name: "use-credit", Usage: "deposit with the node's credit balance"},
		&cli.StringFlag{Name: "daemon", Usage: "smartnode daemon command line, or \"interactive\""},
		&cli.StringFlag{Name: "extra-args", Usage: "extra arguments passed to the daemon"},

		&cli.StringFlag{Name: "max-fee", Usage: "max fee per gas in gwei"},
		&cli.StringFlag{Name: "max-prio", Usage: "max priority fee per gas in gwei"},
		&cli.Uint64Flag{Name: "gas-limit", Usage: "gas limit of the arbitrage transaction"},
		&cli.Uint64Flag{Name: "mint-gas-limit", Usage: "gas limit of the self-funded rETH mint"},
		&cli.Uint64Flag{Name: "approve-gas-limit", Usage: "gas limit of the self-funded approval"},
		&cli.Uint64Flag{Name: "swap-gas-limit", Usage: "gas limit of the self-funded swap"},
		&cli.Uint64Flag{Name: "deposit-gas-limit", Usage: "gas limit of an interactively signed deposit"},

		&cli.StringFlag{Name: "funding-method", Usage: "flashLoan, huffLoan, uniswap or self"},
		&cli.BoolFlag{Name: "no-use-dp", Usage: "do not use the deposit pool headroom"},
		&cli.StringFlag{Name: "max-mint", Usage: "cap on the rETH minted, in ETH"},
		&cli.StringFlag{Name: "slippage", Usage: "swap slippage tolerance in percent"},
		&cli.Uint64Flag{Name: "gas-refund", Usage: "gas the arbitrage must pay for out of its profit"},
		&cli.BoolFlag{Name: "no-swap-reth", Usage: "keep the minted rETH (self funding only)"},
		&cli.IntFlag{Name: "max-tries", Usage: "number of consecutive blocks to target"},

		&cli.StringFlag{Name: "rocket-storage", Usage: "RocketStorage address"},
		&cli.StringFlag{Name: "weth", Usage: "WETH address"},
		&cli.StringFlag{Name: "swap-router", Usage: "1inch router address"},
		&cli.StringFlag{Name: "arb-contract", Usage: "flash-loan arbitrage contract address"},
		&cli.StringFlag{Name: "huff-arb-contract", Usage: "huff arbitrage contract address"},
		&cli.StringFlag{Name: "uni-arb-contract", Usage: "uniswap arbitrage contract address"},
		&cli.StringFlag{Name: "uni-pool", Usage: "rETH/WETH uniswap pool address"},
	}
}

// applyFlags copies every flag set on the command line onto cfg.
func applyFlags(c *cli.Context, cfg *config.Config) error {
	str := func(name string, dst *string) {
		if c.IsSet(name) {
			*dst = c.String(name)
		}
	}
	u64 := func(name string, dst *uint64) {
		if c.IsSet(name) {
			*dst = c.Uint64(name)
		}
	}
	on := func(name string, dst *bool) {
		if c.IsSet(name) {
			*dst = c.Bool(name)
		}
	}
	off := func(name string, dst *bool) {
		if c.IsSet(name) {
			*dst = !c.Bool(name)
		}
	}

	str("rpc", &cfg.RPCURL)
	str("log-level", &cfg.LogLevel)
	on("allow-any-chain", &cfg.AllowAnyChain)

	on("dry-run", &cfg.Run.DryRun)
	on("resume", &cfg.Run.Resume)
	on("yes", &cfg.Run.Yes)
	str("bundle-file", &cfg.Bundle.File)
	if c.IsSet("limit") {
		cfg.Run.Limit = c.Int("limit")
	}

	str("amount", &cfg.Deposit.Amount)
	str("min-fee", &cfg.Deposit.MinFee)
	str("salt", &cfg.Deposit.Salt)
	on("use-credit", &cfg.Deposit.UseCredit)
	str("daemon", &cfg.Daemon.Command)
	str("extra-args", &cfg.Daemon.ExtraArgs)

	str("max-fee", &cfg.Gas.MaxFee)
	str("max-prio", &cfg.Gas.MaxPrio)
	u64("gas-limit", &cfg.Gas.ArbLimit)
	u64("mint-gas-limit", &cfg.Gas.MintLimit)
	u64("approve-gas-limit", &cfg.Gas.ApproveLimit)
	u64("swap-gas-limit", &cfg.Gas.SwapLimit)
	u64("deposit-gas-limit", &cfg.Gas.DepositLimit)

	if c.IsSet("funding-method") {
		method, err := domain.ParseFundingMethod(c.String("funding-method"))
		if err != nil {
			return err
		}
		cfg.Arb.FundingMethod = string(method)
	}
	off("no-use-dp", &cfg.Arb.UseDepositPool)
	str("max-mint", &cfg.Arb.MaxMint)
	str("slippage", &cfg.Arb.Slippage)
	u64("gas-refund", &cfg.Arb.GasRefund)
	off("no-swap-reth", &cfg.Arb.SwapReth)
	if c.IsSet("max-tries") {
		n := c.Int("max-tries")
		if n < 1 {
			return fmt.Errorf("%w: max-tries %d must be >= 1", domain.ErrInvalidOptions, n)
		}
		cfg.Relay.MaxTries = n
	}

	str("rocket-storage", &cfg.Contracts.RocketStorage)
	str("weth", &cfg.Contracts.WETH)
	str("swap-router", &cfg.Contracts.SwapRouter)
	str("arb-contract", &cfg.Contracts.ArbContract)
	str("huff-arb-contract", &cfg.Contracts.HuffArbContract)
	str("uni-arb-contract", &cfg.Contracts.UniArbContract)
	str("uni-pool", &cfg.Contracts.UniPool)
	return nil
}
