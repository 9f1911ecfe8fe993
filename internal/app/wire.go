package app

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/google/uuid"

	s3blob "github.com/rocketarb/rocketarb/internal/blob/s3"
	"github.com/rocketarb/rocketarb/internal/arb"
	"github.com/rocketarb/rocketarb/internal/bundle"
	"github.com/rocketarb/rocketarb/internal/cache/redis"
	"github.com/rocketarb/rocketarb/internal/chain"
	"github.com/rocketarb/rocketarb/internal/config"
	"github.com/rocketarb/rocketarb/internal/crypto"
	"github.com/rocketarb/rocketarb/internal/domain"
	"github.com/rocketarb/rocketarb/internal/notify"
	"github.com/rocketarb/rocketarb/internal/platform/flashbots"
	"github.com/rocketarb/rocketarb/internal/platform/oneinch"
	"github.com/rocketarb/rocketarb/internal/store/postgres"
	"github.com/rocketarb/rocketarb/internal/submit"
	"github.com/rocketarb/rocketarb/internal/units"
)

// Dependencies holds everything the modes need. Locks, Blob and Audit are
// nil unless enabled in the configuration.
type Dependencies struct {
	Eth       *ethclient.Client
	ChainID   *big.Int
	Reader    *chain.Reader
	Contracts chain.Contracts
	OneInch   *oneinch.Client
	Relay     *flashbots.Client
	Builder   *arb.Builder
	Settings  arb.Settings
	Overrides arb.Fees
	Store     *bundle.FileStore

	Locks    domain.LockManager
	Blob     domain.BlobWriter
	Audit    domain.AuditStore
	Notifier *notify.Notifier
}

// Wire dials the node, resolves the protocol contracts and builds the
// collaborators. The returned cleanup releases every connection opened.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, func() {}, err
	}

	eth, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return fail(fmt.Errorf("dial %s: %w", cfg.RPCURL, err))
	}
	closers = append(closers, eth.Close)

	chainID, err := eth.ChainID(ctx)
	if err != nil {
		return fail(fmt.Errorf("chain id: %w", err))
	}
	if chainID.Cmp(big.NewInt(1)) != 0 && !cfg.AllowAnyChain {
		return fail(fmt.Errorf("%w: only works on Ethereum mainnet (got chain id %s)", domain.ErrInvalidOptions, chainID))
	}

	reader := chain.NewReader(eth, common.HexToAddress(cfg.Contracts.RocketStorage), logger)
	contracts, err := reader.Init(ctx)
	if err != nil {
		return fail(err)
	}
	logger.InfoContext(ctx, "protocol contracts resolved",
		slog.String("reth", contracts.RETH.Hex()),
		slog.String("deposit_pool", contracts.DepositPool.Hex()),
		slog.String("node_deposit", contracts.NodeDeposit.Hex()),
		slog.String("deposit_settings", contracts.DepositSettings.Hex()),
	)

	settings, err := builderSettings(cfg, contracts)
	if err != nil {
		return fail(err)
	}
	overrides, err := feeOverrides(cfg)
	if err != nil {
		return fail(err)
	}

	quotes := oneinch.NewClient(cfg.OneInch.BaseURL, cfg.OneInch.APIKey)

	var authKey *ecdsa.PrivateKey
	if src := (crypto.Source{Hex: cfg.Relay.AuthKey, Path: cfg.Relay.AuthKeyPath, Password: cfg.Relay.AuthKeyPassword}); src.Configured() {
		if authKey, err = crypto.Load(src); err != nil {
			return fail(fmt.Errorf("relay auth key: %w", err))
		}
	}
	relay, err := flashbots.NewClient(cfg.Relay.URL, authKey)
	if err != nil {
		return fail(err)
	}

	deps := &Dependencies{
		Eth:       eth,
		ChainID:   chainID,
		Reader:    reader,
		Contracts: contracts,
		OneInch:   quotes,
		Relay:     relay,
		Builder:   arb.NewBuilder(reader, quotes, settings, logger),
		Settings:  settings,
		Overrides: overrides,
		Store:     bundle.NewFileStore(cfg.Bundle.File),
	}

	if cfg.Redis.Enabled {
		rc, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			return fail(err)
		}
		closers = append(closers, func() { _ = rc.Close() })
		deps.Locks = redis.NewLockManager(rc)
	}

	if cfg.S3.Enabled {
		sc, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail(err)
		}
		if err := sc.Health(ctx); err != nil {
			logger.WarnContext(ctx, "archive bucket not reachable", slog.String("error", err.Error()))
		}
		deps.Blob = s3blob.NewWriter(sc)
	}

	if cfg.Audit.Enabled {
		audit, closeAudit, err := openAudit(ctx, cfg)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, closeAudit)
		deps.Audit = audit
	}

	deps.Notifier = newNotifier(cfg, logger)
	return deps, cleanup, nil
}

func openAudit(ctx context.Context, cfg *config.Config) (*postgres.AuditStore, func(), error) {
	pg, err := postgres.New(ctx, postgres.ClientConfig{DSN: cfg.Audit.DSN, MaxConns: cfg.Audit.MaxConns})
	if err != nil {
		return nil, nil, err
	}
	if cfg.Audit.RunMigrations {
		if err := pg.RunMigrations(ctx); err != nil {
			pg.Close()
			return nil, nil, err
		}
	}
	return postgres.NewAuditStore(pg, uuid.NewString()), pg.Close, nil
}

func newNotifier(cfg *config.Config, logger *slog.Logger) *notify.Notifier {
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	return notify.NewNotifier(senders, cfg.Notify.Events, logger)
}

// builderSettings converts the arb and gas sections for arb.NewBuilder.
func builderSettings(cfg *config.Config, contracts chain.Contracts) (arb.Settings, error) {
	method, err := domain.ParseFundingMethod(cfg.Arb.FundingMethod)
	if err != nil {
		return arb.Settings{}, err
	}
	ceiling, err := units.ParseEther(cfg.Arb.MaxMint)
	if err != nil {
		return arb.Settings{}, fmt.Errorf("%w: max_mint: %v", domain.ErrInvalidOptions, err)
	}
	slippage, err := units.ParsePercent(cfg.Arb.Slippage)
	if err != nil {
		return arb.Settings{}, fmt.Errorf("%w: slippage: %v", domain.ErrInvalidOptions, err)
	}
	return arb.Settings{
		Method:      method,
		UseHeadroom: cfg.Arb.UseDepositPool,
		Ceiling:     ceiling,
		Slippage:    slippage,
		GasRefund:   cfg.Arb.GasRefund,
		SwapReth:    cfg.Arb.SwapReth,
		Gas: arb.GasLimits{
			Arb:     cfg.Gas.ArbLimit,
			Mint:    cfg.Gas.MintLimit,
			Approve: cfg.Gas.ApproveLimit,
			Swap:    cfg.Gas.SwapLimit,
		},
		Addresses: arb.Addresses{
			RETH:            contracts.RETH,
			DepositPool:     contracts.DepositPool,
			WETH:            common.HexToAddress(cfg.Contracts.WETH),
			Router:          common.HexToAddress(cfg.Contracts.SwapRouter),
			ArbContract:     common.HexToAddress(cfg.Contracts.ArbContract),
			HuffArbContract: common.HexToAddress(cfg.Contracts.HuffArbContract),
			UniArbContract:  common.HexToAddress(cfg.Contracts.UniArbContract),
			UniPool:         common.HexToAddress(cfg.Contracts.UniPool),
		},
	}, nil
}

// feeOverrides parses the optional gas.max_fee and gas.max_prio.
func feeOverrides(cfg *config.Config) (arb.Fees, error) {
	var fees arb.Fees
	if cfg.Gas.MaxFee != "" {
		v, err := units.ParseGwei(cfg.Gas.MaxFee)
		if err != nil {
			return arb.Fees{}, fmt.Errorf("%w: max_fee: %v", domain.ErrInvalidOptions, err)
		}
		fees.MaxFeePerGas = v
	}
	if cfg.Gas.MaxPrio != "" {
		v, err := units.ParseGwei(cfg.Gas.MaxPrio)
		if err != nil {
			return arb.Fees{}, fmt.Errorf("%w: max_prio: %v", domain.ErrInvalidOptions, err)
		}
		fees.MaxPriorityFeePerGas = v
	}
	return fees, nil
}

// newEngine builds the submission engine with the optional sinks attached.
func newEngine(cfg *config.Config, deps *Dependencies, locals []submit.LocalSigner, archive submit.Archiver, logger *slog.Logger) (*submit.Engine, error) {
	opts := submit.Options{
		MaxTries:     cfg.Relay.MaxTries,
		PollInterval: cfg.Relay.PollInterval.Duration,
		LocalSigners: locals,
		Archive:      archive,
		Blob:         deps.Blob,
		BlobPrefix:   cfg.S3.Prefix,
		Audit:        deps.Audit,
	}
	if deps.Notifier.Enabled() {
		opts.Notifier = deps.Notifier
	}
	return submit.NewEngine(deps.Relay, deps.Eth, opts, logger)
}
