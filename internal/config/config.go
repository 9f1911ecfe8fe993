// Package config defines the configuration for rocketarb and provides
// validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/rocketarb/rocketarb/internal/domain"
	"github.com/rocketarb/rocketarb/internal/units"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file, then ROCKETARB_* environment variables, then command-line flags.
type Config struct {
	RPCURL        string          `toml:"rpc_url"`
	LogLevel      string          `toml:"log_level"`
	AllowAnyChain bool            `toml:"allow_any_chain"`
	Deposit       DepositConfig   `toml:"deposit"`
	Arb           ArbConfig       `toml:"arb"`
	Gas           GasConfig       `toml:"gas"`
	Contracts     ContractsConfig `toml:"contracts"`
	Daemon        DaemonConfig    `toml:"daemon"`
	OneInch       OneInchConfig   `toml:"oneinch"`
	Relay         RelayConfig     `toml:"relay"`
	Wallet        WalletConfig    `toml:"wallet"`
	Bundle        BundleConfig    `toml:"bundle"`
	Redis         RedisConfig     `toml:"redis"`
	S3            S3Config        `toml:"s3"`
	Audit         AuditConfig     `toml:"audit"`
	Notify        NotifyConfig    `toml:"notify"`

	// Mode and Run are set by the command line only.
	Mode string     `toml:"-"`
	Run  RunOptions `toml:"-"`
}

// RunOptions are per-invocation toggles.
type RunOptions struct {
	DryRun bool
	Resume bool
	Yes    bool
	Limit  int // history rows
}

// DepositConfig describes the minipool deposit requested from the smartnode.
type DepositConfig struct {
	Amount    string `toml:"amount"`  // ETH
	MinFee    string `toml:"min_fee"` // commission fraction
	Salt      string `toml:"salt"`    // hex; random when empty
	UseCredit bool   `toml:"use_credit"`
}

// ArbConfig holds arbitrage sizing parameters.
type ArbConfig struct {
	FundingMethod  string `toml:"funding_method"`
	UseDepositPool bool   `toml:"use_deposit_pool"`
	MaxMint        string `toml:"max_mint"` // ETH
	Slippage       string `toml:"slippage"` // percent
	GasRefund      uint64 `toml:"gas_refund"`
	SwapReth       bool   `toml:"swap_reth"`
}

// GasConfig holds fee overrides (gwei) and per-step gas limits.
type GasConfig struct {
	MaxFee       string `toml:"max_fee"`
	MaxPrio      string `toml:"max_prio"`
	ArbLimit     uint64 `toml:"arb_limit"`
	MintLimit    uint64 `toml:"mint_limit"`
	ApproveLimit uint64 `toml:"approve_limit"`
	SwapLimit    uint64 `toml:"swap_limit"`
	DepositLimit uint64 `toml:"deposit_limit"`
}

// ContractsConfig holds the addresses that are not resolved through
// RocketStorage.
type ContractsConfig struct {
	RocketStorage   string `toml:"rocket_storage"`
	WETH            string `toml:"weth"`
	SwapRouter      string `toml:"swap_router"`
	ArbContract     string `toml:"arb_contract"`
	HuffArbContract string `toml:"huff_arb_contract"`
	UniArbContract  string `toml:"uni_arb_contract"`
	UniPool         string `toml:"uni_pool"`
}

// DaemonConfig describes how to reach the smartnode daemon.
type DaemonConfig struct {
	// Command is the command line to run the daemon, or "interactive".
	Command   string `toml:"command"`
	ExtraArgs string `toml:"extra_args"`
}

// OneInchConfig holds the swap aggregator endpoint.
type OneInchConfig struct {
	BaseURL string `toml:"base_url"`
	APIKey  string `toml:"api_key"`
}

// RelayConfig holds the bundle relay endpoint and submission window.
type RelayConfig struct {
	URL             string   `toml:"url"`
	AuthKey         string   `toml:"auth_key"`
	AuthKeyPath     string   `toml:"auth_key_path"`
	AuthKeyPassword string   `toml:"auth_key_password"`
	MaxTries        int      `toml:"max_tries"`
	PollInterval    duration `toml:"poll_interval"`
}

// WalletConfig holds the local key used for watch-mode arbitrage.
type WalletConfig struct {
	PrivateKey  string `toml:"private_key"`
	KeyPath     string `toml:"key_path"`
	KeyPassword string `toml:"key_password"`
}

// BundleConfig locates the durable bundle record.
type BundleConfig struct {
	File    string   `toml:"file"`
	LockTTL duration `toml:"lock_ttl"`
}

// RedisConfig holds Redis connection parameters for the bundle lock.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for archives.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	Prefix         string `toml:"prefix"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// AuditConfig holds PostgreSQL parameters for the audit log.
type AuditConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	MaxConns      int    `toml:"max_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with the values the tool has always
// shipped with on mainnet.
func Defaults() Config {
	return Config{
		RPCURL:   "http://localhost:8545",
		LogLevel: "info",
		Deposit: DepositConfig{
			Amount:    "8",
			MinFee:    "0.14",
			UseCredit: true,
		},
		Arb: ArbConfig{
			FundingMethod:  string(domain.FundingUniswap),
			UseDepositPool: true,
			MaxMint:        "100",
			Slippage:       "2",
			GasRefund:      2_800_000,
			SwapReth:       true,
		},
		Gas: GasConfig{
			ArbLimit:     990_000,
			MintLimit:    220_000,
			ApproveLimit: 80_000,
			SwapLimit:    400_000,
			DepositLimit: 2_500_000,
		},
		Contracts: ContractsConfig{
			RocketStorage:   "0x1d8f8f00cfa6758d7bE78336684788Fb0ee0Fa46",
			WETH:            "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2",
			SwapRouter:      "0x1111111254EEB25477B68fb85Ed929f73A960582",
			ArbContract:     "0xEADc96a160E3a51e7318c0954B28c4a367d5f909",
			HuffArbContract: "0x786d8351f419F2Cb076664abcB5F8Ca04e9F1D7D",
			UniArbContract:  "0x6fCfE8c6e35fab88e0BecB3427e54c8c9847cdc2",
			UniPool:         "0xa4e0faa58465a2d369aa21b3e42d43374c6f9613",
		},
		Daemon: DaemonConfig{
			Command: "docker exec rocketpool_node /go/bin/rocketpool",
		},
		OneInch: OneInchConfig{
			BaseURL: "https://api.1inch.dev/swap/v5.2/1",
		},
		Relay: RelayConfig{
			URL:          "https://relay.flashbots.net",
			MaxTries:     10,
			PollInterval: duration{2 * time.Second},
		},
		Bundle: BundleConfig{
			File:    "bundle.json",
			LockTTL: duration{30 * time.Minute},
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   4,
			MaxRetries: 3,
		},
		S3: S3Config{
			Region:         "us-east-1",
			Prefix:         "bundles/",
			UseSSL:         true,
			ForcePathStyle: true,
		},
		Audit: AuditConfig{
			MaxConns:      2,
			RunMigrations: true,
		},
		Notify: NotifyConfig{
			Events: []string{"bundle_included", "bundle_exhausted"},
		},
		Mode: "deposit",
	}
}

var validModes = map[string]bool{
	"deposit": true,
	"premium": true,
	"watch":   true,
	"history": true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for invalid or contradictory values and returns a
// combined error describing every problem found. The returned error wraps
// domain.ErrInvalidOptions.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[c.Mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: deposit, premium, watch, history)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}
	if c.RPCURL == "" {
		errs = append(errs, "rpc_url must not be empty")
	}

	method, err := domain.ParseFundingMethod(c.Arb.FundingMethod)
	if err != nil {
		errs = append(errs, "arb: "+strings.TrimPrefix(err.Error(), domain.ErrInvalidOptions.Error()+": "))
	}
	if !c.Arb.SwapReth && method != domain.FundingSelf {
		errs = append(errs, "arb: swap_reth may only be disabled with funding_method self")
	}
	if _, err := units.ParseEther(c.Arb.MaxMint); err != nil {
		errs = append(errs, fmt.Sprintf("arb: max_mint: %v", err))
	}
	if _, err := units.ParsePercent(c.Arb.Slippage); err != nil {
		errs = append(errs, fmt.Sprintf("arb: slippage: %v", err))
	}

	if c.Mode == "deposit" {
		if c.Run.Resume && (c.Gas.MaxFee != "" || c.Gas.MaxPrio != "" || c.Deposit.Salt != "") {
			errs = append(errs, "cannot specify gas fees or salt with resume")
		}
		if _, err := units.ParseEther(c.Deposit.Amount); err != nil {
			errs = append(errs, fmt.Sprintf("deposit: amount: %v", err))
		}
		if c.Deposit.Salt != "" {
			if _, err := units.ParseHexInt(c.Deposit.Salt); err != nil {
				errs = append(errs, fmt.Sprintf("deposit: salt: %v", err))
			}
		}
		if c.Daemon.Command == "" {
			errs = append(errs, "daemon: command must not be empty")
		}
	}
	if c.Gas.MaxFee != "" {
		if _, err := units.ParseGwei(c.Gas.MaxFee); err != nil {
			errs = append(errs, fmt.Sprintf("gas: max_fee: %v", err))
		}
	}
	if c.Gas.MaxPrio != "" {
		if _, err := units.ParseGwei(c.Gas.MaxPrio); err != nil {
			errs = append(errs, fmt.Sprintf("gas: max_prio: %v", err))
		}
	}

	if c.Mode == "watch" {
		if c.Wallet.PrivateKey == "" && c.Wallet.KeyPath == "" {
			errs = append(errs, "wallet: private_key or key_path is required for watch mode")
		}
		if c.Gas.MaxFee == "" || c.Gas.MaxPrio == "" {
			errs = append(errs, "gas: max_fee and max_prio are required for watch mode")
		}
		if method == domain.FundingSelf {
			errs = append(errs, "arb: watch mode needs a flash funding method")
		}
	}

	for name, addr := range map[string]string{
		"rocket_storage":    c.Contracts.RocketStorage,
		"weth":              c.Contracts.WETH,
		"swap_router":       c.Contracts.SwapRouter,
		"arb_contract":      c.Contracts.ArbContract,
		"huff_arb_contract": c.Contracts.HuffArbContract,
		"uni_arb_contract":  c.Contracts.UniArbContract,
		"uni_pool":          c.Contracts.UniPool,
	} {
		if !common.IsHexAddress(addr) {
			errs = append(errs, fmt.Sprintf("contracts: %s %q is not an address", name, addr))
		}
	}

	if c.Relay.MaxTries < 1 {
		errs = append(errs, "relay: max_tries must be >= 1")
	}
	if c.Relay.URL == "" {
		errs = append(errs, "relay: url must not be empty")
	}
	if c.Relay.AuthKeyPath != "" && c.Relay.AuthKeyPassword == "" {
		errs = append(errs, "relay: auth_key_password is required when auth_key_path is set")
	}
	if c.Wallet.KeyPath != "" && c.Wallet.KeyPassword == "" {
		errs = append(errs, "wallet: key_password is required when key_path is set")
	}
	if c.Bundle.File == "" {
		errs = append(errs, "bundle: file must not be empty")
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty when enabled")
	}
	if c.S3.Enabled && c.S3.Bucket == "" {
		errs = append(errs, "s3: bucket must not be empty when enabled")
	}
	if c.Mode == "history" && !c.Audit.Enabled {
		errs = append(errs, "audit: history mode needs audit.enabled")
	}
	if c.Audit.Enabled && strings.TrimSpace(c.Audit.DSN) == "" {
		errs = append(errs, "audit: dsn must not be empty when enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w:\n  - %s", domain.ErrInvalidOptions, strings.Join(errs, "\n  - "))
	}
	return nil
}
