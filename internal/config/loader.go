package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads an optional TOML configuration file at path, merges it on top of
// the built-in defaults, applies ROCKETARB_* environment variable overrides,
// and returns the final Config. The file is skipped when path is empty. The returned Config has NOT been validated; the caller should invoke
// Config.Validate() after applying command-line flags.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known ROCKETARB_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). Secrets such as the relay auth key and the 1inch API key are usually
// supplied this way.
func applyEnvOverrides(cfg *Config) {
	// ── Top-level ──
	setStr(&cfg.RPCURL, "ROCKETARB_RPC_URL")
	setStr(&cfg.LogLevel, "ROCKETARB_LOG_LEVEL")
	setBool(&cfg.AllowAnyChain, "ROCKETARB_ALLOW_ANY_CHAIN")

	// ── Deposit ──
	setStr(&cfg.Deposit.Amount, "ROCKETARB_DEPOSIT_AMOUNT")
	setStr(&cfg.Deposit.MinFee, "ROCKETARB_DEPOSIT_MIN_FEE")
	setStr(&cfg.Deposit.Salt, "ROCKETARB_DEPOSIT_SALT")
	setBool(&cfg.Deposit.UseCredit, "ROCKETARB_DEPOSIT_USE_CREDIT")

	// ── Arb ──
	setStr(&cfg.Arb.FundingMethod, "ROCKETARB_ARB_FUNDING_METHOD")
	setBool(&cfg.Arb.UseDepositPool, "ROCKETARB_ARB_USE_DEPOSIT_POOL")
	setStr(&cfg.Arb.MaxMint, "ROCKETARB_ARB_MAX_MINT")
	setStr(&cfg.Arb.Slippage, "ROCKETARB_ARB_SLIPPAGE")
	setUint64(&cfg.Arb.GasRefund, "ROCKETARB_ARB_GAS_REFUND")
	setBool(&cfg.Arb.SwapReth, "ROCKETARB_ARB_SWAP_RETH")

	// ── Gas ──
	setStr(&cfg.Gas.MaxFee, "ROCKETARB_GAS_MAX_FEE")
	setStr(&cfg.Gas.MaxPrio, "ROCKETARB_GAS_MAX_PRIO")
	setUint64(&cfg.Gas.ArbLimit, "ROCKETARB_GAS_ARB_LIMIT")
	setUint64(&cfg.Gas.MintLimit, "ROCKETARB_GAS_MINT_LIMIT")
	setUint64(&cfg.Gas.ApproveLimit, "ROCKETARB_GAS_APPROVE_LIMIT")
	setUint64(&cfg.Gas.SwapLimit, "ROCKETARB_GAS_SWAP_LIMIT")
	setUint64(&cfg.Gas.DepositLimit, "ROCKETARB_GAS_DEPOSIT_LIMIT")

	// ── Daemon ──
	setStr(&cfg.Daemon.Command, "ROCKETARB_DAEMON_COMMAND")
	setStr(&cfg.Daemon.ExtraArgs, "ROCKETARB_DAEMON_EXTRA_ARGS")

	// ── 1inch ──
	setStr(&cfg.OneInch.BaseURL, "ROCKETARB_ONEINCH_BASE_URL")
	setStr(&cfg.OneInch.APIKey, "ROCKETARB_ONEINCH_API_KEY")
	setStr(&cfg.OneInch.APIKey, "API_KEY") // compatibility alias

	// ── Relay ──
	setStr(&cfg.Relay.URL, "ROCKETARB_RELAY_URL")
	setStr(&cfg.Relay.AuthKey, "ROCKETARB_RELAY_AUTH_KEY")
	setStr(&cfg.Relay.AuthKeyPath, "ROCKETARB_RELAY_AUTH_KEY_PATH")
	setStr(&cfg.Relay.AuthKeyPassword, "ROCKETARB_RELAY_AUTH_KEY_PASSWORD")
	setInt(&cfg.Relay.MaxTries, "ROCKETARB_RELAY_MAX_TRIES")
	setDuration(&cfg.Relay.PollInterval, "ROCKETARB_RELAY_POLL_INTERVAL")

	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "ROCKETARB_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.KeyPath, "ROCKETARB_WALLET_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "ROCKETARB_WALLET_KEY_PASSWORD")

	// ── Bundle ──
	setStr(&cfg.Bundle.File, "ROCKETARB_BUNDLE_FILE")
	setDuration(&cfg.Bundle.LockTTL, "ROCKETARB_BUNDLE_LOCK_TTL")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "ROCKETARB_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "ROCKETARB_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ROCKETARB_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ROCKETARB_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "ROCKETARB_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "ROCKETARB_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "ROCKETARB_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "ROCKETARB_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "ROCKETARB_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "ROCKETARB_S3_REGION")
	setStr(&cfg.S3.Bucket, "ROCKETARB_S3_BUCKET")
	setStr(&cfg.S3.Prefix, "ROCKETARB_S3_PREFIX")
	setStr(&cfg.S3.AccessKey, "ROCKETARB_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "ROCKETARB_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "ROCKETARB_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "ROCKETARB_S3_FORCE_PATH_STYLE")

	// ── Audit ──
	setBool(&cfg.Audit.Enabled, "ROCKETARB_AUDIT_ENABLED")
	setStr(&cfg.Audit.DSN, "ROCKETARB_AUDIT_DSN")
	setInt(&cfg.Audit.MaxConns, "ROCKETARB_AUDIT_MAX_CONNS")
	setBool(&cfg.Audit.RunMigrations, "ROCKETARB_AUDIT_RUN_MIGRATIONS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "ROCKETARB_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "ROCKETARB_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "ROCKETARB_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "ROCKETARB_NOTIFY_EVENTS")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
