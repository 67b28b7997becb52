package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies MARKETMAKER_* environment variable overrides,
// and returns the final Config. The returned Config has NOT been validated;
// the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known MARKETMAKER_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Engine ──
	setFloat64(&cfg.Engine.ProfitThreshold, "MARKETMAKER_ENGINE_PROFIT_THRESHOLD")
	setFloat64(&cfg.Engine.MinTradeVolume, "MARKETMAKER_ENGINE_MIN_TRADE_VOLUME")
	setFloat64(&cfg.Engine.ListingBuffer, "MARKETMAKER_ENGINE_LISTING_BUFFER")
	setFloat64(&cfg.Engine.QuoteReserve, "MARKETMAKER_ENGINE_QUOTE_RESERVE")
	setFloat64(&cfg.Engine.BaseReserve, "MARKETMAKER_ENGINE_BASE_RESERVE")
	setDuration(&cfg.Engine.TickInterval, "MARKETMAKER_ENGINE_TICK_INTERVAL")
	setDuration(&cfg.Engine.BookValidWindow, "MARKETMAKER_ENGINE_BOOK_VALID_WINDOW")
	setDuration(&cfg.Engine.SyncTolerance, "MARKETMAKER_ENGINE_SYNC_TOLERANCE")
	setDuration(&cfg.Engine.RequestTimeout, "MARKETMAKER_ENGINE_REQUEST_TIMEOUT")
	setDuration(&cfg.Engine.BalanceRefreshInterval, "MARKETMAKER_ENGINE_BALANCE_REFRESH_INTERVAL")
	setDuration(&cfg.Engine.ExposureCheckInterval, "MARKETMAKER_ENGINE_EXPOSURE_CHECK_INTERVAL")

	// ── Fetcher ──
	setDuration(&cfg.Fetcher.PollInterval, "MARKETMAKER_FETCHER_POLL_INTERVAL")
	setDuration(&cfg.Fetcher.MinUpdateInterval, "MARKETMAKER_FETCHER_MIN_UPDATE_INTERVAL")
	setDuration(&cfg.Fetcher.LagTolerance, "MARKETMAKER_FETCHER_LAG_TOLERANCE")
	setDuration(&cfg.Fetcher.RequestTimeout, "MARKETMAKER_FETCHER_REQUEST_TIMEOUT")

	// ── BTC38 ──
	setBool(&cfg.Btc38.Enabled, "MARKETMAKER_BTC38_ENABLED")
	setStr(&cfg.Btc38.BaseURL, "MARKETMAKER_BTC38_BASE_URL")
	setStr(&cfg.Btc38.AccessKey, "MARKETMAKER_BTC38_ACCESS_KEY")
	setStr(&cfg.Btc38.SecretKey, "MARKETMAKER_BTC38_SECRET_KEY")
	setStr(&cfg.Btc38.AccountID, "MARKETMAKER_BTC38_ACCOUNT_ID")
	setStr(&cfg.Btc38.Coin, "MARKETMAKER_BTC38_COIN")
	setStr(&cfg.Btc38.Market, "MARKETMAKER_BTC38_MARKET")
	setFloat64(&cfg.Btc38.WallThreshold, "MARKETMAKER_BTC38_WALL_THRESHOLD")
	setFloat64(&cfg.Btc38.FeeDeduction, "MARKETMAKER_BTC38_FEE_DEDUCTION")
	setFloat64(&cfg.Btc38.WithdrawalFee, "MARKETMAKER_BTC38_WITHDRAWAL_FEE")
	setInt(&cfg.Btc38.VolumePrecision, "MARKETMAKER_BTC38_VOLUME_PRECISION")

	// ── DEX ──
	setBool(&cfg.Dex.Enabled, "MARKETMAKER_DEX_ENABLED")
	setStr(&cfg.Dex.WalletURL, "MARKETMAKER_DEX_WALLET_URL")
	setStr(&cfg.Dex.WalletPassword, "MARKETMAKER_DEX_WALLET_PASSWORD")
	setStr(&cfg.Dex.Account, "MARKETMAKER_DEX_ACCOUNT")
	setStr(&cfg.Dex.BaseSymbol, "MARKETMAKER_DEX_BASE_SYMBOL")
	setStr(&cfg.Dex.BaseAssetID, "MARKETMAKER_DEX_BASE_ASSET_ID")
	setInt(&cfg.Dex.BasePrecision, "MARKETMAKER_DEX_BASE_PRECISION")
	setStr(&cfg.Dex.QuoteSymbol, "MARKETMAKER_DEX_QUOTE_SYMBOL")
	setStr(&cfg.Dex.QuoteAssetID, "MARKETMAKER_DEX_QUOTE_ASSET_ID")
	setInt(&cfg.Dex.QuotePrecision, "MARKETMAKER_DEX_QUOTE_PRECISION")
	setInt(&cfg.Dex.BookDepth, "MARKETMAKER_DEX_BOOK_DEPTH")
	setDuration(&cfg.Dex.OrderExpiry, "MARKETMAKER_DEX_ORDER_EXPIRY")
	setFloat64(&cfg.Dex.WallThreshold, "MARKETMAKER_DEX_WALL_THRESHOLD")
	setFloat64(&cfg.Dex.FeeDeduction, "MARKETMAKER_DEX_FEE_DEDUCTION")
	setFloat64(&cfg.Dex.WithdrawalFee, "MARKETMAKER_DEX_WITHDRAWAL_FEE")
	setInt(&cfg.Dex.VolumePrecision, "MARKETMAKER_DEX_VOLUME_PRECISION")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "MARKETMAKER_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "MARKETMAKER_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "MARKETMAKER_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "MARKETMAKER_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "MARKETMAKER_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "MARKETMAKER_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "MARKETMAKER_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.SnapshotTTL, "MARKETMAKER_REDIS_SNAPSHOT_TTL")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "MARKETMAKER_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "MARKETMAKER_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "MARKETMAKER_S3_REGION")
	setStr(&cfg.S3.Bucket, "MARKETMAKER_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "MARKETMAKER_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "MARKETMAKER_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "MARKETMAKER_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "MARKETMAKER_S3_FORCE_PATH_STYLE")
	setDuration(&cfg.S3.SampleInterval, "MARKETMAKER_S3_SAMPLE_INTERVAL")

	// ── Notify ──
	setStr(&cfg.Notify.EmailAddr, "MARKETMAKER_NOTIFY_EMAIL_ADDR")
	setStr(&cfg.Notify.EmailUsername, "MARKETMAKER_NOTIFY_EMAIL_USERNAME")
	setStr(&cfg.Notify.EmailPassword, "MARKETMAKER_NOTIFY_EMAIL_PASSWORD")
	setStr(&cfg.Notify.EmailFrom, "MARKETMAKER_NOTIFY_EMAIL_FROM")
	setStringSlice(&cfg.Notify.EmailTo, "MARKETMAKER_NOTIFY_EMAIL_TO")
	setStr(&cfg.Notify.TelegramToken, "MARKETMAKER_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "MARKETMAKER_NOTIFY_TELEGRAM_CHAT_ID")
	setStringSlice(&cfg.Notify.Events, "MARKETMAKER_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "MARKETMAKER_MODE")
	setStr(&cfg.LogLevel, "MARKETMAKER_LOG_LEVEL")
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

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
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
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			*dst = out
		}
	}
}
