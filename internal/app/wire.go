package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/ranc1/marketmaker/internal/blob/s3"
	"github.com/ranc1/marketmaker/internal/book"
	"github.com/ranc1/marketmaker/internal/cache/redis"
	"github.com/ranc1/marketmaker/internal/config"
	"github.com/ranc1/marketmaker/internal/notify"
	"github.com/ranc1/marketmaker/internal/venue"
	"github.com/ranc1/marketmaker/internal/venue/btc38"
	"github.com/ranc1/marketmaker/internal/venue/dex"
)

// Dependencies bundles everything the application modes need to operate. It
// is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Exchanges in fixed order; this order also fixes counter-venue
	// tie-breaking in the engine.
	Exchanges []venue.Exchange

	// Optional infrastructure, nil when disabled in config.
	BookMirror *redis.BookMirror
	BlobWriter *s3blob.Writer

	Notifier *notify.Notifier
}

// BookPublisher returns the mirror as a book.Publisher, or nil when Redis is
// disabled. Returning the interface directly would make a nil *BookMirror
// non-nil inside it.
func (d *Dependencies) BookPublisher() book.Publisher {
	if d.BookMirror == nil {
		return nil
	}
	return d.BookMirror
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Venues ---
	if cfg.Btc38.Enabled {
		deps.Exchanges = append(deps.Exchanges, btc38.NewExchange(btc38.Config{
			BaseURL:         cfg.Btc38.BaseURL,
			AccessKey:       cfg.Btc38.AccessKey,
			SecretKey:       cfg.Btc38.SecretKey,
			AccountID:       cfg.Btc38.AccountID,
			Coin:            cfg.Btc38.Coin,
			Market:          cfg.Btc38.Market,
			WallThreshold:   cfg.Btc38.WallThreshold,
			FeeDeduction:    cfg.Btc38.FeeDeduction,
			WithdrawalFee:   cfg.Btc38.WithdrawalFee,
			VolumePrecision: cfg.Btc38.VolumePrecision,
		}))
	}
	if cfg.Dex.Enabled {
		dexExchange, err := dex.NewExchange(ctx, dex.Config{
			WalletURL:       cfg.Dex.WalletURL,
			WalletPassword:  cfg.Dex.WalletPassword,
			Account:         cfg.Dex.Account,
			BaseSymbol:      cfg.Dex.BaseSymbol,
			BaseAssetID:     cfg.Dex.BaseAssetID,
			BasePrecision:   cfg.Dex.BasePrecision,
			QuoteSymbol:     cfg.Dex.QuoteSymbol,
			QuoteAssetID:    cfg.Dex.QuoteAssetID,
			QuotePrecision:  cfg.Dex.QuotePrecision,
			BookDepth:       cfg.Dex.BookDepth,
			OrderExpiry:     cfg.Dex.OrderExpiry.Duration,
			WallThreshold:   cfg.Dex.WallThreshold,
			FeeDeduction:    cfg.Dex.FeeDeduction,
			WithdrawalFee:   cfg.Dex.WithdrawalFee,
			VolumePrecision: cfg.Dex.VolumePrecision,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: dex: %w", err)
		}
		closers = append(closers, func() { _ = dexExchange.Close() })
		deps.Exchanges = append(deps.Exchanges, dexExchange)
	}

	// --- Redis book mirror ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })
		deps.BookMirror = redis.NewBookMirror(redisClient, cfg.Redis.SnapshotTTL.Duration)
	}

	// --- S3 book archive ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.BlobWriter = s3blob.NewWriter(s3Client)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.EmailUsername != "" {
		from := cfg.Notify.EmailFrom
		if from == "" {
			from = cfg.Notify.EmailUsername
		}
		emailSender, err := notify.NewEmailSender(
			cfg.Notify.EmailAddr,
			cfg.Notify.EmailUsername,
			cfg.Notify.EmailPassword,
			from,
			cfg.Notify.EmailTo,
		)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: email: %w", err)
		}
		senders = append(senders, emailSender)
	}
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
