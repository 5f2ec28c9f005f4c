package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/stakeledger/stakeledger/internal/asset"
	s3blob "github.com/stakeledger/stakeledger/internal/blob/s3"
	"github.com/stakeledger/stakeledger/internal/cache/redis"
	"github.com/stakeledger/stakeledger/internal/config"
	"github.com/stakeledger/stakeledger/internal/crypto"
	"github.com/stakeledger/stakeledger/internal/domain"
	"github.com/stakeledger/stakeledger/internal/ledger"
	"github.com/stakeledger/stakeledger/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Identity
	Operator common.Address

	// Stores
	TokenStore domain.TokenStore
	Ledger     domain.LedgerStore
	AuditStore domain.AuditStore

	// Caches & messaging
	TokenCache  domain.TokenCache
	RateLimiter domain.RateLimiter
	SignalBus   domain.SignalBus

	// Blob storage
	BlobWriter domain.BlobWriter
	Archiver   domain.Archiver

	// Asset movement
	Assets domain.AssetTransferor
	Payer  domain.NativePayer
}

// needsPostgres returns true for modes that require a database connection.
func needsPostgres(mode string) bool {
	return mode != "memory"
}

// needsRedis returns true for modes that require the cache and signal bus.
func needsRedis(mode string) bool {
	return mode != "memory"
}

// needsChain returns true for modes that move assets on-chain.
func needsChain(mode string) bool {
	switch mode {
	case "server", "full":
		return true
	default:
		return false
	}
}

// needsS3 returns true for modes that export to object storage.
func needsS3(mode string) bool {
	switch mode {
	case "archive", "full":
		return true
	default:
		return false
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	mode := strings.ToLower(cfg.Mode)

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		Operator: common.HexToAddress(cfg.Operator.Address),
	}

	// --- PostgreSQL (memory mode runs on the in-process ledger instead) ---
	if needsPostgres(mode) {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Database.DSN,
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			Database: cfg.Database.Database,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			SSLMode:  cfg.Database.SSLMode,
			MaxConns: cfg.Database.PoolMaxConns,
			MinConns: cfg.Database.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		// Run migrations if enabled.
		if cfg.Database.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.TokenStore = postgres.NewTokenStore(pool)
		deps.Ledger = postgres.NewLedgerStore(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)
	} else {
		deps.TokenStore = ledger.NewRegistry()
		deps.Ledger = ledger.New()
		deps.AuditStore = ledger.NewAuditLog()
	}

	// --- Redis ---
	if needsRedis(mode) {
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

		deps.TokenCache = redis.NewTokenCache(redisClient, cfg.Staking.TokenCacheTTL.Duration)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
	}

	// --- Asset transfer (on-chain for server/full, in-process otherwise) ---
	if needsChain(mode) {
		keyHex, err := crypto.LoadKey(crypto.KeyConfig{
			RawPrivateKey:    cfg.Operator.PrivateKey,
			EncryptedKeyPath: cfg.Operator.EncryptedKeyPath,
			KeyPassword:      cfg.Operator.KeyPassword,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: operator key: %w", err)
		}

		wallet, err := asset.NewWallet(ctx, cfg.Chain.RPCURL, keyHex, cfg.Chain.ChainID, logger)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: chain wallet: %w", err)
		}
		closers = append(closers, wallet.Close)

		custodian, err := asset.NewCustodian(wallet)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: custodian: %w", err)
		}
		deps.Assets = custodian
		deps.Payer = asset.NewPayer(wallet)
	} else {
		vault := asset.NewVault(deps.Operator)
		deps.Assets = vault
		deps.Payer = vault
	}

	// --- S3 blob storage (only for modes that export archives) ---
	if needsS3(mode) {
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
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.Archiver = s3blob.NewArchiver(deps.BlobWriter, deps.Ledger, deps.AuditStore)
	}

	return deps, cleanup, nil
}
