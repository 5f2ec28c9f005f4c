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
// built-in defaults, applies STAKELEDGER_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
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

// applyEnvOverrides reads well-known STAKELEDGER_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Operator ──
	setStr(&cfg.Operator.Address, "STAKELEDGER_OPERATOR_ADDRESS")
	setStr(&cfg.Operator.PrivateKey, "STAKELEDGER_OPERATOR_PRIVATE_KEY")
	setStr(&cfg.Operator.EncryptedKeyPath, "STAKELEDGER_OPERATOR_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Operator.KeyPassword, "STAKELEDGER_OPERATOR_KEY_PASSWORD")

	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "STAKELEDGER_CHAIN_RPC_URL")
	setInt64(&cfg.Chain.ChainID, "STAKELEDGER_CHAIN_CHAIN_ID")

	// ── Database ──
	setStr(&cfg.Database.DSN, "STAKELEDGER_DATABASE_DSN")
	setStr(&cfg.Database.DSN, "STAKELEDGER_DATABASE_URL") // compatibility alias
	setStr(&cfg.Database.Host, "STAKELEDGER_DATABASE_HOST")
	setInt(&cfg.Database.Port, "STAKELEDGER_DATABASE_PORT")
	setStr(&cfg.Database.Database, "STAKELEDGER_DATABASE_NAME")
	setStr(&cfg.Database.User, "STAKELEDGER_DATABASE_USER")
	setStr(&cfg.Database.Password, "STAKELEDGER_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "STAKELEDGER_DATABASE_SSLMODE")
	setInt(&cfg.Database.PoolMaxConns, "STAKELEDGER_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "STAKELEDGER_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "STAKELEDGER_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "STAKELEDGER_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "STAKELEDGER_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "STAKELEDGER_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "STAKELEDGER_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "STAKELEDGER_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "STAKELEDGER_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "STAKELEDGER_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "STAKELEDGER_S3_REGION")
	setStr(&cfg.S3.Bucket, "STAKELEDGER_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "STAKELEDGER_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "STAKELEDGER_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "STAKELEDGER_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "STAKELEDGER_S3_FORCE_PATH_STYLE")

	// ── Staking ──
	setDuration(&cfg.Staking.TokenCacheTTL, "STAKELEDGER_STAKING_TOKEN_CACHE_TTL")
	setInt(&cfg.Staking.ArchiveRetentionDays, "STAKELEDGER_STAKING_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Staking.ArchiveInterval, "STAKELEDGER_STAKING_ARCHIVE_INTERVAL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "STAKELEDGER_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "STAKELEDGER_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "STAKELEDGER_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "STAKELEDGER_SERVER_CORS_ORIGINS")

	// ── Top-level ──
	setStr(&cfg.Mode, "STAKELEDGER_MODE")
	setStr(&cfg.LogLevel, "STAKELEDGER_LOG_LEVEL")
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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
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
