package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// validBase returns a config that passes Validate for the given mode.
func validBase(mode string) Config {
	cfg := Defaults()
	cfg.Mode = mode
	cfg.Operator.Address = "0x00000000000000000000000000000000000000a1"
	cfg.Operator.PrivateKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string // substring of the validation error, "" means valid
	}{
		{
			name:   "defaults with operator are valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "unknown mode",
			mutate:  func(c *Config) { c.Mode = "hybrid" },
			wantErr: "unknown mode",
		},
		{
			name:    "unknown log level",
			mutate:  func(c *Config) { c.LogLevel = "trace" },
			wantErr: "unknown log_level",
		},
		{
			name:    "missing operator address",
			mutate:  func(c *Config) { c.Operator.Address = "" },
			wantErr: "operator: address must not be empty",
		},
		{
			name:    "malformed operator address",
			mutate:  func(c *Config) { c.Operator.Address = "not-an-address" },
			wantErr: "not a valid hex address",
		},
		{
			name: "server mode requires a key",
			mutate: func(c *Config) {
				c.Mode = "server"
				c.Operator.PrivateKey = ""
				c.Operator.EncryptedKeyPath = ""
			},
			wantErr: "private_key or encrypted_key_path",
		},
		{
			name: "encrypted key requires a password",
			mutate: func(c *Config) {
				c.Operator.PrivateKey = ""
				c.Operator.EncryptedKeyPath = "/etc/stakeledger/key.enc"
				c.Operator.KeyPassword = ""
			},
			wantErr: "key_password is required",
		},
		{
			name: "chain rpc required for full mode",
			mutate: func(c *Config) {
				c.Chain.RPCURL = ""
			},
			wantErr: "chain: rpc_url",
		},
		{
			name: "memory mode skips database and redis checks",
			mutate: func(c *Config) {
				c.Mode = "memory"
				c.Database = DatabaseConfig{}
				c.Redis = RedisConfig{}
			},
		},
		{
			name: "missing database host",
			mutate: func(c *Config) {
				c.Database.Host = ""
			},
			wantErr: "database: host",
		},
		{
			name: "dsn substitutes for discrete database params",
			mutate: func(c *Config) {
				c.Database.Host = ""
				c.Database.Port = 0
				c.Database.Database = ""
				c.Database.DSN = "postgres://u:p@db:5432/stakeledger"
			},
		},
		{
			name: "pool min above max",
			mutate: func(c *Config) {
				c.Database.PoolMinConns = 20
				c.Database.PoolMaxConns = 5
			},
			wantErr: "pool_min_conns must not exceed",
		},
		{
			name: "archive mode requires bucket",
			mutate: func(c *Config) {
				c.Mode = "archive"
				c.S3.Bucket = ""
			},
			wantErr: "s3: bucket",
		},
		{
			name: "archive mode skips chain checks",
			mutate: func(c *Config) {
				c.Mode = "archive"
				c.Operator.PrivateKey = ""
				c.Chain = ChainConfig{}
			},
		},
		{
			name: "retention must be at least one day",
			mutate: func(c *Config) {
				c.Staking.ArchiveRetentionDays = 0
			},
			wantErr: "archive_retention_days",
		},
		{
			name: "archive interval must be positive",
			mutate: func(c *Config) {
				c.Staking.ArchiveInterval = duration{}
			},
			wantErr: "archive_interval",
		},
		{
			name: "server port out of range",
			mutate: func(c *Config) {
				c.Server.Port = 70000
			},
			wantErr: "server: port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validBase("full")
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateReportsAllProblems(t *testing.T) {
	cfg := validBase("full")
	cfg.Operator.Address = ""
	cfg.Redis.Addr = ""
	cfg.Server.Port = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() = nil, want combined error")
	}
	for _, want := range []string{"operator: address", "redis: addr", "server: port"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate() error missing %q:\n%v", want, err)
		}
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
mode = "memory"
log_level = "debug"

[operator]
address = "0x00000000000000000000000000000000000000a1"

[staking]
token_cache_ttl = "5m"
archive_retention_days = 30
archive_interval = "12h"

[server]
port = 9000
cors_origins = ["https://app.example.com"]
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Mode != "memory" {
		t.Errorf("Mode = %q, want %q", cfg.Mode, "memory")
	}
	if got := cfg.Staking.TokenCacheTTL.Duration; got != 5*time.Minute {
		t.Errorf("TokenCacheTTL = %v, want 5m", got)
	}
	if cfg.Staking.ArchiveRetentionDays != 30 {
		t.Errorf("ArchiveRetentionDays = %d, want 30", cfg.Staking.ArchiveRetentionDays)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000", cfg.Server.Port)
	}
	// Unset fields keep their defaults.
	if cfg.Redis.Addr != "localhost:6379" {
		t.Errorf("Redis.Addr = %q, want default", cfg.Redis.Addr)
	}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("loaded config failed validation: %v", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("STAKELEDGER_MODE", "archive")
	t.Setenv("STAKELEDGER_REDIS_ADDR", "redis.internal:6380")
	t.Setenv("STAKELEDGER_DATABASE_URL", "postgres://u:p@db:5432/ledger")
	t.Setenv("STAKELEDGER_STAKING_TOKEN_CACHE_TTL", "30s")
	t.Setenv("STAKELEDGER_SERVER_CORS_ORIGINS", "https://a.example.com, https://b.example.com")
	t.Setenv("STAKELEDGER_SERVER_ENABLED", "false")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	if cfg.Mode != "archive" {
		t.Errorf("Mode = %q, want %q", cfg.Mode, "archive")
	}
	if cfg.Redis.Addr != "redis.internal:6380" {
		t.Errorf("Redis.Addr = %q", cfg.Redis.Addr)
	}
	if cfg.Database.DSN != "postgres://u:p@db:5432/ledger" {
		t.Errorf("Database.DSN = %q", cfg.Database.DSN)
	}
	if got := cfg.Staking.TokenCacheTTL.Duration; got != 30*time.Second {
		t.Errorf("TokenCacheTTL = %v, want 30s", got)
	}
	wantOrigins := []string{"https://a.example.com", "https://b.example.com"}
	if len(cfg.Server.CORSOrigins) != len(wantOrigins) {
		t.Fatalf("CORSOrigins = %v, want %v", cfg.Server.CORSOrigins, wantOrigins)
	}
	for i, o := range wantOrigins {
		if cfg.Server.CORSOrigins[i] != o {
			t.Errorf("CORSOrigins[%d] = %q, want %q", i, cfg.Server.CORSOrigins[i], o)
		}
	}
	if cfg.Server.Enabled {
		t.Error("Server.Enabled = true, want false")
	}
}

func TestRedactedConfig(t *testing.T) {
	cfg := validBase("full")
	cfg.Operator.KeyPassword = "hunter2"
	cfg.Database.Password = "pgpass"
	cfg.Database.DSN = "postgres://u:secret@db/ledger"
	cfg.Redis.Password = "redispass"
	cfg.S3.AccessKey = "AKIA123"
	cfg.S3.SecretKey = "s3secret"
	cfg.Server.APIKey = "api-key"

	out := RedactedConfig(&cfg)

	for name, got := range map[string]string{
		"Operator.PrivateKey":  out.Operator.PrivateKey,
		"Operator.KeyPassword": out.Operator.KeyPassword,
		"Database.DSN":         out.Database.DSN,
		"Database.Password":    out.Database.Password,
		"Redis.Password":       out.Redis.Password,
		"S3.AccessKey":         out.S3.AccessKey,
		"S3.SecretKey":         out.S3.SecretKey,
		"Server.APIKey":        out.Server.APIKey,
	} {
		if got != redacted {
			t.Errorf("%s = %q, want %q", name, got, redacted)
		}
	}

	// Non-secret fields survive.
	if out.Operator.Address != cfg.Operator.Address {
		t.Errorf("Operator.Address changed: %q", out.Operator.Address)
	}

	// The original is untouched.
	if cfg.Server.APIKey != "api-key" {
		t.Errorf("original mutated: APIKey = %q", cfg.Server.APIKey)
	}

	// Mutating the redacted copy's slices must not reach the original.
	if len(out.Server.CORSOrigins) > 0 {
		out.Server.CORSOrigins[0] = "tampered"
		if cfg.Server.CORSOrigins[0] == "tampered" {
			t.Error("CORSOrigins slice shared with original")
		}
	}
}
