// Package config handles configuration for the server component: defaults,
// a JSON/TOML/YAML file, a .env file with CLAUTOD_* variables, and
// command-line flags, applied in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jeremy-quicklearner/clautod/internal/cryptox"
	"github.com/jeremy-quicklearner/clautod/internal/dbx"
)

const (
	SchemaMismatchWarn = "warn"
	SchemaMismatchFail = "fail"
)

// Config holds runtime settings for the clautod server.
type Config struct {
	HTTPAddr string
	GRPCAddr string
	TLSCert  string
	TLSKey   string

	DatabaseDriver string
	DatabaseDSN    string
	StoreTimeout   time.Duration
	SchemaMismatch string

	TokenPrivateKey  string
	TokenCertificate string
	TokenIssuer      string
	TokenAudience    string
	TokenLifetime    time.Duration
	TokenRenewWindow time.Duration
	MaxSessionAge    time.Duration
	Revocation       bool

	PasswordHasher string
	AdminPassword  string

	LogLevel string
	LogJSON  bool

	AllowedOrigins     []string
	LoginRatePerMinute int
}

// LoadDefaults populates Config with development defaults: an embedded SQLite
// file and a key pair generated at startup.
func (c *Config) LoadDefaults() {
	c.HTTPAddr = ":8080"
	c.GRPCAddr = ":50051"
	c.DatabaseDriver = string(dbx.SQLite)
	c.DatabaseDSN = "file:clautod.db"
	c.StoreTimeout = 5 * time.Second
	c.SchemaMismatch = SchemaMismatchWarn
	c.TokenIssuer = "clautod"
	c.TokenAudience = "clautod-api"
	c.TokenLifetime = 15 * time.Minute
	c.TokenRenewWindow = 5 * time.Minute
	c.MaxSessionAge = 12 * time.Hour
	c.Revocation = true
	c.PasswordHasher = "sha256"
	c.LogLevel = "info"
	c.AllowedOrigins = []string{}
	c.LoginRatePerMinute = 10
}

// LoadConfig builds a Config from defaults, then the config file, then the
// environment, then command-line flags.
func LoadConfig() (*Config, error) {
	return load(os.Args[1:], os.LookupEnv, ".env")
}

func load(args []string, lookup func(string) (string, bool), dotenv string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	if err := parseFile(cfg, args); err != nil {
		return nil, err
	}
	if err := parseEnv(cfg, lookup, dotenv); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports settings that cannot work together.
func (c *Config) Validate() error {
	var errs []error

	if _, err := dbx.ParseDialect(c.DatabaseDriver); err != nil {
		errs = append(errs, err)
	}
	if c.DatabaseDSN == "" {
		errs = append(errs, errors.New("database_dsn must be set"))
	}
	if c.StoreTimeout <= 0 {
		errs = append(errs, errors.New("store_timeout must be positive"))
	}
	if c.SchemaMismatch != SchemaMismatchWarn && c.SchemaMismatch != SchemaMismatchFail {
		errs = append(errs, fmt.Errorf("schema_mismatch must be %q or %q", SchemaMismatchWarn, SchemaMismatchFail))
	}
	if c.TokenLifetime <= 0 {
		errs = append(errs, errors.New("token_lifetime must be positive"))
	}
	if c.TokenRenewWindow < 0 || c.TokenRenewWindow >= c.TokenLifetime {
		errs = append(errs, errors.New("token_renew_window must be shorter than token_lifetime"))
	}
	if c.MaxSessionAge < 0 {
		errs = append(errs, errors.New("max_session_age must not be negative"))
	}
	if c.TokenCertificate != "" && c.TokenPrivateKey == "" {
		errs = append(errs, errors.New("token_certificate needs token_private_key"))
	}
	if (c.TLSCert == "") != (c.TLSKey == "") {
		errs = append(errs, errors.New("tls_cert and tls_key must be set together"))
	}
	if _, err := cryptox.NewHasher(c.PasswordHasher); err != nil {
		errs = append(errs, err)
	}
	if c.LoginRatePerMinute < 0 {
		errs = append(errs, errors.New("login_rate_per_minute must not be negative"))
	}

	return errors.Join(errs...)
}

// String renders the config for logs with secrets masked.
func (c *Config) String() string {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "****"
	}
	return fmt.Sprintf(
		"http_addr=%s grpc_addr=%s tls=%t database_driver=%s database_dsn=%s store_timeout=%s schema_mismatch=%s "+
			"token_issuer=%s token_audience=%s token_lifetime=%s token_renew_window=%s max_session_age=%s revocation=%t "+
			"token_private_key=%s password_hasher=%s admin_password=%s log_level=%s log_json=%t allowed_origins=%s login_rate_per_minute=%d",
		c.HTTPAddr, c.GRPCAddr, c.TLSCert != "", c.DatabaseDriver, maskDSN(c.DatabaseDSN), c.StoreTimeout, c.SchemaMismatch,
		c.TokenIssuer, c.TokenAudience, c.TokenLifetime, c.TokenRenewWindow, c.MaxSessionAge, c.Revocation,
		c.TokenPrivateKey, c.PasswordHasher, mask(c.AdminPassword), c.LogLevel, c.LogJSON,
		strings.Join(c.AllowedOrigins, ","), c.LoginRatePerMinute,
	)
}

// maskDSN hides the password of a URL style DSN.
func maskDSN(dsn string) string {
	scheme, rest, ok := strings.Cut(dsn, "://")
	if !ok {
		return dsn
	}
	userinfo, host, ok := strings.Cut(rest, "@")
	if !ok {
		return dsn
	}
	user, _, hasPass := strings.Cut(userinfo, ":")
	if !hasPass {
		return dsn
	}
	return scheme + "://" + user + ":****@" + host
}
