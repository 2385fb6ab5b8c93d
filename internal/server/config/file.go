package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/jeremy-quicklearner/clautod/internal/flagx"
	"github.com/jeremy-quicklearner/clautod/internal/timex"
)

// FileConfig is the on-disk shape of the server config. Durations are
// timex.Duration so files may write "15m". Keys missing from the file keep
// their current value.
type FileConfig struct {
	HTTPAddr string `json:"http_addr" toml:"http_addr" yaml:"http_addr"`
	GRPCAddr string `json:"grpc_addr" toml:"grpc_addr" yaml:"grpc_addr"`
	TLSCert  string `json:"tls_cert" toml:"tls_cert" yaml:"tls_cert"`
	TLSKey   string `json:"tls_key" toml:"tls_key" yaml:"tls_key"`

	DatabaseDriver string         `json:"database_driver" toml:"database_driver" yaml:"database_driver"`
	DatabaseDSN    string         `json:"database_dsn" toml:"database_dsn" yaml:"database_dsn"`
	StoreTimeout   timex.Duration `json:"store_timeout" toml:"store_timeout" yaml:"store_timeout"`
	SchemaMismatch string         `json:"schema_mismatch" toml:"schema_mismatch" yaml:"schema_mismatch"`

	TokenPrivateKey  string         `json:"token_private_key" toml:"token_private_key" yaml:"token_private_key"`
	TokenCertificate string         `json:"token_certificate" toml:"token_certificate" yaml:"token_certificate"`
	TokenIssuer      string         `json:"token_issuer" toml:"token_issuer" yaml:"token_issuer"`
	TokenAudience    string         `json:"token_audience" toml:"token_audience" yaml:"token_audience"`
	TokenLifetime    timex.Duration `json:"token_lifetime" toml:"token_lifetime" yaml:"token_lifetime"`
	TokenRenewWindow timex.Duration `json:"token_renew_window" toml:"token_renew_window" yaml:"token_renew_window"`
	MaxSessionAge    timex.Duration `json:"max_session_age" toml:"max_session_age" yaml:"max_session_age"`
	Revocation       bool           `json:"revocation" toml:"revocation" yaml:"revocation"`

	PasswordHasher string `json:"password_hasher" toml:"password_hasher" yaml:"password_hasher"`
	AdminPassword  string `json:"admin_password" toml:"admin_password" yaml:"admin_password"`

	LogLevel string `json:"log_level" toml:"log_level" yaml:"log_level"`
	LogJSON  bool   `json:"log_json" toml:"log_json" yaml:"log_json"`

	AllowedOrigins     []string `json:"allowed_origins" toml:"allowed_origins" yaml:"allowed_origins"`
	LoginRatePerMinute int      `json:"login_rate_per_minute" toml:"login_rate_per_minute" yaml:"login_rate_per_minute"`
}

func fileConfigFrom(c *Config) *FileConfig {
	return &FileConfig{
		HTTPAddr:           c.HTTPAddr,
		GRPCAddr:           c.GRPCAddr,
		TLSCert:            c.TLSCert,
		TLSKey:             c.TLSKey,
		DatabaseDriver:     c.DatabaseDriver,
		DatabaseDSN:        c.DatabaseDSN,
		StoreTimeout:       timex.Duration{Duration: c.StoreTimeout},
		SchemaMismatch:     c.SchemaMismatch,
		TokenPrivateKey:    c.TokenPrivateKey,
		TokenCertificate:   c.TokenCertificate,
		TokenIssuer:        c.TokenIssuer,
		TokenAudience:      c.TokenAudience,
		TokenLifetime:      timex.Duration{Duration: c.TokenLifetime},
		TokenRenewWindow:   timex.Duration{Duration: c.TokenRenewWindow},
		MaxSessionAge:      timex.Duration{Duration: c.MaxSessionAge},
		Revocation:         c.Revocation,
		PasswordHasher:     c.PasswordHasher,
		AdminPassword:      c.AdminPassword,
		LogLevel:           c.LogLevel,
		LogJSON:            c.LogJSON,
		AllowedOrigins:     c.AllowedOrigins,
		LoginRatePerMinute: c.LoginRatePerMinute,
	}
}

func (f *FileConfig) apply(c *Config) {
	c.HTTPAddr = f.HTTPAddr
	c.GRPCAddr = f.GRPCAddr
	c.TLSCert = f.TLSCert
	c.TLSKey = f.TLSKey
	c.DatabaseDriver = f.DatabaseDriver
	c.DatabaseDSN = f.DatabaseDSN
	c.StoreTimeout = f.StoreTimeout.Duration
	c.SchemaMismatch = f.SchemaMismatch
	c.TokenPrivateKey = f.TokenPrivateKey
	c.TokenCertificate = f.TokenCertificate
	c.TokenIssuer = f.TokenIssuer
	c.TokenAudience = f.TokenAudience
	c.TokenLifetime = f.TokenLifetime.Duration
	c.TokenRenewWindow = f.TokenRenewWindow.Duration
	c.MaxSessionAge = f.MaxSessionAge.Duration
	c.Revocation = f.Revocation
	c.PasswordHasher = f.PasswordHasher
	c.AdminPassword = f.AdminPassword
	c.LogLevel = f.LogLevel
	c.LogJSON = f.LogJSON
	c.AllowedOrigins = f.AllowedOrigins
	c.LoginRatePerMinute = f.LoginRatePerMinute
}

// parseFile overlays the file named by -c/-config. The decoder is picked by
// extension: .json, .toml, .yaml or .yml.
func parseFile(config *Config, args []string) error {
	path := flagx.ConfigFile(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	fc := fileConfigFrom(config)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(fc)
	case ".toml":
		var md toml.MetaData
		md, err = toml.Decode(string(data), fc)
		if err == nil {
			if undecoded := md.Undecoded(); len(undecoded) > 0 {
				err = fmt.Errorf("unknown keys %v", undecoded)
			}
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err = dec.Decode(fc); errors.Is(err, io.EOF) {
			err = nil
		}
	default:
		return fmt.Errorf("config file %s: unsupported extension %q", path, ext)
	}
	if err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	fc.apply(config)
	return nil
}
