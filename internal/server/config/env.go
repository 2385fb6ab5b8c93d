package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/jeremy-quicklearner/clautod/internal/flagx"
)

const envPrefix = "CLAUTOD_"

// parseEnv overlays CLAUTOD_* variables. Values from the dotenv file apply
// only where the process environment does not set the same key. A missing
// dotenv file is not an error.
func parseEnv(config *Config, lookup func(string) (string, bool), dotenv string) error {
	fromFile := map[string]string{}
	if dotenv != "" {
		m, err := godotenv.Read(dotenv)
		switch {
		case err == nil:
			fromFile = m
		case errors.Is(err, fs.ErrNotExist):
		default:
			return fmt.Errorf("read %s: %w", dotenv, err)
		}
	}

	get := func(key string) (string, bool) {
		if v, ok := lookup(envPrefix + key); ok {
			return v, true
		}
		v, ok := fromFile[envPrefix+key]
		return v, ok
	}

	str := func(key string, dst *string) {
		if v, ok := get(key); ok {
			*dst = v
		}
	}
	var errs []error
	dur := func(key string, dst *time.Duration) {
		if v, ok := get(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
				return
			}
			*dst = d
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := get(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
				return
			}
			*dst = b
		}
	}

	str("HTTP_ADDR", &config.HTTPAddr)
	str("GRPC_ADDR", &config.GRPCAddr)
	str("TLS_CERT", &config.TLSCert)
	str("TLS_KEY", &config.TLSKey)
	str("DATABASE_DRIVER", &config.DatabaseDriver)
	str("DATABASE_DSN", &config.DatabaseDSN)
	dur("STORE_TIMEOUT", &config.StoreTimeout)
	str("SCHEMA_MISMATCH", &config.SchemaMismatch)
	str("TOKEN_PRIVATE_KEY", &config.TokenPrivateKey)
	str("TOKEN_CERTIFICATE", &config.TokenCertificate)
	str("TOKEN_ISSUER", &config.TokenIssuer)
	str("TOKEN_AUDIENCE", &config.TokenAudience)
	dur("TOKEN_LIFETIME", &config.TokenLifetime)
	dur("TOKEN_RENEW_WINDOW", &config.TokenRenewWindow)
	dur("MAX_SESSION_AGE", &config.MaxSessionAge)
	boolean("REVOCATION", &config.Revocation)
	str("PASSWORD_HASHER", &config.PasswordHasher)
	str("ADMIN_PASSWORD", &config.AdminPassword)
	str("LOG_LEVEL", &config.LogLevel)
	boolean("LOG_JSON", &config.LogJSON)

	if v, ok := get("ALLOWED_ORIGINS"); ok {
		config.AllowedOrigins = flagx.SplitList(v)
	}
	if v, ok := get("LOGIN_RATE_PER_MINUTE"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sLOGIN_RATE_PER_MINUTE: %w", envPrefix, err))
		} else {
			config.LoginRatePerMinute = n
		}
	}

	return errors.Join(errs...)
}
