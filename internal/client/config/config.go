package config

import (
	"errors"
	"os"
	"time"
)

// Config holds runtime settings for the admin CLI.
type Config struct {
	// ServerAddr is the host:port of the gRPC endpoint.
	ServerAddr string
	// Timeout bounds every command sent to the server.
	Timeout time.Duration
	// TokenFile keeps the session token between runs. Empty keeps it in
	// memory only.
	TokenFile string
	// CACert enables TLS and names the certificate used to verify the
	// server. Empty means plaintext.
	CACert string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerAddr = "127.0.0.1:50051"
	c.Timeout = 10 * time.Second
	c.TokenFile = ""
	c.CACert = ""
}

// LoadConfig builds a Config from defaults, the optional file and flags.
func LoadConfig() (*Config, error) {
	return load(os.Args[1:])
}

func load(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseFile(cfg, args); err != nil {
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

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	if c.ServerAddr == "" {
		errs = append(errs, errors.New("server_addr is empty"))
	}
	if c.Timeout <= 0 {
		errs = append(errs, errors.New("timeout must be positive"))
	}
	return errors.Join(errs...)
}
