package config

import (
	"flag"

	"github.com/jeremy-quicklearner/clautod/internal/flagx"
)

// parseFlags populates Config fields from command-line flags. Only -a, -t,
// -f and -ca are read from args.
func parseFlags(cfg *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-a", "-t", "-f", "-ca"})

	fs := flag.NewFlagSet("cli", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerAddr, "a", cfg.ServerAddr, "address and port of the clautod gRPC endpoint")
	fs.DurationVar(&cfg.Timeout, "t", cfg.Timeout, "per-command timeout")
	tokenFile := fs.String("f", cfg.TokenFile, "file keeping the session token")
	fs.StringVar(&cfg.CACert, "ca", cfg.CACert, "CA certificate for a TLS endpoint")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg.TokenFile = expandHome(*tokenFile)
	return nil
}
