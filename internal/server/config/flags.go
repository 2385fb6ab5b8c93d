package config

import (
	"flag"

	"github.com/jeremy-quicklearner/clautod/internal/flagx"
)

// parseFlags overlays command-line flags.
//
//	-a string     HTTP bind address
//	-g string     gRPC bind address
//	-D string     database driver (sqlite or pgx)
//	-d string     database DSN
//	-k string     token signing key (PEM)
//	-x string     token certificate or public key (PEM)
//	-t duration   token lifetime
//	-l string     log level
//	-o list       allowed CORS origins, comma separated
//
// Only these flags are read from args, so the process may carry others.
func parseFlags(config *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-a", "-g", "-D", "-d", "-k", "-x", "-t", "-l", "-o"})

	fs := flag.NewFlagSet("server", flag.ContinueOnError)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "HTTP address and port")
	fs.StringVar(&config.GRPCAddr, "g", config.GRPCAddr, "gRPC address and port")
	fs.StringVar(&config.DatabaseDriver, "D", config.DatabaseDriver, "database driver (sqlite or pgx)")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.TokenPrivateKey, "k", config.TokenPrivateKey, "token signing key (PEM)")
	fs.StringVar(&config.TokenCertificate, "x", config.TokenCertificate, "token certificate or public key (PEM)")

	lifetime := fs.Duration("t", config.TokenLifetime, "token lifetime")

	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	origins := flagx.StringList(config.AllowedOrigins)
	fs.Var(&origins, "o", "allowed CORS origins, comma separated")

	if err := fs.Parse(args); err != nil {
		return err
	}

	config.TokenLifetime = *lifetime
	config.AllowedOrigins = origins
	return nil
}
