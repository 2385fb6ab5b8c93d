// Package config loads runtime configuration for the clautod admin CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional file selected with -c or -config (.json, .toml, .yaml).
//  3. Command-line flags, which override earlier values.
//
// Supported flags
//
//	-a string     address:port of the clautod gRPC endpoint
//	-t duration   per-command timeout
//	-f string     file keeping the session token between runs
//	-ca string    CA certificate for a TLS endpoint
//
// # File schema
//
// Durations use timex.Duration, so values can be strings like "10s" or
// integer nanoseconds:
//
//	{
//	  "server_addr": "127.0.0.1:50051",
//	  "timeout": "10s",
//	  "token_file": "~/.clautod/token"
//	}
package config
