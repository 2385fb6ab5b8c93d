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

// FileConfig is a DTO used for decoding config files. Keys missing from the
// file keep their current value.
type FileConfig struct {
	ServerAddr string         `json:"server_addr" toml:"server_addr" yaml:"server_addr"`
	Timeout    timex.Duration `json:"timeout" toml:"timeout" yaml:"timeout"`
	TokenFile  string         `json:"token_file" toml:"token_file" yaml:"token_file"`
	CACert     string         `json:"ca_cert" toml:"ca_cert" yaml:"ca_cert"`
}

func parseFile(cfg *Config, args []string) error {
	path := flagx.ConfigFile(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	fc := FileConfig{
		ServerAddr: cfg.ServerAddr,
		Timeout:    timex.Duration{Duration: cfg.Timeout},
		TokenFile:  cfg.TokenFile,
		CACert:     cfg.CACert,
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(&fc)
	case ".toml":
		var md toml.MetaData
		md, err = toml.Decode(string(data), &fc)
		if err == nil {
			if undecoded := md.Undecoded(); len(undecoded) > 0 {
				err = fmt.Errorf("unknown keys %v", undecoded)
			}
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err = dec.Decode(&fc); errors.Is(err, io.EOF) {
			err = nil
		}
	default:
		return fmt.Errorf("config file %s: unsupported extension %q", path, ext)
	}
	if err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	cfg.ServerAddr = fc.ServerAddr
	cfg.Timeout = fc.Timeout.Duration
	cfg.TokenFile = expandHome(fc.TokenFile)
	cfg.CACert = fc.CACert
	return nil
}

// expandHome resolves a leading "~/" against the user's home directory.
func expandHome(path string) string {
	rest, ok := strings.CutPrefix(path, "~/")
	if !ok {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, rest)
}
