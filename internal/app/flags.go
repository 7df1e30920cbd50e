package app

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"

	"github.com/ledgerweaver/ledgerweaver/internal/config"
	"github.com/ledgerweaver/ledgerweaver/internal/logger"
)

// Flags are the configuration flags every command accepts.
type Flags struct {
	ConfigPath string
	Engine     string
	WASMPath   string
	LogLevel   string
	LogFile    string
}

// Register binds the flags to fs.
func (f *Flags) Register(fs *pflag.FlagSet) {
	fs.StringVar(&f.ConfigPath, "config", "", "configuration file (default $XDG_CONFIG_HOME/ledgerweaver/ledgerweaver.toml)")
	fs.StringVar(&f.Engine, "engine", "", "grammar engine: auto|wasm|reference|treesitter")
	fs.StringVar(&f.WASMPath, "grammar", "", "path to the ledger grammar wasm artifact")
	fs.StringVar(&f.LogLevel, "log-level", "", "log level: "+strings.Join(logger.Levels(), "|"))
	fs.StringVar(&f.LogFile, "log-file", "", "write logs to this file instead of stderr")
}

// Load reads the configuration file and applies the flag overrides.
func (f *Flags) Load() (*config.Config, error) {
	cfg, err := config.Load(f.ConfigPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Apply(config.Overrides{
		EngineKind: f.Engine,
		WASMPath:   f.WASMPath,
		LogLevel:   f.LogLevel,
		LogFile:    f.LogFile,
	}); err != nil {
		return nil, fmt.Errorf("flags: %w", err)
	}
	return cfg, nil
}
