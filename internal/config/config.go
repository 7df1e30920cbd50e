// Package config loads ledgerweaver settings from TOML.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/ledgerweaver/ledgerweaver/internal/logger"
)

const (
	AppName         = "ledgerweaver"
	DefaultFileName = "ledgerweaver.toml"
	IndexFileName   = "accounts.db"
)

// Engine kinds.
const (
	EngineAuto       = "auto"
	EngineWASM       = "wasm"
	EngineReference  = "reference"
	EngineTreeSitter = "treesitter"
)

var ErrInvalid = errors.New("invalid configuration")

// Config is the merged configuration.
type Config struct {
	Engine EngineConfig `toml:"engine"`
	Parser ParserConfig `toml:"parser"`
	Format FormatConfig `toml:"format"`
	Index  IndexConfig  `toml:"index"`
	Logger LoggerConfig `toml:"logger"`

	// Undecoded lists keys present in the file but not understood.
	Undecoded []string `toml:"-"`
	// Path is the file the config was read from, empty for defaults only.
	Path string `toml:"-"`
}

type EngineConfig struct {
	Kind             string `toml:"kind"`
	WASMPath         string `toml:"wasm_path"`
	WASMSHA256       string `toml:"wasm_sha256"`
	MemoryLimitPages uint32 `toml:"memory_limit_pages"`
}

type ParserConfig struct {
	ChunkBytes  int    `toml:"chunk_bytes"`
	ChunkNodes  int    `toml:"chunk_nodes"`
	VerifyEvery uint64 `toml:"verify_every"`
}

type FormatConfig struct {
	CurrencyColumn int `toml:"currency_column"`
	IndentWidth    int `toml:"indent_width"`
}

type IndexConfig struct {
	// Path of the SQLite account index. "off" disables the index.
	Path string `toml:"path"`
}

type LoggerConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{Kind: EngineAuto},
		Parser: ParserConfig{ChunkBytes: 32 << 10, ChunkNodes: 4096, VerifyEvery: 256},
		Format: FormatConfig{CurrencyColumn: 52, IndentWidth: 2},
		Logger: LoggerConfig{Level: "warning"},
	}
}

// DefaultPath returns $XDG_CONFIG_HOME/ledgerweaver/ledgerweaver.toml or the
// platform equivalent.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, AppName, DefaultFileName), nil
}

// DefaultIndexPath returns the account index location under the user cache dir.
func DefaultIndexPath() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, AppName, IndexFileName), nil
}

// Load reads path over the defaults. An empty path tries DefaultPath and
// tolerates its absence; an explicit path must exist.
func Load(path string) (*Config, error) {
	cfg := Default()
	explicit := path != ""
	if !explicit {
		p, err := DefaultPath()
		if err != nil {
			return cfg, nil
		}
		path = p
	}

	if _, err := os.Stat(path); err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return cfg, cfg.Validate()
		}
		return nil, fmt.Errorf("stat config %q: %w", path, err)
	}

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}
	cfg.Path = path
	for _, key := range md.Undecoded() {
		cfg.Undecoded = append(cfg.Undecoded, key.String())
	}
	sort.Strings(cfg.Undecoded)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %q: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes TOML text over the defaults.
func Parse(data string) (*Config, error) {
	cfg := Default()
	md, err := toml.Decode(data, cfg)
	if err != nil {
		return nil, err
	}
	for _, key := range md.Undecoded() {
		cfg.Undecoded = append(cfg.Undecoded, key.String())
	}
	sort.Strings(cfg.Undecoded)
	return cfg, cfg.Validate()
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.Engine.Kind {
	case EngineAuto, EngineWASM, EngineReference, EngineTreeSitter:
	default:
		return fmt.Errorf("%w: engine.kind %q (want %s)", ErrInvalid, c.Engine.Kind,
			strings.Join([]string{EngineAuto, EngineWASM, EngineReference, EngineTreeSitter}, "|"))
	}
	if c.Parser.ChunkBytes <= 0 {
		return fmt.Errorf("%w: parser.chunk_bytes must be positive", ErrInvalid)
	}
	if c.Parser.ChunkNodes <= 0 {
		return fmt.Errorf("%w: parser.chunk_nodes must be positive", ErrInvalid)
	}
	if c.Format.CurrencyColumn < 0 {
		return fmt.Errorf("%w: format.currency_column must not be negative", ErrInvalid)
	}
	if c.Format.IndentWidth <= 0 {
		return fmt.Errorf("%w: format.indent_width must be positive", ErrInvalid)
	}
	if _, err := logger.Verbosity(c.Logger.Level); err != nil {
		return fmt.Errorf("%w: logger.level: %w", ErrInvalid, err)
	}
	return nil
}

// IndexPath resolves the account index location. ok is false when the index
// is disabled.
func (c *Config) IndexPath() (path string, ok bool, err error) {
	switch c.Index.Path {
	case "off":
		return "", false, nil
	case "":
		p, err := DefaultIndexPath()
		if err != nil {
			return "", false, err
		}
		return p, true, nil
	default:
		return c.Index.Path, true, nil
	}
}

// Overrides are command-line values that win over the file. Empty fields are ignored.
type Overrides struct {
	EngineKind string
	WASMPath   string
	LogLevel   string
	LogFile    string
	IndexPath  string
}

// Apply merges o into c and revalidates.
func (c *Config) Apply(o Overrides) error {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&c.Engine.Kind, o.EngineKind)
	set(&c.Engine.WASMPath, o.WASMPath)
	set(&c.Logger.Level, o.LogLevel)
	set(&c.Logger.File, o.LogFile)
	set(&c.Index.Path, o.IndexPath)
	return c.Validate()
}
