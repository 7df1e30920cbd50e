// grammar-checksum writes or verifies the sha256 file shipped beside the
// ledger grammar wasm artifact, and optionally smoke-tests the module.
package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"

	ledgergrammar "github.com/ledgerweaver/ledgerweaver/internal/grammars/ledger"
)

const smokeJournal = "2024-01-01 open Assets:Cash\n"

type config struct {
	Grammar     string
	Check       bool
	Load        bool
	MemoryPages uint32
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "grammar-checksum: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	cfg, err := parseFlags(args)
	if err != nil {
		return err
	}
	sum, err := sha256File(cfg.Grammar)
	if err != nil {
		return err
	}
	checksumPath := cfg.Grammar + ledgergrammar.ChecksumExt

	if cfg.Check {
		art, err := ledgergrammar.Read(cfg.Grammar, "")
		if err != nil {
			return err
		}
		if !strings.EqualFold(art.SHA256, sum) {
			return fmt.Errorf("checksum mismatch for %s: file says %s, artifact is %s", cfg.Grammar, art.SHA256, sum)
		}
		_, _ = fmt.Fprintf(stdout, "%s: OK\n", cfg.Grammar)
	} else {
		line := fmt.Sprintf("%s  %s\n", sum, filepath.Base(cfg.Grammar))
		if err := os.WriteFile(checksumPath, []byte(line), 0o644); err != nil { //nolint:gosec // checksum files are public.
			return fmt.Errorf("write checksum: %w", err)
		}
		_, _ = fmt.Fprintf(stdout, "wrote %s\n", checksumPath)
	}

	if cfg.Load {
		if err := smoke(context.Background(), cfg, sum); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(stdout, "%s: parsed smoke journal\n", cfg.Grammar)
	}
	return nil
}

func parseFlags(args []string) (config, error) {
	var cfg config
	fs := pflag.NewFlagSet("grammar-checksum", pflag.ContinueOnError)
	fs.StringVar(&cfg.Grammar, "grammar", "", "path to the ledger grammar wasm artifact")
	fs.BoolVar(&cfg.Check, "check", false, "verify the existing checksum file instead of writing it")
	fs.BoolVar(&cfg.Load, "load", false, "instantiate the module and parse a sample journal")
	fs.Uint32Var(&cfg.MemoryPages, "memory-limit-pages", 0, "wasm memory limit in 64KiB pages (0 uses the default)")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}
	if cfg.Grammar == "" {
		return config{}, errors.New("required flag: --grammar")
	}
	return cfg, nil
}

func smoke(ctx context.Context, cfg config, sum string) error {
	eng, err := ledgergrammar.Loader(cfg.Grammar, sum, cfg.MemoryPages)(ctx)
	if err != nil {
		return fmt.Errorf("load grammar: %w", err)
	}
	tree, err := eng.Parse(ctx, []byte(smokeJournal), nil)
	if err != nil {
		return fmt.Errorf("parse smoke journal: %w", err)
	}
	defer tree.Release()
	root := tree.Root()
	if root == nil || root.EndByte() != len(smokeJournal) {
		return errors.New("smoke journal parse did not cover the input")
	}
	return nil
}

func sha256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
