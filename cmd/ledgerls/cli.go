package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ledgerweaver/ledgerweaver/internal/app"
	"github.com/ledgerweaver/ledgerweaver/internal/config"
	"github.com/ledgerweaver/ledgerweaver/internal/lsp"
)

const (
	exitOK       = 0
	exitFailed   = 1
	exitInternal = 3
)

type cliOptions struct {
	app.Flags
	indexPath string
	tcp       string
	// serve is replaced in tests.
	serve func(ctx context.Context, s *lsp.Server, tcp string) error
}

func run(ctx context.Context, stderr io.Writer, args []string) int {
	return runWith(ctx, stderr, args, serve)
}

func runWith(ctx context.Context, stderr io.Writer, args []string, serveFn func(context.Context, *lsp.Server, string) error) int {
	opts := cliOptions{serve: serveFn}
	code := exitOK
	cmd := &cobra.Command{
		Use:   "ledgerls [flags]",
		Short: "Ledger journal language server",
		Long: `Serve the Language Server Protocol for ledger journals on stdin and stdout,
or on a TCP address with --tcp.

Logs go to stderr unless --log-file is set.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return errors.New("ledgerls takes no positional arguments")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			code = runServer(cmd.Context(), stderr, opts)
			return nil
		},
	}
	opts.Flags.Register(cmd.Flags())
	cmd.Flags().StringVar(&opts.indexPath, "index", "", `account index database path, or "off"`)
	cmd.Flags().StringVar(&opts.tcp, "tcp", "", "listen on this TCP address instead of stdio")

	cmd.SetArgs(args)
	cmd.SetOut(stderr)
	cmd.SetErr(stderr)
	if err := cmd.ExecuteContext(ctx); err != nil {
		writef(stderr, "ledgerls: %v\n\n%s", err, cmd.UsageString())
		return exitInternal
	}
	return code
}

func runServer(ctx context.Context, stderr io.Writer, opts cliOptions) int {
	cfg, err := opts.Load()
	if err != nil {
		writef(stderr, "ledgerls: %v\n", err)
		return exitInternal
	}
	if err := cfg.Apply(config.Overrides{IndexPath: opts.indexPath}); err != nil {
		writef(stderr, "ledgerls: flags: %v\n", err)
		return exitInternal
	}
	a, err := app.New(cfg, app.Options{WithIndex: true})
	if err != nil {
		writef(stderr, "ledgerls: %v\n", err)
		return exitInternal
	}
	defer func() { _ = a.Close() }()

	s, err := lsp.NewServer(lsp.Options{
		Support: a.Support,
		Index:   a.Index,
		Version: version,
	})
	if err != nil {
		writef(stderr, "ledgerls: %v\n", err)
		return exitInternal
	}
	if err := opts.serve(ctx, s, opts.tcp); err != nil {
		writef(stderr, "ledgerls: %v\n", err)
		return exitFailed
	}
	return exitOK
}

func serve(ctx context.Context, s *lsp.Server, tcp string) error {
	if tcp != "" {
		return s.RunTCP(ctx, tcp)
	}
	return s.RunStdio(ctx)
}

func writef(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
