package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ledgerweaver/ledgerweaver/internal/app"
	"github.com/ledgerweaver/ledgerweaver/internal/index"
	"github.com/ledgerweaver/ledgerweaver/internal/lint"
	"github.com/ledgerweaver/ledgerweaver/internal/syntax"
)

const (
	exitOK       = 0
	exitIssues   = 1
	exitInternal = 3

	outputFormatText = "text"
	outputFormatJSON = "json"
)

type cliOptions struct {
	app.Flags
	stdin          bool
	assumeFilename string
	format         string
	paths          []string
}

// document is one parsed input.
type document struct {
	name  string
	src   []byte
	tree  *syntax.Tree
	diags []syntax.Diagnostic
}

func run(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, args []string) int {
	var opts cliOptions
	code := exitOK
	cmd := &cobra.Command{
		Use:   "ledgerlint [flags] file.beancount...",
		Short: "Report problems in ledger journals",
		Long: `Report syntax errors, undeclared accounts and transactions with more than
one posting missing its amount.

Accounts opened in any of the given files count as declared in all of them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(cmd *cobra.Command, args []string) error {
			return validateArgs(&opts, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.paths = args
			code = runLint(cmd.Context(), stdin, stdout, stderr, opts)
			return nil
		},
	}
	opts.Flags.Register(cmd.Flags())
	cmd.Flags().BoolVar(&opts.stdin, "stdin", false, "read input from stdin")
	cmd.Flags().StringVar(&opts.assumeFilename, "assume-filename", "", "filename used in diagnostics for --stdin")
	cmd.Flags().StringVar(&opts.format, "format", outputFormatText, "diagnostic output format: text|json")

	cmd.SetArgs(args)
	cmd.SetIn(stdin)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	if err := cmd.ExecuteContext(ctx); err != nil {
		writef(stderr, "ledgerlint: %v\n\n%s", err, cmd.UsageString())
		return exitInternal
	}
	return code
}

func validateArgs(opts *cliOptions, args []string) error {
	switch {
	case opts.format != outputFormatText && opts.format != outputFormatJSON:
		return errors.New("--format must be one of: text, json")
	case opts.stdin && len(args) > 0:
		return errors.New("positional file paths are not allowed with --stdin")
	case !opts.stdin && len(args) == 0:
		return errors.New("at least one input file path is required (or use --stdin)")
	}
	return nil
}

func runLint(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, opts cliOptions) int {
	cfg, err := opts.Load()
	if err != nil {
		writef(stderr, "ledgerlint: %v\n", err)
		return exitInternal
	}
	a, err := app.New(cfg, app.Options{})
	if err != nil {
		writef(stderr, "ledgerlint: %v\n", err)
		return exitInternal
	}
	defer func() { _ = a.Close() }()

	docs, err := readInputs(stdin, opts)
	if err != nil {
		writef(stderr, "ledgerlint: %v\n", err)
		return exitInternal
	}
	if err := lintDocuments(ctx, a, docs); err != nil {
		writef(stderr, "ledgerlint: lint failed: %v\n", err)
		return exitInternal
	}

	total := 0
	for _, d := range docs {
		total += len(d.diags)
	}
	if total == 0 {
		return exitOK
	}
	if err := writeOutput(opts.format, stdout, stderr, docs); err != nil {
		writef(stderr, "ledgerlint: %v\n", err)
		return exitInternal
	}
	return exitIssues
}

func readInputs(stdin io.Reader, opts cliOptions) ([]*document, error) {
	if opts.stdin {
		src, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		name := opts.assumeFilename
		if name == "" {
			name = "<stdin>"
		}
		return []*document{{name: name, src: src}}, nil
	}
	docs := make([]*document, 0, len(opts.paths))
	for _, path := range opts.paths {
		//nolint:gosec // CLI intentionally reads user-provided file paths.
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		docs = append(docs, &document{name: path, src: src})
	}
	return docs, nil
}

// lintDocuments parses every document, records their declarations in a
// shared in-memory index and lints each against it.
func lintDocuments(ctx context.Context, a *app.App, docs []*document) error {
	limit := runtime.GOMAXPROCS(0)

	var parse errgroup.Group
	parse.SetLimit(limit)
	for _, d := range docs {
		parse.Go(func() error {
			p := a.Support.NewParser()
			defer p.Close()
			d.tree = p.StartParse(ctx, d.src, nil, nil).Finish()
			return nil
		})
	}
	_ = parse.Wait()

	ix, err := index.Open(index.MemoryPath)
	if err != nil {
		return err
	}
	defer func() { _ = ix.Close() }()
	for _, d := range docs {
		if err := ix.ReplaceDocument(ctx, d.name, index.Extract(d.tree, d.src, d.name)); err != nil {
			return err
		}
	}

	runner := lint.NewDefaultRunner(ix)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, d := range docs {
		g.Go(func() error {
			diags, err := runner.Run(gctx, lint.Document{Tree: d.tree, Source: d.src})
			if err != nil {
				return fmt.Errorf("%s: %w", d.name, err)
			}
			d.diags = diags
			return nil
		})
	}
	return g.Wait()
}

func writeOutput(format string, stdout, stderr io.Writer, docs []*document) error {
	switch format {
	case outputFormatJSON:
		var payload []app.DiagnosticJSON
		for _, d := range docs {
			items, err := app.JSONDiagnostics(d.name, d.src, d.diags)
			if err != nil {
				return err
			}
			payload = append(payload, items...)
		}
		return app.WriteJSON(stdout, payload)
	default:
		first := true
		for _, d := range docs {
			if len(d.diags) == 0 {
				continue
			}
			if !first {
				writef(stderr, "\n")
			}
			first = false
			app.WriteDiagnostics(stderr, d.name, d.src, d.diags)
		}
		return nil
	}
}

func writef(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
