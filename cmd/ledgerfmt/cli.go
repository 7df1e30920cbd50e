package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ledgerweaver/ledgerweaver/internal/app"
	"github.com/ledgerweaver/ledgerweaver/internal/format"
	"github.com/ledgerweaver/ledgerweaver/internal/syntax"
	"github.com/ledgerweaver/ledgerweaver/internal/text"
)

const (
	exitOK       = 0
	exitCheck    = 1
	exitUnsafe   = 2
	exitInternal = 3
)

type cliOptions struct {
	app.Flags
	write          bool
	check          bool
	stdin          bool
	assumeFilename string
	rangeSpec      string
	debugTree      bool
	currencyColumn int
	paths          []string
}

// fileResult is the outcome of formatting one input.
type fileResult struct {
	name  string
	src   []byte
	out   []byte
	tree  string
	diags []syntax.Diagnostic
	code  int
	err   error
}

func (r fileResult) changed() bool { return r.out != nil && string(r.out) != string(r.src) }

func run(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, args []string) int {
	var opts cliOptions
	code := exitOK
	cmd := newRootCmd(&opts, func(cmd *cobra.Command) error {
		code = runFormat(cmd.Context(), stdin, stdout, stderr, opts)
		return nil
	})
	cmd.SetArgs(args)
	cmd.SetIn(stdin)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	if err := cmd.ExecuteContext(ctx); err != nil {
		writef(stderr, "ledgerfmt: %v\n\n%s", err, cmd.UsageString())
		return exitInternal
	}
	return code
}

func newRootCmd(opts *cliOptions, runE func(*cobra.Command) error) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledgerfmt [flags] file.beancount...",
		Short: "Format ledger journals",
		Long: `Format ledger journals, aligning posting amounts on the currency column.

With a single file the result is printed to stdout. Use -w to rewrite files in
place or --check to only report whether formatting would change them. Journals
with syntax errors are never rewritten.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(cmd *cobra.Command, args []string) error {
			return validateArgs(opts, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.paths = args
			return runE(cmd)
		},
	}
	opts.Flags.Register(cmd.Flags())
	f := cmd.Flags()
	f.BoolVarP(&opts.write, "write", "w", false, "write result in-place")
	f.BoolVar(&opts.check, "check", false, "exit non-zero if formatting changes are needed")
	f.BoolVar(&opts.stdin, "stdin", false, "read input from stdin")
	f.StringVar(&opts.assumeFilename, "assume-filename", "", "filename used in diagnostics for --stdin")
	f.StringVar(&opts.rangeSpec, "range", "", "optional byte range start:end (half-open)")
	f.BoolVar(&opts.debugTree, "debug-tree", false, "dump the syntax tree as an s-expression")
	f.IntVar(&opts.currencyColumn, "currency-column", 0, "column where aligned currencies start (overrides config)")
	return cmd
}

func validateArgs(opts *cliOptions, args []string) error {
	switch {
	case opts.stdin && opts.write:
		return errors.New("--write and --stdin may not be used together")
	case opts.check && opts.write:
		return errors.New("--check and --write may not be used together")
	case opts.stdin && len(args) > 0:
		return errors.New("positional file paths are not allowed with --stdin")
	case !opts.stdin && len(args) == 0:
		return errors.New("at least one input file path is required (or use --stdin)")
	case len(args) > 1 && !opts.write && !opts.check:
		return errors.New("formatting multiple files requires --write or --check")
	case len(args) > 1 && opts.rangeSpec != "":
		return errors.New("--range applies to a single file")
	case opts.currencyColumn < 0:
		return errors.New("--currency-column must not be negative")
	}
	return nil
}

func runFormat(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, opts cliOptions) int {
	cfg, err := opts.Load()
	if err != nil {
		writef(stderr, "ledgerfmt: %v\n", err)
		return exitInternal
	}
	if opts.currencyColumn > 0 {
		cfg.Format.CurrencyColumn = opts.currencyColumn
	}
	a, err := app.New(cfg, app.Options{})
	if err != nil {
		writef(stderr, "ledgerfmt: %v\n", err)
		return exitInternal
	}
	defer func() { _ = a.Close() }()

	var rangeSpan *text.Span
	if opts.rangeSpec != "" {
		sp, err := parseRangeFlag(opts.rangeSpec)
		if err != nil {
			writef(stderr, "ledgerfmt: invalid --range: %v\n", err)
			return exitInternal
		}
		rangeSpan = &sp
	}

	if opts.stdin {
		src, err := io.ReadAll(stdin)
		if err != nil {
			writef(stderr, "ledgerfmt: read stdin: %v\n", err)
			return exitInternal
		}
		name := opts.assumeFilename
		if name == "" {
			name = "<stdin>"
		}
		res := formatSource(ctx, a, name, src, rangeSpan)
		return report(stdout, stderr, opts, res)
	}

	results := make([]fileResult, len(opts.paths))
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, path := range opts.paths {
		g.Go(func() error {
			//nolint:gosec // CLI intentionally reads user-provided file paths.
			src, err := os.ReadFile(path)
			if err != nil {
				results[i] = fileResult{name: path, code: exitInternal, err: fmt.Errorf("read %s: %w", path, err)}
				return nil
			}
			results[i] = formatSource(ctx, a, path, src, rangeSpan)
			return nil
		})
	}
	_ = g.Wait()

	code := exitOK
	for _, res := range results {
		code = max(code, report(stdout, stderr, opts, res))
	}
	return code
}

func formatSource(ctx context.Context, a *app.App, name string, src []byte, rangeSpan *text.Span) fileResult {
	res := fileResult{name: name, src: src}
	p := a.Support.NewParser()
	defer p.Close()
	tree := p.StartParse(ctx, src, nil, nil).Finish()
	if tree.Root != nil {
		res.tree = syntax.Sexp(tree.Root)
	}

	if rangeSpan == nil {
		out, err := a.Support.Format(ctx, tree, src)
		res.diags = out.Diagnostics
		if err != nil {
			return failed(res, err)
		}
		res.out = out.Output
		return res
	}

	out, err := a.Support.FormatRange(ctx, tree, src, *rangeSpan)
	res.diags = out.Diagnostics
	if err != nil {
		return failed(res, err)
	}
	edited, err := text.ApplyEdits(src, out.Edits)
	if err != nil {
		return failed(res, fmt.Errorf("apply range edits: %w", err))
	}
	res.out = edited
	return res
}

func failed(res fileResult, err error) fileResult {
	res.err = err
	res.code = exitInternal
	if format.IsErrUnsafeToFormat(err) {
		res.code = exitUnsafe
	}
	return res
}

// report writes one result and returns its exit code.
func report(stdout, stderr io.Writer, opts cliOptions, res fileResult) int {
	if opts.debugTree && res.tree != "" {
		writef(stdout, "%s\n", res.tree)
	}
	if res.err != nil {
		if len(res.diags) > 0 {
			app.WriteDiagnostics(stderr, res.name, res.src, res.diags)
		}
		writef(stderr, "ledgerfmt: %s: %v\n", res.name, res.err)
		return res.code
	}

	switch {
	case opts.check:
		if res.changed() {
			writef(stderr, "ledgerfmt: %s needs formatting\n", res.name)
			return exitCheck
		}
	case opts.write:
		if res.changed() {
			if err := writeOutputFile(res.name, res.out); err != nil {
				writef(stderr, "ledgerfmt: write %s: %v\n", res.name, err)
				return exitInternal
			}
		}
	default:
		_, _ = stdout.Write(res.out)
	}
	return exitOK
}

func parseRangeFlag(s string) (text.Span, error) {
	startS, endS, ok := strings.Cut(s, ":")
	if !ok {
		return text.Span{}, errors.New("expected start:end")
	}
	start, err := strconv.Atoi(startS)
	if err != nil {
		return text.Span{}, fmt.Errorf("invalid start %q", startS)
	}
	end, err := strconv.Atoi(endS)
	if err != nil {
		return text.Span{}, fmt.Errorf("invalid end %q", endS)
	}
	return text.NewSpan(text.ByteOffset(start), text.ByteOffset(end))
}

func writeOutputFile(path string, data []byte) error {
	mode := os.FileMode(0o600)
	//nolint:gosec // CLI reads metadata for a user-specified output path.
	if st, err := os.Stat(path); err == nil {
		mode = st.Mode().Perm()
		if mode == 0 {
			mode = 0o600
		}
	}
	//nolint:gosec // CLI writes formatter output to a user-specified path.
	return os.WriteFile(path, data, mode)
}

func writef(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
