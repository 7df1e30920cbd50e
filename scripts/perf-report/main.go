// Package main measures parse, incremental reparse and format latency over
// the journal corpus, plus snapshot store memory stability.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/ledgerweaver/ledgerweaver/internal/app"
	"github.com/ledgerweaver/ledgerweaver/internal/format"
	"github.com/ledgerweaver/ledgerweaver/internal/language"
	"github.com/ledgerweaver/ledgerweaver/internal/lsp"
	"github.com/ledgerweaver/ledgerweaver/internal/syntax"
	"github.com/ledgerweaver/ledgerweaver/internal/testutil"
)

const (
	setValid    = "valid"
	setInvalid  = "invalid"
	setExternal = "external"

	// Matches the snapshot store.
	fragmentMinGap = 128
)

type config struct {
	app.Flags
	externalRoot   string
	iterations     int
	warmup         int
	jsonPath       string
	memIters       int
	memSampleEvery int
	memFreeOS      bool
}

type corpusFile struct {
	Path      string `json:"path"`
	Set       string `json:"set"`
	Bytes     int    `json:"bytes"`
	Malformed bool   `json:"malformed"`
	src       []byte
}

type sampleStats struct {
	Samples int     `json:"samples"`
	P50MS   float64 `json:"p50_ms"`
	P95MS   float64 `json:"p95_ms"`
	MinMS   float64 `json:"min_ms"`
	MaxMS   float64 `json:"max_ms"`
	MeanMS  float64 `json:"mean_ms"`
}

type benchSetReport struct {
	Set          string      `json:"set"`
	Files        int         `json:"files"`
	Samples      int         `json:"samples"`
	SkippedFiles int         `json:"skipped_files,omitempty"`
	Stats        sampleStats `json:"stats"`
}

type memSample struct {
	Iteration int    `json:"iteration"`
	HeapAlloc uint64 `json:"heap_alloc"`
	HeapInuse uint64 `json:"heap_inuse"`
	NumGC     uint32 `json:"num_gc"`
}

type memoryReport struct {
	Iterations          int         `json:"iterations"`
	DocCount            int         `json:"doc_count"`
	Samples             []memSample `json:"samples"`
	HeapInuseGrowth     int64       `json:"heap_inuse_growth"`
	UnboundedGrowthHint bool        `json:"unbounded_growth_hint"`
}

type report struct {
	GeneratedAt  time.Time        `json:"generated_at"`
	GoVersion    string           `json:"go_version"`
	GOOS         string           `json:"goos"`
	GOARCH       string           `json:"goarch"`
	CPUs         int              `json:"cpus"`
	Engine       string           `json:"engine"`
	Degraded     bool             `json:"degraded"`
	CorpusCounts map[string]int   `json:"corpus_counts"`
	ParseBench   []benchSetReport `json:"parse_bench"`
	ReparseBench []benchSetReport `json:"reparse_bench"`
	FormatBench  []benchSetReport `json:"format_bench"`
	Memory       memoryReport     `json:"memory"`
	Warnings     []string         `json:"warnings,omitempty"`
}

func main() {
	cfg := parseFlags()
	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "perf-report: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() config {
	var cfg config
	flags := pflag.CommandLine
	cfg.Register(flags)
	flags.StringVar(&cfg.externalRoot, "corpus", "", "optional directory of additional .beancount journals")
	flags.IntVar(&cfg.iterations, "iterations", 15, "benchmark iterations per file")
	flags.IntVar(&cfg.warmup, "warmup", 2, "warmup iterations per file")
	flags.StringVar(&cfg.jsonPath, "json", "", "optional JSON report output path")
	flags.IntVar(&cfg.memIters, "memory-iterations", 300, "snapshot store open/change/close loop iterations")
	flags.IntVar(&cfg.memSampleEvery, "memory-sample-every", 25, "memory sample cadence")
	flags.BoolVar(&cfg.memFreeOS, "memory-free-os", false, "call debug.FreeOSMemory before memory samples")
	pflag.Parse()
	return cfg
}

func run(cfg config) error {
	switch {
	case cfg.iterations <= 0:
		return errors.New("iterations must be > 0")
	case cfg.warmup < 0:
		return errors.New("warmup must be >= 0")
	case cfg.memIters <= 0 || cfg.memSampleEvery <= 0:
		return errors.New("memory-iterations and memory-sample-every must be > 0")
	}

	conf, err := cfg.Load()
	if err != nil {
		return err
	}
	a, err := app.New(conf, app.Options{})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	ctx := context.Background()
	corpus, warnings, err := buildCorpus(cfg.externalRoot)
	if err != nil {
		return err
	}
	degraded := a.Degraded(ctx)
	if degraded {
		warnings = append(warnings, "grammar engine unavailable; timings measure the degraded path only")
	}

	rep := report{
		GeneratedAt:  time.Now().UTC(),
		GoVersion:    runtime.Version(),
		GOOS:         runtime.GOOS,
		GOARCH:       runtime.GOARCH,
		CPUs:         runtime.NumCPU(),
		Engine:       conf.Engine.Kind,
		Degraded:     degraded,
		CorpusCounts: map[string]int{},
	}
	for _, set := range sets() {
		files := corpus[set]
		rep.CorpusCounts[set] = len(files)
		if len(files) == 0 {
			continue
		}
		rep.ParseBench = append(rep.ParseBench, bench(set, files, cfg, func(f corpusFile) (bool, error) {
			return true, timeParse(ctx, a.Support, f.src)
		}))
		rep.ReparseBench = append(rep.ReparseBench, bench(set, files, cfg, func(f corpusFile) (bool, error) {
			return true, timeReparse(ctx, a.Support, f.src)
		}))
		rep.FormatBench = append(rep.FormatBench, benchFormat(ctx, a.Support, set, files, cfg))
	}

	mem, memWarnings, err := runMemoryLoop(ctx, a.Support, corpus, cfg)
	if err != nil {
		return err
	}
	rep.Memory = mem
	rep.Warnings = append(warnings, memWarnings...)

	printReport(rep)
	if cfg.jsonPath != "" {
		if err := writeJSON(cfg.jsonPath, rep); err != nil {
			return err
		}
		fmt.Printf("\nJSON report written to %s\n", cfg.jsonPath)
	}
	return nil
}

func sets() []string { return []string{setValid, setInvalid, setExternal} }

func buildCorpus(externalRoot string) (map[string][]corpusFile, []string, error) {
	corpus := map[string][]corpusFile{}
	var warnings []string
	add := func(set, path string, malformed bool) error {
		//nolint:gosec // perf tool reads corpus paths supplied by the user.
		src, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		corpus[set] = append(corpus[set], corpusFile{Path: path, Set: set, Bytes: len(src), Malformed: malformed, src: src})
		return nil
	}

	for _, set := range []string{setValid, setInvalid} {
		files, err := testutil.CorpusFiles(set)
		if err != nil {
			return nil, nil, err
		}
		for _, path := range files {
			if err := add(set, path, set == setInvalid); err != nil {
				return nil, nil, fmt.Errorf("repo fixture %s: %w", path, err)
			}
		}
	}

	if strings.TrimSpace(externalRoot) == "" {
		warnings = append(warnings, "external corpus not provided; breadth is limited to repo fixtures")
		return corpus, warnings, nil
	}
	err := filepath.WalkDir(externalRoot, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".git") {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != testutil.JournalExt {
			return nil
		}
		return add(setExternal, path, false)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("walk corpus: %w", err)
	}
	sort.Slice(corpus[setExternal], func(i, j int) bool {
		return corpus[setExternal][i].Bytes < corpus[setExternal][j].Bytes
	})
	return corpus, warnings, nil
}

// bench times fn over every file. fn reports false to skip a file.
func bench(set string, files []corpusFile, cfg config, fn func(corpusFile) (bool, error)) benchSetReport {
	rep := benchSetReport{Set: set, Files: len(files)}
	var samples []time.Duration
	for _, f := range files {
		ok := true
		for range cfg.warmup {
			if ok, _ = fn(f); !ok {
				break
			}
		}
		if !ok {
			rep.SkippedFiles++
			continue
		}
		for range cfg.iterations {
			start := time.Now()
			if _, err := fn(f); err != nil {
				rep.SkippedFiles++
				break
			}
			samples = append(samples, time.Since(start))
		}
	}
	rep.Samples = len(samples)
	rep.Stats = durationStats(samples)
	return rep
}

func timeParse(ctx context.Context, support *language.Support, src []byte) error {
	p := support.NewParser()
	defer p.Close()
	_ = p.StartParse(ctx, src, nil, nil).Finish()
	return nil
}

// timeReparse parses src, inserts a line and reparses from the old tree's
// fragments.
func timeReparse(ctx context.Context, support *language.Support, src []byte) error {
	p := support.NewParser()
	defer p.Close()
	tree := p.StartParse(ctx, src, nil, nil).Finish()
	next, edit := insertComment(src)
	frags := syntax.ApplyChanges(syntax.FragmentsFromTree(tree), []syntax.Edit{edit}, fragmentMinGap)
	_ = p.StartParse(ctx, next, frags, nil).Finish()
	return nil
}

// insertComment adds a comment line after the middle line of src.
func insertComment(src []byte) ([]byte, syntax.Edit) {
	const line = "; perf-reparse\n"
	at := len(src) / 2
	if nl := strings.IndexByte(string(src[at:]), '\n'); nl >= 0 {
		at += nl + 1
	} else {
		at = len(src)
	}
	next := make([]byte, 0, len(src)+len(line))
	next = append(next, src[:at]...)
	next = append(next, line...)
	next = append(next, src[at:]...)
	return next, syntax.Edit{FromA: at, ToA: at, FromB: at, ToB: at + len(line)}
}

func benchFormat(ctx context.Context, support *language.Support, set string, files []corpusFile, cfg config) benchSetReport {
	return bench(set, files, cfg, func(f corpusFile) (bool, error) {
		p := support.NewParser()
		defer p.Close()
		tree := p.StartParse(ctx, f.src, nil, nil).Finish()
		_, err := support.Format(ctx, tree, f.src)
		if format.IsErrUnsafeToFormat(err) {
			return false, err
		}
		return true, err
	})
}

func runMemoryLoop(ctx context.Context, support *language.Support, corpus map[string][]corpusFile, cfg config) (memoryReport, []string, error) {
	var docs []corpusFile
	for _, set := range sets() {
		if len(corpus[set]) > 0 {
			docs = append(docs, corpus[set][0])
		}
	}
	if len(docs) == 0 {
		return memoryReport{}, nil, errors.New("no documents for memory loop")
	}

	store := lsp.NewSnapshotStore(support)
	defer store.CloseAll()

	var samples []memSample
	record := func(iter int) {
		runtime.GC()
		if cfg.memFreeOS {
			debug.FreeOSMemory()
		}
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		samples = append(samples, memSample{Iteration: iter, HeapAlloc: ms.HeapAlloc, HeapInuse: ms.HeapInuse, NumGC: ms.NumGC})
	}
	record(0)
	for iter := 1; iter <= cfg.memIters; iter++ {
		for i, d := range docs {
			uri := fmt.Sprintf("file:///perf/%d%s", i, testutil.JournalExt)
			changed, _ := insertComment(d.src)
			if _, err := store.Open(ctx, uri, 1, d.src); err != nil {
				return memoryReport{}, nil, fmt.Errorf("memory loop open: %w", err)
			}
			if _, err := store.Change(ctx, uri, 2, []lsp.ContentChange{{Text: string(changed)}}); err != nil {
				return memoryReport{}, nil, fmt.Errorf("memory loop change: %w", err)
			}
			if _, err := store.Change(ctx, uri, 3, []lsp.ContentChange{{Text: string(d.src)}}); err != nil {
				return memoryReport{}, nil, fmt.Errorf("memory loop revert: %w", err)
			}
			store.Close(uri)
		}
		if iter%cfg.memSampleEvery == 0 || iter == cfg.memIters {
			record(iter)
		}
	}

	rep := memoryReport{Iterations: cfg.memIters, DocCount: len(docs), Samples: samples}
	var warnings []string
	if len(samples) >= 2 {
		rep.HeapInuseGrowth = int64(samples[len(samples)-1].HeapInuse) - int64(samples[0].HeapInuse)
		// 16 MiB after forced GC.
		rep.UnboundedGrowthHint = len(samples) >= 4 && rep.HeapInuseGrowth > 16<<20
	}
	if rep.UnboundedGrowthHint {
		warnings = append(warnings, "heap in use kept growing across the memory loop")
	}
	return rep, warnings, nil
}

func durationStats(samples []time.Duration) sampleStats {
	if len(samples) == 0 {
		return sampleStats{}
	}
	ns := make([]int64, len(samples))
	var sum int64
	for i, d := range samples {
		ns[i] = d.Nanoseconds()
		sum += ns[i]
	}
	slices.Sort(ns)
	return sampleStats{
		Samples: len(samples),
		P50MS:   nanosToMS(quantile(ns, 0.50)),
		P95MS:   nanosToMS(quantile(ns, 0.95)),
		MinMS:   nanosToMS(ns[0]),
		MaxMS:   nanosToMS(ns[len(ns)-1]),
		MeanMS:  nanosToMS(sum / int64(len(ns))),
	}
}

func quantile(sorted []int64, q float64) int64 {
	idx := int(float64(len(sorted)-1) * min(max(q, 0), 1))
	return sorted[idx]
}

func nanosToMS(ns int64) float64 {
	return float64(ns) / float64(time.Millisecond)
}

func printReport(rep report) {
	fmt.Printf("Ledgerweaver Performance Report\n")
	fmt.Printf("Generated: %s\n", rep.GeneratedAt.Format(time.RFC3339))
	fmt.Printf("Go: %s | %s/%s | CPUs=%d | engine=%s degraded=%v\n", rep.GoVersion, rep.GOOS, rep.GOARCH, rep.CPUs, rep.Engine, rep.Degraded)
	fmt.Println()
	fmt.Println("Corpus sets")
	for _, set := range sets() {
		fmt.Printf("- %-9s files=%3d\n", set, rep.CorpusCounts[set])
	}
	if len(rep.Warnings) > 0 {
		fmt.Println()
		fmt.Println("Warnings")
		for _, w := range rep.Warnings {
			fmt.Printf("- %s\n", w)
		}
	}
	fmt.Println()
	printBenchTable("Full parse (warm)", rep.ParseBench)
	fmt.Println()
	printBenchTable("Parse + incremental reparse after one inserted line", rep.ReparseBench)
	fmt.Println()
	printBenchTable("Parse + format document", rep.FormatBench)
	fmt.Println()
	fmt.Println("Snapshot store memory loop (open/change/close)")
	fmt.Printf("iterations=%d docs=%d heap_inuse_growth=%d unbounded_growth_hint=%v\n",
		rep.Memory.Iterations, rep.Memory.DocCount, rep.Memory.HeapInuseGrowth, rep.Memory.UnboundedGrowthHint)
}

func printBenchTable(title string, rows []benchSetReport) {
	fmt.Println(title)
	fmt.Println("set        files samples  p50(ms)  p95(ms)  mean(ms)   min    max  skipped")
	for _, r := range rows {
		fmt.Printf("%-10s %5d %7d %8.2f %8.2f %8.2f %6.2f %6.2f %7d\n",
			r.Set, r.Files, r.Samples, r.Stats.P50MS, r.Stats.P95MS, r.Stats.MeanMS, r.Stats.MinMS, r.Stats.MaxMS, r.SkippedFiles)
	}
}

func writeJSON(path string, rep report) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	b, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(b, '\n'), 0o600)
}
