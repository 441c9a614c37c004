package main

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"example.com/segdgate/internal/common"
	"example.com/segdgate/internal/manifest"
	"example.com/segdgate/internal/rules"
	"example.com/segdgate/internal/segd"
)

type batchResult struct {
	Path     string
	Revision string
	Traces   int
	Failed   int
	Pass     *bool
	Err      error
}

// collectRecords expands directories into the SEG-D files below them.
func collectRecords(args []string) ([]string, error) {
	var out []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			out = append(out, arg)
			continue
		}
		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			switch manifest.Classify(path) {
			case manifest.TypeSEGD, manifest.TypeSEGDZstd:
				out = append(out, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	sort.Strings(out)
	return out, nil
}

// runBatch decodes paths on up to workers goroutines. With a rule pack
// every file is also validated and its reports written to a directory
// per file under outDir.
// Results keep the order of paths.
func runBatch(ctx context.Context, paths []string, workers int, rp *rules.RulePack, outDir string, m *common.Metrics) []batchResult {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	results := make([]batchResult, len(paths))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < min(workers, len(paths)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = batchOne(ctx, paths[i], rp, outDir, m)
			}
		}()
	}
	for i := range paths {
		if ctx.Err() != nil {
			results[i] = batchResult{Path: paths[i], Err: ctx.Err()}
			continue
		}
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return results
}

func batchOne(ctx context.Context, path string, rp *rules.RulePack, outDir string, m *common.Metrics) batchResult {
	res := batchResult{Path: path}
	data, err := common.ReadInput(path)
	if err != nil {
		res.Err = err
		return res
	}
	var opts []segd.Option
	if m != nil {
		opts = append(opts, segd.WithMetrics(m))
	}
	f, err := segd.DecodeContext(ctx, data, decodeOptions(opts...)...)
	if m != nil {
		m.IncFile()
	}
	if err != nil {
		res.Err = err
	} else {
		res.Revision = fmt.Sprintf("%d.%d", f.Profile.Revision, f.Profile.Minor)
		res.Traces = len(f.Records)
		res.Failed = len(f.Failed())
	}
	if rp == nil {
		return res
	}
	dir := filepath.Join(outDir, batchDirName(path))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		res.Err = err
		return res
	}
	v, err := runValidation(path, *rp,
		filepath.Join(dir, "diagnostics.ndjson"),
		filepath.Join(dir, "acceptance.json"),
		filepath.Join(dir, "acceptance.pdf"), true)
	if err != nil {
		res.Err = err
		return res
	}
	pass := v.Report.Summary.Pass
	res.Pass = &pass
	return res
}

// batchDirName keeps output directories distinct for files that share a
// base name in different input directories.
func batchDirName(path string) string {
	base := filepath.Base(path)
	dir := filepath.Base(filepath.Dir(path))
	if dir == "." || dir == string(filepath.Separator) {
		return base
	}
	return dir + "_" + base
}

func writeBatchTable(out io.Writer, results []batchResult) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "FILE\tREVISION\tTRACES\tFAILED\tACCEPTANCE\tERROR")
	for _, r := range results {
		acc := "-"
		if r.Pass != nil {
			acc = "FAIL"
			if *r.Pass {
				acc = "PASS"
			}
		}
		msg := ""
		if r.Err != nil {
			msg = r.Err.Error()
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\n", r.Path, r.Revision, r.Traces, r.Failed, acc, msg)
	}
	return w.Flush()
}

func batchCmd() *cli.Command {
	var (
		workers   int
		validate  bool
		rulesPath string
		outDir    string
		progress  bool
	)
	return &cli.Command{
		Name:      "batch",
		Usage:     "Decode many records in parallel",
		ArgsUsage: "<file or directory>...",
		Flags: append([]cli.Flag{
			&cli.IntFlag{Name: "workers", Aliases: []string{"j"}, Usage: "parallel decodes", Value: runtime.NumCPU(), Destination: &workers},
			&cli.BoolFlag{Name: "validate", Usage: "also run the acceptance rules", Destination: &validate},
			&cli.StringFlag{Name: "rules", Usage: "rule pack file (implies --validate)", Destination: &rulesPath},
			&cli.StringFlag{Name: "out-dir", Usage: "report directory for --validate", Value: "out", Destination: &outDir},
			&cli.BoolFlag{Name: "progress", Usage: "display progress on stderr", Destination: &progress},
		}, decodeFlags()...),
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.NArg() == 0 {
				return cli.Exit("batch needs at least one file or directory", 1)
			}
			paths, err := collectRecords(c.Args().Slice())
			if err != nil {
				return err
			}
			if len(paths) == 0 {
				return cli.Exit("no SEG-D files found", 1)
			}
			var rp *rules.RulePack
			if validate || rulesPath != "" {
				pack, err := resolveRulePack(rulesPath, "", "")
				if err != nil {
					return fmt.Errorf("resolve rulepack: %w", err)
				}
				rp = &pack
			}
			m := common.NewMetrics()
			for _, p := range paths {
				if info, err := os.Stat(p); err == nil {
					m.AddTotalBytes(info.Size())
				}
			}
			m.Start()
			var stop func()
			if progress {
				stop = common.StartProgressPrinter(os.Stderr, m, 500*time.Millisecond)
			}
			results := runBatch(ctx, paths, workers, rp, outDir, m)
			if stop != nil {
				stop()
			}
			m.Stop()
			if err := writeBatchTable(os.Stdout, results); err != nil {
				return err
			}
			failed := 0
			for _, r := range results {
				if r.Err != nil || r.Failed > 0 || (r.Pass != nil && !*r.Pass) {
					failed++
				}
			}
			if failed > 0 {
				return cli.Exit(fmt.Sprintf("%d of %d files had problems", failed, len(results)), 2)
			}
			return nil
		},
	}
}
