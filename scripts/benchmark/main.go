package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/use-agent/gallerydiscover/cache"
	"github.com/use-agent/gallerydiscover/canon"
	"github.com/use-agent/gallerydiscover/collector"
	"github.com/use-agent/gallerydiscover/config"
	"github.com/use-agent/gallerydiscover/domhtml"
	"github.com/use-agent/gallerydiscover/pattern"
	"github.com/use-agent/gallerydiscover/score"
)

// CLI flags
var (
	fixturesDir = flag.String("fixtures-dir", "scripts/benchmark/fixtures", "directory of saved HTML gallery pages")
	runs        = flag.Int("runs", 3, "number of runs per fixture for averaging")
	output      = flag.String("output", "benchmark-results.json", "JSON output file path")
)

type runResult struct {
	Run           int     `json:"run"`
	CollectMs     float64 `json:"collect_ms"`
	DetectMs      float64 `json:"detect_ms"`
	RecordCount   int     `json:"record_count"`
	PatternCount  int     `json:"pattern_count"`
	TopConfidence float64 `json:"top_confidence"`
	Error         string  `json:"error,omitempty"`
}

type fixtureAverages struct {
	CollectMs    float64 `json:"collect_ms"`
	DetectMs     float64 `json:"detect_ms"`
	RecordCount  float64 `json:"record_count"`
	PatternCount float64 `json:"pattern_count"`
}

type fixtureResult struct {
	File     string           `json:"file"`
	Runs     []runResult      `json:"runs"`
	Averages *fixtureAverages `json:"averages,omitempty"`
}

type benchmarkReport struct {
	Timestamp   string          `json:"timestamp"`
	FixturesDir string          `json:"fixtures_dir"`
	RunsPerFile int             `json:"runs_per_file"`
	Results     []fixtureResult `json:"results"`
}

// gallery-discover's benchmark harness times collector.Collect +
// pattern.Recognizer.Detect directly against saved HTML fixtures, in
// process — unlike the teacher's benchmark, which drove its own HTTP API
// to time a full navigate+clean round trip, there is no server here worth
// benchmarking through: the cost that matters is the discovery pipeline
// itself, not the browser.
func main() {
	flag.Parse()

	fmt.Println("=== Gallery Discovery Benchmark ===")
	fmt.Printf("Fixtures:  %s\n", *fixturesDir)
	fmt.Printf("Runs/file: %d\n", *runs)
	fmt.Printf("Output:    %s\n", *output)
	fmt.Println()

	files, err := fixtureFiles(*fixturesDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot list fixtures in %s: %v\n", *fixturesDir, err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintf(os.Stderr, "Error: no .html fixtures found in %s\n", *fixturesDir)
		os.Exit(1)
	}

	cfg := config.Load()
	c := canon.New(cfg.Collector.StripQuery, cfg.Collector.ImageExtensions)
	col := collector.New(c, cfg.Collector.MaxStyleProbe)
	scorer := score.New(cfg.Scorer, cache.New(cfg.Cache.MaxEntries))
	rec := pattern.New(cfg.Pattern, scorer)

	report := benchmarkReport{
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		FixturesDir: *fixturesDir,
		RunsPerFile: *runs,
	}

	for _, f := range files {
		fmt.Printf("Benchmarking %s ...\n", filepath.Base(f))
		fr := fixtureResult{File: f}

		html, err := os.ReadFile(f)
		if err != nil {
			fmt.Printf("  FAILED: %v\n", err)
			report.Results = append(report.Results, fr)
			continue
		}

		for i := 1; i <= *runs; i++ {
			fmt.Printf("  Run %d/%d ... ", i, *runs)
			rr := benchmarkFixture(col, rec, string(html), i)
			if rr.Error == "" {
				fmt.Printf("OK  collect=%.1fms detect=%.1fms records=%d patterns=%d\n",
					rr.CollectMs, rr.DetectMs, rr.RecordCount, rr.PatternCount)
			} else {
				fmt.Printf("FAILED: %s\n", rr.Error)
			}
			fr.Runs = append(fr.Runs, rr)
		}

		fr.Averages = computeAverages(fr.Runs)
		report.Results = append(report.Results, fr)
		fmt.Println()
	}

	printTable(report.Results)

	if err := writeJSON(*output, report); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing JSON output: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nDetailed results written to %s\n", *output)
}

func fixtureFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".html") {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	return out, nil
}

func benchmarkFixture(col *collector.Collector, rec *pattern.Recognizer, html string, run int) runResult {
	rr := runResult{Run: run}

	dom, err := domhtml.New(html, "https://benchmark.local/gallery")
	if err != nil {
		rr.Error = fmt.Sprintf("parse error: %v", err)
		return rr
	}

	ctx := context.Background()
	start := time.Now()
	result, err := col.Collect(dom, "https://benchmark.local/gallery")
	collectElapsed := time.Since(start)
	if err != nil {
		rr.Error = fmt.Sprintf("collect error: %v", err)
		return rr
	}

	start = time.Now()
	patterns, err := rec.Detect(ctx, dom, "https://benchmark.local/gallery")
	detectElapsed := time.Since(start)
	if err != nil {
		rr.Error = fmt.Sprintf("detect error: %v", err)
		return rr
	}

	rr.CollectMs = float64(collectElapsed.Microseconds()) / 1000
	rr.DetectMs = float64(detectElapsed.Microseconds()) / 1000
	rr.RecordCount = len(result.Records)
	rr.PatternCount = len(patterns)
	if len(patterns) > 0 {
		rr.TopConfidence = patterns[0].Confidence
	}
	return rr
}

func computeAverages(runs []runResult) *fixtureAverages {
	var successCount int
	var avg fixtureAverages

	for _, r := range runs {
		if r.Error != "" {
			continue
		}
		successCount++
		avg.CollectMs += r.CollectMs
		avg.DetectMs += r.DetectMs
		avg.RecordCount += float64(r.RecordCount)
		avg.PatternCount += float64(r.PatternCount)
	}

	if successCount == 0 {
		return nil
	}

	n := float64(successCount)
	avg.CollectMs /= n
	avg.DetectMs /= n
	avg.RecordCount /= n
	avg.PatternCount /= n
	return &avg
}

func printTable(results []fixtureResult) {
	fmt.Println(strings.Repeat("─", 85))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Fixture\tAvg Collect\tAvg Detect\tAvg Records\tAvg Patterns\n")
	fmt.Fprintf(w, "───────\t───────────\t──────────\t───────────\t────────────\n")

	for _, r := range results {
		if r.Averages == nil {
			fmt.Fprintf(w, "%s\tFAILED\t-\t-\t-\n", filepath.Base(r.File))
			continue
		}
		fmt.Fprintf(w, "%s\t%.1fms\t%.1fms\t%.1f\t%.1f\n",
			filepath.Base(r.File),
			r.Averages.CollectMs,
			r.Averages.DetectMs,
			r.Averages.RecordCount,
			r.Averages.PatternCount,
		)
	}

	w.Flush()
	fmt.Println(strings.Repeat("─", 85))
}

func writeJSON(path string, report benchmarkReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
