package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/kozaktomas/selfie-search/internal/facematch"
	"github.com/kozaktomas/selfie-search/internal/gallery"
)

var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Run searches for a directory of labelled selfies and report the results",
	Long: `Search an event with every selfie in a directory and write a YAML report.

Selfies are grouped by the person label taken from the file name, so
"jana-novakova_01.jpg" and "Jana Nováková 2.png" count as the same person.
For each label the report lists tier counts, refinement cycles, latency and
how many tier-1 photos every selfie of that person agreed on.

Examples:
  selfie-search eval --event 8f3a2c --dir ./selfies
  selfie-search eval --event 8f3a2c --dir ./selfies --out report.yaml`,
	RunE: runEval,
}

func init() {
	rootCmd.AddCommand(evalCmd)

	evalCmd.Flags().String("event", "", "Event hash (required)")
	evalCmd.Flags().String("dir", "", "Directory with selfie images (required)")
	evalCmd.Flags().String("out", "", "Write the report to this file instead of stdout")
	_ = evalCmd.MarkFlagRequired("event")
	_ = evalCmd.MarkFlagRequired("dir")
}

var selfieExtensions = []string{".jpg", ".jpeg", ".png", ".webp"}

type evalRun struct {
	File      string   `yaml:"file"`
	Tier1     int      `yaml:"tier1"`
	Tier2     int      `yaml:"tier2"`
	Cycles    int      `yaml:"cycles"`
	LatencyMs int64    `yaml:"latency_ms"`
	Error     string   `yaml:"error,omitempty"`
	tier1IDs  []string
}

type labelReport struct {
	Label         string    `yaml:"label"`
	Selfies       int       `yaml:"selfies"`
	Errors        int       `yaml:"errors"`
	MeanTier1     float64   `yaml:"mean_tier1"`
	MeanTier2     float64   `yaml:"mean_tier2"`
	MeanCycles    float64   `yaml:"mean_cycles"`
	MeanLatencyMs float64   `yaml:"mean_latency_ms"`
	StableTier1   int       `yaml:"stable_tier1"` // tier-1 photos found by every successful run
	Runs          []evalRun `yaml:"runs"`
}

type evalReport struct {
	Event       string        `yaml:"event"`
	GeneratedAt time.Time     `yaml:"generated_at"`
	Selfies     int           `yaml:"selfies"`
	Errors      int           `yaml:"errors"`
	Labels      []labelReport `yaml:"labels"`
}

// collectSelfies returns the image files of dir, sorted by name.
func collectSelfies(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading selfie directory: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if slices.Contains(selfieExtensions, strings.ToLower(filepath.Ext(e.Name()))) {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	slices.Sort(files)
	return files, nil
}

// selfieLabel derives the person label from a selfie path.
func selfieLabel(path string) string {
	base := filepath.Base(path)
	return facematch.NormalizeLabel(strings.TrimSuffix(base, filepath.Ext(base)))
}

func newEvalRun(path string, resp *gallery.SearchResponse, err error) evalRun {
	run := evalRun{File: filepath.Base(path)}
	if err != nil {
		run.Error = err.Error()
		return run
	}
	run.Tier1 = len(resp.Tier1)
	run.Tier2 = len(resp.Tier2)
	run.Cycles = resp.Cycles
	run.LatencyMs = resp.SearchTimeMs
	for i := range resp.Tier1 {
		run.tier1IDs = append(run.tier1IDs, resp.Tier1[i].MediaID)
	}
	return run
}

// buildReport groups runs by label. Labels are sorted alphabetically.
func buildReport(event string, runs map[string][]evalRun) *evalReport {
	report := &evalReport{Event: event, GeneratedAt: time.Now().UTC()}

	labels := make([]string, 0, len(runs))
	for label := range runs {
		labels = append(labels, label)
	}
	slices.Sort(labels)

	for _, label := range labels {
		lr := labelReport{Label: label, Runs: runs[label], Selfies: len(runs[label])}
		var ok int
		var stable map[string]bool
		for _, run := range lr.Runs {
			if run.Error != "" {
				lr.Errors++
				continue
			}
			ok++
			lr.MeanTier1 += float64(run.Tier1)
			lr.MeanTier2 += float64(run.Tier2)
			lr.MeanCycles += float64(run.Cycles)
			lr.MeanLatencyMs += float64(run.LatencyMs)

			found := make(map[string]bool, len(run.tier1IDs))
			for _, id := range run.tier1IDs {
				if stable == nil || stable[id] {
					found[id] = true
				}
			}
			stable = found
		}
		if ok > 0 {
			lr.MeanTier1 /= float64(ok)
			lr.MeanTier2 /= float64(ok)
			lr.MeanCycles /= float64(ok)
			lr.MeanLatencyMs /= float64(ok)
		}
		lr.StableTier1 = len(stable)

		report.Selfies += lr.Selfies
		report.Errors += lr.Errors
		report.Labels = append(report.Labels, lr)
	}
	return report
}

func runEval(cmd *cobra.Command, args []string) error {
	eventHash := mustGetString(cmd, "event")
	files, err := collectSelfies(mustGetString(cmd, "dir"))
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no selfies (%s) found", strings.Join(selfieExtensions, ", "))
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	bar := progressbar.NewOptions(len(files),
		progressbar.OptionSetDescription("Searching"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("selfies"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	ctx := context.Background()
	runs := make(map[string][]evalRun)
	for _, path := range files {
		var resp *gallery.SearchResponse
		data, err := os.ReadFile(path)
		if err == nil {
			resp, err = a.service.Search(ctx, gallery.SearchRequest{Selfie: data, EventHash: eventHash})
		}
		if err != nil {
			a.logger.Debug("selfie search failed", zap.String("file", path), zap.Error(err))
		}
		label := selfieLabel(path)
		runs[label] = append(runs[label], newEvalRun(path, resp, err))
		_ = bar.Add(1)
	}
	_ = bar.Finish()

	out, err := yaml.Marshal(buildReport(eventHash, runs))
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}

	if path := mustGetString(cmd, "out"); path != "" {
		if err := os.WriteFile(path, out, 0o644); err != nil {
			return fmt.Errorf("writing report: %w", err)
		}
		fmt.Fprintf(os.Stderr, "\nReport written to %s\n", path)
		return nil
	}
	_, err = os.Stdout.Write(out)
	return err
}
