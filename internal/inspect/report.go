// Package inspect renders the journal record of one run for `hype runs show`.
package inspect

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mattjoyce/hype/internal/journal"
)

// RunReader is the slice of the journal a report needs.
type RunReader interface {
	GetRun(ctx context.Context, id string) (*journal.Run, error)
	Scenes(ctx context.Context, runID string) ([]journal.Scene, error)
}

// Report is the structured JSON representation of a run report.
type Report struct {
	Run      journal.Run  `json:"run"`
	Duration string       `json:"duration,omitempty"`
	Emitted  int          `json:"emitted"`
	Failed   []uint32     `json:"failed"`
	Skipped  []uint32     `json:"skipped"`
	Bytes    int          `json:"bytes"`
	Latency  LatencyStats `json:"latency_ms"`
	Inputs   []InputShare `json:"inputs"`
}

// LatencyStats summarises dispatch-to-emit latency of emitted scenes.
type LatencyStats struct {
	Min float64 `json:"min"`
	Avg float64 `json:"avg"`
	Max float64 `json:"max"`
}

// InputShare is how many scenes one collector input delivered.
type InputShare struct {
	Input  string `json:"input"`
	Scenes int    `json:"scenes"`
	Bytes  int    `json:"bytes"`
}

// Gather loads a run and its scene log and summarises them.
func Gather(ctx context.Context, store RunReader, runID string) (*Report, error) {
	if strings.TrimSpace(runID) == "" {
		return nil, fmt.Errorf("run id is required")
	}
	run, err := store.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load run: %w", err)
	}
	scenes, err := store.Scenes(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load scenes: %w", err)
	}
	return summarize(*run, scenes), nil
}

func summarize(run journal.Run, scenes []journal.Scene) *Report {
	r := &Report{Run: run, Failed: []uint32{}, Skipped: []uint32{}, Inputs: []InputShare{}}
	if run.FinishedAt != nil {
		r.Duration = run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond).String()
	}

	shares := make(map[string]*InputShare)
	var latencySum float64
	for _, sc := range scenes {
		switch sc.Status {
		case journal.SceneSkipped:
			r.Skipped = append(r.Skipped, sc.Index)
			continue
		case journal.SceneFailed:
			r.Failed = append(r.Failed, sc.Index)
		default:
			r.Emitted++
			latencySum += sc.LatencyMS
			if r.Emitted == 1 || sc.LatencyMS < r.Latency.Min {
				r.Latency.Min = sc.LatencyMS
			}
			if sc.LatencyMS > r.Latency.Max {
				r.Latency.Max = sc.LatencyMS
			}
		}
		r.Bytes += sc.Bytes
		if sc.Input == "" {
			continue
		}
		share, ok := shares[sc.Input]
		if !ok {
			share = &InputShare{Input: sc.Input}
			shares[sc.Input] = share
		}
		share.Scenes++
		share.Bytes += sc.Bytes
	}
	if r.Emitted > 0 {
		r.Latency.Avg = latencySum / float64(r.Emitted)
	}

	for _, s := range shares {
		r.Inputs = append(r.Inputs, *s)
	}
	sort.Slice(r.Inputs, func(i, j int) bool { return r.Inputs[i].Input < r.Inputs[j].Input })
	return r
}

// BuildReport renders a terminal-friendly report for a run.
func BuildReport(ctx context.Context, store RunReader, runID string) (string, error) {
	report, err := Gather(ctx, store, runID)
	if err != nil {
		return "", err
	}

	run := report.Run
	var out strings.Builder
	fmt.Fprintf(&out, "Run Report\n")
	fmt.Fprintf(&out, "Run ID      : %s\n", run.ID)
	fmt.Fprintf(&out, "Source      : %s\n", run.Source)
	fmt.Fprintf(&out, "Status      : %s\n", run.Status)
	fmt.Fprintf(&out, "Started     : %s\n", run.StartedAt.Format(time.RFC3339))
	if report.Duration != "" {
		fmt.Fprintf(&out, "Duration    : %s\n", report.Duration)
	}
	fmt.Fprintf(&out, "Group size  : %d\n", run.GroupSize)
	fmt.Fprintf(&out, "Workers     : %d\n", run.Workers)
	fmt.Fprintf(&out, "Frames      : %d\n", run.Frames)
	fmt.Fprintf(&out, "Scenes      : %d emitted, %d failed, %d skipped\n", report.Emitted, len(report.Failed), len(report.Skipped))
	fmt.Fprintf(&out, "Bytes       : %d\n", report.Bytes)
	if run.LastError != nil {
		fmt.Fprintf(&out, "Last error  : %s\n", *run.LastError)
	}
	fmt.Fprintf(&out, "\n")

	if report.Emitted > 0 {
		fmt.Fprintf(&out, "Latency (ms): min %.1f  avg %.1f  max %.1f\n\n",
			report.Latency.Min, report.Latency.Avg, report.Latency.Max)
	}

	if len(report.Inputs) > 0 {
		fmt.Fprintf(&out, "Inputs\n")
		for _, in := range report.Inputs {
			fmt.Fprintf(&out, "  %-10s %5d scenes %10d bytes\n", in.Input, in.Scenes, in.Bytes)
		}
		fmt.Fprintf(&out, "\n")
	}

	if len(report.Failed) > 0 {
		fmt.Fprintf(&out, "Failed scenes  : %s\n", joinIndices(report.Failed))
	}
	if len(report.Skipped) > 0 {
		fmt.Fprintf(&out, "Skipped scenes : %s\n", joinIndices(report.Skipped))
	}

	return strings.TrimRight(out.String(), "\n") + "\n", nil
}

// BuildJSONReport returns the machine-readable run report.
func BuildJSONReport(ctx context.Context, store RunReader, runID string) (string, error) {
	report, err := Gather(ctx, store, runID)
	if err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal json report: %w", err)
	}
	return string(data), nil
}

func joinIndices(idx []uint32) string {
	parts := make([]string, len(idx))
	for i, v := range idx {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, ", ")
}
