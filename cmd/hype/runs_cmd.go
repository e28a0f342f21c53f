package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/mattjoyce/hype/internal/inspect"
	"github.com/mattjoyce/hype/internal/journal"
	"github.com/mattjoyce/hype/internal/storage"
)

func runRunsNoun(args []string) int {
	if len(args) < 1 {
		printRunsNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printRunsNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "list":
		if hasHelpFlag(actionArgs) {
			printRunsListHelp()
			return 0
		}
		return runRunsList(actionArgs)
	case "show":
		if hasHelpFlag(actionArgs) {
			printRunsShowHelp()
			return 0
		}
		return runRunsShow(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown runs action: %s\n", action)
		return 1
	}
}

func printRunsNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: hype runs <action> [flags]")
	fmt.Fprintln(w, "Actions: list, show")
}

func printRunsListHelp() {
	fmt.Println("Usage: hype runs list [--config PATH] [--limit N] [--json]")
	fmt.Println("Show the most recent runs, newest first.")
}

func printRunsShowHelp() {
	fmt.Println("Usage: hype runs show <run_id> [--config PATH] [--json]")
	fmt.Println("Show scene counts, latency, and per-input distribution for one run.")
}

// openJournal opens the journal named by the configuration for reading.
func openJournal(ctx context.Context, configPath string) (*journal.Journal, func(), error) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	if !cfg.Journal.Enabled {
		return nil, nil, errors.New("journal is disabled in this configuration")
	}
	db, err := storage.OpenSQLite(ctx, cfg.Journal.Path)
	if err != nil {
		return nil, nil, err
	}
	return journal.New(db), func() { _ = db.Close() }, nil
}

func runRunsList(args []string) int {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	limit := fs.Int("limit", 20, "Maximum number of runs")
	jsonOut := fs.Bool("json", false, "Output in structured JSON format")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	ctx := context.Background()
	j, closeFn, err := openJournal(ctx, *configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open journal: %v\n", err)
		return 1
	}
	defer closeFn()

	runs, err := j.ListRuns(ctx, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list runs: %v\n", err)
		return 1
	}

	if *jsonOut {
		data, err := json.MarshalIndent(map[string]any{"runs": runs}, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	if len(runs) == 0 {
		fmt.Println("No runs recorded.")
		return 0
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN ID\tSTARTED\tSTATUS\tSOURCE\tGROUP\tFRAMES\tSCENES\tSKIPPED")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\n",
			r.ID, r.StartedAt.Local().Format(time.DateTime), r.Status, r.Source, r.GroupSize, r.Frames, r.Scenes, r.Skipped)
	}
	_ = tw.Flush()
	return 0
}

func runRunsShow(args []string) int {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output in structured JSON format")

	// Accept the run id before or after flags.
	var runID string
	var rest []string
	for _, a := range args {
		if runID == "" && len(a) > 0 && a[0] != '-' && (len(rest) == 0 || rest[len(rest)-1] != "--config") {
			runID = a
			continue
		}
		rest = append(rest, a)
	}
	if err := fs.Parse(rest); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if runID == "" && fs.NArg() > 0 {
		runID = fs.Arg(0)
	}
	if runID == "" {
		fmt.Fprintln(os.Stderr, "Usage: hype runs show <run_id> [--config PATH] [--json]")
		return 1
	}

	ctx := context.Background()
	j, closeFn, err := openJournal(ctx, *configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open journal: %v\n", err)
		return 1
	}
	defer closeFn()

	var report string
	if *jsonOut {
		report, err = inspect.BuildJSONReport(ctx, j, runID)
	} else {
		report, err = inspect.BuildReport(ctx, j, runID)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build report: %v\n", err)
		return 1
	}
	fmt.Print(report)
	if *jsonOut {
		fmt.Println()
	}
	return 0
}
