package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/hype/internal/config"
	"github.com/mattjoyce/hype/internal/doctor"
)

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		printConfigNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printConfigNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "check":
		if hasHelpFlag(actionArgs) {
			printConfigCheckHelp()
			return 0
		}
		return runConfigCheck(actionArgs)
	case "lock":
		if hasHelpFlag(actionArgs) {
			printConfigLockHelp()
			return 0
		}
		return runConfigLock(actionArgs)
	case "show":
		if hasHelpFlag(actionArgs) {
			printConfigShowHelp()
			return 0
		}
		return runConfigShow(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", action)
		return 1
	}
}

func printConfigNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: hype config <action> [flags]")
	fmt.Fprintln(w, "Actions: check, lock, show")
}

func printConfigCheckHelp() {
	fmt.Println("Usage: hype config check [--config PATH] [--json]")
	fmt.Println("Validate configuration syntax, worker setup, and integrity.")
	fmt.Println("")
	fmt.Println("Exit codes:")
	fmt.Println("  0  All checks passed")
	fmt.Println("  1  Errors found")
	fmt.Println("  2  Passed with warnings")
}

func printConfigLockHelp() {
	fmt.Println("Usage: hype config lock [--config PATH]")
	fmt.Println("Authorize the current configuration by writing its BLAKE3 hash to .checksums.")
}

func printConfigShowHelp() {
	fmt.Println("Usage: hype config show [--config PATH] [--json]")
	fmt.Println("Print the resolved configuration, defaults applied.")
}

func runConfigCheck(args []string) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output in structured JSON format")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		if *jsonOut {
			res := doctor.Result{Errors: []doctor.Issue{{Category: "config", Message: err.Error()}}}
			data, _ := json.MarshalIndent(res, "", "  ")
			fmt.Println(string(data))
		} else {
			fmt.Printf("Configuration: failed\n  ERROR [config] %v\n", err)
		}
		return 1
	}

	result := doctor.New(cfg).Validate()
	if *jsonOut {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
	} else {
		printValidationSummary(result)
	}

	switch {
	case !result.Valid:
		return 1
	case len(result.Warnings) > 0:
		return 2
	}
	return 0
}

func printValidationSummary(result *doctor.Result) {
	printIssues := func(level string, issues []doctor.Issue) {
		for _, issue := range issues {
			if issue.Field != "" {
				fmt.Printf("  %-5s [%s] %s: %s\n", level, issue.Category, issue.Field, issue.Message)
			} else {
				fmt.Printf("  %-5s [%s] %s\n", level, issue.Category, issue.Message)
			}
		}
	}

	switch {
	case !result.Valid:
		fmt.Printf("Validation: failed (%d error(s), %d warning(s))\n", len(result.Errors), len(result.Warnings))
		printIssues("ERROR", result.Errors)
	case len(result.Warnings) == 0:
		fmt.Println("Validation: ✓ All checks passed")
		return
	default:
		fmt.Printf("Validation: ✓ passed with %d warning(s)\n", len(result.Warnings))
	}
	printIssues("WARN", result.Warnings)
}

func runConfigLock(args []string) int {
	fs := flag.NewFlagSet("lock", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	path := *configPath
	if path == "" {
		discovered, err := config.Discover()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to discover config: %v\n", err)
			return 1
		}
		path = discovered
	}

	// Refuse to bless a file that does not parse.
	abs, err := config.ResolvePath(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read config: %v\n", err)
		return 1
	}
	if _, err := config.Parse(data); err != nil {
		fmt.Fprintf(os.Stderr, "Refusing to lock invalid config: %v\n", err)
		return 1
	}

	manifest, err := config.Lock(abs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Lock failed: %v\n", err)
		return 1
	}
	for name, hash := range manifest.Hashes {
		fmt.Printf("Locked %s (blake3 %s)\n", name, hash[:16])
	}
	return 0
}

func runConfigShow(args []string) int {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output in structured JSON format")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		return 1
	}
	shown := redacted(cfg)

	if *jsonOut {
		data, err := json.MarshalIndent(shown, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	data, err := yaml.Marshal(shown)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render YAML: %v\n", err)
		return 1
	}
	fmt.Print(string(data))
	return 0
}
