package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"runtime/debug"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/hype/internal/config"
	"github.com/mattjoyce/hype/internal/tui"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage()
		return 1
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	switch cmd {
	case "run":
		if hasHelpFlag(args) {
			printRunHelp()
			return 0
		}
		return runRun(args)
	case "serve":
		if hasHelpFlag(args) {
			printServeHelp()
			return 0
		}
		return runServe(args)
	case "monitor":
		if hasHelpFlag(args) {
			printMonitorHelp()
			return 0
		}
		return runMonitor(args)
	case "config":
		return runConfigNoun(args)
	case "runs":
		return runRunsNoun(args)
	case "version", "--version":
		return runVersion(args)
	case "help", "--help", "-h":
		printUsage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		return 1
	}
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func runVersion(args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Usage: hype version [--json]")
		return 1
	}

	info := currentVersionInfo()
	if *jsonOut {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render version JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	fmt.Printf("hype %s\n", info.Version)
	fmt.Printf("commit: %s\n", info.Commit)
	fmt.Printf("built_at: %s\n", info.BuildTime)
	return 0
}

func currentVersionInfo() versionInfo {
	info := versionInfo{
		Version:   strings.TrimSpace(version),
		Commit:    "unknown",
		BuildTime: "unknown",
	}
	if info.Version == "" {
		info.Version = "0.0.0-dev"
	}

	commit := strings.TrimSpace(gitCommit)
	if commit == "" || commit == "unknown" {
		commit = strings.TrimSpace(readBuildSetting("vcs.revision"))
	}
	if commit != "" {
		info.Commit = shortenCommit(commit)
	}

	built := strings.TrimSpace(buildDate)
	if built == "" || built == "unknown" {
		built = strings.TrimSpace(readBuildSetting("vcs.time"))
	}
	if normalized, ok := normalizeBuildTimeUTC(built); ok {
		info.BuildTime = normalized
	}
	return info
}

func shortenCommit(commit string) string {
	if len(commit) <= 12 {
		return commit
	}
	return commit[:12]
}

func normalizeBuildTimeUTC(raw string) (string, bool) {
	if raw == "" || raw == "unknown" {
		return "", false
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return "", false
	}
	return t.UTC().Format(time.RFC3339), true
}

func readBuildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return setting.Value
		}
	}
	return ""
}

func printUsage() {
	fmt.Print(`hype - parallel scene encoding stage

Usage:
  hype <command> [flags]
  hype <noun> <action> [flags]

Commands:
  run               Push the configured source through the stage once
  serve             Like run, then keep the API up until interrupted
  monitor           Live TUI over a serving instance's API

Config Commands:
  config check      Validate syntax, worker setup, and integrity
  config lock       Authorize current state (write .checksums)
  config show       Print the resolved configuration

Runs Commands:
  runs list         Show recent runs from the journal
  runs show <id>    Per-scene report for one run

General:
  version           Show version information
  help              Show this help message

Use 'hype <noun> help' for resource-specific flags.
`)
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}

func printRunHelp() {
	fmt.Println("Usage: hype run [--config PATH] [--output FILE] [--api] [--json]")
	fmt.Println("Push the configured source through the stage, wait for end of stream, and journal the run.")
	fmt.Println("")
	fmt.Println("Exit codes:")
	fmt.Println("  0  Run succeeded")
	fmt.Println("  1  Setup failed, or the run failed or was interrupted")
}

func printServeHelp() {
	fmt.Println("Usage: hype serve [--config PATH] [--output FILE]")
	fmt.Println("Run the stage with the API enabled and keep serving after end of stream until SIGINT/SIGTERM.")
}

func printMonitorHelp() {
	fmt.Println("Usage: hype monitor [--api-url URL] [--api-key KEY]")
	fmt.Println("Launch the real-time TUI dashboard.")
	fmt.Println("")
	fmt.Println("Keybindings:")
	fmt.Println("  q, Ctrl+C        Quit")
}

func runMonitor(args []string) int {
	fs := flag.NewFlagSet("monitor", flag.ContinueOnError)
	apiURL := fs.String("api-url", "http://localhost:8080", "hype API URL")
	apiKey := fs.String("api-key", os.Getenv("HYPE_API_KEY"), "API Bearer Token")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	p := tea.NewProgram(tui.New(*apiURL, *apiKey))
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		return 1
	}
	return 0
}

// loadConfig resolves and loads the configuration, discovering it when no
// path was given.
func loadConfig(path string) (*config.Config, string, error) {
	if path == "" {
		discovered, err := config.Discover()
		if err != nil {
			return nil, "", err
		}
		path = discovered
		fmt.Fprintf(os.Stderr, "Using discovered config: %s\n", path)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}
