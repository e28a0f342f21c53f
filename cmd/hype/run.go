package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattjoyce/hype/internal/api"
	"github.com/mattjoyce/hype/internal/config"
	"github.com/mattjoyce/hype/internal/events"
	"github.com/mattjoyce/hype/internal/hype"
	"github.com/mattjoyce/hype/internal/journal"
	"github.com/mattjoyce/hype/internal/lock"
	"github.com/mattjoyce/hype/internal/log"
	"github.com/mattjoyce/hype/internal/source"
	"github.com/mattjoyce/hype/internal/storage"
	"github.com/mattjoyce/hype/internal/webhook"
)

// hubCapacity bounds the event ring buffer replayed to late SSE clients.
const hubCapacity = 1024

type runOptions struct {
	output io.Writer
	api    bool
	// hold keeps the stage and API up after end of stream until ctx ends.
	hold bool
}

type runResult struct {
	RunID      string         `json:"run_id,omitempty"`
	Status     journal.Status `json:"status"`
	Frames     uint64         `json:"frames"`
	InBytes    uint64         `json:"in_bytes"`
	Scenes     uint64         `json:"scenes"`
	Skipped    uint64         `json:"skipped"`
	Failed     uint64         `json:"failed"`
	OutBuffers uint64         `json:"out_buffers"`
	OutBytes   uint64         `json:"out_bytes"`
	OutCaps    string         `json:"out_caps,omitempty"`
	Elapsed    string         `json:"elapsed"`
	Error      string         `json:"error,omitempty"`
}

func runRun(args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	outPath := fs.String("output", "", "Write the reassembled stream to FILE")
	withAPI := fs.Bool("api", false, "Serve the API while the stream runs")
	jsonOut := fs.Bool("json", false, "Print the run summary as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	return startRun(*configPath, *outPath, *jsonOut, func(cfg *config.Config) runOptions {
		return runOptions{api: cfg.API.Enabled || *withAPI}
	})
}

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	outPath := fs.String("output", "", "Write the reassembled stream to FILE")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	return startRun(*configPath, *outPath, false, func(*config.Config) runOptions {
		return runOptions{api: true, hold: true}
	})
}

func startRun(configPath, outPath string, jsonOut bool, opts func(*config.Config) runOptions) int {
	cfg, path, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")
	logger.Info("hype starting", "version", version, "config", path)

	o := opts(cfg)
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create output: %v\n", err)
			return 1
		}
		defer f.Close()
		o.output = f
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := execute(ctx, cfg, o, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Run failed: %v\n", err)
		return 1
	}

	if jsonOut {
		data, _ := json.MarshalIndent(res, "", "  ")
		fmt.Println(string(data))
	} else {
		printRunResult(res)
	}
	if res.Status != journal.StatusSucceeded {
		return 1
	}
	return 0
}

func printRunResult(r *runResult) {
	if r.RunID != "" {
		fmt.Printf("Run %s %s in %s\n", r.RunID, r.Status, r.Elapsed)
	} else {
		fmt.Printf("Run %s in %s\n", r.Status, r.Elapsed)
	}
	fmt.Printf("  frames in : %d (%d bytes)\n", r.Frames, r.InBytes)
	fmt.Printf("  scenes    : %d emitted, %d failed, %d skipped\n", r.Scenes, r.Failed, r.Skipped)
	fmt.Printf("  output    : %d buffers, %d bytes\n", r.OutBuffers, r.OutBytes)
	if r.Error != "" {
		fmt.Printf("  error     : %s\n", r.Error)
	}
}

// execute wires source → stage → output, journals the run, and optionally
// serves the API. A non-nil error means the run could not be set up; a
// failed or interrupted run is reported through the result status.
func execute(ctx context.Context, cfg *config.Config, o runOptions, logger *slog.Logger) (*runResult, error) {
	started := time.Now()
	hub := events.NewHub(hubCapacity)

	stage, err := hype.NewFromConfig(log.WithComponent("stage"), cfg.Stage, hype.WithPublisher(hub))
	if err != nil {
		return nil, err
	}
	src, err := source.FromConfig(log.WithComponent("source"), cfg.Source)
	if err != nil {
		return nil, err
	}
	out := newOutputSink(o.output)
	stage.Link(out)

	var (
		jr  *journal.Journal
		rec *journal.Recorder
		res = &runResult{}
	)
	if cfg.Journal.Enabled {
		fl, err := lock.Acquire(lock.PathFor(cfg.Journal.Path))
		if err != nil {
			return nil, fmt.Errorf("journal lock: %w", err)
		}
		defer fl.Release()

		db, err := storage.OpenSQLite(ctx, cfg.Journal.Path)
		if err != nil {
			return nil, err
		}
		defer db.Close()

		jr = journal.New(db)
		res.RunID, err = jr.StartRun(ctx, journal.StartRequest{
			Source:    src.Name(),
			GroupSize: cfg.Stage.GroupSize,
			Workers:   len(cfg.Stage.Workers),
			Config:    redacted(cfg),
		})
		if err != nil {
			return nil, err
		}
		logger = logger.With("run_id", res.RunID)
		rec = journal.NewRecorder(log.WithRun(res.RunID), jr, res.RunID, hub)
		// Writes outlive a signal so the scene log is complete.
		go rec.Run(context.WithoutCancel(ctx))
	}

	runCtx, cancelRun := context.WithCancelCause(ctx)
	defer cancelRun(nil)

	apiDone := make(chan struct{})
	apiCtx, stopAPI := context.WithCancel(context.Background())
	if o.api {
		var runs api.RunStore
		if jr != nil {
			runs = jr
		}
		srv := api.New(api.Config{Listen: cfg.API.Listen, APIKey: cfg.API.Auth.APIKey}, stage, runs, hub, log.WithComponent("api"))
		go func() {
			defer close(apiDone)
			if err := srv.Start(apiCtx); err != nil && !errors.Is(err, context.Canceled) {
				cancelRun(fmt.Errorf("api: %w", err))
			}
		}()
	} else {
		close(apiDone)
	}
	defer func() {
		stopAPI()
		<-apiDone
	}()

	var runErr error
	if err := setPlaying(runCtx, stage); err != nil {
		runErr = err
	} else {
		srcRes, err := src.Run(runCtx, stage)
		res.Frames, res.InBytes = srcRes.Frames, srcRes.Bytes
		if err == nil {
			err = stage.Wait(runCtx)
		}
		if err != nil {
			runErr = err
			if cause := context.Cause(runCtx); cause != nil && !errors.Is(cause, context.Canceled) {
				runErr = cause
			}
		}
	}
	defer func() {
		if err := stage.SetState(context.Background(), hype.StateNull); err != nil {
			logger.Warn("stage stop failed", "error", err)
		}
	}()

	stats := stage.Stats()
	res.Scenes = stats.Collector.Emitted
	res.Skipped = stats.Collector.Skipped
	res.Failed = stats.Collector.Failed
	res.OutBuffers, res.OutBytes, res.OutCaps = out.totals()

	switch {
	case runErr == nil && res.Failed > 0:
		res.Status = journal.StatusFailed
		runErr = fmt.Errorf("%d scenes failed downstream", res.Failed)
	case runErr == nil:
		res.Status = journal.StatusSucceeded
	case ctx.Err() != nil:
		res.Status = journal.StatusCanceled
	default:
		res.Status = journal.StatusFailed
	}
	if runErr != nil {
		res.Error = runErr.Error()
	}
	res.Elapsed = time.Since(started).Round(time.Millisecond).String()

	if rec != nil {
		if err := rec.Stop(); err != nil {
			logger.Error("scene log incomplete", "error", err)
		}
		if err := jr.FinishRun(context.WithoutCancel(ctx), res.RunID, journal.Summary{
			Status:  res.Status,
			Frames:  res.Frames,
			Scenes:  res.Scenes,
			Skipped: res.Skipped,
			Err:     runErr,
		}); err != nil {
			logger.Error("failed to close run", "error", err)
		}
	}
	if len(cfg.Webhooks) > 0 {
		notifier := webhook.New(cfg.Webhooks, nil, log.WithComponent("webhook"))
		if err := notifier.NotifyRunFinished(context.WithoutCancel(ctx), webhook.RunFinished{
			RunID:   res.RunID,
			Status:  string(res.Status),
			Frames:  res.Frames,
			Scenes:  res.Scenes,
			Skipped: res.Skipped,
			Failed:  res.Failed,
			Elapsed: res.Elapsed,
			Error:   res.Error,
		}); err != nil {
			logger.Warn("run notification incomplete", "error", err)
		}
	}
	logger.Info("run finished", "status", res.Status, "frames", res.Frames, "scenes", res.Scenes, "skipped", res.Skipped, "elapsed", res.Elapsed)

	if o.hold && ctx.Err() == nil {
		logger.Info("stream finished, serving until interrupted", "listen", cfg.API.Listen)
		select {
		case <-ctx.Done():
		case <-runCtx.Done():
			if cause := context.Cause(runCtx); cause != nil && ctx.Err() == nil {
				logger.Error("component failed", "error", cause)
			}
		}
	}
	return res, nil
}

func setPlaying(ctx context.Context, stage *hype.Stage) error {
	if err := stage.SetState(ctx, hype.StateReady); err != nil {
		return err
	}
	return stage.SetState(ctx, hype.StatePlaying)
}

// redacted returns the configuration as stored in the journal, without
// secrets.
func redacted(cfg *config.Config) *config.Config {
	c := *cfg
	if c.API.Auth.APIKey != "" {
		c.API.Auth.APIKey = "[redacted]"
	}
	c.Webhooks = make([]config.WebhookConfig, len(cfg.Webhooks))
	for i, wh := range cfg.Webhooks {
		if wh.Secret != "" {
			wh.Secret = "[redacted]"
		}
		c.Webhooks[i] = wh
	}
	c.Stage.Workers = make([]config.WorkerConfig, len(cfg.Stage.Workers))
	for i, w := range cfg.Stage.Workers {
		if len(w.Env) > 0 {
			env := make(map[string]string, len(w.Env))
			for k := range w.Env {
				env[k] = "[redacted]"
			}
			w.Env = env
		}
		c.Stage.Workers[i] = w
	}
	return &c
}
