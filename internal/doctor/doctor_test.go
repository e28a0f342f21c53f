package doctor

import (
	"errors"
	"strings"
	"testing"

	"github.com/mattjoyce/hype/internal/config"
)

func validConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Journal.Path = "/tmp/hype-test.db"
	cfg.Stage.Workers = []config.WorkerConfig{
		{Name: "enc-a", Type: config.WorkerIdentity, Caps: "video/x-h264"},
		{Name: "enc-b", Type: config.WorkerExec, Command: "x264", Caps: "video/x-h264, profile=main"},
	}
	return cfg
}

func newDoctor(cfg *config.Config) *Doctor {
	d := New(cfg)
	d.lookPath = func(name string) (string, error) {
		if name == "x264" {
			return "/usr/bin/x264", nil
		}
		return "", errors.New("not found")
	}
	d.checkLocal = func(string) error { return nil }
	d.gstAvailable = false
	return d
}

func hasIssue(issues []Issue, field string) bool {
	for _, i := range issues {
		if i.Field == field {
			return true
		}
	}
	return false
}

func TestValidate_ValidConfig(t *testing.T) {
	t.Parallel()
	r := newDoctor(validConfig()).Validate()
	if !r.Valid {
		t.Fatalf("expected valid, got errors: %v", r.Errors)
	}
	if len(r.Warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", r.Warnings)
	}
}

func TestValidate_NoWorkers(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Stage.Workers = nil
	r := newDoctor(cfg).Validate()
	if r.Valid || !hasIssue(r.Errors, "stage.workers") {
		t.Fatalf("expected stage.workers error, got %v", r.Errors)
	}
}

func TestValidate_MissingCommand(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Stage.Workers[1].Command = "ffmpeg"
	r := newDoctor(cfg).Validate()
	if !hasIssue(r.Errors, "stage.workers[1].command") {
		t.Fatalf("expected command error, got %v", r.Errors)
	}
}

func TestValidate_UnsignedWebhook(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Webhooks = []config.WebhookConfig{
		{URL: "https://ci.example.com/a", Secret: "s"},
		{URL: "https://ci.example.com/b"},
	}
	r := newDoctor(cfg).Validate()
	if !r.Valid {
		t.Fatalf("unsigned webhooks are advisory, got %v", r.Errors)
	}
	if hasIssue(r.Warnings, "webhooks[0].secret") || !hasIssue(r.Warnings, "webhooks[1].secret") {
		t.Fatalf("expected a warning for webhooks[1] only, got %v", r.Warnings)
	}
}

func TestValidate_FilterClass(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Stage.Workers[0].Class = "filter"
	r := newDoctor(cfg).Validate()
	if !hasIssue(r.Errors, "stage.workers[0].class") {
		t.Fatalf("expected class error, got %v", r.Errors)
	}
}

func TestValidate_IncompatibleCaps(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		outputCaps string
		caps       [2]string
		field      string
	}{
		{name: "workers disagree", caps: [2]string{"video/x-h264", "video/x-h265"}, field: "stage.workers[1].caps"},
		{name: "output caps exclude workers", outputCaps: "video/x-vp9", caps: [2]string{"video/x-h264", ""}, field: "stage.workers[0].caps"},
		{name: "field conflict", caps: [2]string{"video/x-h264, profile=high", "video/x-h264, profile=main"}, field: "stage.workers[1].caps"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Stage.OutputCaps = tt.outputCaps
			cfg.Stage.Workers[0].Caps = tt.caps[0]
			cfg.Stage.Workers[1].Caps = tt.caps[1]
			r := newDoctor(cfg).Validate()
			if !hasIssue(r.Errors, tt.field) {
				t.Fatalf("expected caps error on %s, got %v", tt.field, r.Errors)
			}
		})
	}
}

func TestValidate_GstWithoutSupport(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Source.Kind = config.SourceGst
	cfg.Source.Pipeline = "videotestsrc"

	r := newDoctor(cfg).Validate()
	if !hasIssue(r.Errors, "source.kind") {
		t.Fatalf("expected source error, got %v", r.Errors)
	}

	d := newDoctor(cfg)
	d.gstAvailable = true
	if r := d.Validate(); !r.Valid {
		t.Fatalf("expected valid with gst support, got %v", r.Errors)
	}
}

func TestValidate_RemoteJournal(t *testing.T) {
	t.Parallel()
	d := newDoctor(validConfig())
	d.checkLocal = func(path string) error { return errors.New(path + " is on nfs") }
	r := d.Validate()
	if !hasIssue(r.Errors, "journal.path") {
		t.Fatalf("expected journal error, got %v", r.Errors)
	}

	cfg := validConfig()
	cfg.Journal.Enabled = false
	d = newDoctor(cfg)
	d.checkLocal = func(string) error { t.Error("journal disabled, should not be checked"); return nil }
	d.Validate()
}

func TestValidate_APIAuth(t *testing.T) {
	t.Parallel()

	tests := []struct {
		listen   string
		key      string
		wantErr  bool
		wantWarn bool
	}{
		{listen: "127.0.0.1:8080", wantWarn: true},
		{listen: "localhost:8080", wantWarn: true},
		{listen: "[::1]:8080", wantWarn: true},
		{listen: "0.0.0.0:8080", wantErr: true},
		{listen: ":8080", wantErr: true},
		{listen: "0.0.0.0:8080", key: "secret"},
	}
	for _, tt := range tests {
		t.Run(tt.listen+"/"+tt.key, func(t *testing.T) {
			cfg := validConfig()
			cfg.API.Enabled = true
			cfg.API.Listen = tt.listen
			cfg.API.Auth.APIKey = tt.key
			r := newDoctor(cfg).Validate()
			if got := hasIssue(r.Errors, "api.auth.api_key"); got != tt.wantErr {
				t.Fatalf("error = %v, want %v (%v)", got, tt.wantErr, r.Errors)
			}
			if got := hasIssue(r.Warnings, "api.auth.api_key"); got != tt.wantWarn {
				t.Fatalf("warning = %v, want %v (%v)", got, tt.wantWarn, r.Warnings)
			}
		})
	}
}

func TestValidate_SmallQueue(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Stage.GroupSize = 50
	cfg.Stage.QueueCapacity = 10
	r := newDoctor(cfg).Validate()
	if !r.Valid {
		t.Fatalf("queue size is advisory, got %v", r.Errors)
	}
	found := false
	for _, w := range r.Warnings {
		if strings.Contains(w.Message, "group_size 50") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected queue warning, got %v", r.Warnings)
	}
}
