// Package doctor reports problems in a hype configuration that parse-time
// validation cannot see: missing binaries, incompatible encoder caps,
// unauthenticated listeners and journal placement.
package doctor

import (
	"fmt"
	"net"
	"os/exec"
	"strings"

	"github.com/mattjoyce/hype/internal/caps"
	"github.com/mattjoyce/hype/internal/config"
	"github.com/mattjoyce/hype/internal/source"
	"github.com/mattjoyce/hype/internal/storage"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Doctor validates a loaded configuration against the host.
type Doctor struct {
	cfg *config.Config

	lookPath     func(string) (string, error)
	checkLocal   func(string) error
	gstAvailable bool
}

// New creates a Doctor for cfg.
func New(cfg *config.Config) *Doctor {
	return &Doctor{
		cfg:          cfg,
		lookPath:     exec.LookPath,
		checkLocal:   storage.CheckLocal,
		gstAvailable: source.GstAvailable,
	}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	d.validateWorkers(r)
	d.validateCaps(r)
	d.validateSource(r)
	d.validateJournal(r)
	d.validateAPI(r)
	d.warnUnsignedWebhooks(r)
	d.warnQueueCapacity(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) validateWorkers(r *Result) {
	workers := d.cfg.Stage.Workers
	if len(workers) == 0 {
		d.addError(r, "workers", "stage.workers", "no workers configured; the stage cannot leave the null state")
		return
	}
	for i, w := range workers {
		field := fmt.Sprintf("stage.workers[%d]", i)
		if w.Class == "filter" {
			d.addError(r, "workers", field+".class",
				fmt.Sprintf("worker %q is declared a filter; encoder slots take encoders or identity elements", w.Name))
		}
		if w.Type != config.WorkerExec {
			continue
		}
		if _, err := d.lookPath(w.Command); err != nil {
			d.addError(r, "workers", field+".command",
				fmt.Sprintf("worker %q: command %q not found", w.Name, w.Command))
		}
	}
}

// validateCaps checks that the configured workers, and the stage output caps
// if any, can agree on one output format.
func (d *Doctor) validateCaps(r *Result) {
	common := caps.Any()
	if s := d.cfg.Stage.OutputCaps; s != "" {
		c, err := caps.Parse(s)
		if err != nil {
			d.addError(r, "caps", "stage.output_caps", err.Error())
			return
		}
		common = c
	}
	for i, w := range d.cfg.Stage.Workers {
		if w.Caps == "" {
			continue
		}
		c, err := caps.Parse(w.Caps)
		if err != nil {
			d.addError(r, "caps", fmt.Sprintf("stage.workers[%d].caps", i), err.Error())
			return
		}
		next := common.Intersect(c)
		if next.IsEmpty() {
			d.addError(r, "caps", fmt.Sprintf("stage.workers[%d].caps", i),
				fmt.Sprintf("worker %q produces %s, incompatible with %s", w.Name, c, common))
			return
		}
		common = next
	}
}

func (d *Doctor) validateSource(r *Result) {
	if d.cfg.Source.Kind == config.SourceGst && !d.gstAvailable {
		d.addError(r, "source", "source.kind", "gst source configured but "+source.ErrGstUnavailable.Error())
	}
	if d.cfg.Source.Kind == config.SourceSynthetic && d.cfg.Source.Frames == 0 {
		d.addWarning(r, "source", "source.frames", "synthetic source produces no frames")
	}
}

func (d *Doctor) validateJournal(r *Result) {
	if !d.cfg.Journal.Enabled {
		return
	}
	if err := d.checkLocal(d.cfg.Journal.Path); err != nil {
		d.addError(r, "journal", "journal.path", err.Error())
	}
}

func (d *Doctor) validateAPI(r *Result) {
	api := d.cfg.API
	if !api.Enabled || api.Auth.APIKey != "" {
		return
	}
	if !isLoopback(api.Listen) {
		d.addError(r, "api", "api.auth.api_key",
			fmt.Sprintf("api listens on %s without an api key", api.Listen))
		return
	}
	d.addWarning(r, "api", "api.auth.api_key", "API enabled but no authentication configured")
}

func (d *Doctor) warnUnsignedWebhooks(r *Result) {
	for i, wh := range d.cfg.Webhooks {
		if wh.Secret == "" {
			d.addWarning(r, "webhooks", fmt.Sprintf("webhooks[%d].secret", i),
				fmt.Sprintf("notifications to %s are not signed", wh.URL))
		}
	}
}

// warnQueueCapacity flags queues that cannot hold one whole scene, which
// serialises the dispatcher behind the slowest worker.
func (d *Doctor) warnQueueCapacity(r *Result) {
	st := d.cfg.Stage
	if st.QueueCapacity < int(st.GroupSize) {
		d.addWarning(r, "stage", "stage.queue_capacity",
			fmt.Sprintf("queue_capacity %d is smaller than group_size %d", st.QueueCapacity, st.GroupSize))
	}
}

func isLoopback(listen string) bool {
	host, _, err := net.SplitHostPort(listen)
	if err != nil {
		return false
	}
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
