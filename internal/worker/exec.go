package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mattjoyce/hype/internal/caps"
	"github.com/mattjoyce/hype/internal/media"
	"github.com/mattjoyce/hype/internal/scene"
)

const (
	// maxStderrBytes caps the amount of stderr kept from one invocation.
	maxStderrBytes = 64 * 1024

	// terminationGracePeriod is the time we wait after SIGTERM before sending SIGKILL.
	terminationGracePeriod = 5 * time.Second
)

// ErrTimeout is returned when an invocation exceeds its timeout.
var ErrTimeout = errors.New("encoder command timed out")

// ExecConfig describes an external per-scene encoder.
type ExecConfig struct {
	Name    string
	Command string
	// Args may contain {scene}, {group_size} and {name} placeholders.
	Args    []string
	Env     map[string]string
	Timeout time.Duration
	Caps    caps.Caps
	// Grace overrides terminationGracePeriod.
	Grace time.Duration
}

// ExecError carries the stderr of a failed invocation.
type ExecError struct {
	Scene    uint32
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ExecError) Error() string {
	msg := fmt.Sprintf("scene %d: %v", e.Scene, e.Err)
	if e.Stderr != "" {
		msg += ": " + lastLine(e.Stderr)
	}
	return msg
}

func (e *ExecError) Unwrap() error { return e.Err }

// Exec runs one process per scene: the scene's raw frames are written to its
// stdin and everything it writes to stdout becomes a single key-unit buffer.
type Exec struct {
	cfg     ExecConfig
	pending media.BufferList
	current scene.Boundary
}

// NewExec returns an Exec worker.
func NewExec(cfg ExecConfig) *Exec {
	if cfg.Caps.IsEmpty() {
		cfg.Caps = caps.Any()
	}
	if cfg.Grace <= 0 {
		cfg.Grace = terminationGracePeriod
	}
	return &Exec{cfg: cfg}
}

func (w *Exec) Name() string          { return w.cfg.Name }
func (w *Exec) Kind() Kind            { return KindVideoEncoder }
func (w *Exec) OutputCaps() caps.Caps { return w.cfg.Caps }

// BeginScene records the scene the next frames belong to.
func (w *Exec) BeginScene(b scene.Boundary) { w.current = b }

// Process buffers the frame until the scene ends.
func (w *Exec) Process(_ context.Context, buf *media.Buffer, _ Emit) error {
	w.pending = append(w.pending, buf)
	return nil
}

// Flush encodes the buffered frames, if any, and emits the result.
func (w *Exec) Flush(ctx context.Context, emit Emit) error {
	if len(w.pending) == 0 {
		return nil
	}
	frames := w.pending
	w.pending = nil

	var in bytes.Buffer
	in.Grow(frames.Bytes())
	for _, f := range frames {
		in.Write(f.Data)
	}

	out, err := w.run(ctx, in.Bytes())
	if err != nil {
		return err
	}
	return emit(ctx, &media.Buffer{
		Offset:   frames[0].Offset,
		PTS:      frames[0].PTS,
		Duration: frames.Duration(),
		Data:     out,
		KeyUnit:  true,
	})
}

func (w *Exec) args() []string {
	r := strings.NewReplacer(
		"{scene}", strconv.FormatUint(uint64(w.current.Index), 10),
		"{group_size}", strconv.FormatUint(uint64(w.current.GroupSize), 10),
		"{name}", w.cfg.Name,
	)
	out := make([]string, len(w.cfg.Args))
	for i, a := range w.cfg.Args {
		out[i] = r.Replace(a)
	}
	return out
}

// run executes the command once. Termination is managed here rather than
// through CommandContext so the process gets SIGTERM and a grace period.
func (w *Exec) run(ctx context.Context, input []byte) ([]byte, error) {
	cmd := exec.Command(w.cfg.Command, w.args()...)
	cmd.Stdin = bytes.NewReader(input)
	if len(w.cfg.Env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range w.cfg.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}

	var stdout bytes.Buffer
	stderr := &cappedBuffer{limit: maxStderrBytes}
	cmd.Stdout = &stdout
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, &ExecError{Scene: w.current.Index, ExitCode: -1, Err: fmt.Errorf("start process: %w", err)}
	}

	waitErr := make(chan error, 1)
	go func() { waitErr <- cmd.Wait() }()

	var timeout <-chan time.Time
	if w.cfg.Timeout > 0 {
		t := time.NewTimer(w.cfg.Timeout)
		defer t.Stop()
		timeout = t.C
	}

	select {
	case err := <-waitErr:
		if err != nil {
			code := -1
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				code = exitErr.ExitCode()
			}
			return nil, &ExecError{Scene: w.current.Index, ExitCode: code, Stderr: stderr.String(), Err: err}
		}
		return stdout.Bytes(), nil

	case <-timeout:
		w.terminate(cmd, waitErr)
		return nil, &ExecError{Scene: w.current.Index, ExitCode: -1, Stderr: stderr.String(), Err: ErrTimeout}

	case <-ctx.Done():
		w.terminate(cmd, waitErr)
		return nil, ctx.Err()
	}
}

// terminate sends SIGTERM, waits for the grace period, then SIGKILL.
func (w *Exec) terminate(cmd *exec.Cmd, waitErr <-chan error) {
	if cmd.Process == nil {
		return
	}
	_ = cmd.Process.Signal(syscall.SIGTERM)

	grace := time.NewTimer(w.cfg.Grace)
	defer grace.Stop()
	select {
	case <-waitErr:
	case <-grace.C:
		_ = cmd.Process.Kill()
		<-waitErr
	}
}

// cappedBuffer keeps the first limit bytes written to it and discards the
// rest. Writes never fail so the child is not killed by a broken pipe.
type cappedBuffer struct {
	buf   bytes.Buffer
	limit int
}

func (c *cappedBuffer) Write(p []byte) (int, error) {
	if room := c.limit - c.buf.Len(); room > 0 {
		if len(p) > room {
			c.buf.Write(p[:room])
		} else {
			c.buf.Write(p)
		}
	}
	return len(p), nil
}

func (c *cappedBuffer) String() string { return c.buf.String() }

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
