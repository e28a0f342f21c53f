package tui

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/hype/internal/events"
	"github.com/mattjoyce/hype/internal/hype"
)

type eventMsg events.Event

type statsMsg hype.Stats

type tickMsg time.Time

type errMsg struct{ err error }

func (e errMsg) Error() string { return e.err.Error() }

type sseDisconnectedMsg struct{}

type reconnectMsg struct{}

// client talks to the hype API.
type client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	stream  *http.Client
}

func newClient(baseURL, apiKey string) *client {
	return &client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 2 * time.Second},
		stream:  &http.Client{},
	}
}

func (c *client) request(ctx context.Context, path string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return req, nil
}

func (c *client) fetchStats(ctx context.Context) (hype.Stats, error) {
	var st hype.Stats
	req, err := c.request(ctx, "/stats")
	if err != nil {
		return st, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return st, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return st, fmt.Errorf("GET /stats: %s", resp.Status)
	}
	err = json.NewDecoder(resp.Body).Decode(&st)
	return st, err
}

// follow streams /events into ch until the connection ends.
func (c *client) follow(ctx context.Context, lastID int64, ch chan<- events.Event) error {
	req, err := c.request(ctx, "/events")
	if err != nil {
		return err
	}
	if lastID > 0 {
		req.Header.Set("Last-Event-ID", strconv.FormatInt(lastID, 10))
	}
	resp, err := c.stream.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET /events: %s", resp.Status)
	}
	return readSSE(resp.Body, func(ev events.Event) {
		select {
		case ch <- ev:
		case <-ctx.Done():
		}
	})
}

// readSSE parses a server-sent event stream, calling fn per complete event.
// Comment lines are ignored.
func readSSE(r io.Reader, fn func(events.Event)) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var cur events.Event
	var data strings.Builder
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if data.Len() > 0 {
				cur.Data = json.RawMessage(data.String())
				cur.At = time.Now()
				fn(cur)
			}
			cur = events.Event{}
			data.Reset()
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "id: "):
			if id, err := strconv.ParseInt(line[4:], 10, 64); err == nil {
				cur.ID = id
			}
		case strings.HasPrefix(line, "event: "):
			cur.Type = line[7:]
		case strings.HasPrefix(line, "data: "):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(line[6:])
		}
	}
	return sc.Err()
}

func subscribeCmd(c *client, lastID int64, ch chan<- events.Event) tea.Cmd {
	return func() tea.Msg {
		_ = c.follow(context.Background(), lastID, ch)
		return sseDisconnectedMsg{}
	}
}

func receiveCmd(ch <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		return eventMsg(<-ch)
	}
}

func statsCmd(c *client) tea.Cmd {
	return func() tea.Msg {
		st, err := c.fetchStats(context.Background())
		if err != nil {
			return errMsg{err}
		}
		return statsMsg(st)
	}
}
