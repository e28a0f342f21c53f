package tui

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/hype/internal/dispatch"
	"github.com/mattjoyce/hype/internal/events"
	"github.com/mattjoyce/hype/internal/hype"
	"github.com/mattjoyce/hype/internal/worker"
)

func event(id int64, typ string, payload any) events.Event {
	b, _ := json.Marshal(payload)
	return events.Event{ID: id, Type: typ, At: time.Now(), Data: b}
}

func TestReadSSE(t *testing.T) {
	stream := strings.Join([]string{
		": keep-alive",
		"",
		"id: 4",
		"event: scene.skipped",
		`data: {"scene":2}`,
		"",
		"id: 5",
		"event: stream.eos",
		`data: {"emitted":3,"skipped":1}`,
		"",
		"",
	}, "\n")

	var got []events.Event
	require.NoError(t, readSSE(strings.NewReader(stream), func(e events.Event) { got = append(got, e) }))
	require.Len(t, got, 2)
	assert.Equal(t, int64(4), got[0].ID)
	assert.Equal(t, events.TypeSceneSkipped, got[0].Type)
	assert.JSONEq(t, `{"scene":2}`, string(got[0].Data))
	assert.Equal(t, events.TypeStreamEOS, got[1].Type)
}

func TestApplyTracksScenes(t *testing.T) {
	m := New("http://localhost:0", "")
	now := time.Now()

	m.apply(event(1, events.TypeStageState, events.StageState{From: "ready", To: "playing"}), now)
	m.apply(event(2, events.TypeSceneDispatched, events.SceneDispatched{Scene: 0, Output: "src_0"}), now)
	m.apply(event(3, events.TypeSceneDispatched, events.SceneDispatched{Scene: 1, Output: "src_1"}), now)
	m.apply(event(4, events.TypeSceneEmitted, events.SceneEmitted{Scene: 0, Input: "sink_0"}), now)
	m.apply(event(5, events.TypeStreamEOS, events.StreamEOS{Emitted: 2}), now)

	assert.Equal(t, int64(5), m.lastID)
	assert.Equal(t, uint32(1), m.routed["src_1"])
	assert.Equal(t, uint32(0), m.emitted["sink_0"])
	require.NotNil(t, m.eos)
	assert.Equal(t, uint64(2), m.eos.Emitted)
	assert.Len(t, m.eventLog, 5)
	assert.Equal(t, 5, m.activity.dots)

	m.apply(event(6, events.TypeStageState, events.StageState{From: "ready", To: "playing"}), now)
	assert.Nil(t, m.eos)
	assert.Empty(t, m.routed)
}

func TestRefreshTablePairsOutputs(t *testing.T) {
	m := New("http://localhost:0", "")
	m.stats = hype.Stats{
		State: "playing",
		Workers: []worker.BranchStats{
			{Worker: "a", Kind: "identity", Scenes: 3, Processed: 30},
			{Worker: "b", Kind: "encoder", Scenes: 2, Failures: 1},
		},
		Dispatcher: dispatch.Stats{Outputs: []dispatch.OutputStats{
			{Name: "src_0", Queued: 4, Capacity: 40},
			{Name: "src_1", Queued: 0, Capacity: 40},
		}},
	}
	m.routed["src_1"] = 7
	m.refreshTable()

	rows := m.workers.Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, "a", rows[0][1])
	assert.Equal(t, "4/40", rows[0][7])
	assert.Equal(t, "-", rows[0][8])
	assert.Equal(t, "7", rows[1][8])
	assert.Equal(t, "1", rows[1][6])
}

func TestUpdateStatsAndErrors(t *testing.T) {
	m := New("http://localhost:0", "")
	next, _ := m.Update(statsMsg(hype.Stats{State: "ready", GroupSize: 10}))
	mm := next.(Model)
	assert.True(t, mm.connected)
	assert.Equal(t, uint32(10), mm.stats.GroupSize)

	next, _ = mm.Update(errMsg{assert.AnError})
	mm = next.(Model)
	assert.False(t, mm.connected)
	assert.NotEmpty(t, mm.lastError)

	next, _ = mm.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	mm = next.(Model)
	assert.Contains(t, mm.View(), "HYPE")
}

func TestClientFetchStats(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer k" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(hype.Stats{State: "playing", GroupSize: 3})
	}))
	defer srv.Close()

	st, err := newClient(srv.URL+"/", "k").fetchStats(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "playing", st.State)

	_, err = newClient(srv.URL, "wrong").fetchStats(t.Context())
	assert.Error(t, err)
}
