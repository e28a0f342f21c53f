package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/hype/internal/config"
	"github.com/mattjoyce/hype/internal/log"
)

func TestSignAndVerify(t *testing.T) {
	secret := "test-secret-key"
	body := []byte(`{"event":"run.finished","run_id":"r1"}`)
	sig := Sign(body, secret)

	tests := []struct {
		name      string
		body      []byte
		signature string
		secret    string
		wantErr   bool
	}{
		{name: "prefixed", body: body, signature: sig, secret: secret},
		{name: "plain hex", body: body, signature: sig[len("sha256="):], secret: secret},
		{name: "tampered body", body: []byte(`{"event":"run.finished","run_id":"r2"}`), signature: sig, secret: secret, wantErr: true},
		{name: "wrong secret", body: body, signature: sig, secret: "other", wantErr: true},
		{name: "empty signature", body: body, secret: secret, wantErr: true},
		{name: "empty secret", body: body, signature: sig, wantErr: true},
		{name: "not hex", body: body, signature: "sha256=zz", secret: secret, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Verify(tt.body, tt.signature, tt.secret)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNotifyDeliversSignedEvent(t *testing.T) {
	t.Parallel()

	var got RunFinished
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if err := Verify(body, r.Header.Get(SignatureHeader), "s3cret"); err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	n := New([]config.WebhookConfig{{URL: srv.URL, Secret: "s3cret"}}, srv.Client(), log.Discard())
	err := n.NotifyRunFinished(context.Background(), RunFinished{RunID: "r1", Status: "succeeded", Scenes: 10})
	require.NoError(t, err)

	assert.Equal(t, EventRunFinished, got.Event)
	assert.Equal(t, "r1", got.RunID)
	assert.Equal(t, uint64(10), got.Scenes)
	assert.False(t, got.At.IsZero())
}

func TestNotifyRetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	n := New([]config.WebhookConfig{{URL: srv.URL}}, srv.Client(), log.Discard())
	n.backoff = time.Millisecond
	require.NoError(t, n.NotifyRunFinished(context.Background(), RunFinished{Status: "failed"}))
	assert.Equal(t, int32(3), calls.Load())
}

func TestNotifyDoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	t.Cleanup(bad.Close)
	var okCalls atomic.Int32
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		okCalls.Add(1)
	}))
	t.Cleanup(good.Close)

	n := New([]config.WebhookConfig{{URL: bad.URL}, {URL: good.URL}}, nil, log.Discard())
	n.backoff = time.Millisecond
	err := n.NotifyRunFinished(context.Background(), RunFinished{Status: "succeeded"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, int32(1), okCalls.Load())
}
