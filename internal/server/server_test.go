package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rahul/quill/internal/observability"
	"github.com/rahul/quill/internal/store"
	"github.com/rahul/quill/internal/workflow"
	"github.com/rahul/quill/pkg/config"
)

type fakeRuns struct {
	records map[string]*store.Record
	started []workflow.Input
	chats   []string
	resumes []ResumeRequest
	startFn func(in workflow.Input) (*store.Record, error)
}

func newFakeRuns() *fakeRuns {
	return &fakeRuns{records: map[string]*store.Record{}}
}

func suspendedRecord(id string) *store.Record {
	return &store.Record{
		Status: store.StatusSuspended,
		Run: &workflow.Run{
			ID:    id,
			Phase: workflow.PhasePlanReview,
			Pending: &workflow.Interrupt{
				ID:       "tok-1",
				Kind:     workflow.InterruptPlan,
				Action:   "ask",
				Question: "Review plan",
			},
		},
	}
}

func (f *fakeRuns) StartRun(_ context.Context, chatID string, in workflow.Input) (*store.Record, error) {
	f.chats = append(f.chats, chatID)
	f.started = append(f.started, in)
	if f.startFn != nil {
		return f.startFn(in)
	}
	rec := suspendedRecord("run-1")
	f.records[rec.Run.ID] = rec
	return rec, nil
}

func (f *fakeRuns) ResumeRun(_ context.Context, id, token, reply string) (*store.Record, error) {
	rec, ok := f.records[id]
	if !ok {
		return nil, store.ErrRunNotFound
	}
	f.resumes = append(f.resumes, ResumeRequest{Token: token, Reply: reply})
	if rec.Status != store.StatusSuspended {
		return rec, fmt.Errorf("%w: run %s", workflow.ErrNotSuspended, id)
	}
	if token != "" && token != rec.Run.Pending.ID {
		return rec, workflow.ErrStaleResume
	}
	rec.Status = store.StatusDone
	rec.Run.Phase = workflow.PhaseDone
	rec.Run.Pending = nil
	rec.Run.Content = "final article"
	rec.Run.Messages = []workflow.Message{{Role: workflow.RoleAI, Content: "final article"}}
	return rec, nil
}

func (f *fakeRuns) Get(_ context.Context, id string) (*store.Record, error) {
	rec, ok := f.records[id]
	if !ok {
		return nil, store.ErrRunNotFound
	}
	return rec, nil
}

func (f *fakeRuns) Discard(_ context.Context, id string, _ time.Time) (*store.Record, error) {
	rec, ok := f.records[id]
	if !ok {
		return nil, store.ErrRunNotFound
	}
	if rec.Status != store.StatusSuspended {
		return nil, nil
	}
	rec.Status = store.StatusDiscarded
	return rec, nil
}

func setupTestServer(t *testing.T, runs Runs) *Server {
	t.Helper()
	reg := prometheus.NewRegistry()
	_, err := observability.NewMetrics(reg)
	require.NoError(t, err)

	s, err := NewServer(runs, reg, observability.NewNopLogger(), config.ServerConfig{})
	require.NoError(t, err)
	return s
}

func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeView(t *testing.T, rec *httptest.ResponseRecorder) RunView {
	t.Helper()
	var v RunView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestNewServer(t *testing.T) {
	t.Run("requires a run service", func(t *testing.T) {
		_, err := NewServer(nil, nil, nil, config.ServerConfig{})
		assert.Error(t, err)
	})

	t.Run("defaults the address", func(t *testing.T) {
		s, err := NewServer(newFakeRuns(), nil, nil, config.ServerConfig{})
		require.NoError(t, err)
		assert.Equal(t, "localhost:8080", s.addr)
	})
}

func TestHandleHealth(t *testing.T) {
	s := setupTestServer(t, newFakeRuns())
	rec := do(t, s, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	s := setupTestServer(t, newFakeRuns())
	rec := do(t, s, http.MethodGet, "/metrics", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "quill_active_runs")
}

func TestStartRun(t *testing.T) {
	runs := newFakeRuns()
	s := setupTestServer(t, runs)

	t.Run("returns the pending interrupt", func(t *testing.T) {
		rec := do(t, s, http.MethodPost, "/api/v1/runs", StartRequest{
			ChatID:        "api:7",
			Request:       "write about go",
			PriorMessages: []workflow.Message{{Role: workflow.RoleHuman, Content: "earlier"}},
		})
		require.Equal(t, http.StatusCreated, rec.Code)

		v := decodeView(t, rec)
		assert.Equal(t, "run-1", v.ID)
		assert.Equal(t, store.StatusSuspended, v.Status)
		require.NotNil(t, v.Interrupt)
		assert.Equal(t, "tok-1", v.Interrupt.ID)
		assert.Equal(t, []string{"api:7"}, runs.chats)
		assert.Equal(t, "earlier", runs.started[0].PriorMessages[0].Content)
	})

	t.Run("rejects an empty request", func(t *testing.T) {
		rec := do(t, s, http.MethodPost, "/api/v1/runs", StartRequest{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("reports a failed run in the view", func(t *testing.T) {
		failing := newFakeRuns()
		failing.startFn = func(in workflow.Input) (*store.Record, error) {
			err := errors.New("route: model unavailable")
			return &store.Record{
				Status: store.StatusFailed,
				Error:  err.Error(),
				Run:    &workflow.Run{ID: "run-x", Phase: workflow.PhaseRoute},
			}, err
		}
		rec := do(t, setupTestServer(t, failing), http.MethodPost, "/api/v1/runs", StartRequest{Request: "x"})
		require.Equal(t, http.StatusCreated, rec.Code)

		v := decodeView(t, rec)
		assert.Equal(t, store.StatusFailed, v.Status)
		assert.Equal(t, "route: model unavailable", v.Error)
		assert.Nil(t, v.Interrupt)
	})
}

func TestGetRun(t *testing.T) {
	runs := newFakeRuns()
	runs.records["run-1"] = suspendedRecord("run-1")
	s := setupTestServer(t, runs)

	rec := do(t, s, http.MethodGet, "/api/v1/runs/run-1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, workflow.PhasePlanReview, decodeView(t, rec).Phase)

	rec = do(t, s, http.MethodGet, "/api/v1/runs/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestResumeRun(t *testing.T) {
	runs := newFakeRuns()
	runs.records["run-1"] = suspendedRecord("run-1")
	s := setupTestServer(t, runs)

	rec := do(t, s, http.MethodPost, "/api/v1/runs/run-1/resume", ResumeRequest{Token: "old", Reply: "approve"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/v1/runs/run-1/resume", ResumeRequest{Token: "tok-1", Reply: "approve"})
	require.Equal(t, http.StatusOK, rec.Code)
	v := decodeView(t, rec)
	assert.Equal(t, store.StatusDone, v.Status)
	assert.Equal(t, "final article", v.Content)
	assert.Len(t, v.Messages, 1)
	assert.Nil(t, v.Interrupt)

	// already done
	rec = do(t, s, http.MethodPost, "/api/v1/runs/run-1/resume", ResumeRequest{Reply: "approve"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/v1/runs/missing/resume", ResumeRequest{Reply: "approve"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDiscardRun(t *testing.T) {
	runs := newFakeRuns()
	runs.records["run-1"] = suspendedRecord("run-1")
	s := setupTestServer(t, runs)

	rec := do(t, s, http.MethodDelete, "/api/v1/runs/run-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, store.StatusDiscarded, decodeView(t, rec).Status)

	rec = do(t, s, http.MethodDelete, "/api/v1/runs/run-1", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}
