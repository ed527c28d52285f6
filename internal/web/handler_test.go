package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/actionsum/securetoggle/internal/broker"
	"github.com/actionsum/securetoggle/internal/config"
	"github.com/actionsum/securetoggle/internal/database"
	"github.com/actionsum/securetoggle/internal/models"
	"github.com/actionsum/securetoggle/internal/service"
	"github.com/actionsum/securetoggle/pkg/gesture"
)

type fakeDaemon struct {
	mu     sync.Mutex
	events []gesture.Event
	err    error
}

func (d *fakeDaemon) Status() service.Status {
	return service.Status{Running: true, ListenerID: "securetoggle-test", Gesture: "securetoggle.toggle"}
}

func (d *fakeDaemon) Publish(ctx context.Context, ev *gesture.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	if ev.ID == "" {
		ev.ID = "g-assigned"
	}
	d.events = append(d.events, *ev)
	return nil
}

func newTestMux(t *testing.T, daemon Daemon) (*http.ServeMux, *database.Repository) {
	t.Helper()

	db, err := database.Connect(filepath.Join(t.TempDir(), "web.db"))
	require.NoError(t, err)
	require.NoError(t, db.Initialize())
	t.Cleanup(func() { db.Close() })

	repo := database.NewRepository(db)
	mux := http.NewServeMux()
	NewHandler(config.Default(), repo, daemon, nil).SetupRoutes(mux)
	return mux, repo
}

func do(mux http.Handler, method, target, body string) *httptest.ResponseRecorder {
	headers := map[string]string{}
	if body != "" {
		headers["Content-Type"] = "application/json"
	}
	return doWithHeaders(mux, method, target, body, headers)
}

func doWithHeaders(mux http.Handler, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestHandleStatus(t *testing.T) {
	mux, _ := newTestMux(t, &fakeDaemon{})

	rec := do(mux, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var status service.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.True(t, status.Running)
	assert.Equal(t, "securetoggle-test", status.ListenerID)
}

func TestHandleStatusWithoutDaemon(t *testing.T) {
	mux, _ := newTestMux(t, nil)

	rec := do(mux, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"running":false`)

	rec = do(mux, http.MethodPost, "/api/gestures", `{"phase":"receive"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleGesture(t *testing.T) {
	daemon := &fakeDaemon{}
	mux, _ := newTestMux(t, daemon)

	rec := do(mux, http.MethodPost, "/api/gestures", `{"phase":"receive"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var ev gesture.Event
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ev))
	assert.Equal(t, "g-assigned", ev.ID)
	assert.Equal(t, gesture.PhaseReceive, ev.Phase)
	assert.Equal(t, "http", ev.Source)

	rec = do(mux, http.MethodPost, "/api/gestures", `{"phase":"release","id":"g-assigned","source":"curl"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	require.Len(t, daemon.events, 2)
	assert.Equal(t, gesture.PhaseDeactivate, daemon.events[1].Phase)
	assert.Equal(t, "curl", daemon.events[1].Source)
}

func TestHandleGestureRejects(t *testing.T) {
	mux, _ := newTestMux(t, &fakeDaemon{})

	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"phase":`},
		{"unknown phase", `{"phase":"wiggle"}`},
		{"other handled", `{"phase":"other-handled","id":"x"}`},
		{"deactivate without id", `{"phase":"deactivate"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(mux, http.MethodPost, "/api/gestures", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}
}

func TestHandleGestureRefusesCrossSiteRequests(t *testing.T) {
	daemon := &fakeDaemon{}
	mux, _ := newTestMux(t, daemon)
	body := `{"phase":"receive","id":"x1","source":"<img src=x onerror=alert(1)>"}`

	tests := []struct {
		name    string
		headers map[string]string
		status  int
	}{
		{"text/plain from foreign origin", map[string]string{"Content-Type": "text/plain", "Origin": "https://evil.example"}, http.StatusForbidden},
		{"json from foreign origin", map[string]string{"Content-Type": "application/json", "Origin": "https://evil.example"}, http.StatusForbidden},
		{"text/plain without origin", map[string]string{"Content-Type": "text/plain"}, http.StatusUnsupportedMediaType},
		{"form without origin", map[string]string{"Content-Type": "application/x-www-form-urlencoded"}, http.StatusUnsupportedMediaType},
		{"missing content type", map[string]string{}, http.StatusUnsupportedMediaType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doWithHeaders(mux, http.MethodPost, "/api/gestures", body, tt.headers)
			assert.Equal(t, tt.status, rec.Code)
			assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
		})
	}

	daemon.mu.Lock()
	defer daemon.mu.Unlock()
	assert.Empty(t, daemon.events)
}

func TestHandleGestureAllowsSameOrigin(t *testing.T) {
	daemon := &fakeDaemon{}
	mux, _ := newTestMux(t, daemon)

	// httptest requests carry Host example.com
	rec := doWithHeaders(mux, http.MethodPost, "/api/gestures", `{"phase":"receive"}`, map[string]string{
		"Content-Type": "application/json; charset=utf-8",
		"Origin":       "http://example.com",
	})
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Len(t, daemon.events, 1)
}

func TestIndexDoesNotInjectHTML(t *testing.T) {
	mux, _ := newTestMux(t, &fakeDaemon{})

	rec := do(mux, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "innerHTML")
	assert.Contains(t, rec.Body.String(), "textContent")
}

func TestHandleGestureNoListeners(t *testing.T) {
	mux, _ := newTestMux(t, &fakeDaemon{err: broker.ErrNoListeners})

	rec := do(mux, http.MethodPost, "/api/gestures", `{"phase":"receive"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleHistoryAndReport(t *testing.T) {
	mux, repo := newTestMux(t, nil)

	now := time.Now()
	for i, outcome := range []string{"committed", "aborted", "committed"} {
		require.NoError(t, repo.Create(&models.ToggleRecord{
			Timestamp: now.Add(time.Duration(i-3) * time.Second),
			EventID:   outcome,
			Gesture:   "securetoggle.toggle",
			Source:    "hotkey",
			Outcome:   outcome,
		}))
	}

	rec := do(mux, http.MethodGet, "/api/history?period=all&limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var history struct {
		Count   int                    `json:"count"`
		Records []*models.ToggleRecord `json:"records"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	assert.Equal(t, 2, history.Count)
	assert.Equal(t, "aborted", history.Records[0].Outcome)

	rec = do(mux, http.MethodGet, "/api/history?period=decade", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(mux, http.MethodGet, "/api/report?period=all", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var report models.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, int64(3), report.TotalCycles)
	assert.Equal(t, int64(2), report.Commits)

	rec = do(mux, http.MethodGet, "/api/history/latest", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"event_id":"committed"`)
}

func TestHandleLatestEmpty(t *testing.T) {
	mux, _ := newTestMux(t, nil)

	rec := do(mux, http.MethodGet, "/api/history/latest", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleHealthAndIndex(t *testing.T) {
	mux, _ := newTestMux(t, nil)

	rec := do(mux, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")

	rec = do(mux, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<title>securetoggle</title>")

	rec = do(mux, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
