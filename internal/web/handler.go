package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/actionsum/securetoggle/internal/broker"
	"github.com/actionsum/securetoggle/internal/config"
	"github.com/actionsum/securetoggle/internal/database"
	"github.com/actionsum/securetoggle/internal/reporter"
	"github.com/actionsum/securetoggle/internal/service"
	"github.com/actionsum/securetoggle/pkg/gesture"
)

// Daemon is the running service as seen by the API
type Daemon interface {
	Status() service.Status
	Publish(ctx context.Context, ev *gesture.Event) error
}

type Handler struct {
	config   *config.Config
	repo     *database.Repository
	reporter *reporter.Reporter
	daemon   Daemon
	logger   *slog.Logger
}

func NewHandler(cfg *config.Config, repo *database.Repository, daemon Daemon, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{
		config:   cfg,
		repo:     repo,
		reporter: reporter.New(repo),
		daemon:   daemon,
		logger:   logger,
	}
}

func (h *Handler) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/status", h.handleStatus)
	mux.HandleFunc("GET /api/history", h.handleHistory)
	mux.HandleFunc("GET /api/history/latest", h.handleLatest)
	mux.HandleFunc("GET /api/report", h.handleReport)
	mux.HandleFunc("GET /api/errors", h.handleErrors)
	mux.HandleFunc("POST /api/gestures", h.handleGesture)

	mux.HandleFunc("GET /health", h.handleHealth)

	mux.HandleFunc("GET /{$}", h.handleIndex)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	if h.daemon == nil {
		respondJSON(w, http.StatusOK, service.Status{Gesture: h.config.Broker.Identifier})
		return
	}
	respondJSON(w, http.StatusOK, h.daemon.Status())
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	periodType := query.Get("period")
	if periodType == "" {
		periodType = "day"
	}
	period, err := h.reporter.Period(periodType)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	records, err := h.repo.GetRecordsSince(period.Start)
	if err != nil {
		respondError(w, http.StatusInternalServerError, errors.Wrap(err, "failed to fetch history"))
		return
	}

	limit := parseLimit(query.Get("limit"), 100)
	if len(records) > limit {
		records = records[len(records)-limit:]
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"period":  period,
		"records": records,
		"count":   len(records),
	})
}

func (h *Handler) handleLatest(w http.ResponseWriter, r *http.Request) {
	record, err := h.repo.GetLatest()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	if record == nil {
		respondError(w, http.StatusNotFound, errors.New("no gestures recorded"))
		return
	}
	respondJSON(w, http.StatusOK, record)
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	periodType := r.URL.Query().Get("period")
	if periodType == "" {
		periodType = "day"
	}

	report, err := h.reporter.GenerateReport(periodType)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

func (h *Handler) handleErrors(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r.URL.Query().Get("limit"), 50)
	logs, err := h.repo.GetErrorsSince(time.Now().Add(-7*24*time.Hour), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, logs)
}

type gestureRequest struct {
	ID         string `json:"id"`
	Identifier string `json:"identifier"`
	Phase      string `json:"phase"`
	Source     string `json:"source"`
}

// handleGesture injects one gesture phase. A receive without an ID gets one
// assigned; send it back with the matching deactivate or abort.
func (h *Handler) handleGesture(w http.ResponseWriter, r *http.Request) {
	if h.daemon == nil {
		respondError(w, http.StatusServiceUnavailable, errors.New("gesture injection needs the daemon"))
		return
	}

	if err := checkGestureOrigin(r); err != nil {
		respondError(w, http.StatusForbidden, err)
		return
	}
	if mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mediaType != "application/json" {
		respondError(w, http.StatusUnsupportedMediaType, errors.New("gesture requests must be application/json"))
		return
	}

	var req gestureRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errors.Wrap(err, "invalid gesture request"))
		return
	}
	phase, err := gesture.ParsePhase(req.Phase)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if phase == gesture.PhaseOtherListenerHandled {
		respondError(w, http.StatusBadRequest, errors.New("other-handled is produced by the broker"))
		return
	}
	if phase != gesture.PhaseReceive && req.ID == "" {
		respondError(w, http.StatusBadRequest, errors.Errorf("%s needs the id of its receive", phase))
		return
	}

	source := req.Source
	if source == "" {
		source = "http"
	}
	ev := &gesture.Event{
		ID:         req.ID,
		Identifier: req.Identifier,
		Phase:      phase,
		Source:     source,
	}

	if err := h.daemon.Publish(r.Context(), ev); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, broker.ErrNoListeners) {
			status = http.StatusNotFound
		}
		respondError(w, status, err)
		return
	}

	h.logger.Debug("gesture injected over HTTP", "event", ev.String())
	respondJSON(w, http.StatusAccepted, ev)
}

// checkGestureOrigin lets through clients that send no Origin (curl, the
// CLI) and pages served by this server. Browsers on other sites are refused.
func checkGestureOrigin(r *http.Request) error {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return nil
	}
	u, err := url.Parse(origin)
	if err == nil && u.Host != "" && strings.EqualFold(u.Host, r.Host) {
		return nil
	}
	return errors.Errorf("cross-origin gesture request from %q refused", origin)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(indexHTML))
}

func parseLimit(s string, def int) int {
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return def
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("error encoding JSON", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, err error) {
	respondJSON(w, status, map[string]string{"error": err.Error()})
}

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>securetoggle</title>
<style>
  body { font-family: system-ui, sans-serif; margin: 2rem auto; max-width: 48rem; color: #222; }
  h1 { font-size: 1.4rem; }
  .secure { color: #2e7d32; font-weight: 600; }
  .open { color: #c62828; font-weight: 600; }
  table { border-collapse: collapse; width: 100%; }
  td, th { text-align: left; padding: .25rem .5rem; border-bottom: 1px solid #ddd; }
</style>
</head>
<body>
<h1>securetoggle</h1>
<p id="status">loading...</p>
<table>
  <thead><tr><th>Time</th><th>Source</th><th>Outcome</th><th>Secure</th></tr></thead>
  <tbody id="history"></tbody>
</table>
<script>
async function refresh() {
  const status = await (await fetch('/api/status')).json();
  const c = status.controller || {};
  const el = document.getElementById('status');
  el.className = c.secure ? 'secure' : 'open';
  el.textContent = (c.secure ? 'secure' : 'not secure') + ' | state: ' + (c.state || 'stopped') + ' | gesture: ' + status.gesture;

  const history = await (await fetch('/api/history?limit=20')).json();
  const body = document.getElementById('history');
  body.replaceChildren(...(history.records || []).reverse().map(r => {
    const tr = document.createElement('tr');
    for (const v of [new Date(r.timestamp).toLocaleTimeString(), r.source, r.outcome, String(r.secure)]) {
      const td = document.createElement('td');
      td.textContent = v;
      tr.appendChild(td);
    }
    return tr;
  }));
}
refresh();
setInterval(refresh, 5000);
</script>
</body>
</html>
`
