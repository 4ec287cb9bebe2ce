package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/logpatrol/logpatrol/internal/logging"
	"github.com/logpatrol/logpatrol/internal/monitor"
	"github.com/logpatrol/logpatrol/internal/notify"
	"github.com/logpatrol/logpatrol/pkg/types"
)

// adminAPI exposes monitor control and reporting over HTTP.
type adminAPI struct {
	manager *monitor.Manager
	logger  *logging.Logger
}

func (a *adminAPI) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/services", a.listServices)
	mux.HandleFunc("POST /api/services/{id}/start", a.startService)
	mux.HandleFunc("POST /api/services/{id}/stop", a.stopService)
	mux.HandleFunc("GET /api/services/{id}/status", a.serviceStatus)
	mux.HandleFunc("GET /api/services/{id}/summary", a.serviceSummary)
	mux.HandleFunc("GET /api/services/{id}/players", a.servicePlayers)
	mux.HandleFunc("GET /api/services/{id}/kills", a.serviceKills)
	mux.HandleFunc("PUT /api/services/{id}/interval", a.setInterval)
	mux.HandleFunc("DELETE /api/services/{id}", a.forgetService)
	return mux
}

type feedRequest struct {
	Category    string `json:"category"`
	Destination string `json:"destination"`
	Template    string `json:"template,omitempty"`
	CooldownSec int    `json:"cooldown_seconds,omitempty"`
	Severity    string `json:"severity,omitempty"`
}

type startRequest struct {
	Token       string        `json:"token"`
	LogDir      string        `json:"log_dir,omitempty"`
	IntervalSec int           `json:"interval_seconds,omitempty"`
	Feeds       []feedRequest `json:"feeds,omitempty"`
}

func (a *adminAPI) listServices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.manager.Statuses())
}

func (a *adminAPI) startService(w http.ResponseWriter, r *http.Request) {
	serviceID := r.PathValue("id")

	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	feeds := make([]notify.Feed, 0, len(req.Feeds))
	for _, f := range req.Feeds {
		feed := notify.Feed{
			Category:    types.Category(f.Category),
			Destination: f.Destination,
			Template:    f.Template,
			Cooldown:    time.Duration(f.CooldownSec) * time.Second,
		}
		if f.Severity != "" {
			severity, ok := types.ParseSeverity(f.Severity)
			if !ok {
				writeError(w, http.StatusBadRequest, "invalid severity: "+f.Severity)
				return
			}
			feed.Severity = &severity
		}
		feeds = append(feeds, feed)
	}

	var overrides *monitor.Config
	if req.LogDir != "" || req.IntervalSec > 0 {
		overrides = &monitor.Config{
			LogDir:   req.LogDir,
			Interval: time.Duration(req.IntervalSec) * time.Second,
		}
	}

	if err := a.manager.StartMonitoring(serviceID, req.Token, feeds, overrides); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"service_id": serviceID, "state": "running"})
}

func (a *adminAPI) stopService(w http.ResponseWriter, r *http.Request) {
	stats, err := a.manager.StopMonitoring(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (a *adminAPI) serviceStatus(w http.ResponseWriter, r *http.Request) {
	status, err := a.manager.GetStatus(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (a *adminAPI) serviceSummary(w http.ResponseWriter, r *http.Request) {
	span := time.Hour
	if raw := r.URL.Query().Get("window"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "invalid window duration")
			return
		}
		span = parsed
	}
	writeJSON(w, http.StatusOK, a.manager.Summary(r.PathValue("id"), span))
}

func (a *adminAPI) servicePlayers(w http.ResponseWriter, r *http.Request) {
	players := a.manager.CurrentPlayers(r.PathValue("id"))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(players),
		"players": players,
	})
}

func (a *adminAPI) serviceKills(w http.ResponseWriter, r *http.Request) {
	n := 10
	if raw := r.URL.Query().Get("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "invalid kill count")
			return
		}
		n = parsed
	}
	writeJSON(w, http.StatusOK, a.manager.RecentKills(r.PathValue("id"), n))
}

func (a *adminAPI) setInterval(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IntervalSec int `json:"interval_seconds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.IntervalSec <= 0 {
		writeError(w, http.StatusBadRequest, "interval_seconds must be positive")
		return
	}

	serviceID := r.PathValue("id")
	if err := a.manager.SetInterval(serviceID, time.Duration(req.IntervalSec)*time.Second); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"service_id": serviceID})
}

func (a *adminAPI) forgetService(w http.ResponseWriter, r *http.Request) {
	if err := a.manager.Forget(r.PathValue("id")); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
