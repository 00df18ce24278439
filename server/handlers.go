package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/onnwee/roomcast/player"
	"github.com/onnwee/roomcast/telemetry"
)

const statusHistoryLimit = 20

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	db         Pinger
	player     Player
	history    HistoryReader
	relayCheck func() error
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(opts Options) *Handlers {
	return &Handlers{
		db:         opts.DB,
		player:     opts.Player,
		history:    opts.History,
		relayCheck: opts.RelayCheck,
	}
}

type statusResponse struct {
	Player  player.Status  `json:"player"`
	History []player.Event `json:"history"`
}

// HandleStatus reports the player snapshot and the most recent play events.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{Player: h.player.Status(), History: []player.Event{}}
	if h.history != nil {
		events, err := h.history.Recent(r.Context(), parseIntQuery(r, "history", statusHistoryLimit))
		if err != nil {
			telemetry.LoggerWithCorr(r.Context()).Warn("status history lookup failed", slog.Any("err", err), slog.String("component", "http"))
		} else if events != nil {
			resp.History = events
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type queueRequest struct {
	URL string `json:"url"`
}

// HandleAdminQueue appends a URL to the play queue.
func (h *Handlers) HandleAdminQueue(w http.ResponseWriter, r *http.Request) {
	var req queueRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		http.Error(w, "url is required", http.StatusBadRequest)
		return
	}
	pos := h.player.Enqueue(req.URL)
	if pos < 0 {
		http.Error(w, "player is shutting down", http.StatusServiceUnavailable)
		return
	}
	telemetry.LoggerWithCorr(r.Context()).Info("admin queued url", slog.String("url", req.URL), slog.Int("position", pos), slog.String("component", "http"))
	writeJSON(w, http.StatusAccepted, map[string]any{"url": req.URL, "position": pos})
}

// HandleAdminStop stops playback and clears the queue.
func (h *Handlers) HandleAdminStop(w http.ResponseWriter, r *http.Request) {
	h.player.Stop()
	telemetry.LoggerWithCorr(r.Context()).Info("admin stopped playback", slog.String("component", "http"))
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
