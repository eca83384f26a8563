package app

import (
	"encoding/json"
	"net/http"
	"strconv"

	"mtf-screener/internal/metrics"
	"mtf-screener/internal/model"
)

const (
	defaultSignalLimit = 50
	maxSignalLimit     = 500
)

// Handler returns the HTTP surface: /healthz, /metrics, /aligned, /signals
// and, when the websocket sink is enabled, /ws.
func (svc *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/healthz", svc.health)
	mux.Handle("/metrics", metrics.Handler(svc.reg))
	mux.HandleFunc("/aligned", svc.handleAligned)
	mux.HandleFunc("/signals", svc.handleSignals)
	if svc.hub != nil {
		mux.Handle("/ws", svc.hub)
	}
	return mux
}

// handleAligned serves every pair currently aligned within the window.
func (svc *Service) handleAligned(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "GET only", http.StatusMethodNotAllowed)
		return
	}
	aligned := svc.engine.Aligner().GetAllAligned(svc.cfg.Screener.AlignWindow)
	if aligned == nil {
		aligned = []model.AlignedSignal{}
	}
	writeJSON(w, aligned)
}

// handleSignals serves the most recent journaled signals, newest first.
func (svc *Service) handleSignals(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "GET only", http.StatusMethodNotAllowed)
		return
	}
	if svc.journal == nil {
		http.Error(w, "journal sink disabled", http.StatusNotFound)
		return
	}

	limit := defaultSignalLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxSignalLimit)
	}

	var (
		out any
		err error
	)
	if r.URL.Query().Get("type") == "aligned" {
		out, err = svc.journal.RecentAligned(r.Context(), limit)
	} else {
		out, err = svc.journal.Recent(r.Context(), limit)
	}
	if err != nil {
		svc.log.Error("journal query failed", "error", err)
		http.Error(w, "journal query failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, out)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
