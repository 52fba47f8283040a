package main

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/DaveXRouz/Bental-sub004/internal/fxrates"
	"github.com/DaveXRouz/Bental-sub004/internal/store"
	"github.com/DaveXRouz/Bental-sub004/internal/stream"
	"github.com/DaveXRouz/Bental-sub004/internal/submux"
	"github.com/DaveXRouz/Bental-sub004/internal/version"
)

// createHandler builds the health/debug HTTP surface.
func createHandler(s *store.Store, sc *stream.Client, fx *fxrates.Client, mux *submux.Mux, logger *slog.Logger) http.Handler {
	h := http.NewServeMux()

	h.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		stats := mux.Stats()
		writeJSON(w, logger, map[string]any{
			"version":          version.String(),
			"stream_connected": sc.IsConnected(),
			"fx_stale":         fx.IsStale(),
			"tickers":          len(s.GetAllTickers()),
			"active_keys":      stats.ActiveKeys,
			"subscribers":      stats.Subscribers,
		})
	})

	h.HandleFunc("/tickers", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, logger, s.GetAllTickers())
	})

	h.HandleFunc("/tickers/", func(w http.ResponseWriter, r *http.Request) {
		symbol := r.URL.Path[len("/tickers/"):]
		record, ok := s.GetTicker(symbol)
		if !ok {
			http.Error(w, "unknown symbol", http.StatusNotFound)
			return
		}
		writeJSON(w, logger, record)
	})

	return h
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("failed to encode response", "error", err)
	}
}
