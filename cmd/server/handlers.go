package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"marketdesk/internal/articles"
	"marketdesk/internal/market"
)

type errorResponse struct {
	Error string `json:"error"`
}

func handleMarket(svc *market.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		snap, err := svc.Snapshot(r.Context())
		if err != nil {
			slog.Error("market snapshot failed with no fallback", "error", err)
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Failed to fetch market data"})
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

func handleOverview(svc *market.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		ov, err := svc.Overview(r.Context())
		if err != nil {
			slog.Error("market overview failed with no fallback", "error", err)
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Failed to fetch market overview"})
			return
		}
		writeJSON(w, http.StatusOK, ov)
	}
}

func handleArticles(svc *articles.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		category := r.URL.Query().Get("category")
		limit := 10
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			limit = n
		}
		list, err := svc.List(r.Context(), category, limit)
		if err != nil {
			slog.Error("article list failed with no fallback", "error", err)
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Failed to fetch articles"})
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
