package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"solwatch/internal/cache"
	"solwatch/internal/refresher"
	"solwatch/internal/storage"
)

// Trigger is the slice of the refresher the handlers need.
type Trigger interface {
	TriggerRefresh()
	State() refresher.State
}

// LatestSnapshot serves the cached snapshot.
func LatestSnapshot(c *cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := c.Read()
		if snap == nil {
			http.Error(w, `{"error":"no data available yet"}`, http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(snap)
	}
}

// TriggerRefresh requests an asynchronous cache refresh.
func TriggerRefresh(t Trigger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t.TriggerRefresh()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"status":"refresh scheduled"}`))
	}
}

// RefreshState exposes the refresher state machine's outcome record.
func RefreshState(t Trigger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(t.State())
	}
}

// RecentSamples lists persisted snapshot history.
func RecentSamples(store storage.SampleStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			http.Error(w, `{"error":"history not configured"}`, http.StatusNotImplemented)
			return
		}

		limit := 50
		if raw := r.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 || parsed > 1000 {
				http.Error(w, `{"error":"limit must be between 1 and 1000"}`, http.StatusBadRequest)
				return
			}
			limit = parsed
		}

		samples, err := store.ListRecentSamples(r.Context(), limit)
		if err != nil {
			http.Error(w, `{"error":"failed to list samples"}`, http.StatusInternalServerError)
			return
		}

		type sampleJSON struct {
			FetchedAt     string          `json:"fetched_at"`
			SlotHeight    uint64          `json:"slot_height"`
			TotalLamports uint64          `json:"total_lamports"`
			Balances      json.RawMessage `json:"balances"`
			TxCount       int             `json:"tx_count"`
			Status        string          `json:"status"`
			Error         *string         `json:"error,omitempty"`
		}
		out := make([]sampleJSON, 0, len(samples))
		for _, s := range samples {
			out = append(out, sampleJSON{
				FetchedAt:     s.FetchedAt.UTC().Format(time.RFC3339),
				SlotHeight:    s.SlotHeight,
				TotalLamports: s.TotalLamports,
				Balances:      s.Balances,
				TxCount:       s.TxCount,
				Status:        s.Status,
				Error:         s.Error,
			})
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(out)
	}
}

// Health always reports ok while the process lives.
func Health() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}
}

// Ready reports ok once at least one snapshot has been fetched.
func Ready(c *cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if c.Read() == nil {
			http.Error(w, `{"status":"not ready"}`, http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	}
}
