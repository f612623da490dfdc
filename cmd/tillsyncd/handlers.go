// Package main provides the local HTTP handlers for status and manual
// sync triggers.
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/hweilin/tillsync/internal/models"
)

// Coordinator is the service surface the handlers expose.
type Coordinator interface {
	TriggerSync(ctx context.Context) models.SyncResult
	Status() models.SyncStatus
}

const triggerTimeout = 5 * time.Minute

// registerHandlers mounts the status and sync endpoints.
func registerHandlers(mux *http.ServeMux, svc Coordinator) {
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, svc.Status())
	})

	mux.HandleFunc("/sync", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), triggerTimeout)
		defer cancel()

		result := svc.TriggerSync(ctx)
		status := http.StatusOK
		if !result.Success {
			status = http.StatusBadGateway
		}
		writeJSON(w, status, result)
	})

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "tillsyncd"})
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
