package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"monitord/internal/engine"
)

// startAdminServer exposes the façade's read-only views and control
// operations over a small local mux. There is no authentication here:
// the admin surface is expected to be bound to localhost or fronted by
// the operator's own proxy.
func startAdminServer(addr string, eng *engine.Engine, logger *slog.Logger) {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		writeAdminJSON(w, http.StatusOK, map[string]any{"status": "ok", "platforms": eng.PlatformHealth(ctx)})
	})

	mux.HandleFunc("GET /probes", func(w http.ResponseWriter, r *http.Request) {
		writeAdminJSON(w, http.StatusOK, eng.ListProbes())
	})

	mux.HandleFunc("GET /probes/running", func(w http.ResponseWriter, r *http.Request) {
		writeAdminJSON(w, http.StatusOK, eng.RunningProbes())
	})

	mux.HandleFunc("GET /probes/{id}/state", func(w http.ResponseWriter, r *http.Request) {
		st, err := eng.LoadProbeState(r.Context(), r.PathValue("id"))
		if err != nil {
			writeAdminError(w, statusFor(err), err.Error())
			return
		}
		writeAdminJSON(w, http.StatusOK, st)
	})

	mux.HandleFunc("GET /alerts/recent", func(w http.ResponseWriter, r *http.Request) {
		alerts, err := eng.ListRecentAlerts(r.Context(), limitParam(r, 50))
		if err != nil {
			writeAdminError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeAdminJSON(w, http.StatusOK, alerts)
	})

	mux.HandleFunc("GET /runs/recent", func(w http.ResponseWriter, r *http.Request) {
		runs, err := eng.ListRecentRuns(r.Context(), limitParam(r, 50))
		if err != nil {
			writeAdminError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeAdminJSON(w, http.StatusOK, runs)
	})

	control := func(pattern string, op func(*http.Request, string) error) {
		mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
			id := r.PathValue("id")
			if err := op(r, id); err != nil {
				writeAdminError(w, statusFor(err), err.Error())
				return
			}
			writeAdminJSON(w, http.StatusOK, map[string]any{"ok": true})
		})
	}
	control("POST /probes/{id}/run", func(r *http.Request, id string) error { return eng.RunOnce(id) })
	control("POST /probes/{id}/enable", func(r *http.Request, id string) error { return eng.Enable(id) })
	control("POST /probes/{id}/disable", func(r *http.Request, id string) error { return eng.Disable(id) })
	control("POST /probes/{id}/mute", func(r *http.Request, id string) error {
		minutes, err := strconv.Atoi(r.URL.Query().Get("minutes"))
		if err != nil {
			return errors.New("minutes query parameter is required")
		}
		return eng.Mute(r.Context(), id, minutes)
	})
	control("POST /probes/{id}/unmute", func(r *http.Request, id string) error { return eng.Unmute(r.Context(), id) })

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       30 * time.Second,
	}

	logger.Info("admin server listening", slog.String("addr", addr))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("admin server error", slog.String("error", err.Error()))
	}
}

func statusFor(err error) int {
	var notFound *engine.NotFoundError
	if errors.As(err, &notFound) {
		return http.StatusNotFound
	}
	return http.StatusBadRequest
}

func limitParam(r *http.Request, fallback int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
		return parsed
	}
	return fallback
}

func writeAdminJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeAdminError(w http.ResponseWriter, status int, message string) {
	writeAdminJSON(w, status, map[string]any{"ok": false, "error": message})
}
