package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Baldasarre/DiscountNotifier-sub000/internal/pipeline"
	"github.com/Baldasarre/DiscountNotifier-sub000/internal/progress"
)

// terminalLinger keeps a progress stream open briefly after a terminal
// snapshot so clients receive the final state before the connection closes.
const terminalLinger = 1 * time.Second

// handleScrape triggers a run for one source and returns the job id without
// waiting for the run.
func handleScrape(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		source := chi.URLParam(r, "source")

		mode, err := pipeline.ParseMode(r.URL.Query().Get("mode"))
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		// The run outlives this request; it is bound to the server's
		// lifetime, not the trigger's.
		jobID, err := deps.Runner.Start(baseContext(r), source, mode)
		if errors.Is(err, pipeline.ErrAlreadyRunning) {
			httpError(w, http.StatusConflict, "already_running", "a scrape for %s is already in progress", source)
			return
		}
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		respondJSON(w, http.StatusAccepted, map[string]string{"jobId": jobID})
	}
}

func handleListJobs(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]any{"jobs": deps.Tracker.List()})
	}
}

func handleGetJob(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := deps.Tracker.Get(chi.URLParam(r, "id"))
		if errors.Is(err, progress.ErrJobNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "unknown job")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "internal_error", "%v", err)
			return
		}
		respondJSON(w, http.StatusOK, snap)
	}
}

// handleJobEvents streams one SSE message per progress tick and auto-closes
// one second after a terminal snapshot. The subscription is a plain consumer:
// attaching or detaching never affects the job.
func handleJobEvents(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			httpError(w, http.StatusInternalServerError, "api_error", "streaming not supported")
			return
		}

		events, cancel, err := deps.Tracker.Subscribe(chi.URLParam(r, "id"))
		if errors.Is(err, progress.ErrJobNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "unknown job")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "internal_error", "%v", err)
			return
		}
		defer cancel()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		flusher.Flush()

		var linger *time.Timer
		var lingerC <-chan time.Time

		for {
			select {
			case <-r.Context().Done():
				return
			case <-lingerC:
				return
			case snap, open := <-events:
				if !open {
					return
				}
				if err := writeEvent(w, snap); err != nil {
					return
				}
				flusher.Flush()
				if snap.Status.Terminal() && linger == nil {
					linger = time.NewTimer(terminalLinger)
					defer linger.Stop()
					lingerC = linger.C
				}
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, snap progress.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", payload)
	return err
}
