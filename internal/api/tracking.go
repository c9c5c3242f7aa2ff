package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Baldasarre/DiscountNotifier-sub000/internal/storage"
	"github.com/Baldasarre/DiscountNotifier-sub000/internal/tracking"
)

// AddTrackingRequest is the body for POST /tracking: a marketing URL or a
// short reference code, plus alert preferences.
type AddTrackingRequest struct {
	Input          string `json:"input"`
	AlertPriceDrop bool   `json:"alertPriceDrop"`
	AlertRestock   bool   `json:"alertRestock"`
}

// TrackingResponse pairs a tracking record with the resolved product.
type TrackingResponse struct {
	Record  storage.TrackingRecord   `json:"record"`
	Product storage.CanonicalProduct `json:"product"`
}

func handleListTracking(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := userID(r)
		if !ok {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "missing X-User-ID header")
			return
		}

		records, err := deps.Tracking.List(user)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "internal_error", "listing tracking: %v", err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{"records": records})
	}
}

func handleAddTracking(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := userID(r)
		if !ok {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "missing X-User-ID header")
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req AddTrackingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Input == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "input is required")
			return
		}

		rec, product, err := deps.Tracking.Add(r.Context(), user, req.Input, tracking.Prefs{
			PriceDrop: req.AlertPriceDrop,
			Restock:   req.AlertRestock,
		})
		if errors.Is(err, storage.ErrCapacityExceeded) {
			httpError(w, http.StatusConflict, "capacity_exceeded", "tracking list is full")
			return
		}
		if err != nil {
			code, errType := resolverErrorStatus(err)
			httpError(w, code, errType, "%v", err)
			return
		}

		respondJSON(w, http.StatusCreated, TrackingResponse{Record: rec, Product: product})
	}
}

func handleRemoveTracking(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := userID(r)
		if !ok {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "missing X-User-ID header")
			return
		}

		err := deps.Tracking.Remove(user, chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "unknown tracking record")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "internal_error", "removing tracking: %v", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleResolve maps an arbitrary URL or reference code to its canonical
// record without tracking it.
func handleResolve(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		input := r.URL.Query().Get("url")
		if input == "" {
			input = r.URL.Query().Get("ref")
		}
		if input == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "url or ref query parameter is required")
			return
		}

		product, err := deps.Resolver.Resolve(r.Context(), input)
		if err != nil {
			code, errType := resolverErrorStatus(err)
			httpError(w, code, errType, "%v", err)
			return
		}
		respondJSON(w, http.StatusOK, product)
	}
}
