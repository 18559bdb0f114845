package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strings"

	"blackframe/internal/dto"
	"blackframe/internal/logger"
	"blackframe/internal/service"
	"blackframe/internal/service/source"
)

// CreateScanHandler handles POST /api/scans by queueing the videos found at
// the requested path.
func CreateScanHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req dto.ScanRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid JSON body", http.StatusBadRequest)
			return
		}
		req.Path = strings.TrimSpace(req.Path)
		if req.Path == "" {
			http.Error(w, "Path required", http.StatusBadRequest)
			return
		}

		runID, queued, err := manager.Submit(req)
		switch {
		case err == nil:
			writeJSON(w, http.StatusAccepted, dto.ScanAccepted{RunID: runID, Queued: queued}, logger)
		case errors.Is(err, service.ErrQueueFull):
			writeJSON(w, http.StatusServiceUnavailable, dto.ScanAccepted{RunID: runID, Queued: queued}, logger)
		case errors.Is(err, service.ErrManagerStopped):
			http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		case errors.Is(err, source.ErrUnsupported), errors.Is(err, os.ErrNotExist):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			logger.Error("Error submitting scan of %s: %v", req.Path, err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		}
	}
}

// writeJSON writes v as a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}, logger *logger.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Error encoding JSON response: %v", err)
	}
}
