package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"

	"github.com/couchcryptid/atmosfault-service/internal/domain"
)

const maxSyncBody = 1 << 10

type errorResponse struct {
	Error          string `json:"error"`
	TrackingNumber string `json:"trackingNumber,omitempty"`
	Message        string `json:"message,omitempty"`
}

type syncRequest struct {
	Hour *float64 `json:"hour"`
}

type batchSyncResponse struct {
	Success          bool `json:"success"`
	Hour             int  `json:"hour"`
	RecordsProcessed int  `json:"recordsProcessed"`
}

type fullSyncResponse struct {
	Success      bool                 `json:"success"`
	TotalRecords int                  `json:"totalRecords"`
	HourResults  []domain.BatchResult `json:"hourResults"`
}

func (s *Server) handleTrack(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	resp, err := s.tracker.Assemble(r.Context(), id)
	switch {
	case err == nil:
		sharedobs.WriteJSON(w, http.StatusOK, resp)
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrUpstreamUnavailable):
		s.logger.Info("tracking lookup failed", "tracking_number", id, "error", err)
		sharedobs.WriteJSON(w, http.StatusNotFound, errorResponse{
			Error:          "Tracking number not found or provider unavailable",
			TrackingNumber: id,
		})
	case errors.Is(err, domain.ErrRateLimited):
		w.Header().Set("Retry-After", "60")
		sharedobs.WriteJSON(w, http.StatusTooManyRequests, errorResponse{Error: "Too many requests. Please try again later."})
	default:
		s.logger.Error("tracking lookup error", "tracking_number", id, "error", err)
		sharedobs.WriteJSON(w, http.StatusInternalServerError, errorResponse{
			Error:   "Internal server error",
			Message: err.Error(),
		})
	}
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	hour, err := parseSyncRequest(r)
	if err != nil {
		sharedobs.WriteJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	if hour == nil {
		summary, err := s.syncer.IngestAll(r.Context())
		if err != nil {
			s.logger.Error("full sync error", "error", err)
			sharedobs.WriteJSON(w, http.StatusInternalServerError, errorResponse{
				Error:   "Failed to sync data",
				Message: err.Error(),
			})
			return
		}
		sharedobs.WriteJSON(w, http.StatusOK, fullSyncResponse{
			Success:      true,
			TotalRecords: summary.Total,
			HourResults:  summary.PerBatch,
		})
		return
	}

	n, err := s.syncer.IngestBatch(r.Context(), *hour)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrValidation) {
			status = http.StatusBadRequest
		}
		s.logger.Error("batch sync error", "hour", *hour, "error", err)
		sharedobs.WriteJSON(w, status, errorResponse{
			Error:   "Failed to sync data",
			Message: err.Error(),
		})
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, batchSyncResponse{Success: true, Hour: *hour, RecordsProcessed: n})
}

// parseSyncRequest returns the requested hour, or nil for a full sync. An
// empty body means a full sync.
func parseSyncRequest(r *http.Request) (*int, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxSyncBody+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(body) > maxSyncBody {
		return nil, errors.New("request body too large")
	}
	if len(body) == 0 {
		return nil, nil
	}

	var req syncRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, errors.New("invalid JSON body")
	}
	if req.Hour == nil {
		return nil, nil
	}
	h := *req.Hour
	if h != math.Trunc(h) || !domain.ValidBatchIndex(int(h)) {
		return nil, errors.New("invalid hour: must be between 0 and 23")
	}
	hour := int(h)
	return &hour, nil
}
