package httptransport

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/AI-Fresh-Docs/RusTokio/internal/outbox"
	"github.com/AI-Fresh-Docs/RusTokio/pkg/domain"
	dErrors "github.com/AI-Fresh-Docs/RusTokio/pkg/domain-errors"
	"github.com/AI-Fresh-Docs/RusTokio/pkg/platform/httputil"
	"github.com/AI-Fresh-Docs/RusTokio/pkg/requestcontext"
)

const (
	defaultFailedLimit = 100
	maxFailedLimit     = 1000
)

// FailedRecord is one dead-lettered outbox row.
type FailedRecord struct {
	ID           string    `json:"id"`
	TenantID     string    `json:"tenant_id"`
	EventType    string    `json:"event_type"`
	AttemptCount int       `json:"attempt_count"`
	LastError    string    `json:"last_error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type FailedResponse struct {
	Records []FailedRecord `json:"records"`
}

func toFailedRecord(rec outbox.Record) FailedRecord {
	out := FailedRecord{
		ID:           rec.ID.String(),
		TenantID:     rec.TenantID.String(),
		EventType:    rec.EventType,
		AttemptCount: rec.AttemptCount,
		CreatedAt:    rec.CreatedAt,
	}
	if rec.LastError != nil {
		out.LastError = *rec.LastError
	}
	return out
}

// HandleListFailed handles GET /admin/outbox/failed?limit=.
func (h *Handler) HandleListFailed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit := defaultFailedLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxFailedLimit {
			httputil.WriteError(w, dErrors.Newf(dErrors.CodeBadRequest, "limit must be between 1 and %d", maxFailedLimit))
			return
		}
		limit = n
	}

	recs, err := h.outbox.ListFailed(ctx, limit)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list failed outbox records",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	resp := FailedResponse{Records: make([]FailedRecord, 0, len(recs))}
	for _, rec := range recs {
		resp.Records = append(resp.Records, toFailedRecord(rec))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// HandleRequeue handles POST /admin/outbox/{id}/requeue. Only Failed records
// can be requeued; anything else answers 404.
func (h *Handler) HandleRequeue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	id, err := domain.ParseEventID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid event id"))
		return
	}
	if err := h.outbox.Requeue(ctx, id); err != nil {
		h.logger.WarnContext(ctx, "outbox requeue failed",
			"request_id", requestID,
			"event_id", id.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "outbox record requeued by operator",
		"request_id", requestID,
		"event_id", id.String(),
	)
	w.WriteHeader(http.StatusNoContent)
}
