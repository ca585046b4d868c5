package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/michalmalinowski87/photo-sub008/internal/api/middleware"
	"github.com/michalmalinowski87/photo-sub008/internal/api/models"
	"github.com/michalmalinowski87/photo-sub008/internal/api/response"
	"github.com/michalmalinowski87/photo-sub008/internal/deletion"
)

// maxDeletionBodyBytes caps the request deletion body.
const maxDeletionBodyBytes = 4 << 10

// conflictRetryAfterSeconds is sent with 409 responses for lost optimistic writes.
const conflictRetryAfterSeconds = 1

// DeletionService is the lifecycle controller behind the deletion endpoints.
type DeletionService interface {
	RequestDeletion(ctx context.Context, accountID, confirmation, reason string) (*deletion.RequestResult, error)
	CancelDeletion(ctx context.Context, accountID string) (*deletion.CancelResult, error)
	UndoByToken(ctx context.Context, token string) (*deletion.CancelResult, error)
	GetDeletionStatus(ctx context.Context, accountID string) (*deletion.StatusResult, error)
}

// DeletionHandler handles account deletion endpoints.
type DeletionHandler struct {
	service DeletionService
	logger  zerolog.Logger
}

// NewDeletionHandler creates a new DeletionHandler.
func NewDeletionHandler(service DeletionService, logger zerolog.Logger) *DeletionHandler {
	return &DeletionHandler{service: service, logger: logger}
}

// RequestDeletion handles POST /v1/me/deletion - schedule account deletion.
func (h *DeletionHandler) RequestDeletion(w http.ResponseWriter, r *http.Request) {
	var input models.DeletionRequestInput
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxDeletionBodyBytes)).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	if fieldErrors := validateStruct(&input); len(fieldErrors) > 0 {
		response.BadRequest(w, r, "validation failed", fieldErrors)
		return
	}

	result, err := h.service.RequestDeletion(r.Context(), middleware.GetAccountID(r.Context()), input.Confirmation, input.Reason)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	response.Accepted(w, r, models.DeletionRequested{
		Status:              models.AccountStatus(result.Status),
		DeletionScheduledAt: models.NewTimestamp(result.ScheduledAt),
	})
}

// CancelDeletion handles DELETE /v1/me/deletion - cancel a pending deletion.
func (h *DeletionHandler) CancelDeletion(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.CancelDeletion(r.Context(), middleware.GetAccountID(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	response.JSON(w, r, http.StatusOK, models.DeletionCancelled{
		Status:  models.AccountStatus(result.Status),
		Message: "account deletion cancelled",
	})
}

// GetDeletionStatus handles GET /v1/me/deletion - report the lifecycle state.
func (h *DeletionHandler) GetDeletionStatus(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.GetDeletionStatus(r.Context(), middleware.GetAccountID(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	response.JSON(w, r, http.StatusOK, models.DeletionStatus{
		Status:              models.AccountStatus(result.Status),
		DeletionRequestedAt: models.TimestampPtr(result.RequestedAt),
		DeletionScheduledAt: models.TimestampPtr(result.ScheduledAt),
		DeletionReason:      result.Reason,
	})
}

// writeError maps lifecycle errors to problems.
func (h *DeletionHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	traceID := middleware.GetRequestID(r.Context())

	var pending *deletion.AlreadyPendingError
	switch {
	case errors.As(err, &pending):
		response.Error(w, r, models.NewDeletionPending(traceID, models.NewTimestamp(pending.ScheduledAt)))
	case errors.Is(err, deletion.ErrUnauthenticated):
		response.Unauthorized(w, r, "account not authenticated")
	case errors.Is(err, deletion.ErrAccountNotFound):
		response.NotFound(w, r, "account not found")
	case errors.Is(err, deletion.ErrInvalidConfirmation):
		response.BadRequest(w, r, "confirmation phrase does not match", []models.FieldError{{
			Field:   "confirmation",
			Message: "must equal " + deletion.ConfirmationPhrase,
			Code:    "INVALID_CONFIRMATION",
		}})
	case errors.Is(err, deletion.ErrNoPendingDeletion):
		response.Error(w, r, models.NewNoPendingDeletion(traceID))
	case errors.Is(err, deletion.ErrConflict):
		response.RetryableConflict(w, r, "account was modified concurrently, retry the request", conflictRetryAfterSeconds)
	case errors.Is(err, deletion.ErrConfigurationMissing):
		h.logger.Error().Err(err).Str("request_id", traceID).Msg("deletion service misconfigured")
		response.ServiceUnavailable(w, r, "account deletion is temporarily unavailable")
	default:
		h.logger.Error().Err(err).Str("request_id", traceID).Msg("deletion request failed")
		response.InternalError(w, r, "internal server error")
	}
}
