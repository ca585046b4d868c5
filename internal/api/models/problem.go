package models

import (
	"encoding/json"
	"net/http"
)

// Problem is the RFC 7807 body of every error response
// (Content-Type: application/problem+json).
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`

	// TraceID echoes the request ID so clients can quote it to support.
	TraceID string `json:"traceId"`

	Errors []FieldError `json:"errors,omitempty"`

	// DeletionScheduledAt is set when a deletion is already pending.
	DeletionScheduledAt *Timestamp `json:"deletionScheduledAt,omitempty"`
}

// FieldError describes one rejected request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

const problemTypeBase = "https://api.gallery.example/problems/"

// Problem type URIs.
const (
	ProblemTypeValidation           = problemTypeBase + "validation-error"
	ProblemTypeUnauthorized         = problemTypeBase + "unauthorized"
	ProblemTypeNotFound             = problemTypeBase + "not-found"
	ProblemTypeConflict             = problemTypeBase + "conflict"
	ProblemTypeDeletionPending      = problemTypeBase + "deletion-already-pending"
	ProblemTypeNoPendingDeletion    = problemTypeBase + "no-pending-deletion"
	ProblemTypeUnsupportedMediaType = problemTypeBase + "unsupported-media-type"
	ProblemTypeTooManyRequests      = problemTypeBase + "too-many-requests"
	ProblemTypeTLSRequired          = problemTypeBase + "tls-required"
	ProblemTypeInternal             = problemTypeBase + "internal-error"
	ProblemTypeUnavailable          = problemTypeBase + "service-unavailable"
)

var problemTitles = map[string]string{
	ProblemTypeValidation:           "Validation error",
	ProblemTypeUnauthorized:         "Unauthorized",
	ProblemTypeNotFound:             "Not found",
	ProblemTypeConflict:             "Conflict",
	ProblemTypeDeletionPending:      "Deletion already pending",
	ProblemTypeNoPendingDeletion:    "No pending deletion",
	ProblemTypeUnsupportedMediaType: "Unsupported media type",
	ProblemTypeTooManyRequests:      "Too many requests",
	ProblemTypeTLSRequired:          "TLS required",
	ProblemTypeInternal:             "Internal server error",
	ProblemTypeUnavailable:          "Service unavailable",
}

// NewProblem creates a Problem with an explicit title.
func NewProblem(problemType, title string, status int, traceID string) *Problem {
	return &Problem{
		Type:    problemType,
		Title:   title,
		Status:  status,
		TraceID: traceID,
	}
}

func known(problemType string, status int, traceID, detail string) *Problem {
	p := NewProblem(problemType, problemTitles[problemType], status, traceID)
	p.Detail = detail
	return p
}

func (p *Problem) WithDetail(detail string) *Problem {
	p.Detail = detail
	return p
}

func (p *Problem) WithInstance(instance string) *Problem {
	p.Instance = instance
	return p
}

func (p *Problem) WithErrors(errs []FieldError) *Problem {
	p.Errors = errs
	return p
}

// Write sends the problem with its status code. The request ID is echoed in
// X-Request-Id as well as in the body.
func (p *Problem) Write(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", "application/problem+json")
	if p.TraceID != "" {
		h.Set("X-Request-Id", p.TraceID)
	}
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

func NewBadRequest(traceID, detail string, errs []FieldError) *Problem {
	return known(ProblemTypeValidation, http.StatusBadRequest, traceID, detail).WithErrors(errs)
}

func NewUnauthorized(traceID, detail string) *Problem {
	return known(ProblemTypeUnauthorized, http.StatusUnauthorized, traceID, detail)
}

func NewNotFound(traceID, detail string) *Problem {
	return known(ProblemTypeNotFound, http.StatusNotFound, traceID, detail)
}

// NewConflict is a generic 409, used for lost optimistic writes.
func NewConflict(traceID, detail string) *Problem {
	return known(ProblemTypeConflict, http.StatusConflict, traceID, detail)
}

// NewDeletionPending is the 409 for a second deletion request. It carries the
// schedule of the deletion already in flight.
func NewDeletionPending(traceID string, scheduledAt Timestamp) *Problem {
	p := known(ProblemTypeDeletionPending, http.StatusConflict, traceID,
		"account deletion has already been requested")
	p.DeletionScheduledAt = &scheduledAt
	return p
}

// NewNoPendingDeletion is the 409 for cancelling on an active account.
func NewNoPendingDeletion(traceID string) *Problem {
	return known(ProblemTypeNoPendingDeletion, http.StatusConflict, traceID,
		"there is no pending account deletion to cancel")
}

func NewUnsupportedMediaType(traceID, detail string) *Problem {
	return known(ProblemTypeUnsupportedMediaType, http.StatusUnsupportedMediaType, traceID, detail)
}

func NewTooManyRequests(traceID, detail string) *Problem {
	return known(ProblemTypeTooManyRequests, http.StatusTooManyRequests, traceID, detail)
}

// NewTLSRequired rejects plain HTTP requests in production.
func NewTLSRequired(traceID string) *Problem {
	return known(ProblemTypeTLSRequired, http.StatusForbidden, traceID, "HTTPS is required")
}

func NewInternalError(traceID, detail string) *Problem {
	return known(ProblemTypeInternal, http.StatusInternalServerError, traceID, detail)
}

func NewServiceUnavailable(traceID, detail string) *Problem {
	return known(ProblemTypeUnavailable, http.StatusServiceUnavailable, traceID, detail)
}
