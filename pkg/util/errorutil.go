package util

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError("VALIDATION_FAILED", message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError("UNAUTHORIZED", message, http.StatusUnauthorized, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError("CONFLICT", message, http.StatusConflict, details)
}

// NewAlreadyAssigned signals a lost claim race: the ticket gained an owner
// between the caller's read and its conditional write.
func NewAlreadyAssigned(ticketID string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	details["ticket_id"] = ticketID
	return NewDomainError("ALREADY_ASSIGNED", "ticket already claimed by another agent", http.StatusConflict, details)
}

// NewNotOwner signals an ownership check failure on transfer/release/close.
func NewNotOwner(ticketID, agentID string) error {
	return NewDomainError("NOT_OWNER", "agent does not own this ticket", http.StatusConflict, map[string]any{
		"ticket_id": ticketID,
		"agent_id":  agentID,
	})
}

// NewInvalidTarget signals a transfer target outside the effective department.
func NewInvalidTarget(message string, details map[string]any) error {
	return NewDomainError("INVALID_TARGET", message, http.StatusUnprocessableEntity, details)
}

// NewAlreadyOpen signals the one-open-ticket-per-conversation guard.
func NewAlreadyOpen(conversationID string) error {
	return NewDomainError("ALREADY_OPEN", "conversation already has an open ticket", http.StatusConflict, map[string]any{
		"conversation_id": conversationID,
	})
}

// NewChannelUnavailable signals the shared external session is not connected.
func NewChannelUnavailable(message string) error {
	return NewDomainError("CHANNEL_UNAVAILABLE", message, http.StatusServiceUnavailable, nil)
}

// NewPayloadTooLarge signals media above the configured size cap.
func NewPayloadTooLarge(sizeBytes, maxBytes int64) error {
	return NewDomainError("PAYLOAD_TOO_LARGE", "media exceeds the configured size limit", http.StatusRequestEntityTooLarge, map[string]any{
		"size_bytes": sizeBytes,
		"max_bytes":  maxBytes,
	})
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, pgx.ErrNoRows) {
		if de, ok := NewNotFound("resource", nil).(*DomainError); ok {
			return de
		}
	}
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func MapError(err error) error {
	if err == nil {
		return nil
	}
	return ToDomainError(err)
}

// IsCode reports whether err is a DomainError with the given code.
func IsCode(err error, code string) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr) && domainErr.Code == code
}
