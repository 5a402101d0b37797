package app

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/mdddj/blog-new-sub000/internal/auth"
	"github.com/mdddj/blog-new-sub000/internal/editor"
	"github.com/mdddj/blog-new-sub000/internal/export"
	"github.com/mdddj/blog-new-sub000/internal/history"
	"github.com/mdddj/blog-new-sub000/internal/media"
	"github.com/mdddj/blog-new-sub000/internal/reading"
	"github.com/mdddj/blog-new-sub000/internal/renderclient"
	"github.com/mdddj/blog-new-sub000/internal/store"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

var (
	errSessionNotFound = domainError(http.StatusNotFound, "SESSION_NOT_FOUND", "Editing session not found", nil)
	errInvalidKind     = domainError(http.StatusBadRequest, "INVALID_KIND", "kind must be blog or document", nil)
	errInvalidID       = domainError(http.StatusBadRequest, "INVALID_ID", "id must be a positive integer", nil)
)

// mapError translates package errors into HTTP status, code and message.
func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, reading.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrExpiredToken):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	case errors.Is(err, editor.ErrTitleRequired), errors.Is(err, editor.ErrContentRequired),
		errors.Is(err, editor.ErrReferenceInvalid), errors.Is(err, editor.ErrNoImages),
		errors.Is(err, media.ErrEmptyFile), errors.Is(err, media.ErrNotImage):
		return http.StatusUnprocessableEntity, "VALIDATION_FAILED", err.Error(), nil
	case errors.Is(err, editor.ErrReferenceNotFound):
		return http.StatusNotFound, "REFERENCE_NOT_FOUND", err.Error(), nil
	case errors.Is(err, editor.ErrNotLoaded), errors.Is(err, editor.ErrDocumentChanged):
		return http.StatusConflict, "CONFLICT", err.Error(), nil
	case errors.Is(err, editor.ErrSessionClosed):
		return http.StatusGone, "SESSION_CLOSED", err.Error(), nil
	case errors.Is(err, history.ErrNoHistory):
		return http.StatusNotFound, "NO_HISTORY", err.Error(), nil
	case errors.Is(err, export.ErrUnsupportedFormat):
		return http.StatusBadRequest, "UNSUPPORTED_FORMAT", err.Error(), nil
	case errors.Is(err, export.ErrPDFDependencyMissing), errors.Is(err, export.ErrDOCXDependencyMissing):
		return http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", err.Error(), nil
	case errors.Is(err, renderclient.ErrUnavailable), errors.Is(err, editor.ErrRendererMissing):
		return http.StatusBadGateway, "RENDER_UNAVAILABLE", "Rendering service unavailable", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
