package app

import (
	"errors"
	"fmt"
	"net/http"

	"pagetree/internal/auth"
	"pagetree/internal/tree"
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

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	var cascadeErr *tree.CascadeError
	if errors.As(err, &cascadeErr) {
		return http.StatusInternalServerError, "CASCADE_INCOMPLETE", "Rename stopped before every descendant was moved", map[string]any{
			"from":    cascadeErr.From,
			"to":      cascadeErr.To,
			"applied": cascadeErr.Applied,
			"failed":  cascadeErr.Failed,
		}
	}

	switch tree.KindOf(err) {
	case tree.ErrNotFound:
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case tree.ErrPermissionDenied:
		return http.StatusForbidden, "FORBIDDEN", "Forbidden", nil
	case tree.ErrValidation:
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil
	case tree.ErrImmutableRoot:
		return http.StatusConflict, "IMMUTABLE_ROOT", "The root page cannot be renamed or removed", nil
	case tree.ErrHasChildren:
		return http.StatusConflict, "HAS_CHILDREN", "Remove the child pages first", nil
	case tree.ErrConflict:
		return http.StatusConflict, "CONFLICT", "Address already in use", nil
	default:
		return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
	}
}

// errorKind labels err for metrics.
func errorKind(err error) string {
	if err == nil {
		return "ok"
	}
	var cascadeErr *tree.CascadeError
	if errors.As(err, &cascadeErr) {
		return "cascade"
	}
	switch tree.KindOf(err) {
	case tree.ErrNotFound:
		return "not-found"
	case tree.ErrPermissionDenied:
		return "permission-denied"
	case tree.ErrValidation:
		return "validation"
	case tree.ErrImmutableRoot:
		return "immutable-root"
	case tree.ErrHasChildren:
		return "has-children"
	case tree.ErrConflict:
		return "conflict"
	default:
		return "store"
	}
}
