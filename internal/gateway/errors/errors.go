// Package errors defines gateway typed application errors.
package errors

import (
	stderrors "errors"
	"net/http"
)

// Kind classifies gateway failures for consistent HTTP mapping.
type Kind string

const (
	KindUnknown            Kind = "unknown"
	KindInvalidInput       Kind = "invalid_input"
	KindNetworkUnavailable Kind = "network_unavailable"
	KindNoCachedResponse   Kind = "no_cached_response"
	KindHTTPError          Kind = "http_error"
	KindUnknownMessageType Kind = "unknown_message_type"
	KindStorageWriteFailed Kind = "storage_write_failed"
	KindUnavailable        Kind = "unavailable"
	KindUnauthorized       Kind = "unauthorized"
)

// Error is a typed gateway failure.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

// Error renders the human-readable message.
func (e Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return e.Message
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e Error) Unwrap() error {
	return e.Cause
}

// E builds a typed Error.
func E(kind Kind, message string) error {
	return Error{Kind: kind, Message: message}
}

// Wrap builds a typed Error around an underlying cause.
func Wrap(kind Kind, message string, cause error) error {
	return Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf extracts the kind from an error chain.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var appErr Error
	if !stderrors.As(err, &appErr) {
		return KindUnknown
	}
	return appErr.Kind
}

// HTTPStatus maps an error to an HTTP status code.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var appErr Error
	if !stderrors.As(err, &appErr) {
		return http.StatusInternalServerError
	}
	switch appErr.Kind {
	case KindInvalidInput, KindUnknownMessageType:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindNetworkUnavailable, KindNoCachedResponse, KindUnavailable:
		return http.StatusServiceUnavailable
	case KindHTTPError:
		return http.StatusBadGateway
	case KindStorageWriteFailed:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
