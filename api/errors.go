package api

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a non-2xx response from the API.
type Error struct {
	Status int
	// Message is the server's "error" field, empty when the body carried none.
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("changedesk/api: status %d", e.Status)
	}
	return fmt.Sprintf("changedesk/api: status %d: %s", e.Status, e.Message)
}

// MessageOf returns the server supplied message carried by err, or fallback.
func MessageOf(err error, fallback string) string {
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}

// IsUnauthorized reports whether err is a 401 response.
func IsUnauthorized(err error) bool {
	return StatusOf(err) == http.StatusUnauthorized
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}
