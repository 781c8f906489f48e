// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"errors"
	"fmt"
)

// ErrTokenExpired is returned by AccessToken when the backend hands out
// a token whose expiry is already in the past.
var ErrTokenExpired = errors.New("messaging: access token already expired")

// APIError is a non-2xx response from the backend. Callers can use
// errors.As to extract it:
//
//	var apiErr *APIError
//	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound { ... }
type APIError struct {
	// StatusCode is the HTTP status code of the response.
	StatusCode int `json:"-"`
	// Code is the backend's machine-readable error code, if any.
	Code string `json:"code"`
	// Message is the human-readable detail from the backend, or the raw
	// body when the response was not JSON.
	Message string `json:"detail"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("backend: %s (%d): %s", e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("backend: %d: %s", e.StatusCode, e.Message)
}

// IsAPIError checks whether err is an *APIError with the given status.
func IsAPIError(err error, statusCode int) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == statusCode
	}
	return false
}
