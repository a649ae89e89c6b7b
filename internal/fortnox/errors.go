package fortnox

import (
	"errors"
	"fmt"
	"strings"
)

// APIError is a structured error response from the Fortnox REST API.
// Code is the provider's numeric business error code.
type APIError struct {
	HTTPStatus int
	Code       int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("fortnox: %s (code %d, http %d)", e.Message, e.Code, e.HTTPStatus)
}

// OAuthError is a structured error from the OAuth token endpoint. Code is one of
// the RFC 6749 error identifiers (invalid_grant, invalid_client, invalid_request).
type OAuthError struct {
	Code        string `json:"error"`
	Description string `json:"error_description"`
}

func (e *OAuthError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("fortnox oauth: %s", e.Code)
	}
	return fmt.Sprintf("fortnox oauth: %s: %s", e.Code, e.Description)
}

// Provider codes returned when a resource with the same key already exists.
// Observed for projects created twice with the same ProjectNumber.
var duplicateCodes = map[int]struct{}{
	2000588: {},
}

// IsDuplicate reports whether err is the provider's "resource already exists"
// rejection. Callers treat this as a signal to fetch and reuse the existing
// resource instead of failing. The check is the single place that knows the
// provider's error taxonomy, so a different accounting backend only needs a
// different predicate.
func IsDuplicate(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if _, ok := duplicateCodes[apiErr.Code]; ok {
		return true
	}
	msg := strings.ToLower(apiErr.Message)
	return strings.Contains(msg, "already exists") || strings.Contains(msg, "finns redan")
}
