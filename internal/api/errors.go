// Package api provides the metadata-service client.
package api

import (
	"encoding/json"
	"fmt"
	"io"
	nethttp "net/http"
	"strings"
)

// maxErrorBodyExcerpt bounds how much of an error response body is kept.
const maxErrorBodyExcerpt = 4 * 1024

// Error is a non-2xx response from the metadata service.
//
// For 400/401/403 the service's PostgREST-style body fields
// (message/details/hint) are attached so the user sees actionable guidance
// instead of a bare status code.
type Error struct {
	StatusCode int
	Status     string
	Message    string
	Details    string
	Hint       string
	Body       string
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "metadata service: %s", e.Status)
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	if e.Details != "" {
		fmt.Fprintf(&b, " (%s)", e.Details)
	}
	if e.Hint != "" {
		fmt.Fprintf(&b, " (hint: %s)", e.Hint)
	}
	if e.Message == "" && e.Body != "" {
		fmt.Fprintf(&b, ": %s", e.Body)
	}
	return b.String()
}

// Transient reports whether the failure is worth a retry at a higher
// level: server errors and timeouts, not rejections.
func (e *Error) Transient() bool {
	return e.StatusCode >= 500 || e.StatusCode == nethttp.StatusRequestTimeout
}

// newError builds an Error from a non-2xx response, consuming its body.
func newError(resp *nethttp.Response) *Error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyExcerpt))

	apiErr := &Error{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       strings.TrimSpace(string(raw)),
	}

	switch resp.StatusCode {
	case nethttp.StatusBadRequest, nethttp.StatusUnauthorized, nethttp.StatusForbidden:
		var body struct {
			Message string `json:"message"`
			Details string `json:"details"`
			Hint    string `json:"hint"`
		}
		if err := json.Unmarshal(raw, &body); err == nil {
			apiErr.Message = body.Message
			apiErr.Details = body.Details
			apiErr.Hint = body.Hint
		}
	}

	return apiErr
}
