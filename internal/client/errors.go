package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// APIError is a non-2xx response from the backend.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, e.Message)
}

// IsStatus reports whether err is an *APIError with the given status code.
func IsStatus(err error, code int) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.StatusCode == code
}

func newAPIError(method, path string, status int, body []byte) *APIError {
	return &APIError{
		Method:     method,
		Path:       path,
		StatusCode: status,
		Message:    errorMessage(status, body),
	}
}

// errorMessage pulls a readable message out of the usual DRF and
// identity-provider error shapes, falling back to the body text.
func errorMessage(status int, body []byte) string {
	var shaped struct {
		Error   json.RawMessage `json:"error"`
		Detail  string          `json:"detail"`
		Message string          `json:"message"`
	}
	if json.Unmarshal(body, &shaped) == nil {
		if len(shaped.Error) > 0 {
			var s string
			if json.Unmarshal(shaped.Error, &s) == nil && s != "" {
				return s
			}
			var nested struct {
				Message string `json:"message"`
			}
			if json.Unmarshal(shaped.Error, &nested) == nil && nested.Message != "" {
				return nested.Message
			}
		}
		if shaped.Detail != "" {
			return shaped.Detail
		}
		if shaped.Message != "" {
			return shaped.Message
		}
	}
	var fields map[string][]string
	if json.Unmarshal(body, &fields) == nil && len(fields) > 0 {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if len(fields[k]) > 0 {
				return k + ": " + fields[k][0]
			}
		}
	}
	text := strings.TrimSpace(string(body))
	if len(text) > maxErrorBody {
		text = text[:maxErrorBody]
	}
	if text == "" || strings.HasPrefix(text, "{") || strings.HasPrefix(text, "<") {
		return http.StatusText(status)
	}
	return text
}
