package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrUnauthorized matches any StatusError with status 401.
	ErrUnauthorized = errors.New("api: unauthorized")

	// ErrNotFound matches any StatusError with status 404.
	ErrNotFound = errors.New("api: not found")

	// ErrMalformedResponse indicates a 2xx response whose body could not be
	// understood.
	ErrMalformedResponse = errors.New("api: malformed response")

	// ErrAlreadyInstalled is returned by Use when a middleware with the same
	// name is already part of the pipeline.
	ErrAlreadyInstalled = errors.New("api: middleware already installed")
)

// StatusError is returned for every non-2xx response.
type StatusError struct {
	Status  int
	Method  string
	Path    string
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("api: %s %s: %d %s", e.Method, e.Path, e.Status, e.Message)
}

// Is lets errors.Is match the status sentinels.
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	}
	return false
}

// Status returns the HTTP status carried by err, or 0.
func Status(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status
	}
	return 0
}

// IsUnauthorized reports whether err is a 401 response.
func IsUnauthorized(err error) bool { return errors.Is(err, ErrUnauthorized) }

// IsNotFound reports whether err is a 404 response.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// newStatusError extracts a message from a JSON error body: "message" first,
// then "error" (string or {"message"}), else the status text.
func newStatusError(req *Request, status int, body []byte) *StatusError {
	se := &StatusError{Status: status, Method: req.Method, Path: req.Path}

	var payload struct {
		Message string          `json:"message"`
		Error   json.RawMessage `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil {
		switch {
		case payload.Message != "":
			se.Message = payload.Message
		case len(payload.Error) > 0:
			var s string
			var obj struct {
				Message string `json:"message"`
			}
			if json.Unmarshal(payload.Error, &s) == nil {
				se.Message = s
			} else if json.Unmarshal(payload.Error, &obj) == nil {
				se.Message = obj.Message
			}
		}
	}
	se.Message = strings.TrimSpace(se.Message)
	if se.Message == "" {
		se.Message = http.StatusText(status)
	}
	return se
}
