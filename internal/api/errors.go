package api

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrForbidden        = errors.New("forbidden")
	ErrNotFound         = errors.New("not found")
	ErrUnexpectedStatus = errors.New("unexpected status")
)

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Op   string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s: backend returned status %d: %s", e.Op, e.Code, e.Body)
	}
	return fmt.Sprintf("%s: backend returned status %d", e.Op, e.Code)
}

// Is lets callers match on ErrForbidden, ErrNotFound or ErrUnexpectedStatus.
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrForbidden:
		return e.Code == http.StatusForbidden
	case ErrNotFound:
		return e.Code == http.StatusNotFound
	case ErrUnexpectedStatus:
		return true
	}
	return false
}
