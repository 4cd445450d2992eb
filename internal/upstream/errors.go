package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/noah-isme/toko-apparel/internal/common"
	"github.com/noah-isme/toko-apparel/internal/resilience"
)

var (
	// ErrNotFound is matched by errors for 404 responses.
	ErrNotFound = errors.New("upstream: not found")
	// ErrUnavailable is matched when the backend could not serve the call.
	ErrUnavailable = errors.New("upstream: unavailable")
)

// Error is a non-2xx response from the backend.
type Error struct {
	Status  int
	Code    string
	Message string
	Body    []byte
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("upstream: %d %s", e.Status, e.Message)
	}
	return fmt.Sprintf("upstream: %d %s", e.Status, http.StatusText(e.Status))
}

// Unwrap maps the status onto the package sentinels.
func (e *Error) Unwrap() error {
	switch {
	case e.Status == http.StatusNotFound:
		return ErrNotFound
	case e.Status >= http.StatusInternalServerError:
		return ErrUnavailable
	default:
		return nil
	}
}

func newError(status int, body []byte) *Error {
	e := &Error{Status: status, Body: body}
	var nested struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &nested) == nil && nested.Error.Message != "" {
		e.Code = nested.Error.Code
		e.Message = nested.Error.Message
		return e
	}
	var flat struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(body, &flat) == nil {
		e.Message = strings.TrimSpace(flat.Message)
		if e.Message == "" {
			e.Message = strings.TrimSpace(flat.Error)
		}
	}
	return e
}

// unavailable wraps transport failures so callers can match ErrUnavailable.
func unavailable(err error) error {
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}

// ToAppError converts a client error into the HTTP error rendered to callers.
func ToAppError(err error) error {
	if err == nil {
		return nil
	}
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	if errors.Is(err, ErrNotFound) {
		return common.NewAppError("NOT_FOUND", "resource not found", http.StatusNotFound, err)
	}
	var upErr *Error
	if errors.As(err, &upErr) && upErr.Status >= 400 && upErr.Status < 500 {
		msg := upErr.Message
		if msg == "" {
			msg = "request rejected by backend"
		}
		out := common.NewAppError("UPSTREAM_REJECTED", msg, upErr.Status, err)
		if upErr.Code != "" {
			out.Details = map[string]string{"upstream_code": upErr.Code}
		}
		return out
	}
	if errors.Is(err, context.Canceled) {
		return common.NewAppError("CANCELED", "request canceled", 499, err)
	}
	if errors.Is(err, ErrUnavailable) || errors.Is(err, resilience.ErrOpenCircuit) || errors.Is(err, context.DeadlineExceeded) {
		return common.NewAppError("UPSTREAM_UNAVAILABLE", "backend unavailable", http.StatusBadGateway, err)
	}
	var statusErr *resilience.StatusError
	if errors.As(err, &statusErr) {
		return common.NewAppError("UPSTREAM_UNAVAILABLE", "backend unavailable", http.StatusBadGateway, err)
	}
	return common.NewAppError("INTERNAL", "internal server error", http.StatusInternalServerError, err)
}
