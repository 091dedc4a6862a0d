package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/camprush/camprush/internal/assist"
	"github.com/camprush/camprush/internal/barriers"
	"github.com/camprush/camprush/internal/config"
	"github.com/camprush/camprush/internal/detect"
	"github.com/camprush/camprush/internal/notify"
	svc "github.com/camprush/camprush/internal/services"
	"github.com/camprush/camprush/internal/store"
)

const maxBody = 1 << 20

var errBadRequest = errors.New("bad request")

// apiError is what a handler returns when it wants a specific status and
// code instead of the default mapping.
type apiError struct {
	Status int
	Code   string
	Err    error
}

func (e *apiError) Error() string { return e.Err.Error() }
func (e *apiError) Unwrap() error { return e.Err }

func badRequest(format string, args ...any) error {
	return &apiError{Status: http.StatusBadRequest, Code: "bad_request", Err: fmt.Errorf("%w: "+format, append([]any{errBadRequest}, args...)...)}
}

const (
	softRateLimited = "The provider is busy right now. We'll keep trying; you can also finish this step manually."
	softInternal    = "Something went wrong on our side. Please complete this step manually."
)

// classify maps domain errors onto HTTP. 5xx responses carry a soft message
// instead of the error text.
func classify(err error) (int, string, string) {
	var ae *apiError
	if errors.As(err, &ae) {
		return ae.Status, ae.Code, ae.Err.Error()
	}
	switch {
	case errors.Is(err, detect.ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited", softRateLimited
	case errors.Is(err, svc.ErrInvalidRequest),
		errors.Is(err, notify.ErrInvalidMessage),
		errors.Is(err, notify.ErrUnknownTemplate):
		return http.StatusBadRequest, "bad_request", err.Error()
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, assist.ErrTokenNotFound),
		errors.Is(err, assist.ErrNoRequest),
		errors.Is(err, notify.ErrNotTracked):
		return http.StatusNotFound, "not_found", err.Error()
	case errors.Is(err, store.ErrStaleTransition):
		return http.StatusConflict, "stale_transition", err.Error()
	case errors.Is(err, store.ErrBadTransition),
		errors.Is(err, barriers.ErrCertaintyTransition),
		errors.Is(err, assist.ErrInvalidTransition):
		return http.StatusConflict, "transition_not_allowed", err.Error()
	case errors.Is(err, assist.ErrBusy):
		return http.StatusConflict, "busy", err.Error()
	case errors.Is(err, assist.ErrTokenExpired):
		return http.StatusGone, "token_expired", err.Error()
	case errors.Is(err, assist.ErrTokenUsed):
		return http.StatusGone, "token_used", err.Error()
	case errors.Is(err, notify.ErrUnreachable):
		return http.StatusUnprocessableEntity, "unreachable", err.Error()
	case errors.Is(err, config.ErrMissingSecret), errors.Is(err, notify.ErrNoSender):
		return http.StatusInternalServerError, "not_configured", softInternal
	}
	return http.StatusInternalServerError, "internal", softInternal
}

func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, msg := classify(err)
	if status >= 500 {
		h.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		h.log.Debug("request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, map[string]any{
		"error": map[string]string{"message": msg, "code": code},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return badRequest("malformed JSON body: %v", err)
	}
	return nil
}
