package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"upkeep-bknd/internal/services"

	"go.uber.org/zap"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(data)
}

type errorResp struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// writeError maps the service error taxonomy onto HTTP. Only the generic
// message reaches the client; detail stays in the logs.
func writeError(w http.ResponseWriter, logr *zap.Logger, op string, err error) {
	var verr *services.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorResp{Error: "validation failed", Fields: verr.Fields})
	case errors.Is(err, services.ErrValidation):
		writeJSON(w, http.StatusBadRequest, errorResp{Error: "validation failed"})
	case errors.Is(err, services.ErrInvalidLicense):
		writeJSON(w, http.StatusBadRequest, errorResp{Error: "a valid business license is required"})
	case errors.Is(err, services.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResp{Error: "provider not found"})
	case errors.Is(err, services.ErrNotClaimant):
		writeJSON(w, http.StatusForbidden, errorResp{Error: "only the account that claimed this provider can change its subscription"})
	case errors.Is(err, services.ErrAlreadyClaimed):
		writeJSON(w, http.StatusConflict, errorResp{Error: "provider is already claimed by another account"})
	case errors.Is(err, services.ErrSubscriptionPending):
		writeJSON(w, http.StatusConflict, errorResp{Error: "a subscription change is still awaiting payment"})
	case errors.Is(err, services.ErrUpstreamUnavailable):
		logr.Error(op+" failed", zap.Error(err))
		writeJSON(w, http.StatusBadGateway, errorResp{Error: "upstream service unavailable, try again later"})
	case errors.Is(err, services.ErrMisconfigured):
		logr.Error(op+" failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResp{Error: "service is not configured"})
	case errors.Is(err, context.Canceled):
		logr.Debug(op + " canceled by client")
	default:
		logr.Error(op+" failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResp{Error: "internal server error"})
	}
}

func writeFieldErrors(w http.ResponseWriter, fields map[string]string) {
	writeJSON(w, http.StatusBadRequest, errorResp{Error: "validation failed", Fields: fields})
}

// decodeJSON reads a bounded JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp{Error: "invalid payload"})
		return false
	}
	return true
}

// floatParam parses an optional numeric query parameter. Parse failures
// are recorded in fields.
func floatParam(r *http.Request, name string, fields map[string]string) *float64 {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		fields[name] = "must be a number"
		return nil
	}
	return &v
}
