package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/middleware"
)

const maxBodyBytes = 1 << 16

var errInvalidJSON = errors.New("invalid JSON body")

// ErrorEnvelope is the body of every non-2xx response.
type ErrorEnvelope struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func decodeJSON(r *http.Request, target any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return errInvalidJSON
	}
	return nil
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, errInvalidJSON) {
		writeJSON(w, http.StatusBadRequest, ErrorEnvelope{Error: err.Error(), Code: authcore.KindValidation.String()})
		return
	}

	kind := authcore.KindOf(err)
	status := middleware.StatusFor(err)
	msg := err.Error()
	switch kind {
	case authcore.KindInternal:
		s.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		msg = "internal error"
	case authcore.KindUnavailable:
		s.logger.Warn("backend unavailable", zap.String("path", r.URL.Path), zap.Error(err))
		msg = "service unavailable"
	case authcore.KindRateLimited:
		middleware.SetRetryAfter(w, err)
	}
	writeJSON(w, status, ErrorEnvelope{Error: msg, Code: kind.String()})
}
