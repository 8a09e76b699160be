package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"labcatalog/internal/ingest"
	"labcatalog/internal/query"
	"labcatalog/pkg/domain"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error      string             `json:"error"`
	Detail     string             `json:"detail"`
	Violations []domain.Violation `json:"violations,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	var rules domain.RuleViolationError
	switch {
	case errors.As(err, &rules):
		return http.StatusConflict
	case domain.ErrNotFound.Has(err):
		return http.StatusNotFound
	case domain.ErrDependency.Has(err):
		return http.StatusFailedDependency
	case domain.ErrConflict.Has(err):
		return http.StatusConflict
	case domain.ErrValidation.Has(err), query.Error.Has(err):
		return http.StatusUnprocessableEntity
	case ingest.Error.Has(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := errorBody{Error: http.StatusText(status), Detail: err.Error()}
	var rules domain.RuleViolationError
	if errors.As(err, &rules) {
		for _, v := range rules.Result.Violations {
			if v.Severity == domain.SeverityBlock {
				body.Violations = append(body.Violations, v)
			}
		}
	}
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Error(err))
		if status == http.StatusInternalServerError {
			body.Detail = "internal error"
		}
	}
	writeJSON(w, status, body)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	status := http.StatusMethodNotAllowed
	writeJSON(w, status, errorBody{Error: http.StatusText(status), Detail: r.Method + " " + r.URL.Path + " is not supported"})
}

// decodeBody decodes a JSON request body into dst, rejecting unknown fields.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return domain.ErrValidation.New("decode request body: %w", err)
	}
	return nil
}

// mergeJSON overlays the fields present in raw onto dst.
func mergeJSON(raw []byte, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return domain.ErrValidation.New("decode request body: %w", err)
	}
	return nil
}
