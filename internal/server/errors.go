package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/tejusbharadwaj/univers/internal/config"
	"github.com/tejusbharadwaj/univers/internal/ferrors"
)

// Error codes of the JSON error body.
const (
	CodeInvalidRequest       = "INVALID_REQUEST"
	CodeProjectNotFound      = "PROJECT_NOT_FOUND"
	CodeNoModelsFound        = "NO_MODELS_FOUND"
	CodeAuthenticationFailed = "AUTHENTICATION_FAILED"
	CodeUpstreamUnavailable  = "UPSTREAM_UNAVAILABLE"
	CodeCanceled             = "CANCELED"
	CodeRateLimited          = "RATE_LIMITED"
	CodeInternal             = "INTERNAL"
)

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// errorStatus maps an error to its HTTP status and body.
func errorStatus(err error) (int, ErrorResponse) {
	resp := ErrorResponse{Message: err.Error()}
	if ferrors.IsCredentialProblem(err) {
		resp.Details = ferrors.CredentialHint
	}

	switch {
	case errors.Is(err, ferrors.ErrInvalidRequest), errors.Is(err, config.ErrInvalidProject):
		resp.Code = CodeInvalidRequest
		return http.StatusBadRequest, resp
	case errors.Is(err, config.ErrProjectNotFound):
		resp.Code = CodeProjectNotFound
		return http.StatusNotFound, resp
	case errors.Is(err, ferrors.ErrNoModelsFound):
		resp.Code = CodeNoModelsFound
		return http.StatusNotFound, resp
	case errors.Is(err, ferrors.ErrAuthentication):
		resp.Code = CodeAuthenticationFailed
		return http.StatusUnauthorized, resp
	case errors.Is(err, ferrors.ErrTransientFetch):
		resp.Code = CodeUpstreamUnavailable
		return http.StatusBadGateway, resp
	case errors.Is(err, ferrors.ErrCanceled):
		resp.Code = CodeCanceled
		return http.StatusServiceUnavailable, resp
	default:
		resp.Code = CodeInternal
		resp.Message = "internal error"
		return http.StatusInternalServerError, resp
	}
}

func writeError(w http.ResponseWriter, err error) {
	code, resp := errorStatus(err)
	writeJSON(w, code, resp)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
