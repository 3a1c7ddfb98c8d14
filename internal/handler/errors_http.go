package handler

import (
	"errors"
	"net/http"

	"hugchat/internal/domain"
	"hugchat/internal/httputil"
)

// handleError converts domain errors to HTTP responses. Typed errors
// carry their own status code; wrapped sentinels are matched as a
// fallback; anything else is a 500 with no detail leaked.
func handleError(w http.ResponseWriter, err error) {
	var httpErr domain.HTTPError
	if errors.As(err, &httpErr) {
		httputil.RespondError(w, httpErr.StatusCode(), httpErr.Error())
		return
	}

	switch {
	case errors.Is(err, domain.ErrValidation):
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		httputil.RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		httputil.RespondError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		httputil.RespondError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrUpstream):
		httputil.RespondError(w, http.StatusBadGateway, "upstream failure")
	default:
		httputil.RespondError(w, http.StatusInternalServerError, "internal server error")
	}
}
