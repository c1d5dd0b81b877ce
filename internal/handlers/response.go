package handlers

import (
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lexvoice/casecall-backend/internal/pkg/errors"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

// RespondDomainError maps the sentinel error taxonomy onto HTTP statuses.
func RespondDomainError(c *gin.Context, err error) {
	switch {
	case stderrors.Is(err, errors.ErrNotFound):
		RespondError(c, http.StatusNotFound, "not_found", err)
	case stderrors.Is(err, errors.ErrInvalidArgument):
		RespondError(c, http.StatusBadRequest, "invalid_argument", err)
	case stderrors.Is(err, errors.ErrInvalidTransition):
		RespondError(c, http.StatusConflict, "invalid_transition", err)
	case stderrors.Is(err, errors.ErrVersionConflict):
		RespondError(c, http.StatusConflict, "version_conflict", err)
	case stderrors.Is(err, errors.ErrSessionNotActive):
		RespondError(c, http.StatusConflict, "session_not_active", err)
	default:
		RespondError(c, http.StatusInternalServerError, "internal", err)
	}
}
