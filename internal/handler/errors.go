package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-live/internal/response"
	"github.com/stemsi/exstem-live/internal/service"
)

// errorStatus maps a service error onto an HTTP status and response code.
// Anything not recognised is an infrastructure failure.
func errorStatus(err error) (int, response.ErrCode) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, response.ErrNotFound
	case errors.Is(err, service.ErrExamNotStarted):
		return http.StatusForbidden, response.ErrExamNotStarted
	case errors.Is(err, service.ErrExamEnded):
		return http.StatusForbidden, response.ErrExamEnded
	case errors.Is(err, service.ErrRetryNotAllowed):
		return http.StatusConflict, response.ErrRetryNotAllowed
	case errors.Is(err, service.ErrMaxAttemptsReached):
		return http.StatusConflict, response.ErrMaxAttempts
	case errors.Is(err, service.ErrAttemptNotActive):
		return http.StatusConflict, response.ErrAttemptNotActive
	case errors.Is(err, service.ErrExamStarted):
		return http.StatusConflict, response.ErrExamAlreadyStarted
	case errors.Is(err, service.ErrInvalidChoice):
		return http.StatusUnprocessableEntity, response.ErrInvalidChoice
	case errors.Is(err, service.ErrNoQuestions):
		return http.StatusConflict, response.ErrNoQuestions
	case errors.Is(err, service.ErrRateLimited):
		return http.StatusTooManyRequests, response.ErrRateLimitExceeded
	}
	return http.StatusInternalServerError, response.ErrInternal
}

// fail writes the envelope for err. Validation errors carry their fields;
// internal errors are logged, domain outcomes are not.
func fail(c *gin.Context, log zerolog.Logger, err error) {
	var verr *service.ValidationError
	if errors.As(err, &verr) {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, verr.Fields)
		return
	}

	status, code := errorStatus(err)
	if code == response.ErrInternal {
		log.Error().Err(err).
			Str("request_id", response.RequestID(c)).
			Str("path", c.FullPath()).
			Msg("Request failed")
	}
	response.Fail(c, status, code)
}

// paramUUID parses a path parameter, writing INVALID_ID on failure.
func paramUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return id, true
}
