package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Nixie-Tech-LLC/muezzin/internal/http/middleware"
	"github.com/Nixie-Tech-LLC/muezzin/internal/model"
)

type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string { return e.Message }

func BadRequest(msg string) *APIError {
	return &APIError{Code: http.StatusBadRequest, Message: msg}
}

// FromError maps a command failure onto an HTTP status.
func FromError(err error) *APIError {
	var apiErr *APIError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, model.ErrNoDataAvailable):
		return &APIError{Code: http.StatusNotFound, Message: err.Error()}
	case errors.Is(err, model.ErrClockUnavailable):
		return &APIError{Code: http.StatusServiceUnavailable, Message: err.Error()}
	case errors.Is(err, model.ErrRemoteUnavailable), errors.Is(err, model.ErrMalformedSchedule):
		return &APIError{Code: http.StatusBadGateway, Message: err.Error()}
	case errors.Is(err, model.ErrAlertActive):
		return &APIError{Code: http.StatusConflict, Message: err.Error()}
	case errors.Is(err, model.ErrInvalidLocation):
		return BadRequest(err.Error())
	}
	return &APIError{Code: http.StatusInternalServerError, Message: err.Error()}
}

type HandlerFuncWithAuth func(ctx *gin.Context, operator string) (any, *APIError)
type HandlerFunc func(ctx *gin.Context) (any, *APIError)

func ResolveEndpointWithAuth(h HandlerFuncWithAuth) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		operator, ok := middleware.GetOperator(ctx)
		if !ok {
			ctx.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		result, apiErr := h(ctx, operator)
		if apiErr != nil {
			ctx.JSON(apiErr.Code, gin.H{"error": apiErr.Message})
			return
		}

		ctx.JSON(http.StatusOK, result)
	}
}

func ResolveEndpoint(h HandlerFunc) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		result, apiErr := h(ctx)
		if apiErr != nil {
			ctx.JSON(apiErr.Code, gin.H{"error": apiErr.Message})
			return
		}

		ctx.JSON(http.StatusOK, result)
	}
}
