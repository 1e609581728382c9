package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	apperrors "github.com/jwalitptl/triage-api/pkg/errors"
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Status  string            `json:"status"`
	Code    int               `json:"code"`
	Message string            `json:"message"`
	TraceID string            `json:"trace_id,omitempty"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

// ErrorHandler renders the last error a handler attached with c.Error.
// Domain errors map to 400/404/409, anything unclassified to 500.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		traceID := c.GetString(ContextRequestID)
		resp := ErrorResponse{Status: "error", TraceID: traceID}

		var verrs validator.ValidationErrors
		switch {
		case errors.As(err, &verrs):
			resp.Code = http.StatusBadRequest
			resp.Message = "request validation failed"
			resp.Errors = validationErrors(verrs)
		case c.Errors.Last().IsType(gin.ErrorTypeBind):
			resp.Code = http.StatusBadRequest
			resp.Message = err.Error()
		default:
			resp.Code = apperrors.HTTPStatus(err)
			resp.Message = err.Error()
		}

		l := zerolog.Ctx(c.Request.Context())
		if resp.Code >= http.StatusInternalServerError {
			l.Error().Err(err).Str("path", c.Request.URL.Path).Msg("Request error")
			resp.Message = "internal server error"
		} else {
			l.Debug().Err(err).Str("path", c.Request.URL.Path).Msg("Request rejected")
		}

		c.AbortWithStatusJSON(resp.Code, resp)
	}
}
