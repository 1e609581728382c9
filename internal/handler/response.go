package handler

import (
	"github.com/gin-gonic/gin"

	apperrors "github.com/jwalitptl/triage-api/pkg/errors"
	"github.com/jwalitptl/triage-api/pkg/result"
)

type Response struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Status: "success",
		Data:   data,
	}
}

func NewErrorResponse(message string) *Response {
	return &Response{
		Status:  "error",
		Message: message,
	}
}

// Respond writes a successful result with status, or hands the failure to
// the error middleware. render converts the value into its wire form.
func Respond[T any](c *gin.Context, status int, res result.Result[T], render func(T) interface{}) {
	v, err := res.Unpack()
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(status, NewSuccessResponse(render(v)))
}

// BadRequest reports a malformed request body or query.
func BadRequest(c *gin.Context, err error) {
	_ = c.Error(apperrors.NewBadRequest("invalid request", err))
}
