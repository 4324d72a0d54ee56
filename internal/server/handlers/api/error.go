package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
)

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: code=%s, message=%s", e.Code, e.Message)
}

func AbortWithError(ctx *gin.Context, status int, code string, err error) {
	ctx.Abort()
	ctx.Error(err)
	ctx.PureJSON(status, APIError{
		Code:    code,
		Message: err.Error(),
	})
}
