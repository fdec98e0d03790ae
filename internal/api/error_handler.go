package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/workflow"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// APIError API 错误
type APIError struct {
	Code    int
	Message string
	Detail  string
}

func (e *APIError) Error() string {
	return e.Message
}

// ErrorHandlerMiddleware 把 handler 通过 c.Error 记录的错误写成统一的错误响应
func ErrorHandlerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		respondError(c, c.Errors.Last().Err)
	}
}

// WrapError 包装错误
func WrapError(err error, code int, message string) *APIError {
	return &APIError{
		Code:    code,
		Message: message,
		Detail:  err.Error(),
	}
}

// respondError 按领域错误类型选择状态码
func respondError(c *gin.Context, err error) {
	var (
		apiErr     *APIError
		fieldErrs  workflow.FieldErrors
		conflict   *workflow.StateConflictError
		dependency *workflow.DependencyUnsatisfiedError
		escalation *workflow.EscalationConfigError
	)
	switch {
	case errors.As(err, &apiErr):
		Error(c, apiErr.Code, apiErr.Message, apiErr.Detail)
	case errors.As(err, &fieldErrs):
		ValidationFailed(c, fieldErrs)
	case errors.As(err, &conflict):
		Error(c, http.StatusConflict, "state conflict", conflict.Error())
	case errors.Is(err, workflow.ErrEscalationNotDue):
		Error(c, http.StatusConflict, "escalation not due", err.Error())
	case errors.As(err, &dependency):
		Error(c, http.StatusUnprocessableEntity, "dependency unsatisfied", dependency.Error())
	case errors.As(err, &escalation):
		Error(c, http.StatusUnprocessableEntity, "escalation misconfigured", escalation.Error())
	case errors.Is(err, workflow.ErrNoAssignees):
		Error(c, http.StatusUnprocessableEntity, "no assignees", err.Error())
	case errors.Is(err, workflow.ErrNotAssignee):
		Error(c, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, gorm.ErrRecordNotFound):
		Error(c, http.StatusNotFound, "not found", err.Error())
	default:
		GetLogger().WithError(err).WithFields(logrus.Fields{
			"request_id": c.GetString(ContextKeyRequestID),
			"path":       c.FullPath(),
		}).Error("Unhandled request error")
		Error(c, http.StatusInternalServerError, "internal server error", "")
	}
}

// fail 记录错误并中止后续 handler, 由 ErrorHandlerMiddleware 写响应
func fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}
