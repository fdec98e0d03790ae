package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/service"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/workflow"
)

// Response 统一响应格式
type Response struct {
	Code    int         `json:"code"`    // 0 表示成功
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// ErrorResponse 错误响应格式. 校验失败时 Errors 列出每个字段的错误.
type ErrorResponse struct {
	Code    int                   `json:"code"`
	Message string                `json:"message"`
	Detail  string                `json:"detail,omitempty"`
	Errors  []workflow.FieldError `json:"errors,omitempty"`
}

// PaginatedResponse 分页响应
type PaginatedResponse struct {
	Code       int                    `json:"code"`
	Message    string                 `json:"message"`
	Data       interface{}            `json:"data"`
	Pagination service.PaginationInfo `json:"pagination"`
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// Created 创建成功响应
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Code:    0,
		Message: "created",
		Data:    data,
	})
}

// Error 错误响应
func Error(c *gin.Context, code int, message string, detail string) {
	statusCode := http.StatusInternalServerError
	if code >= 400 && code < 600 {
		statusCode = code
	}

	c.JSON(statusCode, ErrorResponse{
		Code:    code,
		Message: message,
		Detail:  detail,
	})
}

// ValidationFailed 字段校验失败响应
func ValidationFailed(c *gin.Context, errs workflow.FieldErrors) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Code:    http.StatusBadRequest,
		Message: "validation failed",
		Errors:  errs,
	})
}

// Paginated 分页响应
func Paginated(c *gin.Context, data interface{}, pagination service.PaginationInfo) {
	c.JSON(http.StatusOK, PaginatedResponse{
		Code:       0,
		Message:    "success",
		Data:       data,
		Pagination: pagination,
	})
}
