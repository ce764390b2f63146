// Package dto 提供 HTTP 层数据传输对象
package dto

import (
	"github.com/gin-gonic/gin"

	"beanwise-ai-api/pkg/errors"
)

// Response 统一响应结构
type Response[T any] struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    T      `json:"data,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
}

// ErrorResponse 错误响应结构
type ErrorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Detail    string `json:"detail,omitempty"`
	Retryable bool   `json:"retryable"`
	TraceID   string `json:"trace_id,omitempty"`
}

// Success 返回成功响应
func Success[T any](c *gin.Context, data T) {
	c.JSON(200, Response[T]{
		Code:    200,
		Message: "success",
		Data:    data,
		TraceID: c.GetString("trace_id"),
	})
}

// Error 按 AppError 返回错误响应。
// 限流与上游类错误标记 retryable，预算超限在次日前重试无意义。
func Error(c *gin.Context, err error) {
	appErr := errors.AsAppError(err)

	retryable := false
	switch appErr.Code {
	case errors.CodeRateLimited, errors.CodeUpstreamUnavailable,
		errors.CodeStoreUnavailable, errors.CodeServiceUnavailable:
		retryable = true
	}

	c.JSON(appErr.HTTPStatus, ErrorResponse{
		Code:      string(appErr.Code),
		Message:   appErr.Message,
		Detail:    appErr.Detail,
		Retryable: retryable,
		TraceID:   c.GetString("trace_id"),
	})
}

// BadRequest 返回 400 错误
func BadRequest(c *gin.Context, message string) {
	Error(c, errors.New(errors.CodeInvalidParam, message))
}

// InternalError 返回 500 错误
func InternalError(c *gin.Context, message string) {
	Error(c, errors.New(errors.CodeInternalError, message))
}
