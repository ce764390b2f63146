// Package handler 提供 HTTP 请求处理器
package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"beanwise-ai-api/internal/application/admission"
	"beanwise-ai-api/internal/interfaces/http/dto"
)

// AdmissionGateway 准入网关端口
type AdmissionGateway interface {
	Admit(ctx context.Context, clientKey, query string) (*admission.Result, error)
}

// QueryHandler 查询处理器
type QueryHandler struct {
	gateway AdmissionGateway
}

// NewQueryHandler 创建查询处理器
func NewQueryHandler(gateway AdmissionGateway) *QueryHandler {
	return &QueryHandler{gateway: gateway}
}

// Query 处理一次客户端查询
// @Summary 提交查询
// @Description 经限流、语义缓存与预算准入后返回回答
// @Tags Query
// @Accept json
// @Produce json
// @Param request body dto.QueryRequest true "查询请求"
// @Success 200 {object} dto.Response[dto.QueryResponse]
// @Failure 429 {object} dto.ErrorResponse
// @Failure 503 {object} dto.ErrorResponse
// @Router /v1/query [post]
func (h *QueryHandler) Query(c *gin.Context) {
	var req dto.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "query is required and must be at most 2000 characters")
		return
	}

	clientKey := c.GetString("client_key")
	if clientKey == "" {
		clientKey = c.ClientIP()
	}

	result, err := h.gateway.Admit(c.Request.Context(), clientKey, req.Query)
	if err != nil {
		dto.Error(c, err)
		return
	}

	dto.Success(c, dto.QueryResponse{
		Answer: string(result.Answer),
		Source: string(result.Source),
		Model:  result.Model,
		Cost:   result.Cost,
	})
}
