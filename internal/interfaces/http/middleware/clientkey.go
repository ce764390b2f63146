// Package middleware 提供 HTTP 中间件
package middleware

import (
	"beanwise-ai-api/pkg/logger"

	"github.com/gin-gonic/gin"
)

// ClientKey 将客户端标识（来源 IP）注入 Gin Context 与日志 Context。
// 准入判定与限流查询都以此为键。
func ClientKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()

		c.Set("client_key", key)

		ctx := logger.WithContext(c.Request.Context(), logger.ClientKeyKey, key)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}
