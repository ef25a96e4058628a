package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// TraceIDHeader 上游传入或本服务生成的追踪 ID
	TraceIDHeader = "X-Trace-ID"
	CtxTraceID    = "traceID"
)

// TraceMiddleware 添加请求追踪ID
func TraceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// 尝试从请求头获取 TraceID，如果没有或格式不对则生成新的
		traceID := c.GetHeader(TraceIDHeader)
		if _, err := uuid.Parse(traceID); err != nil {
			traceID = uuid.New().String()
		}

		c.Set(CtxTraceID, traceID)
		c.Header(TraceIDHeader, traceID)

		c.Next()
	}
}
