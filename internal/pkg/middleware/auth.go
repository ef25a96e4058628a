package middleware

import (
	"context"
	"net/http"
	"strings"

	"review_board/pkg/logger"
	"review_board/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// 上下文键
const (
	CtxToken   = "token"
	CtxUserID  = "userID"
	CtxIsAdmin = "isAdmin"

	// TokenCookie 页面请求携带 token 的 cookie
	TokenCookie = "rb_token"
)

// Principal 已认证的调用方
type Principal struct {
	UserID   string
	Username string
	IsAdmin  bool
}

// SessionResolver 校验 token；无效 token 返回 nil, nil
type SessionResolver interface {
	Resolve(ctx context.Context, token string) (*Principal, error)
}

// ExtractToken 优先读取 "Bearer <token>" 请求头，其次读取 cookie
func ExtractToken(c *gin.Context) string {
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	if cookie, err := c.Cookie(TokenCookie); err == nil {
		return cookie
	}
	return ""
}

func authenticate(c *gin.Context, resolver SessionResolver) (bool, error) {
	token := ExtractToken(c)
	if token == "" {
		return false, nil
	}
	p, err := resolver.Resolve(c.Request.Context(), token)
	if err != nil || p == nil {
		return false, err
	}
	c.Set(CtxToken, token)
	c.Set(CtxUserID, p.UserID)
	c.Set(CtxIsAdmin, p.IsAdmin)
	return true, nil
}

// AuthMiddleware 要求有效 token
func AuthMiddleware(resolver SessionResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, err := authenticate(c, resolver)
		if err != nil {
			logger.Log.Warn("session lookup failed", zap.Error(err))
			response.FromError(c, err)
			c.Abort()
			return
		}
		if !ok {
			response.Error(c, http.StatusUnauthorized, response.ErrTokenInvalid, "Invalid or expired token")
			c.Abort()
			return
		}
		c.Next()
	}
}

// OptionalAuth token 有效时写入上下文，否则按访客处理
func OptionalAuth(resolver SessionResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := authenticate(c, resolver); err != nil {
			logger.Log.Warn("session lookup failed, continuing as guest", zap.Error(err))
		}
		c.Next()
	}
}

// AdminMiddleware 管理员权限中间件，需放在 AuthMiddleware 之后
func AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, exists := c.Get(CtxUserID); !exists {
			response.Error(c, http.StatusUnauthorized, response.ErrNoPermission, "Unauthorized")
			c.Abort()
			return
		}
		if !c.GetBool(CtxIsAdmin) {
			response.Error(c, http.StatusForbidden, response.ErrNoPermission, "Admin permission required")
			c.Abort()
			return
		}
		c.Next()
	}
}

// Token 当前请求的 token，访客为空
func Token(c *gin.Context) string {
	return c.GetString(CtxToken)
}

// UserID 当前请求的用户 id，访客为空
func UserID(c *gin.Context) string {
	return c.GetString(CtxUserID)
}
