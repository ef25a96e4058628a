package handler

import (
	"context"
	"net/http"
	"time"

	"review_board/internal/domain/user/service"
	"review_board/internal/pkg/middleware"
	"review_board/pkg/response"

	"github.com/gin-gonic/gin"
)

// TokenHook 在 token 对应的会话变化后调用（登出、资料修改）
type TokenHook func(ctx context.Context, token string)

type AuthHandler struct {
	auth     service.AuthService
	secure   bool
	onLogout []TokenHook
}

// NewAuthHandler secure 控制 cookie 的 Secure 属性
func NewAuthHandler(auth service.AuthService, secure bool) *AuthHandler {
	return &AuthHandler{auth: auth, secure: secure}
}

// OnLogout 注册登出回调
func (h *AuthHandler) OnLogout(hook TokenHook) {
	h.onLogout = append(h.onLogout, hook)
}

// SignUpInput 注册输入
type SignUpInput struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Username string `json:"username"`
}

// LoginInput 登录输入
type LoginInput struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// ResetRequestInput 申请重置密码
type ResetRequestInput struct {
	Email string `json:"email" binding:"required"`
}

// ResetConfirmInput 确认重置密码
type ResetConfirmInput struct {
	Email    string `json:"email" binding:"required"`
	Code     string `json:"code" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// SignUp 注册
// @Summary 注册账号
// @Tags Auth
// @Accept json
// @Produce json
// @Param input body SignUpInput true "注册信息"
// @Success 200 {object} response.Response{data=model.Profile}
// @Router /auth/signup [post]
func (h *AuthHandler) SignUp(c *gin.Context) {
	var input SignUpInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}

	profile, err := h.auth.SignUp(c.Request.Context(), input.Email, input.Password, input.Username)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, profile)
}

// Login 登录，token 同时写入 cookie 供页面使用
// @Summary 登录
// @Tags Auth
// @Accept json
// @Produce json
// @Param input body LoginInput true "登录信息"
// @Success 200 {object} response.Response{data=service.Session}
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var input LoginInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}

	session, err := h.auth.SignIn(c.Request.Context(), input.Email, input.Password)
	if err != nil {
		response.FromError(c, err)
		return
	}

	maxAge := int(time.Until(session.ExpiresAt).Seconds())
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.TokenCookie, session.Token, maxAge, "/", "", h.secure, true)
	response.Success(c, session)
}

// Logout 登出
// @Summary 登出
// @Tags Auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	token := middleware.Token(c)
	if err := h.auth.SignOut(c.Request.Context(), token); err != nil {
		response.FromError(c, err)
		return
	}
	for _, hook := range h.onLogout {
		hook(c.Request.Context(), token)
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.TokenCookie, "", -1, "/", "", h.secure, true)
	response.Success(c, nil)
}

// RequestPasswordReset 发送重置验证码
// @Summary 申请重置密码
// @Tags Auth
// @Accept json
// @Produce json
// @Param input body ResetRequestInput true "邮箱"
// @Success 200 {object} response.Response
// @Router /auth/password-reset [post]
func (h *AuthHandler) RequestPasswordReset(c *gin.Context) {
	var input ResetRequestInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}
	if err := h.auth.SendPasswordReset(c.Request.Context(), input.Email); err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{"message": "If the email is registered, a reset code has been sent"})
}

// ConfirmPasswordReset 用验证码设置新密码
// @Summary 确认重置密码
// @Tags Auth
// @Accept json
// @Produce json
// @Param input body ResetConfirmInput true "验证码与新密码"
// @Success 200 {object} response.Response
// @Router /auth/password-reset/confirm [post]
func (h *AuthHandler) ConfirmPasswordReset(c *gin.Context) {
	var input ResetConfirmInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}
	if err := h.auth.ResetPassword(c.Request.Context(), input.Email, input.Code, input.Password); err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, nil)
}
