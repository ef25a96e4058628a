package handler

import (
	"io"
	"net/http"

	"review_board/internal/domain/user/service"
	"review_board/internal/pkg/middleware"
	"review_board/pkg/response"

	"github.com/gin-gonic/gin"
)

type ProfileHandler struct {
	profiles service.ProfileService
	onChange []TokenHook
}

func NewProfileHandler(profiles service.ProfileService) *ProfileHandler {
	return &ProfileHandler{profiles: profiles}
}

// OnChange 注册资料变更回调
func (h *ProfileHandler) OnChange(hook TokenHook) {
	h.onChange = append(h.onChange, hook)
}

func (h *ProfileHandler) changed(c *gin.Context) {
	for _, hook := range h.onChange {
		hook(c.Request.Context(), middleware.Token(c))
	}
}

// UsernameInput 修改用户名
type UsernameInput struct {
	Username string `json:"username" binding:"required"`
}

// PasswordInput 修改密码
type PasswordInput struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required"`
	ConfirmPassword string `json:"confirmPassword" binding:"required"`
}

// GetProfile 当前用户资料
// @Summary 获取资料
// @Tags Profile
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response{data=model.Profile}
// @Router /api/profile [get]
func (h *ProfileHandler) GetProfile(c *gin.Context) {
	profile, err := h.profiles.GetProfile(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, profile)
}

// UpdateUsername 修改用户名
// @Summary 修改用户名
// @Tags Profile
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param input body UsernameInput true "新用户名"
// @Success 200 {object} response.Response{data=model.Profile}
// @Router /api/profile [put]
func (h *ProfileHandler) UpdateUsername(c *gin.Context) {
	var input UsernameInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}
	profile, err := h.profiles.UpdateUsername(c.Request.Context(), middleware.UserID(c), input.Username)
	if err != nil {
		response.FromError(c, err)
		return
	}
	h.changed(c)
	response.Success(c, profile)
}

// UploadAvatar 上传头像
// @Summary 上传头像 (jpeg/png/gif/webp, 最大 2MB)
// @Tags Profile
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param avatar formData file true "头像"
// @Success 200 {object} response.Response{data=model.Profile}
// @Router /api/profile/avatar [post]
func (h *ProfileHandler) UploadAvatar(c *gin.Context) {
	fh, err := c.FormFile("avatar")
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, "avatar file is required")
		return
	}
	if fh.Size > service.MaxAvatarSize {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, "image must be smaller than 2MB")
		return
	}
	f, err := fh.Open()
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, "unreadable file")
		return
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, service.MaxAvatarSize+1))
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, "unreadable file")
		return
	}

	profile, err := h.profiles.UploadAvatar(c.Request.Context(), middleware.UserID(c), data)
	if err != nil {
		response.FromError(c, err)
		return
	}
	h.changed(c)
	response.Success(c, profile)
}

// ChangePassword 修改密码
// @Summary 修改密码
// @Tags Profile
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param input body PasswordInput true "当前密码与新密码"
// @Success 200 {object} response.Response
// @Router /api/profile/password [put]
func (h *ProfileHandler) ChangePassword(c *gin.Context) {
	var input PasswordInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}
	err := h.profiles.ChangePassword(c.Request.Context(), middleware.UserID(c),
		input.CurrentPassword, input.NewPassword, input.ConfirmPassword)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, nil)
}
