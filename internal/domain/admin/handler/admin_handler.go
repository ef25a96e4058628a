package handler

import (
	"net/http"
	"strconv"

	"review_board/internal/domain/admin/service"
	reviewhandler "review_board/internal/domain/review/handler"
	"review_board/internal/pkg/middleware"
	"review_board/pkg/apperr"
	"review_board/pkg/response"

	"github.com/gin-gonic/gin"
)

// AdminHandler 管理后台。写操作走管理员自己的工作区，权限由控制器再次校验
type AdminHandler struct {
	stats      service.StatsService
	workspaces reviewhandler.Workspaces
}

func NewAdminHandler(stats service.StatsService, workspaces reviewhandler.Workspaces) *AdminHandler {
	return &AdminHandler{stats: stats, workspaces: workspaces}
}

// ReplyInput 管理员回复
type ReplyInput struct {
	Content string `json:"content" binding:"required"`
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, "invalid id")
		return 0, false
	}
	return id, true
}

// Stats 统计数据
// @Summary 统计数据
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response{data=service.Stats}
// @Router /admin/stats [get]
func (h *AdminHandler) Stats(c *gin.Context) {
	stats, err := h.stats.Stats(c.Request.Context())
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, stats)
}

// Reply 以管理员身份回复
// @Summary 管理员回复
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "评价ID"
// @Param input body ReplyInput true "回复内容"
// @Success 200 {object} response.Response{data=model.Reply}
// @Router /admin/reviews/{id}/replies [post]
func (h *AdminHandler) Reply(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var input ReplyInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}
	ws := h.workspaces.Get(middleware.Token(c))
	reply, err := ws.Controller.CreateReply(c.Request.Context(), id, input.Content)
	if reply == nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, reply)
}

// DeleteReview 删除任意评价
// @Summary 删除评价
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param id path int true "评价ID"
// @Success 200 {object} response.Response
// @Router /admin/reviews/{id} [delete]
func (h *AdminHandler) DeleteReview(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	ws := h.workspaces.Get(middleware.Token(c))
	if err := ws.Controller.DeleteReview(c.Request.Context(), id); apperr.Failed(err) {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{"id": id})
}

// DeleteReply 删除任意回复
// @Summary 删除回复
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param id path int true "回复ID"
// @Success 200 {object} response.Response
// @Router /admin/replies/{id} [delete]
func (h *AdminHandler) DeleteReply(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	ws := h.workspaces.Get(middleware.Token(c))
	if err := ws.Controller.DeleteReply(c.Request.Context(), id); apperr.Failed(err) {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{"id": id})
}
