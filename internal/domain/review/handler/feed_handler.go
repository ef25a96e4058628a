package handler

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"review_board/internal/domain/review/model"
	"review_board/internal/domain/review/service"
	"review_board/internal/domain/review/view"
	"review_board/internal/domain/review/workspace"
	"review_board/internal/pkg/middleware"
	"review_board/pkg/apperr"
	"review_board/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Workspaces 按 token 查找工作区
type Workspaces interface {
	Get(token string) *workspace.Workspace
}

type FeedHandler struct {
	workspaces Workspaces
	renderer   *view.Renderer
	log        *zap.Logger
	now        func() time.Time
}

func NewFeedHandler(workspaces Workspaces, renderer *view.Renderer, log *zap.Logger) *FeedHandler {
	return &FeedHandler{workspaces: workspaces, renderer: renderer, log: log, now: time.Now}
}

// ContentInput 正文输入
type ContentInput struct {
	Content string `json:"content" form:"content"`
}

// ReactionInput 反应输入，kind 为空时为 like
type ReactionInput struct {
	Kind string `json:"kind"`
}

// MutationResult 写操作结果与刷新后的评价流
type MutationResult struct {
	ID      int64         `json:"id,omitempty"`
	Reacted *bool         `json:"reacted,omitempty"`
	Feed    view.FeedView `json:"feed"`
}

func (h *FeedHandler) workspace(c *gin.Context) *workspace.Workspace {
	return h.workspaces.Get(middleware.Token(c))
}

// project 当前工作区的视图；刷新失败的原因放在 Error 中
func (h *FeedHandler) project(ctx context.Context, ws *workspace.Workspace) view.FeedView {
	identity, err := ws.Session.CurrentIdentity(ctx)
	if err != nil {
		h.log.Warn("session lookup failed, rendering as guest", zap.Error(err))
	}
	if identity != nil {
		if admin, err := ws.Session.IsAdmin(ctx); err == nil {
			identity.IsAdmin = admin
		}
	}

	fv := view.Project(ws.Feed.Snapshot(), identity, h.now())
	if err := ws.Feed.LastError(); err != nil {
		fv.Error = errorMessage(err, "Could not load reviews. Please try again.")
	}
	return fv
}

func errorMessage(err error, fallback string) string {
	if msg := apperr.MessageOf(err); msg != "" {
		return msg
	}
	return fallback
}

// ensureLoaded 首次访问时加载快照；失败记录在 Feed.LastError
func (h *FeedHandler) ensureLoaded(ctx context.Context, ws *workspace.Workspace) {
	if ws.Feed.Snapshot().Loaded() {
		return
	}
	if err := ws.Feed.Refresh(ctx); err != nil {
		h.log.Warn("initial feed load failed", zap.Error(err))
	}
}

func (h *FeedHandler) ok(c *gin.Context, ws *workspace.Workspace, result MutationResult) {
	result.Feed = h.project(c.Request.Context(), ws)
	response.Success(c, result)
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, "invalid id")
		return 0, false
	}
	return id, true
}

// readImage 读取可选的图片字段；超过上限的部分不读入，由控制器校验大小
func readImage(c *gin.Context, field string) (*model.Image, error) {
	fh, err := c.FormFile(field)
	if err == http.ErrMissingFile {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, "review.read_image", err)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, "review.read_image", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, service.MaxImageSize+1))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, "review.read_image", err)
	}
	return &model.Image{Data: data, ContentType: fh.Header.Get("Content-Type"), Filename: fh.Filename}, nil
}

// readDraft 支持 JSON 和 multipart 两种提交方式
func readDraft(c *gin.Context) (content string, img *model.Image, removeImage bool, err error) {
	if c.ContentType() == "multipart/form-data" {
		content = c.PostForm("content")
		removeImage, _ = strconv.ParseBool(c.PostForm("removeImage"))
		img, err = readImage(c, "image")
		return content, img, removeImage, err
	}

	var input struct {
		Content     string `json:"content"`
		RemoveImage bool   `json:"removeImage"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		return "", nil, false, apperr.Wrap(apperr.KindValidation, "review.read_draft", err)
	}
	return input.Content, nil, input.RemoveImage, nil
}

// Page 评价页面
// @Summary 评价页面 (HTML)
// @Tags Review
// @Produce html
// @Success 200 {string} string "HTML page"
// @Router /reviews [get]
func (h *FeedHandler) Page(c *gin.Context) {
	ws := h.workspace(c)
	ctx := c.Request.Context()
	h.ensureLoaded(ctx, ws)

	page := view.Page{
		Feed:   h.project(ctx, ws),
		Editor: ws.Editor.Status(),
		Busy:   ws.Controller.Busy(),
	}
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(http.StatusOK)
	if err := h.renderer.Render(c.Writer, page); err != nil {
		h.log.Error("render page failed", zap.Error(err))
	}
}

// GetFeed 评价流
// @Summary 获取评价流
// @Tags Review
// @Produce json
// @Success 200 {object} response.Response{data=view.FeedView}
// @Router /api/feed [get]
func (h *FeedHandler) GetFeed(c *gin.Context) {
	ws := h.workspace(c)
	h.ensureLoaded(c.Request.Context(), ws)
	response.Success(c, h.project(c.Request.Context(), ws))
}

// Refresh 重新加载评价流
// @Summary 刷新评价流
// @Tags Review
// @Produce json
// @Success 200 {object} response.Response{data=view.FeedView}
// @Router /api/feed/refresh [post]
func (h *FeedHandler) Refresh(c *gin.Context) {
	ws := h.workspace(c)
	if err := ws.Feed.Refresh(c.Request.Context()); err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, h.project(c.Request.Context(), ws))
}

// CreateReview 发表评价
// @Summary 发表评价 (可附带图片)
// @Tags Review
// @Accept json,mpfd
// @Produce json
// @Security BearerAuth
// @Param content formData string true "正文"
// @Param image formData file false "图片 (最大 5MB)"
// @Success 200 {object} response.Response{data=MutationResult}
// @Router /api/reviews [post]
func (h *FeedHandler) CreateReview(c *gin.Context) {
	content, img, _, err := readDraft(c)
	if err != nil {
		response.FromError(c, err)
		return
	}
	ws := h.workspace(c)
	review, err := ws.Controller.CreateReview(c.Request.Context(), content, img)
	if review == nil {
		response.FromError(c, err)
		return
	}
	// 已写入但刷新失败时 Feed.Error 中带有原因
	h.ok(c, ws, MutationResult{ID: review.ID})
}

// UpdateReview 修改评价
// @Summary 修改评价
// @Tags Review
// @Accept json,mpfd
// @Produce json
// @Security BearerAuth
// @Param id path int true "评价ID"
// @Param content formData string true "正文"
// @Param image formData file false "新图片"
// @Param removeImage formData bool false "移除原图片"
// @Success 200 {object} response.Response{data=MutationResult}
// @Router /api/reviews/{id} [put]
func (h *FeedHandler) UpdateReview(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	content, img, remove, err := readDraft(c)
	if err != nil {
		response.FromError(c, err)
		return
	}
	ws := h.workspace(c)
	// 已写入但刷新失败时 Feed.Error 中带有原因
	if err := ws.Controller.UpdateReview(c.Request.Context(), id, content, img, remove); apperr.Failed(err) {
		response.FromError(c, err)
		return
	}
	h.ok(c, ws, MutationResult{ID: id})
}

// DeleteReview 删除评价
// @Summary 删除评价 (作者或管理员)
// @Tags Review
// @Produce json
// @Security BearerAuth
// @Param id path int true "评价ID"
// @Success 200 {object} response.Response{data=MutationResult}
// @Router /api/reviews/{id} [delete]
func (h *FeedHandler) DeleteReview(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	ws := h.workspace(c)
	// 已写入但刷新失败时 Feed.Error 中带有原因
	if err := ws.Controller.DeleteReview(c.Request.Context(), id); apperr.Failed(err) {
		response.FromError(c, err)
		return
	}
	h.ok(c, ws, MutationResult{ID: id})
}

// CreateReply 回复评价
// @Summary 回复评价
// @Tags Review
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "评价ID"
// @Param input body ContentInput true "回复内容"
// @Success 200 {object} response.Response{data=MutationResult}
// @Router /api/reviews/{id}/replies [post]
func (h *FeedHandler) CreateReply(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var input ContentInput
	if err := c.ShouldBind(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}
	ws := h.workspace(c)
	reply, err := ws.Controller.CreateReply(c.Request.Context(), id, input.Content)
	if reply == nil {
		response.FromError(c, err)
		return
	}
	h.ok(c, ws, MutationResult{ID: reply.ID})
}

// DeleteReply 删除回复
// @Summary 删除回复 (作者或管理员)
// @Tags Review
// @Produce json
// @Security BearerAuth
// @Param id path int true "回复ID"
// @Success 200 {object} response.Response{data=MutationResult}
// @Router /api/replies/{id} [delete]
func (h *FeedHandler) DeleteReply(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	ws := h.workspace(c)
	// 已写入但刷新失败时 Feed.Error 中带有原因
	if err := ws.Controller.DeleteReply(c.Request.Context(), id); apperr.Failed(err) {
		response.FromError(c, err)
		return
	}
	h.ok(c, ws, MutationResult{ID: id})
}

// ToggleReaction 切换反应
// @Summary 切换反应 (like / love / insightful)
// @Tags Review
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "评价ID"
// @Param input body ReactionInput false "反应类型"
// @Success 200 {object} response.Response{data=MutationResult}
// @Router /api/reviews/{id}/reactions [post]
func (h *FeedHandler) ToggleReaction(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var input ReactionInput
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&input); err != nil {
			response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
			return
		}
	}
	kind, valid := model.ParseReactionKind(input.Kind)
	if !valid {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, "unknown reaction kind")
		return
	}

	ws := h.workspace(c)
	reacted, err := ws.Controller.ToggleReaction(c.Request.Context(), id, kind)
	if apperr.Failed(err) {
		response.FromError(c, err)
		return
	}
	h.ok(c, ws, MutationResult{ID: id, Reacted: &reacted})
}
