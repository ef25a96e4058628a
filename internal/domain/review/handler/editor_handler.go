package handler

import (
	"net/http"

	"review_board/internal/domain/review/editor"
	"review_board/pkg/apperr"
	"review_board/pkg/response"

	"github.com/gin-gonic/gin"
)

// EditorResult 编辑框状态，提交成功时带评价 id 和刷新后的评价流
type EditorResult struct {
	Editor editor.Status   `json:"editor"`
	Result *MutationResult `json:"result,omitempty"`
}

func (h *FeedHandler) editorStatus(c *gin.Context, err error) {
	ws := h.workspace(c)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, EditorResult{Editor: ws.Editor.Status()})
}

// GetEditor 编辑框状态
// @Summary 编辑框状态
// @Tags Editor
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response{data=EditorResult}
// @Router /api/editor [get]
func (h *FeedHandler) GetEditor(c *gin.Context) {
	h.editorStatus(c, nil)
}

// OpenNew 打开新建评价
// @Summary 新建评价
// @Tags Editor
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response{data=EditorResult}
// @Router /api/editor/new [post]
func (h *FeedHandler) OpenNew(c *gin.Context) {
	h.editorStatus(c, h.workspace(c).Editor.OpenNew(c.Request.Context()))
}

// OpenEdit 编辑自己的评价
// @Summary 编辑评价
// @Tags Editor
// @Produce json
// @Security BearerAuth
// @Param id path int true "评价ID"
// @Success 200 {object} response.Response{data=EditorResult}
// @Router /api/editor/edit/{id} [post]
func (h *FeedHandler) OpenEdit(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	ws := h.workspace(c)
	h.ensureLoaded(c.Request.Context(), ws)
	h.editorStatus(c, ws.Editor.OpenEdit(c.Request.Context(), id))
}

// Stage 暂存草稿正文
// @Summary 暂存正文
// @Tags Editor
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param input body ContentInput true "正文"
// @Success 200 {object} response.Response{data=EditorResult}
// @Router /api/editor [put]
func (h *FeedHandler) Stage(c *gin.Context) {
	var input ContentInput
	if err := c.ShouldBind(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}
	h.editorStatus(c, h.workspace(c).Editor.Stage(input.Content))
}

// AttachImage 选择图片
// @Summary 选择图片
// @Tags Editor
// @Accept mpfd
// @Produce json
// @Security BearerAuth
// @Param image formData file true "图片 (最大 5MB)"
// @Success 200 {object} response.Response{data=EditorResult}
// @Router /api/editor/image [post]
func (h *FeedHandler) AttachImage(c *gin.Context) {
	img, err := readImage(c, "image")
	if err == nil && img == nil {
		err = apperr.New(apperr.KindValidation, "editor.attach_image", "image file is required")
	}
	if err != nil {
		response.FromError(c, err)
		return
	}
	h.editorStatus(c, h.workspace(c).Editor.AttachImage(img))
}

// RemoveImage 移除图片
// @Summary 移除图片
// @Tags Editor
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response{data=EditorResult}
// @Router /api/editor/image [delete]
func (h *FeedHandler) RemoveImage(c *gin.Context) {
	h.editorStatus(c, h.workspace(c).Editor.RemoveImage())
}

// Cancel 关闭编辑框
// @Summary 关闭编辑框
// @Tags Editor
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response{data=EditorResult}
// @Router /api/editor [delete]
func (h *FeedHandler) Cancel(c *gin.Context) {
	h.editorStatus(c, h.workspace(c).Editor.Cancel())
}

// Submit 提交草稿
// @Summary 提交草稿
// @Tags Editor
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response{data=EditorResult}
// @Router /api/editor/submit [post]
func (h *FeedHandler) Submit(c *gin.Context) {
	ws := h.workspace(c)
	id, err := ws.Editor.Submit(c.Request.Context())
	if apperr.Failed(err) {
		response.FromError(c, err)
		return
	}
	result := &MutationResult{ID: id, Feed: h.project(c.Request.Context(), ws)}
	response.Success(c, EditorResult{Editor: ws.Editor.Status(), Result: result})
}
