package view

import (
	"embed"
	"html/template"
	"io"

	"review_board/internal/domain/review/editor"
)

//go:embed templates/*.html
var templateFS embed.FS

// Page 完整页面：评价流、编辑框和提交中的动作
type Page struct {
	Title  string
	Feed   FeedView
	Editor editor.Status
	// Busy 正在提交的动作键，对应的按钮禁用
	Busy map[string]bool
}

// Renderer 渲染评价页面
type Renderer struct {
	tmpl *template.Template
}

func NewRenderer() (*Renderer, error) {
	tmpl, err := template.New("feed").ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	return &Renderer{tmpl: tmpl}, nil
}

// MustRenderer 模板内嵌在二进制中，解析失败属于编程错误
func MustRenderer() *Renderer {
	r, err := NewRenderer()
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Renderer) Render(w io.Writer, page Page) error {
	if page.Title == "" {
		page.Title = "Reviews"
	}
	return r.tmpl.ExecuteTemplate(w, "feed.html", page)
}
