// Package security holds input validation and HTML sanitizing for user text.
package security

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// StringValidator 按字符数 (rune) 校验文本字段
type StringValidator struct {
	Field     string
	MinLength int
	MaxLength int // 0 表示不限制
	Required  bool
	Pattern   *regexp.Regexp
}

// NewStringValidator 创建字符串验证器，field 用于错误提示
func NewStringValidator(field string, minLength, maxLength int, required bool) *StringValidator {
	return &StringValidator{
		Field:     field,
		MinLength: minLength,
		MaxLength: maxLength,
		Required:  required,
	}
}

// WithPattern 附加正则约束，pattern 非法时 panic
func (sv *StringValidator) WithPattern(pattern string) *StringValidator {
	sv.Pattern = regexp.MustCompile(pattern)
	return sv
}

// Validate 校验已清理过的文本，返回的错误信息可直接展示给用户
func (sv *StringValidator) Validate(value string) error {
	if strings.TrimSpace(value) == "" {
		if sv.Required {
			return fmt.Errorf("%s must not be empty", sv.Field)
		}
		return nil
	}

	n := utf8.RuneCountInString(value)
	if n < sv.MinLength {
		return fmt.Errorf("%s must be at least %d characters", sv.Field, sv.MinLength)
	}
	if sv.MaxLength > 0 && n > sv.MaxLength {
		return fmt.Errorf("%s must be at most %d characters", sv.Field, sv.MaxLength)
	}
	if sv.Pattern != nil && !sv.Pattern.MatchString(value) {
		return fmt.Errorf("%s contains characters that are not allowed", sv.Field)
	}
	return nil
}

// Sanitize 移除控制字符并去掉首尾空白，保留换行和制表符
func (sv *StringValidator) Sanitize(value string) string {
	value = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\t' && r != '\n' {
			return -1
		}
		return r
	}, value)
	return strings.TrimSpace(value)
}

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// EmailValidator 邮箱校验，地址统一转小写
type EmailValidator struct{}

func NewEmailValidator() *EmailValidator {
	return &EmailValidator{}
}

func (ev *EmailValidator) Validate(email string) error {
	if email == "" {
		return fmt.Errorf("email is required")
	}
	if len(email) > 254 || !emailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format")
	}
	return nil
}

func (ev *EmailValidator) Sanitize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// XSSProtection 基于 bluemonday 的严格策略，不保留任何标签
type XSSProtection struct {
	policy *bluemonday.Policy
}

func NewXSSProtection() *XSSProtection {
	return &XSSProtection{policy: bluemonday.StrictPolicy()}
}

// SanitizeHTML 去除所有标签，文本部分被转义
func (xss *XSSProtection) SanitizeHTML(html string) string {
	return xss.policy.Sanitize(html)
}

// PlainTextToHTML 把用户输入的纯文本转换为可直接嵌入页面的 HTML，换行转为 <br>
func (xss *XSSProtection) PlainTextToHTML(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = xss.policy.Sanitize(line)
	}
	return strings.Join(lines, "<br>")
}
