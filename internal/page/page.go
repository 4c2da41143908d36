package page

import (
	"errors"
	"fmt"

	"github.com/John-Robertt/vidmeta/internal/domain"
	"github.com/John-Robertt/vidmeta/internal/metatag"
)

// Inspector 是对“已加载页面”的只读查询面。
//
// 约束：
// - 所有方法都是对页面当前状态的纯读取，不做网络请求、不等待事件
// - 查不到数据时返回零值/false，不返回错误（缺失是常态，不是异常）
// - selectors 是“选择器组”：等价于 querySelector("a, b")，按文档顺序返回第一个命中
type Inspector interface {
	Host() string
	Href() string
	DocumentTitle() string

	First(selectors []string) (Element, bool)
	All(selectors []string) []Element

	// StructuredData 返回所有 application/ld+json 块的原始文本（文档顺序）。
	StructuredData() []string
	// Meta 返回所有 <meta> 声明（文档顺序）。
	Meta() []metatag.Decl
	// Media 返回 selectors 命中的第一个媒体元素的实时状态。
	Media(selectors []string) (Media, bool)
	// Resources 返回页面在本次会话中已请求过的资源 URL（被动观测，可能为空）。
	Resources() []string
}

// Element 是某个 DOM 元素的只读快照。
type Element struct {
	Tag   string
	ID    string
	Text  string // textContent，已折叠空白
	Attrs map[string]string
}

// Attr 读取属性；属性不存在返回 false（存在但为空返回 "", true）。
func (e Element) Attr(name string) (string, bool) {
	if e.Attrs == nil {
		return "", false
	}
	v, ok := e.Attrs[name]
	return v, ok
}

// Media 是 <video> 元素的实时状态。静态 HTML 无法得知这些值时保持零值。
type Media struct {
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	Duration float64 `json:"duration"`
}

// Error 是页面加载阶段的结构化错误（带 error_code）。
type Error struct {
	Code   string
	Target string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s：加载页面 %q 失败：%v", e.Code, e.Target, e.Err)
	}
	return fmt.Sprintf("%s：加载页面 %q 失败", e.Code, e.Target)
}

func (e *Error) Unwrap() error { return e.Err }

// LoadError 构造 page_load_failed 错误。
func LoadError(target string, err error) error {
	return &Error{Code: domain.ErrCodePageLoadFailed, Target: target, Err: err}
}

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
