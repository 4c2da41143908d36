package textnorm

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// DecodeEntities 反转 HTML 实体编码（例如 "&rsquo;" -> "’"、"&quot;" -> `"`）。
// 只做字符串层面的解码，不解析也不执行任何标记；空输入返回空串。
func DecodeEntities(s string) string {
	if s == "" {
		return ""
	}
	return html.UnescapeString(s)
}

// StripMarkup 把一段 HTML 片段转为纯文本：去掉标签、跳过 script/style 等不可见内容，
// 并把连续空白折叠为单个空格（近似浏览器 innerText 的结果）。
//
// 约束：纯函数、全函数；解析失败时退化为“只折叠空白”，绝不返回错误。
func StripMarkup(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	ctx := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	nodes, err := html.ParseFragment(strings.NewReader(s), ctx)
	if err != nil {
		return CollapseSpace(s)
	}

	var b strings.Builder
	for _, n := range nodes {
		writeText(&b, n)
	}
	return CollapseSpace(b.String())
}

// CollapseSpace 把任意空白序列折叠为单个空格并去掉首尾空白。
func CollapseSpace(s string) string { return strings.Join(strings.Fields(s), " ") }

func writeText(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.CommentNode:
		return
	case html.ElementNode:
		switch n.DataAtom {
		case atom.Script, atom.Style, atom.Template, atom.Noscript:
			return
		case atom.Br:
			b.WriteByte(' ')
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeText(b, c)
	}
	if n.Type == html.ElementNode && isBlock(n.DataAtom) {
		// 块级元素之间至少隔一个空白，避免 "<p>a</p><p>b</p>" 粘成 "ab"。
		b.WriteByte(' ')
	}
}

func isBlock(a atom.Atom) bool {
	switch a {
	case atom.P, atom.Div, atom.Li, atom.Ul, atom.Ol, atom.H1, atom.H2, atom.H3,
		atom.H4, atom.H5, atom.H6, atom.Section, atom.Article, atom.Tr, atom.Blockquote:
		return true
	}
	return false
}
