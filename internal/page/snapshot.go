package page

import (
	"bytes"
	"errors"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/John-Robertt/vidmeta/internal/metatag"
	"github.com/John-Robertt/vidmeta/internal/textnorm"
)

// State 是 HTML 之外、只能从“活页面”观测到的状态。
// 静态 HTML 文件通常只有 Href（甚至没有）；浏览器加载时由 chrome 包填充全部字段。
type State struct {
	Href string
	// Media 与文档中的 <video> 元素按文档顺序一一对应。
	Media     []Media
	Resources []string
}

// Snapshot 是基于 goquery 的 Inspector 实现：HTML 在构造时解析一次，之后只读。
type Snapshot struct {
	doc       *goquery.Document
	href      string
	host      string
	media     []Media
	resources []string
}

var _ Inspector = (*Snapshot)(nil)

// NewSnapshot 解析 HTML 并绑定活页面状态。
//
// Href 为空时依次回退到 <link rel="canonical"> 与 og:url（静态文件没有 location.href）。
func NewSnapshot(htmlBytes []byte, st State) (*Snapshot, error) {
	if len(bytes.TrimSpace(htmlBytes)) == 0 {
		return nil, errors.New("html 为空")
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(htmlBytes))
	if err != nil {
		return nil, err
	}

	href := strings.TrimSpace(st.Href)
	if href == "" {
		href = discoverHref(doc)
	}

	s := &Snapshot{
		doc:       doc,
		href:      href,
		host:      hostOf(href),
		media:     append([]Media(nil), st.Media...),
		resources: append([]string(nil), st.Resources...),
	}
	return s, nil
}

func (s *Snapshot) Host() string { return s.host }
func (s *Snapshot) Href() string { return s.href }

func (s *Snapshot) DocumentTitle() string {
	return textnorm.CollapseSpace(s.doc.Find("title").First().Text())
}

func (s *Snapshot) First(selectors []string) (Element, bool) {
	sel := s.find(selectors).First()
	if sel.Length() == 0 {
		return Element{}, false
	}
	return toElement(sel), true
}

func (s *Snapshot) All(selectors []string) []Element {
	sel := s.find(selectors)
	out := make([]Element, 0, sel.Length())
	sel.Each(func(_ int, e *goquery.Selection) {
		out = append(out, toElement(e))
	})
	return out
}

func (s *Snapshot) StructuredData() []string {
	var out []string
	s.doc.Find("script").Each(func(_ int, e *goquery.Selection) {
		typ, _ := e.Attr("type")
		if !strings.EqualFold(strings.TrimSpace(typ), "application/ld+json") {
			return
		}
		out = append(out, e.Text())
	})
	return out
}

func (s *Snapshot) Meta() []metatag.Decl {
	var out []metatag.Decl
	s.doc.Find("meta").Each(func(_ int, e *goquery.Selection) {
		var d metatag.Decl
		d.Property, _ = e.Attr("property")
		d.Name, _ = e.Attr("name")
		d.Content, _ = e.Attr("content")
		out = append(out, d)
	})
	return out
}

func (s *Snapshot) Media(selectors []string) (Media, bool) {
	target := s.find(selectors).First()
	if target.Length() == 0 {
		return Media{}, false
	}
	node := target.Get(0)
	if node.Data != "video" {
		return Media{}, false
	}

	// 活页面状态按 <video> 的文档顺序采集，这里用同样的顺序定位下标。
	idx := -1
	s.doc.Find("video").EachWithBreak(func(i int, v *goquery.Selection) bool {
		if v.Get(0) == node {
			idx = i
			return false
		}
		return true
	})
	if idx < 0 || idx >= len(s.media) {
		return Media{}, true
	}
	return s.media[idx], true
}

func (s *Snapshot) Resources() []string {
	return append([]string(nil), s.resources...)
}

func (s *Snapshot) find(selectors []string) *goquery.Selection {
	group := joinSelectors(selectors)
	if group == "" {
		return s.doc.Selection.Slice(0, 0)
	}
	return s.doc.Find(group)
}

func joinSelectors(selectors []string) string {
	parts := make([]string, 0, len(selectors))
	for _, sel := range selectors {
		sel = strings.TrimSpace(sel)
		if sel != "" {
			parts = append(parts, sel)
		}
	}
	return strings.Join(parts, ", ")
}

func toElement(sel *goquery.Selection) Element {
	n := sel.Get(0)
	attrs := make(map[string]string, len(n.Attr))
	for _, a := range n.Attr {
		if a.Namespace != "" {
			continue
		}
		if _, dup := attrs[a.Key]; dup {
			continue
		}
		attrs[a.Key] = a.Val
	}
	id, _ := sel.Attr("id")
	return Element{
		Tag:   nodeName(n),
		ID:    id,
		Text:  textnorm.CollapseSpace(sel.Text()),
		Attrs: attrs,
	}
}

func nodeName(n *html.Node) string {
	if n == nil || n.Type != html.ElementNode {
		return ""
	}
	return n.Data
}

func discoverHref(doc *goquery.Document) string {
	if href, ok := doc.Find(`link[rel="canonical"]`).First().Attr("href"); ok && strings.TrimSpace(href) != "" {
		return strings.TrimSpace(href)
	}
	if v, ok := doc.Find(`meta[property="og:url"]`).First().Attr("content"); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return ""
}

func hostOf(href string) string {
	if href == "" {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
