package resolve

import (
	"github.com/John-Robertt/vidmeta/internal/metatag"
	"github.com/John-Robertt/vidmeta/internal/page"
)

// emptyInspector 对所有查询都返回“没有数据”。
type emptyInspector struct{}

var _ page.Inspector = emptyInspector{}

func (emptyInspector) Host() string { return "" }
func (emptyInspector) Href() string { return "" }
func (emptyInspector) DocumentTitle() string { return "" }
func (emptyInspector) First([]string) (page.Element, bool) { return page.Element{}, false }
func (emptyInspector) All([]string) []page.Element { return nil }
func (emptyInspector) StructuredData() []string { return nil }
func (emptyInspector) Meta() []metatag.Decl { return nil }
func (emptyInspector) Media([]string) (page.Media, bool) { return page.Media{}, false }
func (emptyInspector) Resources() []string { return nil }
