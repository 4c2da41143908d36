package metatag

import "testing"

func TestBuild_KeySelectionAndSkips(t *testing.T) {
	idx := Build([]Decl{
		{Property: "og:title", Content: "Meta Title"},
		{Name: "description", Content: "desc"},
		{Property: "og:image", Name: "ignored", Content: "https://x/a.jpg"},
		{Name: "keywords"},                       // 无 content
		{Content: "orphan"},                      // 无 key
		{Property: "og:title", Content: "Later"}, // 重复 key：后者覆盖
	})

	if len(idx) != 3 {
		t.Fatalf("期望 3 个条目，实际 %d：%v", len(idx), idx)
	}
	if idx["og:title"] != "Later" {
		t.Fatalf("重复 key 应以最后一次为准，实际=%q", idx["og:title"])
	}
	if _, ok := idx["ignored"]; ok {
		t.Fatalf("property 存在时不应使用 name 作为 key")
	}
	if idx["description"] != "desc" {
		t.Fatalf("name 应作为回退 key")
	}
}

func TestLookup_PriorityOrder(t *testing.T) {
	idx := Build([]Decl{
		{Property: "og:article:published_time", Content: "2025-01-02"},
		{Property: "article:published_time", Content: "2025-01-01"},
	})

	v, ok := idx.Lookup("article:published_time", "og:article:published_time")
	if !ok || v != "2025-01-01" {
		t.Fatalf("期望按调用方顺序命中第一个 key，实际=%q ok=%v", v, ok)
	}
	if _, ok := idx.Lookup("nope", "also-nope"); ok {
		t.Fatalf("全部缺失时应返回 false")
	}
	if _, ok := idx.Lookup(); ok {
		t.Fatalf("空 key 列表应返回 false")
	}

	var empty Index
	if _, ok := empty.Lookup("og:title"); ok {
		t.Fatalf("nil Index 查找应返回 false")
	}
}
