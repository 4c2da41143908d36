package ldjson

import (
	"encoding/json"
	"strconv"
	"strings"
)

// VideoTypeName 是结构化数据里视频实体的 @type。
const VideoTypeName = "VideoObject"

// Object 是一个已解析的 JSON-LD 实体（保持原始形态，不做 schema 映射）。
type Object map[string]any

// FindVideoObject 依文档顺序扫描所有 ld+json 块，返回第一个 @type 为 VideoObject 的实体。
//
// 每个块的顶层可以是：单个对象、对象数组、或带 @graph 数组的对象。
// 对每个顶层条目：先看条目本身，再看它的 @graph。
// 单个块解析失败只视为“该块没有数据”，继续扫描下一个块。
func FindVideoObject(blocks []string) (Object, bool) {
	for _, raw := range blocks {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		var data any
		if err := json.Unmarshal([]byte(raw), &data); err != nil {
			continue
		}
		if obj, ok := findIn(data); ok {
			return obj, true
		}
	}
	return nil, false
}

func findIn(data any) (Object, bool) {
	var items []any
	switch v := data.(type) {
	case []any:
		items = v
	case map[string]any:
		items = []any{v}
	default:
		return nil, false
	}

	for _, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			continue
		}
		if isVideo(m) {
			return Object(m), true
		}
		graph, ok := m["@graph"].([]any)
		if !ok {
			continue
		}
		for _, g := range graph {
			gm, ok := g.(map[string]any)
			if ok && isVideo(gm) {
				return Object(gm), true
			}
		}
	}
	return nil, false
}

// isVideo 接受 "@type": "VideoObject" 以及 "@type": ["VideoObject", ...] 两种写法。
func isVideo(m map[string]any) bool {
	switch t := m["@type"].(type) {
	case string:
		return t == VideoTypeName
	case []any:
		for _, x := range t {
			if s, ok := x.(string); ok && s == VideoTypeName {
				return true
			}
		}
	}
	return false
}

// String 按点分路径取标量值（例如 "author.name"）。
//
// 形态容错：
// - 路径中途遇到数组时取第一个元素继续
// - 末端是数组时取第一个可转为字符串的标量
// - 数字/布尔转为字符串；对象/缺失返回 ""
func (o Object) String(path string) string {
	v, ok := o.walk(path)
	if !ok {
		return ""
	}
	if arr, ok := v.([]any); ok {
		for _, x := range arr {
			if s := scalar(x); s != "" {
				return s
			}
		}
		return ""
	}
	return scalar(v)
}

// Strings 把路径上的值展开为字符串列表：数组逐项转换，字符串按逗号拆分。
// 不做去重与去空白（由调用方统一处理）。
func (o Object) Strings(path string) []string {
	v, ok := o.walk(path)
	if !ok {
		return nil
	}
	switch x := v.(type) {
	case []any:
		out := make([]string, 0, len(x))
		for _, it := range x {
			out = append(out, scalar(it))
		}
		return out
	case string:
		return strings.Split(x, ",")
	default:
		if s := scalar(x); s != "" {
			return []string{s}
		}
		return nil
	}
}

func (o Object) walk(path string) (any, bool) {
	if o == nil {
		return nil, false
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, false
	}
	var cur any = map[string]any(o)
	for _, key := range strings.Split(path, ".") {
		if arr, ok := cur.([]any); ok {
			if len(arr) == 0 {
				return nil, false
			}
			cur = arr[0]
		}
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok || cur == nil {
			return nil, false
		}
	}
	return cur, true
}

func scalar(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return ""
	}
}
