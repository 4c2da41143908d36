package domain

// DurationSource 标记最终 duration 的来源（provenance）。
type DurationSource string

const (
	DurationFromUI             DurationSource = "ui"
	DurationFromMeta           DurationSource = "meta"
	DurationFromMediaElement   DurationSource = "media-element"
	DurationFromStructuredData DurationSource = "structured-data"
	DurationFromAttributes     DurationSource = "page-attributes"
	DurationFromNone           DurationSource = "none"
)

// VideoMetadata 是一次解析得到的最终记录（对外稳定输出）。
//
// 约束：
// - 可选字段用 *string，未解析时为 nil（JSON 输出 null），不要用空串冒充
// - Tags / HLSPlaylists 永不为 nil（JSON 输出 []），无空白项、无重复项
// - DurationSeconds 非负；与 Duration 同时非空时二者必须一致
// - 记录一旦产出即视为不可变：调用方拿到的是值拷贝，切片/映射也由 resolve 新建
type VideoMetadata struct {
	Source string `json:"source"`

	Title              *string `json:"title"`
	Description        *string `json:"description"`
	Author             *string `json:"author"`
	PublicationDateUTC *string `json:"publicationDateUTC"`
	Section            *string `json:"section"`
	VideoID            *string `json:"videoId"`
	CanonicalURL       *string `json:"canonicalUrl"`
	PosterImage        *string `json:"posterImage"`
	ContentType        *string `json:"contentType"`
	Resolution         *string `json:"resolution"`

	Tags []string `json:"tags"`

	Duration        *string        `json:"duration"`
	DurationSeconds *int           `json:"durationSeconds"`
	DurationSource  DurationSource `json:"durationSource"`

	HLSPlaylists []string `json:"hlsPlaylists"`

	Extra map[string]*string `json:"extra"`

	// Provenance 记录每个已解析字段的来源（field -> source name），
	// 例如 "author": "heuristic" 表示该值来自启发式匹配，可信度较低。
	Provenance map[string]string `json:"provenance"`
}

// Str 把非空字符串包装为 *string；空串返回 nil。
func Str(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref 读取可选字段；nil 返回空串（仅用于展示）。
func Deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
