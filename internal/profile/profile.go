package profile

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/andybalholm/cascadia"
	"gopkg.in/yaml.v3"

	"github.com/John-Robertt/vidmeta/internal/domain"
)

// 标量字段名（与 VideoMetadata 的 JSON 字段名一致）。
const (
	FieldTitle              = "title"
	FieldDescription        = "description"
	FieldAuthor             = "author"
	FieldPublicationDateUTC = "publicationDateUTC"
	FieldSection            = "section"
	FieldVideoID            = "videoId"
	FieldCanonicalURL       = "canonicalUrl"
	FieldPosterImage        = "posterImage"
	FieldContentType        = "contentType"
)

// ScalarFields 是可在 fields 中声明候选的字段（固定顺序，用于稳定输出与校验）。
var ScalarFields = []string{
	FieldTitle, FieldDescription, FieldAuthor, FieldPublicationDateUTC, FieldSection,
	FieldVideoID, FieldCanonicalURL, FieldPosterImage, FieldContentType,
}

// 候选来源类型。
const (
	SourceAttr      = "attr"      // wrapper（或 selectors 命中元素）的属性
	SourceAttrJSON  = "attr-json" // 属性值是实体编码的 JSON，按 path 取值
	SourceLD        = "ld"        // VideoObject 的点分路径
	SourceMeta      = "meta"      // meta 索引，keys 按优先级
	SourceDocument  = "document"  // document 的 title / href
	SourceText      = "text"      // selectors 命中的第一个元素的文本
	SourceID        = "id"        // 元素 id 匹配 patterns 的第一个捕获组
	SourceHeuristic = "heuristic" // 对 from 候选的值做正则提取（低可信度）
	SourceWidget    = "widget"    // 播放器 UI 上渲染的时长文本（仅 duration）
	SourceMedia     = "media"     // 媒体元素的实时时长（仅 duration）
	SourceDOM       = "dom"       // selectors 命中的所有元素文本（仅 tags）
)

// 标签合并策略。
const (
	TagModeMerge = "merge" // 所有来源拼接后去重
	TagModeFirst = "first" // 只取第一个非空来源
)

// DefaultManifestPattern 识别 HLS 清单 URL。
const DefaultManifestPattern = `(?i)\.m3u8(\?|$)`

// Profile 是某个站点的声明式解析配置（只读）。
//
// 新站点只需要新增一份 Profile，而不是新增解析逻辑。
type Profile struct {
	Name       string   `yaml:"name"`
	Hosts      []string `yaml:"hosts"`
	ExportName string   `yaml:"export_name"`

	Wrapper []string `yaml:"wrapper"`
	Media   []string `yaml:"media"`

	ManifestPattern string `yaml:"manifest_pattern"`

	Fields   map[string][]Candidate `yaml:"fields"`
	Duration []Candidate            `yaml:"duration"`
	Tags     Tags                   `yaml:"tags"`
	Extra    map[string]string      `yaml:"extra"`
}

// Candidate 是某个字段的一个候选来源。不同 source 使用不同的参数子集。
type Candidate struct {
	Source    string     `yaml:"source"`
	Key       string     `yaml:"key,omitempty"`
	Keys      []string   `yaml:"keys,omitempty"`
	Selectors []string   `yaml:"selectors,omitempty"`
	Path      string     `yaml:"path,omitempty"`
	Patterns  []string   `yaml:"patterns,omitempty"`
	Pattern   string     `yaml:"pattern,omitempty"`
	Template  string     `yaml:"template,omitempty"`
	From      *Candidate `yaml:"from,omitempty"`
	Split     string     `yaml:"split,omitempty"`
	Transform []string   `yaml:"transform,omitempty"`
}

// Tags 描述多值字段 tags 的来源与合并策略。
type Tags struct {
	Mode    string      `yaml:"mode"`
	Sources []Candidate `yaml:"sources"`
}

// Provenance 返回该候选在记录中的来源名。
func (c Candidate) Provenance() string {
	switch c.Source {
	case SourceAttr, SourceAttrJSON, SourceID:
		return "page-attributes"
	case SourceLD:
		return "structured-data"
	case SourceMeta:
		return "meta"
	case SourceWidget:
		return string(domain.DurationFromUI)
	case SourceMedia:
		return string(domain.DurationFromMediaElement)
	case SourceText, SourceDOM:
		return "dom"
	default:
		return c.Source
	}
}

// ManifestRE 编译清单匹配规则；未配置时使用默认规则。
func (p Profile) ManifestRE() (*regexp.Regexp, error) {
	pat := strings.TrimSpace(p.ManifestPattern)
	if pat == "" {
		pat = DefaultManifestPattern
	}
	return regexp.Compile(pat)
}

// FileStem 返回导出文件名前缀。
func (p Profile) FileStem() string {
	if s := strings.TrimSpace(p.ExportName); s != "" {
		return s
	}
	return p.Name
}

// Error 是 profile 阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Name string // profile 名或文件路径
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case domain.ErrCodeProfileNotFound:
		return fmt.Sprintf("%s：未找到站点配置 %q", e.Code, e.Name)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：站点配置 %q 无效：%v", e.Code, e.Name, e.Err)
		}
		return fmt.Sprintf("%s：站点配置 %q 无效", e.Code, e.Name)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

var nameRE = regexp.MustCompile(`^[a-z0-9_]+$`)

// Validate 在加载阶段一次性检查配置，确保解析阶段不会遇到非法选择器或正则。
func (p Profile) Validate() error {
	if !nameRE.MatchString(p.Name) {
		return fmt.Errorf("name 必须匹配 [a-z0-9_]+，实际是 %q", p.Name)
	}
	if stem := p.FileStem(); strings.ContainsAny(stem, `/\`) || stem == "." || stem == ".." {
		return fmt.Errorf("export_name 非法：%q", stem)
	}
	if err := validateSelectors("wrapper", p.Wrapper); err != nil {
		return err
	}
	if err := validateSelectors("media", p.Media); err != nil {
		return err
	}
	if _, err := p.ManifestRE(); err != nil {
		return fmt.Errorf("manifest_pattern 无效：%w", err)
	}

	known := make(map[string]struct{}, len(ScalarFields))
	for _, f := range ScalarFields {
		known[f] = struct{}{}
	}
	for field, cands := range p.Fields {
		if _, ok := known[field]; !ok {
			return fmt.Errorf("未知字段 %q", field)
		}
		for i, c := range cands {
			if err := validateCandidate(c, scalarSources); err != nil {
				return fmt.Errorf("fields.%s[%d]：%w", field, i, err)
			}
		}
	}
	for i, c := range p.Duration {
		if err := validateCandidate(c, durationSources); err != nil {
			return fmt.Errorf("duration[%d]：%w", i, err)
		}
	}

	switch p.Tags.Mode {
	case TagModeMerge, TagModeFirst:
	case "":
		if len(p.Tags.Sources) > 0 {
			return fmt.Errorf("tags.mode 不能为空（merge 或 first）")
		}
	default:
		return fmt.Errorf("tags.mode 只能是 merge 或 first，实际是 %q", p.Tags.Mode)
	}
	for i, c := range p.Tags.Sources {
		if err := validateCandidate(c, tagSources); err != nil {
			return fmt.Errorf("tags.sources[%d]：%w", i, err)
		}
	}

	for name, attr := range p.Extra {
		if strings.TrimSpace(name) == "" || strings.TrimSpace(attr) == "" {
			return fmt.Errorf("extra 的键和值都不能为空")
		}
	}
	return nil
}

var (
	scalarSources = map[string]bool{
		SourceAttr: true, SourceAttrJSON: true, SourceLD: true, SourceMeta: true,
		SourceDocument: true, SourceText: true, SourceID: true, SourceHeuristic: true,
	}
	durationSources = map[string]bool{
		SourceAttr: true, SourceLD: true, SourceMeta: true, SourceWidget: true, SourceMedia: true,
	}
	tagSources = map[string]bool{
		SourceAttr: true, SourceLD: true, SourceMeta: true, SourceDOM: true,
	}
)

func validateCandidate(c Candidate, allowed map[string]bool) error {
	if !allowed[c.Source] {
		return fmt.Errorf("不支持的 source %q", c.Source)
	}
	if err := validateSelectors("selectors", c.Selectors); err != nil {
		return err
	}
	for _, t := range c.Transform {
		if t != TransformDecode && t != TransformStrip {
			return fmt.Errorf("未知 transform %q", t)
		}
	}

	switch c.Source {
	case SourceAttr, SourceAttrJSON:
		if strings.TrimSpace(c.Key) == "" {
			return fmt.Errorf("source=%s 需要 key", c.Source)
		}
		if c.Source == SourceAttrJSON && strings.TrimSpace(c.Path) == "" {
			return fmt.Errorf("source=attr-json 需要 path")
		}
	case SourceLD:
		if strings.TrimSpace(c.Path) == "" {
			return fmt.Errorf("source=ld 需要 path")
		}
	case SourceMeta:
		if len(c.Keys) == 0 {
			return fmt.Errorf("source=meta 需要 keys")
		}
	case SourceDocument:
		if c.Key != "title" && c.Key != "href" {
			return fmt.Errorf("source=document 的 key 只能是 title 或 href，实际是 %q", c.Key)
		}
	case SourceText, SourceDOM, SourceWidget:
		if len(c.Selectors) == 0 {
			return fmt.Errorf("source=%s 需要 selectors", c.Source)
		}
	case SourceID:
		if len(c.Patterns) == 0 {
			return fmt.Errorf("source=id 需要 patterns")
		}
		for _, pat := range c.Patterns {
			re, err := regexp.Compile(pat)
			if err != nil {
				return fmt.Errorf("patterns 无效：%w", err)
			}
			if re.NumSubexp() < 1 {
				return fmt.Errorf("pattern %q 至少需要一个捕获组", pat)
			}
		}
	case SourceHeuristic:
		if c.From == nil {
			return fmt.Errorf("source=heuristic 需要 from")
		}
		if c.From.Source == SourceHeuristic {
			return fmt.Errorf("heuristic 不能嵌套")
		}
		if err := validateCandidate(*c.From, scalarSources); err != nil {
			return fmt.Errorf("from：%w", err)
		}
		if _, err := regexp.Compile(c.Pattern); err != nil || strings.TrimSpace(c.Pattern) == "" {
			return fmt.Errorf("pattern 无效：%q", c.Pattern)
		}
		if strings.TrimSpace(c.Template) == "" {
			return fmt.Errorf("source=heuristic 需要 template")
		}
	}
	return nil
}

func validateSelectors(what string, sels []string) error {
	for _, s := range sels {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s 中存在空选择器", what)
		}
		if _, err := cascadia.ParseGroup(s); err != nil {
			return fmt.Errorf("%s 选择器 %q 无效：%w", what, s, err)
		}
	}
	return nil
}

// 字符串变换。
const (
	TransformDecode = "decode" // HTML 实体解码
	TransformStrip  = "strip"  // 去标签、折叠空白
)

// Parse 解析单个 YAML profile 并校验；未知字段视为错误（避免拼写错误被静默忽略）。
func Parse(b []byte, origin string) (Profile, error) {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	var p Profile
	if err := dec.Decode(&p); err != nil {
		return Profile{}, &Error{Code: domain.ErrCodeProfileInvalid, Name: origin, Err: err}
	}
	p.Name = strings.ToLower(strings.TrimSpace(p.Name))
	for i, h := range p.Hosts {
		p.Hosts[i] = strings.ToLower(strings.TrimSpace(h))
	}
	if err := p.Validate(); err != nil {
		return Profile{}, &Error{Code: domain.ErrCodeProfileInvalid, Name: origin, Err: err}
	}
	return p, nil
}
