package resolve

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/John-Robertt/vidmeta/internal/domain"
	"github.com/John-Robertt/vidmeta/internal/duration"
	"github.com/John-Robertt/vidmeta/internal/ldjson"
	"github.com/John-Robertt/vidmeta/internal/metatag"
	"github.com/John-Robertt/vidmeta/internal/page"
	"github.com/John-Robertt/vidmeta/internal/profile"
	"github.com/John-Robertt/vidmeta/internal/textnorm"
)

// 候选尝试结果。
const (
	OutcomeHit       = "hit"
	OutcomeMiss      = "miss"
	OutcomeMalformed = "malformed"
)

// Attempt 记录一次候选尝试（用于解释某个字段为什么取了这个来源）。
// 注意：这是内部执行轨迹，不写入记录（由上层决定如何呈现）。
type Attempt struct {
	Field   string // 字段名（与 JSON 字段名一致）
	Source  string // 候选 source（attr / ld / meta / ...）
	Detail  string // key / keys / path / selectors
	Outcome string // "hit" / "miss" / "malformed"
	Err     error  // 仅 Outcome=="malformed" 时非 nil
}

// Resolve 按 profile 声明的候选顺序，从页面中解析出一条记录。
//
// 约束：
// - 纯函数：只读 inspector，不做 I/O，不返回错误
// - 任一字段失败（缺失/格式错误）只影响该字段本身
// - in 为 nil 时等价于“所有查询都没有数据”
func Resolve(p profile.Profile, in page.Inspector) domain.VideoMetadata {
	rec, _ := ResolveTrace(p, in)
	return rec
}

// ResolveTrace 与 Resolve 相同，但额外返回每个字段的候选尝试链路。
func ResolveTrace(p profile.Profile, in page.Inspector) (domain.VideoMetadata, []Attempt) {
	if in == nil {
		in = emptyInspector{}
	}
	r := newRun(p, in)

	rec := domain.VideoMetadata{
		Source:     in.Host(),
		Provenance: map[string]string{},
	}

	for _, field := range profile.ScalarFields {
		v, prov := r.scalar(field, p.Fields[field])
		if v == "" {
			continue
		}
		*fieldPtr(&rec, field) = domain.Str(v)
		rec.Provenance[field] = prov
	}

	if m, ok := in.Media(p.Media); ok && m.Width > 0 && m.Height > 0 {
		rec.Resolution = domain.Str(fmt.Sprintf("%dx%d", m.Width, m.Height))
		rec.Provenance["resolution"] = string(domain.DurationFromMediaElement)
	}

	rec.DurationSource = domain.DurationFromNone
	if d, ok := r.duration(p.Duration); ok {
		rec.Duration = domain.Str(d.Raw)
		rec.DurationSeconds = d.Seconds
		rec.DurationSource = d.Source
		rec.Provenance["duration"] = string(d.Source)
	}

	var tagsProv string
	rec.Tags, tagsProv = r.tags(p.Tags)
	if tagsProv != "" {
		rec.Provenance["tags"] = tagsProv
	}

	rec.HLSPlaylists = r.manifests()
	if len(rec.HLSPlaylists) > 0 {
		rec.Provenance["hlsPlaylists"] = "resource-timing"
	}

	rec.Extra = r.extra(p.Extra)

	return rec, r.trace
}

func fieldPtr(rec *domain.VideoMetadata, field string) **string {
	switch field {
	case profile.FieldTitle:
		return &rec.Title
	case profile.FieldDescription:
		return &rec.Description
	case profile.FieldAuthor:
		return &rec.Author
	case profile.FieldPublicationDateUTC:
		return &rec.PublicationDateUTC
	case profile.FieldSection:
		return &rec.Section
	case profile.FieldVideoID:
		return &rec.VideoID
	case profile.FieldCanonicalURL:
		return &rec.CanonicalURL
	case profile.FieldPosterImage:
		return &rec.PosterImage
	case profile.FieldContentType:
		return &rec.ContentType
	default:
		panic("resolve: 未知字段 " + field)
	}
}

// run 是单次解析的上下文：wrapper / VideoObject / meta 索引各只查一次。
type run struct {
	p  profile.Profile
	in page.Inspector

	wrapper   page.Element
	hasWrap   bool
	ld        ldjson.Object
	hasLD     bool
	meta      metatag.Index
	manifestR *regexp.Regexp

	trace []Attempt
}

func newRun(p profile.Profile, in page.Inspector) *run {
	r := &run{p: p, in: in}
	r.wrapper, r.hasWrap = in.First(p.Wrapper)
	r.ld, r.hasLD = ldjson.FindVideoObject(in.StructuredData())
	r.meta = metatag.Build(in.Meta())

	re, err := p.ManifestRE()
	if err != nil {
		re = regexp.MustCompile(profile.DefaultManifestPattern)
	}
	r.manifestR = re
	return r
}

func (r *run) record(field string, c profile.Candidate, outcome string, err error) {
	r.trace = append(r.trace, Attempt{Field: field, Source: c.Source, Detail: describe(c), Outcome: outcome, Err: err})
}

// scalar 依次尝试候选，返回第一个去空白后非空的值及其来源名。
func (r *run) scalar(field string, cands []profile.Candidate) (string, string) {
	for _, c := range cands {
		v, err := r.value(c)
		switch {
		case err != nil:
			r.record(field, c, OutcomeMalformed, err)
		case v == "":
			r.record(field, c, OutcomeMiss, nil)
		default:
			r.record(field, c, OutcomeHit, nil)
			return v, c.Provenance()
		}
	}
	return "", ""
}

// value 取出单个候选的值（已做 transform 与 trim）。
// 格式错误以 error 返回，调用方把它当作“缺失”并继续下一个候选。
func (r *run) value(c profile.Candidate) (string, error) {
	var (
		raw string
		err error
	)
	switch c.Source {
	case profile.SourceAttr:
		raw = r.attr(c)
	case profile.SourceAttrJSON:
		raw, err = r.attrJSON(c)
	case profile.SourceLD:
		if r.hasLD {
			raw = r.ld.String(c.Path)
		}
	case profile.SourceMeta:
		raw, _ = r.meta.Lookup(c.Keys...)
	case profile.SourceDocument:
		switch c.Key {
		case "title":
			raw = r.in.DocumentTitle()
		case "href":
			raw = r.in.Href()
		}
	case profile.SourceText:
		if el, ok := r.in.First(c.Selectors); ok {
			raw = el.Text
		}
	case profile.SourceID:
		raw = r.idMatch(c)
	case profile.SourceHeuristic:
		raw, err = r.heuristic(c)
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(transform(raw, c.Transform)), nil
}

// element 返回候选作用的元素：声明了 selectors 时取第一个命中，否则取 wrapper。
func (r *run) element(c profile.Candidate) (page.Element, bool) {
	if len(c.Selectors) > 0 {
		return r.in.First(c.Selectors)
	}
	return r.wrapper, r.hasWrap
}

func (r *run) attr(c profile.Candidate) string {
	el, ok := r.element(c)
	if !ok {
		return ""
	}
	v, _ := el.Attr(c.Key)
	return v
}

// attrJSON 读取“实体编码的 JSON”属性（例如 {&quot;big&quot;:{...}}）并按 path 取值。
func (r *run) attrJSON(c profile.Candidate) (string, error) {
	raw := strings.TrimSpace(r.attr(c))
	if raw == "" {
		return "", nil
	}
	var data any
	if err := json.Unmarshal([]byte(textnorm.DecodeEntities(raw)), &data); err != nil {
		return "", fmt.Errorf("属性 %s 不是合法 JSON：%w", c.Key, err)
	}
	m, ok := data.(map[string]any)
	if !ok {
		return "", fmt.Errorf("属性 %s 的 JSON 不是对象", c.Key)
	}
	return ldjson.Object(m).String(c.Path), nil
}

func (r *run) idMatch(c profile.Candidate) string {
	el, ok := r.element(c)
	if !ok || el.ID == "" {
		return ""
	}
	for _, pat := range c.Patterns {
		re, err := regexp.Compile(pat)
		if err != nil {
			continue
		}
		if m := re.FindStringSubmatch(el.ID); len(m) > 1 && m[1] != "" {
			return m[1]
		}
	}
	return ""
}

// heuristic 对 from 候选的值做正则提取，按 template 展开（$1 等）。
func (r *run) heuristic(c profile.Candidate) (string, error) {
	if c.From == nil {
		return "", nil
	}
	src, err := r.value(*c.From)
	if err != nil || src == "" {
		return "", err
	}
	re, err := regexp.Compile(c.Pattern)
	if err != nil {
		return "", err
	}
	idx := re.FindStringSubmatchIndex(src)
	if idx == nil {
		return "", nil
	}
	return string(re.ExpandString(nil, c.Template, src, idx)), nil
}

func transform(s string, ts []string) string {
	for _, t := range ts {
		switch t {
		case profile.TransformDecode:
			s = textnorm.DecodeEntities(s)
		case profile.TransformStrip:
			s = textnorm.StripMarkup(s)
		}
	}
	return s
}

// duration 依次尝试时长候选；第一个“有原始值”的候选胜出（即使无法换算为秒）。
func (r *run) duration(cands []profile.Candidate) (duration.Value, bool) {
	for _, c := range cands {
		v, ok := r.durationValue(c)
		if !ok || v.Empty() {
			r.record("duration", c, OutcomeMiss, nil)
			continue
		}
		r.record("duration", c, OutcomeHit, nil)
		return v, true
	}
	return duration.Value{}, false
}

func (r *run) durationValue(c profile.Candidate) (duration.Value, bool) {
	switch c.Source {
	case profile.SourceAttr:
		raw := strings.TrimSpace(r.attr(c))
		if raw == "" {
			return duration.Value{}, false
		}
		v := duration.Parse(raw)
		v.Source = domain.DurationFromAttributes
		return v, true
	case profile.SourceLD:
		if !r.hasLD {
			return duration.Value{}, false
		}
		raw := strings.TrimSpace(r.ld.String(c.Path))
		if raw == "" {
			return duration.Value{}, false
		}
		v := duration.Parse(raw)
		v.Source = domain.DurationFromStructuredData
		return v, true
	case profile.SourceMeta:
		raw, ok := r.meta.Lookup(c.Keys...)
		if !ok {
			return duration.Value{}, false
		}
		v, ok := duration.ParseSeconds(raw)
		v.Source = domain.DurationFromMeta
		return v, ok
	case profile.SourceWidget:
		// 选择器组按文档顺序只取第一个控件；文本不是时钟格式时直接交给下一个候选。
		el, ok := r.in.First(c.Selectors)
		if !ok {
			return duration.Value{}, false
		}
		return duration.ParseClock(el.Text)
	case profile.SourceMedia:
		m, ok := r.in.Media(r.p.Media)
		if !ok {
			return duration.Value{}, false
		}
		return duration.FromMediaSeconds(m.Duration)
	}
	return duration.Value{}, false
}

// tags 按 mode 组合各来源：first 只取第一个非空来源，merge 拼接全部来源；最后统一去重。
func (r *run) tags(t profile.Tags) ([]string, string) {
	var (
		all   []string
		provs []string
	)
	for _, c := range t.Sources {
		list := Dedupe(r.tagValues(c))
		if len(list) == 0 {
			r.record("tags", c, OutcomeMiss, nil)
			continue
		}
		r.record("tags", c, OutcomeHit, nil)
		all = append(all, list...)
		if p := c.Provenance(); !contains(provs, p) {
			provs = append(provs, p)
		}
		if t.Mode == profile.TagModeFirst {
			break
		}
	}
	return Dedupe(all), strings.Join(provs, ",")
}

func (r *run) tagValues(c profile.Candidate) []string {
	switch c.Source {
	case profile.SourceDOM:
		els := r.in.All(c.Selectors)
		out := make([]string, 0, len(els))
		for _, el := range els {
			out = append(out, transform(el.Text, c.Transform))
		}
		return out
	case profile.SourceLD:
		if !r.hasLD {
			return nil
		}
		return r.ld.Strings(c.Path)
	case profile.SourceAttr, profile.SourceMeta:
		raw, err := r.value(c)
		if err != nil || raw == "" {
			return nil
		}
		if c.Split == "" {
			return []string{raw}
		}
		return strings.Split(raw, c.Split)
	}
	return nil
}

func (r *run) manifests() []string {
	var hits []string
	for _, u := range r.in.Resources() {
		if r.manifestR.MatchString(u) {
			hits = append(hits, u)
		}
	}
	return Dedupe(hits)
}

// extra 读取 wrapper 上的附加属性；缺失时值为 nil（JSON null）。
func (r *run) extra(m map[string]string) map[string]*string {
	out := make(map[string]*string, len(m))
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		c := profile.Candidate{Source: profile.SourceAttr, Key: m[name]}
		v := strings.TrimSpace(r.attr(c))
		if v == "" {
			r.record("extra."+name, c, OutcomeMiss, nil)
		} else {
			r.record("extra."+name, c, OutcomeHit, nil)
		}
		out[name] = domain.Str(v)
	}
	return out
}

// Dedupe 去掉空白项并按“去空白后的精确值”去重，保留首次出现的顺序。结果永不为 nil。
func Dedupe(items []string) []string {
	out := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it == "" {
			continue
		}
		if _, ok := seen[it]; ok {
			continue
		}
		seen[it] = struct{}{}
		out = append(out, it)
	}
	return out
}

func contains(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

func describe(c profile.Candidate) string {
	switch {
	case c.Path != "" && c.Key != "":
		return c.Key + "#" + c.Path
	case c.Path != "":
		return c.Path
	case c.Key != "":
		return c.Key
	case len(c.Keys) > 0:
		return strings.Join(c.Keys, "|")
	case len(c.Selectors) > 0:
		return strings.Join(c.Selectors, ", ")
	case c.From != nil:
		return "from " + describe(*c.From)
	default:
		return strconv.Quote(c.Source)
	}
}
