package nfo

import (
	"encoding/xml"
	"strconv"
	"strings"

	"github.com/John-Robertt/vidmeta/internal/domain"
)

type movie struct {
	XMLName xml.Name `xml:"movie"`

	Title string `xml:"title"`
	Plot  string `xml:"plot,omitempty"`

	Premiered string `xml:"premiered,omitempty"`
	Year      int    `xml:"year,omitempty"`
	Runtime   int    `xml:"runtime,omitempty"`

	Studio  string   `xml:"studio,omitempty"`
	Credits string   `xml:"credits,omitempty"`
	Genres  []string `xml:"genre,omitempty"`
	Tags    []string `xml:"tag,omitempty"`

	Thumb    string    `xml:"thumb,omitempty"`
	UniqueID *uniqueID `xml:"uniqueid,omitempty"`
	Website  string    `xml:"website,omitempty"`
}

type uniqueID struct {
	Type    string `xml:"type,attr"`
	Default bool   `xml:"default,attr"`
	Value   string `xml:",chardata"`
}

// Encode 把 VideoMetadata 转成 Kodi/Jellyfin/Emby 可读取的 NFO（XML）。
//
// 规则：
// - 未解析的字段直接省略；title 缺失时回退到 videoId，再回退到 source
// - runtime 以分钟为单位，向上取整（不足 1 分钟的视频记为 1）
// - premiered 取 publicationDateUTC 的日期部分（YYYY-MM-DD）
func Encode(rec domain.VideoMetadata) ([]byte, error) {
	title := strings.TrimSpace(domain.Deref(rec.Title))
	if title == "" {
		title = strings.TrimSpace(domain.Deref(rec.VideoID))
	}
	if title == "" {
		title = rec.Source
	}

	m := movie{
		Title:   title,
		Plot:    strings.TrimSpace(domain.Deref(rec.Description)),
		Studio:  rec.Source,
		Credits: strings.TrimSpace(domain.Deref(rec.Author)),
		Genres:  normList([]string{domain.Deref(rec.Section)}),
		Tags:    normList(rec.Tags),
		Thumb:   strings.TrimSpace(domain.Deref(rec.PosterImage)),
		Website: strings.TrimSpace(domain.Deref(rec.CanonicalURL)),
	}

	if rec.DurationSeconds != nil && *rec.DurationSeconds > 0 {
		m.Runtime = (*rec.DurationSeconds + 59) / 60
	}
	if d, y, ok := datePart(domain.Deref(rec.PublicationDateUTC)); ok {
		m.Premiered, m.Year = d, y
	}
	if id := strings.TrimSpace(domain.Deref(rec.VideoID)); id != "" {
		typ := rec.Source
		if typ == "" {
			typ = "site"
		}
		m.UniqueID = &uniqueID{Type: typ, Default: true, Value: id}
	}

	b, err := xml.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, err
	}
	// 约定：输出带 standalone="yes" 的 XML 头，便于与常见刮削器产物兼容。
	const header = `<?xml version="1.0" encoding="UTF-8" standalone="yes" ?>` + "\n"
	return append([]byte(header), b...), nil
}

// datePart 从 "2024-05-01T10:00:00Z" 之类的时间戳取出日期与年份；格式不符返回 false。
func datePart(s string) (string, int, bool) {
	s = strings.TrimSpace(s)
	if len(s) < 10 || s[4] != '-' || s[7] != '-' {
		return "", 0, false
	}
	y, err := strconv.Atoi(s[:4])
	if err != nil {
		return "", 0, false
	}
	if _, err := strconv.Atoi(s[5:7]); err != nil {
		return "", 0, false
	}
	if _, err := strconv.Atoi(s[8:10]); err != nil {
		return "", 0, false
	}
	return s[:10], y, true
}

func normList(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	m := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := m[s]; ok {
			continue
		}
		m[s] = struct{}{}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
