package profile

import (
	"fmt"
	"sort"
	"strings"

	"github.com/John-Robertt/vidmeta/internal/domain"
)

// Registry 是 profile 的只读注册表（按 name 索引，按 host 匹配）。
// profile 数量极小，用 map + 线性扫描保持简单即可。
type Registry struct {
	byName map[string]Profile
}

func NewRegistry(profiles ...Profile) (Registry, error) {
	byName := make(map[string]Profile, len(profiles))
	for _, p := range profiles {
		name := strings.ToLower(strings.TrimSpace(p.Name))
		if name == "" {
			return Registry{}, fmt.Errorf("profile.name 不能为空")
		}
		if _, ok := byName[name]; ok {
			return Registry{}, fmt.Errorf("重复的 profile：%q", name)
		}
		byName[name] = p
	}
	return Registry{byName: byName}, nil
}

func (r Registry) Get(name string) (Profile, bool) {
	if r.byName == nil {
		return Profile{}, false
	}
	name = strings.ToLower(strings.TrimSpace(name))
	p, ok := r.byName[name]
	return p, ok
}

// Names 返回已注册的 profile 名（字典序）。
func (r Registry) Names() []string {
	out := make([]string, 0, len(r.byName))
	for n := range r.byName {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Match 按页面 host 选择 profile：host 等于或以 "."+hosts[i] 结尾即命中，
// 多个命中时取最长（最具体）的 host；都不命中时回退到 generic（若已注册）。
func (r Registry) Match(host string) (Profile, bool) {
	host = strings.ToLower(strings.TrimSuffix(strings.TrimSpace(host), "."))

	var (
		best    Profile
		bestLen = -1
		bestNm  string
	)
	if host != "" {
		for name, p := range r.byName {
			for _, h := range p.Hosts {
				if h == "" || !hostMatches(host, h) {
					continue
				}
				// 同长度时按 name 字典序决胜，保证结果与 map 遍历顺序无关。
				if len(h) > bestLen || (len(h) == bestLen && name < bestNm) {
					best, bestLen, bestNm = p, len(h), name
				}
			}
		}
	}
	if bestLen >= 0 {
		return best, true
	}
	return r.Get(GenericName)
}

// Select 是 CLI 使用的入口：显式指定 name 时按 name 查找，否则按 host 匹配。
func (r Registry) Select(name, host string) (Profile, error) {
	if strings.TrimSpace(name) != "" {
		p, ok := r.Get(name)
		if !ok {
			return Profile{}, &Error{Code: domain.ErrCodeProfileNotFound, Name: name}
		}
		return p, nil
	}
	p, ok := r.Match(host)
	if !ok {
		return Profile{}, &Error{Code: domain.ErrCodeProfileNotFound, Name: host}
	}
	return p, nil
}

func hostMatches(host, pattern string) bool {
	return host == pattern || strings.HasSuffix(host, "."+pattern)
}
