package profile

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/John-Robertt/vidmeta/internal/domain"
)

// GenericName 是没有任何 host 匹配时使用的兜底 profile。
const GenericName = "generic"

//go:embed profiles/*.yaml
var builtinFS embed.FS

// Builtin 返回内置 profile（按文件名排序，保证稳定）。
func Builtin() ([]Profile, error) {
	return loadFS(builtinFS, "profiles")
}

// LoadDir 读取目录下所有 *.yaml / *.yml。目录不存在视为“没有额外 profile”。
func LoadDir(dir string) ([]Profile, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, nil
	}
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &Error{Code: domain.ErrCodeProfileInvalid, Name: dir, Err: err}
	}
	return loadFS(os.DirFS(dir), ".")
}

func loadFS(fsys fs.FS, root string) ([]Profile, error) {
	entries, err := fs.ReadDir(fsys, root)
	if err != nil {
		return nil, &Error{Code: domain.ErrCodeProfileInvalid, Name: root, Err: err}
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	out := make([]Profile, 0, len(names))
	for _, name := range names {
		b, err := fs.ReadFile(fsys, path.Join(root, name))
		if err != nil {
			return nil, &Error{Code: domain.ErrCodeProfileInvalid, Name: name, Err: err}
		}
		p, err := Parse(b, name)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Load 返回内置 profile 与 dir 下的自定义 profile；同名时自定义覆盖内置。
func Load(dir string) (Registry, error) {
	builtin, err := Builtin()
	if err != nil {
		return Registry{}, err
	}
	custom, err := LoadDir(dir)
	if err != nil {
		return Registry{}, err
	}

	merged := make([]Profile, 0, len(builtin)+len(custom))
	overridden := make(map[string]bool, len(custom))
	for _, p := range custom {
		overridden[p.Name] = true
	}
	for _, p := range builtin {
		if !overridden[p.Name] {
			merged = append(merged, p)
		}
	}
	merged = append(merged, custom...)

	reg, err := NewRegistry(merged...)
	if err != nil {
		return Registry{}, &Error{Code: domain.ErrCodeProfileInvalid, Name: dir, Err: fmt.Errorf("合并站点配置失败：%w", err)}
	}
	return reg, nil
}
