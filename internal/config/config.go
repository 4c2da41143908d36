package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/John-Robertt/vidmeta/internal/domain"
	"github.com/John-Robertt/vidmeta/internal/logging"
)

const (
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = domain.ErrCodeConfigInvalid
	// ErrCodeMissingTarget 表示没有给出要解析的页面（文件或 URL）。
	ErrCodeMissingTarget = "config_missing_target"
)

// FileName 是工作目录下的可选配置文件名。
const FileName = "vidmeta.json"

const (
	// DefaultTimeout 是浏览器加载页面的默认超时。
	DefaultTimeout = 45 * time.Second
	// DefaultWait 是页面就绪后的默认额外等待（让播放器拉取清单与媒体元数据）。
	DefaultWait = 3 * time.Second
)

// CLIArgs 是 CLI 暴露的入口参数，并保留“是否显式指定”的信息。
// 这能保证覆盖优先级可实现：例如 --export=false 必须能覆盖 config.export=true。
type CLIArgs struct {
	Target string // 本地 HTML 文件或 http(s) URL

	// Href 覆盖静态文件的页面地址（静态 HTML 没有 location.href）。
	Href string
	// ResourcesFile 是一个按行列出“已请求资源 URL”的文件（静态模式下代替 resource timing）。
	ResourcesFile string

	Profile    string
	ProfileSet bool

	Export    bool
	ExportSet bool

	OutDir    string
	OutDirSet bool

	NFO    bool
	NFOSet bool

	Browser    bool
	BrowserSet bool

	LogLevel    string
	LogLevelSet bool
}

// FileConfig 对应 vidmeta.json 的解析结构。
type FileConfig struct {
	Profile     string         `json:"profile"`
	Export      *bool          `json:"export"`
	OutDir      string         `json:"out_dir"`
	ProfilesDir string         `json:"profiles_dir"`
	NFO         *bool          `json:"nfo"`
	LogLevel    string         `json:"log_level"`
	Browser     *BrowserConfig `json:"browser"`
}

type BrowserConfig struct {
	Enabled      *bool  `json:"enabled"`
	Headless     *bool  `json:"headless"`
	TimeoutSec   int    `json:"timeout_sec"`
	WaitSelector string `json:"wait_selector"`
	WaitMS       *int   `json:"wait_ms"`
	UserAgent    string `json:"user_agent"`
}

// EffectiveConfig 是合并并做最小规范化后的最终配置（实现层直接消费，不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	// Target 对文件是 clean + absolute 路径；对 URL 保持原样。
	Target string
	IsURL  bool

	Href          string
	ResourcesFile string

	// Profile 为空表示按页面 host 自动匹配。
	Profile     string
	ProfilesDir string

	Export bool
	OutDir string
	NFO    bool

	LogLevel string

	Browser Browser
}

// Browser 是浏览器加载模式的最终参数。
type Browser struct {
	Enabled      bool
	Headless     bool
	Timeout      time.Duration
	WaitSelector string
	Wait         time.Duration
	UserAgent    string
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeMissingTarget:
		return fmt.Sprintf("%s：缺少要解析的页面（文件路径或 URL）", e.Code)
	case ErrCodeInvalid:
		if e.Err != nil {
			return fmt.Sprintf("%s：配置文件 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置文件 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
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

// LoadEffective 读取 <cwd>/vidmeta.json（可选），然后与 CLI 参数合并为最终配置。
//
// 覆盖优先级（固定）：
// - profile / export / out_dir / nfo / browser.enabled / log_level：CLI > config > 默认
// - 其他字段：仅由 config 控制（CLI 不暴露）
// - target 是 http(s) URL 时强制使用浏览器加载
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}
	if strings.TrimSpace(cli.Target) == "" {
		return EffectiveConfig{}, &Error{Code: ErrCodeMissingTarget}
	}

	cfgPath := filepath.Join(cwdAbs, FileName)
	fc, _, err := readFileConfig(cfgPath)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	return merge(cwdAbs, cli, fc, cfgPath)
}

func merge(cwdAbs string, cli CLIArgs, fc FileConfig, cfgPath string) (EffectiveConfig, error) {
	invalid := func(format string, args ...any) (EffectiveConfig, error) {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf(format, args...)}
	}

	eff := EffectiveConfig{}

	target := strings.TrimSpace(cli.Target)
	if isHTTPURL(target) {
		eff.Target, eff.IsURL = target, true
	} else {
		eff.Target = absCleanFrom(cwdAbs, target)
	}

	eff.Href = strings.TrimSpace(cli.Href)
	if eff.Href != "" && !isHTTPURL(eff.Href) {
		return invalid("--url 必须是 http/https URL：%q", eff.Href)
	}
	if strings.TrimSpace(cli.ResourcesFile) != "" {
		eff.ResourcesFile = absCleanFrom(cwdAbs, cli.ResourcesFile)
	}

	// profile：CLI > config > 自动匹配
	if cli.ProfileSet {
		eff.Profile = cli.Profile
	} else {
		eff.Profile = fc.Profile
	}
	eff.Profile = strings.ToLower(strings.TrimSpace(eff.Profile))

	if d := strings.TrimSpace(fc.ProfilesDir); d != "" {
		eff.ProfilesDir = absCleanFrom(cwdAbs, d)
	}

	// export / nfo：CLI > config > 默认 false
	eff.Export = pickBool(cli.ExportSet, cli.Export, fc.Export, false)
	eff.NFO = pickBool(cli.NFOSet, cli.NFO, fc.NFO, false)

	// out_dir：CLI > config > cwd
	outDir := fc.OutDir
	if cli.OutDirSet {
		outDir = cli.OutDir
	}
	eff.OutDir = cwdAbs
	if strings.TrimSpace(outDir) != "" {
		eff.OutDir = absCleanFrom(cwdAbs, outDir)
	}

	eff.LogLevel = fc.LogLevel
	if cli.LogLevelSet {
		eff.LogLevel = cli.LogLevel
	}
	eff.LogLevel = strings.ToLower(strings.TrimSpace(eff.LogLevel))
	if _, err := logging.ParseLevel(eff.LogLevel); err != nil {
		return invalid("%v", err)
	}
	if eff.LogLevel == "" {
		eff.LogLevel = "info"
	}

	b := fc.Browser
	if b == nil {
		b = &BrowserConfig{}
	}
	eff.Browser = Browser{
		Enabled:      pickBool(cli.BrowserSet, cli.Browser, b.Enabled, false) || eff.IsURL,
		Headless:     pickBool(false, false, b.Headless, true),
		Timeout:      DefaultTimeout,
		WaitSelector: strings.TrimSpace(b.WaitSelector),
		Wait:         DefaultWait,
		UserAgent:    strings.TrimSpace(b.UserAgent),
	}
	// 文档约定：timeout_sec 范围 [1, 300]，wait_ms 范围 [0, 60000]；超出截断。
	if b.TimeoutSec != 0 {
		eff.Browser.Timeout = time.Duration(clamp(b.TimeoutSec, 1, 300)) * time.Second
	}
	if b.WaitMS != nil {
		eff.Browser.Wait = time.Duration(clamp(*b.WaitMS, 0, 60000)) * time.Millisecond
	}

	return eff, nil
}

func pickBool(cliSet, cliVal bool, fileVal *bool, def bool) bool {
	if cliSet {
		return cliVal
	}
	if fileVal != nil {
		return *fileVal
	}
	return def
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func isHTTPURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
// - p 若已是绝对路径：直接 Clean
// - p 若是相对路径：Join(base, p) 后 Clean
func absCleanFrom(base, p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	p = filepath.Clean(p)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// readFileConfig 读取并解析 JSON 配置文件。
// 返回值 exists 表示该文件是否存在（不存在不算错误）。
func readFileConfig(path string) (fc FileConfig, exists bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, false, nil
		}
		return FileConfig{}, false, err
	}
	if err := json.Unmarshal(b, &fc); err != nil {
		return FileConfig{}, true, err
	}
	return fc, true, nil
}
