package extract

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/John-Robertt/vidmeta/internal/config"
	"github.com/John-Robertt/vidmeta/internal/domain"
	"github.com/John-Robertt/vidmeta/internal/export"
	"github.com/John-Robertt/vidmeta/internal/logging"
	"github.com/John-Robertt/vidmeta/internal/page"
	"github.com/John-Robertt/vidmeta/internal/page/chrome"
	"github.com/John-Robertt/vidmeta/internal/profile"
	"github.com/John-Robertt/vidmeta/internal/resolve"
)

// Observer 用于把“阶段/结果”从核心执行流程中解耦出来。
//
// 约束：extract 包只负责发事件，不做任何输出（避免污染 stdout 的 JSON 契约）。
type Observer interface {
	// OnStart 在执行开始时调用。
	OnStart(eff config.EffectiveConfig)
	// OnPhaseDone 在阶段结束时调用（load / profile / resolve / export）。
	OnPhaseDone(name string, fields map[string]any, dur time.Duration)
	// OnResolved 在记录产出后调用（用于表格摘要）。
	OnResolved(rec domain.VideoMetadata, attempts []resolve.Attempt)
	// OnFailed 在某个阶段失败、执行提前结束时调用（之后不会再有事件）。
	OnFailed(phase string, err error)
}

// Loader 负责把 target 变成只读的页面快照。
type Loader interface {
	Load(ctx context.Context, eff config.EffectiveConfig) (page.Inspector, error)
}

// LoaderFunc 让普通函数满足 Loader。
type LoaderFunc func(ctx context.Context, eff config.EffectiveConfig) (page.Inspector, error)

func (f LoaderFunc) Load(ctx context.Context, eff config.EffectiveConfig) (page.Inspector, error) {
	return f(ctx, eff)
}

// DefaultLoader：browser.enabled 时用 chromedp 打开页面，否则把 target 当作本地 HTML 文件解析。
type DefaultLoader struct{}

func (DefaultLoader) Load(ctx context.Context, eff config.EffectiveConfig) (page.Inspector, error) {
	if eff.Browser.Enabled {
		return loadBrowser(ctx, eff)
	}
	return loadStatic(eff)
}

// Result 是一次执行的完整产物。
type Result struct {
	Record   domain.VideoMetadata
	Profile  string
	Attempts []resolve.Attempt
	Export   export.Result
}

// Execute 执行一次完整的提取：加载页面 -> 选择 profile -> 解析 -> （可选）导出。
func Execute(ctx context.Context, eff config.EffectiveConfig, reg profile.Registry) (Result, error) {
	return ExecuteWithObserver(ctx, eff, reg, DefaultLoader{}, nil)
}

// ExecuteWithObserver 与 Execute 相同，但允许替换 Loader 并传入 Observer。
//
// 解析本身不会失败（字段级问题只体现为 null）；返回的 error 只来自页面加载、profile 选择与导出。
func ExecuteWithObserver(ctx context.Context, eff config.EffectiveConfig, reg profile.Registry, loader Loader, obs Observer) (Result, error) {
	log := logging.FromContext(ctx)
	if loader == nil {
		loader = DefaultLoader{}
	}
	if obs != nil {
		obs.OnStart(eff)
	}

	started := time.Now()
	in, err := loader.Load(ctx, eff)
	if err != nil {
		log.Error("加载页面失败", "target", eff.Target, "error_code", page.Code(err), "err", err)
		return Result{}, failed(obs, "load", err)
	}
	if obs != nil {
		obs.OnPhaseDone("load", map[string]any{
			"host":      in.Host(),
			"browser":   eff.Browser.Enabled,
			"resources": len(in.Resources()),
		}, time.Since(started))
	}

	started = time.Now()
	prof, err := reg.Select(eff.Profile, in.Host())
	if err != nil {
		log.Error("选择站点配置失败", "profile", eff.Profile, "host", in.Host(), "error_code", profile.Code(err), "err", err)
		return Result{}, failed(obs, "profile", err)
	}
	if obs != nil {
		obs.OnPhaseDone("profile", map[string]any{"name": prof.Name, "explicit": eff.Profile != ""}, time.Since(started))
	}

	started = time.Now()
	rec, attempts := resolve.ResolveTrace(prof, in)
	logAttempts(log, attempts)
	if obs != nil {
		obs.OnPhaseDone("resolve", map[string]any{
			"fields":   len(rec.Provenance),
			"attempts": len(attempts),
		}, time.Since(started))
		obs.OnResolved(rec, attempts)
	}

	res := Result{Record: rec, Profile: prof.Name, Attempts: attempts}
	if !eff.Export {
		return res, nil
	}

	started = time.Now()
	out, err := export.Write(rec, export.Options{Dir: eff.OutDir, Stem: prof.FileStem(), NFO: eff.NFO})
	if err != nil {
		log.Error("导出失败", "dir", eff.OutDir, "error_code", export.Code(err), "err", err)
		return res, failed(obs, "export", err)
	}
	res.Export = out
	log.Info("已导出", "json", out.JSONPath, "nfo", out.NFOPath)
	if obs != nil {
		obs.OnPhaseDone("export", map[string]any{"json": out.JSONPath, "nfo": out.NFOPath}, time.Since(started))
	}
	return res, nil
}

func failed(obs Observer, phase string, err error) error {
	if obs != nil {
		obs.OnFailed(phase, err)
	}
	return err
}

func logAttempts(log *slog.Logger, attempts []resolve.Attempt) {
	for _, a := range attempts {
		if a.Err != nil {
			log.Debug("候选", "field", a.Field, "source", a.Source, "detail", a.Detail, "outcome", a.Outcome, "err", a.Err)
			continue
		}
		log.Debug("候选", "field", a.Field, "source", a.Source, "detail", a.Detail, "outcome", a.Outcome)
	}
}

func loadStatic(eff config.EffectiveConfig) (page.Inspector, error) {
	b, err := os.ReadFile(eff.Target)
	if err != nil {
		return nil, page.LoadError(eff.Target, err)
	}
	var resources []string
	if eff.ResourcesFile != "" {
		resources, err = readResources(eff.ResourcesFile)
		if err != nil {
			return nil, page.LoadError(eff.ResourcesFile, err)
		}
	}
	snap, err := page.NewSnapshot(b, page.State{Href: eff.Href, Resources: resources})
	if err != nil {
		return nil, page.LoadError(eff.Target, err)
	}
	return snap, nil
}

func loadBrowser(ctx context.Context, eff config.EffectiveConfig) (page.Inspector, error) {
	target := eff.Target
	if !eff.IsURL {
		target = (&url.URL{Scheme: "file", Path: eff.Target}).String()
	}
	return chrome.Load(ctx, target, chrome.Options{
		Headless:     eff.Browser.Headless,
		Timeout:      eff.Browser.Timeout,
		WaitSelector: eff.Browser.WaitSelector,
		WaitDelay:    eff.Browser.Wait,
		UserAgent:    eff.Browser.UserAgent,
	})
}

// readResources 读取“每行一个 URL”的资源列表；空行与 # 开头的行被忽略。
func readResources(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var out []string
	sc := bufio.NewScanner(bytes.NewReader(b))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("读取资源列表失败：%w", err)
	}
	return out, nil
}
