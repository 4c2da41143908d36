package extract

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/John-Robertt/vidmeta/internal/config"
	"github.com/John-Robertt/vidmeta/internal/domain"
	"github.com/John-Robertt/vidmeta/internal/logging"
	"github.com/John-Robertt/vidmeta/internal/page"
	"github.com/John-Robertt/vidmeta/internal/profile"
	"github.com/John-Robertt/vidmeta/internal/resolve"
)

type recordObserver struct {
	mu sync.Mutex

	startCalls int
	phases     []string
	resolved   []domain.VideoMetadata
	failed     []string
}

func (o *recordObserver) OnStart(eff config.EffectiveConfig) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.startCalls++
}

func (o *recordObserver) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.phases = append(o.phases, name)
}

func (o *recordObserver) OnResolved(rec domain.VideoMetadata, attempts []resolve.Attempt) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.resolved = append(o.resolved, rec)
}

func (o *recordObserver) OnFailed(phase string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failed = append(o.failed, phase)
}

const cnnHTML = `<html><head>
<title>Doc | CNN</title>
<link rel="canonical" href="https://edition.cnn.com/videos/world/x">
<script type="application/ld+json">{"@type":"VideoObject","name":"Alt","duration":"PT2M"}</script>
</head><body>
<div data-component-name="video-player" data-headline="Breaking News" data-video-tags="a,b"></div>
</body></html>`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("写入文件失败 %q：%v", path, err)
	}
}

func loadRegistry(t *testing.T) profile.Registry {
	t.Helper()
	reg, err := profile.Load("")
	if err != nil {
		t.Fatalf("加载 profile 失败：%v", err)
	}
	return reg
}

func TestExecute_StaticFileWithExport(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "page.html")
	writeFile(t, target, cnnHTML)
	resFile := filepath.Join(dir, "resources.txt")
	writeFile(t, resFile, "# captured\nhttps://cdn/a.m3u8?x=1\n\nhttps://cdn/seg.ts\nhttps://cdn/a.m3u8?x=1\n")

	eff := config.EffectiveConfig{
		Target:        target,
		ResourcesFile: resFile,
		Export:        true,
		NFO:           true,
		OutDir:        filepath.Join(dir, "out"),
	}

	var logBuf bytes.Buffer
	ctx := logging.WithLogger(context.Background(), logging.New(slog.LevelDebug, &logBuf))
	obs := &recordObserver{}

	res, err := ExecuteWithObserver(ctx, eff, loadRegistry(t), DefaultLoader{}, obs)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	if res.Profile != "cnn" {
		t.Fatalf("应按 host 匹配到 cnn，实际=%q", res.Profile)
	}
	rec := res.Record
	if domain.Deref(rec.Title) != "Breaking News" || rec.Source != "edition.cnn.com" {
		t.Fatalf("记录不符合预期：%+v", rec)
	}
	if len(rec.HLSPlaylists) != 1 || rec.HLSPlaylists[0] != "https://cdn/a.m3u8?x=1" {
		t.Fatalf("hlsPlaylists=%q", rec.HLSPlaylists)
	}
	if rec.DurationSource != domain.DurationFromStructuredData || rec.DurationSeconds == nil || *rec.DurationSeconds != 120 {
		t.Fatalf("duration 不符合预期：%q %v", rec.DurationSource, rec.DurationSeconds)
	}

	if res.Export.JSONPath != filepath.Join(dir, "out", "cnn_video_metadata.json") {
		t.Fatalf("导出路径不符合预期：%q", res.Export.JSONPath)
	}
	for _, p := range []string{res.Export.JSONPath, res.Export.NFOPath} {
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("导出文件不存在 %q：%v", p, err)
		}
	}

	if obs.startCalls != 1 || strings.Join(obs.phases, ",") != "load,profile,resolve,export" || len(obs.resolved) != 1 {
		t.Fatalf("observer 事件不符合预期：start=%d phases=%v resolved=%d", obs.startCalls, obs.phases, len(obs.resolved))
	}
	if !strings.Contains(logBuf.String(), "field=title") {
		t.Fatalf("debug 日志应包含候选轨迹：%s", logBuf.String())
	}
}

func TestExecute_NoExportByDefault(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "page.html")
	writeFile(t, target, cnnHTML)

	res, err := Execute(context.Background(), config.EffectiveConfig{Target: target, OutDir: dir}, loadRegistry(t))
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if res.Export.JSONPath != "" {
		t.Fatalf("未请求导出时不应写文件")
	}
	if _, err := os.Stat(filepath.Join(dir, "cnn_video_metadata.json")); !os.IsNotExist(err) {
		t.Fatalf("不应存在导出文件：err=%v", err)
	}
}

func TestExecute_HrefOverridePicksProfile(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "page.html")
	writeFile(t, target, `<html><head><meta property="og:title" content="T"></head><body><div id="player_x1_video"></div></body></html>`)

	res, err := Execute(context.Background(), config.EffectiveConfig{Target: target, Href: "https://www.mako.co.il/news/1"}, loadRegistry(t))
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if res.Profile != "mako" || domain.Deref(res.Record.VideoID) != "x1" {
		t.Fatalf("profile=%q videoId=%q", res.Profile, domain.Deref(res.Record.VideoID))
	}
}

func TestExecute_Errors(t *testing.T) {
	dir := t.TempDir()
	reg := loadRegistry(t)

	_, err := Execute(context.Background(), config.EffectiveConfig{Target: filepath.Join(dir, "missing.html")}, reg)
	if page.Code(err) != domain.ErrCodePageLoadFailed {
		t.Fatalf("期望 %q，实际 err=%v", domain.ErrCodePageLoadFailed, err)
	}

	empty := filepath.Join(dir, "empty.html")
	writeFile(t, empty, "  ")
	_, err = Execute(context.Background(), config.EffectiveConfig{Target: empty}, reg)
	if page.Code(err) != domain.ErrCodePageLoadFailed {
		t.Fatalf("空 HTML 期望 %q，实际 err=%v", domain.ErrCodePageLoadFailed, err)
	}

	ok := filepath.Join(dir, "ok.html")
	writeFile(t, ok, cnnHTML)
	_, err = Execute(context.Background(), config.EffectiveConfig{Target: ok, Profile: "nope"}, reg)
	if profile.Code(err) != domain.ErrCodeProfileNotFound {
		t.Fatalf("期望 %q，实际 err=%v", domain.ErrCodeProfileNotFound, err)
	}
}

func TestExecute_CustomLoader(t *testing.T) {
	want := errors.New("boom")
	loader := LoaderFunc(func(ctx context.Context, eff config.EffectiveConfig) (page.Inspector, error) {
		return nil, page.LoadError(eff.Target, want)
	})
	obs := &recordObserver{}
	_, err := ExecuteWithObserver(context.Background(), config.EffectiveConfig{Target: "https://x.test/v"}, loadRegistry(t), loader, obs)
	if !errors.Is(err, want) {
		t.Fatalf("应保留原始错误链：%v", err)
	}
	if strings.Join(obs.failed, ",") != "load" || len(obs.phases) != 0 {
		t.Fatalf("加载失败时应只收到 OnFailed(load)：failed=%v phases=%v", obs.failed, obs.phases)
	}

	snap, perr := page.NewSnapshot([]byte(`<html><head><title>Generic Page</title></head></html>`), page.State{Href: "https://unknown.example/v"})
	if perr != nil {
		t.Fatalf("构造 Snapshot 失败：%v", perr)
	}
	loader = LoaderFunc(func(context.Context, config.EffectiveConfig) (page.Inspector, error) { return snap, nil })
	res, err := ExecuteWithObserver(context.Background(), config.EffectiveConfig{}, loadRegistry(t), loader, nil)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if res.Profile != profile.GenericName || domain.Deref(res.Record.Title) != "Generic Page" {
		t.Fatalf("未知 host 应回退到 generic：%q %+v", res.Profile, res.Record)
	}
}

func TestReadResources(t *testing.T) {
	path := filepath.Join(t.TempDir(), "r.txt")
	writeFile(t, path, "  a.m3u8 \n#x\n\nb.mp4")
	got, err := readResources(path)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if strings.Join(got, "|") != "a.m3u8|b.mp4" {
		t.Fatalf("readResources=%q", got)
	}
}
