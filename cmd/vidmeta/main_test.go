package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/John-Robertt/vidmeta/internal/config"
	"github.com/John-Robertt/vidmeta/internal/domain"
	"github.com/John-Robertt/vidmeta/internal/resolve"
)

func TestParseExtractArgs(t *testing.T) {
	cli, err := parseExtractArgs([]string{
		"page.html", "--profile", "cnn", "--export", "--nfo=false",
		"--out=dist", "--url", "https://edition.cnn.com/v", "--resources", "r.txt",
		"--browser=true", "--log-level=debug",
	})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	want := config.CLIArgs{
		Target:        "page.html",
		Href:          "https://edition.cnn.com/v",
		ResourcesFile: "r.txt",
		Profile:       "cnn", ProfileSet: true,
		Export: true, ExportSet: true,
		OutDir: "dist", OutDirSet: true,
		NFO: false, NFOSet: true,
		Browser: true, BrowserSet: true,
		LogLevel: "debug", LogLevelSet: true,
	}
	if cli != want {
		t.Fatalf("解析结果不符合预期：\n got=%+v\nwant=%+v", cli, want)
	}

	cli, err = parseExtractArgs([]string{"--profile=", "p.html"})
	if err != nil || !cli.ProfileSet || cli.Profile != "" {
		t.Fatalf("--profile= 应表示显式自动匹配：%+v err=%v", cli, err)
	}
}

func TestParseExtractArgs_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no target", []string{"--export"}},
		{"two targets", []string{"a.html", "b.html"}},
		{"unknown flag", []string{"a.html", "--apply"}},
		{"missing value", []string{"a.html", "--out"}},
		{"bad bool", []string{"a.html", "--export=yes"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseExtractArgs(tt.args); err == nil {
				t.Fatalf("期望错误，实际 nil")
			}
		})
	}
}

func TestRenderSummary(t *testing.T) {
	secs := 95
	rec := domain.VideoMetadata{
		Source:          "www.mako.co.il",
		Title:           domain.Str("כותרת הסרטון"),
		Tags:            []string{"a", "b"},
		Duration:        domain.Str("01:35"),
		DurationSeconds: &secs,
		DurationSource:  domain.DurationFromUI,
		HLSPlaylists:    []string{"https://cdn/x.m3u8"},
	}

	var buf bytes.Buffer
	renderSummary(&buf, rec)
	out := buf.String()

	for _, want := range []string{
		"title           כותרת הסרטון\n",
		"tags            a, b\n",
		"duration        01:35 (95s)\n",
		"durationSource  ui\n",
		"author          -\n",
		"hlsPlaylists    1\n",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("摘要缺少 %q：\n%s", want, out)
		}
	}
}

func TestEmitRecord_NonInteractiveIsPureJSON(t *testing.T) {
	rec := domain.VideoMetadata{Source: "x", Tags: []string{}, HLSPlaylists: []string{}, DurationSource: domain.DurationFromNone}

	var buf bytes.Buffer
	if err := emitRecord(&buf, rec, false); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("非交互模式 stdout 必须是单个 JSON：%v\n%s", err, buf.String())
	}
	if m["title"] != nil || m["source"] != "x" {
		t.Fatalf("JSON 内容不符合预期：%v", m)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"abc", 10, "abc"},
		{"abcdefghij", 6, "abc..."},
		{"中文标题很长", 7, "中文..."},
		{"abcdef", 2, "ab"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.max); got != tt.want {
			t.Fatalf("truncate(%q, %d)=%q，期望 %q", tt.in, tt.max, got, tt.want)
		}
	}
}

func TestConsoleUI_Phases(t *testing.T) {
	var buf bytes.Buffer
	ui := newConsoleUI(&buf)

	ui.OnStart(config.EffectiveConfig{Target: "/tmp/p.html", Export: true, OutDir: "/tmp/out"})
	ui.OnPhaseDone("load", map[string]any{"host": "edition.cnn.com", "resources": 2}, 1500*time.Millisecond)
	ui.OnPhaseDone("profile", map[string]any{"name": "cnn"}, 0)
	ui.OnResolved(domain.VideoMetadata{Provenance: map[string]string{"author": "heuristic", "title": "page-attributes"}},
		[]resolve.Attempt{{Field: "title", Outcome: resolve.OutcomeMalformed}})

	out := buf.String()
	for _, want := range []string{
		"vidmeta extract (static)",
		"profile: auto",
		"加载: host=edition.cnn.com resources=2 (1.5s)",
		"站点: profile=cnn",
		"启发式字段=author",
		"格式错误的候选 1 个",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("输出缺少 %q：\n%s", want, out)
		}
	}
	if ui.tickerStarted {
		t.Fatalf("静态模式不应启动等待提示")
	}
}

func TestConsoleUI_FailedLoadStopsTicker(t *testing.T) {
	var buf bytes.Buffer
	ui := newConsoleUI(&buf)

	ui.OnStart(config.EffectiveConfig{Target: "https://x.test/v", IsURL: true, Browser: config.Browser{Enabled: true, Headless: true}})
	ui.mu.Lock()
	started, stopCh := ui.tickerStarted, ui.stopCh
	ui.mu.Unlock()
	if !started {
		t.Fatalf("浏览器模式应启动等待提示")
	}

	ui.OnFailed("load", errors.New("timeout"))

	ui.mu.Lock()
	defer ui.mu.Unlock()
	if ui.tickerStarted {
		t.Fatalf("加载失败后应停止等待提示")
	}
	select {
	case <-stopCh:
	default:
		t.Fatalf("stopCh 应已关闭（ticker goroutine 会退出）")
	}
	if !strings.Contains(buf.String(), "失败: phase=load") {
		t.Fatalf("输出缺少失败阶段：\n%s", buf.String())
	}
}

func TestCLI_NoTTY_StdoutOnlyRecordJSON(t *testing.T) {
	if testing.Short() {
		t.Skip("需要 go run")
	}
	// stdout 非 TTY 时只能输出一个记录 JSON（阶段信息走 stderr）。
	root := t.TempDir()
	target := filepath.Join(root, "page.html")
	html := `<html><head><title>Clip</title><link rel="canonical" href="https://edition.cnn.com/videos/a"></head>` +
		`<body><div data-component-name="video-player" data-headline="Headline"></div></body></html>`
	if err := os.WriteFile(target, []byte(html), 0o644); err != nil {
		t.Fatalf("写入页面失败：%v", err)
	}

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("读取 cwd 失败：%v", err)
	}
	repoRoot := filepath.Clean(filepath.Join(wd, "..", ".."))

	cmd := exec.Command("go", "run", "./cmd/vidmeta", "extract", target, "--export", "--out", root)
	cmd.Dir = repoRoot

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		t.Fatalf("命令执行失败：%v\nstderr=%s\nstdout=%s", err, stderr.String(), stdout.String())
	}

	var rec domain.VideoMetadata
	if err := json.Unmarshal(stdout.Bytes(), &rec); err != nil {
		t.Fatalf("stdout 不是合法的记录 JSON：%v\nstdout=%q", err, stdout.String())
	}
	if domain.Deref(rec.Title) != "Headline" || rec.Source != "edition.cnn.com" {
		t.Fatalf("记录不符合预期：%+v", rec)
	}
	if _, err := os.Stat(filepath.Join(root, "cnn_video_metadata.json")); err != nil {
		t.Fatalf("应写出导出文件：%v", err)
	}
}
