package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rivo/uniseg"

	"github.com/John-Robertt/vidmeta/internal/app/extract"
	"github.com/John-Robertt/vidmeta/internal/config"
	"github.com/John-Robertt/vidmeta/internal/domain"
	"github.com/John-Robertt/vidmeta/internal/resolve"
)

var _ extract.Observer = (*consoleUI)(nil)

// consoleUI 把提取过程的阶段信息写到交互终端（stderr），不碰 stdout 的 JSON。
//
// 浏览器加载可能持续数十秒：加载期间超过阈值没有输出时，定期打印一行等待提示。
type consoleUI struct {
	w io.Writer

	mu          sync.Mutex
	startedAt   time.Time
	lastPrinted time.Time

	keepaliveThreshold time.Duration
	tickerInterval     time.Duration

	stopCh        chan struct{}
	tickerStarted bool
}

func newConsoleUI(w io.Writer) *consoleUI {
	return &consoleUI{
		w:                  w,
		keepaliveThreshold: 5 * time.Second,
		tickerInterval:     time.Second,
	}
}

func (c *consoleUI) OnStart(eff config.EffectiveConfig) {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.startedAt = now

	mode := "static"
	if eff.Browser.Enabled {
		mode = "browser"
	}
	profile := eff.Profile
	if profile == "" {
		profile = "auto (按 host 匹配)"
	}

	fmt.Fprintf(c.w, "[%s] vidmeta extract (%s)\n", now.Format("15:04:05"), mode)
	fmt.Fprintln(c.w, "配置（生效）:")
	fmt.Fprintf(c.w, "  target: %s\n", truncate(eff.Target, 120))
	if eff.Href != "" {
		fmt.Fprintf(c.w, "  url: %s\n", truncate(eff.Href, 120))
	}
	fmt.Fprintf(c.w, "  profile: %s\n", profile)
	if eff.Browser.Enabled {
		fmt.Fprintf(c.w, "  browser: headless=%s timeout=%s wait=%s\n",
			onOff(eff.Browser.Headless), eff.Browser.Timeout, eff.Browser.Wait,
		)
	}
	fmt.Fprintf(c.w, "  export: %s nfo: %s\n", onOff(eff.Export), onOff(eff.NFO))
	if eff.Export {
		fmt.Fprintf(c.w, "  out: %s\n", eff.OutDir)
	}
	fmt.Fprintln(c.w)

	c.lastPrinted = time.Now()
	if eff.Browser.Enabled && !c.tickerStarted {
		c.startTickerLocked()
	}
}

func (c *consoleUI) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch name {
	case "load":
		c.stopTickerLocked()
		fmt.Fprintf(c.w, "加载: host=%s resources=%d (%s)\n",
			stringField(fields, "host"), intField(fields, "resources"), formatShortDuration(dur),
		)
	case "profile":
		fmt.Fprintf(c.w, "站点: profile=%s\n", stringField(fields, "name"))
	case "resolve":
		fmt.Fprintf(c.w, "解析: fields=%d attempts=%d (%s)\n",
			intField(fields, "fields"), intField(fields, "attempts"), formatShortDuration(dur),
		)
	case "export":
		fmt.Fprintf(c.w, "导出: %s (%s)\n", stringField(fields, "json"), formatShortDuration(dur))
		if nfo := stringField(fields, "nfo"); nfo != "" {
			fmt.Fprintf(c.w, "      %s\n", nfo)
		}
	default:
		fmt.Fprintf(c.w, "%s (%s)\n", name, formatShortDuration(dur))
	}

	c.lastPrinted = time.Now()
}

func (c *consoleUI) OnResolved(rec domain.VideoMetadata, attempts []resolve.Attempt) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// 只提示需要人工留意的情况：启发式来源（可信度低）与格式错误的候选。
	var heuristic []string
	for field, src := range rec.Provenance {
		if src == "heuristic" {
			heuristic = append(heuristic, field)
		}
	}
	sort.Strings(heuristic)
	if len(heuristic) > 0 {
		fmt.Fprintf(c.w, "注意: 启发式字段=%s\n", strings.Join(heuristic, ","))
	}

	malformed := 0
	for _, a := range attempts {
		if a.Outcome == resolve.OutcomeMalformed {
			malformed++
		}
	}
	if malformed > 0 {
		fmt.Fprintf(c.w, "注意: 跳过格式错误的候选 %d 个（--log-level=debug 查看）\n", malformed)
	}

	fmt.Fprintf(c.w, "完成 (%s)\n\n", formatShortDuration(time.Since(c.startedAt)))
	c.lastPrinted = time.Now()
}

func (c *consoleUI) OnFailed(phase string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopTickerLocked()
	fmt.Fprintf(c.w, "失败: phase=%s (%s)\n", phase, formatShortDuration(time.Since(c.startedAt)))
	c.lastPrinted = time.Now()
}

func (c *consoleUI) startTickerLocked() {
	c.stopCh = make(chan struct{})
	c.tickerStarted = true
	stop := c.stopCh

	interval := c.tickerInterval
	if interval <= 0 {
		interval = time.Second
	}
	threshold := c.keepaliveThreshold
	if threshold <= 0 {
		threshold = 5 * time.Second
	}

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-t.C:
				c.mu.Lock()
				if time.Since(c.lastPrinted) > threshold {
					fmt.Fprintf(c.w, "加载中... elapsed=%s\n", formatElapsed(time.Since(c.startedAt)))
					c.lastPrinted = time.Now()
				}
				c.mu.Unlock()
			case <-stop:
				return
			}
		}
	}()
}

func (c *consoleUI) stopTickerLocked() {
	if !c.tickerStarted {
		return
	}
	close(c.stopCh)
	c.tickerStarted = false
}

// renderSummary 输出记录的对齐摘要（标签按显示宽度对齐，兼容中日韩/希伯来文标题）。
func renderSummary(w io.Writer, rec domain.VideoMetadata) {
	dur := domain.Deref(rec.Duration)
	if rec.DurationSeconds != nil {
		dur += " (" + strconv.Itoa(*rec.DurationSeconds) + "s)"
	}
	rows := [][2]string{
		{"source", rec.Source},
		{"title", domain.Deref(rec.Title)},
		{"author", domain.Deref(rec.Author)},
		{"published", domain.Deref(rec.PublicationDateUTC)},
		{"section", domain.Deref(rec.Section)},
		{"tags", strings.Join(rec.Tags, ", ")},
		{"duration", strings.TrimSpace(dur)},
		{"durationSource", string(rec.DurationSource)},
		{"resolution", domain.Deref(rec.Resolution)},
		{"videoId", domain.Deref(rec.VideoID)},
		{"canonicalUrl", domain.Deref(rec.CanonicalURL)},
		{"hlsPlaylists", strconv.Itoa(len(rec.HLSPlaylists))},
	}

	width := 0
	for _, r := range rows {
		if n := uniseg.StringWidth(r[0]); n > width {
			width = n
		}
	}
	for _, r := range rows {
		v := r[1]
		if v == "" {
			v = "-"
		}
		fmt.Fprintf(w, "%s%s  %s\n", r[0], strings.Repeat(" ", width-uniseg.StringWidth(r[0])), truncate(v, 100))
	}
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

// truncate 按显示宽度截断（不会切开多字节字符或组合字符）。
func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 || uniseg.StringWidth(s) <= max {
		return s
	}
	if max <= 3 {
		return takeWidth(s, max)
	}
	return takeWidth(s, max-3) + "..."
}

func takeWidth(s string, max int) string {
	var b strings.Builder
	used := 0
	g := uniseg.NewGraphemes(s)
	for g.Next() {
		if used+g.Width() > max {
			break
		}
		used += g.Width()
		b.WriteString(g.Str())
	}
	return b.String()
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int(d.Seconds())
	return fmt.Sprintf("%02d:%02d", sec/60, sec%60)
}

func intField(fields map[string]any, key string) int {
	if v, ok := fields[key].(int); ok {
		return v
	}
	return 0
}

func stringField(fields map[string]any, key string) string {
	if v, ok := fields[key].(string); ok {
		return v
	}
	return ""
}
