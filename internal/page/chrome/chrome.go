package chrome

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/John-Robertt/vidmeta/internal/page"
)

// Options 控制无头浏览器的加载行为。
type Options struct {
	Headless     bool
	Timeout      time.Duration
	WaitSelector string        // 非空时等待该元素可见（例如播放器容器）
	WaitDelay    time.Duration // 额外等待，让播放器把清单/媒体元数据拉下来
	UserAgent    string
}

// DefaultOptions 返回内置默认值。
func DefaultOptions() Options {
	return Options{
		Headless:  true,
		Timeout:   45 * time.Second,
		WaitDelay: 3 * time.Second,
	}
}

// stateScript 在页面内采集 HTML 之外的实时状态：
// location.href、每个 <video> 的尺寸/时长（文档顺序）、resource timing 里的 URL。
const stateScript = `(() => ({
  href: location.href,
  media: [...document.querySelectorAll("video")].map((v) => ({
    width: v.videoWidth || 0,
    height: v.videoHeight || 0,
    duration: Number.isFinite(v.duration) ? v.duration : 0
  })),
  resources: performance.getEntriesByType("resource").map((e) => e.name)
}))()`

type liveState struct {
	Href      string       `json:"href"`
	Media     []page.Media `json:"media"`
	Resources []string     `json:"resources"`
}

func (ls liveState) toPageState() page.State {
	res := make([]string, 0, len(ls.Resources))
	for _, r := range ls.Resources {
		if r = strings.TrimSpace(r); r != "" {
			res = append(res, r)
		}
	}
	media := make([]page.Media, 0, len(ls.Media))
	for _, m := range ls.Media {
		if m.Width < 0 {
			m.Width = 0
		}
		if m.Height < 0 {
			m.Height = 0
		}
		if m.Duration < 0 {
			m.Duration = 0
		}
		media = append(media, m)
	}
	return page.State{
		Href:      strings.TrimSpace(ls.Href),
		Media:     media,
		Resources: res,
	}
}

// Load 用 chromedp 打开 url，等待页面就绪后一次性采集 HTML 与实时状态，
// 返回一个与浏览器解耦的只读 Snapshot（之后的解析不再触碰浏览器）。
func Load(ctx context.Context, url string, opts Options) (*page.Snapshot, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, page.LoadError(url, errors.New("url 不能为空"))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocatorOptions(opts)...)
	defer cancelAlloc()

	bctx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		bctx, cancel = context.WithTimeout(bctx, opts.Timeout)
		defer cancel()
	}

	var (
		html string
		ls   liveState
	)
	if err := chromedp.Run(bctx, tasks(url, opts, &html, &ls)...); err != nil {
		return nil, page.LoadError(url, err)
	}

	st := ls.toPageState()
	if st.Href == "" {
		st.Href = url
	}
	snap, err := page.NewSnapshot([]byte(html), st)
	if err != nil {
		return nil, page.LoadError(url, fmt.Errorf("解析页面 HTML 失败：%w", err))
	}
	return snap, nil
}

func allocatorOptions(opts Options) []chromedp.ExecAllocatorOption {
	out := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.DisableGPU,
		chromedp.NoSandbox,
		// 视频站点通常要求自动播放才会请求 HLS 清单。
		chromedp.Flag("autoplay-policy", "no-user-gesture-required"),
		chromedp.Flag("mute-audio", true),
	}
	if opts.Headless {
		out = append(out, chromedp.Headless)
	}
	if ua := strings.TrimSpace(opts.UserAgent); ua != "" {
		out = append(out, chromedp.UserAgent(ua))
	}
	return out
}

func tasks(url string, opts Options, html *string, ls *liveState) []chromedp.Action {
	out := []chromedp.Action{
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
	}
	if sel := strings.TrimSpace(opts.WaitSelector); sel != "" {
		out = append(out, chromedp.WaitVisible(sel))
	}
	if opts.WaitDelay > 0 {
		out = append(out, chromedp.Sleep(opts.WaitDelay))
	}
	return append(out,
		chromedp.OuterHTML("html", html),
		chromedp.Evaluate(stateScript, ls),
	)
}
