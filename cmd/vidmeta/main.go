package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/mattn/go-isatty"

	"github.com/John-Robertt/vidmeta/internal/app/extract"
	"github.com/John-Robertt/vidmeta/internal/config"
	"github.com/John-Robertt/vidmeta/internal/domain"
	"github.com/John-Robertt/vidmeta/internal/export"
	"github.com/John-Robertt/vidmeta/internal/logging"
	"github.com/John-Robertt/vidmeta/internal/page"
	"github.com/John-Robertt/vidmeta/internal/profile"
)

func main() {
	args := os.Args[1:]
	if len(args) == 0 || isHelp(args[0]) {
		printUsage()
		return
	}

	switch args[0] {
	case "extract":
		if code := extractCmd(args[1:]); code != 0 {
			os.Exit(code)
		}
	case "profiles":
		if code := profilesCmd(args[1:]); code != 0 {
			os.Exit(code)
		}
	default:
		fmt.Fprintf(os.Stderr, "未知命令：%q\n\n", args[0])
		printUsage()
		os.Exit(2)
	}
}

func extractCmd(args []string) int {
	for _, a := range args {
		if isHelp(a) {
			printExtractUsage()
			return 0
		}
	}

	cli, err := parseExtractArgs(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "参数错误：%v\n\n", err)
		printExtractUsage()
		return 2
	}

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "读取当前目录失败：%v\n", err)
		return 1
	}

	eff, err := config.LoadEffective(cwd, cli)
	if err != nil {
		emitError(err)
		return 1
	}

	level, _ := logging.ParseLevel(eff.LogLevel)
	logger := logging.New(level, os.Stderr)

	reg, err := profile.Load(eff.ProfilesDir)
	if err != nil {
		emitError(err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logging.WithLogger(ctx, logger)

	// 交互终端才输出阶段信息；stdout 被重定向时 stdout 只留给记录 JSON。
	interactive := isTTY(os.Stdout)
	var obs extract.Observer
	if isTTY(os.Stderr) {
		obs = newConsoleUI(os.Stderr)
	}

	res, err := extract.ExecuteWithObserver(ctx, eff, reg, extract.DefaultLoader{}, obs)
	if err != nil {
		emitError(err)
		return 1
	}

	if err := emitRecord(os.Stdout, res.Record, interactive); err != nil {
		fmt.Fprintf(os.Stderr, "输出记录失败：%v\n", err)
		return 1
	}
	if interactive && res.Export.JSONPath != "" {
		fmt.Fprintf(os.Stdout, "exported: %s\n", res.Export.JSONPath)
		if res.Export.NFOPath != "" {
			fmt.Fprintf(os.Stdout, "nfo: %s\n", res.Export.NFOPath)
		}
	}
	return 0
}

func profilesCmd(args []string) int {
	dir := ""
	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case isHelp(a):
			fmt.Fprint(os.Stdout, "用法：\n  vidmeta profiles [--dir profiles_dir]\n")
			return 0
		case a == "--dir":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "参数错误：--dir 需要一个值")
				return 2
			}
			i++
			dir = args[i]
		case strings.HasPrefix(a, "--dir="):
			dir = strings.TrimPrefix(a, "--dir=")
		default:
			fmt.Fprintf(os.Stderr, "参数错误：未知参数 %q\n", a)
			return 2
		}
	}

	reg, err := profile.Load(dir)
	if err != nil {
		emitError(err)
		return 1
	}
	for _, name := range reg.Names() {
		p, _ := reg.Get(name)
		hosts := strings.Join(p.Hosts, ",")
		if hosts == "" {
			hosts = "-"
		}
		fmt.Fprintf(os.Stdout, "%s\t%s\t%s\n", name, hosts, export.FileName(p.FileStem()))
	}
	return 0
}

// parseExtractArgs 解析 extract 子命令参数，并保留“是否显式指定”的信息（交给 config 合并）。
func parseExtractArgs(args []string) (config.CLIArgs, error) {
	cli := config.CLIArgs{}

	// value 读取 "--x v" 或 "--x=v" 形式的值。
	value := func(i *int, a, name string) (string, bool, error) {
		if a == name {
			if *i+1 >= len(args) {
				return "", true, fmt.Errorf("%s 需要一个值", name)
			}
			*i++
			return args[*i], true, nil
		}
		if strings.HasPrefix(a, name+"=") {
			return strings.TrimPrefix(a, name+"="), true, nil
		}
		return "", false, nil
	}
	// flag 读取 "--x" 或 "--x=true|false" 形式的布尔开关。
	flag := func(a, name string) (bool, bool, error) {
		if a == name {
			return true, true, nil
		}
		if !strings.HasPrefix(a, name+"=") {
			return false, false, nil
		}
		switch v := strings.TrimPrefix(a, name+"="); v {
		case "true":
			return true, true, nil
		case "false":
			return false, true, nil
		default:
			return false, true, fmt.Errorf("%s 只能是 true 或 false，实际是 %q", name, v)
		}
	}

	for i := 0; i < len(args); i++ {
		a := args[i]

		if v, ok, err := value(&i, a, "--profile"); ok {
			if err != nil {
				return config.CLIArgs{}, err
			}
			// --profile= 显式置空：忽略配置文件中的 profile，按 host 自动匹配。
			cli.Profile, cli.ProfileSet = v, true
			continue
		}
		if v, ok, err := value(&i, a, "--out"); ok {
			if err != nil {
				return config.CLIArgs{}, err
			}
			cli.OutDir, cli.OutDirSet = v, true
			continue
		}
		if v, ok, err := value(&i, a, "--url"); ok {
			if err != nil {
				return config.CLIArgs{}, err
			}
			cli.Href = v
			continue
		}
		if v, ok, err := value(&i, a, "--resources"); ok {
			if err != nil {
				return config.CLIArgs{}, err
			}
			cli.ResourcesFile = v
			continue
		}
		if v, ok, err := value(&i, a, "--log-level"); ok {
			if err != nil {
				return config.CLIArgs{}, err
			}
			cli.LogLevel, cli.LogLevelSet = v, true
			continue
		}
		if v, ok, err := flag(a, "--export"); ok {
			if err != nil {
				return config.CLIArgs{}, err
			}
			cli.Export, cli.ExportSet = v, true
			continue
		}
		if v, ok, err := flag(a, "--nfo"); ok {
			if err != nil {
				return config.CLIArgs{}, err
			}
			cli.NFO, cli.NFOSet = v, true
			continue
		}
		if v, ok, err := flag(a, "--browser"); ok {
			if err != nil {
				return config.CLIArgs{}, err
			}
			cli.Browser, cli.BrowserSet = v, true
			continue
		}

		if strings.HasPrefix(a, "-") {
			return config.CLIArgs{}, fmt.Errorf("未知参数 %q", a)
		}
		if cli.Target != "" {
			return config.CLIArgs{}, fmt.Errorf("重复的 target：%q 与 %q", cli.Target, a)
		}
		cli.Target = a
	}

	if cli.Target == "" {
		return config.CLIArgs{}, fmt.Errorf("缺少 target（HTML 文件路径或 URL）")
	}
	return cli, nil
}

func isHelp(s string) bool {
	return s == "-h" || s == "--help" || s == "help"
}

func printUsage() {
	fmt.Fprint(os.Stdout, `用法：
  vidmeta extract <file|url> [--profile name] [--export[=true|false]] [--browser[=true|false]]
  vidmeta profiles [--dir profiles_dir]

命令：
  extract   从页面解析视频元数据并输出记录 JSON
  profiles  列出可用的站点配置

使用 "vidmeta extract --help" 查看详细说明。
`)
}

func printExtractUsage() {
	fmt.Fprint(os.Stdout, `用法：
  vidmeta extract <file|url> [flags]

参数：
  --profile     指定站点配置（未指定则读配置文件；最终按页面 host 自动匹配）
  --export      写出 <site>_video_metadata.json；支持 --export=false 覆盖配置中的 export=true
  --nfo         导出时额外写出 .nfo
  --out         导出目录（默认当前目录）
  --browser     用无头浏览器加载页面（target 为 URL 时总是启用）
  --url         静态文件对应的页面地址（用于匹配站点与 canonicalUrl 兜底）
  --resources   静态模式下的资源 URL 列表文件（每行一个，用于 hlsPlaylists）
  --log-level   debug|info|warn|error（debug 会输出每个字段的候选轨迹）
  -h, --help    显示帮助
`)
}

// emitRecord：stdout 非 TTY 时只输出一个记录 JSON；TTY 时先输出表格摘要再输出完整记录。
func emitRecord(w io.Writer, rec domain.VideoMetadata, interactive bool) error {
	b, err := export.Marshal(rec)
	if err != nil {
		return err
	}
	if interactive {
		renderSummary(w, rec)
		fmt.Fprintln(w)
	}
	_, err = w.Write(b)
	return err
}

func emitError(err error) {
	code := errorCode(err)
	if code == "" {
		fmt.Fprintf(os.Stderr, "失败：%v\n", err)
		return
	}
	fmt.Fprintf(os.Stderr, "失败 error_code=%s：%v\n", code, err)
}

func errorCode(err error) string {
	for _, f := range []func(error) string{config.Code, profile.Code, page.Code, export.Code} {
		if c := f(err); c != "" {
			return c
		}
	}
	return ""
}

func isTTY(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
