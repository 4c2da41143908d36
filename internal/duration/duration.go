package duration

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/John-Robertt/vidmeta/internal/domain"
)

// Value 是规范化后的时长三元组：原始字符串、整数秒、来源。
//
// Seconds 为 nil 表示“有原始值但无法换算”（格式错误），与“没有值”（Raw 为空）区分开。
type Value struct {
	Raw     string
	Seconds *int
	Source  domain.DurationSource
}

// Empty 表示没有任何可用时长。
func (v Value) Empty() bool { return strings.TrimSpace(v.Raw) == "" }

var (
	isoRE      = regexp.MustCompile(`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+(?:\.\d+)?)S)?)?$`)
	digitsRE   = regexp.MustCompile(`^[0-9]+$`)
	clockRE    = regexp.MustCompile(`^(\d{1,2}:)?\d{1,2}:\d{2}$`)
	nonClockRE = regexp.MustCompile(`[^\d:]`)
)

// Parse 解析 ISO-8601 风格（PT1H2M3S）或冒号分隔（HH:MM:SS / MM:SS）的时长。
//
// 规则：
// - 空输入：Raw="" 且 Seconds=nil
// - 以 P 开头且符合 ISO 形态：缺失的 H/M/S 分量按 0 处理
// - 否则按 ':' 拆分：任一段不是非负整数 => Seconds=nil；3 段 => h/m/s，2 段 => m/s，其他段数 => Seconds=nil
//
// Source 由调用方根据候选来源填写。
func Parse(raw string) Value {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Value{}
	}

	if strings.HasPrefix(s, "P") {
		m := isoRE.FindStringSubmatch(s)
		if m == nil {
			return Value{Raw: s}
		}
		// 任一分量超出 int 或总秒数溢出：视为格式错误（Seconds=nil），不回绕成负数。
		total := 0
		for i, unit := range []int{86400, 3600, 60} {
			n, ok := atoi(m[i+1])
			if !ok {
				return Value{Raw: s}
			}
			if total, ok = addScaled(total, n, unit); !ok {
				return Value{Raw: s}
			}
		}
		if m[4] != "" {
			f, err := strconv.ParseFloat(m[4], 64)
			if err != nil || f >= 1<<53 {
				return Value{Raw: s}
			}
			var ok bool
			if total, ok = addScaled(total, int(math.Floor(f)), 1); !ok {
				return Value{Raw: s}
			}
		}
		return Value{Raw: s, Seconds: &total}
	}

	parts := strings.Split(s, ":")
	nums := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if !digitsRE.MatchString(p) {
			return Value{Raw: s}
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return Value{Raw: s}
		}
		nums = append(nums, n)
	}

	var units []int
	switch len(nums) {
	case 3:
		units = []int{3600, 60, 1}
	case 2:
		units = []int{60, 1}
	default:
		return Value{Raw: s}
	}
	total := 0
	for i, n := range nums {
		var ok bool
		if total, ok = addScaled(total, n, units[i]); !ok {
			return Value{Raw: s}
		}
	}
	return Value{Raw: s, Seconds: &total}
}

// ParseClock 只接受严格的 MM:SS 或 HH:MM:SS（播放器 UI 上渲染的时长控件）。
// 先去掉数字与冒号以外的字符（例如 "Duration 12:34" -> "12:34"），不匹配则返回 false。
func ParseClock(text string) (Value, bool) {
	cleaned := strings.TrimSpace(nonClockRE.ReplaceAllString(text, ""))
	if !clockRE.MatchString(cleaned) {
		return Value{}, false
	}
	v := Parse(cleaned)
	if v.Seconds == nil {
		return Value{}, false
	}
	v.Source = domain.DurationFromUI
	return v, true
}

// ParseSeconds 只接受纯数字秒数（例如 meta 里的 video:duration）。
func ParseSeconds(raw string) (Value, bool) {
	s := strings.TrimSpace(raw)
	if !digitsRE.MatchString(s) {
		return Value{}, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return Value{}, false
	}
	return Value{Raw: s, Seconds: &n}, true
}

// FromMediaSeconds 把媒体元素上报的浮点秒数四舍五入为整数秒，
// 并渲染为 MM:SS（不足 1 小时）或 HH:MM:SS。非有限值、<=0 或大得离谱的值返回 false。
func FromMediaSeconds(f float64) (Value, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 || f >= math.MaxInt32 {
		return Value{}, false
	}
	secs := int(math.Round(f))
	if secs <= 0 {
		return Value{}, false
	}
	return Value{Raw: Format(secs), Seconds: &secs, Source: domain.DurationFromMediaElement}, true
}

// Format 把秒数渲染为 MM:SS 或 HH:MM:SS（两位补零）。
func Format(secs int) string {
	if secs < 0 {
		secs = 0
	}
	h := secs / 3600
	m := (secs % 3600) / 60
	s := secs % 60
	if secs >= 3600 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// atoi 解析可选的非负整数分量：空串为 0；超出 int 范围返回 false。
func atoi(s string) (int, bool) {
	if s == "" {
		return 0, true
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// addScaled 返回 total + n*unit；结果超出 int 时返回 false。
func addScaled(total, n, unit int) (int, bool) {
	if n > (math.MaxInt-total)/unit {
		return 0, false
	}
	return total + n*unit, true
}
