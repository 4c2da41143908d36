package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"DEBUG", slog.LevelDebug, false},
		{" warning ", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"trace", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Fatalf("ParseLevel(%q)=%v err=%v", tt.in, got, err)
		}
	}
}

func TestNew_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := New(slog.LevelWarn, &buf)
	l.Info("隐藏")
	l.Warn("可见", "field", "title")

	out := buf.String()
	if strings.Contains(out, "隐藏") || !strings.Contains(out, "可见") || !strings.Contains(out, "field=title") {
		t.Fatalf("日志输出不符合预期：%q", out)
	}
}

func TestContextRoundTrip(t *testing.T) {
	if FromContext(context.Background()) != slog.Default() {
		t.Fatalf("没有 logger 时应回退到 slog.Default()")
	}
	l := New(slog.LevelDebug, nil)
	ctx := WithLogger(context.Background(), l)
	if FromContext(ctx) != l {
		t.Fatalf("应取回挂载的 logger")
	}
	if WithLogger(ctx, nil) != ctx {
		t.Fatalf("nil logger 不应改变 context")
	}
}
