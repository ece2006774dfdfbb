package logger

import (
	"bytes"
	"strings"
	"testing"
)

func Test_LOG(t *testing.T) {
	defer func() { _ = Sync() }()
	Info("Info msg")
	Warn("Warn msg")
	Error("Error msg")
	Debug("Debug msg", Int("age", 3))
}

// CustomLogger 自定义日志实现示例
type CustomLogger struct{ infos int }

func (c *CustomLogger) Debug(msg string, fields ...Field)      {}
func (c *CustomLogger) Info(msg string, fields ...Field)       { c.infos++ }
func (c *CustomLogger) Warn(msg string, fields ...Field)       {}
func (c *CustomLogger) Error(msg string, fields ...Field)      {}
func (c *CustomLogger) Panic(msg string, fields ...Field)      {}
func (c *CustomLogger) Fatal(msg string, fields ...Field)      {}
func (c *CustomLogger) Debugf(format string, v ...interface{}) {}
func (c *CustomLogger) Infof(format string, v ...interface{})  { c.infos++ }
func (c *CustomLogger) Warnf(format string, v ...interface{})  {}
func (c *CustomLogger) Errorf(format string, v ...interface{}) {}
func (c *CustomLogger) Panicf(format string, v ...interface{}) {}
func (c *CustomLogger) Fatalf(format string, v ...interface{}) {}
func (c *CustomLogger) With(fields ...Field) Logger            { return c }
func (c *CustomLogger) SetLevel(level Level)                   {}
func (c *CustomLogger) Sync() error                            { return nil }

func Test_CustomLogger(t *testing.T) {
	// 替换为自定义日志实现
	old := Default()
	custom := &CustomLogger{}
	ReplaceDefault(custom)
	defer ReplaceDefault(old)

	Info("test custom logger")
	Infof("test %s", "custom logger")

	if custom.infos != 2 {
		t.Errorf("custom logger not used: got %d calls, want 2", custom.infos)
	}
}

func Test_LevelMapping(t *testing.T) {
	// 验证级别映射正确
	cases := map[Level]int8{
		DebugLevel: -1,
		InfoLevel:  0,
		WarnLevel:  1,
		ErrorLevel: 2,
		PanicLevel: 4, // 跳过DPanic=3
		FatalLevel: 5,
	}
	for level, want := range cases {
		if got := int8(toZapLevel(level)); got != want {
			t.Errorf("level %d mapping failed: got %d, want %d", level, got, want)
		}
	}
}

func Test_ParseLevel(t *testing.T) {
	if l, err := ParseLevel("WARN"); err != nil || l != WarnLevel {
		t.Errorf("ParseLevel(WARN) = %v, %v", l, err)
	}
	if l, err := ParseLevel(""); err != nil || l != InfoLevel {
		t.Errorf("ParseLevel(\"\") = %v, %v", l, err)
	}
	if _, err := ParseLevel("verbose"); err == nil {
		t.Error("期望未知级别返回错误")
	}
}

func Test_WithAndLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, InfoLevel)
	child := l.With(String("machine", "door"))

	child.Debug("hidden")
	child.Info("opened")
	if out := buf.String(); !strings.Contains(out, "opened") || !strings.Contains(out, "door") {
		t.Fatalf("unexpected output: %q", out)
	}
	if strings.Contains(buf.String(), "hidden") {
		t.Error("Debug 不应输出")
	}

	// 子日志器共享级别
	l.SetLevel(DebugLevel)
	child.Debug("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Error("SetLevel 未作用于子日志器")
	}
}
