package logger

import (
	"time"

	"go.uber.org/zap"
)

// Option 透传zap的构造选项
type Option = zap.Option

func AddCaller() Option                { return zap.AddCaller() }
func AddCallerSkip(skip int) Option    { return zap.AddCallerSkip(skip) }
func AddStacktrace(level Level) Option { return zap.AddStacktrace(toZapLevel(level)) }

// Field 结构化字段
type Field = zap.Field

func String(key, val string) Field                 { return zap.String(key, val) }
func Strings(key string, val []string) Field       { return zap.Strings(key, val) }
func Int(key string, val int) Field                { return zap.Int(key, val) }
func Int64(key string, val int64) Field            { return zap.Int64(key, val) }
func Bool(key string, val bool) Field              { return zap.Bool(key, val) }
func Duration(key string, val time.Duration) Field { return zap.Duration(key, val) }
func Any(key string, val interface{}) Field        { return zap.Any(key, val) }
func Err(err error) Field                          { return zap.Error(err) }

// GetError 兼容旧写法
func GetError(e error) Field {
	return zap.Error(e)
}
