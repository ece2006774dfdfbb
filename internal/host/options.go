package host

import (
	"os"
	"time"

	"github.com/junbin-yang/go-fsmkit/pkg/logger"
)

// Option 运行时配置选项
type Option func(*Host)

// WithSignals 设置监听的信号，不传则不监听
func WithSignals(signals ...os.Signal) Option {
	return func(h *Host) {
		h.signals = signals
	}
}

// WithShutdownTimeout 设置退出超时时间
func WithShutdownTimeout(timeout time.Duration) Option {
	return func(h *Host) {
		if timeout > 0 {
			h.shutdownTimeout = timeout
		}
	}
}

// WithLogger 设置日志器
func WithLogger(l logger.Logger) Option {
	return func(h *Host) {
		if l != nil {
			h.log = l
		}
	}
}
