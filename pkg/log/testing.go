package log

import (
	"bytes"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// testingWriter 把日志转写到 t.Log，markFailed 时同时标记测试失败。
type testingWriter struct {
	t          zaptest.TestingT
	markFailed bool
}

func (w testingWriter) Write(p []byte) (int, error) {
	w.t.Logf("%s", bytes.TrimRight(p, "\n"))
	if w.markFailed {
		w.t.Fail()
	}
	return len(p), nil
}

func (w testingWriter) Sync() error { return nil }

// InitTestLogger 构建写入 t.Log 的 Logger，zap 内部错误会使测试失败。
func InitTestLogger(t zaptest.TestingT, cfg *Config, opts ...zap.Option) (*zap.Logger, *ZapProperties, error) {
	opts = append([]zap.Option{zap.ErrorOutput(testingWriter{t: t, markFailed: true})}, opts...)
	return InitLoggerWithWriteSyncer(cfg, testingWriter{t: t}, opts...)
}
