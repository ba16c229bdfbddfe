// Copyright 2019 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

// Package log 为全局 zap 日志，支持文件滚动、模块 Logger 与限流日志。
package log

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/uber/jaeger-client-go/utils"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// RateLimiter 为限流日志使用的最小接口，jaeger 的 utils.RateLimiter 满足它。
type RateLimiter interface {
	CheckCredit(delta float64) bool
}

type nopRateLimiter struct{}

func (nopRateLimiter) CheckCredit(float64) bool { return true }

type globals struct {
	logger  *zap.Logger
	props   *ZapProperties
	limiter RateLimiter
}

var (
	_globals atomic.Pointer[globals]
	_cleanup atomic.Pointer[func()]
)

func init() {
	conf := &Config{Level: "debug", Stdout: true, DisableErrorVerbose: true}
	lg, props, err := InitLogger(conf, zap.OnFatal(zapcore.WriteThenPanic))
	if err != nil {
		panic(err)
	}
	_globals.Store(&globals{logger: lg, props: props, limiter: limiterFromEnv()})
}

// InitLogger 按 cfg 构建 Logger，输出到标准输出与（可选的）滚动文件。
func InitLogger(cfg *Config, opts ...zap.Option) (*zap.Logger, *ZapProperties, error) {
	var outputs []zapcore.WriteSyncer
	if cfg.File.Filename != "" {
		lj, err := initFileLog(&cfg.File)
		if err != nil {
			return nil, nil, err
		}
		outputs = append(outputs, zapcore.AddSync(lj))
		registerCleanup(func() { _ = lj.Close() })
	}
	if cfg.Stdout {
		stdout, _, err := zap.Open("stdout")
		if err != nil {
			return nil, nil, err
		}
		outputs = append(outputs, stdout)
	}
	level := cfg.Level
	if strings.EqualFold(level, "trace") {
		level = "debug"
	}
	c := *cfg
	c.Level = level
	lg, props, err := InitLoggerWithWriteSyncer(&c, zap.CombineWriteSyncers(outputs...), opts...)
	if err != nil {
		return nil, nil, err
	}
	return lg.WithOptions(zap.AddCallerSkip(1)), props, nil
}

// InitLoggerWithWriteSyncer 构建写入 output 的 Logger。
func InitLoggerWithWriteSyncer(cfg *Config, output zapcore.WriteSyncer, opts ...zap.Option) (*zap.Logger, *ZapProperties, error) {
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, nil, errors.Wrapf(err, "parse log level %q", cfg.Level)
	}
	core := zapcore.NewCore(newZapEncoder(cfg), output, level)
	lg := zap.New(core, append(cfg.buildOptions(output), opts...)...)
	return lg, &ZapProperties{Core: core, Syncer: output, Level: level}, nil
}

func initFileLog(cfg *FileLogConfig) (*lumberjack.Logger, error) {
	logPath := filepath.Join(cfg.RootPath, cfg.Filename)
	if st, err := os.Stat(logPath); err == nil && st.IsDir() {
		return nil, errors.Newf("log file %s is a directory", logPath)
	}
	if cfg.MaxSize == 0 {
		cfg.MaxSize = defaultLogMaxSize
	}
	return &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxDays,
		LocalTime:  true,
	}, nil
}

// L 返回全局 Logger，可通过 ReplaceGlobals 替换，并发安全。
func L() *zap.Logger {
	return _globals.Load().logger
}

// R 返回全局限流器；未启用限流时返回永不丢弃的实现。
func R() RateLimiter {
	return _globals.Load().limiter
}

// ReplaceGlobals 替换全局 Logger，限流器保持不变。
func ReplaceGlobals(logger *zap.Logger, props *ZapProperties) {
	old := _globals.Load()
	_globals.Store(&globals{logger: logger, props: props, limiter: old.limiter})
}

// SetLevel 调整全局日志级别。
func SetLevel(l zapcore.Level) {
	_globals.Load().props.Level.SetLevel(l)
}

// GetLevel 返回全局日志级别。
func GetLevel() zapcore.Level {
	return _globals.Load().props.Level.Level()
}

// Sync 刷新全局 Logger 的缓冲。
func Sync() error {
	return L().Sync()
}

// Cleanup 关闭 InitLogger 打开的日志文件。
func Cleanup() {
	if fn := _cleanup.Swap(nil); fn != nil {
		(*fn)()
	}
}

func registerCleanup(fn func()) {
	if old := _cleanup.Swap(&fn); old != nil {
		(*old)()
	}
}

// limiterFromEnv 读取 SERDE_LOG_RATE_* 环境变量：
//
//   - SERDE_LOG_RATE_ENABLE：是否启用限流，默认关闭；
//   - SERDE_LOG_RATE_CREDIT_PER_SECOND：每秒额度，默认 1；
//   - SERDE_LOG_RATE_MAX_BALANCE：最大余额，默认 60。
func limiterFromEnv() RateLimiter {
	enabled, _ := strconv.ParseBool(strings.TrimSpace(os.Getenv("SERDE_LOG_RATE_ENABLE")))
	if !enabled {
		return nopRateLimiter{}
	}
	return utils.NewRateLimiter(
		envFloat("SERDE_LOG_RATE_CREDIT_PER_SECOND", 1),
		envFloat("SERDE_LOG_RATE_MAX_BALANCE", 60))
}

func envFloat(key string, def float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(os.Getenv(key)), 64)
	if err != nil {
		return def
	}
	return f
}
