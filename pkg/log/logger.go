package log

import (
	"context"
	"sync"

	"github.com/uber/jaeger-client-go/utils"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

const (
	FieldNameModule    = "module"
	FieldNameComponent = "component"
)

func FieldModule(module string) zap.Field {
	return zap.String(FieldNameModule, module)
}

func FieldComponent(component string) zap.Field {
	return zap.String(FieldNameComponent, component)
}

// MLogger 在 zap.Logger 之上增加按分组限流的日志。
type MLogger struct {
	*zap.Logger
	rl RateLimiter
}

var namedLimiters sync.Map // group -> *utils.ReconfigurableRateLimiter

// With 返回携带额外字段的子 Logger，限流设置随之继承。
func (l *MLogger) With(fields ...zap.Field) *MLogger {
	return &MLogger{Logger: l.Logger.With(fields...), rl: l.rl}
}

// WithRateGroup 为 Logger 绑定命名限流器，同名分组共享额度。
//
// 注意：再次以同名分组调用时会更新该分组的参数。
func (l *MLogger) WithRateGroup(group string, creditPerSecond, maxBalance float64) *MLogger {
	rl := utils.NewRateLimiter(creditPerSecond, maxBalance)
	if actual, loaded := namedLimiters.LoadOrStore(group, rl); loaded {
		rl = actual.(*utils.ReconfigurableRateLimiter)
		rl.Update(creditPerSecond, maxBalance)
	}
	return &MLogger{Logger: l.Logger, rl: rl}
}

func (l *MLogger) limiter() RateLimiter {
	if l.rl != nil {
		return l.rl
	}
	return R()
}

// RatedDebug 在额度允许时输出 Debug 日志，返回是否已输出。
func (l *MLogger) RatedDebug(cost float64, msg string, fields ...zap.Field) bool {
	if !l.limiter().CheckCredit(cost) {
		return false
	}
	l.WithOptions(zap.AddCallerSkip(1)).Debug(msg, fields...)
	return true
}

func (l *MLogger) RatedInfo(cost float64, msg string, fields ...zap.Field) bool {
	if !l.limiter().CheckCredit(cost) {
		return false
	}
	l.WithOptions(zap.AddCallerSkip(1)).Info(msg, fields...)
	return true
}

func (l *MLogger) RatedWarn(cost float64, msg string, fields ...zap.Field) bool {
	if !l.limiter().CheckCredit(cost) {
		return false
	}
	l.WithOptions(zap.AddCallerSkip(1)).Warn(msg, fields...)
	return true
}

// Binder 可嵌入组件中保存组件自己的 Logger，未设置时使用全局 Logger。
type Binder struct {
	logger atomic.Pointer[MLogger]
}

func (b *Binder) SetLogger(l *MLogger) {
	b.logger.Store(l)
}

func (b *Binder) Logger() *MLogger {
	if l := b.logger.Load(); l != nil {
		return l
	}
	return With()
}

func Debug(msg string, fields ...zap.Field) { L().Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { L().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { L().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { L().Error(msg, fields...) }

// Fatal 记录日志后退出进程。
func Fatal(msg string, fields ...zap.Field) { L().Fatal(msg, fields...) }

// RatedWarn 使用全局限流器输出 Warn 日志。
func RatedWarn(cost float64, msg string, fields ...zap.Field) bool {
	if !R().CheckCredit(cost) {
		return false
	}
	L().Warn(msg, fields...)
	return true
}

// With 返回携带字段的全局子 Logger。
func With(fields ...zap.Field) *MLogger {
	return &MLogger{Logger: L().WithOptions(zap.AddCallerSkip(-1)).With(fields...)}
}

type ctxLogKey struct{}

// WithFields 返回在 ctx 已有 Logger 之上附加字段的上下文。
func WithFields(ctx context.Context, fields ...zap.Field) context.Context {
	return context.WithValue(ctx, ctxLogKey{}, Ctx(ctx).With(fields...))
}

func WithModule(ctx context.Context, module string) context.Context {
	return WithFields(ctx, FieldModule(module))
}

// Ctx 返回 ctx 上附加的 Logger，没有时返回全局 Logger。
func Ctx(ctx context.Context) *MLogger {
	if ctx != nil {
		if l, ok := ctx.Value(ctxLogKey{}).(*MLogger); ok {
			return l
		}
	}
	return &MLogger{Logger: L()}
}

// StartSpan 以全局 TracerProvider 开启 span，并把 traceID 附加到 ctx 的 Logger 上。
func StartSpan(ctx context.Context, tracer, op string) (context.Context, trace.Span) {
	ctx, span := otel.Tracer(tracer).Start(ctx, op)
	ctx = WithFields(ctx, zap.String("op", op))
	if sc := span.SpanContext(); sc.HasTraceID() {
		ctx = WithFields(ctx, zap.Stringer("traceID", sc.TraceID()))
	}
	return ctx, span
}
