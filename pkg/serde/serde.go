// Package serde 将任意 Go 对象图编码为带标签的二进制流并还原。
//
// 说明：
//   - 共享引用与循环引用通过对象表保持，同一指针只写出一次；
//   - 结构体写出属性名组成的模式头，读取端按名字匹配属性，增删字段可以互读；
//   - Serializer 可并发使用，每次调用的引用表相互独立。
package serde

import (
	"reflect"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/lk2023060901/danmu-garden-serde/pkg/log"
	"github.com/lk2023060901/danmu-garden-serde/pkg/metrics"
	"github.com/lk2023060901/danmu-garden-serde/pkg/serde/binio"
	"github.com/lk2023060901/danmu-garden-serde/pkg/serde/codec"
	"github.com/lk2023060901/danmu-garden-serde/pkg/util/merr"
	"github.com/lk2023060901/danmu-garden-serde/pkg/util/typeutil"
)

// Serializer 持有编码选项与类型名缓存。
type Serializer struct {
	log.Binder

	opts  *options
	names *typeutil.ConcurrentMap[reflect.Type, typeName]
}

func New(opts ...Option) *Serializer {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	s := &Serializer{
		opts:  o,
		names: typeutil.NewConcurrentMap[reflect.Type, typeName](),
	}
	if o.logger != nil {
		s.SetLogger(o.logger)
	}
	return s
}

var defaultSerializer = sync.OnceValue(func() *Serializer { return New() })

// Default 返回使用默认选项的 Serializer。
func Default() *Serializer {
	return defaultSerializer()
}

// Marshal 以静态类型 declared 写出 v；declared 为 nil 时视为 any。
// 静态类型与运行时类型不同时，流中会带上运行时类型。
func (s *Serializer) Marshal(declared reflect.Type, v any) (data []byte, err error) {
	start := time.Now()
	defer func() { s.observe(metrics.SerializeLabel, start, len(data), err) }()

	declared, rv, err := checkDeclared(declared, v)
	if err != nil {
		return nil, err
	}
	out := binio.NewGrowableWriter()
	defer out.Release()
	if err := s.encode(out, declared, rv); err != nil {
		return nil, err
	}
	return out.Detach(), nil
}

func checkDeclared(declared reflect.Type, v any) (reflect.Type, reflect.Value, error) {
	if declared == nil {
		declared = anyType
	}
	rv := reflect.ValueOf(v)
	if rv.IsValid() && !rv.Type().AssignableTo(declared) {
		return nil, reflect.Value{}, merr.WrapErrSerdeTypeMismatch(rv.Type(), declared, "value is not assignable to declared type")
	}
	return declared, rv, nil
}

func (s *Serializer) encode(out binio.Writer, declared reflect.Type, v reflect.Value) error {
	if s.opts.format == FormatLegacy {
		s.noteLegacy()
	}
	w := newWriter(s, out)
	if err := w.writeValue(declared, v); err != nil {
		return err
	}
	return out.Err()
}

// Unmarshal 读取 data 中的一个对象图并转换为 dest；dest 为 nil 时返回流中的自然类型。
// data 必须恰好包含一个值。
func (s *Serializer) Unmarshal(dest reflect.Type, data []byte) (v any, err error) {
	start := time.Now()
	defer func() { s.observe(metrics.DeserializeLabel, start, len(data), err) }()

	in := binio.NewReader(data)
	rv, err := s.decode(in, dest)
	if err != nil {
		return nil, err
	}
	if in.Remaining() > 0 {
		return nil, merr.WrapErrSerdeInvalidFormat(in.Pos(), "%d trailing bytes", in.Remaining())
	}
	return valueOf(rv), nil
}

func (s *Serializer) decode(in *binio.Reader, dest reflect.Type) (reflect.Value, error) {
	return newReader(s, in).readRoot(dest)
}

// UnmarshalInto 读取 data 并写入 ptr 指向的变量。
func (s *Serializer) UnmarshalInto(data []byte, ptr any) error {
	rv, err := targetOf(ptr)
	if err != nil {
		return err
	}
	v, err := s.Unmarshal(rv.Type(), data)
	if err != nil {
		return err
	}
	assign(rv, v)
	return nil
}

func targetOf(ptr any) (reflect.Value, error) {
	rv := reflect.ValueOf(ptr)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return reflect.Value{}, merr.WrapErrParameterInvalidMsg("destination must be a non-nil pointer, got %T", ptr)
	}
	return rv.Elem(), nil
}

func assign(dst reflect.Value, v any) {
	if v == nil {
		dst.SetZero()
		return
	}
	dst.Set(reflect.ValueOf(v))
}

// Marshal 使用默认 Serializer 以 T 为静态类型写出 v。
func Marshal[T any](v T) ([]byte, error) {
	return MarshalAs(Default(), v)
}

// Unmarshal 使用默认 Serializer 读取 T。
func Unmarshal[T any](data []byte) (T, error) {
	return UnmarshalAs[T](Default(), data)
}

func MarshalAs[T any](s *Serializer, v T) ([]byte, error) {
	return s.Marshal(reflect.TypeFor[T](), v)
}

func UnmarshalAs[T any](s *Serializer, data []byte) (T, error) {
	var zero T
	v, err := s.Unmarshal(reflect.TypeFor[T](), data)
	if err != nil || v == nil {
		return zero, err
	}
	return v.(T), nil
}

// RegisterType 使类型 T 可按名字读取；指针类型登记其指向的命名类型。
func RegisterType[T any]() {
	codec.RegisterType(namedType(reflect.TypeFor[T]()))
}

// RegisterTypeCode 为 T 绑定显式编号，写出时以编号代替类型名。
func RegisterTypeCode[T any](code uint32) (bool, error) {
	return codec.RegisterTypeCode(code, namedType(reflect.TypeFor[T]()))
}

func namedType(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Pointer && t.Name() == "" {
		t = t.Elem()
	}
	return t
}

// RegisterCustom 以编号 code 注册类型 T 的自定义编解码。
//
// 注意：ser 与 des 只能读写原始字节，不能嵌套写出其他对象。
func RegisterCustom[T any](code uint32, ser func(w binio.Writer, v T) error, des func(r *binio.Reader) (T, error)) (bool, error) {
	if ser == nil || des == nil {
		return false, merr.WrapErrParameterMissing("custom type delegate")
	}
	return codec.RegisterCustom(code, reflect.TypeFor[T](),
		func(w binio.Writer, v any) error { return ser(w, v.(T)) },
		func(r *binio.Reader) (any, error) { return des(r) })
}

var registerOnce sync.Once

// RegisterMetrics 注册编解码指标与页缓冲池统计，只生效一次。
func RegisterMetrics(r prometheus.Registerer) {
	registerOnce.Do(func() {
		metrics.RegisterSerdeMetrics(r)
		r.MustRegister(metrics.NewPagePoolCollector(binio.PoolStats))
	})
}

func (s *Serializer) observe(op string, start time.Time, n int, err error) {
	if err != nil {
		s.Logger().RatedDebug(1, "serde failed", zap.String("op", op), zap.Error(err))
	}
	if !s.opts.metrics {
		return
	}
	if err != nil {
		metrics.SerdeErrors.WithLabelValues(op, strconv.Itoa(int(merr.Code(err)))).Inc()
		return
	}
	metrics.SerdeBytes.WithLabelValues(op).Observe(float64(n))
	metrics.SerdeLatency.WithLabelValues(op).Observe(float64(time.Since(start).Microseconds()) / 1000)
}
