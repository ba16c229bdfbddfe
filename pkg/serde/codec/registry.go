package codec

import (
	"fmt"
	"reflect"

	"go.uber.org/zap"

	"github.com/lk2023060901/danmu-garden-serde/pkg/log"
	"github.com/lk2023060901/danmu-garden-serde/pkg/serde/binio"
	"github.com/lk2023060901/danmu-garden-serde/pkg/serde/wire"
	"github.com/lk2023060901/danmu-garden-serde/pkg/util/merr"
	"github.com/lk2023060901/danmu-garden-serde/pkg/util/typeutil"
)

// SerializeFunc 写出自定义类型的负载（不含标签）。
type SerializeFunc func(w binio.Writer, v any) error

// DeserializeFunc 读取 SerializeFunc 写出的负载。
type DeserializeFunc func(r *binio.Reader) (any, error)

// registry 为进程级的原始类型与自定义类型注册表，只增不删。
type registry struct {
	byType *typeutil.ConcurrentMap[reflect.Type, *EncoderInfo]
	byTag  *typeutil.ConcurrentMap[wire.Tag, *DecoderInfo]
	// byKind 只在 init 中写入，之后只读
	byKind map[reflect.Kind]*EncoderInfo
}

func newRegistry() *registry {
	return &registry{
		byType: typeutil.NewConcurrentMap[reflect.Type, *EncoderInfo](),
		byTag:  typeutil.NewConcurrentMap[wire.Tag, *DecoderInfo](),
		byKind: make(map[reflect.Kind]*EncoderInfo),
	}
}

var defaultRegistry = newRegistry()

// Lookup 按精确类型查找编码信息。
func Lookup(t reflect.Type) (*EncoderInfo, bool) {
	return defaultRegistry.byType.Get(t)
}

// LookupKind 返回内建基础类型 kind 的编码信息，用于命名的基础类型（如 type Color int）。
func LookupKind(k reflect.Kind) (*EncoderInfo, bool) {
	info, ok := defaultRegistry.byKind[k]
	return info, ok
}

// LookupTag 按标签查找解码信息。
func LookupTag(tag wire.Tag) (*DecoderInfo, bool) {
	return defaultRegistry.byTag.Get(tag)
}

// Resolve 返回 t 可用的原始编码：先精确匹配，再按 kind 匹配命名基础类型。
func Resolve(t reflect.Type) (*EncoderInfo, bool) {
	if info, ok := Lookup(t); ok {
		return info, true
	}
	if t.PkgPath() == "" {
		return nil, false
	}
	info, ok := LookupKind(t.Kind())
	if !ok || info.Type.Kind() != t.Kind() || !t.ConvertibleTo(info.Type) {
		return nil, false
	}
	return info, true
}

// RegisterCustom 以编码 code 注册自定义类型 t 的委托。
//
// 说明：
//   - 同一 code 与同一类型的重复注册返回 (false, nil)；
//   - code 已绑定其他类型，或 t 已绑定其他标签时返回 ErrSerdeDuplicateType；
//   - 指针、map、slice 类型的值参与对象表。
func RegisterCustom(code uint32, t reflect.Type, ser SerializeFunc, des DeserializeFunc) (bool, error) {
	if code >= wire.MaxCustomCode {
		return false, merr.WrapErrParameterInvalid(uint32(wire.MaxCustomCode-1), code, "custom type code too large")
	}
	if t == nil || ser == nil || des == nil {
		return false, merr.WrapErrParameterMissing("custom type delegate")
	}
	tag := wire.CustomTag(code)
	tracked := t.Kind() == reflect.Pointer || t.Kind() == reflect.Map || t.Kind() == reflect.Slice

	enc := &EncoderInfo{Type: t, Tag: tag, Tracked: tracked, Custom: true}
	enc.encode = func(w binio.Writer, v reflect.Value, _ *Settings) error {
		PutTag(w, tag)
		return ser(w, v.Interface())
	}
	dec := &DecoderInfo{Tag: tag, Type: t, Tracked: tracked}
	dec.decode = func(r *binio.Reader, _ wire.Tag) (reflect.Value, error) {
		x, err := des(r)
		if err != nil {
			return reflect.Value{}, err
		}
		v := reflect.ValueOf(x)
		if !v.IsValid() || !v.Type().AssignableTo(t) {
			return reflect.Value{}, merr.WrapErrSerdeTypeMismatch(fmt.Sprintf("%T", x), t, "custom deserializer result")
		}
		return v, nil
	}

	if existing, loaded := defaultRegistry.byTag.GetOrInsert(tag, dec); loaded {
		if existing.Type == t {
			return false, nil
		}
		log.Warn("custom type code conflict",
			zap.Uint32("code", code),
			zap.Stringer("existing", existing.Type),
			zap.Stringer("incoming", t))
		return false, merr.WrapErrSerdeDuplicateType(code, existing.Type, t)
	}
	if existing, loaded := defaultRegistry.byType.GetOrInsert(t, enc); loaded {
		defaultRegistry.byTag.Remove(tag)
		return false, merr.WrapErrSerdeDuplicateType(code, existing.Tag, t)
	}
	return true, nil
}
