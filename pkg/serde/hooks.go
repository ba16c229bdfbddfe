package serde

import (
	"reflect"
	"slices"

	"github.com/lk2023060901/danmu-garden-serde/pkg/util/merr"
)

// EntityBinder 为外部实体绑定层提供的两个扩展点。
//
// 说明：
//   - SerializeEntity 在写出指针、map、slice 或接口中的值之前调用；返回 ok 时写出 token 代替完整对象；
//   - DeserializeEntity 在读到 token 时调用，可以立即给出值，也可以返回延迟结果，
//     延迟结果在整个对象图读取完成后按记录顺序统一解析并回填。
type EntityBinder interface {
	SerializeEntity(isRoot bool, declared reflect.Type, v any) (token any, ok bool)
	DeserializeEntity(token any, dest reflect.Type) (EntityResult, error)
}

// EntityResult 为实体解析的两阶段结果：已解析的值，或延迟到读取完成后再求值的函数。
type EntityResult struct {
	value   any
	resolve func() (any, error)
}

// Resolved 返回已经可用的实体。
func Resolved(v any) EntityResult {
	return EntityResult{value: v}
}

// Deferred 返回延迟解析的实体，resolve 在对象图读取完成后调用。
func Deferred(resolve func() (any, error)) EntityResult {
	return EntityResult{resolve: resolve}
}

func (r EntityResult) IsDeferred() bool { return r.resolve != nil }

// InstanceResolver 在流中的类型名无法绑定到 Go 类型时提供实例。
// 返回值应为结构体指针；dest 为读取位置声明的目标类型。
type InstanceResolver interface {
	ResolveInstance(typeName string, dest reflect.Type) (any, error)
}

type InstanceResolverFunc func(typeName string, dest reflect.Type) (any, error)

func (f InstanceResolverFunc) ResolveInstance(typeName string, dest reflect.Type) (any, error) {
	return f(typeName, dest)
}

// PropertyNameResolver 将流中已不存在的属性名映射到类型 t 的新属性名。
type PropertyNameResolver interface {
	ResolvePropertyName(t reflect.Type, name string) (string, bool)
}

type PropertyNameResolverFunc func(t reflect.Type, name string) (string, bool)

func (f PropertyNameResolverFunc) ResolvePropertyName(t reflect.Type, name string) (string, bool) {
	return f(t, name)
}

// ObsoletePropertySink 接收无法映射到任何属性的值，obj 为正在填充的对象指针。
type ObsoletePropertySink interface {
	ObsoleteProperty(obj any, name string, value any)
}

type ObsoletePropertySinkFunc func(obj any, name string, value any)

func (f ObsoletePropertySinkFunc) ObsoleteProperty(obj any, name string, value any) {
	f(obj, name, value)
}

// 生命周期回调，由结构体指针实现。

type BeforeSerializer interface {
	BeforeSerialize() error
}

type AfterSerializer interface {
	AfterSerialize() error
}

type BeforeDeserializer interface {
	BeforeDeserialize() error
}

type AfterDeserializer interface {
	AfterDeserialize() error
}

// Serializable 的类型自行提供名值对，以 SerializationInfo 形式写出。
type Serializable interface {
	GetObjectData(info *SerializationInfo) error
}

// Deserializable 为 Serializable 的读取端，由指针接收者实现。
type Deserializable interface {
	SetObjectData(info *SerializationInfo) error
}

// SerializationInfo 为有序的名值对集合。
type SerializationInfo struct {
	names  []string
	values []any
	index  map[string]int
}

// Add 添加名值对，同名时覆盖原值。
func (si *SerializationInfo) Add(name string, v any) {
	if si.index == nil {
		si.index = make(map[string]int)
	}
	if i, ok := si.index[name]; ok {
		si.values[i] = v
		return
	}
	si.index[name] = len(si.names)
	si.names = append(si.names, name)
	si.values = append(si.values, v)
}

func (si *SerializationInfo) Value(name string) (any, bool) {
	i, ok := si.index[name]
	if !ok {
		return nil, false
	}
	return si.values[i], true
}

func (si *SerializationInfo) Len() int { return len(si.names) }

// Names 按添加顺序返回名字。
func (si *SerializationInfo) Names() []string { return slices.Clone(si.names) }

// InfoValue 取出 name 对应的值并转换为 T，数值宽度与容器类型按反序列化的规则转换。
func InfoValue[T any](si *SerializationInfo, name string) (T, error) {
	var zero T
	v, ok := si.Value(name)
	if !ok {
		return zero, merr.WrapErrParameterMissing(name, "serialization info entry")
	}
	out, err := coerce(reflect.ValueOf(v), reflect.TypeFor[T]())
	if err != nil {
		return zero, err
	}
	if !out.IsValid() {
		return zero, nil
	}
	return out.Interface().(T), nil
}
