package codec

import (
	"reflect"
	"regexp"

	"go.uber.org/zap"

	"github.com/lk2023060901/danmu-garden-serde/pkg/log"
	"github.com/lk2023060901/danmu-garden-serde/pkg/util/merr"
	"github.com/lk2023060901/danmu-garden-serde/pkg/util/typeutil"
)

// TypeNameBinder 在 Go 类型与流中的 (包路径, 类型名) 之间转换。
type TypeNameBinder interface {
	BindToName(t reflect.Type) (pkg, name string)
	BindToType(pkg, name string) (reflect.Type, bool)
}

// DefaultBinder 使用完整包路径。
type DefaultBinder struct{}

func (DefaultBinder) BindToName(t reflect.Type) (string, string) {
	return t.PkgPath(), t.Name()
}

func (DefaultBinder) BindToType(pkg, name string) (reflect.Type, bool) {
	return names.full.Get(qualify(pkg, name))
}

// PortableBinder 去掉包路径中的主版本段（/v2、/v3 ...），使不同主版本之间可以互读。
type PortableBinder struct{}

func (PortableBinder) BindToName(t reflect.Type) (string, string) {
	return StripMajorVersion(t.PkgPath()), t.Name()
}

func (PortableBinder) BindToType(pkg, name string) (reflect.Type, bool) {
	return names.portable.Get(qualify(StripMajorVersion(pkg), name))
}

var majorVersion = regexp.MustCompile(`/v[0-9]+(/|$)`)

// StripMajorVersion 移除包路径中的 /vN 段。
func StripMajorVersion(pkg string) string {
	for {
		loc := majorVersion.FindStringIndex(pkg)
		if loc == nil {
			return pkg
		}
		tail := pkg[loc[1]:]
		if pkg[loc[1]-1] == '/' {
			tail = "/" + tail
		}
		pkg = pkg[:loc[0]] + tail
	}
}

func qualify(pkg, name string) string {
	if pkg == "" {
		return name
	}
	return pkg + "." + name
}

// QualifiedName 返回 t 的完整限定名。
func QualifiedName(t reflect.Type) string {
	return qualify(t.PkgPath(), t.Name())
}

var builtinTypes = map[string]reflect.Type{}

func init() {
	for _, t := range []reflect.Type{
		reflect.TypeFor[bool](),
		reflect.TypeFor[int](), reflect.TypeFor[int8](), reflect.TypeFor[int16](),
		reflect.TypeFor[int32](), reflect.TypeFor[int64](),
		reflect.TypeFor[uint](), reflect.TypeFor[uint8](), reflect.TypeFor[uint16](),
		reflect.TypeFor[uint32](), reflect.TypeFor[uint64](), reflect.TypeFor[uintptr](),
		reflect.TypeFor[float32](), reflect.TypeFor[float64](),
		reflect.TypeFor[complex64](), reflect.TypeFor[complex128](),
		reflect.TypeFor[string](), reflect.TypeFor[error](),
	} {
		builtinTypes[t.Name()] = t
	}
	builtinTypes[AnyName] = reflect.TypeFor[any]()
	builtinTypes[EmptyStructName] = reflect.TypeFor[struct{}]()
}

const (
	// AnyName 为空接口在流中的名字。
	AnyName = "any"
	// EmptyStructName 为 struct{} 在流中的名字，集合类型 map[K]struct{} 需要它。
	EmptyStructName = "struct{}"
)

// BuiltinType 按名字返回预声明类型。
func BuiltinType(name string) (reflect.Type, bool) {
	t, ok := builtinTypes[name]
	return t, ok
}

// BuiltinName 返回预声明类型的名字；t 不是预声明类型时返回 false。
func BuiltinName(t reflect.Type) (string, bool) {
	if t.Name() == "" {
		switch {
		case t.Kind() == reflect.Interface && t.NumMethod() == 0:
			return AnyName, true
		case t.Kind() == reflect.Struct && t.NumField() == 0:
			return EmptyStructName, true
		}
	}
	if t.PkgPath() != "" || t.Name() == "" {
		return "", false
	}
	_, ok := builtinTypes[t.Name()]
	return t.Name(), ok
}

// nameRegistry 记录进程内可按名字或编号解析的类型。
type nameRegistry struct {
	full     *typeutil.ConcurrentMap[string, reflect.Type]
	portable *typeutil.ConcurrentMap[string, reflect.Type]
	byCode   *typeutil.ConcurrentMap[uint32, reflect.Type]
	codeOf   *typeutil.ConcurrentMap[reflect.Type, uint32]
	warned   *typeutil.ConcurrentSet[string]
}

var names = nameRegistry{
	full:     typeutil.NewConcurrentMap[string, reflect.Type](),
	portable: typeutil.NewConcurrentMap[string, reflect.Type](),
	byCode:   typeutil.NewConcurrentMap[uint32, reflect.Type](),
	codeOf:   typeutil.NewConcurrentMap[reflect.Type, uint32](),
	warned:   typeutil.NewConcurrentSet[string](),
}

// RegisterType 使命名类型 t 可按名字解析，先注册者生效。
func RegisterType(t reflect.Type) {
	if t.Name() == "" || t.PkgPath() == "" {
		return
	}
	full := QualifiedName(t)
	if existing, loaded := names.full.GetOrInsert(full, t); loaded && existing != t {
		if names.warned.Insert(full) {
			log.Warn("type name already bound to another type", zap.String("name", full))
		}
	}
	portable := qualify(StripMajorVersion(t.PkgPath()), t.Name())
	if existing, loaded := names.portable.GetOrInsert(portable, t); loaded && existing != t {
		if names.warned.Insert(portable) {
			log.Warn("portable type name already bound to another type",
				zap.String("name", portable),
				zap.Stringer("existing", existing),
				zap.Stringer("incoming", t))
		}
	}
}

// RegisterTypeCode 为类型 t 绑定显式编号，写出时以编号代替类型名。
func RegisterTypeCode(code uint32, t reflect.Type) (bool, error) {
	if existing, loaded := names.byCode.GetOrInsert(code, t); loaded {
		if existing == t {
			return false, nil
		}
		return false, merr.WrapErrSerdeDuplicateType(code, existing, t)
	}
	if existing, loaded := names.codeOf.GetOrInsert(t, code); loaded {
		names.byCode.Remove(code)
		return false, merr.WrapErrSerdeDuplicateType(code, existing, t)
	}
	RegisterType(t)
	return true, nil
}

func TypeByCode(code uint32) (reflect.Type, bool) {
	return names.byCode.Get(code)
}

func CodeOf(t reflect.Type) (uint32, bool) {
	return names.codeOf.Get(t)
}
