package serde

import (
	"encoding"
	"reflect"
	"strconv"
	"strings"

	"github.com/lk2023060901/danmu-garden-serde/pkg/serde/codec"
	"github.com/lk2023060901/danmu-garden-serde/pkg/serde/wire"
	"github.com/lk2023060901/danmu-garden-serde/pkg/util/merr"
)

var (
	anyType        = reflect.TypeFor[any]()
	stringType     = reflect.TypeFor[string]()
	bytesType      = reflect.TypeFor[[]byte]()
	emptyStruct    = reflect.TypeFor[struct{}]()
	typeType       = reflect.TypeFor[reflect.Type]()
	tupleType      = reflect.TypeFor[tuple]()
	keyValueType   = reflect.TypeFor[keyValue]()
	pendingType    = reflect.TypeFor[*pendingEntity]()
	serializable   = reflect.TypeFor[Serializable]()
	deserializable = reflect.TypeFor[Deserializable]()
	binMarshaler   = reflect.TypeFor[encoding.BinaryMarshaler]()
	binUnmarshaler = reflect.TypeFor[encoding.BinaryUnmarshaler]()
)

// maxArrayLen 为类型描述中定长数组长度的上限。
const maxArrayLen = 1 << 24

// binaryEntry 为 BinaryMarshaler 写出时 SerializationInfo 中唯一条目的名字。
const binaryEntry = "data"

type typeName struct {
	pkg, name string
}

// writeType 写出类型 t：已写过的类型只写 TypeRef 与索引。
// 注意：索引在子类型写完之后分配，读取端与此一致。
func (w *writer) writeType(t reflect.Type) error {
	if idx, ok := w.types[t]; ok {
		codec.PutTag(w.out, wire.TypeRef)
		w.out.PutUvarint(idx)
		return nil
	}
	codec.PutTag(w.out, wire.Type)
	if err := w.writeTypeBody(t); err != nil {
		return err
	}
	w.types[t] = uint64(len(w.types))
	return nil
}

func (w *writer) writeTypeBody(t reflect.Type) error {
	if name, ok := codec.BuiltinName(t); ok {
		w.out.PutByte(byte(wire.TypeNamed))
		w.out.PutString("")
		w.out.PutString(name)
		return nil
	}
	if t.Name() != "" {
		if code, ok := codec.CodeOf(t); ok {
			w.out.PutByte(byte(wire.TypeCode))
			w.out.PutUvarint(uint64(code))
			return nil
		}
		if w.opts.strictCodes {
			return merr.WrapErrSerdeUnregisteredType(t, "strict type codes require RegisterTypeCode")
		}
		n := w.s.bindName(t)
		w.out.PutByte(byte(wire.TypeNamed))
		w.out.PutString(n.pkg)
		w.out.PutString(n.name)
		return nil
	}
	switch t.Kind() {
	case reflect.Pointer:
		w.out.PutByte(byte(wire.TypePointer))
		return w.writeType(t.Elem())
	case reflect.Slice:
		w.out.PutByte(byte(wire.TypeSlice))
		return w.writeType(t.Elem())
	case reflect.Array:
		w.out.PutByte(byte(wire.TypeArray))
		w.out.PutUvarint(uint64(t.Len()))
		return w.writeType(t.Elem())
	case reflect.Map:
		w.out.PutByte(byte(wire.TypeMap))
		if err := w.writeType(t.Key()); err != nil {
			return err
		}
		return w.writeType(t.Elem())
	}
	return merr.WrapErrSerdeUnsupportedType(t, "anonymous type has no stream name")
}

// bindName 返回 t 经绑定器转换后的名字，结果按 Serializer 缓存，首次绑定时登记类型以便本进程读取。
func (s *Serializer) bindName(t reflect.Type) typeName {
	if n, ok := s.names.Get(t); ok {
		return n
	}
	codec.RegisterType(t)
	pkg, name := s.opts.binder.BindToName(t)
	n, _ := s.names.GetOrInsert(t, typeName{pkg: pkg, name: name})
	return n
}

// typeEntry 为读取端的类型表条目。t 为 nil 表示名字无法绑定到本进程的类型。
type typeEntry struct {
	t    reflect.Type
	name string
}

func (e typeEntry) pointer() bool { return strings.HasPrefix(e.name, "*") }

func (r *reader) readTypeTagged() (typeEntry, error) {
	pos := r.in.Pos()
	tag, err := codec.ReadTag(r.in)
	if err != nil {
		return typeEntry{}, err
	}
	if tag != wire.Type && tag != wire.TypeRef {
		return typeEntry{}, merr.WrapErrSerdeInvalidFormat(pos, "expected type, got %s", tag)
	}
	return r.readType(tag)
}

func (r *reader) readType(tag wire.Tag) (typeEntry, error) {
	if tag == wire.TypeRef {
		idx, err := r.in.ReadUvarint()
		if err != nil {
			return typeEntry{}, err
		}
		if idx >= uint64(len(r.types)) {
			return typeEntry{}, merr.WrapErrSerdeInvalidRef("type", idx, len(r.types))
		}
		return r.types[idx], nil
	}
	e, err := r.readTypeBody()
	if err != nil {
		return typeEntry{}, err
	}
	r.types = append(r.types, e)
	return e, nil
}

func (r *reader) readTypeBody() (typeEntry, error) {
	pos := r.in.Pos()
	kind, err := r.in.ReadByte()
	if err != nil {
		return typeEntry{}, err
	}
	switch wire.TypeKind(kind) {
	case wire.TypeNamed:
		pkg, err := r.in.ReadString()
		if err != nil {
			return typeEntry{}, err
		}
		name, err := r.in.ReadString()
		if err != nil {
			return typeEntry{}, err
		}
		if pkg == "" {
			t, ok := codec.BuiltinType(name)
			if !ok {
				return typeEntry{}, merr.WrapErrSerdeInvalidFormat(pos, "unknown builtin type %q", name)
			}
			return typeEntry{t: t, name: name}, nil
		}
		e := typeEntry{name: pkg + "." + name}
		if !r.generic {
			e.t, _ = r.opts.binder.BindToType(pkg, name)
		}
		return e, nil
	case wire.TypeCode:
		code, err := r.in.ReadUvarint()
		if err != nil {
			return typeEntry{}, err
		}
		e := typeEntry{name: "#" + strconv.FormatUint(code, 10)}
		if !r.generic && code <= uint64(^uint32(0)) {
			if t, ok := codec.TypeByCode(uint32(code)); ok {
				e.t, e.name = t, codec.QualifiedName(t)
			}
		}
		return e, nil
	case wire.TypePointer, wire.TypeSlice:
		elem, err := r.readTypeTagged()
		if err != nil {
			return typeEntry{}, err
		}
		if wire.TypeKind(kind) == wire.TypePointer {
			return derive(elem, "*", reflect.PointerTo), nil
		}
		return derive(elem, "[]", reflect.SliceOf), nil
	case wire.TypeArray:
		n, err := r.in.ReadUvarint()
		if err != nil {
			return typeEntry{}, err
		}
		if n > maxArrayLen {
			return typeEntry{}, merr.WrapErrSerdeInvalidFormat(pos, "array length %d too large", n)
		}
		elem, err := r.readTypeTagged()
		if err != nil {
			return typeEntry{}, err
		}
		prefix := "[" + strconv.FormatUint(n, 10) + "]"
		return derive(elem, prefix, func(t reflect.Type) reflect.Type { return reflect.ArrayOf(int(n), t) }), nil
	case wire.TypeMap:
		key, err := r.readTypeTagged()
		if err != nil {
			return typeEntry{}, err
		}
		elem, err := r.readTypeTagged()
		if err != nil {
			return typeEntry{}, err
		}
		e := typeEntry{name: "map[" + key.name + "]" + elem.name}
		if key.t != nil && elem.t != nil {
			if !key.t.Comparable() {
				return typeEntry{}, merr.WrapErrSerdeInvalidFormat(pos, "map key %s is not comparable", key.t)
			}
			e.t = reflect.MapOf(key.t, elem.t)
		}
		return e, nil
	}
	return typeEntry{}, merr.WrapErrSerdeInvalidFormat(pos, "unknown type kind %d", kind)
}

func derive(elem typeEntry, prefix string, build func(reflect.Type) reflect.Type) typeEntry {
	e := typeEntry{name: prefix + elem.name}
	if elem.t != nil {
		e.t = build(elem.t)
	}
	return e
}

// typeValue 将类型条目作为值返回；通用模式下以名字代替。
func (r *reader) typeValue(e typeEntry) (reflect.Value, error) {
	if r.generic {
		return reflect.ValueOf(e.name), nil
	}
	if e.t != nil {
		return reflect.ValueOf(e.t), nil
	}
	return reflect.Value{}, merr.WrapErrSerdeUnregisteredType(e.name)
}

// isSeq 报告 t 是否为 iter.Seq 形状的函数类型。
func isSeq(t reflect.Type) bool {
	if t.Kind() != reflect.Func || t.NumIn() != 1 || t.NumOut() != 0 {
		return false
	}
	yield := t.In(0)
	return yield.Kind() == reflect.Func && yield.NumIn() == 1 &&
		yield.NumOut() == 1 && yield.Out(0).Kind() == reflect.Bool
}

// isInfoType 报告 t 是否以 SerializationInfo 写出。只考虑指针与结构体。
func isInfoType(t reflect.Type) bool {
	if t.Kind() != reflect.Pointer && t.Kind() != reflect.Struct {
		return false
	}
	return t.Implements(serializable) || t.Implements(binMarshaler)
}

// primitivePointer 报告 t 是否为指向按值编码的已注册类型的指针，如 *time.Time。
// 这类指针以 Box 包裹原始编码写出，不走 MarshalBinary。
func primitivePointer(t reflect.Type) bool {
	if t.Kind() != reflect.Pointer {
		return false
	}
	info, ok := codec.Lookup(t.Elem())
	return ok && !info.Tracked
}

// isPlainStruct 报告 t 是否以 Object 形式写出。
func isPlainStruct(t reflect.Type) bool {
	if t.Kind() != reflect.Struct {
		return false
	}
	if _, ok := codec.Lookup(t); ok {
		return false
	}
	return !t.Implements(tupleType) && !t.Implements(keyValueType) && !isInfoType(t)
}

// packableInfo 返回静态类型 t 可用于裸编码的原始编码。
func packableInfo(t reflect.Type) *codec.EncoderInfo {
	info, ok := codec.Resolve(t)
	if !ok || !info.Packable || info.Custom {
		return nil
	}
	return info
}
