package serde

import (
	"encoding"
	"reflect"

	"github.com/lk2023060901/danmu-garden-serde/pkg/serde/binio"
	"github.com/lk2023060901/danmu-garden-serde/pkg/serde/codec"
	"github.com/lk2023060901/danmu-garden-serde/pkg/serde/schema"
	"github.com/lk2023060901/danmu-garden-serde/pkg/serde/wire"
	"github.com/lk2023060901/danmu-garden-serde/pkg/util/merr"
)

// refKey 标识对象表中的一个引用值。
// slice 需要同时比较长度，类型用于区分同一地址上的结构体与其首字段。
type refKey struct {
	ptr uintptr
	n   int
	t   reflect.Type
}

// writer 为单次写出的状态，引用表只在本次调用内有效。
type writer struct {
	s    *Serializer
	opts *options
	out  binio.Writer

	objects map[refKey]uint64
	strings map[string]uint64
	types   map[reflect.Type]uint64
	schemas map[reflect.Type]uint64

	depth    int
	inEntity bool
}

func newWriter(s *Serializer, out binio.Writer) *writer {
	return &writer{
		s:       s,
		opts:    s.opts,
		out:     out,
		objects: make(map[refKey]uint64),
		strings: make(map[string]uint64),
		types:   make(map[reflect.Type]uint64),
		schemas: make(map[reflect.Type]uint64),
	}
}

func (w *writer) legacy() bool { return w.opts.format == FormatLegacy }

// writeValue 写出 v，declared 为写出位置的静态类型。
//
// 说明：
//   - 接口中的值按运行时类型写出，必要时附带类型；
//   - 指针、非空 map、非空 slice 在写出前登记到对象表，再次出现时只写 ObjectRef；
//   - 写出顺序必须与读取端逐一对应，对象表索引才能对齐。
func (w *writer) writeValue(declared reflect.Type, v reflect.Value) error {
	w.depth++
	defer func() { w.depth-- }()
	if w.depth > w.opts.maxDepth {
		return merr.WrapErrSerdeDepthExceeded(w.opts.maxDepth)
	}

	for v.IsValid() && v.Kind() == reflect.Interface {
		if v.IsNil() {
			v = reflect.Value{}
			break
		}
		v = v.Elem()
	}
	if !v.IsValid() || nilable(v) && v.IsNil() {
		codec.PutTag(w.out, wire.Null)
		return nil
	}
	t := v.Type()

	if w.opts.entities != nil && !w.inEntity && entityCandidate(declared, t) {
		if token, ok := w.opts.entities.SerializeEntity(w.depth == 1, declared, v.Interface()); ok {
			codec.PutTag(w.out, wire.EntityRef)
			w.inEntity = true
			defer func() { w.inEntity = false }()
			return w.writeValue(anyType, reflect.ValueOf(token))
		}
	}

	if t == stringType {
		w.writeString(v.String())
		return nil
	}
	if info, ok := codec.Lookup(t); ok {
		if info.Tracked && w.track(v) {
			return nil
		}
		return info.Encode(w.out, v, &w.opts.settings)
	}
	if t.Implements(typeType) {
		return w.writeType(v.Interface().(reflect.Type))
	}
	if info, ok := codec.Resolve(t); ok {
		return w.writeNamedPrimitive(declared, info, v)
	}

	switch {
	case t.Kind() == reflect.Array:
		return w.writeArray(declared, v)
	case t.Kind() == reflect.Struct && t.Implements(keyValueType):
		return w.writeKeyValue(declared, v)
	case t.Kind() == reflect.Struct && t.Implements(tupleType):
		return w.writeTuple(declared, v)
	}

	if tracked(v) && w.track(v) {
		return nil
	}

	switch t.Kind() {
	case reflect.Pointer, reflect.Struct:
		if primitivePointer(t) {
			return w.writeBox(declared, v)
		}
		if isInfoType(t) {
			return w.writeInfo(v)
		}
		if t.Kind() == reflect.Struct {
			return w.writeObject(v, reflect.Value{})
		}
		if isPlainStruct(t.Elem()) {
			return w.writeObject(v.Elem(), v)
		}
		return w.writeBox(declared, v)
	case reflect.Map:
		if t.Elem() == emptyStruct {
			return w.writeSet(declared, v)
		}
		return w.writeDictionary(declared, v)
	case reflect.Slice:
		if t.Elem() == reflect.TypeFor[byte]() && (t == bytesType || declared == t) {
			codec.PutTag(w.out, wire.Uint8.Packed())
			w.out.PutLenBytes(v.Bytes())
			return nil
		}
		return w.writeCollection(declared, v)
	case reflect.Func:
		if isSeq(t) {
			return w.writeEnumerable(declared, v)
		}
	}
	return merr.WrapErrSerdeUnsupportedType(t)
}

func nilable(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return true
	}
	return false
}

func entityCandidate(declared, t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice:
		return true
	}
	return declared == nil || declared.Kind() == reflect.Interface
}

// tracked 报告 v 是否参与对象表，空容器不参与。
func tracked(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Pointer:
		return true
	case reflect.Map, reflect.Slice:
		return v.Len() > 0
	}
	return false
}

// track 在对象表中查找 v：已存在时写出 ObjectRef 并返回 true，否则登记后返回 false。
func (w *writer) track(v reflect.Value) bool {
	key := refKey{ptr: v.Pointer(), t: v.Type()}
	// 命名指针类型（type NodePtr *Node）与 *Node 指向同一对象
	if key.t.Kind() == reflect.Pointer && key.t.Name() != "" {
		key.t = reflect.PointerTo(key.t.Elem())
	}
	if v.Kind() == reflect.Slice {
		key.n = v.Len()
	}
	if idx, ok := w.objects[key]; ok {
		codec.PutTag(w.out, wire.ObjectRef)
		w.out.PutUvarint(idx)
		return true
	}
	w.objects[key] = uint64(len(w.objects))
	return false
}

func (w *writer) writeString(s string) {
	if s == "" {
		codec.PutTag(w.out, wire.StringEmpty)
		return
	}
	if idx, ok := w.strings[s]; ok {
		codec.PutTag(w.out, wire.StringRef)
		w.out.PutUvarint(idx)
		return
	}
	w.strings[s] = uint64(len(w.strings))
	codec.PutTag(w.out, wire.String)
	w.out.PutString(s)
}

// writeNamedPrimitive 写出命名的基础类型（如 type Color int）。
// 静态类型与运行时类型不同时写出 TypedValue 与类型，以便读取端还原命名类型。
func (w *writer) writeNamedPrimitive(declared reflect.Type, info *codec.EncoderInfo, v reflect.Value) error {
	t := v.Type()
	if declared != t {
		codec.PutTag(w.out, wire.TypedValue)
		if err := w.writeType(t); err != nil {
			return err
		}
	}
	if t.Kind() == reflect.String {
		w.writeString(v.String())
		return nil
	}
	return info.Encode(w.out, v, &w.opts.settings)
}

// writeObject 写出结构体：Object、运行时类型、模式头（或引用）、各属性。
// sv 为结构体值，ptr 为指向它的指针（写出值类型时为零值）。
func (w *writer) writeObject(sv, ptr reflect.Value) error {
	st := sv.Type()
	d, err := schema.DescriptorOf(st)
	if err != nil {
		return err
	}
	runtime := st
	if ptr.IsValid() {
		runtime = reflect.PointerTo(st)
		ptr = ptr.Convert(runtime)
	}
	codec.PutTag(w.out, wire.Object)
	if err := w.writeType(runtime); err != nil {
		return err
	}
	w.writeSchema(d)

	hooked := reflect.PointerTo(st)
	var target any
	if hooked.Implements(beforeSerializer) || hooked.Implements(afterSerializer) {
		if !ptr.IsValid() {
			ptr = reflect.New(st)
			ptr.Elem().Set(sv)
			sv = ptr.Elem()
		}
		target = ptr.Interface()
	}
	if h, ok := target.(BeforeSerializer); ok {
		if err := h.BeforeSerialize(); err != nil {
			return merr.WrapErrSerdeCallback("BeforeSerialize", err)
		}
	}
	if err := d.WriteAll(w.out, sv, &w.opts.settings, w.writeValue); err != nil {
		return err
	}
	if h, ok := target.(AfterSerializer); ok {
		if err := h.AfterSerialize(); err != nil {
			return merr.WrapErrSerdeCallback("AfterSerialize", err)
		}
	}
	return nil
}

func (w *writer) writeSchema(d *schema.Descriptor) {
	if idx, ok := w.schemas[d.Type]; ok {
		codec.PutTag(w.out, wire.TypeSchemaRef)
		w.out.PutUvarint(idx)
		return
	}
	w.schemas[d.Type] = uint64(len(w.schemas))
	codec.PutTag(w.out, wire.TypeSchema)
	w.out.PutBytes(d.Header())
}

// writeBox 写出指向非结构体的指针。
func (w *writer) writeBox(declared reflect.Type, v reflect.Value) error {
	t := v.Type()
	codec.PutTag(w.out, wire.Box)
	if declared != t {
		w.out.PutUvarint(1)
		if err := w.writeType(t); err != nil {
			return err
		}
	} else {
		w.out.PutUvarint(0)
	}
	return w.writeValue(t.Elem(), v.Elem())
}

// writeInfo 以 SerializationInfo 写出 Serializable 或 BinaryMarshaler，类型总是写出。
func (w *writer) writeInfo(v reflect.Value) error {
	t := v.Type()
	info := &SerializationInfo{}
	switch x := v.Interface().(type) {
	case Serializable:
		if err := x.GetObjectData(info); err != nil {
			return merr.WrapErrSerdeCallback("GetObjectData", err)
		}
	case encoding.BinaryMarshaler:
		data, err := x.MarshalBinary()
		if err != nil {
			return merr.WrapErrSerdeCallback("MarshalBinary", err)
		}
		info.Add(binaryEntry, data)
	}
	codec.PutTag(w.out, wire.SerializationInfo)
	if err := w.writeType(t); err != nil {
		return err
	}
	w.out.PutUvarint(uint64(info.Len()))
	for i, name := range info.names {
		w.out.PutString(name)
		if err := w.writeValue(anyType, reflect.ValueOf(info.values[i])); err != nil {
			return err
		}
	}
	return nil
}

var (
	beforeSerializer = reflect.TypeFor[BeforeSerializer]()
	afterSerializer  = reflect.TypeFor[AfterSerializer]()
)
