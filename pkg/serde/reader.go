package serde

import (
	"encoding"
	"reflect"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/lk2023060901/danmu-garden-serde/pkg/serde/binio"
	"github.com/lk2023060901/danmu-garden-serde/pkg/serde/codec"
	"github.com/lk2023060901/danmu-garden-serde/pkg/serde/schema"
	"github.com/lk2023060901/danmu-garden-serde/pkg/serde/wire"
	"github.com/lk2023060901/danmu-garden-serde/pkg/util/merr"
)

// pendingEntity 为延迟解析的实体，读取结束后由补丁回填。
type pendingEntity struct {
	resolve func() (any, error)
}

// reader 为单次读取的状态。
//
// 说明：
//   - 对象表的登记时机与写出端一致：构造完成、读取子值之前；
//   - patches 在整个对象图读取完成后按追加顺序执行，用于回填延迟实体以及依赖它们的值拷贝。
type reader struct {
	s    *Serializer
	opts *options
	in   *binio.Reader

	objects []reflect.Value
	strings []string
	types   []typeEntry
	schemas [][]string
	patches []func() error

	depth   int
	generic bool
}

func newReader(s *Serializer, in *binio.Reader) *reader {
	return &reader{s: s, opts: s.opts, in: in}
}

func (r *reader) register(v reflect.Value) int {
	r.objects = append(r.objects, v)
	return len(r.objects) - 1
}

// readRoot 读取一个完整的对象图并执行全部补丁。
func (r *reader) readRoot(dest reflect.Type) (reflect.Value, error) {
	var out reflect.Value
	if err := r.readInto(dest, func(v reflect.Value) { out = v }); err != nil {
		return reflect.Value{}, err
	}
	if err := r.complete(); err != nil {
		return reflect.Value{}, err
	}
	return out, nil
}

func (r *reader) complete() error {
	for i := 0; i < len(r.patches); i++ {
		if err := r.patches[i](); err != nil {
			return err
		}
	}
	return nil
}

// readInto 读取一个值，转换为 dest 后交给 set。
// 值为延迟实体时 set 推迟到补丁阶段；值的子树中存在延迟实体时，补丁阶段再转换并 set 一次，
// 使转换产生的拷贝也能看到回填后的内容。
func (r *reader) readInto(dest reflect.Type, set func(reflect.Value)) error {
	mark := len(r.patches)
	raw, err := r.decode(dest)
	if err != nil {
		return err
	}
	if raw.IsValid() && raw.Type() == pendingType {
		p := raw.Interface().(*pendingEntity)
		r.patches = append(r.patches, func() error {
			x, err := p.resolve()
			if err != nil {
				return merr.WrapErrSerdeCallback("DeserializeEntity", err)
			}
			v, err := coerce(reflect.ValueOf(x), dest)
			if err != nil {
				return err
			}
			set(v)
			return nil
		})
		return nil
	}
	v, err := coerce(raw, dest)
	if err != nil {
		return err
	}
	set(v)
	if len(r.patches) > mark {
		r.patches = append(r.patches, func() error {
			v, err := coerce(raw, dest)
			if err != nil {
				return err
			}
			set(v)
			return nil
		})
	}
	return nil
}

// decodeValue 读取并转换一个不允许延迟实体的值，如 map 的键与 SerializationInfo 的条目。
func (r *reader) decodeValue(dest reflect.Type) (reflect.Value, error) {
	v, err := r.decode(dest)
	if err != nil {
		return reflect.Value{}, err
	}
	if v.IsValid() && v.Type() == pendingType {
		return reflect.Value{}, merr.WrapErrOperationNotSupported("deferred entity", "not allowed in map keys or serialization info")
	}
	return coerce(v, dest)
}

// decode 读取一个带标签的值，返回其流中的自然类型，dest 只用于推断未写出的类型。
func (r *reader) decode(dest reflect.Type) (reflect.Value, error) {
	if dest == nil {
		dest = anyType
	}
	pos := r.in.Pos()
	tag, err := codec.ReadTag(r.in)
	if err != nil {
		return reflect.Value{}, err
	}
	if tag.IsStructural() {
		r.depth++
		defer func() { r.depth-- }()
		if r.depth > r.opts.maxDepth {
			return reflect.Value{}, merr.WrapErrSerdeDepthExceeded(r.opts.maxDepth)
		}
	}

	switch {
	case tag == wire.Null:
		return reflect.Value{}, nil
	case tag == wire.String:
		s, err := r.in.ReadString()
		if err != nil {
			return reflect.Value{}, err
		}
		r.strings = append(r.strings, s)
		return reflect.ValueOf(s), nil
	case tag == wire.StringEmpty:
		return reflect.ValueOf(""), nil
	case tag == wire.Type:
		e, err := r.readType(tag)
		if err != nil {
			return reflect.Value{}, err
		}
		return r.typeValue(e)
	case tag.IsArray():
		return r.readPacked(pos, tag)
	case tag.IsPrimitive(), tag.IsCustom():
		return r.readPrimitive(pos, tag)
	}

	switch tag {
	case wire.TypeRef:
		e, err := r.readType(tag)
		if err != nil {
			return reflect.Value{}, err
		}
		return r.typeValue(e)
	case wire.StringRef:
		idx, err := r.in.ReadUvarint()
		if err != nil {
			return reflect.Value{}, err
		}
		if idx >= uint64(len(r.strings)) {
			return reflect.Value{}, merr.WrapErrSerdeInvalidRef("string", idx, len(r.strings))
		}
		return reflect.ValueOf(r.strings[idx]), nil
	case wire.ObjectRef:
		idx, err := r.in.ReadUvarint()
		if err != nil {
			return reflect.Value{}, err
		}
		if idx >= uint64(len(r.objects)) {
			return reflect.Value{}, merr.WrapErrSerdeInvalidRef("object", idx, len(r.objects))
		}
		if r.generic {
			return reflect.ValueOf(GenericRef{Index: int(idx)}), nil
		}
		return r.objects[idx], nil
	case wire.Object:
		return r.readObject(dest)
	case wire.Box:
		return r.readBox(dest)
	case wire.SerializationInfo:
		return r.readInfo(dest)
	case wire.TypedValue:
		return r.readTypedValue(dest)
	case wire.EntityRef:
		return r.readEntity(dest)
	case wire.Collection:
		return r.readCollection(dest)
	case wire.Dictionary:
		return r.readDictionary(dest)
	case wire.Enumerable:
		return r.readEnumerable(dest)
	case wire.Array:
		return r.readArray(dest)
	case wire.Tuple:
		return r.readTuple(dest)
	case wire.KeyValuePair:
		return r.readKeyValue(dest)
	}
	return reflect.Value{}, merr.WrapErrSerdeInvalidFormat(pos, "unexpected tag %s", tag)
}

func (r *reader) readPrimitive(pos int, tag wire.Tag) (reflect.Value, error) {
	info, ok := codec.LookupTag(tag)
	if !ok {
		if tag.IsCustom() {
			return reflect.Value{}, merr.WrapErrSerdeUnregisteredType("custom type code " + strconv.FormatUint(uint64(tag.CustomCode()), 10))
		}
		return reflect.Value{}, merr.WrapErrSerdeInvalidFormat(pos, "unknown tag %s", tag)
	}
	v, err := info.Decode(r.in, tag)
	if err != nil {
		return reflect.Value{}, err
	}
	if info.Tracked {
		r.register(v)
	}
	return v, nil
}

// readPacked 读取元素类型只标记一次的原始类型数组。
func (r *reader) readPacked(pos int, tag wire.Tag) (reflect.Value, error) {
	if tag.Element() == wire.Uint8 {
		b, err := r.in.ReadLenBytes()
		if err != nil {
			return reflect.Value{}, err
		}
		v := reflect.ValueOf(b)
		if len(b) > 0 {
			r.register(v)
		}
		return v, nil
	}
	info, ok := codec.LookupTag(tag.Element())
	if !ok || !info.Packable() {
		return reflect.Value{}, merr.WrapErrSerdeInvalidFormat(pos, "tag %s cannot be packed", tag.Element())
	}
	n, err := r.in.ReadLen(1)
	if err != nil {
		return reflect.Value{}, err
	}
	s := reflect.MakeSlice(reflect.SliceOf(info.Type), n, n)
	if n > 0 {
		r.register(s)
	}
	for i := 0; i < n; i++ {
		e, err := info.DecodeRaw(r.in)
		if err != nil {
			return reflect.Value{}, err
		}
		s.Index(i).Set(e)
	}
	return s, nil
}

// fallback 报告类型无法绑定时是否以通用表示代替。
func (r *reader) fallback(dest reflect.Type) bool {
	return r.generic || dest == nil || dest.Kind() == reflect.Interface && dest.NumMethod() == 0
}

func (r *reader) readSchema() ([]string, error) {
	pos := r.in.Pos()
	tag, err := codec.ReadTag(r.in)
	if err != nil {
		return nil, err
	}
	switch tag {
	case wire.TypeSchema:
		names, err := schema.ParseHeader(r.in)
		if err != nil {
			return nil, err
		}
		r.schemas = append(r.schemas, names)
		return names, nil
	case wire.TypeSchemaRef:
		idx, err := r.in.ReadUvarint()
		if err != nil {
			return nil, err
		}
		if idx >= uint64(len(r.schemas)) {
			return nil, merr.WrapErrSerdeInvalidRef("schema", idx, len(r.schemas))
		}
		return r.schemas[idx], nil
	}
	return nil, merr.WrapErrSerdeInvalidFormat(pos, "expected type schema, got %s", tag)
}

// newObject 为流中的结构体类型构造实例，返回结构体指针；无法构造且允许通用表示时返回零值。
//
// 说明：依次尝试流中的类型、InstanceResolver、读取位置的静态类型。
func (r *reader) newObject(e typeEntry, dest reflect.Type) (reflect.Value, error) {
	if t := e.t; t != nil {
		if t.Kind() == reflect.Pointer {
			t = t.Elem()
		}
		if t.Kind() != reflect.Struct {
			return reflect.Value{}, merr.WrapErrSerdeTypeMismatch(e.name, "struct", "object type")
		}
		return reflect.New(t), nil
	}
	if r.generic {
		return reflect.Value{}, nil
	}
	name := strings.TrimPrefix(e.name, "*")
	if r.opts.instances != nil {
		x, err := r.opts.instances.ResolveInstance(name, dest)
		if err != nil {
			return reflect.Value{}, merr.WrapErrSerdeInstantiation(name, err)
		}
		if x != nil {
			v := reflect.ValueOf(x)
			if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
				return reflect.Value{}, merr.WrapErrSerdeInstantiation(name,
					errors.Newf("resolver returned %T, want a struct pointer", x))
			}
			return v, nil
		}
	}
	if dest != nil {
		t := dest
		if t.Kind() == reflect.Pointer {
			t = t.Elem()
		}
		if isPlainStruct(t) {
			return reflect.New(t), nil
		}
	}
	if r.fallback(dest) {
		return reflect.Value{}, nil
	}
	return reflect.Value{}, merr.WrapErrSerdeUnregisteredType(name)
}

func (r *reader) readObject(dest reflect.Type) (reflect.Value, error) {
	e, err := r.readTypeTagged()
	if err != nil {
		return reflect.Value{}, err
	}
	names, err := r.readSchema()
	if err != nil {
		return reflect.Value{}, err
	}
	obj, err := r.newObject(e, dest)
	if err != nil {
		return reflect.Value{}, err
	}
	tracked := e.pointer()
	if !obj.IsValid() {
		return r.readGenericObject(e, names, tracked)
	}
	if tracked {
		r.register(obj)
	}

	sv := obj.Elem()
	st := sv.Type()
	d, err := schema.DescriptorOf(st)
	if err != nil {
		return reflect.Value{}, err
	}
	var rename func(reflect.Type, string) (string, bool)
	if r.opts.renames != nil {
		rename = r.opts.renames.ResolvePropertyName
	}
	index := d.Map(names, rename)

	target := obj.Interface()
	if h, ok := target.(BeforeDeserializer); ok {
		if err := h.BeforeDeserialize(); err != nil {
			return reflect.Value{}, merr.WrapErrSerdeCallback("BeforeDeserialize", err)
		}
	}
	for i, name := range names {
		if index[i] < 0 {
			if err := r.dropProperty(target, st, name); err != nil {
				return reflect.Value{}, err
			}
			continue
		}
		p := d.Properties[index[i]]
		if err := r.readInto(p.Type, func(v reflect.Value) { p.Set(sv, v) }); err != nil {
			return reflect.Value{}, errors.Wrapf(err, "property %s.%s", st.Name(), name)
		}
	}
	if h, ok := target.(AfterDeserializer); ok {
		if err := h.AfterDeserialize(); err != nil {
			return reflect.Value{}, merr.WrapErrSerdeCallback("AfterDeserialize", err)
		}
	}
	if tracked {
		return obj, nil
	}
	return sv, nil
}

// dropProperty 读取一个无法映射的属性值，交给 ObsoletePropertySink 或丢弃。
func (r *reader) dropProperty(obj any, st reflect.Type, name string) error {
	v, err := r.decode(nil)
	if err != nil {
		return err
	}
	if r.opts.obsolete == nil {
		r.s.Logger().RatedDebug(1, "drop unknown property",
			zap.Stringer("type", st), zap.String("property", name))
		return nil
	}
	var x any
	if v.IsValid() && v.Type() != pendingType {
		x = v.Interface()
	}
	r.opts.obsolete.ObsoleteProperty(obj, name, x)
	return nil
}

func (r *reader) readGenericObject(e typeEntry, names []string, tracked bool) (reflect.Value, error) {
	g := &GenericObject{ID: -1, Type: e.name, Fields: make([]GenericField, len(names))}
	v := reflect.ValueOf(g)
	if tracked {
		g.ID = r.register(v)
	}
	for i, name := range names {
		g.Fields[i].Name = name
		if err := r.readInto(nil, func(x reflect.Value) { g.Fields[i].Value = valueOf(x) }); err != nil {
			return reflect.Value{}, err
		}
	}
	return v, nil
}

func valueOf(v reflect.Value) any {
	if !v.IsValid() {
		return nil
	}
	return v.Interface()
}

// readBox 读取指向非结构体的指针。类型未知时先占位，读完后以内部值替换。
func (r *reader) readBox(dest reflect.Type) (reflect.Value, error) {
	pos := r.in.Pos()
	flag, err := r.in.ReadUvarint()
	if err != nil {
		return reflect.Value{}, err
	}
	var pt reflect.Type
	switch flag {
	case 0:
	case 1:
		e, err := r.readTypeTagged()
		if err != nil {
			return reflect.Value{}, err
		}
		pt = e.t
	default:
		return reflect.Value{}, merr.WrapErrSerdeInvalidFormat(pos, "invalid box flag %d", flag)
	}
	if pt == nil && dest != nil && dest.Kind() == reflect.Pointer {
		pt = dest
	}
	if pt == nil || pt.Kind() != reflect.Pointer {
		idx := r.register(reflect.Value{})
		v, err := r.decodeValue(nil)
		if err != nil {
			return reflect.Value{}, err
		}
		r.objects[idx] = v
		return v, nil
	}
	p := reflect.New(pt.Elem())
	r.register(p)
	if err := r.readInto(pt.Elem(), p.Elem().Set); err != nil {
		return reflect.Value{}, err
	}
	return p, nil
}

// readInfo 读取 SerializationInfo 并交给 Deserializable 或 BinaryUnmarshaler 还原。
func (r *reader) readInfo(dest reflect.Type) (reflect.Value, error) {
	e, err := r.readTypeTagged()
	if err != nil {
		return reflect.Value{}, err
	}
	n, err := r.in.ReadLen(2)
	if err != nil {
		return reflect.Value{}, err
	}
	tracked := e.pointer()
	if e.t == nil {
		if !r.fallback(dest) {
			return reflect.Value{}, merr.WrapErrSerdeUnregisteredType(e.name)
		}
		g := &GenericObject{ID: -1, Type: e.name, Fields: make([]GenericField, n)}
		if tracked {
			g.ID = r.register(reflect.ValueOf(g))
		}
		for i := range g.Fields {
			if g.Fields[i].Name, err = r.in.ReadString(); err != nil {
				return reflect.Value{}, err
			}
			v, err := r.decodeValue(nil)
			if err != nil {
				return reflect.Value{}, err
			}
			g.Fields[i].Value = valueOf(v)
		}
		return reflect.ValueOf(g), nil
	}

	et := e.t
	if et.Kind() == reflect.Pointer {
		et = et.Elem()
	}
	obj := reflect.New(et)
	if tracked {
		r.register(obj)
	}
	info := &SerializationInfo{}
	for i := 0; i < n; i++ {
		name, err := r.in.ReadString()
		if err != nil {
			return reflect.Value{}, err
		}
		v, err := r.decodeValue(nil)
		if err != nil {
			return reflect.Value{}, err
		}
		info.Add(name, valueOf(v))
	}
	switch x := obj.Interface().(type) {
	case Deserializable:
		if err := x.SetObjectData(info); err != nil {
			return reflect.Value{}, merr.WrapErrSerdeCallback("SetObjectData", err)
		}
	case encoding.BinaryUnmarshaler:
		data, err := InfoValue[[]byte](info, binaryEntry)
		if err != nil {
			return reflect.Value{}, err
		}
		if err := x.UnmarshalBinary(data); err != nil {
			return reflect.Value{}, merr.WrapErrSerdeCallback("UnmarshalBinary", err)
		}
	default:
		return reflect.Value{}, merr.WrapErrSerdeTypeMismatch(e.name, "Deserializable", "serialization info target")
	}
	if tracked {
		return obj, nil
	}
	return obj.Elem(), nil
}

// readTypedValue 读取带类型的值并转换为该类型；类型无法绑定时返回内部值。
func (r *reader) readTypedValue(dest reflect.Type) (reflect.Value, error) {
	e, err := r.readTypeTagged()
	if err != nil {
		return reflect.Value{}, err
	}
	inner := dest
	if e.t != nil {
		inner = e.t
	}
	v, err := r.decode(inner)
	if err != nil {
		return reflect.Value{}, err
	}
	if e.t == nil || v.IsValid() && v.Type() == pendingType {
		return v, nil
	}
	return coerce(v, e.t)
}

// readEntity 读取实体 token 并交给 EntityBinder 解析。
func (r *reader) readEntity(dest reflect.Type) (reflect.Value, error) {
	token, err := r.decodeValue(nil)
	if err != nil {
		return reflect.Value{}, err
	}
	if r.generic {
		return reflect.ValueOf(GenericEntity{Token: valueOf(token)}), nil
	}
	if r.opts.entities == nil {
		return reflect.Value{}, merr.WrapErrParameterMissing("EntityBinder", "stream contains entity references")
	}
	res, err := r.opts.entities.DeserializeEntity(valueOf(token), dest)
	if err != nil {
		return reflect.Value{}, merr.WrapErrSerdeCallback("DeserializeEntity", err)
	}
	if res.IsDeferred() {
		return reflect.ValueOf(&pendingEntity{resolve: res.resolve}), nil
	}
	return reflect.ValueOf(res.value), nil
}
