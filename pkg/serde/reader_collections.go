package serde

import (
	"reflect"

	"github.com/lk2023060901/danmu-garden-serde/pkg/serde/codec"
	"github.com/lk2023060901/danmu-garden-serde/pkg/serde/wire"
	"github.com/lk2023060901/danmu-garden-serde/pkg/util/merr"
)

// readElementTag 读取容器中只标记一次的元素标签。
func (r *reader) readElementTag() (*codec.DecoderInfo, error) {
	pos := r.in.Pos()
	tag, err := codec.ReadTag(r.in)
	if err != nil {
		return nil, err
	}
	info, ok := codec.LookupTag(tag)
	if !ok || !info.Packable() {
		return nil, merr.WrapErrSerdeInvalidFormat(pos, "tag %s cannot be packed", tag)
	}
	return info, nil
}

// legacyStatic 返回旧版格式容器的类型，旧版格式依赖它推断是否写出了元素标签。
func legacyStatic(e typeEntry) (reflect.Type, error) {
	if e.t == nil {
		return nil, merr.WrapErrSerdeUnregisteredType(e.name, "legacy containers require a resolvable type")
	}
	return e.t, nil
}

// containerType 选择要构造的容器类型：流中的类型优先，其次为读取位置的静态类型。
func containerType(e typeEntry, dest reflect.Type) reflect.Type {
	if e.t != nil {
		return e.t
	}
	if dest == nil {
		return nil
	}
	switch dest.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return dest
	}
	return nil
}

// readRawElement 读取一个裸编码元素并转换为 static。
func readRawElement(r *reader, info *codec.DecoderInfo, static reflect.Type) (reflect.Value, error) {
	e, err := info.DecodeRaw(r.in)
	if err != nil {
		return reflect.Value{}, err
	}
	return coerce(e, static)
}

func (r *reader) readCollection(dest reflect.Type) (reflect.Value, error) {
	pos := r.in.Pos()
	raw, err := r.in.ReadUvarint()
	if err != nil {
		return reflect.Value{}, err
	}
	if raw > 0xff {
		return reflect.Value{}, merr.WrapErrSerdeInvalidFormat(pos, "invalid collection flags %#x", raw)
	}
	flags := wire.CollectionFlags(raw)
	var e typeEntry
	if flags.Has(wire.CollectionTyped) {
		if e, err = r.readTypeTagged(); err != nil {
			return reflect.Value{}, err
		}
	}
	ct := containerType(e, dest)
	if ct != nil && ct.Kind() != reflect.Slice && ct.Kind() != reflect.Array && ct.Kind() != reflect.Map {
		return reflect.Value{}, merr.WrapErrSerdeTypeMismatch(e.name, "collection", "collection type")
	}

	var info *codec.DecoderInfo
	switch {
	case flags.Has(wire.CollectionElementTypeTagged):
		info, err = r.readElementTag()
	case !flags.Has(wire.CollectionValueTagged):
		var lt reflect.Type
		if lt, err = legacyStatic(e); err == nil && legacyElementInfo(elemOf(lt)) != nil {
			info, err = r.readElementTag()
		}
	}
	if err != nil {
		return reflect.Value{}, err
	}
	n, err := r.in.ReadLen(1)
	if err != nil {
		return reflect.Value{}, err
	}

	if ct == nil {
		if !r.fallback(dest) {
			return reflect.Value{}, merr.WrapErrSerdeTypeMismatch(e.name, dest, "collection")
		}
		ct = reflect.SliceOf(anyType)
		if info != nil {
			ct = reflect.SliceOf(info.Type)
		}
	}

	var (
		c   reflect.Value
		put func(i int, v reflect.Value)
	)
	static := elemOf(ct)
	switch ct.Kind() {
	case reflect.Map:
		var val reflect.Value
		switch ct.Elem().Kind() {
		case reflect.Bool:
			val = reflect.ValueOf(true).Convert(ct.Elem())
		case reflect.Struct:
			val = reflect.Zero(ct.Elem())
		default:
			return reflect.Value{}, merr.WrapErrSerdeTypeMismatch("collection", ct, "set destination must map to bool or struct{}")
		}
		c = reflect.MakeMapWithSize(ct, n)
		put = func(_ int, v reflect.Value) { c.SetMapIndex(v, val) }
	case reflect.Array:
		if n > ct.Len() {
			return reflect.Value{}, merr.WrapErrSerdeTypeMismatch(n, ct, "too many elements for array")
		}
		c = reflect.New(ct).Elem()
		put = func(i int, v reflect.Value) { c.Index(i).Set(v) }
	default:
		c = reflect.MakeSlice(ct, n, n)
		put = func(i int, v reflect.Value) { c.Index(i).Set(v) }
	}
	if n > 0 {
		r.register(c)
	}

	for i := 0; i < n; i++ {
		switch {
		case info != nil:
			v, err := readRawElement(r, info, static)
			if err != nil {
				return reflect.Value{}, err
			}
			if err := checkKey(ct, v); err != nil {
				return reflect.Value{}, err
			}
			put(i, v)
		case ct.Kind() == reflect.Map:
			v, err := r.decodeValue(static)
			if err != nil {
				return reflect.Value{}, err
			}
			if err := checkKey(ct, v); err != nil {
				return reflect.Value{}, err
			}
			put(i, v)
		default:
			if err := r.readInto(static, func(v reflect.Value) { put(i, v) }); err != nil {
				return reflect.Value{}, err
			}
		}
	}
	return c, nil
}

// elemOf 返回容器的元素类型；map 的元素为键。
func elemOf(t reflect.Type) reflect.Type {
	if t.Kind() == reflect.Map {
		return t.Key()
	}
	return t.Elem()
}

func checkKey(ct reflect.Type, k reflect.Value) error {
	if ct.Kind() != reflect.Map || k.Comparable() {
		return nil
	}
	return merr.WrapErrSerdeTypeMismatch(k.Type(), ct.Key(), "map key is not comparable")
}

func (r *reader) readDictionary(dest reflect.Type) (reflect.Value, error) {
	pos := r.in.Pos()
	raw, err := r.in.ReadUvarint()
	if err != nil {
		return reflect.Value{}, err
	}
	if raw > 0xff {
		return reflect.Value{}, merr.WrapErrSerdeInvalidFormat(pos, "invalid dictionary flags %#x", raw)
	}
	flags := wire.DictionaryFlags(raw)
	var e typeEntry
	if flags.Has(wire.DictionaryTyped) {
		if e, err = r.readTypeTagged(); err != nil {
			return reflect.Value{}, err
		}
	}
	ct := containerType(e, dest)
	if ct != nil && ct.Kind() != reflect.Map {
		ct = nil
	}

	var kinfo, vinfo *codec.DecoderInfo
	if flags&^wire.DictionaryTyped == 0 {
		lt, err := legacyStatic(e)
		if err != nil {
			return reflect.Value{}, err
		}
		if lt.Kind() != reflect.Map {
			return reflect.Value{}, merr.WrapErrSerdeTypeMismatch(e.name, "map", "dictionary type")
		}
		if legacyElementInfo(lt.Key()) != nil {
			if kinfo, err = r.readElementTag(); err != nil {
				return reflect.Value{}, err
			}
		}
		if legacyElementInfo(lt.Elem()) != nil {
			if vinfo, err = r.readElementTag(); err != nil {
				return reflect.Value{}, err
			}
		}
	} else {
		if flags.Has(wire.DictionaryKeyTypeTagged) {
			if kinfo, err = r.readElementTag(); err != nil {
				return reflect.Value{}, err
			}
		}
		if flags.Has(wire.DictionaryValueTypeTagged) {
			if vinfo, err = r.readElementTag(); err != nil {
				return reflect.Value{}, err
			}
		}
	}
	n, err := r.in.ReadLen(2)
	if err != nil {
		return reflect.Value{}, err
	}

	if ct == nil {
		if !r.fallback(dest) {
			return reflect.Value{}, merr.WrapErrSerdeTypeMismatch(e.name, dest, "dictionary")
		}
		return r.readGenericEntries(n, kinfo, vinfo)
	}

	m := reflect.MakeMapWithSize(ct, n)
	if n > 0 {
		r.register(m)
	}
	for i := 0; i < n; i++ {
		var k reflect.Value
		if kinfo != nil {
			k, err = readRawElement(r, kinfo, ct.Key())
		} else {
			k, err = r.decodeValue(ct.Key())
		}
		if err != nil {
			return reflect.Value{}, err
		}
		if err := checkKey(ct, k); err != nil {
			return reflect.Value{}, err
		}
		if vinfo != nil {
			v, err := readRawElement(r, vinfo, ct.Elem())
			if err != nil {
				return reflect.Value{}, err
			}
			m.SetMapIndex(k, v)
			continue
		}
		if err := r.readInto(ct.Elem(), func(v reflect.Value) { m.SetMapIndex(k, v) }); err != nil {
			return reflect.Value{}, err
		}
	}
	return m, nil
}

// readGenericEntries 以键值对列表表示类型未知的字典，键可能不可比较。
func (r *reader) readGenericEntries(n int, kinfo, vinfo *codec.DecoderInfo) (reflect.Value, error) {
	entries := make([]GenericEntry, n)
	v := reflect.ValueOf(entries)
	if n > 0 {
		r.register(v)
	}
	for i := range entries {
		var k reflect.Value
		var err error
		if kinfo != nil {
			k, err = kinfo.DecodeRaw(r.in)
		} else {
			k, err = r.decodeValue(nil)
		}
		if err != nil {
			return reflect.Value{}, err
		}
		entries[i].Key = valueOf(k)
		if vinfo != nil {
			x, err := vinfo.DecodeRaw(r.in)
			if err != nil {
				return reflect.Value{}, err
			}
			entries[i].Value = valueOf(x)
			continue
		}
		if err := r.readInto(nil, func(x reflect.Value) { entries[i].Value = valueOf(x) }); err != nil {
			return reflect.Value{}, err
		}
	}
	return v, nil
}

// readEnumerable 读取以 EndOfList 结束的序列，结果为切片，需要时再由转换构造 iter.Seq。
func (r *reader) readEnumerable(dest reflect.Type) (reflect.Value, error) {
	pos := r.in.Pos()
	raw, err := r.in.ReadUvarint()
	if err != nil {
		return reflect.Value{}, err
	}
	flags := wire.CollectionFlags(raw)
	if raw > 0xff || !flags.Has(wire.CollectionValueTagged) {
		return reflect.Value{}, merr.WrapErrSerdeInvalidFormat(pos, "invalid enumerable flags %#x", raw)
	}
	st := reflect.SliceOf(anyType)
	if flags.Has(wire.CollectionTyped) {
		e, err := r.readTypeTagged()
		if err != nil {
			return reflect.Value{}, err
		}
		if e.t != nil && e.t.Kind() == reflect.Slice {
			st = e.t
		}
	} else if dest != nil {
		switch {
		case dest.Kind() == reflect.Slice:
			st = dest
		case isSeq(dest):
			st = reflect.SliceOf(dest.In(0).In(0))
		}
	}

	mark := len(r.patches)
	var vals []reflect.Value
	for {
		next, err := r.in.PeekUvarint()
		if err != nil {
			return reflect.Value{}, err
		}
		if wire.Tag(next) == wire.EndOfList {
			if _, err := codec.ReadTag(r.in); err != nil {
				return reflect.Value{}, err
			}
			break
		}
		i := len(vals)
		vals = append(vals, reflect.Value{})
		if err := r.readInto(st.Elem(), func(v reflect.Value) { vals[i] = v }); err != nil {
			return reflect.Value{}, err
		}
	}

	s := reflect.MakeSlice(st, len(vals), len(vals))
	fill := func() error {
		for i, v := range vals {
			if v.IsValid() {
				s.Index(i).Set(v)
			}
		}
		return nil
	}
	_ = fill()
	if len(r.patches) > mark {
		r.patches = append(r.patches, fill)
	}
	return s, nil
}

// readArray 读取定长数组：维数与标志、可选类型、可选元素标签、各维长度、行优先的元素。
func (r *reader) readArray(dest reflect.Type) (reflect.Value, error) {
	pos := r.in.Pos()
	raw, err := r.in.ReadUvarint()
	if err != nil {
		return reflect.Value{}, err
	}
	if raw > 0xffff {
		return reflect.Value{}, merr.WrapErrSerdeInvalidFormat(pos, "invalid array flags %#x", raw)
	}
	flags := wire.ArrayFlags(raw)
	rank := flags.Rank()
	if rank < 1 || rank > wire.MaxRank {
		return reflect.Value{}, merr.WrapErrSerdeInvalidFormat(pos, "invalid array rank %d", rank)
	}
	var e typeEntry
	if flags.Has(wire.ArrayTyped) {
		if e, err = r.readTypeTagged(); err != nil {
			return reflect.Value{}, err
		}
	}

	var info *codec.DecoderInfo
	switch {
	case flags.Has(wire.ArrayNoExtraTag):
		info, err = r.readElementTag()
	case !flags.Has(wire.ArrayElementTagged):
		var lt reflect.Type
		if lt, err = legacyStatic(e); err == nil {
			if _, leaf := arrayShape(lt); legacyElementInfo(leaf) != nil {
				info, err = r.readElementTag()
			}
		}
	}
	if err != nil {
		return reflect.Value{}, err
	}

	dims := make([]int, rank)
	total := 1
	for i := range dims {
		d, err := r.in.ReadUvarint()
		if err != nil {
			return reflect.Value{}, err
		}
		if d > uint64(r.in.Remaining()) {
			return reflect.Value{}, merr.WrapErrSerdeInvalidFormat(pos, "array dimension %d exceeds remaining %d bytes", d, r.in.Remaining())
		}
		dims[i] = int(d)
		total *= dims[i]
		if total > r.in.Remaining() {
			return reflect.Value{}, merr.WrapErrSerdeInvalidFormat(pos, "array of %d elements exceeds remaining %d bytes", total, r.in.Remaining())
		}
	}

	at := e.t
	if at == nil && dest != nil && dest.Kind() == reflect.Array {
		at = dest
	}
	if at != nil {
		shape, _ := arrayShape(at)
		if len(shape) < rank || !equalDims(shape[:rank], dims) {
			if e.t != nil {
				return reflect.Value{}, merr.WrapErrSerdeInvalidFormat(pos, "array dimensions %v do not match %s", dims, at)
			}
			at = nil
		}
	}
	if at == nil {
		if !r.generic && dest != nil && dest.Kind() != reflect.Interface && dest.Kind() != reflect.Slice && dest.Kind() != reflect.Array {
			return reflect.Value{}, merr.WrapErrSerdeTypeMismatch(e.name, dest, "array")
		}
		at = anyType
		if info != nil {
			at = info.Type
		}
		for i := rank - 1; i >= 0; i-- {
			at = reflect.ArrayOf(dims[i], at)
		}
	}
	leaf := at
	for i := 0; i < rank; i++ {
		leaf = leaf.Elem()
	}

	arr := reflect.New(at).Elem()
	for _, slot := range flatten(arr, rank, nil) {
		if info != nil {
			v, err := readRawElement(r, info, leaf)
			if err != nil {
				return reflect.Value{}, err
			}
			slot.Set(v)
			continue
		}
		if err := r.readInto(leaf, slot.Set); err != nil {
			return reflect.Value{}, err
		}
	}
	return arr, nil
}

func equalDims(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (r *reader) readTypedFlag() (typeEntry, error) {
	pos := r.in.Pos()
	flag, err := r.in.ReadUvarint()
	if err != nil {
		return typeEntry{}, err
	}
	switch flag {
	case 0:
		return typeEntry{}, nil
	case 1:
		return r.readTypeTagged()
	}
	return typeEntry{}, merr.WrapErrSerdeInvalidFormat(pos, "invalid flag %d", flag)
}

// readTuple 读取元组；目标类型未知时以 []any 表示。
func (r *reader) readTuple(dest reflect.Type) (reflect.Value, error) {
	e, err := r.readTypedFlag()
	if err != nil {
		return reflect.Value{}, err
	}
	arity, err := r.in.ReadLen(1)
	if err != nil {
		return reflect.Value{}, err
	}
	tt := e.t
	if tt == nil {
		tt = dest
	}
	if tt != nil && tt.Kind() == reflect.Struct && tt.Implements(tupleType) && tt.NumField() == arity {
		tv := reflect.New(tt).Elem()
		for i := 0; i < arity; i++ {
			if err := r.readInto(tt.Field(i).Type, tv.Field(i).Set); err != nil {
				return reflect.Value{}, err
			}
		}
		return tv, nil
	}
	vals := make([]any, arity)
	for i := range vals {
		if err := r.readInto(nil, func(v reflect.Value) { vals[i] = valueOf(v) }); err != nil {
			return reflect.Value{}, err
		}
	}
	return reflect.ValueOf(vals), nil
}

func (r *reader) readKeyValue(dest reflect.Type) (reflect.Value, error) {
	e, err := r.readTypedFlag()
	if err != nil {
		return reflect.Value{}, err
	}
	kt := e.t
	if kt == nil {
		kt = dest
	}
	if kt == nil || kt.Kind() != reflect.Struct || !kt.Implements(keyValueType) {
		kt = reflect.TypeFor[KeyValue[any, any]]()
	}
	kv := reflect.New(kt).Elem()
	for i := 0; i < 2; i++ {
		if err := r.readInto(kt.Field(i).Type, kv.Field(i).Set); err != nil {
			return reflect.Value{}, err
		}
	}
	return kv, nil
}
