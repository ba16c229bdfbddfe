package serde

import (
	"cmp"
	"reflect"
	"slices"

	"github.com/lk2023060901/danmu-garden-serde/pkg/serde/codec"
	"github.com/lk2023060901/danmu-garden-serde/pkg/serde/wire"
)

// elementInfo 决定一组元素能否只写一次标签：
// 静态类型为可裸编码的原始类型，或静态类型为接口且全部元素为同一可裸编码的原始类型。
func (w *writer) elementInfo(static reflect.Type, n int, at func(int) reflect.Value) *codec.EncoderInfo {
	if w.legacy() {
		return legacyElementInfo(static)
	}
	if static.Kind() != reflect.Interface {
		return packableInfo(static)
	}
	if n == 0 {
		return nil
	}
	var common reflect.Type
	for i := 0; i < n; i++ {
		e := at(i)
		if e.IsNil() {
			return nil
		}
		if et := e.Elem().Type(); common == nil {
			common = et
		} else if et != common {
			return nil
		}
	}
	info, ok := codec.Lookup(common)
	if !ok || !info.Packable || info.Custom {
		return nil
	}
	return info
}

// writeElement 写出一个元素：info 非空时为裸编码，否则为带标签的完整值。
func (w *writer) writeElement(info *codec.EncoderInfo, static reflect.Type, e reflect.Value) error {
	if info == nil {
		return w.writeValue(static, e)
	}
	if e.Kind() == reflect.Interface {
		e = e.Elem()
	}
	info.EncodeRaw(w.out, e, &w.opts.settings)
	return nil
}

func (w *writer) collectionFlags(declared, t reflect.Type, info *codec.EncoderInfo) wire.CollectionFlags {
	var flags wire.CollectionFlags
	if declared != t || w.legacy() {
		flags |= wire.CollectionTyped
	}
	switch {
	case w.legacy():
	case info != nil:
		flags |= wire.CollectionElementTypeTagged
	default:
		flags |= wire.CollectionValueTagged
	}
	return flags
}

// writeCollectionHeader 写出 Collection 的标志、可选类型、可选元素标签与元素个数。
func (w *writer) writeCollectionHeader(flags wire.CollectionFlags, t reflect.Type, info *codec.EncoderInfo, n int) error {
	codec.PutTag(w.out, wire.Collection)
	w.out.PutUvarint(uint64(flags))
	if flags.Has(wire.CollectionTyped) {
		if err := w.writeType(t); err != nil {
			return err
		}
	}
	if info != nil {
		codec.PutTag(w.out, info.Tag)
	}
	w.out.PutUvarint(uint64(n))
	return nil
}

func (w *writer) writeCollection(declared reflect.Type, v reflect.Value) error {
	t := v.Type()
	n := v.Len()
	info := w.elementInfo(t.Elem(), n, v.Index)
	if err := w.writeCollectionHeader(w.collectionFlags(declared, t, info), t, info, n); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		if err := w.writeElement(info, t.Elem(), v.Index(i)); err != nil {
			return err
		}
	}
	return nil
}

// writeSet 将 map[K]struct{} 作为带 Set 标志的 Collection 写出，元素为键。
func (w *writer) writeSet(declared reflect.Type, v reflect.Value) error {
	t := v.Type()
	keys := sortedKeys(v)
	info := w.elementInfo(t.Key(), len(keys), func(i int) reflect.Value { return keys[i] })
	flags := w.collectionFlags(declared, t, info) | wire.CollectionSet
	if err := w.writeCollectionHeader(flags, t, info, len(keys)); err != nil {
		return err
	}
	for _, k := range keys {
		if err := w.writeElement(info, t.Key(), k); err != nil {
			return err
		}
	}
	return nil
}

// writeDictionary 写出 map：标志、可选类型、可选键/值标签、个数、依次的键值。
func (w *writer) writeDictionary(declared reflect.Type, v reflect.Value) error {
	t := v.Type()
	keys := sortedKeys(v)
	values := make([]reflect.Value, len(keys))
	for i, k := range keys {
		values[i] = v.MapIndex(k)
	}
	kinfo := w.elementInfo(t.Key(), len(keys), func(i int) reflect.Value { return keys[i] })
	vinfo := w.elementInfo(t.Elem(), len(values), func(i int) reflect.Value { return values[i] })

	var flags wire.DictionaryFlags
	if declared != t || w.legacy() {
		flags |= wire.DictionaryTyped
	}
	if !w.legacy() {
		if kinfo != nil {
			flags |= wire.DictionaryKeyTypeTagged
		} else {
			flags |= wire.DictionaryKeyValueTagged
		}
		if vinfo != nil {
			flags |= wire.DictionaryValueTypeTagged
		} else {
			flags |= wire.DictionaryValueValueTagged
		}
	}

	codec.PutTag(w.out, wire.Dictionary)
	w.out.PutUvarint(uint64(flags))
	if flags.Has(wire.DictionaryTyped) {
		if err := w.writeType(t); err != nil {
			return err
		}
	}
	if kinfo != nil {
		codec.PutTag(w.out, kinfo.Tag)
	}
	if vinfo != nil {
		codec.PutTag(w.out, vinfo.Tag)
	}
	w.out.PutUvarint(uint64(len(keys)))
	for i := range keys {
		if err := w.writeElement(kinfo, t.Key(), keys[i]); err != nil {
			return err
		}
		if err := w.writeElement(vinfo, t.Elem(), values[i]); err != nil {
			return err
		}
	}
	return nil
}

// sortedKeys 返回 map 的键，基础类型的键排序以保证输出确定。
func sortedKeys(v reflect.Value) []reflect.Value {
	keys := v.MapKeys()
	switch v.Type().Key().Kind() {
	case reflect.String:
		slices.SortFunc(keys, func(a, b reflect.Value) int { return cmp.Compare(a.String(), b.String()) })
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		slices.SortFunc(keys, func(a, b reflect.Value) int { return cmp.Compare(a.Int(), b.Int()) })
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		slices.SortFunc(keys, func(a, b reflect.Value) int { return cmp.Compare(a.Uint(), b.Uint()) })
	case reflect.Float32, reflect.Float64:
		slices.SortFunc(keys, func(a, b reflect.Value) int { return cmp.Compare(a.Float(), b.Float()) })
	}
	return keys
}

// writeEnumerable 写出 iter.Seq：元素逐个带标签，以 EndOfList 结束。
// 类型不同时写出的是 []E，读取端据此构造切片。
func (w *writer) writeEnumerable(declared reflect.Type, v reflect.Value) error {
	t := v.Type()
	elem := t.In(0).In(0)
	flags := wire.CollectionValueTagged
	if declared != t {
		flags |= wire.CollectionTyped
	}
	codec.PutTag(w.out, wire.Enumerable)
	w.out.PutUvarint(uint64(flags))
	if flags.Has(wire.CollectionTyped) {
		if err := w.writeType(reflect.SliceOf(elem)); err != nil {
			return err
		}
	}
	var err error
	yield := reflect.MakeFunc(t.In(0), func(args []reflect.Value) []reflect.Value {
		err = w.writeValue(elem, args[0])
		return []reflect.Value{reflect.ValueOf(err == nil)}
	})
	v.Call([]reflect.Value{yield})
	if err != nil {
		return err
	}
	codec.PutTag(w.out, wire.EndOfList)
	return nil
}

// arrayShape 将嵌套的定长数组展开为各维长度与最内层元素类型。
func arrayShape(t reflect.Type) ([]int, reflect.Type) {
	var dims []int
	for t.Kind() == reflect.Array && len(dims) < wire.MaxRank {
		dims = append(dims, t.Len())
		t = t.Elem()
	}
	return dims, t
}

// flatten 按行优先顺序收集数组的全部元素。
func flatten(v reflect.Value, rank int, out []reflect.Value) []reflect.Value {
	if rank == 0 {
		return append(out, v)
	}
	for i := 0; i < v.Len(); i++ {
		out = flatten(v.Index(i), rank-1, out)
	}
	return out
}

// writeArray 写出定长数组：维数与标志、可选类型、可选元素标签、各维长度、行优先的元素。
func (w *writer) writeArray(declared reflect.Type, v reflect.Value) error {
	t := v.Type()
	dims, elem := arrayShape(t)
	items := flatten(v, len(dims), nil)
	info := w.elementInfo(elem, len(items), func(i int) reflect.Value { return items[i] })

	var bits wire.ArrayFlags
	if declared != t || w.legacy() {
		bits |= wire.ArrayTyped
	}
	switch {
	case w.legacy():
	case info != nil:
		bits |= wire.ArrayNoExtraTag
	default:
		bits |= wire.ArrayElementTagged
	}
	codec.PutTag(w.out, wire.Array)
	w.out.PutUvarint(uint64(wire.MakeArrayFlags(len(dims), bits)))
	if bits.Has(wire.ArrayTyped) {
		if err := w.writeType(t); err != nil {
			return err
		}
	}
	if info != nil {
		codec.PutTag(w.out, info.Tag)
	}
	for _, d := range dims {
		w.out.PutUvarint(uint64(d))
	}
	for _, e := range items {
		if err := w.writeElement(info, elem, e); err != nil {
			return err
		}
	}
	return nil
}

// writeTuple 写出元组：标志、可选类型、项数、各项。
func (w *writer) writeTuple(declared reflect.Type, v reflect.Value) error {
	t := v.Type()
	codec.PutTag(w.out, wire.Tuple)
	if err := w.writeTypedFlag(declared, t); err != nil {
		return err
	}
	w.out.PutUvarint(uint64(t.NumField()))
	for i := 0; i < t.NumField(); i++ {
		if err := w.writeValue(t.Field(i).Type, v.Field(i)); err != nil {
			return err
		}
	}
	return nil
}

func (w *writer) writeKeyValue(declared reflect.Type, v reflect.Value) error {
	t := v.Type()
	codec.PutTag(w.out, wire.KeyValuePair)
	if err := w.writeTypedFlag(declared, t); err != nil {
		return err
	}
	if err := w.writeValue(t.Field(0).Type, v.Field(0)); err != nil {
		return err
	}
	return w.writeValue(t.Field(1).Type, v.Field(1))
}

func (w *writer) writeTypedFlag(declared, t reflect.Type) error {
	if declared == t {
		w.out.PutUvarint(0)
		return nil
	}
	w.out.PutUvarint(1)
	return w.writeType(t)
}
