package serde

import (
	"bytes"
	"math"
	"reflect"
	"strings"

	"github.com/lk2023060901/danmu-garden-serde/pkg/util/merr"
)

var (
	builderType = reflect.TypeFor[*strings.Builder]()
	bufferType  = reflect.TypeFor[*bytes.Buffer]()
)

// coerce 将读到的值转换为读取位置的类型 dest，dest 为 nil 时原样返回。
//
// 说明：
//   - 数值按值转换，超出目标范围时返回 ErrSerdeNumericOverflow；
//   - string、[]byte、*strings.Builder、*bytes.Buffer 之间互相转换；
//   - 指针按需解引用或装箱，容器逐元素转换；
//   - 无法转换时返回 ErrSerdeTypeMismatch。
func coerce(v reflect.Value, dest reflect.Type) (reflect.Value, error) {
	if dest == nil {
		return v, nil
	}
	for v.IsValid() && v.Kind() == reflect.Interface {
		if v.IsNil() {
			v = reflect.Value{}
			break
		}
		v = v.Elem()
	}
	if !v.IsValid() {
		return reflect.Zero(dest), nil
	}
	t := v.Type()
	if t == dest {
		return v, nil
	}
	if dest.Kind() == reflect.Interface {
		if t.Implements(dest) {
			return v, nil
		}
		if reflect.PointerTo(t).Implements(dest) {
			p := reflect.New(t)
			p.Elem().Set(v)
			return p, nil
		}
		return reflect.Value{}, merr.WrapErrSerdeTypeMismatch(t, dest)
	}
	if t.AssignableTo(dest) {
		return v.Convert(dest), nil
	}
	if s, ok := textOf(v); ok {
		if out, ok := textTo(s, dest); ok {
			return out, nil
		}
	}
	if isNumber(t.Kind()) && isNumber(dest.Kind()) {
		return convertNumber(v, dest)
	}
	if t.Kind() == dest.Kind() && t.ConvertibleTo(dest) {
		return v.Convert(dest), nil
	}

	if t.Kind() == reflect.Pointer && t != builderType && t != bufferType {
		if v.IsNil() {
			return reflect.Zero(dest), nil
		}
		return coerce(v.Elem(), dest)
	}
	if dest.Kind() == reflect.Pointer && dest != builderType && dest != bufferType {
		inner, err := coerce(v, dest.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		p := reflect.New(dest.Elem())
		p.Elem().Set(inner)
		return p, nil
	}

	switch dest.Kind() {
	case reflect.Slice:
		return toSlice(v, dest)
	case reflect.Array:
		if t.Kind() == reflect.Slice || t.Kind() == reflect.Array {
			if v.Len() > dest.Len() {
				return reflect.Value{}, merr.WrapErrSerdeTypeMismatch(t, dest, "too many elements for array")
			}
			out := reflect.New(dest).Elem()
			if err := copyElems(out, v, dest.Elem()); err != nil {
				return reflect.Value{}, err
			}
			return out, nil
		}
	case reflect.Map:
		return toMap(v, dest)
	case reflect.Func:
		if isSeq(dest) {
			s, err := coerce(v, reflect.SliceOf(dest.In(0).In(0)))
			if err != nil {
				return reflect.Value{}, err
			}
			return makeSeq(dest, s), nil
		}
	case reflect.Struct:
		if dest.Implements(tupleType) || dest.Implements(keyValueType) {
			return toTuple(v, dest)
		}
	}
	return reflect.Value{}, merr.WrapErrSerdeTypeMismatch(t, dest)
}

func textOf(v reflect.Value) (string, bool) {
	switch {
	case v.Kind() == reflect.String:
		return v.String(), true
	case v.Type() == builderType:
		if v.IsNil() {
			return "", true
		}
		return v.Interface().(*strings.Builder).String(), true
	case v.Type() == bufferType:
		if v.IsNil() {
			return "", true
		}
		return v.Interface().(*bytes.Buffer).String(), true
	case v.Kind() == reflect.Slice && v.Type().Elem().Kind() == reflect.Uint8:
		return string(v.Bytes()), true
	}
	return "", false
}

func textTo(s string, dest reflect.Type) (reflect.Value, bool) {
	switch {
	case dest.Kind() == reflect.String:
		return reflect.ValueOf(s).Convert(dest), true
	case dest == builderType:
		b := new(strings.Builder)
		b.WriteString(s)
		return reflect.ValueOf(b), true
	case dest == bufferType:
		return reflect.ValueOf(bytes.NewBufferString(s)), true
	case dest.Kind() == reflect.Slice && bytesType.ConvertibleTo(dest):
		return reflect.ValueOf([]byte(s)).Convert(dest), true
	}
	return reflect.Value{}, false
}

func isNumber(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Complex128
}

func isSigned(k reflect.Kind) bool   { return k >= reflect.Int && k <= reflect.Int64 }
func isUnsigned(k reflect.Kind) bool { return k >= reflect.Uint && k <= reflect.Uintptr }
func isFloat(k reflect.Kind) bool    { return k == reflect.Float32 || k == reflect.Float64 }

// convertNumber 在数值类型之间转换；浮点数只有为整数值时才能转换为整数。
func convertNumber(v reflect.Value, dest reflect.Type) (reflect.Value, error) {
	out := reflect.New(dest).Elem()
	k := v.Kind()
	overflow := func(x any) (reflect.Value, error) {
		lower, upper := bounds(dest)
		return reflect.Value{}, merr.WrapErrSerdeNumericOverflow(dest.String(), x, lower, upper)
	}
	switch dk := dest.Kind(); {
	case isSigned(dk):
		switch {
		case isSigned(k):
			if out.OverflowInt(v.Int()) {
				return overflow(v.Int())
			}
			out.SetInt(v.Int())
		case isUnsigned(k):
			if v.Uint() > math.MaxInt64 || out.OverflowInt(int64(v.Uint())) {
				return overflow(v.Uint())
			}
			out.SetInt(int64(v.Uint()))
		case isFloat(k):
			f := v.Float()
			if f != math.Trunc(f) {
				return reflect.Value{}, merr.WrapErrSerdeTypeMismatch(f, dest, "fractional value")
			}
			if f < math.MinInt64 || f >= math.MaxInt64 || out.OverflowInt(int64(f)) {
				return overflow(f)
			}
			out.SetInt(int64(f))
		default:
			return reflect.Value{}, merr.WrapErrSerdeTypeMismatch(v.Type(), dest)
		}
	case isUnsigned(dk):
		switch {
		case isSigned(k):
			if v.Int() < 0 || out.OverflowUint(uint64(v.Int())) {
				return overflow(v.Int())
			}
			out.SetUint(uint64(v.Int()))
		case isUnsigned(k):
			if out.OverflowUint(v.Uint()) {
				return overflow(v.Uint())
			}
			out.SetUint(v.Uint())
		case isFloat(k):
			f := v.Float()
			if f != math.Trunc(f) {
				return reflect.Value{}, merr.WrapErrSerdeTypeMismatch(f, dest, "fractional value")
			}
			if f < 0 || f >= math.MaxUint64 || out.OverflowUint(uint64(f)) {
				return overflow(f)
			}
			out.SetUint(uint64(f))
		default:
			return reflect.Value{}, merr.WrapErrSerdeTypeMismatch(v.Type(), dest)
		}
	case isFloat(dk):
		var f float64
		switch {
		case isSigned(k):
			f = float64(v.Int())
		case isUnsigned(k):
			f = float64(v.Uint())
		case isFloat(k):
			f = v.Float()
		default:
			return reflect.Value{}, merr.WrapErrSerdeTypeMismatch(v.Type(), dest)
		}
		if !math.IsInf(f, 0) && out.OverflowFloat(f) {
			return overflow(f)
		}
		out.SetFloat(f)
	default:
		switch {
		case isSigned(k):
			out.SetComplex(complex(float64(v.Int()), 0))
		case isUnsigned(k):
			out.SetComplex(complex(float64(v.Uint()), 0))
		case isFloat(k):
			out.SetComplex(complex(v.Float(), 0))
		default:
			out.SetComplex(v.Complex())
		}
	}
	return out, nil
}

func bounds(t reflect.Type) (any, any) {
	switch k := t.Kind(); {
	case isSigned(k):
		bits := t.Bits()
		return int64(-1) << (bits - 1), int64(1)<<(bits-1) - 1
	case isUnsigned(k):
		return uint64(0), uint64(math.MaxUint64) >> (64 - t.Bits())
	case k == reflect.Float32:
		return -math.MaxFloat32, math.MaxFloat32
	}
	return -math.MaxFloat64, math.MaxFloat64
}

func copyElems(dst, src reflect.Value, elem reflect.Type) error {
	for i := 0; i < src.Len(); i++ {
		e, err := coerce(src.Index(i), elem)
		if err != nil {
			return err
		}
		dst.Index(i).Set(e)
	}
	return nil
}

// toSlice 由切片、数组、集合或单个值构造切片。
func toSlice(v reflect.Value, dest reflect.Type) (reflect.Value, error) {
	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		out := reflect.MakeSlice(dest, v.Len(), v.Len())
		if err := copyElems(out, v, dest.Elem()); err != nil {
			return reflect.Value{}, err
		}
		return out, nil
	case reflect.Map:
		if !isSetElem(v.Type().Elem()) {
			break
		}
		keys := sortedKeys(v)
		out := reflect.MakeSlice(dest, 0, len(keys))
		for _, k := range keys {
			if v.Type().Elem().Kind() == reflect.Bool && !v.MapIndex(k).Bool() {
				continue
			}
			e, err := coerce(k, dest.Elem())
			if err != nil {
				return reflect.Value{}, err
			}
			out = reflect.Append(out, e)
		}
		return out, nil
	}
	e, err := coerce(v, dest.Elem())
	if err != nil {
		return reflect.Value{}, merr.WrapErrSerdeTypeMismatch(v.Type(), dest)
	}
	out := reflect.MakeSlice(dest, 1, 1)
	out.Index(0).Set(e)
	return out, nil
}

func isSetElem(t reflect.Type) bool {
	return t.Kind() == reflect.Bool || t.Kind() == reflect.Struct && t.NumField() == 0
}

// toMap 由 map 逐项转换，或由切片构造集合。
func toMap(v reflect.Value, dest reflect.Type) (reflect.Value, error) {
	switch v.Kind() {
	case reflect.Map:
		out := reflect.MakeMapWithSize(dest, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			k, err := coerce(iter.Key(), dest.Key())
			if err != nil {
				return reflect.Value{}, err
			}
			if err := checkKey(dest, k); err != nil {
				return reflect.Value{}, err
			}
			e, err := coerce(iter.Value(), dest.Elem())
			if err != nil {
				return reflect.Value{}, err
			}
			out.SetMapIndex(k, e)
		}
		return out, nil
	case reflect.Slice, reflect.Array:
		if !isSetElem(dest.Elem()) {
			break
		}
		val := reflect.Zero(dest.Elem())
		if dest.Elem().Kind() == reflect.Bool {
			val = reflect.ValueOf(true).Convert(dest.Elem())
		}
		out := reflect.MakeMapWithSize(dest, v.Len())
		for i := 0; i < v.Len(); i++ {
			k, err := coerce(v.Index(i), dest.Key())
			if err != nil {
				return reflect.Value{}, err
			}
			if err := checkKey(dest, k); err != nil {
				return reflect.Value{}, err
			}
			out.SetMapIndex(k, val)
		}
		return out, nil
	}
	return reflect.Value{}, merr.WrapErrSerdeTypeMismatch(v.Type(), dest)
}

// toTuple 由 []any 或其他元组构造元组与键值对。
func toTuple(v reflect.Value, dest reflect.Type) (reflect.Value, error) {
	t := v.Type()
	n := dest.NumField()
	var at func(i int) reflect.Value
	switch {
	case t.Kind() == reflect.Slice && v.Len() == n:
		at = v.Index
	case t.Kind() == reflect.Struct && (t.Implements(tupleType) || t.Implements(keyValueType)) && t.NumField() == n:
		at = v.Field
	default:
		return reflect.Value{}, merr.WrapErrSerdeTypeMismatch(t, dest)
	}
	out := reflect.New(dest).Elem()
	for i := 0; i < n; i++ {
		e, err := coerce(at(i), dest.Field(i).Type)
		if err != nil {
			return reflect.Value{}, err
		}
		out.Field(i).Set(e)
	}
	return out, nil
}

// makeSeq 构造遍历切片 s 的 iter.Seq。
func makeSeq(dest reflect.Type, s reflect.Value) reflect.Value {
	return reflect.MakeFunc(dest, func(args []reflect.Value) []reflect.Value {
		yield := args[0]
		for i := 0; i < s.Len(); i++ {
			if !yield.Call([]reflect.Value{s.Index(i)})[0].Bool() {
				break
			}
		}
		return nil
	})
}
