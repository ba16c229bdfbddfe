package main

import (
	"bytes"
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/lk2023060901/danmu-garden-serde/pkg/serde"
)

// render 将通用表示转换为可以编码为 JSON 的值：
// 实现了 fmt.Stringer 的值、复数、NaN 与无穷以字符串表示，map 转为键值对列表。
func render(v any) any {
	if rv := reflect.ValueOf(v); !rv.IsValid() || rv.Kind() == reflect.Pointer && rv.IsNil() {
		return nil
	}
	switch x := v.(type) {
	case *serde.GenericObject:
		fields := make([]serde.GenericField, len(x.Fields))
		for i, f := range x.Fields {
			fields[i] = serde.GenericField{Name: f.Name, Value: render(f.Value)}
		}
		return &serde.GenericObject{ID: x.ID, Type: x.Type, Fields: fields}
	case []serde.GenericEntry:
		entries := make([]serde.GenericEntry, len(x))
		for i, e := range x {
			entries[i] = serde.GenericEntry{Key: render(e.Key), Value: render(e.Value)}
		}
		return entries
	case serde.GenericEntity:
		return serde.GenericEntity{Token: render(x.Token)}
	case serde.GenericRef:
		return x
	case *strings.Builder:
		return x.String()
	case *bytes.Buffer:
		return x.String()
	case []byte:
		return x
	case fmt.Stringer:
		return x.String()
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Sprint(f)
		}
		return f
	case reflect.Complex64, reflect.Complex128:
		return fmt.Sprint(rv.Complex())
	case reflect.Pointer:
		return render(rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = render(rv.Index(i).Interface())
		}
		return out
	case reflect.Map:
		entries := make([]serde.GenericEntry, 0, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			entries = append(entries, serde.GenericEntry{Key: render(iter.Key().Interface()), Value: render(iter.Value().Interface())})
		}
		return entries
	case reflect.Struct:
		out := make(map[string]any, rv.NumField())
		for i := 0; i < rv.NumField(); i++ {
			if f := rv.Type().Field(i); f.IsExported() {
				out[f.Name] = render(rv.Field(i).Interface())
			}
		}
		return out
	}
	return v
}
