package serde

import (
	"bytes"
	"iter"
	"math"
	"reflect"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/danmu-garden-serde/pkg/util/merr"
)

func TestCoerceTable(t *testing.T) {
	type label string
	seven := 7
	cases := []struct {
		name string
		in   any
		dest reflect.Type
		want any
	}{
		{"widen", int8(-3), reflect.TypeFor[int64](), int64(-3)},
		{"narrow", int64(100), reflect.TypeFor[uint8](), uint8(100)},
		{"float to int", float64(42), reflect.TypeFor[int32](), int32(42)},
		{"int to float", int16(5), reflect.TypeFor[float32](), float32(5)},
		{"complex", int(2), reflect.TypeFor[complex128](), complex(2, 0)},
		{"named string", "x", reflect.TypeFor[label](), label("x")},
		{"bytes to string", []byte("hi"), reflect.TypeFor[string](), "hi"},
		{"string to bytes", "hi", reflect.TypeFor[[]byte](), []byte("hi")},
		{"deref", &seven, reflect.TypeFor[int](), 7},
		{"box", 7, reflect.TypeFor[*int](), &seven},
		{"slice widen", []int8{1, 2}, reflect.TypeFor[[]int64](), []int64{1, 2}},
		{"slice to array", []any{1, 2}, reflect.TypeFor[[3]int](), [3]int{1, 2, 0}},
		{"set to slice", map[string]bool{"b": true, "a": true, "c": false}, reflect.TypeFor[[]string](), []string{"a", "b"}},
		{"slice to set", []any{"a", "b"}, reflect.TypeFor[map[string]struct{}](), map[string]struct{}{"a": {}, "b": {}}},
		{"map values", map[string]any{"k": int32(1)}, reflect.TypeFor[map[string]int](), map[string]int{"k": 1}},
		{"single to slice", int32(9), reflect.TypeFor[[]int](), []int{9}},
		{"tuple", []any{"a", int64(1)}, reflect.TypeFor[Tuple2[string, int]](), Tuple2[string, int]{"a", 1}},
		{"kv", KV[any, any]("k", 2), reflect.TypeFor[KeyValue[string, int8]](), KV("k", int8(2))},
		{"nil", nil, reflect.TypeFor[*Address](), (*Address)(nil)},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := coerce(reflect.ValueOf(c.in), c.dest)
			require.NoError(t, err)
			assert.Equal(t, c.want, got.Interface())
		})
	}
}

func TestCoerceText(t *testing.T) {
	got, err := coerce(reflect.ValueOf("abc"), builderType)
	require.NoError(t, err)
	assert.Equal(t, "abc", got.Interface().(*strings.Builder).String())

	got, err = coerce(got, bufferType)
	require.NoError(t, err)
	assert.Equal(t, "abc", got.Interface().(*bytes.Buffer).String())
}

func TestCoerceSeq(t *testing.T) {
	got, err := coerce(reflect.ValueOf([]any{1, 2, 3}), reflect.TypeFor[iter.Seq[int]]())
	require.NoError(t, err)
	seq := got.Interface().(iter.Seq[int])
	assert.Equal(t, []int{1, 2, 3}, slices.Collect(seq))
}

func TestCoerceErrors(t *testing.T) {
	cases := []struct {
		in   any
		dest reflect.Type
		want error
	}{
		{int64(300), reflect.TypeFor[int8](), merr.ErrSerdeNumericOverflow},
		{int64(-1), reflect.TypeFor[uint](), merr.ErrSerdeNumericOverflow},
		{uint64(math.MaxUint64), reflect.TypeFor[int64](), merr.ErrSerdeNumericOverflow},
		{math.MaxFloat64, reflect.TypeFor[float32](), merr.ErrSerdeNumericOverflow},
		{1.5, reflect.TypeFor[int](), merr.ErrSerdeTypeMismatch},
		{"x", reflect.TypeFor[int](), merr.ErrSerdeTypeMismatch},
		{[]any{1, 2, 3}, reflect.TypeFor[[2]int](), merr.ErrSerdeTypeMismatch},
		{[]any{1}, reflect.TypeFor[Tuple2[int, int]](), merr.ErrSerdeTypeMismatch},
		{Address{}, reflect.TypeFor[Shape](), merr.ErrSerdeTypeMismatch},
	}
	for _, c := range cases {
		_, err := coerce(reflect.ValueOf(c.in), c.dest)
		assert.ErrorIs(t, err, c.want, "%T -> %s", c.in, c.dest)
	}
}
