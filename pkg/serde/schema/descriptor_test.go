package schema

import (
	"reflect"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/danmu-garden-serde/pkg/serde/binio"
	"github.com/lk2023060901/danmu-garden-serde/pkg/serde/codec"
	"github.com/lk2023060901/danmu-garden-serde/pkg/util/merr"
)

type Base struct {
	ID int64
}

type account struct {
	Base
	Name    string
	Balance float64 `serde:"bal"`
	Key     string  `serde:",ignore"`
	Secret  string  `serde:"-"`
	Tags    []string
	hidden  int
}

func TestDescriptorOf(t *testing.T) {
	d, err := DescriptorOf(reflect.TypeFor[account]())
	require.NoError(t, err)
	assert.Equal(t, []string{"Base", "Name", "bal", "Tags"}, d.Names())
	assert.Len(t, d.Ignored, 2)

	i, ok := d.Lookup("bal")
	require.True(t, ok)
	assert.Equal(t, reflect.TypeFor[float64](), d.Properties[i].Type)

	again, err := DescriptorOf(reflect.TypeFor[account]())
	require.NoError(t, err)
	assert.Same(t, d, again)

	_, err = DescriptorOf(reflect.TypeFor[int]())
	assert.ErrorIs(t, err, merr.ErrSerdeUnsupportedType)
}

type clash struct {
	A int `serde:"x"`
	B int `serde:"x"`
}

func TestDuplicateName(t *testing.T) {
	_, err := DescriptorOf(reflect.TypeFor[clash]())
	assert.ErrorIs(t, err, merr.ErrSerdeUnsupportedType)
}

func TestHeader(t *testing.T) {
	d, err := DescriptorOf(reflect.TypeFor[account]())
	require.NoError(t, err)
	h := d.Header()
	assert.Same(t, &h[0], &d.Header()[0])

	names, err := ParseHeader(binio.NewReader(h))
	require.NoError(t, err)
	assert.Equal(t, d.Names(), names)

	bad := append([]byte{9}, h[1:]...)
	_, err = ParseHeader(binio.NewReader(bad))
	assert.ErrorIs(t, err, merr.ErrSerdeUnsupportedVer)

	_, err = ParseHeader(binio.NewReader(h[:len(h)-1]))
	assert.Error(t, err)
}

func TestPropertyAccess(t *testing.T) {
	d, err := DescriptorOf(reflect.TypeFor[account]())
	require.NoError(t, err)
	obj := reflect.New(d.Type).Elem()
	i, _ := d.Lookup("Name")
	d.Properties[i].Set(obj, reflect.ValueOf("alice"))
	assert.Equal(t, "alice", d.Properties[i].Get(obj).String())
	d.Properties[i].Set(obj, reflect.Value{})
	assert.Equal(t, "", d.Properties[i].Get(obj).String())
}

func TestMap(t *testing.T) {
	d, err := DescriptorOf(reflect.TypeFor[account]())
	require.NoError(t, err)
	rename := func(_ reflect.Type, name string) (string, bool) {
		if name == "FullName" {
			return "Name", true
		}
		return "", false
	}
	got := d.Map([]string{"bal", "FullName", "Gone", "Tags"}, rename)
	nameIdx, _ := d.Lookup("Name")
	balIdx, _ := d.Lookup("bal")
	tagsIdx, _ := d.Lookup("Tags")
	assert.Equal(t, []int{balIdx, nameIdx, -1, tagsIdx}, got)
	assert.Equal(t, []int{balIdx, -1, -1, tagsIdx}, d.Map([]string{"bal", "FullName", "Gone", "Tags"}, nil))
}

func TestWriteAll(t *testing.T) {
	type point struct {
		X, Y int32
		Label string
	}
	d, err := DescriptorOf(reflect.TypeFor[point]())
	require.NoError(t, err)

	var slow []string
	w := binio.NewGrowableWriter()
	defer w.Release()
	err = d.WriteAll(w, reflect.ValueOf(point{X: 1, Label: "p"}), &codec.Settings{},
		func(declared reflect.Type, v reflect.Value) error {
			slow = append(slow, declared.String()+"="+v.String())
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, []string{"string=p"}, slow)

	r := binio.NewReader(w.Bytes())
	for _, want := range []int32{1, 0} {
		tag, err := codec.ReadTag(r)
		require.NoError(t, err)
		info, ok := codec.LookupTag(tag)
		require.True(t, ok)
		v, err := info.Decode(r, tag)
		require.NoError(t, err)
		assert.Equal(t, want, int32(v.Int()))
	}
	assert.Equal(t, 0, r.Remaining())
	assert.True(t, strings.HasPrefix(d.Type.String(), "schema."))
}
