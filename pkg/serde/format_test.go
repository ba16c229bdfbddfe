package serde

import (
	"bytes"
	"io"
	"reflect"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/danmu-garden-serde/pkg/metrics"
	"github.com/lk2023060901/danmu-garden-serde/pkg/serde/codec"
	"github.com/lk2023060901/danmu-garden-serde/pkg/util/merr"
)

func TestLegacyFormat(t *testing.T) {
	legacy := New(WithFormat(FormatLegacy))
	p := newPerson()

	current, err := Marshal(p)
	require.NoError(t, err)
	old, err := MarshalAs(legacy, p)
	require.NoError(t, err)
	assert.NotEqual(t, current, old)

	// 读取端根据容器标志自动识别格式
	for _, s := range []*Serializer{legacy, Default()} {
		got, err := UnmarshalAs[*Person](s, old)
		require.NoError(t, err)
		assert.Equal(t, "Ann", got.Name)
		assert.Equal(t, []string{"a", "b"}, got.Tags)
		assert.Equal(t, map[string]float64{"math": 1.5, "art": 2}, got.Scores)
		assert.Same(t, got.Home, got.Work)
		assert.Same(t, got, got.Friends[0])
	}

	grid := [][]int32{{1, 2}, {3}}
	data, err := MarshalAs(legacy, grid)
	require.NoError(t, err)
	back, err := Unmarshal[[][]int32](data)
	require.NoError(t, err)
	assert.Equal(t, grid, back)
}

func TestStream(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	require.NoError(t, enc.Encode(reflect.TypeFor[*Address](), &Address{City: "Oslo"}))
	require.NoError(t, enc.Encode(nil, "second"))
	require.NoError(t, enc.Encode(reflect.TypeFor[[]int](), []int{1, 2, 3}))
	require.NoError(t, enc.Close())
	require.NoError(t, enc.Close())
	assert.ErrorIs(t, enc.Encode(nil, 1), merr.ErrOperationNotSupported)

	dec := NewDecoder(&buf)
	var a *Address
	require.NoError(t, dec.DecodeInto(&a))
	assert.Equal(t, "Oslo", a.City)
	s, err := dec.Decode(nil)
	require.NoError(t, err)
	assert.Equal(t, "second", s)
	var list []int
	require.NoError(t, dec.DecodeInto(&list))
	assert.Equal(t, []int{1, 2, 3}, list)

	_, err = dec.Decode(nil)
	assert.ErrorIs(t, err, io.EOF)
}

func TestStreamOverOpenPipe(t *testing.T) {
	pr, pw := io.Pipe()
	defer pr.Close()
	defer pw.Close()

	enc := NewEncoder(pw)
	go func() {
		_ = enc.Encode(nil, 42)
		_ = enc.Encode(reflect.TypeFor[*Address](), &Address{City: "Oslo"})
	}()

	dec := NewDecoder(pr)
	type result struct {
		v   any
		err error
	}
	next := func(dest reflect.Type) result {
		ch := make(chan result, 1)
		go func() {
			v, err := dec.Decode(dest)
			ch <- result{v, err}
		}()
		select {
		case r := <-ch:
			return r
		case <-time.After(5 * time.Second):
			t.Fatal("decode blocked on an open stream")
			return result{}
		}
	}

	r := next(reflect.TypeFor[int]())
	require.NoError(t, r.err)
	assert.Equal(t, 42, r.v)
	r = next(nil)
	require.NoError(t, r.err)
	assert.Equal(t, "Oslo", r.v.(*Address).City)
}

func TestStreamTruncated(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	require.NoError(t, enc.Encode(nil, "complete"))
	require.NoError(t, enc.Close())
	whole := buf.Len()

	dec := NewDecoder(bytes.NewReader(buf.Bytes()[:whole-1]))
	_, err := dec.Decode(nil)
	assert.ErrorIs(t, err, merr.ErrSerdeUnexpectedEOF)

	dec = NewDecoder(bytes.NewReader([]byte{0xff}))
	_, err = dec.Decode(nil)
	assert.ErrorIs(t, err, merr.ErrSerdeUnexpectedEOF)

	dec = NewDecoder(bytes.NewReader([]byte{0xff, 0xff, 0xff, 0xff, 0x7f}))
	_, err = dec.Decode(nil)
	assert.ErrorIs(t, err, merr.ErrSerdeInvalidFormat)
}

func TestInspect(t *testing.T) {
	home := &Address{City: "Oslo", Zip: 150}
	data, err := Marshal(&Person{Name: "Ann", Home: home, Work: home, Scores: map[string]float64{"x": 1}})
	require.NoError(t, err)

	v, err := Inspect(data)
	require.NoError(t, err)
	root, ok := v.(*GenericObject)
	require.True(t, ok)
	assert.Equal(t, "*"+reflect.TypeFor[Person]().PkgPath()+".Person", root.Type)
	assert.Equal(t, 0, root.ID)

	name, _ := root.Field("Name")
	assert.Equal(t, "Ann", name)
	h, _ := root.Field("Home")
	homeObj, ok := h.(*GenericObject)
	require.True(t, ok)
	zip, _ := homeObj.Field("Zip")
	assert.Equal(t, int32(150), zip)
	w, _ := root.Field("Work")
	assert.Equal(t, GenericRef{Index: homeObj.ID}, w)

	scores, _ := root.Field("Scores")
	assert.Equal(t, []GenericEntry{{Key: "x", Value: float64(1)}}, scores)

	_, err = Inspect(append(data, 0))
	assert.ErrorIs(t, err, merr.ErrSerdeInvalidFormat)
}

func TestConfigOptions(t *testing.T) {
	cfg := &Config{
		DateTimeHandling:  "normalize_utc",
		StrictTypeCodes:   true,
		PortableTypeNames: true,
		Format:            "Legacy",
		MaxDepth:          0,
	}
	opts, err := cfg.Options()
	require.NoError(t, err)
	s := New(opts...)
	assert.Equal(t, codec.DateTimeNormalizeUTC, s.opts.settings.DateTime)
	assert.True(t, s.opts.strictCodes)
	assert.Equal(t, FormatLegacy, s.opts.format)
	assert.Equal(t, DefaultMaxDepth, s.opts.maxDepth)
	assert.IsType(t, codec.PortableBinder{}, s.opts.binder)

	_, err = (&Config{Format: "v0"}).Options()
	assert.ErrorIs(t, err, merr.ErrParameterInvalid)
	_, err = (&Config{DateTimeHandling: "local"}).Options()
	assert.ErrorIs(t, err, merr.ErrParameterInvalid)

	assert.Equal(t, "legacy", FormatLegacy.String())
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatCurrent, f)
}

func TestMetrics(t *testing.T) {
	RegisterMetrics(prometheus.NewRegistry())
	s := New(WithMetrics(true))

	counter := metrics.SerdeErrors.WithLabelValues(metrics.DeserializeLabel, "4000")
	before := testutil.ToFloat64(counter)
	_, err := s.Unmarshal(nil, []byte{0x16, 0x02, 0x00})
	assert.ErrorIs(t, err, merr.ErrSerdeInvalidFormat)
	assert.Equal(t, before+1, testutil.ToFloat64(counter))

	_, err = s.Marshal(nil, 1)
	require.NoError(t, err)
	assert.Positive(t, testutil.CollectAndCount(metrics.SerdeBytes))
}
