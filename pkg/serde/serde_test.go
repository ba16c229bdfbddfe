package serde

import (
	"iter"
	"math"
	"reflect"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/lk2023060901/danmu-garden-serde/pkg/serde/binio"
	"github.com/lk2023060901/danmu-garden-serde/pkg/serde/codec"
	"github.com/lk2023060901/danmu-garden-serde/pkg/util/merr"
)

type Address struct {
	City string
	Zip  int32
}

type Person struct {
	Name    string
	Age     int
	Tags    []string
	Home    *Address
	Work    *Address
	Friends []*Person
	Scores  map[string]float64
	Meta    any
}

func newPerson() *Person {
	p := &Person{
		Name:   "Ann",
		Age:    30,
		Tags:   []string{"a", "b"},
		Home:   &Address{City: "Oslo", Zip: 150},
		Scores: map[string]float64{"math": 1.5, "art": 2},
	}
	p.Work = p.Home
	p.Friends = []*Person{p}
	return p
}

func TestObjectGraph(t *testing.T) {
	p := newPerson()
	data, err := Marshal(p)
	require.NoError(t, err)

	got, err := Unmarshal[*Person](data)
	require.NoError(t, err)
	assert.Equal(t, "Ann", got.Name)
	assert.Equal(t, 30, got.Age)
	assert.Equal(t, []string{"a", "b"}, got.Tags)
	assert.Equal(t, Address{City: "Oslo", Zip: 150}, *got.Home)
	assert.Same(t, got.Home, got.Work)
	require.Len(t, got.Friends, 1)
	assert.Same(t, got, got.Friends[0])
	assert.Equal(t, p.Scores, got.Scores)
	assert.Nil(t, got.Meta)
}

func TestSharedReferences(t *testing.T) {
	a := &Address{City: "A"}
	b := &Address{City: "B"}
	data, err := Marshal([]any{a, a, b, a})
	require.NoError(t, err)

	got, err := Unmarshal[[]any](data)
	require.NoError(t, err)
	require.Len(t, got, 4)
	first := got[0].(*Address)
	assert.Same(t, first, got[1])
	assert.Same(t, first, got[3])
	assert.NotSame(t, first, got[2])
	assert.Equal(t, "B", got[2].(*Address).City)
}

type Node struct {
	Value int
	Next  *Node
}

func TestSelfCycle(t *testing.T) {
	n := &Node{Value: 1}
	n.Next = n
	data, err := Marshal(n)
	require.NoError(t, err)

	got, err := Unmarshal[*Node](data)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Value)
	assert.Same(t, got, got.Next)
}

type NodeRef *Node

type NodeRefHolder struct {
	P NodeRef
	Q *Node
}

func TestNamedPointerField(t *testing.T) {
	n := &Node{Value: 7}
	n.Next = n
	data, err := Marshal(NodeRefHolder{P: n, Q: n})
	require.NoError(t, err)

	got, err := Unmarshal[NodeRefHolder](data)
	require.NoError(t, err)
	require.NotNil(t, got.P)
	assert.Equal(t, 7, got.P.Value)
	assert.Same(t, (*Node)(got.P), got.Q)
	assert.Same(t, got.Q, got.Q.Next)

	data, err = Marshal[any](NodeRef(&Node{Value: 3}))
	require.NoError(t, err)
	v, err := Unmarshal[*Node](data)
	require.NoError(t, err)
	assert.Equal(t, 3, v.Value)
}

type Shape interface {
	Area() float64
}

type Square struct {
	Side float64
}

func (s Square) Area() float64 { return s.Side * s.Side }

type Circle struct {
	R float64
}

func (c *Circle) Area() float64 { return math.Pi * c.R * c.R }

func TestPolymorphicElements(t *testing.T) {
	shapes := []Shape{Square{Side: 2}, &Circle{R: 1}, nil}
	data, err := Marshal(shapes)
	require.NoError(t, err)

	got, err := Unmarshal[[]Shape](data)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, Square{Side: 2}, got[0])
	assert.Equal(t, &Circle{R: 1}, got[1])
	assert.Nil(t, got[2])

	mixed, err := Marshal([]any{1, "x", 2.5, nil})
	require.NoError(t, err)
	out, err := Unmarshal[[]any](mixed)
	require.NoError(t, err)
	assert.Equal(t, []any{1, "x", 2.5, nil}, out)

	same, err := Marshal([]any{int32(1), int32(2)})
	require.NoError(t, err)
	out, err = Unmarshal[[]any](same)
	require.NoError(t, err)
	assert.Equal(t, []any{int32(1), int32(2)}, out)
}

type Color int16

func TestNamedPrimitive(t *testing.T) {
	data, err := Marshal[any](Color(3))
	require.NoError(t, err)
	got, err := Unmarshal[any](data)
	require.NoError(t, err)
	assert.Equal(t, Color(3), got)

	data, err = Marshal([]Color{1, 2})
	require.NoError(t, err)
	colors, err := Unmarshal[[]Color](data)
	require.NoError(t, err)
	assert.Equal(t, []Color{1, 2}, colors)
}

func TestCoercion(t *testing.T) {
	data, err := Marshal(5)
	require.NoError(t, err)
	n64, err := Unmarshal[int64](data)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n64)

	data, err = Marshal(300)
	require.NoError(t, err)
	_, err = Unmarshal[int8](data)
	assert.ErrorIs(t, err, merr.ErrSerdeNumericOverflow)

	data, err = Marshal([]int{1, 2, 3})
	require.NoError(t, err)
	wide, err := Unmarshal[[]int64](data)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, wide)

	data, err = Marshal[[]int](nil)
	require.NoError(t, err)
	empty, err := Unmarshal[[]int](data)
	require.NoError(t, err)
	assert.Nil(t, empty)

	data, err = Marshal("hello")
	require.NoError(t, err)
	sb, err := Unmarshal[*strings.Builder](data)
	require.NoError(t, err)
	assert.Equal(t, "hello", sb.String())

	data, err = Marshal("not a number")
	require.NoError(t, err)
	_, err = Unmarshal[int](data)
	assert.ErrorIs(t, err, merr.ErrSerdeTypeMismatch)
}

func TestZeroCompaction(t *testing.T) {
	data, err := Marshal(int64(0))
	require.NoError(t, err)
	assert.Len(t, data, 1)

	data, err = Marshal("")
	require.NoError(t, err)
	assert.Len(t, data, 1)

	var nilAddr *Address
	data, err = Marshal(nilAddr)
	require.NoError(t, err)
	assert.Len(t, data, 1)
}

func TestStringTable(t *testing.T) {
	word := strings.Repeat("serde", 10)
	one, err := Marshal([]string{word})
	require.NoError(t, err)
	many, err := Marshal([]string{word, word, word})
	require.NoError(t, err)
	assert.Less(t, len(many), 2*len(one))

	got, err := Unmarshal[[]string](many)
	require.NoError(t, err)
	assert.Equal(t, []string{word, word, word}, got)
}

type Event struct {
	At    time.Time
	Took  time.Duration
	ID    uuid.UUID
	Ratio float32
	Flags []bool
	Blob  []byte
}

func TestPrimitiveProperties(t *testing.T) {
	e := Event{
		At:    time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		Took:  1500 * time.Millisecond,
		ID:    uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8"),
		Ratio: 0.25,
		Flags: []bool{true, false, true},
		Blob:  []byte{0, 1, 2},
	}
	data, err := Marshal(e)
	require.NoError(t, err)
	got, err := Unmarshal[Event](data)
	require.NoError(t, err)
	assert.True(t, e.At.Equal(got.At))
	assert.Equal(t, e.Took, got.Took)
	assert.Equal(t, e.ID, got.ID)
	assert.Equal(t, e.Ratio, got.Ratio)
	assert.Equal(t, e.Flags, got.Flags)
	assert.Equal(t, e.Blob, got.Blob)
}

type Holder struct {
	P  *int
	Q  *int
	PP **string
}

func TestBoxes(t *testing.T) {
	x := 7
	s := "boxed"
	ps := &s
	data, err := Marshal(Holder{P: &x, Q: &x, PP: &ps})
	require.NoError(t, err)

	got, err := Unmarshal[Holder](data)
	require.NoError(t, err)
	assert.Equal(t, 7, *got.P)
	assert.Same(t, got.P, got.Q)
	assert.Equal(t, "boxed", **got.PP)

	data, err = Marshal[any](&x)
	require.NoError(t, err)
	v, err := Unmarshal[any](data)
	require.NoError(t, err)
	assert.Equal(t, 7, *v.(*int))
}

type Stamped struct {
	At    *time.Time
	Again *time.Time
	ID    *uuid.UUID
	Wait  *time.Duration
}

func TestPrimitivePointers(t *testing.T) {
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.FixedZone("CET", 3600))
	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	wait := 3 * time.Second
	in := Stamped{At: &at, Again: &at, ID: &id, Wait: &wait}

	data, err := Marshal(in)
	require.NoError(t, err)
	got, err := Unmarshal[Stamped](data)
	require.NoError(t, err)
	assert.True(t, at.Equal(*got.At))
	_, offset := got.At.Zone()
	assert.Equal(t, 3600, offset)
	assert.Same(t, got.At, got.Again)
	assert.Equal(t, id, *got.ID)
	assert.Equal(t, wait, *got.Wait)

	utc := New(WithDateTimeHandling(codec.DateTimeNormalizeUTC))
	data, err = MarshalAs(utc, in)
	require.NoError(t, err)
	got, err = UnmarshalAs[Stamped](utc, data)
	require.NoError(t, err)
	assert.True(t, at.Equal(*got.At))
	assert.Equal(t, time.UTC, got.At.Location())

	data, err = Marshal[any](&at)
	require.NoError(t, err)
	v, err := Unmarshal[any](data)
	require.NoError(t, err)
	require.IsType(t, &time.Time{}, v)
	assert.True(t, at.Equal(*v.(*time.Time)))
}

func TestContainers(t *testing.T) {
	set := map[string]struct{}{"b": {}, "a": {}}
	data, err := Marshal(set)
	require.NoError(t, err)
	gotSet, err := Unmarshal[map[string]struct{}](data)
	require.NoError(t, err)
	assert.Equal(t, set, gotSet)
	asSlice, err := Unmarshal[[]string](data)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, asSlice)

	m := map[int]string{2: "b", 1: "a"}
	first, err := Marshal(m)
	require.NoError(t, err)
	second, err := Marshal(m)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	gotMap, err := Unmarshal[map[int]string](first)
	require.NoError(t, err)
	assert.Equal(t, m, gotMap)

	data, err = Marshal(map[string]int{})
	require.NoError(t, err)
	emptyMap, err := Unmarshal[map[string]int](data)
	require.NoError(t, err)
	assert.NotNil(t, emptyMap)
	assert.Empty(t, emptyMap)

	grid := [2][3]int{{1, 2, 3}, {4, 5, 6}}
	data, err = Marshal(grid)
	require.NoError(t, err)
	gotGrid, err := Unmarshal[[2][3]int](data)
	require.NoError(t, err)
	assert.Equal(t, grid, gotGrid)

	cube := [2][2][2]int{{{1, 2}, {3, 4}}, {{5, 6}, {7, 8}}}
	data, err = Marshal(cube)
	require.NoError(t, err)
	gotCube, err := Unmarshal[[2][2][2]int](data)
	require.NoError(t, err)
	assert.Equal(t, cube, gotCube)

	data, err = Marshal[any]([2]string{"x", "y"})
	require.NoError(t, err)
	anyArr, err := Unmarshal[any](data)
	require.NoError(t, err)
	assert.Equal(t, [2]string{"x", "y"}, anyArr)

	data, err = Marshal([]byte("abc"))
	require.NoError(t, err)
	b, err := Unmarshal[[]byte](data)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), b)
}

func roundTrip[T any](t *testing.T, v T) T {
	t.Helper()
	data, err := Marshal(v)
	require.NoError(t, err)
	got, err := Unmarshal[T](data)
	require.NoError(t, err)
	assert.Equal(t, v, got)
	return got
}

func TestTupleArities(t *testing.T) {
	tests := []struct {
		name string
		run  func(t *testing.T)
	}{
		{"1", func(t *testing.T) { roundTrip(t, Tuple1[string]{V1: "one"}) }},
		{"4", func(t *testing.T) {
			roundTrip(t, Tuple4[int, string, bool, float64]{V1: 1, V2: "b", V3: true, V4: 4.5})
		}},
		{"5", func(t *testing.T) {
			roundTrip(t, Tuple5[int8, int16, int32, int64, uint]{V1: 1, V2: 2, V3: 3, V4: 4, V5: 5})
		}},
		{"6", func(t *testing.T) {
			roundTrip(t, Tuple6[string, string, string, string, string, []int]{
				V1: "a", V2: "b", V3: "a", V4: "", V5: "e", V6: []int{6},
			})
		}},
		{"7", func(t *testing.T) {
			roundTrip(t, Tuple7[int, int, int, int, int, int, *Address]{
				V1: 1, V2: 2, V3: 3, V4: 4, V5: 5, V6: 6, V7: &Address{City: "Bergen", Zip: 5003},
			})
		}},
		{"8", func(t *testing.T) {
			roundTrip(t, Tuple8[bool, byte, rune, string, float32, uuid.UUID, time.Duration, Tuple2[int, string]]{
				V1: true, V2: 2, V3: 'c', V4: "d", V5: 5.5,
				V6: uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8"),
				V7: time.Minute, V8: Pair(8, "h"),
			})
		}},
		{"8 as any", func(t *testing.T) {
			v := Tuple8[int, int, int, int, int, int, int, int]{V1: 1, V2: 2, V3: 3, V4: 4, V5: 5, V6: 6, V7: 7, V8: 8}
			data, err := Marshal[any](v)
			require.NoError(t, err)
			got, err := Unmarshal[any](data)
			require.NoError(t, err)
			assert.Equal(t, v, got)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, tt.run)
	}
}

func TestPointerArrayAliasing(t *testing.T) {
	a := &Address{City: "A"}
	b := &Address{City: "B"}
	got := roundTrip(t, [4]*Address{a, b, b, a})
	assert.Same(t, got[0], got[3])
	assert.Same(t, got[1], got[2])
	assert.NotSame(t, got[0], got[1])

	nested := roundTrip(t, [2][2]*Address{{a, b}, {b, a}})
	assert.Same(t, nested[0][0], nested[1][1])
	assert.Same(t, nested[0][1], nested[1][0])
}

func TestTuples(t *testing.T) {
	data, err := Marshal[any](Pair(1, "x"))
	require.NoError(t, err)
	got, err := Unmarshal[any](data)
	require.NoError(t, err)
	assert.Equal(t, Pair(1, "x"), got)

	data, err = Marshal(Triple(int8(1), "two", 3.0))
	require.NoError(t, err)
	tri, err := Unmarshal[Tuple3[int8, string, float64]](data)
	require.NoError(t, err)
	assert.Equal(t, Triple(int8(1), "two", 3.0), tri)

	data, err = Marshal(KV("k", 9))
	require.NoError(t, err)
	kv, err := Unmarshal[KeyValue[string, int64]](data)
	require.NoError(t, err)
	assert.Equal(t, KV("k", int64(9)), kv)
}

func TestEnumerable(t *testing.T) {
	seq := slices.Values([]int{1, 2, 3})
	data, err := Marshal(seq)
	require.NoError(t, err)

	got, err := Unmarshal[iter.Seq[int]](data)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, slices.Collect(got))

	asSlice, err := Unmarshal[[]int](data)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, asSlice)
}

func TestTypeValues(t *testing.T) {
	data, err := Marshal(reflect.TypeFor[map[string][]int]())
	require.NoError(t, err)
	got, err := Unmarshal[reflect.Type](data)
	require.NoError(t, err)
	assert.Equal(t, reflect.TypeFor[map[string][]int](), got)
}

type audited struct {
	Name   string
	saved  int
	loaded int
}

func (a *audited) BeforeSerialize() error {
	a.saved++
	return nil
}

func (a *audited) AfterDeserialize() error {
	a.loaded++
	return nil
}

type failing struct {
	A int
}

func (f *failing) BeforeSerialize() error { return errors.New("boom") }

func TestLifecycleHooks(t *testing.T) {
	a := &audited{Name: "x"}
	data, err := Marshal(a)
	require.NoError(t, err)
	assert.Equal(t, 1, a.saved)

	got, err := Unmarshal[*audited](data)
	require.NoError(t, err)
	assert.Equal(t, "x", got.Name)
	assert.Equal(t, 1, got.loaded)

	_, err = Marshal(&failing{})
	assert.ErrorIs(t, err, merr.ErrSerdeCallback)
}

type Money struct {
	cents    int64
	currency string
}

func (m Money) GetObjectData(info *SerializationInfo) error {
	info.Add("cents", m.cents)
	info.Add("currency", m.currency)
	return nil
}

func (m *Money) SetObjectData(info *SerializationInfo) error {
	cents, err := InfoValue[int64](info, "cents")
	if err != nil {
		return err
	}
	cur, err := InfoValue[string](info, "currency")
	if err != nil {
		return err
	}
	m.cents, m.currency = cents, cur
	return nil
}

type Version struct {
	major, minor uint8
}

func (v Version) MarshalBinary() ([]byte, error) { return []byte{v.major, v.minor}, nil }

func (v *Version) UnmarshalBinary(data []byte) error {
	if len(data) != 2 {
		return errors.Newf("version needs 2 bytes, got %d", len(data))
	}
	v.major, v.minor = data[0], data[1]
	return nil
}

func TestSerializationInfo(t *testing.T) {
	data, err := Marshal(Money{cents: 1250, currency: "EUR"})
	require.NoError(t, err)
	got, err := Unmarshal[Money](data)
	require.NoError(t, err)
	assert.Equal(t, Money{cents: 1250, currency: "EUR"}, got)

	v := &Version{major: 2, minor: 7}
	data, err = Marshal([]*Version{v, v})
	require.NoError(t, err)
	versions, err := Unmarshal[[]*Version](data)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, Version{major: 2, minor: 7}, *versions[0])
	assert.Same(t, versions[0], versions[1])
}

type Celsius struct {
	Deg float64
}

func TestCustomType(t *testing.T) {
	_, err := RegisterCustom(4100,
		func(w binio.Writer, v Celsius) error {
			w.PutFloat64(v.Deg)
			return nil
		},
		func(r *binio.Reader) (Celsius, error) {
			f, err := r.ReadFloat64()
			return Celsius{Deg: f}, err
		})
	require.NoError(t, err)

	data, err := Marshal([]Celsius{{Deg: 21.5}, {Deg: -3}})
	require.NoError(t, err)
	got, err := Unmarshal[[]Celsius](data)
	require.NoError(t, err)
	assert.Equal(t, []Celsius{{Deg: 21.5}, {Deg: -3}}, got)
}

type unnumbered struct {
	A int
}

type numbered struct {
	A int
}

func TestStrictTypeCodes(t *testing.T) {
	s := New(WithStrictTypeCodes(true))
	_, err := s.Marshal(nil, unnumbered{A: 1})
	assert.ErrorIs(t, err, merr.ErrSerdeUnregisteredType)

	_, err = RegisterTypeCode[numbered](9001)
	require.NoError(t, err)
	data, err := s.Marshal(nil, numbered{A: 5})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "numbered")

	got, err := s.Unmarshal(nil, data)
	require.NoError(t, err)
	assert.Equal(t, numbered{A: 5}, got)
}

func TestDepthLimit(t *testing.T) {
	var head *Node
	for i := 0; i < 10; i++ {
		head = &Node{Value: i, Next: head}
	}
	shallow := New(WithMaxDepth(5))
	_, err := shallow.Marshal(nil, head)
	assert.ErrorIs(t, err, merr.ErrSerdeDepthExceeded)

	data, err := Marshal(head)
	require.NoError(t, err)
	_, err = shallow.Unmarshal(reflect.TypeFor[*Node](), data)
	assert.ErrorIs(t, err, merr.ErrSerdeDepthExceeded)

	got, err := Unmarshal[*Node](data)
	require.NoError(t, err)
	assert.Equal(t, 9, got.Value)
}

func TestMalformedInput(t *testing.T) {
	data, err := Marshal(newPerson())
	require.NoError(t, err)
	for i := 0; i < len(data); i++ {
		_, err := Unmarshal[*Person](data[:i])
		assert.Error(t, err, "truncated at %d", i)
	}

	_, err = Unmarshal[int](append(data[:0:0], 0x16, 0x02, 0x00))
	assert.ErrorIs(t, err, merr.ErrSerdeInvalidFormat)
}

func TestUnmarshalInto(t *testing.T) {
	data, err := Marshal(newPerson())
	require.NoError(t, err)

	var p Person
	require.NoError(t, Default().UnmarshalInto(data, &p))
	assert.Equal(t, "Ann", p.Name)

	assert.ErrorIs(t, Default().UnmarshalInto(data, p), merr.ErrParameterInvalid)
}

func TestConcurrentUse(t *testing.T) {
	s := New()
	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			p := newPerson()
			p.Age = i
			data, err := MarshalAs(s, p)
			if err != nil {
				return err
			}
			got, err := UnmarshalAs[*Person](s, data)
			if err != nil {
				return err
			}
			if got.Age != i {
				return errors.Newf("age %d, want %d", got.Age, i)
			}
			return nil
		})
	}
	assert.NoError(t, g.Wait())
}
