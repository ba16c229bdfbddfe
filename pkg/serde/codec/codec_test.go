package codec

import (
	"bytes"
	"math"
	"math/big"
	"net/url"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/danmu-garden-serde/pkg/serde/binio"
	"github.com/lk2023060901/danmu-garden-serde/pkg/serde/wire"
	"github.com/lk2023060901/danmu-garden-serde/pkg/util/merr"
)

var settings = &Settings{}

func encode(t *testing.T, v any) []byte {
	t.Helper()
	info, ok := Resolve(reflect.TypeOf(v))
	require.True(t, ok, "no codec for %T", v)
	w := binio.NewGrowableWriter()
	defer w.Release()
	require.NoError(t, info.Encode(w, reflect.ValueOf(v), settings))
	return w.Detach()
}

func decode(t *testing.T, data []byte) any {
	t.Helper()
	r := binio.NewReader(data)
	tag, err := ReadTag(r)
	require.NoError(t, err)
	info, ok := LookupTag(tag)
	require.True(t, ok, "no decoder for %s", tag)
	v, err := info.Decode(r, tag)
	require.NoError(t, err)
	require.Equal(t, 0, r.Remaining())
	return v.Interface()
}

func TestPrimitiveRoundTrip(t *testing.T) {
	u, _ := url.Parse("https://example.com/a?b=c")
	values := []any{
		true, false,
		int8(-5), int8(math.MinInt8), uint8(200),
		int16(-300), uint16(60000),
		int32(math.MinInt32), uint32(math.MaxUint32),
		int64(math.MaxInt64), uint64(math.MaxUint64),
		int(-1), uint(7), uintptr(99),
		float32(1.25), float64(-3.5),
		complex64(complex(1, 2)), complex(3.5, -4.25),
		"héllo",
		uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8"),
		time.Date(2024, 2, 29, 12, 30, 45, 123456700, time.UTC),
		90 * time.Second,
		big.NewInt(-123456789012345),
	}
	for _, v := range values {
		got := decode(t, encode(t, v))
		assert.Equal(t, v, got, "%T", v)
	}

	gotURL := decode(t, encode(t, u)).(*url.URL)
	assert.Equal(t, u.String(), gotURL.String())

	var sb strings.Builder
	sb.WriteString("built")
	assert.Equal(t, "built", decode(t, encode(t, &sb)).(*strings.Builder).String())
	assert.Equal(t, []byte("buf"), decode(t, encode(t, bytes.NewBufferString("buf"))).(*bytes.Buffer).Bytes())
}

func TestZeroCompaction(t *testing.T) {
	cases := []struct {
		zero, nonZero any
	}{
		{int32(0), int32(1)},
		{int64(0), int64(1)},
		{uint64(0), uint64(1)},
		{float64(0), float64(1)},
		{"", "a"},
		{uuid.Nil, uuid.New()},
		{time.Time{}, time.Unix(1, 0).UTC()},
		{time.Duration(0), time.Second},
		{new(big.Int), big.NewInt(1)},
	}
	for _, c := range cases {
		z := encode(t, c.zero)
		nz := encode(t, c.nonZero)
		assert.Len(t, z, 1, "%T zero must be a bare tag", c.zero)
		assert.Less(t, len(z), len(nz), "%T", c.zero)
		assert.Equal(t, c.zero, decode(t, z))
	}
}

func TestFloatSpecials(t *testing.T) {
	data := encode(t, math.NaN())
	assert.Equal(t, []byte{byte(wire.Float64NaN)}, data)
	assert.True(t, math.IsNaN(decode(t, data).(float64)))

	negZero := math.Copysign(0, -1)
	got := decode(t, encode(t, negZero)).(float64)
	assert.True(t, math.Signbit(got))
}

func TestNamedPrimitiveByKind(t *testing.T) {
	type Color int16
	info, ok := Resolve(reflect.TypeFor[Color]())
	require.True(t, ok)
	assert.Equal(t, wire.Int16, info.Tag)

	_, ok = Resolve(reflect.TypeFor[struct{ A int }]())
	assert.False(t, ok)
	_, ok = Resolve(reflect.TypeFor[[]int]())
	assert.False(t, ok)

	type bufferRef *bytes.Buffer
	type urlRef *url.URL
	_, ok = Resolve(reflect.TypeFor[bufferRef]())
	assert.False(t, ok)
	_, ok = Resolve(reflect.TypeFor[urlRef]())
	assert.False(t, ok)
	_, ok = LookupKind(reflect.Pointer)
	assert.False(t, ok)
}

func TestOverflow(t *testing.T) {
	w := binio.NewGrowableWriter()
	defer w.Release()
	PutTag(w, wire.Int16)
	w.PutVarint(math.MaxInt16 + 1)

	r := binio.NewReader(w.Detach())
	tag, err := ReadTag(r)
	require.NoError(t, err)
	info, _ := LookupTag(tag)
	_, err = info.Decode(r, tag)
	assert.ErrorIs(t, err, merr.ErrSerdeNumericOverflow)

	_, err = CheckedUnsigned[uint8](256)
	assert.ErrorIs(t, err, merr.ErrSerdeNumericOverflow)
	v, err := CheckedSigned[int8](-128)
	require.NoError(t, err)
	assert.Equal(t, int8(-128), v)
}

func TestZigzag(t *testing.T) {
	assert.Equal(t, uint64(0), Zigzag(0))
	assert.Equal(t, uint64(1), Zigzag(-1))
	assert.Equal(t, uint64(2), Zigzag(1))
	assert.Equal(t, uint64(3), Zigzag(int8(-2)))
	for _, n := range []int64{0, 1, -1, math.MaxInt64, math.MinInt64, 12345, -12345} {
		assert.Equal(t, n, Unzigzag(Zigzag(n)))
	}
}

func TestTicks(t *testing.T) {
	assert.Equal(t, int64(0), TimeToTicks(time.Date(1, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, unixEpochTicks, TimeToTicks(time.Unix(0, 0)))

	before := time.Date(1900, 6, 1, 0, 0, 0, 500, time.UTC)
	assert.True(t, before.Equal(TicksToTime(TimeToTicks(before))))
}

func TestTimeKinds(t *testing.T) {
	zone := time.FixedZone("CST", 8*3600)
	at := time.Date(2023, 11, 5, 8, 0, 0, 0, zone)

	w := binio.NewGrowableWriter()
	defer w.Release()
	EncodeTime(w, at, DateTimeAsIs)
	got, err := DecodeTime(binio.NewReader(w.Detach()))
	require.NoError(t, err)
	assert.True(t, at.Equal(got))
	_, offset := got.Zone()
	assert.Equal(t, 8*3600, offset)

	w2 := binio.NewGrowableWriter()
	defer w2.Release()
	EncodeTime(w2, at, DateTimeNormalizeUTC)
	got, err = DecodeTime(binio.NewReader(w2.Detach()))
	require.NoError(t, err)
	assert.True(t, at.Equal(got))
	assert.Equal(t, time.UTC, got.Location())

	local := time.Date(2023, 1, 2, 3, 4, 5, 0, time.Local)
	for _, h := range []DateTimeHandling{DateTimeAsIs, DateTimeNormalizeUTC} {
		w3 := binio.NewGrowableWriter()
		EncodeTime(w3, local, h)
		got, err = DecodeTime(binio.NewReader(w3.Detach()))
		w3.Release()
		require.NoError(t, err)
		assert.True(t, local.Equal(got), h.String())
		assert.Equal(t, time.Local, got.Location())
	}

	_, err = DecodeTime(binio.NewReader([]byte{9, 0}))
	assert.ErrorIs(t, err, merr.ErrSerdeInvalidFormat)
}

type celsius struct{ deg float64 }

func TestRegisterCustom(t *testing.T) {
	typ := reflect.TypeFor[celsius]()
	ser := func(w binio.Writer, v any) error {
		w.PutFloat64(v.(celsius).deg)
		return nil
	}
	des := func(r *binio.Reader) (any, error) {
		f, err := r.ReadFloat64()
		return celsius{f}, err
	}
	ok, err := RegisterCustom(4001, typ, ser, des)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = RegisterCustom(4001, typ, ser, des)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = RegisterCustom(4001, reflect.TypeFor[*celsius](), ser, des)
	assert.ErrorIs(t, err, merr.ErrSerdeDuplicateType)
	_, err = RegisterCustom(4002, typ, ser, des)
	assert.ErrorIs(t, err, merr.ErrSerdeDuplicateType)
	_, err = RegisterCustom(wire.MaxCustomCode, reflect.TypeFor[*url.Userinfo](), ser, des)
	assert.ErrorIs(t, err, merr.ErrParameterInvalid)

	data := encode(t, celsius{21.5})
	tag, _ := ReadTag(binio.NewReader(data))
	assert.Equal(t, wire.CustomTag(4001), tag)
	assert.True(t, tag.IsCustom())
	assert.Equal(t, uint32(4001), tag.CustomCode())
	assert.Equal(t, celsius{21.5}, decode(t, data))
}

type Widget struct{}

func TestNames(t *testing.T) {
	assert.Equal(t, "github.com/acme/lib/pkg", StripMajorVersion("github.com/acme/lib/v2/pkg"))
	assert.Equal(t, "github.com/acme/lib", StripMajorVersion("github.com/acme/lib/v3"))
	assert.Equal(t, "github.com/acme/vault", StripMajorVersion("github.com/acme/vault"))

	typ := reflect.TypeFor[Widget]()
	RegisterType(typ)
	pkg, name := DefaultBinder{}.BindToName(typ)
	got, ok := DefaultBinder{}.BindToType(pkg, name)
	require.True(t, ok)
	assert.Equal(t, typ, got)

	pkg, name = PortableBinder{}.BindToName(typ)
	got, ok = PortableBinder{}.BindToType(pkg, name)
	require.True(t, ok)
	assert.Equal(t, typ, got)

	name, ok = BuiltinName(reflect.TypeFor[any]())
	require.True(t, ok)
	assert.Equal(t, AnyName, name)
	bt, ok := BuiltinType("uint8")
	require.True(t, ok)
	assert.Equal(t, reflect.TypeFor[byte](), bt)
	_, ok = BuiltinName(typ)
	assert.False(t, ok)

	ok, err := RegisterTypeCode(77, typ)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = RegisterTypeCode(77, typ)
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = RegisterTypeCode(77, reflect.TypeFor[celsius]())
	assert.ErrorIs(t, err, merr.ErrSerdeDuplicateType)
	code, ok := CodeOf(typ)
	require.True(t, ok)
	assert.Equal(t, uint32(77), code)
	byCode, ok := TypeByCode(77)
	require.True(t, ok)
	assert.Equal(t, typ, byCode)
}
