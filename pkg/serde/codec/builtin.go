package codec

import (
	"bytes"
	"math"
	"math/big"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/constraints"

	"github.com/lk2023060901/danmu-garden-serde/pkg/serde/binio"
	"github.com/lk2023060901/danmu-garden-serde/pkg/serde/wire"
	"github.com/lk2023060901/danmu-garden-serde/pkg/util/merr"
)

func builtin(enc *EncoderInfo, dec *DecoderInfo, tags ...wire.Tag) {
	defaultRegistry.byType.Insert(enc.Type, enc)
	for _, tag := range tags {
		defaultRegistry.byTag.Insert(tag, dec)
	}
	// 只有按值编码的预声明类型可以代表同 kind 的命名类型；
	// *url.URL 等引用类型的 PkgPath 同样为空，但不能按 kind 匹配。
	if enc.Type.PkgPath() == "" && enc.Type.Kind() != reflect.Pointer && !enc.Tracked {
		defaultRegistry.byKind[enc.Type.Kind()] = enc
	}
}

func signed[T constraints.Signed](tag, zero wire.Tag) {
	t := reflect.TypeFor[T]()
	narrow := t.Bits() == 8
	raw := func(w binio.Writer, v reflect.Value, _ *Settings) {
		if narrow {
			w.PutByte(byte(int8(v.Int())))
			return
		}
		w.PutVarint(v.Int())
	}
	readRaw := func(r *binio.Reader) (reflect.Value, error) {
		if narrow {
			b, err := r.ReadByte()
			return reflect.ValueOf(T(int8(b))), err
		}
		n, err := r.ReadVarint()
		if err != nil {
			return reflect.Value{}, err
		}
		v, err := CheckedSigned[T](n)
		return reflect.ValueOf(v), err
	}
	enc := &EncoderInfo{Type: t, Tag: tag, Packable: true, encodeRaw: raw}
	enc.encode = func(w binio.Writer, v reflect.Value, s *Settings) error {
		if v.Int() == 0 {
			PutTag(w, zero)
			return nil
		}
		PutTag(w, tag)
		raw(w, v, s)
		return nil
	}
	dec := &DecoderInfo{Tag: tag, Type: t, decodeRaw: readRaw}
	dec.decode = func(r *binio.Reader, got wire.Tag) (reflect.Value, error) {
		if got == zero {
			return reflect.Zero(t), nil
		}
		return readRaw(r)
	}
	builtin(enc, dec, tag, zero)
}

func unsigned[T constraints.Unsigned](tag, zero wire.Tag) {
	t := reflect.TypeFor[T]()
	narrow := t.Bits() == 8
	raw := func(w binio.Writer, v reflect.Value, _ *Settings) {
		if narrow {
			w.PutByte(byte(v.Uint()))
			return
		}
		w.PutUvarint(v.Uint())
	}
	readRaw := func(r *binio.Reader) (reflect.Value, error) {
		if narrow {
			b, err := r.ReadByte()
			return reflect.ValueOf(T(b)), err
		}
		n, err := r.ReadUvarint()
		if err != nil {
			return reflect.Value{}, err
		}
		v, err := CheckedUnsigned[T](n)
		return reflect.ValueOf(v), err
	}
	enc := &EncoderInfo{Type: t, Tag: tag, Packable: true, encodeRaw: raw}
	enc.encode = func(w binio.Writer, v reflect.Value, s *Settings) error {
		if v.Uint() == 0 {
			PutTag(w, zero)
			return nil
		}
		PutTag(w, tag)
		raw(w, v, s)
		return nil
	}
	dec := &DecoderInfo{Tag: tag, Type: t, decodeRaw: readRaw}
	dec.decode = func(r *binio.Reader, got wire.Tag) (reflect.Value, error) {
		if got == zero {
			return reflect.Zero(t), nil
		}
		return readRaw(r)
	}
	builtin(enc, dec, tag, zero)
}

func registerBool() {
	t := reflect.TypeFor[bool]()
	enc := &EncoderInfo{Type: t, Tag: wire.True, Packable: true}
	enc.encodeRaw = func(w binio.Writer, v reflect.Value, _ *Settings) {
		if v.Bool() {
			w.PutByte(1)
		} else {
			w.PutByte(0)
		}
	}
	enc.encode = func(w binio.Writer, v reflect.Value, _ *Settings) error {
		if v.Bool() {
			PutTag(w, wire.True)
		} else {
			PutTag(w, wire.False)
		}
		return nil
	}
	dec := &DecoderInfo{Tag: wire.True, Type: t}
	dec.decodeRaw = func(r *binio.Reader) (reflect.Value, error) {
		pos := r.Pos()
		b, err := r.ReadByte()
		if err != nil {
			return reflect.Value{}, err
		}
		if b > 1 {
			return reflect.Value{}, merr.WrapErrSerdeInvalidFormat(pos, "invalid bool byte %d", b)
		}
		return reflect.ValueOf(b == 1), nil
	}
	dec.decode = func(_ *binio.Reader, got wire.Tag) (reflect.Value, error) {
		return reflect.ValueOf(got == wire.True), nil
	}
	builtin(enc, dec, wire.True, wire.False)
}

func registerFloat32() {
	t := reflect.TypeFor[float32]()
	enc := &EncoderInfo{Type: t, Tag: wire.Float32, Packable: true}
	enc.encodeRaw = func(w binio.Writer, v reflect.Value, _ *Settings) {
		w.PutFloat32(float32(v.Float()))
	}
	enc.encode = func(w binio.Writer, v reflect.Value, _ *Settings) error {
		f := v.Float()
		switch {
		case f == 0 && !math.Signbit(f):
			PutTag(w, wire.Float32Zero)
		case math.IsNaN(f):
			PutTag(w, wire.Float32NaN)
		default:
			PutTag(w, wire.Float32)
			w.PutFloat32(float32(f))
		}
		return nil
	}
	dec := &DecoderInfo{Tag: wire.Float32, Type: t}
	dec.decodeRaw = func(r *binio.Reader) (reflect.Value, error) {
		f, err := r.ReadFloat32()
		return reflect.ValueOf(f), err
	}
	dec.decode = func(r *binio.Reader, got wire.Tag) (reflect.Value, error) {
		switch got {
		case wire.Float32Zero:
			return reflect.ValueOf(float32(0)), nil
		case wire.Float32NaN:
			return reflect.ValueOf(float32(math.NaN())), nil
		}
		return dec.decodeRaw(r)
	}
	builtin(enc, dec, wire.Float32, wire.Float32Zero, wire.Float32NaN)
}

func registerFloat64() {
	t := reflect.TypeFor[float64]()
	enc := &EncoderInfo{Type: t, Tag: wire.Float64, Packable: true}
	enc.encodeRaw = func(w binio.Writer, v reflect.Value, _ *Settings) {
		w.PutFloat64(v.Float())
	}
	enc.encode = func(w binio.Writer, v reflect.Value, _ *Settings) error {
		f := v.Float()
		switch {
		case f == 0 && !math.Signbit(f):
			PutTag(w, wire.Float64Zero)
		case math.IsNaN(f):
			PutTag(w, wire.Float64NaN)
		default:
			PutTag(w, wire.Float64)
			w.PutFloat64(f)
		}
		return nil
	}
	dec := &DecoderInfo{Tag: wire.Float64, Type: t}
	dec.decodeRaw = func(r *binio.Reader) (reflect.Value, error) {
		f, err := r.ReadFloat64()
		return reflect.ValueOf(f), err
	}
	dec.decode = func(r *binio.Reader, got wire.Tag) (reflect.Value, error) {
		switch got {
		case wire.Float64Zero:
			return reflect.ValueOf(float64(0)), nil
		case wire.Float64NaN:
			return reflect.ValueOf(math.NaN()), nil
		}
		return dec.decodeRaw(r)
	}
	builtin(enc, dec, wire.Float64, wire.Float64Zero, wire.Float64NaN)
}

func registerComplex() {
	c64 := reflect.TypeFor[complex64]()
	enc64 := &EncoderInfo{Type: c64, Tag: wire.Complex64, Packable: true}
	enc64.encodeRaw = func(w binio.Writer, v reflect.Value, _ *Settings) {
		c := v.Complex()
		w.PutFloat32(float32(real(c)))
		w.PutFloat32(float32(imag(c)))
	}
	enc64.encode = func(w binio.Writer, v reflect.Value, s *Settings) error {
		PutTag(w, wire.Complex64)
		enc64.encodeRaw(w, v, s)
		return nil
	}
	dec64 := &DecoderInfo{Tag: wire.Complex64, Type: c64}
	dec64.decodeRaw = func(r *binio.Reader) (reflect.Value, error) {
		re, err := r.ReadFloat32()
		if err != nil {
			return reflect.Value{}, err
		}
		im, err := r.ReadFloat32()
		return reflect.ValueOf(complex(re, im)), err
	}
	dec64.decode = func(r *binio.Reader, _ wire.Tag) (reflect.Value, error) { return dec64.decodeRaw(r) }
	builtin(enc64, dec64, wire.Complex64)

	c128 := reflect.TypeFor[complex128]()
	enc128 := &EncoderInfo{Type: c128, Tag: wire.Complex128, Packable: true}
	enc128.encodeRaw = func(w binio.Writer, v reflect.Value, _ *Settings) {
		c := v.Complex()
		w.PutFloat64(real(c))
		w.PutFloat64(imag(c))
	}
	enc128.encode = func(w binio.Writer, v reflect.Value, s *Settings) error {
		PutTag(w, wire.Complex128)
		enc128.encodeRaw(w, v, s)
		return nil
	}
	dec128 := &DecoderInfo{Tag: wire.Complex128, Type: c128}
	dec128.decodeRaw = func(r *binio.Reader) (reflect.Value, error) {
		re, err := r.ReadFloat64()
		if err != nil {
			return reflect.Value{}, err
		}
		im, err := r.ReadFloat64()
		return reflect.ValueOf(complex(re, im)), err
	}
	dec128.decode = func(r *binio.Reader, _ wire.Tag) (reflect.Value, error) { return dec128.decodeRaw(r) }
	builtin(enc128, dec128, wire.Complex128)
}

func registerString() {
	t := reflect.TypeFor[string]()
	enc := &EncoderInfo{Type: t, Tag: wire.String}
	enc.encode = func(w binio.Writer, v reflect.Value, _ *Settings) error {
		s := v.String()
		if s == "" {
			PutTag(w, wire.StringEmpty)
			return nil
		}
		PutTag(w, wire.String)
		w.PutString(s)
		return nil
	}
	dec := &DecoderInfo{Tag: wire.String, Type: t}
	dec.decode = func(r *binio.Reader, got wire.Tag) (reflect.Value, error) {
		if got == wire.StringEmpty {
			return reflect.ValueOf(""), nil
		}
		s, err := r.ReadString()
		return reflect.ValueOf(s), err
	}
	builtin(enc, dec, wire.String, wire.StringEmpty)
}

func registerUUID() {
	t := reflect.TypeFor[uuid.UUID]()
	enc := &EncoderInfo{Type: t, Tag: wire.UUID, Packable: true}
	enc.encodeRaw = func(w binio.Writer, v reflect.Value, _ *Settings) {
		id := v.Interface().(uuid.UUID)
		w.PutBytes(id[:])
	}
	enc.encode = func(w binio.Writer, v reflect.Value, s *Settings) error {
		if v.Interface().(uuid.UUID) == uuid.Nil {
			PutTag(w, wire.UUIDEmpty)
			return nil
		}
		PutTag(w, wire.UUID)
		enc.encodeRaw(w, v, s)
		return nil
	}
	dec := &DecoderInfo{Tag: wire.UUID, Type: t}
	dec.decodeRaw = func(r *binio.Reader) (reflect.Value, error) {
		b, err := r.ReadBytes(16)
		if err != nil {
			return reflect.Value{}, err
		}
		var id uuid.UUID
		copy(id[:], b)
		return reflect.ValueOf(id), nil
	}
	dec.decode = func(r *binio.Reader, got wire.Tag) (reflect.Value, error) {
		if got == wire.UUIDEmpty {
			return reflect.ValueOf(uuid.Nil), nil
		}
		return dec.decodeRaw(r)
	}
	builtin(enc, dec, wire.UUID, wire.UUIDEmpty)
}

func registerTime() {
	t := reflect.TypeFor[time.Time]()
	enc := &EncoderInfo{Type: t, Tag: wire.Time, Packable: true}
	enc.encodeRaw = func(w binio.Writer, v reflect.Value, s *Settings) {
		EncodeTime(w, v.Interface().(time.Time), s.DateTime)
	}
	enc.encode = func(w binio.Writer, v reflect.Value, s *Settings) error {
		if v.Interface().(time.Time).IsZero() {
			PutTag(w, wire.TimeDefault)
			return nil
		}
		PutTag(w, wire.Time)
		enc.encodeRaw(w, v, s)
		return nil
	}
	dec := &DecoderInfo{Tag: wire.Time, Type: t}
	dec.decodeRaw = func(r *binio.Reader) (reflect.Value, error) {
		tm, err := DecodeTime(r)
		return reflect.ValueOf(tm), err
	}
	dec.decode = func(r *binio.Reader, got wire.Tag) (reflect.Value, error) {
		if got == wire.TimeDefault {
			return reflect.ValueOf(time.Time{}), nil
		}
		return dec.decodeRaw(r)
	}
	builtin(enc, dec, wire.Time, wire.TimeDefault)
}

func registerDuration() {
	t := reflect.TypeFor[time.Duration]()
	enc := &EncoderInfo{Type: t, Tag: wire.Duration, Packable: true}
	enc.encodeRaw = func(w binio.Writer, v reflect.Value, _ *Settings) {
		w.PutVarint(v.Int())
	}
	enc.encode = func(w binio.Writer, v reflect.Value, s *Settings) error {
		if v.Int() == 0 {
			PutTag(w, wire.DurationZero)
			return nil
		}
		PutTag(w, wire.Duration)
		enc.encodeRaw(w, v, s)
		return nil
	}
	dec := &DecoderInfo{Tag: wire.Duration, Type: t}
	dec.decodeRaw = func(r *binio.Reader) (reflect.Value, error) {
		n, err := r.ReadVarint()
		return reflect.ValueOf(time.Duration(n)), err
	}
	dec.decode = func(r *binio.Reader, got wire.Tag) (reflect.Value, error) {
		if got == wire.DurationZero {
			return reflect.ValueOf(time.Duration(0)), nil
		}
		return dec.decodeRaw(r)
	}
	builtin(enc, dec, wire.Duration, wire.DurationZero)
}

// 以下为引用类型，参与对象表。

func registerURL() {
	t := reflect.TypeFor[*url.URL]()
	enc := &EncoderInfo{Type: t, Tag: wire.URL, Tracked: true}
	enc.encode = func(w binio.Writer, v reflect.Value, _ *Settings) error {
		PutTag(w, wire.URL)
		w.PutString(v.Interface().(*url.URL).String())
		return nil
	}
	dec := &DecoderInfo{Tag: wire.URL, Type: t, Tracked: true}
	dec.decode = func(r *binio.Reader, _ wire.Tag) (reflect.Value, error) {
		pos := r.Pos()
		s, err := r.ReadString()
		if err != nil {
			return reflect.Value{}, err
		}
		u, err := url.Parse(s)
		if err != nil {
			return reflect.Value{}, merr.WrapErrSerdeInvalidFormat(pos, "bad url %q: %v", s, err)
		}
		return reflect.ValueOf(u), nil
	}
	builtin(enc, dec, wire.URL)
}

func registerBigInt() {
	t := reflect.TypeFor[*big.Int]()
	enc := &EncoderInfo{Type: t, Tag: wire.BigInt, Tracked: true}
	enc.encode = func(w binio.Writer, v reflect.Value, _ *Settings) error {
		n := v.Interface().(*big.Int)
		if n.Sign() == 0 {
			PutTag(w, wire.BigIntZero)
			return nil
		}
		PutTag(w, wire.BigInt)
		if n.Sign() < 0 {
			w.PutByte(1)
		} else {
			w.PutByte(0)
		}
		w.PutLenBytes(n.Bytes())
		return nil
	}
	dec := &DecoderInfo{Tag: wire.BigInt, Type: t, Tracked: true}
	dec.decode = func(r *binio.Reader, got wire.Tag) (reflect.Value, error) {
		if got == wire.BigIntZero {
			return reflect.ValueOf(new(big.Int)), nil
		}
		neg, err := r.ReadByte()
		if err != nil {
			return reflect.Value{}, err
		}
		b, err := r.ReadLenBytes()
		if err != nil {
			return reflect.Value{}, err
		}
		n := new(big.Int).SetBytes(b)
		if neg == 1 {
			n.Neg(n)
		}
		return reflect.ValueOf(n), nil
	}
	builtin(enc, dec, wire.BigInt, wire.BigIntZero)
}

func registerBuilders() {
	sb := reflect.TypeFor[*strings.Builder]()
	sbEnc := &EncoderInfo{Type: sb, Tag: wire.StringBuilder, Tracked: true}
	sbEnc.encode = func(w binio.Writer, v reflect.Value, _ *Settings) error {
		PutTag(w, wire.StringBuilder)
		w.PutString(v.Interface().(*strings.Builder).String())
		return nil
	}
	sbDec := &DecoderInfo{Tag: wire.StringBuilder, Type: sb, Tracked: true}
	sbDec.decode = func(r *binio.Reader, _ wire.Tag) (reflect.Value, error) {
		s, err := r.ReadString()
		if err != nil {
			return reflect.Value{}, err
		}
		b := new(strings.Builder)
		b.WriteString(s)
		return reflect.ValueOf(b), nil
	}
	builtin(sbEnc, sbDec, wire.StringBuilder)

	bb := reflect.TypeFor[*bytes.Buffer]()
	bbEnc := &EncoderInfo{Type: bb, Tag: wire.BytesBuffer, Tracked: true}
	bbEnc.encode = func(w binio.Writer, v reflect.Value, _ *Settings) error {
		PutTag(w, wire.BytesBuffer)
		w.PutLenBytes(v.Interface().(*bytes.Buffer).Bytes())
		return nil
	}
	bbDec := &DecoderInfo{Tag: wire.BytesBuffer, Type: bb, Tracked: true}
	bbDec.decode = func(r *binio.Reader, _ wire.Tag) (reflect.Value, error) {
		b, err := r.ReadLenBytes()
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(bytes.NewBuffer(b)), nil
	}
	builtin(bbEnc, bbDec, wire.BytesBuffer)
}

func init() {
	registerBool()
	signed[int8](wire.Int8, wire.Int8Zero)
	unsigned[uint8](wire.Uint8, wire.Uint8Zero)
	signed[int16](wire.Int16, wire.Int16Zero)
	unsigned[uint16](wire.Uint16, wire.Uint16Zero)
	signed[int32](wire.Int32, wire.Int32Zero)
	unsigned[uint32](wire.Uint32, wire.Uint32Zero)
	signed[int64](wire.Int64, wire.Int64Zero)
	unsigned[uint64](wire.Uint64, wire.Uint64Zero)
	signed[int](wire.Int, wire.IntZero)
	unsigned[uint](wire.Uint, wire.UintZero)
	unsigned[uintptr](wire.Uintptr, wire.UintptrZero)
	registerFloat32()
	registerFloat64()
	registerComplex()
	registerString()
	registerUUID()
	registerTime()
	registerDuration()
	registerURL()
	registerBigInt()
	registerBuilders()
}
