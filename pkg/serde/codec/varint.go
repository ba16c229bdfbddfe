package codec

import (
	"reflect"

	"golang.org/x/exp/constraints"

	"github.com/lk2023060901/danmu-garden-serde/pkg/serde/binio"
	"github.com/lk2023060901/danmu-garden-serde/pkg/serde/wire"
	"github.com/lk2023060901/danmu-garden-serde/pkg/util/merr"
)

// Zigzag 将有符号整数映射为无符号整数，使绝对值小的负数也能编码为短 varint。
func Zigzag[T constraints.Signed](n T) uint64 {
	v := int64(n)
	return uint64(v<<1) ^ uint64(v>>63)
}

// Unzigzag 为 Zigzag 的逆运算。
func Unzigzag(u uint64) int64 {
	return int64(u>>1) ^ -int64(u&1)
}

// CheckedSigned 将 n 收窄到 T，越界时返回溢出错误。
func CheckedSigned[T constraints.Signed](n int64) (T, error) {
	v := T(n)
	if int64(v) != n {
		bits := reflect.TypeFor[T]().Bits()
		return 0, merr.WrapErrSerdeNumericOverflow(reflect.TypeFor[T]().String(), n,
			-(int64(1) << (bits - 1)), int64(1)<<(bits-1)-1)
	}
	return v, nil
}

// CheckedUnsigned 将 n 收窄到 T，越界时返回溢出错误。
func CheckedUnsigned[T constraints.Unsigned](n uint64) (T, error) {
	v := T(n)
	if uint64(v) != n {
		return 0, merr.WrapErrSerdeNumericOverflow(reflect.TypeFor[T]().String(), n, 0, uint64(^T(0)))
	}
	return v, nil
}

// PutTag 写出标签。
func PutTag(w binio.Writer, tag wire.Tag) {
	w.PutUvarint(uint64(tag))
}

// ReadTag 读取标签。
func ReadTag(r *binio.Reader) (wire.Tag, error) {
	pos := r.Pos()
	v, err := r.ReadUvarint()
	if err != nil {
		return 0, err
	}
	if v > uint64(^uint32(0)) {
		return 0, merr.WrapErrSerdeInvalidFormat(pos, "tag %d out of range", v)
	}
	return wire.Tag(v), nil
}
