package binio

import (
	"encoding/binary"
	"math"

	"github.com/lk2023060901/danmu-garden-serde/pkg/util/merr"
)

// Reader 为内存字节序列上的顺序读游标。
type Reader struct {
	data []byte
	pos  int
}

func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

func (r *Reader) Pos() int { return r.pos }

func (r *Reader) Remaining() int { return len(r.data) - r.pos }

func (r *Reader) need(n int) error {
	if n < 0 || r.Remaining() < n {
		return merr.WrapErrSerdeUnexpectedEOF(r.pos, n, r.Remaining())
	}
	return nil
}

func (r *Reader) ReadByte() (byte, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

// ReadBytes 返回接下来 n 个字节的视图，调用方需要保留时应自行拷贝。
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	b := r.data[r.pos : r.pos+n : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *Reader) ReadUvarint() (uint64, error) {
	v, n := binary.Uvarint(r.data[r.pos:])
	switch {
	case n == 0:
		return 0, merr.WrapErrSerdeUnexpectedEOF(r.pos, 1, r.Remaining())
	case n < 0:
		return 0, merr.WrapErrSerdeInvalidFormat(r.pos, "varint overflows 64 bits")
	}
	r.pos += n
	return v, nil
}

func (r *Reader) ReadVarint() (int64, error) {
	u, err := r.ReadUvarint()
	if err != nil {
		return 0, err
	}
	return int64(u>>1) ^ -int64(u&1), nil
}

// PeekUvarint 读取但不消费下一个 varint。
func (r *Reader) PeekUvarint() (uint64, error) {
	pos := r.pos
	v, err := r.ReadUvarint()
	r.pos = pos
	return v, err
}

func (r *Reader) ReadUint16() (uint16, error) {
	b, err := r.ReadBytes(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *Reader) ReadUint32() (uint32, error) {
	b, err := r.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *Reader) ReadUint64() (uint64, error) {
	b, err := r.ReadBytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *Reader) ReadFloat32() (float32, error) {
	u, err := r.ReadUint32()
	return math.Float32frombits(u), err
}

func (r *Reader) ReadFloat64() (float64, error) {
	u, err := r.ReadUint64()
	return math.Float64frombits(u), err
}

// ReadLen 读取长度前缀，并校验剩余字节至少能容纳 n*minElem 个字节。
func (r *Reader) ReadLen(minElem int) (int, error) {
	pos := r.pos
	n, err := r.ReadUvarint()
	if err != nil {
		return 0, err
	}
	if n > uint64(math.MaxInt32) || (minElem > 0 && n > uint64(r.Remaining()/minElem)) {
		return 0, merr.WrapErrSerdeInvalidFormat(pos, "length %d exceeds remaining %d bytes", n, r.Remaining())
	}
	return int(n), nil
}

func (r *Reader) ReadString() (string, error) {
	n, err := r.ReadLen(1)
	if err != nil {
		return "", err
	}
	b, err := r.ReadBytes(n)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadLenBytes 读取长度前缀的字节块并返回其副本。
func (r *Reader) ReadLenBytes() ([]byte, error) {
	n, err := r.ReadLen(1)
	if err != nil {
		return nil, err
	}
	b, err := r.ReadBytes(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}
