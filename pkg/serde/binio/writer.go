// Package binio 提供对象图编码使用的底层字节读写原语。
//
// 说明：
//   - Writer 有两种实现：写入 io.Writer 的 PageWriter 与写入内存的 GrowableWriter；
//   - 多字节定长整数均为小端序，变长整数为 LEB128；
//   - 写入错误是粘滞的，通过 Err 或 Flush 统一返回。
package binio

import (
	"encoding/binary"
	"math"
)

// maxReserve 为单次 reserve 的上限，覆盖最长的 varint。
const maxReserve = binary.MaxVarintLen64

// Writer 为对象图编码的字节输出端。
type Writer interface {
	PutByte(b byte)
	PutBytes(p []byte)
	PutUvarint(v uint64)
	PutVarint(v int64)
	PutUint16(v uint16)
	PutUint32(v uint32)
	PutUint64(v uint64)
	PutFloat32(v float32)
	PutFloat64(v float64)
	// PutString 写出长度前缀与 UTF-8 字节。
	PutString(s string)
	// PutLenBytes 写出长度前缀与原始字节。
	PutLenBytes(p []byte)
	// Written 返回累计写出的字节数。
	Written() int64
	// Err 返回第一个写入错误。
	Err() error
}

// sink 为具体缓冲实现需要提供的两个原语。
type sink interface {
	// reserve 返回长度恰为 n 的可写区间，n 不超过 maxReserve。
	reserve(n int) []byte
	// putBytes 追加任意长度的字节。
	putBytes(p []byte)
}

// encoder 基于 sink 实现 Writer 的全部编码方法，由具体实现嵌入。
type encoder struct {
	s       sink
	written int64
}

func (e *encoder) PutByte(b byte) {
	e.s.reserve(1)[0] = b
	e.written++
}

func (e *encoder) PutBytes(p []byte) {
	e.s.putBytes(p)
	e.written += int64(len(p))
}

func (e *encoder) PutUvarint(v uint64) {
	var tmp [maxReserve]byte
	n := binary.PutUvarint(tmp[:], v)
	copy(e.s.reserve(n), tmp[:n])
	e.written += int64(n)
}

func (e *encoder) PutVarint(v int64) {
	e.PutUvarint(uint64(v<<1) ^ uint64(v>>63))
}

func (e *encoder) PutUint16(v uint16) {
	binary.LittleEndian.PutUint16(e.s.reserve(2), v)
	e.written += 2
}

func (e *encoder) PutUint32(v uint32) {
	binary.LittleEndian.PutUint32(e.s.reserve(4), v)
	e.written += 4
}

func (e *encoder) PutUint64(v uint64) {
	binary.LittleEndian.PutUint64(e.s.reserve(8), v)
	e.written += 8
}

func (e *encoder) PutFloat32(v float32) { e.PutUint32(math.Float32bits(v)) }

func (e *encoder) PutFloat64(v float64) { e.PutUint64(math.Float64bits(v)) }

func (e *encoder) PutString(s string) {
	e.PutUvarint(uint64(len(s)))
	if len(s) > 0 {
		e.s.putBytes([]byte(s))
		e.written += int64(len(s))
	}
}

func (e *encoder) PutLenBytes(p []byte) {
	e.PutUvarint(uint64(len(p)))
	e.PutBytes(p)
}

func (e *encoder) Written() int64 { return e.written }
