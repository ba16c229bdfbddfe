package serde

import (
	"bufio"
	"encoding/binary"
	"io"
	"reflect"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/lk2023060901/danmu-garden-serde/pkg/metrics"
	"github.com/lk2023060901/danmu-garden-serde/pkg/serde/binio"
	"github.com/lk2023060901/danmu-garden-serde/pkg/util/merr"
)

// MaxStreamValueSize 为流中单个值编码后的长度上限。
const MaxStreamValueSize = 1 << 30

// Encoder 将多个对象图依次写入 io.Writer，每个值使用独立的引用表。
//
// 说明：
//   - 每个值以 uvarint 长度前缀加编码结果写出，Decoder 据此逐个读取；
//   - 每次 Encode 结束都会刷新缓冲。
type Encoder struct {
	s  *Serializer
	pw *binio.PageWriter
}

func NewEncoder(w io.Writer) *Encoder {
	return Default().NewEncoder(w)
}

func (s *Serializer) NewEncoder(w io.Writer) *Encoder {
	return &Encoder{s: s, pw: binio.NewPageWriter(w)}
}

// Encode 写出一个值并刷新缓冲。
func (e *Encoder) Encode(declared reflect.Type, v any) (err error) {
	if e.pw == nil {
		return merr.WrapErrOperationNotSupported("encode", "encoder is closed")
	}
	start := time.Now()
	before := e.pw.Written()
	defer func() { e.s.observe(metrics.SerializeLabel, start, int(e.pw.Written()-before), err) }()

	declared, rv, err := checkDeclared(declared, v)
	if err != nil {
		return err
	}
	gw := binio.NewGrowableWriter()
	defer gw.Release()
	if err := e.s.encode(gw, declared, rv); err != nil {
		return err
	}
	e.pw.PutLenBytes(gw.Bytes())
	return e.pw.Flush()
}

// Close 写出剩余数据并归还缓冲页，不关闭底层 io.Writer。
func (e *Encoder) Close() error {
	if e.pw == nil {
		return nil
	}
	err := e.pw.Close()
	e.pw = nil
	return err
}

// Decoder 依次读取 Encoder 写出的值，每次只读取一个值所需的字节；读完时返回 io.EOF。
type Decoder struct {
	s   *Serializer
	src *bufio.Reader
}

func NewDecoder(r io.Reader) *Decoder {
	return Default().NewDecoder(r)
}

func (s *Serializer) NewDecoder(r io.Reader) *Decoder {
	return &Decoder{s: s, src: bufio.NewReader(r)}
}

// next 读取下一个值的编码结果。
// 注意：解码出的 []byte 等值可能引用该切片，因此每个值使用独立的缓冲。
func (d *Decoder) next() ([]byte, error) {
	n, err := binary.ReadUvarint(d.src)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, merr.WrapErrSerdeUnexpectedEOF(0, 1, 0)
		}
		return nil, merr.WrapErrIoFailed("decoder source", err)
	}
	if n > MaxStreamValueSize {
		return nil, merr.WrapErrSerdeInvalidFormat(0, "stream value of %d bytes exceeds limit %d", n, MaxStreamValueSize)
	}
	data := make([]byte, n)
	if got, err := io.ReadFull(d.src, data); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, merr.WrapErrSerdeUnexpectedEOF(got, int(n)-got, 0)
		}
		return nil, merr.WrapErrIoFailed("decoder source", err)
	}
	return data, nil
}

// Decode 读取下一个值并转换为 dest。
func (d *Decoder) Decode(dest reflect.Type) (v any, err error) {
	data, err := d.next()
	if err != nil {
		return nil, err
	}
	return d.s.Unmarshal(dest, data)
}

// DecodeInto 读取下一个值并写入 ptr 指向的变量。
func (d *Decoder) DecodeInto(ptr any) error {
	rv, err := targetOf(ptr)
	if err != nil {
		return err
	}
	v, err := d.Decode(rv.Type())
	if err != nil {
		return err
	}
	assign(rv, v)
	return nil
}
