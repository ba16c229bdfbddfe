// Package framer 将 Envelope 打包为长度前缀帧，用于在字节流中承载多个对象图。
package framer

import (
	"encoding/binary"
	"io"

	"github.com/lk2023060901/danmu-garden-serde/internal/pool/bytebuffer"
	"github.com/lk2023060901/danmu-garden-serde/pkg/util/merr"
)

// Framer 抽象了基于 Envelope 的打包/解包能力。
//
// 约定：一帧数据的格式为 4 字节大端无符号整型（Envelope 编码后的长度）加 Envelope 数据。
type Framer interface {
	// WriteFrame 将 Envelope 打包为一帧并写入到 w 中。
	WriteFrame(w io.Writer, env *Envelope) error

	// ReadFrame 从 r 中读取一帧数据并解包为 Envelope；r 恰好读完时返回 io.EOF。
	ReadFrame(r io.Reader) (*Envelope, error)
}

// LengthPrefixedFramer 使用 4 字节大端长度前缀作为帧边界。
type LengthPrefixedFramer struct {
	// MaxFrameSize 为允许的最大帧大小，单位字节，为 0 时使用 DefaultMaxFrameSize。
	MaxFrameSize uint32
}

// DefaultMaxFrameSize 为默认的最大帧大小。
const DefaultMaxFrameSize uint32 = 16 * 1024 * 1024

var _ Framer = (*LengthPrefixedFramer)(nil)

// NewLengthPrefixedFramer 创建一个长度前缀帧编码器，maxFrameSize 为 0 时使用默认值。
func NewLengthPrefixedFramer(maxFrameSize uint32) *LengthPrefixedFramer {
	if maxFrameSize == 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	return &LengthPrefixedFramer{
		MaxFrameSize: maxFrameSize,
	}
}

// WriteFrame 将 Envelope 编码为长度前缀帧并写入。
func (f *LengthPrefixedFramer) WriteFrame(w io.Writer, env *Envelope) error {
	if env == nil {
		return merr.WrapErrParameterMissing("envelope")
	}

	size := env.Size()
	if uint64(size) > uint64(f.effectiveMaxSize()) {
		return merr.WrapErrStreamFrameTooLarge(uint64(size), uint64(f.effectiveMaxSize()))
	}

	buf := bytebuffer.Get()
	defer bytebuffer.Put(buf)

	buf.B = binary.BigEndian.AppendUint32(buf.B[:0], uint32(size))
	buf.B = env.AppendBinary(buf.B)
	if _, err := w.Write(buf.B); err != nil {
		return merr.WrapErrIoFailed("write frame", err)
	}
	return nil
}

// ReadFrame 从流中读取一帧数据并解码为 Envelope。
func (f *LengthPrefixedFramer) ReadFrame(r io.Reader) (*Envelope, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, merr.WrapErrStreamCorrupted("read frame header: %v", err)
	}

	length := binary.BigEndian.Uint32(header[:])
	if length > f.effectiveMaxSize() {
		return nil, merr.WrapErrStreamFrameTooLarge(uint64(length), uint64(f.effectiveMaxSize()))
	}

	// 使用 ByteBuffer 池降低频繁 make 带来的分配与 GC 压力。
	buf := bytebuffer.Get()
	defer bytebuffer.Put(buf)

	if cap(buf.B) < int(length) {
		buf.B = make([]byte, int(length))
	} else {
		buf.B = buf.B[:int(length)]
	}
	if _, err := io.ReadFull(r, buf.B); err != nil {
		return nil, merr.WrapErrStreamCorrupted("read frame body: %v", err)
	}

	env := &Envelope{}
	if err := env.UnmarshalBinary(buf.B); err != nil {
		return nil, err
	}
	return env, nil
}

func (f *LengthPrefixedFramer) effectiveMaxSize() uint32 {
	if f == nil || f.MaxFrameSize == 0 {
		return DefaultMaxFrameSize
	}
	return f.MaxFrameSize
}
