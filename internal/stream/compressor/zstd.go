package compressor

import (
	"github.com/klauspost/compress/zstd"

	"github.com/lk2023060901/danmu-garden-serde/pkg/util/hardware"
)

// ZstdCompressor 基于 github.com/klauspost/compress/zstd 的压缩实现。
//
// 它持有独立的 encoder/decoder 实例，由调用方决定实例的生命周期与复用策略。
type ZstdCompressor struct {
	enc             *zstd.Encoder
	dec             *zstd.Decoder
	minCompressSize int
}

var _ Compressor = (*ZstdCompressor)(nil)

// NewZstdCompressor 创建一个 ZstdCompressor，默认并发度为主机 CPU 核心数。
func NewZstdCompressor() (*ZstdCompressor, error) {
	return NewZstdCompressorWithConcurrency(0)
}

// NewZstdCompressorWithConcurrency 创建一个 ZstdCompressor，concurrency <= 0 时使用 hardware.GetCPUNum()。
func NewZstdCompressorWithConcurrency(concurrency int) (*ZstdCompressor, error) {
	if concurrency <= 0 {
		concurrency = hardware.GetCPUNum()
	}

	enc, err := zstd.NewWriter(nil,
		zstd.WithZeroFrames(true),
		zstd.WithEncoderConcurrency(concurrency),
	)
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(concurrency))
	if err != nil {
		_ = enc.Close()
		return nil, err
	}
	return &ZstdCompressor{
		enc: enc,
		dec: dec,
	}, nil
}

// SetMinCompressSize 设置触发压缩的最小字节数，更短的输入原样返回。
//
// 注意：原样返回的数据在解压端无法与压缩数据区分，调用方需要自行记录是否压缩。
func (c *ZstdCompressor) SetMinCompressSize(n int) {
	if n < 0 {
		n = 0
	}
	c.minCompressSize = n
}

// MinCompressSize 返回触发压缩的最小字节数。
func (c *ZstdCompressor) MinCompressSize() int {
	return c.minCompressSize
}

func (c *ZstdCompressor) Compress(dst, src []byte) ([]byte, error) {
	if c == nil || c.enc == nil {
		return nil, zstd.ErrEncoderClosed
	}
	if c.minCompressSize > 0 && len(src) < c.minCompressSize {
		return src, nil
	}
	return c.enc.EncodeAll(src, dst[:0]), nil
}

func (c *ZstdCompressor) Decompress(dst, src []byte) ([]byte, error) {
	if c == nil || c.dec == nil {
		return nil, zstd.ErrDecoderClosed
	}
	return c.dec.DecodeAll(src, dst[:0])
}

// Close 释放内部 encoder/decoder 持有的资源，之后的调用返回 ErrEncoderClosed/ErrDecoderClosed。
func (c *ZstdCompressor) Close() {
	if c == nil {
		return
	}
	if c.enc != nil {
		_ = c.enc.Close()
		c.enc = nil
	}
	if c.dec != nil {
		c.dec.Close()
		c.dec = nil
	}
}
