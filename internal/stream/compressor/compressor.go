// Package compressor 提供帧负载的单次压缩与解压。
package compressor

import (
	"github.com/lk2023060901/danmu-garden-serde/pkg/util/merr"
)

// Compressor 抽象了“单次压缩/解压”能力。
//
// 说明：面向内存块压缩，不做全局单例，调用方按需创建具体实现的实例。
type Compressor interface {
	// Compress 将 src 压缩后追加到 dst[:0]，返回压缩后的完整数据。
	Compress(dst, src []byte) (packet []byte, err error)

	// Decompress 将 Compress 的输出 src 解压后追加到 dst[:0]。
	Decompress(dst, src []byte) (plain []byte, err error)
}

// NopCompressor 不做任何压缩/解压，直接返回输入内容。
type NopCompressor struct{}

func (NopCompressor) Compress(_ []byte, src []byte) ([]byte, error) {
	return src, nil
}

func (NopCompressor) Decompress(_ []byte, src []byte) ([]byte, error) {
	return src, nil
}

var _ Compressor = NopCompressor{}

const (
	NameNone = "none"
	NameZstd = "zstd"
)

// New 按名字创建压缩器，空串视为 none。
func New(name string) (Compressor, error) {
	switch name {
	case "", NameNone:
		return NopCompressor{}, nil
	case NameZstd:
		return NewZstdCompressor()
	}
	return nil, merr.WrapErrOperationNotSupported("compressor "+name, "supported: none, zstd")
}
