package binio

import (
	"bytes"

	"github.com/lk2023060901/danmu-garden-serde/internal/pool/bytebuffer"
)

// growThreshold 以下按倍增扩容，以上按所需大小的 110% 扩容。
const growThreshold = 1 << 20

var bufferPool bytebuffer.Pool

// GrowableWriter 将编码结果写入可增长的内存缓冲区。
type GrowableWriter struct {
	encoder
	buf *bytebuffer.ByteBuffer
}

var _ Writer = (*GrowableWriter)(nil)

func NewGrowableWriter() *GrowableWriter {
	gw := &GrowableWriter{buf: bufferPool.Get()}
	gw.s = gw
	return gw
}

func (gw *GrowableWriter) grow(n int) {
	need := len(gw.buf.B) + n
	if need <= cap(gw.buf.B) {
		return
	}
	newCap := need + need/10
	if need < growThreshold {
		newCap = max(2*cap(gw.buf.B), need)
	}
	nb := make([]byte, len(gw.buf.B), newCap)
	copy(nb, gw.buf.B)
	gw.buf.B = nb
}

func (gw *GrowableWriter) reserve(n int) []byte {
	gw.grow(n)
	l := len(gw.buf.B)
	gw.buf.B = gw.buf.B[:l+n]
	return gw.buf.B[l : l+n]
}

func (gw *GrowableWriter) putBytes(p []byte) {
	gw.grow(len(p))
	gw.buf.B = append(gw.buf.B, p...)
}

// Bytes 返回内部缓冲区的视图，Release 之后不可再使用。
func (gw *GrowableWriter) Bytes() []byte { return gw.buf.B }

// Detach 返回编码结果的独立副本。
func (gw *GrowableWriter) Detach() []byte { return bytes.Clone(gw.buf.B) }

// Release 将缓冲区归还对象池。
func (gw *GrowableWriter) Release() {
	if gw.buf != nil {
		bufferPool.Put(gw.buf)
		gw.buf = nil
	}
}

func (gw *GrowableWriter) Err() error { return nil }
