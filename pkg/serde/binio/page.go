package binio

import (
	"io"

	"go.uber.org/atomic"
)

// PageSize 为 PageWriter 的页大小。
const PageSize = 4096

const pagePoolSlots = 16

type page [PageSize]byte

// pagePool 为无锁的定长页缓存；槽位满时多余的页交给 GC。
type pagePool struct {
	slots  [pagePoolSlots]atomic.Pointer[page]
	hits   atomic.Int64
	misses atomic.Int64
}

var pages pagePool

func (p *pagePool) get() *page {
	for i := range p.slots {
		if pg := p.slots[i].Swap(nil); pg != nil {
			p.hits.Inc()
			return pg
		}
	}
	p.misses.Inc()
	return new(page)
}

func (p *pagePool) put(pg *page) {
	for i := range p.slots {
		if p.slots[i].CompareAndSwap(nil, pg) {
			return
		}
	}
}

// PoolStats 返回页缓存的累计命中与未命中次数。
func PoolStats() (hits, misses int64) {
	return pages.hits.Load(), pages.misses.Load()
}

// PageWriter 以固定大小的页缓冲写入 io.Writer。
//
// 说明：
//   - 页在构造时从共享页缓存借出，Close 时归还；
//   - 超过一页的字节块直接写入底层 io.Writer；
//   - 底层写入失败后其余写入被丢弃，错误由 Flush/Close/Err 返回。
type PageWriter struct {
	encoder
	w   io.Writer
	pg  *page
	n   int
	err error
}

var _ Writer = (*PageWriter)(nil)

func NewPageWriter(w io.Writer) *PageWriter {
	pw := &PageWriter{w: w, pg: pages.get()}
	pw.s = pw
	return pw
}

func (pw *PageWriter) reserve(n int) []byte {
	if pw.n+n > PageSize {
		pw.flush()
	}
	b := pw.pg[pw.n : pw.n+n]
	pw.n += n
	return b
}

func (pw *PageWriter) putBytes(p []byte) {
	if pw.n+len(p) <= PageSize {
		pw.n += copy(pw.pg[pw.n:], p)
		return
	}
	pw.flush()
	if len(p) >= PageSize {
		pw.write(p)
		return
	}
	pw.n = copy(pw.pg[:], p)
}

func (pw *PageWriter) flush() {
	if pw.n > 0 {
		pw.write(pw.pg[:pw.n])
	}
	pw.n = 0
}

func (pw *PageWriter) write(p []byte) {
	if pw.err != nil {
		return
	}
	if _, err := pw.w.Write(p); err != nil {
		pw.err = err
	}
}

// Flush 将当前页写出。
func (pw *PageWriter) Flush() error {
	if pw.pg == nil {
		return pw.err
	}
	pw.flush()
	return pw.err
}

// Close 写出剩余数据并归还页；可重复调用。
func (pw *PageWriter) Close() error {
	err := pw.Flush()
	if pw.pg != nil {
		pages.put(pw.pg)
		pw.pg = nil
	}
	return err
}

func (pw *PageWriter) Err() error { return pw.err }
