// Copyright (c) 2019 The Gnet Authors. All rights reserved.
// Copyright (c) 2016 Aliaksandr Valialkin, VertaMedia
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// Use of this source code is governed by a MIT license that can be found
// at https://github.com/valyala/bytebufferpool/blob/master/LICENSE

// Package bytebuffer 提供按使用频率自动校准容量的字节缓冲区对象池。
package bytebuffer

import (
	"math/bits"
	"slices"
	"sync"
	"sync/atomic"
)

const (
	minBitSize = 6 // 2**6=64，为典型 CPU cache line 大小
	steps      = 20

	minSize = 1 << minBitSize

	calibrateCallsThreshold = 42000
	maxPercentile           = 0.95
)

// ByteBuffer 为可复用的字节切片容器。
type ByteBuffer struct {
	B []byte
}

func (b *ByteBuffer) Len() int { return len(b.B) }

func (b *ByteBuffer) Reset() { b.B = b.B[:0] }

// Pool 表示字节缓冲区的对象池。
//
// 说明：
//   - 不同用途可以使用不同的 Pool，以减少内存浪费；
//   - 内部会根据归还时的长度分布自动校准默认容量和最大可回收容量。
type Pool struct {
	calls       [steps]uint64
	calibrating uint64

	defaultSize uint64
	maxSize     uint64

	pool sync.Pool
}

var builtinPool Pool

// Get 从默认池中获取一个空缓冲区。
func Get() *ByteBuffer { return builtinPool.Get() }

// Get 从 Pool 中获取一个长度为 0 的缓冲区，容量不小于当前校准的默认值。
func (p *Pool) Get() *ByteBuffer {
	v := p.pool.Get()
	if v != nil {
		return v.(*ByteBuffer)
	}
	return &ByteBuffer{B: make([]byte, 0, atomic.LoadUint64(&p.defaultSize))}
}

// Put 将缓冲区归还到默认池中。
//
// 注意：归还后的 ByteBuffer 不允许再被访问，否则会引发数据竞争。
func Put(b *ByteBuffer) { builtinPool.Put(b) }

// Put 将通过 Get 获取的缓冲区归还到 Pool 中；超过校准上限的缓冲区直接丢弃。
func (p *Pool) Put(b *ByteBuffer) {
	idx := index(len(b.B))

	if atomic.AddUint64(&p.calls[idx], 1) > calibrateCallsThreshold {
		p.calibrate()
	}

	maxSize := int(atomic.LoadUint64(&p.maxSize))
	if maxSize == 0 || cap(b.B) <= maxSize {
		b.Reset()
		p.pool.Put(b)
	}
}

func (p *Pool) calibrate() {
	if !atomic.CompareAndSwapUint64(&p.calibrating, 0, 1) {
		return
	}

	a := make([]callSize, 0, steps)
	var callsSum uint64
	for i := uint64(0); i < steps; i++ {
		calls := atomic.SwapUint64(&p.calls[i], 0)
		callsSum += calls
		a = append(a, callSize{
			calls: calls,
			size:  minSize << i,
		})
	}
	// 按调用次数降序
	slices.SortFunc(a, func(x, y callSize) int {
		switch {
		case x.calls > y.calls:
			return -1
		case x.calls < y.calls:
			return 1
		}
		return 0
	})

	defaultSize := a[0].size
	maxSize := defaultSize

	maxSum := uint64(float64(callsSum) * maxPercentile)
	callsSum = 0
	for i := 0; i < steps; i++ {
		if callsSum > maxSum {
			break
		}
		callsSum += a[i].calls
		if a[i].size > maxSize {
			maxSize = a[i].size
		}
	}

	atomic.StoreUint64(&p.defaultSize, defaultSize)
	atomic.StoreUint64(&p.maxSize, maxSize)

	atomic.StoreUint64(&p.calibrating, 0)
}

type callSize struct {
	calls uint64
	size  uint64
}

func index(n int) int {
	n--
	n >>= minBitSize
	idx := 0
	if n > 0 {
		idx = bits.Len(uint(n))
	}
	if idx >= steps {
		idx = steps - 1
	}
	return idx
}
