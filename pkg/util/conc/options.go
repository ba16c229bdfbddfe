// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package conc

import (
	"time"

	ants "github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/lk2023060901/danmu-garden-serde/pkg/log"
)

type poolOption struct {
	preAlloc       bool
	nonBlocking    bool
	expiryDuration time.Duration
	// concealPanic 为 true 时任务 panic 只记录日志，调用方从 Future 中得到错误。
	concealPanic bool
	preHandler   func()
}

func (opt *poolOption) antsOptions() []ants.Option {
	result := []ants.Option{
		ants.WithPreAlloc(opt.preAlloc),
		ants.WithNonblocking(opt.nonBlocking),
		ants.WithPanicHandler(func(v any) {
			log.Error("conc pool task panicked", zap.Any("panic", v))
			if !opt.concealPanic {
				panic(v)
			}
		}),
	}
	if opt.expiryDuration > 0 {
		result = append(result, ants.WithExpiryDuration(opt.expiryDuration))
	}
	return result
}

// PoolOption 配置协程池。
type PoolOption func(opt *poolOption)

func defaultPoolOption() *poolOption {
	return &poolOption{}
}

// WithPreAlloc 预先分配 worker，预分配的池不能 Resize。
func WithPreAlloc(v bool) PoolOption {
	return func(opt *poolOption) { opt.preAlloc = v }
}

// WithNonBlocking 池满时 Submit 立即失败而不是等待。
func WithNonBlocking(v bool) PoolOption {
	return func(opt *poolOption) { opt.nonBlocking = v }
}

func WithExpiryDuration(d time.Duration) PoolOption {
	return func(opt *poolOption) { opt.expiryDuration = d }
}

func WithConcealPanic(v bool) PoolOption {
	return func(opt *poolOption) { opt.concealPanic = v }
}

// WithPreHandler 设置每个任务执行前调用的函数。
func WithPreHandler(fn func()) PoolOption {
	return func(opt *poolOption) { opt.preHandler = fn }
}
