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

import "go.uber.org/atomic"

type future interface {
	wait()
	OK() bool
	Err() error
}

// Future 为异步任务的结果，任务完成后 Value 与 Err 可以读取。
type Future[T any] struct {
	ch    chan struct{}
	value T
	err   error
	done  atomic.Bool
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{ch: make(chan struct{})}
}

func (future *Future[T]) wait() {
	<-future.ch
}

// Await 阻塞直到任务完成，返回结果与错误。
func (future *Future[T]) Await() (T, error) {
	future.wait()
	return future.value, future.err
}

// Value 阻塞直到任务完成，返回结果。
func (future *Future[T]) Value() T {
	future.wait()
	return future.value
}

// OK 阻塞直到任务完成，报告任务是否没有返回错误。
func (future *Future[T]) OK() bool {
	future.wait()
	return future.err == nil
}

// Err 阻塞直到任务完成，返回任务的错误。
func (future *Future[T]) Err() error {
	future.wait()
	return future.err
}

// Done 返回任务完成时关闭的通道。
func (future *Future[T]) Done() <-chan struct{} {
	return future.ch
}

// Go 在新的协程中执行 fn。
func Go[T any](fn func() (T, error)) *Future[T] {
	future := newFuture[T]()
	go func() {
		future.value, future.err = fn()
		future.complete()
	}()
	return future
}

func (future *Future[T]) complete() {
	if future.done.CompareAndSwap(false, true) {
		close(future.ch)
	}
}

// AwaitAll 等待全部 future 完成，返回第一个错误。
func AwaitAll[T future](futures ...T) error {
	for i := range futures {
		if !futures[i].OK() {
			return futures[i].Err()
		}
	}
	return nil
}
