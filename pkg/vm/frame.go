/*
 Copyright 2026 Basalt Authors.

 Licensed under the Apache License, Version 2.0 (the "License");
 you may not use this file except in compliance with the License.
 You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

 Unless required by applicable law or agreed to in writing, software
 distributed under the License is distributed on an "AS IS" BASIS,
 WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 See the License for the specific language governing permissions and
 limitations under the License.
*/

package vm

import (
	"sync"
	"sync/atomic"

	"github.com/basaltos/basalt/pkg/types"
)

// Frame is one page-size run of physical memory. Exactly one page
// entry owns a frame at any time; sharing happens through page links,
// never through two owners.
type Frame struct {
	no   int64
	data []byte
}

func (f *Frame) No() int64 {
	return f.no
}

func (f *Frame) Data() []byte {
	return f.data
}

func (f *Frame) CopyFrom(src *Frame) {
	copy(f.data, src.data)
}

// Allocator hands out zeroed frames under a hard budget. Hitting the
// budget fails with ErrExhausted and the faulting caller deals with
// it; the allocator never blocks. Buffers are recycled through a pool.
type Allocator struct {
	frameSize int64
	limit     int32
	crt       int32
	lastNo    int64
	pool      sync.Pool
}

func NewAllocator(frameSize int64, limit int) *Allocator {
	a := &Allocator{frameSize: frameSize, limit: int32(limit)}
	a.pool = sync.Pool{New: func() any { return make([]byte, a.frameSize) }}
	return a
}

// Allocate returns a frame with every byte zero.
func (a *Allocator) Allocate() (*Frame, error) {
	for {
		crt := atomic.LoadInt32(&a.crt)
		if crt >= a.limit {
			frameExhaustedCounter.Inc()
			return nil, types.ErrExhausted
		}
		if atomic.CompareAndSwapInt32(&a.crt, crt, crt+1) {
			break
		}
	}
	data := a.pool.Get().([]byte)
	for i := range data {
		data[i] = 0
	}
	atomic.AddInt32(&crtFrameTotal, 1)
	return &Frame{no: atomic.AddInt64(&a.lastNo, 1), data: data}, nil
}

func (a *Allocator) Free(f *Frame) {
	if f == nil || f.data == nil {
		return
	}
	a.pool.Put(f.data)
	f.data = nil
	atomic.AddInt32(&a.crt, -1)
	atomic.AddInt32(&crtFrameTotal, -1)
}

func (a *Allocator) InUse() int32 {
	return atomic.LoadInt32(&a.crt)
}

func (a *Allocator) Limit() int32 {
	return a.limit
}
