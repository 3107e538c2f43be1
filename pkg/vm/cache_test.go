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
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/basaltos/basalt/pkg/storage"
	"github.com/basaltos/basalt/pkg/types"
)

type countingStore struct {
	storage.Storage
	gets int32
}

func (s *countingStore) Get(ctx context.Context, id types.FileID, off, limit int64) (io.ReadCloser, error) {
	atomic.AddInt32(&s.gets, 1)
	return s.Storage.Get(ctx, id, off, limit)
}

var _ = Describe("TestFrameAllocator", func() {
	Context("budget accounting", func() {
		It("allocation over the budget should be failed", func() {
			alloc := NewAllocator(16, 2)
			f1, err := alloc.Allocate()
			Expect(err).Should(BeNil())
			f2, err := alloc.Allocate()
			Expect(err).Should(BeNil())
			Expect(alloc.InUse()).Should(Equal(int32(2)))

			_, err = alloc.Allocate()
			Expect(errors.Is(err, types.ErrExhausted)).Should(BeTrue())

			alloc.Free(f1)
			f3, err := alloc.Allocate()
			Expect(err).Should(BeNil())
			Expect(alloc.InUse()).Should(Equal(int32(2)))
			alloc.Free(f2)
			alloc.Free(f3)
			Expect(alloc.InUse()).Should(Equal(int32(0)))
		})
		It("recycled frames should come back zeroed", func() {
			alloc := NewAllocator(16, 1)
			f, err := alloc.Allocate()
			Expect(err).Should(BeNil())
			for i := range f.Data() {
				f.Data()[i] = 0xee
			}
			alloc.Free(f)

			f, err = alloc.Allocate()
			Expect(err).Should(BeNil())
			for _, b := range f.Data() {
				Expect(b).Should(Equal(byte(0)))
			}
			alloc.Free(f)
		})
	})
})

var _ = Describe("TestPageTree", func() {
	Context("insert and find across extends", func() {
		It("indexes should be stable through root growth", func() {
			tree := &pageTree{}
			indexes := []int64{0, 63, 64, 4096}
			inserted := map[int64]*page{}
			for _, idx := range indexes {
				p := tree.insert(idx)
				Expect(p).ShouldNot(BeNil())
				inserted[idx] = p
			}
			for _, idx := range indexes {
				Expect(tree.find(idx) == inserted[idx]).Should(BeTrue())
			}
			Expect(tree.find(1)).Should(BeNil())
			Expect(tree.find(1 << 30)).Should(BeNil())
			Expect(tree.totalCount).Should(Equal(len(indexes)))

			visited := 0
			tree.visit(func(p *page) { visited++ })
			Expect(visited).Should(Equal(len(indexes)))
		})
	})
})

var _ = Describe("TestPagePopulation", func() {
	Context("pin and populate one page", func() {
		It("one backing read should serve repeated pins", func() {
			counting := &countingStore{Storage: dataStore}
			cache := NewCache(counting, testCacheConfig())
			defer cache.Close()
			content := buildBytes(testPageSize*2, 3)
			ino := writeObject(content)

			p1, err := cache.page(context.TODO(), ino, 0)
			Expect(err).Should(BeNil())
			Expect(p1.frame.Data()).Should(Equal(content[:testPageSize]))

			p2, err := cache.page(context.TODO(), ino, 0)
			Expect(err).Should(BeNil())
			Expect(p2 == p1).Should(BeTrue())
			Expect(atomic.LoadInt32(&p1.ref)).Should(Equal(int32(2)))
			Expect(atomic.LoadInt32(&counting.gets)).Should(Equal(int32(1)))

			cache.Release(p1)
			cache.Release(p2)
			// canonical frames stay resident at zero pins
			Expect(cache.Stats().FramesInUse).Should(Equal(int32(1)))
		})
		It("the tail past end-of-file should stay zero", func() {
			cache := NewCache(dataStore, testCacheConfig())
			defer cache.Close()
			content := buildBytes(10, 9)
			ino := writeObject(content)

			p, err := cache.page(context.TODO(), ino, 0)
			Expect(err).Should(BeNil())
			Expect(p.frame.Data()[:10]).Should(Equal(content))
			for _, b := range p.frame.Data()[10:] {
				Expect(b).Should(Equal(byte(0)))
			}
			cache.Release(p)
		})
		It("concurrent pins should populate exactly once", func() {
			counting := &countingStore{Storage: dataStore}
			cache := NewCache(counting, testCacheConfig())
			defer cache.Close()
			ino := writeObject(buildBytes(testPageSize, 7))

			var (
				wg     sync.WaitGroup
				frames sync.Map
			)
			for i := 0; i < 16; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					p, err := cache.page(context.TODO(), ino, 0)
					if err != nil {
						return
					}
					frames.Store(p, struct{}{})
					cache.Release(p)
				}()
			}
			wg.Wait()

			distinct := 0
			frames.Range(func(_, _ any) bool { distinct++; return true })
			Expect(distinct).Should(Equal(1))
			Expect(atomic.LoadInt32(&counting.gets)).Should(Equal(int32(1)))
		})
		It("a failed population should be retried by the next pin", func() {
			counting := &countingStore{Storage: dataStore}
			cache := NewCache(counting, testCacheConfig())
			defer cache.Close()

			ino := registry.Create(types.RawKind)
			ino.SetSize(testPageSize)

			// nothing stored yet: population fails with an I/O error
			_, err := cache.page(context.TODO(), ino, 0)
			Expect(errors.Is(err, types.ErrIO)).Should(BeTrue())
			Expect(cache.Stats().FramesInUse).Should(Equal(int32(0)))

			content := buildBytes(testPageSize, 5)
			Expect(dataStore.Put(context.TODO(), ino.ID, bytes.NewReader(content))).Should(BeNil())

			p, err := cache.page(context.TODO(), ino, 0)
			Expect(err).Should(BeNil())
			Expect(p.frame.Data()).Should(Equal(content))
			cache.Release(p)
		})
		It("a truncated object should be failed as a short read", func() {
			cache := NewCache(dataStore, testCacheConfig())
			defer cache.Close()

			ino := writeObject(buildBytes(10, 2))
			ino.SetSize(testPageSize + 10)

			_, err := cache.page(context.TODO(), ino, 0)
			Expect(errors.Is(err, types.ErrShortRead)).Should(BeTrue())
		})
	})
})

var _ = Describe("TestInvalidateAndReclaim", func() {
	Context("disconnect pages from a file", func() {
		It("unpinned canonical frames should be freed at once", func() {
			cache := NewCache(dataStore, testCacheConfig())
			defer cache.Close()
			ino := writeObject(buildBytes(testPageSize*2, 11))

			p0, err := cache.page(context.TODO(), ino, 0)
			Expect(err).Should(BeNil())
			p1, err := cache.page(context.TODO(), ino, 1)
			Expect(err).Should(BeNil())
			cache.Release(p0)
			cache.Release(p1)
			Expect(cache.Stats().FramesInUse).Should(Equal(int32(2)))

			Expect(cache.Invalidate(ino.ID)).Should(Equal(2))
			Expect(cache.Stats().FramesInUse).Should(Equal(int32(0)))
			Expect(cache.Stats().Files).Should(Equal(0))
		})
		It("a pinned page should keep its frame until the last release", func() {
			cache := NewCache(dataStore, testCacheConfig())
			defer cache.Close()
			content := buildBytes(testPageSize, 13)
			ino := writeObject(content)

			p, err := cache.page(context.TODO(), ino, 0)
			Expect(err).Should(BeNil())

			Expect(cache.Invalidate(ino.ID)).Should(Equal(1))
			// the holder still reads the detached frame
			Expect(p.frame.Data()).Should(Equal(content))
			Expect(cache.Stats().FramesInUse).Should(Equal(int32(1)))

			cache.Release(p)
			Expect(cache.Stats().FramesInUse).Should(Equal(int32(0)))
		})
		It("pins after invalidate should repopulate fresh content", func() {
			cache := NewCache(dataStore, testCacheConfig())
			defer cache.Close()
			ino := writeObject(buildBytes(testPageSize, 1))

			p, err := cache.page(context.TODO(), ino, 0)
			Expect(err).Should(BeNil())
			old := p.frame
			cache.Release(p)

			rewritten := buildBytes(testPageSize, 200)
			Expect(dataStore.Put(context.TODO(), ino.ID, bytes.NewReader(rewritten))).Should(BeNil())
			cache.Invalidate(ino.ID)

			p, err = cache.page(context.TODO(), ino, 0)
			Expect(err).Should(BeNil())
			Expect(p.frame == old).Should(BeFalse())
			Expect(p.frame.Data()).Should(Equal(rewritten))
			cache.Release(p)
		})
		It("reclaim should free unpinned frames and keep pinned ones", func() {
			cache := NewCache(dataStore, testCacheConfig())
			defer cache.Close()
			ino := writeObject(buildBytes(testPageSize*3, 17))

			p0, err := cache.page(context.TODO(), ino, 0)
			Expect(err).Should(BeNil())
			p1, err := cache.page(context.TODO(), ino, 1)
			Expect(err).Should(BeNil())
			p2, err := cache.page(context.TODO(), ino, 2)
			Expect(err).Should(BeNil())
			cache.Release(p1)
			cache.Release(p2)

			Expect(cache.ReclaimUnused()).Should(Equal(2))
			Expect(cache.Stats().FramesInUse).Should(Equal(int32(1)))
			Expect(cache.Stats().CanonicalPages).Should(Equal(3))

			// reclaimed pages repopulate in place
			again, err := cache.page(context.TODO(), ino, 1)
			Expect(err).Should(BeNil())
			Expect(again.frame).ShouldNot(BeNil())
			cache.Release(again)
			cache.Release(p0)
		})
	})
})
