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

package dentry

import (
	"strings"
	"sync"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/basaltos/basalt/pkg/inode"
	"github.com/basaltos/basalt/pkg/types"
)

var _ = Describe("TestRootRecord", func() {
	var (
		cache    = NewCache(8)
		registry = inode.NewRegistry()
		root     *Entry
	)
	Context("create the mount anchor", func() {
		It("create should be succeed", func() {
			var err error
			root, err = cache.CreateRoot()
			Expect(err).Should(BeNil())
			Expect(root.IsRoot()).Should(BeTrue())
			Expect(root.Inode()).Should(BeNil())
			Expect(root.RefCount()).Should(Equal(int32(1)))
			Expect(root.Path()).Should(Equal("/"))
		})
		It("bind a node to the anchor should be succeed", func() {
			ino := registry.Create(types.GroupKind)
			cache.Bind(root, ino)
			ino.DecRef()
			Expect(root.Inode()).ShouldNot(BeNil())
			Expect(root.IsPending()).Should(BeFalse())
			Expect(ino.RefCount()).Should(Equal(int32(1)))
		})
		It("anchor should survive reclaim while referenced", func() {
			cache.ReclaimUnused()
			Expect(cache.Len()).Should(Equal(1))
		})
	})
})

var _ = Describe("TestLookupLifecycle", func() {
	var (
		cache    *Cache
		registry *inode.Registry
		root     *Entry
	)
	BeforeEach(func() {
		cache = NewCache(8)
		registry = inode.NewRegistry()
		var err error
		root, err = cache.CreateRoot()
		Expect(err).Should(BeNil())
		cache.Bind(root, registry.Create(types.GroupKind))
		Expect(registry.Drop(root.Inode().ID)).Should(BeNil())
	})

	Context("miss then resolve", func() {
		It("first lookup should reserve a pending record", func() {
			e, outcome, err := cache.Lookup(root, "a.file")
			Expect(err).Should(BeNil())
			Expect(outcome).Should(Equal(OutcomeCreated))
			Expect(e.IsPending()).Should(BeTrue())
			Expect(e.RefCount()).Should(Equal(int32(1)))
			Expect(root.RefCount()).Should(Equal(int32(2)))

			_, outcome, err = cache.Lookup(root, "a.file")
			Expect(err).Should(BeNil())
			Expect(outcome).Should(Equal(OutcomePending))

			ino := registry.Create(types.RawKind)
			cache.Bind(e, ino)
			ino.DecRef()

			e2, outcome, err := cache.Lookup(root, "a.file")
			Expect(err).Should(BeNil())
			Expect(outcome).Should(Equal(OutcomeFound))
			Expect(e2 == e).Should(BeTrue())
			Expect(e.RefCount()).Should(Equal(int32(2)))
			cache.Deref(e2)
			cache.Deref(e)
		})
		It("record should stay cached at zero references", func() {
			e, _, err := cache.Lookup(root, "b.file")
			Expect(err).Should(BeNil())
			ino := registry.Create(types.RawKind)
			cache.Bind(e, ino)
			ino.DecRef()
			cache.Deref(e)
			Expect(e.RefCount()).Should(Equal(int32(0)))

			e2, outcome, err := cache.Lookup(root, "b.file")
			Expect(err).Should(BeNil())
			Expect(outcome).Should(Equal(OutcomeFound))
			Expect(e2 == e).Should(BeTrue())
			cache.Deref(e2)
		})
		It("over-long name should be failed", func() {
			_, _, err := cache.Lookup(root, strings.Repeat("x", types.MaxNameLength+1))
			Expect(err).Should(Equal(types.ErrNameTooLong))
		})
	})

	Context("rebind and unlink", func() {
		It("rebind should release the old node exactly once", func() {
			e, _, err := cache.Lookup(root, "swap.file")
			Expect(err).Should(BeNil())
			ino1 := registry.Create(types.RawKind)
			cache.Bind(e, ino1)
			ino1.DecRef()
			Expect(ino1.RefCount()).Should(Equal(int32(1)))

			ino2 := registry.Create(types.RawKind)
			cache.Bind(e, ino2)
			ino2.DecRef()
			Expect(ino2.RefCount()).Should(Equal(int32(1)))
			_, err = registry.Get(ino1.ID)
			Expect(err).Should(Equal(types.ErrNotFound))

			cache.Bind(e, ino2)
			Expect(ino2.RefCount()).Should(Equal(int32(1)))
			Expect(e.Inode() == ino2).Should(BeTrue())
			cache.Deref(e)
		})
		It("unlink should leave a negative record behind", func() {
			e, _, err := cache.Lookup(root, "gone.file")
			Expect(err).Should(BeNil())
			ino := registry.Create(types.RawKind)
			cache.Bind(e, ino)
			ino.DecRef()

			cache.Unlink(e)
			Expect(e.IsNegative()).Should(BeTrue())
			Expect(e.IsPending()).Should(BeFalse())
			Expect(e.Inode()).Should(BeNil())
			Expect(registry.Len()).Should(Equal(1))
			cache.Deref(e)

			e2, outcome, err := cache.Lookup(root, "gone.file")
			Expect(err).Should(BeNil())
			Expect(outcome).Should(Equal(OutcomeFound))
			Expect(e2.IsNegative()).Should(BeTrue())
			cache.Deref(e2)
		})
		It("negative record should turn positive after rebind", func() {
			e, _, err := cache.Lookup(root, "back.file")
			Expect(err).Should(BeNil())
			cache.Unlink(e)
			Expect(e.IsNegative()).Should(BeTrue())

			ino := registry.Create(types.RawKind)
			cache.Bind(e, ino)
			ino.DecRef()
			Expect(e.IsNegative()).Should(BeFalse())
			Expect(e.Inode()).ShouldNot(BeNil())
			cache.Deref(e)
		})
	})

	Context("abort an in-flight resolution", func() {
		It("forget should free the record and unpin the parent", func() {
			e, outcome, err := cache.Lookup(root, "aborted.file")
			Expect(err).Should(BeNil())
			Expect(outcome).Should(Equal(OutcomeCreated))
			Expect(root.RefCount()).Should(Equal(int32(2)))

			cache.Forget(e)
			Expect(root.RefCount()).Should(Equal(int32(1)))
			Expect(cache.Len()).Should(Equal(1))

			_, outcome, err = cache.Lookup(root, "aborted.file")
			Expect(err).Should(BeNil())
			Expect(outcome).Should(Equal(OutcomeCreated))
		})
	})
})

var _ = Describe("TestRecycleOnMiss", func() {
	var (
		cache    *Cache
		registry *inode.Registry
		root     *Entry
	)
	BeforeEach(func() {
		cache = NewCache(4)
		registry = inode.NewRegistry()
		var err error
		root, err = cache.CreateRoot()
		Expect(err).Should(BeNil())
	})

	resolve := func(parent *Entry, name string) *Entry {
		e, outcome, err := cache.Lookup(parent, name)
		Expect(err).Should(BeNil())
		Expect(outcome).Should(Equal(OutcomeCreated))
		ino := registry.Create(types.RawKind)
		cache.Bind(e, ino)
		ino.DecRef()
		return e
	}

	Context("free pool drained", func() {
		It("coldest unreferenced record should be recycled", func() {
			a := resolve(root, "a")
			b := resolve(root, "b")
			c := resolve(root, "c")
			cache.Deref(a)
			cache.Deref(b)
			Expect(cache.FreeLen()).Should(Equal(0))

			// a is the coldest with no holders; c is still pinned
			d, outcome, err := cache.Lookup(root, "d")
			Expect(err).Should(BeNil())
			Expect(outcome).Should(Equal(OutcomeCreated))
			Expect(registry.Len()).Should(Equal(2))

			// recycling dropped the old association, so a misses again
			_, outcome, err = cache.Lookup(root, "a")
			Expect(err).Should(BeNil())
			Expect(outcome).Should(Equal(OutcomeCreated))
			Expect(registry.Len()).Should(Equal(1))

			_, outcome, err = cache.Lookup(root, "c")
			Expect(err).Should(BeNil())
			Expect(outcome).Should(Equal(OutcomeFound))
			Expect(c.RefCount()).Should(Equal(int32(2)))
			_ = d
		})
		It("hit should protect a record from recycling", func() {
			a := resolve(root, "a")
			b := resolve(root, "b")
			c := resolve(root, "c")
			cache.Deref(a)
			cache.Deref(b)
			cache.Deref(c)

			// touch a so b becomes the coldest
			a2, outcome, err := cache.Lookup(root, "a")
			Expect(err).Should(BeNil())
			Expect(outcome).Should(Equal(OutcomeFound))
			cache.Deref(a2)

			_, outcome, err = cache.Lookup(root, "d")
			Expect(err).Should(BeNil())
			Expect(outcome).Should(Equal(OutcomeCreated))

			_, outcome, err = cache.Lookup(root, "a")
			Expect(err).Should(BeNil())
			Expect(outcome).Should(Equal(OutcomeFound))

			_, outcome, err = cache.Lookup(root, "b")
			Expect(err).Should(BeNil())
			Expect(outcome).Should(Equal(OutcomeCreated))
		})
		It("all records pinned should be failed with exhausted", func() {
			resolve(root, "a")
			resolve(root, "b")
			resolve(root, "c")

			_, _, err := cache.Lookup(root, "d")
			Expect(err).Should(Equal(types.ErrExhausted))
		})
		It("anchor should never be recycled", func() {
			for _, name := range []string{"a", "b", "c"} {
				cache.Deref(resolve(root, name))
			}
			for _, name := range []string{"d", "e", "f"} {
				cache.Deref(resolve(root, name))
			}
			Expect(root.IsRoot()).Should(BeTrue())
			Expect(root.RefCount() >= int32(1)).Should(BeTrue())
			Expect(cache.Len()).Should(Equal(4))
		})
	})
})

var _ = Describe("TestParentChainOwnership", func() {
	var (
		cache    *Cache
		registry *inode.Registry
		root     *Entry
	)
	BeforeEach(func() {
		cache = NewCache(16)
		registry = inode.NewRegistry()
		var err error
		root, err = cache.CreateRoot()
		Expect(err).Should(BeNil())
	})

	Context("nested records", func() {
		It("child should pin its parent until torn down", func() {
			dir, _, err := cache.Lookup(root, "dir")
			Expect(err).Should(BeNil())
			ino := registry.Create(types.GroupKind)
			cache.Bind(dir, ino)
			ino.DecRef()

			child, _, err := cache.Lookup(dir, "leaf")
			Expect(err).Should(BeNil())
			ino = registry.Create(types.RawKind)
			cache.Bind(child, ino)
			ino.DecRef()
			Expect(child.Path()).Should(Equal("/dir/leaf"))

			cache.Deref(dir)
			Expect(dir.RefCount()).Should(Equal(int32(1)))
			cache.Deref(child)

			// leaf is unreferenced but still indexes dir
			Expect(cache.ReclaimUnused()).Should(Equal(2))
			Expect(cache.Len()).Should(Equal(1))
			Expect(root.RefCount()).Should(Equal(int32(1)))
			Expect(registry.Len()).Should(Equal(0))
		})
		It("reclaim should cascade through unpinned chains", func() {
			parent := root
			for _, name := range []string{"a", "b", "c", "d"} {
				e, _, err := cache.Lookup(parent, name)
				Expect(err).Should(BeNil())
				ino := registry.Create(types.GroupKind)
				cache.Bind(e, ino)
				ino.DecRef()
				if parent != root {
					cache.Deref(parent)
				}
				parent = e
			}
			cache.Deref(parent)

			Expect(cache.ReclaimUnused()).Should(Equal(4))
			Expect(cache.FreeLen()).Should(Equal(15))
			Expect(root.RefCount()).Should(Equal(int32(1)))
		})
	})
})

var _ = Describe("TestConcurrentLookup", func() {
	var (
		cache    = NewCache(64)
		registry = inode.NewRegistry()
		root     *Entry
	)
	Context("many callers racing on one name", func() {
		It("exactly one caller should win the reservation", func() {
			var err error
			root, err = cache.CreateRoot()
			Expect(err).Should(BeNil())

			var (
				wg      sync.WaitGroup
				mux     sync.Mutex
				created int
				pending int
			)
			for i := 0; i < 32; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					e, outcome, err := cache.Lookup(root, "contended.file")
					if err != nil {
						return
					}
					mux.Lock()
					defer mux.Unlock()
					switch outcome {
					case OutcomeCreated:
						created++
						ino := registry.Create(types.RawKind)
						cache.Bind(e, ino)
						ino.DecRef()
						cache.Deref(e)
					case OutcomePending:
						pending++
					case OutcomeFound:
						cache.Deref(e)
					}
				}()
			}
			wg.Wait()
			Expect(created).Should(Equal(1))

			e, outcome, err := cache.Lookup(root, "contended.file")
			Expect(err).Should(BeNil())
			Expect(outcome).Should(Equal(OutcomeFound))
			Expect(e.Inode()).ShouldNot(BeNil())
			cache.Deref(e)
		})
	})
})

var _ = Describe("TestCacheDump", func() {
	Context("snapshot in-use records", func() {
		It("dump should reflect record states", func() {
			cache := NewCache(8)
			registry := inode.NewRegistry()
			root, err := cache.CreateRoot()
			Expect(err).Should(BeNil())

			bound, _, err := cache.Lookup(root, "bound")
			Expect(err).Should(BeNil())
			ino := registry.Create(types.RawKind)
			cache.Bind(bound, ino)
			ino.DecRef()

			gone, _, err := cache.Lookup(root, "gone")
			Expect(err).Should(BeNil())
			cache.Unlink(gone)

			_, outcome, err := cache.Lookup(root, "inflight")
			Expect(err).Should(BeNil())
			Expect(outcome).Should(Equal(OutcomeCreated))

			byName := map[string]RecordInfo{}
			for _, info := range cache.Dump() {
				byName[info.Name] = info
			}
			Expect(len(byName)).Should(Equal(4))
			Expect(byName["/"].Root).Should(BeTrue())
			Expect(byName["bound"].NodeID).Should(Equal(ino.ID))
			Expect(byName["gone"].Negative).Should(BeTrue())
			Expect(byName["inflight"].Pending).Should(BeTrue())
			Expect(byName["inflight"].Path).Should(Equal("/inflight"))
		})
	})
})
