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
	"context"
	"fmt"
	"io"
	"runtime/trace"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/basaltos/basalt/config"
	"github.com/basaltos/basalt/pkg/events"
	"github.com/basaltos/basalt/pkg/inode"
	"github.com/basaltos/basalt/pkg/storage"
	"github.com/basaltos/basalt/pkg/types"
	"github.com/basaltos/basalt/utils"
	"github.com/basaltos/basalt/utils/logger"
)

// Cache is the canonical page cache: per-file radix trees of pages
// keyed by (file, page index), fed from a backing store. Finding or
// inserting a page and pinning it happen under one lock, so exactly
// one entry exists per key no matter how many faults race on it;
// population happens later under the page's own lock, so exactly one
// of the racing pinners reads the backing store.
//
// An advisory LFU pool tracks canonical pages and sheds cold unpinned
// ones when the frame budget runs high. Shedding only drops the frame
// and marks the page invalid; the tree node stays and the next fault
// repopulates it.
type Cache struct {
	mux      sync.Mutex
	files    map[types.FileID]*pageTree
	store    storage.Storage
	alloc    *Allocator
	pageSize int64

	lfu      *utils.LFUPool
	releaseQ chan *page
	stopCh   chan struct{}
	interval time.Duration

	logger *zap.SugaredLogger
}

func NewCache(store storage.Storage, cfg config.PageCache) *Cache {
	if cfg.PageSize <= 0 {
		cfg.PageSize = config.DefaultPageSize
	}
	if cfg.FrameLimit <= 0 {
		cfg.FrameLimit = config.DefaultFrameLimit
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = config.DefaultPoolSize
	}
	if cfg.ReclaimInterval <= 0 {
		cfg.ReclaimInterval = config.DefaultReclaimInterval
	}
	c := &Cache{
		files:    map[types.FileID]*pageTree{},
		store:    store,
		alloc:    NewAllocator(cfg.PageSize, int(cfg.FrameLimit)),
		pageSize: cfg.PageSize,
		lfu:      utils.NewLFUPool(cfg.PoolSize),
		releaseQ: make(chan *page, cfg.FrameLimit/2+1),
		stopCh:   make(chan struct{}),
		interval: time.Duration(cfg.ReclaimInterval) * time.Second,
		logger:   logger.NewLogger("pagecache"),
	}
	c.lfu.HandlerRemove = c.handleColdPage
	go c.janitor()
	return c
}

func (c *Cache) PageSize() int64 {
	return c.pageSize
}

// page returns the canonical page of file at pageIdx, pinned for the
// caller and populated. The pin is taken under the cache lock before
// any other fault can observe the entry; callers drop it with Release.
func (c *Cache) page(ctx context.Context, file *inode.Inode, pageIdx int64) (*page, error) {
	defer trace.StartRegion(ctx, "vm.pageCache.page").End()
	c.mux.Lock()
	tree, ok := c.files[file.ID]
	if !ok {
		tree = &pageTree{}
		c.files[file.ID] = tree
	}
	p := tree.find(pageIdx)
	if p == nil {
		p = tree.insert(pageIdx)
		p.file = file.ID
		p.idx = pageIdx
	}
	atomic.AddInt32(&p.ref, 1)
	c.lfu.Put(pageCacheKey(file.ID, pageIdx), p)
	c.mux.Unlock()

	if err := c.populate(ctx, p, file); err != nil {
		c.Release(p)
		return nil, err
	}
	return p, nil
}

// populate fills the page's frame on first use or after the frame was
// shed. The backing read covers the bytes the file actually has at
// this offset; anything past end-of-file stays zero.
func (c *Cache) populate(ctx context.Context, p *page, file *inode.Inode) error {
	p.mux.Lock()
	defer p.mux.Unlock()
	if p.mode&pageModeInvalid == 0 && p.frame != nil {
		return nil
	}

	frame, err := c.alloc.Allocate()
	if err != nil {
		return err
	}
	keyOff := p.idx * c.pageSize
	readLen := file.Size() - keyOff
	if readLen > c.pageSize {
		readLen = c.pageSize
	}
	if readLen > 0 {
		if err = c.readBacking(ctx, p.file, keyOff, frame.data[:readLen]); err != nil {
			c.alloc.Free(frame)
			return err
		}
	}
	p.frame = frame
	p.mode &^= pageModeInvalid
	pagePopulatedCounter.Inc()
	events.PublishPageEvent(events.ActionTypePopulate, p.file, keyOff)
	return nil
}

func (c *Cache) readBacking(ctx context.Context, file types.FileID, off int64, dest []byte) error {
	startAt := time.Now()
	rc, err := c.store.Get(ctx, file, off, int64(len(dest)))
	if err != nil {
		return fmt.Errorf("%w: read %s at %d: %s", types.ErrIO, file, off, err)
	}
	defer rc.Close()
	n, err := io.ReadFull(rc, dest)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return fmt.Errorf("%w: read %s at %d: got %d of %d bytes", types.ErrShortRead, file, off, n, len(dest))
	}
	if err != nil {
		return fmt.Errorf("%w: read %s at %d: %s", types.ErrIO, file, off, err)
	}
	backingReadLatency.Observe(time.Since(startAt).Seconds())
	return nil
}

// privateCopy clones the pinned canonical page into a fresh private
// page with its own frame. The clone has no further relation to the
// canonical entry that seeded it.
func (c *Cache) privateCopy(canonical *page) (*page, error) {
	frame, err := c.alloc.Allocate()
	if err != nil {
		return nil, err
	}
	canonical.mux.RLock()
	frame.CopyFrom(canonical.frame)
	canonical.mux.RUnlock()
	return &page{
		file:  canonical.file,
		idx:   canonical.idx,
		frame: frame,
		ref:   1,
		mode:  pageModeData | pageModePrivate,
	}, nil
}

// anonymousPage builds a private page over a freshly zeroed frame.
func (c *Cache) anonymousPage(file types.FileID, pageIdx int64) (*page, error) {
	frame, err := c.alloc.Allocate()
	if err != nil {
		return nil, err
	}
	return &page{
		file:  file,
		idx:   pageIdx,
		frame: frame,
		ref:   1,
		mode:  pageModeData | pageModePrivate,
	}, nil
}

// Release drops one pin. Private and detached pages free their frame
// at the last pin; canonical pages stay resident for the next fault
// until the janitor or an invalidation takes the frame back.
func (c *Cache) Release(p *page) {
	crt := atomic.AddInt32(&p.ref, -1)
	if crt < 0 {
		panic(fmt.Sprintf("page cache: share count underflow on %s", pageCacheKey(p.file, p.idx)))
	}
	if crt > 0 {
		return
	}
	p.mux.Lock()
	if p.mode&(pageModePrivate|pageModeDetached) > 0 && p.frame != nil {
		c.alloc.Free(p.frame)
		p.frame = nil
		p.mode |= pageModeInvalid
	}
	p.mux.Unlock()
}

// Invalidate disconnects every canonical page of a file. Unpinned
// pages lose their frame at once; pages still linked by an area are
// detached and give the frame back at their last Release. Fresh faults
// after Invalidate start from an empty tree and reread the store.
func (c *Cache) Invalidate(file types.FileID) int {
	c.mux.Lock()
	tree, ok := c.files[file]
	if !ok {
		c.mux.Unlock()
		return 0
	}
	delete(c.files, file)
	dropped := 0
	tree.visit(func(p *page) {
		// detach first so a queued cold-page sweep cannot re-track it
		p.mux.Lock()
		p.mode |= pageModeDetached
		if !p.pinned() && p.frame != nil {
			c.alloc.Free(p.frame)
			p.frame = nil
			p.mode |= pageModeInvalid
		}
		p.mux.Unlock()
		c.lfu.Remove(pageCacheKey(p.file, p.idx))
		dropped++
	})
	c.mux.Unlock()

	if dropped > 0 {
		pageInvalidatedCounter.Add(float64(dropped))
		events.PublishPageEvent(events.ActionTypeInvalidate, file, 0)
	}
	return dropped
}

// ReclaimUnused frees the frame of every unpinned canonical page.
// Tree nodes stay so later faults repopulate in place.
func (c *Cache) ReclaimUnused() int {
	c.mux.Lock()
	freed := 0
	for _, tree := range c.files {
		tree.visit(func(p *page) {
			if p.pinned() {
				return
			}
			if c.dropFrame(p) {
				freed++
			}
			c.lfu.Remove(pageCacheKey(p.file, p.idx))
		})
	}
	c.mux.Unlock()

	if freed > 0 {
		c.logger.Infow("reclaimed page frames", "count", freed)
	}
	return freed
}

// Close stops the janitor and force-frees every canonical frame. Areas
// must be torn down first; private pages are owned by them, not here.
func (c *Cache) Close() {
	close(c.stopCh)
	c.mux.Lock()
	for file, tree := range c.files {
		tree.visit(func(p *page) {
			c.dropFrame(p)
			c.lfu.Remove(pageCacheKey(p.file, p.idx))
		})
		delete(c.files, file)
	}
	c.mux.Unlock()
}

type Stats struct {
	PageSize       int64 `json:"page_size"`
	FramesInUse    int32 `json:"frames_in_use"`
	FrameLimit     int32 `json:"frame_limit"`
	Files          int   `json:"files"`
	CanonicalPages int   `json:"canonical_pages"`
}

func (c *Cache) Stats() Stats {
	c.mux.Lock()
	defer c.mux.Unlock()
	st := Stats{
		PageSize:    c.pageSize,
		FramesInUse: c.alloc.InUse(),
		FrameLimit:  c.alloc.Limit(),
		Files:       len(c.files),
	}
	for _, tree := range c.files {
		st.CanonicalPages += tree.totalCount
	}
	return st
}

// dropFrame takes the frame back from an unpinned page and marks it
// invalid. Safe against concurrent droppers; reports whether this call
// freed the frame.
func (c *Cache) dropFrame(p *page) bool {
	p.mux.Lock()
	defer p.mux.Unlock()
	if p.frame == nil {
		return false
	}
	c.alloc.Free(p.frame)
	p.frame = nil
	p.mode |= pageModeInvalid
	return true
}

// handleColdPage receives pages the advisory pool no longer tracks.
// Unpinned ones lose their frame; pinned ones are parked on the
// release queue and the janitor puts them back.
func (c *Cache) handleColdPage(k string, v interface{}) {
	p := v.(*page)
	if !p.pinned() {
		if c.dropFrame(p) {
			pageEvictedCounter.Inc()
			events.PublishPageEvent(events.ActionTypeEvict, p.file, p.idx*c.pageSize)
		}
		return
	}
	select {
	case c.releaseQ <- p:
	default:
		// queue full; the janitor sweep will find it
	}
}

func (c *Cache) janitor() {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			if c.alloc.InUse() <= int32(float64(c.alloc.Limit())*0.8) {
				continue
			}
			c.lfu.Visit(func(k string, v interface{}) {
				p := v.(*page)
				if !p.pinned() {
					c.lfu.Remove(k)
				}
			})
		case p := <-c.releaseQ:
			if p.detached() {
				continue
			}
			if !p.pinned() {
				if c.dropFrame(p) {
					pageEvictedCounter.Inc()
				}
				continue
			}
			c.lfu.Put(pageCacheKey(p.file, p.idx), p)
		}
	}
}

func pageCacheKey(file types.FileID, pageIdx int64) string {
	return fmt.Sprintf("pg_%d_%d", file, pageIdx)
}
