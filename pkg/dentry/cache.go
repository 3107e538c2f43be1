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
	"container/list"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/basaltos/basalt/pkg/events"
	"github.com/basaltos/basalt/pkg/inode"
	"github.com/basaltos/basalt/pkg/types"
	"github.com/basaltos/basalt/utils/logger"
)

type Outcome int

const (
	OutcomeFound Outcome = iota
	OutcomePending
	OutcomeCreated
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFound:
		return "found"
	case OutcomePending:
		return "pending"
	case OutcomeCreated:
		return "created"
	}
	return "unknown"
}

// Cache is a fixed-capacity name cache. Records move between a free
// pool and an in-use list ordered most-recently-used first; when the
// free pool is empty a miss recycles the coldest unreferenced record.
// One lock serializes every mutation, and Pending results are returned
// to callers outside of it.
type Cache struct {
	mux      sync.Mutex
	free     *list.List
	inuse    *list.List
	index    map[hashKey]*list.Element
	capacity int
	logger   *zap.SugaredLogger
}

func NewCache(capacity int) *Cache {
	c := &Cache{
		free:     list.New(),
		inuse:    list.New(),
		index:    map[hashKey]*list.Element{},
		capacity: capacity,
		logger:   logger.NewLogger("namecache"),
	}
	for i := 0; i < capacity; i++ {
		c.free.PushBack(&Entry{})
	}
	atomic.AddInt32(&crtFreeTotal, int32(capacity))
	return c
}

// CreateRoot allocates the anchor record of a mount: ROOT flag, one
// reference, no node bound yet. Roots are never indexed and never
// evicted.
func (c *Cache) CreateRoot() (*Entry, error) {
	c.mux.Lock()
	e, note, err := c.takeRecordLocked()
	if err != nil {
		c.mux.Unlock()
		return nil, err
	}
	e.name = "/"
	e.parent = nil
	e.inode = nil
	e.flags = flagRoot
	atomic.StoreInt32(&e.ref, 1)
	e.elem = c.inuse.PushFront(e)
	atomic.AddInt32(&crtInuseTotal, 1)
	c.mux.Unlock()

	c.finishRecycle(note)
	events.PublishNameEvent(events.ActionTypeCreate, 0, "/", 1)
	return e, nil
}

// Lookup resolves (parent, name) against the cache.
//
// A hit on a usable record takes a reference, promotes it to
// most-recently-used and returns OutcomeFound; negative records are
// hits too, the caller inspects IsNegative. A hit on an in-flight
// record returns OutcomePending with no reference taken. A miss
// reserves a fresh record in pending state, referenced once for the
// caller and holding one reference on parent, and returns
// OutcomeCreated: the caller resolves the name and finishes with Bind,
// Unlink or Forget.
func (c *Cache) Lookup(parent *Entry, name string) (*Entry, Outcome, error) {
	if parent == nil {
		panic("name cache: lookup with nil parent")
	}
	if len(name) == 0 || len(name) > types.MaxNameLength {
		return nil, OutcomeFound, types.ErrNameTooLong
	}

	startAt := time.Now()
	c.mux.Lock()
	if parent.elem == nil {
		c.mux.Unlock()
		panic("name cache: lookup under recycled parent")
	}

	if el, ok := c.index[hashKey{parent: parent, name: name}]; ok {
		e := el.Value.(*Entry)
		if e.IsPending() {
			c.mux.Unlock()
			nameCacheLookupLatency.WithLabelValues(OutcomePending.String()).Observe(time.Since(startAt).Seconds())
			return nil, OutcomePending, nil
		}
		atomic.AddInt32(&e.ref, 1)
		c.inuse.MoveToFront(el)
		c.mux.Unlock()
		nameCacheLookupLatency.WithLabelValues(OutcomeFound.String()).Observe(time.Since(startAt).Seconds())
		return e, OutcomeFound, nil
	}

	e, note, err := c.takeRecordLocked()
	if err != nil {
		c.mux.Unlock()
		nameCacheExhaustedCounter.Inc()
		return nil, OutcomeFound, err
	}
	e.name = name
	e.parent = parent
	e.inode = nil
	e.flags = 0
	atomic.StoreInt32(&e.ref, 1)
	atomic.AddInt32(&parent.ref, 1)
	e.elem = c.inuse.PushFront(e)
	c.index[hashKey{parent: parent, name: name}] = e.elem
	atomic.AddInt32(&crtInuseTotal, 1)
	parentID := boundID(parent)
	c.mux.Unlock()

	c.finishRecycle(note)
	events.PublishNameEvent(events.ActionTypeCreate, parentID, name, 1)
	nameCacheLookupLatency.WithLabelValues(OutcomeCreated.String()).Observe(time.Since(startAt).Seconds())
	return e, OutcomeCreated, nil
}

// Bind resolves a record to a node. Any previously bound node is
// released, so rebinding keeps exactly one node reference outstanding.
// The new reference is acquired before the old one is dropped; with
// the same node on both sides the count never touches zero in between.
func (c *Cache) Bind(e *Entry, ino *inode.Inode) {
	if ino == nil {
		panic("name cache: bind with nil node")
	}
	c.mux.Lock()
	old := e.inode
	ino.IncRef()
	e.inode = ino
	e.flags &^= flagNegative
	parentID := boundID(e.parent)
	name := e.name
	ref := atomic.LoadInt32(&e.ref)
	c.mux.Unlock()

	if old != nil {
		old.DecRef()
	}
	events.PublishNameEvent(events.ActionTypeBind, parentID, name, ref)
}

// Unlink turns a record negative: the bound node reference is dropped
// and the record remains cached to answer future lookups with an
// explicit absence.
func (c *Cache) Unlink(e *Entry) {
	c.mux.Lock()
	old := e.inode
	e.inode = nil
	e.flags |= flagNegative
	parentID := boundID(e.parent)
	name := e.name
	ref := atomic.LoadInt32(&e.ref)
	c.mux.Unlock()

	if old != nil {
		old.DecRef()
	}
	events.PublishNameEvent(events.ActionTypeUnlink, parentID, name, ref)
}

func (c *Cache) Ref(e *Entry) {
	c.mux.Lock()
	defer c.mux.Unlock()
	if e.elem == nil {
		panic("name cache: ref on recycled record")
	}
	atomic.AddInt32(&e.ref, 1)
}

// Deref drops one reference. A record reaching zero stays cached and
// becomes eligible for recycling; its parent-chain reference is only
// released later, when the record itself is torn down.
func (c *Cache) Deref(e *Entry) {
	c.mux.Lock()
	defer c.mux.Unlock()
	c.derefLocked(e)
}

// Forget drops the caller's reference and, if that was the last one,
// tears the record down immediately instead of leaving it cached.
// Resolution abort paths use it so other callers are not parked on a
// pending record forever.
func (c *Cache) Forget(e *Entry) {
	c.mux.Lock()
	c.derefLocked(e)
	var note *recycled
	if atomic.LoadInt32(&e.ref) == 0 && e.flags&flagRoot == 0 && e.elem != nil {
		note = c.teardownLocked(e)
		c.free.PushBack(e)
		atomic.AddInt32(&crtFreeTotal, 1)
	}
	c.mux.Unlock()

	c.finishRecycle(note)
}

// ReclaimUnused moves every non-ROOT record with no references back to
// the free pool. Tearing a record down releases its parent reference,
// which may unpin further records, so the scan runs to a fixpoint.
func (c *Cache) ReclaimUnused() int {
	var notes []*recycled
	c.mux.Lock()
	reclaimed := 0
	for {
		progress := false
		for el := c.inuse.Back(); el != nil; {
			prev := el.Prev()
			e := el.Value.(*Entry)
			if atomic.LoadInt32(&e.ref) == 0 && e.flags&flagRoot == 0 {
				notes = append(notes, c.teardownLocked(e))
				c.free.PushBack(e)
				atomic.AddInt32(&crtFreeTotal, 1)
				reclaimed++
				progress = true
			}
			el = prev
		}
		if !progress {
			break
		}
	}
	c.mux.Unlock()

	c.finishRecycle(notes...)
	if reclaimed > 0 {
		c.logger.Infow("reclaimed unused records", "count", reclaimed)
		nameCacheReclaimedCounter.Add(float64(reclaimed))
	}
	return reclaimed
}

func (c *Cache) Len() int {
	c.mux.Lock()
	defer c.mux.Unlock()
	return c.inuse.Len()
}

func (c *Cache) FreeLen() int {
	c.mux.Lock()
	defer c.mux.Unlock()
	return c.free.Len()
}

func (c *Cache) Capacity() int {
	return c.capacity
}

// RecordInfo is a point-in-time snapshot of one in-use record.
type RecordInfo struct {
	Name     string       `json:"name"`
	Path     string       `json:"path"`
	NodeID   types.FileID `json:"node_id,omitempty"`
	RefCount int32        `json:"ref_count"`
	Root     bool         `json:"root,omitempty"`
	Negative bool         `json:"negative,omitempty"`
	Pending  bool         `json:"pending,omitempty"`
}

// Dump snapshots the in-use list, most-recently-used first.
func (c *Cache) Dump() []RecordInfo {
	c.mux.Lock()
	defer c.mux.Unlock()
	result := make([]RecordInfo, 0, c.inuse.Len())
	for el := c.inuse.Front(); el != nil; el = el.Next() {
		e := el.Value.(*Entry)
		info := RecordInfo{
			Name:     e.name,
			Path:     e.Path(),
			RefCount: atomic.LoadInt32(&e.ref),
			Root:     e.flags&flagRoot > 0,
			Negative: e.flags&flagNegative > 0,
			Pending:  e.IsPending(),
		}
		if e.inode != nil {
			info.NodeID = e.inode.ID
		}
		result = append(result, info)
	}
	return result
}

// recycled carries what a torn-down record held, so the node release
// and the event both happen after the cache lock is dropped.
type recycled struct {
	parent types.FileID
	name   string
	inode  *inode.Inode
}

func (c *Cache) finishRecycle(notes ...*recycled) {
	for _, n := range notes {
		if n == nil {
			continue
		}
		if n.inode != nil {
			n.inode.DecRef()
		}
		events.PublishNameEvent(events.ActionTypeRecycle, n.parent, n.name, 0)
	}
}

// takeRecordLocked obtains a spare record: from the free pool when one
// is available, otherwise by recycling the least-recently-used in-use
// record that is unreferenced and not ROOT.
func (c *Cache) takeRecordLocked() (*Entry, *recycled, error) {
	if el := c.free.Front(); el != nil {
		c.free.Remove(el)
		atomic.AddInt32(&crtFreeTotal, -1)
		return el.Value.(*Entry), nil, nil
	}

	for el := c.inuse.Back(); el != nil; el = el.Prev() {
		e := el.Value.(*Entry)
		if atomic.LoadInt32(&e.ref) != 0 || e.flags&flagRoot > 0 {
			continue
		}
		note := c.teardownLocked(e)
		nameCacheEvictionCounter.Inc()
		return e, note, nil
	}
	return nil, nil, types.ErrExhausted
}

// teardownLocked detaches a record from the in-use list and the index,
// releasing its parent-chain reference exactly once. The bound node
// goes into the returned note instead of being released here, callers
// drop it outside the lock.
func (c *Cache) teardownLocked(e *Entry) *recycled {
	if e.elem == nil {
		panic("name cache: teardown of recycled record")
	}
	note := &recycled{parent: boundID(e.parent), name: e.name, inode: e.inode}
	c.inuse.Remove(e.elem)
	atomic.AddInt32(&crtInuseTotal, -1)
	e.elem = nil
	if e.parent != nil {
		delete(c.index, hashKey{parent: e.parent, name: e.name})
		c.derefLocked(e.parent)
	}
	e.inode = nil
	e.parent = nil
	e.flags = 0
	e.name = ""
	atomic.StoreInt32(&e.ref, 0)
	return note
}

func (c *Cache) derefLocked(e *Entry) {
	if e.elem == nil {
		panic("name cache: deref on recycled record")
	}
	if atomic.AddInt32(&e.ref, -1) < 0 {
		panic(fmt.Sprintf("name cache: refcount underflow on %q", e.name))
	}
}

func boundID(e *Entry) types.FileID {
	if e == nil || e.inode == nil {
		return 0
	}
	return e.inode.ID
}
