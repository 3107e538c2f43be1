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

const (
	pageModeEmpty    = int8(0)
	pageModeData     = int8(1)
	pageModeInvalid  = int8(1) << 1
	pageModePrivate  = int8(1) << 2
	pageModeDetached = int8(1) << 3

	pageTreeShift = 6
	pageTreeSize  = 1 << pageTreeShift
	pageTreeMask  = pageTreeSize - 1
)

// page is one page-cache entry. Canonical entries live in a per-file
// radix tree keyed by page index and may be shared by many areas
// through their pin count; private entries belong to exactly one area
// and never enter a tree. A page owns at most one frame; Invalid means
// the frame content must be (re)populated before use.
type page struct {
	file types.FileID
	idx  int64

	slots  []*page
	parent *page
	shift  int

	frame *Frame
	ref   int32
	mode  int8
	mux   sync.RWMutex
}

func newPageNode(shift int, mode int8) *page {
	p := &page{shift: shift, mode: mode}
	if mode == pageModeEmpty {
		p.slots = make([]*page, pageTreeSize)
	}
	return p
}

func (p *page) pinned() bool {
	return atomic.LoadInt32(&p.ref) > 0
}

func (p *page) detached() bool {
	p.mux.RLock()
	defer p.mux.RUnlock()
	return p.mode&pageModeDetached > 0
}

// pageTree indexes the canonical pages of one file. Interior nodes
// fan out pageTreeSize ways; the tree grows upward when an index
// outruns the current root.
type pageTree struct {
	rootNode   *page
	totalCount int
}

func (t *pageTree) find(pageIdx int64) *page {
	if t.rootNode == nil {
		return nil
	}
	if (pageTreeSize<<t.rootNode.shift)-1 < pageIdx {
		return nil
	}

	var (
		node  = t.rootNode
		shift = node.shift
		slot  int64
	)
	for shift >= 0 {
		slot = pageIdx >> node.shift & pageTreeMask
		next := node.slots[slot]
		if next == nil {
			return nil
		}
		node = next
		shift -= pageTreeShift
	}
	return node
}

func (t *pageTree) insert(pageIdx int64) *page {
	if t.rootNode == nil {
		t.rootNode = newPageNode(0, pageModeEmpty)
	}
	if (pageTreeSize<<t.rootNode.shift)-1 < pageIdx {
		t.extend(pageIdx)
	}

	var (
		node  = t.rootNode
		shift = t.rootNode.shift
		slot  int64
	)
	for shift > 0 {
		slot = pageIdx >> node.shift & pageTreeMask
		next := node.slots[slot]
		if next == nil {
			next = newPageNode(shift-pageTreeShift, pageModeEmpty)
			next.parent = node
			node.slots[slot] = next
		}
		node = next
		shift -= pageTreeShift
	}

	dataNode := newPageNode(0, pageModeData|pageModeInvalid)
	dataNode.parent = node

	slot = pageIdx & pageTreeMask
	node.slots[slot] = dataNode

	t.totalCount++
	return dataNode
}

func (t *pageTree) extend(pageIdx int64) {
	var (
		node  = t.rootNode
		shift = node.shift
	)

	maxShift := shift
	for pageIdx > (pageTreeSize<<maxShift)-1 {
		maxShift += pageTreeShift
	}
	for shift <= maxShift {
		shift += pageTreeShift
		root := newPageNode(shift, pageModeEmpty)
		root.slots[0] = node

		node.parent = root
		node = root
	}
	t.rootNode = node
}

func (t *pageTree) visit(fn func(p *page)) {
	t.visitNode(t.rootNode, fn)
}

func (t *pageTree) visitNode(node *page, fn func(p *page)) {
	if node == nil {
		return
	}
	for _, next := range node.slots {
		t.visitNode(next, fn)
	}
	if node.mode&pageModeData > 0 {
		fn(node)
	}
}
