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

package inode

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/basaltos/basalt/pkg/events"
	"github.com/basaltos/basalt/pkg/types"
	"github.com/basaltos/basalt/utils"
	"github.com/basaltos/basalt/utils/logger"
)

type Registry struct {
	mux       sync.Mutex
	nodes     map[types.FileID]*Inode
	releaseFn func(*Inode)
	logger    *zap.SugaredLogger
}

type Option func(*Registry)

// WithReleaseHandler installs a callback invoked after the last
// reference to a node is dropped. Wiring uses it to invalidate cached
// pages and clean up backing data.
func WithReleaseHandler(fn func(*Inode)) Option {
	return func(r *Registry) {
		r.releaseFn = fn
	}
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		nodes:  map[types.FileID]*Inode{},
		logger: logger.NewLogger("registry"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create mints a node with one reference owned by the caller.
func (r *Registry) Create(kind types.Kind) *Inode {
	ino := &Inode{
		ID:        types.FileID(utils.GenerateNewID()),
		Kind:      kind,
		CreatedAt: time.Now(),
		refCount:  1,
		registry:  r,
	}
	r.mux.Lock()
	r.nodes[ino.ID] = ino
	r.mux.Unlock()
	atomic.AddInt32(&crtNodeTotal, 1)
	events.PublishNodeEvent(events.ActionTypeCreate, ino.ID, ino.Kind)
	return ino
}

// Get acquires one reference on an existing node.
func (r *Registry) Get(id types.FileID) (*Inode, error) {
	r.mux.Lock()
	ino, ok := r.nodes[id]
	if !ok {
		r.mux.Unlock()
		return nil, types.ErrNotFound
	}
	ino.IncRef()
	r.mux.Unlock()
	return ino, nil
}

// Drop releases the reference held under the given id without the
// caller needing a handle first.
func (r *Registry) Drop(id types.FileID) error {
	r.mux.Lock()
	ino, ok := r.nodes[id]
	r.mux.Unlock()
	if !ok {
		return types.ErrNotFound
	}
	ino.DecRef()
	return nil
}

func (r *Registry) Len() int {
	r.mux.Lock()
	defer r.mux.Unlock()
	return len(r.nodes)
}

func (r *Registry) destroy(ino *Inode) {
	r.mux.Lock()
	if ino.RefCount() > 0 {
		// resurrected by a concurrent Get
		r.mux.Unlock()
		return
	}
	delete(r.nodes, ino.ID)
	r.mux.Unlock()

	atomic.AddInt32(&crtNodeTotal, -1)
	r.logger.Debugw("node destroyed", "node", ino.ID)
	events.PublishNodeEvent(events.ActionTypeDestroy, ino.ID, ino.Kind)
	if r.releaseFn != nil {
		r.releaseFn(ino)
	}
}
