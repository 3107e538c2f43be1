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

package memfs

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/basaltos/basalt/pkg/inode"
	"github.com/basaltos/basalt/pkg/storage"
	"github.com/basaltos/basalt/pkg/types"
	"github.com/basaltos/basalt/utils/logger"
)

// Invalidator drops cached pages of a file whose content changed.
type Invalidator func(file types.FileID) int

// FileSystem keeps the directory structure in memory while file
// content lives in the storage backend under the node id. Node handles
// it returns carry an acquired registry reference.
type FileSystem struct {
	mux        sync.RWMutex
	registry   *inode.Registry
	store      storage.Storage
	root       *inode.Inode
	groups     map[types.FileID]map[string]types.FileID
	invalidate Invalidator
	logger     *zap.SugaredLogger
}

func New(registry *inode.Registry, store storage.Storage) *FileSystem {
	root := registry.Create(types.GroupKind)
	return &FileSystem{
		registry: registry,
		store:    store,
		root:     root,
		groups:   map[types.FileID]map[string]types.FileID{root.ID: {}},
		logger:   logger.NewLogger("memfs"),
	}
}

// SetInvalidator installs the hook fired after a file is rewritten.
func (fs *FileSystem) SetInvalidator(fn Invalidator) {
	fs.invalidate = fn
}

func (fs *FileSystem) Root(ctx context.Context) (*inode.Inode, error) {
	return fs.registry.Get(fs.root.ID)
}

func (fs *FileSystem) Lookup(ctx context.Context, parent types.FileID, name string) (*inode.Inode, error) {
	fs.mux.RLock()
	children, ok := fs.groups[parent]
	if !ok {
		fs.mux.RUnlock()
		return nil, types.ErrNoGroup
	}
	id, ok := children[name]
	fs.mux.RUnlock()
	if !ok {
		return nil, types.ErrNotFound
	}
	return fs.registry.Get(id)
}

func (fs *FileSystem) Create(ctx context.Context, parent types.FileID, name string, kind types.Kind) (*inode.Inode, error) {
	fs.mux.Lock()
	children, ok := fs.groups[parent]
	if !ok {
		fs.mux.Unlock()
		return nil, types.ErrNoGroup
	}
	if _, ok = children[name]; ok {
		fs.mux.Unlock()
		return nil, types.ErrIsExist
	}

	node := fs.registry.Create(kind)
	// the directory link owns the creation reference; the caller
	// handle is a second one
	node.IncRef()
	children[name] = node.ID
	if node.IsGroup() {
		fs.groups[node.ID] = map[string]types.FileID{}
	}
	fs.mux.Unlock()

	fs.logger.Debugw("created node", "parent", parent, "name", name, "node", node.ID)
	return node, nil
}

// Remove detaches the name and drops the creation reference, so the
// node is destroyed once every outside holder lets go. Groups must be
// empty.
func (fs *FileSystem) Remove(ctx context.Context, parent types.FileID, name string) error {
	fs.mux.Lock()
	children, ok := fs.groups[parent]
	if !ok {
		fs.mux.Unlock()
		return types.ErrNoGroup
	}
	id, ok := children[name]
	if !ok {
		fs.mux.Unlock()
		return types.ErrNotFound
	}
	if sub, isGroup := fs.groups[id]; isGroup {
		if len(sub) > 0 {
			fs.mux.Unlock()
			return types.ErrNotEmpty
		}
		delete(fs.groups, id)
	}
	delete(children, name)
	fs.mux.Unlock()

	fs.logger.Debugw("removed node", "parent", parent, "name", name, "node", id)
	return fs.registry.Drop(id)
}

// WriteFile replaces the file content and fires the invalidator so
// cached pages of the old content cannot be served again.
func (fs *FileSystem) WriteFile(ctx context.Context, file types.FileID, data []byte) error {
	node, err := fs.registry.Get(file)
	if err != nil {
		return err
	}
	defer node.DecRef()
	if node.IsGroup() {
		return types.ErrIsGroup
	}

	if err = fs.store.Put(ctx, file, bytes.NewReader(data)); err != nil {
		return err
	}
	node.SetSize(int64(len(data)))
	if fs.invalidate != nil {
		fs.invalidate(file)
	}
	return nil
}

// List returns the sorted child names of a group.
func (fs *FileSystem) List(ctx context.Context, parent types.FileID) ([]string, error) {
	fs.mux.RLock()
	children, ok := fs.groups[parent]
	if !ok {
		fs.mux.RUnlock()
		return nil, types.ErrNoGroup
	}
	names := make([]string, 0, len(children))
	for name := range children {
		names = append(names, name)
	}
	fs.mux.RUnlock()

	sort.Strings(names)
	return names, nil
}
