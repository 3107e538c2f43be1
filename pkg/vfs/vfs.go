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

package vfs

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/basaltos/basalt/pkg/dentry"
	"github.com/basaltos/basalt/pkg/inode"
	"github.com/basaltos/basalt/pkg/types"
	"github.com/basaltos/basalt/utils/logger"
)

// FS is the backing filesystem the resolver consults when the name
// cache cannot answer on its own. Node handles returned by FS methods
// carry an acquired registry reference owned by the caller.
type FS interface {
	Root(ctx context.Context) (*inode.Inode, error)
	Lookup(ctx context.Context, parent types.FileID, name string) (*inode.Inode, error)
	Create(ctx context.Context, parent types.FileID, name string, kind types.Kind) (*inode.Inode, error)
	Remove(ctx context.Context, parent types.FileID, name string) error
}

const (
	pendingPollInterval = 5 * time.Millisecond
	maxPendingPolls     = 200
)

// VFS resolves absolute paths to name cache records, filling the cache
// from the backend on demand. Every record handed out by Resolve or
// Create carries a reference the caller returns through Release.
type VFS struct {
	nameCache *dentry.Cache
	backend   FS
	root      *dentry.Entry
	logger    *zap.SugaredLogger
}

func Mount(ctx context.Context, backend FS, nameCache *dentry.Cache) (*VFS, error) {
	rootNode, err := backend.Root(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "load backend root")
	}
	root, err := nameCache.CreateRoot()
	if err != nil {
		rootNode.DecRef()
		return nil, err
	}
	nameCache.Bind(root, rootNode)
	rootNode.DecRef()

	v := &VFS{
		nameCache: nameCache,
		backend:   backend,
		root:      root,
		logger:    logger.NewLogger("vfs"),
	}
	v.logger.Infow("mounted", "root", rootNode.ID)
	return v, nil
}

func (v *VFS) Root() *dentry.Entry {
	return v.root
}

// Release hands back a record obtained from Resolve or Create.
func (v *VFS) Release(e *dentry.Entry) {
	v.nameCache.Deref(e)
}

// Resolve walks the path one component at a time through the name
// cache. Absent names come back as ErrNotFound whether discovered on
// this call or remembered by a negative record.
func (v *VFS) Resolve(ctx context.Context, entryPath string) (*dentry.Entry, error) {
	names, err := SplitPath(entryPath)
	if err != nil {
		return nil, err
	}
	e, err := v.walk(ctx, names)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve %s", entryPath)
	}
	return e, nil
}

// Create makes a new entry through the backend and binds it into the
// name cache, waking up any negative record left at that name.
func (v *VFS) Create(ctx context.Context, entryPath string, kind types.Kind) (*dentry.Entry, error) {
	names, err := SplitPath(entryPath)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, errors.Wrap(types.ErrIsExist, "create mount root")
	}

	parent, err := v.walk(ctx, names[:len(names)-1])
	if err != nil {
		return nil, errors.Wrapf(err, "resolve parent of %s", entryPath)
	}
	defer v.nameCache.Deref(parent)

	base := names[len(names)-1]
	node, err := v.backend.Create(ctx, parent.Inode().ID, base, kind)
	if err != nil {
		return nil, errors.Wrapf(err, "create %s", entryPath)
	}
	defer node.DecRef()

	e, err := v.bindName(ctx, parent, base, node)
	if err != nil {
		return nil, errors.Wrapf(err, "bind %s", entryPath)
	}
	v.logger.Infow("created entry", "path", entryPath, "node", node.ID)
	return e, nil
}

// Remove unlinks the path through the backend and flips the record
// negative so later lookups answer absence from the cache.
func (v *VFS) Remove(ctx context.Context, entryPath string) error {
	e, err := v.Resolve(ctx, entryPath)
	if err != nil {
		return err
	}
	defer v.nameCache.Deref(e)
	if e.IsRoot() {
		return errors.Wrap(types.ErrUnsupported, "remove mount root")
	}

	parentNode := e.Parent().Inode()
	if parentNode == nil {
		return types.ErrNotFound
	}
	if err = v.backend.Remove(ctx, parentNode.ID, e.Name()); err != nil {
		return errors.Wrapf(err, "remove %s", entryPath)
	}
	v.nameCache.Unlink(e)
	v.logger.Infow("removed entry", "path", entryPath)
	return nil
}

// walk advances from the mount root through the given names, holding a
// reference on each parent while its child is looked up. The returned
// record carries a reference owned by the caller.
func (v *VFS) walk(ctx context.Context, names []string) (*dentry.Entry, error) {
	cur := v.root
	v.nameCache.Ref(cur)
	for _, name := range names {
		next, err := v.lookupChild(ctx, cur, name)
		v.nameCache.Deref(cur)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return cur, nil
}

// lookupChild resolves one component under parent. A pending record
// owned by another caller is polled until it settles; exhaustion is
// answered with one reclaim pass before giving up.
func (v *VFS) lookupChild(ctx context.Context, parent *dentry.Entry, name string) (*dentry.Entry, error) {
	if !parent.Inode().IsGroup() {
		return nil, errors.Wrap(types.ErrNoGroup, parent.Name())
	}

	var (
		polls     int
		reclaimed bool
	)
	for {
		e, outcome, err := v.nameCache.Lookup(parent, name)
		if err != nil {
			if errors.Is(err, types.ErrExhausted) && !reclaimed {
				reclaimed = true
				if freed := v.nameCache.ReclaimUnused(); freed > 0 {
					v.logger.Infow("name cache exhausted, reclaimed", "records", freed)
					continue
				}
			}
			return nil, err
		}

		switch outcome {
		case dentry.OutcomeFound:
			if e.IsNegative() {
				v.nameCache.Deref(e)
				return nil, types.ErrNotFound
			}
			return e, nil
		case dentry.OutcomePending:
			if polls >= maxPendingPolls {
				return nil, errors.Wrapf(types.ErrBusy, "lookup of %s not settled", name)
			}
			polls++
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(pendingPollInterval):
			}
		case dentry.OutcomeCreated:
			return v.finishLookup(ctx, parent, e, name)
		}
	}
}

// finishLookup consults the backend for a record this caller holds
// pending. Absence leaves a negative record behind; a backend failure
// tears the record down so a later lookup can try again.
func (v *VFS) finishLookup(ctx context.Context, parent *dentry.Entry, e *dentry.Entry, name string) (*dentry.Entry, error) {
	node, err := v.backend.Lookup(ctx, parent.Inode().ID, name)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			v.nameCache.Unlink(e)
			v.nameCache.Deref(e)
			return nil, types.ErrNotFound
		}
		v.nameCache.Forget(e)
		v.logger.Warnw("backend lookup failed", "name", name, "err", err)
		return nil, errors.Wrapf(err, "backend lookup %s", name)
	}
	v.nameCache.Bind(e, node)
	node.DecRef()
	return e, nil
}

// bindName attaches node to the record at (parent, name), reusing
// whatever record state the cache already holds there.
func (v *VFS) bindName(ctx context.Context, parent *dentry.Entry, name string, node *inode.Inode) (*dentry.Entry, error) {
	var (
		polls     int
		reclaimed bool
	)
	for {
		e, outcome, err := v.nameCache.Lookup(parent, name)
		if err != nil {
			if errors.Is(err, types.ErrExhausted) && !reclaimed {
				reclaimed = true
				if freed := v.nameCache.ReclaimUnused(); freed > 0 {
					continue
				}
			}
			return nil, err
		}
		switch outcome {
		case dentry.OutcomeFound, dentry.OutcomeCreated:
			v.nameCache.Bind(e, node)
			return e, nil
		case dentry.OutcomePending:
			if polls >= maxPendingPolls {
				return nil, errors.Wrapf(types.ErrBusy, "bind of %s not settled", name)
			}
			polls++
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(pendingPollInterval):
			}
		}
	}
}

// SplitPath normalizes an absolute path into its component names.
// Relative paths and upward steps are refused.
func SplitPath(entryPath string) ([]string, error) {
	if entryPath == "" || entryPath[0] != '/' {
		return nil, fmt.Errorf("%w: path %q is not absolute", types.ErrUnsupported, entryPath)
	}
	parts := strings.Split(path.Clean(entryPath), "/")
	names := make([]string, 0, len(parts))
	for _, name := range parts {
		switch name {
		case "", ".":
			continue
		case "..":
			return nil, fmt.Errorf("%w: path %q walks above the root", types.ErrUnsupported, entryPath)
		}
		names = append(names, name)
	}
	return names, nil
}
