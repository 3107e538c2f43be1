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
	"fmt"
	"sync/atomic"
	"time"

	"github.com/basaltos/basalt/pkg/types"
)

// Inode is a filesystem-independent descriptor of one backing object.
// Holders own one reference each; the last DecRef destroys the node
// through its registry.
type Inode struct {
	ID        types.FileID
	Kind      types.Kind
	CreatedAt time.Time

	size     int64
	refCount int32
	registry *Registry
}

func (i *Inode) IncRef() {
	atomic.AddInt32(&i.refCount, 1)
}

func (i *Inode) DecRef() {
	crt := atomic.AddInt32(&i.refCount, -1)
	if crt < 0 {
		panic(fmt.Sprintf("inode %d refcount underflow", i.ID))
	}
	if crt == 0 && i.registry != nil {
		i.registry.destroy(i)
	}
}

func (i *Inode) RefCount() int32 {
	return atomic.LoadInt32(&i.refCount)
}

func (i *Inode) Size() int64 {
	return atomic.LoadInt64(&i.size)
}

func (i *Inode) SetSize(size int64) {
	atomic.StoreInt64(&i.size, size)
}

func (i *Inode) IsGroup() bool {
	return i.Kind == types.GroupKind
}
