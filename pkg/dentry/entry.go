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
	"strings"
	"sync/atomic"

	"github.com/basaltos/basalt/pkg/inode"
)

const (
	flagRoot     = uint32(1) << 0
	flagNegative = uint32(1) << 1
)

// Entry is one record of the name cache: the association between a
// parent record, a name and the node it resolved to, or an explicit
// absence. Records are pool-owned; all mutation goes through Cache.
type Entry struct {
	name   string
	parent *Entry
	inode  *inode.Inode
	flags  uint32
	ref    int32

	// list membership, owned by Cache
	elem *list.Element
}

func (e *Entry) Name() string {
	return e.name
}

func (e *Entry) Parent() *Entry {
	return e.parent
}

func (e *Entry) Inode() *inode.Inode {
	return e.inode
}

func (e *Entry) RefCount() int32 {
	return atomic.LoadInt32(&e.ref)
}

func (e *Entry) IsRoot() bool {
	return e.flags&flagRoot > 0
}

func (e *Entry) IsNegative() bool {
	return e.flags&flagNegative > 0
}

// IsPending reports whether resolution of this record is still in
// flight: no node bound yet and not marked negative.
func (e *Entry) IsPending() bool {
	return e.inode == nil && e.flags&(flagRoot|flagNegative) == 0
}

// Path renders the parent chain for diagnostics.
func (e *Entry) Path() string {
	if e.IsRoot() {
		return "/"
	}
	var parts []string
	for cur := e; cur != nil && !cur.IsRoot(); cur = cur.parent {
		parts = append(parts, cur.name)
	}
	var sb strings.Builder
	for i := len(parts) - 1; i >= 0; i-- {
		sb.WriteString("/")
		sb.WriteString(parts[i])
	}
	return sb.String()
}

type hashKey struct {
	parent *Entry
	name   string
}
