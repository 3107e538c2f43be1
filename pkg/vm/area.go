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
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/basaltos/basalt/pkg/inode"
	"github.com/basaltos/basalt/pkg/types"
	"github.com/basaltos/basalt/utils/logger"
)

type Flags uint8

const (
	FlagRead Flags = 1 << iota
	FlagWrite
	FlagExecute
	FlagPrivate
	FlagLazy
)

func (f Flags) String() string {
	buf := []byte("-----")
	if f&FlagRead > 0 {
		buf[0] = 'r'
	}
	if f&FlagWrite > 0 {
		buf[1] = 'w'
	}
	if f&FlagExecute > 0 {
		buf[2] = 'x'
	}
	if f&FlagPrivate > 0 {
		buf[3] = 'p'
	}
	if f&FlagLazy > 0 {
		buf[4] = 'l'
	}
	return string(buf)
}

func (f Flags) prot() Flags {
	return f & (FlagRead | FlagWrite | FlagExecute)
}

// Backing ties an area to a window of file content: Off is the file
// offset the area's first byte maps to, Len how many bytes of the file
// the window covers. Accesses past Len are demand-zero.
type Backing struct {
	File *inode.Inode
	Off  int64
	Len  int64
}

// Mapper is the platform mapping primitive: install or drop one
// virtual-to-frame translation. Assumed to succeed for valid input.
type Mapper interface {
	Map(va int64, frame *Frame, flags Flags)
	Unmap(va int64)
}

type Translation struct {
	Frame *Frame
	Flags Flags
}

// SoftTable is a software page table standing in for hardware: a plain
// map of installed translations, queryable for inspection and backing
// Space.ReadAt/WriteAt.
type SoftTable struct {
	mux     sync.RWMutex
	entries map[int64]Translation
}

func NewSoftTable() *SoftTable {
	return &SoftTable{entries: map[int64]Translation{}}
}

func (t *SoftTable) Map(va int64, frame *Frame, flags Flags) {
	t.mux.Lock()
	t.entries[va] = Translation{Frame: frame, Flags: flags}
	t.mux.Unlock()
}

func (t *SoftTable) Unmap(va int64) {
	t.mux.Lock()
	delete(t.entries, va)
	t.mux.Unlock()
}

func (t *SoftTable) Lookup(va int64) (Translation, bool) {
	t.mux.RLock()
	defer t.mux.RUnlock()
	tr, ok := t.entries[va]
	return tr, ok
}

func (t *SoftTable) Len() int {
	t.mux.RLock()
	defer t.mux.RUnlock()
	return len(t.entries)
}

// Area is one mapped region of an address space. The pages map
// memoizes the share-or-copy decision per page address; once a page is
// linked the decision is never revisited.
type Area struct {
	start   int64
	length  int64
	flags   Flags
	backing *Backing
	pages   map[int64]*page
}

func (a *Area) Start() int64 {
	return a.start
}

func (a *Area) Length() int64 {
	return a.length
}

func (a *Area) Flags() Flags {
	return a.flags
}

func (a *Area) Resident() int {
	return len(a.pages)
}

func (a *Area) covers(va int64) bool {
	return va >= a.start && va < a.start+a.length
}

func (a *Area) overlaps(start, length int64) bool {
	return start < a.start+a.length && a.start < start+length
}

// Space is one address space: a set of non-overlapping areas over a
// shared page cache, with translations installed through a Mapper.
// One lock serializes mapping changes and fault resolution, the same
// way the address-space lock is held across a whole fault in a kernel;
// population I/O under it only ever suspends this space's callers.
type Space struct {
	mux    sync.Mutex
	areas  []*Area
	cache  *Cache
	table  Mapper
	logger *zap.SugaredLogger
}

// NewSpace builds an address space over cache. A nil table gets a
// fresh SoftTable.
func NewSpace(cache *Cache, table Mapper) *Space {
	if table == nil {
		table = NewSoftTable()
	}
	return &Space{
		cache:  cache,
		table:  table,
		logger: logger.NewLogger("vmspace"),
	}
}

func (s *Space) Table() Mapper {
	return s.table
}

// MapFile establishes a lazy file-backed area. The mapping holds one
// reference on the backing file until Unmap.
func (s *Space) MapFile(start, length int64, flags Flags, bk Backing) (*Area, error) {
	if bk.File == nil {
		return nil, fmt.Errorf("%w: file mapping without a file", types.ErrBadAddress)
	}
	if bk.Off%s.cache.pageSize != 0 || bk.Len < 0 {
		return nil, fmt.Errorf("%w: unaligned backing window at %d", types.ErrBadAddress, bk.Off)
	}
	area, err := s.insertArea(start, length, flags|FlagLazy, &bk)
	if err != nil {
		return nil, err
	}
	bk.File.IncRef()
	return area, nil
}

// MapAnonymous establishes a zero-backed area. Without FlagLazy the
// area is made fully resident right away, and a later fault inside it
// is an invariant violation.
func (s *Space) MapAnonymous(start, length int64, flags Flags) (*Area, error) {
	area, err := s.insertArea(start, length, flags, nil)
	if err != nil {
		return nil, err
	}
	if flags&FlagLazy == 0 {
		if err = s.prepopulate(area); err != nil {
			_ = s.Unmap(start)
			return nil, err
		}
	}
	return area, nil
}

func (s *Space) insertArea(start, length int64, flags Flags, bk *Backing) (*Area, error) {
	if length <= 0 || start < 0 || start%s.cache.pageSize != 0 {
		return nil, fmt.Errorf("%w: bad range [%#x, %#x)", types.ErrBadAddress, start, start+length)
	}
	s.mux.Lock()
	defer s.mux.Unlock()
	for _, a := range s.areas {
		if a.overlaps(start, length) {
			return nil, fmt.Errorf("%w: range [%#x, %#x) overlaps [%#x, %#x)",
				types.ErrIsExist, start, start+length, a.start, a.start+a.length)
		}
	}
	area := &Area{
		start:   start,
		length:  length,
		flags:   flags,
		backing: bk,
		pages:   map[int64]*page{},
	}
	s.areas = append(s.areas, area)
	crtAreaAdd(1)
	return area, nil
}

func (s *Space) prepopulate(area *Area) error {
	s.mux.Lock()
	defer s.mux.Unlock()
	for va := area.start; va < area.start+area.length; va += s.cache.pageSize {
		p, err := s.cache.anonymousPage(0, va/s.cache.pageSize)
		if err != nil {
			return err
		}
		area.pages[va] = p
		s.table.Map(va, p.frame, area.flags.prot())
	}
	return nil
}

// Unmap tears down the area starting at start: translations dropped,
// every linked page released, the backing file reference returned.
func (s *Space) Unmap(start int64) error {
	s.mux.Lock()
	var area *Area
	for i, a := range s.areas {
		if a.start == start {
			area = a
			s.areas = append(s.areas[:i], s.areas[i+1:]...)
			break
		}
	}
	if area == nil {
		s.mux.Unlock()
		return types.ErrNotFound
	}
	for va, p := range area.pages {
		s.table.Unmap(va)
		s.cache.Release(p)
		delete(area.pages, va)
	}
	s.mux.Unlock()

	crtAreaAdd(-1)
	if area.backing != nil {
		area.backing.File.DecRef()
	}
	return nil
}

// Close unmaps every remaining area.
func (s *Space) Close() {
	for {
		s.mux.Lock()
		if len(s.areas) == 0 {
			s.mux.Unlock()
			return
		}
		start := s.areas[0].start
		s.mux.Unlock()
		if err := s.Unmap(start); err != nil {
			s.logger.Errorw("unmap on close failed", "start", start, "err", err)
			return
		}
	}
}

// ReadAt copies resident memory through the installed translations.
// Addresses without a translation have not been faulted in and fail
// with ErrBadAddress.
func (s *Space) ReadAt(dest []byte, va int64) (int, error) {
	tbl, ok := s.table.(*SoftTable)
	if !ok {
		return 0, types.ErrUnsupported
	}
	read := 0
	for read < len(dest) {
		crt := va + int64(read)
		pageVA := crt &^ (s.cache.pageSize - 1)
		tr, ok := tbl.Lookup(pageVA)
		if !ok {
			return read, fmt.Errorf("%w: no translation for va %#x", types.ErrBadAddress, crt)
		}
		if tr.Flags&FlagRead == 0 {
			return read, fmt.Errorf("%w: read denied at va %#x", types.ErrBadAddress, crt)
		}
		read += copy(dest[read:], tr.Frame.Data()[crt-pageVA:])
	}
	return read, nil
}

// WriteAt copies into resident memory through the installed
// translations.
func (s *Space) WriteAt(src []byte, va int64) (int, error) {
	tbl, ok := s.table.(*SoftTable)
	if !ok {
		return 0, types.ErrUnsupported
	}
	written := 0
	for written < len(src) {
		crt := va + int64(written)
		pageVA := crt &^ (s.cache.pageSize - 1)
		tr, ok := tbl.Lookup(pageVA)
		if !ok {
			return written, fmt.Errorf("%w: no translation for va %#x", types.ErrBadAddress, crt)
		}
		if tr.Flags&FlagWrite == 0 {
			return written, fmt.Errorf("%w: write denied at va %#x", types.ErrBadAddress, crt)
		}
		written += copy(tr.Frame.Data()[crt-pageVA:], src[written:])
	}
	return written, nil
}
