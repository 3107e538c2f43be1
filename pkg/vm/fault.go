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
	"runtime/trace"
	"time"

	"github.com/basaltos/basalt/pkg/types"
)

// HandleFault resolves one access fault at va.
//
// The covering area decides everything: no area or an access outside
// its protection fails with ErrBadAddress; a fault inside a fully
// resident area is an invariant violation. For a lazy area the page is
// resolved once, linked into the area, and installed through the
// Mapper; later faults on the same page just reinstall the memoized
// link. Exhaustion and backing I/O failures come back as errors to the
// faulting caller.
func (s *Space) HandleFault(ctx context.Context, va int64, access Flags) error {
	defer trace.StartRegion(ctx, "vm.space.handleFault").End()
	startAt := time.Now()

	s.mux.Lock()
	defer s.mux.Unlock()

	area := s.findAreaLocked(va)
	if area == nil {
		vmFaultLatency.WithLabelValues("bad_address").Observe(time.Since(startAt).Seconds())
		return fmt.Errorf("%w: no mapping covers va %#x", types.ErrBadAddress, va)
	}
	if access.prot()&^area.flags.prot() != 0 {
		vmFaultLatency.WithLabelValues("bad_address").Observe(time.Since(startAt).Seconds())
		return fmt.Errorf("%w: %s access denied in %s area at va %#x",
			types.ErrBadAddress, access.prot(), area.flags, va)
	}
	if area.flags&FlagLazy == 0 {
		panic(fmt.Sprintf("vm: fault at va %#x inside fully-resident area [%#x, %#x)",
			va, area.start, area.start+area.length))
	}

	pageVA := va &^ (s.cache.pageSize - 1)
	if p, ok := area.pages[pageVA]; ok {
		s.table.Map(pageVA, p.frame, area.flags.prot())
		vmFaultLatency.WithLabelValues("linked").Observe(time.Since(startAt).Seconds())
		return nil
	}

	resolved, resolution, err := s.resolvePage(ctx, area, pageVA)
	if err != nil {
		vmFaultErrorsCounter.Inc()
		vmFaultLatency.WithLabelValues("error").Observe(time.Since(startAt).Seconds())
		return err
	}
	area.pages[pageVA] = resolved
	s.table.Map(pageVA, resolved.frame, area.flags.prot())
	vmFaultLatency.WithLabelValues(resolution).Observe(time.Since(startAt).Seconds())
	return nil
}

// resolvePage picks the frame for one unresolved page address.
//
// A file-backed page whose start lies inside the backing window goes
// through the canonical cache. The pin taken there becomes the area's
// share link when the page fits the window entirely and the area is
// not private; otherwise the content is copied into a private page and
// the canonical pin is dropped. The fit test is exact: a page
// straddling the end of the window is never shared, or bytes past the
// window would alias through the canonical frame. Everything else is
// demand-zero.
func (s *Space) resolvePage(ctx context.Context, area *Area, pageVA int64) (*page, string, error) {
	if area.backing != nil {
		rel := pageVA - area.start
		if rel < area.backing.Len {
			keyOff := area.backing.Off + rel
			canonical, err := s.cache.page(ctx, area.backing.File, keyOff/s.cache.pageSize)
			if err != nil {
				return nil, "", err
			}
			fits := keyOff+s.cache.pageSize <= area.backing.Off+area.backing.Len
			if fits && area.flags&FlagPrivate == 0 {
				return canonical, "shared", nil
			}
			private, err := s.cache.privateCopy(canonical)
			s.cache.Release(canonical)
			if err != nil {
				return nil, "", err
			}
			// the copy keeps only bytes inside the backing window
			if visible := area.backing.Off + area.backing.Len - keyOff; visible < s.cache.pageSize {
				tail := private.frame.data[visible:]
				for i := range tail {
					tail[i] = 0
				}
			}
			return private, "private", nil
		}
	}

	var file types.FileID
	if area.backing != nil {
		file = area.backing.File.ID
	}
	p, err := s.cache.anonymousPage(file, pageVA/s.cache.pageSize)
	if err != nil {
		return nil, "", err
	}
	return p, "zero", nil
}

func (s *Space) findAreaLocked(va int64) *Area {
	for _, a := range s.areas {
		if a.covers(va) {
			return a
		}
	}
	return nil
}
