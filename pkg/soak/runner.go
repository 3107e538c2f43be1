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

package soak

import (
	"bytes"
	"context"
	"fmt"
	"math/rand"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/basaltos/basalt/pkg/dentry"
	"github.com/basaltos/basalt/pkg/memfs"
	"github.com/basaltos/basalt/pkg/types"
	"github.com/basaltos/basalt/pkg/vfs"
	"github.com/basaltos/basalt/pkg/vm"
	"github.com/basaltos/basalt/utils"
	"github.com/basaltos/basalt/utils/logger"
)

// Config shapes one workload run.
type Config struct {
	Workers      int
	Dirs         int
	Files        int
	MaxFileSize  int64
	Duration     time.Duration
	ReclaimEvery time.Duration
}

// Report sums what a run did.
type Report struct {
	Ops            int64
	Writes         int64
	Verifies       int64
	Removes        int64
	Misses         int64
	Failures       int64
	NamesReclaimed int64
	PagesReclaimed int64
}

// fileState serializes operations on one path. version 0 means the
// ledger believes the path is absent; any other value pins down the
// exact content a verifier must read back.
type fileState struct {
	mux     sync.Mutex
	version int64
}

// Runner drives a random create, write, map, verify, remove workload
// through the whole stack and checks every byte it reads back against
// the ledger of what was written.
type Runner struct {
	vfs    *vfs.VFS
	fs     *memfs.FileSystem
	names  *dentry.Cache
	pages  *vm.Cache
	cfg    Config
	paths  []string
	states map[string]*fileState
	report Report
	logger *zap.SugaredLogger
}

func NewRunner(v *vfs.VFS, fs *memfs.FileSystem, names *dentry.Cache, pages *vm.Cache, cfg Config) *Runner {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.Dirs <= 0 {
		cfg.Dirs = 4
	}
	if cfg.Files <= 0 {
		cfg.Files = 32
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = pages.PageSize() * 4
	}
	if cfg.ReclaimEvery <= 0 {
		cfg.ReclaimEvery = time.Second * 5
	}

	r := &Runner{
		vfs:    v,
		fs:     fs,
		names:  names,
		pages:  pages,
		cfg:    cfg,
		states: map[string]*fileState{},
		logger: logger.NewLogger("soak"),
	}
	for i := 0; i < cfg.Files; i++ {
		p := fmt.Sprintf("/soak/d%d/f%d", i%cfg.Dirs, i)
		r.paths = append(r.paths, p)
		r.states[p] = &fileState{}
	}
	return r
}

// Run executes the workload until the context or the configured
// duration ends, then reports what happened. A non-zero failure count
// means a property was violated or an operation failed unexpectedly.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	ctx, endTask := utils.TraceTask(ctx, "soak.run")
	defer endTask()

	if err := r.buildSkeleton(ctx); err != nil {
		return nil, errors.Wrap(err, "build soak skeleton")
	}
	if r.cfg.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Duration)
		defer cancel()
	}

	go r.reclaimLoop(ctx)

	limiter := utils.NewParallelLimiter(r.cfg.Workers)
	var wg sync.WaitGroup
	for ctx.Err() == nil {
		if err := limiter.Acquire(ctx); err != nil {
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer limiter.Release()
			defer r.recoverWorker()
			r.step(ctx)
		}()
	}
	wg.Wait()

	report := Report{
		Ops:            atomic.LoadInt64(&r.report.Ops),
		Writes:         atomic.LoadInt64(&r.report.Writes),
		Verifies:       atomic.LoadInt64(&r.report.Verifies),
		Removes:        atomic.LoadInt64(&r.report.Removes),
		Misses:         atomic.LoadInt64(&r.report.Misses),
		Failures:       atomic.LoadInt64(&r.report.Failures),
		NamesReclaimed: atomic.LoadInt64(&r.report.NamesReclaimed),
		PagesReclaimed: atomic.LoadInt64(&r.report.PagesReclaimed),
	}
	r.logger.Infow("soak run finished",
		"ops", report.Ops, "writes", report.Writes, "verifies", report.Verifies,
		"removes", report.Removes, "misses", report.Misses, "failures", report.Failures,
		"namesReclaimed", report.NamesReclaimed, "pagesReclaimed", report.PagesReclaimed)
	return &report, nil
}

func (r *Runner) buildSkeleton(ctx context.Context) error {
	dirs := make([]string, 0, r.cfg.Dirs+1)
	dirs = append(dirs, "/soak")
	for i := 0; i < r.cfg.Dirs; i++ {
		dirs = append(dirs, fmt.Sprintf("/soak/d%d", i))
	}
	for _, dir := range dirs {
		e, err := r.vfs.Create(ctx, dir, types.GroupKind)
		if err != nil {
			if errors.Is(err, types.ErrIsExist) {
				continue
			}
			return err
		}
		r.vfs.Release(e)
	}
	return nil
}

func (r *Runner) reclaimLoop(ctx context.Context) {
	defer utils.Recover()
	ticker := time.NewTicker(r.cfg.ReclaimEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			atomic.AddInt64(&r.report.NamesReclaimed, int64(r.names.ReclaimUnused()))
			atomic.AddInt64(&r.report.PagesReclaimed, int64(r.pages.ReclaimUnused()))
		}
	}
}

func (r *Runner) recoverWorker() {
	if panicErr := recover(); panicErr != nil {
		atomic.AddInt64(&r.report.Failures, 1)
		sentry.CurrentHub().Recover(panicErr)
		r.logger.Errorw("worker panic", "err", panicErr, "stack", string(debug.Stack()))
	}
}

func (r *Runner) step(ctx context.Context) {
	atomic.AddInt64(&r.report.Ops, 1)
	p := r.paths[rand.Intn(len(r.paths))]
	st := r.states[p]
	st.mux.Lock()
	defer st.mux.Unlock()

	var err error
	switch rand.Intn(10) {
	case 0:
		err = r.remove(ctx, p, st)
	case 1, 2, 3:
		err = r.write(ctx, p, st)
	default:
		err = r.verify(ctx, p, st)
	}
	if err != nil && ctx.Err() == nil {
		atomic.AddInt64(&r.report.Failures, 1)
		r.logger.Errorw("op failed", "path", p, "err", err)
	}
}

// contentFor derives the exact bytes of (path, version), so a verifier
// needs no copy of what the writer produced.
func (r *Runner) contentFor(p string, version int64) []byte {
	seed := version
	for _, ch := range p {
		seed = seed*131 + int64(ch)
	}
	rnd := rand.New(rand.NewSource(seed))
	data := make([]byte, 1+rnd.Int63n(r.cfg.MaxFileSize))
	rnd.Read(data)
	return data
}

func (r *Runner) write(ctx context.Context, p string, st *fileState) error {
	e, err := r.vfs.Resolve(ctx, p)
	if err != nil {
		if !errors.Is(err, types.ErrNotFound) {
			return err
		}
		if e, err = r.vfs.Create(ctx, p, types.RawKind); err != nil {
			return err
		}
	}
	defer r.vfs.Release(e)

	next := st.version + 1
	if err = r.fs.WriteFile(ctx, e.Inode().ID, r.contentFor(p, next)); err != nil {
		return err
	}
	st.version = next
	atomic.AddInt64(&r.report.Writes, 1)
	return nil
}

func (r *Runner) verify(ctx context.Context, p string, st *fileState) error {
	e, err := r.vfs.Resolve(ctx, p)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			if st.version != 0 {
				return fmt.Errorf("path %s lost at version %d", p, st.version)
			}
			atomic.AddInt64(&r.report.Misses, 1)
			return nil
		}
		return err
	}
	defer r.vfs.Release(e)
	if st.version == 0 {
		return fmt.Errorf("path %s resolved after remove", p)
	}

	if err = r.readThroughMapping(ctx, e, r.contentFor(p, st.version)); err != nil {
		return err
	}
	atomic.AddInt64(&r.report.Verifies, 1)
	return nil
}

// readThroughMapping maps the file into a scratch space, faults every
// page and compares the view against the expected bytes. Half the runs
// map private to push the copy path as well.
func (r *Runner) readThroughMapping(ctx context.Context, e *dentry.Entry, want []byte) error {
	sp := vm.NewSpace(r.pages, nil)
	defer sp.Close()

	flags := vm.FlagRead
	if rand.Intn(2) == 0 {
		flags |= vm.FlagPrivate
	}
	length := int64(len(want))
	if _, err := sp.MapFile(0, length, flags, vm.Backing{File: e.Inode(), Off: 0, Len: length}); err != nil {
		return err
	}

	pageSize := r.pages.PageSize()
	for va := int64(0); va < length; va += pageSize {
		err := sp.HandleFault(ctx, va, vm.FlagRead)
		if err != nil && errors.Is(err, types.ErrExhausted) {
			atomic.AddInt64(&r.report.PagesReclaimed, int64(r.pages.ReclaimUnused()))
			err = sp.HandleFault(ctx, va, vm.FlagRead)
		}
		if err != nil {
			return err
		}
	}

	got := make([]byte, length)
	if _, err := sp.ReadAt(got, 0); err != nil {
		return err
	}
	if !bytes.Equal(got, want) {
		return fmt.Errorf("content mismatch on %s (%d bytes)", e.Path(), length)
	}
	return nil
}

func (r *Runner) remove(ctx context.Context, p string, st *fileState) error {
	err := r.vfs.Remove(ctx, p)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			if st.version != 0 {
				return fmt.Errorf("path %s vanished at version %d", p, st.version)
			}
			atomic.AddInt64(&r.report.Misses, 1)
			return nil
		}
		return err
	}
	if st.version == 0 {
		return fmt.Errorf("path %s removed while the ledger held it absent", p)
	}
	st.version = 0
	atomic.AddInt64(&r.report.Removes, 1)
	return nil
}
