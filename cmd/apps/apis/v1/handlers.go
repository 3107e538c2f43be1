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

package v1

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pkg/errors"

	"github.com/basaltos/basalt/cmd/apps/apis/apitool"
	"github.com/basaltos/basalt/pkg/dentry"
	"github.com/basaltos/basalt/pkg/events"
	"github.com/basaltos/basalt/pkg/memfs"
	"github.com/basaltos/basalt/pkg/types"
	"github.com/basaltos/basalt/pkg/vfs"
	"github.com/basaltos/basalt/pkg/vm"
	"github.com/basaltos/basalt/utils/logger"
)

type Depends struct {
	VFS     *vfs.VFS
	Backend *memfs.FileSystem
	Names   *dentry.Cache
	Pages   *vm.Cache
	Events  *events.Recorder
}

type ServicesV1 struct {
	vfs     *vfs.VFS
	backend *memfs.FileSystem
	names   *dentry.Cache
	pages   *vm.Cache
	events  *events.Recorder
	logger  *zap.SugaredLogger
}

func NewServicesV1(depends *Depends) *ServicesV1 {
	return &ServicesV1{
		vfs:     depends.VFS,
		backend: depends.Backend,
		names:   depends.Names,
		pages:   depends.Pages,
		events:  depends.Events,
		logger:  logger.NewLogger("rest"),
	}
}

// GetEntry resolves an absolute path and returns entry details, with
// child names when the entry is a group.
func (s *ServicesV1) GetEntry(ctx *gin.Context) {
	entryPath := ctx.Param("path")
	en, err := s.vfs.Resolve(ctx.Request.Context(), entryPath)
	if err != nil {
		apitool.ErrorResponse(ctx, err)
		return
	}
	defer s.vfs.Release(en)

	detail, err := s.entryDetail(ctx.Request.Context(), en)
	if err != nil {
		apitool.ErrorResponse(ctx, err)
		return
	}
	apitool.JsonResponse(ctx, http.StatusOK, gin.H{"entry": detail})
}

// CreateEntry creates a new entry at the requested path.
func (s *ServicesV1) CreateEntry(ctx *gin.Context) {
	var req CreateEntryRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		apitool.ApiErrorResponse(ctx, http.StatusBadRequest, apitool.ApiArgsError, err)
		return
	}
	kind, err := parseKind(req.Kind)
	if err != nil {
		apitool.ApiErrorResponse(ctx, http.StatusBadRequest, apitool.ApiArgsError, err)
		return
	}

	en, err := s.vfs.Create(ctx.Request.Context(), req.Path, kind)
	if err != nil {
		apitool.ErrorResponse(ctx, err)
		return
	}
	defer s.vfs.Release(en)

	detail, err := s.entryDetail(ctx.Request.Context(), en)
	if err != nil {
		apitool.ErrorResponse(ctx, err)
		return
	}
	apitool.JsonResponse(ctx, http.StatusCreated, gin.H{"entry": detail})
}

// DeleteEntry removes the entry at the given path.
func (s *ServicesV1) DeleteEntry(ctx *gin.Context) {
	entryPath := ctx.Param("path")
	if err := s.vfs.Remove(ctx.Request.Context(), entryPath); err != nil {
		apitool.ErrorResponse(ctx, err)
		return
	}
	apitool.JsonResponse(ctx, http.StatusOK, gin.H{"removed": entryPath})
}

// ReadFile returns file content read through a scratch mapping, so
// every page travels the fault path and lands in the page cache.
func (s *ServicesV1) ReadFile(ctx *gin.Context) {
	entryPath := ctx.Param("path")
	en, err := s.vfs.Resolve(ctx.Request.Context(), entryPath)
	if err != nil {
		apitool.ErrorResponse(ctx, err)
		return
	}
	defer s.vfs.Release(en)

	if en.Inode().IsGroup() {
		apitool.ErrorResponse(ctx, types.ErrIsGroup)
		return
	}

	data, err := s.readThroughMapping(ctx.Request.Context(), en)
	if err != nil {
		apitool.ErrorResponse(ctx, err)
		return
	}
	ctx.Data(http.StatusOK, "application/octet-stream", data)
}

// WriteFile replaces file content with the raw request body, creating
// the file first when the path does not resolve.
func (s *ServicesV1) WriteFile(ctx *gin.Context) {
	entryPath := ctx.Param("path")
	data, err := ctx.GetRawData()
	if err != nil {
		apitool.ApiErrorResponse(ctx, http.StatusBadRequest, apitool.ApiArgsError, err)
		return
	}

	en, err := s.vfs.Resolve(ctx.Request.Context(), entryPath)
	if err != nil && errors.Is(err, types.ErrNotFound) {
		en, err = s.vfs.Create(ctx.Request.Context(), entryPath, types.RawKind)
	}
	if err != nil {
		apitool.ErrorResponse(ctx, err)
		return
	}
	defer s.vfs.Release(en)

	if err = s.backend.WriteFile(ctx.Request.Context(), en.Inode().ID, data); err != nil {
		apitool.ErrorResponse(ctx, err)
		return
	}
	apitool.JsonResponse(ctx, http.StatusOK, gin.H{"path": en.Path(), "size": len(data)})
}

// DumpNameCache snapshots the in-use name records, most recent first.
func (s *ServicesV1) DumpNameCache(ctx *gin.Context) {
	dump := NameCacheDump{
		Capacity: s.names.Capacity(),
		InUse:    s.names.Len(),
		Free:     s.names.FreeLen(),
		Records:  s.names.Dump(),
	}
	apitool.JsonResponse(ctx, http.StatusOK, dump)
}

// PageCacheStats reports frame accounting for the page cache.
func (s *ServicesV1) PageCacheStats(ctx *gin.Context) {
	apitool.JsonResponse(ctx, http.StatusOK, s.pages.Stats())
}

// RecentEvents tails the action bus, oldest first.
func (s *ServicesV1) RecentEvents(ctx *gin.Context) {
	if s.events == nil {
		apitool.JsonResponse(ctx, http.StatusOK, gin.H{"events": []*types.Event{}})
		return
	}
	apitool.JsonResponse(ctx, http.StatusOK, gin.H{"events": s.events.Recent()})
}

// Reclaim forces both caches to shed unreferenced records and frames.
func (s *ServicesV1) Reclaim(ctx *gin.Context) {
	result := ReclaimResult{
		Names: s.names.ReclaimUnused(),
		Pages: s.pages.ReclaimUnused(),
	}
	s.logger.Infow("reclaim triggered", "names", result.Names, "pages", result.Pages)
	apitool.JsonResponse(ctx, http.StatusOK, result)
}

func (s *ServicesV1) entryDetail(ctx context.Context, en *dentry.Entry) (*EntryDetail, error) {
	ino := en.Inode()
	detail := &EntryDetail{
		Path:    en.Path(),
		Name:    en.Name(),
		NodeID:  ino.ID,
		Kind:    ino.Kind,
		Size:    ino.Size(),
		IsGroup: ino.IsGroup(),
	}
	if ino.IsGroup() {
		children, err := s.backend.List(ctx, ino.ID)
		if err != nil {
			return nil, err
		}
		detail.Children = children
	}
	return detail, nil
}

func (s *ServicesV1) readThroughMapping(ctx context.Context, en *dentry.Entry) ([]byte, error) {
	length := en.Inode().Size()
	if length == 0 {
		return []byte{}, nil
	}

	sp := vm.NewSpace(s.pages, nil)
	defer sp.Close()
	if _, err := sp.MapFile(0, length, vm.FlagRead, vm.Backing{File: en.Inode(), Off: 0, Len: length}); err != nil {
		return nil, err
	}

	pageSize := s.pages.PageSize()
	for va := int64(0); va < length; va += pageSize {
		err := sp.HandleFault(ctx, va, vm.FlagRead)
		if err != nil && errors.Is(err, types.ErrExhausted) {
			s.pages.ReclaimUnused()
			err = sp.HandleFault(ctx, va, vm.FlagRead)
		}
		if err != nil {
			return nil, err
		}
	}

	data := make([]byte, length)
	if _, err := sp.ReadAt(data, 0); err != nil {
		return nil, err
	}
	return data, nil
}

func parseKind(raw string) (types.Kind, error) {
	switch types.Kind(raw) {
	case types.RawKind, types.GroupKind, types.SymLinkKind:
		return types.Kind(raw), nil
	case "":
		return types.RawKind, nil
	}
	return "", fmt.Errorf("unknown kind %q", raw)
}
