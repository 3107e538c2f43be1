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

package storage

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/basaltos/basalt/pkg/types"
	"github.com/basaltos/basalt/utils"
)

type memoryStorage struct {
	sid     string
	objects map[types.FileID][]byte
	mux     sync.Mutex
}

var _ Storage = &memoryStorage{}

func (m *memoryStorage) ID() string {
	return m.sid
}

func (m *memoryStorage) Get(ctx context.Context, id types.FileID, off, limit int64) (io.ReadCloser, error) {
	m.mux.Lock()
	obj, ok := m.objects[id]
	m.mux.Unlock()
	if !ok {
		return nil, types.ErrNotFound
	}
	if off > int64(len(obj)) {
		off = int64(len(obj))
	}
	rest := obj[off:]
	if limit > 0 && limit < int64(len(rest)) {
		rest = rest[:limit]
	}
	return utils.NewDataReader(bytes.NewReader(rest)), nil
}

func (m *memoryStorage) Put(ctx context.Context, id types.FileID, in io.Reader) error {
	data, err := io.ReadAll(in)
	if err != nil {
		return err
	}
	m.mux.Lock()
	m.objects[id] = data
	m.mux.Unlock()
	return nil
}

func (m *memoryStorage) Delete(ctx context.Context, id types.FileID) error {
	m.mux.Lock()
	delete(m.objects, id)
	m.mux.Unlock()
	return nil
}

func (m *memoryStorage) Head(ctx context.Context, id types.FileID) (Info, error) {
	m.mux.Lock()
	obj, ok := m.objects[id]
	m.mux.Unlock()
	if !ok {
		return Info{}, types.ErrNotFound
	}
	return Info{Key: id.String(), Size: int64(len(obj))}, nil
}

func newMemoryStorage(storageID string) Storage {
	return &memoryStorage{
		sid:     storageID,
		objects: map[types.FileID][]byte{},
	}
}
