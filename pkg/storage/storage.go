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
	"context"
	"fmt"
	"io"

	"github.com/basaltos/basalt/config"
	"github.com/basaltos/basalt/pkg/types"
)

const (
	LocalStorage  = "local"
	MemoryStorage = "memory"
	MinioStorage  = "minio"
)

type Info struct {
	Key  string
	Size int64
}

// Storage is the backing store behind file pages. Get must honor
// off/limit so page population can fetch single pages; limit <= 0
// means read through to the end of the object.
type Storage interface {
	ID() string
	Get(ctx context.Context, id types.FileID, off, limit int64) (io.ReadCloser, error)
	Put(ctx context.Context, id types.FileID, in io.Reader) error
	Delete(ctx context.Context, id types.FileID) error
	Head(ctx context.Context, id types.FileID) (Info, error)
}

func NewStorage(storageID, storageType string, cfg config.Storage) (Storage, error) {
	var (
		s   Storage
		err error
	)
	switch storageType {
	case MemoryStorage:
		s = newMemoryStorage(storageID)
	case LocalStorage:
		s = newLocalStorage(storageID, cfg.LocalDir)
	case MinioStorage:
		s, err = newMinioStorage(storageID, cfg.MinIO)
	default:
		return nil, fmt.Errorf("unknow storage type: %s", storageType)
	}
	if err != nil {
		return nil, err
	}
	return instrumentalStorage{s: s}, nil
}
