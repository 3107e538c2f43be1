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
	"os"
	"path"

	"go.uber.org/zap"

	"github.com/basaltos/basalt/pkg/types"
	"github.com/basaltos/basalt/utils"
	"github.com/basaltos/basalt/utils/logger"
)

const (
	defaultLocalDirMode  = 0755
	defaultLocalFileMode = 0644
)

type local struct {
	sid    string
	dir    string
	logger *zap.SugaredLogger
}

var _ Storage = &local{}

func (l *local) ID() string {
	return l.sid
}

func (l *local) Get(ctx context.Context, id types.FileID, off, limit int64) (io.ReadCloser, error) {
	defer utils.TraceRegion(ctx, "local.get")()
	file, err := l.openLocalFile(l.id2LocalPath(id), os.O_RDONLY)
	if err != nil {
		return nil, err
	}
	if off > 0 {
		if _, err = file.Seek(off, io.SeekStart); err != nil {
			_ = file.Close()
			return nil, err
		}
	}
	if limit > 0 {
		return &limitedFile{Reader: io.LimitReader(file, limit), f: file}, nil
	}
	return file, nil
}

func (l *local) Put(ctx context.Context, id types.FileID, in io.Reader) error {
	defer utils.TraceRegion(ctx, "local.put")()
	file, err := l.openLocalFile(l.id2LocalPath(id), os.O_CREATE|os.O_WRONLY|os.O_TRUNC)
	if err != nil {
		return err
	}
	defer file.Close()

	if _, err = io.Copy(file, in); err != nil {
		l.logger.Errorw("copy file failed", "id", id, "err", err.Error())
		return err
	}
	return nil
}

func (l *local) Delete(ctx context.Context, id types.FileID) error {
	defer utils.TraceRegion(ctx, "local.delete")()
	p := l.id2LocalPath(id)
	_, err := os.Stat(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		l.logger.Errorw("delete file failed", "id", id, "err", err.Error())
		return err
	}
	return os.Remove(p)
}

func (l *local) Head(ctx context.Context, id types.FileID) (Info, error) {
	defer utils.TraceRegion(ctx, "local.head")()
	info, err := os.Stat(l.id2LocalPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return Info{}, types.ErrNotFound
		}
		return Info{}, err
	}
	return Info{Key: info.Name(), Size: info.Size()}, nil
}

func (l *local) openLocalFile(path string, flag int) (*os.File, error) {
	_, err := os.Stat(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if os.IsNotExist(err) && flag&os.O_CREATE == 0 {
		return nil, types.ErrNotFound
	}

	f, err := os.OpenFile(path, flag, defaultLocalFileMode)
	if err != nil {
		l.logger.Errorw("open file failed", "path", path, "err", err.Error())
	}
	return f, err
}

func (l *local) id2LocalPath(id types.FileID) string {
	shard := path.Join(l.dir, fmt.Sprintf("%d", int64(id)/10000))
	if _, err := os.Stat(shard); err != nil {
		if os.IsNotExist(err) {
			if err = os.MkdirAll(shard, defaultLocalDirMode); err != nil {
				l.logger.Errorw("init data dir failed", "dir", shard, "err", err.Error())
			}
		}
	}
	return path.Join(shard, id.String())
}

type limitedFile struct {
	io.Reader
	f *os.File
}

func (r *limitedFile) Close() error {
	return r.f.Close()
}

func newLocalStorage(storageID, dir string) Storage {
	return &local{sid: storageID, dir: dir, logger: logger.NewLogger("localStorage")}
}
