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

package config

import "fmt"

func Verify(cfg Config) error {
	if cfg.Api.Enable && cfg.Api.Port == 0 {
		return fmt.Errorf("api port not set")
	}
	if len(cfg.Storages) == 0 {
		return fmt.Errorf("storage must config")
	}
	for _, s := range cfg.Storages {
		switch s.Type {
		case MemoryStorage:
		case LocalStorage:
			if s.LocalDir == "" {
				return fmt.Errorf("storage %s: local_dir not set", s.ID)
			}
		case MinioStorage:
			if s.MinIO == nil {
				return fmt.Errorf("storage %s: minio not set", s.ID)
			}
		default:
			return fmt.Errorf("storage %s: unknow type %s", s.ID, s.Type)
		}
	}
	if ps := cfg.PageCache.PageSize; ps&(ps-1) != 0 {
		return fmt.Errorf("page_size must be a power of two")
	}
	return nil
}
