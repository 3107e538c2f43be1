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

import (
	"path"

	"github.com/basaltos/basalt/utils"
)

const (
	DefaultNameCacheCapacity = 1024
	DefaultPageSize          = 1 << 12 // 4K
	DefaultFrameLimit        = 1 << 14
	DefaultPoolSize          = 1 << 13
	DefaultReclaimInterval   = 300
)

func DefaultConfig(workdir string) (Config, error) {
	dataPath := path.Join(workdir, "local-data")
	cfg := Config{
		Api: Api{
			Enable:  true,
			Host:    "127.0.0.1",
			Port:    7086,
			Pprof:   true,
			Metrics: true,
		},
		NameCache: NameCache{Capacity: DefaultNameCacheCapacity},
		PageCache: PageCache{
			PageSize:        DefaultPageSize,
			FrameLimit:      DefaultFrameLimit,
			PoolSize:        DefaultPoolSize,
			ReclaimInterval: DefaultReclaimInterval,
		},
		Storages: []Storage{
			{
				ID:       "local-data",
				Type:     LocalStorage,
				LocalDir: dataPath,
			},
		},
		Debug: false,
	}

	if err := utils.Mkdir(dataPath); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Fill backstops zero values so a sparse config file still boots.
func Fill(cfg Config) Config {
	if cfg.NameCache.Capacity <= 0 {
		cfg.NameCache.Capacity = DefaultNameCacheCapacity
	}
	if cfg.PageCache.PageSize <= 0 {
		cfg.PageCache.PageSize = DefaultPageSize
	}
	if cfg.PageCache.FrameLimit <= 0 {
		cfg.PageCache.FrameLimit = DefaultFrameLimit
	}
	if cfg.PageCache.PoolSize <= 0 {
		cfg.PageCache.PoolSize = DefaultPoolSize
	}
	if cfg.PageCache.ReclaimInterval <= 0 {
		cfg.PageCache.ReclaimInterval = DefaultReclaimInterval
	}
	return cfg
}
