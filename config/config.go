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

const (
	MemoryStorage = "memory"
	LocalStorage  = "local"
	MinioStorage  = "minio"
)

type Config struct {
	Api Api `json:"api"`

	NameCache NameCache `json:"name_cache"`
	PageCache PageCache `json:"page_cache"`
	Storages  []Storage `json:"storages"`

	Debug bool `json:"debug,omitempty"`
}

type Api struct {
	Enable  bool   `json:"enable"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
	Pprof   bool   `json:"pprof"`
	Metrics bool   `json:"metrics"`
}

type NameCache struct {
	// Capacity is the fixed number of records in the pool.
	Capacity int `json:"capacity"`
}

type PageCache struct {
	PageSize        int64 `json:"page_size,omitempty"`
	FrameLimit      int32 `json:"frame_limit,omitempty"`
	PoolSize        int   `json:"pool_size,omitempty"`
	ReclaimInterval int   `json:"reclaim_interval_seconds,omitempty"`
}

type Storage struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	LocalDir string       `json:"local_dir,omitempty"`
	MinIO    *MinIOConfig `json:"minio,omitempty"`
}

type MinIOConfig struct {
	Endpoint        string `json:"endpoint"`
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
	BucketName      string `json:"bucket_name"`
	Location        string `json:"location"`
	Token           string `json:"token"`
	UseSSL          bool   `json:"use_ssl"`
}
