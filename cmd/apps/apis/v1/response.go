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
	"github.com/basaltos/basalt/pkg/dentry"
	"github.com/basaltos/basalt/pkg/types"
)

type EntryDetail struct {
	Path     string       `json:"path"`
	Name     string       `json:"name"`
	NodeID   types.FileID `json:"node_id"`
	Kind     types.Kind   `json:"kind"`
	Size     int64        `json:"size"`
	IsGroup  bool         `json:"is_group"`
	Children []string     `json:"children,omitempty"`
}

type CreateEntryRequest struct {
	Path string `json:"path"`
	Kind string `json:"kind"`
}

type NameCacheDump struct {
	Capacity int                 `json:"capacity"`
	InUse    int                 `json:"in_use"`
	Free     int                 `json:"free"`
	Records  []dentry.RecordInfo `json:"records"`
}

type ReclaimResult struct {
	Names int `json:"names"`
	Pages int `json:"pages"`
}
