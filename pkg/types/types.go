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

package types

import "strconv"

// FileID identifies one backing object across the inode registry, the
// page cache and the storage layer.
type FileID int64

func (id FileID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

type Kind string

const (
	RawKind     Kind = "raw"
	GroupKind   Kind = "group"
	SymLinkKind Kind = "symlink"
)

const (
	MaxNameLength = 255
)
