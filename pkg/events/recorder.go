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

package events

import (
	"sync"

	"github.com/hyponet/eventbus"

	"github.com/basaltos/basalt/pkg/types"
)

// Recorder tails the action bus into a fixed ring, keeping the most
// recent events around for inspection.
type Recorder struct {
	mux      sync.Mutex
	buf      []*types.Event
	next     int
	filled   bool
	listener string
}

func NewRecorder(size int) *Recorder {
	r := &Recorder{buf: make([]*types.Event, size)}
	r.listener = eventbus.Subscribe(TopicAllActions, r.record)
	return r
}

func (r *Recorder) record(evt *types.Event) {
	r.mux.Lock()
	r.buf[r.next] = evt
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.filled = true
	}
	r.mux.Unlock()
}

// Recent returns buffered events, oldest first.
func (r *Recorder) Recent() []*types.Event {
	r.mux.Lock()
	defer r.mux.Unlock()

	result := make([]*types.Event, 0, len(r.buf))
	if r.filled {
		for i := 0; i < len(r.buf); i++ {
			result = append(result, r.buf[(r.next+i)%len(r.buf)])
		}
		return result
	}
	for i := 0; i < r.next; i++ {
		result = append(result, r.buf[i])
	}
	return result
}

func (r *Recorder) Close() {
	eventbus.Unsubscribe(r.listener)
}
