// Copyright 2024 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package server

import (
	"sync"
	"sync/atomic"
)

// registry is the read-mostly, write-rare table backing the tools, prompts,
// and resources registries (section 5): writers copy-on-write under mu,
// readers load the current snapshot lock-free via the atomic pointer, so a
// reader dispatching a request never blocks a concurrent Add/Remove.
type registry[T any] struct {
	mu sync.Mutex
	m  atomic.Pointer[map[string]T]
}

func newRegistry[T any]() *registry[T] {
	r := &registry[T]{}
	empty := map[string]T{}
	r.m.Store(&empty)
	return r
}

// snapshot returns the current immutable map; callers must not mutate it.
func (r *registry[T]) snapshot() map[string]T {
	return *r.m.Load()
}

func (r *registry[T]) get(key string) (T, bool) {
	m := *r.m.Load()
	v, ok := m[key]
	return v, ok
}

// set inserts or replaces key, returning whether it already existed.
func (r *registry[T]) set(key string, v T) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	old := *r.m.Load()
	_, existed := old[key]
	next := make(map[string]T, len(old)+1)
	for k, v := range old {
		next[k] = v
	}
	next[key] = v
	r.m.Store(&next)
	return existed
}

// remove deletes key, reporting whether it was present.
func (r *registry[T]) remove(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	old := *r.m.Load()
	if _, ok := old[key]; !ok {
		return false
	}
	next := make(map[string]T, len(old))
	for k, v := range old {
		if k != key {
			next[k] = v
		}
	}
	r.m.Store(&next)
	return true
}
