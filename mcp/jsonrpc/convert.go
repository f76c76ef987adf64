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

package jsonrpc

import "encoding/json"

// marshalToMap round-trips v through JSON into a generic map, used to clone
// caller-owned params before mutating a copy.
func marshalToMap(v any) (map[string]any, error) {
	if m, ok := v.(map[string]any); ok {
		cloned := make(map[string]any, len(m))
		for k, val := range m {
			cloned[k] = val
		}
		return cloned, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}
