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

package mcp

import "encoding/json"

// knownContentTypes is used by UnmarshalJSON to decide whether a "type" tag
// is one this SDK models explicitly or should fall back to Unknown.
var knownContentTypes = map[ContentType]bool{
	ContentTypeText:         true,
	ContentTypeImage:        true,
	ContentTypeAudio:        true,
	ContentTypeResource:     true,
	ContentTypeResourceLink: true,
}

// MarshalJSON round-trips Unknown content verbatim via Raw; known variants
// marshal through their typed fields.
func (c Content) MarshalJSON() ([]byte, error) {
	if c.Type == ContentTypeUnknown && c.Raw != nil {
		return json.Marshal(c.Raw)
	}
	type alias Content
	// omit Raw, which has no json tag, and re-tag Type so it always appears
	return json.Marshal(struct {
		Type ContentType `json:"type"`
		alias
	}{Type: c.Type, alias: alias(c)})
}

// UnmarshalJSON preserves the original tag and body of any content variant
// this SDK does not recognize, so forward-compatible messages round-trip
// without loss (design note: polymorphic content variants).
func (c *Content) UnmarshalJSON(data []byte) error {
	type alias Content
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	if !knownContentTypes[a.Type] {
		var raw map[string]any
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		*c = Content{Type: ContentTypeUnknown, Raw: raw}
		return nil
	}
	*c = Content(a)
	return nil
}
