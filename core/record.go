// Copyright 2025 Poiesic Systems
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

package core

import (
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/mitchellh/mapstructure"
)

// Record is a stored value: an object with arbitrary structure.
// Records read back from storage hold JSON-compatible values only
// (map[string]any, []any, string, float64, bool, nil).
type Record map[string]any

// CloneRecord returns a deep, normalized copy of v suitable for storage.
// v may be a Record, a map or a struct with json tags. Values that cannot
// be encoded (functions, channels, complex numbers, NaN) return
// ErrDataClone; a top-level value that is not an object returns
// ErrNotAnObject.
func CloneRecord(v any) (Record, error) {
	if v == nil {
		return nil, fmt.Errorf("%w: nil value", ErrNotAnObject)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDataClone, err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDataClone, err)
	}
	m, ok := out.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: got %T", ErrNotAnObject, out)
	}
	return Record(m), nil
}

// Decode copies the record into target, which must be a pointer to a
// struct or map. Field names come from json tags; numbers convert to the
// target's numeric kinds and RFC 3339 strings convert to time.Time.
func (r Record) Decode(target any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           target,
		DecodeHook:       mapstructure.StringToTimeHookFunc(time.RFC3339Nano),
	})
	if err != nil {
		return err
	}
	return dec.Decode(map[string]any(r))
}
