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
	"strings"

	json "github.com/goccy/go-json"
)

// KeyPath locates a key inside a record.
//
// A single element is a dotted path ("id", "author.name"). Two or more
// elements form a compound path whose key is the array of each member's
// value. An empty KeyPath means keys are supplied out of line.
type KeyPath []string

// Path returns a single dotted key path.
func Path(p string) KeyPath {
	return KeyPath{p}
}

// CompoundPath returns a compound key path.
func CompoundPath(paths ...string) KeyPath {
	return KeyPath(paths)
}

// IsZero reports whether the path is empty (out-of-line keys).
func (p KeyPath) IsZero() bool {
	return len(p) == 0
}

// IsCompound reports whether the path has more than one member.
func (p KeyPath) IsCompound() bool {
	return len(p) > 1
}

// String renders the path the way it is written in a schema.
func (p KeyPath) String() string {
	switch len(p) {
	case 0:
		return ""
	case 1:
		return p[0]
	default:
		return "[" + strings.Join(p, ",") + "]"
	}
}

// Validate checks every member is a non-empty dotted path with no empty
// segments.
func (p KeyPath) Validate() error {
	for _, member := range p {
		if member == "" {
			return fmt.Errorf("%w: empty member", ErrInvalidKeyPath)
		}
		for _, seg := range strings.Split(member, ".") {
			if seg == "" {
				return fmt.Errorf("%w: %q has an empty segment", ErrInvalidKeyPath, member)
			}
		}
	}
	return nil
}

// Evaluate returns the raw value the path points at.
// For compound paths found is true only when every member resolves.
func (p KeyPath) Evaluate(r Record) (value any, found bool) {
	switch len(p) {
	case 0:
		return nil, false
	case 1:
		return lookup(r, p[0])
	}
	values := make([]any, len(p))
	for i, member := range p {
		v, ok := lookup(r, member)
		if !ok {
			return nil, false
		}
		values[i] = v
	}
	return values, true
}

// Extract evaluates the path and normalizes the result into a key.
// A missing value returns found == false and no error; a present value
// that is not a valid key returns ErrInvalidKey.
func (p KeyPath) Extract(r Record) (key Key, found bool, err error) {
	v, ok := p.Evaluate(r)
	if !ok {
		return nil, false, nil
	}
	k, err := NormalizeKey(v)
	if err != nil {
		return nil, true, err
	}
	return k, true, nil
}

// Inject stores key at a single path, creating intermediate objects.
func (p KeyPath) Inject(r Record, key Key) error {
	if len(p) != 1 {
		return fmt.Errorf("%w: cannot inject into %q", ErrInvalidKeyPath, p.String())
	}
	segs := strings.Split(p[0], ".")
	cur := map[string]any(r)
	for _, seg := range segs[:len(segs)-1] {
		next, ok := cur[seg]
		if !ok {
			child := map[string]any{}
			cur[seg] = child
			cur = child
			continue
		}
		child, ok := next.(map[string]any)
		if !ok {
			return fmt.Errorf("%w: %q is not an object", ErrInvalidKeyPath, seg)
		}
		cur = child
	}
	cur[segs[len(segs)-1]] = key
	return nil
}

func lookup(r Record, path string) (any, bool) {
	var cur any = map[string]any(r)
	for _, seg := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// UnmarshalTOML accepts a string or a list of strings.
func (p *KeyPath) UnmarshalTOML(v any) error {
	return p.fromAny(v)
}

// UnmarshalYAML accepts a string or a list of strings.
func (p *KeyPath) UnmarshalYAML(unmarshal func(any) error) error {
	var v any
	if err := unmarshal(&v); err != nil {
		return err
	}
	return p.fromAny(v)
}

// UnmarshalJSON accepts a string or an array of strings.
func (p *KeyPath) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	return p.fromAny(v)
}

// MarshalJSON writes single paths as strings and compound paths as arrays.
func (p KeyPath) MarshalJSON() ([]byte, error) {
	switch len(p) {
	case 0:
		return []byte("null"), nil
	case 1:
		return json.Marshal(p[0])
	default:
		return json.Marshal([]string(p))
	}
}

func (p *KeyPath) fromAny(v any) error {
	switch t := v.(type) {
	case nil:
		*p = nil
	case string:
		if t == "" {
			*p = nil
			return nil
		}
		*p = KeyPath{t}
	case []any:
		out := make(KeyPath, 0, len(t))
		for _, e := range t {
			s, ok := e.(string)
			if !ok {
				return fmt.Errorf("%w: member %v is not a string", ErrInvalidKeyPath, e)
			}
			out = append(out, s)
		}
		*p = out
	case []string:
		*p = KeyPath(t)
	default:
		return fmt.Errorf("%w: unsupported value %T", ErrInvalidKeyPath, v)
	}
	return nil
}
