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
	"bytes"
	"fmt"
)

// KeyRange is a continuous interval over keys. A nil *KeyRange matches
// every key. Bounds are kept in encoded form.
type KeyRange struct {
	lower, upper         []byte
	lowerOpen, upperOpen bool
}

// Only returns a range containing exactly key.
func Only(key Key) (*KeyRange, error) {
	enc, err := EncodeKey(key)
	if err != nil {
		return nil, err
	}
	return &KeyRange{lower: enc, upper: enc}, nil
}

// LowerBound returns a range of keys above lower.
func LowerBound(lower Key, open bool) (*KeyRange, error) {
	enc, err := EncodeKey(lower)
	if err != nil {
		return nil, err
	}
	return &KeyRange{lower: enc, lowerOpen: open}, nil
}

// UpperBound returns a range of keys below upper.
func UpperBound(upper Key, open bool) (*KeyRange, error) {
	enc, err := EncodeKey(upper)
	if err != nil {
		return nil, err
	}
	return &KeyRange{upper: enc, upperOpen: open}, nil
}

// Bound returns a range between lower and upper.
func Bound(lower, upper Key, lowerOpen, upperOpen bool) (*KeyRange, error) {
	lo, err := EncodeKey(lower)
	if err != nil {
		return nil, err
	}
	hi, err := EncodeKey(upper)
	if err != nil {
		return nil, err
	}
	c := bytes.Compare(lo, hi)
	if c > 0 || (c == 0 && (lowerOpen || upperOpen)) {
		return nil, fmt.Errorf("%w: lower bound is above upper bound", ErrInvalidRange)
	}
	return &KeyRange{lower: lo, upper: hi, lowerOpen: lowerOpen, upperOpen: upperOpen}, nil
}

// Lower returns the encoded lower bound, or nil when unbounded.
func (r *KeyRange) Lower() []byte {
	if r == nil {
		return nil
	}
	return r.lower
}

// Upper returns the encoded upper bound, or nil when unbounded.
func (r *KeyRange) Upper() []byte {
	if r == nil {
		return nil
	}
	return r.upper
}

// Includes reports whether key falls inside the range.
func (r *KeyRange) Includes(key Key) (bool, error) {
	enc, err := EncodeKey(key)
	if err != nil {
		return false, err
	}
	return r.IncludesEncoded(enc), nil
}

// IncludesEncoded is Includes for an encoded key.
func (r *KeyRange) IncludesEncoded(enc []byte) bool {
	return !r.BelowLower(enc) && !r.AboveUpper(enc)
}

// BelowLower reports whether enc sorts before the lower bound.
func (r *KeyRange) BelowLower(enc []byte) bool {
	if r == nil || r.lower == nil {
		return false
	}
	c := bytes.Compare(enc, r.lower)
	return c < 0 || (c == 0 && r.lowerOpen)
}

// AboveUpper reports whether enc sorts after the upper bound.
func (r *KeyRange) AboveUpper(enc []byte) bool {
	if r == nil || r.upper == nil {
		return false
	}
	c := bytes.Compare(enc, r.upper)
	return c > 0 || (c == 0 && r.upperOpen)
}
