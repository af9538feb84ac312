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
	"math"
	"time"
)

// Key is a primary or index key.
//
// Valid keys are numbers, dates, strings, binary values and arrays of valid
// keys. NormalizeKey converts a Go value into its canonical form:
//   - all integer and float kinds become float64
//   - time.Time stays time.Time, truncated to milliseconds, in UTC
//   - string stays string
//   - []byte is copied
//   - slices become []any of normalized keys
//
// Keys order as number < date < string < binary < array. Strings compare
// by their UTF-8 bytes.
type Key = any

// NormalizeKey validates v and returns its canonical key form.
func NormalizeKey(v any) (Key, error) {
	switch k := v.(type) {
	case float64:
		if math.IsNaN(k) {
			return nil, fmt.Errorf("%w: NaN", ErrInvalidKey)
		}
		if k == 0 {
			return float64(0), nil // folds -0
		}
		return k, nil
	case float32:
		return NormalizeKey(float64(k))
	case int:
		return float64(k), nil
	case int8:
		return float64(k), nil
	case int16:
		return float64(k), nil
	case int32:
		return float64(k), nil
	case int64:
		return float64(k), nil
	case uint:
		return float64(k), nil
	case uint8:
		return float64(k), nil
	case uint16:
		return float64(k), nil
	case uint32:
		return float64(k), nil
	case uint64:
		return float64(k), nil
	case string:
		return k, nil
	case []byte:
		return bytes.Clone(k), nil
	case time.Time:
		if k.IsZero() {
			return nil, fmt.Errorf("%w: zero time", ErrInvalidKey)
		}
		return time.UnixMilli(k.UnixMilli()).UTC(), nil
	case []any:
		out := make([]any, len(k))
		for i, e := range k {
			n, err := NormalizeKey(e)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case []string:
		out := make([]any, len(k))
		for i, e := range k {
			out[i] = e
		}
		return out, nil
	case []int:
		out := make([]any, len(k))
		for i, e := range k {
			out[i] = float64(e)
		}
		return out, nil
	case []float64:
		out := make([]any, len(k))
		for i, e := range k {
			n, err := NormalizeKey(e)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case nil:
		return nil, fmt.Errorf("%w: nil", ErrInvalidKey)
	default:
		return nil, fmt.Errorf("%w: unsupported type %T", ErrInvalidKey, v)
	}
}

// IsValidKey reports whether v can be used as a key.
func IsValidKey(v any) bool {
	_, err := NormalizeKey(v)
	return err == nil
}

// CompareKeys returns -1, 0 or 1 depending on the order of a and b.
func CompareKeys(a, b Key) (int, error) {
	ea, err := EncodeKey(a)
	if err != nil {
		return 0, err
	}
	eb, err := EncodeKey(b)
	if err != nil {
		return 0, err
	}
	return bytes.Compare(ea, eb), nil
}

// KeysEqual reports whether a and b are the same valid key.
func KeysEqual(a, b Key) bool {
	c, err := CompareKeys(a, b)
	return err == nil && c == 0
}
