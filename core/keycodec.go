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
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// Type tags of the key encoding. The tag order is the key type order and no
// encoded key starts with a byte at or above 0xF0, so 0xFF after any key
// prefix sorts past every key that shares it.
const (
	keyTagEnd    byte = 0x00
	keyTagNumber byte = 0x10
	keyTagDate   byte = 0x20
	keyTagString byte = 0x30
	keyTagBinary byte = 0x40
	keyTagArray  byte = 0x50

	escapeByte byte = 0xFF
)

// EncodeKey returns the order-preserving encoding of k.
// bytes.Compare on two encodings equals the key order, and encodings are
// self-delimiting so they can be concatenated.
func EncodeKey(k Key) ([]byte, error) {
	n, err := NormalizeKey(k)
	if err != nil {
		return nil, err
	}
	return appendKey(nil, n), nil
}

// AppendKey appends the encoding of an already normalized key to buf.
func AppendKey(buf []byte, k Key) ([]byte, error) {
	n, err := NormalizeKey(k)
	if err != nil {
		return nil, err
	}
	return appendKey(buf, n), nil
}

func appendKey(buf []byte, k Key) []byte {
	switch v := k.(type) {
	case float64:
		buf = append(buf, keyTagNumber)
		return appendFloat(buf, v)
	case time.Time:
		buf = append(buf, keyTagDate)
		return appendFloat(buf, float64(v.UnixMilli()))
	case string:
		buf = append(buf, keyTagString)
		return appendEscaped(buf, []byte(v))
	case []byte:
		buf = append(buf, keyTagBinary)
		return appendEscaped(buf, v)
	case []any:
		buf = append(buf, keyTagArray)
		for _, e := range v {
			buf = appendKey(buf, e)
		}
		return append(buf, keyTagEnd)
	}
	return buf
}

// appendFloat writes f so that unsigned big-endian order matches numeric order.
func appendFloat(buf []byte, f float64) []byte {
	bits := math.Float64bits(f)
	if bits&(1<<63) == 0 {
		bits ^= 1 << 63
	} else {
		bits = ^bits
	}
	return binary.BigEndian.AppendUint64(buf, bits)
}

// appendEscaped writes b with 0x00 escaped as 0x00 0xFF, terminated by 0x00 0x00.
func appendEscaped(buf, b []byte) []byte {
	for _, c := range b {
		buf = append(buf, c)
		if c == 0x00 {
			buf = append(buf, escapeByte)
		}
	}
	return append(buf, 0x00, 0x00)
}

// DecodeKey decodes one key from the front of data and returns the rest.
func DecodeKey(data []byte) (Key, []byte, error) {
	if len(data) == 0 {
		return nil, nil, fmt.Errorf("%w: empty encoding", ErrInvalidKey)
	}
	tag, rest := data[0], data[1:]
	switch tag {
	case keyTagNumber, keyTagDate:
		if len(rest) < 8 {
			return nil, nil, fmt.Errorf("%w: truncated number", ErrInvalidKey)
		}
		f := readFloat(rest[:8])
		if tag == keyTagDate {
			return time.UnixMilli(int64(f)).UTC(), rest[8:], nil
		}
		return f, rest[8:], nil
	case keyTagString, keyTagBinary:
		b, rest, err := readEscaped(rest)
		if err != nil {
			return nil, nil, err
		}
		if tag == keyTagString {
			return string(b), rest, nil
		}
		return b, rest, nil
	case keyTagArray:
		arr := []any{}
		for {
			if len(rest) == 0 {
				return nil, nil, fmt.Errorf("%w: unterminated array", ErrInvalidKey)
			}
			if rest[0] == keyTagEnd {
				return arr, rest[1:], nil
			}
			var (
				e   Key
				err error
			)
			e, rest, err = DecodeKey(rest)
			if err != nil {
				return nil, nil, err
			}
			arr = append(arr, e)
		}
	default:
		return nil, nil, fmt.Errorf("%w: unknown tag 0x%02x", ErrInvalidKey, tag)
	}
}

func readFloat(b []byte) float64 {
	bits := binary.BigEndian.Uint64(b)
	if bits&(1<<63) != 0 {
		bits ^= 1 << 63
	} else {
		bits = ^bits
	}
	return math.Float64frombits(bits)
}

func readEscaped(data []byte) ([]byte, []byte, error) {
	out := []byte{}
	for i := 0; i < len(data); i++ {
		c := data[i]
		if c != 0x00 {
			out = append(out, c)
			continue
		}
		if i+1 >= len(data) {
			break
		}
		switch data[i+1] {
		case 0x00:
			return out, data[i+2:], nil
		case escapeByte:
			out = append(out, 0x00)
			i++
		default:
			return nil, nil, fmt.Errorf("%w: bad escape", ErrInvalidKey)
		}
	}
	return nil, nil, fmt.Errorf("%w: unterminated string", ErrInvalidKey)
}
