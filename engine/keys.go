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

package engine

import (
	"encoding/binary"

	"github.com/poiesic/basicdb/core"
)

// Key prefixes
const (
	directoryPrefix = "dir:"
	databasePrefix  = "db:"
)

// Per-database key kinds, following the database prefix.
const (
	kindMeta      byte = 'm'
	kindRecord    byte = 'r'
	kindIndex     byte = 'i'
	kindGenerator byte = 'g'
)

// makeDirectoryKey generates the key mapping a database name to its ID.
func makeDirectoryKey(name string) []byte {
	return append([]byte(directoryPrefix), name...)
}

// makeDatabasePrefix generates the prefix every key of a database shares.
// Format: prefix:id
func makeDatabasePrefix(id core.ID) []byte {
	buf := make([]byte, len(databasePrefix), len(databasePrefix)+8)
	copy(buf, databasePrefix)
	// Write in BigEndian order so lexicographic sort works correctly
	return binary.BigEndian.AppendUint64(buf, uint64(id))
}

// makeMetaKey generates the key of a database catalog.
func makeMetaKey(dbPrefix []byte) []byte {
	return appendKind(dbPrefix, kindMeta)
}

// makeRecordPrefix generates the prefix of every record of a store.
// Format: db:kind:storeID
func makeRecordPrefix(dbPrefix []byte, storeID uint64) []byte {
	return binary.BigEndian.AppendUint64(appendKind(dbPrefix, kindRecord), storeID)
}

// makeRecordKey generates the key of one record.
// Format: db:kind:storeID:encodedKey
func makeRecordKey(recordPrefix, encKey []byte) []byte {
	buf := make([]byte, 0, len(recordPrefix)+len(encKey))
	buf = append(buf, recordPrefix...)
	return append(buf, encKey...)
}

// makeIndexPrefix generates the prefix of every entry of an index.
// Format: db:kind:indexID
func makeIndexPrefix(dbPrefix []byte, indexID uint64) []byte {
	return binary.BigEndian.AppendUint64(appendKind(dbPrefix, kindIndex), indexID)
}

// makeIndexKey generates the key of one index entry.
// Format: db:kind:indexID:encodedIndexKey:encodedPrimaryKey
func makeIndexKey(indexPrefix, encIndexKey, encPrimaryKey []byte) []byte {
	buf := make([]byte, 0, len(indexPrefix)+len(encIndexKey)+len(encPrimaryKey))
	buf = append(buf, indexPrefix...)
	buf = append(buf, encIndexKey...)
	return append(buf, encPrimaryKey...)
}

// makeGeneratorKey generates the key holding a store's next generated key.
func makeGeneratorKey(dbPrefix []byte, storeID uint64) []byte {
	return binary.BigEndian.AppendUint64(appendKind(dbPrefix, kindGenerator), storeID)
}

// appendAfter returns key followed by 0xFF, which sorts after every key
// that extends key with an encoded key.
func appendAfter(key []byte) []byte {
	buf := make([]byte, 0, len(key)+1)
	buf = append(buf, key...)
	return append(buf, 0xFF)
}

func appendKind(prefix []byte, kind byte) []byte {
	buf := make([]byte, 0, len(prefix)+1+8)
	buf = append(buf, prefix...)
	return append(buf, kind)
}
