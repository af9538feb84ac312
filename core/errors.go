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

import "errors"

// Domain validation errors
var (
	// ErrInvalidKey indicates a value that is not a valid key.
	ErrInvalidKey = errors.New("invalid key")

	// ErrInvalidKeyPath indicates a malformed key path.
	ErrInvalidKeyPath = errors.New("invalid key path")

	// ErrDataClone indicates a value that cannot be cloned for storage.
	ErrDataClone = errors.New("value cannot be cloned")

	// ErrNotAnObject indicates a record whose top-level value is not an object.
	ErrNotAnObject = errors.New("record must be an object")

	// ErrInvalidSchema indicates a Schema failed validation.
	ErrInvalidSchema = errors.New("invalid schema")

	// ErrEmptyStoreName indicates the object store name is empty.
	ErrEmptyStoreName = errors.New("object store name cannot be empty")

	// ErrEmptyIndexName indicates an index name is empty.
	ErrEmptyIndexName = errors.New("index name cannot be empty")

	// ErrDuplicateIndex indicates two indexes share a name.
	ErrDuplicateIndex = errors.New("duplicate index name")

	// ErrInvalidRange indicates a key range whose lower bound exceeds its upper bound.
	ErrInvalidRange = errors.New("invalid key range")
)
