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
)

// ValidateSchema validates a Schema according to domain rules.
//
// Validation rules:
//   - store options must be valid (see ValidateStoreOptions)
//   - every index descriptor must be valid (see ValidateIndexDescriptor)
//   - index names must be unique
//
// NOT validated:
//   - ObjectStoreName (empty selects DefaultObjectStoreName)
func ValidateSchema(schema Schema) error {
	if err := ValidateStoreOptions(schema.CreateObjectStoreOptions); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSchema, err)
	}

	seen := make(map[string]bool, len(schema.Indexes))
	for _, idx := range schema.Indexes {
		if err := ValidateIndexDescriptor(idx); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidSchema, err)
		}
		if seen[idx.Name] {
			return fmt.Errorf("%w: %w: %q", ErrInvalidSchema, ErrDuplicateIndex, idx.Name)
		}
		seen[idx.Name] = true
	}
	return nil
}

// ValidateStoreOptions validates object store creation options.
// A compound key path cannot be combined with AutoIncrement.
func ValidateStoreOptions(opts StoreOptions) error {
	if err := opts.KeyPath.Validate(); err != nil {
		return err
	}
	if opts.AutoIncrement && opts.KeyPath.IsCompound() {
		return fmt.Errorf("%w: autoIncrement requires a single key path", ErrInvalidKeyPath)
	}
	return nil
}

// ValidateIndexDescriptor validates an index descriptor.
// Indexes need a name and a key path; MultiEntry indexes cannot use a
// compound key path.
func ValidateIndexDescriptor(idx IndexDescriptor) error {
	if idx.Name == "" {
		return ErrEmptyIndexName
	}
	if idx.KeyPath.IsZero() {
		return fmt.Errorf("%w: index %q has no key path", ErrInvalidKeyPath, idx.Name)
	}
	if err := idx.KeyPath.Validate(); err != nil {
		return err
	}
	if idx.MultiEntry && idx.KeyPath.IsCompound() {
		return fmt.Errorf("%w: multiEntry index %q cannot use a compound key path", ErrInvalidKeyPath, idx.Name)
	}
	return nil
}

// ValidateStoreName validates an object store name.
func ValidateStoreName(name string) error {
	if name == "" {
		return ErrEmptyStoreName
	}
	return nil
}
