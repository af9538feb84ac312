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
	"errors"
	"fmt"

	"github.com/poiesic/basicdb/storage"
)

var (
	// ErrNotFound indicates a database, object store or index that doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrConstraint indicates a duplicate primary key or a unique index violation.
	ErrConstraint = errors.New("constraint violated")

	// ErrData indicates a missing or invalid key.
	ErrData = errors.New("invalid data")

	// ErrReadOnly indicates a write in a read-only transaction.
	ErrReadOnly = errors.New("transaction is read-only")

	// ErrTransactionInactive indicates a request against a finished transaction.
	ErrTransactionInactive = errors.New("transaction is not active")

	// ErrInvalidState indicates a request against a closed connection or a
	// schema change outside an upgrade.
	ErrInvalidState = errors.New("invalid state")

	// ErrInvalidAccess indicates an invalid transaction scope or mode.
	ErrInvalidAccess = errors.New("invalid access")

	// ErrVersion indicates an open with a version lower than the stored one.
	ErrVersion = errors.New("requested version is lower than the existing version")

	// ErrBlocked indicates an upgrade or delete while other connections are open.
	ErrBlocked = errors.New("blocked by open connections")

	// ErrAbort indicates the transaction or upgrade was aborted.
	ErrAbort = errors.New("transaction aborted")

	// ErrUnknown indicates a storage failure.
	ErrUnknown = errors.New("storage failure")
)

// RequestError is the error every failed engine request returns.
type RequestError struct {
	Op       string
	Database string
	Store    string
	Err      error
}

func (e *RequestError) Error() string {
	target := e.Database
	if e.Store != "" {
		target += "/" + e.Store
	}
	if target == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, target, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

func requestError(op, db, store string, err error) error {
	if err == nil {
		return nil
	}
	var re *RequestError
	if errors.As(err, &re) {
		return err
	}
	return &RequestError{Op: op, Database: db, Store: store, Err: err}
}

// storageError maps backend failures onto engine sentinels.
func storageError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrReadOnly):
		return fmt.Errorf("%w: %w", ErrReadOnly, err)
	case errors.Is(err, storage.ErrStorageClosed):
		return fmt.Errorf("%w: %w", ErrInvalidState, err)
	default:
		return fmt.Errorf("%w: %w", ErrUnknown, err)
	}
}
