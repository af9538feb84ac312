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

package basicdb

import "errors"

var (
	// ErrNoDatabase is returned when a call needs the tracked handle and
	// no database has been opened.
	ErrNoDatabase = errors.New("no database is open")
	// ErrAdapterClosed is returned by calls on a closed adapter.
	ErrAdapterClosed = errors.New("adapter is closed")
	// ErrFactoryRequired is returned by New when no engine factory is given.
	ErrFactoryRequired = errors.New("engine factory is required")
)
