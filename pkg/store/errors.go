// Copyright 2026 The kondense authors
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

package store

import (
	"errors"
	"fmt"

	"kondense/pkg/api"
)

// ConflictError reports a write submitted against a stale resource version.
// The caller must re-read and retry.
type ConflictError struct {
	Key      api.ObjectKey
	Expected uint64
	Current  uint64
}

func (e *ConflictError) Error() string {
	if e.Expected == 0 {
		return fmt.Sprintf("conflict on %s: object already exists at version %d", e.Key, e.Current)
	}
	return fmt.Sprintf("conflict on %s: expected version %d, current is %d", e.Key, e.Expected, e.Current)
}

// NotFoundError reports an operation against an absent object.
type NotFoundError struct {
	Key api.ObjectKey
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("object %s not found", e.Key)
}

// IsConflict reports whether err is (or wraps) a ConflictError.
func IsConflict(err error) bool {
	var conflict *ConflictError
	return errors.As(err, &conflict)
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var notFound *NotFoundError
	return errors.As(err, &notFound)
}
