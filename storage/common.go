// Copyright 2022 The pubrelay Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package storage

import (
	"context"
	"errors"
	"time"
)

// ErrKeyNotFound returned when reading a key with no record
var ErrKeyNotFound = errors.New("key not found")

// KeyValueStore backing persistence capability of the relay core.
//
// Values are stored as serialized JSON. All store components take this
// interface through their constructors; unit tests substitute the in-memory
// driver for the redis one.
type KeyValueStore interface {
	// Get fetch the value of a key, deserializing it into result
	Get(key string, result interface{}, ctxt context.Context) error
	// Set record the value of a key with no expiration
	Set(key string, value interface{}, ctxt context.Context) error
	// SetWithExpiry record the value of a key which expires after ttl
	SetWithExpiry(key string, value interface{}, ttl time.Duration, ctxt context.Context) error
	// Expire reset the remaining life of a key to ttl. Returns whether the
	// key existed.
	Expire(key string, ttl time.Duration, ctxt context.Context) (bool, error)
	// Delete remove a key. Returns ErrKeyNotFound if the key had no record.
	Delete(key string, ctxt context.Context) error
	// ListKeys fetch all keys starting with prefix
	ListKeys(prefix string, ctxt context.Context) ([]string, error)
	// Close release the store connection
	Close() error
}
