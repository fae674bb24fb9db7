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
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/apex/log"
	"gitlab.com/project-nan/pubrelay/common"
)

// inMemoryStorage driver keeping all records in process memory.
//
// Used for unit testing and single node development setups. Expirations are
// enforced lazily on access.
type inMemoryStorage struct {
	common.Component
	records   map[string][]byte
	deadlines map[string]time.Time
	lclMutex  sync.RWMutex
}

// CreateInMemoryStorage define an in-memory key-value store
func CreateInMemoryStorage() KeyValueStore {
	logTags := log.Fields{"module": "storage", "component": "in-memory"}
	return &inMemoryStorage{
		Component: common.Component{LogTags: logTags},
		records:   make(map[string][]byte),
		deadlines: make(map[string]time.Time),
	}
}

// expired whether a key has passed its deadline. Caller must hold the lock.
func (d *inMemoryStorage) expired(key string) bool {
	deadline, ok := d.deadlines[key]
	return ok && time.Now().After(deadline)
}

// Get fetch the value of a key
func (d *inMemoryStorage) Get(key string, result interface{}, ctxt context.Context) error {
	d.lclMutex.RLock()
	stored, ok := d.records[key]
	if ok && d.expired(key) {
		ok = false
	}
	d.lclMutex.RUnlock()
	if !ok {
		return ErrKeyNotFound
	}
	return json.Unmarshal(stored, result)
}

// Set record the value of a key with no expiration
func (d *inMemoryStorage) Set(key string, value interface{}, ctxt context.Context) error {
	return d.SetWithExpiry(key, value, 0, ctxt)
}

// SetWithExpiry record the value of a key which expires after ttl
func (d *inMemoryStorage) SetWithExpiry(
	key string, value interface{}, ttl time.Duration, ctxt context.Context,
) error {
	toStore, err := json.Marshal(value)
	if err != nil {
		log.WithError(err).WithFields(d.LogTags).Errorf(
			"Unable to serialize value of %s for storage", key,
		)
		return err
	}
	d.lclMutex.Lock()
	defer d.lclMutex.Unlock()
	d.records[key] = toStore
	if ttl > 0 {
		d.deadlines[key] = time.Now().Add(ttl)
	} else {
		delete(d.deadlines, key)
	}
	return nil
}

// Expire reset the remaining life of a key to ttl
func (d *inMemoryStorage) Expire(
	key string, ttl time.Duration, ctxt context.Context,
) (bool, error) {
	d.lclMutex.Lock()
	defer d.lclMutex.Unlock()
	if _, ok := d.records[key]; !ok || d.expired(key) {
		return false, nil
	}
	d.deadlines[key] = time.Now().Add(ttl)
	return true, nil
}

// Delete remove a key
func (d *inMemoryStorage) Delete(key string, ctxt context.Context) error {
	d.lclMutex.Lock()
	defer d.lclMutex.Unlock()
	if _, ok := d.records[key]; !ok || d.expired(key) {
		delete(d.records, key)
		delete(d.deadlines, key)
		return ErrKeyNotFound
	}
	delete(d.records, key)
	delete(d.deadlines, key)
	return nil
}

// ListKeys fetch all keys starting with prefix
func (d *inMemoryStorage) ListKeys(prefix string, ctxt context.Context) ([]string, error) {
	d.lclMutex.RLock()
	defer d.lclMutex.RUnlock()
	keys := []string{}
	for key := range d.records {
		if strings.HasPrefix(key, prefix) && !d.expired(key) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// Close release the store
func (d *inMemoryStorage) Close() error {
	d.lclMutex.Lock()
	defer d.lclMutex.Unlock()
	d.records = make(map[string][]byte)
	d.deadlines = make(map[string]time.Time)
	return nil
}
