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
	"fmt"
	"testing"
	"time"

	"github.com/apex/log"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestInMemoryStorageBasicOperation(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtxt, utCtxtCancel := context.WithCancel(context.Background())
	defer utCtxtCancel()

	uut := CreateInMemoryStorage()
	defer func() {
		assert.Nil(uut.Close())
	}()

	type testRecord struct {
		Name  string `json:"name"`
		Value int    `json:"value"`
	}

	key1 := fmt.Sprintf("ut-mem-basic/%s", uuid.New().String())

	// Case 0: read and delete an unknown key
	{
		var read testRecord
		assert.Equal(ErrKeyNotFound, uut.Get(key1, &read, utCtxt))
		assert.Equal(ErrKeyNotFound, uut.Delete(key1, utCtxt))
	}

	// Case 1: set then read the key back
	{
		assert.Nil(uut.Set(key1, testRecord{Name: "unit-test", Value: 2}, utCtxt))
		var read testRecord
		assert.Nil(uut.Get(key1, &read, utCtxt))
		assert.Equal("unit-test", read.Name)
		assert.Equal(2, read.Value)
	}

	// Case 2: overwrite the key
	{
		assert.Nil(uut.Set(key1, testRecord{Name: "unit-test", Value: 3}, utCtxt))
		var read testRecord
		assert.Nil(uut.Get(key1, &read, utCtxt))
		assert.Equal(3, read.Value)
	}

	// Case 3: delete the key
	{
		assert.Nil(uut.Delete(key1, utCtxt))
		var read testRecord
		assert.Equal(ErrKeyNotFound, uut.Get(key1, &read, utCtxt))
	}
}

func TestInMemoryStorageExpiration(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtxt, utCtxtCancel := context.WithCancel(context.Background())
	defer utCtxtCancel()

	uut := CreateInMemoryStorage()
	defer func() {
		assert.Nil(uut.Close())
	}()

	key1 := fmt.Sprintf("ut-mem-expire/%s", uuid.New().String())

	// Case 0: expire an unknown key
	{
		existed, err := uut.Expire(key1, time.Second, utCtxt)
		assert.Nil(err)
		assert.False(existed)
	}

	// Case 1: key disappears after its TTL passes
	{
		assert.Nil(uut.SetWithExpiry(key1, "dummy", time.Millisecond*30, utCtxt))
		var read string
		assert.Nil(uut.Get(key1, &read, utCtxt))
		time.Sleep(time.Millisecond * 45)
		assert.Equal(ErrKeyNotFound, uut.Get(key1, &read, utCtxt))
	}

	// Case 2: refreshing the TTL extends the key's life past its original deadline
	{
		assert.Nil(uut.SetWithExpiry(key1, "dummy", time.Millisecond*40, utCtxt))
		time.Sleep(time.Millisecond * 25)
		existed, err := uut.Expire(key1, time.Millisecond*60, utCtxt)
		assert.Nil(err)
		assert.True(existed)
		time.Sleep(time.Millisecond * 30)
		var read string
		assert.Nil(uut.Get(key1, &read, utCtxt))
	}
}

func TestInMemoryStorageListKeys(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtxt, utCtxtCancel := context.WithCancel(context.Background())
	defer utCtxtCancel()

	uut := CreateInMemoryStorage()
	defer func() {
		assert.Nil(uut.Close())
	}()

	prefix := fmt.Sprintf("ut-mem-list/%s", uuid.New().String())

	// Case 0: nothing stored under the prefix
	{
		keys, err := uut.ListKeys(prefix, utCtxt)
		assert.Nil(err)
		assert.Empty(keys)
	}

	// Case 1: list only returns keys under the prefix
	{
		assert.Nil(uut.Set(fmt.Sprintf("%s/one", prefix), "1", utCtxt))
		assert.Nil(uut.Set(fmt.Sprintf("%s/two", prefix), "2", utCtxt))
		assert.Nil(uut.Set("ut-mem-list-other", "3", utCtxt))
		keys, err := uut.ListKeys(prefix, utCtxt)
		assert.Nil(err)
		assert.Len(keys, 2)
	}

	// Case 2: expired keys are not listed
	{
		assert.Nil(uut.SetWithExpiry(fmt.Sprintf("%s/three", prefix), "3", time.Millisecond*20, utCtxt))
		time.Sleep(time.Millisecond * 35)
		keys, err := uut.ListKeys(prefix, utCtxt)
		assert.Nil(err)
		assert.Len(keys, 2)
	}
}
