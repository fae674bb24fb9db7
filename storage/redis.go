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
	"fmt"
	"time"

	"github.com/apex/log"
	"github.com/go-redis/redis/v7"
	"gitlab.com/project-nan/pubrelay/common"
)

// redisBackedStorage driver for using Redis as the backing key-value store
type redisBackedStorage struct {
	common.Component
	client *redis.Client
}

// CreateRedisBackedStorage define a redis backed key-value store
func CreateRedisBackedStorage(config common.RedisConfig) (KeyValueStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", config.Host, config.Port),
		Password: config.Password,
		DB:       config.DB,
	})
	if _, err := client.Ping().Result(); err != nil {
		log.WithError(err).Errorf(
			"Unable to connect with redis server %s:%d", config.Host, config.Port,
		)
		return nil, err
	}
	logTags := log.Fields{"module": "storage", "component": "redis-backed"}
	log.WithFields(logTags).Infof("Connected with redis server %s:%d", config.Host, config.Port)
	return &redisBackedStorage{
		Component: common.Component{LogTags: logTags}, client: client,
	}, nil
}

// Get fetch the value of a key
func (d *redisBackedStorage) Get(key string, result interface{}, ctxt context.Context) error {
	stored, err := d.client.WithContext(ctxt).Get(key).Result()
	if err == redis.Nil {
		return ErrKeyNotFound
	}
	if err != nil {
		log.WithError(err).WithFields(d.LogTags).Errorf("Failed to GET %s", key)
		return err
	}
	if err := json.Unmarshal([]byte(stored), result); err != nil {
		log.WithError(err).WithFields(d.LogTags).Errorf("Unable to parse value of %s", key)
		return err
	}
	return nil
}

// Set record the value of a key with no expiration
func (d *redisBackedStorage) Set(key string, value interface{}, ctxt context.Context) error {
	return d.SetWithExpiry(key, value, 0, ctxt)
}

// SetWithExpiry record the value of a key which expires after ttl
func (d *redisBackedStorage) SetWithExpiry(
	key string, value interface{}, ttl time.Duration, ctxt context.Context,
) error {
	toStore, err := json.Marshal(value)
	if err != nil {
		log.WithError(err).WithFields(d.LogTags).Errorf(
			"Unable to serialize value of %s for storage", key,
		)
		return err
	}
	if err := d.client.WithContext(ctxt).Set(key, string(toStore), ttl).Err(); err != nil {
		log.WithError(err).WithFields(d.LogTags).Errorf("Failed to SET %s", key)
		return err
	}
	log.WithFields(d.LogTags).Debugf("SET %s", key)
	return nil
}

// Expire reset the remaining life of a key to ttl
func (d *redisBackedStorage) Expire(
	key string, ttl time.Duration, ctxt context.Context,
) (bool, error) {
	existed, err := d.client.WithContext(ctxt).Expire(key, ttl).Result()
	if err != nil {
		log.WithError(err).WithFields(d.LogTags).Errorf("Failed to EXPIRE %s", key)
		return false, err
	}
	return existed, nil
}

// Delete remove a key
func (d *redisBackedStorage) Delete(key string, ctxt context.Context) error {
	removed, err := d.client.WithContext(ctxt).Del(key).Result()
	if err != nil {
		log.WithError(err).WithFields(d.LogTags).Errorf("Failed to DEL %s", key)
		return err
	}
	if removed == 0 {
		return ErrKeyNotFound
	}
	log.WithFields(d.LogTags).Debugf("DEL %s", key)
	return nil
}

// ListKeys fetch all keys starting with prefix
func (d *redisBackedStorage) ListKeys(prefix string, ctxt context.Context) ([]string, error) {
	keys, err := d.client.WithContext(ctxt).Keys(fmt.Sprintf("%s*", prefix)).Result()
	if err != nil {
		log.WithError(err).WithFields(d.LogTags).Errorf("Failed to list keys of %s*", prefix)
		return nil, err
	}
	return keys, nil
}

// Close release the redis connection
func (d *redisBackedStorage) Close() error {
	return d.client.Close()
}
