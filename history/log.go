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

package history

import (
	"context"
	"fmt"

	"github.com/apex/log"
	"gitlab.com/project-nan/pubrelay/common"
	"gitlab.com/project-nan/pubrelay/storage"
)

// logRecord one channel's history as persisted, newest first
type logRecord struct {
	Notifications []common.Notification `json:"notifications"`
}

// Log bounded, ordered, per-channel append log of published notifications.
//
// No access control is applied here; the boundary is responsible for
// rejecting reads against nonexistent channels.
type Log interface {
	// Append push a notification to the front of a channel's log,
	// truncating to the retention cap
	Append(channel string, notification common.Notification, ctxt context.Context) error
	// Read fetch up to limit notifications of a channel, newest first.
	// A non-positive limit uses the configured default.
	Read(channel string, limit int, ctxt context.Context) ([]common.Notification, error)
	// Purge drop a channel's log entirely
	Purge(channel string, ctxt context.Context) error
}

// logImpl implements Log
type logImpl struct {
	common.Component
	store            storage.KeyValueStore
	maxPerChannel    int
	defaultReadLimit int
}

// DefineLog create new history log
func DefineLog(
	dataStore storage.KeyValueStore, maxPerChannel int, defaultReadLimit int,
) (Log, error) {
	if maxPerChannel < 1 {
		return nil, fmt.Errorf("history log requires a positive retention cap")
	}
	if defaultReadLimit < 1 {
		return nil, fmt.Errorf("history log requires a positive default read limit")
	}
	logTags := log.Fields{"module": "history", "component": "log"}
	return &logImpl{
		Component:        common.Component{LogTags: logTags},
		store:            dataStore,
		maxPerChannel:    maxPerChannel,
		defaultReadLimit: defaultReadLimit,
	}, nil
}

// historyKey logical storage key of a channel's history log
func historyKey(channel string) string {
	return fmt.Sprintf("channel-history/%s", channel)
}

// readLog fetch a channel's history record, empty if absent
func (l *logImpl) readLog(channel string, ctxt context.Context) (logRecord, error) {
	var record logRecord
	err := l.store.Get(historyKey(channel), &record, ctxt)
	if err != nil && err != storage.ErrKeyNotFound {
		log.WithError(err).WithFields(l.LogTags).Errorf(
			"Unable to read history of channel %s", channel,
		)
		return logRecord{}, common.NewInternalError("unable to read channel history: %s", err)
	}
	return record, nil
}

// Append push a notification to the front of a channel's log
func (l *logImpl) Append(
	channel string, notification common.Notification, ctxt context.Context,
) error {
	record, err := l.readLog(channel, ctxt)
	if err != nil {
		return err
	}
	// Newest entry sits at the head
	record.Notifications = append(
		[]common.Notification{notification}, record.Notifications...,
	)
	if len(record.Notifications) > l.maxPerChannel {
		record.Notifications = record.Notifications[:l.maxPerChannel]
	}
	if err := l.store.Set(historyKey(channel), record, ctxt); err != nil {
		log.WithError(err).WithFields(l.LogTags).Errorf(
			"Failed to update history of channel %s", channel,
		)
		return common.NewInternalError("failed to update channel history: %s", err)
	}
	return nil
}

// Read fetch up to limit notifications of a channel, newest first
func (l *logImpl) Read(
	channel string, limit int, ctxt context.Context,
) ([]common.Notification, error) {
	record, err := l.readLog(channel, ctxt)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = l.defaultReadLimit
	}
	if limit > len(record.Notifications) {
		limit = len(record.Notifications)
	}
	result := make([]common.Notification, limit)
	copy(result, record.Notifications[:limit])
	return result, nil
}

// Purge drop a channel's log entirely
func (l *logImpl) Purge(channel string, ctxt context.Context) error {
	err := l.store.Delete(historyKey(channel), ctxt)
	if err != nil && err != storage.ErrKeyNotFound {
		log.WithError(err).WithFields(l.LogTags).Errorf(
			"Failed to purge history of channel %s", channel,
		)
		return common.NewInternalError("failed to purge channel history: %s", err)
	}
	log.WithFields(l.LogTags).Infof("Purged history of channel %s", channel)
	return nil
}
