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

package subscription

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/apex/log"
	"gitlab.com/project-nan/pubrelay/common"
	"gitlab.com/project-nan/pubrelay/storage"
)

// clientRecord the channels one client is subscribed to
type clientRecord struct {
	// Channels maps channel name to the subscription timestamp
	Channels map[string]time.Time `json:"channels"`
}

// channelRecord the clients subscribed to one channel
type channelRecord struct {
	// Subscribers maps client id to the subscription timestamp
	Subscribers map[string]time.Time `json:"subscribers"`
}

// Index bidirectional client / channel subscription mapping.
//
// A subscription is recorded in both directions and is independent of whether
// the client is currently connected; it survives reconnects until removed.
type Index interface {
	// Subscribe record a (client, channel) subscription. Idempotent.
	Subscribe(clientID string, channel string, ctxt context.Context) error
	// Unsubscribe remove a (client, channel) subscription. Idempotent.
	Unsubscribe(clientID string, channel string, ctxt context.Context) error
	// GetClientChannels fetch the channels a client is subscribed to
	GetClientChannels(clientID string, ctxt context.Context) ([]string, error)
	// GetChannelSubscribers fetch the clients subscribed to a channel
	GetChannelSubscribers(channel string, ctxt context.Context) ([]string, error)
	// IsSubscribed whether a client is subscribed to a channel
	IsSubscribed(clientID string, channel string, ctxt context.Context) (bool, error)
	// PurgeChannel remove every subscription of a channel
	PurgeChannel(channel string, ctxt context.Context) (int, error)
	// PurgeClient remove every subscription of a client
	PurgeClient(clientID string, ctxt context.Context) (int, error)
}

// indexImpl implements Index
type indexImpl struct {
	common.Component
	store storage.KeyValueStore
	// lclMutex serializes the read-modify-write record updates; without it
	// concurrent mutations overwrite each other's sets
	lclMutex sync.Mutex
}

// DefineIndex create new subscription index
func DefineIndex(dataStore storage.KeyValueStore) (Index, error) {
	logTags := log.Fields{"module": "subscription", "component": "index"}
	return &indexImpl{
		Component: common.Component{LogTags: logTags}, store: dataStore,
	}, nil
}

// clientKey logical storage key of a client's subscription set
func clientKey(clientID string) string {
	return fmt.Sprintf("subscription/client/%s", clientID)
}

// channelKey logical storage key of a channel's subscriber set
func channelKey(channel string) string {
	return fmt.Sprintf("subscription/channel/%s", channel)
}

// readClientRecord fetch a client's subscription set, empty if absent
func (x *indexImpl) readClientRecord(
	clientID string, ctxt context.Context,
) (clientRecord, error) {
	record := clientRecord{Channels: make(map[string]time.Time)}
	err := x.store.Get(clientKey(clientID), &record, ctxt)
	if err != nil && err != storage.ErrKeyNotFound {
		log.WithError(err).WithFields(x.LogTags).Errorf(
			"Unable to read subscriptions of client %s", clientID,
		)
		return clientRecord{}, common.NewInternalError(
			"unable to read client subscriptions: %s", err,
		)
	}
	if record.Channels == nil {
		record.Channels = make(map[string]time.Time)
	}
	return record, nil
}

// readChannelRecord fetch a channel's subscriber set, empty if absent
func (x *indexImpl) readChannelRecord(
	channel string, ctxt context.Context,
) (channelRecord, error) {
	record := channelRecord{Subscribers: make(map[string]time.Time)}
	err := x.store.Get(channelKey(channel), &record, ctxt)
	if err != nil && err != storage.ErrKeyNotFound {
		log.WithError(err).WithFields(x.LogTags).Errorf(
			"Unable to read subscribers of channel %s", channel,
		)
		return channelRecord{}, common.NewInternalError(
			"unable to read channel subscribers: %s", err,
		)
	}
	if record.Subscribers == nil {
		record.Subscribers = make(map[string]time.Time)
	}
	return record, nil
}

// Subscribe record a (client, channel) subscription
func (x *indexImpl) Subscribe(clientID string, channel string, ctxt context.Context) error {
	x.lclMutex.Lock()
	defer x.lclMutex.Unlock()
	timestamp := time.Now().UTC()

	forClient, err := x.readClientRecord(clientID, ctxt)
	if err != nil {
		return err
	}
	forChannel, err := x.readChannelRecord(channel, ctxt)
	if err != nil {
		return err
	}
	if _, ok := forClient.Channels[channel]; ok {
		if _, ok := forChannel.Subscribers[clientID]; ok {
			return nil
		}
	}
	forClient.Channels[channel] = timestamp
	forChannel.Subscribers[clientID] = timestamp

	if err := x.store.Set(clientKey(clientID), forClient, ctxt); err != nil {
		return common.NewInternalError("failed to update client subscriptions: %s", err)
	}
	if err := x.store.Set(channelKey(channel), forChannel, ctxt); err != nil {
		return common.NewInternalError("failed to update channel subscribers: %s", err)
	}
	log.WithFields(x.LogTags).Debugf("Subscribed client %s to channel %s", clientID, channel)
	return nil
}

// Unsubscribe remove a (client, channel) subscription
func (x *indexImpl) Unsubscribe(clientID string, channel string, ctxt context.Context) error {
	x.lclMutex.Lock()
	defer x.lclMutex.Unlock()
	return x.unsubscribeCore(clientID, channel, ctxt)
}

// unsubscribeCore remove a (client, channel) subscription. Caller holds lclMutex.
func (x *indexImpl) unsubscribeCore(
	clientID string, channel string, ctxt context.Context,
) error {
	forClient, err := x.readClientRecord(clientID, ctxt)
	if err != nil {
		return err
	}
	forChannel, err := x.readChannelRecord(channel, ctxt)
	if err != nil {
		return err
	}
	delete(forClient.Channels, channel)
	delete(forChannel.Subscribers, clientID)

	if err := x.store.Set(clientKey(clientID), forClient, ctxt); err != nil {
		return common.NewInternalError("failed to update client subscriptions: %s", err)
	}
	if err := x.store.Set(channelKey(channel), forChannel, ctxt); err != nil {
		return common.NewInternalError("failed to update channel subscribers: %s", err)
	}
	log.WithFields(x.LogTags).Debugf(
		"Unsubscribed client %s from channel %s", clientID, channel,
	)
	return nil
}

// GetClientChannels fetch the channels a client is subscribed to
func (x *indexImpl) GetClientChannels(
	clientID string, ctxt context.Context,
) ([]string, error) {
	record, err := x.readClientRecord(clientID, ctxt)
	if err != nil {
		return nil, err
	}
	channels := make([]string, 0, len(record.Channels))
	for channel := range record.Channels {
		channels = append(channels, channel)
	}
	sort.Strings(channels)
	return channels, nil
}

// GetChannelSubscribers fetch the clients subscribed to a channel
func (x *indexImpl) GetChannelSubscribers(
	channel string, ctxt context.Context,
) ([]string, error) {
	record, err := x.readChannelRecord(channel, ctxt)
	if err != nil {
		return nil, err
	}
	subscribers := make([]string, 0, len(record.Subscribers))
	for clientID := range record.Subscribers {
		subscribers = append(subscribers, clientID)
	}
	sort.Strings(subscribers)
	return subscribers, nil
}

// IsSubscribed whether a client is subscribed to a channel
func (x *indexImpl) IsSubscribed(
	clientID string, channel string, ctxt context.Context,
) (bool, error) {
	record, err := x.readClientRecord(clientID, ctxt)
	if err != nil {
		return false, err
	}
	_, subscribed := record.Channels[channel]
	return subscribed, nil
}

// PurgeChannel remove every subscription of a channel
func (x *indexImpl) PurgeChannel(channel string, ctxt context.Context) (int, error) {
	x.lclMutex.Lock()
	defer x.lclMutex.Unlock()
	record, err := x.readChannelRecord(channel, ctxt)
	if err != nil {
		return 0, err
	}
	removed := 0
	for clientID := range record.Subscribers {
		if err := x.unsubscribeCore(clientID, channel, ctxt); err != nil {
			// Best-effort cascade; a retried purge completes the rest
			log.WithError(err).WithFields(x.LogTags).Errorf(
				"Failed to remove client %s during purge of channel %s", clientID, channel,
			)
			continue
		}
		removed++
	}
	_ = x.store.Delete(channelKey(channel), ctxt)
	log.WithFields(x.LogTags).Infof(
		"Purged %d subscriptions of channel %s", removed, channel,
	)
	return removed, nil
}

// PurgeClient remove every subscription of a client
func (x *indexImpl) PurgeClient(clientID string, ctxt context.Context) (int, error) {
	x.lclMutex.Lock()
	defer x.lclMutex.Unlock()
	record, err := x.readClientRecord(clientID, ctxt)
	if err != nil {
		return 0, err
	}
	removed := 0
	for channel := range record.Channels {
		if err := x.unsubscribeCore(clientID, channel, ctxt); err != nil {
			log.WithError(err).WithFields(x.LogTags).Errorf(
				"Failed to remove channel %s during purge of client %s", channel, clientID,
			)
			continue
		}
		removed++
	}
	_ = x.store.Delete(clientKey(clientID), ctxt)
	log.WithFields(x.LogTags).Infof(
		"Purged %d subscriptions of client %s", removed, clientID,
	)
	return removed, nil
}
