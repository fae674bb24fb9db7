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

package dataplane

import (
	"context"

	"github.com/apex/log"
	"gitlab.com/project-nan/pubrelay/channel"
	"gitlab.com/project-nan/pubrelay/common"
	"gitlab.com/project-nan/pubrelay/subscription"
)

// BroadcastResult outcome of one broadcast
type BroadcastResult struct {
	// Delivered count of subscribers the notification reached
	Delivered int `json:"delivered"`
	// Evicted count of subscribers removed for failing the delivery time
	// access re-check
	Evicted int `json:"evicted"`
}

// BroadcastEngine fans notifications out to a channel's subscribers, and
// moves subscribers in and out of a channel's fan-out set
type BroadcastEngine interface {
	// Publish fan one notification out to the channel's current subscribers.
	// Each subscriber's access is re-checked at delivery time; subscribers no
	// longer allowed are evicted instead of receiving the notification.
	Publish(message common.Notification, ctxt context.Context) (BroadcastResult, error)
	// Subscribe add a client to a channel's fan-out set after checking access
	Subscribe(clientID string, channelName string, ctxt context.Context) error
	// Unsubscribe remove a client from a channel's fan-out set
	Unsubscribe(clientID string, channelName string, ctxt context.Context) error
}

// broadcastEngineImpl implements BroadcastEngine
type broadcastEngineImpl struct {
	common.Component
	policies      channel.PolicyStore
	subscriptions subscription.Index
	registry      ConnectionRegistry
}

// DefineBroadcastEngine define a broadcast engine
func DefineBroadcastEngine(
	policies channel.PolicyStore,
	subscriptions subscription.Index,
	registry ConnectionRegistry,
) BroadcastEngine {
	logTags := log.Fields{
		"module": "dataplane", "component": "broadcast-engine",
	}
	return &broadcastEngineImpl{
		Component:     common.Component{LogTags: logTags},
		policies:      policies,
		subscriptions: subscriptions,
		registry:      registry,
	}
}

/*
Publish fan one notification out to the channel's current subscribers

Access is re-checked per subscriber at delivery time. A subscriber whose
access was revoked since subscribing is evicted from the channel and skipped.
A subscriber whose transport write fails is disconnected. All per-subscriber
failures, the access re-check included, only skip that subscriber; the
broadcast continues to the remaining ones.

 @param message common.Notification - the notification to relay
 @param ctxt context.Context - the caller's context
 @return per-broadcast delivery counts
*/
func (e *broadcastEngineImpl) Publish(
	message common.Notification, ctxt context.Context,
) (BroadcastResult, error) {
	result := BroadcastResult{}
	subscribers, err := e.subscriptions.GetChannelSubscribers(message.Channel, ctxt)
	if err != nil {
		log.WithError(err).WithFields(e.LogTags).Errorf(
			"Unable to list subscribers of %s", message.Channel,
		)
		return result, err
	}
	if len(subscribers) == 0 {
		return result, nil
	}
	payload, err := FormatNotificationFrame(message)
	if err != nil {
		log.WithError(err).WithFields(e.LogTags).Errorf(
			"Unable to format notification %s", message.ID,
		)
		return result, err
	}
	for _, clientID := range subscribers {
		// Any one subscriber failing must not starve the rest of the fan-out
		allowed, err := e.policies.HasAccess(clientID, message.Channel, ctxt)
		if err != nil {
			log.WithError(err).WithFields(e.LogTags).Errorf(
				"Access re-check failed for %s on %s", clientID, message.Channel,
			)
			continue
		}
		if !allowed {
			// Revoked since subscribing. Evict instead of delivering.
			if err := e.evict(clientID, message.Channel, ctxt); err != nil {
				continue
			}
			result.Evicted++
			continue
		}
		delivered, err := e.registry.BroadcastRaw(clientID, payload, ctxt)
		if err != nil {
			log.WithError(err).WithFields(e.LogTags).Errorf(
				"Delivery of %s to %s failed", message.ID, clientID,
			)
			continue
		}
		if delivered {
			result.Delivered++
		}
	}
	log.WithFields(e.LogTags).Debugf(
		"Relayed %s on %s: %d delivered, %d evicted",
		message.ID, message.Channel, result.Delivered, result.Evicted,
	)
	return result, nil
}

// evict remove a no longer authorized subscriber from a channel
func (e *broadcastEngineImpl) evict(
	clientID string, channelName string, ctxt context.Context,
) error {
	log.WithFields(e.LogTags).Infof(
		"Evicting %s from %s on access re-check failure", clientID, channelName,
	)
	if err := e.subscriptions.Unsubscribe(clientID, channelName, ctxt); err != nil {
		log.WithError(err).WithFields(e.LogTags).Errorf(
			"Failed to evict %s from %s", clientID, channelName,
		)
		return err
	}
	if conn, live := e.registry.GetLiveConnection(clientID); live {
		conn.markUnsubscribed(channelName)
	}
	return nil
}

/*
Subscribe add a client to a channel's fan-out set

The channel's access rules are checked first. A channel with a positive
subscriber cap rejects new members once the cap is reached; clients already
in the fan-out set pass through unchanged.

 @param clientID string - the subscribing client
 @param channelName string - the target channel
 @param ctxt context.Context - the caller's context
 @return whether subscription was successful
*/
func (e *broadcastEngineImpl) Subscribe(
	clientID string, channelName string, ctxt context.Context,
) error {
	allowed, err := e.policies.HasAccess(clientID, channelName, ctxt)
	if err != nil {
		return err
	}
	if !allowed {
		return common.NewUnauthorizedError(
			"client %s is not allowed on channel %s", clientID, channelName,
		)
	}
	rules, err := e.policies.GetRules(channelName, ctxt)
	if err != nil {
		return err
	}
	if rules.MaxSubscribers > 0 {
		member, err := e.subscriptions.IsSubscribed(clientID, channelName, ctxt)
		if err != nil {
			return err
		}
		if !member {
			current, err := e.subscriptions.GetChannelSubscribers(channelName, ctxt)
			if err != nil {
				return err
			}
			if len(current) >= rules.MaxSubscribers {
				return common.NewBadRequestError(
					"channel %s is at its subscriber cap of %d",
					channelName, rules.MaxSubscribers,
				)
			}
		}
	}
	if err := e.subscriptions.Subscribe(clientID, channelName, ctxt); err != nil {
		log.WithError(err).WithFields(e.LogTags).Errorf(
			"Failed to subscribe %s to %s", clientID, channelName,
		)
		return err
	}
	if conn, live := e.registry.GetLiveConnection(clientID); live {
		conn.markSubscribed(channelName)
	}
	log.WithFields(e.LogTags).Infof("Subscribed %s to %s", clientID, channelName)
	return nil
}

/*
Unsubscribe remove a client from a channel's fan-out set

Removing a client not in the set is a no-op.

 @param clientID string - the leaving client
 @param channelName string - the target channel
 @param ctxt context.Context - the caller's context
 @return whether unsubscription was successful
*/
func (e *broadcastEngineImpl) Unsubscribe(
	clientID string, channelName string, ctxt context.Context,
) error {
	if err := e.subscriptions.Unsubscribe(clientID, channelName, ctxt); err != nil {
		log.WithError(err).WithFields(e.LogTags).Errorf(
			"Failed to unsubscribe %s from %s", clientID, channelName,
		)
		return err
	}
	if conn, live := e.registry.GetLiveConnection(clientID); live {
		conn.markUnsubscribed(channelName)
	}
	log.WithFields(e.LogTags).Infof("Unsubscribed %s from %s", clientID, channelName)
	return nil
}
