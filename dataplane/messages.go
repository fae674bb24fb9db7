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
	"encoding/json"

	"gitlab.com/project-nan/pubrelay/common"
)

// Control frame types a client may send over a live connection
const (
	// ControlSubscribe request membership in a channel's fan-out set
	ControlSubscribe = "subscribe"
	// ControlUnsubscribe leave a channel's fan-out set
	ControlUnsubscribe = "unsubscribe"
	// ControlPing application level liveness probe
	ControlPing = "ping"
)

// Outbound frame types the server sends over a live connection
const (
	// FrameConnection session admitted notice
	FrameConnection = "connection"
	// FrameSubscription result of a subscribe or unsubscribe request
	FrameSubscription = "subscription"
	// FrameNotification one relayed notification
	FrameNotification = "notification"
	// FrameError request level failure notice
	FrameError = "error"
	// FramePong reply to a ping
	FramePong = "pong"
)

// ControlRequest one inbound control frame after parsing
type ControlRequest struct {
	// Type one of ControlSubscribe, ControlUnsubscribe, ControlPing
	Type string `json:"type" validate:"required,oneof=subscribe unsubscribe ping"`
	// Channel target channel for subscribe and unsubscribe
	Channel string `json:"channel,omitempty"`
}

// rawControlFrame wire shape of an inbound control frame. The older client
// generation wrapped subscribe and unsubscribe in
// {"type": "subscription", "action": ...}; both shapes are accepted.
type rawControlFrame struct {
	Type    string `json:"type"`
	Action  string `json:"action,omitempty"`
	Channel string `json:"channel,omitempty"`
}

// ParseControlRequest parse one inbound control frame
func ParseControlRequest(payload []byte) (ControlRequest, error) {
	var frame rawControlFrame
	if err := json.Unmarshal(payload, &frame); err != nil {
		return ControlRequest{}, common.NewBadRequestError("malformed control frame: %s", err)
	}
	request := ControlRequest{Type: frame.Type, Channel: frame.Channel}
	if frame.Type == "subscription" {
		request.Type = frame.Action
	}
	switch request.Type {
	case ControlSubscribe, ControlUnsubscribe:
		if request.Channel == "" {
			return ControlRequest{}, common.NewBadRequestError(
				"control frame '%s' missing channel", request.Type,
			)
		}
	case ControlPing:
	default:
		return ControlRequest{}, common.NewBadRequestError(
			"unknown control frame type '%s'", frame.Type,
		)
	}
	return request, nil
}

// ConnectionFrame session admitted notice sent once after the websocket
// upgrade completes
type ConnectionFrame struct {
	Type     string `json:"type"`
	ClientID string `json:"clientId"`
}

// Acknowledged control actions reported in a SubscriptionFrame
const (
	// ActionSubscribed a subscribe request was applied
	ActionSubscribed = "subscribed"
	// ActionUnsubscribed an unsubscribe request was applied
	ActionUnsubscribed = "unsubscribed"
)

// SubscriptionFrame acknowledgement of an applied subscribe or unsubscribe
// request. A refused request is answered with an ErrorFrame instead.
type SubscriptionFrame struct {
	Type    string `json:"type"`
	Action  string `json:"action"`
	Channel string `json:"channel"`
}

// NotificationFrame one relayed notification
type NotificationFrame struct {
	Type    string              `json:"type"`
	Channel string              `json:"channel"`
	Data    common.Notification `json:"data"`
}

// ErrorFrame request level failure notice
type ErrorFrame struct {
	Type    string `json:"type"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// PongFrame reply to an application level ping
type PongFrame struct {
	Type string `json:"type"`
}

// FormatNotificationFrame marshal one notification for fan-out. The result is
// shared between all recipients of one broadcast.
func FormatNotificationFrame(message common.Notification) ([]byte, error) {
	return json.Marshal(NotificationFrame{
		Type: FrameNotification, Channel: message.Channel, Data: message,
	})
}
