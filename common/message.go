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

package common

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Notification representing one published notification
type Notification struct {
	// ID uniquely identifies this notification
	ID string `json:"id" validate:"required"`
	// Channel is the channel the notification was published on
	Channel string `json:"channel" validate:"required"`
	// Message is the notification payload
	Message string `json:"message" validate:"required"`
	// Timestamp is the publish timestamp in epoch milliseconds
	Timestamp int64 `json:"timestamp" validate:"required"`
	// Metadata optional sender provided message metadata
	Metadata map[string]string `json:"metadata,omitempty" validate:"omitempty"`
}

// NewNotification define a new notification for a channel
func NewNotification(channel string, message string, metadata map[string]string) Notification {
	return Notification{
		ID:        uuid.New().String(),
		Channel:   channel,
		Message:   message,
		Timestamp: time.Now().UnixMilli(),
		Metadata:  metadata,
	}
}

// Scan implements the sql.Scanner interface
func (r *Notification) Scan(src interface{}) error {
	bytes, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("src is not []byte")
	}
	return json.Unmarshal(bytes, r)
}

// Value implements the sql/driver.Valuer interface
func (r Notification) Value() (driver.Value, error) {
	return json.Marshal(&r)
}
