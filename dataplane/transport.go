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

import "fmt"

// Disconnect reason for terminating a live connection, carried to the peer
// as a websocket close code
type Disconnect struct {
	// Code is the websocket close code (private-use 4xxx range)
	Code int `json:"code"`
	// Reason describes the termination
	Reason string `json:"reason"`
}

func (d Disconnect) String() string {
	return fmt.Sprintf("code: %d, reason: %s", d.Code, d.Reason)
}

var (
	// DisconnectNormal the peer closed the connection
	DisconnectNormal = Disconnect{Code: 4000, Reason: "connection closed"}
	// DisconnectShutdown the server is shutting down
	DisconnectShutdown = Disconnect{Code: 4001, Reason: "shutdown"}
	// DisconnectWriteError delivery to the peer failed
	DisconnectWriteError = Disconnect{Code: 4002, Reason: "write error"}
	// DisconnectSuperseded a newer connection claimed the same client identity
	DisconnectSuperseded = Disconnect{Code: 4006, Reason: "connection superseded"}
	// DisconnectMissingIdentity the connect request carried no client identity
	DisconnectMissingIdentity = Disconnect{Code: 4400, Reason: "client identity missing"}
	// DisconnectInvalidIdentity the claimed client identity is unknown or expired
	DisconnectInvalidIdentity = Disconnect{Code: 4401, Reason: "client identity invalid"}
	// DisconnectExpired the identity expired mid-session
	DisconnectExpired = Disconnect{Code: 4403, Reason: "client identity expired"}
	// DisconnectInternal the server failed internally
	DisconnectInternal = Disconnect{Code: 4500, Reason: "internal server error"}
)

// MessageTransport one live connection's outbound byte transport.
//
// Implementations must tolerate Close being called multiple times and Write
// racing with Close.
type MessageTransport interface {
	// Write send one payload to the peer
	Write(payload []byte) error
	// Close terminate the transport, telling the peer why
	Close(reason Disconnect) error
}
