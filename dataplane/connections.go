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
	"sync"

	"github.com/apex/log"
	"gitlab.com/project-nan/pubrelay/common"
	"gitlab.com/project-nan/pubrelay/subscription"
)

// Connection one live client session. A client identity holds at most one
// live connection at a time.
type Connection struct {
	// ClientID owning client identity
	ClientID  string
	transport MessageTransport
	lclMutex  sync.Mutex
	channels  map[string]bool
	closed    bool
}

// NewConnection define a live connection around a transport
func NewConnection(clientID string, transport MessageTransport) *Connection {
	return &Connection{
		ClientID: clientID, transport: transport, channels: make(map[string]bool),
	}
}

// Send deliver one payload to the peer
func (c *Connection) Send(payload []byte) error {
	c.lclMutex.Lock()
	defer c.lclMutex.Unlock()
	if c.closed {
		return common.NewInternalError("connection for %s already closed", c.ClientID)
	}
	return c.transport.Write(payload)
}

// markSubscribed note a live channel membership on this connection
func (c *Connection) markSubscribed(channelName string) {
	c.lclMutex.Lock()
	defer c.lclMutex.Unlock()
	c.channels[channelName] = true
}

// markUnsubscribed clear a live channel membership on this connection
func (c *Connection) markUnsubscribed(channelName string) {
	c.lclMutex.Lock()
	defer c.lclMutex.Unlock()
	delete(c.channels, channelName)
}

// liveChannels snapshot the channels this connection is subscribed to
func (c *Connection) liveChannels() []string {
	c.lclMutex.Lock()
	defer c.lclMutex.Unlock()
	result := make([]string, 0, len(c.channels))
	for channelName := range c.channels {
		result = append(result, channelName)
	}
	return result
}

// close terminate the transport once. Returns false if already closed.
func (c *Connection) close(reason Disconnect) bool {
	c.lclMutex.Lock()
	defer c.lclMutex.Unlock()
	if c.closed {
		return false
	}
	c.closed = true
	_ = c.transport.Close(reason)
	return true
}

// ConnectionRegistry tracks the live connections of all client identities
type ConnectionRegistry interface {
	// Register admit a new live connection for a client. An existing
	// connection held by the same client is superseded and closed.
	Register(conn *Connection, ctxt context.Context) error
	// Disconnect tear down a live connection, unwinding its channel
	// memberships. Safe to call multiple times for the same connection.
	Disconnect(conn *Connection, reason Disconnect, ctxt context.Context) error
	// GetLiveConnection fetch the live connection of a client, if any
	GetLiveConnection(clientID string) (*Connection, bool)
	// BroadcastRaw send a payload to a client's live connection. A client
	// without one is silently skipped; the returned bool indicates delivery.
	// A failed write tears the connection down.
	BroadcastRaw(clientID string, payload []byte, ctxt context.Context) (bool, error)
	// Shutdown close all live connections
	Shutdown(ctxt context.Context) error
}

// connectionRegistryImpl implements ConnectionRegistry
type connectionRegistryImpl struct {
	common.Component
	subscriptions subscription.Index
	connections   map[string]*Connection
	lclMutex      sync.RWMutex
}

// DefineConnectionRegistry define a connection registry
func DefineConnectionRegistry(subscriptions subscription.Index) ConnectionRegistry {
	logTags := log.Fields{
		"module": "dataplane", "component": "connection-registry",
	}
	return &connectionRegistryImpl{
		Component:     common.Component{LogTags: logTags},
		subscriptions: subscriptions,
		connections:   make(map[string]*Connection),
	}
}

/*
Register admit a new live connection for a client

An existing connection held by the same client is superseded and closed with
DisconnectSuperseded before the new connection takes its place.

 @param conn *Connection - the new live connection
 @param ctxt context.Context - the caller's context
 @return whether registration was successful
*/
func (r *connectionRegistryImpl) Register(conn *Connection, ctxt context.Context) error {
	r.lclMutex.Lock()
	previous, present := r.connections[conn.ClientID]
	r.connections[conn.ClientID] = conn
	r.lclMutex.Unlock()
	if present && previous != conn {
		log.WithFields(r.LogTags).Infof(
			"Superseding existing connection of %s", conn.ClientID,
		)
		if err := r.teardown(previous, DisconnectSuperseded, ctxt); err != nil {
			log.WithError(err).WithFields(r.LogTags).Errorf(
				"Failed to supersede existing connection of %s", conn.ClientID,
			)
		}
	}
	log.WithFields(r.LogTags).Debugf("Registered connection of %s", conn.ClientID)
	return nil
}

/*
Disconnect tear down a live connection

The connection's live channel memberships are removed from the subscription
index, the transport is closed, and the registry entry is cleared if it still
points at this connection. Repeat calls for the same connection are no-ops.

 @param conn *Connection - the connection to tear down
 @param reason Disconnect - why the connection is ending
 @param ctxt context.Context - the caller's context
 @return whether teardown was successful
*/
func (r *connectionRegistryImpl) Disconnect(
	conn *Connection, reason Disconnect, ctxt context.Context,
) error {
	r.lclMutex.Lock()
	if current, present := r.connections[conn.ClientID]; present && current == conn {
		delete(r.connections, conn.ClientID)
	}
	r.lclMutex.Unlock()
	return r.teardown(conn, reason, ctxt)
}

// teardown unwind one connection's channel memberships and close its transport
func (r *connectionRegistryImpl) teardown(
	conn *Connection, reason Disconnect, ctxt context.Context,
) error {
	if !conn.close(reason) {
		return nil
	}
	var firstErr error
	for _, channelName := range conn.liveChannels() {
		if err := r.subscriptions.Unsubscribe(conn.ClientID, channelName, ctxt); err != nil {
			log.WithError(err).WithFields(r.LogTags).Errorf(
				"Failed to unsubscribe %s from %s during disconnect",
				conn.ClientID, channelName,
			)
			if firstErr == nil {
				firstErr = err
			}
		}
		conn.markUnsubscribed(channelName)
	}
	log.WithFields(r.LogTags).Infof(
		"Disconnected %s [%s]", conn.ClientID, reason,
	)
	return firstErr
}

/*
GetLiveConnection fetch the live connection of a client, if any

 @param clientID string - the client identity
 @return the live connection, and whether one exists
*/
func (r *connectionRegistryImpl) GetLiveConnection(clientID string) (*Connection, bool) {
	r.lclMutex.RLock()
	defer r.lclMutex.RUnlock()
	conn, present := r.connections[clientID]
	return conn, present
}

/*
BroadcastRaw send a payload to a client's live connection

A client without a live connection is not an error; the payload is simply not
deliverable right now. A write failure disconnects the stale connection.

 @param clientID string - the target client identity
 @param payload []byte - the bytes to deliver
 @param ctxt context.Context - the caller's context
 @return whether the payload reached a live connection
*/
func (r *connectionRegistryImpl) BroadcastRaw(
	clientID string, payload []byte, ctxt context.Context,
) (bool, error) {
	conn, live := r.GetLiveConnection(clientID)
	if !live {
		return false, nil
	}
	if err := conn.Send(payload); err != nil {
		log.WithError(err).WithFields(r.LogTags).Errorf(
			"Failed to deliver payload to %s", clientID,
		)
		if dcErr := r.Disconnect(conn, DisconnectWriteError, ctxt); dcErr != nil {
			log.WithError(dcErr).WithFields(r.LogTags).Errorf(
				"Failed to disconnect %s after delivery failure", clientID,
			)
		}
		return false, err
	}
	return true, nil
}

/*
Shutdown close all live connections

 @param ctxt context.Context - the caller's context
 @return whether shutdown was successful
*/
func (r *connectionRegistryImpl) Shutdown(ctxt context.Context) error {
	r.lclMutex.Lock()
	all := make([]*Connection, 0, len(r.connections))
	for _, conn := range r.connections {
		all = append(all, conn)
	}
	r.connections = make(map[string]*Connection)
	r.lclMutex.Unlock()
	var firstErr error
	for _, conn := range all {
		if err := r.teardown(conn, DisconnectShutdown, ctxt); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
