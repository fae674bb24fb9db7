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

package apis

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/gorilla/websocket"
	"gitlab.com/project-nan/pubrelay/common"
	"gitlab.com/project-nan/pubrelay/dataplane"
	"gitlab.com/project-nan/pubrelay/identity"
)

// websocketTransport dataplane.MessageTransport on top of one websocket
type websocketTransport struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	lclMutex     sync.Mutex
	closed       bool
}

// Write send one payload to the peer
func (t *websocketTransport) Write(payload []byte) error {
	t.lclMutex.Lock()
	defer t.lclMutex.Unlock()
	if t.closed {
		return common.NewInternalError("websocket already closed")
	}
	if err := t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout)); err != nil {
		return err
	}
	return t.conn.WriteMessage(websocket.TextMessage, payload)
}

// Close terminate the websocket, telling the peer why
func (t *websocketTransport) Close(reason dataplane.Disconnect) error {
	t.lclMutex.Lock()
	defer t.lclMutex.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	deadline := time.Now().Add(t.writeTimeout)
	_ = t.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(reason.Code, reason.Reason),
		deadline,
	)
	return t.conn.Close()
}

// sendJSON marshal and send one frame
func (t *websocketTransport) sendJSON(frame interface{}) error {
	payload, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return t.Write(payload)
}

// ========================================================================================

// APIWebsocketHandler handler for the live notification websocket endpoint
type APIWebsocketHandler struct {
	APIRestHandler
	identities identity.Store
	registry   dataplane.ConnectionRegistry
	engine     dataplane.BroadcastEngine
	config     common.SessionConfig
	upgrader   websocket.Upgrader
	wsCtxt     context.Context
}

// GetAPIWebsocketHandler define APIWebsocketHandler
//
// wsCtxt outlives individual requests; session goroutines stop when it ends.
func GetAPIWebsocketHandler(
	wsCtxt context.Context,
	identities identity.Store,
	registry dataplane.ConnectionRegistry,
	engine dataplane.BroadcastEngine,
	config common.SessionConfig,
) (APIWebsocketHandler, error) {
	logTags := log.Fields{
		"module":    "rest",
		"component": "websocket",
	}
	return APIWebsocketHandler{
		APIRestHandler: APIRestHandler{
			Component: common.Component{LogTags: logTags},
		},
		identities: identities,
		registry:   registry,
		engine:     engine,
		config:     config,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		wsCtxt: wsCtxt,
	}, nil
}

// Connect godoc
// @Summary Open a live notification connection
// @Description Upgrade to a websocket session for a client identity. The claimed
// identity is validated on admit and re-validated for the life of the session.
// @tags Dataplane
// @Param client_id query string true "Client identity"
// @Success 101 {string} string "switching protocols"
// @Failure 400 {string} string "error"
// @Router /v1/connect [get]
func (h APIWebsocketHandler) Connect(w http.ResponseWriter, r *http.Request) {
	clientID := r.URL.Query().Get("client_id")

	wsConn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).WithFields(h.LogTags).Error("Websocket upgrade failed")
		return
	}
	transport := &websocketTransport{
		conn:         wsConn,
		writeTimeout: time.Second * time.Duration(h.config.WriteTimeoutInSec),
	}

	if clientID == "" {
		_ = transport.Close(dataplane.DisconnectMissingIdentity)
		return
	}
	valid, err := h.identities.Validate(clientID, r.Context())
	if err != nil {
		log.WithError(err).WithFields(h.LogTags).Errorf(
			"Unable to validate client %s on connect", clientID,
		)
		_ = transport.Close(dataplane.DisconnectInternal)
		return
	}
	if !valid {
		_ = transport.Close(dataplane.DisconnectInvalidIdentity)
		return
	}

	conn := dataplane.NewConnection(clientID, transport)
	if err := h.registry.Register(conn, h.wsCtxt); err != nil {
		log.WithError(err).WithFields(h.LogTags).Errorf(
			"Unable to register connection of %s", clientID,
		)
		_ = transport.Close(dataplane.DisconnectInternal)
		return
	}

	if err := transport.sendJSON(dataplane.ConnectionFrame{
		Type: dataplane.FrameConnection, ClientID: clientID,
	}); err != nil {
		log.WithError(err).WithFields(h.LogTags).Errorf(
			"Failed to greet %s", clientID,
		)
		_ = h.registry.Disconnect(conn, dataplane.DisconnectWriteError, h.wsCtxt)
		return
	}

	log.WithFields(h.LogTags).Infof("Admitted connection of %s", clientID)
	go h.keepAlive(conn, transport)
	go h.session(conn, transport)
}

// ConnectHandler Wrapper around Connect
func (h APIWebsocketHandler) ConnectHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.Connect(w, r)
	}
}

// keepAlive drive protocol pings and periodic identity re-validation for one
// session. Runs until the session's websocket dies.
func (h APIWebsocketHandler) keepAlive(
	conn *dataplane.Connection, transport *websocketTransport,
) {
	pingTicker := time.NewTicker(time.Second * time.Duration(h.config.PingIntervalInSec))
	defer pingTicker.Stop()
	revalidateTicker := time.NewTicker(
		time.Second * time.Duration(h.config.RevalidateIntervalInSec),
	)
	defer revalidateTicker.Stop()
	for {
		select {
		case <-h.wsCtxt.Done():
			_ = h.registry.Disconnect(conn, dataplane.DisconnectShutdown, context.Background())
			return
		case <-pingTicker.C:
			transport.lclMutex.Lock()
			if transport.closed {
				transport.lclMutex.Unlock()
				return
			}
			deadline := time.Now().Add(transport.writeTimeout)
			err := transport.conn.WriteControl(websocket.PingMessage, nil, deadline)
			transport.lclMutex.Unlock()
			if err != nil {
				log.WithError(err).WithFields(h.LogTags).Debugf(
					"Ping to %s failed", conn.ClientID,
				)
				_ = h.registry.Disconnect(conn, dataplane.DisconnectWriteError, h.wsCtxt)
				return
			}
		case <-revalidateTicker.C:
			valid, err := h.identities.Validate(conn.ClientID, h.wsCtxt)
			if err != nil {
				log.WithError(err).WithFields(h.LogTags).Errorf(
					"Unable to re-validate %s", conn.ClientID,
				)
				continue
			}
			if !valid {
				log.WithFields(h.LogTags).Infof(
					"Identity of %s expired mid-session", conn.ClientID,
				)
				_ = h.registry.Disconnect(conn, dataplane.DisconnectExpired, h.wsCtxt)
				return
			}
		}
	}
}

// session run one session's inbound control loop until the peer leaves or the
// identity lapses
func (h APIWebsocketHandler) session(
	conn *dataplane.Connection, transport *websocketTransport,
) {
	pongWait := time.Second * time.Duration(
		h.config.PingIntervalInSec+h.config.PongWaitInSec,
	)
	transport.conn.SetReadLimit(int64(h.config.MaxMessageSize))
	_ = transport.conn.SetReadDeadline(time.Now().Add(pongWait))
	transport.conn.SetPongHandler(func(string) error {
		return transport.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := transport.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(
				err, websocket.CloseNormalClosure, websocket.CloseGoingAway,
			) {
				log.WithError(err).WithFields(h.LogTags).Debugf(
					"Connection of %s ended abnormally", conn.ClientID,
				)
			}
			_ = h.registry.Disconnect(conn, dataplane.DisconnectNormal, h.wsCtxt)
			return
		}
		_ = transport.conn.SetReadDeadline(time.Now().Add(pongWait))

		// An expired identity loses its session on the next inbound frame
		valid, err := h.identities.Validate(conn.ClientID, h.wsCtxt)
		if err != nil {
			log.WithError(err).WithFields(h.LogTags).Errorf(
				"Unable to re-validate %s", conn.ClientID,
			)
			_ = h.registry.Disconnect(conn, dataplane.DisconnectInternal, h.wsCtxt)
			return
		}
		if !valid {
			_ = h.registry.Disconnect(conn, dataplane.DisconnectExpired, h.wsCtxt)
			return
		}

		h.handleControl(conn, transport, payload)
	}
}

// handleControl apply one inbound control frame
func (h APIWebsocketHandler) handleControl(
	conn *dataplane.Connection, transport *websocketTransport, payload []byte,
) {
	request, err := dataplane.ParseControlRequest(payload)
	if err != nil {
		code := common.ErrorCodeOf(err)
		if sendErr := transport.sendJSON(dataplane.ErrorFrame{
			Type: dataplane.FrameError, Code: code, Message: err.Error(),
		}); sendErr != nil {
			_ = h.registry.Disconnect(conn, dataplane.DisconnectWriteError, h.wsCtxt)
		}
		return
	}

	switch request.Type {
	case dataplane.ControlPing:
		if err := transport.sendJSON(dataplane.PongFrame{
			Type: dataplane.FramePong,
		}); err != nil {
			_ = h.registry.Disconnect(conn, dataplane.DisconnectWriteError, h.wsCtxt)
		}

	case dataplane.ControlSubscribe, dataplane.ControlUnsubscribe:
		var opErr error
		action := dataplane.ActionSubscribed
		if request.Type == dataplane.ControlSubscribe {
			opErr = h.engine.Subscribe(conn.ClientID, request.Channel, h.wsCtxt)
		} else {
			action = dataplane.ActionUnsubscribed
			opErr = h.engine.Unsubscribe(conn.ClientID, request.Channel, h.wsCtxt)
		}
		if opErr != nil {
			// The refusal is surfaced in-band as an error frame
			if err := transport.sendJSON(dataplane.ErrorFrame{
				Type:    dataplane.FrameError,
				Code:    common.ErrorCodeOf(opErr),
				Message: opErr.Error(),
			}); err != nil {
				_ = h.registry.Disconnect(conn, dataplane.DisconnectWriteError, h.wsCtxt)
			}
			return
		}
		if err := transport.sendJSON(dataplane.SubscriptionFrame{
			Type:    dataplane.FrameSubscription,
			Action:  action,
			Channel: request.Channel,
		}); err != nil {
			_ = h.registry.Disconnect(conn, dataplane.DisconnectWriteError, h.wsCtxt)
		}
	}
}
