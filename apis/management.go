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

	"github.com/apex/log"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"gitlab.com/project-nan/pubrelay/channel"
	"gitlab.com/project-nan/pubrelay/common"
	"gitlab.com/project-nan/pubrelay/dataplane"
	"gitlab.com/project-nan/pubrelay/history"
	"gitlab.com/project-nan/pubrelay/identity"
	"gitlab.com/project-nan/pubrelay/subscription"
)

// APIRestManagementHandler REST handler for client identity and channel management
type APIRestManagementHandler struct {
	APIRestHandler
	identities    identity.Store
	policies      channel.PolicyStore
	subscriptions subscription.Index
	notifications history.Log
	registry      dataplane.ConnectionRegistry
	engine        dataplane.BroadcastEngine
	readyCheck    func(ctxt context.Context) error
	validate      *validator.Validate
}

// GetAPIRestManagementHandler define APIRestManagementHandler
func GetAPIRestManagementHandler(
	identities identity.Store,
	policies channel.PolicyStore,
	subscriptions subscription.Index,
	notifications history.Log,
	registry dataplane.ConnectionRegistry,
	engine dataplane.BroadcastEngine,
	readyCheck func(ctxt context.Context) error,
) (APIRestManagementHandler, error) {
	logTags := log.Fields{
		"module":    "rest",
		"component": "management",
	}
	return APIRestManagementHandler{
		APIRestHandler: APIRestHandler{
			Component: common.Component{LogTags: logTags},
		},
		identities:    identities,
		policies:      policies,
		subscriptions: subscriptions,
		notifications: notifications,
		registry:      registry,
		engine:        engine,
		readyCheck:    readyCheck,
		validate:      validator.New(),
	}, nil
}

// =======================================================================
// Client identity management

// -----------------------------------------------------------------------

// APIRestReqNewClient parameters for registering a client identity
type APIRestReqNewClient struct {
	// ClientID optionally re-claims a previously issued identity
	ClientID string `json:"client_id,omitempty"`
	// Metadata arbitrary caller provided key-value pairs
	Metadata map[string]string `json:"metadata,omitempty"`
}

// APIRestRespOneClient response carrying one client identity record
type APIRestRespOneClient struct {
	StandardResponse
	// Client the identity record
	Client identity.Record `json:"client"`
}

// CreateClient godoc
// @Summary Register a client identity
// @Description Register a new client identity, or refresh a still valid one when
// a client_id is supplied
// @tags Management
// @Accept json
// @Produce json
// @Param Pubrelay-Request-ID header string false "User provided request ID to match against logs"
// @Param setting body APIRestReqNewClient true "Client identity parameters"
// @Success 200 {object} APIRestRespOneClient "existing identity refreshed"
// @Success 201 {object} APIRestRespOneClient "new identity issued"
// @Failure 400 {object} StandardResponse "error"
// @Failure 500 {object} StandardResponse "error"
// @Router /v1/client [post]
func (h APIRestManagementHandler) CreateClient(w http.ResponseWriter, r *http.Request) {
	restCall := "POST /v1/client"
	var respCode int
	var respBody interface{}
	defer func() {
		h.reply(w, respCode, respBody, restCall)
	}()

	var params APIRestReqNewClient
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			msg := "Unable to parse request body"
			log.WithError(err).WithFields(h.LogTags).Error(msg)
			respCode = http.StatusBadRequest
			respBody = getStdRESTErrorMsg(http.StatusBadRequest, &msg)
			return
		}
	}

	record, existed, err := h.identities.Generate(params.Metadata, params.ClientID, r.Context())
	if err != nil {
		log.WithError(err).WithFields(h.LogTags).Error("Failed to register client identity")
		respCode, respBody = getStdRESTErrorMsgFor(err)
		return
	}

	respCode = http.StatusCreated
	if existed {
		respCode = http.StatusOK
	}
	respBody = APIRestRespOneClient{
		StandardResponse: getStdRESTSuccessMsg(), Client: record,
	}
}

// CreateClientHandler Wrapper around CreateClient
func (h APIRestManagementHandler) CreateClientHandler() http.HandlerFunc {
	return h.attachRequestID(func(w http.ResponseWriter, r *http.Request) {
		h.CreateClient(w, r)
	})
}

// -----------------------------------------------------------------------

// APIRestRespClientValidity response for a client identity validation check
type APIRestRespClientValidity struct {
	StandardResponse
	// Valid whether the identity exists and has not expired
	Valid bool `json:"valid"`
	// Client the identity record, present only when valid
	Client *identity.Record `json:"client,omitempty"`
}

// GetClient godoc
// @Summary Validate a client identity
// @Description Check whether a client identity is still valid. A valid identity's
// expiration window is pushed out by the check itself.
// @tags Management
// @Produce json
// @Param Pubrelay-Request-ID header string false "User provided request ID to match against logs"
// @Param clientID path string true "Client identity"
// @Success 200 {object} APIRestRespClientValidity "success"
// @Failure 400 {object} StandardResponse "error"
// @Failure 500 {object} StandardResponse "error"
// @Router /v1/client/{clientID} [get]
func (h APIRestManagementHandler) GetClient(w http.ResponseWriter, r *http.Request) {
	restCall := "GET /v1/client/{clientID}"
	var respCode int
	var respBody interface{}
	defer func() {
		h.reply(w, respCode, respBody, restCall)
	}()

	vars := mux.Vars(r)
	clientID, ok := vars["clientID"]
	if !ok {
		msg := "No client ID provided"
		log.WithFields(h.LogTags).Errorf(msg)
		respCode = http.StatusBadRequest
		respBody = getStdRESTErrorMsg(http.StatusBadRequest, &msg)
		return
	}

	valid, err := h.identities.Validate(clientID, r.Context())
	if err != nil {
		log.WithError(err).WithFields(h.LogTags).Errorf(
			"Failed to validate client %s", clientID,
		)
		respCode, respBody = getStdRESTErrorMsgFor(err)
		return
	}

	resp := APIRestRespClientValidity{StandardResponse: getStdRESTSuccessMsg(), Valid: valid}
	if valid {
		record, err := h.identities.Get(clientID, r.Context())
		if err != nil {
			respCode, respBody = getStdRESTErrorMsgFor(err)
			return
		}
		resp.Client = &record
	}
	respCode = http.StatusOK
	respBody = resp
}

// GetClientHandler Wrapper around GetClient
func (h APIRestManagementHandler) GetClientHandler() http.HandlerFunc {
	return h.attachRequestID(func(w http.ResponseWriter, r *http.Request) {
		h.GetClient(w, r)
	})
}

// -----------------------------------------------------------------------

// APIRestRespClientDeleted response for a client identity cascade delete
type APIRestRespClientDeleted struct {
	StandardResponse
	// AccessRevoked count of private channels the client lost access to
	AccessRevoked int `json:"access_revoked"`
	// Unsubscribed count of channel subscriptions removed
	Unsubscribed int `json:"unsubscribed"`
}

// DeleteClient godoc
// @Summary Delete a client identity
// @Description Delete a client identity, revoking its channel access grants and
// removing its subscriptions. A live connection held by the identity is closed.
// @tags Management
// @Produce json
// @Param Pubrelay-Request-ID header string false "User provided request ID to match against logs"
// @Param clientID path string true "Client identity"
// @Success 200 {object} APIRestRespClientDeleted "success"
// @Failure 400 {object} StandardResponse "error"
// @Failure 404 {object} StandardResponse "error"
// @Failure 500 {object} StandardResponse "error"
// @Router /v1/client/{clientID} [delete]
func (h APIRestManagementHandler) DeleteClient(w http.ResponseWriter, r *http.Request) {
	restCall := "DELETE /v1/client/{clientID}"
	var respCode int
	var respBody interface{}
	defer func() {
		h.reply(w, respCode, respBody, restCall)
	}()

	vars := mux.Vars(r)
	clientID, ok := vars["clientID"]
	if !ok {
		msg := "No client ID provided"
		log.WithFields(h.LogTags).Errorf(msg)
		respCode = http.StatusBadRequest
		respBody = getStdRESTErrorMsg(http.StatusBadRequest, &msg)
		return
	}

	if _, err := h.identities.Get(clientID, r.Context()); err != nil {
		respCode, respBody = getStdRESTErrorMsgFor(err)
		return
	}

	// Close the live connection first so the cascade observes the final
	// subscription state
	if conn, live := h.registry.GetLiveConnection(clientID); live {
		if err := h.registry.Disconnect(
			conn, dataplane.DisconnectInvalidIdentity, r.Context(),
		); err != nil {
			log.WithError(err).WithFields(h.LogTags).Errorf(
				"Failed to close live connection of %s during delete", clientID,
			)
		}
	}

	resp := APIRestRespClientDeleted{StandardResponse: getStdRESTSuccessMsg()}

	// Revoke the explicit grants the client holds. Best effort; a channel
	// disappearing mid-scan is not an error.
	granted, err := h.policies.ListAccessibleChannels(clientID, r.Context())
	if err != nil {
		respCode, respBody = getStdRESTErrorMsgFor(err)
		return
	}
	for _, channelName := range granted {
		if err := h.policies.RevokeAccess(clientID, channelName, r.Context()); err != nil {
			log.WithError(err).WithFields(h.LogTags).Errorf(
				"Failed to revoke %s access to %s during delete", clientID, channelName,
			)
			continue
		}
		resp.AccessRevoked++
	}

	removed, err := h.subscriptions.PurgeClient(clientID, r.Context())
	if err != nil {
		respCode, respBody = getStdRESTErrorMsgFor(err)
		return
	}
	resp.Unsubscribed = removed

	if err := h.identities.Delete(clientID, r.Context()); err != nil {
		respCode, respBody = getStdRESTErrorMsgFor(err)
		return
	}

	respCode = http.StatusOK
	respBody = resp
}

// DeleteClientHandler Wrapper around DeleteClient
func (h APIRestManagementHandler) DeleteClientHandler() http.HandlerFunc {
	return h.attachRequestID(func(w http.ResponseWriter, r *http.Request) {
		h.DeleteClient(w, r)
	})
}

// -----------------------------------------------------------------------

// APIRestRespClientSubscriptions response listing a client's subscriptions
type APIRestRespClientSubscriptions struct {
	StandardResponse
	// Channels the channels the client is subscribed to
	Channels []string `json:"channels"`
}

// GetClientSubscriptions godoc
// @Summary List a client's subscriptions
// @Description List the channels a client is currently subscribed to
// @tags Management
// @Produce json
// @Param Pubrelay-Request-ID header string false "User provided request ID to match against logs"
// @Param clientID path string true "Client identity"
// @Success 200 {object} APIRestRespClientSubscriptions "success"
// @Failure 400 {object} StandardResponse "error"
// @Failure 404 {object} StandardResponse "error"
// @Failure 500 {object} StandardResponse "error"
// @Router /v1/client/{clientID}/subscription [get]
func (h APIRestManagementHandler) GetClientSubscriptions(
	w http.ResponseWriter, r *http.Request,
) {
	restCall := "GET /v1/client/{clientID}/subscription"
	var respCode int
	var respBody interface{}
	defer func() {
		h.reply(w, respCode, respBody, restCall)
	}()

	vars := mux.Vars(r)
	clientID, ok := vars["clientID"]
	if !ok {
		msg := "No client ID provided"
		log.WithFields(h.LogTags).Errorf(msg)
		respCode = http.StatusBadRequest
		respBody = getStdRESTErrorMsg(http.StatusBadRequest, &msg)
		return
	}

	if _, err := h.identities.Get(clientID, r.Context()); err != nil {
		respCode, respBody = getStdRESTErrorMsgFor(err)
		return
	}

	channels, err := h.subscriptions.GetClientChannels(clientID, r.Context())
	if err != nil {
		respCode, respBody = getStdRESTErrorMsgFor(err)
		return
	}

	respCode = http.StatusOK
	respBody = APIRestRespClientSubscriptions{
		StandardResponse: getStdRESTSuccessMsg(), Channels: channels,
	}
}

// GetClientSubscriptionsHandler Wrapper around GetClientSubscriptions
func (h APIRestManagementHandler) GetClientSubscriptionsHandler() http.HandlerFunc {
	return h.attachRequestID(func(w http.ResponseWriter, r *http.Request) {
		h.GetClientSubscriptions(w, r)
	})
}

// =======================================================================
// Channel management

// -----------------------------------------------------------------------

// APIRestReqNewChannel parameters for defining a channel
type APIRestReqNewChannel struct {
	// Name the channel name
	Name string `json:"name" validate:"required"`
	// IsPublic whether any valid client may subscribe without a grant
	IsPublic bool `json:"is_public"`
	// AllowedClientIDs explicit allow-list of client ids
	AllowedClientIDs []string `json:"allowed_client_ids,omitempty"`
	// AllowedPatterns regular expressions matched against the full client id
	AllowedPatterns []string `json:"allowed_patterns,omitempty"`
	// MaxSubscribers caps the channel's subscriber count. Zero means no cap.
	MaxSubscribers int `json:"max_subscribers" validate:"gte=0"`
}

// APIRestRespOneChannel response carrying one channel definition
type APIRestRespOneChannel struct {
	StandardResponse
	// Name the channel name
	Name string `json:"name"`
	// Rules the channel's access rules
	Rules channel.Rules `json:"rules"`
}

// CreateChannel godoc
// @Summary Define a channel
// @Description Define a new channel with its access rules
// @tags Management
// @Accept json
// @Produce json
// @Param Pubrelay-Request-ID header string false "User provided request ID to match against logs"
// @Param setting body APIRestReqNewChannel true "Channel definition"
// @Success 200 {object} APIRestRespOneChannel "success"
// @Failure 400 {object} StandardResponse "error"
// @Failure 409 {object} StandardResponse "error"
// @Failure 500 {object} StandardResponse "error"
// @Router /v1/channel [post]
func (h APIRestManagementHandler) CreateChannel(w http.ResponseWriter, r *http.Request) {
	restCall := "POST /v1/channel"
	var respCode int
	var respBody interface{}
	defer func() {
		h.reply(w, respCode, respBody, restCall)
	}()

	var params APIRestReqNewChannel
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		msg := "Unable to parse request body"
		log.WithError(err).WithFields(h.LogTags).Error(msg)
		respCode = http.StatusBadRequest
		respBody = getStdRESTErrorMsg(http.StatusBadRequest, &msg)
		return
	}

	if err := h.validate.Struct(&params); err != nil {
		msg := "Bad request body"
		log.WithError(err).WithFields(h.LogTags).Error(msg)
		respCode = http.StatusBadRequest
		respBody = getStdRESTErrorMsg(http.StatusBadRequest, &msg)
		return
	}

	rules := channel.Rules{
		IsPublic:         params.IsPublic,
		AllowedClientIDs: params.AllowedClientIDs,
		AllowedPatterns:  params.AllowedPatterns,
		MaxSubscribers:   params.MaxSubscribers,
	}
	if err := h.policies.Create(params.Name, rules, r.Context()); err != nil {
		log.WithError(err).WithFields(h.LogTags).Errorf(
			"Failed to define channel %s", params.Name,
		)
		respCode, respBody = getStdRESTErrorMsgFor(err)
		return
	}

	respCode = http.StatusOK
	respBody = APIRestRespOneChannel{
		StandardResponse: getStdRESTSuccessMsg(), Name: params.Name, Rules: rules,
	}
}

// CreateChannelHandler Wrapper around CreateChannel
func (h APIRestManagementHandler) CreateChannelHandler() http.HandlerFunc {
	return h.attachRequestID(func(w http.ResponseWriter, r *http.Request) {
		h.CreateChannel(w, r)
	})
}

// -----------------------------------------------------------------------

// APIRestRespChannelDeleted response for a channel cascade delete
type APIRestRespChannelDeleted struct {
	StandardResponse
	// Unsubscribed count of channel subscriptions removed
	Unsubscribed int `json:"unsubscribed"`
}

// DeleteChannel godoc
// @Summary Delete a channel
// @Description Delete a channel, removing its subscriptions and notification history
// @tags Management
// @Produce json
// @Param Pubrelay-Request-ID header string false "User provided request ID to match against logs"
// @Param channelName path string true "Channel name"
// @Success 200 {object} APIRestRespChannelDeleted "success"
// @Failure 400 {object} StandardResponse "error"
// @Failure 404 {object} StandardResponse "error"
// @Failure 500 {object} StandardResponse "error"
// @Router /v1/channel/{channelName} [delete]
func (h APIRestManagementHandler) DeleteChannel(w http.ResponseWriter, r *http.Request) {
	restCall := "DELETE /v1/channel/{channelName}"
	var respCode int
	var respBody interface{}
	defer func() {
		h.reply(w, respCode, respBody, restCall)
	}()

	vars := mux.Vars(r)
	channelName, ok := vars["channelName"]
	if !ok {
		msg := "No channel name provided"
		log.WithFields(h.LogTags).Errorf(msg)
		respCode = http.StatusBadRequest
		respBody = getStdRESTErrorMsg(http.StatusBadRequest, &msg)
		return
	}

	if err := h.policies.Delete(channelName, r.Context()); err != nil {
		respCode, respBody = getStdRESTErrorMsgFor(err)
		return
	}

	resp := APIRestRespChannelDeleted{StandardResponse: getStdRESTSuccessMsg()}
	removed, err := h.subscriptions.PurgeChannel(channelName, r.Context())
	if err != nil {
		respCode, respBody = getStdRESTErrorMsgFor(err)
		return
	}
	resp.Unsubscribed = removed

	if err := h.notifications.Purge(channelName, r.Context()); err != nil {
		respCode, respBody = getStdRESTErrorMsgFor(err)
		return
	}

	respCode = http.StatusOK
	respBody = resp
}

// DeleteChannelHandler Wrapper around DeleteChannel
func (h APIRestManagementHandler) DeleteChannelHandler() http.HandlerFunc {
	return h.attachRequestID(func(w http.ResponseWriter, r *http.Request) {
		h.DeleteChannel(w, r)
	})
}

// =======================================================================
// Channel access management

// -----------------------------------------------------------------------

// APIRestRespAccessGranted response for an access grant
type APIRestRespAccessGranted struct {
	StandardResponse
	// Subscribed whether the grantee was also subscribed to the channel
	Subscribed bool `json:"subscribed"`
}

// GrantChannelAccess godoc
// @Summary Grant channel access
// @Description Add a client to a private channel's allow-list. The grantee is
// also subscribed to the channel when the channel has room.
// @tags Management
// @Produce json
// @Param Pubrelay-Request-ID header string false "User provided request ID to match against logs"
// @Param channelName path string true "Channel name"
// @Param clientID path string true "Client identity"
// @Success 200 {object} APIRestRespAccessGranted "success"
// @Failure 400 {object} StandardResponse "error"
// @Failure 404 {object} StandardResponse "error"
// @Failure 500 {object} StandardResponse "error"
// @Router /v1/channel/{channelName}/access/{clientID} [put]
func (h APIRestManagementHandler) GrantChannelAccess(w http.ResponseWriter, r *http.Request) {
	restCall := "PUT /v1/channel/{channelName}/access/{clientID}"
	var respCode int
	var respBody interface{}
	defer func() {
		h.reply(w, respCode, respBody, restCall)
	}()

	vars := mux.Vars(r)
	channelName, ok := vars["channelName"]
	if !ok {
		msg := "No channel name provided"
		log.WithFields(h.LogTags).Errorf(msg)
		respCode = http.StatusBadRequest
		respBody = getStdRESTErrorMsg(http.StatusBadRequest, &msg)
		return
	}
	clientID, ok := vars["clientID"]
	if !ok {
		msg := "No client ID provided"
		log.WithFields(h.LogTags).Errorf(msg)
		respCode = http.StatusBadRequest
		respBody = getStdRESTErrorMsg(http.StatusBadRequest, &msg)
		return
	}

	if err := h.policies.GrantAccess(clientID, channelName, r.Context()); err != nil {
		log.WithError(err).WithFields(h.LogTags).Errorf(
			"Failed to grant %s access to %s", clientID, channelName,
		)
		respCode, respBody = getStdRESTErrorMsgFor(err)
		return
	}

	resp := APIRestRespAccessGranted{StandardResponse: getStdRESTSuccessMsg()}
	// A grant also enrolls the grantee. Running into the subscriber cap is
	// not grounds to unwind the grant.
	if err := h.engine.Subscribe(clientID, channelName, r.Context()); err != nil {
		log.WithError(err).WithFields(h.LogTags).Warnf(
			"Granted %s access to %s, but could not subscribe it", clientID, channelName,
		)
	} else {
		resp.Subscribed = true
	}

	respCode = http.StatusOK
	respBody = resp
}

// GrantChannelAccessHandler Wrapper around GrantChannelAccess
func (h APIRestManagementHandler) GrantChannelAccessHandler() http.HandlerFunc {
	return h.attachRequestID(func(w http.ResponseWriter, r *http.Request) {
		h.GrantChannelAccess(w, r)
	})
}

// -----------------------------------------------------------------------

// RevokeChannelAccess godoc
// @Summary Revoke channel access
// @Description Remove a client from a private channel's allow-list. The client
// stops receiving the channel's notifications from the next publish on.
// @tags Management
// @Produce json
// @Param Pubrelay-Request-ID header string false "User provided request ID to match against logs"
// @Param channelName path string true "Channel name"
// @Param clientID path string true "Client identity"
// @Success 200 {object} StandardResponse "success"
// @Failure 400 {object} StandardResponse "error"
// @Failure 404 {object} StandardResponse "error"
// @Failure 500 {object} StandardResponse "error"
// @Router /v1/channel/{channelName}/access/{clientID} [delete]
func (h APIRestManagementHandler) RevokeChannelAccess(w http.ResponseWriter, r *http.Request) {
	restCall := "DELETE /v1/channel/{channelName}/access/{clientID}"
	var respCode int
	var respBody interface{}
	defer func() {
		h.reply(w, respCode, respBody, restCall)
	}()

	vars := mux.Vars(r)
	channelName, ok := vars["channelName"]
	if !ok {
		msg := "No channel name provided"
		log.WithFields(h.LogTags).Errorf(msg)
		respCode = http.StatusBadRequest
		respBody = getStdRESTErrorMsg(http.StatusBadRequest, &msg)
		return
	}
	clientID, ok := vars["clientID"]
	if !ok {
		msg := "No client ID provided"
		log.WithFields(h.LogTags).Errorf(msg)
		respCode = http.StatusBadRequest
		respBody = getStdRESTErrorMsg(http.StatusBadRequest, &msg)
		return
	}

	if err := h.policies.RevokeAccess(clientID, channelName, r.Context()); err != nil {
		log.WithError(err).WithFields(h.LogTags).Errorf(
			"Failed to revoke %s access to %s", clientID, channelName,
		)
		respCode, respBody = getStdRESTErrorMsgFor(err)
		return
	}

	respCode = http.StatusOK
	respBody = getStdRESTSuccessMsg()
}

// RevokeChannelAccessHandler Wrapper around RevokeChannelAccess
func (h APIRestManagementHandler) RevokeChannelAccessHandler() http.HandlerFunc {
	return h.attachRequestID(func(w http.ResponseWriter, r *http.Request) {
		h.RevokeChannelAccess(w, r)
	})
}

// =======================================================================
// Health Checks

// -----------------------------------------------------------------------

// Alive godoc
// @Summary For liveness check
// @Description Will return success to indicate REST API module is live
// @tags Management
// @Produce json
// @Success 200 {object} StandardResponse "success"
// @Failure 500 {object} StandardResponse "error"
// @Router /alive [get]
func (h APIRestManagementHandler) Alive(w http.ResponseWriter, r *http.Request) {
	h.reply(w, http.StatusOK, getStdRESTSuccessMsg(), "GET /alive")
}

// AliveHandler Wrapper around Alive
func (h APIRestManagementHandler) AliveHandler() http.HandlerFunc {
	return h.attachRequestID(func(w http.ResponseWriter, r *http.Request) {
		h.Alive(w, r)
	})
}

// -----------------------------------------------------------------------

// Ready godoc
// @Summary For readiness check
// @Description Will return success if the REST API module is ready for use
// @tags Management
// @Produce json
// @Success 200 {object} StandardResponse "success"
// @Failure 500 {object} StandardResponse "error"
// @Router /ready [get]
func (h APIRestManagementHandler) Ready(w http.ResponseWriter, r *http.Request) {
	restCall := "GET /ready"
	var respCode int
	var respBody interface{}
	defer func() {
		h.reply(w, respCode, respBody, restCall)
	}()

	if err := h.readyCheck(r.Context()); err != nil {
		msg := "not ready"
		log.WithError(err).WithFields(h.LogTags).Error(msg)
		respCode = http.StatusInternalServerError
		respBody = getStdRESTErrorMsg(http.StatusInternalServerError, &msg)
		return
	}
	respCode = http.StatusOK
	respBody = getStdRESTSuccessMsg()
}

// ReadyHandler Wrapper around Ready
func (h APIRestManagementHandler) ReadyHandler() http.HandlerFunc {
	return h.attachRequestID(func(w http.ResponseWriter, r *http.Request) {
		h.Ready(w, r)
	})
}
