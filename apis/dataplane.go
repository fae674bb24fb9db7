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
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/apex/log"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"gitlab.com/project-nan/pubrelay/channel"
	"gitlab.com/project-nan/pubrelay/common"
	"gitlab.com/project-nan/pubrelay/dataplane"
	"gitlab.com/project-nan/pubrelay/history"
	"gitlab.com/project-nan/pubrelay/subscription"
)

// APIRestDataplaneHandler REST handler for publishing and reading notifications
type APIRestDataplaneHandler struct {
	APIRestHandler
	policies      channel.PolicyStore
	subscriptions subscription.Index
	notifications history.Log
	engine        dataplane.BroadcastEngine
	validate      *validator.Validate
}

// GetAPIRestDataplaneHandler define APIRestDataplaneHandler
func GetAPIRestDataplaneHandler(
	policies channel.PolicyStore,
	subscriptions subscription.Index,
	notifications history.Log,
	engine dataplane.BroadcastEngine,
) (APIRestDataplaneHandler, error) {
	logTags := log.Fields{
		"module":    "rest",
		"component": "dataplane",
	}
	return APIRestDataplaneHandler{
		APIRestHandler: APIRestHandler{
			Component: common.Component{LogTags: logTags},
		},
		policies:      policies,
		subscriptions: subscriptions,
		notifications: notifications,
		engine:        engine,
		validate:      validator.New(),
	}, nil
}

// requireKnownChannel fetch the channel name path parameter and check the
// channel exists. Returns an empty name after writing the failure into the
// response placeholders.
func (h APIRestDataplaneHandler) requireKnownChannel(
	r *http.Request, respCode *int, respBody *interface{},
) string {
	vars := mux.Vars(r)
	channelName, ok := vars["channelName"]
	if !ok {
		msg := "No channel name provided"
		log.WithFields(h.LogTags).Errorf(msg)
		*respCode = http.StatusBadRequest
		*respBody = getStdRESTErrorMsg(http.StatusBadRequest, &msg)
		return ""
	}
	present, err := h.policies.Exists(channelName, r.Context())
	if err != nil {
		*respCode, *respBody = getStdRESTErrorMsgFor(err)
		return ""
	}
	if !present {
		*respCode, *respBody = getStdRESTErrorMsgFor(
			common.NewNotFoundError("channel %s is not known", channelName),
		)
		return ""
	}
	return channelName
}

// -----------------------------------------------------------------------

// APIRestReqPublish parameters for publishing a notification
type APIRestReqPublish struct {
	// Message the notification payload
	Message string `json:"message" validate:"required"`
	// Metadata optional sender provided message metadata
	Metadata map[string]string `json:"metadata,omitempty"`
}

// APIRestRespPublish response carrying the relayed notification
type APIRestRespPublish struct {
	StandardResponse
	// Notification the notification as recorded and relayed
	Notification common.Notification `json:"notification"`
	// Delivered count of subscribers the notification reached
	Delivered int `json:"delivered"`
	// Evicted count of subscribers removed for failing the access re-check
	Evicted int `json:"evicted"`
}

// PublishMessage godoc
// @Summary Publish a notification
// @Description Publish a notification on a channel. The notification is recorded
// in the channel's history and relayed to the channel's live subscribers.
// @tags Dataplane
// @Accept json
// @Produce json
// @Param Pubrelay-Request-ID header string false "User provided request ID to match against logs"
// @Param channelName path string true "Channel name"
// @Param setting body APIRestReqPublish true "Notification parameters"
// @Success 200 {object} APIRestRespPublish "success"
// @Failure 400 {object} StandardResponse "error"
// @Failure 404 {object} StandardResponse "error"
// @Failure 500 {object} StandardResponse "error"
// @Router /v1/channel/{channelName}/message [post]
func (h APIRestDataplaneHandler) PublishMessage(w http.ResponseWriter, r *http.Request) {
	restCall := "POST /v1/channel/{channelName}/message"
	var respCode int
	var respBody interface{}
	defer func() {
		h.reply(w, respCode, respBody, restCall)
	}()

	channelName := h.requireKnownChannel(r, &respCode, &respBody)
	if channelName == "" {
		return
	}

	var params APIRestReqPublish
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

	notification := common.NewNotification(channelName, params.Message, params.Metadata)
	// History first, then fan-out. The append order is the channel's order.
	if err := h.notifications.Append(channelName, notification, r.Context()); err != nil {
		respCode, respBody = getStdRESTErrorMsgFor(err)
		return
	}
	result, err := h.engine.Publish(notification, r.Context())
	if err != nil {
		respCode, respBody = getStdRESTErrorMsgFor(err)
		return
	}

	respCode = http.StatusOK
	respBody = APIRestRespPublish{
		StandardResponse: getStdRESTSuccessMsg(),
		Notification:     notification,
		Delivered:        result.Delivered,
		Evicted:          result.Evicted,
	}
}

// PublishMessageHandler Wrapper around PublishMessage
func (h APIRestDataplaneHandler) PublishMessageHandler() http.HandlerFunc {
	return h.attachRequestID(func(w http.ResponseWriter, r *http.Request) {
		h.PublishMessage(w, r)
	})
}

// -----------------------------------------------------------------------

// APIRestRespMessages response listing a channel's recent notifications
type APIRestRespMessages struct {
	StandardResponse
	// Notifications the channel's recent notifications, newest first
	Notifications []common.Notification `json:"notifications"`
}

// GetMessages godoc
// @Summary Read a channel's recent notifications
// @Description Read a channel's recent notifications, newest first
// @tags Dataplane
// @Produce json
// @Param Pubrelay-Request-ID header string false "User provided request ID to match against logs"
// @Param channelName path string true "Channel name"
// @Param limit query int false "Max notifications to return"
// @Success 200 {object} APIRestRespMessages "success"
// @Failure 400 {object} StandardResponse "error"
// @Failure 404 {object} StandardResponse "error"
// @Failure 500 {object} StandardResponse "error"
// @Router /v1/channel/{channelName}/message [get]
func (h APIRestDataplaneHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	restCall := "GET /v1/channel/{channelName}/message"
	var respCode int
	var respBody interface{}
	defer func() {
		h.reply(w, respCode, respBody, restCall)
	}()

	channelName := h.requireKnownChannel(r, &respCode, &respBody)
	if channelName == "" {
		return
	}

	limit := 0
	if param := r.URL.Query().Get("limit"); param != "" {
		parsed, err := strconv.Atoi(param)
		if err != nil {
			msg := "Invalid limit parameter"
			log.WithError(err).WithFields(h.LogTags).Error(msg)
			respCode = http.StatusBadRequest
			respBody = getStdRESTErrorMsg(http.StatusBadRequest, &msg)
			return
		}
		limit = parsed
	}

	notifications, err := h.notifications.Read(channelName, limit, r.Context())
	if err != nil {
		respCode, respBody = getStdRESTErrorMsgFor(err)
		return
	}

	respCode = http.StatusOK
	respBody = APIRestRespMessages{
		StandardResponse: getStdRESTSuccessMsg(), Notifications: notifications,
	}
}

// GetMessagesHandler Wrapper around GetMessages
func (h APIRestDataplaneHandler) GetMessagesHandler() http.HandlerFunc {
	return h.attachRequestID(func(w http.ResponseWriter, r *http.Request) {
		h.GetMessages(w, r)
	})
}

// -----------------------------------------------------------------------

// APIRestRespSubscribers response listing a channel's subscribers
type APIRestRespSubscribers struct {
	StandardResponse
	// Subscribers the ids of the channel's current subscribers
	Subscribers []string `json:"subscribers"`
}

// GetSubscribers godoc
// @Summary List a channel's subscribers
// @Description List the clients currently subscribed to a channel
// @tags Dataplane
// @Produce json
// @Param Pubrelay-Request-ID header string false "User provided request ID to match against logs"
// @Param channelName path string true "Channel name"
// @Success 200 {object} APIRestRespSubscribers "success"
// @Failure 400 {object} StandardResponse "error"
// @Failure 404 {object} StandardResponse "error"
// @Failure 500 {object} StandardResponse "error"
// @Router /v1/channel/{channelName}/subscriber [get]
func (h APIRestDataplaneHandler) GetSubscribers(w http.ResponseWriter, r *http.Request) {
	restCall := "GET /v1/channel/{channelName}/subscriber"
	var respCode int
	var respBody interface{}
	defer func() {
		h.reply(w, respCode, respBody, restCall)
	}()

	channelName := h.requireKnownChannel(r, &respCode, &respBody)
	if channelName == "" {
		return
	}

	subscribers, err := h.subscriptions.GetChannelSubscribers(channelName, r.Context())
	if err != nil {
		respCode, respBody = getStdRESTErrorMsgFor(err)
		return
	}

	respCode = http.StatusOK
	respBody = APIRestRespSubscribers{
		StandardResponse: getStdRESTSuccessMsg(), Subscribers: subscribers,
	}
}

// GetSubscribersHandler Wrapper around GetSubscribers
func (h APIRestDataplaneHandler) GetSubscribersHandler() http.HandlerFunc {
	return h.attachRequestID(func(w http.ResponseWriter, r *http.Request) {
		h.GetSubscribers(w, r)
	})
}

// -----------------------------------------------------------------------

// APIRestRespSubscriberCheck response for a single subscriber membership check
type APIRestRespSubscriberCheck struct {
	StandardResponse
	// Subscribed whether the client is subscribed to the channel
	Subscribed bool `json:"subscribed"`
}

// GetSubscriber godoc
// @Summary Check one subscriber of a channel
// @Description Check whether a client is subscribed to a channel
// @tags Dataplane
// @Produce json
// @Param Pubrelay-Request-ID header string false "User provided request ID to match against logs"
// @Param channelName path string true "Channel name"
// @Param clientID path string true "Client identity"
// @Success 200 {object} APIRestRespSubscriberCheck "success"
// @Failure 400 {object} StandardResponse "error"
// @Failure 404 {object} StandardResponse "error"
// @Failure 500 {object} StandardResponse "error"
// @Router /v1/channel/{channelName}/subscriber/{clientID} [get]
func (h APIRestDataplaneHandler) GetSubscriber(w http.ResponseWriter, r *http.Request) {
	restCall := "GET /v1/channel/{channelName}/subscriber/{clientID}"
	var respCode int
	var respBody interface{}
	defer func() {
		h.reply(w, respCode, respBody, restCall)
	}()

	channelName := h.requireKnownChannel(r, &respCode, &respBody)
	if channelName == "" {
		return
	}
	clientID, ok := mux.Vars(r)["clientID"]
	if !ok {
		msg := "No client ID provided"
		log.WithFields(h.LogTags).Errorf(msg)
		respCode = http.StatusBadRequest
		respBody = getStdRESTErrorMsg(http.StatusBadRequest, &msg)
		return
	}

	subscribed, err := h.subscriptions.IsSubscribed(clientID, channelName, r.Context())
	if err != nil {
		respCode, respBody = getStdRESTErrorMsgFor(err)
		return
	}

	respCode = http.StatusOK
	respBody = APIRestRespSubscriberCheck{
		StandardResponse: getStdRESTSuccessMsg(), Subscribed: subscribed,
	}
}

// GetSubscriberHandler Wrapper around GetSubscriber
func (h APIRestDataplaneHandler) GetSubscriberHandler() http.HandlerFunc {
	return h.attachRequestID(func(w http.ResponseWriter, r *http.Request) {
		h.GetSubscriber(w, r)
	})
}
