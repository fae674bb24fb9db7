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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"gitlab.com/project-nan/pubrelay/channel"
	"gitlab.com/project-nan/pubrelay/common"
	"gitlab.com/project-nan/pubrelay/dataplane"
	"gitlab.com/project-nan/pubrelay/history"
	"gitlab.com/project-nan/pubrelay/identity"
	"gitlab.com/project-nan/pubrelay/storage"
	"gitlab.com/project-nan/pubrelay/subscription"
)

// testRelayCore the fully wired core component set for handler tests
type testRelayCore struct {
	identities    identity.Store
	policies      channel.PolicyStore
	subscriptions subscription.Index
	notifications history.Log
	registry      dataplane.ConnectionRegistry
	engine        dataplane.BroadcastEngine
}

func defineTestRelayCore(t *testing.T, tokenTTL time.Duration) testRelayCore {
	dataStore := storage.CreateInMemoryStorage()
	identities, err := identity.DefineIdentityStore(dataStore, tokenTTL)
	assert.Nil(t, err)
	policies, err := channel.DefinePolicyStore(dataStore)
	assert.Nil(t, err)
	subscriptions, err := subscription.DefineIndex(dataStore)
	assert.Nil(t, err)
	notifications, err := history.DefineLog(dataStore, 1000, 10)
	assert.Nil(t, err)
	registry := dataplane.DefineConnectionRegistry(subscriptions)
	engine := dataplane.DefineBroadcastEngine(policies, subscriptions, registry)
	return testRelayCore{
		identities:    identities,
		policies:      policies,
		subscriptions: subscriptions,
		notifications: notifications,
		registry:      registry,
		engine:        engine,
	}
}

func defineTestManagementHandler(t *testing.T, core testRelayCore) APIRestManagementHandler {
	uut, err := GetAPIRestManagementHandler(
		core.identities,
		core.policies,
		core.subscriptions,
		core.notifications,
		core.registry,
		core.engine,
		func(ctxt context.Context) error { return nil },
	)
	assert.Nil(t, err)
	return uut
}

func TestClientIdentityManagement(t *testing.T) {
	assert := assert.New(t)

	core := defineTestRelayCore(t, time.Hour)
	uut := defineTestManagementHandler(t, core)

	utCtxt, utCtxtCancel := context.WithCancel(context.Background())
	defer utCtxtCancel()

	// Case 0: register a new identity
	var clientID string
	{
		params := APIRestReqNewClient{Metadata: map[string]string{"team": "ops"}}
		payload, err := json.Marshal(&params)
		assert.Nil(err)
		req, err := http.NewRequest("POST", "/v1/client", bytes.NewReader(payload))
		assert.Nil(err)

		respRecorder := httptest.NewRecorder()
		handler := uut.CreateClientHandler()
		handler.ServeHTTP(respRecorder, req)

		assert.Equal(http.StatusCreated, respRecorder.Code)
		var msg APIRestRespOneClient
		assert.Nil(json.Unmarshal(respRecorder.Body.Bytes(), &msg))
		assert.True(msg.Success)
		assert.NotEmpty(msg.Client.ID)
		assert.Equal("ops", msg.Client.Metadata["team"])
		clientID = msg.Client.ID
	}

	// Case 1: re-registering a still valid identity returns 200
	{
		params := APIRestReqNewClient{ClientID: clientID}
		payload, err := json.Marshal(&params)
		assert.Nil(err)
		req, err := http.NewRequest("POST", "/v1/client", bytes.NewReader(payload))
		assert.Nil(err)

		respRecorder := httptest.NewRecorder()
		handler := uut.CreateClientHandler()
		handler.ServeHTTP(respRecorder, req)

		assert.Equal(http.StatusOK, respRecorder.Code)
		var msg APIRestRespOneClient
		assert.Nil(json.Unmarshal(respRecorder.Body.Bytes(), &msg))
		assert.True(msg.Success)
		assert.Equal(clientID, msg.Client.ID)
	}

	// Case 2: validate the identity
	{
		req, err := http.NewRequest("GET", fmt.Sprintf("/v1/client/%s", clientID), nil)
		assert.Nil(err)

		router := mux.NewRouter()
		respRecorder := httptest.NewRecorder()
		router.HandleFunc("/v1/client/{clientID}", uut.GetClientHandler())
		router.ServeHTTP(respRecorder, req)

		assert.Equal(http.StatusOK, respRecorder.Code)
		var msg APIRestRespClientValidity
		assert.Nil(json.Unmarshal(respRecorder.Body.Bytes(), &msg))
		assert.True(msg.Success)
		assert.True(msg.Valid)
		assert.NotNil(msg.Client)
		assert.Equal(clientID, msg.Client.ID)
	}

	// Case 3: an unknown identity is not valid
	{
		req, err := http.NewRequest(
			"GET", fmt.Sprintf("/v1/client/%s", uuid.NewString()), nil,
		)
		assert.Nil(err)

		router := mux.NewRouter()
		respRecorder := httptest.NewRecorder()
		router.HandleFunc("/v1/client/{clientID}", uut.GetClientHandler())
		router.ServeHTTP(respRecorder, req)

		assert.Equal(http.StatusOK, respRecorder.Code)
		var msg APIRestRespClientValidity
		assert.Nil(json.Unmarshal(respRecorder.Body.Bytes(), &msg))
		assert.True(msg.Success)
		assert.False(msg.Valid)
		assert.Nil(msg.Client)
	}

	// Case 4: subscription listing reflects the index
	channelName := fmt.Sprintf("channel-%s", uuid.NewString())
	{
		assert.Nil(core.policies.Create(
			channelName, channel.Rules{AllowedClientIDs: []string{clientID}}, utCtxt,
		))
		assert.Nil(core.subscriptions.Subscribe(clientID, channelName, utCtxt))

		req, err := http.NewRequest(
			"GET", fmt.Sprintf("/v1/client/%s/subscription", clientID), nil,
		)
		assert.Nil(err)

		router := mux.NewRouter()
		respRecorder := httptest.NewRecorder()
		router.HandleFunc(
			"/v1/client/{clientID}/subscription", uut.GetClientSubscriptionsHandler(),
		)
		router.ServeHTTP(respRecorder, req)

		assert.Equal(http.StatusOK, respRecorder.Code)
		var msg APIRestRespClientSubscriptions
		assert.Nil(json.Unmarshal(respRecorder.Body.Bytes(), &msg))
		assert.True(msg.Success)
		assert.EqualValues([]string{channelName}, msg.Channels)
	}

	// Case 5: delete the identity with full cascade
	{
		req, err := http.NewRequest("DELETE", fmt.Sprintf("/v1/client/%s", clientID), nil)
		assert.Nil(err)

		router := mux.NewRouter()
		respRecorder := httptest.NewRecorder()
		router.HandleFunc("/v1/client/{clientID}", uut.DeleteClientHandler())
		router.ServeHTTP(respRecorder, req)

		assert.Equal(http.StatusOK, respRecorder.Code)
		var msg APIRestRespClientDeleted
		assert.Nil(json.Unmarshal(respRecorder.Body.Bytes(), &msg))
		assert.True(msg.Success)
		assert.Equal(1, msg.AccessRevoked)
		assert.Equal(1, msg.Unsubscribed)

		// The cascade removed the allow-list entry and the subscription
		allowed, err := core.policies.HasAccess(clientID, channelName, utCtxt)
		assert.Nil(err)
		assert.False(allowed)
		subscribers, err := core.subscriptions.GetChannelSubscribers(channelName, utCtxt)
		assert.Nil(err)
		assert.Empty(subscribers)
	}

	// Case 6: deleting an unknown identity fails
	{
		req, err := http.NewRequest(
			"DELETE", fmt.Sprintf("/v1/client/%s", uuid.NewString()), nil,
		)
		assert.Nil(err)

		router := mux.NewRouter()
		respRecorder := httptest.NewRecorder()
		router.HandleFunc("/v1/client/{clientID}", uut.DeleteClientHandler())
		router.ServeHTTP(respRecorder, req)

		assert.Equal(http.StatusNotFound, respRecorder.Code)
		var msg StandardResponse
		assert.Nil(json.Unmarshal(respRecorder.Body.Bytes(), &msg))
		assert.False(msg.Success)
		assert.Equal(http.StatusNotFound, msg.Error.Code)
	}
}

func TestChannelManagement(t *testing.T) {
	assert := assert.New(t)

	core := defineTestRelayCore(t, time.Hour)
	uut := defineTestManagementHandler(t, core)

	utCtxt, utCtxtCancel := context.WithCancel(context.Background())
	defer utCtxtCancel()

	channelName := fmt.Sprintf("channel-%s", uuid.NewString())
	clientID := fmt.Sprintf("client-%s", uuid.NewString())

	// Case 0: define a new channel
	{
		params := APIRestReqNewChannel{Name: channelName}
		payload, err := json.Marshal(&params)
		assert.Nil(err)
		req, err := http.NewRequest("POST", "/v1/channel", bytes.NewReader(payload))
		assert.Nil(err)

		respRecorder := httptest.NewRecorder()
		handler := uut.CreateChannelHandler()
		handler.ServeHTTP(respRecorder, req)

		assert.Equal(http.StatusOK, respRecorder.Code)
		var msg APIRestRespOneChannel
		assert.Nil(json.Unmarshal(respRecorder.Body.Bytes(), &msg))
		assert.True(msg.Success)
		assert.Equal(channelName, msg.Name)
		assert.False(msg.Rules.IsPublic)
	}

	// Case 1: re-defining the channel conflicts
	{
		params := APIRestReqNewChannel{Name: channelName}
		payload, err := json.Marshal(&params)
		assert.Nil(err)
		req, err := http.NewRequest("POST", "/v1/channel", bytes.NewReader(payload))
		assert.Nil(err)

		respRecorder := httptest.NewRecorder()
		handler := uut.CreateChannelHandler()
		handler.ServeHTTP(respRecorder, req)

		assert.Equal(http.StatusConflict, respRecorder.Code)
	}

	// Case 2: a channel without a name is refused
	{
		req, err := http.NewRequest("POST", "/v1/channel", bytes.NewReader([]byte(`{}`)))
		assert.Nil(err)

		respRecorder := httptest.NewRecorder()
		handler := uut.CreateChannelHandler()
		handler.ServeHTTP(respRecorder, req)

		assert.Equal(http.StatusBadRequest, respRecorder.Code)
	}

	// Case 3: a channel with a broken allow pattern is refused
	{
		params := APIRestReqNewChannel{
			Name: uuid.NewString(), AllowedPatterns: []string{"client-(["},
		}
		payload, err := json.Marshal(&params)
		assert.Nil(err)
		req, err := http.NewRequest("POST", "/v1/channel", bytes.NewReader(payload))
		assert.Nil(err)

		respRecorder := httptest.NewRecorder()
		handler := uut.CreateChannelHandler()
		handler.ServeHTTP(respRecorder, req)

		assert.Equal(http.StatusBadRequest, respRecorder.Code)
	}

	// Case 4: grant access, which also subscribes the grantee
	{
		req, err := http.NewRequest(
			"PUT", fmt.Sprintf("/v1/channel/%s/access/%s", channelName, clientID), nil,
		)
		assert.Nil(err)

		router := mux.NewRouter()
		respRecorder := httptest.NewRecorder()
		router.HandleFunc(
			"/v1/channel/{channelName}/access/{clientID}", uut.GrantChannelAccessHandler(),
		)
		router.ServeHTTP(respRecorder, req)

		assert.Equal(http.StatusOK, respRecorder.Code)
		var msg APIRestRespAccessGranted
		assert.Nil(json.Unmarshal(respRecorder.Body.Bytes(), &msg))
		assert.True(msg.Success)
		assert.True(msg.Subscribed)

		allowed, err := core.policies.HasAccess(clientID, channelName, utCtxt)
		assert.Nil(err)
		assert.True(allowed)
		member, err := core.subscriptions.IsSubscribed(clientID, channelName, utCtxt)
		assert.Nil(err)
		assert.True(member)
	}

	// Case 5: revoke access
	{
		req, err := http.NewRequest(
			"DELETE", fmt.Sprintf("/v1/channel/%s/access/%s", channelName, clientID), nil,
		)
		assert.Nil(err)

		router := mux.NewRouter()
		respRecorder := httptest.NewRecorder()
		router.HandleFunc(
			"/v1/channel/{channelName}/access/{clientID}", uut.RevokeChannelAccessHandler(),
		)
		router.ServeHTTP(respRecorder, req)

		assert.Equal(http.StatusOK, respRecorder.Code)
		allowed, err := core.policies.HasAccess(clientID, channelName, utCtxt)
		assert.Nil(err)
		assert.False(allowed)
	}

	// Case 6: granting access on a public channel is refused
	publicChannel := fmt.Sprintf("channel-%s", uuid.NewString())
	{
		assert.Nil(core.policies.Create(publicChannel, channel.Rules{IsPublic: true}, utCtxt))
		req, err := http.NewRequest(
			"PUT", fmt.Sprintf("/v1/channel/%s/access/%s", publicChannel, clientID), nil,
		)
		assert.Nil(err)

		router := mux.NewRouter()
		respRecorder := httptest.NewRecorder()
		router.HandleFunc(
			"/v1/channel/{channelName}/access/{clientID}", uut.GrantChannelAccessHandler(),
		)
		router.ServeHTTP(respRecorder, req)

		assert.Equal(http.StatusBadRequest, respRecorder.Code)
	}

	// Case 7: delete the channel with full cascade
	{
		assert.Nil(core.notifications.Append(
			channelName,
			common.NewNotification(channelName, "stale", nil),
			utCtxt,
		))

		req, err := http.NewRequest("DELETE", fmt.Sprintf("/v1/channel/%s", channelName), nil)
		assert.Nil(err)

		router := mux.NewRouter()
		respRecorder := httptest.NewRecorder()
		router.HandleFunc("/v1/channel/{channelName}", uut.DeleteChannelHandler())
		router.ServeHTTP(respRecorder, req)

		assert.Equal(http.StatusOK, respRecorder.Code)
		var msg APIRestRespChannelDeleted
		assert.Nil(json.Unmarshal(respRecorder.Body.Bytes(), &msg))
		assert.True(msg.Success)

		present, err := core.policies.Exists(channelName, utCtxt)
		assert.Nil(err)
		assert.False(present)
		notifications, err := core.notifications.Read(channelName, 10, utCtxt)
		assert.Nil(err)
		assert.Empty(notifications)
	}

	// Case 8: deleting an unknown channel fails
	{
		req, err := http.NewRequest(
			"DELETE", fmt.Sprintf("/v1/channel/%s", uuid.NewString()), nil,
		)
		assert.Nil(err)

		router := mux.NewRouter()
		respRecorder := httptest.NewRecorder()
		router.HandleFunc("/v1/channel/{channelName}", uut.DeleteChannelHandler())
		router.ServeHTTP(respRecorder, req)

		assert.Equal(http.StatusNotFound, respRecorder.Code)
	}
}
