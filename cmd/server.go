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

package cmd

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/apex/log"
	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"gitlab.com/project-nan/pubrelay/apis"
	"gitlab.com/project-nan/pubrelay/channel"
	"gitlab.com/project-nan/pubrelay/common"
	"gitlab.com/project-nan/pubrelay/dataplane"
	"gitlab.com/project-nan/pubrelay/history"
	"gitlab.com/project-nan/pubrelay/identity"
	"gitlab.com/project-nan/pubrelay/storage"
	"gitlab.com/project-nan/pubrelay/subscription"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// RunRelayServer run the notification relay server until runtimeContext ends
func RunRelayServer(
	runtimeContext context.Context,
	config common.SystemConfig,
	instance string,
	dataStore storage.KeyValueStore,
) error {
	logTags := log.Fields{
		"module":    "cmd",
		"component": "relay-server",
		"instance":  instance,
	}

	// -------------------------------------------------------------------
	// Define the core components

	identities, err := identity.DefineIdentityStore(
		dataStore, time.Second*time.Duration(config.Identity.TokenTTLInSec),
	)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define identity store")
		return err
	}
	policies, err := channel.DefinePolicyStore(dataStore)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define channel policy store")
		return err
	}
	subscriptions, err := subscription.DefineIndex(dataStore)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define subscription index")
		return err
	}
	notifications, err := history.DefineLog(
		dataStore, config.History.MaxPerChannel, config.History.DefaultReadLimit,
	)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define history log")
		return err
	}
	registry := dataplane.DefineConnectionRegistry(subscriptions)
	engine := dataplane.DefineBroadcastEngine(policies, subscriptions, registry)

	// Readiness is the data store answering a probe round trip
	readyCheck := func(ctxt context.Context) error {
		probe := fmt.Sprintf("readiness-probe/%s", uuid.New().String())
		var result string
		err := dataStore.Get(probe, &result, ctxt)
		if err != nil && err != storage.ErrKeyNotFound {
			return err
		}
		return nil
	}

	// -------------------------------------------------------------------
	// Define the HTTP handlers

	managementHandler, err := apis.GetAPIRestManagementHandler(
		identities, policies, subscriptions, notifications, registry, engine, readyCheck,
	)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define management handler")
		return err
	}
	dataplaneHandler, err := apis.GetAPIRestDataplaneHandler(
		policies, subscriptions, notifications, engine,
	)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define dataplane handler")
		return err
	}
	websocketHandler, err := apis.GetAPIWebsocketHandler(
		runtimeContext, identities, registry, engine, config.Session,
	)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define websocket handler")
		return err
	}

	// -------------------------------------------------------------------
	// Start the HTTP server

	router := mux.NewRouter()
	mainRouter := apis.RegisterPathPrefix(
		router, config.Relay.Endpoints.PathPrefix, nil,
	)

	// Client identity routes
	clientAPIRouter := apis.RegisterPathPrefix(
		mainRouter, "/v1/client", map[string]http.HandlerFunc{
			"post": managementHandler.CreateClientHandler(),
		},
	)
	perClientAPIRouter := apis.RegisterPathPrefix(
		clientAPIRouter, "/{clientID}", map[string]http.HandlerFunc{
			"get":    managementHandler.GetClientHandler(),
			"delete": managementHandler.DeleteClientHandler(),
		},
	)
	_ = apis.RegisterPathPrefix(perClientAPIRouter, "/subscription", map[string]http.HandlerFunc{
		"get": managementHandler.GetClientSubscriptionsHandler(),
	})

	// Channel routes
	channelAPIRouter := apis.RegisterPathPrefix(
		mainRouter, "/v1/channel", map[string]http.HandlerFunc{
			"post": managementHandler.CreateChannelHandler(),
		},
	)
	perChannelAPIRouter := apis.RegisterPathPrefix(
		channelAPIRouter, "/{channelName}", map[string]http.HandlerFunc{
			"delete": managementHandler.DeleteChannelHandler(),
		},
	)
	_ = apis.RegisterPathPrefix(perChannelAPIRouter, "/access/{clientID}", map[string]http.HandlerFunc{
		"put":    managementHandler.GrantChannelAccessHandler(),
		"delete": managementHandler.RevokeChannelAccessHandler(),
	})
	_ = apis.RegisterPathPrefix(perChannelAPIRouter, "/message", map[string]http.HandlerFunc{
		"post": dataplaneHandler.PublishMessageHandler(),
		"get":  dataplaneHandler.GetMessagesHandler(),
	})
	subscriberAPIRouter := apis.RegisterPathPrefix(
		perChannelAPIRouter, "/subscriber", map[string]http.HandlerFunc{
			"get": dataplaneHandler.GetSubscribersHandler(),
		},
	)
	_ = apis.RegisterPathPrefix(subscriberAPIRouter, "/{clientID}", map[string]http.HandlerFunc{
		"get": dataplaneHandler.GetSubscriberHandler(),
	})

	// Live connection route
	_ = apis.RegisterPathPrefix(mainRouter, "/v1/connect", map[string]http.HandlerFunc{
		"get": websocketHandler.ConnectHandler(),
	})

	// Health check
	_ = apis.RegisterPathPrefix(mainRouter, "/alive", map[string]http.HandlerFunc{
		"get": managementHandler.AliveHandler(),
	})
	_ = apis.RegisterPathPrefix(mainRouter, "/ready", map[string]http.HandlerFunc{
		"get": managementHandler.ReadyHandler(),
	})

	// Add logging
	router.Use(func(next http.Handler) http.Handler {
		return handlers.CombinedLoggingHandler(managementHandler, next)
	})

	serverConfig := config.Relay.HTTPSetting.Server
	serverListen := fmt.Sprintf("%s:%d", serverConfig.ListenOn, serverConfig.Port)
	httpSrv := &http.Server{
		Addr:         serverListen,
		WriteTimeout: time.Second * time.Duration(serverConfig.WriteTimeout),
		ReadTimeout:  time.Second * time.Duration(serverConfig.ReadTimeout),
		Handler:      h2c.NewHandler(router, &http2.Server{}),
	}

	// Start the server
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("HTTP Server Failure")
		}
	}()

	log.WithFields(logTags).Infof("Started HTTP server on http://%s", serverListen)

	// ============================================================================

	<-runtimeContext.Done()

	// Stop the live connections before the HTTP server
	{
		ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
		defer cancel()
		if err := registry.Shutdown(ctx); err != nil {
			log.WithError(err).Error("Failure during connection shutdown")
		}
		if err := httpSrv.Shutdown(ctx); err != nil {
			log.WithError(err).Error("Failure during HTTP shutdown")
		}
	}

	return nil
}
