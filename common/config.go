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

import "github.com/spf13/viper"

// ===============================================================================
// Storage Related Config

// RedisConfig defines parameters for connecting to the Redis backing store
type RedisConfig struct {
	// Host is the Redis server host
	Host string `mapstructure:"host" json:"host" validate:"required"`
	// Port is the Redis server port
	Port uint16 `mapstructure:"port" json:"port" validate:"required,gt=0"`
	// Password is the Redis server password
	Password string `mapstructure:"password" json:"-"`
	// DB is the Redis DB index to operate against
	DB int `mapstructure:"db" json:"db" validate:"gte=0"`
}

// StorageConfig defines the backing key-value store parameters
type StorageConfig struct {
	// Driver selects the key-value store driver
	Driver string `mapstructure:"driver" json:"driver" validate:"required,oneof=redis in-memory"`
	// Redis are parameters for the redis driver
	Redis RedisConfig `mapstructure:"redis" json:"redis" validate:"required_if=Driver redis,omitempty,dive"`
	// CallTimeout is the per-call timeout against the store in seconds
	CallTimeout int `mapstructure:"call_timeout_sec" json:"call_timeout_sec" validate:"gte=1"`
}

// ===============================================================================
// Relay Core Related Config

// IdentityConfig defines client identity parameters
type IdentityConfig struct {
	// TokenTTLInSec is the sliding expiration window of a client identity in
	// seconds. Every successful validation extends the identity's life by
	// this amount.
	TokenTTLInSec int `mapstructure:"token_ttl_sec" json:"token_ttl_sec" validate:"required,gte=1"`
}

// HistoryConfig defines per-channel history log parameters
type HistoryConfig struct {
	// MaxPerChannel is the max number of notifications retained per channel
	MaxPerChannel int `mapstructure:"max_per_channel" json:"max_per_channel" validate:"required,gte=1"`
	// DefaultReadLimit is the number of entries a history read returns when
	// the caller gives no limit
	DefaultReadLimit int `mapstructure:"default_read_limit" json:"default_read_limit" validate:"required,gte=1"`
}

// SessionConfig defines live connection session parameters
type SessionConfig struct {
	// PingIntervalInSec is the interval between websocket pings in seconds
	PingIntervalInSec int `mapstructure:"ping_interval_sec" json:"ping_interval_sec" validate:"required,gte=1"`
	// PongWaitInSec is the max duration to wait for a pong in seconds
	PongWaitInSec int `mapstructure:"pong_wait_sec" json:"pong_wait_sec" validate:"required,gte=1"`
	// RevalidateIntervalInSec is the interval between periodic identity
	// re-validations of a connected session in seconds
	RevalidateIntervalInSec int `mapstructure:"revalidate_interval_sec" json:"revalidate_interval_sec" validate:"required,gte=1"`
	// WriteTimeoutInSec is the per-frame write timeout in seconds
	WriteTimeoutInSec int `mapstructure:"write_timeout_sec" json:"write_timeout_sec" validate:"required,gte=1"`
	// MaxMessageSize is the max inbound control frame size in bytes
	MaxMessageSize int `mapstructure:"max_message_size" json:"max_message_size" validate:"required,gte=256"`
}

// ===============================================================================
// HTTP Related Config

// HTTPServerConfig defines the HTTP server parameters
type HTTPServerConfig struct {
	// ListenOn is the interface the HTTP server will listen on
	ListenOn string `mapstructure:"listen_on" json:"listen_on" validate:"required,ip"`
	// Port is the port the HTTP server will listen on
	Port uint16 `mapstructure:"listen_port" json:"listen_port" validate:"required,gt=0"`
	// ReadTimeout is the maximum duration for reading the entire
	// request, including the body in seconds. A zero or negative
	// value means there will be no timeout.
	ReadTimeout int `mapstructure:"read_timeout_sec" json:"read_timeout_sec" validate:"gte=0"`
	// WriteTimeout is the maximum duration before timing out
	// writes of the response in seconds. A zero or negative value
	// means there will be no timeout.
	WriteTimeout int `mapstructure:"write_timeout_sec" json:"write_timeout_sec" validate:"gte=0"`
	// IdleTimeout is the maximum amount of time to wait for the
	// next request when keep-alives are enabled in seconds. If
	// IdleTimeout is zero, the value of ReadTimeout is used. If
	// both are zero, there is no timeout.
	IdleTimeout int `mapstructure:"idle_timeout_sec" json:"idle_timeout_sec" validate:"gte=0"`
}

// HTTPRequestLogging defines HTTP request logging parameters
type HTTPRequestLogging struct {
	// RequestIDHeader is the HTTP header containing the API request ID
	RequestIDHeader string `mapstructure:"request_id_header" json:"request_id_header"`
	// DoNotLogHeaders is the list of headers to not include in logging metadata
	DoNotLogHeaders []string `mapstructure:"do_not_log_headers" json:"do_not_log_headers"`
}

// HTTPConfig defines HTTP API / server parameters
type HTTPConfig struct {
	// Server defines HTTP server parameters
	Server HTTPServerConfig `mapstructure:"server_config" json:"server_config" validate:"required,dive"`
	// Logging defines operation logging parameters
	Logging HTTPRequestLogging `mapstructure:"logging_config" json:"logging_config" validate:"required,dive"`
}

// ===============================================================================
// Relay Server Related Config

// RelayEndpointConfig defines relay API endpoint config
type RelayEndpointConfig struct {
	// PathPrefix is the end-point path prefix for the relay APIs
	PathPrefix string `mapstructure:"path_prefix" json:"path_prefix" validate:"required"`
}

// RelayServerConfig defines configuration for the relay API server
type RelayServerConfig struct {
	// HTTPSetting is the HTTP API / server parameters for the relay API server
	HTTPSetting HTTPConfig `mapstructure:"api_server" json:"api_server" validate:"required,dive"`
	// Endpoints is the API endpoint config parameters for the relay API server
	Endpoints RelayEndpointConfig `mapstructure:"endpoint_config" json:"endpoint_config" validate:"required,dive"`
}

// ===============================================================================
// Complete Config

// SystemConfig defines the complete system config
type SystemConfig struct {
	// Storage are the backing key-value store config parameters
	Storage StorageConfig `mapstructure:"storage" json:"storage" validate:"required,dive"`
	// Identity are the client identity config parameters
	Identity IdentityConfig `mapstructure:"identity" json:"identity" validate:"required,dive"`
	// History are the per-channel history log config parameters
	History HistoryConfig `mapstructure:"history" json:"history" validate:"required,dive"`
	// Session are the live connection session config parameters
	Session SessionConfig `mapstructure:"session" json:"session" validate:"required,dive"`
	// Relay are the relay API server configs
	Relay RelayServerConfig `mapstructure:"relay" json:"relay" validate:"required,dive"`
}

// ===============================================================================

// InstallDefaultConfigValues installs default config parameters in viper
func InstallDefaultConfigValues() {
	// Default storage settings
	viper.SetDefault("storage.driver", "redis")
	viper.SetDefault("storage.redis.host", "127.0.0.1")
	viper.SetDefault("storage.redis.port", 6379)
	viper.SetDefault("storage.redis.db", 0)
	viper.SetDefault("storage.call_timeout_sec", 5)

	// Default identity settings: seven day sliding window
	viper.SetDefault("identity.token_ttl_sec", 604800)

	// Default history settings
	viper.SetDefault("history.max_per_channel", 1000)
	viper.SetDefault("history.default_read_limit", 10)

	// Default session settings
	viper.SetDefault("session.ping_interval_sec", 30)
	viper.SetDefault("session.pong_wait_sec", 10)
	viper.SetDefault("session.revalidate_interval_sec", 300)
	viper.SetDefault("session.write_timeout_sec", 5)
	viper.SetDefault("session.max_message_size", 65536)

	// Default relay server settings
	viper.SetDefault("relay.endpoint_config.path_prefix", "/")
	viper.SetDefault("relay.api_server.server_config.listen_on", "0.0.0.0")
	viper.SetDefault("relay.api_server.server_config.listen_port", 3000)
	viper.SetDefault("relay.api_server.server_config.read_timeout_sec", 60)
	viper.SetDefault("relay.api_server.server_config.write_timeout_sec", 60)
	viper.SetDefault("relay.api_server.server_config.idle_timeout_sec", 600)
	viper.SetDefault(
		"relay.api_server.logging_config.request_id_header", "Pubrelay-Request-ID",
	)
	viper.SetDefault(
		"relay.api_server.logging_config.do_not_log_headers", []string{
			"WWW-Authenticate", "Authorization", "Proxy-Authenticate", "Proxy-Authorization",
		},
	)
}
