// Copyright 2022 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

package rpc

import (
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common/mclock"
	"github.com/gorilla/websocket"
)

const defaultSyncInterval = 60 * time.Second

// ProviderOption is a configuration option for the Provider.
type ProviderOption interface {
	applyOption(*providerConfig)
}

type providerConfig struct {
	headers  http.Header
	protocol string

	// WebSocket options
	wsDialer           *websocket.Dialer
	wsMessageSizeLimit *int64 // nil = default, 0 = no limit

	timeout      time.Duration // per-request, zero means none
	tokenSource  TokenSource
	syncInterval time.Duration
	pushSuffix   string

	clock   mclock.Clock
	factory SocketFactory
}

func defaultProviderConfig() *providerConfig {
	return &providerConfig{
		headers:      make(http.Header),
		syncInterval: defaultSyncInterval,
		pushSuffix:   notificationMethodSuffix,
		clock:        mclock.System{},
	}
}

type optionFunc func(*providerConfig)

func (fn optionFunc) applyOption(opt *providerConfig) {
	fn(opt)
}

// WithHeader configures a HTTP header sent with the websocket handshake.
func WithHeader(key, value string) ProviderOption {
	return optionFunc(func(cfg *providerConfig) {
		cfg.headers.Set(key, value)
	})
}

// WithHeaders configures HTTP headers sent with the websocket handshake. They are
// merged with the basic authorization header derived from URL credentials.
func WithHeaders(headers http.Header) ProviderOption {
	return optionFunc(func(cfg *providerConfig) {
		for k, vs := range headers {
			cfg.headers[k] = vs
		}
	})
}

// WithProtocol configures the websocket sub-protocol requested during the handshake.
func WithProtocol(protocol string) ProviderOption {
	return optionFunc(func(cfg *providerConfig) {
		cfg.protocol = protocol
	})
}

// WithWebsocketDialer configures the websocket.Dialer used by the provider.
func WithWebsocketDialer(dialer websocket.Dialer) ProviderOption {
	return optionFunc(func(cfg *providerConfig) {
		cfg.wsDialer = &dialer
	})
}

// WithWebsocketMessageSizeLimit configures the websocket message size limit used by
// the provider. Passing a limit of 0 means no limit.
func WithWebsocketMessageSizeLimit(messageSizeLimit int64) ProviderOption {
	return optionFunc(func(cfg *providerConfig) {
		cfg.wsMessageSizeLimit = &messageSizeLimit
	})
}

// WithTimeout sets the per-request timeout. Requests without a response after this
// duration fail with a ConnectionTimeoutError. There is no timeout by default.
func WithTimeout(timeout time.Duration) ProviderOption {
	return optionFunc(func(cfg *providerConfig) {
		cfg.timeout = timeout
	})
}

// WithAccessToken enables bearer token authentication. The token source is called on
// Open, every sync interval, and before a send when the current token has expired.
func WithAccessToken(src TokenSource) ProviderOption {
	if src == nil {
		panic("nil token source")
	}
	return optionFunc(func(cfg *providerConfig) {
		cfg.tokenSource = src
	})
}

// WithSyncInterval changes how often the access token is refreshed (default 60s).
func WithSyncInterval(interval time.Duration) ProviderOption {
	return optionFunc(func(cfg *providerConfig) {
		if interval > 0 {
			cfg.syncInterval = interval
		}
	})
}

// WithSubscriptionSuffix changes the method suffix that marks a message without id as
// a subscription push (default "_subscription").
func WithSubscriptionSuffix(suffix string) ProviderOption {
	return optionFunc(func(cfg *providerConfig) {
		cfg.pushSuffix = suffix
	})
}

// WithClock replaces the clock used for all timers.
func WithClock(clock mclock.Clock) ProviderOption {
	return optionFunc(func(cfg *providerConfig) {
		cfg.clock = clock
	})
}

// WithSocketFactory replaces the websocket implementation.
func WithSocketFactory(factory SocketFactory) ProviderOption {
	return optionFunc(func(cfg *providerConfig) {
		cfg.factory = factory
	})
}
