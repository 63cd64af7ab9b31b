// Copyright 2026 The go-ethereum Authors
// This file is part of go-ethereum.
//
// go-ethereum is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// go-ethereum is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with go-ethereum. If not, see <http://www.gnu.org/licenses/>.

package main

import (
	"bufio"
	"errors"
	"fmt"
	"net/http"
	"os"
	"reflect"
	"strings"
	"time"
	"unicode"

	"github.com/naoina/toml"
	"github.com/sunyihoo/wsprovider/internal/flags"
	"github.com/sunyihoo/wsprovider/rpc"
	"github.com/urfave/cli/v2"
)

const defaultEndpoint = "ws://127.0.0.1:8546"

// These settings ensure that TOML keys use the same names as Go struct fields.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string {
		return key
	},
	FieldToKey: func(rt reflect.Type, field string) string {
		return field
	},
	MissingField: func(rt reflect.Type, field string) error {
		var link string
		if unicode.IsUpper(rune(rt.Name()[0])) && rt.PkgPath() != "main" {
			link = fmt.Sprintf(", see https://godoc.org/%s#%s for available fields", rt.PkgPath(), rt.Name())
		}
		return fmt.Errorf("field '%s' is not defined in %s%s", field, rt.String(), link)
	},
}

// wsrpcConfig is the provider configuration read from the config file. Durations
// are in milliseconds.
type wsrpcConfig struct {
	Endpoint           string
	Protocol           string            `toml:",omitempty"`
	Headers            map[string]string `toml:",omitempty"`
	Timeout            uint64
	SyncInterval       uint64
	SubscriptionSuffix string
	MessageSizeLimit   int64  `toml:",omitempty"`
	JWTSecret          string `toml:",omitempty"`
	JWTLifetime        uint64
}

func defaultConfig() wsrpcConfig {
	return wsrpcConfig{
		Endpoint:           defaultEndpoint,
		Timeout:            uint64(timeoutFlag.Value / time.Millisecond),
		SyncInterval:       uint64(syncIntervalFlag.Value / time.Millisecond),
		SubscriptionSuffix: suffixFlag.Value,
		JWTLifetime:        uint64(jwtLifetimeFlag.Value / time.Millisecond),
	}
}

func loadConfig(file string, cfg *wsrpcConfig) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	err = tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(cfg)
	// Add file name to errors that have a line number.
	if _, ok := err.(*toml.LineError); ok {
		err = errors.New(file + ", " + err.Error())
	}
	return err
}

// makeConfig loads the config file, if any, and applies the command line flags on top.
func makeConfig(ctx *cli.Context) (wsrpcConfig, error) {
	cfg := defaultConfig()
	if file := flags.Path(ctx, configFileFlag.Name); file != "" {
		if err := loadConfig(file, &cfg); err != nil {
			return cfg, err
		}
	}
	if ctx.IsSet(endpointFlag.Name) {
		cfg.Endpoint = ctx.String(endpointFlag.Name)
	}
	if ctx.IsSet(protocolFlag.Name) {
		cfg.Protocol = ctx.String(protocolFlag.Name)
	}
	if ctx.IsSet(headerFlag.Name) {
		if cfg.Headers == nil {
			cfg.Headers = make(map[string]string)
		}
		for _, h := range ctx.StringSlice(headerFlag.Name) {
			key, value, ok := strings.Cut(h, ":")
			if !ok {
				return cfg, fmt.Errorf("invalid header %q, want 'Key: Value'", h)
			}
			cfg.Headers[strings.TrimSpace(key)] = strings.TrimSpace(value)
		}
	}
	if ctx.IsSet(timeoutFlag.Name) {
		cfg.Timeout = uint64(ctx.Duration(timeoutFlag.Name) / time.Millisecond)
	}
	if ctx.IsSet(syncIntervalFlag.Name) {
		cfg.SyncInterval = uint64(ctx.Duration(syncIntervalFlag.Name) / time.Millisecond)
	}
	if ctx.IsSet(suffixFlag.Name) {
		cfg.SubscriptionSuffix = ctx.String(suffixFlag.Name)
	}
	if ctx.IsSet(messageSizeFlag.Name) {
		cfg.MessageSizeLimit = ctx.Int64(messageSizeFlag.Name)
	}
	if ctx.IsSet(jwtSecretFlag.Name) {
		cfg.JWTSecret = flags.Path(ctx, jwtSecretFlag.Name)
	}
	if ctx.IsSet(jwtLifetimeFlag.Name) {
		cfg.JWTLifetime = uint64(ctx.Duration(jwtLifetimeFlag.Name) / time.Millisecond)
	}
	return cfg, nil
}

// options converts the configuration into provider options.
func (cfg *wsrpcConfig) options() ([]rpc.ProviderOption, error) {
	opts := []rpc.ProviderOption{
		rpc.WithTimeout(time.Duration(cfg.Timeout) * time.Millisecond),
		rpc.WithSyncInterval(time.Duration(cfg.SyncInterval) * time.Millisecond),
		rpc.WithSubscriptionSuffix(cfg.SubscriptionSuffix),
	}
	if cfg.Protocol != "" {
		opts = append(opts, rpc.WithProtocol(cfg.Protocol))
	}
	if len(cfg.Headers) > 0 {
		header := make(http.Header, len(cfg.Headers))
		for k, v := range cfg.Headers {
			header.Set(k, v)
		}
		opts = append(opts, rpc.WithHeaders(header))
	}
	if cfg.MessageSizeLimit != 0 {
		opts = append(opts, rpc.WithWebsocketMessageSizeLimit(cfg.MessageSizeLimit))
	}
	if cfg.JWTSecret != "" {
		secret, err := rpc.ReadJWTSecret(cfg.JWTSecret)
		if err != nil {
			return nil, err
		}
		lifetime := time.Duration(cfg.JWTLifetime) * time.Millisecond
		opts = append(opts, rpc.WithAccessToken(rpc.NewJWTTokenSource(secret, lifetime)))
	}
	return opts, nil
}

// makeProvider creates a provider from the config file and flags.
func makeProvider(ctx *cli.Context) (*rpc.Provider, error) {
	cfg, err := makeConfig(ctx)
	if err != nil {
		return nil, err
	}
	opts, err := cfg.options()
	if err != nil {
		return nil, err
	}
	return rpc.NewProvider(cfg.Endpoint, opts...)
}
