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

// wsrpc is a command line client for websocket JSON-RPC endpoints.
package main

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics/exp"
	"github.com/sunyihoo/wsprovider/internal/debug"
	"github.com/sunyihoo/wsprovider/internal/flags"
	"github.com/urfave/cli/v2"
)

var (
	configFileFlag = &flags.PathFlag{
		Name:     "config",
		Usage:    "TOML configuration file",
		Category: flags.MiscCategory,
	}
	endpointFlag = &cli.StringFlag{
		Name:     "endpoint",
		Aliases:  []string{"url"},
		Usage:    "Websocket endpoint (ws:// or wss://, credentials in the URL are sent as basic auth)",
		Value:    defaultEndpoint,
		EnvVars:  []string{"WSRPC_ENDPOINT"},
		Category: flags.ConnectionCategory,
	}
	protocolFlag = &cli.StringFlag{
		Name:     "protocol",
		Usage:    "Websocket sub-protocol requested during the handshake",
		Category: flags.ConnectionCategory,
	}
	headerFlag = &cli.StringSliceFlag{
		Name:     "header",
		Aliases:  []string{"H"},
		Usage:    "Handshake header in 'Key: Value' form, may be repeated",
		Category: flags.ConnectionCategory,
	}
	timeoutFlag = &cli.DurationFlag{
		Name:     "timeout",
		Usage:    "Per-request timeout (0 = none)",
		Value:    30 * time.Second,
		Category: flags.ConnectionCategory,
	}
	suffixFlag = &cli.StringFlag{
		Name:     "subscription.suffix",
		Usage:    "Method suffix marking subscription notifications",
		Value:    "_subscription",
		Category: flags.ConnectionCategory,
	}
	messageSizeFlag = &cli.Int64Flag{
		Name:     "ws.maxmessage",
		Usage:    "Maximum size in bytes of a received websocket message (0 = no limit)",
		Category: flags.ConnectionCategory,
	}
	jwtSecretFlag = &flags.PathFlag{
		Name:     "jwtsecret",
		Usage:    "Path to a hex encoded 32 byte secret used to sign bearer tokens",
		Category: flags.AuthCategory,
	}
	jwtLifetimeFlag = &cli.DurationFlag{
		Name:     "jwt.lifetime",
		Usage:    "Lifetime of a signed bearer token (0 = no expiry claim)",
		Value:    2 * time.Minute,
		Category: flags.AuthCategory,
	}
	syncIntervalFlag = &cli.DurationFlag{
		Name:     "jwt.sync",
		Usage:    "Interval between bearer token refreshes",
		Value:    time.Minute,
		Category: flags.AuthCategory,
	}
	metricsEnabledFlag = &cli.BoolFlag{
		Name:     "metrics",
		Usage:    "Enable metrics collection and reporting",
		Category: flags.MetricsCategory,
	}
	metricsHTTPFlag = &cli.StringFlag{
		Name:     "metrics.addr",
		Usage:    "Enable stand-alone metrics HTTP server listening interface",
		Category: flags.MetricsCategory,
	}
	metricsPortFlag = &cli.IntFlag{
		Name:     "metrics.port",
		Usage:    "Metrics HTTP server listening port",
		Value:    6061,
		Category: flags.MetricsCategory,
	}
)

var providerFlags = []cli.Flag{
	configFileFlag,
	endpointFlag,
	protocolFlag,
	headerFlag,
	timeoutFlag,
	suffixFlag,
	messageSizeFlag,
	jwtSecretFlag,
	jwtLifetimeFlag,
	syncIntervalFlag,
}

var metricsFlags = []cli.Flag{
	metricsEnabledFlag,
	metricsHTTPFlag,
	metricsPortFlag,
}

var app = flags.NewApp("websocket JSON-RPC client")

func init() {
	app.Commands = []*cli.Command{
		callCommand,
		batchCommand,
		subscribeCommand,
	}
	app.Flags = append(app.Flags, providerFlags...)
	app.Flags = append(app.Flags, metricsFlags...)
	app.Flags = append(app.Flags, debug.Flags...)

	app.Before = func(ctx *cli.Context) error {
		if err := debug.Setup(ctx); err != nil {
			return err
		}
		startMetrics(ctx)
		return nil
	}
	app.After = func(ctx *cli.Context) error {
		debug.Exit()
		return nil
	}
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// startMetrics serves the provider metrics over HTTP. Collection itself is switched
// on by the metrics package when it sees --metrics on the command line.
func startMetrics(ctx *cli.Context) {
	if !ctx.Bool(metricsEnabledFlag.Name) || !ctx.IsSet(metricsHTTPFlag.Name) {
		return
	}
	address := net.JoinHostPort(ctx.String(metricsHTTPFlag.Name), fmt.Sprintf("%d", ctx.Int(metricsPortFlag.Name)))
	log.Info("Enabling stand-alone metrics HTTP endpoint", "address", address)
	exp.Setup(address)
}
