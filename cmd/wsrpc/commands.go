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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/log"
	"github.com/sunyihoo/wsprovider/rpc"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

var (
	batchSizeFlag = &cli.IntFlag{
		Name:  "size",
		Usage: "Maximum number of requests per batch, larger sets are split and sent concurrently (0 = one batch)",
	}
	countFlag = &cli.IntFlag{
		Name:  "count",
		Usage: "Exit after receiving this many notifications (0 = run until interrupted)",
	}
)

var (
	callCommand = &cli.Command{
		Action:    runCall,
		Name:      "call",
		Usage:     "Perform a single JSON-RPC call and print the result",
		ArgsUsage: "<method> [params...]",
		Description: `
Performs a call and prints the JSON result. Each parameter that is valid JSON is
sent as is, anything else is sent as a string.

    wsrpc call eth_getBalance 0x0000000000000000000000000000000000000000 latest`,
	}
	batchCommand = &cli.Command{
		Action:    runBatch,
		Name:      "batch",
		Usage:     "Perform a batch of JSON-RPC calls and print the results",
		ArgsUsage: "<method[:params]> ...",
		Flags:     []cli.Flag{batchSizeFlag},
		Description: `
Every argument is one call. Parameters follow the method name after a colon, as a
JSON array.

    wsrpc batch eth_blockNumber 'eth_getBlockByNumber:["latest",false]'`,
	}
	subscribeCommand = &cli.Command{
		Action:    runSubscribe,
		Name:      "subscribe",
		Usage:     "Create a subscription and print its notifications",
		ArgsUsage: "<namespace> [params...]",
		Flags:     []cli.Flag{countFlag},
		Description: `
Calls <namespace>_subscribe and prints every notification of the new subscription
until interrupted.

    wsrpc subscribe eth newHeads`,
	}
)

// openProvider creates and connects the provider.
func openProvider(ctx *cli.Context) (*rpc.Provider, error) {
	p, err := makeProvider(ctx)
	if err != nil {
		return nil, err
	}
	p.On(rpc.EventError, func(ev rpc.Event) {
		log.Warn("Provider error", "err", ev.Err)
	})
	if err := p.Open(ctx.Context); err != nil {
		return nil, err
	}
	return p, nil
}

// parseParams converts command line arguments into call parameters.
func parseParams(args []string) []interface{} {
	params := make([]interface{}, len(args))
	for i, arg := range args {
		if json.Valid([]byte(arg)) {
			params[i] = json.RawMessage(arg)
		} else {
			params[i] = arg
		}
	}
	return params
}

// parseBatchElem parses a "method:[params]" argument.
func parseBatchElem(arg string) (rpc.BatchElem, error) {
	method, raw, _ := strings.Cut(arg, ":")
	if method == "" {
		return rpc.BatchElem{}, fmt.Errorf("missing method in %q", arg)
	}
	elem := rpc.BatchElem{Method: method, Result: new(json.RawMessage)}
	if raw == "" {
		return elem, nil
	}
	var params []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &params); err != nil {
		return elem, fmt.Errorf("invalid params for %s: %v", method, err)
	}
	for _, p := range params {
		elem.Args = append(elem.Args, p)
	}
	return elem, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runCall(ctx *cli.Context) error {
	if ctx.NArg() < 1 {
		return errors.New("usage: " + ctx.Command.ArgsUsage)
	}
	p, err := openProvider(ctx)
	if err != nil {
		return err
	}
	defer p.Disconnect()

	var result json.RawMessage
	if err := p.Call(ctx.Context, &result, ctx.Args().First(), parseParams(ctx.Args().Tail())...); err != nil {
		return err
	}
	return printJSON(ctx.App.Writer, result)
}

// splitBatch cuts elems into batches of at most size elements.
func splitBatch(elems []rpc.BatchElem, size int) [][]rpc.BatchElem {
	if size <= 0 || size >= len(elems) {
		return [][]rpc.BatchElem{elems}
	}
	var batches [][]rpc.BatchElem
	for len(elems) > size {
		batches = append(batches, elems[:size:size])
		elems = elems[size:]
	}
	return append(batches, elems)
}

type batchOutput struct {
	Method string          `json:"method"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

func runBatch(ctx *cli.Context) error {
	if ctx.NArg() < 1 {
		return errors.New("usage: " + ctx.Command.ArgsUsage)
	}
	elems := make([]rpc.BatchElem, ctx.NArg())
	for i, arg := range ctx.Args().Slice() {
		elem, err := parseBatchElem(arg)
		if err != nil {
			return err
		}
		elems[i] = elem
	}
	p, err := openProvider(ctx)
	if err != nil {
		return err
	}
	defer p.Disconnect()

	g, gctx := errgroup.WithContext(ctx.Context)
	for _, batch := range splitBatch(elems, ctx.Int(batchSizeFlag.Name)) {
		batch := batch
		g.Go(func() error {
			return p.BatchCall(gctx, batch)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	out := make([]batchOutput, len(elems))
	for i, elem := range elems {
		out[i].Method = elem.Method
		if elem.Error != nil {
			out[i].Error = elem.Error.Error()
		} else {
			out[i].Result = *elem.Result.(*json.RawMessage)
		}
	}
	return printJSON(ctx.App.Writer, out)
}

func runSubscribe(ctx *cli.Context) error {
	if ctx.NArg() < 1 {
		return errors.New("usage: " + ctx.Command.ArgsUsage)
	}
	namespace := ctx.Args().First()

	sigctx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := openProvider(ctx)
	if err != nil {
		return err
	}
	defer p.Disconnect()

	ch := make(chan json.RawMessage)
	sub, err := p.Subscribe(sigctx, namespace, ch, parseParams(ctx.Args().Tail())...)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()
	log.Info("Subscription created", "namespace", namespace, "id", sub.ID())

	count := ctx.Int(countFlag.Name)
	g, gctx := errgroup.WithContext(sigctx)
	g.Go(func() error {
		for received := 0; count == 0 || received < count; received++ {
			select {
			case result := <-ch:
				if err := printJSON(ctx.App.Writer, result); err != nil {
					return err
				}
			case err := <-sub.Err():
				if err == nil {
					err = rpc.ErrInvalidConnection
				}
				return fmt.Errorf("subscription ended: %w", err)
			case <-gctx.Done():
				return nil
			}
		}
		return nil
	})
	return g.Wait()
}
