// Copyright 2020 The go-ethereum Authors
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
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/metrics"
)

var (
	requestCounter     = metrics.NewRegisteredCounter("rpc/ws/requests", nil)
	successCounter     = metrics.NewRegisteredCounter("rpc/ws/success", nil)
	failureCounter     = metrics.NewRegisteredCounter("rpc/ws/failure", nil)
	timeoutCounter     = metrics.NewRegisteredCounter("rpc/ws/timeouts", nil)
	rejectCounter      = metrics.NewRegisteredCounter("rpc/ws/rejected", nil)
	invalidatedCounter = metrics.NewRegisteredCounter("rpc/ws/invalidated", nil)
	reconnectCounter   = metrics.NewRegisteredCounter("rpc/ws/reconnects", nil)
	stallCounter       = metrics.NewRegisteredCounter("rpc/ws/dechunk/stalls", nil)
	authRefreshCounter = metrics.NewRegisteredCounter("rpc/ws/auth/refresh", nil)
	authFailureCounter = metrics.NewRegisteredCounter("rpc/ws/auth/failure", nil)

	notificationMeter = metrics.NewRegisteredMeter("rpc/ws/notifications", nil)

	// roundTripHistName is the prefix of the per-method round trip time histograms.
	roundTripHistName = "rpc/ws/duration"

	requestTimer = metrics.NewRegisteredTimer("rpc/ws/duration/all", nil)
)

// updateRoundTripHistogram tracks the time between sending a request and the
// resolution of its callback.
func updateRoundTripHistogram(method string, success bool, elapsed time.Duration) {
	if method == "" {
		method = "unknown"
	}
	note := "success"
	if !success {
		note = "failure"
	}
	h := fmt.Sprintf("%s/%s/%s", roundTripHistName, method, note)
	sampler := func() metrics.Sample {
		return metrics.ResettingSample(
			metrics.NewExpDecaySample(1028, 0.015),
		)
	}
	metrics.GetOrRegisterHistogramLazy(h, nil, sampler).Update(elapsed.Nanoseconds())
}
