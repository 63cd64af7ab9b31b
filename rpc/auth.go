// Copyright 2026 The go-ethereum Authors
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
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/mclock"
	"github.com/ethereum/go-ethereum/log"
	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/sync/singleflight"
)

// authRetryDelay is the fixed wait after a failed token refresh.
const authRetryDelay = 10 * time.Second

// TokenSource returns a bearer token for the connection. It must be safe for
// concurrent use.
type TokenSource func(ctx context.Context) (string, error)

type authState int32

const (
	authIdle authState = iota
	authRefreshing
	authScheduled
	authBackoff
)

func (s authState) String() string {
	switch s {
	case authIdle:
		return "idle"
	case authRefreshing:
		return "refreshing"
	case authScheduled:
		return "scheduled"
	case authBackoff:
		return "backoff"
	default:
		return "unknown"
	}
}

// tokenExpiry returns the expiry of a JWT bearer token, read from its exp claim
// without verifying the signature. The zero time means the token has no expiry.
func tokenExpiry(token string) (time.Time, error) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, fmt.Errorf("malformed access token: %w", err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, nil
	}
	return claims.ExpiresAt.Time, nil
}

// authRefresher keeps the connection's bearer token fresh. It refreshes on start, on
// a fixed interval afterwards, and on demand when a send finds the token expired.
// A failed refresh is retried after authRetryDelay, forever.
type authRefresher struct {
	source   TokenSource
	interval time.Duration
	clock    mclock.Clock
	now      func() time.Time // wall clock, token expiry is absolute time
	install  func(token string)
	onError  func(err error)
	log      log.Logger
	group    singleflight.Group

	mu     sync.Mutex
	token  string
	expiry time.Time
	state  authState

	kick   chan time.Duration
	quit   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newAuthRefresher(source TokenSource, interval time.Duration, clock mclock.Clock, install func(string), onError func(error), logger log.Logger) *authRefresher {
	a := &authRefresher{
		source:   source,
		interval: interval,
		clock:    clock,
		now:      time.Now,
		install:  install,
		onError:  onError,
		log:      logger,
		kick:     make(chan time.Duration, 1),
		quit:     make(chan struct{}),
	}
	a.ctx, a.cancel = context.WithCancel(context.Background())
	return a
}

// start performs the initial refresh synchronously and launches the refresh loop.
func (a *authRefresher) start(ctx context.Context) {
	next := a.settle(a.refresh(ctx))
	a.wg.Add(1)
	go a.loop(next)
}

func (a *authRefresher) stop() {
	a.cancel()
	close(a.quit)
	a.wg.Wait()
}

// refresh runs one refresh cycle: fetch a token, remember its expiry, install it.
// Concurrent callers share a single call to the token source.
func (a *authRefresher) refresh(ctx context.Context) error {
	_, err, _ := a.group.Do("refresh", func() (interface{}, error) {
		a.setState(authRefreshing)
		token, err := a.source(ctx)
		if err != nil {
			authFailureCounter.Inc(1)
			return nil, &AuthRefreshError{Err: err}
		}
		expiry, err := tokenExpiry(token)
		if err != nil {
			a.log.Debug("Access token expiry unknown", "err", err)
		}
		a.mu.Lock()
		a.token, a.expiry = token, expiry
		a.mu.Unlock()

		authRefreshCounter.Inc(1)
		a.log.Debug("Access token refreshed", "expiry", expiry)
		a.install(token)
		return nil, nil
	})
	return err
}

// settle moves to the next state after a refresh and returns the delay until the
// next one.
func (a *authRefresher) settle(err error) time.Duration {
	if err != nil {
		a.setState(authBackoff)
		a.log.Warn("Access token refresh failed", "retry", authRetryDelay, "err", err)
		if a.onError != nil {
			a.onError(err)
		}
		return authRetryDelay
	}
	a.setState(authScheduled)
	return a.interval
}

func (a *authRefresher) loop(next time.Duration) {
	defer a.wg.Done()

	timer := a.clock.NewTimer(next)
	defer timer.Stop()
	for {
		select {
		case <-timer.C():
			err := a.refresh(a.ctx)
			if a.ctx.Err() != nil {
				return
			}
			timer.Reset(a.settle(err))

		case next = <-a.kick:
			if !timer.Stop() {
				select {
				case <-timer.C():
				default:
				}
			}
			timer.Reset(next)

		case <-a.quit:
			return
		}
	}
}

// expired reports whether the current token is past its expiry.
func (a *authRefresher) expired() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return !a.expiry.IsZero() && !a.now().Before(a.expiry)
}

// ensureFresh refreshes the token before a send if it has expired, then restarts
// the background schedule from the result.
func (a *authRefresher) ensureFresh(ctx context.Context) {
	if !a.expired() {
		return
	}
	a.group.Do("ensure", func() (interface{}, error) {
		// Another send may have refreshed while this one waited.
		if !a.expired() {
			return nil, nil
		}
		a.log.Debug("Access token expired, refreshing before send")
		// The refresh is shared, so it must not end with this caller's context.
		a.reschedule(a.settle(a.refresh(context.WithoutCancel(ctx))))
		return nil, nil
	})
}

// reschedule restarts the background loop's timer with the given delay.
func (a *authRefresher) reschedule(next time.Duration) {
	select {
	case <-a.kick:
	default:
	}
	select {
	case a.kick <- next:
	default:
	}
}

func (a *authRefresher) currentToken() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.token
}

func (a *authRefresher) setState(s authState) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}

func (a *authRefresher) currentState() authState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}
