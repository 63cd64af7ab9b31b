// Copyright 2016 The go-ethereum Authors
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
	"container/list"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"
)

const (
	subscribeMethodSuffix   = "_subscribe"
	unsubscribeMethodSuffix = "_unsubscribe"
	unsubscribeTimeout      = 10 * time.Second

	// maxClientSubscriptionBuffer is the number of notifications buffered per
	// subscription before the subscription fails.
	maxClientSubscriptionBuffer = 20000
)

var (
	// ErrSubscriptionQueueOverflow is returned when the subscription channel was not
	// drained fast enough.
	ErrSubscriptionQueueOverflow = errors.New("subscription queue overflow")

	// ErrSubscriptionReset is returned when the provider switched to a new connection.
	// Server side subscriptions do not carry over and must be created again.
	ErrSubscriptionReset = errors.New("subscription lost on reconnect")

	errUnsubscribed    = errors.New("unsubscribed")
	errConnectionEnded = errors.New("connection ended")
)

// ClientSubscription is a subscription established through Provider.Subscribe.
// Notifications are decoded into the element type of the subscription channel.
type ClientSubscription struct {
	provider  *Provider
	etype     reflect.Type
	channel   reflect.Value
	namespace string

	dataID, endID, connectID ListenerID

	// Notifications arriving before the subscribe call returned are kept in early
	// until the subscription id is known.
	mu    sync.Mutex
	subid string
	early []*Message

	// The in channel receives notification values from the data listener.
	in chan json.RawMessage

	// The error channel receives the error from the forwarding loop.
	// It is closed by Unsubscribe.
	err     chan error
	errOnce sync.Once

	// Closing of the subscription is requested by sending on 'quit'. This is handled by
	// the forwarding loop, which closes 'forwardDone' when it has stopped sending to
	// sub.channel. Finally, 'unsubDone' is closed after unsubscribing on the server side.
	quit        chan error
	forwardDone chan struct{}
	unsubDone   chan struct{}
}

// Subscribe calls the "<namespace>_subscribe" method with the given arguments,
// registering a subscription. Notifications of the subscription are delivered on
// channel, which must be a writable channel whose element type matches the
// notification results.
//
// The subscription ends with ErrSubscriptionReset when the provider reconnects, and
// with a nil error when the connection is closed normally.
func (p *Provider) Subscribe(ctx context.Context, namespace string, channel interface{}, args ...interface{}) (*ClientSubscription, error) {
	// Check type of channel first.
	chanVal := reflect.ValueOf(channel)
	if chanVal.Kind() != reflect.Chan || chanVal.Type().ChanDir()&reflect.SendDir == 0 {
		panic(fmt.Sprintf("channel argument of Subscribe has type %T, need writable channel", channel))
	}
	if chanVal.IsNil() {
		panic("channel given to Subscribe must not be nil")
	}
	sub := newClientSubscription(p, namespace, chanVal)
	sub.dataID = p.On(EventData, sub.onData)
	sub.endID = p.On(EventEnd, sub.onEnd)
	sub.connectID = p.On(EventConnect, sub.onConnect)

	var subid string
	if err := p.Call(ctx, &subid, namespace+subscribeMethodSuffix, args...); err != nil {
		sub.removeListeners()
		return nil, err
	}
	if subid == "" {
		sub.removeListeners()
		return nil, fmt.Errorf("%s%s returned no subscription id", namespace, subscribeMethodSuffix)
	}
	go sub.run()

	sub.mu.Lock()
	sub.subid = subid
	early := sub.early
	sub.early = nil
	for _, msg := range early {
		if id, result, err := msg.Subscription(); err == nil && id == subid {
			sub.deliver(result)
		}
	}
	sub.mu.Unlock()
	return sub, nil
}

func newClientSubscription(p *Provider, namespace string, channel reflect.Value) *ClientSubscription {
	return &ClientSubscription{
		provider:    p,
		namespace:   namespace,
		etype:       channel.Type().Elem(),
		channel:     channel,
		in:          make(chan json.RawMessage),
		quit:        make(chan error),
		forwardDone: make(chan struct{}),
		unsubDone:   make(chan struct{}),
		err:         make(chan error, 1),
	}
}

// ID returns the subscription id assigned by the server.
func (sub *ClientSubscription) ID() string {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	return sub.subid
}

// Err returns the subscription error channel. The intended use of Err is to schedule
// resubscription when the connection is replaced or closed unexpectedly.
//
// The error channel receives a value when the subscription has ended due to an error. The
// received error is nil if the connection was closed normally and no other error has
// occurred.
//
// The error channel is closed when Unsubscribe is called on the subscription.
func (sub *ClientSubscription) Err() <-chan error {
	return sub.err
}

// Unsubscribe unsubscribes the notification and closes the error channel.
// It can safely be called more than once. It must not be called from a provider
// event listener.
func (sub *ClientSubscription) Unsubscribe() {
	sub.errOnce.Do(func() {
		select {
		case sub.quit <- errUnsubscribed:
			<-sub.unsubDone
		case <-sub.unsubDone:
		}
		close(sub.err)
	})
}

func (sub *ClientSubscription) onData(ev Event) {
	id, result, err := ev.Message.Subscription()
	if err != nil {
		return
	}
	sub.mu.Lock()
	if sub.subid == "" {
		if len(sub.early) < maxClientSubscriptionBuffer {
			sub.early = append(sub.early, ev.Message)
		}
		sub.mu.Unlock()
		return
	}
	match := id == sub.subid
	sub.mu.Unlock()
	if match {
		sub.deliver(result)
	}
}

func (sub *ClientSubscription) onEnd(ev Event) {
	if sub.ID() == "" {
		return
	}
	if ev.Err != nil {
		sub.close(ev.Err)
	} else {
		sub.close(errConnectionEnded)
	}
}

func (sub *ClientSubscription) onConnect(Event) {
	if sub.ID() != "" {
		sub.close(ErrSubscriptionReset)
	}
}

// deliver is called by the data listener to send a notification value.
func (sub *ClientSubscription) deliver(result json.RawMessage) (ok bool) {
	select {
	case sub.in <- result:
		return true
	case <-sub.forwardDone:
		return false
	}
}

// close is called by the connection listeners when the subscription can no longer
// receive notifications.
func (sub *ClientSubscription) close(err error) {
	select {
	case sub.quit <- err:
	case <-sub.forwardDone:
	}
}

// run is the forwarding loop of the subscription. It runs in its own goroutine and
// is launched once the subscription has been created.
func (sub *ClientSubscription) run() {
	defer close(sub.unsubDone)

	unsubscribe, err := sub.forward()

	// Listeners blocked in deliver or close are released by closing forwardDone.
	close(sub.forwardDone)
	sub.removeListeners()

	if unsubscribe {
		sub.requestUnsubscribe()
	}
	if err != nil {
		if err == errConnectionEnded {
			err = nil
		}
		sub.err <- err
	}
}

// forward is the forwarding loop. It takes in notifications and sends them on the
// subscription channel.
func (sub *ClientSubscription) forward() (unsubscribeServer bool, err error) {
	cases := []reflect.SelectCase{
		{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(sub.quit)},
		{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(sub.in)},
		{Dir: reflect.SelectSend, Chan: sub.channel},
	}
	buffer := list.New()

	for {
		var chosen int
		var recv reflect.Value
		if buffer.Len() == 0 {
			// Idle, omit send case.
			chosen, recv, _ = reflect.Select(cases[:2])
		} else {
			// Non-empty buffer, send the first queued item.
			cases[2].Send = reflect.ValueOf(buffer.Front().Value)
			chosen, recv, _ = reflect.Select(cases)
		}

		switch chosen {
		case 0: // <-sub.quit
			if !recv.IsNil() {
				err = recv.Interface().(error)
			}
			if err == errUnsubscribed {
				// Exiting because Unsubscribe was called, unsubscribe on server.
				return true, nil
			}
			return false, err

		case 1: // <-sub.in
			val, err := sub.unmarshal(recv.Interface().(json.RawMessage))
			if err != nil {
				return true, err
			}
			if buffer.Len() == maxClientSubscriptionBuffer {
				return true, ErrSubscriptionQueueOverflow
			}
			buffer.PushBack(val)

		case 2: // sub.channel<-
			cases[2].Send = reflect.Value{} // Don't hold onto the value.
			buffer.Remove(buffer.Front())
		}
	}
}

func (sub *ClientSubscription) unmarshal(result json.RawMessage) (interface{}, error) {
	val := reflect.New(sub.etype)
	err := json.Unmarshal(result, val.Interface())
	return val.Elem().Interface(), err
}

func (sub *ClientSubscription) removeListeners() {
	sub.provider.RemoveListener(EventData, sub.dataID)
	sub.provider.RemoveListener(EventEnd, sub.endID)
	sub.provider.RemoveListener(EventConnect, sub.connectID)
}

func (sub *ClientSubscription) requestUnsubscribe() {
	if !sub.provider.Connected() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), unsubscribeTimeout)
	defer cancel()
	if err := sub.provider.Call(ctx, nil, sub.namespace+unsubscribeMethodSuffix, sub.ID()); err != nil {
		sub.provider.log.Debug("Unsubscribe failed", "namespace", sub.namespace, "id", sub.ID(), "err", err)
	}
}
