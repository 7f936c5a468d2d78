package mocks

import (
	"context"
	"sync"

	"github.com/janael-pinheiro/atcloud-device-sdk-golang/pkg/gateways/atcloud/network"
	"github.com/stretchr/testify/mock"
)

// TransportMock records calls through testify and lets tests drive the
// lifecycle and inbound events a real transport would produce.
type TransportMock struct {
	mock.Mock

	mu        sync.Mutex
	handlers  map[string]network.Handler
	lifecycle network.Lifecycle
}

func NewTransportMock() *TransportMock {
	return &TransportMock{handlers: make(map[string]network.Handler)}
}

func (t *TransportMock) Open(ctx context.Context, options network.ConnectOptions, lifecycle network.Lifecycle) error {
	t.mu.Lock()
	t.lifecycle = lifecycle
	t.mu.Unlock()
	args := t.Called(options)
	return args.Error(0)
}

func (t *TransportMock) Emit(event string, payload interface{}) error {
	args := t.Called(event, payload)
	return args.Error(0)
}

func (t *TransportMock) Subscribe(event string, handler network.Handler) {
	t.mu.Lock()
	t.handlers[event] = handler
	t.mu.Unlock()
}

func (t *TransportMock) Close() error {
	args := t.Called()
	return args.Error(0)
}

func (t *TransportMock) Subscribed(event string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.handlers[event]
	return ok
}

func (t *TransportMock) currentLifecycle() network.Lifecycle {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lifecycle
}

func (t *TransportMock) TriggerConnect() {
	if l := t.currentLifecycle(); l.OnConnect != nil {
		l.OnConnect()
	}
}

func (t *TransportMock) TriggerDisconnect(reason string) {
	if l := t.currentLifecycle(); l.OnDisconnect != nil {
		l.OnDisconnect(reason)
	}
}

func (t *TransportMock) TriggerConnectError(err error) {
	if l := t.currentLifecycle(); l.OnConnectError != nil {
		l.OnConnectError(err)
	}
}

func (t *TransportMock) TriggerReconnecting() {
	if l := t.currentLifecycle(); l.OnReconnecting != nil {
		l.OnReconnecting()
	}
}

// Deliver hands payload to the handler subscribed for event, if any.
func (t *TransportMock) Deliver(event string, payload []byte) {
	t.mu.Lock()
	handler, ok := t.handlers[event]
	t.mu.Unlock()
	if ok {
		handler(payload)
	}
}
