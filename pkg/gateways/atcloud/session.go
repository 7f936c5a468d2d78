package atcloud

import (
	"context"
	"sync"

	"github.com/janael-pinheiro/atcloud-device-sdk-golang/pkg/entities"
	"github.com/janael-pinheiro/atcloud-device-sdk-golang/pkg/gateways/atcloud/network"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Session owns the connection state and the transport handle. Lifecycle
// events are delivered through On like any other event: "connect" with a nil
// payload, "disconnect" with the reason and "connect_error" with the error
// text.
type Session struct {
	transport network.Transport
	log       *logrus.Entry

	mu       sync.Mutex
	state    entities.ConnectionState
	handlers map[string]network.Handler
}

func NewSession(transport network.Transport, log *logrus.Entry) *Session {
	return &Session{
		transport: transport,
		log:       log,
		state:     entities.Disconnected,
		handlers:  make(map[string]network.Handler),
	}
}

// ConnectMetadata is the query the platform uses to correlate the session.
func ConnectMetadata(identity entities.DeviceIdentity) map[string]string {
	return map[string]string{
		"sn":            identity.SerialNumber,
		"clientType":    entities.ClientType,
		"sensorIds":     identity.ChannelIDsJSON(),
		"clientVersion": entities.ClientVersion,
	}
}

// On registers handler for event. Handlers must be registered before Connect.
func (s *Session) On(event string, handler network.Handler) {
	switch event {
	case entities.EventConnect, entities.EventDisconnect, entities.EventConnectError:
		s.mu.Lock()
		s.handlers[event] = handler
		s.mu.Unlock()
	default:
		s.transport.Subscribe(event, handler)
	}
}

func (s *Session) State() entities.ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Connect(ctx context.Context, token string, metadata map[string]string) error {
	s.mu.Lock()
	if s.state != entities.Disconnected {
		state := s.state
		s.mu.Unlock()
		return errors.Wrapf(entities.ErrTransport, "connect while %s", state)
	}
	s.state = entities.Connecting
	s.mu.Unlock()

	lifecycle := network.Lifecycle{
		OnConnect:      s.onConnect,
		OnDisconnect:   s.onDisconnect,
		OnConnectError: s.onConnectError,
		OnReconnecting: s.onReconnecting,
	}
	if err := s.transport.Open(ctx, network.ConnectOptions{Token: token, Query: metadata}, lifecycle); err != nil {
		s.setState(entities.Disconnected)
		return err
	}
	s.log.Info("Connecting")
	return nil
}

// Emit sends immediately or not at all; nothing is queued while offline.
func (s *Session) Emit(event string, payload interface{}) error {
	if state := s.State(); state != entities.Connected {
		s.log.Warnf("Skipping %s while %s", event, state)
		return entities.ErrEmissionSkipped
	}
	err := s.transport.Emit(event, payload)
	if errors.Is(err, entities.ErrNotConnected) {
		s.log.Warnf("Skipping %s: transport dropped", event)
		return entities.ErrEmissionSkipped
	}
	if err != nil {
		return errors.Wrap(entities.ErrTransport, err.Error())
	}
	s.log.Debugf("Emitted %s: %v", event, payload)
	return nil
}

func (s *Session) Disconnect() error {
	s.setState(entities.Disconnected)
	return s.transport.Close()
}

func (s *Session) setState(state entities.ConnectionState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Session) fire(event string, payload []byte) {
	s.mu.Lock()
	handler, ok := s.handlers[event]
	s.mu.Unlock()
	if ok {
		handler(payload)
	}
}

func (s *Session) onConnect() {
	s.setState(entities.Connected)
	s.fire(entities.EventConnect, nil)
}

func (s *Session) onDisconnect(reason string) {
	s.setState(entities.Disconnected)
	s.fire(entities.EventDisconnect, []byte(reason))
}

func (s *Session) onReconnecting() {
	s.setState(entities.Connecting)
}

// A failed attempt does not leave Connecting; the transport keeps retrying.
func (s *Session) onConnectError(err error) {
	s.fire(entities.EventConnectError, []byte(err.Error()))
}
