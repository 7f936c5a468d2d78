package network

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/janael-pinheiro/atcloud-device-sdk-golang/pkg/entities"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	defaultSocketIOPath     = "/socket.io/"
	defaultHandshakeTimeout = 20 * time.Second
	defaultPingWindow       = 45 * time.Second

	reasonClientDisconnect = "io client disconnect"
	reasonServerDisconnect = "io server disconnect"
	reasonTransportClose   = "transport close"
	reasonTransportError   = "transport error"
	reasonPingTimeout      = "ping timeout"
)

type SocketIOOptions struct {
	URL              string
	Path             string
	Transports       []string
	Reconnect        ReconnectPolicy
	HandshakeTimeout time.Duration
}

// SocketIO speaks Socket.IO v5 over the Engine.IO v4 websocket transport.
// Polling is not implemented; websocket must appear in Transports.
type SocketIO struct {
	options  SocketIOOptions
	dialer   *websocket.Dialer
	log      *logrus.Entry
	handlers map[string]Handler

	mu      sync.Mutex
	conn    *websocket.Conn
	cancel  context.CancelFunc
	closing bool
}

func NewSocketIO(options SocketIOOptions, log *logrus.Entry) *SocketIO {
	if options.Path == "" {
		options.Path = defaultSocketIOPath
	}
	if options.HandshakeTimeout <= 0 {
		options.HandshakeTimeout = defaultHandshakeTimeout
	}
	return &SocketIO{
		options:  options,
		dialer:   &websocket.Dialer{HandshakeTimeout: options.HandshakeTimeout, Proxy: websocket.DefaultDialer.Proxy},
		log:      log,
		handlers: make(map[string]Handler),
	}
}

// Subscribe must be called before Open.
func (s *SocketIO) Subscribe(event string, handler Handler) {
	s.mu.Lock()
	s.handlers[event] = handler
	s.mu.Unlock()
}

func (s *SocketIO) Open(ctx context.Context, options ConnectOptions, lifecycle Lifecycle) error {
	if !s.supportsWebsocket() {
		return errors.Wrapf(entities.ErrTransport, "no supported transport in %v", s.options.Transports)
	}
	endpoint, err := s.endpoint(options.Query)
	if err != nil {
		return errors.Wrap(entities.ErrTransport, err.Error())
	}

	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return errors.Wrap(entities.ErrTransport, "socket already open")
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.closing = false
	s.mu.Unlock()

	go s.run(runCtx, endpoint, options, lifecycle)
	return nil
}

func (s *SocketIO) supportsWebsocket() bool {
	if len(s.options.Transports) == 0 {
		return true
	}
	for _, name := range s.options.Transports {
		if strings.EqualFold(name, "websocket") {
			return true
		}
	}
	return false
}

func (s *SocketIO) endpoint(query map[string]string) (string, error) {
	endpoint, err := url.Parse(s.options.URL)
	if err != nil {
		return "", errors.Wrapf(err, "parse server url %q", s.options.URL)
	}
	switch endpoint.Scheme {
	case "http":
		endpoint.Scheme = "ws"
	case "https":
		endpoint.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", errors.Errorf("unsupported server url scheme %q", endpoint.Scheme)
	}

	path := s.options.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if !strings.HasSuffix(path, "/") {
		path += "/"
	}
	endpoint.Path = path

	values := url.Values{}
	for key, value := range query {
		values.Set(key, value)
	}
	values.Set("EIO", "4")
	values.Set("transport", "websocket")
	endpoint.RawQuery = values.Encode()
	return endpoint.String(), nil
}

func (s *SocketIO) run(ctx context.Context, endpoint string, options ConnectOptions, lifecycle Lifecycle) {
	for {
		var conn *websocket.Conn
		var open openPacket
		connect := func() error {
			var err error
			conn, open, err = s.handshake(ctx, endpoint, options.Token)
			return err
		}
		notify := func(err error, next time.Duration) {
			s.log.Warnf("Connection error, retrying in %s: %v", next, err)
			lifecycle.connectError(err)
		}

		err := backoff.RetryNotify(connect, s.options.Reconnect.backOff(ctx), notify)
		if err != nil {
			if ctx.Err() == nil {
				lifecycle.connectError(errors.Wrapf(entities.ErrTransport, "giving up connecting: %v", err))
			}
			return
		}

		connectionID := uuid.NewString()
		s.log.WithFields(logrus.Fields{"sid": open.SID, "connection": connectionID}).Info("Socket connected")
		s.setConn(conn)
		lifecycle.connected()

		reason := s.readLoop(conn, open)
		s.setConn(nil)
		conn.Close()
		if s.isClosing() {
			reason = reasonClientDisconnect
		}
		s.log.WithField("connection", connectionID).Infof("Socket disconnected: %s", reason)
		lifecycle.disconnected(reason)

		if s.isClosing() || ctx.Err() != nil || !s.options.Reconnect.Enabled {
			return
		}
		s.log.Info("Reconnecting")
		lifecycle.reconnecting()
	}
}

func (s *SocketIO) handshake(ctx context.Context, endpoint, token string) (*websocket.Conn, openPacket, error) {
	var open openPacket
	conn, _, err := s.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, open, errors.Wrap(err, "dial")
	}
	fail := func(err error) (*websocket.Conn, openPacket, error) {
		conn.Close()
		return nil, open, err
	}

	if err := conn.SetReadDeadline(time.Now().Add(s.options.HandshakeTimeout)); err != nil {
		return fail(err)
	}
	_, frame, err := conn.ReadMessage()
	if err != nil {
		return fail(errors.Wrap(err, "read open packet"))
	}
	first, err := decodePacket(frame)
	if err != nil || first.engineType != engineOpen {
		return fail(errors.Errorf("expected open packet, got %q", string(frame)))
	}
	if err := json.Unmarshal(first.data, &open); err != nil {
		return fail(errors.Wrap(err, "decode open packet"))
	}

	connectFrame, err := encodeConnect(map[string]string{"token": token})
	if err != nil {
		return fail(err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, connectFrame); err != nil {
		return fail(errors.Wrap(err, "send connect"))
	}

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return fail(errors.Wrap(err, "await connect ack"))
		}
		p, err := decodePacket(frame)
		if err != nil {
			s.log.Debugf("Ignoring frame during handshake: %v", err)
			continue
		}
		switch {
		case p.engineType == enginePing:
			if err := conn.WriteMessage(websocket.TextMessage, encodePong()); err != nil {
				return fail(errors.Wrap(err, "send pong"))
			}
		case p.engineType == engineMessage && p.socketType == socketConnect:
			if err := conn.SetReadDeadline(time.Time{}); err != nil {
				return fail(err)
			}
			return conn, open, nil
		case p.engineType == engineMessage && p.socketType == socketConnectError:
			var rejection connectErrorPacket
			_ = json.Unmarshal(p.data, &rejection)
			conn.Close()
			return nil, open, backoff.Permanent(errors.Wrapf(entities.ErrTransport, "connection rejected: %s", rejection.Message))
		case p.engineType == engineClose:
			return fail(errors.New("closed during handshake"))
		}
	}
}

func (s *SocketIO) readLoop(conn *websocket.Conn, open openPacket) string {
	window := time.Duration(open.PingInterval+open.PingTimeout) * time.Millisecond
	if window <= 0 {
		window = defaultPingWindow
	}
	for {
		if err := conn.SetReadDeadline(time.Now().Add(window)); err != nil {
			return reasonTransportError
		}
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if netErr, ok := err.(interface{ Timeout() bool }); ok && netErr.Timeout() {
				return reasonPingTimeout
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return reasonTransportClose
			}
			return reasonTransportError
		}

		p, err := decodePacket(frame)
		if err != nil {
			s.log.Warnf("Dropping malformed frame: %v", err)
			continue
		}
		switch p.engineType {
		case enginePing:
			if err := s.write(encodePong()); err != nil {
				return reasonTransportError
			}
		case engineClose:
			return reasonTransportClose
		case engineMessage:
			switch p.socketType {
			case socketEvent:
				s.dispatch(p.event, p.data)
			case socketDisconnect:
				return reasonServerDisconnect
			}
		}
	}
}

func (s *SocketIO) dispatch(event string, data []byte) {
	s.mu.Lock()
	handler, ok := s.handlers[event]
	s.mu.Unlock()
	if !ok {
		s.log.Debugf("No handler for event %s", event)
		return
	}
	handler(data)
}

func (s *SocketIO) setConn(conn *websocket.Conn) {
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
}

func (s *SocketIO) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

func (s *SocketIO) write(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return entities.ErrNotConnected
	}
	return errors.Wrap(s.conn.WriteMessage(websocket.TextMessage, frame), "write frame")
}

func (s *SocketIO) Emit(event string, payload interface{}) error {
	frame, err := encodeEvent(event, payload)
	if err != nil {
		return err
	}
	return s.write(frame)
}

// Close sends a Socket.IO disconnect and stops reconnecting.
func (s *SocketIO) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closing = true
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.conn == nil {
		return nil
	}
	_ = s.conn.WriteMessage(websocket.TextMessage, encodeDisconnect())
	return s.conn.Close()
}
