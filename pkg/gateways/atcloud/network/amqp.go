package network

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/google/uuid"
	"github.com/janael-pinheiro/atcloud-device-sdk-golang/pkg/entities"
	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

const (
	exchangeDevice     = "atcloud.device"
	queuePrefix        = "atcloud.device."
	queueSuffix        = ".commands"
	publishTimeout     = 5 * time.Second
	querySerialNumber  = "sn"
	reasonBrokerClosed = "broker closed connection"
)

// RoutingKey is "<event>.<serial number>", e.g. "dev-data.DEV001".
func RoutingKey(event, serialNumber string) string {
	return event + "." + serialNumber
}

func CommandQueue(serialNumber string) string {
	return queuePrefix + serialNumber + queueSuffix
}

// AMQP carries the device events over a broker: outbound events are
// published to a direct exchange, inbound events are consumed from a
// per-device queue bound with one routing key per subscribed event.
type AMQP struct {
	url           string
	reconnect     ReconnectPolicy
	newConnection func(url string) connection
	filter        *DuplicateFilter
	log           *logrus.Entry

	mu       sync.Mutex
	handlers map[string]Handler
	conn     connection
	options  ConnectOptions
	cancel   context.CancelFunc
	closing  bool
}

func NewAMQP(url string, reconnect ReconnectPolicy, filter *DuplicateFilter, log *logrus.Entry) *AMQP {
	return &AMQP{
		url:           url,
		reconnect:     reconnect,
		newConnection: func(url string) connection { return NewAmqpConnection(url) },
		filter:        filter,
		log:           log,
		handlers:      make(map[string]Handler),
	}
}

func (a *AMQP) Subscribe(event string, handler Handler) {
	a.mu.Lock()
	a.handlers[event] = handler
	a.mu.Unlock()
}

func (a *AMQP) Open(ctx context.Context, options ConnectOptions, lifecycle Lifecycle) error {
	if options.Query[querySerialNumber] == "" {
		return errors.Wrap(entities.ErrTransport, "serial number missing from connect metadata")
	}
	a.mu.Lock()
	if a.cancel != nil {
		a.mu.Unlock()
		return errors.Wrap(entities.ErrTransport, "amqp transport already open")
	}
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.closing = false
	a.options = options
	a.mu.Unlock()

	go a.run(runCtx, lifecycle)
	return nil
}

func (a *AMQP) run(ctx context.Context, lifecycle Lifecycle) {
	for {
		var conn connection
		var closed chan *amqp.Error
		setup := func() error {
			var err error
			conn, closed, err = a.setup()
			return err
		}
		notify := func(err error, next time.Duration) {
			a.log.Warnf("Cannot connect to broker, retrying in %s: %v", next, err)
			lifecycle.connectError(err)
		}

		if err := backoff.RetryNotify(setup, a.reconnect.backOff(ctx), notify); err != nil {
			if ctx.Err() == nil {
				lifecycle.connectError(errors.Wrapf(entities.ErrTransport, "giving up connecting: %v", err))
			}
			return
		}

		a.mu.Lock()
		a.conn = conn
		a.mu.Unlock()
		a.log.Info("Broker connected")
		lifecycle.connected()

		reason := reasonClientDisconnect
		select {
		case amqpErr, ok := <-closed:
			if ok && amqpErr != nil {
				reason = reasonBrokerClosed + ": " + amqpErr.Reason
			} else if !a.isClosing() {
				reason = reasonBrokerClosed
			}
		case <-ctx.Done():
		}

		a.mu.Lock()
		a.conn = nil
		a.mu.Unlock()
		_ = conn.close()
		lifecycle.disconnected(reason)

		if a.isClosing() || ctx.Err() != nil || !a.reconnect.Enabled {
			return
		}
		lifecycle.reconnecting()
	}
}

func (a *AMQP) setup() (connection, chan *amqp.Error, error) {
	a.mu.Lock()
	serialNumber := a.options.Query[querySerialNumber]
	events := make([]string, 0, len(a.handlers))
	for event := range a.handlers {
		events = append(events, event)
	}
	a.mu.Unlock()

	conn := a.newConnection(a.url)
	if err := conn.connect(); err != nil {
		return nil, nil, errors.Wrap(err, "dial broker")
	}
	fail := func(err error, step string) (connection, chan *amqp.Error, error) {
		_ = conn.close()
		return nil, nil, errors.Wrap(err, step)
	}
	if err := conn.createChannel(); err != nil {
		return fail(err, "open channel")
	}
	if err := conn.exchangeDeclare(exchangeDevice, exchangeTypeDirect); err != nil {
		return fail(err, "declare exchange")
	}
	queue := CommandQueue(serialNumber)
	if err := conn.queueDeclare(queue); err != nil {
		return fail(err, "declare queue")
	}
	for _, event := range events {
		if err := conn.queueBind(queue, RoutingKey(event, serialNumber), exchangeDevice); err != nil {
			return fail(err, "bind "+event)
		}
	}
	deliveries, err := conn.consume(queue)
	if err != nil {
		return fail(err, "consume")
	}
	closed := conn.notifyClose(make(chan *amqp.Error, 1))
	go a.dispatch(deliveries, serialNumber)
	return conn, closed, nil
}

func (a *AMQP) dispatch(deliveries <-chan amqp.Delivery, serialNumber string) {
	for delivery := range deliveries {
		event := strings.TrimSuffix(delivery.RoutingKey, "."+serialNumber)
		if delivery.MessageId != "" && a.filter != nil && a.filter.Seen(delivery.MessageId) {
			a.log.Debugf("Dropping duplicate delivery %s on %s", delivery.MessageId, event)
			continue
		}
		a.mu.Lock()
		handler, ok := a.handlers[event]
		a.mu.Unlock()
		if !ok {
			a.log.Debugf("No handler for routing key %s", delivery.RoutingKey)
			continue
		}
		handler(delivery.Body)
	}
}

func (a *AMQP) isClosing() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closing
}

func (a *AMQP) Emit(event string, payload interface{}) error {
	a.mu.Lock()
	conn := a.conn
	options := a.options
	a.mu.Unlock()
	if conn == nil {
		return entities.ErrNotConnected
	}

	messageOptions := MessageOptions{
		Authorization: options.Token,
		MessageID:     uuid.NewString(),
		Headers:       options.Query,
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	err := conn.publish(ctx, exchangeDevice, RoutingKey(event, options.Query[querySerialNumber]), payload, &messageOptions)
	return errors.Wrapf(err, "publish %s", event)
}

func (a *AMQP) Close() error {
	a.mu.Lock()
	a.closing = true
	cancel := a.cancel
	a.cancel = nil
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}
