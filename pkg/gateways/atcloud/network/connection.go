package network

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	exchangeTypeDirect = "direct"
	durable            = true
	deleteWhenUnused   = false
	exclusive          = false
	noWait             = false
	internal           = false
	autoAck            = true
	noLocal            = false
	consumerTag        = ""
)

// MessageOptions represents the message publishing options
type MessageOptions struct {
	Authorization string
	MessageID     string
	Headers       map[string]string
}

type connection interface {
	connect() error
	createChannel() error
	queueDeclare(name string) error
	exchangeDeclare(name, exchangeType string) error
	queueBind(queueName, key, exchangeName string) error
	consume(queue string) (<-chan amqp.Delivery, error)
	publish(ctx context.Context, exchange, key string, data interface{}, options *MessageOptions) error
	isClosed() bool
	close() error
	notifyClose(receiver chan *amqp.Error) chan *amqp.Error
}

type AmqpConnection struct {
	url     string
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   *amqp.Queue
}

func NewAmqpConnection(url string) *AmqpConnection {
	return &AmqpConnection{url: url}
}

func (a *AmqpConnection) connect() error {
	conn, err := amqp.Dial(a.url)
	if err == nil {
		a.conn = conn
	}
	return err
}

func (a *AmqpConnection) createChannel() error {
	channel, err := a.conn.Channel()
	if err == nil {
		a.channel = channel
	}
	return err
}

func (a *AmqpConnection) queueDeclare(name string) error {
	queue, err := a.channel.QueueDeclare(
		name,
		durable,
		deleteWhenUnused,
		exclusive,
		noWait,
		nil, // arguments
	)
	if err == nil {
		a.queue = &queue
	}
	return err
}

func (a *AmqpConnection) exchangeDeclare(name, exchangeType string) error {
	return a.channel.ExchangeDeclare(
		name,
		exchangeType,
		durable,
		deleteWhenUnused,
		internal,
		noWait,
		nil, // arguments
	)
}

func (a *AmqpConnection) queueBind(queueName, key, exchangeName string) error {
	return a.channel.QueueBind(queueName, key, exchangeName, noWait, nil)
}

func (a *AmqpConnection) consume(queue string) (<-chan amqp.Delivery, error) {
	return a.channel.Consume(queue, consumerTag, autoAck, exclusive, noLocal, noWait, nil)
}

func (a *AmqpConnection) publish(ctx context.Context, exchange, key string, data interface{}, options *MessageOptions) error {
	headers := amqp.Table{}
	var messageID string
	if options != nil {
		headers["Authorization"] = options.Authorization
		for name, value := range options.Headers {
			headers[name] = value
		}
		messageID = options.MessageID
	}

	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("error enconding JSON message: %w", err)
	}

	return a.channel.PublishWithContext(
		ctx,
		exchange,
		key,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			Headers:      headers,
			ContentType:  "application/json",
			DeliveryMode: amqp.Transient,
			MessageId:    messageID,
			Body:         body,
		},
	)
}

func (a *AmqpConnection) isClosed() bool {
	return a.conn == nil || a.conn.IsClosed()
}

func (a *AmqpConnection) close() error {
	if a.isClosed() {
		return nil
	}
	return a.conn.Close()
}

func (a *AmqpConnection) notifyClose(receiver chan *amqp.Error) chan *amqp.Error {
	return a.conn.NotifyClose(receiver)
}
