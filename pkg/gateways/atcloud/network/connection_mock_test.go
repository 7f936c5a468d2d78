package network

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/mock"
)

type connectionMock struct {
	mock.Mock
}

func (m *connectionMock) connect() error {
	args := m.Called()
	return args.Error(0)
}

func (m *connectionMock) createChannel() error {
	args := m.Called()
	return args.Error(0)
}

func (m *connectionMock) queueDeclare(name string) error {
	args := m.Called(name)
	return args.Error(0)
}

func (m *connectionMock) exchangeDeclare(name, exchangeType string) error {
	args := m.Called(name, exchangeType)
	return args.Error(0)
}

func (m *connectionMock) queueBind(queueName, key, exchangeName string) error {
	args := m.Called(queueName, key, exchangeName)
	return args.Error(0)
}

func (m *connectionMock) consume(queue string) (<-chan amqp.Delivery, error) {
	args := m.Called(queue)
	deliveries, _ := args.Get(0).(<-chan amqp.Delivery)
	return deliveries, args.Error(1)
}

func (m *connectionMock) publish(ctx context.Context, exchange, key string, data interface{}, options *MessageOptions) error {
	args := m.Called(ctx, exchange, key, data, options)
	return args.Error(0)
}

func (m *connectionMock) isClosed() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *connectionMock) close() error {
	args := m.Called()
	return args.Error(0)
}

func (m *connectionMock) notifyClose(receiver chan *amqp.Error) chan *amqp.Error {
	args := m.Called(receiver)
	closed, _ := args.Get(0).(chan *amqp.Error)
	return closed
}
