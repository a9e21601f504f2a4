package notify

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Channel is the subset of *amqp.Channel used by the publisher and consumer.
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	IsClosed() bool
	Close() error
}

// Connection is the subset of *amqp.Connection used by the publisher.
type Connection interface {
	Channel() (Channel, error)
	IsClosed() bool
	Close() error
}

// Dialer opens a broker connection for the given URL.
type Dialer func(url string) (Connection, error)

type amqpConn struct{ *amqp.Connection }

func (c amqpConn) Channel() (Channel, error) {
	ch, err := c.Connection.Channel()
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// DialAMQP returns a Dialer backed by amqp091 with a bounded TCP connect timeout.
func DialAMQP(timeout time.Duration) Dialer {
	return func(url string) (Connection, error) {
		conn, err := amqp.DialConfig(url, amqp.Config{
			Dial:      amqp.DefaultDial(timeout),
			Heartbeat: 10 * time.Second,
			Properties: amqp.Table{
				"connection_name": "taskhub",
			},
		})
		if err != nil {
			return nil, err
		}
		return amqpConn{conn}, nil
	}
}
