// Package broker is the durable queue abstraction over the message broker.
// It declares the task and result queues (plus a dead-letter queue for tasks
// that exhaust their retries), publishes persistent messages and hands out
// per-worker channels with a prefetch of one.
package broker

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Broker owns the connection. It does not reconnect on its own: connection
// loss is fatal and an external supervisor restarts the process.
type Broker struct {
	conn        *amqp.Connection
	taskQueue   string
	resultQueue string
}

// DeadLetterSuffix names the queue receiving tasks dropped after the retry
// cap.
const DeadLetterSuffix = ".dead"

// Connect dials the broker and declares the queues as durable so they
// survive a broker restart.
func Connect(url, taskQueue, resultQueue string) (*Broker, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open declare channel: %w", err)
	}
	defer ch.Close()

	deadQueue := taskQueue + DeadLetterSuffix
	if _, err := ch.QueueDeclare(deadQueue, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", deadQueue, err)
	}
	taskArgs := amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": deadQueue,
	}
	if _, err := ch.QueueDeclare(taskQueue, true, false, false, false, taskArgs); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", taskQueue, err)
	}
	if _, err := ch.QueueDeclare(resultQueue, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", resultQueue, err)
	}

	return &Broker{conn: conn, taskQueue: taskQueue, resultQueue: resultQueue}, nil
}

// NotifyClose relays the connection's close notification; receiving on it
// means the process should exit.
func (b *Broker) NotifyClose() <-chan *amqp.Error {
	return b.conn.NotifyClose(make(chan *amqp.Error, 1))
}

// Close tears the connection down.
func (b *Broker) Close() error {
	return b.conn.Close()
}

// Channel is an independent broker channel. Each worker holds its own so a
// slow handler stalls only that worker's single in-flight slot.
type Channel struct {
	ch          *amqp.Channel
	taskQueue   string
	resultQueue string
}

// Channel opens a channel with a prefetch of one unacknowledged message.
func (b *Broker) Channel() (*Channel, error) {
	ch, err := b.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("set prefetch: %w", err)
	}
	return &Channel{ch: ch, taskQueue: b.taskQueue, resultQueue: b.resultQueue}, nil
}

func (c *Channel) publish(ctx context.Context, queue string, body []byte) error {
	err := c.ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", queue, err)
	}
	return nil
}

// PublishTask publishes a persistent task envelope.
func (c *Channel) PublishTask(ctx context.Context, body []byte) error {
	return c.publish(ctx, c.taskQueue, body)
}

// PublishResult publishes a persistent result envelope.
func (c *Channel) PublishResult(ctx context.Context, body []byte) error {
	return c.publish(ctx, c.resultQueue, body)
}

// ConsumeTasks registers a manual-ack consumer on the task queue. The
// handler acknowledges on success and nacks (or leaves unacknowledged) to
// trigger redelivery.
func (c *Channel) ConsumeTasks(tag string) (<-chan amqp.Delivery, error) {
	deliveries, err := c.ch.Consume(c.taskQueue, tag, false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", c.taskQueue, err)
	}
	return deliveries, nil
}

// ConsumeResults registers a manual-ack consumer on the result queue.
func (c *Channel) ConsumeResults(tag string) (<-chan amqp.Delivery, error) {
	deliveries, err := c.ch.Consume(c.resultQueue, tag, false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", c.resultQueue, err)
	}
	return deliveries, nil
}

// Close closes the channel.
func (c *Channel) Close() error {
	return c.ch.Close()
}
