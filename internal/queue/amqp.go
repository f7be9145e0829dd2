package queue

import (
	"fmt"
	"sync"

	"github.com/streadway/amqp"

	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/pkg/logger"
)

// Channel is the subset of *amqp.Channel the queue uses.
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	Qos(prefetchCount, prefetchSize int, global bool) error
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Close() error
}

// AMQPQueue publishes to and consumes from durable RabbitMQ queues, one per
// topic. A failed delivery is requeued once; a failure on redelivery is
// acknowledged and raised as an alert.
type AMQPQueue struct {
	conn     *amqp.Connection
	ch       Channel
	mu       sync.Mutex
	declared map[string]bool
	prefetch int
	wg       sync.WaitGroup
}

func Dial(url string, prefetch int) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	q := NewAMQPQueue(ch, prefetch)
	q.conn = conn
	return q, nil
}

func NewAMQPQueue(ch Channel, prefetch int) *AMQPQueue {
	return &AMQPQueue{ch: ch, declared: make(map[string]bool), prefetch: prefetch}
}

func (q *AMQPQueue) declare(topic string) error {
	if q.declared[topic] {
		return nil
	}
	if _, err := q.ch.QueueDeclare(
		topic,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("declare queue %s: %w", topic, err)
	}
	q.declared[topic] = true
	return nil
}

func (q *AMQPQueue) Publish(topic string, payload any) error {
	body, err := encode(payload)
	if err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.declare(topic); err != nil {
		return err
	}
	err = q.ch.Publish("", topic, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// Subscribe starts consuming topic in the background.
func (q *AMQPQueue) Subscribe(topic string, handler Handler) error {
	q.mu.Lock()
	if err := q.declare(topic); err != nil {
		q.mu.Unlock()
		return err
	}
	if q.prefetch > 0 {
		if err := q.ch.Qos(q.prefetch, 0, false); err != nil {
			q.mu.Unlock()
			return fmt.Errorf("set prefetch: %w", err)
		}
	}
	msgs, err := q.ch.Consume(
		topic,
		"",
		false, // manual ack
		false,
		false,
		false,
		nil,
	)
	q.mu.Unlock()
	if err != nil {
		return fmt.Errorf("consume %s: %w", topic, err)
	}

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		Serve(topic, msgs, handler)
	}()
	return nil
}

// Serve handles deliveries until the channel closes.
func Serve(topic string, msgs <-chan amqp.Delivery, handler Handler) {
	for d := range msgs {
		handleDelivery(topic, d, handler)
	}
}

func handleDelivery(topic string, d amqp.Delivery, handler Handler) {
	err := handler(d.Body)
	if err == nil {
		if ackErr := d.Ack(false); ackErr != nil {
			logger.Error("failed to ack delivery", "topic", topic, "error", ackErr)
		}
		return
	}
	if d.Redelivered {
		logger.Alert("delivery failed twice, dropping", "topic", topic, "error", err)
		if ackErr := d.Ack(false); ackErr != nil {
			logger.Error("failed to ack delivery", "topic", topic, "error", ackErr)
		}
		return
	}
	logger.Warn("delivery failed, requeueing", "topic", topic, "error", err)
	if nackErr := d.Nack(false, true); nackErr != nil {
		logger.Error("failed to nack delivery", "topic", topic, "error", nackErr)
	}
}

// Wait blocks until every consumer has stopped.
func (q *AMQPQueue) Wait() { q.wg.Wait() }

func (q *AMQPQueue) Close() error {
	err := q.ch.Close()
	if q.conn != nil {
		if cerr := q.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
