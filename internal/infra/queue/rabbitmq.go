package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"community-feed/internal/domain"
	"community-feed/internal/infra/metrics"
)

// RabbitWarmQueue реализует очередь задач прогрева через AMQP.
type RabbitWarmQueue struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   string

	mu sync.Mutex
	// deliveries создаётся лениво: издатель не должен забирать сообщения.
	deliveries <-chan amqp.Delivery
}

var _ domain.WarmQueue = (*RabbitWarmQueue)(nil)

// NewRabbitWarmQueue подключается к RabbitMQ и объявляет очередь.
func NewRabbitWarmQueue(amqpURL, queue string) (*RabbitWarmQueue, error) {
	if amqpURL == "" {
		return nil, errors.New("amqp url is empty")
	}
	if queue == "" {
		return nil, errors.New("queue name is empty")
	}
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := channel.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	return &RabbitWarmQueue{conn: conn, channel: channel, queue: queue}, nil
}

func (q *RabbitWarmQueue) consumer() (<-chan amqp.Delivery, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.deliveries == nil {
		deliveries, err := q.channel.Consume(q.queue, "", true, false, false, false, nil)
		if err != nil {
			return nil, fmt.Errorf("start consumer: %w", err)
		}
		q.deliveries = deliveries
	}
	return q.deliveries, nil
}

// Enqueue публикует задачу в очередь.
func (q *RabbitWarmQueue) Enqueue(ctx context.Context, job domain.WarmJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	start := time.Now()
	err = q.channel.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         payload,
	})
	metrics.ObserveNetworkRequest("rabbitmq", "publish", q.queue, start, err)
	if err != nil {
		return fmt.Errorf("publish job: %w", err)
	}
	return nil
}

// Pop блокирующе читает задачу из очереди.
func (q *RabbitWarmQueue) Pop(ctx context.Context) (domain.WarmJob, error) {
	deliveries, err := q.consumer()
	if err != nil {
		return domain.WarmJob{}, err
	}
	select {
	case <-ctx.Done():
		return domain.WarmJob{}, ctx.Err()
	case delivery, ok := <-deliveries:
		if !ok {
			return domain.WarmJob{}, errors.New("rabbitmq queue: consumer closed")
		}
		var job domain.WarmJob
		if err := json.Unmarshal(delivery.Body, &job); err != nil {
			return domain.WarmJob{}, fmt.Errorf("decode job: %w", err)
		}
		return job, nil
	}
}

// Close закрывает канал и соединение.
func (q *RabbitWarmQueue) Close() error {
	if err := q.channel.Close(); err != nil {
		_ = q.conn.Close()
		return err
	}
	return q.conn.Close()
}
