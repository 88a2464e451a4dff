package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/Meugenn/knowledge-graph-sub001/internal/util"
	"github.com/Meugenn/knowledge-graph-sub001/pkg/logger"

	"github.com/rabbitmq/amqp091-go"
)

const (
	// IngestQueue carries papers to add to the graph.
	IngestQueue = "ingest_queue"
	// ArtifactExchange is the topic exchange artifacts are published on.
	ArtifactExchange = "artifacts"

	maxRetries   = 10
	retryDelayMs = 10000
)

// channel is the subset of *amqp091.Channel used for publishing.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
}

// Init dials RabbitMQ from the RABBITMQ_* environment, retrying while the
// broker is still starting.
func Init(ctx context.Context) (*amqp091.Connection, error) {
	user := util.GetEnvString("RABBITMQ_USER", "guest")
	pass := util.GetEnvString("RABBITMQ_PASSWORD", "guest")
	host := util.GetEnvString("RABBITMQ_HOST", "localhost")
	port := util.GetEnvString("RABBITMQ_PORT", "5672")

	connURL := fmt.Sprintf(
		"amqp://%s:%s@%s:%s/",
		user,
		pass,
		host,
		port,
	)

	conn, err := util.RetryWithContext(ctx, 5, time.Second, func(context.Context) (*amqp091.Connection, error) {
		conn, err := amqp091.Dial(connURL)
		if err != nil {
			logger.Warn("[Queue] Connecting to RabbitMQ failed", "host", host, "err", err)
		}
		return conn, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	return conn, nil
}

// SetupQueues declares the artifact exchange and, for every queue name, the
// queue itself, its dead-letter queue and a retry queue that dead-letters
// back into it after a delay.
func SetupQueues(ch *amqp091.Channel, queueNames []string) error {
	err := ch.ExchangeDeclare(
		ArtifactExchange,
		"topic",
		true,  // durable
		false, // autoDelete
		false, // internal
		false, // noWait
		nil,
	)
	if err != nil {
		return fmt.Errorf("ExchangeDeclare %s failed: %w", ArtifactExchange, err)
	}

	for _, name := range queueNames {
		_, err := ch.QueueDeclare(
			name,
			true,  // durable
			false, // autoDelete
			false, // exclusive
			false, // noWait
			nil,   // args
		)
		if err != nil {
			return fmt.Errorf("QueueDeclare %s failed: %w", name, err)
		}

		dlqName := name + "_dlq"
		_, err = ch.QueueDeclare(
			dlqName,
			true,
			false,
			false,
			false,
			nil,
		)
		if err != nil {
			return fmt.Errorf("QueueDeclare %s failed: %w", dlqName, err)
		}

		retryName := name + "_retry"
		_, err = ch.QueueDeclare(
			retryName,
			true,
			false,
			false,
			false,
			amqp091.Table{
				"x-message-ttl":             int32(retryDelayMs),
				"x-dead-letter-exchange":    "",
				"x-dead-letter-routing-key": name,
			},
		)
		if err != nil {
			return fmt.Errorf("QueueDeclare %s failed: %w", retryName, err)
		}
	}

	return nil
}

// PublishFIFO sends data to queueName through the default exchange.
func PublishFIFO(ctx context.Context, ch channel, queueName string, data []byte) error {
	return ch.PublishWithContext(
		ctx,
		"",
		queueName,
		false,
		false,
		amqp091.Publishing{
			ContentType:  "application/json",
			Body:         data,
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
		},
	)
}

// PublishTopic sends data to the artifact exchange under topic.
func PublishTopic(ctx context.Context, ch channel, topic string, data []byte) error {
	return ch.PublishWithContext(
		ctx,
		ArtifactExchange,
		topic,
		false,
		false,
		amqp091.Publishing{
			ContentType:  "application/json",
			Body:         data,
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
		},
	)
}
