package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Meugenn/knowledge-graph-sub001/internal/util"
	"github.com/Meugenn/knowledge-graph-sub001/pkg/common"
	"github.com/Meugenn/knowledge-graph-sub001/pkg/logger"

	"github.com/rabbitmq/amqp091-go"
	"github.com/tidwall/gjson"
)

// ErrMalformed marks a message that can never be processed. It goes to the
// dead-letter queue without retries.
var ErrMalformed = errors.New("malformed message")

// Ingester adds a node to the graph and schedules it for processing.
type Ingester interface {
	Ingest(node common.Node) common.Node
}

// ParseIngest decodes an ingest message: a single node object or an array
// of nodes. Text fields are sanitised; nodes without a title are dropped.
func ParseIngest(body []byte) ([]common.Node, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: invalid JSON", ErrMalformed)
	}

	var nodes []common.Node
	switch res := gjson.ParseBytes(body); {
	case res.IsArray():
		if err := json.Unmarshal(body, &nodes); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	case res.IsObject():
		var node common.Node
		if err := json.Unmarshal(body, &node); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		nodes = []common.Node{node}
	default:
		return nil, fmt.Errorf("%w: expected a node or a list of nodes", ErrMalformed)
	}

	out := nodes[:0]
	for _, n := range nodes {
		n = SanitizeNode(n)
		if n.Title == "" {
			logger.Warn("[Queue] Dropping node without title", "id", n.ID)
			continue
		}
		out = append(out, n)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no node with a title", ErrMalformed)
	}
	return out, nil
}

// SanitizeNode cleans the free-text fields of n.
func SanitizeNode(n common.Node) common.Node {
	n.ID = util.SanitizeText(n.ID)
	n.Title = util.SanitizeText(n.Title)
	n.Abstract = util.SanitizeText(n.Abstract)
	n.URL = util.SanitizeText(n.URL)
	n.Fields = util.SanitizeList(n.Fields)
	n.Authors = util.SanitizeList(n.Authors)
	return n
}

// HandleIngest parses body and hands every node to ing. It returns the
// number of nodes ingested.
func HandleIngest(ing Ingester, body []byte) (int, error) {
	nodes, err := ParseIngest(body)
	if err != nil {
		return 0, err
	}
	for _, n := range nodes {
		stored := ing.Ingest(n)
		logger.Debug("[Queue] Ingested node", "id", stored.ID, "title", stored.Title)
	}
	return len(nodes), nil
}

func retryCount(headers amqp091.Table) int {
	switch v := headers["x-retries"].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	}
	return 0
}

// HandleProcessingError routes a failed message to queueName_retry with an
// incremented x-retries header, or to queueName_dlq once retries are used
// up or the failure is permanent. The original delivery is acknowledged
// after the republish and requeued when the republish fails.
func HandleProcessingError(ctx context.Context, ch channel, msg amqp091.Delivery, queueName string, cause error) {
	retries := retryCount(msg.Headers)

	if retries >= maxRetries || errors.Is(cause, ErrMalformed) {
		dlqName := queueName + "_dlq"
		logger.Info("[Queue] Sending message to DLQ", "dlq", dlqName, "retries", retries)
		pubErr := ch.PublishWithContext(
			ctx,
			"",
			dlqName,
			false,
			false,
			amqp091.Publishing{
				ContentType: msg.ContentType,
				Body:        msg.Body,
				Headers:     msg.Headers,
			},
		)
		if pubErr != nil {
			logger.Error("[Queue] Failed to publish to DLQ", "dlq", dlqName, "err", pubErr)
			_ = msg.Nack(false, true)
			return
		}
		_ = msg.Ack(false)
		return
	}

	retryName := queueName + "_retry"
	headers := amqp091.Table{}
	for k, v := range msg.Headers {
		headers[k] = v
	}
	headers["x-retries"] = int32(retries + 1)

	pubErr := ch.PublishWithContext(
		ctx,
		"",
		retryName,
		false,
		false,
		amqp091.Publishing{
			ContentType: msg.ContentType,
			Body:        msg.Body,
			Headers:     headers,
		},
	)
	if pubErr != nil {
		logger.Error("[Queue] Failed to publish to retry queue", "retry_queue", retryName, "err", pubErr)
		_ = msg.Nack(false, true)
		return
	}
	_ = msg.Ack(false)
}

// Consume delivers messages of queueName one at a time to handle until ctx
// ends or the channel closes. Successful messages are acknowledged; failed
// ones go through HandleProcessingError.
func Consume(ctx context.Context, ch *amqp091.Channel, queueName string, handle func(context.Context, []byte) error) error {
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := ch.Consume(
		queueName,
		queueName+"_consumer",
		false, // autoAck
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming %s: %w", queueName, err)
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("[Queue] Stopping consumer", "queue", queueName)
			return nil
		case msg, ok := <-msgs:
			if !ok {
				logger.Info("[Queue] Message channel closed", "queue", queueName)
				return nil
			}
			if err := handle(ctx, msg.Body); err != nil {
				logger.Error("[Queue] Error processing message", "queue", queueName, "err", err)
				HandleProcessingError(ctx, ch, msg, queueName, err)
				continue
			}
			if err := msg.Ack(false); err != nil {
				logger.Error("[Queue] Failed to ack message", "err", err)
			}
		}
	}
}
