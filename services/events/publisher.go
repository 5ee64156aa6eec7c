package events

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"github.com/segmentio/kafka-go"

	"societypay/logger"
)

// Publisher emits payment lifecycle events to Kafka on a best-effort basis.
// A nil *Publisher is valid and publishes nothing, so callers without an
// event bus configured can skip the wiring entirely.
type Publisher struct {
	writer *kafka.Writer
	topic  string
	log    *logger.Logger
}

// NewPublisher creates a publisher for the given brokers and topic. Returns
// nil when no brokers are configured.
func NewPublisher(brokers []string, topic string) *Publisher {
	if len(brokers) == 0 {
		logger.Info("Kafka is disabled (no brokers configured)")
		return nil
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.LeastBytes{},
		Async:        false,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireAll,
	}

	logger.Info("Kafka producer initialized. Brokers=%v", brokers)

	return &Publisher{
		writer: writer,
		topic:  topic,
		log:    logger.NewDefault(),
	}
}

// Publish marshals value to JSON and publishes it with the given key, retrying
// up to 3 attempts with exponential backoff.
func (p *Publisher) Publish(key string, value interface{}) error {
	if p == nil || p.writer == nil {
		return nil
	}

	payload, err := json.Marshal(value)
	if err != nil {
		p.log.Error("Error marshaling Kafka message: %v", err)
		return err
	}

	msg := kafka.Message{
		Topic: p.topic,
		Key:   []byte(key),
		Value: payload,
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := p.writer.WriteMessages(ctx, msg)
		cancel()

		if err == nil {
			return nil
		}

		lastErr = err
		if attempt < 2 {
			backoff := time.Duration(math.Pow(2, float64(attempt))) * time.Second
			p.log.Warn("Kafka publish attempt %d/%d failed, retrying in %v: %v", attempt+1, 3, backoff, err)
			time.Sleep(backoff)
		} else {
			p.log.Error("Kafka publish failed after 3 attempts: %v", err)
		}
	}

	return lastErr
}

// Close gracefully closes the underlying writer.
func (p *Publisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
