// Package producers holds the Kafka publishers the worker uses to announce
// import run outcomes to downstream consumers.
package producers

import (
	"context"

	"github.com/segmentio/kafka-go"
)

// KafkaWriter wraps kafka.Writer methods for testing
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}
