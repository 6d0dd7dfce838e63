package producers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/marketsync-ledger/internal/config"
)

// RunEvent is the message published after every import run reaches a terminal
// status. Downstream consumers use it to trigger reporting refreshes without
// polling the task registry.
type RunEvent struct {
	TaskID     string `json:"task_id"`
	TaskCode   string `json:"task_code"`
	TaskType   string `json:"task_type"`
	SessionID  string `json:"session_id"`
	Status     string `json:"status"`
	Processed  int    `json:"processed"`
	Inserted   int    `json:"inserted"`
	Updated    int    `json:"updated"`
	ErrorCount int    `json:"error_count"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at"`
}

// RunEventProducer publishes run-outcome events. A nil producer is valid and
// publishes nothing, so callers never need to branch on whether publishing is
// configured.
type RunEventProducer struct {
	logger *slog.Logger
	writer KafkaWriter
	topic  string
}

// NewRunEventProducer creates a producer for the run-events topic.
// Returns nil producer if the topic is empty (publishing disabled).
func NewRunEventProducer(logger *slog.Logger, schedCfg *config.SchedulerConfig, kafkaCfg *config.KafkaConfig) (*RunEventProducer, error) {
	if schedCfg.RunEventsTopic == "" {
		logger.Info("Run events topic is not configured. RunEventProducer will not be initialized.")
		return nil, nil
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(schedCfg.KafkaBrokers),
		Topic:        schedCfg.RunEventsTopic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		WriteTimeout: kafkaCfg.WriteTimeout,
		BatchTimeout: kafkaCfg.BatchTimeout,
	}

	return &RunEventProducer{
		logger: logger,
		writer: writer,
		topic:  schedCfg.RunEventsTopic,
	}, nil
}

// Publish writes one run-outcome event keyed by task id. Safe to call on a nil
// producer.
func (p *RunEventProducer) Publish(ctx context.Context, event RunEvent) error {
	if p == nil || p.writer == nil {
		return nil
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal run event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.TaskID),
		Value: value,
		Time:  time.Now().UTC(),
		Headers: []kafka.Header{
			{Key: "task-type", Value: []byte(event.TaskType)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to publish run event",
			"topic", p.topic,
			"task_id", event.TaskID,
			"error", err,
		)
		return fmt.Errorf("failed to publish run event to %s: %w", p.topic, err)
	}

	p.logger.Debug("Published run event",
		"topic", p.topic,
		"task_id", event.TaskID,
		"status", event.Status,
	)
	return nil
}

// Close releases the underlying writer. Safe to call on a nil producer.
func (p *RunEventProducer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close run event kafka writer: %w", err)
	}
	return nil
}
