package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/maneesh/videodrop/internal/models"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// KafkaPublisher announces stored uploads on a Kafka topic
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher creates a publisher for a comma-separated broker list
func NewKafkaPublisher(brokers, topic string) *KafkaPublisher {
	var addrs []string
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			addrs = append(addrs, b)
		}
	}

	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(addrs...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			WriteTimeout: 10 * time.Second,
			// One event per upload: flush each message instead of waiting
			// for a batch to fill.
			BatchSize:    1,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

// Close flushes pending messages and closes the writer
func (kp *KafkaPublisher) Close() error {
	return kp.writer.Close()
}

// PublishUpload writes one message keyed by the upload ID
func (kp *KafkaPublisher) PublishUpload(ctx context.Context, event models.UploadEvent) error {
	ctx, span := tracer.Start(ctx, "kafka.publish_upload",
		trace.WithAttributes(
			attribute.String("upload_id", event.ID),
			attribute.String("topic", kp.writer.Topic),
		),
	)
	defer span.End()

	value, err := json.Marshal(event)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = kp.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.ID),
		Value: value,
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to write message to Kafka: %w", err)
	}

	span.SetAttributes(attribute.Bool("publish_success", true))
	return nil
}
