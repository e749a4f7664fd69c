package storage

import (
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
)

func TestNewKafkaPublisher_FlushesEachEvent(t *testing.T) {
	kp := NewKafkaPublisher("broker-a:9092", "video-uploads")
	defer kp.Close()

	assert.Equal(t, 1, kp.writer.BatchSize)
	assert.LessOrEqual(t, kp.writer.BatchTimeout, 10*time.Millisecond)
	assert.Equal(t, "video-uploads", kp.writer.Topic)
	assert.IsType(t, &kafka.Hash{}, kp.writer.Balancer)
}

func TestNewKafkaPublisher_SplitsBrokers(t *testing.T) {
	kp := NewKafkaPublisher(" broker-a:9092, ,broker-b:9092 ", "video-uploads")
	defer kp.Close()

	assert.Equal(t, "broker-a:9092,broker-b:9092", kp.writer.Addr.String())
}
