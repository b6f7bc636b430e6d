package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is the subset of *kafka.Writer the notifier needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier publishes notifications as JSON records keyed by account.
type KafkaNotifier struct {
	writer MessageWriter
}

// NewKafkaWriter builds a writer for topic on the given brokers.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           10 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
}

// NewKafkaNotifier wraps writer.
func NewKafkaNotifier(writer MessageWriter) *KafkaNotifier {
	return &KafkaNotifier{writer: writer}
}

// Send publishes message. Records for one account share a key so they stay
// ordered within a partition.
func (n *KafkaNotifier) Send(ctx context.Context, message Message) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	err = n.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(message.Destination),
		Value: data,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(message.Kind)},
		},
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", message.Kind, err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}
