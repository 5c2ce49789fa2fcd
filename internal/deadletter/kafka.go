package deadletter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	kgo "github.com/segmentio/kafka-go"
)

// MessageWriter is the part of *kafka.Writer the sink uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kgo.Message) error
	Close() error
}

// KafkaSink publishes every dead-lettered entry to a topic, keyed by decision ID.
type KafkaSink struct {
	writer  MessageWriter
	timeout time.Duration
}

func NewKafkaSink(brokersCSV, topic string) (*KafkaSink, error) {
	brokers := splitCSV(brokersCSV)
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}
	if strings.TrimSpace(topic) == "" {
		return nil, fmt.Errorf("kafka topic is required")
	}
	w := &kgo.Writer{
		Addr:         kgo.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kgo.LeastBytes{},
		RequiredAcks: kgo.RequireOne,
	}
	return NewKafkaSinkWithWriter(w), nil
}

func NewKafkaSinkWithWriter(w MessageWriter) *KafkaSink {
	return &KafkaSink{writer: w, timeout: 3 * time.Second}
}

func (k *KafkaSink) Add(ctx context.Context, e Entry) error {
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal dead-letter entry: %w", err)
	}

	cctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()

	if err := k.writer.WriteMessages(cctx, kgo.Message{
		Key:   []byte(e.DecisionID),
		Value: b,
		Time:  e.DeadLetteredAt,
	}); err != nil {
		return fmt.Errorf("kafka publish dead-letter: %w", err)
	}
	return nil
}

func (k *KafkaSink) Close() error {
	return k.writer.Close()
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
