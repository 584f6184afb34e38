package action

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"

	"riskscope/internal/model"
)

// kafkaEnvelope wraps a risk event for downstream consumers.
type kafkaEnvelope struct {
	Type string          `json:"type"`
	TS   int64           `json:"ts"`
	Data json.RawMessage `json:"data"`
}

// KafkaSink publishes every forwarded risk event to a topic, keyed by
// transaction digest so one transaction's events stay in partition order.
type KafkaSink struct {
	topic    string
	producer sarama.SyncProducer
}

// NewKafkaSink connects a synchronous producer.
func NewKafkaSink(brokers []string, topic string, cfg *sarama.Config) (*KafkaSink, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka topic is required")
	}
	if cfg == nil {
		cfg = sarama.NewConfig()
	}
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return &KafkaSink{topic: topic, producer: producer}, nil
}

func (s *KafkaSink) Name() string { return "kafka" }

// Handle publishes the enveloped event.
func (s *KafkaSink) Handle(_ context.Context, ev model.RiskEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal risk event: %w", err)
	}
	body, err := json.Marshal(kafkaEnvelope{
		Type: "risk_event",
		TS:   ev.TimestampMS,
		Data: data,
	})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: s.topic,
		Key:   sarama.StringEncoder(ev.TxDigest),
		Value: sarama.ByteEncoder(body),
	}
	if _, _, err := s.producer.SendMessage(msg); err != nil {
		return fmt.Errorf("kafka publish: %w", err)
	}
	return nil
}

// Close shuts the producer down.
func (s *KafkaSink) Close() error {
	return s.producer.Close()
}
