package kafka

import (
	"context"
	"encoding/json"
	"log"

	"rewards-service/models"

	"github.com/segmentio/kafka-go"
)

// AuditEventProducer pushes audit telemetry (fraud signals, reconciliation
// faults) to Kafka. Strictly fire-and-forget: callers log and drop failures,
// nothing correctness-critical rides on this topic.
type AuditEventProducer struct {
	writer *kafka.Writer
	topic  string
}

func NewAuditEventProducer(brokers []string, topic string) *AuditEventProducer {
	w := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	}
	log.Printf("[RewardsService][KafkaProducer] initialized topic=%s brokers=%v", topic, brokers)
	return &AuditEventProducer{writer: w, topic: topic}
}

func (p *AuditEventProducer) Publish(event models.AuditEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(event.Kind),
		Value: data,
	}
	return p.writer.WriteMessages(context.Background(), msg)
}

func (p *AuditEventProducer) Close() {
	_ = p.writer.Close()
	log.Println("[RewardsService] Kafka producer closed")
}
