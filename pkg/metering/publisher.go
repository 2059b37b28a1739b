package metering

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	"github.com/xhad/ragcore/internal/models"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes usage records to a Kafka topic, keyed by organization so
// one organization's records stay ordered within a partition.
type Publisher struct {
	writer messageWriter
	topic  string
	log    logrus.FieldLogger
}

func NewPublisher(brokers []string, topic string, log logrus.FieldLogger) *Publisher {
	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers:  brokers,
		Topic:    topic,
		Balancer: &kafka.Hash{},
	})
	return &Publisher{
		writer: writer,
		topic:  topic,
		log:    log,
	}
}

func (p *Publisher) Record(ctx context.Context, record models.UsageRecord) error {
	value, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal usage record: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(record.OrganizationID),
		Value: value,
	})
	if err != nil {
		p.log.WithError(err).WithField("topic", p.topic).Error("failed to write usage record")
		return fmt.Errorf("failed to publish usage record: %w", err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// LogRecorder only logs usage records. It stands in when no broker is
// configured.
type LogRecorder struct {
	log logrus.FieldLogger
}

func NewLogRecorder(log logrus.FieldLogger) *LogRecorder {
	return &LogRecorder{log: log}
}

func (l *LogRecorder) Record(ctx context.Context, record models.UsageRecord) error {
	l.log.WithFields(logrus.Fields{
		"user_id":         record.UserID,
		"organization_id": record.OrganizationID,
		"tokens_used":     record.TokensUsed,
		"cost":            record.Cost,
		"date":            record.Date,
	}).Info("usage recorded")
	return nil
}
