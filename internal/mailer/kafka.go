package mailer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
)

// MailEvent is the payload the downstream mail worker consumes.
type MailEvent struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// KafkaMailer publishes mail events to a topic for asynchronous delivery by
// a separate mail worker.
type KafkaMailer struct {
	writer *kafka.Writer
}

func NewKafkaMailer(broker, topic string) *KafkaMailer {
	return &KafkaMailer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(broker),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			WriteTimeout: 10 * time.Second,
		},
	}
}

func (m *KafkaMailer) Send(ctx context.Context, to, subject, body string) error {
	value, err := json.Marshal(MailEvent{To: to, Subject: subject, Body: body})
	if err != nil {
		return err
	}

	return m.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(to),
		Value: value,
		Time:  time.Now(),
	})
}

func (m *KafkaMailer) Close() error {
	return m.writer.Close()
}
