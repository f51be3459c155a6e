package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/sanosuguru/go-event-ticketing/internal/notification"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher は購入通知を Kafka のトピックへ送る。
// キーに購入番号を使い、同じ購入の通知が同じパーティションに入るようにする。
type KafkaPublisher struct {
	writer messageWriter
}

var _ notification.Publisher = (*KafkaPublisher)(nil)

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			BatchTimeout:           10 * time.Millisecond,
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		},
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, n notification.PurchaseNotification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("通知のエンコードに失敗: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(n.PurchaseReference),
		Value: body,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "type", Value: []byte("ticket.purchased")},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("Kafkaへの送信に失敗: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
