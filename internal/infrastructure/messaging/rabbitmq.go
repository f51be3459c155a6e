package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/sanosuguru/go-event-ticketing/internal/notification"
)

type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitMQPublisher は購入通知を永続キューへ送る
type RabbitMQPublisher struct {
	conn    *amqp.Connection
	channel amqpChannel
	queue   string
}

var _ notification.Publisher = (*RabbitMQPublisher)(nil)

// NewRabbitMQPublisher は接続してキューを宣言する
func NewRabbitMQPublisher(url, queue string) (*RabbitMQPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("RabbitMQへの接続に失敗: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("チャネルの作成に失敗: %w", err)
	}
	q, err := ch.QueueDeclare(
		queue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("キューの宣言に失敗: %w", err)
	}
	return &RabbitMQPublisher{conn: conn, channel: ch, queue: q.Name}, nil
}

func (p *RabbitMQPublisher) Publish(ctx context.Context, n notification.PurchaseNotification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("通知のエンコードに失敗: %w", err)
	}
	err = p.channel.PublishWithContext(ctx,
		"",      // exchange
		p.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			MessageId:    n.PurchaseReference,
			Type:         "ticket.purchased",
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("RabbitMQへの送信に失敗: %w", err)
	}
	return nil
}

func (p *RabbitMQPublisher) Close() error {
	var errs []error
	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("RabbitMQの切断に失敗: %v", errs)
	}
	return nil
}
