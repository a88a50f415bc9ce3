package utils

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/yourusername/freelance-billing/billing"
)

// QueuePublisher publishes a message body to a named queue.
type QueuePublisher interface {
	Publish(ctx context.Context, queue string, body []byte) error
}

// RabbitMQClient holds one connection and one channel.
type RabbitMQClient struct {
	conn *amqp.Connection
	chn  *amqp.Channel
}

func NewRabbitMQClient(url string) (*RabbitMQClient, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}
	chn, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	return &RabbitMQClient{conn: conn, chn: chn}, nil
}

// DeclareQueue makes sure a durable queue exists.
func (r *RabbitMQClient) DeclareQueue(name string) error {
	_, err := r.chn.QueueDeclare(name, true, false, false, false, nil)
	return err
}

func (r *RabbitMQClient) Publish(ctx context.Context, queue string, body []byte) error {
	return r.chn.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
}

func (r *RabbitMQClient) Close() error {
	if err := r.chn.Close(); err != nil {
		return err
	}
	return r.conn.Close()
}

// EmailJob is the message consumed by the mail worker. Attachment is
// base64 encoded by encoding/json.
type EmailJob struct {
	ID             string    `json:"id"`
	From           string    `json:"from"`
	To             string    `json:"to"`
	ReplyTo        string    `json:"reply_to,omitempty"`
	Subject        string    `json:"subject"`
	Body           string    `json:"body"`
	Attachment     []byte    `json:"attachment,omitempty"`
	AttachmentName string    `json:"attachment_name,omitempty"`
	AttachmentType string    `json:"attachment_type,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// QueueNotifier hands notifications to the mail worker through a queue.
type QueueNotifier struct {
	publisher QueuePublisher
	queue     string
	from      string
}

func NewQueueNotifier(publisher QueuePublisher, queue, from string) *QueueNotifier {
	return &QueueNotifier{publisher: publisher, queue: queue, from: from}
}

func (n *QueueNotifier) Send(ctx context.Context, notification billing.Notification) error {
	if notification.To == "" {
		return fmt.Errorf("notification has no recipient")
	}
	job := EmailJob{
		ID:             uuid.NewString(),
		From:           n.from,
		To:             notification.To,
		ReplyTo:        notification.ReplyTo,
		Subject:        notification.Subject,
		Body:           notification.Body,
		Attachment:     notification.Attachment,
		AttachmentName: notification.AttachmentName,
		AttachmentType: notification.AttachmentType,
		CreatedAt:      time.Now().UTC(),
	}
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode email job: %w", err)
	}
	if err := n.publisher.Publish(ctx, n.queue, body); err != nil {
		return fmt.Errorf("failed to queue email: %w", err)
	}
	return nil
}
