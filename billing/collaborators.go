package billing

import (
	"context"

	"github.com/yourusername/freelance-billing/models"
)

// Document is an opaque rendered invoice artifact.
type Document struct {
	Content     []byte
	ContentType string
}

// DocumentRenderer turns an invoice (items and client loaded) into a document.
type DocumentRenderer interface {
	Render(ctx context.Context, inv *models.Invoice) (Document, error)
}

// Notification is one outbound message, optionally with an attachment.
type Notification struct {
	To             string
	ReplyTo        string
	Subject        string
	Body           string
	Attachment     []byte
	AttachmentName string
	AttachmentType string
}

type NotificationSender interface {
	Send(ctx context.Context, n Notification) error
}

// PaymentNotification is a provider webhook event that has already passed
// signature verification, normalized to provider-neutral terms.
type PaymentNotification struct {
	ExternalID string
	Type       string
	// Reference is the provider's payment intent id.
	Reference string
	Payload   []byte
}

// ProviderIntent is what the provider returns for a created payment intent.
type ProviderIntent struct {
	ProviderID   string
	Status       string
	ClientSecret string
}

// PaymentProvider wraps the payment provider SDK. Billing never sees SDK types.
type PaymentProvider interface {
	CreatePaymentIntent(ctx context.Context, inv *models.Invoice) (*ProviderIntent, error)
	// ParseWebhook verifies the signature and normalizes the event. A nil
	// notification with nil error means the event type is not relevant.
	ParseWebhook(payload []byte, signature string) (*PaymentNotification, error)
}

// EventPublisher receives invoice lifecycle events after commit.
type EventPublisher interface {
	Publish(ctx context.Context, key string, value interface{}) error
}

// Recorder receives operational counters.
type Recorder interface {
	InvoiceCreated(source string)
	Transition(action, result string)
	RecurringOutcome(kind, outcome string)
	PaymentEvent(eventType, result string)
}

type nopRecorder struct{}

func (nopRecorder) InvoiceCreated(string)           {}
func (nopRecorder) Transition(string, string)       {}
func (nopRecorder) RecurringOutcome(string, string) {}
func (nopRecorder) PaymentEvent(string, string)     {}
