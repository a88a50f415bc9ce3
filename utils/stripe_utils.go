package utils

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"
	"github.com/yourusername/freelance-billing/billing"
	"github.com/yourusername/freelance-billing/models"
)

var ErrProviderDown = errors.New("payment provider unavailable")

// PaymentIntentCreator is the part of the stripe client the provider uses.
type PaymentIntentCreator interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

// StripeProvider implements billing.PaymentProvider on top of stripe-go.
type StripeProvider struct {
	intents       PaymentIntentCreator
	webhookSecret string
}

func NewStripeProvider(apiKey, webhookSecret string) *StripeProvider {
	sc := &client.API{}
	sc.Init(apiKey, nil)
	return NewStripeProviderWithClient(sc.PaymentIntents, webhookSecret)
}

func NewStripeProviderWithClient(intents PaymentIntentCreator, webhookSecret string) *StripeProvider {
	return &StripeProvider{intents: intents, webhookSecret: webhookSecret}
}

// ToMinorUnits converts an amount to cents.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

func (p *StripeProvider) CreatePaymentIntent(ctx context.Context, inv *models.Invoice) (*billing.ProviderIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:      stripe.Int64(ToMinorUnits(inv.TotalAmount)),
		Currency:    stripe.String(strings.ToLower(inv.Currency)),
		Description: stripe.String(fmt.Sprintf("Invoice %s", inv.Number)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.AddMetadata("invoice_id", strconv.FormatUint(uint64(inv.ID), 10))
	params.AddMetadata("invoice_number", inv.Number)
	params.AddMetadata("user_id", strconv.FormatUint(uint64(inv.UserID), 10))
	if inv.Client != nil && inv.Client.Email != "" {
		params.ReceiptEmail = stripe.String(inv.Client.Email)
	}

	pi, err := p.intents.New(params)
	if err != nil {
		return nil, mapStripeError(err)
	}
	return &billing.ProviderIntent{
		ProviderID:   pi.ID,
		Status:       string(pi.Status),
		ClientSecret: pi.ClientSecret,
	}, nil
}

// ParseWebhook verifies the Stripe-Signature header and normalizes payment
// intent events. Other event types yield a nil notification.
func (p *StripeProvider) ParseWebhook(payload []byte, signature string) (*billing.PaymentNotification, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, p.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("stripe signature invalid: %w", err)
	}

	var eventType string
	switch string(event.Type) {
	case "payment_intent.succeeded":
		eventType = billing.EventPaymentSucceeded
	case "payment_intent.payment_failed":
		eventType = billing.EventPaymentFailed
	default:
		return nil, nil
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, fmt.Errorf("failed to decode payment intent: %w", err)
	}
	return &billing.PaymentNotification{
		ExternalID: event.ID,
		Type:       eventType,
		Reference:  pi.ID,
		Payload:    payload,
	}, nil
}

func mapStripeError(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: %s", ErrProviderDown, stripeErr.Msg)
	}
	return fmt.Errorf("stripe: %w", err)
}
