package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Dzmitry-Rybak/natours/models"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v75"
	"github.com/stripe/stripe-go/v75/client"
	"github.com/stripe/stripe-go/v75/webhook"
)

var ErrPaymentsDisabled = errors.New("payments are not configured")

// CheckoutRequest describes the session to open for one tour.
type CheckoutRequest struct {
	Tour       *models.Tour
	User       *models.User
	SuccessURL string
	CancelURL  string
	ImageURL   string
}

// CheckoutCompleted is the payload of a paid checkout session.
type CheckoutCompleted struct {
	SessionID string  `json:"sessionId"`
	TourID    string  `json:"tourId"`
	Email     string  `json:"email"`
	Price     float64 `json:"price"`
}

type Payments interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*stripe.CheckoutSession, error)
	// ParseWebhook verifies the signature. It returns nil for events other
	// than a completed checkout.
	ParseWebhook(payload []byte, signature string) (*CheckoutCompleted, error)
}

type StripePayments struct {
	api           *client.API
	webhookSecret string
}

func NewStripePayments(secretKey, webhookSecret string) *StripePayments {
	return &StripePayments{api: client.New(secretKey, nil), webhookSecret: webhookSecret}
}

// ToCents converts a price in dollars to the integer amount Stripe expects.
func ToCents(price float64) int64 {
	return decimal.NewFromFloat(price).Shift(2).Round(0).IntPart()
}

// FromCents is the inverse of ToCents.
func FromCents(amount int64) float64 {
	return decimal.New(amount, -2).InexactFloat64()
}

func (p *StripePayments) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*stripe.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:         stripe.String(req.SuccessURL),
		CancelURL:          stripe.String(req.CancelURL),
		CustomerEmail:      stripe.String(req.User.Email),
		ClientReferenceID:  stripe.String(req.Tour.ID.Hex()),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(string(stripe.CurrencyUSD)),
				UnitAmount: stripe.Int64(ToCents(req.Tour.Price)),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name:        stripe.String(req.Tour.Name + " Tour"),
					Description: stripe.String(req.Tour.Summary),
					Images:      stripe.StringSlice([]string{req.ImageURL}),
				},
			},
		}},
	}
	params.Context = ctx

	s, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return s, nil
}

func (p *StripePayments) ParseWebhook(payload []byte, signature string) (*CheckoutCompleted, error) {
	return parseCheckoutWebhook(payload, signature, p.webhookSecret)
}

func parseCheckoutWebhook(payload []byte, signature, secret string) (*CheckoutCompleted, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("webhook error: %w", err)
	}
	if event.Type != "checkout.session.completed" {
		return nil, nil
	}
	var s stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &s); err != nil {
		return nil, fmt.Errorf("decode checkout session: %w", err)
	}
	email := s.CustomerEmail
	if email == "" && s.CustomerDetails != nil {
		email = s.CustomerDetails.Email
	}
	return &CheckoutCompleted{
		SessionID: s.ID,
		TourID:    s.ClientReferenceID,
		Email:     email,
		Price:     FromCents(s.AmountTotal),
	}, nil
}

// NoPayments is installed when no Stripe key is configured.
type NoPayments struct{}

func (NoPayments) CreateCheckoutSession(context.Context, CheckoutRequest) (*stripe.CheckoutSession, error) {
	return nil, ErrPaymentsDisabled
}

func (NoPayments) ParseWebhook([]byte, string) (*CheckoutCompleted, error) {
	return nil, ErrPaymentsDisabled
}
