// Package billing wraps the Stripe checkout flow behind the tier-upgrade
// path. Without a secret key it runs in demo mode: checkout URLs simulate
// success and upgrades skip payment verification.
package billing

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/webhook"
)

const premiumPriceCents = 1000 // $10.00

type Service struct {
	secretKey     string
	webhookSecret string
	domain        string
}

func NewService(secretKey, webhookSecret, domain string) *Service {
	if secretKey != "" && secretKey != "PLACEHOLDER" {
		stripe.Key = secretKey
	} else {
		secretKey = ""
	}
	return &Service{
		secretKey:     secretKey,
		webhookSecret: webhookSecret,
		domain:        domain,
	}
}

// Configured reports whether real payments are possible.
func (s *Service) Configured() bool {
	return s.secretKey != ""
}

// CreateCheckoutSession returns the URL the client should redirect to. In
// demo mode this is a success URL straight away.
func (s *Service) CreateCheckoutSession(userID string) (string, error) {
	if !s.Configured() {
		log.Println("STRIPE_SECRET_KEY is missing. Using DEMO MODE.")
		return fmt.Sprintf("%s?success=true&demo=true", s.domain), nil
	}

	params := &stripe.CheckoutSessionParams{
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(string(stripe.CurrencyUSD)),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name:        stripe.String("MUZGPT Premium"),
						Description: stripe.String("Unlock unlimited messages, Startup Mode, and Private Compute."),
					},
					UnitAmount: stripe.Int64(premiumPriceCents),
				},
				Quantity: stripe.Int64(1),
			},
		},
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(fmt.Sprintf("%s?success=true&userId=%s", s.domain, userID)),
		CancelURL:  stripe.String(fmt.Sprintf("%s?canceled=true", s.domain)),
	}
	params.AddMetadata("userId", userID)

	sess, err := session.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to create checkout session: %w", err)
	}
	return sess.URL, nil
}

// SessionPaid reports whether the referenced checkout session was actually
// paid. Only meaningful in configured mode.
func (s *Service) SessionPaid(sessionID string) (bool, error) {
	sess, err := session.Get(sessionID, nil)
	if err != nil {
		return false, fmt.Errorf("failed to fetch checkout session: %w", err)
	}
	return sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid, nil
}

// PaymentEvent is a verified payment-completed notification.
type PaymentEvent struct {
	UserID string
	Paid   bool
}

// ParseWebhook verifies the event signature and extracts the completed
// checkout, if the event is one. A nil event with nil error means the event
// type is not interesting to us.
func (s *Service) ParseWebhook(payload []byte, sigHeader string) (*PaymentEvent, error) {
	event, err := webhook.ConstructEvent(payload, sigHeader, s.webhookSecret)
	if err != nil {
		return nil, fmt.Errorf("webhook signature verification failed: %w", err)
	}

	if event.Type != "checkout.session.completed" {
		return nil, nil
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return nil, fmt.Errorf("failed to parse checkout session from webhook: %w", err)
	}

	return &PaymentEvent{
		UserID: sess.Metadata["userId"],
		Paid:   sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
	}, nil
}
