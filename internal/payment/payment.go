// Package payment creates customers and payment intents at the payment
// processor.
package payment

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/travel-reservations/internal/config"
	"github.com/robertarktes/travel-reservations/internal/domain"
)

type Mode string

const (
	ModeDisabled Mode = "disabled"
	ModeStripe   Mode = "stripe"
)

// Config selects the gateway. Stripe mode needs SecretKey; APIURL overrides
// the Stripe endpoint for stubs and tests.
type Config struct {
	Mode          Mode
	SecretKey     string
	APIURL        string
	WebhookSecret string
}

// ConfigFrom enables Stripe when a secret key is configured.
func ConfigFrom(cfg *config.Config) Config {
	if cfg.StripeSecretKey == "" {
		return Config{Mode: ModeDisabled}
	}
	return Config{
		Mode:          ModeStripe,
		SecretKey:     cfg.StripeSecretKey,
		APIURL:        cfg.StripeAPIURL,
		WebhookSecret: cfg.StripeWebhook,
	}
}

// MetaReservationCode is the intent metadata key linking it back to its
// reservation.
const MetaReservationCode = "reservationCode"

type IntentRequest struct {
	Amount         int64
	Currency       string
	CustomerID     string
	ReceiptEmail   string
	Description    string
	IdempotencyKey string
	Metadata       map[string]string
}

type Intent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	Status       string `json:"status"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
}

type Gateway interface {
	CreateCustomer(ctx context.Context, name, email string) (string, error)
	CreatePaymentIntent(ctx context.Context, req IntentRequest) (Intent, error)
}

func New(cfg Config) (Gateway, error) {
	switch cfg.Mode {
	case ModeDisabled, "":
		return Disabled{}, nil
	case ModeStripe:
		if cfg.SecretKey == "" {
			return nil, errors.New("stripe payments need a secret key")
		}
		return NewStripe(cfg), nil
	default:
		return nil, errors.Newf("unknown payment mode %q", cfg.Mode)
	}
}

// Disabled rejects every call with domain.ErrPaymentsDisabled.
type Disabled struct{}

func (Disabled) CreateCustomer(ctx context.Context, name, email string) (string, error) {
	return "", domain.ErrPaymentsDisabled
}

func (Disabled) CreatePaymentIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	return Intent{}, domain.ErrPaymentsDisabled
}
