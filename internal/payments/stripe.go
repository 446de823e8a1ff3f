package payments

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"

	"dontforget/internal/backend"
	"dontforget/internal/models"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/paymentintent"
)

const (
	msgStripeNotConfigured = "Stripe is not configured. Please contact the booking owner."
	msgStripeNotLoaded     = "Stripe is not initialized. Please wait a moment and try again."
	msgCardNotReady        = "Card input is not ready. Please wait a moment and try again."
	msgStripeFailed        = "Stripe payment failed. Please try again."
	msgPaymentIncomplete   = "Payment not completed. Please try again."
)

// IntentCreator asks the backend for a PaymentIntent client secret.
type IntentCreator interface {
	CreateStripeIntent(ctx context.Context, req models.StripeIntentRequest) (string, error)
}

// StripeOptions tune the stripe-go backend. Zero values use Stripe's API.
type StripeOptions struct {
	APIURL     string
	HTTPClient *http.Client
	MaxRetries int64
}

// StripeAdapter confirms card payments with the owner's publishable key.
// One adapter is created per flow when it first enters the payment step and
// is kept until the flow is reset, so the card element is always confirmed
// against the client it was mounted on.
type StripeAdapter struct {
	publishableKey string
	intents        IntentCreator
	opts           StripeOptions
	logger         *zerolog.Logger

	mu      sync.Mutex
	client  *paymentintent.Client
	element string
}

func NewStripeAdapter(publishableKey string, intents IntentCreator, opts StripeOptions, logger *zerolog.Logger) *StripeAdapter {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &StripeAdapter{
		publishableKey: publishableKey,
		intents:        intents,
		opts:           opts,
		logger:         logger,
	}
}

func (a *StripeAdapter) Method() models.PaymentMethod {
	return models.MethodStripe
}

func (a *StripeAdapter) Load(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.publishableKey == "" {
		return newError(ErrNotConfigured, msgStripeNotConfigured, nil)
	}
	if a.client != nil {
		return nil
	}

	cfg := &stripe.BackendConfig{
		HTTPClient:        a.opts.HTTPClient,
		MaxNetworkRetries: stripe.Int64(a.opts.MaxRetries),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	}
	if a.opts.APIURL != "" {
		cfg.URL = stripe.String(a.opts.APIURL)
	}

	a.client = &paymentintent.Client{
		B:   stripe.GetBackendWithConfig(stripe.APIBackend, cfg),
		Key: a.publishableKey,
	}
	return nil
}

// Mount attaches the guest's card element, identified by the payment method
// reference the browser produced for it.
func (a *StripeAdapter) Mount(ref string) error {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return newError(ErrNotReady, msgCardNotReady, nil)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.element == ref {
		return nil
	}
	if a.element != "" {
		return ErrElementMounted
	}
	a.element = ref
	return nil
}

func (a *StripeAdapter) Unmount() {
	a.mu.Lock()
	a.element = ""
	a.mu.Unlock()
}

// Confirm creates an intent through the backend and confirms it with the
// mounted card. Only a succeeded intent is reported as success.
func (a *StripeAdapter) Confirm(ctx context.Context, req models.PaymentRequest) (*models.PaymentResult, error) {
	a.mu.Lock()
	client, element := a.client, a.element
	a.mu.Unlock()

	if client == nil {
		return nil, newError(ErrNotReady, msgStripeNotLoaded, nil)
	}
	if element == "" {
		return nil, newError(ErrNotReady, msgCardNotReady, nil)
	}

	secret, err := a.intents.CreateStripeIntent(ctx, models.StripeIntentRequest{
		PackageID: req.PackageID,
		UserID:    req.UserID,
		Amount:    models.NewMoney(req.Amount),
	})
	if err != nil {
		return nil, newError(ErrDeclined, backend.Message(err, msgStripeFailed), err)
	}

	params := &stripe.PaymentIntentConfirmParams{
		PaymentMethod: stripe.String(element),
	}
	if req.Guest.Email != "" {
		params.ReceiptEmail = stripe.String(req.Guest.Email)
	}
	params.Context = ctx
	params.AddExtra("client_secret", secret)

	intent, err := client.Confirm(IntentID(secret), params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Msg != "" {
			return nil, newError(ErrDeclined, stripeErr.Msg, err)
		}
		a.logger.Error().Err(err).Msg("stripe confirm failed")
		return nil, newError(ErrDeclined, msgStripeFailed, err)
	}

	if intent == nil || intent.Status != stripe.PaymentIntentStatusSucceeded {
		status := ""
		if intent != nil {
			status = string(intent.Status)
		}
		a.logger.Warn().Str("status", status).Msg("payment intent not succeeded")
		return nil, newError(ErrIncomplete, msgPaymentIncomplete, nil)
	}

	reference := intent.ID
	if reference == "" {
		reference = IntentID(secret)
	}
	return &models.PaymentResult{Outcome: models.OutcomeSucceeded, Reference: reference}, nil
}

// IntentID extracts the PaymentIntent id from its client secret.
func IntentID(clientSecret string) string {
	if i := strings.Index(clientSecret, "_secret_"); i > 0 {
		return clientSecret[:i]
	}
	return clientSecret
}
