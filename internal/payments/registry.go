package payments

import (
	"fmt"
	"sort"

	"dontforget/internal/domain"
	"dontforget/internal/models"

	"github.com/rs/zerolog"
)

// Factory builds an adapter for one booking link.
type Factory func(link *models.BookingLink) domain.PaymentAdapter

// Registry maps payment methods to adapter factories.
type Registry struct {
	factories map[models.PaymentMethod]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[models.PaymentMethod]Factory)}
}

// NewDefaultRegistry registers Stripe and PayPal against the backend.
func NewDefaultRegistry(api domain.BookingBackend, stripeOpts StripeOptions, logger *zerolog.Logger) *Registry {
	r := NewRegistry()
	r.Register(models.MethodStripe, func(link *models.BookingLink) domain.PaymentAdapter {
		key := ""
		if link != nil {
			key = link.StripeKey
		}
		return NewStripeAdapter(key, api, stripeOpts, logger)
	})
	r.Register(models.MethodPayPal, func(link *models.BookingLink) domain.PaymentAdapter {
		clientID := ""
		if link != nil {
			clientID = link.PayPalClientID
		}
		return NewPayPalAdapter(clientID, api)
	})
	return r
}

func (r *Registry) Register(method models.PaymentMethod, f Factory) {
	r.factories[method] = f
}

func (r *Registry) New(method models.PaymentMethod, link *models.BookingLink) (domain.PaymentAdapter, error) {
	f, ok := r.factories[method]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMethod, method)
	}
	return f(link), nil
}

// Supports reports whether method has a registered adapter.
func (r *Registry) Supports(method models.PaymentMethod) bool {
	_, ok := r.factories[method]
	return ok
}

func (r *Registry) Methods() []models.PaymentMethod {
	methods := make([]models.PaymentMethod, 0, len(r.factories))
	for m := range r.factories {
		methods = append(methods, m)
	}
	sort.Slice(methods, func(i, j int) bool { return methods[i] < methods[j] })
	return methods
}
