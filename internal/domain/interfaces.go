package domain

import (
	"context"

	"dontforget/internal/models"
)

// Store is the persistence gateway behind session hand-off state, seen
// notifications and drafts. Get returns nil, nil for a missing key.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	// SetMany writes all values or none.
	SetMany(ctx context.Context, values map[string][]byte) error
	Remove(ctx context.Context, keys ...string) error
}

// BookingBackend is the slice of the remote API used by the public flow.
type BookingBackend interface {
	ResolveLink(ctx context.Context, slug string) (*models.BookingLink, error)
	UserPackages(ctx context.Context, userID models.ID) ([]models.Package, error)
	BookedSlots(ctx context.Context, userID models.ID, date string) ([]string, error)
	CreateBooking(ctx context.Context, payload models.BookingPayload, idempotencyKey string) (*models.Booking, error)
	CreateStripeIntent(ctx context.Context, req models.StripeIntentRequest) (string, error)
	ConfirmStripePayment(ctx context.Context, intentID string, bookingID models.ID) error
	CreatePayPalOrder(ctx context.Context, req models.PayPalOrderRequest) (*models.PayPalOrder, error)
	CapturePayPal(ctx context.Context, orderID string, payload models.BookingPayload) (*models.Booking, error)
}

// OwnerBackend covers the authenticated owner endpoints.
type OwnerBackend interface {
	CurrentUser(ctx context.Context) (*models.Owner, error)
	Packages(ctx context.Context) ([]models.Package, error)
	CreatePackage(ctx context.Context, pkg models.Package) (*models.Package, error)
	DeletePackage(ctx context.Context, id models.ID) error
	Links(ctx context.Context) ([]models.OwnerLink, error)
	CreateLink(ctx context.Context, req models.CreateLinkRequest) error
	Bookings(ctx context.Context) ([]models.Booking, error)
	Tasks(ctx context.Context) ([]models.Task, error)
	Settings(ctx context.Context) (*models.Settings, error)
}

// PaymentAdapter drives one provider's authorization step.
type PaymentAdapter interface {
	Method() models.PaymentMethod
	// Load prepares the provider client. Calling it again is a no-op.
	Load(ctx context.Context) error
	// Mount attaches the guest's payment element. Providers without an
	// in-page element accept any reference.
	Mount(ref string) error
	Unmount()
	Confirm(ctx context.Context, req models.PaymentRequest) (*models.PaymentResult, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}
