package bookingflow

import (
	"context"
	"sync"

	"dontforget/internal/domain"
	"dontforget/internal/models"
	"dontforget/internal/payments"
)

// fakeBackend records every call in order.
type fakeBackend struct {
	mu    sync.Mutex
	calls []string

	link        *models.BookingLink
	linkErr     error
	packages    []models.Package
	packagesErr error
	booked      []string
	bookedErr   error
	bookedGate  chan struct{}

	bookingErr error
	bookings   []models.BookingPayload
	bookingKey []string

	captureBooking *models.Booking
	captureErr     error
	captured       []string

	stripeConfirmErr error
	stripeConfirms   []string
}

func (b *fakeBackend) record(name string) {
	b.mu.Lock()
	b.calls = append(b.calls, name)
	b.mu.Unlock()
}

func (b *fakeBackend) Calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.calls...)
}

func (b *fakeBackend) count(name string) int {
	n := 0
	for _, c := range b.Calls() {
		if c == name {
			n++
		}
	}
	return n
}

func (b *fakeBackend) ResolveLink(_ context.Context, slug string) (*models.BookingLink, error) {
	b.record("ResolveLink")
	if b.linkErr != nil {
		return nil, b.linkErr
	}
	link := *b.link
	link.Slug = slug
	return &link, nil
}

func (b *fakeBackend) UserPackages(_ context.Context, _ models.ID) ([]models.Package, error) {
	b.record("UserPackages")
	return b.packages, b.packagesErr
}

func (b *fakeBackend) BookedSlots(_ context.Context, _ models.ID, _ string) ([]string, error) {
	b.record("BookedSlots")
	if b.bookedGate != nil {
		<-b.bookedGate
	}
	return b.booked, b.bookedErr
}

func (b *fakeBackend) CreateBooking(_ context.Context, payload models.BookingPayload, key string) (*models.Booking, error) {
	b.record("CreateBooking")
	if b.bookingErr != nil {
		return nil, b.bookingErr
	}
	b.mu.Lock()
	b.bookings = append(b.bookings, payload)
	b.bookingKey = append(b.bookingKey, key)
	b.mu.Unlock()
	return &models.Booking{ID: "501", PaymentStatus: payload.PaymentStatus}, nil
}

func (b *fakeBackend) CreateStripeIntent(_ context.Context, _ models.StripeIntentRequest) (string, error) {
	b.record("CreateStripeIntent")
	return "pi_123_secret_abc", nil
}

func (b *fakeBackend) ConfirmStripePayment(_ context.Context, intentID string, _ models.ID) error {
	b.record("ConfirmStripePayment")
	b.mu.Lock()
	b.stripeConfirms = append(b.stripeConfirms, intentID)
	b.mu.Unlock()
	return b.stripeConfirmErr
}

func (b *fakeBackend) CreatePayPalOrder(_ context.Context, _ models.PayPalOrderRequest) (*models.PayPalOrder, error) {
	b.record("CreatePayPalOrder")
	return &models.PayPalOrder{OrderID: "EC-1", ApprovalURL: "https://paypal.example/approve/1"}, nil
}

func (b *fakeBackend) CapturePayPal(_ context.Context, orderID string, _ models.BookingPayload) (*models.Booking, error) {
	b.record("CapturePayPal")
	b.mu.Lock()
	b.captured = append(b.captured, orderID)
	b.mu.Unlock()
	return b.captureBooking, b.captureErr
}

// fakeAdapter is a provider whose confirmation outcome is scripted.
type fakeAdapter struct {
	method   models.PaymentMethod
	backend  *fakeBackend
	loadErr  error
	result   *models.PaymentResult
	err      error
	mounted  string
	loads    int
	confirms int
}

func (a *fakeAdapter) Method() models.PaymentMethod { return a.method }

func (a *fakeAdapter) Load(_ context.Context) error {
	a.loads++
	return a.loadErr
}

func (a *fakeAdapter) Mount(ref string) error {
	if a.mounted != "" && a.mounted != ref {
		return payments.ErrElementMounted
	}
	a.mounted = ref
	return nil
}

func (a *fakeAdapter) Unmount() { a.mounted = "" }

func (a *fakeAdapter) Confirm(_ context.Context, _ models.PaymentRequest) (*models.PaymentResult, error) {
	a.confirms++
	a.backend.record("Confirm:" + string(a.method))
	return a.result, a.err
}

func registryWith(adapters ...*fakeAdapter) (*payments.Registry, *int) {
	r := payments.NewRegistry()
	built := 0
	for _, a := range adapters {
		a := a
		r.Register(a.method, func(*models.BookingLink) domain.PaymentAdapter {
			built++
			return a
		})
	}
	return r, &built
}

type fakeOwner struct {
	owner       *models.Owner
	userErr     error
	packages    []models.Package
	packagesErr error
}

func (o *fakeOwner) CurrentUser(context.Context) (*models.Owner, error) {
	return o.owner, o.userErr
}

func (o *fakeOwner) Packages(context.Context) ([]models.Package, error) {
	return o.packages, o.packagesErr
}

func (o *fakeOwner) CreatePackage(_ context.Context, pkg models.Package) (*models.Package, error) {
	return &pkg, nil
}

func (o *fakeOwner) DeletePackage(context.Context, models.ID) error { return nil }

func (o *fakeOwner) Links(context.Context) ([]models.OwnerLink, error) { return nil, nil }

func (o *fakeOwner) CreateLink(context.Context, models.CreateLinkRequest) error { return nil }

func (o *fakeOwner) Bookings(context.Context) ([]models.Booking, error) { return nil, nil }

func (o *fakeOwner) Tasks(context.Context) ([]models.Task, error) { return nil, nil }

func (o *fakeOwner) Settings(context.Context) (*models.Settings, error) {
	return &models.Settings{}, nil
}
