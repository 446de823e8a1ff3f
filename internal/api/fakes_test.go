package api

import (
	"context"
	"sync"

	"dontforget/internal/models"
)

// fakeBackend implements both halves of the remote API from fixtures.
type fakeBackend struct {
	mu sync.Mutex

	link     *models.BookingLink
	packages []models.Package
	booked   []string
	owner    *models.Owner
	ownerErr error

	createdPackages []models.Package
	packageErr      error
	deleted         []models.ID

	links       []models.OwnerLink
	createdLink *models.CreateLinkRequest

	bookings []models.Booking
	tasks    []models.Task
	settings *models.Settings

	bookingPayloads []models.BookingPayload
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		link: &models.BookingLink{UserID: "42", OwnerName: "Spa Studio"},
		packages: []models.Package{
			{ID: "1", Name: "Intro call"},
		},
		owner:    &models.Owner{ID: "42", Name: "Olga"},
		settings: &models.Settings{},
	}
}

func (b *fakeBackend) ResolveLink(_ context.Context, slug string) (*models.BookingLink, error) {
	link := *b.link
	link.Slug = slug
	return &link, nil
}

func (b *fakeBackend) UserPackages(context.Context, models.ID) ([]models.Package, error) {
	return b.packages, nil
}

func (b *fakeBackend) BookedSlots(context.Context, models.ID, string) ([]string, error) {
	return b.booked, nil
}

func (b *fakeBackend) CreateBooking(_ context.Context, payload models.BookingPayload, _ string) (*models.Booking, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bookingPayloads = append(b.bookingPayloads, payload)
	return &models.Booking{ID: "501", PaymentStatus: payload.PaymentStatus}, nil
}

func (b *fakeBackend) CreateStripeIntent(context.Context, models.StripeIntentRequest) (string, error) {
	return "pi_1_secret_x", nil
}

func (b *fakeBackend) ConfirmStripePayment(context.Context, string, models.ID) error { return nil }

func (b *fakeBackend) CreatePayPalOrder(context.Context, models.PayPalOrderRequest) (*models.PayPalOrder, error) {
	return &models.PayPalOrder{OrderID: "EC-1", ApprovalURL: "https://paypal.example/approve"}, nil
}

func (b *fakeBackend) CapturePayPal(context.Context, string, models.BookingPayload) (*models.Booking, error) {
	return &models.Booking{ID: "502"}, nil
}

func (b *fakeBackend) CurrentUser(context.Context) (*models.Owner, error) {
	return b.owner, b.ownerErr
}

func (b *fakeBackend) Packages(context.Context) ([]models.Package, error) {
	return b.packages, nil
}

func (b *fakeBackend) CreatePackage(_ context.Context, pkg models.Package) (*models.Package, error) {
	if b.packageErr != nil {
		return nil, b.packageErr
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.createdPackages = append(b.createdPackages, pkg)
	pkg.ID = "77"
	return &pkg, nil
}

func (b *fakeBackend) DeletePackage(_ context.Context, id models.ID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deleted = append(b.deleted, id)
	return nil
}

func (b *fakeBackend) Links(context.Context) ([]models.OwnerLink, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]models.OwnerLink(nil), b.links...), nil
}

func (b *fakeBackend) CreateLink(_ context.Context, req models.CreateLinkRequest) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.createdLink = &req
	b.links = append(b.links, models.OwnerLink{ID: "3", Name: req.Name, Slug: "spa"})
	return nil
}

func (b *fakeBackend) Bookings(context.Context) ([]models.Booking, error) {
	return b.bookings, nil
}

func (b *fakeBackend) Tasks(context.Context) ([]models.Task, error) {
	return b.tasks, nil
}

func (b *fakeBackend) Settings(context.Context) (*models.Settings, error) {
	return b.settings, nil
}
