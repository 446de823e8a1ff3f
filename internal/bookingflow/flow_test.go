package bookingflow

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"dontforget/internal/backend"
	"dontforget/internal/domain"
	"dontforget/internal/models"
	"dontforget/internal/payments"
	"dontforget/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pageURL = "https://app.example/book"

var (
	freePackage = models.Package{ID: "1", Name: "Intro call", Price: decimal.Zero, Duration: 30}
	paidPackage = models.Package{ID: "2", Name: "Session", Price: decimal.NewFromInt(50), Duration: 60}
	retreat     = models.Package{ID: "3", Name: "Day retreat", Price: decimal.NewFromInt(500), Duration: 240}
	jane        = models.GuestDetails{Name: "Jane Doe", Email: "jane@x.com", Phone: "555-1000"}
)

func newBackend() *fakeBackend {
	return &fakeBackend{
		link:     &models.BookingLink{UserID: "42", OwnerName: "Spa Studio", StripeKey: "pk_test"},
		packages: []models.Package{freePackage, paidPackage},
	}
}

func newPublicFlow(api *fakeBackend, reg *payments.Registry, store domain.Store) *Flow {
	f := New(PublicConfig(pageURL), Deps{
		Backend:  api,
		Resolver: NewPublicResolver(api, nil),
		Payments: reg,
		Store:    store,
	})
	f.newToken = func() string { return "ABC123" }
	return f
}

func linkQuery(extra ...string) url.Values {
	q := url.Values{"link": {"spa"}}
	for i := 0; i+1 < len(extra); i += 2 {
		q.Set(extra[i], extra[i+1])
	}
	return q
}

func fill(t *testing.T, f *Flow, pkg models.ID) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.SetDate(ctx, "2025-03-10"))
	require.NoError(t, f.SelectSlot("09:00"))
	require.NoError(t, f.UpdateGuest(jane))
	require.NoError(t, f.SelectPackage(pkg))
}

// S1
func TestFlow_NoPayment(t *testing.T) {
	api := newBackend()
	f := newPublicFlow(api, nil, nil)
	ctx := context.Background()

	require.NoError(t, f.Load(ctx, linkQuery()))
	fill(t, f, freePackage.ID)
	assert.False(t, f.View().NeedsPayment)

	require.NoError(t, f.Submit(ctx))

	v := f.View()
	assert.Equal(t, StepConfirm, v.Step)
	assert.Equal(t, models.ID("501"), v.BookingID)
	require.Len(t, api.bookings, 1)

	got := api.bookings[0]
	assert.Equal(t, models.PaymentPending, got.PaymentStatus)
	assert.Empty(t, got.PaymentReference)
	assert.Equal(t, models.ID("42"), got.UserID)
	assert.Equal(t, "2025-03-10", got.Date)
	assert.Equal(t, "09:00", got.TimeSlot)
	assert.Equal(t, "spa", got.LinkSlug)
	assert.Equal(t, "https://dontforget.app/meet/2025-03-10-09:00-ABC123", got.MeetingLink)
	assert.Equal(t, v.Draft.ID, api.bookingKey[0])
}

// S2
func TestFlow_StripeSuccess(t *testing.T) {
	api := newBackend()
	stripe := &fakeAdapter{
		method:  models.MethodStripe,
		backend: api,
		result:  &models.PaymentResult{Outcome: models.OutcomeSucceeded, Reference: "pi_123"},
	}
	reg, _ := registryWith(stripe)
	f := newPublicFlow(api, reg, nil)
	ctx := context.Background()

	require.NoError(t, f.Load(ctx, linkQuery()))
	fill(t, f, paidPackage.ID)
	require.NoError(t, f.SetPaymentOptions(ctx, true, ""))
	assert.True(t, f.View().NeedsPayment)

	require.NoError(t, f.Submit(ctx))
	v := f.View()
	assert.Equal(t, StepPayment, v.Step)
	assert.Equal(t, models.MethodStripe, v.Draft.Method)
	assert.True(t, v.PaymentReady)
	assert.Zero(t, api.count("CreateBooking"))

	require.NoError(t, f.AttachCard("pm_card_visa"))
	require.NoError(t, f.Submit(ctx))

	v = f.View()
	assert.Equal(t, StepConfirm, v.Step)
	require.Len(t, api.bookings, 1)
	assert.Equal(t, models.PaymentPaid, api.bookings[0].PaymentStatus)
	assert.Equal(t, "pi_123", api.bookings[0].PaymentReference)
	assert.Equal(t, "pi_123", api.bookingKey[0])
	assert.Equal(t, []string{"pi_123"}, api.stripeConfirms)
	assert.Empty(t, stripe.mounted)

	calls := api.Calls()
	assert.Less(t, indexOf(calls, "Confirm:stripe"), indexOf(calls, "CreateBooking"))
	assert.Less(t, indexOf(calls, "CreateBooking"), indexOf(calls, "ConfirmStripePayment"))
}

// S3
func TestFlow_StripeDeclined(t *testing.T) {
	api := newBackend()
	stripe := &fakeAdapter{
		method:  models.MethodStripe,
		backend: api,
		err:     &payments.Error{Kind: payments.ErrDeclined, Message: "Your card was declined."},
	}
	reg, _ := registryWith(stripe)
	f := newPublicFlow(api, reg, nil)
	ctx := context.Background()

	require.NoError(t, f.Load(ctx, linkQuery()))
	fill(t, f, paidPackage.ID)
	require.NoError(t, f.SetPaymentOptions(ctx, true, models.MethodStripe))
	require.NoError(t, f.Submit(ctx))
	require.NoError(t, f.AttachCard("pm_card_declined"))

	err := f.Submit(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPaymentFailed)
	assert.ErrorIs(t, err, payments.ErrDeclined)

	v := f.View()
	assert.Equal(t, StepPayment, v.Step)
	assert.Equal(t, "Your card was declined.", v.Error)
	assert.Zero(t, api.count("CreateBooking"))
}

// S4 plus session cleanup and re-entry.
func TestFlow_PayPalRoundTrip(t *testing.T) {
	api := newBackend()
	api.link.StripeKey = ""
	api.link.PayPalClientID = "AZ-client"
	reg := payments.NewRegistry()
	reg.Register(models.MethodPayPal, func(link *models.BookingLink) domain.PaymentAdapter {
		return payments.NewPayPalAdapter(link.PayPalClientID, api)
	})
	store := repository.NewMemoryStore(0)
	ctx := context.Background()

	f := newPublicFlow(api, reg, store)
	require.NoError(t, f.Load(ctx, linkQuery()))
	fill(t, f, paidPackage.ID)
	require.NoError(t, f.SetPaymentOptions(ctx, true, ""))
	require.NoError(t, f.Submit(ctx))
	assert.Equal(t, models.MethodPayPal, f.View().Draft.Method)
	require.NoError(t, f.Submit(ctx))

	v := f.View()
	assert.Equal(t, "https://paypal.example/approve/1", v.RedirectURL)
	assert.Zero(t, v.RedirectAfterMS)
	assert.Zero(t, api.count("CreateBooking"))

	var orderID string
	found, err := repository.GetJSON(ctx, store, models.KeyPendingOrderID, &orderID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "EC-1", orderID)

	var task models.ResumableTask
	found, err = repository.GetJSON(ctx, store, models.KeyPendingBookingData, &task)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, models.TaskPayPalCapture, task.Kind)
	assert.Equal(t, "spa", task.Payload.LinkSlug)
	assert.Equal(t, "Jane Doe", task.Payload.GuestName)

	// The guest comes back from PayPal.
	back := newPublicFlow(api, reg, store)
	require.NoError(t, back.Load(ctx, linkQuery("token", "EC-1", "PayerID", "PAYER")))

	v = back.View()
	assert.Equal(t, StepConfirm, v.Step)
	assert.Equal(t, "09:00", v.Draft.Slot)
	assert.Equal(t, []string{"EC-1"}, api.captured)
	require.Len(t, api.bookings, 1)
	assert.Equal(t, models.PaymentPaid, api.bookings[0].PaymentStatus)
	assert.Equal(t, "EC-1", api.bookings[0].PaymentReference)
	assertPendingCleared(t, store)

	// A refresh after the return parameters were stripped does nothing.
	again := newPublicFlow(api, reg, store)
	require.NoError(t, again.Load(ctx, linkQuery()))
	assert.Equal(t, StepSelect, again.View().Step)
	assert.Equal(t, 1, api.count("CapturePayPal"))
	assert.Equal(t, 1, api.count("CreateBooking"))
}

func TestFlow_PayPalCaptureFailure(t *testing.T) {
	api := newBackend()
	api.captureErr = errors.New("connection reset")
	store := repository.NewMemoryStore(0)
	ctx := context.Background()

	payload := models.BookingPayload{UserID: "42", GuestName: "Jane Doe", Date: "2025-03-10", TimeSlot: "09:00"}
	require.NoError(t, SaveTask(ctx, store, "EC-9", payload, time.Now()))

	f := newPublicFlow(api, nil, store)
	require.NoError(t, f.Load(ctx, linkQuery()))

	v := f.View()
	assert.Equal(t, StepSelect, v.Step)
	assert.Equal(t, "Failed to complete PayPal payment. Please try again.", v.Error)
	assert.Zero(t, api.count("CreateBooking"))
	assertPendingCleared(t, store)
}

func TestFlow_PayPalCaptureServerMessage(t *testing.T) {
	api := newBackend()
	api.captureErr = &backend.APIError{Status: 422, Message: "Order already captured"}
	store := repository.NewMemoryStore(0)
	ctx := context.Background()
	require.NoError(t, SaveTask(ctx, store, "EC-3", models.BookingPayload{UserID: "42"}, time.Now()))

	f := newPublicFlow(api, nil, store)
	require.NoError(t, f.Load(ctx, linkQuery("token", "EC-3")))
	assert.Equal(t, "Order already captured", f.View().Error)
	assertPendingCleared(t, store)
}

func TestFlow_PayPalCaptureAdoptsBooking(t *testing.T) {
	api := newBackend()
	api.captureBooking = &models.Booking{ID: "900"}
	store := repository.NewMemoryStore(0)
	ctx := context.Background()
	require.NoError(t, SaveTask(ctx, store, "EC-4", models.BookingPayload{UserID: "42"}, time.Now()))

	f := newPublicFlow(api, nil, store)
	require.NoError(t, f.Load(ctx, linkQuery("token", "EC-4")))

	v := f.View()
	assert.Equal(t, StepConfirm, v.Step)
	assert.Equal(t, models.ID("900"), v.BookingID)
	assert.Zero(t, api.count("CreateBooking"))
}

func TestFlow_TokenWithoutPendingData(t *testing.T) {
	api := newBackend()
	f := newPublicFlow(api, nil, nil)

	require.NoError(t, f.Load(context.Background(), linkQuery("token", "EC-7")))
	assert.Zero(t, api.count("CapturePayPal"))
	assert.Equal(t, StepSelect, f.View().Step)
}

func TestFlow_PendingOrderWithoutDataIsCleared(t *testing.T) {
	ctx := context.Background()

	t.Run("Missing", func(t *testing.T) {
		api := newBackend()
		store := repository.NewMemoryStore(0)
		require.NoError(t, repository.SetManyJSON(ctx, store, map[string]any{
			models.KeyPendingOrderID: "EC-8",
			models.KeyPendingUserID:  "42",
		}))

		f := newPublicFlow(api, nil, store)
		require.NoError(t, f.Load(ctx, linkQuery()))
		assert.Equal(t, StepSelect, f.View().Step)
		assert.Zero(t, api.count("CapturePayPal"))
		assertPendingCleared(t, store)
	})

	t.Run("Unreadable", func(t *testing.T) {
		api := newBackend()
		store := repository.NewMemoryStore(0)
		require.NoError(t, repository.SetJSON(ctx, store, models.KeyPendingOrderID, "EC-8"))
		require.NoError(t, store.Set(ctx, models.KeyPendingBookingData, []byte("not json")))

		f := newPublicFlow(api, nil, store)
		require.NoError(t, f.Load(ctx, linkQuery("token", "EC-8")))
		assert.Zero(t, api.count("CapturePayPal"))
		assertPendingCleared(t, store)
	})
}

// S5
func TestFlow_BookedSlotDisabled(t *testing.T) {
	api := newBackend()
	api.booked = []string{"09:00"}
	f := newPublicFlow(api, nil, nil)
	ctx := context.Background()

	require.NoError(t, f.Load(ctx, linkQuery()))
	require.NoError(t, f.SetDate(ctx, "2025-03-10"))

	v := f.View()
	require.Len(t, v.Slots, 48)
	assert.Equal(t, SlotView{Time: "09:00", Booked: true}, v.Slots[18])

	err := f.SelectSlot("09:00")
	assert.ErrorIs(t, err, ErrSlotBooked)
	assert.Empty(t, f.View().Draft.Slot)

	require.NoError(t, f.SelectSlot("09:30"))
	assert.Equal(t, "09:30", f.View().Draft.Slot)
}

// S6
func TestFlow_MissingPackageBlocksSubmit(t *testing.T) {
	api := newBackend()
	f := newPublicFlow(api, nil, nil)
	ctx := context.Background()

	require.NoError(t, f.Load(ctx, linkQuery()))
	require.NoError(t, f.SetDate(ctx, "2025-03-10"))
	require.NoError(t, f.SelectSlot("09:00"))
	require.NoError(t, f.UpdateGuest(jane))

	before := len(api.Calls())
	err := f.Submit(ctx)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, "Please select a package to continue.", f.View().Error)
	assert.Len(t, api.Calls(), before)
}

func TestFlow_FormGating(t *testing.T) {
	ctx := context.Background()
	for mask := 0; mask < 31; mask++ {
		api := newBackend()
		f := newPublicFlow(api, nil, nil)
		require.NoError(t, f.Load(ctx, linkQuery()))
		require.NoError(t, f.SetDate(ctx, "2025-03-10"))

		guest := models.GuestDetails{}
		if mask&1 != 0 {
			guest.Name = "Jane"
		}
		if mask&2 != 0 {
			guest.Email = "jane@x.com"
		}
		if mask&4 != 0 {
			guest.Phone = "555"
		}
		require.NoError(t, f.UpdateGuest(guest))
		if mask&8 != 0 {
			require.NoError(t, f.SelectSlot("10:00"))
		}
		if mask&16 != 0 {
			require.NoError(t, f.SelectPackage(freePackage.ID))
		}

		before := len(api.Calls())
		err := f.Submit(ctx)
		assert.ErrorIs(t, err, ErrValidation, "mask %05b", mask)
		assert.Len(t, api.Calls(), before, "mask %05b", mask)
		assert.False(t, f.View().CanSubmit, "mask %05b", mask)
	}
}

func TestFlow_WhitespaceGuestIsIncomplete(t *testing.T) {
	api := newBackend()
	f := newPublicFlow(api, nil, nil)
	ctx := context.Background()

	require.NoError(t, f.Load(ctx, linkQuery()))
	fill(t, f, freePackage.ID)
	require.NoError(t, f.UpdateGuest(models.GuestDetails{Name: "  ", Email: "a@b.c", Phone: "1"}))

	err := f.Submit(ctx)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, "Please fill in all required fields.", f.View().Error)
}

func TestFlow_AvailabilityFailOpen(t *testing.T) {
	api := newBackend()
	api.bookedErr = errors.New("timeout")
	f := newPublicFlow(api, nil, nil)
	ctx := context.Background()

	require.NoError(t, f.Load(ctx, linkQuery()))
	require.NoError(t, f.SetDate(ctx, "2025-03-10"))

	v := f.View()
	assert.Empty(t, v.Error)
	for _, s := range v.Slots {
		assert.False(t, s.Booked, s.Time)
	}
	assert.NoError(t, f.SelectSlot("09:00"))
}

func TestFlow_DateChangeClearsSlot(t *testing.T) {
	api := newBackend()
	f := newPublicFlow(api, nil, nil)
	ctx := context.Background()

	require.NoError(t, f.Load(ctx, linkQuery()))
	fill(t, f, freePackage.ID)
	assert.NotEmpty(t, f.View().Draft.MeetingLink)

	require.NoError(t, f.SetDate(ctx, "2025-03-11"))
	v := f.View()
	assert.Empty(t, v.Draft.Slot)
	assert.Empty(t, v.Draft.MeetingLink)

	assert.ErrorIs(t, f.SetDate(ctx, "11/03/2025"), ErrValidation)
}

func TestFlow_LinkFull(t *testing.T) {
	api := newBackend()
	api.link.IsFull = true
	f := newPublicFlow(api, nil, nil)
	ctx := context.Background()

	require.NoError(t, f.Load(ctx, linkQuery()))
	fill(t, f, freePackage.ID)

	err := f.Submit(ctx)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, "This booking link has reached its booking limit.", f.View().Error)
	assert.Zero(t, api.count("CreateBooking"))
}

func TestFlow_InvalidLink(t *testing.T) {
	api := newBackend()
	api.linkErr = errors.New("not found")
	f := newPublicFlow(api, nil, nil)
	ctx := context.Background()

	require.NoError(t, f.Load(ctx, linkQuery()))
	v := f.View()
	assert.Equal(t, "Invalid or expired booking link.", v.LinkError)
	assert.Zero(t, api.count("BookedSlots"))

	err := f.Submit(ctx)
	assert.ErrorIs(t, err, ErrLinkInvalid)
	assert.Zero(t, api.count("CreateBooking"))
}

func TestFlow_MissingOwner(t *testing.T) {
	api := newBackend()
	f := newPublicFlow(api, nil, nil)
	ctx := context.Background()

	pkgs := encodeLegacy(t, `[{"id":1,"n":"Call","pr":0,"du":30}]`)
	require.NoError(t, f.Load(ctx, url.Values{"pkgs": {pkgs}}))
	fill(t, f, "1")

	err := f.Submit(ctx)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, "Invalid booking link. Missing user ID.", f.View().Error)
}

func TestFlow_RedirectAfterBooking(t *testing.T) {
	api := newBackend()
	api.link.RedirectURL = "https://example.com/thanks"
	f := newPublicFlow(api, nil, nil)
	ctx := context.Background()

	require.NoError(t, f.Load(ctx, linkQuery()))
	fill(t, f, freePackage.ID)
	require.NoError(t, f.Submit(ctx))

	v := f.View()
	assert.Equal(t, "https://example.com/thanks", v.RedirectURL)
	assert.Equal(t, int64(2000), v.RedirectAfterMS)
}

func TestFlow_BookingFailureKeepsState(t *testing.T) {
	api := newBackend()
	api.bookingErr = &backend.APIError{Status: 409, Message: "This time slot is no longer available"}
	f := newPublicFlow(api, nil, nil)
	ctx := context.Background()

	require.NoError(t, f.Load(ctx, linkQuery()))
	fill(t, f, freePackage.ID)

	err := f.Submit(ctx)
	assert.ErrorIs(t, err, ErrBookingCreation)
	v := f.View()
	assert.Equal(t, StepSelect, v.Step)
	assert.Equal(t, "This time slot is no longer available", v.Error)
	assert.Equal(t, 1, api.count("CreateBooking"))
}

func TestFlow_PaidBookingRetryDoesNotChargeAgain(t *testing.T) {
	api := newBackend()
	stripe := &fakeAdapter{
		method:  models.MethodStripe,
		backend: api,
		result:  &models.PaymentResult{Outcome: models.OutcomeSucceeded, Reference: "pi_123"},
	}
	reg, _ := registryWith(stripe)
	f := newPublicFlow(api, reg, nil)
	ctx := context.Background()

	require.NoError(t, f.Load(ctx, linkQuery()))
	fill(t, f, paidPackage.ID)
	require.NoError(t, f.SetPaymentOptions(ctx, true, ""))
	require.NoError(t, f.Submit(ctx))
	require.NoError(t, f.AttachCard("pm_card_visa"))

	api.bookingErr = errors.New("gateway timeout")
	err := f.Submit(ctx)
	assert.ErrorIs(t, err, ErrBookingCreation)
	assert.Equal(t, StepPayment, f.View().Step)
	assert.Equal(t, "Failed to create booking. Please try again.", f.View().Error)

	api.bookingErr = nil
	require.NoError(t, f.Submit(ctx))
	assert.Equal(t, StepConfirm, f.View().Step)
	assert.Equal(t, 1, stripe.confirms)
	assert.Equal(t, []string{"pi_123"}, api.bookingKey)
}

func TestFlow_PackageChangeAfterPaymentChargesAgain(t *testing.T) {
	api := newBackend()
	api.packages = append(api.packages, retreat)
	stripe := &fakeAdapter{
		method:  models.MethodStripe,
		backend: api,
		result:  &models.PaymentResult{Outcome: models.OutcomeSucceeded, Reference: "pi_123"},
	}
	reg, _ := registryWith(stripe)
	f := newPublicFlow(api, reg, nil)
	ctx := context.Background()

	require.NoError(t, f.Load(ctx, linkQuery()))
	fill(t, f, paidPackage.ID)
	require.NoError(t, f.SetPaymentOptions(ctx, true, ""))
	require.NoError(t, f.Submit(ctx))
	require.NoError(t, f.AttachCard("pm_card_visa"))

	api.bookingErr = errors.New("gateway timeout")
	assert.ErrorIs(t, f.Submit(ctx), ErrBookingCreation)
	assert.Equal(t, 1, stripe.confirms)

	// Going back with the same package keeps the payment.
	require.NoError(t, f.Back())
	require.NoError(t, f.Submit(ctx))
	require.NoError(t, f.AttachCard("pm_card_visa"))
	assert.ErrorIs(t, f.Submit(ctx), ErrBookingCreation)
	assert.Equal(t, 1, stripe.confirms)

	// A different package needs its own payment.
	require.NoError(t, f.Back())
	require.NoError(t, f.SelectPackage(retreat.ID))
	require.NoError(t, f.Submit(ctx))
	require.NoError(t, f.AttachCard("pm_card_visa"))
	api.bookingErr = nil
	require.NoError(t, f.Submit(ctx))

	assert.Equal(t, StepConfirm, f.View().Step)
	assert.Equal(t, 2, stripe.confirms)
	require.Len(t, api.bookings, 1)
	assert.Equal(t, retreat.ID, api.bookings[0].PackageID)
	assert.Equal(t, models.PaymentPaid, api.bookings[0].PaymentStatus)
}

func TestFlow_PaymentMethodsFollowLinkKeys(t *testing.T) {
	ctx := context.Background()

	t.Run("NoKeys", func(t *testing.T) {
		api := newBackend()
		api.link.StripeKey = ""
		f := newPublicFlow(api, payments.NewDefaultRegistry(api, payments.StripeOptions{}, nil), nil)

		require.NoError(t, f.Load(ctx, linkQuery()))
		fill(t, f, paidPackage.ID)
		assert.Empty(t, f.View().PaymentMethods)
		assert.ErrorIs(t, f.SetPaymentOptions(ctx, true, models.MethodPayPal), ErrValidation)
		require.NoError(t, f.SetPaymentOptions(ctx, true, ""))

		err := f.Submit(ctx)
		assert.ErrorIs(t, err, ErrPaymentSetup)
		assert.ErrorIs(t, err, payments.ErrNotConfigured)
		v := f.View()
		assert.Equal(t, StepPayment, v.Step)
		assert.False(t, v.PaymentReady)
		assert.Equal(t, "Online payment is not configured for this booking link.", v.Error)

		assert.ErrorIs(t, f.Submit(ctx), ErrPaymentSetup)
		assert.Zero(t, api.count("CreatePayPalOrder"))
		assert.Zero(t, api.count("CreateStripeIntent"))
		assert.Zero(t, api.count("CreateBooking"))
	})

	t.Run("StripeOnly", func(t *testing.T) {
		api := newBackend()
		f := newPublicFlow(api, payments.NewDefaultRegistry(api, payments.StripeOptions{}, nil), nil)

		require.NoError(t, f.Load(ctx, linkQuery()))
		v := f.View()
		assert.Equal(t, []models.PaymentMethod{models.MethodStripe}, v.PaymentMethods)
		assert.Equal(t, models.MethodStripe, v.Draft.Method)
		assert.ErrorIs(t, f.SetPaymentOptions(ctx, true, models.MethodPayPal), ErrValidation)
		assert.Equal(t, models.MethodStripe, f.View().Draft.Method)
	})
}

func TestFlow_PaymentSetupFailure(t *testing.T) {
	api := newBackend()
	stripe := &fakeAdapter{
		method:  models.MethodStripe,
		backend: api,
		loadErr: &payments.Error{Kind: payments.ErrNotConfigured, Message: "Stripe is not configured. Please contact the booking owner."},
	}
	reg, _ := registryWith(stripe)
	f := newPublicFlow(api, reg, nil)
	ctx := context.Background()

	require.NoError(t, f.Load(ctx, linkQuery()))
	fill(t, f, paidPackage.ID)
	require.NoError(t, f.SetPaymentOptions(ctx, true, ""))

	err := f.Submit(ctx)
	assert.ErrorIs(t, err, ErrPaymentSetup)
	v := f.View()
	assert.Equal(t, StepPayment, v.Step)
	assert.False(t, v.PaymentReady)
	assert.Equal(t, "Stripe is not configured. Please contact the booking owner.", v.Error)

	assert.ErrorIs(t, f.AttachCard("pm_card_visa"), ErrPaymentSetup)
	require.NoError(t, f.Back())
	assert.Equal(t, StepSelect, f.View().Step)
}

func TestFlow_BackKeepsAdapter(t *testing.T) {
	api := newBackend()
	stripe := &fakeAdapter{method: models.MethodStripe, backend: api}
	reg, built := registryWith(stripe)
	f := newPublicFlow(api, reg, nil)
	ctx := context.Background()

	require.NoError(t, f.Load(ctx, linkQuery()))
	fill(t, f, paidPackage.ID)
	require.NoError(t, f.SetPaymentOptions(ctx, true, ""))
	require.NoError(t, f.Submit(ctx))
	require.NoError(t, f.AttachCard("pm_1"))
	assert.ErrorIs(t, f.AttachCard("pm_2"), ErrPaymentSetup)

	require.NoError(t, f.Back())
	assert.Empty(t, stripe.mounted)
	assert.ErrorIs(t, f.Back(), ErrWrongStep)

	require.NoError(t, f.Submit(ctx))
	assert.Equal(t, 1, *built)
	assert.Equal(t, 2, stripe.loads)
}

func TestFlow_RequiredByLink(t *testing.T) {
	api := newBackend()
	api.link.RequirePayment = true
	stripe := &fakeAdapter{method: models.MethodStripe, backend: api}
	reg, _ := registryWith(stripe)
	f := newPublicFlow(api, reg, nil)
	ctx := context.Background()

	require.NoError(t, f.Load(ctx, linkQuery()))
	fill(t, f, paidPackage.ID)
	assert.True(t, f.View().NeedsPayment)

	// A free package never needs payment.
	require.NoError(t, f.SelectPackage(freePackage.ID))
	assert.False(t, f.View().NeedsPayment)
}

func TestFlow_ResetKeepsFixedPackage(t *testing.T) {
	api := newBackend()
	fixed := paidPackage
	api.link.Package = &fixed
	f := newPublicFlow(api, nil, nil)
	ctx := context.Background()

	require.NoError(t, f.Load(ctx, linkQuery()))
	v := f.View()
	assert.True(t, v.PackagePreSelected)
	assert.Equal(t, paidPackage.ID, v.Draft.PackageID)
	assert.Zero(t, api.count("UserPackages"))

	require.NoError(t, f.SetDate(ctx, "2025-03-10"))
	require.NoError(t, f.SelectSlot("09:00"))
	require.NoError(t, f.UpdateGuest(jane))
	oldID := f.View().Draft.ID

	require.NoError(t, f.Reset())
	v = f.View()
	assert.Equal(t, paidPackage.ID, v.Draft.PackageID)
	assert.Empty(t, v.Draft.Slot)
	assert.Empty(t, v.Draft.Guest.Name)
	assert.Equal(t, "2025-03-10", v.Draft.Date)
	assert.NotEqual(t, oldID, v.Draft.ID)
}

func TestFlow_Busy(t *testing.T) {
	api := newBackend()
	api.bookedGate = make(chan struct{})
	f := newPublicFlow(api, nil, nil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, f.Load(context.Background(), linkQuery()))
	}()

	require.Eventually(t, func() bool { return f.View().CheckingSlots }, time.Second, 5*time.Millisecond)
	assert.True(t, f.View().Busy)
	assert.ErrorIs(t, f.SelectSlot("09:00"), ErrBusy)
	assert.ErrorIs(t, f.Submit(context.Background()), ErrBusy)

	close(api.bookedGate)
	wg.Wait()

	v := f.View()
	assert.False(t, v.Busy)
	assert.False(t, v.CheckingSlots)
	assert.NoError(t, f.SelectSlot("09:00"))
}

func TestFlow_Owner(t *testing.T) {
	api := newBackend()
	owner := &fakeOwner{owner: &models.Owner{ID: "7", Name: "Olga"}, packages: []models.Package{paidPackage}}
	f := New(OwnerConfig(), Deps{Backend: api, Resolver: NewOwnerResolver(owner, nil)})
	ctx := context.Background()

	require.NoError(t, f.Load(ctx, nil))
	v := f.View()
	assert.Len(t, v.Slots, 12)
	assert.Equal(t, "Olga", v.OwnerName)
	assert.Empty(t, v.PaymentMethods)

	require.NoError(t, f.SetDate(ctx, "2025-03-10"))
	assert.ErrorIs(t, f.SelectSlot("00:30"), ErrValidation)
	require.NoError(t, f.SelectSlot("14:00"))
	require.NoError(t, f.UpdateGuest(jane))

	assert.ErrorIs(t, f.Submit(ctx), ErrValidation)
	assert.Equal(t, "Please select a package to create a booking.", f.View().Error)

	require.NoError(t, f.SelectPackage(paidPackage.ID))
	require.NoError(t, f.SetPaymentOptions(ctx, true, ""))
	assert.False(t, f.View().NeedsPayment)

	require.NoError(t, f.Submit(ctx))
	assert.Equal(t, StepConfirm, f.View().Step)
	require.Len(t, api.bookings, 1)
	assert.Equal(t, models.ID("7"), api.bookings[0].UserID)
	assert.Empty(t, api.bookings[0].LinkSlug)

	require.NoError(t, f.Reset())
	assert.Empty(t, f.View().Draft.PackageID)
}

func TestFlow_OwnerRequiresValidEmail(t *testing.T) {
	api := newBackend()
	owner := &fakeOwner{owner: &models.Owner{ID: "7", Name: "Olga"}, packages: []models.Package{freePackage}}
	f := New(OwnerConfig(), Deps{Backend: api, Resolver: NewOwnerResolver(owner, nil)})
	ctx := context.Background()

	require.NoError(t, f.Load(ctx, nil))
	fill(t, f, freePackage.ID)
	require.NoError(t, f.UpdateGuest(models.GuestDetails{Name: "Jane Doe", Email: "jane@x", Phone: "555-1000"}))

	assert.ErrorIs(t, f.Submit(ctx), ErrValidation)
	assert.Equal(t, "Please enter a valid email address", f.View().Error)
	assert.Zero(t, api.count("CreateBooking"))

	require.NoError(t, f.UpdateGuest(jane))
	require.NoError(t, f.Submit(ctx))
	assert.Equal(t, StepConfirm, f.View().Step)

	// The public form only needs a non-blank address.
	public := newPublicFlow(newBackend(), nil, nil)
	require.NoError(t, public.Load(ctx, linkQuery()))
	fill(t, public, freePackage.ID)
	require.NoError(t, public.UpdateGuest(models.GuestDetails{Name: "Jane Doe", Email: "jane@x", Phone: "555-1000"}))
	require.NoError(t, public.Submit(ctx))
}

func TestFlow_OwnerUnauthenticated(t *testing.T) {
	owner := &fakeOwner{userErr: errors.New("network down"), packages: []models.Package{freePackage}}
	f := New(OwnerConfig(), Deps{Backend: newBackend(), Resolver: NewOwnerResolver(owner, nil)})
	ctx := context.Background()

	require.NoError(t, f.Load(ctx, nil))
	fill(t, f, freePackage.ID)
	// fill uses 09:00 which is on the owner grid.
	assert.ErrorIs(t, f.Submit(ctx), ErrValidation)
	assert.Equal(t, "User not authenticated", f.View().Error)

	expired := &fakeOwner{userErr: &backend.APIError{Status: 401, Message: "Unauthorized"}}
	g := New(OwnerConfig(), Deps{Backend: newBackend(), Resolver: NewOwnerResolver(expired, nil)})
	assert.ErrorIs(t, g.Load(ctx, nil), backend.ErrUnauthorized)
}

func indexOf(calls []string, name string) int {
	for i, c := range calls {
		if c == name {
			return i
		}
	}
	return -1
}

func assertPendingCleared(t *testing.T, store domain.Store) {
	t.Helper()
	for _, key := range models.PendingKeys {
		raw, err := store.Get(context.Background(), key)
		require.NoError(t, err)
		assert.Nil(t, raw, key)
	}
}
