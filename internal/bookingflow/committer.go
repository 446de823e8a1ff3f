package bookingflow

import (
	"context"

	"dontforget/internal/backend"
	"dontforget/internal/domain"
	"dontforget/internal/events"
	"dontforget/internal/metrics"
	"dontforget/internal/models"

	"github.com/rs/zerolog"
)

// Booking creation paths, used as metric labels.
const (
	PathUnpaid = "unpaid"
	PathStripe = "stripe"
	PathPayPal = "paypal"
)

// Committer is the single place a booking gets created.
type Committer struct {
	api    domain.BookingBackend
	events domain.EventPublisher
	logger *zerolog.Logger
}

func NewCommitter(api domain.BookingBackend, publisher domain.EventPublisher, logger *zerolog.Logger) *Committer {
	return &Committer{api: api, events: publisher, logger: nopIfNil(logger)}
}

// Commit creates the booking. With a nil ref the booking is unpaid and
// idempotencyKey should identify the draft; with a ref the booking is paid
// and the payment reference is the key.
func (c *Committer) Commit(ctx context.Context, payload models.BookingPayload, ref *models.PaymentReference, idempotencyKey string) (*models.Booking, error) {
	return c.commit(ctx, payload, ref, idempotencyKey, nil)
}

// CommitCaptured finishes a PayPal capture. A booking already returned by the
// capture call is adopted instead of creating a second one.
func (c *Committer) CommitCaptured(ctx context.Context, payload models.BookingPayload, ref *models.PaymentReference, captured *models.Booking) (*models.Booking, error) {
	return c.commit(ctx, payload, ref, "", captured)
}

func (c *Committer) commit(ctx context.Context, payload models.BookingPayload, ref *models.PaymentReference, key string, captured *models.Booking) (*models.Booking, error) {
	path := PathUnpaid
	payload.PaymentStatus = models.PaymentPending
	payload.PaymentReference = ""
	if ref != nil {
		path = string(ref.Provider)
		payload.PaymentStatus = models.PaymentPaid
		payload.PaymentReference = ref.Reference
		key = ref.Reference
	}

	if captured != nil && !captured.ID.Empty() {
		c.created(payload, captured, path)
		return captured, nil
	}

	booking, err := c.api.CreateBooking(ctx, payload, key)
	if err != nil {
		c.logger.Error().Err(err).
			Str("user_id", payload.UserID.String()).
			Str("path", path).
			Msg("Error creating booking")
		return nil, flowError(ErrBookingCreation, backend.Message(err, msgBookingFailed), err)
	}

	if ref != nil && ref.Provider == models.MethodStripe && !booking.ID.Empty() {
		if err := c.api.ConfirmStripePayment(ctx, ref.Reference, booking.ID); err != nil {
			c.logger.Error().Err(err).
				Str("booking_id", booking.ID.String()).
				Str("payment_intent_id", ref.Reference).
				Msg("Error confirming payment status")
			if c.events != nil {
				_ = c.events.PublishJSON(events.EventStripeConfirmErr, events.PaymentEventPayload{
					Provider:  string(models.MethodStripe),
					UserID:    payload.UserID.String(),
					Reference: ref.Reference,
					Reason:    err.Error(),
				})
			}
		}
	}

	c.created(payload, booking, path)
	return booking, nil
}

func (c *Committer) created(payload models.BookingPayload, booking *models.Booking, path string) {
	metrics.IncBookingCreated(path)
	c.logger.Info().
		Str("booking_id", booking.ID.String()).
		Str("user_id", payload.UserID.String()).
		Str("date", payload.Date).
		Str("time_slot", payload.TimeSlot).
		Str("path", path).
		Msg("Booking created")

	if c.events == nil {
		return
	}
	_ = c.events.PublishJSON(events.EventBookingCreated, events.BookingEventPayload{
		BookingID:        booking.ID.String(),
		UserID:           payload.UserID.String(),
		LinkSlug:         payload.LinkSlug,
		Date:             payload.Date,
		TimeSlot:         payload.TimeSlot,
		Path:             path,
		PaymentStatus:    string(payload.PaymentStatus),
		PaymentReference: payload.PaymentReference,
	})
}
