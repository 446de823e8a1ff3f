package bookingflow

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"dontforget/internal/backend"
	"dontforget/internal/domain"
	"dontforget/internal/events"
	"dontforget/internal/metrics"
	"dontforget/internal/models"
	"dontforget/internal/repository"

	"github.com/rs/zerolog"
)

// ResumeResult reports what a page load did with a pending PayPal hand-off.
type ResumeResult struct {
	// Attempted is false when there was nothing to resume.
	Attempted bool
	OrderID   string
	Payload   models.BookingPayload
	Booking   *models.Booking
	Err       *Error
}

// Resumer finishes a PayPal payment after the guest returns from the
// approval page. Resume is safe to call on every page load.
type Resumer struct {
	api       domain.BookingBackend
	committer *Committer
	events    domain.EventPublisher
	logger    *zerolog.Logger
}

func NewResumer(api domain.BookingBackend, committer *Committer, publisher domain.EventPublisher, logger *zerolog.Logger) *Resumer {
	return &Resumer{
		api:       api,
		committer: committer,
		events:    publisher,
		logger:    nopIfNil(logger),
	}
}

// SaveTask persists the hand-off in one atomic write before the guest is
// sent to PayPal.
func SaveTask(ctx context.Context, store domain.Store, orderID string, payload models.BookingPayload, now time.Time) error {
	task := models.ResumableTask{
		Kind:      models.TaskPayPalCapture,
		Payload:   payload,
		CreatedAt: now.UTC(),
	}
	return repository.SetManyJSON(ctx, store, map[string]any{
		models.KeyPendingBookingData: task,
		models.KeyPendingOrderID:     orderID,
		models.KeyPendingUserID:      payload.UserID.String(),
	})
}

// Resume captures a pending order. The pending keys are removed before the
// capture call is made, whatever its outcome.
func (r *Resumer) Resume(ctx context.Context, store domain.Store, query url.Values) *ResumeResult {
	orderID := strings.TrimSpace(query.Get(models.PayPalReturnTokenKey))
	if orderID == "" {
		var stored string
		if _, err := repository.GetJSON(ctx, store, models.KeyPendingOrderID, &stored); err != nil {
			r.logger.Error().Err(err).Msg("Error reading pending order id")
		}
		orderID = strings.TrimSpace(stored)
	}
	if orderID == "" {
		return &ResumeResult{}
	}

	task, ok, err := r.readTask(ctx, store)
	if err != nil {
		r.logger.Error().Err(err).Msg("Error reading pending booking data")
		return &ResumeResult{}
	}
	if !ok {
		// Nothing can be captured without the booking data.
		if err := store.Remove(ctx, models.PendingKeys...); err != nil {
			r.logger.Error().Err(err).Str("order_id", orderID).Msg("Error clearing pending PayPal keys")
		}
		return &ResumeResult{}
	}

	payload := task.Payload
	if payload.UserID.Empty() {
		var userID string
		if _, err := repository.GetJSON(ctx, store, models.KeyPendingUserID, &userID); err == nil {
			payload.UserID = models.ID(userID)
		}
	}

	if err := store.Remove(ctx, models.PendingKeys...); err != nil {
		r.logger.Error().Err(err).Str("order_id", orderID).Msg("Error clearing pending PayPal keys")
	}

	res := &ResumeResult{Attempted: true, OrderID: orderID, Payload: payload}

	captured, err := r.api.CapturePayPal(ctx, orderID, payload)
	if err != nil {
		return r.fail(res, err)
	}

	ref := &models.PaymentReference{Provider: models.MethodPayPal, Reference: orderID}
	booking, err := r.committer.CommitCaptured(ctx, payload, ref, captured)
	if err != nil {
		return r.fail(res, err)
	}

	res.Booking = booking
	metrics.IncResumption("completed")
	if r.events != nil {
		_ = r.events.PublishJSON(events.EventResumeCompleted, events.PaymentEventPayload{
			Provider:  string(models.MethodPayPal),
			UserID:    payload.UserID.String(),
			Reference: orderID,
		})
	}
	return res
}

// readTask loads the stored hand-off. It reports false when the data is
// missing or unreadable; err is only set when the store itself failed.
func (r *Resumer) readTask(ctx context.Context, store domain.Store) (models.ResumableTask, bool, error) {
	raw, err := store.Get(ctx, models.KeyPendingBookingData)
	if err != nil {
		return models.ResumableTask{}, false, err
	}
	if raw == nil {
		return models.ResumableTask{}, false, nil
	}

	var task models.ResumableTask
	if err := json.Unmarshal(raw, &task); err == nil && task.Kind != "" {
		return task, true, nil
	}
	// A bare payload is accepted as well.
	var payload models.BookingPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		r.logger.Error().Err(err).Msg("Invalid pending booking data")
		return models.ResumableTask{}, false, nil
	}
	return models.ResumableTask{Kind: models.TaskPayPalCapture, Payload: payload}, true, nil
}

func (r *Resumer) fail(res *ResumeResult, err error) *ResumeResult {
	r.logger.Error().Err(err).Str("order_id", res.OrderID).Msg("Error completing PayPal payment")
	res.Err = flowError(ErrRedirectCapture, backend.Message(err, msgCaptureFailed), err)
	metrics.IncResumption("failed")
	if r.events != nil {
		_ = r.events.PublishJSON(events.EventResumeFailed, events.PaymentEventPayload{
			Provider:  string(models.MethodPayPal),
			UserID:    res.Payload.UserID.String(),
			Reference: res.OrderID,
			Reason:    err.Error(),
		})
	}
	return res
}

// CleanURL drops PayPal's return parameters so a refresh does not capture
// again.
func CleanURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	clean := *u
	q := clean.Query()
	q.Del(models.PayPalReturnTokenKey)
	q.Del(models.PayPalReturnPayerKey)
	clean.RawQuery = q.Encode()
	return clean.RequestURI()
}
