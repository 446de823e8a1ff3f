package notify

import (
	"fmt"
	"sort"
	"time"

	"dontforget/internal/models"
)

const displayDate = "Jan 2, 2006"

var typeOrder = map[models.NotificationType]int{
	models.NotificationOverdue:  0,
	models.NotificationPayment:  1,
	models.NotificationReminder: 2,
	models.NotificationNew:      3,
}

// Build derives the owner's notifications from bookings, tasks and
// settings. A nil settings value enables every kind.
func Build(bookings []models.Booking, tasks []models.Task, settings *models.Settings, now time.Time, loc *time.Location) []models.Notification {
	if loc == nil {
		loc = time.UTC
	}
	toggles := models.NotificationToggles{}
	if settings != nil {
		toggles = settings.Notifications
	}

	out := make([]models.Notification, 0)
	dayAhead := now.Add(24 * time.Hour)
	dayAgo := now.Add(-24 * time.Hour)

	if toggles.RemindersOn() {
		for i := range bookings {
			b := &bookings[i]
			if b.Status == models.BookingStatusCancelled {
				continue
			}
			start, ok := b.StartsAt(loc)
			if !ok || !start.After(now) || start.After(dayAhead) {
				continue
			}
			out = append(out, models.Notification{
				ID:        "reminder-" + b.ID.String(),
				Type:      models.NotificationReminder,
				Title:     "Upcoming Booking",
				Message:   fmt.Sprintf("%s - %s at %s", b.GuestName, formatDate(b.Date, loc), b.TimeSlot),
				Time:      timeUntil(start, now),
				BookingID: b.ID,
			})
		}
	}

	if toggles.PaymentsOn() {
		for i := range bookings {
			b := &bookings[i]
			if b.PaymentStatus != models.PaymentPending || b.Status == models.BookingStatusCancelled {
				continue
			}
			out = append(out, models.Notification{
				ID:        "payment-" + b.ID.String(),
				Type:      models.NotificationPayment,
				Title:     "Payment Pending",
				Message:   fmt.Sprintf("%s - %s", b.GuestName, formatDate(b.Date, loc)),
				BookingID: b.ID,
			})
		}
	}

	if toggles.OverdueOn() {
		for i := range tasks {
			t := &tasks[i]
			if t.IsCompleted() {
				continue
			}
			due, ok := t.Due(loc)
			if !ok || !due.Before(now) {
				continue
			}
			title := t.Title
			if title == "" {
				title = t.Name
			}
			if title == "" {
				title = "Untitled Task"
			}
			out = append(out, models.Notification{
				ID:      "overdue-" + t.ID.String(),
				Type:    models.NotificationOverdue,
				Title:   "Overdue Task",
				Message: title,
				Time:    due.In(loc).Format(displayDate),
				TaskID:  t.ID,
			})
		}
	}

	for i := range bookings {
		b := &bookings[i]
		created, ok := parseTimestamp(b.CreatedAt)
		if !ok || !created.After(dayAgo) {
			continue
		}
		out = append(out, models.Notification{
			ID:        "new-" + b.ID.String(),
			Type:      models.NotificationNew,
			Title:     "New Booking",
			Message:   fmt.Sprintf("%s booked for %s", b.GuestName, formatDate(b.Date, loc)),
			Time:      created.In(loc).Format(displayDate),
			BookingID: b.ID,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return typeOrder[out[i].Type] < typeOrder[out[j].Type]
	})
	return out
}

func formatDate(raw string, loc *time.Location) string {
	if len(raw) >= len(models.DateLayout) {
		if d, err := time.ParseInLocation(models.DateLayout, raw[:len(models.DateLayout)], loc); err == nil {
			return d.Format(displayDate)
		}
	}
	return raw
}

func parseTimestamp(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

func timeUntil(start, now time.Time) string {
	diff := start.Sub(now)
	switch {
	case diff < 0:
		return "Past"
	case diff < time.Hour:
		return fmt.Sprintf("in %d min", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("in %dh", int(diff.Hours()))
	default:
		return fmt.Sprintf("in %dd", int(diff.Hours())/24)
	}
}
