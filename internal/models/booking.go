package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
)

type PaymentMethod string

const (
	MethodStripe PaymentMethod = "stripe"
	MethodPayPal PaymentMethod = "paypal"
)

// Branding is the owner's public appearance on the booking page.
type Branding struct {
	DisplayName string `json:"display_name"`
	Color       string `json:"color"`
	Logo        string `json:"logo"`
}

// BookingLink is the read-only projection of a shareable slug.
type BookingLink struct {
	Slug           string   `json:"slug"`
	UserID         ID       `json:"user_id"`
	OwnerName      string   `json:"owner_name"`
	Branding       Branding `json:"branding"`
	Package        *Package `json:"package,omitempty"`
	StripeKey      string   `json:"stripe_key,omitempty"`
	PayPalClientID string   `json:"paypal_client_id,omitempty"`
	IsFull         bool     `json:"is_full"`
	RequirePayment bool     `json:"require_payment"`
	RedirectURL    string   `json:"redirect_url,omitempty"`
}

// HasStripe reports whether the link carries a Stripe publishable key.
func (l *BookingLink) HasStripe() bool {
	return l != nil && l.StripeKey != ""
}

func (l *BookingLink) HasPayPal() bool {
	return l != nil && l.PayPalClientID != ""
}

type Package struct {
	ID          ID              `json:"id"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Duration    int             `json:"duration"`
	Description string          `json:"description,omitempty"`
}

// Amount is the price rounded to cents.
func (p *Package) Amount() decimal.Decimal {
	if p == nil {
		return decimal.Zero
	}
	return p.Price.Round(2)
}

// Priced reports whether the package costs more than zero.
func (p *Package) Priced() bool {
	return p != nil && p.Amount().IsPositive()
}

type GuestDetails struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Comment string `json:"comment,omitempty"`
}

// Complete reports whether name, email and phone are non-blank.
func (g GuestDetails) Complete() bool {
	return strings.TrimSpace(g.Name) != "" &&
		strings.TrimSpace(g.Email) != "" &&
		strings.TrimSpace(g.Phone) != ""
}

// BookingDraft is the pre-submission form state.
type BookingDraft struct {
	ID          string        `json:"id"`
	Date        string        `json:"date"`
	Slot        string        `json:"slot"`
	Guest       GuestDetails  `json:"guest"`
	PackageID   ID            `json:"package_id"`
	PayNow      bool          `json:"pay_now"`
	Method      PaymentMethod `json:"payment_method"`
	MeetingLink string        `json:"meeting_link"`
}

// BookingPayload is the server-bound body of POST /bookings and of the
// PayPal capture call.
type BookingPayload struct {
	UserID           ID            `json:"user_id"`
	PackageID        ID            `json:"package_id,omitempty"`
	GuestName        string        `json:"guest_name"`
	GuestEmail       string        `json:"guest_email"`
	GuestPhone       string        `json:"guest_phone"`
	GuestComment     string        `json:"guest_comment,omitempty"`
	Date             string        `json:"date"`
	TimeSlot         string        `json:"time_slot"`
	MeetingLink      string        `json:"meeting_link"`
	LinkSlug         string        `json:"link_slug,omitempty"`
	PaymentStatus    PaymentStatus `json:"payment_status,omitempty"`
	PaymentReference string        `json:"payment_reference,omitempty"`
}

// Booking is the server-owned record.
type Booking struct {
	ID            ID            `json:"id"`
	UserID        ID            `json:"user_id,omitempty"`
	PackageID     ID            `json:"package_id,omitempty"`
	PackageName   string        `json:"package_name,omitempty"`
	Status        string        `json:"status"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	GuestName     string        `json:"guest_name"`
	GuestEmail    string        `json:"guest_email"`
	GuestPhone    string        `json:"guest_phone"`
	GuestComment  string        `json:"guest_comment,omitempty"`
	Date          string        `json:"date"`
	TimeSlot      string        `json:"time_slot"`
	MeetingLink   string        `json:"meeting_link,omitempty"`
	CreatedAt     string        `json:"created_at,omitempty"`
}

const BookingStatusCancelled = "cancelled"

// StartsAt combines the booking date and slot in loc.
func (b *Booking) StartsAt(loc *time.Location) (time.Time, bool) {
	day, err := time.ParseInLocation(DateLayout, firstDatePart(b.Date), loc)
	if err != nil {
		return time.Time{}, false
	}
	slot := b.TimeSlot
	if slot == "" {
		slot = "00:00"
	}
	clock, err := time.Parse(SlotLayout, slot)
	if err != nil {
		return time.Time{}, false
	}
	return day.Add(time.Duration(clock.Hour())*time.Hour + time.Duration(clock.Minute())*time.Minute), true
}

func firstDatePart(raw string) string {
	if len(raw) >= len(DateLayout) {
		return raw[:len(DateLayout)]
	}
	return raw
}

// PaymentReference is the provider-side proof attached to a paid booking.
type PaymentReference struct {
	Provider  PaymentMethod `json:"provider"`
	Reference string        `json:"reference"`
}

// Resumable task kinds.
const (
	TaskPayPalCapture = "paypal_capture"
)

// ResumableTask is persisted before a redirect that leaves the gateway and
// replayed once on the next page load.
type ResumableTask struct {
	Kind      string         `json:"kind"`
	Payload   BookingPayload `json:"payload"`
	CreatedAt time.Time      `json:"created_at"`
}

// Owner is the authenticated account behind owner endpoints.
type Owner struct {
	ID    ID     `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// OwnerLink is a booking link as the owner sees it in the links list.
type OwnerLink struct {
	ID            ID     `json:"id"`
	Name          string `json:"name"`
	Slug          string `json:"slug"`
	PackageID     ID     `json:"package_id,omitempty"`
	BookingLimit  *int   `json:"booking_limit"`
	BookingsCount int    `json:"bookings_count"`
	RedirectURL   string `json:"redirect_url,omitempty"`
	ShareURL      string `json:"share_url,omitempty"`
}

// CreateLinkRequest is the body of POST /links. Nil fields are sent as null.
type CreateLinkRequest struct {
	Name         string  `json:"name"`
	PackageID    *ID     `json:"package_id"`
	BookingLimit *int    `json:"booking_limit"`
	RedirectURL  *string `json:"redirect_url"`
}
