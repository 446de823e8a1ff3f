package bookingflow

import "dontforget/internal/models"

type Step string

const (
	StepSelect  Step = "select"
	StepPayment Step = "payment"
	StepConfirm Step = "confirm"
)

type SlotView struct {
	Time     string `json:"time"`
	Booked   bool   `json:"booked"`
	Selected bool   `json:"selected"`
}

// View is the renderable state of a flow.
type View struct {
	Step               Step                   `json:"step"`
	OwnerName          string                 `json:"owner_name"`
	Branding           models.Branding        `json:"branding"`
	LinkSlug           string                 `json:"link_slug,omitempty"`
	LinkError          string                 `json:"link_error,omitempty"`
	IsFull             bool                   `json:"is_full"`
	RequirePayment     bool                   `json:"require_payment"`
	PaymentPolicy      string                 `json:"payment_policy"`
	Packages           []models.Package       `json:"packages"`
	PackagePreSelected bool                   `json:"package_pre_selected"`
	Draft              models.BookingDraft    `json:"draft"`
	Slots              []SlotView             `json:"slots"`
	CheckingSlots      bool                   `json:"checking_availability"`
	CanSubmit          bool                   `json:"can_submit"`
	NeedsPayment       bool                   `json:"needs_payment"`
	PaymentMethods     []models.PaymentMethod `json:"payment_methods,omitempty"`
	StripeKey          string                 `json:"stripe_key,omitempty"`
	PaymentReady       bool                   `json:"payment_ready"`
	CardAttached       bool                   `json:"card_attached"`
	Busy               bool                   `json:"busy"`
	Error              string                 `json:"error,omitempty"`
	Notice             string                 `json:"notice,omitempty"`
	BookingID          models.ID              `json:"booking_id,omitempty"`
	RedirectURL        string                 `json:"redirect_url,omitempty"`
	RedirectAfterMS    int64                  `json:"redirect_after_ms,omitempty"`
	CleanURL           string                 `json:"clean_url,omitempty"`
}
