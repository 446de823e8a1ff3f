package models

import "github.com/shopspring/decimal"

// Money is an amount sent to the backend as a bare JSON number with cents.
type Money decimal.Decimal

func NewMoney(d decimal.Decimal) Money { return Money(d.Round(2)) }

func (m Money) Decimal() decimal.Decimal { return decimal.Decimal(m) }

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(decimal.Decimal(m).StringFixed(2)), nil
}

func (m *Money) UnmarshalJSON(data []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return err
	}
	*m = Money(d)
	return nil
}

type StripeIntentRequest struct {
	PackageID ID    `json:"package_id"`
	UserID    ID    `json:"user_id"`
	Amount    Money `json:"amount"`
}

type PayPalOrderRequest struct {
	PackageID ID     `json:"package_id"`
	UserID    ID     `json:"user_id"`
	Amount    Money  `json:"amount"`
	ReturnURL string `json:"return_url"`
	CancelURL string `json:"cancel_url"`
	LinkSlug  string `json:"link_slug,omitempty"`
}

type PayPalOrder struct {
	OrderID     string `json:"order_id"`
	ApprovalURL string `json:"approval_url"`
}

// PaymentRequest is what the orchestrator hands to a provider adapter.
type PaymentRequest struct {
	UserID    ID
	PackageID ID
	Amount    decimal.Decimal
	Guest     GuestDetails
	LinkSlug  string
	ReturnURL string
	CancelURL string
}

type PaymentOutcome string

const (
	// OutcomeSucceeded means funds are authorized and a booking may be created.
	OutcomeSucceeded PaymentOutcome = "succeeded"
	// OutcomeRedirect means the guest must leave for the provider's approval page.
	OutcomeRedirect PaymentOutcome = "redirect"
)

type PaymentResult struct {
	Outcome     PaymentOutcome
	Reference   string
	RedirectURL string
}
