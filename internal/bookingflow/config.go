package bookingflow

import (
	"fmt"
	"time"

	"dontforget/internal/models"
)

// PaymentPolicy decides whether a flow may route through the payment step.
type PaymentPolicy int

const (
	// PaymentOptional pays when the link requires it or the guest opts in.
	PaymentOptional PaymentPolicy = iota
	// PaymentRequired pays for every priced package.
	PaymentRequired
	// PaymentDisabled never pays.
	PaymentDisabled
)

func (p PaymentPolicy) String() string {
	switch p {
	case PaymentRequired:
		return "required"
	case PaymentDisabled:
		return "disabled"
	default:
		return "optional"
	}
}

// AuthContext tells whose booking form the flow backs.
type AuthContext int

const (
	Guest AuthContext = iota
	Owner
)

var ownerSlots = []string{
	"09:00", "09:30", "10:00", "10:30", "11:00", "11:30", "12:00",
	"14:00", "14:30", "15:00", "15:30", "16:00",
}

// Config parameterizes one booking flow. The public page and the owner's
// internal form are the same machine with different configs.
type Config struct {
	SlotGranularityMinutes int
	// Slots overrides the generated grid when set.
	Slots         []string
	PaymentPolicy PaymentPolicy
	AuthContext   AuthContext
	// PageURL is the absolute URL of the booking page, used for PayPal
	// return and cancel URLs.
	PageURL       string
	RedirectDelay time.Duration
}

func PublicConfig(pageURL string) Config {
	return Config{
		SlotGranularityMinutes: 30,
		PaymentPolicy:          PaymentOptional,
		AuthContext:            Guest,
		PageURL:                pageURL,
		RedirectDelay:          models.DefaultRedirectDelay * time.Millisecond,
	}
}

func OwnerConfig() Config {
	return Config{
		Slots:         append([]string(nil), ownerSlots...),
		PaymentPolicy: PaymentDisabled,
		AuthContext:   Owner,
	}
}

// SlotGrid lists the selectable start times in order.
func (c Config) SlotGrid() []string {
	if len(c.Slots) > 0 {
		return append([]string(nil), c.Slots...)
	}
	step := c.SlotGranularityMinutes
	if step <= 0 || step > 24*60 {
		step = 30
	}
	slots := make([]string, 0, 24*60/step)
	for m := 0; m < 24*60; m += step {
		slots = append(slots, fmt.Sprintf("%02d:%02d", m/60, m%60))
	}
	return slots
}

func (c Config) messages() messages {
	if c.AuthContext == Owner {
		return ownerMessages
	}
	return guestMessages
}
