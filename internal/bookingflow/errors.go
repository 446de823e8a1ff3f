package bookingflow

import "errors"

var (
	ErrLinkInvalid     = errors.New("booking link invalid")
	ErrValidation      = errors.New("booking form invalid")
	ErrPaymentSetup    = errors.New("payment setup failed")
	ErrPaymentFailed   = errors.New("payment failed")
	ErrBookingCreation = errors.New("booking creation failed")
	ErrRedirectCapture = errors.New("paypal capture failed")
	ErrBusy            = errors.New("flow is busy")
	ErrSlotBooked      = errors.New("time slot already booked")
	ErrWrongStep       = errors.New("action not allowed in current step")
)

// Error is a failure rendered in the flow view.
type Error struct {
	Kind    error
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func flowError(kind error, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Err: cause}
}

const (
	msgFillRequired       = "Please fill in all required fields."
	msgLinkFull           = "This booking link has reached its booking limit."
	msgLinkInvalid        = "Invalid or expired booking link."
	msgInvalidPrice       = "Invalid package price."
	msgBookingFailed      = "Failed to create booking. Please try again."
	msgCaptureFailed      = "Failed to complete PayPal payment. Please try again."
	msgPaymentFailed      = "Payment processing failed. Please try again."
	msgPaymentLoadFailed  = "Failed to load payment processor. Please refresh the page."
	msgCardInUse          = "A card form is already attached. Go back and try again."
	msgSlotBooked         = "This time slot is already booked."
	msgSlotUnknown        = "Please choose an available time slot."
	msgDateInvalid        = "Please choose a valid date."
	msgMethodUnsupported  = "This payment method is not available."
	msgPaymentUnavailable = "Online payment is not configured for this booking link."
	msgEmailInvalid       = "Please enter a valid email address"
	msgPackagesFailed     = "Failed to load packages"
)

type messages struct {
	selectPackage string
	missingOwner  string
}

var (
	guestMessages = messages{
		selectPackage: "Please select a package to continue.",
		missingOwner:  "Invalid booking link. Missing user ID.",
	}
	ownerMessages = messages{
		selectPackage: "Please select a package to create a booking.",
		missingOwner:  "User not authenticated",
	}
)
