package models

const (
	DateLayout = "2006-01-02"
	SlotLayout = "15:04"
)

// Session keys of the PayPal hand-off. All three are written in one batch
// and removed together.
const (
	KeyPendingBookingData = "pending_booking_data"
	KeyPendingOrderID     = "pending_paypal_order_id"
	KeyPendingUserID      = "pending_paypal_user_id"
)

// PendingKeys lists the hand-off keys in write order.
var PendingKeys = []string{KeyPendingBookingData, KeyPendingOrderID, KeyPendingUserID}

const (
	KeySeenNotifications = "seenNotifications"
	KeyTaskDraft         = "task_draft"
	KeyFollowUpDraft     = "follow_up_draft"
)

const (
	DefaultOwnerName      = "the account owner"
	AnonymousOwnerName    = "us"
	DefaultBrandColor     = "#FF7043"
	MeetingLinkBase       = "https://dontforget.app/meet/"
	MeetingTokenLength    = 6
	DefaultRedirectDelay  = 2000
	PaymentOptionalParam  = "optional"
	PaymentRequiredParam  = "required"
	PayPalReturnTokenKey  = "token"
	PayPalReturnPayerKey  = "PayerID"
	LinkQueryKey          = "link"
	LegacyUserQueryKey    = "userId"
	LegacyPackagesKey     = "pkgs"
	LegacyPackageQueryKey = "packageId"
	LegacyPaymentQueryKey = "payment"
)
