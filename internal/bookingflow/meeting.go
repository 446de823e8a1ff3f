package bookingflow

import (
	"net/mail"
	"regexp"
	"strings"

	"dontforget/internal/models"

	"github.com/google/uuid"
)

// newMeetingToken returns a short upper-case token for meeting links.
func newMeetingToken() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return strings.ToUpper(raw[:models.MeetingTokenLength])
}

// MeetingLink builds the meeting URL for a date and slot. It is empty while
// no slot is chosen.
func MeetingLink(date, slot, token string) string {
	if slot == "" {
		return ""
	}
	return models.MeetingLinkBase + date + "-" + slot + "-" + token
}

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// validEmail is the address check of the owner's booking form. Guest intake
// only requires the field to be non-blank.
func validEmail(s string) bool {
	s = strings.TrimSpace(s)
	if !emailPattern.MatchString(s) {
		return false
	}
	_, err := mail.ParseAddress(s)
	return err == nil
}
