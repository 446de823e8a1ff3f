package bookingflow

import (
	"context"
	"encoding/base64"
	"errors"
	"net/url"
	"testing"

	"dontforget/internal/backend"
	"dontforget/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeLegacy(t *testing.T, raw string) string {
	t.Helper()
	return base64.StdEncoding.EncodeToString([]byte(raw))
}

func TestPublicResolver_Link(t *testing.T) {
	api := newBackend()
	api.link.RequirePayment = true
	api.link.Branding = models.Branding{DisplayName: "Spa", Color: "#000000"}

	res, err := NewPublicResolver(api, nil).Resolve(context.Background(), linkQuery("packageId", "2"))
	require.NoError(t, err)

	assert.Equal(t, models.ID("42"), res.OwnerID)
	assert.Equal(t, "Spa Studio", res.OwnerName)
	assert.Equal(t, "#000000", res.Branding.Color)
	assert.True(t, res.RequirePayment)
	assert.Len(t, res.Packages, 2)
	assert.True(t, res.PackagePreSelected)
	assert.Equal(t, models.ID("2"), res.PreselectedPackage)
	assert.Equal(t, []string{"ResolveLink", "UserPackages"}, api.Calls())
}

func TestPublicResolver_LinkServerMessage(t *testing.T) {
	api := newBackend()
	api.linkErr = &backend.APIError{Status: 410, Message: "This link was disabled"}

	res, err := NewPublicResolver(api, nil).Resolve(context.Background(), linkQuery())
	require.NoError(t, err)
	assert.Equal(t, "This link was disabled", res.Banner)
	assert.True(t, res.OwnerID.Empty())
	assert.Equal(t, "spa", res.Link.Slug)
}

func TestPublicResolver_PackagesFailureIsQuiet(t *testing.T) {
	api := newBackend()
	api.packagesErr = errors.New("boom")

	res, err := NewPublicResolver(api, nil).Resolve(context.Background(), linkQuery())
	require.NoError(t, err)
	assert.Empty(t, res.Banner)
	assert.Empty(t, res.Packages)
	assert.Equal(t, models.ID("42"), res.OwnerID)
}

func TestPublicResolver_Legacy(t *testing.T) {
	api := newBackend()
	pkgs := encodeLegacy(t, `[{"id":3,"n":"Massage","pr":"45.5","du":"60"},{"id":"4","n":"Extra","pr":10,"du":15}]`)
	q := url.Values{
		"userId":    {"77"},
		"pkgs":      {pkgs},
		"packageId": {"4"},
		"payment":   {"required"},
	}

	res, err := NewPublicResolver(api, nil).Resolve(context.Background(), q)
	require.NoError(t, err)

	assert.Equal(t, models.ID("77"), res.OwnerID)
	assert.Equal(t, "us", res.OwnerName)
	assert.True(t, res.RequirePayment)
	require.Len(t, res.Packages, 2)
	assert.Equal(t, "45.5", res.Packages[0].Price.String())
	assert.Equal(t, 60, res.Packages[0].Duration)
	assert.Equal(t, models.ID("4"), res.PreselectedPackage)
	assert.Empty(t, api.Calls())
}

func TestPublicResolver_LegacyInvalidPayloadFallsBack(t *testing.T) {
	api := newBackend()
	q := url.Values{"userId": {"77"}, "pkgs": {"%%%not-base64"}}

	res, err := NewPublicResolver(api, nil).Resolve(context.Background(), q)
	require.NoError(t, err)
	assert.Len(t, res.Packages, 2)
	assert.Equal(t, []string{"UserPackages"}, api.Calls())
}

func TestDecodeLegacyPackages(t *testing.T) {
	raw := `[{"id":1,"n":"A","pr":"abc","du":null}]`

	tests := []struct {
		name    string
		encoded string
	}{
		{"std", base64.StdEncoding.EncodeToString([]byte(raw))},
		{"url", base64.URLEncoding.EncodeToString([]byte(raw))},
		{"raw std", base64.RawStdEncoding.EncodeToString([]byte(raw))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pkgs, err := DecodeLegacyPackages(tt.encoded)
			require.NoError(t, err)
			require.Len(t, pkgs, 1)
			assert.Equal(t, models.ID("1"), pkgs[0].ID)
			assert.True(t, pkgs[0].Price.IsZero())
			assert.Zero(t, pkgs[0].Duration)
		})
	}

	_, err := DecodeLegacyPackages(base64.StdEncoding.EncodeToString([]byte("{")))
	assert.Error(t, err)
}

func TestOwnerResolver_PackagesNotice(t *testing.T) {
	owner := &fakeOwner{owner: &models.Owner{ID: "7", Name: "Olga"}, packagesErr: errors.New("down")}

	res, err := NewOwnerResolver(owner, nil).Resolve(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "Failed to load packages", res.Notice)
	assert.Equal(t, models.ID("7"), res.OwnerID)
}

func TestCleanURL(t *testing.T) {
	u, err := url.Parse("https://app.example/book?link=spa&token=EC-1&PayerID=P")
	require.NoError(t, err)
	assert.Equal(t, "/book?link=spa", CleanURL(u))
	assert.Empty(t, CleanURL(nil))
}

func TestMeetingLink(t *testing.T) {
	assert.Empty(t, MeetingLink("2025-03-10", "", "ABC123"))
	assert.Equal(t, "https://dontforget.app/meet/2025-03-10-09:00-ABC123", MeetingLink("2025-03-10", "09:00", "ABC123"))

	token := newMeetingToken()
	assert.Len(t, token, models.MeetingTokenLength)
	assert.Regexp(t, `^[0-9A-F]{6}$`, token)
}

func TestValidEmail(t *testing.T) {
	assert.True(t, validEmail("jane@x.com"))
	assert.True(t, validEmail(" jane@x.com "))
	assert.False(t, validEmail("jane@x"))
	assert.False(t, validEmail("jane x@y.com"))
	assert.False(t, validEmail(""))
}

func TestConfig_SlotGrid(t *testing.T) {
	assert.Len(t, PublicConfig("").SlotGrid(), 48)
	assert.Len(t, Config{SlotGranularityMinutes: 60}.SlotGrid(), 24)
	assert.Equal(t, "16:00", OwnerConfig().SlotGrid()[11])
}
