package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"dontforget/internal/models"
)

// ErrLinkNotFound is returned when a slug does not resolve.
var ErrLinkNotFound = errors.New("booking link not found")

type publicLinkResponse struct {
	UserID   models.ID       `json:"user_id"`
	Branding models.Branding `json:"branding"`
	Link     struct {
		Name           string `json:"name"`
		IsFull         bool   `json:"is_full"`
		RedirectURL    string `json:"redirect_url"`
		RequirePayment bool   `json:"require_payment"`
	} `json:"link"`
	Package *models.Package `json:"package"`
	Stripe  string          `json:"stripe"`
	PayPal  string          `json:"paypal"`
}

// ResolveLink fetches GET /links/public/{slug}.
func (c *Client) ResolveLink(ctx context.Context, slug string) (*models.BookingLink, error) {
	cacheKey := "link:" + slug
	var resp publicLinkResponse

	if !c.readCache(ctx, cacheKey, &resp) {
		if err := c.doGet(ctx, c.endpoint("links", "public", slug), &resp); err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.Status == 404 {
				return nil, fmt.Errorf("%w: %w", ErrLinkNotFound, err)
			}
			return nil, err
		}
		c.writeCache(ctx, cacheKey, resp)
	}

	owner := resp.Branding.DisplayName
	if owner == "" {
		owner = resp.Link.Name
	}
	if owner == "" {
		owner = models.DefaultOwnerName
	}
	branding := resp.Branding
	if branding.Color == "" {
		branding.Color = models.DefaultBrandColor
	}

	return &models.BookingLink{
		Slug:           slug,
		UserID:         resp.UserID,
		OwnerName:      owner,
		Branding:       branding,
		Package:        resp.Package,
		StripeKey:      resp.Stripe,
		PayPalClientID: resp.PayPal,
		IsFull:         resp.Link.IsFull,
		RequirePayment: resp.Link.RequirePayment,
		RedirectURL:    resp.Link.RedirectURL,
	}, nil
}

// UserPackages fetches GET /users/{userId}/packages.
func (c *Client) UserPackages(ctx context.Context, userID models.ID) ([]models.Package, error) {
	cacheKey := "packages:" + userID.String()
	var wrap struct {
		Packages []models.Package `json:"packages"`
	}

	if c.readCache(ctx, cacheKey, &wrap) {
		return wrap.Packages, nil
	}
	if err := c.doGet(ctx, c.endpoint("users", userID.String(), "packages"), &wrap); err != nil {
		return nil, err
	}
	c.writeCache(ctx, cacheKey, wrap)
	return wrap.Packages, nil
}

// BookedSlots fetches GET /users/{userId}/availability/{date}. Never cached.
func (c *Client) BookedSlots(ctx context.Context, userID models.ID, date string) ([]string, error) {
	var resp struct {
		BookedSlots []string `json:"booked_slots"`
	}
	if err := c.doGet(ctx, c.endpoint("users", userID.String(), "availability", date), &resp); err != nil {
		return nil, err
	}
	return resp.BookedSlots, nil
}

type bookingEnvelope struct {
	Booking *models.Booking `json:"booking"`
}

// CreateBooking posts to /bookings. A non-empty idempotencyKey is sent as
// the Idempotency-Key header.
func (c *Client) CreateBooking(ctx context.Context, payload models.BookingPayload, idempotencyKey string) (*models.Booking, error) {
	var headers map[string]string
	if idempotencyKey != "" {
		headers = map[string]string{"Idempotency-Key": idempotencyKey}
	}

	var resp bookingEnvelope
	if err := c.doPost(ctx, c.endpoint("bookings"), payload, &resp, headers); err != nil {
		return nil, err
	}
	if resp.Booking == nil {
		return &models.Booking{}, nil
	}
	return resp.Booking, nil
}

func (c *Client) CreateStripeIntent(ctx context.Context, req models.StripeIntentRequest) (string, error) {
	var resp struct {
		ClientSecret string `json:"client_secret"`
	}
	if err := c.doPost(ctx, c.endpoint("payments", "stripe", "create-intent"), req, &resp, nil); err != nil {
		return "", err
	}
	if resp.ClientSecret == "" {
		return "", &APIError{Status: 502, Message: "Failed to initialize payment."}
	}
	return resp.ClientSecret, nil
}

func (c *Client) ConfirmStripePayment(ctx context.Context, intentID string, bookingID models.ID) error {
	body := struct {
		PaymentIntentID string    `json:"payment_intent_id"`
		BookingID       models.ID `json:"booking_id"`
	}{PaymentIntentID: intentID, BookingID: bookingID}
	return c.doPost(ctx, c.endpoint("payments", "stripe", "confirm"), body, nil, nil)
}

func (c *Client) CreatePayPalOrder(ctx context.Context, req models.PayPalOrderRequest) (*models.PayPalOrder, error) {
	var resp models.PayPalOrder
	if err := c.doPost(ctx, c.endpoint("payments", "paypal", "create-order"), req, &resp, nil); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CapturePayPal posts the order id together with the stored booking payload.
// The returned booking is nil when the backend did not create one.
func (c *Client) CapturePayPal(ctx context.Context, orderID string, payload models.BookingPayload) (*models.Booking, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode capture payload: %w", err)
	}
	body := map[string]any{}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("encode capture payload: %w", err)
	}
	body["order_id"] = orderID

	var resp bookingEnvelope
	if err := c.doPost(ctx, c.endpoint("payments", "paypal", "capture"), body, &resp, nil); err != nil {
		return nil, err
	}
	return resp.Booking, nil
}
