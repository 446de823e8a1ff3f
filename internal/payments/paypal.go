package payments

import (
	"context"

	"dontforget/internal/backend"
	"dontforget/internal/models"
)

const (
	msgPayPalNotConfigured = "PayPal is not configured. Please contact the booking owner."
	msgPayPalNoApproval    = "Failed to get PayPal approval URL."
	msgPayPalFailed        = "PayPal payment failed. Please try again."
)

// OrderCreator asks the backend for a PayPal order.
type OrderCreator interface {
	CreatePayPalOrder(ctx context.Context, req models.PayPalOrderRequest) (*models.PayPalOrder, error)
}

// PayPalAdapter authorizes through PayPal's hosted approval page. It has no
// in-page element; Confirm only creates the order and hands back the
// approval URL.
type PayPalAdapter struct {
	clientID string
	orders   OrderCreator
}

func NewPayPalAdapter(clientID string, orders OrderCreator) *PayPalAdapter {
	return &PayPalAdapter{clientID: clientID, orders: orders}
}

func (a *PayPalAdapter) Method() models.PaymentMethod {
	return models.MethodPayPal
}

// Load fails when the link carries no PayPal client id.
func (a *PayPalAdapter) Load(_ context.Context) error {
	if a.clientID == "" {
		return newError(ErrNotConfigured, msgPayPalNotConfigured, nil)
	}
	return nil
}

func (a *PayPalAdapter) Mount(_ string) error { return nil }

func (a *PayPalAdapter) Unmount() {}

func (a *PayPalAdapter) Confirm(ctx context.Context, req models.PaymentRequest) (*models.PaymentResult, error) {
	if err := a.Load(ctx); err != nil {
		return nil, err
	}
	order, err := a.orders.CreatePayPalOrder(ctx, models.PayPalOrderRequest{
		PackageID: req.PackageID,
		UserID:    req.UserID,
		Amount:    models.NewMoney(req.Amount),
		ReturnURL: req.ReturnURL,
		CancelURL: req.CancelURL,
		LinkSlug:  req.LinkSlug,
	})
	if err != nil {
		return nil, newError(ErrOrderFailed, backend.Message(err, msgPayPalFailed), err)
	}
	if order == nil || order.ApprovalURL == "" {
		return nil, newError(ErrOrderFailed, msgPayPalNoApproval, nil)
	}

	return &models.PaymentResult{
		Outcome:     models.OutcomeRedirect,
		Reference:   order.OrderID,
		RedirectURL: order.ApprovalURL,
	}, nil
}
