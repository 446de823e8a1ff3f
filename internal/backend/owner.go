package backend

import (
	"context"
	"encoding/json"

	"dontforget/internal/models"
)

// CurrentUser fetches GET /user. The backend answers either with the user
// object itself or wrapped in {"user": ...}.
func (c *Client) CurrentUser(ctx context.Context) (*models.Owner, error) {
	var raw json.RawMessage
	if err := c.doGet(ctx, c.endpoint("user"), &raw); err != nil {
		return nil, err
	}

	var wrap struct {
		User *models.Owner `json:"user"`
	}
	if err := json.Unmarshal(raw, &wrap); err == nil && wrap.User != nil {
		return wrap.User, nil
	}

	var owner models.Owner
	if err := json.Unmarshal(raw, &owner); err != nil {
		return nil, err
	}
	return &owner, nil
}

func (c *Client) Packages(ctx context.Context) ([]models.Package, error) {
	var resp struct {
		Packages []models.Package `json:"packages"`
	}
	if err := c.doGet(ctx, c.endpoint("packages"), &resp); err != nil {
		return nil, err
	}
	return resp.Packages, nil
}

func (c *Client) CreatePackage(ctx context.Context, pkg models.Package) (*models.Package, error) {
	body := struct {
		Name        string       `json:"name"`
		Price       models.Money `json:"price"`
		Duration    int          `json:"duration"`
		Description string       `json:"description"`
	}{
		Name:        pkg.Name,
		Price:       models.NewMoney(pkg.Price),
		Duration:    pkg.Duration,
		Description: pkg.Description,
	}

	var resp struct {
		Package *models.Package `json:"package"`
	}
	if err := c.doPost(ctx, c.endpoint("packages"), body, &resp, nil); err != nil {
		return nil, err
	}
	if resp.Package == nil {
		return &pkg, nil
	}
	return resp.Package, nil
}

func (c *Client) DeletePackage(ctx context.Context, id models.ID) error {
	return c.doDelete(ctx, c.endpoint("packages", id.String()))
}

func (c *Client) Links(ctx context.Context) ([]models.OwnerLink, error) {
	var resp struct {
		Links []models.OwnerLink `json:"links"`
	}
	if err := c.doGet(ctx, c.endpoint("links"), &resp); err != nil {
		return nil, err
	}
	return resp.Links, nil
}

func (c *Client) CreateLink(ctx context.Context, req models.CreateLinkRequest) error {
	return c.doPost(ctx, c.endpoint("links"), req, nil, nil)
}

func (c *Client) Bookings(ctx context.Context) ([]models.Booking, error) {
	var resp struct {
		Bookings []models.Booking `json:"bookings"`
	}
	if err := c.doGet(ctx, c.endpoint("bookings"), &resp); err != nil {
		return nil, err
	}
	return resp.Bookings, nil
}

// Tasks fetches GET /tasks and normalizes each task.
func (c *Client) Tasks(ctx context.Context) ([]models.Task, error) {
	var resp struct {
		Tasks []models.Task `json:"tasks"`
	}
	if err := c.doGet(ctx, c.endpoint("tasks"), &resp); err != nil {
		return nil, err
	}
	for i := range resp.Tasks {
		resp.Tasks[i].Normalize()
	}
	return resp.Tasks, nil
}

func (c *Client) Settings(ctx context.Context) (*models.Settings, error) {
	var resp struct {
		Settings *models.Settings `json:"settings"`
	}
	if err := c.doGet(ctx, c.endpoint("settings"), &resp); err != nil {
		return nil, err
	}
	if resp.Settings == nil {
		return &models.Settings{}, nil
	}
	return resp.Settings, nil
}
