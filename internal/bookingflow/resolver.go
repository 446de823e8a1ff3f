package bookingflow

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/url"
	"strings"

	"dontforget/internal/backend"
	"dontforget/internal/domain"
	"dontforget/internal/models"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Resolution is everything a flow needs to know about whose calendar it
// books into.
type Resolution struct {
	Link               *models.BookingLink
	OwnerID            models.ID
	OwnerName          string
	Branding           models.Branding
	Packages           []models.Package
	PreselectedPackage models.ID
	PackagePreSelected bool
	RequirePayment     bool
	// Banner is a blocking message. A flow with a banner never submits.
	Banner string
	// Notice is shown but does not block.
	Notice string
}

// Resolver produces the Resolution for a page load.
type Resolver interface {
	Resolve(ctx context.Context, query url.Values) (*Resolution, error)
}

// PublicResolver resolves a shared link slug, or the legacy query
// parameters when no slug is present.
type PublicResolver struct {
	api    domain.BookingBackend
	logger *zerolog.Logger
}

func NewPublicResolver(api domain.BookingBackend, logger *zerolog.Logger) *PublicResolver {
	return &PublicResolver{api: api, logger: nopIfNil(logger)}
}

func (r *PublicResolver) Resolve(ctx context.Context, query url.Values) (*Resolution, error) {
	res := &Resolution{
		OwnerName: models.AnonymousOwnerName,
		Branding:  models.Branding{Color: models.DefaultBrandColor},
	}

	switch query.Get(models.LegacyPaymentQueryKey) {
	case models.PaymentOptionalParam:
		res.RequirePayment = false
	case models.PaymentRequiredParam:
		res.RequirePayment = true
	}

	slug := strings.TrimSpace(query.Get(models.LinkQueryKey))
	if slug != "" {
		link, err := r.api.ResolveLink(ctx, slug)
		if err != nil {
			r.logger.Error().Err(err).Str("slug", slug).Msg("Error loading link")
			res.Link = &models.BookingLink{Slug: slug}
			res.Banner = backend.Message(err, msgLinkInvalid)
			return res, nil
		}
		res.Link = link
		res.OwnerID = link.UserID
		res.OwnerName = link.OwnerName
		res.Branding = link.Branding
		if link.RequirePayment {
			res.RequirePayment = true
		}
		if link.Package != nil {
			res.Packages = []models.Package{*link.Package}
			res.PreselectedPackage = link.Package.ID
			res.PackagePreSelected = true
			return res, nil
		}
	} else {
		res.OwnerID = models.ID(strings.TrimSpace(query.Get(models.LegacyUserQueryKey)))
		if raw := query.Get(models.LegacyPackagesKey); raw != "" {
			pkgs, err := DecodeLegacyPackages(raw)
			if err != nil {
				r.logger.Warn().Err(err).Msg("Invalid packages payload")
			} else if len(pkgs) > 0 {
				res.Packages = pkgs
				preselect(res, query.Get(models.LegacyPackageQueryKey))
				return res, nil
			}
		}
	}

	if res.OwnerID.Empty() {
		return res, nil
	}

	pkgs, err := r.api.UserPackages(ctx, res.OwnerID)
	if err != nil {
		r.logger.Error().Err(err).Str("user_id", res.OwnerID.String()).Msg("Error fetching packages")
		return res, nil
	}
	if len(pkgs) > 0 {
		res.Packages = pkgs
		preselect(res, query.Get(models.LegacyPackageQueryKey))
	}
	return res, nil
}

func preselect(res *Resolution, packageID string) {
	id := models.ID(strings.TrimSpace(packageID))
	if id.Empty() {
		return
	}
	for _, p := range res.Packages {
		if p.ID == id {
			res.PreselectedPackage = id
			res.PackagePreSelected = true
			return
		}
	}
}

type legacyPackage struct {
	ID          models.ID       `json:"id"`
	Name        string          `json:"n"`
	Price       json.RawMessage `json:"pr"`
	Duration    json.RawMessage `json:"du"`
	Description string          `json:"d"`
}

// DecodeLegacyPackages decodes the base64 JSON package list of unlinked
// share URLs. Unparseable prices and durations become zero.
func DecodeLegacyPackages(raw string) ([]models.Package, error) {
	data, err := decodeBase64(raw)
	if err != nil {
		return nil, err
	}

	var list []legacyPackage
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, err
	}

	pkgs := make([]models.Package, 0, len(list))
	for _, lp := range list {
		pkgs = append(pkgs, models.Package{
			ID:          lp.ID,
			Name:        lp.Name,
			Price:       looseDecimal(lp.Price),
			Duration:    int(looseDecimal(lp.Duration).IntPart()),
			Description: lp.Description,
		})
	}
	return pkgs, nil
}

func decodeBase64(raw string) ([]byte, error) {
	// Query decoding turns '+' into a space.
	raw = strings.ReplaceAll(strings.TrimSpace(raw), " ", "+")
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.URLEncoding, base64.RawStdEncoding, base64.RawURLEncoding} {
		if data, err := enc.DecodeString(raw); err == nil {
			return data, nil
		}
	}
	return nil, errors.New("packages payload is not base64")
}

func looseDecimal(raw json.RawMessage) decimal.Decimal {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// OwnerResolver backs the owner's internal booking form: the owner is the
// authenticated user and packages are the owner's own.
type OwnerResolver struct {
	api    domain.OwnerBackend
	logger *zerolog.Logger
}

func NewOwnerResolver(api domain.OwnerBackend, logger *zerolog.Logger) *OwnerResolver {
	return &OwnerResolver{api: api, logger: nopIfNil(logger)}
}

func (r *OwnerResolver) Resolve(ctx context.Context, _ url.Values) (*Resolution, error) {
	res := &Resolution{Branding: models.Branding{Color: models.DefaultBrandColor}}

	owner, err := r.api.CurrentUser(ctx)
	if err != nil {
		if errors.Is(err, backend.ErrUnauthorized) {
			return nil, err
		}
		r.logger.Error().Err(err).Msg("Error fetching current user")
	} else {
		res.OwnerID = owner.ID
		res.OwnerName = owner.Name
	}

	pkgs, err := r.api.Packages(ctx)
	if err != nil {
		if errors.Is(err, backend.ErrUnauthorized) {
			return nil, err
		}
		r.logger.Error().Err(err).Msg("Error fetching packages")
		res.Notice = msgPackagesFailed
		return res, nil
	}
	res.Packages = pkgs
	return res, nil
}

func nopIfNil(logger *zerolog.Logger) *zerolog.Logger {
	if logger != nil {
		return logger
	}
	nop := zerolog.Nop()
	return &nop
}
