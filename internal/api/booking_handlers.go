package api

import (
	"context"
	"errors"
	"net/http"

	"dontforget/internal/backend"
	"dontforget/internal/bookingflow"
	"dontforget/internal/logging"
	"dontforget/internal/models"
	"dontforget/internal/repository"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const msgSessionMissing = "Booking session not found. Please reload the page."

// flowKey names the flow a request acts on. ok is false when the request
// carries no session.
type flowKey func(r *http.Request) (key string, ok bool)

func (s *HTTPServer) guestKey(r *http.Request) (string, bool) {
	c, err := r.Cookie(s.cfg.CookieName)
	if err != nil || c.Value == "" {
		return "", false
	}
	return "guest:" + c.Value, true
}

func (s *HTTPServer) ownerFlowKey(r *http.Request) (string, bool) {
	key := ownerKey(r.Context())
	return "owner:" + key, key != ""
}

// guestSession returns the guest's session id, issuing a cookie when the
// request has none.
func (s *HTTPServer) guestSession(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(s.cfg.CookieName); err == nil {
		if _, err := uuid.Parse(c.Value); err == nil {
			return c.Value
		}
	}
	sid := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.CookieName,
		Value:    sid,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	// Later handlers in this request see the new cookie too.
	r.AddCookie(&http.Cookie{Name: s.cfg.CookieName, Value: sid})
	return sid
}

// handlePublicLoad is a page load of the public booking page: a fresh flow
// that first finishes any pending PayPal hand-off of this session.
func (s *HTTPServer) handlePublicLoad(w http.ResponseWriter, r *http.Request) {
	sid := s.guestSession(w, r)
	flow := bookingflow.New(s.publicConfig(), bookingflow.Deps{
		Backend:  s.backend,
		Resolver: bookingflow.NewPublicResolver(s.backend, logging.Component(s.logger, "resolver")),
		Payments: s.payments,
		Store:    repository.Scoped(s.store, "session:"+sid),
		Events:   s.events,
		Logger:   logging.Component(s.logger, "bookingflow"),
	})

	err := flow.Load(r.Context(), r.URL.Query())
	s.sessions.Put("guest:"+sid, flow)

	resp := flowResponse{View: flow.View()}
	q := r.URL.Query()
	if q.Has(models.PayPalReturnTokenKey) || q.Has(models.PayPalReturnPayerKey) {
		page := *r.URL
		page.Path = s.cfg.BookingPath
		resp.View.CleanURL = bookingflow.CleanURL(&page)
	}
	status := http.StatusOK
	if err != nil {
		status = errorStatus(err)
		resp.Error = err.Error()
	}
	writeJSON(w, status, resp)
}

// handleOwnerLoad opens the owner's internal booking form.
func (s *HTTPServer) handleOwnerLoad(w http.ResponseWriter, r *http.Request) {
	key, _ := s.ownerFlowKey(r)
	flow := bookingflow.New(bookingflow.OwnerConfig(), bookingflow.Deps{
		Backend:  s.backend,
		Resolver: bookingflow.NewOwnerResolver(s.backend, logging.Component(s.logger, "resolver")),
		Store:    repository.Scoped(s.store, key),
		Events:   s.events,
		Logger:   logging.Component(s.logger, "bookingflow"),
	})

	if err := flow.Load(r.Context(), r.URL.Query()); err != nil {
		if errors.Is(err, backend.ErrUnauthorized) {
			writeError(w, http.StatusUnauthorized, "User not authenticated")
			return
		}
		writeFlow(w, flow, err)
		return
	}
	s.sessions.Put(key, flow)
	writeFlow(w, flow, nil)
}

type flowAction func(ctx context.Context, flow *bookingflow.Flow, r *http.Request) error

func (s *HTTPServer) flowActions(r chi.Router, key flowKey) {
	r.Post("/date", s.flowHandler(key, func(ctx context.Context, f *bookingflow.Flow, r *http.Request) error {
		var body struct {
			Date string `json:"date"`
		}
		if err := decodeJSON(r, &body); err != nil {
			return errBadJSON
		}
		return f.SetDate(ctx, body.Date)
	}))
	r.Post("/slot", s.flowHandler(key, func(_ context.Context, f *bookingflow.Flow, r *http.Request) error {
		var body struct {
			Slot string `json:"slot"`
		}
		if err := decodeJSON(r, &body); err != nil {
			return errBadJSON
		}
		return f.SelectSlot(body.Slot)
	}))
	r.Post("/guest", s.flowHandler(key, func(_ context.Context, f *bookingflow.Flow, r *http.Request) error {
		var body models.GuestDetails
		if err := decodeJSON(r, &body); err != nil {
			return errBadJSON
		}
		return f.UpdateGuest(body)
	}))
	r.Post("/package", s.flowHandler(key, func(_ context.Context, f *bookingflow.Flow, r *http.Request) error {
		var body struct {
			PackageID models.ID `json:"package_id"`
		}
		if err := decodeJSON(r, &body); err != nil {
			return errBadJSON
		}
		return f.SelectPackage(body.PackageID)
	}))
	r.Post("/options", s.flowHandler(key, func(ctx context.Context, f *bookingflow.Flow, r *http.Request) error {
		var body struct {
			PayNow bool                 `json:"pay_now"`
			Method models.PaymentMethod `json:"payment_method"`
		}
		if err := decodeJSON(r, &body); err != nil {
			return errBadJSON
		}
		return f.SetPaymentOptions(ctx, body.PayNow, body.Method)
	}))
	r.Post("/card", s.flowHandler(key, func(_ context.Context, f *bookingflow.Flow, r *http.Request) error {
		var body struct {
			Element string `json:"element"`
		}
		if err := decodeJSON(r, &body); err != nil {
			return errBadJSON
		}
		return f.AttachCard(body.Element)
	}))
	r.Post("/submit", s.flowHandler(key, func(ctx context.Context, f *bookingflow.Flow, _ *http.Request) error {
		return f.Submit(ctx)
	}))
	r.Post("/back", s.flowHandler(key, func(_ context.Context, f *bookingflow.Flow, _ *http.Request) error {
		return f.Back()
	}))
	r.Post("/reset", s.flowHandler(key, func(_ context.Context, f *bookingflow.Flow, _ *http.Request) error {
		return f.Reset()
	}))
}

var errBadJSON = errors.New("invalid JSON body")

func (s *HTTPServer) flowHandler(key flowKey, act flowAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		k, ok := key(r)
		if !ok {
			writeError(w, http.StatusNotFound, msgSessionMissing)
			return
		}
		flow, ok := s.sessions.Get(k)
		if !ok {
			writeError(w, http.StatusNotFound, msgSessionMissing)
			return
		}

		err := act(r.Context(), flow, r)
		if errors.Is(err, errBadJSON) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeFlow(w, flow, err)
	}
}
