package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"dontforget/internal/backend"
	"dontforget/internal/dashboard"
	"dontforget/internal/drafts"
	"dontforget/internal/export"
	"dontforget/internal/models"
	"dontforget/internal/notify"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

const (
	msgPackageRequired = "Package name and duration are required."
	msgLinkNameMissing = "Please enter a name for the booking link."
)

// writeBackendError renders a remote API failure with the server's message
// when it sent one.
func (s *HTTPServer) writeBackendError(w http.ResponseWriter, err error, fallback string) {
	s.logger.Error().Err(err).Msg(fallback)
	writeError(w, errorStatus(err), backend.Message(err, fallback))
}

func (s *HTTPServer) handleListPackages(w http.ResponseWriter, r *http.Request) {
	pkgs, err := s.backend.Packages(r.Context())
	if err != nil {
		s.writeBackendError(w, err, "Failed to load packages")
		return
	}
	if pkgs == nil {
		pkgs = []models.Package{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"packages": pkgs})
}

type packageRequest struct {
	Name        string          `json:"name"`
	Price       json.RawMessage `json:"price"`
	Duration    json.RawMessage `json:"duration"`
	Description string          `json:"description"`
}

func (s *HTTPServer) handleCreatePackage(w http.ResponseWriter, r *http.Request) {
	var body packageRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, errBadJSON.Error())
		return
	}
	name := strings.TrimSpace(body.Name)
	if name == "" || blankNumber(body.Duration) {
		writeError(w, http.StatusBadRequest, msgPackageRequired)
		return
	}

	created, err := s.backend.CreatePackage(r.Context(), models.Package{
		Name:        name,
		Price:       looseNumber(body.Price),
		Duration:    int(looseNumber(body.Duration).IntPart()),
		Description: strings.TrimSpace(body.Description),
	})
	if err != nil {
		s.writeBackendError(w, err, "Failed to create package")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"package": created})
}

func (s *HTTPServer) handleDeletePackage(w http.ResponseWriter, r *http.Request) {
	id := models.ID(chi.URLParam(r, "id"))
	if id.Empty() {
		writeError(w, http.StatusBadRequest, "package id is required")
		return
	}
	if err := s.backend.DeletePackage(r.Context(), id); err != nil {
		s.writeBackendError(w, err, "Failed to delete package")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
}

// ShareURL is the public address of a booking link.
func (s *HTTPServer) ShareURL(slug string) string {
	return s.pageURL() + "?" + url.Values{models.LinkQueryKey: {slug}}.Encode()
}

func (s *HTTPServer) listLinks(r *http.Request) ([]models.OwnerLink, error) {
	links, err := s.backend.Links(r.Context())
	if err != nil {
		return nil, err
	}
	if links == nil {
		links = []models.OwnerLink{}
	}
	for i := range links {
		if links[i].Slug != "" {
			links[i].ShareURL = s.ShareURL(links[i].Slug)
		}
	}
	return links, nil
}

func (s *HTTPServer) handleListLinks(w http.ResponseWriter, r *http.Request) {
	links, err := s.listLinks(r)
	if err != nil {
		s.writeBackendError(w, err, "Failed to load booking links.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"links": links})
}

type linkRequest struct {
	Name         string          `json:"name"`
	PackageID    string          `json:"package_id"`
	BookingLimit json.RawMessage `json:"booking_limit"`
	RedirectURL  string          `json:"redirect_url"`
}

// toCreate normalizes the link form: package "all" and blank fields are
// sent as null.
func (b linkRequest) toCreate() models.CreateLinkRequest {
	req := models.CreateLinkRequest{Name: strings.TrimSpace(b.Name)}
	if pkg := strings.TrimSpace(b.PackageID); pkg != "" && pkg != "all" {
		id := models.ID(pkg)
		req.PackageID = &id
	}
	if !blankNumber(b.BookingLimit) {
		limit := int(looseNumber(b.BookingLimit).IntPart())
		req.BookingLimit = &limit
	}
	if u := strings.TrimSpace(b.RedirectURL); u != "" {
		req.RedirectURL = &u
	}
	return req
}

func (s *HTTPServer) handleCreateLink(w http.ResponseWriter, r *http.Request) {
	var body linkRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, errBadJSON.Error())
		return
	}
	req := body.toCreate()
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, msgLinkNameMissing)
		return
	}
	if err := s.backend.CreateLink(r.Context(), req); err != nil {
		s.writeBackendError(w, err, "Failed to create booking link.")
		return
	}

	links, err := s.listLinks(r)
	if err != nil {
		s.writeBackendError(w, err, "Failed to load booking links.")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"links": links})
}

func (s *HTTPServer) handleDashboard(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.backend.Tasks(r.Context())
	if err != nil {
		s.writeBackendError(w, err, "Failed to load tasks")
		return
	}
	q := r.URL.Query()
	writeJSON(w, http.StatusOK, dashboard.Build(tasks, dashboard.ParseFilter(q.Get("filter")), q.Get("q"), s.now()))
}

func (s *HTTPServer) ownerNotifications(r *http.Request) (*notify.Feed, []string, error) {
	owner := ownerKey(r.Context())
	notifs, updated, err := s.notifier.Get(r.Context(), owner, notify.Bind(s.backend, ownerToken(r)))
	if err != nil {
		return nil, nil, err
	}
	ids := make([]string, len(notifs))
	for i, n := range notifs {
		ids[i] = n.ID
	}
	feed, err := s.center.Feed(r.Context(), owner, notifs, updated)
	return feed, ids, err
}

func (s *HTTPServer) handleNotifications(w http.ResponseWriter, r *http.Request) {
	feed, _, err := s.ownerNotifications(r)
	if err != nil {
		s.writeBackendError(w, err, "Error fetching notification data")
		return
	}
	writeJSON(w, http.StatusOK, feed)
}

func (s *HTTPServer) handleMarkSeen(w http.ResponseWriter, r *http.Request) {
	var body struct {
		IDs []string `json:"ids"`
		All bool     `json:"all"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, errBadJSON.Error())
		return
	}

	ids := body.IDs
	if body.All {
		_, all, err := s.ownerNotifications(r)
		if err != nil {
			s.writeBackendError(w, err, "Error fetching notification data")
			return
		}
		ids = append(ids, all...)
	}
	if err := s.center.MarkSeen(r.Context(), ownerKey(r.Context()), ids); err != nil {
		s.writeBackendError(w, err, "Failed to update notifications")
		return
	}

	feed, _, err := s.ownerNotifications(r)
	if err != nil {
		s.writeBackendError(w, err, "Error fetching notification data")
		return
	}
	writeJSON(w, http.StatusOK, feed)
}

func (s *HTTPServer) handleGetDraft(w http.ResponseWriter, r *http.Request) {
	draft, err := s.drafts.Load(r.Context(), ownerKey(r.Context()), chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, errorStatus(err), draftMessage(err))
		return
	}
	writeJSON(w, http.StatusOK, draft)
}

func (s *HTTPServer) handleSaveDraft(w http.ResponseWriter, r *http.Request) {
	var body models.TaskDraft
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, errBadJSON.Error())
		return
	}
	draft, err := s.drafts.Save(r.Context(), ownerKey(r.Context()), chi.URLParam(r, "name"), body)
	if err != nil {
		s.logger.Error().Err(err).Msg("Error saving draft")
		writeError(w, errorStatus(err), draftMessage(err))
		return
	}
	writeJSON(w, http.StatusOK, draft)
}

func (s *HTTPServer) handleDiscardDraft(w http.ResponseWriter, r *http.Request) {
	if err := s.drafts.Discard(r.Context(), ownerKey(r.Context()), chi.URLParam(r, "name")); err != nil {
		writeError(w, errorStatus(err), draftMessage(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func draftMessage(err error) string {
	switch {
	case errors.Is(err, drafts.ErrNotFound):
		return "no draft saved"
	case errors.Is(err, drafts.ErrUnknownDraft):
		return "unknown draft"
	default:
		return "Error saving draft"
	}
}

func (s *HTTPServer) handleExportBookings(w http.ResponseWriter, r *http.Request) {
	bookings, err := s.backend.Bookings(r.Context())
	if err != nil {
		s.writeBackendError(w, err, "Failed to load bookings")
		return
	}

	var buf bytes.Buffer
	if err := export.WriteBookings(&buf, bookings); err != nil {
		s.logger.Error().Err(err).Msg("Error building bookings export")
		writeError(w, http.StatusInternalServerError, "Failed to export bookings")
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.FileName(s.now())+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func blankNumber(raw json.RawMessage) bool {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	return s == "" || s == "null"
}

// looseNumber reads a JSON number or numeric string. Anything else is zero.
func looseNumber(raw json.RawMessage) decimal.Decimal {
	if blankNumber(raw) {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(strings.Trim(strings.TrimSpace(string(raw)), `"`))
	if err != nil {
		return decimal.Zero
	}
	return d
}
