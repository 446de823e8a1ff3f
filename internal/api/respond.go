package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"dontforget/internal/backend"
	"dontforget/internal/bookingflow"
	"dontforget/internal/drafts"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

// decodeJSON reads an optional JSON body. An empty body leaves out untouched.
func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(out)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// errorStatus maps domain errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, backend.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, bookingflow.ErrBusy),
		errors.Is(err, bookingflow.ErrSlotBooked),
		errors.Is(err, bookingflow.ErrWrongStep):
		return http.StatusConflict
	case errors.Is(err, bookingflow.ErrValidation),
		errors.Is(err, bookingflow.ErrLinkInvalid),
		errors.Is(err, drafts.ErrUnknownDraft):
		return http.StatusBadRequest
	case errors.Is(err, drafts.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, bookingflow.ErrPaymentFailed):
		return http.StatusPaymentRequired
	case errors.Is(err, bookingflow.ErrPaymentSetup),
		errors.Is(err, bookingflow.ErrBookingCreation),
		errors.Is(err, bookingflow.ErrRedirectCapture):
		return http.StatusBadGateway
	}
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500 {
		return apiErr.Status
	}
	return http.StatusInternalServerError
}

// flowResponse carries the view with every flow action so the page can
// re-render after a failure too.
type flowResponse struct {
	View  bookingflow.View `json:"view"`
	Error string           `json:"error,omitempty"`
}

func writeFlow(w http.ResponseWriter, flow *bookingflow.Flow, err error) {
	resp := flowResponse{View: flow.View()}
	status := http.StatusOK
	if err != nil {
		status = errorStatus(err)
		resp.Error = err.Error()
	}
	writeJSON(w, status, resp)
}
