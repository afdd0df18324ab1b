package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"azubi-engine/internal/campaign"
	"azubi-engine/internal/scrape"
)

// APIError is the body of every non-2xx response.
type APIError struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"request_id,omitempty"`
	} `json:"error"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	var e APIError
	e.Error.Code = code
	e.Error.Message = message
	e.Error.RequestID = RequestIDFrom(r.Context())
	WriteJSON(w, status, e)
}

// errorClass maps engine errors onto a status and code. Checked in order;
// the first match wins.
var errorClass = []struct {
	match  func(error) bool
	status int
	code   string
}{
	{func(err error) bool { return errors.Is(err, scrape.ErrAlreadyRunning) }, http.StatusConflict, "already_running"},
	{func(err error) bool { var ce *scrape.ConfigError; return errors.As(err, &ce) }, http.StatusBadRequest, "invalid_request"},
	{campaign.IsNotFound, http.StatusNotFound, "not_found"},
	{func(err error) bool { return errors.Is(err, campaign.ErrInvalidTransition) }, http.StatusConflict, "invalid_transition"},
}

// writeEngineError writes err with the status of its class, or 500 with
// fallback as the code.
func writeEngineError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	for _, c := range errorClass {
		if c.match(err) {
			WriteError(w, r, c.status, c.code, err.Error())
			return
		}
	}
	WriteError(w, r, http.StatusInternalServerError, fallback, err.Error())
}
