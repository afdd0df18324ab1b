package httpapi

import (
	"net/http"
	"strconv"

	"azubi-engine/internal/domain"
	"azubi-engine/internal/store"
)

type JobsHandler struct {
	Store Store
}

// List supports ?status=new&site=azubi&has_email=1&sort=title&limit=100.
func (h JobsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := store.ListJobsOpts{
		Status: q.Get("status"),
		Site:   q.Get("site"),
		Sort:   q.Get("sort"),
	}
	if v := q.Get("has_email"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			WriteError(w, r, http.StatusBadRequest, "invalid_query", "has_email must be a boolean")
			return
		}
		opts.HasEmail = b
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			WriteError(w, r, http.StatusBadRequest, "invalid_query", "limit must be a positive integer")
			return
		}
		opts.Limit = n
	}
	if opts.Site != "" {
		if _, err := domain.ParseSite(opts.Site); err != nil {
			WriteError(w, r, http.StatusBadRequest, "invalid_query", err.Error())
			return
		}
	}

	jobs, err := h.Store.ListJobs(r.Context(), opts)
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	if jobs == nil {
		jobs = []domain.Job{}
	}
	writeJSON(w, jobs)
}
