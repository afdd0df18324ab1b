package httpapi

import (
	"net/http"
)

type DBHandler struct {
	Store Store
}

// Checkpoint folds the WAL into the database file so it can be copied as a
// backup. Loopback only.
func (h DBHandler) Checkpoint(w http.ResponseWriter, r *http.Request) {
	if !IsLoopback(r) {
		WriteError(w, r, http.StatusForbidden, "forbidden", "checkpoint is only allowed from localhost")
		return
	}
	if err := h.Store.Checkpoint(r.Context()); err != nil {
		WriteError(w, r, http.StatusInternalServerError, "checkpoint_failed", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
