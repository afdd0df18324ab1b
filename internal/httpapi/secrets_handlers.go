package httpapi

import (
	"net/http"
	"sync/atomic"

	"azubi-engine/internal/config"
	"azubi-engine/internal/secrets"
)

type SecretsHandler struct {
	CfgVal *atomic.Value // stores config.Config
	// Set stores a password; tests replace the keychain.
	Set func(account, password string) error
}

// SetPassword handles POST /api/secrets/{kind} for kind smtp or imap. The
// running config picks the password up immediately.
func (h SecretsHandler) SetPassword(w http.ResponseWriter, r *http.Request) {
	var req setPasswordReq
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, r, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	kind := secrets.Kind(r.PathValue("kind"))
	cfg := h.CfgVal.Load().(config.Config)
	acct, err := secrets.AccountFor(kind, cfg)
	if err != nil {
		WriteError(w, r, http.StatusNotFound, "not_found", err.Error())
		return
	}
	set := h.Set
	if set == nil {
		set = secrets.Set
	}
	if err := set(acct, req.Password); err != nil {
		WriteError(w, r, http.StatusBadRequest, "store_failed", "failed to store password: "+err.Error())
		return
	}

	switch kind {
	case secrets.KindSMTP:
		cfg.SMTP.Password = req.Password
	case secrets.KindIMAP:
		cfg.Bounce.Password = req.Password
	}
	h.CfgVal.Store(cfg)
	w.WriteHeader(http.StatusNoContent)
}
