package httpapi

import (
	"net/http"

	"azubi-engine/internal/events"

	"go.uber.org/zap"
)

// NewMux returns the raw mux so main() can still attach /shutdown (needs srv+token).
func NewMux(d Deps) *http.ServeMux {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Hub == nil {
		d.Hub = events.NewHub()
	}
	mux := http.NewServeMux()

	mux.HandleFunc("/health", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: HealthHandler{}.Health,
	}))

	// Jobs
	jh := JobsHandler{Store: d.Store}
	mux.HandleFunc("/jobs", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: jh.List,
	}))

	// Config
	ch := ConfigHandler{
		CfgVal:      d.CfgVal,
		UserCfgPath: d.UserCfgPath,
		LoadCfg:     d.LoadCfg,
	}
	mux.HandleFunc("/config", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: ch.Get,
		http.MethodPut: ch.Put,
	}))
	mux.HandleFunc("/config/path", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: ch.Path,
	}))
	mux.HandleFunc("/config/validate", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: ch.Validate,
	}))

	// Secrets (use cfgVal, NOT a snapshot cfg)
	sh := SecretsHandler{CfgVal: d.CfgVal}
	mux.HandleFunc("/api/secrets/{kind}", methodMux(map[string]http.HandlerFunc{
		http.MethodPost: sh.SetPassword,
	}))

	// Scrape
	sch := ScrapeHandler{
		Scraper: d.Scraper,
		CfgVal:  d.CfgVal,
		Hub:     d.Hub,
		BaseCtx: d.BaseCtx,
		Log:     d.Log.Named("http"),
	}
	mux.HandleFunc("/scrape/status", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: sch.Status,
	}))
	mux.HandleFunc("/scrape/run", methodMux(map[string]http.HandlerFunc{
		http.MethodPost: sch.Run,
	}))

	// Campaigns
	cmh := CampaignHandler{Campaigns: d.Campaigns, Store: d.Store, Hub: d.Hub}
	mux.HandleFunc("/campaigns", methodMux(map[string]http.HandlerFunc{
		http.MethodGet:  cmh.List,
		http.MethodPost: cmh.Create,
	}))
	mux.HandleFunc("/campaigns/{id}", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: cmh.Get,
	}))
	mux.HandleFunc("/campaigns/{id}/{action}", methodMux(map[string]http.HandlerFunc{
		http.MethodPost: cmh.Action,
	}))

	// SSE events
	eh := EventsHandler{Hub: d.Hub}
	mux.HandleFunc("/events", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: eh.ServeSSE,
	}))

	dbh := DBHandler{Store: d.Store}
	mux.HandleFunc("/db/checkpoint", methodMux(map[string]http.HandlerFunc{
		http.MethodPost: dbh.Checkpoint,
	}))

	return mux
}

// Handler wraps the mux in the standard middleware chain.
func Handler(d Deps) http.Handler {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	return Chain(NewMux(d), RequestID, Recover(log), AccessLog(log.Named("http")), Cors)
}
