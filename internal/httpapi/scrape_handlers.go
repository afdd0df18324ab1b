package httpapi

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"azubi-engine/internal/config"
	"azubi-engine/internal/events"
	"azubi-engine/internal/scrape"

	"go.uber.org/zap"
)

type ScrapeHandler struct {
	Scraper Scraper
	CfgVal  *atomic.Value // config.Config
	Hub     *events.Hub
	BaseCtx context.Context
	Log     *zap.Logger
}

func (h ScrapeHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.Scraper.Status())
}

// Run starts a scrape. Omitted fields fall back to the config. With ?wait=1
// the response carries the finished RunResult; otherwise the run continues in
// the background and 202 is returned.
func (h ScrapeHandler) Run(w http.ResponseWriter, r *http.Request) {
	var body scrapeRunReq
	if err := decodeJSON(r, &body); err != nil {
		WriteError(w, r, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	cfg := h.CfgVal.Load().(config.Config)
	req := scrape.Request{
		Sites:       body.Sites,
		SearchTerms: body.SearchTerms,
		MaxPages:    body.MaxPages,
		MaxRuntime:  time.Duration(body.MaxRuntimeSeconds) * time.Second,
	}
	if req.Sites == nil {
		req.Sites = cfg.Scrape.Sites
	}
	if req.SearchTerms == nil {
		req.SearchTerms = cfg.Scrape.SearchTerms
	}
	if req.MaxPages <= 0 {
		req.MaxPages = cfg.Scrape.MaxPages
	}
	if req.MaxRuntime <= 0 {
		req.MaxRuntime = cfg.MaxRuntime()
	}

	if err := scrape.ValidateRequest(req); err != nil {
		WriteError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	// Start claims the run slot now, so of two concurrent requests only one
	// gets past here.
	start, err := h.Scraper.Start(req)
	if err != nil {
		writeRunError(w, r, err)
		return
	}

	reqID := RequestIDFrom(r.Context())
	h.Hub.Publish(events.MakeEvent(reqID, events.TypeScrapeStarted, events.SourceAPI, events.ScrapeStartedOf(req)))

	run := func(ctx context.Context) (scrape.RunResult, error) {
		res, err := start(ctx)
		h.Hub.Publish(events.MakeEvent(reqID, events.TypeScrapeFinished, events.SourceAPI, events.ScrapeFinishedOf(res)))
		return res, err
	}

	if r.URL.Query().Get("wait") == "1" {
		res, err := run(r.Context())
		if err != nil {
			writeRunError(w, r, err)
			return
		}
		writeJSON(w, res)
		return
	}

	base := h.BaseCtx
	if base == nil {
		base = context.Background()
	}
	go func() {
		if _, err := run(base); err != nil {
			h.Log.Warn("background scrape failed", zap.String("request_id", reqID), zap.Error(err))
		}
	}()
	WriteJSON(w, http.StatusAccepted, map[string]any{"ok": true, "request_id": reqID})
}

func writeRunError(w http.ResponseWriter, r *http.Request, err error) {
	writeEngineError(w, r, err, "scrape_failed")
}
