package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/albapepper/expirywatch/internal/api/respond"
	"github.com/albapepper/expirywatch/internal/cache"
	"github.com/albapepper/expirywatch/internal/expiry"
)

// CachePrefix namespaces classification responses so a product change can
// drop them all at once.
const CachePrefix = "expiry:"

// GetExpiry classifies the current product listing.
// Reads the live listing when a database is configured, otherwise the
// scheduler snapshot.
// @Summary Classify products by expiry
// @Description Buckets products into expired / critical / warning relative to today. The urgent window drives notifications; the display window drives on-screen grouping.
// @Tags expiry
// @Produce json
// @Param window query string false "Classification window" Enums(display, urgent) default(display)
// @Success 200 {object} expiry.Result
// @Failure 400 {object} respond.ErrorResponse
// @Failure 502 {object} respond.ErrorResponse
// @Router /expiry [get]
func (h *Handler) GetExpiry(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("window")
	if name == "" {
		name = expiry.DisplayWindow.Name
	}
	window, err := expiry.WindowByName(name)
	if err != nil {
		respond.WriteErrorDetail(w, http.StatusBadRequest, "INVALID_WINDOW", "window must be display or urgent", err.Error())
		return
	}

	now := h.today()
	cacheKey := fmt.Sprintf("%s%s:%s", CachePrefix, window.Name, expiry.DayOf(now))
	ttl := h.CacheTTL

	if data, etag, ok := h.Cache.Get(cacheKey); ok {
		if cache.CheckETagMatch(r.Header.Get("If-None-Match"), etag) {
			respond.WriteNotModified(w, etag)
			return
		}
		respond.WriteJSON(w, data, etag, ttl, true)
		return
	}

	products, err := h.listProducts(r)
	if err != nil {
		respond.WriteErrorDetail(w, http.StatusBadGateway, "PRODUCTS_UNAVAILABLE", "Could not load products", err.Error())
		return
	}

	raw, err := json.Marshal(expiry.Classify(products, now, window))
	if err != nil {
		respond.WriteError(w, http.StatusInternalServerError, "ENCODE_FAILED", "Could not encode classification")
		return
	}

	etag := h.Cache.Set(cacheKey, raw, ttl)
	if cache.CheckETagMatch(r.Header.Get("If-None-Match"), etag) {
		respond.WriteNotModified(w, etag)
		return
	}
	respond.WriteJSON(w, raw, etag, ttl, false)
}

func (h *Handler) listProducts(r *http.Request) ([]expiry.Product, error) {
	if h.Products != nil {
		return h.Products.ListProducts(r.Context())
	}
	return h.Scheduler.Products(), nil
}
