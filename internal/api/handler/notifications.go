package handler

import (
	"errors"
	"net/http"

	"github.com/albapepper/expirywatch/internal/api/respond"
	"github.com/albapepper/expirywatch/internal/digest"
	"github.com/albapepper/expirywatch/internal/expiry"
)

// SnapshotRequest replaces the scheduler's product snapshot.
type SnapshotRequest struct {
	Products []expiry.Product `json:"products"`
}

// GetNotificationState reports the scheduler lifecycle and dedup state.
// @Summary Notification state
// @Description Returns the scheduler state, the last calendar day a notification was delivered, and the snapshot size.
// @Tags notifications
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} respond.ErrorResponse
// @Router /notifications/state [get]
func (h *Handler) GetNotificationState(w http.ResponseWriter, r *http.Request) {
	day, fired, err := h.State.LastFiredDay(r.Context())
	if err != nil {
		respond.WriteErrorDetail(w, http.StatusServiceUnavailable, "STATE_UNAVAILABLE", "Could not read notification state", err.Error())
		return
	}

	today := expiry.DayOf(h.today())
	resp := map[string]any{
		"scheduler":     h.Scheduler.State(),
		"products":      len(h.Scheduler.Products()),
		"channels":      h.Channels,
		"today":         today,
		"fired_today":   fired && day.Equal(today),
		"last_fired_on": nil,
	}
	if fired {
		resp["last_fired_on"] = day
	}
	respond.WriteJSONObject(w, http.StatusOK, resp)
}

// PostProductsSnapshot replaces the product snapshot used by the next
// scheduler wake-up.
// @Summary Push a product snapshot
// @Description Replaces the scheduler snapshot. Expiry values may be ISO-8601 strings, {"seconds": n} objects or epoch milliseconds.
// @Tags notifications
// @Accept json
// @Produce json
// @Param body body SnapshotRequest true "Product snapshot"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} respond.ErrorResponse
// @Router /products/snapshot [post]
func (h *Handler) PostProductsSnapshot(w http.ResponseWriter, r *http.Request) {
	var req SnapshotRequest
	if err := respond.DecodeJSON(r, &req); err != nil {
		respond.WriteErrorDetail(w, http.StatusBadRequest, "INVALID_BODY", "Body must be a product snapshot", err.Error())
		return
	}

	h.Scheduler.UpdateProducts(req.Products)
	invalidated := h.Cache.Invalidate(CachePrefix)

	res := expiry.Classify(req.Products, h.today(), expiry.UrgentWindow)
	respond.WriteJSONObject(w, http.StatusOK, map[string]any{
		"accepted":    len(req.Products),
		"invalid":     res.Invalid,
		"urgent":      res.Count(),
		"invalidated": invalidated,
	})
}

// PostDigestRun runs the email digest now.
// @Summary Run the email digest
// @Description Composes and sends the daily digest immediately. Mail transport failures are reported as 502 and not retried.
// @Tags digest
// @Produce json
// @Success 200 {object} digest.RunResult
// @Failure 502 {object} respond.ErrorResponse
// @Failure 503 {object} respond.ErrorResponse
// @Router /digest/run [post]
func (h *Handler) PostDigestRun(w http.ResponseWriter, r *http.Request) {
	if h.Digest == nil {
		respond.WriteError(w, http.StatusServiceUnavailable, "DIGEST_DISABLED", "Email digest is not configured")
		return
	}

	result, err := h.Digest.Run(r.Context())
	switch {
	case errors.Is(err, digest.ErrTransportFatal):
		respond.WriteErrorDetail(w, http.StatusBadGateway, "TRANSPORT_FAILED", "Digest could not be delivered", err.Error())
		return
	case err != nil:
		respond.WriteErrorDetail(w, http.StatusServiceUnavailable, "DIGEST_FAILED", "Digest run failed", err.Error())
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, result)
}
