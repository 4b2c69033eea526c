// Package notifications decides when to warn about expiring products and
// delivers the warning through the best available channel.
//
// Pipeline: snapshot → classify (UrgentWindow) → dedup on last fired day →
// build message → dispatch (preferred channel, then fallback) → persist.
// A Scheduler owns one wake-up loop per process; it fires at most once per
// calendar day. When every channel fails the day stays unmarked, so only
// another Tick inside the same trigger minute can deliver it; the hourly
// loop's next wake-up falls outside that minute.
package notifications

import (
	"errors"
	"time"

	"github.com/albapepper/expirywatch/internal/expiry"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	defaultTriggerHour  = 6
	defaultPollInterval = time.Hour
	defaultDisplayFor   = 10 * time.Second
	lastFiredDayKey     = "expiry.lastFiredDay"
	tagPrefix           = "expiry-"
)

// --------------------------------------------------------------------------
// Errors
// --------------------------------------------------------------------------

var (
	// ErrPermissionDenied means the host has not granted notification permission.
	ErrPermissionDenied = errors.New("notification permission not granted")
	// ErrChannelUnavailable means no registered channel was ready.
	ErrChannelUnavailable = errors.New("no notification channel available")
	// ErrSendFailure means every ready channel failed to deliver.
	ErrSendFailure = errors.New("notification send failed")
)

// --------------------------------------------------------------------------
// Types
// --------------------------------------------------------------------------

// Message is a composed notification. Tag is stable for a calendar day so
// channels can collapse duplicates natively.
type Message struct {
	Title string     `json:"title"`
	Body  string     `json:"body"`
	Tag   string     `json:"tag"`
	Day   expiry.Day `json:"day"`
	URL   string     `json:"url,omitempty"` // host app to focus on activation
}

// TagFor returns the per-day de-duplication tag.
func TagFor(day expiry.Day) string {
	return tagPrefix + day.String()
}
