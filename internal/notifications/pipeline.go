package notifications

import (
	"strings"

	"github.com/albapepper/expirywatch/internal/expiry"
)

const (
	titleExpired  = "Expired products in your inventory"
	titleExpiring = "Products expiring soon"
)

// BuildMessage composes the daily notification from an urgent
// classification. ok is false when there is nothing to report.
func BuildMessage(res expiry.Result, appURL string) (msg Message, ok bool) {
	if res.Empty() {
		return Message{}, false
	}

	title := titleExpiring
	if res.HasExpired() {
		title = titleExpired
	}

	return Message{
		Title: title,
		Body:  strings.Join(res.Names(), ", "),
		Tag:   TagFor(res.Today),
		Day:   res.Today,
		URL:   appURL,
	}, true
}
