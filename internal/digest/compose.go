// Package digest builds and sends the daily email summary of products that
// are expired or about to expire. It is the server-side twin of the
// notifications scheduler: same classifier, different channel, no state.
package digest

import (
	"bytes"
	"errors"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/albapepper/expirywatch/internal/expiry"
)

// ErrTransportFatal wraps a mail delivery failure. The job never retries;
// the invoker decides what to do with it.
var ErrTransportFatal = errors.New("digest transport failed")

const unknownSource = "unknown"

// Mail is what the digest hands to a Mailer.
type Mail struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
	Text    string `json:"text"`
}

// Item is one row of the digest.
type Item struct {
	Name     string
	SafeName htmltemplate.HTML
	Source   string
	Date     string
	Status   string
	DaysLeft int
}

type view struct {
	Title  string
	Day    string
	Items  []Item
	AppURL string
}

// Composer renders the digest for a product listing.
type Composer struct {
	from   string
	to     string
	appURL string
	policy *bluemonday.Policy
	html   *htmltemplate.Template
	text   *texttemplate.Template
}

// NewComposer creates a Composer addressed from → to.
func NewComposer(from, to, appURL string) *Composer {
	return &Composer{
		from:   from,
		to:     to,
		appURL: appURL,
		policy: bluemonday.StrictPolicy(),
		html:   htmltemplate.Must(htmltemplate.New("digest.html").Parse(htmlLayout)),
		text:   texttemplate.Must(texttemplate.New("digest.txt").Parse(textLayout)),
	}
}

// Compose classifies products with the urgent window relative to now. ok is
// false when nothing is urgent, in which case no mail should be sent.
func (c *Composer) Compose(products []expiry.Product, now time.Time) (mail Mail, res expiry.Result, ok bool, err error) {
	res = expiry.Classify(products, now, expiry.UrgentWindow)
	if res.Empty() {
		return Mail{}, res, false, nil
	}

	v := view{
		Title:  subjectFor(res),
		Day:    res.Today.String(),
		AppURL: c.appURL,
	}
	for _, e := range res.Entries() {
		source := e.Product.Source
		if source == "" {
			source = unknownSource
		}
		v.Items = append(v.Items, Item{
			Name:     e.Product.Name,
			SafeName: htmltemplate.HTML(c.policy.Sanitize(e.Product.Name)), //nolint:gosec // sanitized
			Source:   source,
			Date:     e.Day.String(),
			Status:   e.Status(),
			DaysLeft: e.DaysLeft,
		})
	}

	var html, text bytes.Buffer
	if err := c.html.Execute(&html, v); err != nil {
		return Mail{}, res, false, fmt.Errorf("render html digest: %w", err)
	}
	if err := c.text.Execute(&text, v); err != nil {
		return Mail{}, res, false, fmt.Errorf("render text digest: %w", err)
	}

	return Mail{
		From:    c.from,
		To:      c.to,
		Subject: v.Title,
		HTML:    html.String(),
		Text:    text.String(),
	}, res, true, nil
}

func subjectFor(res expiry.Result) string {
	n := res.Count()
	noun := "products"
	if n == 1 {
		noun = "product"
	}
	if res.HasExpired() {
		return fmt.Sprintf("Expired products in your inventory (%d %s, %s)", n, noun, res.Today)
	}
	return fmt.Sprintf("Products expiring soon (%d %s, %s)", n, noun, res.Today)
}

const htmlLayout = `<!DOCTYPE html>
<html>
<body style="font-family: sans-serif;">
<h2>{{.Title}}</h2>
<table cellpadding="6" style="border-collapse: collapse;">
<tr><th align="left">Product</th><th align="left">Source</th><th align="left">Date</th><th align="left">Status</th></tr>
{{- range .Items}}
<tr><td>{{.SafeName}}</td><td>{{.Source}}</td><td>{{.Date}}</td><td><strong>{{.Status}}</strong></td></tr>
{{- end}}
</table>
{{- if .AppURL}}
<p><a href="{{.AppURL}}">Open your inventory</a></p>
{{- end}}
</body>
</html>
`

const textLayout = `{{.Title}}

{{range .Items}}- {{.Name}} ({{.Source}}) {{.Date}} {{.Status}}
{{end}}{{if .AppURL}}
Open your inventory: {{.AppURL}}
{{end}}`
