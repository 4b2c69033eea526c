package digest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net"
	"net/mail"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gomail "github.com/wneessen/go-mail"

	"github.com/albapepper/expirywatch/internal/expiry"
)

var now = time.Date(2026, 10, 18, 7, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleProducts() []expiry.Product {
	return []expiry.Product{
		{ID: "1", Name: "Saumon", Source: "Fridge", Expiry: now.AddDate(0, 0, -1)},
		{ID: "2", Name: "Yaourt", Expiry: now},
		{ID: "3", Name: "Glace", Source: "Freezer", Expiry: now.AddDate(0, 0, 1)},
		{ID: "4", Name: "Pâtes", Source: "Pantry", Expiry: now.AddDate(0, 0, 3)},
		{ID: "5", Name: "Riz", Source: "Pantry", Expiry: now.AddDate(0, 0, 20)},
		{ID: "6", Name: "Broken", Expiry: "someday"},
	}
}

func TestCompose(t *testing.T) {
	c := NewComposer("bot@example.com", "me@example.com", "https://app.example")

	m, res, ok, err := c.Compose(sampleProducts(), now)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, "bot@example.com", m.From)
	assert.Equal(t, "me@example.com", m.To)
	assert.Equal(t, "Expired products in your inventory (4 products, 2026-10-18)", m.Subject)
	assert.Len(t, res.Invalid, 1)

	assert.Equal(t, `Expired products in your inventory (4 products, 2026-10-18)

- Saumon (Fridge) 2026-10-17 EXPIRED
- Yaourt (unknown) 2026-10-18 TODAY
- Glace (Freezer) 2026-10-19 IN 1 DAY
- Pâtes (Pantry) 2026-10-21 IN 3 DAYS

Open your inventory: https://app.example
`, m.Text)

	assert.Contains(t, m.HTML, "<td>Saumon</td><td>Fridge</td><td>2026-10-17</td><td><strong>EXPIRED</strong></td>")
	assert.Contains(t, m.HTML, `<a href="https://app.example">`)
	assert.NotContains(t, m.HTML, "Riz")
}

func TestCompose_SanitizesNames(t *testing.T) {
	c := NewComposer("a@example.com", "b@example.com", "")
	products := []expiry.Product{{Name: `Lait<script>alert(1)</script>`, Source: "<b>x</b>", Expiry: now}}

	m, _, ok, err := c.Compose(products, now)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotContains(t, m.HTML, "<script>")
	assert.NotContains(t, m.HTML, "<b>")
	assert.Contains(t, m.HTML, "Lait")
	assert.Equal(t, "Products expiring soon (1 product, 2026-10-18)", m.Subject)
}

func TestCompose_EmptyIsNoop(t *testing.T) {
	c := NewComposer("a@example.com", "b@example.com", "")
	_, res, ok, err := c.Compose([]expiry.Product{{Name: "Riz", Expiry: now.AddDate(0, 0, 5)}}, now)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, res.Empty())
}

type listerFunc func(ctx context.Context) ([]expiry.Product, error)

func (f listerFunc) ListProducts(ctx context.Context) ([]expiry.Product, error) { return f(ctx) }

type recordingMailer struct {
	sent []Mail
	err  error
}

func (r *recordingMailer) Send(_ context.Context, m Mail) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, m)
	return nil
}

func newTestJob(products []expiry.Product, listErr error, mailer Mailer) *Job {
	lister := listerFunc(func(context.Context) ([]expiry.Product, error) { return products, listErr })
	j := NewJob(lister, NewComposer("a@example.com", "b@example.com", ""), mailer, time.UTC, discardLogger())
	j.now = func() time.Time { return now }
	return j
}

func TestJob_Run(t *testing.T) {
	mailer := &recordingMailer{}
	res, err := newTestJob(sampleProducts(), nil, mailer).Run(context.Background())
	require.NoError(t, err)

	assert.True(t, res.Sent)
	assert.Equal(t, 4, res.Items)
	assert.Equal(t, 1, res.Invalid)
	assert.Equal(t, "2026-10-18", res.Day.String())
	assert.NotEmpty(t, res.RunID)
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, res.Subject, mailer.sent[0].Subject)
}

func TestJob_RunEmpty(t *testing.T) {
	mailer := &recordingMailer{}
	res, err := newTestJob(nil, nil, mailer).Run(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Sent)
	assert.Empty(t, mailer.sent)
}

func TestJob_TransportFailureIsFatal(t *testing.T) {
	smtpErr := errors.New("connection refused")
	_, err := newTestJob(sampleProducts(), nil, &recordingMailer{err: smtpErr}).Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransportFatal)
	assert.ErrorIs(t, err, smtpErr)
}

func TestJob_ListFailure(t *testing.T) {
	mailer := &recordingMailer{}
	_, err := newTestJob(nil, errors.New("db down"), mailer).Run(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTransportFatal)
	assert.Empty(t, mailer.sent)
}

func TestSMTPMailer_Send(t *testing.T) {
	m, err := NewSMTPMailer(SMTPConfig{Host: "smtp.example.com", Username: "u", Password: "p"})
	require.NoError(t, err)
	assert.Equal(t, "smtp.example.com:587", m.addr)

	var raw bytes.Buffer
	m.send = func(_ context.Context, c *gomail.Client, msgs ...*gomail.Msg) error {
		assert.NotNil(t, c)
		require.Len(t, msgs, 1)
		_, err := msgs[0].WriteTo(&raw)
		return err
	}

	err = m.Send(context.Background(), Mail{
		From:    "bot@example.com",
		To:      "me@example.com, you@example.com",
		Subject: "Produits expirés",
		HTML:    "<p>Saumon</p>",
		Text:    "Saumon",
	})
	require.NoError(t, err)

	msg, err := mail.ReadMessage(&raw)
	require.NoError(t, err)

	from, err := mail.ParseAddress(msg.Header.Get("From"))
	require.NoError(t, err)
	assert.Equal(t, "bot@example.com", from.Address)

	to, err := mail.ParseAddressList(msg.Header.Get("To"))
	require.NoError(t, err)
	require.Len(t, to, 2)
	assert.Equal(t, "me@example.com", to[0].Address)
	assert.Equal(t, "you@example.com", to[1].Address)

	subject, err := new(mime.WordDecoder).DecodeHeader(msg.Header.Get("Subject"))
	require.NoError(t, err)
	assert.Equal(t, "Produits expirés", subject)

	types, bodies := leafParts(t, msg.Header.Get("Content-Type"), msg.Body)
	assert.Equal(t, []string{"text/plain", "text/html"}, types)
	assert.Equal(t, []string{"Saumon", "<p>Saumon</p>"}, bodies)
}

// leafParts walks a MIME tree and returns the media type and decoded body
// of every non-multipart part in order.
func leafParts(t *testing.T, contentType string, body io.Reader) (types, bodies []string) {
	t.Helper()
	mediaType, params, err := mime.ParseMediaType(contentType)
	require.NoError(t, err)
	if !strings.HasPrefix(mediaType, "multipart/") {
		b, err := io.ReadAll(body)
		require.NoError(t, err)
		return []string{mediaType}, []string{strings.TrimSpace(string(b))}
	}

	mr := multipart.NewReader(body, params["boundary"])
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			return types, bodies
		}
		require.NoError(t, err)
		ts, bs := leafParts(t, p.Header.Get("Content-Type"), p) // quoted-printable is decoded by the reader
		types = append(types, ts...)
		bodies = append(bodies, bs...)
	}
}

func TestSMTPMailer_Errors(t *testing.T) {
	_, err := NewSMTPMailer(SMTPConfig{})
	assert.Error(t, err)

	m, err := NewSMTPMailer(SMTPConfig{Host: "localhost", Port: 2525})
	require.NoError(t, err)
	m.send = func(context.Context, *gomail.Client, ...*gomail.Msg) error { return errors.New("421 busy") }

	assert.Error(t, m.Send(context.Background(), Mail{To: " , "}))
	err = m.Send(context.Background(), Mail{From: "a@example.com", To: "b@example.com"})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "localhost:2525"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, m.Send(ctx, Mail{From: "a@example.com", To: "b@example.com"}), context.Canceled)
}

func TestSMTPMailer_UnresponsiveRelayBoundedByContext(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	// Accept connections and never send the greeting.
	var (
		mu    sync.Mutex
		conns []net.Conn
	)
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, c)
			mu.Unlock()
		}
	}()
	defer func() {
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			c.Close()
		}
	}()

	port := ln.Addr().(*net.TCPAddr).Port
	m, err := NewSMTPMailer(SMTPConfig{Host: "127.0.0.1", Port: port, Timeout: time.Minute})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	start := time.Now()
	go func() {
		done <- m.Send(ctx, Mail{From: "bot@example.com", To: "me@example.com", Subject: "s", Text: "t", HTML: "<p>t</p>"})
	}()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Less(t, time.Since(start), 2*time.Second)
	case <-time.After(5 * time.Second):
		t.Fatal("Send still blocked long after the context deadline")
	}
}

func TestTrigger_SchedulesDaily(t *testing.T) {
	paris, err := time.LoadLocation("Europe/Paris")
	require.NoError(t, err)

	tr, err := NewTrigger(newTestJob(nil, nil, &recordingMailer{}), 7, paris, discardLogger())
	require.NoError(t, err)
	assert.True(t, tr.Next().IsZero())

	tr.Start()
	defer tr.Stop(context.Background())

	next := tr.Next().In(paris)
	assert.Equal(t, 7, next.Hour())
	assert.Equal(t, 0, next.Minute())
	assert.True(t, next.After(time.Now()))

	_, err = NewTrigger(nil, 24, paris, discardLogger())
	assert.Error(t, err)
}
