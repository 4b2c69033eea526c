package digest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/albapepper/expirywatch/internal/expiry"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "expirywatch_digest_runs_total",
		Help: "Digest runs by outcome.",
	}, []string{"outcome"})

	itemsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "expirywatch_digest_items_total",
		Help: "Products listed in sent digests.",
	})
)

// ProductLister is the live product query.
type ProductLister interface {
	ListProducts(ctx context.Context) ([]expiry.Product, error)
}

// RunResult summarizes one invocation.
type RunResult struct {
	RunID   string     `json:"run_id"`
	Day     expiry.Day `json:"day"`
	Sent    bool       `json:"sent"`
	Items   int        `json:"items"`
	Invalid int        `json:"invalid"`
	Subject string     `json:"subject,omitempty"`
}

// Job is one digest invocation: list, compose, send.
type Job struct {
	lister   ProductLister
	composer *Composer
	mailer   Mailer
	loc      *time.Location
	now      func() time.Time
	logger   *slog.Logger
}

// NewJob wires a Job. loc is the timezone the calendar day is taken in.
func NewJob(lister ProductLister, composer *Composer, mailer Mailer, loc *time.Location, logger *slog.Logger) *Job {
	if loc == nil {
		loc = time.Local
	}
	return &Job{
		lister:   lister,
		composer: composer,
		mailer:   mailer,
		loc:      loc,
		now:      time.Now,
		logger:   logger.With("component", "digest"),
	}
}

// Preview composes the digest without sending it.
func (j *Job) Preview(ctx context.Context) (Mail, expiry.Result, bool, error) {
	products, err := j.lister.ListProducts(ctx)
	if err != nil {
		return Mail{}, expiry.Result{}, false, fmt.Errorf("list products: %w", err)
	}
	return j.composer.Compose(products, j.now().In(j.loc))
}

// Run executes the job once. A mail failure is returned wrapped in
// ErrTransportFatal and is not retried.
func (j *Job) Run(ctx context.Context) (RunResult, error) {
	result := RunResult{RunID: uuid.NewString()}
	log := j.logger.With("run_id", result.RunID)
	start := time.Now()

	mail, res, ok, err := j.Preview(ctx)
	result.Day = res.Today
	result.Invalid = len(res.Invalid)
	if err != nil {
		runsTotal.WithLabelValues("failed").Inc()
		log.Error("Digest run failed", "error", err)
		return result, err
	}
	for _, inv := range res.Invalid {
		log.Warn("Skipping product with invalid expiry",
			"product_id", inv.Product.ID, "name", inv.Product.Name, "error", inv.Error)
	}
	if !ok {
		runsTotal.WithLabelValues("empty").Inc()
		log.Info("No urgent products, digest skipped", "day", res.Today.String())
		return result, nil
	}

	result.Items = res.Count()
	result.Subject = mail.Subject
	if err := j.mailer.Send(ctx, mail); err != nil {
		runsTotal.WithLabelValues("failed").Inc()
		log.Error("Digest delivery failed", "to", mail.To, "error", err)
		return result, fmt.Errorf("%w: %w", ErrTransportFatal, err)
	}

	result.Sent = true
	runsTotal.WithLabelValues("sent").Inc()
	itemsTotal.Add(float64(result.Items))
	log.Info("Digest sent",
		"day", res.Today.String(),
		"items", result.Items,
		"to", mail.To,
		"duration", time.Since(start).Round(time.Millisecond))
	return result, nil
}
