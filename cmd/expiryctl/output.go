package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/albapepper/expirywatch/internal/expiry"
)

// readProductsFile decodes a JSON array of products. Numbers are kept as
// json.Number so epoch values survive without float rounding.
func readProductsFile(path string) ([]expiry.Product, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open products file: %w", err)
	}
	defer f.Close()
	return decodeProducts(f)
}

func decodeProducts(r io.Reader) ([]expiry.Product, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var ps []expiry.Product
	if err := dec.Decode(&ps); err != nil {
		return nil, fmt.Errorf("decode products: %w", err)
	}
	return ps, nil
}

// referenceTime resolves --today. An empty value means now.
func referenceTime(day string, loc *time.Location, now time.Time) (time.Time, error) {
	if day == "" {
		return now.In(loc), nil
	}
	d, err := expiry.ParseDay(day)
	if err != nil {
		return time.Time{}, fmt.Errorf("--today: %w", err)
	}
	return d.Midnight(loc), nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeResult prints one row per entry, most urgent first, then the
// products whose date could not be read.
func writeResult(w io.Writer, res expiry.Result) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Window: %s\tToday: %s\n\n", res.Window, res.Today)
	fmt.Fprintln(tw, "BUCKET\tNAME\tSOURCE\tEXPIRES\tSTATUS")
	for _, e := range res.Entries() {
		source := e.Product.Source
		if source == "" {
			source = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.Bucket, e.Product.Name, source, e.Day, e.Status())
	}
	if res.Empty() {
		fmt.Fprintln(tw, "(none)")
	}
	for _, inv := range res.Invalid {
		fmt.Fprintf(tw, "invalid\t%s\t\t\t%s\n", inv.Product.Name, inv.Error)
	}
	return tw.Flush()
}
