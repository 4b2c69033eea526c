package expiry

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Windows
// --------------------------------------------------------------------------

// Window maps a day delta (expiry day minus reference day) to a bucket.
type Window struct {
	Name   string
	bucket func(days int) Bucket
}

// Bucket classifies a day delta under this window.
func (w Window) Bucket(days int) Bucket {
	if w.bucket == nil {
		return None
	}
	return w.bucket(days)
}

// UrgentWindow drives firing decisions: yesterday through three days out.
// Day 0 is reported as Critical with status TODAY.
var UrgentWindow = Window{
	Name: "urgent",
	bucket: func(d int) Bucket {
		switch {
		case d == -1:
			return Expired
		case d >= 0 && d <= urgentCriticalDays:
			return Critical
		default:
			return None
		}
	},
}

// DisplayWindow drives on-screen grouping: everything past due, the next
// three days, then the rest of the week.
var DisplayWindow = Window{
	Name: "display",
	bucket: func(d int) Bucket {
		switch {
		case d < 0:
			return Expired
		case d <= urgentCriticalDays:
			return Critical
		case d <= displayWarningDays:
			return Warning
		default:
			return None
		}
	},
}

const (
	urgentCriticalDays = 3
	displayWarningDays = 7
)

// WindowByName resolves "urgent" or "display".
func WindowByName(name string) (Window, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case UrgentWindow.Name:
		return UrgentWindow, nil
	case DisplayWindow.Name:
		return DisplayWindow, nil
	}
	return Window{}, fmt.Errorf("unknown window %q (want %q or %q)", name, UrgentWindow.Name, DisplayWindow.Name)
}

// Status renders the digest status tag for a day delta.
func Status(days int) string {
	switch {
	case days < 0:
		return "EXPIRED"
	case days == 0:
		return "TODAY"
	case days == 1:
		return "IN 1 DAY"
	default:
		return fmt.Sprintf("IN %d DAYS", days)
	}
}

// --------------------------------------------------------------------------
// Classification
// --------------------------------------------------------------------------

// Result holds the outcome of one classification pass.
type Result struct {
	Window  string             `json:"window"`
	Today   Day                `json:"today"`
	Buckets map[Bucket][]Entry `json:"buckets"`
	Invalid []InvalidProduct   `json:"invalid,omitempty"`
}

// Classify buckets products relative to today under window w. The expiry
// day of each product is taken in today's location. Products outside the
// window are omitted; products with an invalid date land in Invalid.
func Classify(products []Product, today time.Time, w Window) Result {
	ref := DayOf(today)
	loc := today.Location()

	res := Result{
		Window:  w.Name,
		Today:   ref,
		Buckets: make(map[Bucket][]Entry),
	}

	for _, p := range products {
		at, err := Normalize(p.Expiry)
		if err != nil {
			res.Invalid = append(res.Invalid, InvalidProduct{Product: p, Error: err.Error()})
			continue
		}
		day := DayOf(at.In(loc))
		delta := day.Sub(ref)
		b := w.Bucket(delta)
		if b == None {
			continue
		}
		res.Buckets[b] = append(res.Buckets[b], Entry{
			Product:  p,
			Expires:  at,
			Day:      day,
			DaysLeft: delta,
			Bucket:   b,
		})
	}

	for _, entries := range res.Buckets {
		sort.SliceStable(entries, func(i, j int) bool {
			if !entries[i].Expires.Equal(entries[j].Expires) {
				return entries[i].Expires.Before(entries[j].Expires)
			}
			return entries[i].Product.Name < entries[j].Product.Name
		})
	}
	return res
}

// Entries returns every classified entry, most urgent bucket first.
func (r Result) Entries() []Entry {
	var out []Entry
	for _, b := range Buckets {
		out = append(out, r.Buckets[b]...)
	}
	return out
}

// Count returns the number of classified entries.
func (r Result) Count() int {
	n := 0
	for _, entries := range r.Buckets {
		n += len(entries)
	}
	return n
}

// Empty reports whether no product fell inside the window.
func (r Result) Empty() bool { return r.Count() == 0 }

// HasExpired reports whether any entry is past due.
func (r Result) HasExpired() bool { return len(r.Buckets[Expired]) > 0 }

// Names returns product names in Entries order.
func (r Result) Names() []string {
	entries := r.Entries()
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Product.Name)
	}
	return names
}
