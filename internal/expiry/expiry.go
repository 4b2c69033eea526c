// Package expiry normalizes product expiry dates and buckets products into
// urgency windows relative to a reference day.
//
// Pipeline: raw expiry value → Normalize → Day → Window.Bucket → Result.
// Products whose date cannot be normalized are reported in Result.Invalid
// and never abort a classification pass.
package expiry

import "time"

// --------------------------------------------------------------------------
// Types
// --------------------------------------------------------------------------

// Product is the slice of an inventory item the classifier reads.
// Expiry holds the date in whatever encoding the product store produced.
type Product struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Source string `json:"source,omitempty"` // "Fridge" | "Freezer" | ...
	Expiry any    `json:"expiry"`
}

// Bucket is an urgency class. Higher values are more urgent.
type Bucket int

const (
	None Bucket = iota
	Warning
	Critical
	Expired
)

// Buckets lists the non-empty buckets from most to least urgent.
var Buckets = []Bucket{Expired, Critical, Warning}

func (b Bucket) String() string {
	switch b {
	case Expired:
		return "expired"
	case Critical:
		return "critical"
	case Warning:
		return "warning"
	default:
		return "none"
	}
}

// MarshalText renders the bucket name in JSON map keys and fields.
func (b Bucket) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// Entry is a classified product.
type Entry struct {
	Product  Product   `json:"product"`
	Expires  time.Time `json:"expires"`
	Day      Day       `json:"day"`
	DaysLeft int       `json:"days_left"`
	Bucket   Bucket    `json:"bucket"`
}

// Status returns the digest status tag for the entry.
func (e Entry) Status() string {
	return Status(e.DaysLeft)
}

// InvalidProduct is a product excluded because its date did not normalize.
type InvalidProduct struct {
	Product Product `json:"product"`
	Error   string  `json:"error"`
}
