// Package visit defines the core facts tracked by the service: the
// classification verdict for a user agent and the persisted visit record.
package visit

import "time"

// Category is the coarse classification of a crawler's purpose.
type Category string

// Supported bot categories.
const (
	CategorySearchEngine Category = "search_engine"
	CategoryLLM          Category = "llm"
	CategorySocial       Category = "social"
	CategoryOther        Category = "other"
	CategoryUnknown      Category = "unknown"
)

// Categories lists every category in display order.
func Categories() []Category {
	return []Category{
		CategorySearchEngine,
		CategoryLLM,
		CategorySocial,
		CategoryOther,
		CategoryUnknown,
	}
}

// Valid reports whether c is one of the supported categories.
func (c Category) Valid() bool {
	switch c {
	case CategorySearchEngine, CategoryLLM, CategorySocial, CategoryOther, CategoryUnknown:
		return true
	}
	return false
}

// Identity is an immutable classification fact produced by the classifier.
type Identity struct {
	Name     string   `json:"name"`
	Company  string   `json:"company"`
	Category Category `json:"category"`
}

// Automated reports whether the identity describes a recognized or suspected
// crawler rather than an unclassified visitor.
func (i Identity) Automated() bool {
	return i.Category != CategoryUnknown
}

// Event is one inbound visit before classification. SourceAddress is the
// remote host without port; ResponseTimeMs is nil when the caller did not
// measure one.
type Event struct {
	URL            string
	UserAgent      string
	SourceAddress  string
	ResponseTimeMs *int64
}

// Record is one persisted visit fact. ID is assigned by the store on insert
// and is strictly increasing in insertion order. Timestamp is event time in
// UTC; it is caller-supplied and need not be monotonic.
type Record struct {
	ID             int64     `json:"id"`
	Timestamp      time.Time `json:"timestamp"`
	URL            string    `json:"url"`
	UserAgent      string    `json:"userAgent"`
	SourceAddress  string    `json:"sourceAddress"`
	BotName        string    `json:"botName"`
	BotCategory    Category  `json:"botCategory"`
	BotCompany     string    `json:"botCompany"`
	ResponseTimeMs *int64    `json:"responseTimeMs,omitempty"`
}
