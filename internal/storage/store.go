// Package storage defines the persistence contract for the visit log.
//
// The visit log is the single source of truth: every aggregate is recomputed
// from raw facts at query time rather than maintained as running counters.
// Query cost is traded for correctness simplicity, which is acceptable at the
// read volumes the dashboard and reports generate.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/waio/crawlwatch/internal/visit"
)

// ErrInvalidQuery indicates a malformed query parameter such as a negative
// limit. The store rejects invalid ranges rather than silently coercing them.
var ErrInvalidQuery = errors.New("invalid query parameter")

// GroupBy selects the bucketing dimension for Distribution queries.
type GroupBy string

// Supported distribution dimensions.
const (
	GroupByCategory  GroupBy = "category"
	GroupByBot       GroupBy = "bot"
	GroupByHourOfDay GroupBy = "hour_of_day"
)

// Valid reports whether g is a supported dimension.
func (g GroupBy) Valid() bool {
	switch g {
	case GroupByCategory, GroupByBot, GroupByHourOfDay:
		return true
	}
	return false
}

// BotCount is one (bot name, visit count) pair.
type BotCount struct {
	BotName string `json:"botName"`
	Count   int64  `json:"count"`
}

// Bucket is one slice of a distribution. Percentage is computed against the
// total of the records inside the same window and URL filter, so percentages
// across all buckets of one query sum to 100 (modulo rounding).
type Bucket struct {
	Bucket     string  `json:"bucket"`
	Count      int64   `json:"count"`
	Percentage float64 `json:"percentage"`
}

// DayCount is one day of the daily trend; Date is formatted YYYY-MM-DD.
// Days without visits are absent, callers must tolerate gaps.
type DayCount struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

// URLStats aggregates everything known about URLs matching one substring.
type URLStats struct {
	TotalVisits  int64      `json:"totalVisits"`
	UniqueBots   int64      `json:"uniqueBots"`
	LastVisit    *time.Time `json:"lastVisit"`
	BotBreakdown []BotCount `json:"botBreakdown"`
}

// Store is the durable append-only visit log plus its aggregate query
// surface. All reads reflect writes that completed before the read began.
// URL-scoped variants match on a case-sensitive, unanchored substring of the
// record URL. Implementations serialize their internal state; Append plus id
// assignment is a single atomic unit.
type Store interface {
	// Append persists the fact and returns the assigned id. The id is unique
	// and strictly increasing in insertion order; rec.ID is ignored.
	Append(ctx context.Context, rec visit.Record) (int64, error)

	// Recent returns up to limit records, most recent first by timestamp.
	Recent(ctx context.Context, limit int) ([]visit.Record, error)
	// RecentForURL is Recent restricted to URLs containing urlPattern.
	RecentForURL(ctx context.Context, urlPattern string, limit int) ([]visit.Record, error)

	// CountByCategory returns visit counts per bot category.
	CountByCategory(ctx context.Context) (map[visit.Category]int64, error)
	// CountByBot returns up to limit (bot, count) pairs, descending by count.
	CountByBot(ctx context.Context, limit int) ([]BotCount, error)
	// TotalCount returns the number of persisted records.
	TotalCount(ctx context.Context) (int64, error)

	// Windowed returns records with timestamp >= now - since, most recent
	// first. since must be positive.
	Windowed(ctx context.Context, since time.Duration) ([]visit.Record, error)
	// Distribution buckets records by the groupBy dimension. since == 0 means
	// all time; since < 0 is invalid.
	Distribution(ctx context.Context, since time.Duration, groupBy GroupBy) ([]Bucket, error)
	// DistributionForURL is Distribution restricted by URL substring.
	DistributionForURL(ctx context.Context, urlPattern string, since time.Duration, groupBy GroupBy) ([]Bucket, error)

	// AverageResponseTime averages response_time_ms over records that have
	// one; 0 when none do.
	AverageResponseTime(ctx context.Context) (float64, error)
	// UniqueSourceCount returns the number of distinct source addresses.
	UniqueSourceCount(ctx context.Context) (int64, error)

	// DailyTrend returns per-day counts covering the trailing days days.
	DailyTrend(ctx context.Context, days int) ([]DayCount, error)
	// DailyTrendForURL is DailyTrend restricted by URL substring.
	DailyTrendForURL(ctx context.Context, urlPattern string, days int) ([]DayCount, error)

	// URLStats summarizes traffic for URLs containing urlPattern.
	URLStats(ctx context.Context, urlPattern string) (URLStats, error)

	// Close releases underlying resources.
	Close()
}

// ValidateLimit rejects non-positive limits.
func ValidateLimit(limit int) error {
	if limit <= 0 {
		return fmt.Errorf("%w: limit must be > 0", ErrInvalidQuery)
	}
	return nil
}

// ValidateDays rejects non-positive day counts.
func ValidateDays(days int) error {
	if days <= 0 {
		return fmt.Errorf("%w: days must be > 0", ErrInvalidQuery)
	}
	return nil
}

// ValidateSince rejects negative windows; allowZero permits the all-time
// sentinel used by distribution queries.
func ValidateSince(since time.Duration, allowZero bool) error {
	if since < 0 || (!allowZero && since == 0) {
		return fmt.Errorf("%w: since must be positive", ErrInvalidQuery)
	}
	return nil
}

// ValidateGroupBy rejects unsupported dimensions.
func ValidateGroupBy(groupBy GroupBy) error {
	if !groupBy.Valid() {
		return fmt.Errorf("%w: unsupported group_by", ErrInvalidQuery)
	}
	return nil
}
