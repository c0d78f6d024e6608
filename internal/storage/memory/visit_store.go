// Package memory provides an in-memory visit store for development and
// testing. It implements the full storage.Store query surface over a slice
// of records guarded by a single mutex.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/waio/crawlwatch/internal/storage"
	"github.com/waio/crawlwatch/internal/visit"
)

// VisitStore is the in-memory storage.Store implementation. The zero value
// is not usable; construct with NewVisitStore.
type VisitStore struct {
	mu      sync.RWMutex
	records []visit.Record
	nextID  int64

	// now is swappable so window queries are deterministic in tests.
	now func() time.Time
}

// NewVisitStore constructs an empty store.
func NewVisitStore() *VisitStore {
	return &VisitStore{
		nextID: 1,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Append assigns the next id and stores the record.
func (s *VisitStore) Append(_ context.Context, rec visit.Record) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.ID = s.nextID
	s.nextID++
	s.records = append(s.records, rec)
	return rec.ID, nil
}

// Recent returns up to limit records, most recent first by timestamp.
func (s *VisitStore) Recent(ctx context.Context, limit int) ([]visit.Record, error) {
	return s.RecentForURL(ctx, "", limit)
}

// RecentForURL is Recent restricted to URLs containing urlPattern.
func (s *VisitStore) RecentForURL(_ context.Context, urlPattern string, limit int) ([]visit.Record, error) {
	if err := storage.ValidateLimit(limit); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	matched := s.filter(urlPattern, time.Time{})
	sortByTimestampDesc(matched)
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// CountByCategory returns visit counts per bot category.
func (s *VisitStore) CountByCategory(_ context.Context) (map[visit.Category]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[visit.Category]int64)
	for _, rec := range s.records {
		counts[rec.BotCategory]++
	}
	return counts, nil
}

// CountByBot returns up to limit (bot, count) pairs, descending by count.
func (s *VisitStore) CountByBot(_ context.Context, limit int) ([]storage.BotCount, error) {
	if err := storage.ValidateLimit(limit); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := botBreakdown(s.records)
	if len(counts) > limit {
		counts = counts[:limit]
	}
	return counts, nil
}

// TotalCount returns the number of persisted records.
func (s *VisitStore) TotalCount(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.records)), nil
}

// Windowed returns records with timestamp >= now - since, most recent first.
func (s *VisitStore) Windowed(_ context.Context, since time.Duration) ([]visit.Record, error) {
	if err := storage.ValidateSince(since, false); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	matched := s.filter("", s.now().Add(-since))
	sortByTimestampDesc(matched)
	return matched, nil
}

// Distribution buckets all records by the groupBy dimension.
func (s *VisitStore) Distribution(ctx context.Context, since time.Duration, groupBy storage.GroupBy) ([]storage.Bucket, error) {
	return s.DistributionForURL(ctx, "", since, groupBy)
}

// DistributionForURL is Distribution restricted by URL substring.
func (s *VisitStore) DistributionForURL(
	_ context.Context,
	urlPattern string,
	since time.Duration,
	groupBy storage.GroupBy,
) ([]storage.Bucket, error) {
	if err := storage.ValidateSince(since, true); err != nil {
		return nil, err
	}
	if err := storage.ValidateGroupBy(groupBy); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var cutoff time.Time
	if since > 0 {
		cutoff = s.now().Add(-since)
	}
	matched := s.filter(urlPattern, cutoff)

	counts := make(map[string]int64)
	for _, rec := range matched {
		counts[bucketKey(rec, groupBy)]++
	}
	total := int64(len(matched))
	buckets := make([]storage.Bucket, 0, len(counts))
	for key, count := range counts {
		pct := 0.0
		if total > 0 {
			pct = float64(count) * 100 / float64(total)
		}
		buckets = append(buckets, storage.Bucket{Bucket: key, Count: count, Percentage: pct})
	}
	sort.Slice(buckets, func(i, j int) bool {
		if buckets[i].Count != buckets[j].Count {
			return buckets[i].Count > buckets[j].Count
		}
		return buckets[i].Bucket < buckets[j].Bucket
	})
	return buckets, nil
}

// AverageResponseTime averages over records that carry a response time.
func (s *VisitStore) AverageResponseTime(_ context.Context) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var sum, n int64
	for _, rec := range s.records {
		if rec.ResponseTimeMs != nil {
			sum += *rec.ResponseTimeMs
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	return float64(sum) / float64(n), nil
}

// UniqueSourceCount returns the number of distinct source addresses.
func (s *VisitStore) UniqueSourceCount(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{}, len(s.records))
	for _, rec := range s.records {
		seen[rec.SourceAddress] = struct{}{}
	}
	return int64(len(seen)), nil
}

// DailyTrend returns per-day counts covering the trailing days days.
func (s *VisitStore) DailyTrend(ctx context.Context, days int) ([]storage.DayCount, error) {
	return s.DailyTrendForURL(ctx, "", days)
}

// DailyTrendForURL is DailyTrend restricted by URL substring.
func (s *VisitStore) DailyTrendForURL(_ context.Context, urlPattern string, days int) ([]storage.DayCount, error) {
	if err := storage.ValidateDays(days); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	cutoff := s.now().AddDate(0, 0, -days)
	matched := s.filter(urlPattern, cutoff)

	counts := make(map[string]int64)
	for _, rec := range matched {
		counts[rec.Timestamp.UTC().Format("2006-01-02")]++
	}
	trend := make([]storage.DayCount, 0, len(counts))
	for date, count := range counts {
		trend = append(trend, storage.DayCount{Date: date, Count: count})
	}
	sort.Slice(trend, func(i, j int) bool { return trend[i].Date < trend[j].Date })
	return trend, nil
}

// URLStats summarizes traffic for URLs containing urlPattern.
func (s *VisitStore) URLStats(_ context.Context, urlPattern string) (storage.URLStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	matched := s.filter(urlPattern, time.Time{})

	stats := storage.URLStats{
		TotalVisits:  int64(len(matched)),
		BotBreakdown: botBreakdown(matched),
	}
	stats.UniqueBots = int64(len(stats.BotBreakdown))
	for _, rec := range matched {
		if stats.LastVisit == nil || rec.Timestamp.After(*stats.LastVisit) {
			ts := rec.Timestamp
			stats.LastVisit = &ts
		}
	}
	return stats, nil
}

// Close implements storage.Store; it performs no action.
func (s *VisitStore) Close() {}

// filter returns copies of records matching the URL substring and cutoff.
// Callers must hold at least the read lock.
func (s *VisitStore) filter(urlPattern string, cutoff time.Time) []visit.Record {
	out := make([]visit.Record, 0, len(s.records))
	for _, rec := range s.records {
		if urlPattern != "" && !strings.Contains(rec.URL, urlPattern) {
			continue
		}
		if !cutoff.IsZero() && rec.Timestamp.Before(cutoff) {
			continue
		}
		out = append(out, rec)
	}
	return out
}

func botBreakdown(records []visit.Record) []storage.BotCount {
	counts := make(map[string]int64)
	for _, rec := range records {
		counts[rec.BotName]++
	}
	out := make([]storage.BotCount, 0, len(counts))
	for name, count := range counts {
		out = append(out, storage.BotCount{BotName: name, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].BotName < out[j].BotName
	})
	return out
}

func bucketKey(rec visit.Record, groupBy storage.GroupBy) string {
	switch groupBy {
	case storage.GroupByCategory:
		return string(rec.BotCategory)
	case storage.GroupByBot:
		return rec.BotName
	default:
		return rec.Timestamp.UTC().Format("15")
	}
}

func sortByTimestampDesc(records []visit.Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp.After(records[j].Timestamp)
	})
}
