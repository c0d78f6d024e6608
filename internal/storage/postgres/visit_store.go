// Package postgres provides the Postgres-backed visit store.
package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/waio/crawlwatch/internal/storage"
	"github.com/waio/crawlwatch/internal/visit"
)

// Config controls the Postgres connection pool behind the visit store.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type dbPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// VisitStore implements storage.Store on Postgres. The visits table is
// append-only; ids come from a bigserial so Append plus id assignment is a
// single atomic unit inside the insert.
type VisitStore struct {
	pool dbPool
	now  func() time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS visits (
	id BIGSERIAL PRIMARY KEY,
	timestamp TIMESTAMPTZ NOT NULL,
	url TEXT NOT NULL,
	user_agent TEXT NOT NULL,
	source_address TEXT NOT NULL,
	bot_name TEXT NOT NULL,
	bot_category TEXT NOT NULL,
	bot_company TEXT NOT NULL,
	response_time_ms BIGINT
);
CREATE INDEX IF NOT EXISTS idx_visits_timestamp ON visits (timestamp);
CREATE INDEX IF NOT EXISTS idx_visits_bot_category ON visits (bot_category);
CREATE INDEX IF NOT EXISTS idx_visits_bot_name ON visits (bot_name);
`

// NewVisitStore connects a pool, verifies the connection, and ensures the
// schema exists. A failure here is the only condition that should take the
// process down.
func NewVisitStore(ctx context.Context, cfg Config) (*VisitStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	store := &VisitStore{pool: pool, now: func() time.Time { return time.Now().UTC() }}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure visits schema: %w", err)
	}
	return store, nil
}

// NewVisitStoreWithPool constructs a store from an existing pool, primarily
// for testing. Schema management is skipped.
func NewVisitStoreWithPool(pool dbPool) (*VisitStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &VisitStore{pool: pool, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Close releases the underlying pool.
func (s *VisitStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

const insertVisit = `
INSERT INTO visits (timestamp, url, user_agent, source_address, bot_name, bot_category, bot_company, response_time_ms)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id`

// Append persists the fact and returns the id assigned by the database.
func (s *VisitStore) Append(ctx context.Context, rec visit.Record) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, insertVisit,
		rec.Timestamp.UTC(),
		rec.URL,
		rec.UserAgent,
		rec.SourceAddress,
		rec.BotName,
		string(rec.BotCategory),
		rec.BotCompany,
		rec.ResponseTimeMs,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert visit: %w", err)
	}
	return id, nil
}

const recordColumns = "id, timestamp, url, user_agent, source_address, bot_name, bot_category, bot_company, response_time_ms"

// Recent returns up to limit records, most recent first by timestamp.
func (s *VisitStore) Recent(ctx context.Context, limit int) ([]visit.Record, error) {
	if err := storage.ValidateLimit(limit); err != nil {
		return nil, err
	}
	query := "SELECT " + recordColumns + " FROM visits ORDER BY timestamp DESC LIMIT $1"
	return s.queryRecords(ctx, query, limit)
}

// RecentForURL is Recent restricted to URLs containing urlPattern.
func (s *VisitStore) RecentForURL(ctx context.Context, urlPattern string, limit int) ([]visit.Record, error) {
	if err := storage.ValidateLimit(limit); err != nil {
		return nil, err
	}
	query := "SELECT " + recordColumns +
		" FROM visits WHERE url LIKE '%' || $1 || '%' ORDER BY timestamp DESC LIMIT $2"
	return s.queryRecords(ctx, query, urlPattern, limit)
}

// CountByCategory returns visit counts per bot category.
func (s *VisitStore) CountByCategory(ctx context.Context) (map[visit.Category]int64, error) {
	rows, err := s.pool.Query(ctx, "SELECT bot_category, COUNT(*) FROM visits GROUP BY bot_category")
	if err != nil {
		return nil, fmt.Errorf("count by category: %w", err)
	}
	defer rows.Close()
	counts := make(map[visit.Category]int64)
	for rows.Next() {
		var cat string
		var count int64
		if err := rows.Scan(&cat, &count); err != nil {
			return nil, fmt.Errorf("scan category count: %w", err)
		}
		counts[visit.Category(cat)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate category counts: %w", err)
	}
	return counts, nil
}

// CountByBot returns up to limit (bot, count) pairs, descending by count.
func (s *VisitStore) CountByBot(ctx context.Context, limit int) ([]storage.BotCount, error) {
	if err := storage.ValidateLimit(limit); err != nil {
		return nil, err
	}
	query := "SELECT bot_name, COUNT(*) AS count FROM visits GROUP BY bot_name ORDER BY count DESC, bot_name ASC LIMIT $1"
	return s.queryBotCounts(ctx, query, limit)
}

// TotalCount returns the number of persisted records.
func (s *VisitStore) TotalCount(ctx context.Context) (int64, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM visits").Scan(&count); err != nil {
		return 0, fmt.Errorf("total count: %w", err)
	}
	return count, nil
}

// Windowed returns records with timestamp >= now - since, most recent first.
func (s *VisitStore) Windowed(ctx context.Context, since time.Duration) ([]visit.Record, error) {
	if err := storage.ValidateSince(since, false); err != nil {
		return nil, err
	}
	query := "SELECT " + recordColumns + " FROM visits WHERE timestamp >= $1 ORDER BY timestamp DESC"
	return s.queryRecords(ctx, query, s.now().Add(-since))
}

// Distribution buckets records by the groupBy dimension.
func (s *VisitStore) Distribution(ctx context.Context, since time.Duration, groupBy storage.GroupBy) ([]storage.Bucket, error) {
	return s.DistributionForURL(ctx, "", since, groupBy)
}

// DistributionForURL is Distribution restricted by URL substring. The
// percentage is computed against the total inside the same filter so buckets
// sum to 100 whenever any records match.
func (s *VisitStore) DistributionForURL(
	ctx context.Context,
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
	var key string
	switch groupBy {
	case storage.GroupByCategory:
		key = "bot_category"
	case storage.GroupByBot:
		key = "bot_name"
	case storage.GroupByHourOfDay:
		key = "to_char(timestamp AT TIME ZONE 'UTC', 'HH24')"
	}
	where, args := s.buildFilter(urlPattern, since)
	query := "SELECT " + key + " AS bucket, COUNT(*) AS count FROM visits" + where +
		" GROUP BY bucket ORDER BY count DESC, bucket ASC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("distribution: %w", err)
	}
	defer rows.Close()
	var buckets []storage.Bucket
	var total int64
	for rows.Next() {
		var b storage.Bucket
		if err := rows.Scan(&b.Bucket, &b.Count); err != nil {
			return nil, fmt.Errorf("scan distribution bucket: %w", err)
		}
		total += b.Count
		buckets = append(buckets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate distribution: %w", err)
	}
	for i := range buckets {
		if total > 0 {
			buckets[i].Percentage = float64(buckets[i].Count) * 100 / float64(total)
		}
	}
	return buckets, nil
}

// AverageResponseTime averages response_time_ms over records that have one.
func (s *VisitStore) AverageResponseTime(ctx context.Context) (float64, error) {
	var avg float64
	query := "SELECT COALESCE(AVG(response_time_ms), 0) FROM visits WHERE response_time_ms IS NOT NULL"
	if err := s.pool.QueryRow(ctx, query).Scan(&avg); err != nil {
		return 0, fmt.Errorf("average response time: %w", err)
	}
	return avg, nil
}

// UniqueSourceCount returns the number of distinct source addresses.
func (s *VisitStore) UniqueSourceCount(ctx context.Context) (int64, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(DISTINCT source_address) FROM visits").Scan(&count); err != nil {
		return 0, fmt.Errorf("unique source count: %w", err)
	}
	return count, nil
}

// DailyTrend returns per-day counts covering the trailing days days.
func (s *VisitStore) DailyTrend(ctx context.Context, days int) ([]storage.DayCount, error) {
	return s.DailyTrendForURL(ctx, "", days)
}

// DailyTrendForURL is DailyTrend restricted by URL substring. Only days with
// at least one visit appear.
func (s *VisitStore) DailyTrendForURL(ctx context.Context, urlPattern string, days int) ([]storage.DayCount, error) {
	if err := storage.ValidateDays(days); err != nil {
		return nil, err
	}
	where, args := s.buildFilter(urlPattern, time.Duration(days)*24*time.Hour)
	query := "SELECT to_char(timestamp AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS date, COUNT(*) AS count FROM visits" +
		where + " GROUP BY date ORDER BY date ASC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("daily trend: %w", err)
	}
	defer rows.Close()
	var trend []storage.DayCount
	for rows.Next() {
		var d storage.DayCount
		if err := rows.Scan(&d.Date, &d.Count); err != nil {
			return nil, fmt.Errorf("scan trend day: %w", err)
		}
		trend = append(trend, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trend: %w", err)
	}
	return trend, nil
}

// URLStats summarizes traffic for URLs containing urlPattern.
func (s *VisitStore) URLStats(ctx context.Context, urlPattern string) (storage.URLStats, error) {
	var stats storage.URLStats
	summary := "SELECT COUNT(*), MAX(timestamp) FROM visits WHERE url LIKE '%' || $1 || '%'"
	if err := s.pool.QueryRow(ctx, summary, urlPattern).Scan(&stats.TotalVisits, &stats.LastVisit); err != nil {
		return storage.URLStats{}, fmt.Errorf("url summary: %w", err)
	}
	breakdown := "SELECT bot_name, COUNT(*) AS count FROM visits WHERE url LIKE '%' || $1 || '%'" +
		" GROUP BY bot_name ORDER BY count DESC, bot_name ASC"
	counts, err := s.queryBotCounts(ctx, breakdown, urlPattern)
	if err != nil {
		return storage.URLStats{}, err
	}
	stats.BotBreakdown = counts
	stats.UniqueBots = int64(len(counts))
	return stats, nil
}

// buildFilter assembles the shared WHERE clause for url/window scoping.
func (s *VisitStore) buildFilter(urlPattern string, since time.Duration) (string, []any) {
	var conds []string
	var args []any
	if urlPattern != "" {
		args = append(args, urlPattern)
		conds = append(conds, fmt.Sprintf("url LIKE '%%' || $%d || '%%'", len(args)))
	}
	if since > 0 {
		args = append(args, s.now().Add(-since))
		conds = append(conds, fmt.Sprintf("timestamp >= $%d", len(args)))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (s *VisitStore) queryRecords(ctx context.Context, query string, args ...any) ([]visit.Record, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query visits: %w", err)
	}
	defer rows.Close()
	var records []visit.Record
	for rows.Next() {
		var rec visit.Record
		var cat string
		if err := rows.Scan(
			&rec.ID,
			&rec.Timestamp,
			&rec.URL,
			&rec.UserAgent,
			&rec.SourceAddress,
			&rec.BotName,
			&cat,
			&rec.BotCompany,
			&rec.ResponseTimeMs,
		); err != nil {
			return nil, fmt.Errorf("scan visit: %w", err)
		}
		rec.BotCategory = visit.Category(cat)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate visits: %w", err)
	}
	return records, nil
}

func (s *VisitStore) queryBotCounts(ctx context.Context, query string, args ...any) ([]storage.BotCount, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query bot counts: %w", err)
	}
	defer rows.Close()
	var counts []storage.BotCount
	for rows.Next() {
		var c storage.BotCount
		if err := rows.Scan(&c.BotName, &c.Count); err != nil {
			return nil, fmt.Errorf("scan bot count: %w", err)
		}
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bot counts: %w", err)
	}
	return counts, nil
}
