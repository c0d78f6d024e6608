package api

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/waio/crawlwatch/internal/simulator"
	"github.com/waio/crawlwatch/internal/storage"
	"github.com/waio/crawlwatch/internal/visit"
)

const (
	defaultRecentLimit = 10
	maxRecentLimit     = 500
	defaultBotLimit    = 20
	defaultTrendDays   = 7
	maxTrendDays       = 365
)

// handleRecentVisits serves GET /api/visits/recent?limit=&url=.
func (s *Server) handleRecentVisits(w http.ResponseWriter, r *http.Request) {
	limit, err := parseIntParam(r, "limit", defaultRecentLimit, maxRecentLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	urlPattern := r.URL.Query().Get("url")

	var visits []visit.Record
	if urlPattern != "" {
		visits, err = s.store.RecentForURL(r.Context(), urlPattern, limit)
	} else {
		visits, err = s.store.Recent(r.Context(), limit)
	}
	if err != nil {
		s.respondStoreError(w, "list recent visits", err)
		return
	}
	if visits == nil {
		visits = []visit.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"visits": visits})
}

// handleBotStats serves GET /api/stats/bots.
func (s *Server) handleBotStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	byCategory, err := s.store.CountByCategory(ctx)
	if err != nil {
		s.respondStoreError(w, "count by category", err)
		return
	}
	byBot, err := s.store.CountByBot(ctx, defaultBotLimit)
	if err != nil {
		s.respondStoreError(w, "count by bot", err)
		return
	}
	total, err := s.store.TotalCount(ctx)
	if err != nil {
		s.respondStoreError(w, "total count", err)
		return
	}
	if byBot == nil {
		byBot = []storage.BotCount{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"byCategory": byCategory,
		"byBot":      byBot,
		"total":      total,
	})
}

// handleSummary serves GET /api/stats/summary.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	total, err := s.store.TotalCount(ctx)
	if err != nil {
		s.respondStoreError(w, "total count", err)
		return
	}
	last24h, err := s.store.Windowed(ctx, 24*time.Hour)
	if err != nil {
		s.respondStoreError(w, "windowed count", err)
		return
	}
	uniqueSources, err := s.store.UniqueSourceCount(ctx)
	if err != nil {
		s.respondStoreError(w, "unique sources", err)
		return
	}
	avgResponse, err := s.store.AverageResponseTime(ctx)
	if err != nil {
		s.respondStoreError(w, "average response time", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total":                 total,
		"last24Hours":           len(last24h),
		"uniqueSources":         uniqueSources,
		"averageResponseTimeMs": avgResponse,
	})
}

// handleDistribution serves GET /api/stats/distribution?since=&group_by=&url=.
// since accepts Go duration syntax ("24h", "168h"); absent means all time.
func (s *Server) handleDistribution(w http.ResponseWriter, r *http.Request) {
	since, err := parseSinceParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	groupBy := storage.GroupBy(r.URL.Query().Get("group_by"))
	if groupBy == "" {
		groupBy = storage.GroupByCategory
	}
	urlPattern := r.URL.Query().Get("url")

	var buckets []storage.Bucket
	if urlPattern != "" {
		buckets, err = s.store.DistributionForURL(r.Context(), urlPattern, since, groupBy)
	} else {
		buckets, err = s.store.Distribution(r.Context(), since, groupBy)
	}
	if err != nil {
		s.respondStoreError(w, "distribution", err)
		return
	}
	if buckets == nil {
		buckets = []storage.Bucket{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"buckets": buckets})
}

// handleTrend serves GET /api/stats/trend?days=&url=.
func (s *Server) handleTrend(w http.ResponseWriter, r *http.Request) {
	days, err := parseIntParam(r, "days", defaultTrendDays, maxTrendDays)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	urlPattern := r.URL.Query().Get("url")

	var trend []storage.DayCount
	if urlPattern != "" {
		trend, err = s.store.DailyTrendForURL(r.Context(), urlPattern, days)
	} else {
		trend, err = s.store.DailyTrend(r.Context(), days)
	}
	if err != nil {
		s.respondStoreError(w, "daily trend", err)
		return
	}
	if trend == nil {
		trend = []storage.DayCount{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"trend": trend})
}

// handleURLStats serves GET /api/stats/url?url=.
func (s *Server) handleURLStats(w http.ResponseWriter, r *http.Request) {
	urlPattern := strings.TrimSpace(r.URL.Query().Get("url"))
	if urlPattern == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	stats, err := s.store.URLStats(r.Context(), urlPattern)
	if err != nil {
		s.respondStoreError(w, "url stats", err)
		return
	}
	if stats.BotBreakdown == nil {
		stats.BotBreakdown = []storage.BotCount{}
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleReport serves GET /api/report as plain text over the last 100
// visits.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	visits, err := s.store.Recent(r.Context(), 100)
	if err != nil {
		s.respondStoreError(w, "load report visits", err)
		return
	}
	text := s.reporter.Generate(time.Now(), visits)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if _, err := w.Write([]byte(text)); err != nil {
		s.logger.Error("write report failed", zap.Error(err))
	}
}

type simulateRequest struct {
	TargetURL string `json:"targetUrl"`
	Agent     string `json:"agent"`
	Mode      string `json:"mode"`
}

// handleSimulate serves POST /api/simulate.
func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	if s.simulator == nil {
		writeError(w, http.StatusServiceUnavailable, "simulator disabled")
		return
	}
	var req simulateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.TargetURL == "" {
		writeError(w, http.StatusBadRequest, "missing targetUrl")
		return
	}
	agent := simulator.Agent(req.Agent)
	if req.Agent == "" {
		agent = simulator.AgentGooglebot
	}
	mode := simulator.Mode(req.Mode)

	s.logger.Info("starting simulation",
		zap.String("agent", string(agent)),
		zap.String("target", req.TargetURL),
		zap.String("mode", string(mode)))

	result, err := s.simulator.Run(r.Context(), req.TargetURL, agent, mode)
	if err != nil {
		s.logger.Error("simulation failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// respondStoreError maps store errors to HTTP statuses: invalid query
// parameters are the caller's fault, anything else is a server fault.
func (s *Server) respondStoreError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, storage.ErrInvalidQuery) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Error(op+" failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "query failed")
}

// parseIntParam reads a positive integer query parameter with a default and
// cap. Non-numeric or non-positive values are rejected, matching the store's
// refusal to coerce invalid ranges.
func parseIntParam(r *http.Request, name string, def, maxVal int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val <= 0 {
		return 0, errors.New("invalid " + name)
	}
	if val > maxVal {
		val = maxVal
	}
	return val, nil
}

func parseSinceParam(r *http.Request) (time.Duration, error) {
	raw := r.URL.Query().Get("since")
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return 0, errors.New("invalid since")
	}
	return d, nil
}

// sourceAddress extracts the remote host without the port.
func sourceAddress(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
