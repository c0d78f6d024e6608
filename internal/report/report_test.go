package report

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waio/crawlwatch/internal/visit"
)

func msPtr(v int64) *int64 { return &v }

func botVisit(bot string, rt *int64) visit.Record {
	return visit.Record{
		URL:            "/test/index",
		BotName:        bot,
		BotCategory:    visit.CategorySearchEngine,
		ResponseTimeMs: rt,
	}
}

func TestGenerateEmpty(t *testing.T) {
	t.Parallel()

	g := New("", "")
	out := g.Generate(time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC), nil)

	assert.Contains(t, out, "CRAWLWATCH DAILY CRAWLER REPORT")
	assert.Contains(t, out, "Date: 2026-08-20")
	assert.Contains(t, out, "Total Visits: 0")
	assert.Contains(t, out, "No traffic detected")
}

func TestGenerateBreakdownAndRecommendations(t *testing.T) {
	t.Parallel()

	g := New("Googlebot", "GPTBot")
	var visits []visit.Record
	for i := 0; i < 3; i++ {
		visits = append(visits, botVisit("Googlebot", msPtr(100)))
	}
	visits = append(visits, botVisit("GPTBot", msPtr(200)))

	out := g.Generate(time.Now(), visits)

	assert.Contains(t, out, "Total Visits: 4")
	assert.Contains(t, out, "Googlebot: 3 (75.0%)")
	assert.Contains(t, out, "GPTBot: 1 (25.0%)")
	assert.Contains(t, out, "Low traffic volume")

	// Most frequent crawler listed first.
	gIdx := strings.Index(out, "Googlebot: 3")
	pIdx := strings.Index(out, "GPTBot: 1")
	require.GreaterOrEqual(t, gIdx, 0)
	require.GreaterOrEqual(t, pIdx, 0)
	assert.Less(t, gIdx, pIdx)
}

func TestGenerateSignificantDifference(t *testing.T) {
	t.Parallel()

	g := New("Googlebot", "GPTBot")
	var visits []visit.Record
	for i := 0; i < 10; i++ {
		visits = append(visits, botVisit("Googlebot", msPtr(int64(100+i))))
		visits = append(visits, botVisit("GPTBot", msPtr(int64(500+i))))
	}

	out := g.Generate(time.Now(), visits)
	assert.Contains(t, out, "Statistically Significant Diff: YES")
	assert.Contains(t, out, "Investigate performance disparity")
	assert.Contains(t, out, "Traffic levels normal")
}

func TestGenerateNoSignificanceWithSparseData(t *testing.T) {
	t.Parallel()

	g := New("Googlebot", "GPTBot")
	visits := []visit.Record{
		botVisit("Googlebot", msPtr(100)),
		botVisit("GPTBot", msPtr(500)),
	}

	out := g.Generate(time.Now(), visits)
	assert.Contains(t, out, "Statistically Significant Diff: NO")
}
