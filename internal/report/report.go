// Package report renders plain-text summaries of recent crawler traffic.
// Reports are derived views over visit records; nothing here is persisted.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/waio/crawlwatch/internal/visit"
)

// Generator builds text reports. CompareA and CompareB name the two bots
// whose response times are statistically compared.
type Generator struct {
	compareA string
	compareB string
}

// New constructs a Generator; empty bot names fall back to the Googlebot
// versus GPTBot comparison.
func New(compareA, compareB string) *Generator {
	if compareA == "" {
		compareA = "Googlebot"
	}
	if compareB == "" {
		compareB = "GPTBot"
	}
	return &Generator{compareA: compareA, compareB: compareB}
}

// Generate renders a report over the given visits, dated with now.
func (g *Generator) Generate(now time.Time, visits []visit.Record) string {
	total := len(visits)
	crawlerCounts := make(map[string]int)
	var responseTimes []float64
	timesByBot := make(map[string][]float64)

	for _, v := range visits {
		crawlerCounts[v.BotName]++
		if v.ResponseTimeMs != nil {
			rt := float64(*v.ResponseTimeMs)
			responseTimes = append(responseTimes, rt)
			timesByBot[v.BotName] = append(timesByBot[v.BotName], rt)
		}
	}

	timesA := timesByBot[g.compareA]
	timesB := timesByBot[g.compareB]
	ttest := welchTTest(timesA, timesB)

	var b strings.Builder
	b.WriteString("========================================\n")
	b.WriteString("CRAWLWATCH DAILY CRAWLER REPORT\n")
	fmt.Fprintf(&b, "Date: %s\n", now.UTC().Format("2006-01-02"))
	b.WriteString("========================================\n\n")

	b.WriteString("SUMMARY\n-------\n")
	fmt.Fprintf(&b, "Total Visits: %d\n", total)
	fmt.Fprintf(&b, "Avg Response Time: %.2fms\n\n", mean(responseTimes))

	b.WriteString("CRAWLER BREAKDOWN\n-----------------\n")
	for _, name := range sortedCrawlers(crawlerCounts) {
		count := crawlerCounts[name]
		pct := 0.0
		if total > 0 {
			pct = float64(count) * 100 / float64(total)
		}
		fmt.Fprintf(&b, "%s: %d (%.1f%%)\n", name, count, pct)
	}

	b.WriteString("\nPERFORMANCE INSIGHTS\n--------------------\n")
	fmt.Fprintf(&b, "%s vs %s:\n", g.compareA, g.compareB)
	fmt.Fprintf(&b, "  - %s Mean: %.2fms\n", g.compareA, mean(timesA))
	fmt.Fprintf(&b, "  - %s Mean: %.2fms\n", g.compareB, mean(timesB))
	verdict := "NO"
	if ttest.Significant {
		verdict = "YES"
	}
	fmt.Fprintf(&b, "  - Statistically Significant Diff: %s (p=%.4f)\n", verdict, ttest.PValue)

	b.WriteString("\nRECOMMENDATIONS\n---------------\n")
	if ttest.Significant {
		b.WriteString("- Investigate performance disparity between bot types.\n")
	}
	switch {
	case total == 0:
		b.WriteString("- No traffic detected. Verify server reachability.\n")
	case total < 10:
		b.WriteString("- Low traffic volume. Consider submitting sitemap.\n")
	default:
		b.WriteString("- Traffic levels normal.\n")
	}

	return b.String()
}

// sortedCrawlers orders names by descending count, then alphabetically, so
// the breakdown is stable between runs.
func sortedCrawlers(counts map[string]int) []string {
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if counts[names[i]] != counts[names[j]] {
			return counts[names[i]] > counts[names[j]]
		}
		return names[i] < names[j]
	})
	return names
}
