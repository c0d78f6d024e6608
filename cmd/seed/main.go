// Package main seeds a visit database with representative crawler traffic so
// the dashboard and report endpoints have something to show during
// development.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/waio/crawlwatch/internal/classifier"
	"github.com/waio/crawlwatch/internal/logging"
	postgresStorage "github.com/waio/crawlwatch/internal/storage/postgres"
	"github.com/waio/crawlwatch/internal/visit"
)

var sampleAgents = []string{
	"Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)",
	"Mozilla/5.0 (compatible; GPTBot/1.0; +https://openai.com/gptbot)",
	"Mozilla/5.0 (compatible; bingbot/2.0; +http://www.bing.com/bingbot.htm)",
	"Mozilla/5.0 (compatible; ClaudeBot/1.0; +claudebot@anthropic.com)",
	"Mozilla/5.0 (compatible; PerplexityBot/1.0; +https://perplexity.ai/perplexitybot)",
	"facebookexternalhit/1.1 (+http://www.facebook.com/externalhit_uatext.php)",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36",
	"SomeRandomSpider/1.0",
}

var samplePaths = []string{
	"/test/index",
	"/test/articles",
	"/test/products",
	"/test/about",
	"/test/articles/launch-notes",
}

func main() {
	dsn := flag.String("dsn", os.Getenv("CRAWLWATCH_DB_DSN"), "Postgres DSN to seed")
	count := flag.Int("count", 200, "Number of visits to generate")
	days := flag.Int("days", 7, "Spread visits over this many past days")
	flag.Parse()

	logger, err := logging.New(true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if *dsn == "" {
		logger.Fatal("a -dsn flag or CRAWLWATCH_DB_DSN is required")
	}
	if *count <= 0 || *days <= 0 {
		logger.Fatal("count and days must be positive")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	store, err := postgresStorage.NewVisitStore(ctx, postgresStorage.Config{DSN: *dsn})
	if err != nil {
		logger.Fatal("postgres store init failed", zap.Error(err))
	}
	defer store.Close()

	cl := classifier.Default()
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	now := time.Now().UTC()

	for i := 0; i < *count; i++ {
		ua := sampleAgents[rng.Intn(len(sampleAgents))]
		identity := cl.Identify(ua)
		rt := int64(20 + rng.Intn(480))
		ts := now.Add(-time.Duration(rng.Intn(*days*24*3600)) * time.Second)

		rec := visit.Record{
			Timestamp:      ts,
			URL:            samplePaths[rng.Intn(len(samplePaths))],
			UserAgent:      ua,
			SourceAddress:  fmt.Sprintf("192.0.2.%d", rng.Intn(254)+1),
			BotName:        identity.Name,
			BotCategory:    identity.Category,
			BotCompany:     identity.Company,
			ResponseTimeMs: &rt,
		}
		if _, err := store.Append(ctx, rec); err != nil {
			logger.Fatal("seed append failed", zap.Int("inserted", i), zap.Error(err))
		}
	}

	logger.Info("seed complete", zap.Int("visits", *count), zap.Int("days", *days))
}
