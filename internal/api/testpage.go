package api

import (
	"fmt"
	"html"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/waio/crawlwatch/internal/visit"
)

// handleTestPage serves a small HTML page under /test/* and records the
// visit through the ingestion pipeline. Serving never waits on the
// database; the visit is handed off and the page returns immediately.
func (s *Server) handleTestPage(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	slug := chi.URLParam(r, "*")
	if slug == "" {
		slug = "index"
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, testPageHTML, html.EscapeString(slug), html.EscapeString(slug), html.EscapeString(r.UserAgent()))

	elapsed := time.Since(start).Milliseconds()
	s.pipeline.Ingest(visit.Event{
		URL:            r.URL.Path,
		UserAgent:      r.UserAgent(),
		SourceAddress:  sourceAddress(r),
		ResponseTimeMs: &elapsed,
	})
}

const testPageHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <title>crawlwatch test page: %s</title>
  <meta name="description" content="Instrumented page for observing crawler visits.">
</head>
<body>
  <h1>Test page: %s</h1>
  <p>Every request to this page is recorded with its user agent.</p>
  <p>You arrived as: <code>%s</code></p>
  <ul>
    <li><a href="/test/articles">Articles</a></li>
    <li><a href="/test/products">Products</a></li>
    <li><a href="/test/about">About</a></li>
  </ul>
</body>
</html>
`
