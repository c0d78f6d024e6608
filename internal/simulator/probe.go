package simulator

import (
	"context"
	"fmt"
	"time"

	"github.com/gocolly/colly/v2"
)

// probe issues a single plain HTTP GET with the impersonated user agent and
// measures status and load time. No JavaScript executes, so the resource
// count covers only the document itself.
func (s *Simulator) probe(ctx context.Context, targetURL string, agent Agent) (Result, error) {
	result := Result{
		SimulatedAgent: string(agent),
		Mode:           string(ModeProbe),
	}

	collector := colly.NewCollector(colly.Async(false))
	collector.UserAgent = agent.UserAgent()
	collector.IgnoreRobotsTxt = true
	collector.SetRequestTimeout(s.cfg.RequestTimeout)

	start := time.Now()
	collector.OnResponse(func(r *colly.Response) {
		result.Status = r.StatusCode
		result.ResourceCount = 1
		result.Success = r.StatusCode >= 200 && r.StatusCode < 400
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			result.Status = r.StatusCode
		}
		result.Error = err.Error()
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := collector.Visit(targetURL); err != nil && result.Error == "" {
			result.Error = err.Error()
		}
		collector.Wait()
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return Result{}, fmt.Errorf("probe canceled: %w", ctx.Err())
	}
	result.LoadTimeMs = time.Since(start).Milliseconds()
	return result, nil
}
