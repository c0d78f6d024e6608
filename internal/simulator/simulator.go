// Package simulator visits a target URL while impersonating a well-known
// crawler and reports how the page responded. It backs the on-demand "test
// how a bot sees this page" capability; results are returned to the caller
// and never enter the visit log directly.
package simulator

import (
	"context"
	"fmt"
	"time"

	"github.com/waio/crawlwatch/internal/metrics"
)

// Agent selects which crawler identity to impersonate.
type Agent string

// Supported impersonation agents.
const (
	AgentGooglebot Agent = "Googlebot"
	AgentGPTBot    Agent = "GPTBot"
	AgentBingbot   Agent = "Bingbot"
	AgentMobile    Agent = "Mobile"
)

// userAgents maps each agent to the user-agent string it presents.
var userAgents = map[Agent]string{
	AgentGooglebot: "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)",
	AgentGPTBot:    "Mozilla/5.0 (compatible; GPTBot/1.0; +https://openai.com/gptbot)",
	AgentBingbot:   "Mozilla/5.0 (compatible; bingbot/2.0; +http://www.bing.com/bingbot.htm)",
	AgentMobile:    "Mozilla/5.0 (iPhone; CPU iPhone OS 15_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/15.0 Mobile/15E148 Safari/604.1",
}

// UserAgent returns the user-agent string presented by the agent, falling
// back to Googlebot for unrecognized values.
func (a Agent) UserAgent() string {
	if ua, ok := userAgents[a]; ok {
		return ua
	}
	return userAgents[AgentGooglebot]
}

// Valid reports whether a names a supported agent.
func (a Agent) Valid() bool {
	_, ok := userAgents[a]
	return ok
}

// Mode selects how the simulated visit is executed.
type Mode string

// Supported simulation modes. Probe issues a plain HTTP GET; Headless
// renders the page in a browser and captures a screenshot.
const (
	ModeProbe    Mode = "probe"
	ModeHeadless Mode = "headless"
)

// Result describes one simulated visit.
type Result struct {
	LoadTimeMs     int64  `json:"loadTimeMs"`
	Status         int    `json:"status"`
	Success        bool   `json:"success"`
	Error          string `json:"error,omitempty"`
	ResourceCount  int    `json:"resourceCount"`
	Screenshot     string `json:"screenshot,omitempty"`
	SimulatedAgent string `json:"simulatedAgent"`
	Mode           string `json:"mode"`
}

// Config controls the simulator.
type Config struct {
	MaxParallel       int
	NavigationTimeout time.Duration
	RequestTimeout    time.Duration
}

// Simulator executes simulated crawler visits. It owns a shared browser
// allocator for headless runs and bounds parallelism across both modes.
type Simulator struct {
	cfg      Config
	limiter  chan struct{}
	headless *headlessRunner
}

// New constructs a Simulator.
func New(cfg Config) *Simulator {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 15 * time.Second
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}
	return &Simulator{
		cfg:      cfg,
		limiter:  limiter,
		headless: newHeadlessRunner(cfg.NavigationTimeout),
	}
}

// Close releases the browser allocator.
func (s *Simulator) Close() {
	if s != nil && s.headless != nil {
		s.headless.close()
	}
}

// Run executes one simulated visit. Failures of the target site are reported
// inside the Result; the returned error covers simulator faults only.
func (s *Simulator) Run(ctx context.Context, targetURL string, agent Agent, mode Mode) (Result, error) {
	if targetURL == "" {
		return Result{}, fmt.Errorf("target url is required")
	}
	if !agent.Valid() {
		agent = AgentGooglebot
	}
	if err := s.acquire(ctx); err != nil {
		return Result{}, err
	}
	defer s.release()

	var result Result
	var err error
	switch mode {
	case ModeHeadless:
		result, err = s.headless.run(ctx, targetURL, agent)
	case ModeProbe, "":
		result, err = s.probe(ctx, targetURL, agent)
	default:
		return Result{}, fmt.Errorf("unsupported simulation mode %q", mode)
	}
	if err != nil {
		return Result{}, err
	}
	metrics.ObserveSimulation(result.SimulatedAgent, result.Mode, result.Success)
	return result, nil
}

func (s *Simulator) acquire(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}
	select {
	case s.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("acquire simulation slot: %w", ctx.Err())
	}
}

func (s *Simulator) release() {
	if s.limiter != nil {
		<-s.limiter
	}
}
