package simulator

import (
	"context"
	"encoding/base64"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// headlessRunner executes simulated visits in headless Chrome via a shared
// exec allocator. Each run gets its own browser context and deadline.
type headlessRunner struct {
	navTimeout  time.Duration
	allocator   context.Context
	allocCancel context.CancelFunc
}

func newHeadlessRunner(navTimeout time.Duration) *headlessRunner {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("no-sandbox", true),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	return &headlessRunner{
		navTimeout:  navTimeout,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}
}

func (h *headlessRunner) close() {
	h.allocCancel()
}

// run navigates with the impersonated user agent, waits for the document,
// and captures a screenshot. Page failures are reported inside the Result.
func (h *headlessRunner) run(ctx context.Context, targetURL string, agent Agent) (Result, error) {
	result := Result{
		SimulatedAgent: string(agent),
		Mode:           string(ModeHeadless),
	}

	taskCtx, taskCancel := chromedp.NewContext(h.allocator)
	defer taskCancel()
	taskCtx, cancel := context.WithTimeout(taskCtx, h.navTimeout)
	defer cancel()

	// Count every network response; the document's own response supplies the
	// status code.
	var resourceCount atomic.Int64
	var status atomic.Int64
	chromedp.ListenTarget(taskCtx, func(ev any) {
		if resp, ok := ev.(*network.EventResponseReceived); ok {
			resourceCount.Add(1)
			if resp.Type == network.ResourceTypeDocument && status.Load() == 0 {
				status.Store(resp.Response.Status)
			}
		}
	})

	var screenshot []byte
	start := time.Now()
	err := chromedp.Run(taskCtx,
		network.Enable(),
		emulation.SetUserAgentOverride(agent.UserAgent()),
		chromedp.Navigate(targetURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.CaptureScreenshot(&screenshot),
	)
	result.LoadTimeMs = time.Since(start).Milliseconds()
	result.ResourceCount = int(resourceCount.Load())
	result.Status = int(status.Load())
	if err != nil {
		result.Error = err.Error()
		return result, nil
	}
	if ctx.Err() != nil {
		result.Error = ctx.Err().Error()
		return result, nil
	}
	result.Success = true
	result.Screenshot = base64.StdEncoding.EncodeToString(screenshot)
	return result, nil
}
