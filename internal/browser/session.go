package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
)

// Session is one isolated browser context, held for the duration of a
// single crawl. The tab is stateful on purpose: at least one board's
// pagination only works by interacting with the already-loaded page.
type Session struct {
	tabCtx    context.Context
	tabCancel context.CancelFunc
	opTimeout time.Duration
}

// Close releases the browser context. Safe to call more than once.
func (s *Session) Close() {
	s.tabCancel()
}

// Navigate loads the URL and waits for waitVisible to match.
func (s *Session) Navigate(ctx context.Context, url, waitVisible string) error {
	actions := []chromedp.Action{chromedp.Navigate(url)}
	if waitVisible != "" {
		actions = append(actions, chromedp.WaitVisible(waitVisible, chromedp.ByQuery))
	}
	if err := s.run(ctx, actions...); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

// Eval executes the script in page context.
func (s *Session) Eval(ctx context.Context, script string, out any) error {
	if err := s.run(ctx, chromedp.Evaluate(script, out)); err != nil {
		return fmt.Errorf("eval: %w", err)
	}
	return nil
}

// WaitVisible blocks until the selector matches a visible node.
func (s *Session) WaitVisible(ctx context.Context, selector string) error {
	if err := s.run(ctx, chromedp.WaitVisible(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("wait %s: %w", selector, err)
	}
	return nil
}

// HTML snapshots the current DOM.
func (s *Session) HTML(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("outer html: %w", err)
	}
	return html, nil
}

// Pause sleeps inside the browser context, honoring cancellation.
func (s *Session) Pause(ctx context.Context, d time.Duration) error {
	return s.run(ctx, chromedp.Sleep(d))
}

// run executes actions on the session tab, bounded by the op timeout and
// canceled when the caller's context finishes.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	opCtx, cancel := context.WithTimeout(s.tabCtx, s.opTimeout)
	defer cancel()
	stop := forwardCancel(ctx, cancel)
	defer stop()

	if err := chromedp.Run(opCtx, actions...); err != nil {
		// Report the caller's cancellation, not the derived context's.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

// forwardCancel propagates cancellation of parent into cancel until the
// returned stop function is called.
func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
