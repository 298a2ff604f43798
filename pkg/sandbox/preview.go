package sandbox

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// PreviewCheckResult is the outcome of loading a deployed preview URL in a
// headless browser before the agent broadcasts deployment_completed.
type PreviewCheckResult struct {
	Reachable bool
	Title     string
	Errors    []RuntimeError
}

// CheckPreview launches a headless Chromium instance, navigates to url, and
// collects any console/page errors raised during load, following the
// launcher.New()/rod.New().ControlURL(...)/page.Navigate(...) sequence used
// in codenerd's browser session manager.
func CheckPreview(ctx context.Context, url string, timeout time.Duration) (PreviewCheckResult, error) {
	controlURL, err := launcher.New().Headless(true).Launch()
	if err != nil {
		return PreviewCheckResult{}, fmt.Errorf("sandbox: launch headless browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return PreviewCheckResult{}, fmt.Errorf("sandbox: connect to browser: %w", err)
	}
	defer browser.Close()

	page, err := browser.Page(proto.TargetCreateTarget{URL: ""})
	if err != nil {
		return PreviewCheckResult{}, fmt.Errorf("sandbox: open page: %w", err)
	}

	var result PreviewCheckResult
	stopConsole := page.EachEvent(func(e *proto.RuntimeConsoleAPICalled) {
		if e.Type == proto.RuntimeConsoleAPICalledTypeError {
			result.Errors = append(result.Errors, RuntimeError{Message: "browser console error during preview load"})
		}
	})
	defer stopConsole()

	if err := page.Timeout(timeout).Navigate(url); err != nil {
		return PreviewCheckResult{Reachable: false}, nil
	}
	if err := page.Timeout(timeout).WaitLoad(); err != nil {
		return PreviewCheckResult{Reachable: false}, nil
	}

	result.Reachable = true
	if info, err := page.Info(); err == nil {
		result.Title = info.Title
	}
	return result, nil
}
