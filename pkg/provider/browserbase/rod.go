package browserbase

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// Executor runs a step plan against the browser behind connectURL.
type Executor interface {
	Execute(ctx context.Context, connectURL string, steps []Step) (*Result, error)
}

// RodExecutor drives a remote browser over CDP with go-rod.
type RodExecutor struct {
	// ElementTimeout bounds how long a selector may take to appear.
	ElementTimeout time.Duration
}

func NewRodExecutor() *RodExecutor {
	return &RodExecutor{ElementTimeout: 15 * time.Second}
}

func (e *RodExecutor) Execute(ctx context.Context, connectURL string, steps []Step) (*Result, error) {
	browser := rod.New().ControlURL(connectURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("browserbase: connect: %w", err)
	}
	defer func() { _ = browser.Close() }()

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("browserbase: open page: %w", err)
	}
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{Width: 1280, Height: 720}); err != nil {
		return nil, fmt.Errorf("browserbase: set viewport: %w", err)
	}

	res := &Result{Steps: make([]StepResult, 0, len(steps))}
	for i, step := range steps {
		start := time.Now()
		sr := StepResult{Action: step.Action, Status: "completed"}

		if err := e.run(ctx, page, step, &sr, res); err != nil {
			sr.Status = "failed"
			sr.Duration = time.Since(start)
			res.Steps = append(res.Steps, sr)
			return res, fmt.Errorf("browserbase: step %d (%s): %w", i+1, step.Action, err)
		}

		sr.Duration = time.Since(start)
		res.Steps = append(res.Steps, sr)
	}
	return res, nil
}

func (e *RodExecutor) run(ctx context.Context, page *rod.Page, step Step, sr *StepResult, res *Result) error {
	switch step.Action {
	case Navigate:
		if err := page.Context(ctx).Navigate(step.URL); err != nil {
			return err
		}
		return page.WaitLoad()
	case Click:
		el, err := page.Context(ctx).Timeout(e.ElementTimeout).Element(step.Selector)
		if err != nil {
			return err
		}
		return el.Click(proto.InputMouseButtonLeft, 1)
	case Type:
		el, err := page.Context(ctx).Timeout(e.ElementTimeout).Element(step.Selector)
		if err != nil {
			return err
		}
		return el.Input(step.Value)
	case Wait:
		return sleep(ctx, step.Timeout)
	case Screenshot:
		png, err := page.Context(ctx).Screenshot(false, nil)
		if err != nil {
			return err
		}
		sr.Screenshot = "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
		return nil
	case Extract:
		info, err := page.Context(ctx).Info()
		if err != nil {
			return err
		}
		res.FinalURL = info.URL

		body, err := page.Context(ctx).Timeout(e.ElementTimeout).Element("body")
		if err != nil {
			return err
		}
		text, err := body.Text()
		if err != nil {
			return err
		}
		res.Text = text
		return nil
	default:
		return fmt.Errorf("unknown action %q", step.Action)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		d = time.Second
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
