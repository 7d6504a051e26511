package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
)

type BrowserOptions struct {
	// ExecPath overrides the Chrome binary lookup.
	ExecPath string
	// NoSandbox disables the Chrome sandbox, required inside most containers.
	NoSandbox         bool
	NavigationTimeout time.Duration
}

// Browser is a headless Chrome instance. Every Open creates a new tab.
type Browser struct {
	opts        BrowserOptions
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
}

func NewBrowser(opts BrowserOptions) (*Browser, error) {
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = 30 * time.Second
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.IgnoreCertErrors,
	)
	if opts.NoSandbox {
		allocOpts = append(allocOpts, chromedp.NoSandbox)
	}
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	ctx, cancel := chromedp.NewContext(allocCtx)

	// The first Run starts the browser; it must not carry a timeout or the
	// whole browser dies with it.
	if err := chromedp.Run(ctx); err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	return &Browser{opts: opts, ctx: ctx, cancel: cancel, allocCancel: allocCancel}, nil
}

func (b *Browser) Open(ctx context.Context, url string) (Page, error) {
	tabCtx, tabCancel := chromedp.NewContext(b.ctx)
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		return nil, &NavigationError{URL: url, Err: err}
	}

	navCtx, cancel := context.WithTimeout(tabCtx, b.opts.NavigationTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(navCtx, chromedp.Navigate(url)); err != nil {
		tabCancel()
		return nil, &NavigationError{URL: url, Err: err}
	}
	return &tab{ctx: tabCtx, cancel: tabCancel}, nil
}

func (b *Browser) Close() {
	b.cancel()
	b.allocCancel()
}

type tab struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func (t *tab) WaitForElement(ctx context.Context, selector string, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(t.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(waitCtx, chromedp.WaitReady(selector, chromedp.ByQuery))
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s after %s", ErrElementTimeout, selector, timeout)
	}
	return err
}

const extractScript = `(() => {
	const sel = %s;
	const root = document.querySelector(sel.container);
	const text = (s) => {
		const el = root && root.querySelector(s);
		return el ? el.textContent : null;
	};
	return { last: text(sel.last), change: text(sel.change), percent: text(sel.percent) };
})()`

func (t *tab) ExtractFields(ctx context.Context, sel Selectors) (RawFields, error) {
	selJSON, err := json.Marshal(map[string]string{
		"container": sel.Container,
		"last":      sel.Last,
		"change":    sel.Change,
		"percent":   sel.Percent,
	})
	if err != nil {
		return RawFields{}, err
	}

	runCtx, cancel := context.WithCancel(t.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var raw RawFields
	if err := chromedp.Run(runCtx, chromedp.Evaluate(fmt.Sprintf(extractScript, selJSON), &raw)); err != nil {
		return RawFields{}, fmt.Errorf("evaluate: %w", err)
	}
	return raw, nil
}

func (t *tab) Close() error {
	t.cancel()
	return nil
}
