package services

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
)

const (
	defaultContentTimeout = 30 * time.Second
	networkIdleWait       = 5 * time.Second
)

const pageNumberFooter = `<div style="width:100%;font-size:9px;text-align:center;color:#555;">` +
	`<span class="pageNumber"></span> / <span class="totalPages"></span></div>`

// ChromiumBackend prints with a local headless Chromium. Every call starts
// and tears down its own browser.
type ChromiumBackend struct {
	execPath       string
	contentTimeout time.Duration
}

func NewChromiumBackend(execPath string, contentTimeout time.Duration) *ChromiumBackend {
	if contentTimeout <= 0 {
		contentTimeout = defaultContentTimeout
	}
	return &ChromiumBackend{execPath: execPath, contentTimeout: contentTimeout}
}

func (b *ChromiumBackend) Name() string { return "chromium" }

func (b *ChromiumBackend) Convert(ctx context.Context, html string, opts PageOptions) ([]byte, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("font-render-hinting", "none"),
	)
	if b.execPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(b.execPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	idle := make(chan struct{}, 1)
	chromedp.ListenTarget(browserCtx, func(ev any) {
		if e, ok := ev.(*page.EventLifecycleEvent); ok && e.Name == "networkIdle" {
			select {
			case idle <- struct{}{}:
			default:
			}
		}
	})

	var pdf []byte
	err := chromedp.Run(browserCtx,
		chromedp.Navigate("about:blank"),
		page.SetLifecycleEventsEnabled(true),
		chromedp.ActionFunc(func(ctx context.Context) error {
			return b.setContent(ctx, html, idle)
		}),
		chromedp.Evaluate(`document.fonts.ready.then(() => true)`, nil,
			func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
				return p.WithAwaitPromise(true)
			}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			params := page.PrintToPDF().
				WithPaperWidth(opts.PaperWidth).
				WithPaperHeight(opts.PaperHeight).
				WithMarginTop(opts.Margin).
				WithMarginBottom(opts.Margin).
				WithMarginLeft(opts.Margin).
				WithMarginRight(opts.Margin).
				WithPrintBackground(opts.PrintBackground)
			if opts.PageNumbers {
				params = params.
					WithDisplayHeaderFooter(true).
					WithHeaderTemplate("<span></span>").
					WithFooterTemplate(pageNumberFooter)
			}
			buf, _, err := params.Do(ctx)
			if err != nil {
				return fmt.Errorf("print to pdf: %w", err)
			}
			pdf = buf
			return nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("chromium render failed: %w", err)
	}
	return pdf, nil
}

// setContent replaces the blank page with html and waits for the network to
// settle. A missing idle event is not an error.
func (b *ChromiumBackend) setContent(ctx context.Context, html string, idle <-chan struct{}) error {
	ctx, cancel := context.WithTimeout(ctx, b.contentTimeout)
	defer cancel()

	tree, err := page.GetFrameTree().Do(ctx)
	if err != nil {
		return fmt.Errorf("get frame tree: %w", err)
	}

	select {
	case <-idle:
	default:
	}

	if err := page.SetDocumentContent(tree.Frame.ID, html).Do(ctx); err != nil {
		return fmt.Errorf("set document content: %w", err)
	}

	wait := time.NewTimer(networkIdleWait)
	defer wait.Stop()
	select {
	case <-idle:
	case <-wait.C:
	case <-ctx.Done():
		return fmt.Errorf("set document content: %w", ctx.Err())
	}
	return nil
}
