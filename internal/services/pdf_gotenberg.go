package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/starwalkn/gotenberg-go-client/v8"
	"github.com/starwalkn/gotenberg-go-client/v8/document"
)

// GotenbergBackend posts the HTML to a Gotenberg Chromium route.
type GotenbergBackend struct {
	client  *gotenberg.Client
	timeout time.Duration
}

func NewGotenbergBackend(gotenbergURL string, timeoutStr string) (*GotenbergBackend, error) {
	timeout, err := time.ParseDuration(timeoutStr)
	if err != nil {
		timeout = 30 * time.Second
		logrus.Warnf("Failed to parse Gotenberg timeout '%s', using default 30s: %v", timeoutStr, err)
	}

	httpClient := &http.Client{
		Timeout: timeout,
	}

	client, err := gotenberg.NewClient(gotenbergURL, httpClient)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gotenberg client: %w", err)
	}

	return &GotenbergBackend{
		client:  client,
		timeout: timeout,
	}, nil
}

func (b *GotenbergBackend) Name() string { return "gotenberg" }

// Convert sends html as index.html with opts mapped onto the Chromium form
// fields. A template @page rule still wins over the paper size.
func (b *GotenbergBackend) Convert(ctx context.Context, html string, opts PageOptions) ([]byte, error) {
	convertCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	index, err := document.FromReader("index.html", strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to create document from reader: %w", err)
	}

	req := gotenberg.NewHTMLRequest(index)
	if err := applyPageOptions(req, opts); err != nil {
		return nil, err
	}

	resp, err := b.client.Send(convertCtx, req)
	if err != nil {
		return nil, fmt.Errorf("gotenberg request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("gotenberg returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	pdf, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read gotenberg response: %w", err)
	}
	return pdf, nil
}

func applyPageOptions(req *gotenberg.HTMLRequest, opts PageOptions) error {
	req.PaperSize(gotenberg.PaperDimensions{Width: opts.PaperWidth, Height: opts.PaperHeight, Unit: gotenberg.IN})
	req.Margins(gotenberg.PageMargins{
		Top:    opts.Margin,
		Bottom: opts.Margin,
		Left:   opts.Margin,
		Right:  opts.Margin,
		Unit:   gotenberg.IN,
	})
	req.PreferCSSPageSize()
	if opts.PrintBackground {
		req.PrintBackground()
	}
	if opts.PageNumbers {
		footer, err := document.FromString("footer.html", "<html><head></head><body>"+pageNumberFooter+"</body></html>")
		if err != nil {
			return fmt.Errorf("failed to create footer document: %w", err)
		}
		req.Footer(footer)
	}
	return nil
}
