package export

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	appLog "civcal/internal/log"
)

const (
	DefaultRenderTimeout = 30 * time.Second

	// A4 in inches.
	paperWidth  = 8.27
	paperHeight = 11.69
)

// PDFOptions defines a headless Chromium print of the agenda page.
type PDFOptions struct {
	// URL to print, e.g. "http://127.0.0.1:8080/calendar".
	URL string

	// OutputPath is where the PDF is written.
	OutputPath string

	Landscape bool

	// Timeout bounds the whole render. Zero means DefaultRenderTimeout.
	Timeout time.Duration
}

// RenderPDF opens opts.URL in headless Chromium, waits for the page to
// mark itself ready with data-ready="true" and prints it to PDF.
func RenderPDF(parentCtx context.Context, opts PDFOptions) error {
	if opts.URL == "" {
		return fmt.Errorf("export: URL is required")
	}
	if opts.OutputPath == "" {
		return fmt.Errorf("export: OutputPath is required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultRenderTimeout
	}

	ctx, cancel := chromedp.NewContext(parentCtx)
	defer cancel()

	ctx, timeoutCancel := context.WithTimeout(ctx, opts.Timeout)
	defer timeoutCancel()

	var pdf []byte
	tasks := chromedp.Tasks{
		chromedp.Navigate(opts.URL),
		chromedp.WaitVisible(`[data-ready="true"]`, chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			buf, _, err := page.PrintToPDF().
				WithPrintBackground(true).
				WithLandscape(opts.Landscape).
				WithPaperWidth(paperWidth).
				WithPaperHeight(paperHeight).
				Do(ctx)
			if err != nil {
				return err
			}
			pdf = buf
			return nil
		}),
	}

	if err := chromedp.Run(ctx, tasks); err != nil {
		return fmt.Errorf("export: chromedp run failed: %w", err)
	}

	if err := writeFileAtomic(opts.OutputPath, pdf, 0o644); err != nil {
		return fmt.Errorf("export: failed to write PDF: %w", err)
	}

	appLog.Info("agenda printed to pdf", "path", opts.OutputPath, "bytes", len(pdf))
	return nil
}
