// Package capture renders the HTML time grid to a PNG with headless Chromium.
package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/chromedp"

	appLog "opscal/internal/log"
)

const (
	DefaultWidth   = 1280
	DefaultHeight  = 1400
	DefaultTimeout = 30 * time.Second

	// ReadySelector is exposed by /grid once every event box is placed.
	ReadySelector = `[data-ready="true"]`
)

var (
	ErrNoURL    = errors.New("capture: URL is required")
	ErrNoOutput = errors.New("capture: output path is required")
)

// Options configures a grid snapshot.
type Options struct {
	// URL of the grid page, e.g. "http://127.0.0.1:8080/grid?kind=week".
	URL string

	// OutputPath receives the PNG. Its directory is created if missing.
	OutputPath string

	Width   int
	Height  int
	Timeout time.Duration
}

func (o Options) normalized() (Options, error) {
	if o.URL == "" {
		return o, ErrNoURL
	}
	if o.OutputPath == "" {
		return o, ErrNoOutput
	}
	if o.Width <= 0 {
		o.Width = DefaultWidth
	}
	if o.Height <= 0 {
		o.Height = DefaultHeight
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	return o, nil
}

// GridPNG navigates to opts.URL, waits for the grid to report ready and
// writes a full-page screenshot to opts.OutputPath.
func GridPNG(parent context.Context, opts Options) error {
	opts, err := opts.normalized()
	if err != nil {
		return err
	}

	ctx, cancel := chromedp.NewContext(parent)
	defer cancel()
	ctx, timeoutCancel := context.WithTimeout(ctx, opts.Timeout)
	defer timeoutCancel()

	start := time.Now()
	var png []byte
	err = chromedp.Run(ctx,
		chromedp.EmulateViewport(int64(opts.Width), int64(opts.Height)),
		chromedp.Navigate(opts.URL),
		chromedp.WaitVisible(ReadySelector, chromedp.ByQuery),
		chromedp.FullScreenshot(&png, 100),
	)
	if err != nil {
		return fmt.Errorf("capture: chromedp run failed: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(opts.OutputPath), 0o755); err != nil {
		return fmt.Errorf("capture: create output dir: %w", err)
	}
	// Write to a temp file first so /preview.png never serves a partial image.
	tmp := opts.OutputPath + ".tmp"
	if err := os.WriteFile(tmp, png, 0o644); err != nil {
		return fmt.Errorf("capture: write PNG: %w", err)
	}
	if err := os.Rename(tmp, opts.OutputPath); err != nil {
		return fmt.Errorf("capture: replace PNG: %w", err)
	}

	appLog.Info("grid snapshot written", "path", opts.OutputPath, "bytes", len(png), "took", time.Since(start).String())
	return nil
}
