package daangn

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"market-search/utils"
)

// pageSource returns the raw JSON text when the browser rendered a JSON
// document, otherwise the full markup.
const pageSource = `document.contentType === "application/json" ? document.body.innerText : document.documentElement.outerHTML`

// BrowserTransport fetches through headless Chrome. It is slower than
// CollyTransport but gets past client fingerprinting that blocks plain HTTP.
type BrowserTransport struct {
	allocCtx    context.Context
	cancelAlloc context.CancelFunc
	timeout     time.Duration
	logger      utils.Logger
}

// NewBrowserTransport starts a Chrome allocator. chromeBin may be empty, in
// which case well-known install locations are searched.
func NewBrowserTransport(chromeBin string, timeout time.Duration, logger utils.Logger) *BrowserTransport {
	if logger == nil {
		logger = utils.NopLogger{}
	}
	logger = logger.WithFields(utils.Fields{"component": "browser_transport"})

	if chromeBin == "" {
		chromeBin = findChromeBinary()
	}
	logger.Info("using browser binary", utils.Fields{"path": chromeBin})

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.UserAgent(UserAgent),
	)
	if chromeBin != "" {
		opts = append(opts, chromedp.ExecPath(chromeBin))
	}

	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)
	return &BrowserTransport{
		allocCtx:    allocCtx,
		cancelAlloc: cancel,
		timeout:     timeout,
		logger:      logger,
	}
}

func (t *BrowserTransport) Get(ctx context.Context, target string, header http.Header) ([]byte, error) {
	tabCtx, cancelTab := chromedp.NewContext(t.allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))
	defer cancelTab()

	if t.timeout > 0 {
		var cancelTimeout context.CancelFunc
		tabCtx, cancelTimeout = context.WithTimeout(tabCtx, t.timeout)
		defer cancelTimeout()
	}

	// Tie the tab to the caller's context as well.
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	extra := network.Headers{}
	for _, key := range []string{"Accept-Language", "Accept"} {
		if v := header.Get(key); v != "" {
			extra[key] = v
		}
	}

	var source string
	err := chromedp.Run(tabCtx,
		network.Enable(),
		network.SetExtraHTTPHeaders(extra),
		chromedp.Navigate(target),
		chromedp.Evaluate(pageSource, &source),
	)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("browser fetch %s: %w", target, err)
	}
	if source == "" {
		return nil, errors.New("browser fetch returned an empty document")
	}
	return []byte(source), nil
}

// Close shuts the browser down.
func (t *BrowserTransport) Close() {
	t.cancelAlloc()
}

func findChromeBinary() string {
	if bin := os.Getenv("CHROME_BIN"); bin != "" {
		return bin
	}

	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/google-chrome",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
		"/opt/google/chrome/google-chrome",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}
