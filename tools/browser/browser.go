package browser

import (
	"context"
	"time"

	"github.com/mohammad-safakhou/bulkcart/tools/browser/chromedp"
	"github.com/mohammad-safakhou/bulkcart/tools/browser/models"
)

const (
	DefaultTimeout   = 30 * time.Second
	DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36"
)

// Browser is the page capability the pipeline drives. Implementations are not
// safe for concurrent use: one logical operation observes the page at a time.
type Browser interface {
	Navigate(ctx context.Context, url string) error
	Location(ctx context.Context) (string, error)
	WaitVisible(ctx context.Context, sel string) error
	Exists(ctx context.Context, sel string) (bool, error)
	Click(ctx context.Context, sel string) error
	// ClickIfPresent clicks sel when it is in the DOM and reports whether it did.
	ClickIfPresent(ctx context.Context, sel string) (bool, error)
	// Type clears the field matched by sel and types text into it.
	Type(ctx context.Context, sel, text string) error
	SelectOption(ctx context.Context, sel, value string) error
	PressEscape(ctx context.Context) error
	// Links returns the resolved href of every element matched by sel in DOM order.
	Links(ctx context.Context, sel string) ([]string, error)
	// Text returns the text content of the first match; ok is false when absent.
	Text(ctx context.Context, sel string) (text string, ok bool, err error)
	// Value returns the value property of the first match; ok is false when absent.
	Value(ctx context.Context, sel string) (value string, ok bool, err error)
	SetViewport(ctx context.Context, vp models.Viewport) error
	Cookies(ctx context.Context) ([]models.Cookie, error)
	SetCookies(ctx context.Context, cookies []models.Cookie) error
	Close() error
}

type Type string

const (
	ChromedpBrowserType Type = "chromedp"
)

// Options configures a new browser.
type Options struct {
	Headless  bool
	NoSandbox bool
	UserAgent string
	ExecPath  string
	Timeout   time.Duration
	Viewport  models.Viewport
}

// Error reports an unusable browser configuration.
type Error struct {
	msg string
}

func (e *Error) Error() string { return "browser: " + e.msg }

// New starts a browser of the given type.
func New(ctx context.Context, t Type, opts Options) (Browser, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Viewport.Width <= 0 || opts.Viewport.Height <= 0 {
		opts.Viewport = models.Viewport{Width: 1024, Height: 768}
	}

	switch t {
	case ChromedpBrowserType, "":
		s, err := chromedp.Launch(ctx, chromedp.Options{
			Headless:  opts.Headless,
			NoSandbox: opts.NoSandbox,
			UserAgent: opts.UserAgent,
			ExecPath:  opts.ExecPath,
			Timeout:   opts.Timeout,
			Viewport:  opts.Viewport,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, &Error{"unsupported browser type " + string(t)}
	}
}

var _ Browser = (*chromedp.Session)(nil)
