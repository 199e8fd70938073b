package chromedp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/mohammad-safakhou/bulkcart/tools/browser/models"
)

type Options struct {
	Headless  bool
	NoSandbox bool
	UserAgent string
	ExecPath  string
	Timeout   time.Duration // upper bound for a single page operation
	Viewport  models.Viewport
}

// Session is one Chrome tab driven over the DevTools protocol.
type Session struct {
	ctx         context.Context
	cancelAlloc context.CancelFunc
	cancelTab   context.CancelFunc
	timeout     time.Duration
	closeOnce   sync.Once
	closeErr    error
}

// Launch starts Chrome and opens the tab every later operation runs in.
func Launch(ctx context.Context, opts Options) (*Session, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("enable-automation", false),
		chromedp.UserAgent(opts.UserAgent),
		chromedp.WindowSize(int(opts.Viewport.Width), int(opts.Viewport.Height)),
	)
	if opts.NoSandbox {
		allocOpts = append(allocOpts, chromedp.NoSandbox)
	}
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}

	actx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	tctx, cancelTab := chromedp.NewContext(actx)

	// The first Run allocates the browser and the tab.
	if err := chromedp.Run(tctx,
		network.Enable(),
		chromedp.EmulateViewport(opts.Viewport.Width, opts.Viewport.Height),
	); err != nil {
		cancelTab()
		cancelAlloc()
		return nil, fmt.Errorf("start chrome: %w", err)
	}

	return &Session{ctx: tctx, cancelAlloc: cancelAlloc, cancelTab: cancelTab, timeout: opts.Timeout}, nil
}

// run executes actions on the tab, bounded by the session timeout and
// cancelled together with ctx.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	opCtx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	if err := chromedp.Run(opCtx, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	if strings.TrimSpace(url) == "" {
		return errors.New("navigate: empty url")
	}
	if err := s.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

func (s *Session) Location(ctx context.Context) (string, error) {
	var loc string
	if err := s.run(ctx, chromedp.Location(&loc)); err != nil {
		return "", fmt.Errorf("location: %w", err)
	}
	return loc, nil
}

func (s *Session) WaitVisible(ctx context.Context, sel string) error {
	if err := s.run(ctx, chromedp.WaitVisible(sel, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("wait for %q: %w", sel, err)
	}
	return nil
}

func (s *Session) Exists(ctx context.Context, sel string) (bool, error) {
	var ok bool
	js := fmt.Sprintf(`document.querySelector(%s) !== null`, jsString(sel))
	if err := s.run(ctx, chromedp.Evaluate(js, &ok)); err != nil {
		return false, fmt.Errorf("query %q: %w", sel, err)
	}
	return ok, nil
}

func (s *Session) Click(ctx context.Context, sel string) error {
	if err := s.run(ctx, chromedp.Click(sel, chromedp.ByQuery, chromedp.NodeVisible)); err != nil {
		return fmt.Errorf("click %q: %w", sel, err)
	}
	return nil
}

func (s *Session) ClickIfPresent(ctx context.Context, sel string) (bool, error) {
	var clicked bool
	js := fmt.Sprintf(`(function(){const el=document.querySelector(%s);if(!el){return false;}el.click();return true;})()`, jsString(sel))
	if err := s.run(ctx, chromedp.Evaluate(js, &clicked)); err != nil {
		return false, fmt.Errorf("click %q: %w", sel, err)
	}
	return clicked, nil
}

func (s *Session) Type(ctx context.Context, sel, text string) error {
	if err := s.run(ctx,
		chromedp.WaitVisible(sel, chromedp.ByQuery),
		chromedp.SetValue(sel, "", chromedp.ByQuery),
		chromedp.SendKeys(sel, text, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("type into %q: %w", sel, err)
	}
	return nil
}

// selectJS picks the option whose value equals the requested one and fires
// the events a user selection would.
const selectJS = `(function(sel,val){
const el=document.querySelector(sel);
if(!el){return "element not found";}
const opts=Array.from(el.options||[]);
if(!opts.some(o=>o.value===val)){return "option "+JSON.stringify(val)+" not available";}
el.value=val;
el.dispatchEvent(new Event("input",{bubbles:true}));
el.dispatchEvent(new Event("change",{bubbles:true}));
return "";
})(%s,%s)`

func (s *Session) SelectOption(ctx context.Context, sel, value string) error {
	var problem string
	js := fmt.Sprintf(selectJS, jsString(sel), jsString(value))
	if err := s.run(ctx,
		chromedp.WaitReady(sel, chromedp.ByQuery),
		chromedp.Evaluate(js, &problem),
	); err != nil {
		return fmt.Errorf("select %q in %q: %w", value, sel, err)
	}
	if problem != "" {
		return fmt.Errorf("select %q in %q: %s", value, sel, problem)
	}
	return nil
}

func (s *Session) PressEscape(ctx context.Context) error {
	if err := s.run(ctx, chromedp.KeyEvent(kb.Escape)); err != nil {
		return fmt.Errorf("press escape: %w", err)
	}
	return nil
}

func (s *Session) Links(ctx context.Context, sel string) ([]string, error) {
	var links []string
	js := fmt.Sprintf(`Array.from(document.querySelectorAll(%s)).map(e=>e.href||e.getAttribute("href")||"").filter(h=>h!=="")`, jsString(sel))
	if err := s.run(ctx, chromedp.Evaluate(js, &links)); err != nil {
		return nil, fmt.Errorf("collect links %q: %w", sel, err)
	}
	if links == nil {
		links = []string{}
	}
	return links, nil
}

type probe struct {
	OK    bool   `json:"ok"`
	Value string `json:"value"`
}

func (s *Session) read(ctx context.Context, sel, expr string) (string, bool, error) {
	var p probe
	js := fmt.Sprintf(`(function(){const el=document.querySelector(%s);if(!el){return {ok:false,value:""};}return {ok:true,value:String(%s)};})()`, jsString(sel), expr)
	if err := s.run(ctx, chromedp.Evaluate(js, &p)); err != nil {
		return "", false, fmt.Errorf("read %q: %w", sel, err)
	}
	return p.Value, p.OK, nil
}

func (s *Session) Text(ctx context.Context, sel string) (string, bool, error) {
	return s.read(ctx, sel, `el.textContent||""`)
}

func (s *Session) Value(ctx context.Context, sel string) (string, bool, error) {
	return s.read(ctx, sel, `el.value===undefined?"":el.value`)
}

func (s *Session) SetViewport(ctx context.Context, vp models.Viewport) error {
	if err := s.run(ctx, chromedp.EmulateViewport(vp.Width, vp.Height)); err != nil {
		return fmt.Errorf("set viewport %dx%d: %w", vp.Width, vp.Height, err)
	}
	return nil
}

func (s *Session) Cookies(ctx context.Context) ([]models.Cookie, error) {
	var out []models.Cookie
	err := s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		cookies, err := network.GetCookies().Do(ctx)
		if err != nil {
			return err
		}
		out = FromNetworkCookies(cookies)
		return nil
	}))
	if err != nil {
		return nil, fmt.Errorf("read cookies: %w", err)
	}
	return out, nil
}

func (s *Session) SetCookies(ctx context.Context, cookies []models.Cookie) error {
	if len(cookies) == 0 {
		return nil
	}
	params := ToCookieParams(cookies)
	if err := s.run(ctx, network.SetCookies(params)); err != nil {
		return fmt.Errorf("set cookies: %w", err)
	}
	return nil
}

// Close shuts the tab and the browser process. It may be called more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		err := chromedp.Cancel(s.ctx)
		s.cancelTab()
		s.cancelAlloc()
		if !errors.Is(err, context.Canceled) {
			s.closeErr = err
		}
	})
	return s.closeErr
}

func FromNetworkCookies(cookies []*network.Cookie) []models.Cookie {
	out := make([]models.Cookie, 0, len(cookies))
	for _, c := range cookies {
		if c == nil {
			continue
		}
		expires := c.Expires
		if c.Session {
			expires = -1
		}
		out = append(out, models.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: string(c.SameSite),
		})
	}
	return out
}

func ToCookieParams(cookies []models.Cookie) []*network.CookieParam {
	params := make([]*network.CookieParam, 0, len(cookies))
	for _, c := range cookies {
		p := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		}
		if c.SameSite != "" {
			p.SameSite = network.CookieSameSite(c.SameSite)
		}
		if c.Expires > 0 {
			sec, frac := math.Modf(c.Expires)
			t := cdp.TimeSinceEpoch(time.Unix(int64(sec), int64(frac*1e9)))
			p.Expires = &t
		}
		params = append(params, p)
	}
	return params
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
