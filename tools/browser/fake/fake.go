// Package fake provides a scripted in-memory browser for tests.
package fake

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/mohammad-safakhou/bulkcart/tools/browser/models"
)

// ErrNoElement is returned by waits and clicks on selectors the current page lacks.
var ErrNoElement = errors.New("element not found")

// Page is the scripted DOM of one URL.
type Page struct {
	Present map[string]bool
	Text    map[string]string
	Values  map[string]string
	Links   map[string][]string
	Options map[string][]string
	// ClickTo maps a selector to the URL the browser lands on after clicking it.
	ClickTo map[string]string
	// ClickFunc computes the landing URL from browser state, e.g. typed search text.
	ClickFunc map[string]func(b *Browser) string
	Errors    map[string]error
	// Cookies are added to the jar when the page is visited.
	Cookies []models.Cookie
}

func (p *Page) has(sel string) bool {
	if p == nil {
		return false
	}
	if p.Present[sel] {
		return true
	}
	if _, ok := p.Text[sel]; ok {
		return true
	}
	if _, ok := p.Values[sel]; ok {
		return true
	}
	if _, ok := p.Options[sel]; ok {
		return true
	}
	return len(p.Links[sel]) > 0 || p.ClickTo[sel] != "" || p.ClickFunc[sel] != nil
}

func (p *Page) err(sel string) error {
	if p == nil {
		return nil
	}
	return p.Errors[sel]
}

// Browser implements browser.Browser against scripted pages.
type Browser struct {
	Pages       map[string]*Page
	NavigateErr map[string]error
	Current     string
	Calls       []string
	Typed       map[string]string
	Selected    map[string]string
	Viewports   []models.Viewport
	Jar         []models.Cookie
	Closed      bool
}

func New(pages map[string]*Page) *Browser {
	if pages == nil {
		pages = map[string]*Page{}
	}
	return &Browser{
		Pages:       pages,
		NavigateErr: map[string]error{},
		Typed:       map[string]string{},
		Selected:    map[string]string{},
	}
}

func (b *Browser) page() *Page { return b.Pages[b.Current] }

func (b *Browser) record(format string, args ...any) {
	b.Calls = append(b.Calls, fmt.Sprintf(format, args...))
}

// Count returns how many recorded calls start with prefix.
func (b *Browser) Count(prefix string) int {
	n := 0
	for _, c := range b.Calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

// Visited lists navigated URLs in order.
func (b *Browser) Visited() []string {
	var out []string
	for _, c := range b.Calls {
		if u, ok := strings.CutPrefix(c, "navigate:"); ok {
			out = append(out, u)
		}
	}
	return out
}

func (b *Browser) visit(url string) {
	b.Current = url
	if p := b.page(); p != nil {
		b.store(p.Cookies)
	}
}

// store adds cookies to the jar, replacing any with the same name, domain and path.
func (b *Browser) store(cookies []models.Cookie) {
	for _, c := range cookies {
		i := slices.IndexFunc(b.Jar, func(o models.Cookie) bool {
			return o.Name == c.Name && o.Domain == c.Domain && o.Path == c.Path
		})
		if i >= 0 {
			b.Jar[i] = c
			continue
		}
		b.Jar = append(b.Jar, c)
	}
}

func (b *Browser) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.record("navigate:%s", url)
	if err := b.NavigateErr[url]; err != nil {
		return err
	}
	b.visit(url)
	return nil
}

func (b *Browser) Location(ctx context.Context) (string, error) {
	return b.Current, ctx.Err()
}

func (b *Browser) WaitVisible(ctx context.Context, sel string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p := b.page()
	if err := p.err(sel); err != nil {
		return err
	}
	if !p.has(sel) {
		return fmt.Errorf("wait for %q on %s: %w", sel, b.Current, ErrNoElement)
	}
	return nil
}

func (b *Browser) Exists(ctx context.Context, sel string) (bool, error) {
	return b.page().has(sel), ctx.Err()
}

func (b *Browser) Click(ctx context.Context, sel string) error {
	if err := b.WaitVisible(ctx, sel); err != nil {
		return err
	}
	b.record("click:%s", sel)
	b.follow(sel)
	return nil
}

func (b *Browser) follow(sel string) {
	p := b.page()
	if fn := p.ClickFunc[sel]; fn != nil {
		b.visit(fn(b))
		return
	}
	if to := p.ClickTo[sel]; to != "" {
		b.visit(to)
	}
}

func (b *Browser) ClickIfPresent(ctx context.Context, sel string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p := b.page()
	if err := p.err(sel); err != nil {
		return false, err
	}
	if !p.has(sel) {
		return false, nil
	}
	b.record("click:%s", sel)
	b.follow(sel)
	return true, nil
}

func (b *Browser) Type(ctx context.Context, sel, text string) error {
	if err := b.WaitVisible(ctx, sel); err != nil {
		return err
	}
	b.record("type:%s=%s", sel, text)
	b.Typed[sel] = text
	return nil
}

func (b *Browser) SelectOption(ctx context.Context, sel, value string) error {
	if err := b.WaitVisible(ctx, sel); err != nil {
		return err
	}
	if opts, ok := b.page().Options[sel]; ok && !slices.Contains(opts, value) {
		return fmt.Errorf("select %q in %q: option not available", value, sel)
	}
	b.record("select:%s=%s", sel, value)
	b.Selected[sel] = value
	return nil
}

func (b *Browser) PressEscape(ctx context.Context) error {
	b.record("escape")
	return ctx.Err()
}

func (b *Browser) Links(ctx context.Context, sel string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := b.page()
	if err := p.err(sel); err != nil {
		return nil, err
	}
	if p == nil {
		return []string{}, nil
	}
	return append([]string{}, p.Links[sel]...), nil
}

func (b *Browser) Text(ctx context.Context, sel string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	p := b.page()
	if err := p.err(sel); err != nil {
		return "", false, err
	}
	if p == nil {
		return "", false, nil
	}
	v, ok := p.Text[sel]
	return v, ok, nil
}

func (b *Browser) Value(ctx context.Context, sel string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	p := b.page()
	if err := p.err(sel); err != nil {
		return "", false, err
	}
	if p == nil {
		return "", false, nil
	}
	v, ok := p.Values[sel]
	return v, ok, nil
}

func (b *Browser) SetViewport(ctx context.Context, vp models.Viewport) error {
	b.record("viewport:%dx%d", vp.Width, vp.Height)
	b.Viewports = append(b.Viewports, vp)
	return ctx.Err()
}

func (b *Browser) Cookies(ctx context.Context) ([]models.Cookie, error) {
	return append([]models.Cookie{}, b.Jar...), ctx.Err()
}

func (b *Browser) SetCookies(ctx context.Context, cookies []models.Cookie) error {
	b.record("setcookies:%d", len(cookies))
	b.store(cookies)
	return ctx.Err()
}

func (b *Browser) Close() error {
	b.record("close")
	b.Closed = true
	return nil
}
