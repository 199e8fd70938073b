package storefront

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/mohammad-safakhou/bulkcart/config"
	"github.com/mohammad-safakhou/bulkcart/internal/pacing"
	"github.com/mohammad-safakhou/bulkcart/tools/browser"
)

// Resolver turns an item code into candidate product URLs.
type Resolver struct {
	browser     browser.Browser
	loc         Locator
	pacer       *pacing.Pacer
	mode        string
	urlTemplate string
}

func NewResolver(b browser.Browser, loc Locator, pacer *pacing.Pacer, cfg config.SearchConfig) *Resolver {
	return &Resolver{browser: b, loc: loc, pacer: pacer, mode: cfg.Mode, urlTemplate: cfg.URLTemplate}
}

// Search runs the storefront search for code and returns every listing link
// in page order. No results is an empty slice and a nil error.
func (r *Resolver) Search(ctx context.Context, code string) ([]string, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrEmptyCode
	}

	var err error
	switch r.mode {
	case config.SearchModeURL:
		err = r.searchByURL(ctx, code)
	default:
		err = r.searchByForm(ctx, code)
	}
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", code, err)
	}
	if err := r.pacer.Settle(ctx, pacing.StepSearch); err != nil {
		return nil, err
	}

	listing, err := r.loc.Locate(config.RoleListingLink)
	if err != nil {
		return nil, err
	}
	links, err := r.browser.Links(ctx, listing)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", code, err)
	}
	return links, nil
}

func (r *Resolver) searchByURL(ctx context.Context, code string) error {
	target := strings.ReplaceAll(r.urlTemplate, "{code}", url.QueryEscape(code))
	if err := r.pacer.BeforeNavigate(ctx); err != nil {
		return err
	}
	return r.browser.Navigate(ctx, target)
}

func (r *Resolver) searchByForm(ctx context.Context, code string) error {
	input, err := r.loc.Locate(config.RoleSearchInput)
	if err != nil {
		return err
	}
	submit, err := r.loc.Locate(config.RoleSearchSubmit)
	if err != nil {
		return err
	}
	if err := r.browser.Type(ctx, input, code); err != nil {
		return err
	}
	return r.browser.Click(ctx, submit)
}
