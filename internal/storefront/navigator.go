package storefront

import (
	"context"
	"fmt"

	"github.com/mohammad-safakhou/bulkcart/config"
	"github.com/mohammad-safakhou/bulkcart/internal/pacing"
	"github.com/mohammad-safakhou/bulkcart/tools/browser"
)

// Navigator returns the browsing context to the storefront home page.
type Navigator struct {
	browser   browser.Browser
	loc       Locator
	pacer     *pacing.Pacer
	homeURL   string
	readyRole string
	consented bool
}

// NewNavigator builds a Navigator. When the search runs through the in-page
// form, Home also waits until the search input is usable.
func NewNavigator(b browser.Browser, loc Locator, pacer *pacing.Pacer, sf config.StorefrontConfig, search config.SearchConfig) *Navigator {
	n := &Navigator{browser: b, loc: loc, pacer: pacer, homeURL: sf.BaseURL}
	if search.Mode == config.SearchModeForm {
		n.readyRole = config.RoleSearchInput
	}
	return n
}

// Home loads the home page, accepts the consent dialog if shown and waits
// for the page to settle.
func (n *Navigator) Home(ctx context.Context) error {
	if err := n.pacer.BeforeNavigate(ctx); err != nil {
		return err
	}
	if err := n.browser.Navigate(ctx, n.homeURL); err != nil {
		return err
	}
	if _, err := n.AcceptConsent(ctx); err != nil {
		return err
	}
	if err := n.pacer.Settle(ctx, pacing.StepHome); err != nil {
		return err
	}
	if n.readyRole == "" {
		return nil
	}
	sel, err := n.loc.Locate(n.readyRole)
	if err != nil {
		return err
	}
	if err := n.browser.WaitVisible(ctx, sel); err != nil {
		return fmt.Errorf("home page not ready: %w", err)
	}
	return nil
}

// Reset is called between items; the previous item may have left the tab on
// a product page or behind an overlay.
func (n *Navigator) Reset(ctx context.Context) error {
	_ = n.browser.PressEscape(ctx)
	return n.Home(ctx)
}

// AcceptConsent clicks the consent control when present. Once it has been
// clicked the dialog is considered answered for the rest of the session, so
// later page loads never click a matching control again.
func (n *Navigator) AcceptConsent(ctx context.Context) (bool, error) {
	sel := optional(n.loc, config.RoleConsent)
	if sel == "" || n.consented {
		return false, nil
	}
	clicked, err := n.browser.ClickIfPresent(ctx, sel)
	if clicked {
		n.consented = true
	}
	return clicked, err
}
