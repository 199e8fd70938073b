package storefront

import (
	"context"
	"fmt"

	"github.com/mohammad-safakhou/bulkcart/config"
	"github.com/mohammad-safakhou/bulkcart/internal/pacing"
	"github.com/mohammad-safakhou/bulkcart/models"
	"github.com/mohammad-safakhou/bulkcart/tools/browser"
)

// Committer adds the product on the current page to the cart.
type Committer struct {
	browser browser.Browser
	loc     Locator
	pacer   *pacing.Pacer
}

func NewCommitter(b browser.Browser, loc Locator, pacer *pacing.Pacer) *Committer {
	return &Committer{browser: b, loc: loc, pacer: pacer}
}

// AddToCart must only be called on a confirmed product page. quantity is
// passed to the quantity selector verbatim.
func (c *Committer) AddToCart(ctx context.Context, quantity string) (models.CartOutcome, error) {
	qtySel, err := c.loc.Locate(config.RoleQuantity)
	if err != nil {
		return models.CartOutcome{}, err
	}
	addSel, err := c.loc.Locate(config.RoleAddToCart)
	if err != nil {
		return models.CartOutcome{}, err
	}

	if err := c.browser.WaitVisible(ctx, qtySel); err != nil {
		return models.CartOutcome{}, fmt.Errorf("quantity selector: %w", err)
	}
	if err := c.browser.SelectOption(ctx, qtySel, quantity); err != nil {
		return models.CartOutcome{}, err
	}
	if err := c.pacer.Settle(ctx, pacing.StepSelect); err != nil {
		return models.CartOutcome{}, err
	}
	if err := c.browser.Click(ctx, addSel); err != nil {
		return models.CartOutcome{}, fmt.Errorf("add to cart: %w", err)
	}
	if err := c.pacer.Settle(ctx, pacing.StepSubmit); err != nil {
		return models.CartOutcome{}, err
	}
	if err := c.dismissOverlay(ctx); err != nil {
		return models.CartOutcome{}, err
	}

	out := models.CartOutcome{Success: true}
	if sel := optional(c.loc, config.RoleAvailableQuantity); sel != "" {
		v, ok, err := c.browser.Value(ctx, sel)
		if err != nil {
			return models.CartOutcome{}, fmt.Errorf("available quantity: %w", err)
		}
		if ok {
			out.AvailableQuantity = models.StringPtr(v)
		}
	}
	return out, nil
}

func (c *Committer) dismissOverlay(ctx context.Context) error {
	if sel := optional(c.loc, config.RoleOverlayClose); sel != "" {
		clicked, err := c.browser.ClickIfPresent(ctx, sel)
		if err != nil {
			return fmt.Errorf("dismiss overlay: %w", err)
		}
		if clicked {
			return nil
		}
	}
	return c.browser.PressEscape(ctx)
}
