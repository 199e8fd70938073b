package storefront

import (
	"context"
	"strings"

	"github.com/mohammad-safakhou/bulkcart/config"
	"github.com/mohammad-safakhou/bulkcart/internal/pacing"
	"github.com/mohammad-safakhou/bulkcart/tools/browser"
)

// Matcher confirms that a candidate product page lists the requested code.
type Matcher struct {
	browser browser.Browser
	loc     Locator
	pacer   *pacing.Pacer
	prefix  string
}

func NewMatcher(b browser.Browser, loc Locator, pacer *pacing.Pacer, sf config.StorefrontConfig) *Matcher {
	return &Matcher{browser: b, loc: loc, pacer: pacer, prefix: sf.CodeLabelPrefix}
}

// ConfirmMatch opens ref and compares its displayed item code to code
// exactly. A page without a code field does not match.
func (m *Matcher) ConfirmMatch(ctx context.Context, ref, code string) (bool, error) {
	if err := m.pacer.BeforeNavigate(ctx); err != nil {
		return false, err
	}
	if err := m.browser.Navigate(ctx, ref); err != nil {
		return false, err
	}
	if err := m.pacer.Settle(ctx, pacing.StepProductLoad); err != nil {
		return false, err
	}

	sel, err := m.loc.Locate(config.RoleProductCode)
	if err != nil {
		return false, err
	}
	raw, ok, err := m.browser.Text(ctx, sel)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	return NormalizeCode(raw, m.prefix) == code, nil
}

// NormalizeCode strips the label prefix (case-insensitively) and surrounding
// whitespace from a displayed item code.
func NormalizeCode(raw, prefix string) string {
	s := strings.TrimSpace(raw)
	prefix = strings.TrimSpace(prefix)
	if prefix != "" && len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
		s = s[len(prefix):]
	}
	return strings.TrimSpace(s)
}
