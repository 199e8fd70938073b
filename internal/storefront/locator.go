// Package storefront drives the shop's search, product and cart pages
// through the browser capability. Markup knowledge is confined to a Locator
// so selector changes never touch pipeline logic.
package storefront

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownRole = errors.New("no selector configured for role")
	ErrEmptyCode   = errors.New("empty item code")
)

// Locator maps a page role (search input, add-to-cart button, ...) to a selector.
type Locator interface {
	Locate(role string) (string, error)
}

// Selectors is a Locator backed by a role -> CSS selector map.
type Selectors map[string]string

func NewSelectors(m map[string]string) Selectors {
	out := make(Selectors, len(m))
	for role, sel := range m {
		if sel = strings.TrimSpace(sel); sel != "" {
			out[strings.ToLower(strings.TrimSpace(role))] = sel
		}
	}
	return out
}

func (s Selectors) Locate(role string) (string, error) {
	sel, ok := s[role]
	if !ok || sel == "" {
		return "", fmt.Errorf("%w: %s", ErrUnknownRole, role)
	}
	return sel, nil
}

// optional returns the selector for role or "" when the role is not configured.
func optional(loc Locator, role string) string {
	sel, err := loc.Locate(role)
	if err != nil {
		return ""
	}
	return sel
}
