package models

import (
	"time"

	browsermodels "github.com/mohammad-safakhou/bulkcart/tools/browser/models"
)

// Token is the persisted proof of a logged-in storefront session.
type Token struct {
	Cookies  []browsermodels.Cookie `json:"cookies"`
	Identity string                 `json:"identity,omitempty"`
	SavedAt  time.Time              `json:"saved_at"`
}

// Empty reports whether the token carries no cookies and cannot restore a session.
func (t Token) Empty() bool { return len(t.Cookies) == 0 }
