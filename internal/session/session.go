// Package session establishes an authenticated storefront session, reusing a
// persisted token when it is still valid and logging in otherwise.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"time"

	"github.com/mohammad-safakhou/bulkcart/config"
	"github.com/mohammad-safakhou/bulkcart/internal/credentials"
	"github.com/mohammad-safakhou/bulkcart/internal/pacing"
	"github.com/mohammad-safakhou/bulkcart/internal/session/models"
	"github.com/mohammad-safakhou/bulkcart/internal/session/tokenstore"
	"github.com/mohammad-safakhou/bulkcart/internal/storefront"
	"github.com/mohammad-safakhou/bulkcart/tools/browser"
	browsermodels "github.com/mohammad-safakhou/bulkcart/tools/browser/models"
)

var (
	ErrLoginFailed        = errors.New("login failed")
	ErrMissingCredentials = errors.New("no stored session and no credentials")
)

// Session describes how the browser became authenticated.
type Session struct {
	Identity string
	// Restored is true when a stored token was reused without logging in.
	Restored bool
	SavedAt  time.Time
}

type Manager struct {
	browser   browser.Browser
	loc       storefront.Locator
	nav       *storefront.Navigator
	pacer     *pacing.Pacer
	store     tokenstore.Store
	cfg       config.SessionConfig
	sf        config.StorefrontConfig
	operating browsermodels.Viewport
	failure   *regexp.Regexp
	logger    *log.Logger
	now       func() time.Time
}

func NewManager(b browser.Browser, loc storefront.Locator, nav *storefront.Navigator, pacer *pacing.Pacer, store tokenstore.Store, cfg *config.Config, logger *log.Logger) (*Manager, error) {
	var failure *regexp.Regexp
	if cfg.Session.FailurePattern != "" {
		re, err := regexp.Compile(cfg.Session.FailurePattern)
		if err != nil {
			return nil, fmt.Errorf("session.failure_pattern: %w", err)
		}
		failure = re
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[SESSION] ", log.LstdFlags)
	}
	return &Manager{
		browser:   b,
		loc:       loc,
		nav:       nav,
		pacer:     pacer,
		store:     store,
		cfg:       cfg.Session,
		sf:        cfg.Storefront,
		operating: cfg.Browser.Viewport,
		failure:   failure,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// Authenticate leaves the browser logged in and on the home page. On
// ErrLoginFailed the browser has been closed and no item may be processed.
func (m *Manager) Authenticate(ctx context.Context, creds credentials.Credentials) (*Session, error) {
	if sess, err := m.restore(ctx); err != nil {
		return nil, err
	} else if sess != nil {
		if err := m.ready(ctx); err != nil {
			return nil, err
		}
		return sess, nil
	}

	if creds.Empty() {
		return nil, ErrMissingCredentials
	}
	sess, err := m.login(ctx, creds)
	if err != nil {
		if errors.Is(err, ErrLoginFailed) {
			if cerr := m.browser.Close(); cerr != nil {
				m.logger.Printf("close browser after failed login: %v", cerr)
			}
		}
		return nil, err
	}
	if err := m.ready(ctx); err != nil {
		return nil, err
	}
	return sess, nil
}

// Forget drops the stored token so the next Authenticate logs in again.
func (m *Manager) Forget(ctx context.Context) error {
	return m.store.Delete(ctx)
}

// restore injects a stored token and, when verification is enabled, checks
// the storefront still honours it. It returns nil, nil when a login is needed.
func (m *Manager) restore(ctx context.Context) (*Session, error) {
	tok, ok, err := m.store.Load(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		m.logger.Printf("stored session unreadable, logging in: %v", err)
		return nil, nil
	}
	if !ok || tok.Empty() {
		return nil, nil
	}
	if err := m.browser.SetCookies(ctx, tok.Cookies); err != nil {
		return nil, fmt.Errorf("inject session cookies: %w", err)
	}
	sess := &Session{Identity: tok.Identity, Restored: true, SavedAt: tok.SavedAt}
	if !m.cfg.Verify {
		m.logger.Printf("reusing stored session for %s (saved %s)", tok.Identity, tok.SavedAt.Format(time.RFC3339))
		return sess, nil
	}

	valid, err := m.verify(ctx)
	if err != nil {
		return nil, err
	}
	if valid {
		m.logger.Printf("stored session for %s still valid", tok.Identity)
		return sess, nil
	}
	m.logger.Printf("stored session for %s expired, logging in again", tok.Identity)
	if err := m.store.Delete(ctx); err != nil {
		m.logger.Printf("delete stale session: %v", err)
	}
	return nil, nil
}

func (m *Manager) verify(ctx context.Context) (bool, error) {
	target := m.sf.AccountURL
	if target == "" {
		target = m.sf.BaseURL
	}
	if err := m.pacer.BeforeNavigate(ctx); err != nil {
		return false, err
	}
	if err := m.browser.Navigate(ctx, target); err != nil {
		return false, fmt.Errorf("verify session: %w", err)
	}
	if _, err := m.nav.AcceptConsent(ctx); err != nil {
		return false, err
	}
	if err := m.pacer.Settle(ctx, pacing.StepHome); err != nil {
		return false, err
	}
	if m.failed(ctx) {
		return false, nil
	}
	marker, err := m.loc.Locate(config.RoleAccountMarker)
	if err != nil {
		// Nothing to check against; trust the token.
		return true, nil
	}
	return m.browser.Exists(ctx, marker)
}

func (m *Manager) login(ctx context.Context, creds credentials.Credentials) (*Session, error) {
	identity, err := m.loc.Locate(config.RoleLoginIdentity)
	if err != nil {
		return nil, err
	}
	secret, err := m.loc.Locate(config.RoleLoginSecret)
	if err != nil {
		return nil, err
	}
	submit, err := m.loc.Locate(config.RoleLoginSubmit)
	if err != nil {
		return nil, err
	}

	m.logger.Printf("logging in as %s", creds.Email)
	if err := m.browser.SetViewport(ctx, m.cfg.LoginViewport); err != nil {
		return nil, err
	}
	if err := m.pacer.BeforeNavigate(ctx); err != nil {
		return nil, err
	}
	if err := m.browser.Navigate(ctx, m.sf.LoginURL); err != nil {
		return nil, fmt.Errorf("open login page: %w", err)
	}
	if _, err := m.nav.AcceptConsent(ctx); err != nil {
		return nil, err
	}
	if link, err := m.loc.Locate(config.RoleLoginLink); err == nil {
		if _, err := m.browser.ClickIfPresent(ctx, link); err != nil {
			return nil, fmt.Errorf("open login form: %w", err)
		}
	}
	if err := m.browser.WaitVisible(ctx, identity); err != nil {
		return nil, fmt.Errorf("login form: %w", err)
	}
	if err := m.browser.Type(ctx, identity, creds.Email); err != nil {
		return nil, err
	}
	if err := m.browser.Type(ctx, secret, creds.Password); err != nil {
		return nil, err
	}
	if err := m.browser.Click(ctx, submit); err != nil {
		return nil, fmt.Errorf("submit login: %w", err)
	}
	if err := m.pacer.Settle(ctx, pacing.StepLogin); err != nil {
		return nil, err
	}

	if m.failed(ctx) {
		return nil, fmt.Errorf("%w for %s", ErrLoginFailed, creds.Email)
	}
	if m.cfg.FailureOnForm {
		if still, err := m.browser.Exists(ctx, identity); err == nil && still {
			return nil, fmt.Errorf("%w for %s: login form still shown", ErrLoginFailed, creds.Email)
		}
	}

	cookies, err := m.browser.Cookies(ctx)
	if err != nil {
		return nil, fmt.Errorf("read session cookies: %w", err)
	}
	tok := models.Token{Cookies: cookies, Identity: creds.Email, SavedAt: m.now().UTC()}
	if err := m.store.Save(ctx, tok); err != nil {
		m.logger.Printf("persist session: %v", err)
	} else {
		m.logger.Printf("logged in as %s, saved %d cookies", creds.Email, len(cookies))
	}
	return &Session{Identity: creds.Email, SavedAt: tok.SavedAt}, nil
}

// failed reports whether the current location matches the login failure pattern.
func (m *Manager) failed(ctx context.Context) bool {
	if m.failure == nil {
		return false
	}
	loc, err := m.browser.Location(ctx)
	if err != nil {
		m.logger.Printf("read location: %v", err)
		return false
	}
	return m.failure.MatchString(loc)
}

// ready restores the operating viewport and parks the browser on the home page.
func (m *Manager) ready(ctx context.Context) error {
	if err := m.browser.SetViewport(ctx, m.operating); err != nil {
		return err
	}
	if err := m.nav.Home(ctx); err != nil {
		return fmt.Errorf("open storefront: %w", err)
	}
	return nil
}
