// Package app assembles the procurement pipeline from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"

	"github.com/mohammad-safakhou/bulkcart/config"
	"github.com/mohammad-safakhou/bulkcart/internal/credentials"
	"github.com/mohammad-safakhou/bulkcart/internal/orchestrator"
	"github.com/mohammad-safakhou/bulkcart/internal/pacing"
	"github.com/mohammad-safakhou/bulkcart/internal/session"
	"github.com/mohammad-safakhou/bulkcart/internal/session/tokenstore"
	"github.com/mohammad-safakhou/bulkcart/internal/sheets"
	"github.com/mohammad-safakhou/bulkcart/internal/store"
	"github.com/mohammad-safakhou/bulkcart/internal/storefront"
	"github.com/mohammad-safakhou/bulkcart/internal/telemetry"
	"github.com/mohammad-safakhou/bulkcart/models"
	"github.com/mohammad-safakhou/bulkcart/tools/browser"
)

// ErrSetup marks failures before the first item: configuration, spreadsheet,
// credentials, token store or browser start.
var ErrSetup = errors.New("setup failed")

// Exit codes returned by the CLI.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitSetup   = 2
	ExitLogin   = 3
)

// ExitCode classifies an error returned by Runner.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, session.ErrLoginFailed), errors.Is(err, session.ErrMissingCredentials):
		return ExitLogin
	case errors.Is(err, ErrSetup), errors.Is(err, sheets.ErrNoData):
		return ExitSetup
	default:
		return ExitFailure
	}
}

func setupErr(what string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrSetup, what, err)
}

type LineItemSource interface {
	LineItems(ctx context.Context) ([]models.LineItem, error)
}

// BrowserFactory starts the browser used for one run.
type BrowserFactory func(ctx context.Context) (browser.Browser, error)

// Deps are the external resources a Runner drives.
type Deps struct {
	Source      LineItemSource
	Credentials credentials.Provider
	Tokens      tokenstore.Store
	NewBrowser  BrowserFactory
	Reporters   []orchestrator.Reporter

	closers []func() error
}

// Close releases every resource opened by Open, newest first.
func (d *Deps) Close() error {
	var errs []error
	for _, c := range slices.Backward(d.closers) {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}

// OpenOptions selects the optional parts of Open.
type OpenOptions struct {
	// Source is false for commands that never read the spreadsheet.
	Source  bool
	Metrics *telemetry.Metrics
	Logger  *log.Logger
}

// Open connects the configured backends. On error everything already opened
// is closed again.
func Open(ctx context.Context, cfg *config.Config, opts OpenOptions) (_ *Deps, err error) {
	d := &Deps{}
	defer func() {
		if err != nil {
			_ = d.Close()
		}
	}()

	if opts.Source {
		src, err := sheets.NewServiceSource(ctx, cfg.Sheets)
		if err != nil {
			return nil, setupErr("spreadsheet", err)
		}
		d.Source = src
	}

	provider, closeCreds, err := credentials.New(ctx, cfg.Credentials)
	if err != nil {
		return nil, setupErr("credentials", err)
	}
	d.closers = append(d.closers, closeCreds)
	d.Credentials = provider

	tokens, closeTokens, err := tokenstore.New(ctx, cfg)
	if err != nil {
		return nil, setupErr("token store", err)
	}
	d.closers = append(d.closers, closeTokens)
	d.Tokens = tokens

	d.NewBrowser = func(ctx context.Context) (browser.Browser, error) {
		return browser.New(ctx, browser.Type(cfg.Browser.Type), browser.Options{
			Headless:  cfg.Browser.Headless,
			NoSandbox: cfg.Browser.NoSandbox,
			UserAgent: cfg.Browser.UserAgent,
			ExecPath:  cfg.Browser.ExecPath,
			Timeout:   cfg.Browser.Timeout,
			Viewport:  cfg.Browser.Viewport,
		})
	}

	d.Reporters = append(d.Reporters, orchestrator.NewLogReporter(opts.Logger))
	if opts.Metrics != nil {
		d.Reporters = append(d.Reporters, opts.Metrics)
	}
	if cfg.Storage.Postgres.Enabled {
		dsn, err := cfg.Storage.Postgres.DSN()
		if err != nil {
			return nil, setupErr("postgres", err)
		}
		pctx, cancel := context.WithTimeout(ctx, cfg.Storage.Postgres.Timeout)
		st, err := store.NewWithDSN(pctx, dsn)
		cancel()
		if err != nil {
			return nil, setupErr("postgres", err)
		}
		d.closers = append(d.closers, st.Close)
		d.Reporters = append(d.Reporters, store.NewHistoryReporter(st, nil))
	}
	return d, nil
}

// Report is the outcome of one batch.
type Report struct {
	Session *session.Session
	Results []models.ItemResult
	Summary models.Summary
}

type Runner struct {
	cfg    *config.Config
	deps   *Deps
	logger *log.Logger
}

func NewRunner(cfg *config.Config, deps *Deps, logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.New(log.Writer(), "[BULKCART] ", log.LstdFlags)
	}
	return &Runner{cfg: cfg, deps: deps, logger: logger}
}

// pipeline is one browser with the storefront components bound to it.
type pipeline struct {
	browser browser.Browser
	pacer   *pacing.Pacer
	loc     storefront.Selectors
	nav     *storefront.Navigator
	manager *session.Manager
}

func (r *Runner) start(ctx context.Context) (*pipeline, error) {
	b, err := r.deps.NewBrowser(ctx)
	if err != nil {
		return nil, setupErr("browser", err)
	}
	p := &pipeline{
		browser: b,
		pacer:   pacing.New(r.cfg.Pacing),
		loc:     storefront.NewSelectors(r.cfg.Storefront.Selectors),
	}
	p.nav = storefront.NewNavigator(b, p.loc, p.pacer, r.cfg.Storefront, r.cfg.Search)
	p.manager, err = session.NewManager(b, p.loc, p.nav, p.pacer, r.deps.Tokens, r.cfg, nil)
	if err != nil {
		_ = b.Close()
		return nil, setupErr("session", err)
	}
	return p, nil
}

func (r *Runner) credentials(ctx context.Context) (credentials.Credentials, error) {
	c, err := r.deps.Credentials.Credentials(ctx)
	if err != nil {
		return credentials.Credentials{}, setupErr("credentials", err)
	}
	return c, nil
}

// Run executes one batch: read items, authenticate, process every item.
// A login failure returns before any item is touched.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	if r.deps.Source == nil {
		return nil, setupErr("spreadsheet", errors.New("no line item source"))
	}
	items, err := r.deps.Source.LineItems(ctx)
	if err != nil {
		if errors.Is(err, sheets.ErrNoData) {
			return nil, err
		}
		return nil, setupErr("spreadsheet", err)
	}
	r.logger.Printf("read %d line items", len(items))

	creds, err := r.credentials(ctx)
	if err != nil {
		return nil, err
	}
	p, err := r.start(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := p.browser.Close(); err != nil {
			r.logger.Printf("close browser: %v", err)
		}
	}()

	sess, err := p.manager.Authenticate(ctx, creds)
	if err != nil {
		return nil, fmt.Errorf("authenticate: %w", err)
	}

	opts := []orchestrator.Option{
		orchestrator.WithPacer(p.pacer),
		orchestrator.WithReporters(r.deps.Reporters...),
	}
	if r.cfg.Orchestrator.ResetBetweenItems {
		opts = append(opts, orchestrator.WithResetter(p.nav))
	}
	o := orchestrator.New(
		storefront.NewResolver(p.browser, p.loc, p.pacer, r.cfg.Search),
		storefront.NewMatcher(p.browser, p.loc, p.pacer, r.cfg.Storefront),
		storefront.NewCommitter(p.browser, p.loc, p.pacer),
		opts...,
	)
	results, summary := o.Run(ctx, items)
	return &Report{Session: sess, Results: results, Summary: summary}, nil
}

// Login authenticates and persists the session token without processing
// items. force discards any stored token first.
func (r *Runner) Login(ctx context.Context, force bool) (*session.Session, error) {
	creds, err := r.credentials(ctx)
	if err != nil {
		return nil, err
	}
	p, err := r.start(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = p.browser.Close() }()

	if force {
		if err := p.manager.Forget(ctx); err != nil {
			return nil, setupErr("token store", err)
		}
	}
	sess, err := p.manager.Authenticate(ctx, creds)
	if err != nil {
		return nil, fmt.Errorf("authenticate: %w", err)
	}
	return sess, nil
}
