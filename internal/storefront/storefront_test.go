package storefront

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/mohammad-safakhou/bulkcart/config"
	"github.com/mohammad-safakhou/bulkcart/internal/pacing"
	"github.com/mohammad-safakhou/bulkcart/models"
	"github.com/mohammad-safakhou/bulkcart/tools/browser/fake"
)

const home = "https://shop.test/"

func testSelectors() Selectors {
	return NewSelectors(config.DefaultSelectors)
}

func searchURL(code string) string { return "https://shop.test/search?q=" + code }

func TestSelectorsLocate(t *testing.T) {
	loc := NewSelectors(map[string]string{"Quantity ": " select#qty ", "empty": "  "})
	sel, err := loc.Locate(config.RoleQuantity)
	if err != nil || sel != "select#qty" {
		t.Fatalf("Locate = %q, %v", sel, err)
	}
	if _, err := loc.Locate("empty"); !errors.Is(err, ErrUnknownRole) {
		t.Fatalf("expected ErrUnknownRole, got %v", err)
	}
}

func TestResolverURLModeReturnsAllLinksInOrder(t *testing.T) {
	loc := testSelectors()
	b := fake.New(map[string]*fake.Page{
		searchURL("B2"): {Links: map[string][]string{
			loc[config.RoleListingLink]: {"https://shop.test/p/x2", "https://shop.test/p/b2"},
		}},
	})
	r := NewResolver(b, loc, pacing.None(), config.SearchConfig{Mode: config.SearchModeURL, URLTemplate: "https://shop.test/search?q={code}"})

	links, err := r.Search(context.Background(), " B2 ")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	want := []string{"https://shop.test/p/x2", "https://shop.test/p/b2"}
	if !reflect.DeepEqual(links, want) {
		t.Fatalf("links = %v, want %v", links, want)
	}
}

func TestResolverURLModeEscapesCode(t *testing.T) {
	b := fake.New(nil)
	r := NewResolver(b, testSelectors(), pacing.None(), config.SearchConfig{Mode: config.SearchModeURL, URLTemplate: "https://shop.test/search?q={code}"})
	if _, err := r.Search(context.Background(), "A 1&x"); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if got := b.Visited(); len(got) != 1 || got[0] != "https://shop.test/search?q=A+1%26x" {
		t.Fatalf("visited %v", got)
	}
}

func TestResolverFormModeTypesAndSubmits(t *testing.T) {
	loc := testSelectors()
	input, submit, listing := loc[config.RoleSearchInput], loc[config.RoleSearchSubmit], loc[config.RoleListingLink]
	b := fake.New(map[string]*fake.Page{
		home: {
			Present: map[string]bool{input: true},
			ClickFunc: map[string]func(*fake.Browser) string{
				submit: func(b *fake.Browser) string { return searchURL(b.Typed[input]) },
			},
		},
		searchURL("A1"): {Links: map[string][]string{listing: {"https://shop.test/p/a1"}}},
	})
	b.Current = home
	r := NewResolver(b, loc, pacing.None(), config.SearchConfig{Mode: config.SearchModeForm})

	links, err := r.Search(context.Background(), "A1")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(links) != 1 || links[0] != "https://shop.test/p/a1" {
		t.Fatalf("links = %v", links)
	}
	if b.Typed[input] != "A1" {
		t.Fatalf("typed %q", b.Typed[input])
	}
}

func TestResolverEmptyResultsIsNotAnError(t *testing.T) {
	b := fake.New(map[string]*fake.Page{searchURL("Z9"): {}})
	r := NewResolver(b, testSelectors(), pacing.None(), config.SearchConfig{Mode: config.SearchModeURL, URLTemplate: "https://shop.test/search?q={code}"})
	links, err := r.Search(context.Background(), "Z9")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if links == nil || len(links) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", links)
	}
}

func TestResolverRejectsBlankCode(t *testing.T) {
	r := NewResolver(fake.New(nil), testSelectors(), pacing.None(), config.SearchConfig{Mode: config.SearchModeForm})
	if _, err := r.Search(context.Background(), "  "); !errors.Is(err, ErrEmptyCode) {
		t.Fatalf("expected ErrEmptyCode, got %v", err)
	}
}

func TestMatcherComparesStrippedCodeExactly(t *testing.T) {
	loc := testSelectors()
	codeSel := loc[config.RoleProductCode]
	b := fake.New(map[string]*fake.Page{
		"https://shop.test/p/x2":       {Text: map[string]string{codeSel: "Item No.: X2"}},
		"https://shop.test/p/b2":       {Text: map[string]string{codeSel: "\n  item no.:  B2 \n"}},
		"https://shop.test/p/b2-lower": {Text: map[string]string{codeSel: "Item No.: b2"}},
		"https://shop.test/p/none":     {},
	})
	m := NewMatcher(b, loc, pacing.None(), config.StorefrontConfig{CodeLabelPrefix: "Item No.:"})
	ctx := context.Background()

	cases := []struct {
		ref  string
		want bool
	}{
		{"https://shop.test/p/x2", false},
		{"https://shop.test/p/b2", true},
		{"https://shop.test/p/b2-lower", false},
		{"https://shop.test/p/none", false},
	}
	for _, tc := range cases {
		got, err := m.ConfirmMatch(ctx, tc.ref, "B2")
		if err != nil {
			t.Fatalf("ConfirmMatch(%s): %v", tc.ref, err)
		}
		if got != tc.want {
			t.Fatalf("ConfirmMatch(%s) = %v, want %v", tc.ref, got, tc.want)
		}
	}
	if n := b.Count("navigate:"); n != len(cases) {
		t.Fatalf("expected %d navigations, got %d", len(cases), n)
	}
}

func TestMatcherPropagatesNavigationError(t *testing.T) {
	b := fake.New(nil)
	boom := errors.New("net::ERR_CONNECTION_RESET")
	b.NavigateErr["https://shop.test/p/1"] = boom
	m := NewMatcher(b, testSelectors(), pacing.None(), config.StorefrontConfig{})
	if _, err := m.ConfirmMatch(context.Background(), "https://shop.test/p/1", "A1"); !errors.Is(err, boom) {
		t.Fatalf("expected navigation error, got %v", err)
	}
}

func TestNormalizeCode(t *testing.T) {
	cases := map[string]string{
		"Item No.: A1":  "A1",
		"ITEM NO.:A1 ":  "A1",
		"A1":            "A1",
		"  Item No.:  ": "",
		"Article A1":    "Article A1",
	}
	for in, want := range cases {
		if got := NormalizeCode(in, "Item No.:"); got != want {
			t.Fatalf("NormalizeCode(%q) = %q, want %q", in, got, want)
		}
	}
}

func productPage(loc Selectors, avail *string) *fake.Page {
	p := &fake.Page{
		Options: map[string][]string{loc[config.RoleQuantity]: {"1", "2", "3"}},
		Present: map[string]bool{loc[config.RoleAddToCart]: true},
		Values:  map[string]string{},
	}
	if avail != nil {
		p.Values[loc[config.RoleAvailableQuantity]] = *avail
	}
	return p
}

func TestCommitterSelectsSubmitsAndReadsAvailability(t *testing.T) {
	loc := testSelectors()
	b := fake.New(map[string]*fake.Page{"https://shop.test/p/a1": productPage(loc, models.StringPtr("17"))})
	b.Current = "https://shop.test/p/a1"
	c := NewCommitter(b, loc, pacing.None())

	out, err := c.AddToCart(context.Background(), "2")
	if err != nil {
		t.Fatalf("AddToCart: %v", err)
	}
	if !out.Success || models.Deref(out.AvailableQuantity, "") != "17" {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if b.Selected[loc[config.RoleQuantity]] != "2" {
		t.Fatalf("quantity not selected: %v", b.Selected)
	}
	if b.Count("click:"+loc[config.RoleAddToCart]) != 1 {
		t.Fatalf("add to cart not clicked once: %v", b.Calls)
	}
	if b.Count("escape") != 1 {
		t.Fatalf("overlay should be dismissed with escape when no close control: %v", b.Calls)
	}
}

func TestCommitterMissingAvailabilityIsNil(t *testing.T) {
	loc := testSelectors()
	page := productPage(loc, nil)
	page.Present[loc[config.RoleOverlayClose]] = true
	b := fake.New(map[string]*fake.Page{"https://shop.test/p/a1": page})
	b.Current = "https://shop.test/p/a1"

	out, err := NewCommitter(b, loc, pacing.None()).AddToCart(context.Background(), "1")
	if err != nil {
		t.Fatalf("AddToCart: %v", err)
	}
	if !out.Success || out.AvailableQuantity != nil {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if b.Count("click:"+loc[config.RoleOverlayClose]) != 1 || b.Count("escape") != 0 {
		t.Fatalf("overlay close control should be clicked: %v", b.Calls)
	}
}

func TestCommitterFailsOnUnavailableQuantity(t *testing.T) {
	loc := testSelectors()
	b := fake.New(map[string]*fake.Page{"https://shop.test/p/a1": productPage(loc, nil)})
	b.Current = "https://shop.test/p/a1"
	if _, err := NewCommitter(b, loc, pacing.None()).AddToCart(context.Background(), "12"); err == nil {
		t.Fatalf("expected error for quantity not offered")
	}
	if b.Count("click:") != 0 {
		t.Fatalf("add to cart must not be clicked: %v", b.Calls)
	}
}

func TestCommitterFailsWithoutQuantitySelector(t *testing.T) {
	b := fake.New(map[string]*fake.Page{"https://shop.test/p/a1": {}})
	b.Current = "https://shop.test/p/a1"
	_, err := NewCommitter(b, testSelectors(), pacing.None()).AddToCart(context.Background(), "1")
	if !errors.Is(err, fake.ErrNoElement) {
		t.Fatalf("expected missing element error, got %v", err)
	}
}

func TestNavigatorHomeAcceptsConsentAndWaitsForSearch(t *testing.T) {
	loc := testSelectors()
	b := fake.New(map[string]*fake.Page{
		home: {Present: map[string]bool{loc[config.RoleConsent]: true, loc[config.RoleSearchInput]: true}},
	})
	n := NewNavigator(b, loc, pacing.None(), config.StorefrontConfig{BaseURL: home}, config.SearchConfig{Mode: config.SearchModeForm})
	if err := n.Home(context.Background()); err != nil {
		t.Fatalf("Home: %v", err)
	}
	if b.Count("click:"+loc[config.RoleConsent]) != 1 {
		t.Fatalf("consent not accepted: %v", b.Calls)
	}

	b.Pages[home].Present[loc[config.RoleSearchInput]] = false
	if err := n.Home(context.Background()); err == nil {
		t.Fatalf("expected error when search input never appears")
	}
}

func TestNavigatorAcceptsConsentOncePerSession(t *testing.T) {
	loc := testSelectors()
	b := fake.New(map[string]*fake.Page{
		home: {Present: map[string]bool{loc[config.RoleConsent]: true, loc[config.RoleSearchInput]: true}},
	})
	n := NewNavigator(b, loc, pacing.None(), config.StorefrontConfig{BaseURL: home}, config.SearchConfig{Mode: config.SearchModeForm})
	for i := 0; i < 3; i++ {
		if err := n.Reset(context.Background()); err != nil {
			t.Fatalf("Reset %d: %v", i, err)
		}
	}
	if got := b.Count("click:" + loc[config.RoleConsent]); got != 1 {
		t.Fatalf("consent clicked %d times, want 1: %v", got, b.Calls)
	}
	if got := len(b.Visited()); got != 3 {
		t.Fatalf("expected 3 home loads, got %d", got)
	}
}
