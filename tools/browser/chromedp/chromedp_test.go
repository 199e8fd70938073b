package chromedp

import (
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
)

func TestCookieConversionKeepsFields(t *testing.T) {
	in := []*network.Cookie{
		{Name: "sid", Value: "abc", Domain: ".shop.test", Path: "/", Expires: 1893456000.5, HTTPOnly: true, Secure: true, SameSite: network.CookieSameSiteLax},
		{Name: "lang", Value: "en", Domain: "shop.test", Path: "/", Session: true},
		nil,
	}
	cookies := FromNetworkCookies(in)
	if len(cookies) != 2 {
		t.Fatalf("expected 2 cookies, got %d", len(cookies))
	}
	if cookies[1].Expires != -1 {
		t.Fatalf("session cookie should have no expiry, got %v", cookies[1].Expires)
	}

	params := ToCookieParams(cookies)
	if len(params) != 2 {
		t.Fatalf("expected 2 params, got %d", len(params))
	}
	sid := params[0]
	if sid.Name != "sid" || sid.Value != "abc" || sid.Domain != ".shop.test" || !sid.HTTPOnly || !sid.Secure {
		t.Fatalf("unexpected param: %+v", sid)
	}
	if sid.SameSite != network.CookieSameSiteLax {
		t.Fatalf("same site lost: %q", sid.SameSite)
	}
	if sid.Expires == nil {
		t.Fatalf("expiry lost")
	}
	got := time.Time(*sid.Expires)
	if got.Unix() != 1893456000 {
		t.Fatalf("unexpected expiry %v", got)
	}
	if params[1].Expires != nil {
		t.Fatalf("session cookie must not carry an expiry")
	}
}

func TestJSStringEscapes(t *testing.T) {
	got := jsString(`input[name="keywords"]`)
	want := `"input[name=\"keywords\"]"`
	if got != want {
		t.Fatalf("jsString = %s, want %s", got, want)
	}
}

func TestToCookieParamsEmpty(t *testing.T) {
	if got := ToCookieParams(nil); len(got) != 0 {
		t.Fatalf("expected no params, got %d", len(got))
	}
	if got := FromNetworkCookies(nil); len(got) != 0 {
		t.Fatalf("expected no cookies, got %d", len(got))
	}
}
