package scrape

import (
	"net/http"
	"testing"
)

func TestDetectCloudflare(t *testing.T) {
	// Not blocked
	h := http.Header{"Server": {"nginx"}}
	if detected, _ := detectCloudflare(200, h, []byte("OK")); detected {
		t.Errorf("expected not detected")
	}

	// CF Server Header
	h = http.Header{"Server": {"cloudflare"}}
	if detected, src := detectCloudflare(403, h, []byte("Access Denied")); !detected || src != "Cloudflare" {
		t.Errorf("expected Cloudflare detection by header")
	}

	// CF Body signature
	if detected, src := detectCloudflare(503, http.Header{}, []byte("<html>... cf-turnstile ...</html>")); !detected || src != "Cloudflare" {
		t.Errorf("expected Cloudflare detection by body")
	}
}

func TestDetectAkamai(t *testing.T) {
	h := http.Header{"Server": {"AkamaiGHost"}}
	if detected, src := detectAkamai(403, h, []byte("")); !detected || src != "Akamai" {
		t.Errorf("expected Akamai detection by header")
	}

	if detected, src := detectAkamai(403, http.Header{}, []byte("Access Denied... Reference #123.456")); !detected || src != "Akamai" {
		t.Errorf("expected Akamai detection by body")
	}
}

func TestDetectDataDome(t *testing.T) {
	h := http.Header{"X-Datadome": {"1"}}
	if detected, src := detectDataDome(403, h, []byte("")); !detected || src != "DataDome" {
		t.Errorf("expected DataDome detection by header")
	}

	if detected, src := detectDataDome(403, http.Header{}, []byte("script src='https://geo.captcha-delivery.com/...'")); !detected || src != "DataDome" {
		t.Errorf("expected DataDome detection by body")
	}
}

func TestDetectPerimeterX(t *testing.T) {
	h := http.Header{"X-Px-Captcha": {"required"}}
	if detected, src := detectPerimeterX(403, h, []byte("")); !detected || src != "PerimeterX" {
		t.Errorf("expected PerimeterX detection by header")
	}

	if detected, src := detectPerimeterX(403, http.Header{}, []byte("window._pxBlock = true;")); !detected || src != "PerimeterX" {
		t.Errorf("expected PerimeterX detection by body")
	}
}

func TestDetectChallenge(t *testing.T) {
	h := http.Header{"X-Datadome": {"1"}}
	vendor, blocked := detectChallenge(403, h, []byte(""))
	if !blocked || vendor != "DataDome" {
		t.Errorf("expected DataDome challenge, got %q blocked=%v", vendor, blocked)
	}

	vendor, blocked = detectChallenge(200, http.Header{}, []byte("hello"))
	if blocked || vendor != "" {
		t.Errorf("expected clean response to pass, got %q blocked=%v", vendor, blocked)
	}
}

func TestBlockedErrorMessage(t *testing.T) {
	err := &BlockedError{Vendor: "Cloudflare", StatusCode: 403}
	want := "page fetch blocked by Cloudflare bot protection (status 403)"
	if err.Error() != want {
		t.Errorf("expected %q, got %q", want, err.Error())
	}
}
