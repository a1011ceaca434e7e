package scrape

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
)

// BlockedError reports that a page fetch was challenged or blocked by a
// bot protection vendor rather than served.
type BlockedError struct {
	Vendor     string
	StatusCode int
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("page fetch blocked by %s bot protection (status %d)", e.Vendor, e.StatusCode)
}

// detector examines a response to determine if a bot protection mechanism
// blocked or challenged the request.
type detector func(status int, header http.Header, body []byte) (bool, string)

var defaultDetectors = []detector{
	detectCloudflare,
	detectAkamai,
	detectDataDome,
	detectPerimeterX,
}

// detectChallenge runs the response through all known detectors and
// returns the vendor name of the first match.
func detectChallenge(status int, header http.Header, body []byte) (string, bool) {
	for _, d := range defaultDetectors {
		if detected, vendor := d(status, header, body); detected {
			return vendor, true
		}
	}
	return "", false
}

// detectCloudflare looks for common Cloudflare challenge/block signatures.
func detectCloudflare(status int, header http.Header, body []byte) (bool, string) {
	// Status codes 403 or 503 are common for CF challenges
	if status == http.StatusForbidden || status == http.StatusServiceUnavailable {
		server := strings.ToLower(header.Get("Server"))
		if strings.Contains(server, "cloudflare") {
			return true, "Cloudflare"
		}

		if bytes.Contains(body, []byte("cf-browser-verification")) ||
			bytes.Contains(body, []byte("cloudflare-nginx")) ||
			bytes.Contains(body, []byte("cf-turnstile")) ||
			bytes.Contains(body, []byte("Attention Required! | Cloudflare")) {
			return true, "Cloudflare"
		}
	}
	return false, ""
}

// detectAkamai looks for Akamai Bot Manager signatures.
func detectAkamai(status int, header http.Header, body []byte) (bool, string) {
	if status == http.StatusForbidden {
		server := strings.ToLower(header.Get("Server"))
		if strings.Contains(server, "akamai") {
			return true, "Akamai"
		}

		// Akamai often returns a generic "Reference #" block page
		if bytes.Contains(body, []byte("Reference #")) && bytes.Contains(body, []byte("Access Denied")) {
			return true, "Akamai"
		}
	}
	return false, ""
}

// detectDataDome looks for DataDome challenge/block signatures.
func detectDataDome(status int, header http.Header, body []byte) (bool, string) {
	if status == http.StatusForbidden {
		server := strings.ToLower(header.Get("Server"))
		if strings.Contains(server, "datadome") {
			return true, "DataDome"
		}

		if header.Get("X-DataDome") != "" || header.Get("X-DataDome-Response") != "" {
			return true, "DataDome"
		}

		if bytes.Contains(body, []byte("geo.captcha-delivery.com")) || bytes.Contains(body, []byte("datadome")) {
			return true, "DataDome"
		}
	}
	return false, ""
}

// detectPerimeterX looks for PerimeterX (HUMAN) signatures.
func detectPerimeterX(status int, header http.Header, body []byte) (bool, string) {
	if status == http.StatusForbidden {
		if header.Get("X-Px-Captcha") != "" {
			return true, "PerimeterX"
		}

		if bytes.Contains(body, []byte("client.perimeterx.net")) ||
			bytes.Contains(body, []byte("px-captcha")) ||
			bytes.Contains(body, []byte("_pxBlock")) {
			return true, "PerimeterX"
		}
	}
	return false, ""
}
