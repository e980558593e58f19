// Package fetcher executes named fetch strategies and classifies their
// outcome into RawFetch results.
package fetcher

import (
	"math/rand/v2"
	"net/http"
	"sync/atomic"
)

// Profile is a device/header identity presented to the remote site.
type Profile struct {
	Name           string
	UserAgent      string
	Accept         string
	AcceptLanguage string
	Mobile         bool
	ViewportWidth  int
	ViewportHeight int
}

// Headers renders the profile as request headers.
func (p Profile) Headers() http.Header {
	h := http.Header{}
	h.Set("User-Agent", p.UserAgent)
	h.Set("Accept", p.Accept)
	h.Set("Accept-Language", p.AcceptLanguage)
	h.Set("Upgrade-Insecure-Requests", "1")
	if p.Mobile {
		h.Set("Sec-CH-UA-Mobile", "?1")
	} else {
		h.Set("Sec-CH-UA-Mobile", "?0")
	}
	return h
}

const (
	acceptHTML     = "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8"
	acceptLanguage = "id-ID,id;q=0.9,en-US;q=0.8,en;q=0.7"
)

// DesktopProfiles is the fixed rotation pool for the plain strategy.
var DesktopProfiles = []Profile{
	{
		Name:           "chrome-windows",
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		Accept:         acceptHTML,
		AcceptLanguage: acceptLanguage,
		ViewportWidth:  1920,
		ViewportHeight: 1080,
	},
	{
		Name:           "chrome-mac",
		UserAgent:      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		Accept:         acceptHTML,
		AcceptLanguage: acceptLanguage,
		ViewportWidth:  1440,
		ViewportHeight: 900,
	},
	{
		Name:           "firefox-windows",
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
		Accept:         acceptHTML,
		AcceptLanguage: acceptLanguage,
		ViewportWidth:  1536,
		ViewportHeight: 864,
	},
	{
		Name:           "edge-windows",
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36 Edg/124.0.0.0",
		Accept:         acceptHTML,
		AcceptLanguage: acceptLanguage,
		ViewportWidth:  1366,
		ViewportHeight: 768,
	},
}

// MobileProfiles is the rotation pool for the alternate-profile strategy.
var MobileProfiles = []Profile{
	{
		Name:           "chrome-android",
		UserAgent:      "Mozilla/5.0 (Linux; Android 14; SM-S918B) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Mobile Safari/537.36",
		Accept:         acceptHTML,
		AcceptLanguage: acceptLanguage,
		Mobile:         true,
		ViewportWidth:  412,
		ViewportHeight: 915,
	},
	{
		Name:           "safari-iphone",
		UserAgent:      "Mozilla/5.0 (iPhone; CPU iPhone OS 17_4 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Mobile/15E148 Safari/604.1",
		Accept:         acceptHTML,
		AcceptLanguage: acceptLanguage,
		Mobile:         true,
		ViewportWidth:  390,
		ViewportHeight: 844,
	},
}

// Rotator hands out profiles round-robin from a fixed pool.
type Rotator struct {
	pool []Profile
	next atomic.Uint64
}

// NewRotator builds a Rotator starting at a random offset.
func NewRotator(pool []Profile) *Rotator {
	if len(pool) == 0 {
		pool = DesktopProfiles
	}
	r := &Rotator{pool: pool}
	r.next.Store(rand.Uint64N(uint64(len(pool)))) //nolint:gosec // identity rotation only
	return r
}

// Next returns the next profile in the rotation.
func (r *Rotator) Next() Profile {
	i := r.next.Add(1) - 1
	return r.pool[i%uint64(len(r.pool))]
}
