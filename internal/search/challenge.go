package search

import (
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ChallengeKind identifies the anti-bot mechanism detected in a response.
type ChallengeKind string

const (
	ChallengeNone       ChallengeKind = ""
	ChallengeCloudflare ChallengeKind = "cloudflare"
	ChallengeDDoSGuard  ChallengeKind = "ddos-guard"
	ChallengeRecaptcha  ChallengeKind = "recaptcha"
	ChallengeHCaptcha   ChallengeKind = "hcaptcha"
	ChallengeTurnstile  ChallengeKind = "turnstile"
)

// challengeTitles are page titles served by interstitial challenge pages.
var challengeTitles = []string{
	"just a moment...",
	"attention required!",
	"access denied",
	"ddos-guard",
	"один момент...",
}

// captchaMarkers map an HTML selector to the captcha provider it belongs to.
var captchaMarkers = []struct {
	selector string
	kind     ChallengeKind
}{
	{"div.g-recaptcha", ChallengeRecaptcha},
	{"script[src*='recaptcha/api.js']", ChallengeRecaptcha},
	{"div.h-captcha", ChallengeHCaptcha},
	{"script[src*='hcaptcha.com']", ChallengeHCaptcha},
	{"div.cf-turnstile", ChallengeTurnstile},
	{"script[src*='challenges.cloudflare.com/turnstile']", ChallengeTurnstile},
}

// DetectChallenge inspects a response's status, headers, and body for
// anti-bot interstitials and captcha walls. Indexers call it before
// parsing so a challenge page never surfaces as a parse error.
func DetectChallenge(statusCode int, header http.Header, body string) ChallengeKind {
	server := strings.ToLower(header.Get("Server"))

	// Challenge status codes from a known fronting server are decisive
	// even without a readable body.
	blocking := statusCode == http.StatusServiceUnavailable ||
		statusCode == http.StatusForbidden ||
		statusCode == http.StatusTooManyRequests
	if blocking {
		if strings.Contains(server, "cloudflare") {
			if kind := bodyCaptcha(body); kind != ChallengeNone {
				return kind
			}
			return ChallengeCloudflare
		}
		if strings.Contains(server, "ddos-guard") {
			return ChallengeDDoSGuard
		}
	}

	if body == "" {
		return ChallengeNone
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return ChallengeNone
	}

	title := strings.ToLower(strings.TrimSpace(doc.Find("title").First().Text()))
	for _, marker := range challengeTitles {
		if strings.Contains(title, marker) {
			if kind := docCaptcha(doc); kind != ChallengeNone {
				return kind
			}
			if strings.Contains(server, "ddos-guard") || strings.Contains(title, "ddos-guard") {
				return ChallengeDDoSGuard
			}
			return ChallengeCloudflare
		}
	}

	// A captcha wall can be served on a 200 page with a normal title.
	if doc.Find("form#challenge-form, div#cf-challenge-running").Length() > 0 {
		return ChallengeCloudflare
	}
	return docCaptcha(doc)
}

func bodyCaptcha(body string) ChallengeKind {
	if body == "" {
		return ChallengeNone
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return ChallengeNone
	}
	return docCaptcha(doc)
}

func docCaptcha(doc *goquery.Document) ChallengeKind {
	for _, marker := range captchaMarkers {
		if doc.Find(marker.selector).Length() > 0 {
			return marker.kind
		}
	}
	return ChallengeNone
}

// IsCaptcha reports whether the challenge requires human interaction.
func (k ChallengeKind) IsCaptcha() bool {
	switch k {
	case ChallengeRecaptcha, ChallengeHCaptcha, ChallengeTurnstile:
		return true
	}
	return false
}
