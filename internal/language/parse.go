package language

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/danielpatrickdp/dealdialect/internal/deal"
)

var (
	priceRe  = regexp.MustCompile(`\$?\s*(\d+(?:\.\d{1,2})?)`)
	assentRe = regexp.MustCompile(`\b(yes|ok|sure|fine)\b`)
)

// ParseText turns free text into a move for role. A price is required
// except for ACCEPT, REJECT and WALK_AWAY; a walk-away never carries one.
func ParseText(text string, role deal.Role) (deal.Offer, bool) {
	norm := strings.ToLower(strings.TrimSpace(text))
	if norm == "" {
		return deal.Offer{}, false
	}
	price, hasPrice := ExtractPrice(norm)
	intent := DetectIntent(norm)

	switch {
	case hasPrice && intent != deal.IntentWalkAway:
		return deal.NewOffer(role, price, norm, intent), true
	case intent == deal.IntentAccept, intent == deal.IntentReject, intent == deal.IntentWalkAway:
		return deal.NewOffer(role, 0, norm, intent), true
	}
	return deal.Offer{}, false
}

// ExtractPrice returns the first number in text, with an optional leading $.
func ExtractPrice(text string) (float64, bool) {
	m := priceRe.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	p, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return p, true
}

// DetectIntent classifies lower-cased text by keyword, checking accept,
// reject, walk-away, threat and bluff phrases in that order before falling
// back to COUNTER/OFFER when a price is present and INQUIRE otherwise.
func DetectIntent(text string) deal.Intent {
	has := func(subs ...string) bool {
		for _, s := range subs {
			if strings.Contains(text, s) {
				return true
			}
		}
		return false
	}

	switch {
	case has("accept", "deal", "agreed") || assentRe.MatchString(text):
		return deal.IntentAccept
	case has("reject", "no way", "can't do") || (has("too") && has("high", "low")):
		return deal.IntentReject
	case has("walk", "goodbye", "nevermind", "forget it"):
		return deal.IntentWalkAway
	case has("other options", "might walk", "have to leave"):
		return deal.IntentThreaten
	case has("final offer", "absolute limit", "best price"):
		return deal.IntentBluffPuff
	}
	if _, ok := ExtractPrice(text); ok {
		if has("how about", "what about", "instead") {
			return deal.IntentCounter
		}
		return deal.IntentOffer
	}
	return deal.IntentInquire
}
