// Package match implements duplicate detection for incoming bank
// transactions: merchant-name normalization, fuzzy string similarity, a
// transaction fingerprint hash, and the scored detector that decides
// whether an incoming feed record is already in the ledger.
package match

import (
	"regexp"
	"strings"
)

// Bank feeds decorate merchant names with payment-method noise and branch
// metadata ("EFTPOS COUNTDOWN AUCKLAND 123"). Normalization strips the
// noise so the same merchant compares equal across feeds and manual entry.
var (
	paymentPrefixRe = regexp.MustCompile(`^(?i:eftpos|online|internet|auto|direct debit|dd|visa|mastercard|paywave)\s+`)
	paymentSuffixRe = regexp.MustCompile(`\s+(?i:eftpos|online|internet|auto|visa|mastercard|paywave)$`)
	regionRe        = regexp.MustCompile(`\s+(?i:auckland|wellington|christchurch|hamilton|tauranga|dunedin|palmerston north|hastings|rotorua|napier|new plymouth|whangarei|invercargill|nelson|whanganui|gisborne)\s+`)
	trailingStoreRe = regexp.MustCompile(`\s+\d+$`)
	whitespaceRe    = regexp.MustCompile(`\s+`)
)

// NormalizeMerchant canonicalizes a merchant name for comparison: lowercase,
// strip payment-method prefixes/suffixes, city names and trailing store
// numbers, collapse whitespace. Stripping a token can expose another
// ("dd visa countdown 12 3"), so the pass repeats until the string is
// stable, which also makes the function idempotent. Any input, including
// the empty string, yields a (possibly empty) normalized string.
func NormalizeMerchant(merchant string) string {
	s := strings.TrimSpace(strings.ToLower(merchant))
	for {
		next := normalizeOnce(s)
		if next == s {
			return s
		}
		s = next
	}
}

func normalizeOnce(s string) string {
	s = paymentPrefixRe.ReplaceAllString(s, "")
	s = paymentSuffixRe.ReplaceAllString(s, "")
	s = regionRe.ReplaceAllString(s, " ")
	s = trailingStoreRe.ReplaceAllString(s, "")
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
