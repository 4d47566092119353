package match

import "strconv"

// Fingerprint builds a deterministic, non-cryptographic hash of a
// transaction's identity fields, used as an O(1) lookup key for exact
// duplicate candidates. The canonical form is
// "amount|date|normalized-merchant", so inputs whose merchants normalize
// identically produce the same fingerprint. Collisions are possible; the
// detector only consults fingerprints within an already-filtered candidate
// set (same account, ±3 days).
func Fingerprint(amount, date, merchant string) string {
	canonical := amount + "|" + date + "|" + NormalizeMerchant(merchant)

	// 32-bit rolling multiply-accumulate with wraparound, rendered base-36.
	var h int32
	for _, r := range canonical {
		h = h*31 + int32(r)
	}

	v := int64(h)
	if v < 0 {
		v = -v
	}
	return strconv.FormatInt(v, 36)
}
