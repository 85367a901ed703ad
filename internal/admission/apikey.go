package admission

import "crypto/subtle"

// CheckAPIKey compares the presented key to the configured shared secret
// in constant time. No password hashing is involved — this is a single
// shared secret, not a per-user credential — so crypto/subtle covers the
// whole requirement without reaching for a hashing library.
func CheckAPIKey(presented, configured string) bool {
	if presented == "" || configured == "" {
		return false
	}
	if len(presented) != len(configured) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(configured)) == 1
}
