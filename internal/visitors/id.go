package visitors

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// FingerprintLength is the number of hex characters kept from the digest.
const FingerprintLength = 16

// Fingerprint creates a privacy-first pseudonymous identifier for a
// PII-bearing value (session id, user agent). The value is combined with a
// server-side salt and hashed, so the raw value is never stored while
// equality-joins across events keep working.
func Fingerprint(value, salt string) string {
	data := fmt.Sprintf("%s.%s", salt, value)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])[:FingerprintLength]
}
