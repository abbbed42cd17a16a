package visitors_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"lantern/internal/visitors"
)

func TestFingerprint(t *testing.T) {
	salt := "test-salt"

	t.Run("generates consistent fingerprint for same inputs", func(t *testing.T) {
		fp1 := visitors.Fingerprint("abc123", salt)
		fp2 := visitors.Fingerprint("abc123", salt)

		assert.Equal(t, fp1, fp2, "Same inputs should generate same fingerprint")
		assert.NotEmpty(t, fp1, "Fingerprint should not be empty")
	})

	t.Run("fingerprint is 16 hex characters", func(t *testing.T) {
		fp := visitors.Fingerprint("abc123", salt)

		assert.Len(t, fp, visitors.FingerprintLength)
		assert.Regexp(t, "^[0-9a-f]{16}$", fp)
	})

	t.Run("generates different fingerprints for different values", func(t *testing.T) {
		fp1 := visitors.Fingerprint("abc123", salt)
		fp2 := visitors.Fingerprint("abc124", salt)

		assert.NotEqual(t, fp1, fp2, "Different values should generate different fingerprints")
	})

	t.Run("generates different fingerprints for different salts", func(t *testing.T) {
		fp1 := visitors.Fingerprint("abc123", "salt1")
		fp2 := visitors.Fingerprint("abc123", "salt2")

		assert.NotEqual(t, fp1, fp2, "Different salts should generate different fingerprints")
	})

	t.Run("fingerprint is not the raw value", func(t *testing.T) {
		fp := visitors.Fingerprint("abc123", salt)

		assert.NotContains(t, fp, "abc123")
	})
}
