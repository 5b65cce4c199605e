package insight

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// dateBucketLayout truncates a timestamp to day granularity for dedupe:
// the same condition on different days gets distinct fingerprints, while
// re-evaluation within one day is idempotent.
const dateBucketLayout = "2006-01-02"

// Fingerprint derives the 16-hex-char dedupe key for an insight from its
// title, body and day-granular date bucket. Deterministic, not a security
// digest; 64 bits of output is ample at per-user-per-day insight volume.
func Fingerprint(title, body string, bucket time.Time) string {
	h := sha256.Sum256([]byte(title + body + bucket.Format(dateBucketLayout)))
	return hex.EncodeToString(h[:])[:16]
}
