package verification

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"time"
)

// Fingerprint derives a stable identifier for a payment proof from the
// payment id, the uploaded file name, the declared amount and the upload
// timestamp. Two uploads of the same receipt for the same payment collapse
// to one fingerprint.
func Fingerprint(paymentID, filename string, amount int64, uploadedAt time.Time) string {
	payload := fmt.Sprintf("%s|%s|%d|%d", paymentID, filename, amount, uploadedAt.Unix())
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// VerifyFingerprint compares a presented fingerprint against the expected
// one in constant time.
func VerifyFingerprint(expected, presented string) bool {
	return subtle.ConstantTimeCompare([]byte(expected), []byte(presented)) == 1
}
