package ingest

import (
	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// ValidSignature reports whether s decodes as a 64-byte base58 transaction
// signature.
func ValidSignature(s string) bool {
	decoded, err := base58.Decode(s)
	if err != nil {
		return false
	}
	return len(decoded) == 64
}

// IsOnCurveAddress reports whether s is a 32-byte base58 address on the
// ed25519 curve. User wallets are on-curve; program-derived addresses are
// not, so this filters fee payers that cannot be holder wallets.
func IsOnCurveAddress(s string) bool {
	decoded, err := base58.Decode(s)
	if err != nil || len(decoded) != 32 {
		return false
	}
	_, err = new(edwards25519.Point).SetBytes(decoded)
	return err == nil
}
