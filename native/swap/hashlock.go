package swap

import (
	"crypto/subtle"
	"fmt"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

const (
	// SecretLength is the exact preimage size in bytes. Fixing the length
	// closes off length-extension games and keeps commitments uniform.
	SecretLength = 32
	// MinTimelock is the minimum runway between order submission and the
	// maker-side expiry.
	MinTimelock = time.Hour
	// TakerTimelockBuffer is how much earlier the taker escrow expires
	// relative to the maker escrow. The gap gives the taker time to claim
	// the maker leg with the revealed secret before their own refund window
	// opens.
	TakerTimelockBuffer = 30 * time.Minute
)

// Commit derives the hashlock commitment for a secret preimage.
func Commit(secret []byte) [32]byte {
	return ethcrypto.Keccak256Hash(secret)
}

// Verify reports whether the preimage opens the commitment. Comparison is
// constant time so verification leaks nothing about partial matches.
func Verify(secret []byte, commitment [32]byte) bool {
	if len(secret) != SecretLength {
		return false
	}
	digest := Commit(secret)
	return subtle.ConstantTimeCompare(digest[:], commitment[:]) == 1
}

// EncodeTimelock converts a duration from now into an absolute Unix expiry,
// rejecting windows shorter than MinTimelock.
func EncodeTimelock(now time.Time, d time.Duration) (int64, error) {
	if d < MinTimelock {
		return 0, fmt.Errorf("%w: timelock %s below minimum %s", ErrInvalidInput, d, MinTimelock)
	}
	return now.Add(d).Unix(), nil
}
