// Package wallet maps Telegram user identifiers to deterministic
// blockchain-style addresses. The mapping is a pure function of the
// identifier so the bot, the mini app frontend and this service all agree
// on it without sharing state.
package wallet

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

// seedNamespace salts the derivation so addresses are specific to this
// application. Changing it invalidates every previously derived address.
const seedNamespace = "first-frame-wallet-v1:"

// ErrAddressNotFound is returned when no identifier in the search range
// derives the target address.
var ErrAddressNotFound = errors.New("wallet: no identifier derives the target address")

// DeriveAddress computes the canonical address for a user identifier:
// keccak-256 over the salted decimal identifier, rendered as 0x plus the
// first 40 hex characters of the digest, lower-case.
func DeriveAddress(id int64) string {
	digest := crypto.Keccak256([]byte(seedNamespace + strconv.FormatInt(id, 10)))
	return "0x" + fmt.Sprintf("%x", digest)[:40]
}

// Equal compares two addresses case-insensitively.
func Equal(a, b string) bool {
	return strings.EqualFold(a, b)
}

// FindIdentifier searches [max(1, hint-radius), hint+radius] in ascending
// order for the identifier whose derived address matches target. The output
// space is not invertible, so recovering an identifier from an address is a
// linear scan; cost is O(radius) keccak computations. Callers should prefer
// a persisted wallet binding and treat this as a backfill path.
func FindIdentifier(target string, hint int64, radius int64) (int64, error) {
	if radius < 0 {
		return 0, ErrAddressNotFound
	}
	lo := hint - radius
	if lo < 1 {
		lo = 1
	}
	hi := hint + radius
	for id := lo; id <= hi; id++ {
		if Equal(DeriveAddress(id), target) {
			return id, nil
		}
	}
	return 0, ErrAddressNotFound
}
