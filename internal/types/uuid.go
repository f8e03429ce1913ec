package types

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// Entity id prefixes. Ids look like "ba_01J8K2M3N4P5Q6R7S8T9V0W1X2".
const (
	UUID_PREFIX_BILLING_ACCOUNT  = "ba"
	UUID_PREFIX_PAYMENT_FAILURE  = "pf"
	UUID_PREFIX_TRANSACTION      = "txn"
	UUID_PREFIX_DISPUTE          = "disp"
	UUID_PREFIX_DISPUTE_EVIDENCE = "dev"
	UUID_PREFIX_DISPUTE_WORKFLOW = "dwf"
	UUID_PREFIX_WEBHOOK_EVENT    = "whe"
	UUID_PREFIX_USER             = "user"
	UUID_PREFIX_REQUEST          = "req"
)

// GenerateUUID returns a k-sortable unique identifier
func GenerateUUID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now().UTC()), ulid.DefaultEntropy()).String()
}

// GenerateUUIDWithPrefix returns a k-sortable unique identifier
// with a prefix ex ba_0ujsszwN8NRY24YaXiTIE2VWDTS
func GenerateUUIDWithPrefix(prefix string) string {
	if prefix == "" {
		return GenerateUUID()
	}
	return prefix + "_" + GenerateUUID()
}

// GenerateSecureToken returns a hex-free random string of n bytes encoded as
// a ULID-style string, for non-id randomness needs.
func GenerateSecureToken() string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(time.Now().UTC()), entropy).String()
}
