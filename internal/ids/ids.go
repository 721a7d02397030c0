// Package ids validates and normalizes the three envelope id forms the
// core accepts for event_id/causation_id/correlation_id: ULID, hyphenated
// UUID, and bare (unhyphenated) UUID.
package ids

import (
	"crypto/rand"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewULID mints a fresh, monotonically-increasing ULID string (upper-case
// Crockford base32, 26 chars).
func NewULID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// Normalize validates id against the three accepted envelope-id forms and
// returns its canonical form: ULIDs are upper-cased, UUIDs (hyphenated or
// bare) are normalized to lower-case hyphenated form. An error is returned
// for anything else, including ULIDs using excluded Crockford characters
// (I, L, O, U).
func Normalize(id string) (string, error) {
	if len(id) == 26 {
		if u, err := normalizeULID(id); err == nil {
			return u, nil
		}
	}
	if looksLikeBareUUID(id) {
		hyphenated := fmt.Sprintf("%s-%s-%s-%s-%s", id[0:8], id[8:12], id[12:16], id[16:20], id[20:32])
		if u, err := uuid.Parse(hyphenated); err == nil {
			return u.String(), nil
		}
	}
	if len(id) == 36 {
		if u, err := uuid.Parse(id); err == nil {
			return u.String(), nil
		}
	}
	return "", fmt.Errorf("id %q is not a valid ULID or UUID", id)
}

func looksLikeBareUUID(id string) bool {
	if len(id) != 32 {
		return false
	}
	for _, r := range id {
		if !isHexDigit(r) {
			return false
		}
	}
	return true
}

func isHexDigit(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}

// excludedCrockford are the Crockford base32 characters ULID must never
// contain, because they are visually ambiguous with digits.
const excludedCrockford = "ILOUilou"

func normalizeULID(id string) (string, error) {
	upper := strings.ToUpper(id)
	if strings.ContainsAny(id, excludedCrockford) {
		return "", fmt.Errorf("ULID %q contains excluded Crockford character", id)
	}
	if _, err := ulid.ParseStrict(upper); err != nil {
		return "", err
	}
	return upper, nil
}
