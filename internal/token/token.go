// Package token frames redemption hashes for scannable credentials.
package token

import (
	"strings"

	apperrors "vanta-access/pkg/app_errors"

	"github.com/google/uuid"
)

const Prefix = "VANTA_AUTH:"

const hashLength = 12

// Format wraps a hash in the scannable framing.
func Format(hash string) string {
	return Prefix + strings.ToUpper(hash)
}

// Parse extracts the uppercased hash from a scanned string. Anything that
// does not carry the framing marker is rejected.
func Parse(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, Prefix) {
		return "", apperrors.ErrInvalidToken
	}
	hash := strings.TrimSpace(strings.TrimPrefix(raw, Prefix))
	if hash == "" {
		return "", apperrors.ErrInvalidToken
	}
	return NormalizeHash(hash), nil
}

func NormalizeHash(hash string) string {
	return strings.ToUpper(strings.TrimSpace(hash))
}

// NewHash returns a random uppercase hash. Uniqueness per event is enforced
// by the store; callers retry on collision.
func NewHash() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return strings.ToUpper(id[:hashLength])
}
