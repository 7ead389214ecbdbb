package capture

import (
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/cory-johannsen/tepache/internal/apperr"
)

// SenderIdentity derives stable user ids from SMS sender phone numbers so raw
// numbers never reach the store.
type SenderIdentity struct {
	key []byte
}

// NewSenderIdentity creates a SenderIdentity keyed with key.
//
// Precondition: len(key) <= blake2b.Size.
// Postcondition: Returns an error when key is too long. An empty key yields unkeyed hashes.
func NewSenderIdentity(key string) (SenderIdentity, error) {
	if len(key) > blake2b.Size {
		return SenderIdentity{}, fmt.Errorf("sms identity key must be at most %d bytes, got %d", blake2b.Size, len(key))
	}
	return SenderIdentity{key: []byte(key)}, nil
}

// UID returns the user id for phone. Formatting characters are ignored, so
// "+1 (555) 010-0000" and "+15550100000" map to the same id.
//
// Postcondition: Returns a ValidationError when phone has no digits.
func (s SenderIdentity) UID(phone string) (string, error) {
	normalized := NormalizePhone(phone)
	if normalized == "" || normalized == "+" {
		return "", apperr.Validation("sender phone number is required")
	}
	h, err := blake2b.New256(s.key)
	if err != nil {
		return "", fmt.Errorf("creating sender hash: %w", err)
	}
	h.Write([]byte(normalized))
	return "sms:" + hex.EncodeToString(h.Sum(nil)), nil
}

// NormalizePhone keeps a leading '+' and the digits of phone.
func NormalizePhone(phone string) string {
	phone = strings.TrimSpace(phone)
	var b strings.Builder
	for i, r := range phone {
		switch {
		case r == '+' && i == 0:
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		}
	}
	return b.String()
}
