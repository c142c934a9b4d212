// Package identity normalizes customer identifiers and hashes them into the
// opaque keys the rest of the system operates on. Raw phone numbers and
// email addresses never leave this package.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// NormalizePhone strips everything but digits, dropping a leading
// international prefix marker. "+92 300-1234567" and "0092 3001234567"
// collapse to comparable forms only insofar as the caller sends consistent
// country codes; no region inference happens here.
func NormalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	digits = strings.TrimPrefix(digits, "00")
	return strings.TrimLeft(digits, "0")
}

// NormalizeEmail lowercases and trims the address.
func NormalizeEmail(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// Hash produces the salted SHA-256 hex digest of a normalized identifier.
func Hash(salt, normalized string) string {
	sum := sha256.Sum256([]byte(salt + ":" + normalized))
	return hex.EncodeToString(sum[:])
}

// CustomerKey derives the opaque customer key from whichever identifiers the
// order carried. Phone wins over email when both are present, matching how
// COD customers are tracked across stores.
func CustomerKey(salt, phone, email string) (string, error) {
	if p := NormalizePhone(phone); p != "" {
		return Hash(salt, "phone:"+p), nil
	}
	if e := NormalizeEmail(email); e != "" {
		return Hash(salt, "email:"+e), nil
	}
	return "", fmt.Errorf("no usable customer identifier")
}
