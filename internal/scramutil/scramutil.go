// SPDX-License-Identifier: Apache-2.0

// Package scramutil implements the hash-parameterized primitives shared by
// every SCRAM variant: salted-password/client-key/stored-key/server-key
// derivation (RFC 5802 §3), the RFC 5802 saslname escaping rules, nonce
// generation, and constant-time signature comparison.
package scramutil

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"hash"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// Variant parameterizes SCRAM over a hash algorithm.
type Variant struct {
	Name string
	New  func() hash.Hash
	Size int
}

var (
	SHA1   = Variant{Name: "SHA-1", New: sha1.New, Size: sha1.Size}
	SHA256 = Variant{Name: "SHA-256", New: sha256.New, Size: sha256.Size}
)

// HMAC computes HMAC-H(key, data).
func (v Variant) HMAC(key, data []byte) []byte {
	m := hmac.New(v.New, key)
	m.Write(data)
	return m.Sum(nil)
}

// Hash computes H(data).
func (v Variant) Hash(data []byte) []byte {
	h := v.New()
	h.Write(data)
	return h.Sum(nil)
}

// SaltedPassword derives PBKDF2-HMAC-H(password, salt, iter, dkLen=H.outlen).
func (v Variant) SaltedPassword(password, salt []byte, iter int) []byte {
	return pbkdf2.Key(password, salt, iter, v.Size, v.New)
}

// ClientKey derives HMAC-H(saltedPassword, "Client Key").
func (v Variant) ClientKey(saltedPassword []byte) []byte {
	return v.HMAC(saltedPassword, []byte("Client Key"))
}

// StoredKey derives H(clientKey).
func (v Variant) StoredKey(clientKey []byte) []byte {
	return v.Hash(clientKey)
}

// ServerKey derives HMAC-H(saltedPassword, "Server Key").
func (v Variant) ServerKey(saltedPassword []byte) []byte {
	return v.HMAC(saltedPassword, []byte("Server Key"))
}

// ClientSignature derives HMAC-H(storedKey, authMessage).
func (v Variant) ClientSignature(storedKey, authMessage []byte) []byte {
	return v.HMAC(storedKey, authMessage)
}

// ServerSignature derives HMAC-H(serverKey, authMessage).
func (v Variant) ServerSignature(serverKey, authMessage []byte) []byte {
	return v.HMAC(serverKey, authMessage)
}

// XOR xors a and b, which must be the same length, returning a new slice.
func XOR(a, b []byte) []byte {
	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i]
	}
	return out
}

// ConstantTimeEqual compares two byte slices without leaking timing
// information about where they first differ, as required for every
// HMAC/MAC comparison in the framework (DIGEST-MD5 rspauth, SCRAM v=,
// GSSAPI inputs).
func ConstantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}

// GenerateNonce returns n cryptographically random bytes, base64-encoded,
// for use as a SCRAM client/server nonce or DIGEST-MD5 cnonce.
func GenerateNonce(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// EscapeSaslname applies the RFC 5802 §5.1 saslname escaping: '=' becomes
// "=3D" and ',' becomes "=2C", in a single left-to-right pass so a literal
// '=' in the input is never reinterpreted as the start of an escape
// sequence produced by escaping a neighboring ','.
func EscapeSaslname(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '=':
			b.WriteString("=3D")
		case ',':
			b.WriteString("=2C")
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// UnescapeSaslname reverses [EscapeSaslname]. It returns an error via the
// bool result if an '=' is followed by anything other than "2C" or "3D".
func UnescapeSaslname(s string) (string, bool) {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '=' {
			b.WriteByte(s[i])
			continue
		}
		if i+2 >= len(s) {
			return "", false
		}
		switch s[i+1 : i+3] {
		case "2C":
			b.WriteByte(',')
		case "3D":
			b.WriteByte('=')
		default:
			return "", false
		}
		i += 2
	}
	return b.String(), true
}
