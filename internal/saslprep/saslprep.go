// SPDX-License-Identifier: Apache-2.0

// Package saslprep implements RFC 4013 SASLprep on top of golang.org/x/text's
// PRECIS framework, the ecosystem's Unicode normalization/bidi/prohibited-
// character tables. It is used everywhere a mechanism feeds a user-supplied
// string into a cryptographic derivation (SCRAM, DIGEST-MD5, CRAM-MD5).
package saslprep

import (
	"errors"

	"golang.org/x/text/secure/precis"
)

// ErrProhibited is returned when s contains a code point SASLprep
// prohibits (control characters, unassigned code points, ...).
var ErrProhibited = errors.New("saslprep: input contains a prohibited code point")

// profile is PRECIS's OpaqueString profile: case-preserving, bidi and
// prohibited-character rules equivalent to RFC 4013 applied to passwords;
// it is also correct for the authcid/authzid/realm strings this library
// prepares, none of which need case folding.
var profile = precis.OpaqueString

// Prepare normalizes s per RFC 4013. An empty result after normalization of
// a non-empty input is itself a saslprep failure, mirroring the source
// implementation's rejection of passwords/usernames that normalize to
// nothing.
func Prepare(s string) (string, error) {
	out, err := profile.String(s)
	if err != nil {
		return "", ErrProhibited
	}
	if out == "" && s != "" {
		return "", ErrProhibited
	}
	return out, nil
}
