// SPDX-License-Identifier: Apache-2.0

package sasl

import "strings"

// Mechname is a validated SASL mechanism name: 1 to 20 bytes drawn from
// upper-case ASCII letters, digits, '-' and '_'. The zero value is not a
// valid Mechname; construct one with [NewMechname].
type Mechname struct {
	name string
}

// MechnameErrorKind classifies why a candidate byte slice failed to become
// a [Mechname].
type MechnameErrorKind uint8

const (
	_ MechnameErrorKind = iota
	// MechnameTooShort means the candidate was empty.
	MechnameTooShort
	// MechnameTooLong means the candidate was longer than 20 bytes.
	MechnameTooLong
	// MechnameInvalidChars means the candidate contained a byte outside
	// [A-Z0-9_-].
	MechnameInvalidChars
)

// MechnameError reports why [NewMechname] rejected its input.
type MechnameError struct {
	Kind MechnameErrorKind
	// Offender is the first rejected byte; only meaningful when
	// Kind == MechnameInvalidChars.
	Offender byte
}

func (e *MechnameError) Error() string {
	switch e.Kind {
	case MechnameTooShort:
		return "sasl: mechanism name is empty"
	case MechnameTooLong:
		return "sasl: mechanism name is longer than 20 bytes"
	case MechnameInvalidChars:
		return "sasl: mechanism name contains invalid byte " + string(rune(e.Offender))
	default:
		return "sasl: invalid mechanism name"
	}
}

// NewMechname validates b and returns the corresponding Mechname. Mechanism
// names are always upper case; callers must not lower-case input before
// calling this constructor.
func NewMechname(b []byte) (Mechname, error) {
	if len(b) == 0 {
		return Mechname{}, &MechnameError{Kind: MechnameTooShort}
	}
	if len(b) > 20 {
		return Mechname{}, &MechnameError{Kind: MechnameTooLong}
	}
	for _, c := range b {
		if !isMechnameByte(c) {
			return Mechname{}, &MechnameError{Kind: MechnameInvalidChars, Offender: c}
		}
	}
	return Mechname{name: string(b)}, nil
}

// MustMechname is like [NewMechname] but panics on error. It exists for
// package-level mechanism registration, where the name is a compile-time
// constant.
func MustMechname(name string) Mechname {
	m, err := NewMechname([]byte(name))
	if err != nil {
		panic(err)
	}
	return m
}

func isMechnameByte(c byte) bool {
	switch {
	case c >= 'A' && c <= 'Z':
		return true
	case c >= '0' && c <= '9':
		return true
	case c == '-' || c == '_':
		return true
	default:
		return false
	}
}

// String returns the mechanism name.
func (m Mechname) String() string { return m.name }

// IsZero reports whether m is the zero Mechname.
func (m Mechname) IsZero() bool { return m.name == "" }

// Equal reports whether m and other name the same mechanism.
func (m Mechname) Equal(other Mechname) bool { return m.name == other.name }

// EqualFold reports whether s, compared case-insensitively, names the same
// mechanism as m. This is useful when parsing mechanism names off the wire
// (e.g. an IMAP CAPABILITY list), which are not guaranteed to be upper case.
func (m Mechname) EqualFold(s string) bool { return strings.EqualFold(m.name, s) }
