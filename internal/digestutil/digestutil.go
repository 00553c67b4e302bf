// SPDX-License-Identifier: Apache-2.0

// Package digestutil implements the RFC 2831 §7.2 comma-separated
// key=value attribute grammar used by DIGEST-MD5 challenges and responses,
// via a small hand-rolled tokenizer tolerant of linear whitespace and
// quoted-string values.
package digestutil

import (
	"strings"
)

// Pair is one key=value attribute, in the order it appeared on the wire.
type Pair struct {
	Key   string
	Value string
}

// ParsePairs tokenizes s into an ordered list of key/value pairs. Quoted
// values have their surrounding quotes stripped and backslash-escapes
// resolved; unquoted (token) values are returned verbatim.
func ParsePairs(s string) ([]Pair, error) {
	var pairs []Pair
	i := 0
	n := len(s)

	skipLWS := func() {
		for i < n && (s[i] == ' ' || s[i] == '\t' || s[i] == '\r' || s[i] == '\n') {
			i++
		}
	}

	for {
		skipLWS()
		if i >= n {
			break
		}

		start := i
		for i < n && s[i] != '=' {
			i++
		}
		if i >= n {
			return nil, errMalformed
		}
		key := strings.TrimSpace(s[start:i])
		i++ // consume '='
		skipLWS()

		var value string
		if i < n && s[i] == '"' {
			i++
			var b strings.Builder
			for i < n && s[i] != '"' {
				if s[i] == '\\' && i+1 < n {
					i++
				}
				b.WriteByte(s[i])
				i++
			}
			if i >= n {
				return nil, errMalformed
			}
			i++ // consume closing quote
			value = b.String()
		} else {
			start = i
			for i < n && s[i] != ',' {
				i++
			}
			value = strings.TrimSpace(s[start:i])
		}

		pairs = append(pairs, Pair{Key: key, Value: value})

		skipLWS()
		if i >= n {
			break
		}
		if s[i] != ',' {
			return nil, errMalformed
		}
		i++ // consume comma
	}

	return pairs, nil
}

// Get returns the first value for key, if present.
func Get(pairs []Pair, key string) (string, bool) {
	for _, p := range pairs {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// NeedsQuoting reports whether value must be written as a quoted-string
// because it is empty or contains characters not valid in a bare token.
func NeedsQuoting(value string) bool {
	if value == "" {
		return true
	}
	for i := 0; i < len(value); i++ {
		c := value[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-' || c == '.' || c == '_':
		default:
			return true
		}
	}
	return false
}

// WriteQuoted escapes value for use inside a quoted-string.
func WriteQuoted(value string) string {
	var b strings.Builder
	b.WriteByte('"')
	for i := 0; i < len(value); i++ {
		if value[i] == '"' || value[i] == '\\' {
			b.WriteByte('\\')
		}
		b.WriteByte(value[i])
	}
	b.WriteByte('"')
	return b.String()
}

type malformedError struct{}

func (malformedError) Error() string { return "digestutil: malformed attribute list" }

var errMalformed = malformedError{}
