// SPDX-License-Identifier: Apache-2.0

// Package mechlist implements the space-separated mechanism-name list
// format used by protocol adapters (IMAP CAPABILITY, SMTP AUTH) and by the
// SCRAM downgrade-protection check, grounded on the source's Mechanisms
// helper (src/mechanisms.rs in original_source).
package mechlist

import "strings"

// Parse splits a space-separated mechanism list into its elements.
func Parse(s string) []string {
	return strings.Fields(s)
}

// Join renders names as a single space-separated list.
func Join(names []string) string {
	return strings.Join(names, " ")
}

// Contains reports whether name appears in the space-separated list s,
// compared case-insensitively as mechanism names are conventionally
// transmitted upper-case but some peers send them lower-case.
func Contains(s, name string) bool {
	for _, m := range Parse(s) {
		if strings.EqualFold(m, name) {
			return true
		}
	}
	return false
}
