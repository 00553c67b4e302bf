// SPDX-License-Identifier: Apache-2.0

// Package gs2 implements the RFC 5801 GS2 header grammar shared by SCRAM,
// OAUTHBEARER, OPENID20 and SAML20.
//
//	gs2-header    = gs2-cbind-flag "," [ authzid ] ","
//	gs2-cbind-flag = "p=" cb-name / "n" / "y"
//	authzid        = "a=" saslname
package gs2

import (
	"strings"

	"github.com/golang-auth/go-sasl/internal/scramutil"
)

// CBFlag is the channel-binding disposition advertised in a GS2 header.
type CBFlag uint8

const (
	// NotSupported ("n,") means the client does not support channel
	// binding at all.
	NotSupported CBFlag = iota
	// SupportedNotUsed ("y,") means the client supports channel binding
	// but the mechanism in use is not the -PLUS variant.
	SupportedNotUsed
	// Used ("p=cb-name,") means the client is binding to cb-name.
	Used
)

// Header is a parsed GS2 header.
type Header struct {
	Flag       CBFlag
	CBName     string
	AuthzID    string
	HasAuthzID bool
	// Raw holds exactly the bytes of the header as it appeared on the
	// wire (both trailing commas included), for use as the gs2-header
	// component of a channel-binding input.
	Raw string
}

// Build renders a GS2 header for flag/cbName/authzid.
func Build(flag CBFlag, cbName string, authzid string, hasAuthzID bool) string {
	var b strings.Builder
	switch flag {
	case NotSupported:
		b.WriteString("n,")
	case SupportedNotUsed:
		b.WriteString("y,")
	case Used:
		b.WriteString("p=")
		b.WriteString(cbName)
		b.WriteByte(',')
	}
	if hasAuthzID {
		b.WriteString("a=")
		b.WriteString(scramutil.EscapeSaslname(authzid))
	}
	b.WriteByte(',')
	return b.String()
}

// Parse reads a GS2 header off the front of data and returns the header
// plus the remainder of data following it.
func Parse(data []byte) (Header, []byte, error) {
	s := string(data)

	var flag CBFlag
	var cbName string
	var rest string

	switch {
	case strings.HasPrefix(s, "n,"):
		flag = NotSupported
		rest = s[2:]
	case strings.HasPrefix(s, "y,"):
		flag = SupportedNotUsed
		rest = s[2:]
	case strings.HasPrefix(s, "p="):
		idx := strings.IndexByte(s, ',')
		if idx < 0 {
			return Header{}, nil, errMalformed
		}
		flag = Used
		cbName = s[2:idx]
		rest = s[idx+1:]
	default:
		return Header{}, nil, errMalformed
	}

	headerLen := len(s) - len(rest)

	var authzid string
	hasAuthzID := false
	if strings.HasPrefix(rest, "a=") {
		idx := strings.IndexByte(rest, ',')
		if idx < 0 {
			return Header{}, nil, errMalformed
		}
		escaped := rest[2:idx]
		unescaped, ok := scramutil.UnescapeSaslname(escaped)
		if !ok {
			return Header{}, nil, errMalformed
		}
		authzid = unescaped
		hasAuthzID = true
		rest = rest[idx+1:]
		headerLen = len(s) - len(rest)
	} else if strings.HasPrefix(rest, ",") {
		rest = rest[1:]
		headerLen = len(s) - len(rest)
	} else {
		return Header{}, nil, errMalformed
	}

	h := Header{
		Flag:       flag,
		CBName:     cbName,
		AuthzID:    authzid,
		HasAuthzID: hasAuthzID,
		Raw:        s[:headerLen],
	}
	return h, []byte(rest), nil
}

type malformedError struct{}

func (malformedError) Error() string { return "gs2: malformed header" }

var errMalformed = malformedError{}
