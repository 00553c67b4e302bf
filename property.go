// SPDX-License-Identifier: Apache-2.0

package sasl

// Property identifies a typed slot in a session's [Context]. Properties
// split into inputs the embedder supplies (AuthId, Password, ...) and
// outputs a mechanism produces while it runs (ScramIter, ScramSalt, ...).
type Property uint8

const (
	_ Property = iota

	PropAuthId
	PropAuthzId
	PropPassword
	PropPasswordHash
	PropRealm
	PropService
	PropHostname
	PropAnonymousToken
	PropOAuthBearerToken
	PropQoP
	PropCipher

	PropChannelBindingTLSUnique
	PropChannelBindingTLSExporter

	PropScramIter
	PropScramSalt
	PropScramSaltedPassword
	PropScramStoredKey
	PropScramServerKey

	PropDigestMD5HashedPassword

	PropGSSAPIDisplayName

	PropOpenID20RedirectURL
	PropOpenID20OutcomeData
	PropSaml20RedirectURL
	PropSaml20IdPIdentifier
	PropAuthenticateInBrowser
)

var propertyNames = map[Property]string{
	PropAuthId:                     "AuthId",
	PropAuthzId:                    "AuthzId",
	PropPassword:                   "Password",
	PropPasswordHash:               "PasswordHash",
	PropRealm:                      "Realm",
	PropService:                    "Service",
	PropHostname:                   "Hostname",
	PropAnonymousToken:             "AnonymousToken",
	PropOAuthBearerToken:           "OAuthBearerToken",
	PropQoP:                        "QoP",
	PropCipher:                     "Cipher",
	PropChannelBindingTLSUnique:    "ChannelBindingTLSUnique",
	PropChannelBindingTLSExporter:  "ChannelBindingTLSExporter",
	PropScramIter:                  "ScramIter",
	PropScramSalt:                  "ScramSalt",
	PropScramSaltedPassword:        "ScramSaltedPassword",
	PropScramStoredKey:             "ScramStoredKey",
	PropScramServerKey:             "ScramServerKey",
	PropDigestMD5HashedPassword:    "DigestMD5HashedPassword",
	PropGSSAPIDisplayName:          "GSSAPIDisplayName",
	PropOpenID20RedirectURL:        "OpenID20RedirectUrl",
	PropOpenID20OutcomeData:        "OpenID20OutcomeData",
	PropSaml20RedirectURL:          "Saml20RedirectUrl",
	PropSaml20IdPIdentifier:        "Saml20IdPIdentifier",
	PropAuthenticateInBrowser:      "AuthenticateInBrowser",
}

func (p Property) String() string {
	if s, ok := propertyNames[p]; ok {
		return s
	}
	return "UnknownProperty"
}

// Key is a compile-time-typed handle onto a [Property]. Every Property has
// exactly one Key of exactly one type; this is what makes the Context a
// mapping from tag to the tag's static value type rather than an untyped
// bag, per the framework's no-type-confusion invariant.
type Key[T any] struct{ tag Property }

func (k Key[T]) Property() Property { return k.tag }

// Typed keys for every property defined by the framework.
var (
	AuthId           = Key[string]{PropAuthId}
	AuthzId          = Key[string]{PropAuthzId}
	Password         = Key[string]{PropPassword}
	PasswordHash     = Key[string]{PropPasswordHash}
	Realm            = Key[string]{PropRealm}
	Service          = Key[string]{PropService}
	Hostname         = Key[string]{PropHostname}
	AnonymousToken   = Key[string]{PropAnonymousToken}
	OAuthBearerToken = Key[string]{PropOAuthBearerToken}
	// QoP carries the callback's preference order as a comma-separated
	// list, e.g. "auth-conf,auth-int,auth".
	QoP   = Key[string]{PropQoP}
	Cipher = Key[string]{PropCipher}

	ChannelBindingTLSUnique   = Key[[]byte]{PropChannelBindingTLSUnique}
	ChannelBindingTLSExporter = Key[[]byte]{PropChannelBindingTLSExporter}

	ScramIter          = Key[int]{PropScramIter}
	ScramSalt          = Key[[]byte]{PropScramSalt}
	ScramSaltedPassword = Key[[]byte]{PropScramSaltedPassword}
	ScramStoredKey     = Key[[]byte]{PropScramStoredKey}
	ScramServerKey     = Key[[]byte]{PropScramServerKey}

	DigestMD5HashedPassword = Key[[]byte]{PropDigestMD5HashedPassword}

	GSSAPIDisplayName = Key[string]{PropGSSAPIDisplayName}

	OpenID20RedirectURL   = Key[string]{PropOpenID20RedirectURL}
	OpenID20OutcomeData   = Key[string]{PropOpenID20OutcomeData}
	Saml20RedirectURL     = Key[string]{PropSaml20RedirectURL}
	Saml20IdPIdentifier   = Key[string]{PropSaml20IdPIdentifier}
	AuthenticateInBrowser = Key[struct{}]{PropAuthenticateInBrowser}
)
