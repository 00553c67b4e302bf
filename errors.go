// SPDX-License-Identifier: Apache-2.0

package sasl

import (
	"errors"
	"fmt"
)

// Kind classifies a [Error] for programmatic dispatch with errors.Is. See
// the kind groups documented on the constants below.
type Kind uint8

const (
	_ Kind = iota

	// Input errors.
	KindUnknownMechanism
	KindMechanismParseError
	KindBase64DecodeError
	KindInputDataRequired
	KindBadFormat

	// Credential errors.
	KindNoProperty
	KindNoCallback
	KindNoValidate
	KindNoSecurityLayer
	KindNoSharedMechanism

	// Authentication outcomes.
	KindAuthenticationFailure
	KindServerError
	KindBadNonce
	KindServerSignatureMismatch

	// Protocol integrity.
	KindIntegrityError
	KindConfidentialityError
	KindMechanismDone
	KindChannelBindingDowngrade
	KindBadContext

	// Cryptographic / platform.
	KindCryptoError
	KindSaslprepError

	// GSSAPI-specific: one kind per failing GSS call site so observability
	// can pinpoint the step, per spec §7.
	KindGSSInitSecContext
	KindGSSAcceptSecContext
	KindGSSWrap
	KindGSSUnwrap
	KindGSSGetMIC
	KindGSSVerifyMIC
)

var kindStrings = map[Kind]string{
	KindUnknownMechanism:        "unknown mechanism",
	KindMechanismParseError:     "mechanism encountered invalid input data",
	KindBase64DecodeError:       "base64 decode error",
	KindInputDataRequired:       "input data is required at this step",
	KindBadFormat:               "badly formatted token",
	KindNoProperty:              "required property is not set",
	KindNoCallback:              "callback could not provide the requested property",
	KindNoValidate:              "no validation callback installed",
	KindNoSecurityLayer:         "no security layer is installed",
	KindNoSharedMechanism:       "no shared mechanism found to use",
	KindAuthenticationFailure:   "authentication failed",
	KindServerError:             "server reported an error",
	KindBadNonce:                "nonce did not match the expected shape",
	KindServerSignatureMismatch: "server signature did not verify",
	KindIntegrityError:          "integrity check failed",
	KindConfidentialityError:    "confidentiality unwrap failed",
	KindMechanismDone:           "mechanism has already finished or errored",
	KindChannelBindingDowngrade: "peer signaled channel binding was not used when this side requires it",
	KindBadContext:              "negotiated security context cannot satisfy the requested property",
	KindCryptoError:             "cryptographic operation failed",
	KindSaslprepError:           "saslprep could not normalize the input",
	KindGSSInitSecContext:       "gss_init_sec_context failed",
	KindGSSAcceptSecContext:     "gss_accept_sec_context failed",
	KindGSSWrap:                 "gss_wrap failed",
	KindGSSUnwrap:               "gss_unwrap failed",
	KindGSSGetMIC:               "gss_getmic failed",
	KindGSSVerifyMIC:            "gss_verifymic failed",
}

func (k Kind) String() string {
	if s, ok := kindStrings[k]; ok {
		return s
	}
	return "unknown error kind"
}

// Error is the concrete error type returned by every exported operation in
// this package. Callers should use errors.Is against the Kind... sentinel
// errors below, or inspect Kind directly.
type Error struct {
	Kind Kind
	// Mechanism is set for KindUnknownMechanism.
	Mechanism string
	// Property is set for KindNoProperty / KindNoCallback.
	Property Property
	// Validation is set for KindNoValidate.
	Validation Validation
	// Offender is the offending byte for KindMechanismParseError-adjacent
	// formatting errors that want to report position/content; optional.
	Detail string
	// Cause is the wrapped underlying error, if any (base64 decode errors,
	// GSSAPI call errors, ...).
	Cause error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	switch e.Kind {
	case KindUnknownMechanism:
		msg = fmt.Sprintf("sasl: mechanism %q is not implemented", e.Mechanism)
	case KindNoProperty:
		msg = fmt.Sprintf("sasl: required property %s is not set", e.Property)
	case KindNoCallback:
		msg = fmt.Sprintf("sasl: callback could not provide requested property %s", e.Property)
	case KindNoValidate:
		msg = fmt.Sprintf("sasl: no validation callback for %s installed", e.Validation)
	case KindAuthenticationFailure, KindServerError:
		if e.Detail != "" {
			msg = fmt.Sprintf("sasl: %s: %s", msg, e.Detail)
		}
	default:
		if e.Detail != "" {
			msg = fmt.Sprintf("sasl: %s: %s", msg, e.Detail)
		} else {
			msg = "sasl: " + msg
		}
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports Kind-based equality so callers can write
// errors.Is(err, sasl.ErrMechanismDone) style checks against sentinels that
// carry only a Kind.
func (e *Error) Is(target error) bool {
	var te *Error
	if errors.As(target, &te) && te.Cause == nil && te.Mechanism == "" && te.Property == 0 && te.Validation == "" {
		return e.Kind == te.Kind
	}
	return false
}

func newErr(kind Kind) *Error { return &Error{Kind: kind} }

// Sentinels usable with errors.Is(err, sasl.ErrXxx) for the Kinds that carry
// no extra context.
var (
	ErrMechanismParseError     = newErr(KindMechanismParseError)
	ErrInputDataRequired       = newErr(KindInputDataRequired)
	ErrBadFormat               = newErr(KindBadFormat)
	ErrNoSecurityLayer         = newErr(KindNoSecurityLayer)
	ErrNoSharedMechanism       = newErr(KindNoSharedMechanism)
	ErrAuthenticationFailure   = newErr(KindAuthenticationFailure)
	ErrBadNonce                = newErr(KindBadNonce)
	ErrServerSignatureMismatch = newErr(KindServerSignatureMismatch)
	ErrIntegrityError          = newErr(KindIntegrityError)
	ErrConfidentialityError    = newErr(KindConfidentialityError)
	ErrMechanismDone           = newErr(KindMechanismDone)
	ErrCryptoError             = newErr(KindCryptoError)
	ErrSaslprepError           = newErr(KindSaslprepError)
	ErrChannelBindingDowngrade = newErr(KindChannelBindingDowngrade)
	ErrBadContext              = newErr(KindBadContext)
)

func errUnknownMechanism(name string) error {
	return &Error{Kind: KindUnknownMechanism, Mechanism: name}
}

func errNoProperty(p Property) error {
	return &Error{Kind: KindNoProperty, Property: p}
}

func errNoCallback(p Property) error {
	return &Error{Kind: KindNoCallback, Property: p}
}

func errNoValidate(v Validation) error {
	return &Error{Kind: KindNoValidate, Validation: v}
}

func errAuthenticationFailure(reason string) error {
	return &Error{Kind: KindAuthenticationFailure, Detail: reason}
}

func errServer(detail string) error {
	return &Error{Kind: KindServerError, Detail: detail}
}

func errBadFormat(detail string) error {
	return &Error{Kind: KindBadFormat, Detail: detail}
}

func errBase64(cause error) error {
	return &Error{Kind: KindBase64DecodeError, Cause: cause}
}

func errGSS(kind Kind, cause error) error {
	return &Error{Kind: kind, Cause: cause}
}
