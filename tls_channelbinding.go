// SPDX-License-Identifier: Apache-2.0

package sasl

import (
	"crypto/tls"
	"crypto/x509"

	cb "github.com/golang-auth/go-channelbinding"
)

// TLSUniqueChannelBinding derives a "tls-unique" [ChannelBinding] (RFC 5929
// §3) from a completed TLS handshake, for use with [WithChannelBinding] by
// mechanisms negotiated over that connection (SCRAM-*-PLUS, GS2-bridged
// mechanisms).
func TLSUniqueChannelBinding(state tls.ConnectionState) (ChannelBinding, error) {
	data, err := cb.MakeTLSChannelBinding(state, nil, cb.TLSChannelBindingUnique)
	if err != nil {
		return ChannelBinding{}, &Error{Kind: KindCryptoError, Cause: err}
	}
	return ChannelBinding{Name: "tls-unique", Data: data}, nil
}

// TLSServerEndpointChannelBinding derives a "tls-server-end-point"
// [ChannelBinding] (RFC 5929 §4) from the server's leaf certificate.
func TLSServerEndpointChannelBinding(state tls.ConnectionState, serverCert *x509.Certificate) (ChannelBinding, error) {
	data, err := cb.MakeTLSChannelBinding(state, serverCert, cb.TLSChannelBindingEndpoint)
	if err != nil {
		return ChannelBinding{}, &Error{Kind: KindCryptoError, Cause: err}
	}
	return ChannelBinding{Name: "tls-server-end-point", Data: data}, nil
}
