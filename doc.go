// SPDX-License-Identifier: Apache-2.0

/*
Package sasl implements a pluggable Simple Authentication and Security Layer
(RFC 4422) framework.

A hosting protocol (IMAP, SMTP, XMPP, LDAP, AMQP, ...) decides when to begin
an authentication exchange, transports the opaque byte tokens a [Session]
produces, and decides when to end it. This package owns only the state
machine of a single exchange and the mechanisms themselves; it never touches
a socket.

A client starts an exchange with [ClientStart], a server with [ServerStart].
Both sides then call [Session.Step] in a loop, exchanging the bytes it
produces with the peer over whatever transport the embedder provides, until
the session reaches [StateFinished] or [StateErrored]. If the negotiated
mechanism installs a security layer, [Session.Encode] and [Session.Decode]
wrap and unwrap application payloads after the exchange completes.

Mechanisms demand credentials and other per-session data through the
[Property] system, which is satisfied by an embedder-supplied [Callback].
*/
package sasl
