// SPDX-License-Identifier: Apache-2.0

package sasl

import (
	"bytes"
	"encoding/base64"
	"io"
)

// State is the lifecycle state of a [Session]. It only ever moves
// Running -> Finished or Running -> Errored.
type State uint8

const (
	StateRunning State = iota
	StateFinished
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateFinished:
		return "finished"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// ChannelBinding pairs a channel-binding type name (e.g. "tls-unique") with
// its opaque data, as produced by the embedder's transport layer. The
// library never computes this value, only consumes it.
type ChannelBinding struct {
	Name string
	Data []byte
}

// Session is one authentication exchange between a client and a server. It
// is not safe for concurrent use; different Sessions may run in parallel
// across goroutines freely.
type Session struct {
	side      Side
	mechName  Mechname
	mech      Mechanism
	state     State
	ctx       *Context
	callback  Callback
	cb        *ChannelBinding
	layer     Mechanism // retained instance, only when HasSecurityLayer
	userData  any
}

// SessionOption configures a [Session] at construction time.
type SessionOption func(*Session)

// WithCallback installs the [Callback] the session will invoke for property
// demands and validation.
func WithCallback(cb Callback) SessionOption {
	return func(s *Session) { s.callback = cb }
}

// WithChannelBinding supplies channel-binding material obtained from the
// transport layer (e.g. TLS tls-unique/tls-exporter), for mechanisms that
// support channel binding (SCRAM-*-PLUS, GS2-bridged mechanisms).
func WithChannelBinding(cb ChannelBinding) SessionOption {
	return func(s *Session) { s.cb = &cb }
}

// ClientStart looks up name in reg, builds a client-side mechanism instance,
// and returns a Session ready to Step.
func ClientStart(reg *Registry, name Mechname, opts ...SessionOption) (*Session, error) {
	return start(reg, name, SideClient, opts)
}

// ServerStart is the server-side analogue of [ClientStart].
func ServerStart(reg *Registry, name Mechname, opts ...SessionOption) (*Session, error) {
	return start(reg, name, SideServer, opts)
}

func start(reg *Registry, name Mechname, side Side, opts []SessionOption) (*Session, error) {
	d, ok := reg.Lookup(name)
	if !ok {
		return nil, errUnknownMechanism(name.String())
	}

	var factory Factory
	if side == SideClient {
		factory = d.NewClient
	} else {
		factory = d.NewServer
	}
	if factory == nil {
		return nil, errUnknownMechanism(name.String())
	}

	s := &Session{
		side:     side,
		mechName: name,
		mech:     factory(),
		state:    StateRunning,
	}
	for _, o := range opts {
		o(s)
	}
	s.ctx = newContext(s)

	return s, nil
}

// Mechanism returns the name of the negotiated mechanism.
func (s *Session) Mechanism() Mechname { return s.mechName }

// State returns the session's current lifecycle state.
func (s *Session) State() State { return s.state }

// AreWeFirst reports whether this side of the exchange is expected to
// produce the first token.
func (s *Session) AreWeFirst(reg *Registry) bool {
	d, ok := reg.Lookup(s.mechName)
	if !ok {
		return false
	}
	return d.First == s.side
}

// ChannelBinding returns the channel-binding material supplied at
// construction time, if any.
func (s *Session) ChannelBinding() (ChannelBinding, bool) {
	if s.cb == nil {
		return ChannelBinding{}, false
	}
	return *s.cb, true
}

// UserData returns the value previously stored with [Session.SetUserData],
// or nil. It is a session-scoped slot for mechanism-private bookkeeping
// that does not belong in the Property/Context system (e.g. OPENID20's
// interim browser-redirect state).
func (s *Session) UserData() any { return s.userData }

// SetUserData installs v as the session's user-data slot.
func (s *Session) SetUserData(v any) { s.userData = v }

// Callback returns the installed callback, or nil.
func (s *Session) Callback() Callback { return s.callback }

// Step advances the authentication exchange by one round trip. input is nil
// when this side has nothing to consume yet (typically the very first call
// on the side that speaks first); it is a non-nil, possibly empty, slice
// otherwise. The returned byte slice, if non-empty, must be sent to the
// peer.
func (s *Session) Step(input []byte) ([]byte, State, error) {
	if s.state != StateRunning {
		return nil, s.state, ErrMechanismDone
	}

	var buf bytes.Buffer
	status, _, err := s.mech.Step(s.ctx, input, &buf)
	if err != nil {
		s.state = StateErrored
		return nil, s.state, err
	}

	if status == StepDone {
		s.state = StateFinished
		if s.mech.HasSecurityLayer() {
			s.layer = s.mech
		}
	}

	return buf.Bytes(), s.state, nil
}

// Step64 is a convenience wrapper for text-based protocols: it
// base64-decodes input and base64-encodes the mechanism's reply.
func (s *Session) Step64(input []byte) ([]byte, State, error) {
	var decoded []byte
	if input != nil {
		d := make([]byte, base64.StdEncoding.DecodedLen(len(input)))
		n, err := base64.StdEncoding.Decode(d, input)
		if err != nil {
			s.state = StateErrored
			return nil, s.state, errBase64(err)
		}
		decoded = d[:n]
	}

	out, state, err := s.Step(decoded)
	if err != nil {
		return nil, state, err
	}

	encoded := make([]byte, base64.StdEncoding.EncodedLen(len(out)))
	base64.StdEncoding.Encode(encoded, out)
	return encoded, state, nil
}

// Encode routes to the negotiated security layer's Encode.
func (s *Session) Encode(input []byte, w io.Writer) (int, error) {
	if s.state != StateFinished || s.layer == nil {
		return 0, ErrNoSecurityLayer
	}
	return s.layer.Encode(input, w)
}

// Decode routes to the negotiated security layer's Decode.
func (s *Session) Decode(input []byte, w io.Writer) (int, error) {
	if s.state != StateFinished || s.layer == nil {
		return 0, ErrNoSecurityLayer
	}
	return s.layer.Decode(input, w)
}

// HasSecurityLayer reports whether a security layer was negotiated.
func (s *Session) HasSecurityLayer() bool { return s.layer != nil }
