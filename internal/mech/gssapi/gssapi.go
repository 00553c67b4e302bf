// SPDX-License-Identifier: Apache-2.0

// Package gssapi implements the GSSAPI mechanism, RFC 4752, bridging a
// github.com/golang-auth/go-gssapi/v3 [gssapi.Provider] into a SASL
// exchange: context establishment followed by the security-layer
// negotiation token, grounded on
// other_examples/16268230_golang-auth-go-sasl__v0-gssapi-gssapi.go.go.
package gssapi

import (
	"io"

	"github.com/golang-auth/go-gssapi/v3"

	sasl "github.com/golang-auth/go-sasl"
)

func init() {
	sasl.Register(sasl.Descriptor{
		Name:      sasl.MustMechname("GSSAPI"),
		Priority:  70,
		First:     sasl.SideClient,
		NewClient: func() sasl.Mechanism { return &client{} },
		NewServer: func() sasl.Mechanism { return &server{} },
	})
}

// SecurityLayer is the RFC 4752 §3.3 security-layer bitmask, carried in
// the first byte of the 4-byte negotiation token. Values are ordered by
// strength (None < Integrity < Confidentiality) so callers can compare
// them directly.
type SecurityLayer uint8

const (
	LayerNone            SecurityLayer = 1 << iota // no security layer
	LayerIntegrity                                 // integrity protection only
	LayerConfidentiality                           // confidentiality and integrity
)

// config is the provider/mechanism configuration an embedder attaches to a
// [sasl.Session] via [WithProvider] and friends, read back from the
// session's user-data slot.
type config struct {
	provider gssapi.Provider
	mech     gssapi.GssMech
	cred     gssapi.Credential
	minLayer SecurityLayer
}

func sessionConfig(s *sasl.Session) *config {
	if c, ok := s.UserData().(*config); ok {
		return c
	}
	c := &config{mech: gssapi.GSS_MECH_KRB5, minLayer: LayerNone}
	s.SetUserData(c)
	return c
}

// WithProvider installs the GSSAPI provider a session's GSSAPI mechanism
// instance uses to establish the security context. It must be supplied for
// both the client and server side.
func WithProvider(p gssapi.Provider) sasl.SessionOption {
	return func(s *sasl.Session) { sessionConfig(s).provider = p }
}

// WithGssMech overrides the default GSS mechanism (GSS_MECH_KRB5) used to
// establish the context.
func WithGssMech(m gssapi.GssMech) sasl.SessionOption {
	return func(s *sasl.Session) { sessionConfig(s).mech = m }
}

// WithCredential supplies a pre-acquired credential instead of letting the
// provider acquire the default one.
func WithCredential(cred gssapi.Credential) sasl.SessionOption {
	return func(s *sasl.Session) { sessionConfig(s).cred = cred }
}

// WithMinimumSecurityLayer requires the negotiated security layer to be at
// least min, per spec.md §4.13/§8: if the peer's offer cannot satisfy this
// floor, the negotiation step fails with [sasl.ErrBadContext] instead of
// silently settling for a weaker layer. The default, LayerNone, accepts
// whatever the peers mutually support.
func WithMinimumSecurityLayer(min SecurityLayer) sasl.SessionOption {
	return func(s *sasl.Session) { sessionConfig(s).minLayer = min }
}

func buildFlags() gssapi.ContextFlag {
	return gssapi.ContextFlagMutual | gssapi.ContextFlagSequence | gssapi.ContextFlagInteg | gssapi.ContextFlagConf
}

// encode24 writes n as a 3-byte big-endian quantity into b[1:4], per the
// RFC 4752 §3.3 maximum-output-message-size field.
func encode24(b []byte, n uint32) {
	b[1] = byte(n >> 16)
	b[2] = byte(n >> 8)
	b[3] = byte(n)
}

func decode24(b []byte) uint32 {
	return uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// maxOutgoingBuf bounds the size we advertise we're willing to receive once
// a security layer is active.
const maxOutgoingBuf = 0xFFFFFF

type clientState uint8

const (
	clientEstablishing clientState = iota
	clientAwaitingSSFOffer
	clientDone
)

type client struct {
	state   clientState
	sc      gssapi.SecContext
	qop     SecurityLayer
	maxSend uint32
}

func (c *client) Step(ctx *sasl.Context, input []byte, w io.Writer) (sasl.StepStatus, int, error) {
	switch c.state {
	case clientEstablishing:
		return c.stepEstablishing(ctx, input, w)
	case clientAwaitingSSFOffer:
		return c.stepSSFOffer(ctx, input, w)
	default:
		return sasl.StepDone, 0, sasl.ErrMechanismDone
	}
}

func (c *client) stepEstablishing(ctx *sasl.Context, input []byte, w io.Writer) (sasl.StepStatus, int, error) {
	cfg := sessionConfig(ctx.Session())
	if cfg.provider == nil {
		return sasl.StepDone, 0, &sasl.Error{Kind: sasl.KindGSSInitSecContext, Detail: "no GSSAPI provider configured"}
	}

	var out []byte
	if c.sc == nil {
		service, err := sasl.Need(ctx, sasl.Service)
		if err != nil {
			return sasl.StepDone, 0, err
		}
		hostname, _, err := sasl.MaybeNeed(ctx, sasl.Hostname)
		if err != nil {
			return sasl.StepDone, 0, err
		}

		princ := service
		if hostname != "" {
			princ = service + "@" + hostname
		}

		name, err := cfg.provider.ImportName(princ, gssapi.GSS_NT_HOSTBASED_SERVICE)
		if err != nil {
			return sasl.StepDone, 0, &sasl.Error{Kind: sasl.KindGSSInitSecContext, Cause: err}
		}
		defer name.Release()

		opts := []gssapi.InitSecContextOption{
			gssapi.WithInitiatorMech(cfg.mech),
			gssapi.WithInitiatorFlags(buildFlags()),
		}
		if cfg.cred != nil {
			opts = append(opts, gssapi.WithInitiatorCredential(cfg.cred))
		}
		if cb, ok := ctx.Session().ChannelBinding(); ok {
			opts = append(opts, gssapi.WithInitiatorChannelBinding(&gssapi.ChannelBinding{Data: cb.Data}))
		}

		sc, err := cfg.provider.InitSecContext(name, opts...)
		if err != nil {
			return sasl.StepDone, 0, &sasl.Error{Kind: sasl.KindGSSInitSecContext, Cause: err}
		}
		c.sc = sc

		out, err = sc.Continue(nil)
		if err != nil {
			return sasl.StepDone, 0, &sasl.Error{Kind: sasl.KindGSSInitSecContext, Cause: err}
		}
	} else {
		var err error
		out, err = c.sc.Continue(input)
		if err != nil {
			return sasl.StepDone, 0, &sasl.Error{Kind: sasl.KindGSSInitSecContext, Cause: err}
		}
	}

	n, werr := w.Write(out)
	if werr != nil {
		return sasl.StepDone, n, werr
	}
	if c.sc.ContinueNeeded() {
		return sasl.StepContinue, n, nil
	}

	c.state = clientAwaitingSSFOffer
	return sasl.StepContinue, n, nil
}

func (c *client) stepSSFOffer(ctx *sasl.Context, input []byte, w io.Writer) (sasl.StepStatus, int, error) {
	cfg := sessionConfig(ctx.Session())

	offer, _, err := c.sc.Unwrap(input)
	if err != nil {
		return sasl.StepDone, 0, &sasl.Error{Kind: sasl.KindGSSUnwrap, Cause: err}
	}
	if len(offer) != 4 {
		return sasl.StepDone, 0, sasl.ErrBadFormat
	}

	info, err := c.sc.Inquire()
	if err != nil {
		return sasl.StepDone, 0, &sasl.Error{Kind: sasl.KindGSSInitSecContext, Cause: err}
	}

	var ours SecurityLayer = LayerNone
	if info.Flags&gssapi.ContextFlagInteg != 0 {
		ours |= LayerIntegrity
	}
	if info.Flags&gssapi.ContextFlagConf != 0 {
		ours |= LayerConfidentiality
	}

	serverOffer := SecurityLayer(offer[0])
	var chosen SecurityLayer
	switch {
	case ours&LayerConfidentiality != 0 && serverOffer&LayerConfidentiality != 0:
		chosen = LayerConfidentiality
	case ours&LayerIntegrity != 0 && serverOffer&LayerIntegrity != 0:
		chosen = LayerIntegrity
	case ours&LayerNone != 0 && serverOffer&LayerNone != 0:
		chosen = LayerNone
	default:
		// Layers intersect to the empty set: neither side can agree on
		// anything, not even no-layer.
		return sasl.StepDone, 0, sasl.ErrBadContext
	}
	if chosen < cfg.minLayer {
		return sasl.StepDone, 0, sasl.ErrBadContext
	}

	serverMaxBuf := decode24(offer)
	resp := make([]byte, 4)
	resp[0] = byte(chosen)
	if chosen != LayerNone {
		encode24(resp, maxOutgoingBuf)
		c.maxSend = serverMaxBuf
	}

	wrapped, _, err := c.sc.Wrap(resp, chosen == LayerConfidentiality, 0)
	if err != nil {
		return sasl.StepDone, 0, &sasl.Error{Kind: sasl.KindGSSWrap, Cause: err}
	}

	n, werr := w.Write(wrapped)
	c.qop = chosen
	c.state = clientDone
	if werr != nil {
		return sasl.StepDone, n, werr
	}
	return sasl.StepDone, n, nil
}

func (c *client) HasSecurityLayer() bool { return c.state == clientDone && c.qop != LayerNone }

func (c *client) Encode(input []byte, w io.Writer) (int, error) {
	if !c.HasSecurityLayer() {
		return 0, sasl.ErrNoSecurityLayer
	}
	out, _, err := c.sc.Wrap(input, c.qop == LayerConfidentiality, 0)
	if err != nil {
		return 0, &sasl.Error{Kind: sasl.KindGSSWrap, Cause: err}
	}
	return w.Write(out)
}

func (c *client) Decode(input []byte, w io.Writer) (int, error) {
	if !c.HasSecurityLayer() {
		return 0, sasl.ErrNoSecurityLayer
	}
	out, _, _, err := c.sc.Unwrap(input)
	if err != nil {
		return 0, &sasl.Error{Kind: sasl.KindGSSUnwrap, Cause: err}
	}
	return w.Write(out)
}

type serverState uint8

const (
	serverEstablishing serverState = iota
	serverFlushFinal
	serverAwaitingSSFResponse
	serverDone
)

type server struct {
	state   serverState
	sc      gssapi.SecContext
	qop     SecurityLayer
	maxSend uint32
}

func (s *server) Step(ctx *sasl.Context, input []byte, w io.Writer) (sasl.StepStatus, int, error) {
	switch s.state {
	case serverEstablishing:
		return s.stepEstablishing(ctx, input, w)
	case serverFlushFinal:
		return s.stepOffer(ctx, w)
	case serverAwaitingSSFResponse:
		return s.stepVerify(ctx, input, w)
	default:
		return sasl.StepDone, 0, sasl.ErrMechanismDone
	}
}

func (s *server) stepEstablishing(ctx *sasl.Context, input []byte, w io.Writer) (sasl.StepStatus, int, error) {
	cfg := sessionConfig(ctx.Session())
	if cfg.provider == nil {
		return sasl.StepDone, 0, &sasl.Error{Kind: sasl.KindGSSAcceptSecContext, Detail: "no GSSAPI provider configured"}
	}

	var out []byte
	var err error
	if s.sc == nil {
		opts := []gssapi.AcceptSecContextOption{}
		if cfg.cred != nil {
			opts = append(opts, gssapi.WithAcceptorCredential(cfg.cred))
		}
		if cb, ok := ctx.Session().ChannelBinding(); ok {
			opts = append(opts, gssapi.WithAcceptorChannelBinding(&gssapi.ChannelBinding{Data: cb.Data}))
		}
		s.sc, err = cfg.provider.AcceptSecContext(opts...)
		if err != nil {
			return sasl.StepDone, 0, &sasl.Error{Kind: sasl.KindGSSAcceptSecContext, Cause: err}
		}
		out, err = s.sc.Continue(input)
	} else {
		out, err = s.sc.Continue(input)
	}
	if err != nil {
		return sasl.StepDone, 0, &sasl.Error{Kind: sasl.KindGSSAcceptSecContext, Cause: err}
	}

	if s.sc.ContinueNeeded() {
		n, werr := w.Write(out)
		return sasl.StepContinue, n, werr
	}

	if len(out) > 0 {
		n, werr := w.Write(out)
		s.state = serverFlushFinal
		if werr != nil {
			return sasl.StepDone, n, werr
		}
		return sasl.StepContinue, n, nil
	}

	return s.stepOffer(ctx, w)
}

func (s *server) stepOffer(_ *sasl.Context, w io.Writer) (sasl.StepStatus, int, error) {
	info, err := s.sc.Inquire()
	if err != nil {
		return sasl.StepDone, 0, &sasl.Error{Kind: sasl.KindGSSAcceptSecContext, Cause: err}
	}

	var ours SecurityLayer = LayerNone
	if info.Flags&gssapi.ContextFlagInteg != 0 {
		ours |= LayerIntegrity
	}
	if info.Flags&gssapi.ContextFlagConf != 0 {
		ours |= LayerConfidentiality
	}

	offer := make([]byte, 4)
	offer[0] = byte(ours)
	encode24(offer, maxOutgoingBuf)

	wrapped, _, err := s.sc.Wrap(offer, false, 0)
	if err != nil {
		return sasl.StepDone, 0, &sasl.Error{Kind: sasl.KindGSSWrap, Cause: err}
	}

	n, werr := w.Write(wrapped)
	s.state = serverAwaitingSSFResponse
	if werr != nil {
		return sasl.StepDone, n, werr
	}
	return sasl.StepContinue, n, nil
}

func (s *server) stepVerify(ctx *sasl.Context, input []byte, _ io.Writer) (sasl.StepStatus, int, error) {
	resp, _, err := s.sc.Unwrap(input)
	if err != nil {
		return sasl.StepDone, 0, &sasl.Error{Kind: sasl.KindGSSUnwrap, Cause: err}
	}
	if len(resp) != 4 {
		return sasl.StepDone, 0, sasl.ErrBadFormat
	}

	chosen := SecurityLayer(resp[0])
	switch chosen {
	case LayerNone, LayerIntegrity, LayerConfidentiality:
	default:
		return sasl.StepDone, 0, sasl.ErrBadFormat
	}
	if chosen < sessionConfig(ctx.Session()).minLayer {
		return sasl.StepDone, 0, sasl.ErrBadContext
	}
	s.qop = chosen
	s.maxSend = decode24(resp)

	info, err := s.sc.Inquire()
	if err != nil {
		return sasl.StepDone, 0, &sasl.Error{Kind: sasl.KindGSSAcceptSecContext, Cause: err}
	}
	displayName, _, derr := info.InitiatorName.Display()
	if derr != nil {
		return sasl.StepDone, 0, &sasl.Error{Kind: sasl.KindGSSAcceptSecContext, Cause: derr}
	}

	sasl.Set(ctx, sasl.AuthId, displayName)
	err = ctx.Validate(sasl.ValidationGSSAPI, func(r *sasl.ValidationRequest) {
		sasl.AttachValidationData(r, sasl.GSSAPIDisplayName, displayName)
		sasl.AttachValidationData(r, sasl.AuthId, displayName)
	})
	if err != nil {
		return sasl.StepDone, 0, err
	}

	s.state = serverDone
	return sasl.StepDone, 0, nil
}

func (s *server) HasSecurityLayer() bool { return s.state == serverDone && s.qop != LayerNone }

func (s *server) Encode(input []byte, w io.Writer) (int, error) {
	if !s.HasSecurityLayer() {
		return 0, sasl.ErrNoSecurityLayer
	}
	out, _, err := s.sc.Wrap(input, s.qop == LayerConfidentiality, 0)
	if err != nil {
		return 0, &sasl.Error{Kind: sasl.KindGSSWrap, Cause: err}
	}
	return w.Write(out)
}

func (s *server) Decode(input []byte, w io.Writer) (int, error) {
	if !s.HasSecurityLayer() {
		return 0, sasl.ErrNoSecurityLayer
	}
	out, _, _, err := s.sc.Unwrap(input)
	if err != nil {
		return 0, &sasl.Error{Kind: sasl.KindGSSUnwrap, Cause: err}
	}
	return w.Write(out)
}
