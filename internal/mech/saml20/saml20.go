// SPDX-License-Identifier: Apache-2.0

// Package saml20 implements SAML20, the SASL SAML 2.0 mechanism: a
// GS2-bridged browser-redirect exchange structurally identical to OPENID20,
// but keyed on an explicit identity-provider identifier rather than the
// user's own authentication identity.
package saml20

import (
	"bytes"
	"io"

	sasl "github.com/golang-auth/go-sasl"
	"github.com/golang-auth/go-sasl/internal/gs2"
)

const errorPrefix = "saml.error="

func init() {
	sasl.Register(sasl.Descriptor{
		Name:      sasl.MustMechname("SAML20"),
		Priority:  30,
		First:     sasl.SideClient,
		NewClient: func() sasl.Mechanism { return &client{} },
		NewServer: func() sasl.Mechanism { return &server{} },
	})
}

type clientState uint8

const (
	clientSendIdentifier clientState = iota
	clientAwaitingRedirect
	clientAwaitingOutcome
	clientDone
)

type client struct {
	sasl.NoSecurityLayer
	state clientState
}

func (c *client) Step(ctx *sasl.Context, input []byte, w io.Writer) (sasl.StepStatus, int, error) {
	switch c.state {
	case clientSendIdentifier:
		return c.stepSendIdentifier(ctx, w)
	case clientAwaitingRedirect:
		return c.stepAwaitingRedirect(ctx, input, w)
	case clientAwaitingOutcome:
		return c.stepAwaitingOutcome(input, w)
	default:
		return sasl.StepDone, 0, sasl.ErrMechanismDone
	}
}

func (c *client) stepSendIdentifier(ctx *sasl.Context, w io.Writer) (sasl.StepStatus, int, error) {
	idp, err := sasl.Need(ctx, sasl.Saml20IdPIdentifier)
	if err != nil {
		return sasl.StepDone, 0, err
	}
	authzid, hasAuthzid, err := sasl.MaybeNeed(ctx, sasl.AuthzId)
	if err != nil {
		return sasl.StepDone, 0, err
	}

	var buf bytes.Buffer
	buf.WriteString(gs2.Build(gs2.NotSupported, "", authzid, hasAuthzid && authzid != ""))
	buf.WriteString(idp)

	n, werr := w.Write(buf.Bytes())
	if werr != nil {
		return sasl.StepDone, n, werr
	}
	c.state = clientAwaitingRedirect
	return sasl.StepContinue, n, nil
}

func (c *client) stepAwaitingRedirect(ctx *sasl.Context, input []byte, w io.Writer) (sasl.StepStatus, int, error) {
	if input == nil {
		return sasl.StepDone, 0, sasl.ErrInputDataRequired
	}
	sasl.Set(ctx, sasl.Saml20RedirectURL, string(input))

	if _, err := sasl.Need(ctx, sasl.AuthenticateInBrowser); err != nil {
		return sasl.StepDone, 0, err
	}

	n, werr := w.Write([]byte("="))
	if werr != nil {
		return sasl.StepDone, n, werr
	}
	c.state = clientAwaitingOutcome
	return sasl.StepContinue, n, nil
}

func (c *client) stepAwaitingOutcome(input []byte, w io.Writer) (sasl.StepStatus, int, error) {
	c.state = clientDone
	if input == nil || !bytes.HasPrefix(input, []byte(errorPrefix)) {
		return sasl.StepDone, 0, nil
	}
	n, err := w.Write(nil)
	return sasl.StepDone, n, err
}

type serverState uint8

const (
	serverAwaitingInitial serverState = iota
	serverAwaitingConfirm
	serverAwaitingAck
	serverDone
)

type server struct {
	sasl.NoSecurityLayer
	state   serverState
	authErr error
}

func (s *server) Step(ctx *sasl.Context, input []byte, w io.Writer) (sasl.StepStatus, int, error) {
	switch s.state {
	case serverAwaitingInitial:
		return s.stepInitial(ctx, input, w)
	case serverAwaitingConfirm:
		return s.stepConfirm(ctx, input, w)
	case serverAwaitingAck:
		s.state = serverDone
		return sasl.StepDone, 0, s.authErr
	default:
		return sasl.StepDone, 0, sasl.ErrMechanismDone
	}
}

func (s *server) stepInitial(ctx *sasl.Context, input []byte, w io.Writer) (sasl.StepStatus, int, error) {
	if input == nil {
		return sasl.StepDone, 0, sasl.ErrInputDataRequired
	}
	header, rest, err := gs2.Parse(input)
	if err != nil {
		return sasl.StepDone, 0, sasl.ErrBadFormat
	}
	if header.Flag == gs2.Used {
		return sasl.StepDone, 0, sasl.ErrBadFormat
	}
	idp := string(rest)
	if idp == "" {
		return sasl.StepDone, 0, sasl.ErrBadFormat
	}
	sasl.Set(ctx, sasl.Saml20IdPIdentifier, idp)
	if header.HasAuthzID {
		sasl.Set(ctx, sasl.AuthzId, header.AuthzID)
	}

	url, err := sasl.Need(ctx, sasl.Saml20RedirectURL)
	if err != nil {
		return sasl.StepDone, 0, err
	}

	n, werr := w.Write([]byte(url))
	if werr != nil {
		return sasl.StepDone, n, werr
	}
	s.state = serverAwaitingConfirm
	return sasl.StepContinue, n, nil
}

func (s *server) stepConfirm(ctx *sasl.Context, input []byte, w io.Writer) (sasl.StepStatus, int, error) {
	if !bytes.Equal(input, []byte("=")) {
		return sasl.StepDone, 0, sasl.ErrBadFormat
	}

	idp, _ := sasl.GetRef(ctx, sasl.Saml20IdPIdentifier)
	authzid, hasAuthzid := sasl.GetRef(ctx, sasl.AuthzId)

	err := ctx.Validate(sasl.ValidationSaml20, func(r *sasl.ValidationRequest) {
		sasl.AttachValidationData(r, sasl.Saml20IdPIdentifier, idp)
		if hasAuthzid {
			sasl.AttachValidationData(r, sasl.AuthzId, authzid)
		}
	})
	if err == nil {
		s.state = serverDone
		return sasl.StepDone, 0, nil
	}

	se, ok := err.(*sasl.Error)
	if !ok || se.Kind != sasl.KindAuthenticationFailure {
		return sasl.StepDone, 0, err
	}

	detail := se.Detail
	if detail == "" {
		detail = "assertion rejected"
	}
	n, werr := w.Write([]byte(errorPrefix + detail))
	s.state = serverAwaitingAck
	s.authErr = err
	if werr != nil {
		return sasl.StepDone, n, werr
	}
	return sasl.StepContinue, n, nil
}
