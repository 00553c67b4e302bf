// SPDX-License-Identifier: Apache-2.0

// Package openid20 implements OPENID20, RFC 6616: a GS2-bridged
// browser-redirect mechanism. The client identifies itself with its OpenID
// identifier, the server answers with a provider URL for the user to
// authenticate against out of band, and the client's literal "=" closes the
// loop once that's done.
package openid20

import (
	"bytes"
	"io"

	sasl "github.com/golang-auth/go-sasl"
	"github.com/golang-auth/go-sasl/internal/gs2"
)

const errorPrefix = "openid.error="

func init() {
	sasl.Register(sasl.Descriptor{
		Name:      sasl.MustMechname("OPENID20"),
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
	// RFC 6616 carries the user's OpenID identifier as the authentication
	// identity, not a separate property.
	identifier, err := sasl.Need(ctx, sasl.AuthId)
	if err != nil {
		return sasl.StepDone, 0, err
	}
	authzid, hasAuthzid, err := sasl.MaybeNeed(ctx, sasl.AuthzId)
	if err != nil {
		return sasl.StepDone, 0, err
	}

	var buf bytes.Buffer
	buf.WriteString(gs2.Build(gs2.NotSupported, "", authzid, hasAuthzid && authzid != ""))
	buf.WriteString(identifier)

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
	sasl.Set(ctx, sasl.OpenID20RedirectURL, string(input))

	// Fire the notification so the embedder can drive the user to the
	// provider's login page. The request is satisfied with a zero-value
	// struct once the browser flow has run to completion.
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
	// The provider rejected the assertion; RFC 6616 requires an empty
	// acknowledgement so the exchange can terminate cleanly.
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
	identifier := string(rest)
	if identifier == "" {
		return sasl.StepDone, 0, sasl.ErrBadFormat
	}
	sasl.Set(ctx, sasl.AuthId, identifier)
	if header.HasAuthzID {
		sasl.Set(ctx, sasl.AuthzId, header.AuthzID)
	}

	url, err := sasl.Need(ctx, sasl.OpenID20RedirectURL)
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

	identifier, _ := sasl.GetRef(ctx, sasl.AuthId)
	outcome, hasOutcome, err := sasl.MaybeNeed(ctx, sasl.OpenID20OutcomeData)
	if err != nil {
		return sasl.StepDone, 0, err
	}

	err = ctx.Validate(sasl.ValidationOpenID20, func(r *sasl.ValidationRequest) {
		sasl.AttachValidationData(r, sasl.AuthId, identifier)
		if hasOutcome {
			sasl.AttachValidationData(r, sasl.OpenID20OutcomeData, outcome)
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
