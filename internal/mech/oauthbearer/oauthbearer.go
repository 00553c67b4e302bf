// SPDX-License-Identifier: Apache-2.0

// Package oauthbearer implements OAUTHBEARER, RFC 7628: a GS2-bridged,
// one-shot bearer-token carrier with a JSON error channel.
package oauthbearer

import (
	"bytes"
	"encoding/json"
	"io"

	sasl "github.com/golang-auth/go-sasl"
	"github.com/golang-auth/go-sasl/internal/gs2"
)

const kvsep = 0x01

func init() {
	sasl.Register(sasl.Descriptor{
		Name:      sasl.MustMechname("OAUTHBEARER"),
		Priority:  50,
		First:     sasl.SideClient,
		NewClient: func() sasl.Mechanism { return &client{} },
		NewServer: func() sasl.Mechanism { return &server{} },
	})
}

type client struct {
	sasl.NoSecurityLayer
	done bool
}

func (c *client) Step(ctx *sasl.Context, input []byte, w io.Writer) (sasl.StepStatus, int, error) {
	if c.done {
		return sasl.StepDone, 0, sasl.ErrMechanismDone
	}

	if input != nil {
		// Second round: the server rejected the token and sent a JSON
		// error frame. RFC 7628 §3.2.3 requires the client to answer
		// with a single kvsep byte to let the exchange terminate.
		c.done = true
		n, err := w.Write([]byte{kvsep})
		return sasl.StepDone, n, err
	}

	authzid, hasAuthzid, err := sasl.MaybeNeed(ctx, sasl.AuthzId)
	if err != nil {
		return sasl.StepDone, 0, err
	}
	token, err := sasl.Need(ctx, sasl.OAuthBearerToken)
	if err != nil {
		return sasl.StepDone, 0, err
	}

	var buf bytes.Buffer
	buf.WriteString(gs2.Build(gs2.NotSupported, "", authzid, hasAuthzid && authzid != ""))
	buf.WriteByte(kvsep)
	buf.WriteString("auth=Bearer " + token)
	buf.WriteByte(kvsep)
	buf.WriteByte(kvsep)

	n, werr := w.Write(buf.Bytes())
	if werr != nil {
		return sasl.StepDone, n, werr
	}
	return sasl.StepContinue, n, nil
}

type errorFrame struct {
	Status              string `json:"status"`
	Scope               string `json:"scope,omitempty"`
	OpenIDConfiguration string `json:"openid-configuration,omitempty"`
}

type serverState uint8

const (
	serverAwaitingInitial serverState = iota
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
		// OAUTHBEARER carries no -PLUS variant.
		return sasl.StepDone, 0, sasl.ErrBadFormat
	}
	if len(rest) == 0 || rest[0] != kvsep {
		return sasl.StepDone, 0, sasl.ErrBadFormat
	}

	fields := bytes.Split(rest[1:], []byte{kvsep})
	var token string
	extra := map[string]string{}
	for _, f := range fields {
		if len(f) == 0 {
			continue
		}
		const bearerPrefix = "auth=Bearer "
		if bytes.HasPrefix(f, []byte(bearerPrefix)) {
			token = string(f[len(bearerPrefix):])
			continue
		}
		kv := bytes.SplitN(f, []byte("="), 2)
		if len(kv) == 2 {
			extra[string(kv[0])] = string(kv[1])
		}
	}
	if token == "" {
		return sasl.StepDone, 0, sasl.ErrBadFormat
	}

	err = ctx.Validate(sasl.ValidationOAuthBearer, func(r *sasl.ValidationRequest) {
		sasl.AttachValidationData(r, sasl.OAuthBearerToken, token)
		if header.HasAuthzID {
			sasl.AttachValidationData(r, sasl.AuthzId, header.AuthzID)
		}
		if host, ok := extra["host"]; ok {
			sasl.AttachValidationData(r, sasl.Hostname, host)
		}
	})
	if err == nil {
		s.state = serverDone
		return sasl.StepDone, 0, nil
	}

	var sErr *sasl.Error
	if !isAuthFailure(err, &sErr) {
		return sasl.StepDone, 0, err
	}

	status := sErr.Detail
	if status == "" {
		status = "invalid_token"
	}
	body, merr := json.Marshal(errorFrame{Status: status})
	if merr != nil {
		return sasl.StepDone, 0, err
	}

	n, werr := w.Write(body)
	s.state = serverAwaitingAck
	s.authErr = err
	if werr != nil {
		return sasl.StepDone, n, werr
	}
	return sasl.StepContinue, n, nil
}

func isAuthFailure(err error, target **sasl.Error) bool {
	se, ok := err.(*sasl.Error)
	if !ok {
		return false
	}
	*target = se
	return se.Kind == sasl.KindAuthenticationFailure
}
