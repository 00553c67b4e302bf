// SPDX-License-Identifier: Apache-2.0

// Package xoauth2 implements XOAUTH2, Google's pre-standard precursor to
// OAUTHBEARER: a flat bearer-token carrier with the same JSON error-frame
// semantics but no GS2 header.
package xoauth2

import (
	"bytes"
	"encoding/json"
	"io"

	sasl "github.com/golang-auth/go-sasl"
)

const kvsep = 0x01

func init() {
	sasl.Register(sasl.Descriptor{
		Name:      sasl.MustMechname("XOAUTH2"),
		Priority:  45,
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
		c.done = true
		n, err := w.Write([]byte{kvsep})
		return sasl.StepDone, n, err
	}

	authid, err := sasl.Need(ctx, sasl.AuthId)
	if err != nil {
		return sasl.StepDone, 0, err
	}
	token, err := sasl.Need(ctx, sasl.OAuthBearerToken)
	if err != nil {
		return sasl.StepDone, 0, err
	}

	var buf bytes.Buffer
	buf.WriteString("user=" + authid)
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
	Status string `json:"status"`
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

	fields := bytes.Split(input, []byte{kvsep})
	var authid, token string
	for _, f := range fields {
		switch {
		case bytes.HasPrefix(f, []byte("user=")):
			authid = string(f[len("user="):])
		case bytes.HasPrefix(f, []byte("auth=Bearer ")):
			token = string(f[len("auth=Bearer "):])
		}
	}
	if authid == "" || token == "" {
		return sasl.StepDone, 0, sasl.ErrBadFormat
	}

	err := ctx.Validate(sasl.ValidationOAuthBearer, func(r *sasl.ValidationRequest) {
		sasl.AttachValidationData(r, sasl.AuthId, authid)
		sasl.AttachValidationData(r, sasl.OAuthBearerToken, token)
	})
	if err == nil {
		s.state = serverDone
		return sasl.StepDone, 0, nil
	}

	se, ok := err.(*sasl.Error)
	if !ok || se.Kind != sasl.KindAuthenticationFailure {
		return sasl.StepDone, 0, err
	}

	status := se.Detail
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
