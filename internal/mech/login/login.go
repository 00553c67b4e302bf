// SPDX-License-Identifier: Apache-2.0

// Package login implements the legacy, server-first LOGIN mechanism,
// grounded on original_source/src/mechanisms/login/{client,server}.rs.
// LOGIN predates a formal RFC; prompts and order follow the de facto
// SMTP/IMAP convention ("Username:" then "Password:").
package login

import (
	"io"

	sasl "github.com/golang-auth/go-sasl"
)

func init() {
	sasl.Register(sasl.Descriptor{
		Name:      sasl.MustMechname("LOGIN"),
		Priority:  5,
		First:     sasl.SideServer,
		NewClient: func() sasl.Mechanism { return &client{} },
		NewServer: func() sasl.Mechanism { return &server{} },
	})
}

type client struct {
	sasl.NoSecurityLayer
	step int
}

func (c *client) Step(ctx *sasl.Context, _ []byte, w io.Writer) (sasl.StepStatus, int, error) {
	switch c.step {
	case 0:
		authid, err := sasl.Need(ctx, sasl.AuthId)
		if err != nil {
			return sasl.StepContinue, 0, err
		}
		c.step = 1
		n, err := io.WriteString(w, authid)
		return sasl.StepContinue, n, err
	case 1:
		password, err := sasl.Need(ctx, sasl.Password)
		if err != nil {
			return sasl.StepDone, 0, err
		}
		c.step = 2
		n, err := io.WriteString(w, password)
		if err != nil {
			return sasl.StepDone, n, err
		}
		return sasl.StepDone, n, nil
	default:
		return sasl.StepDone, 0, sasl.ErrMechanismDone
	}
}

type server struct {
	sasl.NoSecurityLayer
	authid string
	step   int
}

func (s *server) Step(ctx *sasl.Context, input []byte, w io.Writer) (sasl.StepStatus, int, error) {
	switch s.step {
	case 0:
		s.step = 1
		n, err := io.WriteString(w, "Username:")
		return sasl.StepContinue, n, err
	case 1:
		if input == nil {
			return sasl.StepDone, 0, sasl.ErrInputDataRequired
		}
		s.authid = string(input)
		s.step = 2
		n, err := io.WriteString(w, "Password:")
		return sasl.StepContinue, n, err
	case 2:
		if input == nil {
			return sasl.StepDone, 0, sasl.ErrInputDataRequired
		}
		s.step = 3
		password := string(input)

		err := ctx.Validate(sasl.ValidationSimple, func(r *sasl.ValidationRequest) {
			sasl.AttachValidationData(r, sasl.AuthId, s.authid)
			sasl.AttachValidationData(r, sasl.Password, password)
		})
		if err != nil {
			return sasl.StepDone, 0, err
		}
		return sasl.StepDone, 0, nil
	default:
		return sasl.StepDone, 0, sasl.ErrMechanismDone
	}
}
