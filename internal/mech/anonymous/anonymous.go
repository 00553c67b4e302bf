// SPDX-License-Identifier: Apache-2.0

// Package anonymous implements ANONYMOUS, RFC 4505, grounded on
// original_source/src/mechanisms/anonymous/{client,server}.rs.
package anonymous

import (
	"io"
	"unicode/utf8"

	sasl "github.com/golang-auth/go-sasl"
)

func init() {
	sasl.Register(sasl.Descriptor{
		Name:      sasl.MustMechname("ANONYMOUS"),
		Priority:  0,
		First:     sasl.SideClient,
		NewClient: func() sasl.Mechanism { return &client{} },
		NewServer: func() sasl.Mechanism { return &server{} },
	})
}

type client struct {
	sasl.NoSecurityLayer
	done bool
}

func (c *client) Step(ctx *sasl.Context, _ []byte, w io.Writer) (sasl.StepStatus, int, error) {
	if c.done {
		return sasl.StepDone, 0, sasl.ErrMechanismDone
	}
	c.done = true

	token, _, err := sasl.MaybeNeed(ctx, sasl.AnonymousToken)
	if err != nil {
		return sasl.StepDone, 0, err
	}

	n, err := io.WriteString(w, token)
	if err != nil {
		return sasl.StepDone, n, err
	}
	return sasl.StepDone, n, nil
}

type server struct {
	sasl.NoSecurityLayer
	done bool
}

func (s *server) Step(ctx *sasl.Context, input []byte, _ io.Writer) (sasl.StepStatus, int, error) {
	if s.done {
		return sasl.StepDone, 0, sasl.ErrMechanismDone
	}
	s.done = true

	token := string(input)
	if !utf8.Valid(input) {
		return sasl.StepDone, 0, sasl.ErrBadFormat
	}
	if len(token) > 255 {
		return sasl.StepDone, 0, sasl.ErrBadFormat
	}

	err := ctx.Validate(sasl.ValidationAnonymous, func(r *sasl.ValidationRequest) {
		sasl.AttachValidationData(r, sasl.AnonymousToken, token)
	})
	if err != nil {
		return sasl.StepDone, 0, err
	}

	return sasl.StepDone, 0, nil
}
