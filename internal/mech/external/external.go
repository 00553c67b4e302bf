// SPDX-License-Identifier: Apache-2.0

// Package external implements EXTERNAL, RFC 4422 appendix A, in its plain
// (non-GS2) form: the identity is established out-of-band (TLS client
// certificate, IPsec, UNIX socket peer credentials) and the exchange
// carries only an optional authzid override. Grounded on
// original_source/src/mechanisms/external/{client,server}.rs.
package external

import (
	"io"
	"unicode/utf8"

	sasl "github.com/golang-auth/go-sasl"
)

func init() {
	sasl.Register(sasl.Descriptor{
		Name:      sasl.MustMechname("EXTERNAL"),
		Priority:  100,
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

	authzid, hasAuthzid, err := sasl.MaybeNeed(ctx, sasl.AuthzId)
	if err != nil {
		return sasl.StepDone, 0, err
	}
	if !hasAuthzid {
		return sasl.StepDone, 0, nil
	}

	n, err := io.WriteString(w, authzid)
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

	if len(input) > 0 && !utf8.Valid(input) {
		return sasl.StepDone, 0, sasl.ErrBadFormat
	}

	err := ctx.Validate(sasl.ValidationExternal, func(r *sasl.ValidationRequest) {
		sasl.AttachValidationData(r, sasl.AuthzId, string(input))
	})
	if err != nil {
		return sasl.StepDone, 0, err
	}

	return sasl.StepDone, 0, nil
}
