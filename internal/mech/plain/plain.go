// SPDX-License-Identifier: Apache-2.0

// Package plain implements the PLAIN mechanism, RFC 4616, grounded on
// original_source/src/mechanisms/plain/client.rs and .../server.rs.
package plain

import (
	"bytes"
	"io"
	"unicode/utf8"

	sasl "github.com/golang-auth/go-sasl"
	"github.com/golang-auth/go-sasl/internal/saslprep"
)

func init() {
	sasl.Register(sasl.Descriptor{
		Name:      sasl.MustMechname("PLAIN"),
		Priority:  10,
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

	authzid, hasAuthzid, err := sasl.MaybeNeed(ctx, sasl.AuthzId)
	if err != nil {
		return sasl.StepDone, 0, err
	}
	authid, err := sasl.Need(ctx, sasl.AuthId)
	if err != nil {
		return sasl.StepDone, 0, err
	}
	password, err := sasl.Need(ctx, sasl.Password)
	if err != nil {
		return sasl.StepDone, 0, err
	}

	var buf bytes.Buffer
	if hasAuthzid && authzid != "" {
		buf.WriteString(authzid)
	}
	buf.WriteByte(0)
	buf.WriteString(authid)
	buf.WriteByte(0)
	buf.WriteString(password)

	n, werr := w.Write(buf.Bytes())
	c.done = true
	if werr != nil {
		return sasl.StepDone, n, werr
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

	if input == nil {
		return sasl.StepDone, 0, sasl.ErrInputDataRequired
	}
	if bytes.Count(input, []byte{0}) != 2 {
		return sasl.StepDone, 0, sasl.ErrBadFormat
	}

	parts := bytes.SplitN(input, []byte{0}, 3)
	authzid, authcid, password := parts[0], parts[1], parts[2]

	if len(authcid) == 0 || len(password) == 0 {
		return sasl.StepDone, 0, sasl.ErrBadFormat
	}
	if !utf8.Valid(authcid) {
		return sasl.StepDone, 0, sasl.ErrBadFormat
	}

	authcidStr, err := saslprep.Prepare(string(authcid))
	if err != nil || authcidStr == "" {
		return sasl.StepDone, 0, sasl.ErrBadFormat
	}

	passwordStr := string(password)
	if utf8.Valid(password) {
		prepped, err := saslprep.Prepare(passwordStr)
		if err != nil || prepped == "" {
			return sasl.StepDone, 0, sasl.ErrBadFormat
		}
		passwordStr = prepped
	}

	err = ctx.Validate(sasl.ValidationSimple, func(r *sasl.ValidationRequest) {
		sasl.AttachValidationData(r, sasl.AuthzId, string(authzid))
		sasl.AttachValidationData(r, sasl.AuthId, authcidStr)
		sasl.AttachValidationData(r, sasl.Password, passwordStr)
	})
	if err != nil {
		return sasl.StepDone, 0, err
	}

	return sasl.StepDone, 0, nil
}
