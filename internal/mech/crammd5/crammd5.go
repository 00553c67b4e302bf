// SPDX-License-Identifier: Apache-2.0

// Package crammd5 implements CRAM-MD5, RFC 2195, grounded on
// original_source/src/mechanisms/cram_md5/{client,server}.rs.
package crammd5

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	sasl "github.com/golang-auth/go-sasl"
	"github.com/golang-auth/go-sasl/internal/scramutil"
)

func init() {
	sasl.Register(sasl.Descriptor{
		Name:      sasl.MustMechname("CRAM-MD5"),
		Priority:  20,
		First:     sasl.SideServer,
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
	c.done = true

	if input == nil {
		return sasl.StepDone, 0, sasl.ErrInputDataRequired
	}

	authid, err := sasl.Need(ctx, sasl.AuthId)
	if err != nil {
		return sasl.StepDone, 0, err
	}
	password, err := sasl.Need(ctx, sasl.Password)
	if err != nil {
		return sasl.StepDone, 0, err
	}

	mac := hmac.New(md5.New, []byte(password))
	mac.Write(input)
	digest := hex.EncodeToString(mac.Sum(nil))

	n, err := io.WriteString(w, authid+" "+digest)
	if err != nil {
		return sasl.StepDone, n, err
	}
	return sasl.StepDone, n, nil
}

type server struct {
	sasl.NoSecurityLayer
	challenge []byte
	done      bool
}

func (s *server) Step(ctx *sasl.Context, input []byte, w io.Writer) (sasl.StepStatus, int, error) {
	if s.done {
		return sasl.StepDone, 0, sasl.ErrMechanismDone
	}

	if s.challenge == nil {
		challenge, err := newChallenge()
		if err != nil {
			return sasl.StepContinue, 0, err
		}
		s.challenge = challenge
		n, werr := w.Write(s.challenge)
		if werr != nil {
			return sasl.StepContinue, n, werr
		}
		return sasl.StepContinue, n, nil
	}

	s.done = true
	if input == nil {
		return sasl.StepDone, 0, sasl.ErrInputDataRequired
	}

	resp := string(input)
	idx := strings.LastIndexByte(resp, ' ')
	if idx < 0 {
		return sasl.StepDone, 0, sasl.ErrBadFormat
	}
	authid, digestHex := resp[:idx], resp[idx+1:]
	gotDigest, err := hex.DecodeString(digestHex)
	if err != nil || len(gotDigest) != md5.Size {
		return sasl.StepDone, 0, sasl.ErrBadFormat
	}

	sasl.Set(ctx, sasl.AuthId, authid)
	password, err := sasl.Need(ctx, sasl.Password)
	if err != nil {
		return sasl.StepDone, 0, err
	}

	mac := hmac.New(md5.New, []byte(password))
	mac.Write(s.challenge)
	wantDigest := mac.Sum(nil)
	if !scramutil.ConstantTimeEqual(wantDigest, gotDigest) {
		return sasl.StepDone, 0, sasl.ErrAuthenticationFailure
	}

	err = ctx.Validate(sasl.ValidationSimple, func(r *sasl.ValidationRequest) {
		sasl.AttachValidationData(r, sasl.AuthId, authid)
	})
	if err != nil {
		return sasl.StepDone, 0, err
	}

	return sasl.StepDone, 0, nil
}

// newChallenge builds an RFC 2195 §3 challenge: an angle-bracket-wrapped
// random token plus timestamp-like freshness marker and a domain suffix.
func newChallenge() ([]byte, error) {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("<%x@sasl>", buf)), nil
}
