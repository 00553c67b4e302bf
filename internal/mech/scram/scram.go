// SPDX-License-Identifier: Apache-2.0

// Package scram implements the SCRAM family (RFC 5802, RFC 7677) in its
// plain and channel-binding ("-PLUS") forms, over SHA-1 and SHA-256.
// Grounded on original_source/src/mechanisms/scram/{client,server}.rs for
// message ordering and downgrade-protection handling, and on
// internal/gs2, internal/scramutil and internal/saslprep for the shared
// grammar and crypto primitives.
package scram

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"strconv"
	"strings"

	sasl "github.com/golang-auth/go-sasl"
	"github.com/golang-auth/go-sasl/internal/gs2"
	"github.com/golang-auth/go-sasl/internal/saslprep"
	"github.com/golang-auth/go-sasl/internal/scramutil"
)

const nonceBytes = 18

func init() {
	register("SCRAM-SHA-1", scramutil.SHA1, false, 30)
	register("SCRAM-SHA-1-PLUS", scramutil.SHA1, true, 31)
	register("SCRAM-SHA-256", scramutil.SHA256, false, 40)
	register("SCRAM-SHA-256-PLUS", scramutil.SHA256, true, 41)
}

func register(name string, variant scramutil.Variant, plus bool, priority int) {
	sasl.Register(sasl.Descriptor{
		Name:                   sasl.MustMechname(name),
		Priority:               priority,
		First:                  sasl.SideClient,
		RequiresChannelBinding: plus,
		NewClient: func() sasl.Mechanism {
			return &client{variant: variant, plus: plus}
		},
		NewServer: func() sasl.Mechanism {
			return &server{variant: variant, plus: plus}
		},
	})
}

// ---- client ----

type clientStep uint8

const (
	clientAwaitingStart clientStep = iota
	clientAwaitingServerFirst
	clientAwaitingServerFinal
	clientDone
)

type client struct {
	sasl.NoSecurityLayer
	variant scramutil.Variant
	plus    bool
	step    clientStep

	nonce           string
	clientFirstBare []byte
	serverFirst     []byte
	serverSignature []byte
}

// gs2Header builds the GS2 header for this client; cbData is the value to
// channel-bind on ("c=" input), which is the raw header bytes for non-PLUS
// mechanisms or the header followed by the transport's binding data for
// -PLUS mechanisms.
func (c *client) gs2Header(ctx *sasl.Context) (header string, cbData []byte, err error) {
	cb, hasCB := ctx.Session().ChannelBinding()
	authzid, hasAuthzid, err := sasl.MaybeNeed(ctx, sasl.AuthzId)
	if err != nil {
		return "", nil, err
	}

	var flag gs2.CBFlag
	switch {
	case c.plus:
		if !hasCB {
			return "", nil, sasl.ErrNoSecurityLayer
		}
		flag = gs2.Used
	case hasCB:
		flag = gs2.SupportedNotUsed
	default:
		flag = gs2.NotSupported
	}

	header = gs2.Build(flag, cb.Name, authzid, hasAuthzid)
	if c.plus {
		cbData = append([]byte(header), cb.Data...)
	} else {
		cbData = []byte(header)
	}
	return header, cbData, nil
}

func (c *client) Step(ctx *sasl.Context, input []byte, w io.Writer) (sasl.StepStatus, int, error) {
	switch c.step {
	case clientAwaitingStart:
		return c.stepFirst(ctx, w)
	case clientAwaitingServerFirst:
		return c.stepFinal(ctx, input, w)
	case clientAwaitingServerFinal:
		return c.stepVerify(input)
	default:
		return sasl.StepDone, 0, sasl.ErrMechanismDone
	}
}

func (c *client) stepFirst(ctx *sasl.Context, w io.Writer) (sasl.StepStatus, int, error) {
	header, _, err := c.gs2Header(ctx)
	if err != nil {
		return sasl.StepDone, 0, err
	}

	authid, err := sasl.Need(ctx, sasl.AuthId)
	if err != nil {
		return sasl.StepDone, 0, err
	}
	prepped, err := saslprep.Prepare(authid)
	if err != nil {
		return sasl.StepDone, 0, sasl.ErrSaslprepError
	}

	nonce, err := scramutil.GenerateNonce(nonceBytes)
	if err != nil {
		return sasl.StepDone, 0, err
	}
	c.nonce = nonce

	bare := "n=" + scramutil.EscapeSaslname(prepped) + ",r=" + c.nonce
	c.clientFirstBare = []byte(bare)

	out := header + bare
	c.step = clientAwaitingServerFirst
	n, err := io.WriteString(w, out)
	if err != nil {
		return sasl.StepContinue, n, err
	}
	return sasl.StepContinue, n, nil
}

func (c *client) stepFinal(ctx *sasl.Context, input []byte, w io.Writer) (sasl.StepStatus, int, error) {
	if input == nil {
		return sasl.StepDone, 0, sasl.ErrInputDataRequired
	}
	c.serverFirst = input

	fields, err := parseFields(string(input))
	if err != nil {
		return sasl.StepDone, 0, sasl.ErrBadFormat
	}
	serverNonce, ok := fields["r"]
	if !ok || !strings.HasPrefix(serverNonce, c.nonce) || len(serverNonce) <= len(c.nonce) {
		return sasl.StepDone, 0, sasl.ErrBadNonce
	}
	saltB64, ok := fields["s"]
	if !ok {
		return sasl.StepDone, 0, sasl.ErrBadFormat
	}
	salt, err := base64.StdEncoding.DecodeString(saltB64)
	if err != nil {
		return sasl.StepDone, 0, sasl.ErrBadFormat
	}
	iterStr, ok := fields["i"]
	if !ok {
		return sasl.StepDone, 0, sasl.ErrBadFormat
	}
	iter, err := strconv.Atoi(iterStr)
	if err != nil || iter < 1 {
		return sasl.StepDone, 0, sasl.ErrBadFormat
	}

	_, cbData, err := c.gs2Header(ctx)
	if err != nil {
		return sasl.StepDone, 0, err
	}
	finalNoProof := "c=" + base64.StdEncoding.EncodeToString(cbData) + ",r=" + serverNonce

	saltedPassword, err := c.saltedPassword(ctx, salt, iter)
	if err != nil {
		return sasl.StepDone, 0, err
	}

	clientKey := c.variant.ClientKey(saltedPassword)
	storedKey := c.variant.StoredKey(clientKey)
	authMessage := bytes.Join([][]byte{c.clientFirstBare, c.serverFirst, []byte(finalNoProof)}, []byte(","))
	clientSignature := c.variant.ClientSignature(storedKey, authMessage)
	clientProof := scramutil.XOR(clientKey, clientSignature)

	serverKey := c.variant.ServerKey(saltedPassword)
	c.serverSignature = c.variant.ServerSignature(serverKey, authMessage)

	out := finalNoProof + ",p=" + base64.StdEncoding.EncodeToString(clientProof)
	c.step = clientAwaitingServerFinal
	n, err := io.WriteString(w, out)
	if err != nil {
		return sasl.StepContinue, n, err
	}
	return sasl.StepContinue, n, nil
}

func (c *client) stepVerify(input []byte) (sasl.StepStatus, int, error) {
	if input == nil {
		return sasl.StepDone, 0, sasl.ErrInputDataRequired
	}
	c.step = clientDone

	fields, err := parseFields(string(input))
	if err != nil {
		return sasl.StepDone, 0, sasl.ErrBadFormat
	}
	if errMsg, ok := fields["e"]; ok {
		return sasl.StepDone, 0, fmt.Errorf("%w: %s", sasl.ErrAuthenticationFailure, errMsg)
	}
	vB64, ok := fields["v"]
	if !ok {
		return sasl.StepDone, 0, sasl.ErrBadFormat
	}
	v, err := base64.StdEncoding.DecodeString(vB64)
	if err != nil {
		return sasl.StepDone, 0, sasl.ErrBadFormat
	}
	if !scramutil.ConstantTimeEqual(v, c.serverSignature) {
		return sasl.StepDone, 0, sasl.ErrServerSignatureMismatch
	}

	return sasl.StepDone, 0, nil
}

func (c *client) saltedPassword(ctx *sasl.Context, salt []byte, iter int) ([]byte, error) {
	if sp, ok, err := sasl.MaybeNeed(ctx, sasl.ScramSaltedPassword); err != nil {
		return nil, err
	} else if ok {
		return sp, nil
	}
	password, err := sasl.Need(ctx, sasl.Password)
	if err != nil {
		return nil, err
	}
	prepped, err := saslprep.Prepare(password)
	if err != nil {
		return nil, sasl.ErrSaslprepError
	}
	return c.variant.SaltedPassword([]byte(prepped), salt, iter), nil
}

// ---- server ----

type serverStep uint8

const (
	serverAwaitingClientFirst serverStep = iota
	serverAwaitingClientFinal
	serverDone
)

type server struct {
	sasl.NoSecurityLayer
	variant scramutil.Variant
	plus    bool
	step    serverStep

	gs2Header       gs2.Header
	clientFirstBare []byte
	serverFirst     []byte
	fullNonce       string
	salt            []byte
	iter            int
}

func (s *server) Step(ctx *sasl.Context, input []byte, w io.Writer) (sasl.StepStatus, int, error) {
	switch s.step {
	case serverAwaitingClientFirst:
		return s.stepFirst(ctx, input, w)
	case serverAwaitingClientFinal:
		return s.stepFinal(ctx, input, w)
	default:
		return sasl.StepDone, 0, sasl.ErrMechanismDone
	}
}

func (s *server) stepFirst(ctx *sasl.Context, input []byte, w io.Writer) (sasl.StepStatus, int, error) {
	if input == nil {
		return sasl.StepDone, 0, sasl.ErrInputDataRequired
	}

	header, rest, err := gs2.Parse(input)
	if err != nil {
		return sasl.StepDone, 0, sasl.ErrBadFormat
	}
	if err := s.checkCBFlag(header); err != nil {
		return sasl.StepDone, 0, err
	}
	s.gs2Header = header

	fields, err := parseFields(string(rest))
	if err != nil {
		return sasl.StepDone, 0, sasl.ErrBadFormat
	}
	nEscaped, ok := fields["n"]
	if !ok {
		return sasl.StepDone, 0, sasl.ErrBadFormat
	}
	authid, ok := scramutil.UnescapeSaslname(nEscaped)
	if !ok {
		return sasl.StepDone, 0, sasl.ErrBadFormat
	}
	clientNonce, ok := fields["r"]
	if !ok {
		return sasl.StepDone, 0, sasl.ErrBadFormat
	}

	s.clientFirstBare = []byte(rest)

	sasl.Set(ctx, sasl.AuthId, authid)

	salt, iter, err := s.lookupCredential(ctx)
	if err != nil {
		return sasl.StepDone, 0, err
	}
	s.salt, s.iter = salt, iter

	serverNonceSuffix, err := scramutil.GenerateNonce(nonceBytes)
	if err != nil {
		return sasl.StepDone, 0, err
	}
	s.fullNonce = clientNonce + serverNonceSuffix

	out := "r=" + s.fullNonce + ",s=" + base64.StdEncoding.EncodeToString(salt) + ",i=" + strconv.Itoa(iter)
	s.serverFirst = []byte(out)
	s.step = serverAwaitingClientFinal

	n, werr := io.WriteString(w, out)
	if werr != nil {
		return sasl.StepContinue, n, werr
	}
	return sasl.StepContinue, n, nil
}

// checkCBFlag enforces the gs2 cbind-flag/mechanism-variant agreement and
// the spec.md §4.12 downgrade-protection rule: a non-PLUS server that sees
// "y," (the client had channel-binding material but used a non-PLUS
// mechanism anyway) must refuse if it also has the PLUS sibling of this
// same hash registered, since that combination is only reachable if an
// attacker stripped -PLUS from the mechanism list the client saw.
func (s *server) checkCBFlag(header gs2.Header) error {
	if s.plus {
		if header.Flag != gs2.Used {
			return sasl.ErrBadFormat
		}
		return nil
	}
	if header.Flag == gs2.Used {
		return sasl.ErrBadFormat
	}
	if header.Flag == gs2.SupportedNotUsed {
		plusName := sasl.MustMechname("SCRAM-" + s.variant.Name + "-PLUS")
		if sasl.DefaultRegistry.Supports(plusName) {
			return sasl.ErrChannelBindingDowngrade
		}
	}
	return nil
}

// lookupCredential asks the callback for the SCRAM verifier, preferring a
// precomputed salt/stored-key/server-key triple and falling back to
// deriving one from a plaintext password with a freshly generated salt.
func (s *server) lookupCredential(ctx *sasl.Context) (salt []byte, iter int, err error) {
	salt, hasSalt, err := sasl.MaybeNeed(ctx, sasl.ScramSalt)
	if err != nil {
		return nil, 0, err
	}
	if hasSalt {
		iter, err = sasl.Need(ctx, sasl.ScramIter)
		if err != nil {
			return nil, 0, err
		}
		return salt, iter, nil
	}

	salt = make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, 0, err
	}
	return salt, scramDefaultIterations, nil
}

const scramDefaultIterations = 4096

func (s *server) deriveKeys(ctx *sasl.Context, salt []byte, iter int) (storedKey, serverKey []byte, err error) {
	if sk, ok, err := sasl.MaybeNeed(ctx, sasl.ScramStoredKey); err != nil {
		return nil, nil, err
	} else if ok {
		svk, err := sasl.Need(ctx, sasl.ScramServerKey)
		if err != nil {
			return nil, nil, err
		}
		return sk, svk, nil
	}

	var saltedPassword []byte
	if sp, ok, err := sasl.MaybeNeed(ctx, sasl.ScramSaltedPassword); err != nil {
		return nil, nil, err
	} else if ok {
		saltedPassword = sp
	} else {
		password, err := sasl.Need(ctx, sasl.Password)
		if err != nil {
			return nil, nil, err
		}
		prepped, err := saslprep.Prepare(password)
		if err != nil {
			return nil, nil, sasl.ErrSaslprepError
		}
		saltedPassword = s.variant.SaltedPassword([]byte(prepped), salt, iter)
	}

	clientKey := s.variant.ClientKey(saltedPassword)
	return s.variant.StoredKey(clientKey), s.variant.ServerKey(saltedPassword), nil
}

func (s *server) stepFinal(ctx *sasl.Context, input []byte, w io.Writer) (sasl.StepStatus, int, error) {
	if input == nil {
		return sasl.StepDone, 0, sasl.ErrInputDataRequired
	}
	s.step = serverDone

	fields, err := parseFields(string(input))
	if err != nil {
		return sasl.StepDone, 0, sasl.ErrBadFormat
	}
	cB64, ok := fields["c"]
	if !ok {
		return sasl.StepDone, 0, sasl.ErrBadFormat
	}
	gotBinding, err := base64.StdEncoding.DecodeString(cB64)
	if err != nil {
		return sasl.StepDone, 0, sasl.ErrBadFormat
	}
	if err := s.verifyChannelBinding(ctx, gotBinding); err != nil {
		return sasl.StepDone, 0, err
	}

	r, ok := fields["r"]
	if !ok || r != s.fullNonce {
		return sasl.StepDone, 0, sasl.ErrBadNonce
	}
	pB64, ok := fields["p"]
	if !ok {
		return sasl.StepDone, 0, sasl.ErrBadFormat
	}
	proof, err := base64.StdEncoding.DecodeString(pB64)
	if err != nil {
		return sasl.StepDone, 0, sasl.ErrBadFormat
	}

	idx := strings.LastIndex(string(input), ",p=")
	if idx < 0 {
		return sasl.StepDone, 0, sasl.ErrBadFormat
	}
	finalNoProof := input[:idx]

	storedKey, serverKey, err := s.deriveKeys(ctx, s.salt, s.iter)
	if err != nil {
		return sasl.StepDone, 0, err
	}

	authMessage := bytes.Join([][]byte{s.clientFirstBare, s.serverFirst, finalNoProof}, []byte(","))
	clientSignature := s.variant.ClientSignature(storedKey, authMessage)
	gotClientKey := scramutil.XOR(proof, clientSignature)
	gotStoredKey := s.variant.StoredKey(gotClientKey)

	if !scramutil.ConstantTimeEqual(gotStoredKey, storedKey) {
		return sasl.StepDone, 0, sasl.ErrAuthenticationFailure
	}

	authid, _ := sasl.GetRef(ctx, sasl.AuthId)
	verr := ctx.Validate(sasl.ValidationScram, func(r *sasl.ValidationRequest) {
		sasl.AttachValidationData(r, sasl.AuthId, authid)
	})
	if verr != nil {
		return sasl.StepDone, 0, verr
	}

	serverSignature := s.variant.ServerSignature(serverKey, authMessage)
	out := "v=" + base64.StdEncoding.EncodeToString(serverSignature)

	n, werr := io.WriteString(w, out)
	if werr != nil {
		return sasl.StepDone, n, werr
	}
	return sasl.StepDone, n, nil
}

func (s *server) verifyChannelBinding(ctx *sasl.Context, got []byte) error {
	if !s.plus {
		want := []byte(s.gs2Header.Raw)
		if !bytes.Equal(got, want) {
			return sasl.ErrBadFormat
		}
		return nil
	}
	cb, hasCB := ctx.Session().ChannelBinding()
	if !hasCB {
		return sasl.ErrNoSecurityLayer
	}
	want := append([]byte(s.gs2Header.Raw), cb.Data...)
	if !bytes.Equal(got, want) {
		return sasl.ErrAuthenticationFailure
	}
	return nil
}

func parseFields(s string) (map[string]string, error) {
	out := make(map[string]string)
	for _, part := range strings.Split(s, ",") {
		idx := strings.IndexByte(part, '=')
		if idx < 0 {
			return nil, errMalformed
		}
		out[part[:idx]] = part[idx+1:]
	}
	return out, nil
}

type malformedError struct{}

func (malformedError) Error() string { return "scram: malformed message" }

var errMalformed = malformedError{}
