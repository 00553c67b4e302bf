// SPDX-License-Identifier: Apache-2.0

// Package digestmd5 implements DIGEST-MD5, RFC 2831, including its
// integrity ("auth-int") and RC4 confidentiality ("auth-conf") security
// layers. Grounded on original_source/src/mechanisms/digest_md5/
// {client,server,securitylayer}.rs for message construction and the
// sequence-numbered framing of the security layer.
package digestmd5

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/rc4"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	sasl "github.com/golang-auth/go-sasl"
	"github.com/golang-auth/go-sasl/internal/digestutil"
	"github.com/golang-auth/go-sasl/internal/scramutil"
)

func init() {
	sasl.Register(sasl.Descriptor{
		Name:      sasl.MustMechname("DIGEST-MD5"),
		Priority:  25,
		First:     sasl.SideServer,
		NewClient: func() sasl.Mechanism { return &client{} },
		NewServer: func() sasl.Mechanism { return &server{} },
	})
}

const (
	qopAuth     = "auth"
	qopAuthInt  = "auth-int"
	qopAuthConf = "auth-conf"
)

// ---- client ----

type client struct {
	step int

	qop             string
	expectedRspauth string
	kic, kis        []byte // integrity/confidentiality send & receive keys
	kcc, kcs        []byte
	sendSeq         uint32
	recvSeq         uint32
	rc4Send         *rc4.Cipher
	rc4Recv         *rc4.Cipher
}

func (c *client) HasSecurityLayer() bool {
	return c.qop == qopAuthInt || c.qop == qopAuthConf
}

func (c *client) Step(ctx *sasl.Context, input []byte, w io.Writer) (sasl.StepStatus, int, error) {
	switch c.step {
	case 0:
		return c.stepRespond(ctx, input, w)
	case 1:
		return c.stepVerify(input)
	default:
		return sasl.StepDone, 0, sasl.ErrMechanismDone
	}
}

func (c *client) stepRespond(ctx *sasl.Context, input []byte, w io.Writer) (sasl.StepStatus, int, error) {
	if input == nil {
		return sasl.StepDone, 0, sasl.ErrInputDataRequired
	}
	pairs, err := digestutil.ParsePairs(string(input))
	if err != nil {
		return sasl.StepDone, 0, sasl.ErrBadFormat
	}

	nonce, ok := digestutil.Get(pairs, "nonce")
	if !ok {
		return sasl.StepDone, 0, sasl.ErrBadFormat
	}
	realm, _ := digestutil.Get(pairs, "realm")
	qopOffered, _ := digestutil.Get(pairs, "qop")
	offered := strings.Split(qopOffered, ",")
	if qopOffered == "" {
		offered = []string{qopAuth}
	}

	authid, err := sasl.Need(ctx, sasl.AuthId)
	if err != nil {
		return sasl.StepDone, 0, err
	}
	password, err := sasl.Need(ctx, sasl.Password)
	if err != nil {
		return sasl.StepDone, 0, err
	}
	digestURI, err := sasl.Need(ctx, sasl.Service)
	if err != nil {
		return sasl.StepDone, 0, err
	}
	if host, ok, herr := sasl.MaybeNeed(ctx, sasl.Hostname); herr == nil && ok {
		digestURI += "/" + host
	}

	qop := chooseQOP(offered)
	c.qop = qop

	cnonce, err := scramutil.GenerateNonce(16)
	if err != nil {
		return sasl.StepDone, 0, err
	}

	ha1 := computeHA1(authid, realm, password, nonce, cnonce)
	ha2 := computeHA2("AUTHENTICATE", digestURI, qop)
	response := computeResponse(ha1, nonce, "00000001", cnonce, qop, ha2)

	rspauthHA2 := computeHA2("", digestURI, qop)
	c.expectedRspauth = "rspauth=" + computeResponse(ha1, nonce, "00000001", cnonce, qop, rspauthHA2)

	var b strings.Builder
	writeQuoted(&b, "username", authid)
	if realm != "" {
		writeQuoted(&b, "realm", realm)
	}
	writeQuoted(&b, "nonce", nonce)
	fmt.Fprintf(&b, ",nc=00000001")
	writeQuoted(&b, "cnonce", cnonce)
	fmt.Fprintf(&b, ",qop=%s", qop)
	writeQuoted(&b, "digest-uri", digestURI)
	fmt.Fprintf(&b, ",response=%s", response)
	fmt.Fprintf(&b, ",charset=utf-8")

	out := strings.TrimPrefix(b.String(), ",")

	if qop != qopAuth {
		c.deriveSecurityLayerKeys(ha1)
	}

	c.step = 1
	n, werr := io.WriteString(w, out)
	if werr != nil {
		return sasl.StepContinue, n, werr
	}
	return sasl.StepContinue, n, nil
}

func (c *client) stepVerify(input []byte) (sasl.StepStatus, int, error) {
	c.step = 2
	if input == nil {
		return sasl.StepDone, 0, sasl.ErrInputDataRequired
	}
	if !scramutil.ConstantTimeEqual(input, []byte(c.expectedRspauth)) {
		return sasl.StepDone, 0, sasl.ErrServerSignatureMismatch
	}
	return sasl.StepDone, 0, nil
}

func (c *client) Encode(input []byte, w io.Writer) (int, error) {
	return encodeFrame(c.qop, c.rc4Send, c.kic, &c.sendSeq, input, w)
}

func (c *client) Decode(input []byte, w io.Writer) (int, error) {
	return decodeFrame(c.qop, c.rc4Recv, c.kis, &c.recvSeq, input, w)
}

func (c *client) deriveSecurityLayerKeys(ha1 []byte) {
	c.kic = integrityKey(ha1, "client")
	c.kis = integrityKey(ha1, "server")
	if c.qop == qopAuthConf {
		c.kcc = confidentialityKey(ha1, "client")
		c.kcs = confidentialityKey(ha1, "server")
		c.rc4Send, _ = rc4.NewCipher(c.kcc)
		c.rc4Recv, _ = rc4.NewCipher(c.kcs)
	}
}

func chooseQOP(offered []string) string {
	for _, want := range []string{qopAuthConf, qopAuthInt, qopAuth} {
		for _, o := range offered {
			if strings.TrimSpace(o) == want {
				return want
			}
		}
	}
	return qopAuth
}

// ---- server ----

type server struct {
	step   int
	nonce  string
	qop    string
	authid string

	kic, kis []byte
	kcc, kcs []byte
	sendSeq  uint32
	recvSeq  uint32
	rc4Send  *rc4.Cipher
	rc4Recv  *rc4.Cipher
}

func (s *server) HasSecurityLayer() bool {
	return s.qop == qopAuthInt || s.qop == qopAuthConf
}

func (s *server) Step(ctx *sasl.Context, input []byte, w io.Writer) (sasl.StepStatus, int, error) {
	switch s.step {
	case 0:
		return s.stepChallenge(ctx, w)
	case 1:
		return s.stepVerify(ctx, input)
	default:
		return sasl.StepDone, 0, sasl.ErrMechanismDone
	}
}

func (s *server) stepChallenge(ctx *sasl.Context, w io.Writer) (sasl.StepStatus, int, error) {
	nonce, err := scramutil.GenerateNonce(16)
	if err != nil {
		return sasl.StepContinue, 0, err
	}
	s.nonce = nonce
	realm, _, _ := sasl.MaybeNeed(ctx, sasl.Realm)

	var b strings.Builder
	if realm != "" {
		writeQuoted(&b, "realm", realm)
	}
	writeQuoted(&b, "nonce", nonce)
	fmt.Fprintf(&b, ",qop=\"auth,auth-int,auth-conf\"")
	fmt.Fprintf(&b, ",charset=utf-8")
	fmt.Fprintf(&b, ",algorithm=md5-sess")

	out := strings.TrimPrefix(b.String(), ",")
	s.step = 1
	n, werr := io.WriteString(w, out)
	if werr != nil {
		return sasl.StepContinue, n, werr
	}
	return sasl.StepContinue, n, nil
}

func (s *server) stepVerify(ctx *sasl.Context, input []byte, w io.Writer) (sasl.StepStatus, int, error) {
	s.step = 2
	if input == nil {
		return sasl.StepDone, 0, sasl.ErrInputDataRequired
	}

	pairs, err := digestutil.ParsePairs(string(input))
	if err != nil {
		return sasl.StepDone, 0, sasl.ErrBadFormat
	}

	authid, ok := digestutil.Get(pairs, "username")
	if !ok {
		return sasl.StepDone, 0, sasl.ErrBadFormat
	}
	realm, _ := digestutil.Get(pairs, "realm")
	nonce, ok := digestutil.Get(pairs, "nonce")
	if !ok || nonce != s.nonce {
		return sasl.StepDone, 0, sasl.ErrBadNonce
	}
	cnonce, ok := digestutil.Get(pairs, "cnonce")
	if !ok {
		return sasl.StepDone, 0, sasl.ErrBadFormat
	}
	nc, ok := digestutil.Get(pairs, "nc")
	if !ok {
		return sasl.StepDone, 0, sasl.ErrBadFormat
	}
	qop, ok := digestutil.Get(pairs, "qop")
	if !ok {
		qop = qopAuth
	}
	digestURI, ok := digestutil.Get(pairs, "digest-uri")
	if !ok {
		return sasl.StepDone, 0, sasl.ErrBadFormat
	}
	gotResponse, ok := digestutil.Get(pairs, "response")
	if !ok {
		return sasl.StepDone, 0, sasl.ErrBadFormat
	}

	sasl.Set(ctx, sasl.AuthId, authid)
	password, err := sasl.Need(ctx, sasl.Password)
	if err != nil {
		return sasl.StepDone, 0, err
	}

	ha1 := computeHA1(authid, realm, password, nonce, cnonce)
	ha2 := computeHA2("AUTHENTICATE", digestURI, qop)
	wantResponse := computeResponse(ha1, nonce, nc, cnonce, qop, ha2)

	if !scramutil.ConstantTimeEqual([]byte(wantResponse), []byte(gotResponse)) {
		return sasl.StepDone, 0, sasl.ErrAuthenticationFailure
	}

	s.qop = qop
	s.authid = authid
	if qop != qopAuth {
		s.kic = integrityKey(ha1, "server")
		s.kis = integrityKey(ha1, "client")
		if qop == qopAuthConf {
			s.kcc = confidentialityKey(ha1, "server")
			s.kcs = confidentialityKey(ha1, "client")
			s.rc4Send, _ = rc4.NewCipher(s.kcc)
			s.rc4Recv, _ = rc4.NewCipher(s.kcs)
		}
	}

	rspauthHA2 := computeHA2("", digestURI, qop)
	rspauth := computeResponse(ha1, nonce, nc, cnonce, qop, rspauthHA2)

	err = ctx.Validate(sasl.ValidationSimple, func(r *sasl.ValidationRequest) {
		sasl.AttachValidationData(r, sasl.AuthId, authid)
	})
	if err != nil {
		return sasl.StepDone, 0, err
	}

	out := "rspauth=" + rspauth
	n, werr := io.WriteString(w, out)
	if werr != nil {
		return sasl.StepDone, n, werr
	}
	return sasl.StepDone, n, nil
}

func (s *server) Encode(input []byte, w io.Writer) (int, error) {
	return encodeFrame(s.qop, s.rc4Send, s.kic, &s.sendSeq, input, w)
}

func (s *server) Decode(input []byte, w io.Writer) (int, error) {
	return decodeFrame(s.qop, s.rc4Recv, s.kis, &s.recvSeq, input, w)
}

// ---- shared hash/key derivation (RFC 2831 §2.1.2, §2.4) ----

func computeHA1(authid, realm, password, nonce, cnonce string) []byte {
	h := md5.New()
	fmt.Fprintf(h, "%s:%s:%s", authid, realm, password)
	a1base := h.Sum(nil)

	h2 := md5.New()
	h2.Write(a1base)
	fmt.Fprintf(h2, ":%s:%s", nonce, cnonce)
	return h2.Sum(nil)
}

func computeHA2(method, digestURI, qop string) []byte {
	h := md5.New()
	if qop == qopAuthInt || qop == qopAuthConf {
		fmt.Fprintf(h, "%s:%s:00000000000000000000000000000000", method, digestURI)
	} else {
		fmt.Fprintf(h, "%s:%s", method, digestURI)
	}
	return h.Sum(nil)
}

func computeResponse(ha1 []byte, nonce, nc, cnonce, qop string, ha2 []byte) string {
	h := md5.New()
	fmt.Fprintf(h, "%s:%s:%s:%s:%s:%s", hex.EncodeToString(ha1), nonce, nc, cnonce, qop, hex.EncodeToString(ha2))
	return hex.EncodeToString(h.Sum(nil))
}

func integrityKey(ha1 []byte, side string) []byte {
	h := md5.New()
	h.Write(ha1)
	io.WriteString(h, "Digest session key to "+side+"-to-"+otherSide(side)+" signing key magic constant")
	return h.Sum(nil)
}

func confidentialityKey(ha1 []byte, side string) []byte {
	h := md5.New()
	h.Write(ha1)
	io.WriteString(h, "Digest session key to "+side+"-to-"+otherSide(side)+" sealing key magic constant")
	return h.Sum(nil)
}

func otherSide(side string) string {
	if side == "client" {
		return "server"
	}
	return "client"
}

func writeQuoted(b *strings.Builder, key, value string) {
	b.WriteByte(',')
	b.WriteString(key)
	b.WriteByte('=')
	b.WriteString(digestutil.WriteQuoted(value))
}

// ---- security-layer framing (RFC 2831 §2.3) ----
//
// Each protected message is wrapped as:
//
//	plaintext || HMAC-MD5(Kc, seqnum || plaintext)[0:10] || 0x0001 || seqnum(4, BE)
//
// with the first 10 bytes of the HMAC used as the message integrity check
// (or, for auth-conf, the plaintext RC4-encrypted before framing), the
// fixed 2-byte value 0x0001 identifying this as a DIGEST-MD5 message (the
// only message type this mechanism emits), and seqnum a 32-bit big-endian
// counter.

// digestMsgType is the 2-byte message-type field RFC 2831 §2.3 places
// between the MAC and the sequence number; DIGEST-MD5 only ever sends
// type 1.
var digestMsgType = [2]byte{0x00, 0x01}

func encodeFrame(qop string, cipher *rc4.Cipher, kic []byte, seq *uint32, input []byte, w io.Writer) (int, error) {
	if qop != qopAuthInt && qop != qopAuthConf {
		return 0, sasl.ErrNoSecurityLayer
	}

	payload := input
	if qop == qopAuthConf {
		encrypted := make([]byte, len(input))
		cipher.XORKeyStream(encrypted, input)
		payload = encrypted
	}

	var seqBuf [4]byte
	binary.BigEndian.PutUint32(seqBuf[:], *seq)

	mac := hmac.New(md5.New, kic)
	mac.Write(seqBuf[:])
	mac.Write(input)
	mic := mac.Sum(nil)[:10]

	*seq++

	var buf []byte
	buf = append(buf, payload...)
	buf = append(buf, mic...)
	buf = append(buf, digestMsgType[:]...)
	buf = append(buf, seqBuf[:]...)

	n, err := w.Write(buf)
	return n, err
}

func decodeFrame(qop string, cipher *rc4.Cipher, kis []byte, seq *uint32, input []byte, w io.Writer) (int, error) {
	if qop != qopAuthInt && qop != qopAuthConf {
		return 0, sasl.ErrNoSecurityLayer
	}
	if len(input) < 16 {
		return 0, sasl.ErrIntegrityError
	}

	payload := input[:len(input)-16]
	mic := input[len(input)-16 : len(input)-6]
	msgType := input[len(input)-6 : len(input)-4]
	seqBuf := input[len(input)-4:]

	if [2]byte(msgType) != digestMsgType {
		return 0, sasl.ErrIntegrityError
	}

	gotSeq := binary.BigEndian.Uint32(seqBuf)
	if gotSeq != *seq {
		return 0, sasl.ErrIntegrityError
	}

	plaintext := payload
	if qop == qopAuthConf {
		decrypted := make([]byte, len(payload))
		cipher.XORKeyStream(decrypted, payload)
		plaintext = decrypted
	}

	mac := hmac.New(md5.New, kis)
	mac.Write(seqBuf)
	mac.Write(plaintext)
	want := mac.Sum(nil)[:10]
	if !scramutil.ConstantTimeEqual(want, mic) {
		return 0, sasl.ErrIntegrityError
	}

	*seq++
	return w.Write(plaintext)
}
