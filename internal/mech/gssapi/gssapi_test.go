// SPDX-License-Identifier: Apache-2.0

package gssapi_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	gapi "github.com/golang-auth/go-gssapi/v3"

	sasl "github.com/golang-auth/go-sasl"
	"github.com/golang-auth/go-sasl/internal/mech/gssapi"
)

// fakeName is a minimal GssName stub: it carries just enough to answer
// Display(), since that is all the mechanism consults.
type fakeName struct{ display string }

func (n fakeName) Compare(gapi.GssName) (bool, error)       { return false, nil }
func (n fakeName) Display() (string, gapi.GssNameType, error) {
	return n.display, gapi.GSS_NT_HOSTBASED_SERVICE, nil
}
func (n fakeName) Release() error                           { return nil }
func (n fakeName) InquireMechs() ([]gapi.GssMech, error)     { return nil, nil }
func (n fakeName) Canonicalize(gapi.GssMech) (gapi.GssName, error) { return n, nil }
func (n fakeName) Export() ([]byte, error)                   { return []byte(n.display), nil }
func (n fakeName) Duplicate() (gapi.GssName, error)          { return n, nil }

// fakeSecContext simulates a single-round-trip GSSAPI context establishment
// with a no-op Wrap/Unwrap transform, so the test exercises this package's
// state machine and framing rather than real Kerberos cryptography.
type fakeSecContext struct {
	initiator   bool
	established bool
	peerName    string
	flags       gapi.ContextFlag
}

func (c *fakeSecContext) Delete() ([]byte, error)       { return nil, nil }
func (c *fakeSecContext) ProcessToken([]byte) error     { return nil }
func (c *fakeSecContext) ExpiresAt() (*gapi.GssLifetime, error) {
	return &gapi.GssLifetime{IsIndefinite: true}, nil
}
func (c *fakeSecContext) Inquire() (*gapi.SecContextInfo, error) {
	flags := c.flags
	if flags == 0 {
		flags = gapi.ContextFlagInteg | gapi.ContextFlagConf | gapi.ContextFlagMutual
	}
	return &gapi.SecContextInfo{
		Flags:            flags,
		FullyEstablished: c.established,
		InitiatorName:    fakeName{display: c.peerName},
	}, nil
}
func (c *fakeSecContext) WrapSizeLimit(_ bool, max uint, _ gapi.QoP) (uint, error) { return max, nil }
func (c *fakeSecContext) Export() ([]byte, error)                                  { return nil, nil }
func (c *fakeSecContext) GetMIC(msg []byte, _ gapi.QoP) ([]byte, error)            { return msg, nil }
func (c *fakeSecContext) VerifyMIC(_ []byte, _ []byte) (gapi.QoP, error)           { return 0, nil }
func (c *fakeSecContext) Wrap(msg []byte, conf bool, _ gapi.QoP) ([]byte, bool, error) {
	return append([]byte{}, msg...), conf, nil
}
func (c *fakeSecContext) Unwrap(msg []byte) ([]byte, bool, gapi.QoP, error) {
	return append([]byte{}, msg...), false, 0, nil
}
func (c *fakeSecContext) ContinueNeeded() bool { return !c.established }
func (c *fakeSecContext) Continue(tokIn []byte) ([]byte, error) {
	if c.initiator {
		if tokIn == nil {
			return []byte("init-token"), nil
		}
		c.established = true
		return nil, nil
	}
	c.established = true
	return []byte("accept-token"), nil
}

type fakeProvider struct {
	peerName string
	flags    gapi.ContextFlag
}

func (p fakeProvider) Name() string { return "fake" }
func (p fakeProvider) ImportName(name string, _ gapi.GssNameType) (gapi.GssName, error) {
	return fakeName{display: name}, nil
}
func (p fakeProvider) AcquireCredential(gapi.GssName, []gapi.GssMech, gapi.CredUsage, *gapi.GssLifetime) (gapi.Credential, error) {
	return nil, nil
}
func (p fakeProvider) InitSecContext(gapi.GssName, ...gapi.InitSecContextOption) (gapi.SecContext, error) {
	return &fakeSecContext{initiator: true, flags: p.flags}, nil
}
func (p fakeProvider) AcceptSecContext(...gapi.AcceptSecContextOption) (gapi.SecContext, error) {
	return &fakeSecContext{initiator: false, peerName: p.peerName, flags: p.flags}, nil
}
func (p fakeProvider) ImportSecContext([]byte) (gapi.SecContext, error)           { return nil, nil }
func (p fakeProvider) InquireNamesForMech(gapi.GssMech) ([]gapi.GssNameType, error) { return nil, nil }
func (p fakeProvider) IndicateMechs() ([]gapi.GssMech, error)                     { return nil, nil }
func (p fakeProvider) HasExtension(gapi.GssapiExtension) bool                     { return false }

func serviceCallback() sasl.Callback {
	return sasl.CallbackFuncs{
		CallbackFunc: func(ctx *sasl.Context, req *sasl.Request) error {
			switch {
			case req.Is(sasl.Service.Property()):
				sasl.Satisfy(req, sasl.Service, "imap")
			case req.Is(sasl.Hostname.Property()):
				sasl.Satisfy(req, sasl.Hostname, "mail.example.com")
			}
			return nil
		},
	}
}

func TestRoundTrip(t *testing.T) {
	var validated string

	client, err := sasl.ClientStart(sasl.DefaultRegistry, sasl.MustMechname("GSSAPI"),
		sasl.WithCallback(serviceCallback()),
		gssapi.WithProvider(fakeProvider{}))
	require.NoError(t, err)

	server, err := sasl.ServerStart(sasl.DefaultRegistry, sasl.MustMechname("GSSAPI"),
		sasl.WithCallback(sasl.CallbackFuncs{
			ValidateFunc: func(ctx *sasl.Context, req *sasl.ValidationRequest) error {
				validated, _ = sasl.GetValidationData(req, sasl.AuthId)
				return nil
			},
		}),
		gssapi.WithProvider(fakeProvider{peerName: "alice@EXAMPLE.COM"}))
	require.NoError(t, err)

	// leg 1: client sends its initial token
	out, state, err := client.Step(nil)
	require.NoError(t, err)
	require.Equal(t, sasl.StateRunning, state)

	// leg 2: server accepts, emits its own context token
	out, state, err = server.Step(out)
	require.NoError(t, err)
	require.Equal(t, sasl.StateRunning, state)

	// leg 3: client finishes context establishment; nothing more to flush
	out, state, err = client.Step(out)
	require.NoError(t, err)
	require.Equal(t, sasl.StateRunning, state)

	// leg 4: server, with context established and no token queued, sends
	// the wrapped security-layer offer directly
	out, state, err = server.Step(out)
	require.NoError(t, err)
	require.Equal(t, sasl.StateRunning, state)

	// leg 5: client answers with its chosen security layer
	out, state, err = client.Step(out)
	require.NoError(t, err)
	require.Equal(t, sasl.StateFinished, state)

	// leg 6: server verifies the choice and validates the identity
	_, state, err = server.Step(out)
	require.NoError(t, err)
	require.Equal(t, sasl.StateFinished, state)

	require.Equal(t, "alice@EXAMPLE.COM", validated)
	require.True(t, client.HasSecurityLayer())
	require.True(t, server.HasSecurityLayer())

	var wire bytes.Buffer
	_, err = client.Encode([]byte("hello"), &wire)
	require.NoError(t, err)

	var plain bytes.Buffer
	_, err = server.Decode(wire.Bytes(), &plain)
	require.NoError(t, err)
	require.Equal(t, "hello", plain.String())
}

func TestClientRequiresProvider(t *testing.T) {
	client, err := sasl.ClientStart(sasl.DefaultRegistry, sasl.MustMechname("GSSAPI"),
		sasl.WithCallback(serviceCallback()))
	require.NoError(t, err)

	_, _, err = client.Step(nil)
	require.Error(t, err)
}

// TestSSFNegotiationFailsBadContextWhenRequiredLayerUnavailable exercises
// spec.md §8's vector: a server context with no integrity/confidentiality
// flags only ever offers layer-none, so a client requiring at least
// integrity must fail the negotiation step with BadContext rather than
// silently settling for no security layer.
func TestSSFNegotiationFailsBadContextWhenRequiredLayerUnavailable(t *testing.T) {
	client, err := sasl.ClientStart(sasl.DefaultRegistry, sasl.MustMechname("GSSAPI"),
		sasl.WithCallback(serviceCallback()),
		gssapi.WithProvider(fakeProvider{}),
		gssapi.WithMinimumSecurityLayer(gssapi.LayerIntegrity))
	require.NoError(t, err)

	server, err := sasl.ServerStart(sasl.DefaultRegistry, sasl.MustMechname("GSSAPI"),
		sasl.WithCallback(sasl.CallbackFuncs{}),
		gssapi.WithProvider(fakeProvider{peerName: "alice@EXAMPLE.COM", flags: gapi.ContextFlagMutual}))
	require.NoError(t, err)

	out, state, err := client.Step(nil)
	require.NoError(t, err)
	require.Equal(t, sasl.StateRunning, state)

	out, state, err = server.Step(out)
	require.NoError(t, err)
	require.Equal(t, sasl.StateRunning, state)

	out, state, err = client.Step(out)
	require.NoError(t, err)
	require.Equal(t, sasl.StateRunning, state)

	// server, with only Mutual established (no Integ/Conf), offers
	// layer-none only.
	out, state, err = server.Step(out)
	require.NoError(t, err)
	require.Equal(t, sasl.StateRunning, state)

	_, state, err = client.Step(out)
	require.Error(t, err)
	require.ErrorIs(t, err, sasl.ErrBadContext)
	require.Equal(t, sasl.StateErrored, state)
}

// TestSSFNegotiationFailsBadContextWhenOfferEmpty covers the degenerate
// case of spec.md §4.13's "layers intersect to the empty set" rule: an
// offer token with none of the three known bits set (not even layer-none)
// gives the negotiation switch nothing to agree on.
func TestSSFNegotiationFailsBadContextWhenOfferEmpty(t *testing.T) {
	client, err := sasl.ClientStart(sasl.DefaultRegistry, sasl.MustMechname("GSSAPI"),
		sasl.WithCallback(serviceCallback()),
		gssapi.WithProvider(fakeProvider{}))
	require.NoError(t, err)

	out, state, err := client.Step(nil)
	require.NoError(t, err)
	require.Equal(t, sasl.StateRunning, state)

	_, state, err = client.Step(out)
	require.NoError(t, err)
	require.Equal(t, sasl.StateRunning, state)

	// fakeSecContext.Unwrap is a no-op passthrough, so this raw 4-byte
	// token stands in directly for an unwrapped offer with no bits set.
	_, state, err = client.Step([]byte{0x00, 0x00, 0x00, 0x00})
	require.Error(t, err)
	require.ErrorIs(t, err, sasl.ErrBadContext)
	require.Equal(t, sasl.StateErrored, state)
}
