// SPDX-License-Identifier: Apache-2.0

package openid20_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	sasl "github.com/golang-auth/go-sasl"
	_ "github.com/golang-auth/go-sasl/internal/mech/openid20"
)

func clientCallback(identifier string, browserVisited *bool) sasl.Callback {
	return sasl.CallbackFuncs{
		CallbackFunc: func(ctx *sasl.Context, req *sasl.Request) error {
			if req.Is(sasl.AuthId.Property()) {
				sasl.Satisfy(req, sasl.AuthId, identifier)
			}
			if req.Is(sasl.AuthenticateInBrowser.Property()) {
				*browserVisited = true
				sasl.Satisfy(req, sasl.AuthenticateInBrowser, struct{}{})
			}
			return nil
		},
	}
}

func TestRoundTripAccepted(t *testing.T) {
	var visited bool
	var validated string

	client, err := sasl.ClientStart(sasl.DefaultRegistry, sasl.MustMechname("OPENID20"),
		sasl.WithCallback(clientCallback("https://alice.example/openid", &visited)))
	require.NoError(t, err)

	server, err := sasl.ServerStart(sasl.DefaultRegistry, sasl.MustMechname("OPENID20"),
		sasl.WithCallback(sasl.CallbackFuncs{
			CallbackFunc: func(ctx *sasl.Context, req *sasl.Request) error {
				if req.Is(sasl.OpenID20RedirectURL.Property()) {
					sasl.Satisfy(req, sasl.OpenID20RedirectURL, "https://op.example/auth?token=abc")
				}
				return nil
			},
			ValidateFunc: func(ctx *sasl.Context, req *sasl.ValidationRequest) error {
				validated, _ = sasl.GetValidationData(req, sasl.AuthId)
				return nil
			},
		}))
	require.NoError(t, err)

	out, state, err := client.Step(nil)
	require.NoError(t, err)
	require.Equal(t, sasl.StateRunning, state)

	redirect, state, err := server.Step(out)
	require.NoError(t, err)
	require.Equal(t, sasl.StateRunning, state)
	require.Equal(t, "https://op.example/auth?token=abc", string(redirect))

	ack, state, err := client.Step(redirect)
	require.NoError(t, err)
	require.Equal(t, sasl.StateRunning, state)
	require.Equal(t, "=", string(ack))
	require.True(t, visited)

	_, state, err = server.Step(ack)
	require.NoError(t, err)
	require.Equal(t, sasl.StateFinished, state)
	require.Equal(t, "https://alice.example/openid", validated)
}

func TestRejectedAssertionErrorRound(t *testing.T) {
	var visited bool

	client, err := sasl.ClientStart(sasl.DefaultRegistry, sasl.MustMechname("OPENID20"),
		sasl.WithCallback(clientCallback("https://bob.example/openid", &visited)))
	require.NoError(t, err)

	server, err := sasl.ServerStart(sasl.DefaultRegistry, sasl.MustMechname("OPENID20"),
		sasl.WithCallback(sasl.CallbackFuncs{
			CallbackFunc: func(ctx *sasl.Context, req *sasl.Request) error {
				if req.Is(sasl.OpenID20RedirectURL.Property()) {
					sasl.Satisfy(req, sasl.OpenID20RedirectURL, "https://op.example/auth")
				}
				return nil
			},
			ValidateFunc: func(ctx *sasl.Context, req *sasl.ValidationRequest) error {
				req.Deny("assertion expired")
				return nil
			},
		}))
	require.NoError(t, err)

	out, _, err := client.Step(nil)
	require.NoError(t, err)

	redirect, _, err := server.Step(out)
	require.NoError(t, err)

	ack, _, err := client.Step(redirect)
	require.NoError(t, err)

	errFrame, state, err := server.Step(ack)
	require.NoError(t, err)
	require.Equal(t, sasl.StateRunning, state)
	require.Equal(t, "openid.error=assertion expired", string(errFrame))

	final, state, err := client.Step(errFrame)
	require.NoError(t, err)
	require.Equal(t, sasl.StateFinished, state)
	require.Empty(t, final)

	_, state, err = server.Step(final)
	require.ErrorIs(t, err, sasl.ErrAuthenticationFailure)
	require.Equal(t, sasl.StateErrored, state)
}

func TestServerRejectsMalformedHeader(t *testing.T) {
	server, err := sasl.ServerStart(sasl.DefaultRegistry, sasl.MustMechname("OPENID20"),
		sasl.WithCallback(sasl.CallbackFuncs{}))
	require.NoError(t, err)

	_, _, err = server.Step([]byte("garbage"))
	require.ErrorIs(t, err, sasl.ErrBadFormat)
}
