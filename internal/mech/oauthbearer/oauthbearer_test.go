// SPDX-License-Identifier: Apache-2.0

package oauthbearer_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	sasl "github.com/golang-auth/go-sasl"
	_ "github.com/golang-auth/go-sasl/internal/mech/oauthbearer"
)

func clientCallback(token string) sasl.Callback {
	return sasl.CallbackFuncs{
		CallbackFunc: func(ctx *sasl.Context, req *sasl.Request) error {
			if req.Is(sasl.OAuthBearerToken.Property()) {
				sasl.Satisfy(req, sasl.OAuthBearerToken, token)
			}
			return nil
		},
	}
}

func TestRoundTripAccepted(t *testing.T) {
	var validated string

	client, err := sasl.ClientStart(sasl.DefaultRegistry, sasl.MustMechname("OAUTHBEARER"),
		sasl.WithCallback(clientCallback("good-token")))
	require.NoError(t, err)

	server, err := sasl.ServerStart(sasl.DefaultRegistry, sasl.MustMechname("OAUTHBEARER"),
		sasl.WithCallback(sasl.CallbackFuncs{
			ValidateFunc: func(ctx *sasl.Context, req *sasl.ValidationRequest) error {
				tok, _ := sasl.GetValidationData(req, sasl.OAuthBearerToken)
				validated = tok
				return nil
			},
		}))
	require.NoError(t, err)

	out, state, err := client.Step(nil)
	require.NoError(t, err)
	require.Equal(t, sasl.StateRunning, state)

	_, state, err = server.Step(out)
	require.NoError(t, err)
	require.Equal(t, sasl.StateFinished, state)
	require.Equal(t, "good-token", validated)
}

func TestRejectedTokenErrorRound(t *testing.T) {
	client, err := sasl.ClientStart(sasl.DefaultRegistry, sasl.MustMechname("OAUTHBEARER"),
		sasl.WithCallback(clientCallback("bad-token")))
	require.NoError(t, err)

	server, err := sasl.ServerStart(sasl.DefaultRegistry, sasl.MustMechname("OAUTHBEARER"),
		sasl.WithCallback(sasl.CallbackFuncs{
			ValidateFunc: func(ctx *sasl.Context, req *sasl.ValidationRequest) error {
				req.Deny("invalid_token")
				return nil
			},
		}))
	require.NoError(t, err)

	out, _, err := client.Step(nil)
	require.NoError(t, err)

	errFrame, state, err := server.Step(out)
	require.NoError(t, err)
	require.Equal(t, sasl.StateRunning, state)
	require.JSONEq(t, `{"status":"invalid_token"}`, string(errFrame))

	ack, state, err := client.Step(errFrame)
	require.NoError(t, err)
	require.Equal(t, sasl.StateFinished, state)
	require.Equal(t, []byte{0x01}, ack)

	_, state, err = server.Step(ack)
	require.ErrorIs(t, err, sasl.ErrAuthenticationFailure)
	require.Equal(t, sasl.StateErrored, state)
}

func TestServerRejectsMalformedFrame(t *testing.T) {
	server, err := sasl.ServerStart(sasl.DefaultRegistry, sasl.MustMechname("OAUTHBEARER"),
		sasl.WithCallback(sasl.CallbackFuncs{}))
	require.NoError(t, err)

	_, _, err = server.Step([]byte("garbage"))
	require.ErrorIs(t, err, sasl.ErrBadFormat)
}
