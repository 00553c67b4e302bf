// SPDX-License-Identifier: Apache-2.0

package external_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	sasl "github.com/golang-auth/go-sasl"
	_ "github.com/golang-auth/go-sasl/internal/mech/external"
)

func TestRoundTripWithAuthzid(t *testing.T) {
	var got string

	client, err := sasl.ClientStart(sasl.DefaultRegistry, sasl.MustMechname("EXTERNAL"),
		sasl.WithCallback(sasl.CallbackFuncs{
			CallbackFunc: func(ctx *sasl.Context, req *sasl.Request) error {
				if req.Is(sasl.AuthzId.Property()) {
					sasl.Satisfy(req, sasl.AuthzId, "alice")
				}
				return nil
			},
		}))
	require.NoError(t, err)

	server, err := sasl.ServerStart(sasl.DefaultRegistry, sasl.MustMechname("EXTERNAL"),
		sasl.WithCallback(sasl.CallbackFuncs{
			ValidateFunc: func(ctx *sasl.Context, req *sasl.ValidationRequest) error {
				got, _ = sasl.GetValidationData(req, sasl.AuthzId)
				return nil
			},
		}))
	require.NoError(t, err)

	out, state, err := client.Step(nil)
	require.NoError(t, err)
	require.Equal(t, sasl.StateFinished, state)
	require.Equal(t, "alice", string(out))

	_, state, err = server.Step(out)
	require.NoError(t, err)
	require.Equal(t, sasl.StateFinished, state)
	require.Equal(t, "alice", got)
}

func TestClientOmitsAuthzidWhenAbsent(t *testing.T) {
	client, err := sasl.ClientStart(sasl.DefaultRegistry, sasl.MustMechname("EXTERNAL"),
		sasl.WithCallback(sasl.CallbackFuncs{}))
	require.NoError(t, err)

	out, state, err := client.Step(nil)
	require.NoError(t, err)
	require.Equal(t, sasl.StateFinished, state)
	require.Empty(t, out)
}
