// SPDX-License-Identifier: Apache-2.0

package login_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	sasl "github.com/golang-auth/go-sasl"
	_ "github.com/golang-auth/go-sasl/internal/mech/login"
)

func TestRoundTrip(t *testing.T) {
	var gotUser, gotPassword string

	client, err := sasl.ClientStart(sasl.DefaultRegistry, sasl.MustMechname("LOGIN"),
		sasl.WithCallback(sasl.CallbackFuncs{
			CallbackFunc: func(ctx *sasl.Context, req *sasl.Request) error {
				switch {
				case req.Is(sasl.AuthId.Property()):
					sasl.Satisfy(req, sasl.AuthId, "alice")
				case req.Is(sasl.Password.Property()):
					sasl.Satisfy(req, sasl.Password, "hunter2")
				}
				return nil
			},
		}))
	require.NoError(t, err)

	server, err := sasl.ServerStart(sasl.DefaultRegistry, sasl.MustMechname("LOGIN"),
		sasl.WithCallback(sasl.CallbackFuncs{
			ValidateFunc: func(ctx *sasl.Context, req *sasl.ValidationRequest) error {
				gotUser, _ = sasl.GetValidationData(req, sasl.AuthId)
				gotPassword, _ = sasl.GetValidationData(req, sasl.Password)
				return nil
			},
		}))
	require.NoError(t, err)

	prompt1, state, err := server.Step(nil)
	require.NoError(t, err)
	require.Equal(t, sasl.StateRunning, state)
	require.Equal(t, "Username:", string(prompt1))

	user, state, err := client.Step(nil)
	require.NoError(t, err)
	require.Equal(t, sasl.StateRunning, state)
	require.Equal(t, "alice", string(user))

	prompt2, state, err := server.Step(user)
	require.NoError(t, err)
	require.Equal(t, sasl.StateRunning, state)
	require.Equal(t, "Password:", string(prompt2))

	password, state, err := client.Step(prompt2)
	require.NoError(t, err)
	require.Equal(t, sasl.StateFinished, state)
	require.Equal(t, "hunter2", string(password))

	_, state, err = server.Step(password)
	require.NoError(t, err)
	require.Equal(t, sasl.StateFinished, state)
	require.Equal(t, "alice", gotUser)
	require.Equal(t, "hunter2", gotPassword)
}
