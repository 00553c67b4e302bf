// SPDX-License-Identifier: Apache-2.0

package sasl_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	sasl "github.com/golang-auth/go-sasl"
)

func newTestRegistry() *sasl.Registry {
	reg := sasl.NewRegistry()
	reg.Register(sasl.Descriptor{
		Name:      sasl.MustMechname("PLAIN"),
		Priority:  10,
		First:     sasl.SideClient,
		NewClient: func() sasl.Mechanism { return nil },
		NewServer: func() sasl.Mechanism { return nil },
	})
	reg.Register(sasl.Descriptor{
		Name:                   sasl.MustMechname("SCRAM-SHA-256-PLUS"),
		Priority:               41,
		First:                  sasl.SideClient,
		RequiresChannelBinding: true,
		NewClient:              func() sasl.Mechanism { return nil },
		NewServer:              func() sasl.Mechanism { return nil },
	})
	reg.Register(sasl.Descriptor{
		Name:      sasl.MustMechname("SCRAM-SHA-256"),
		Priority:  40,
		First:     sasl.SideClient,
		NewClient: func() sasl.Mechanism { return nil },
		NewServer: func() sasl.Mechanism { return nil },
	})
	return reg
}

func TestSuggestClientFromListParsesWireFormat(t *testing.T) {
	reg := newTestRegistry()

	name, ok := reg.SuggestClientFromList("PLAIN SCRAM-SHA-256 SCRAM-SHA-256-PLUS", false)
	require.True(t, ok)
	require.Equal(t, "SCRAM-SHA-256", name.String())

	name, ok = reg.SuggestClientFromList("PLAIN SCRAM-SHA-256 SCRAM-SHA-256-PLUS", true)
	require.True(t, ok)
	require.Equal(t, "SCRAM-SHA-256-PLUS", name.String())
}

func TestOfferListRendersSpaceSeparatedInPriorityOrder(t *testing.T) {
	reg := newTestRegistry()

	list := reg.OfferList(func(sasl.Descriptor) bool { return true })
	require.Equal(t, "SCRAM-SHA-256-PLUS SCRAM-SHA-256 PLAIN", list)
}

func TestParseJoinMechanismListRoundTrip(t *testing.T) {
	names := []string{"PLAIN", "LOGIN", "GSSAPI"}
	require.Equal(t, names, sasl.ParseMechanismList(sasl.JoinMechanismList(names)))
}

func TestMechanismStrippedDetectsRemovedStrongMechanism(t *testing.T) {
	trusted := []string{"PLAIN", "SCRAM-SHA-256", "SCRAM-SHA-256-PLUS"}

	require.False(t, sasl.MechanismStripped(trusted, trusted))
	require.True(t, sasl.MechanismStripped(trusted, []string{"PLAIN"}))
}
