// SPDX-License-Identifier: Apache-2.0

package gs2_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/golang-auth/go-sasl/internal/gs2"
)

func TestBuildParseRoundTrip(t *testing.T) {
	cases := []struct {
		name       string
		flag       gs2.CBFlag
		cbName     string
		authzid    string
		hasAuthzid bool
	}{
		{"not-supported, no authzid", gs2.NotSupported, "", "", false},
		{"supported-not-used, no authzid", gs2.SupportedNotUsed, "", "", false},
		{"not-supported, authzid", gs2.NotSupported, "", "alice", true},
		{"used, no authzid", gs2.Used, "tls-unique", "", false},
		{"used, authzid with comma", gs2.Used, "tls-server-end-point", "a,b=c", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			header := gs2.Build(tc.flag, tc.cbName, tc.authzid, tc.hasAuthzid)
			rest := []byte("payload-after-header")
			h, remainder, err := gs2.Parse(append([]byte(header), rest...))
			require.NoError(t, err)
			require.Equal(t, tc.flag, h.Flag)
			require.Equal(t, tc.hasAuthzid, h.HasAuthzID)
			if tc.hasAuthzid {
				require.Equal(t, tc.authzid, h.AuthzID)
			}
			if tc.flag == gs2.Used {
				require.Equal(t, tc.cbName, h.CBName)
			}
			require.Equal(t, rest, remainder)
			require.Equal(t, header, h.Raw)
		})
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	cases := [][]byte{
		[]byte("x,,"),
		[]byte("p=cb-name-no-comma"),
		[]byte("n,a=unterminated"),
		[]byte(""),
	}
	for _, c := range cases {
		_, _, err := gs2.Parse(c)
		require.Error(t, err)
	}
}

func TestParseAuthzidUnescapesSaslname(t *testing.T) {
	h, rest, err := gs2.Parse([]byte("n,a=domain=3Duser=2Cname,rest"))
	require.NoError(t, err)
	require.True(t, h.HasAuthzID)
	require.Equal(t, "domain=user,name", h.AuthzID)
	require.Equal(t, []byte("rest"), rest)
}
