// SPDX-License-Identifier: Apache-2.0

package digestutil_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/golang-auth/go-sasl/internal/digestutil"
)

func TestParsePairsQuotedAndBareTokens(t *testing.T) {
	pairs, err := digestutil.ParsePairs(`realm="elwood.innosoft.com",nonce="OA6MG9tEQGm2hh",qop="auth,auth-int",algorithm=md5-sess`)
	require.NoError(t, err)

	realm, ok := digestutil.Get(pairs, "realm")
	require.True(t, ok)
	require.Equal(t, "elwood.innosoft.com", realm)

	algorithm, ok := digestutil.Get(pairs, "algorithm")
	require.True(t, ok)
	require.Equal(t, "md5-sess", algorithm)

	_, ok = digestutil.Get(pairs, "missing")
	require.False(t, ok)
}

func TestParsePairsToleratesLinearWhitespace(t *testing.T) {
	pairs, err := digestutil.ParsePairs("realm=\"x\" ,\tnonce=\"abc\"\r\n, qop=auth")
	require.NoError(t, err)
	require.Len(t, pairs, 3)
	require.Equal(t, "abc", mustGet(t, pairs, "nonce"))
	require.Equal(t, "auth", mustGet(t, pairs, "qop"))
}

func TestParsePairsHandlesEscapedQuoteInValue(t *testing.T) {
	pairs, err := digestutil.ParsePairs(`realm="a\"b"`)
	require.NoError(t, err)
	require.Equal(t, `a"b`, mustGet(t, pairs, "realm"))
}

func TestParsePairsRejectsMalformedInput(t *testing.T) {
	cases := []string{
		`realm="unterminated`,
		`novalue`,
		`realm="a" nonce="b"`,
	}
	for _, c := range cases {
		_, err := digestutil.ParsePairs(c)
		require.Error(t, err)
	}
}

func TestNeedsQuoting(t *testing.T) {
	require.False(t, digestutil.NeedsQuoting("md5-sess"))
	require.False(t, digestutil.NeedsQuoting("a.b-c_d9"))
	require.True(t, digestutil.NeedsQuoting(""))
	require.True(t, digestutil.NeedsQuoting("has space"))
	require.True(t, digestutil.NeedsQuoting(`has"quote`))
}

func TestWriteQuotedEscapesBackslashAndQuote(t *testing.T) {
	require.Equal(t, `"plain"`, digestutil.WriteQuoted("plain"))
	require.Equal(t, `"a\"b"`, digestutil.WriteQuoted(`a"b`))
	require.Equal(t, `"a\\b"`, digestutil.WriteQuoted(`a\b`))
}

func mustGet(t *testing.T, pairs []digestutil.Pair, key string) string {
	t.Helper()
	v, ok := digestutil.Get(pairs, key)
	require.True(t, ok)
	return v
}
