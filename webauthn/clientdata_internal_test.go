package webauthn

import (
	"testing"

	"github.com/samber/mo"
	"github.com/stretchr/testify/require"
)

func TestParseClientDataTokenBinding(t *testing.T) {
	c, err := parseClientData([]byte(`{"challenge":"AAAA","origin":"localhost","hashAlgorithm":"SHA-256","tokenBindingId":"YELLOWSUBMARINE"}`))
	require.NoError(t, err)
	require.Equal(t, "YELLOWSUBMARINE", c.TokenBindingID.MustGet())

	c, err = parseClientData([]byte(`{"challenge":"AAAA","origin":"localhost","hashAlgorithm":"SHA-256"}`))
	require.NoError(t, err)
	require.True(t, c.TokenBindingID.IsAbsent())

	// An empty binding id is present, not absent.
	c, err = parseClientData([]byte(`{"challenge":"AAAA","origin":"localhost","hashAlgorithm":"SHA-256","tokenBindingId":""}`))
	require.NoError(t, err)
	require.Equal(t, "", c.TokenBindingID.MustGet())

	_, err = parseClientData([]byte(`not json`))
	require.Error(t, err)
}

func TestCheckTokenBindingMatrix(t *testing.T) {
	rp := &RelyingParty{allowMissingTokenBinding: true}

	clientWith := &CollectedClientData{TokenBindingID: mo.Some("A")}
	clientWithout := &CollectedClientData{}

	require.NoError(t, rp.checkTokenBinding(mo.Some("A"), clientWith))
	require.Error(t, rp.checkTokenBinding(mo.Some("B"), clientWith))
	require.Error(t, rp.checkTokenBinding(mo.None[string](), clientWith))
	require.Error(t, rp.checkTokenBinding(mo.Some("A"), clientWithout))
	require.NoError(t, rp.checkTokenBinding(mo.None[string](), clientWithout))

	strict := &RelyingParty{allowMissingTokenBinding: false}
	require.Error(t, strict.checkTokenBinding(mo.None[string](), clientWithout))
}
