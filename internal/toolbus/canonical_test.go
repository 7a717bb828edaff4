package toolbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalJSONSortsObjectKeys(t *testing.T) {
	out, err := CanonicalJSON(map[string]interface{}{"b": 1.0, "a": 2.0})
	require.NoError(t, err)
	assert.Equal(t, `{"a":2,"b":1}`, string(out))
}

func TestCanonicalJSONRendersIntegerFloatsWithoutFraction(t *testing.T) {
	out, err := CanonicalJSON(map[string]interface{}{"n": 3.0})
	require.NoError(t, err)
	assert.Equal(t, `{"n":3}`, string(out))
}

func TestCanonicalJSONKeepsFractionalFloats(t *testing.T) {
	out, err := CanonicalJSON(map[string]interface{}{"n": 3.5})
	require.NoError(t, err)
	assert.Equal(t, `{"n":3.5}`, string(out))
}

func TestCanonicalJSONPreservesArrayOrder(t *testing.T) {
	out, err := CanonicalJSON([]interface{}{"z", "a", "m"})
	require.NoError(t, err)
	assert.Equal(t, `["z","a","m"]`, string(out))
}

func TestCanonicalJSONNormalizesStringsToNFC(t *testing.T) {
	// "e" + combining acute accent (NFD) should canonicalize identically to
	// the single precomposed "é" (NFC) codepoint.
	nfd := "é"
	nfc := "é"
	outNFD, err := CanonicalJSON(nfd)
	require.NoError(t, err)
	outNFC, err := CanonicalJSON(nfc)
	require.NoError(t, err)
	assert.Equal(t, string(outNFC), string(outNFD))
}

func TestRequestHashIsStableAcrossKeyOrderAndNumberFormatting(t *testing.T) {
	h1, err := RequestHash("shell", map[string]interface{}{"cmd": "ls", "timeout": 5.0})
	require.NoError(t, err)
	h2, err := RequestHash("shell", map[string]interface{}{"timeout": 5.0, "cmd": "ls"})
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestRequestHashDiffersByToolName(t *testing.T) {
	h1, err := RequestHash("shell", map[string]interface{}{"cmd": "ls"})
	require.NoError(t, err)
	h2, err := RequestHash("git", map[string]interface{}{"cmd": "ls"})
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}

func TestCanonicalJSONRejectsUnsupportedType(t *testing.T) {
	_, err := CanonicalJSON(map[string]interface{}{"x": complex(1, 2)})
	assert.Error(t, err)
}
