package crypto

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestL2HeadersAt_Deterministic(t *testing.T) {
	auth := &HMACAuth{
		Key:        "key-1",
		Secret:     base64.StdEncoding.EncodeToString([]byte("secret-bytes")),
		Passphrase: "pass",
	}

	h1 := auth.L2HeadersAt("0xabc", "POST", "/order", `{"x":1}`, 1700000000)
	h2 := auth.L2HeadersAt("0xabc", "POST", "/order", `{"x":1}`, 1700000000)

	require.Equal(t, h1, h2)
	assert.Equal(t, "0xabc", h1["POLY_ADDRESS"])
	assert.Equal(t, "key-1", h1["POLY_API_KEY"])
	assert.Equal(t, "1700000000", h1["POLY_TIMESTAMP"])
	assert.Equal(t, "pass", h1["POLY_PASSPHRASE"])
	assert.NotEmpty(t, h1["POLY_SIGNATURE"])

	// Any input change changes the signature.
	other := auth.L2HeadersAt("0xabc", "POST", "/order", `{"x":2}`, 1700000000)
	assert.NotEqual(t, h1["POLY_SIGNATURE"], other["POLY_SIGNATURE"])

	later := auth.L2HeadersAt("0xabc", "POST", "/order", `{"x":1}`, 1700000001)
	assert.NotEqual(t, h1["POLY_SIGNATURE"], later["POLY_SIGNATURE"])
}

func TestL2HeadersAt_RawSecretFallback(t *testing.T) {
	auth := &HMACAuth{Key: "k", Secret: "not!!base64##", Passphrase: "p"}

	headers := auth.L2HeadersAt("0xabc", "GET", "/balance-allowance", "", 1700000000)
	assert.NotEmpty(t, headers["POLY_SIGNATURE"])
}

func TestString_Redacts(t *testing.T) {
	auth := &HMACAuth{Key: "key-123456", Secret: "secret-123456"}
	s := auth.String()
	assert.NotContains(t, s, "123456")
	assert.Contains(t, s, "key-")
}
