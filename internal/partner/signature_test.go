package partner

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalJSON_SortsKeysCompact(t *testing.T) {
	payload := map[string]any{
		"zeta":  "last",
		"alpha": 1,
		"mid":   map[string]any{"b": 2, "a": 1},
	}
	got, err := CanonicalJSON(payload)
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":1,"mid":{"a":1,"b":2},"zeta":"last"}`, string(got))
}

func TestCanonicalJSON_PreservesNumberForm(t *testing.T) {
	// 2500.50 must not collapse to 2500.5: the partner signs the exact
	// digits it sent.
	payload := map[string]any{"amount": json.Number("2500.50")}
	got, err := CanonicalJSON(payload)
	require.NoError(t, err)
	assert.Equal(t, `{"amount":2500.50}`, string(got))
}

func TestCanonicalJSON_StructAndMapAgree(t *testing.T) {
	type body struct {
		Callback  string      `json:"callback"`
		PaymentID string      `json:"payment_id"`
		Amount    json.Number `json:"amount"`
	}
	s := body{Callback: "payment", PaymentID: "o-1", Amount: json.Number("99.90")}
	m := map[string]any{
		"payment_id": "o-1",
		"amount":     json.Number("99.90"),
		"callback":   "payment",
	}

	fromStruct, err := CanonicalJSON(s)
	require.NoError(t, err)
	fromMap, err := CanonicalJSON(m)
	require.NoError(t, err)
	assert.Equal(t, string(fromStruct), string(fromMap))
}

func TestSignAndVerify(t *testing.T) {
	payload := map[string]any{"callback": "payment", "amount": json.Number("1000")}

	token, err := Sign("secret-key", payload)
	require.NoError(t, err)
	assert.Len(t, token, 64) // hex sha256

	ok, err := VerifySignature("secret-key", payload, token)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifySignature_Rejects(t *testing.T) {
	payload := map[string]any{"amount": json.Number("1000")}
	token, err := Sign("secret-key", payload)
	require.NoError(t, err)

	// Wrong key.
	ok, err := VerifySignature("other-key", payload, token)
	require.NoError(t, err)
	assert.False(t, ok)

	// Tampered payload.
	tampered := map[string]any{"amount": json.Number("2000")}
	ok, err = VerifySignature("secret-key", tampered, token)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSign_Deterministic(t *testing.T) {
	payload := map[string]any{"b": 1, "a": 2, "c": json.Number("3.30")}
	first, err := Sign("k", payload)
	require.NoError(t, err)
	for i := 0; i < 50; i++ {
		again, err := Sign("k", payload)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}
