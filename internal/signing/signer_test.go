package signing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	payloads := [][]byte{
		[]byte(""),
		[]byte("{}"),
		[]byte(`{"correlation_id":"evt-1","verb":"acknowledge"}`),
		{0x00, 0xff, 0x10},
	}
	secrets := []string{"s1", "a-much-longer-secret-value", "секрет"}

	for _, secret := range secrets {
		for _, payload := range payloads {
			sig := Sign(secret, payload)
			assert.True(t, Verify(secret, payload, sig))
		}
	}
}

func TestVerifyRejectsMutation(t *testing.T) {
	secret := "shared-secret"
	payload := []byte(`{"correlation_id":"evt-1"}`)
	sig := Sign(secret, payload)

	t.Run("single bit flip in payload", func(t *testing.T) {
		for i := range payload {
			mutated := append([]byte(nil), payload...)
			mutated[i] ^= 0x01
			assert.False(t, Verify(secret, mutated, sig), "bit flip at byte %d accepted", i)
		}
	})

	t.Run("wrong secret", func(t *testing.T) {
		assert.False(t, Verify("other-secret", payload, sig))
	})

	t.Run("malformed signature", func(t *testing.T) {
		assert.False(t, Verify(secret, payload, "not-hex!"))
		assert.False(t, Verify(secret, payload, ""))
	})
}

func TestPayloadHash(t *testing.T) {
	a := PayloadHash([]byte("payload"))
	b := PayloadHash([]byte("payload"))
	c := PayloadHash([]byte("payloae"))

	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
	require.Len(t, a, 64)
}
