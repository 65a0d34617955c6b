package webhook_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patronkit/patronkit/internal/webhook"
)

func TestVerifySignature(t *testing.T) {
	t.Parallel()

	secret := "whsec_test_secret"
	payload := []byte(`{"event_id":"evt_1"}`)

	t.Run("valid signature passes", func(t *testing.T) {
		t.Parallel()

		sig := webhook.Sign(secret, payload)
		assert.NoError(t, webhook.VerifySignature(secret, payload, sig))
	})

	t.Run("tampered payload fails", func(t *testing.T) {
		t.Parallel()

		sig := webhook.Sign(secret, payload)
		err := webhook.VerifySignature(secret, []byte(`{"event_id":"evt_2"}`), sig)
		assert.ErrorIs(t, err, webhook.ErrSignatureInvalid)
	})

	t.Run("wrong secret fails", func(t *testing.T) {
		t.Parallel()

		sig := webhook.Sign("other_secret", payload)
		err := webhook.VerifySignature(secret, payload, sig)
		assert.ErrorIs(t, err, webhook.ErrSignatureInvalid)
	})

	t.Run("empty signature fails", func(t *testing.T) {
		t.Parallel()

		err := webhook.VerifySignature(secret, payload, "")
		assert.ErrorIs(t, err, webhook.ErrSignatureInvalid)
	})

	t.Run("garbage signature fails", func(t *testing.T) {
		t.Parallel()

		err := webhook.VerifySignature(secret, payload, "not-hex")
		require.ErrorIs(t, err, webhook.ErrSignatureInvalid)
	})
}
