package httpsec

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifySlackSignature(t *testing.T) {
	const secret = "signing-secret"
	const body = `{"type":"event_callback"}`

	t.Run("正しい署名は通過する", func(t *testing.T) {
		ts := fmt.Sprintf("%d", time.Now().Unix())
		signature := computeSignature(secret, fmt.Sprintf("v0:%s:%s", ts, body))

		require.NoError(t, VerifySlackSignature(secret, signature, ts, body))
	})

	t.Run("改ざんされた本文は拒否する", func(t *testing.T) {
		ts := fmt.Sprintf("%d", time.Now().Unix())
		signature := computeSignature(secret, fmt.Sprintf("v0:%s:%s", ts, body))

		assert.Error(t, VerifySlackSignature(secret, signature, ts, body+"tampered"))
	})

	t.Run("別のシークレットで計算した署名は拒否する", func(t *testing.T) {
		ts := fmt.Sprintf("%d", time.Now().Unix())
		signature := computeSignature("other-secret", fmt.Sprintf("v0:%s:%s", ts, body))

		assert.Error(t, VerifySlackSignature(secret, signature, ts, body))
	})

	t.Run("古いタイムスタンプは拒否する", func(t *testing.T) {
		ts := fmt.Sprintf("%d", time.Now().Add(-10*time.Minute).Unix())
		signature := computeSignature(secret, fmt.Sprintf("v0:%s:%s", ts, body))

		assert.Error(t, VerifySlackSignature(secret, signature, ts, body))
	})

	t.Run("数値でないタイムスタンプは拒否する", func(t *testing.T) {
		assert.Error(t, VerifySlackSignature(secret, "v0=deadbeef", "not-a-number", body))
	})
}
