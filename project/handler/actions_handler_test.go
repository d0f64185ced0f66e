package handler

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// newActionRequest は署名済みのインタラクティビティリクエストを作成します
func newActionRequest(payload string) *http.Request {
	form := url.Values{"payload": {payload}}
	body := form.Encode()
	r := httptest.NewRequest(http.MethodPost, "/slack/interactivity", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	signRequest(r, body)
	return r
}

func behaviourPayload(callbackID, value string) string {
	return fmt.Sprintf(`{
		"type": "interactive_message",
		"callback_id": "%s",
		"user": {"id": "U01"},
		"actions": [{"name": "default", "type": "button", "value": "%s"}]
	}`, callbackID, value)
}

func TestActionsHandlerRejectsBadSignature(t *testing.T) {
	h := NewActionsHandler(testSigningSecret, newFakeUserService(), &fakeMentionService{}, "eyes", zap.NewNop())

	form := url.Values{"payload": {behaviourPayload(callbackBehaviourReviewer, "auto")}}
	r := httptest.NewRequest(http.MethodPost, "/slack/interactivity", strings.NewReader(form.Encode()))
	r.Header.Set("X-Slack-Request-Timestamp", fmt.Sprintf("%d", time.Now().Unix()))
	r.Header.Set("X-Slack-Signature", "v0=deadbeef")
	w := httptest.NewRecorder()

	h.ServeHTTP(w, r)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestActionsHandlerBehaviourSelection(t *testing.T) {
	t.Run("レビュアー自動登録を有効化", func(t *testing.T) {
		users := newFakeUserService()
		h := NewActionsHandler(testSigningSecret, users, &fakeMentionService{}, "eyes", zap.NewNop())

		w := httptest.NewRecorder()
		h.ServeHTTP(w, newActionRequest(behaviourPayload(callbackBehaviourReviewer, "auto")))

		assert.Equal(t, http.StatusOK, w.Code)
		value, ok := users.reviewerPrefs["U01"]
		require.True(t, ok)
		assert.True(t, value)

		assert.Contains(t, w.Body.String(), "Reviewer")
		assert.Contains(t, w.Body.String(), ":eyes:")

		// 確認文言が表示されるよう replace のみで delete は併用しない
		assert.Contains(t, w.Body.String(), "replace_original")
		assert.NotContains(t, w.Body.String(), "delete_original")
	})

	t.Run("自動アサインを無効化", func(t *testing.T) {
		users := newFakeUserService()
		h := NewActionsHandler(testSigningSecret, users, &fakeMentionService{}, "eyes", zap.NewNop())

		w := httptest.NewRecorder()
		h.ServeHTTP(w, newActionRequest(behaviourPayload(callbackBehaviourAssignee, "never")))

		assert.Equal(t, http.StatusOK, w.Code)
		value, ok := users.assigneePrefs["U01"]
		require.True(t, ok)
		assert.False(t, value)
		assert.Contains(t, w.Body.String(), "never")
	})

	t.Run("後で回答は保存せず問い合わせを消す", func(t *testing.T) {
		users := newFakeUserService()
		h := NewActionsHandler(testSigningSecret, users, &fakeMentionService{}, "eyes", zap.NewNop())

		w := httptest.NewRecorder()
		h.ServeHTTP(w, newActionRequest(behaviourPayload(callbackBehaviourReviewer, "ask_later")))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, users.reviewerPrefs)
		assert.Contains(t, w.Body.String(), "delete_original")
	})

	t.Run("未知の callback_id は何もしない", func(t *testing.T) {
		users := newFakeUserService()
		h := NewActionsHandler(testSigningSecret, users, &fakeMentionService{}, "eyes", zap.NewNop())

		w := httptest.NewRecorder()
		h.ServeHTTP(w, newActionRequest(behaviourPayload("unknown_callback", "auto")))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, users.reviewerPrefs)
		assert.Empty(t, users.assigneePrefs)
	})
}

func TestActionsHandlerMessageShortcut(t *testing.T) {
	svc := &fakeMentionService{}
	h := NewActionsHandler(testSigningSecret, newFakeUserService(), svc, "eyes", zap.NewNop())

	payload := `{
		"type": "message_action",
		"callback_id": "update_unfurl_link",
		"user": {"id": "U01"},
		"message_ts": "1700000000.000100"
	}`
	w := httptest.NewRecorder()
	h.ServeHTTP(w, newActionRequest(payload))

	// 先に ACK、更新は非同期
	assert.Equal(t, http.StatusOK, w.Code)
	require.Eventually(t, func() bool { return svc.refreshedCount() == 1 }, time.Second, 10*time.Millisecond)

	svc.mu.Lock()
	defer svc.mu.Unlock()
	assert.Equal(t, "1700000000.000100", svc.refreshed[0])
}
