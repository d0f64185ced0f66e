package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"gitlab-mr-bot/project/infrastructure/httpsec"
	"gitlab-mr-bot/project/service"

	"github.com/slack-go/slack"
	"go.uber.org/zap"
)

// ボタン付きエフェメラルの callback_id
const (
	callbackBehaviourReviewer = "select_default_app_behaviour_reviewer"
	callbackBehaviourAssignee = "select_default_app_behaviour_assignee"

	// メッセージショートカットの callback_id
	callbackUpdateUnfurl = "update_unfurl_link"
)

// ActionsHandler は Slack インタラクティビティ（ボタン押下・
// メッセージショートカット）を処理します
type ActionsHandler struct {
	signingSecret    string
	userService      service.UserService
	mentionService   service.MentionService
	reviewerReaction string
	logger           *zap.Logger
}

// NewActionsHandler はインタラクティビティハンドラーを作成します
func NewActionsHandler(signingSecret string, userService service.UserService, mentionService service.MentionService, reviewerReaction string, logger *zap.Logger) *ActionsHandler {
	return &ActionsHandler{
		signingSecret:    signingSecret,
		userService:      userService,
		mentionService:   mentionService,
		reviewerReaction: reviewerReaction,
		logger:           logger.Named("actions_handler"),
	}
}

// ServeHTTP は Slack インタラクティビティ受信エンドポイントです
func (h *ActionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "リクエスト本体の読み込み失敗", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	// Slack 署名検証
	if err := httpsec.VerifySlackSignature(h.signingSecret,
		r.Header.Get("X-Slack-Signature"),
		r.Header.Get("X-Slack-Request-Timestamp"),
		string(body)); err != nil {
		h.logger.Warn("署名検証失敗", zap.Error(err))
		http.Error(w, "署名検証失敗", http.StatusUnauthorized)
		return
	}

	// インタラクティビティは payload フィールドに JSON を載せた form で届きます
	values, err := url.ParseQuery(string(body))
	if err != nil {
		http.Error(w, "form パース失敗", http.StatusBadRequest)
		return
	}

	var callback slack.InteractionCallback
	if err := json.Unmarshal([]byte(values.Get("payload")), &callback); err != nil {
		http.Error(w, "payload パース失敗", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	switch callback.Type {
	case slack.InteractionTypeInteractionMessage:
		h.handleBehaviourSelection(ctx, w, callback)
	case slack.InteractionTypeMessageAction:
		h.handleMessageAction(w, callback)
	default:
		h.logger.Debug("未対応のインタラクション種別",
			zap.String("type", string(callback.Type)))
		w.WriteHeader(http.StatusOK)
	}
}

// handleBehaviourSelection はデフォルト動作問い合わせのボタン押下を処理します。
// エンドポイントの応答としてエフェメラルを差し替えます
func (h *ActionsHandler) handleBehaviourSelection(ctx context.Context, w http.ResponseWriter, callback slack.InteractionCallback) {
	if callback.CallbackID != callbackBehaviourReviewer && callback.CallbackID != callbackBehaviourAssignee {
		h.logger.Warn("未対応の callback_id",
			zap.String("callbackID", callback.CallbackID))
		w.WriteHeader(http.StatusOK)
		return
	}

	if len(callback.ActionCallback.AttachmentActions) == 0 {
		w.WriteHeader(http.StatusOK)
		return
	}
	value := callback.ActionCallback.AttachmentActions[0].Value

	w.Header().Set("Content-Type", "application/json")

	switch value {
	case "auto", "never":
		preference := value == "auto"
		var err error
		if callback.CallbackID == callbackBehaviourReviewer {
			err = h.userService.SetReviewerPreference(ctx, callback.User.ID, preference)
		} else {
			err = h.userService.SetAssigneePreference(ctx, callback.User.ID, preference)
		}
		if err != nil {
			h.logger.Error("デフォルト動作の保存失敗",
				zap.String("callbackID", callback.CallbackID),
				zap.String("slackUser", callback.User.ID),
				zap.Error(err))
			w.WriteHeader(http.StatusOK)
			fmt.Fprint(w, `{"response_type":"ephemeral","replace_original":true,"text":"Something went wrong, please try again later."}`)
			return
		}

		w.WriteHeader(http.StatusOK)
		writeEphemeralReplace(w, behaviourConfirmationText(callback.CallbackID, value, h.reviewerReaction))

	case "ask_later":
		// 保存せず問い合わせだけ消します
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `{"response_type":"ephemeral","delete_original":true,"text":""}`)

	default:
		h.logger.Warn("未対応のアクション値",
			zap.String("callbackID", callback.CallbackID),
			zap.String("value", value))
		w.WriteHeader(http.StatusOK)
	}
}

// handleMessageAction はメッセージショートカットを処理します。
// 先に ACK してからアンファール更新を非同期で行います
func (h *ActionsHandler) handleMessageAction(w http.ResponseWriter, callback slack.InteractionCallback) {
	if callback.CallbackID != callbackUpdateUnfurl {
		h.logger.Warn("未対応のショートカット",
			zap.String("callbackID", callback.CallbackID))
		w.WriteHeader(http.StatusOK)
		return
	}

	messageTS := callback.MessageTs
	if messageTS == "" {
		messageTS = callback.Message.Timestamp
	}

	w.WriteHeader(http.StatusOK)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
		defer cancel()

		if err := h.mentionService.RefreshMentionByMessage(ctx, messageTS); err != nil {
			h.logger.Error("ショートカット契機のアンファール更新失敗",
				zap.String("ts", messageTS),
				zap.Error(err))
		}
	}()
}

// behaviourConfirmationText は設定保存後にエフェメラルへ表示する文言を返します
func behaviourConfirmationText(callbackID, value, reviewerReaction string) string {
	if callbackID == callbackBehaviourReviewer {
		if value == "auto" {
			return fmt.Sprintf("The default behaviour has been set to auto assign you as *Reviewer* whenever you react with :%s: on a message containing a merge request link in GitLab! 👍", reviewerReaction)
		}
		return "The default behaviour has been set to *never* assign you automatically as reviewer! Sorry for bothering you."
	}

	if value == "auto" {
		return "The default behaviour has been set to auto assign you as *Assignee* whenever you post a merge request link in a message that has no assignee, but you are the author of it!"
	}
	return "The default behaviour has been set to *never* assign you automatically as assignee! Sorry for bothering you."
}

// writeEphemeralReplace は元のエフェメラルを確認文言で差し替える応答を書き込みます。
// delete_original を併用すると差し替え前に消えてしまうため replace のみ指定します
func writeEphemeralReplace(w http.ResponseWriter, text string) {
	resp := map[string]interface{}{
		"response_type":    "ephemeral",
		"replace_original": true,
		"text":             text,
	}
	json.NewEncoder(w).Encode(resp)
}
