package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"gitlab-mr-bot/project/dto"
	"gitlab-mr-bot/project/infrastructure/config"
	"gitlab-mr-bot/project/service"

	"go.uber.org/zap"
)

// WebhookHandler は GitLab の Merge Request Hook を受信します
type WebhookHandler struct {
	cfg            *config.Config
	mentionService service.MentionService
	logger         *zap.Logger
}

// NewWebhookHandler は Webhook ハンドラーを作成します
func NewWebhookHandler(cfg *config.Config, mentionService service.MentionService, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		cfg:            cfg,
		mentionService: mentionService,
		logger:         logger.Named("webhook_handler"),
	}
}

// ServeHTTP は GitLab Webhook 受信エンドポイントです。
// ヘッダ検証後に本体を読み込み、即時に 200 を返してから非同期で処理します
// （応答が遅れると GitLab が同じフックを再配送するため）
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// 機能無効時はエンドポイントの存在自体を隠します
	if !h.cfg.WebhooksEnabled {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	// 共有シークレットが設定されている場合のみ X-Gitlab-Token を照合
	if h.cfg.GitLabWebhookSecret != "" {
		if r.Header.Get("X-Gitlab-Token") != h.cfg.GitLabWebhookSecret {
			h.logger.Warn("X-Gitlab-Token が一致しません")
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
	}

	if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		h.logger.Debug("Content-Type が application/json ではありません",
			zap.String("contentType", r.Header.Get("Content-Type")))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	// 想定している GitLab インスタンス以外からのフックは拒否します
	if instance := r.Header.Get("X-Gitlab-Instance"); instance != h.cfg.GitLabBaseURL {
		h.logger.Warn("想定外の GitLab インスタンスからの Webhook",
			zap.String("instance", instance))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if event := r.Header.Get("X-Gitlab-Event"); event != "Merge Request Hook" {
		h.logger.Warn("Merge Request Hook 以外のイベント種別",
			zap.String("event", event))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	// 先に ACK してから処理
	w.WriteHeader(http.StatusOK)

	eventUUID := r.Header.Get("X-Gitlab-Event-Uuid")

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
		defer cancel()

		h.processHook(ctx, body, eventUUID)
	}()
}

// processHook はフック本体をパースしてサービスへ渡します
func (h *WebhookHandler) processHook(ctx context.Context, body []byte, eventUUID string) {
	var hook dto.MergeRequestHook
	if err := json.Unmarshal(body, &hook); err != nil {
		h.logger.Error("Webhook 本体のパース失敗",
			zap.String("eventUUID", eventUUID),
			zap.Error(err))
		return
	}

	if hook.ObjectKind != "merge_request" && hook.EventType != "merge_request" {
		h.logger.Debug("マージリクエスト以外のフックをスキップ",
			zap.String("eventUUID", eventUUID),
			zap.String("objectKind", hook.ObjectKind),
			zap.String("eventType", hook.EventType))
		return
	}

	event := service.MergeRequestWebhookEvent{
		Action:         hook.ObjectAttributes.Action,
		MergeRequestID: strconv.Itoa(hook.ObjectAttributes.IID),
		ProjectPath:    hook.Project.PathWithNamespace,
	}

	if err := h.mentionService.OnMergeRequestWebhook(ctx, &event); err != nil {
		h.logger.Error("Webhook 処理エラー",
			zap.String("eventUUID", eventUUID),
			zap.String("project", event.ProjectPath),
			zap.String("mr", event.MergeRequestID),
			zap.Error(err))
	}
}
