package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"gitlab-mr-bot/project/dto"
	"gitlab-mr-bot/project/infrastructure/httpsec"
	"gitlab-mr-bot/project/service"

	"go.uber.org/zap"
)

// eventTimeout はイベント1件の処理に許容する時間です
const eventTimeout = 30 * time.Second

// EventsHandler は Slack Events API からのイベントを処理します
type EventsHandler struct {
	signingSecret  string
	mentionService service.MentionService
	logger         *zap.Logger
}

// NewEventsHandler はイベントハンドラーを作成します
func NewEventsHandler(signingSecret string, mentionService service.MentionService, logger *zap.Logger) *EventsHandler {
	return &EventsHandler{
		signingSecret:  signingSecret,
		mentionService: mentionService,
		logger:         logger.Named("events_handler"),
	}
}

// ServeHTTP は Slack イベント受信エンドポイントです。
// 検証済みのイベントは即時に 200 を返してから非同期で処理します
// （応答が遅れると Slack が同じイベントを再配送するため）
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// リクエスト本体を読み込む
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "リクエスト本体の読み込み失敗", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	// まず url_verification かどうかを確認（署名検証の前に）
	var preCheck struct {
		Type      string `json:"type"`
		Challenge string `json:"challenge"`
	}
	if err := json.Unmarshal(body, &preCheck); err == nil {
		if preCheck.Type == "url_verification" {
			// URL 検証に応答（署名検証をスキップ）
			w.Header().Set("Content-Type", "text/plain")
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(preCheck.Challenge))
			return
		}
	}

	// Slack 署名検証（url_verification 以外のリクエスト）
	signature := r.Header.Get("X-Slack-Signature")
	timestamp := r.Header.Get("X-Slack-Request-Timestamp")
	if err := httpsec.VerifySlackSignature(h.signingSecret, signature, timestamp, string(body)); err != nil {
		h.logger.Warn("署名検証失敗", zap.Error(err))
		http.Error(w, "署名検証失敗", http.StatusUnauthorized)
		return
	}

	// JSON パース（完全版）
	var req dto.SlackEventRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "JSON パース失敗", http.StatusBadRequest)
		return
	}

	// event_callback のみ処理
	if req.Type != "event_callback" {
		w.WriteHeader(http.StatusOK)
		return
	}

	// 先に ACK してから処理
	w.WriteHeader(http.StatusOK)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
		defer cancel()

		if err := h.handleEvent(ctx, req); err != nil {
			h.logger.Error("イベント処理エラー",
				zap.String("type", req.Event.Type),
				zap.String("eventID", req.EventID),
				zap.Error(err))
		}
	}()
}

// handleEvent は個別のイベントをサービスへ振り分けます
func (h *EventsHandler) handleEvent(ctx context.Context, req dto.SlackEventRequest) error {
	switch req.Event.Type {
	case "link_shared":
		links := make([]string, 0, len(req.Event.Links))
		for _, l := range req.Event.Links {
			links = append(links, l.URL)
		}

		event := service.LinkSharedEvent{
			ChannelID: req.Event.Channel,
			UserID:    req.Event.User,
			MessageTS: req.Event.MessageTS,
			UnfurlID:  req.Event.UnfurlID,
			Source:    req.Event.Source,
			Links:     links,
			NowUnix:   time.Now().Unix(),
		}
		return h.mentionService.OnLinkShared(ctx, &event)

	case "reaction_added", "reaction_removed":
		// メッセージ以外（ファイル等）へのリアクションは対象外
		if req.Event.Item == nil || req.Event.Item.Type != "message" {
			return nil
		}

		event := service.ReactionEvent{
			UserID:    req.Event.User,
			Reaction:  req.Event.Reaction,
			ChannelID: req.Event.Item.Channel,
			MessageTS: req.Event.Item.Timestamp,
		}
		if req.Event.Type == "reaction_added" {
			return h.mentionService.OnReactionAdded(ctx, &event)
		}
		return h.mentionService.OnReactionRemoved(ctx, &event)

	default:
		return nil
	}
}
