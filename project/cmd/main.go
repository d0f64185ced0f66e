package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"

	"gitlab-mr-bot/project/handler"
	"gitlab-mr-bot/project/infrastructure/config"
	"gitlab-mr-bot/project/infrastructure/gitlab"
	"gitlab-mr-bot/project/infrastructure/jobs"
	"gitlab-mr-bot/project/infrastructure/secret"
	"gitlab-mr-bot/project/infrastructure/slack"
	"gitlab-mr-bot/project/infrastructure/store"
	"gitlab-mr-bot/project/service"

	"go.uber.org/zap"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. ロガーを初期化
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("ロガー初期化失敗: %v", err)
	}
	defer logger.Sync()

	// 2. Secret Manager と設定を読み込む
	secretMgr, err := secret.NewManager(ctx, os.Getenv("GCP_PROJECT"))
	if err != nil {
		logger.Fatal("Secret Manager 初期化失敗", zap.Error(err))
	}
	defer secretMgr.Close()

	cfg, err := config.NewConfig(ctx, secretMgr)
	if err != nil {
		logger.Fatal("設定読み込み失敗", zap.Error(err))
	}

	// 3. 依存関係を初期化
	// Firestore リポジトリ
	repo, err := store.NewFirestoreRepo(ctx, cfg)
	if err != nil {
		logger.Fatal("Firestore 初期化失敗", zap.Error(err))
	}
	defer repo.Close()

	// Slack API ポート実装
	slackClient := slack.NewSlackClient(cfg.SlackBotToken, logger)

	// GitLab API ポート実装
	gitlabClient, err := gitlab.NewClient(cfg, logger)
	if err != nil {
		logger.Fatal("GitLab クライアント初期化失敗", zap.Error(err))
	}

	// 4. サービス層を初期化
	userService := service.NewUserService(repo, slackClient, gitlabClient, logger)
	unfurlService := service.NewUnfurlService(repo, slackClient, gitlabClient, logger)
	mentionService := service.NewMentionService(cfg, repo, userService, unfurlService, slackClient, gitlabClient, logger)

	// 5. HTTP ハンドラーを設定
	mux := http.NewServeMux()

	// Slack イベント受信
	mux.Handle("/slack/events", handler.NewEventsHandler(cfg.SlackSigningSecret, mentionService, logger))

	// Slack インタラクティビティ（ボタン・メッセージショートカット）
	mux.Handle("/slack/interactivity", handler.NewActionsHandler(cfg.SlackSigningSecret, userService, mentionService, cfg.ReviewerReaction, logger))

	// GitLab Webhook 受信
	mux.Handle("/gitlab/webhooks", handler.NewWebhookHandler(cfg, mentionService, logger))

	// ヘルスチェック
	mux.HandleFunc("/health-check", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// 6. 定期ジョブを起動
	housekeeping := jobs.NewHousekeepingJob(repo, cfg.MentionRetention, cfg.HousekeepingInterval, logger)
	go housekeeping.Run(ctx)

	unfurlRefresh := jobs.NewUnfurlRefreshJob(repo, unfurlService, cfg.UnfurlRefreshInterval, logger)
	go unfurlRefresh.Run(ctx)

	// 7. サーバー起動
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	addr := fmt.Sprintf(":%s", port)
	logger.Info("サーバー起動", zap.String("addr", addr))

	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		logger.Fatal("サーバーエラー", zap.Error(err))
	}
}
