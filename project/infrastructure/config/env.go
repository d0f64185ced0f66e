package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gitlab-mr-bot/project/infrastructure/secret"
)

// Config は環境変数と Secret Manager から読み込まれるアプリケーション設定を表します
type Config struct {
	// 基本設定
	GcpProject string

	// Firestore設定
	FirestoreProjectID string
	CollectionMentions string
	CollectionUsers    string

	// Slack API設定（Secret Manager から読み込み）
	SlackSigningSecret string
	SlackBotToken      string

	// GitLab API設定
	GitLabBaseURL      string // 例: https://gitlab.com
	GitLabPrivateToken string // Secret Manager から読み込み
	// GitLabWebhookSecret は X-Gitlab-Token ヘッダと照合する共有シークレット。
	// 空の場合は検証しません
	GitLabWebhookSecret string

	// ChannelsOnly は処理対象チャンネルの許可リスト。空は全チャンネル許可
	ChannelsOnly []string

	// リアクション絵文字設定（コロンなし）
	ReviewerReaction string
	ApprovedReaction string
	ClosedReaction   string

	// 機能フラグ
	UnfurlInChannel            bool
	UnfurlInComposer           bool
	AutoAssignAuthorAsAssignee bool
	AssignReviewerOnReaction   bool
	UnassignReviewerOnReaction bool
	WebhooksEnabled            bool
	WebhookAddReactions        bool
	WebhookUpdateUnfurls       bool

	// 定期処理設定
	MentionRetention      time.Duration
	HousekeepingInterval  time.Duration
	UnfurlRefreshInterval time.Duration
}

// NewConfig は環境変数から設定を読み込み、Config構造体を返します
// センシティブな情報（Slack/GitLab 認証情報）は Secret Manager から取得します
func NewConfig(ctx context.Context, secretMgr *secret.Manager) (*Config, error) {
	slackSigningSecret, err := secretMgr.GetSecret(ctx, "slack-signing-secret")
	if err != nil {
		return nil, fmt.Errorf("slack-signing-secret 取得失敗: %w", err)
	}

	slackBotToken, err := secretMgr.GetSecret(ctx, "slack-bot-token")
	if err != nil {
		return nil, fmt.Errorf("slack-bot-token 取得失敗: %w", err)
	}

	gitlabPrivateToken, err := secretMgr.GetSecret(ctx, "gitlab-private-token")
	if err != nil {
		return nil, fmt.Errorf("gitlab-private-token 取得失敗: %w", err)
	}

	retention, err := getEnvDuration("MENTION_RETENTION", 7*24*time.Hour)
	if err != nil {
		return nil, err
	}

	housekeepingInterval, err := getEnvDuration("HOUSEKEEPING_INTERVAL", 24*time.Hour)
	if err != nil {
		return nil, err
	}

	unfurlRefreshInterval, err := getEnvDuration("UNFURL_REFRESH_INTERVAL", time.Hour)
	if err != nil {
		return nil, err
	}

	config := &Config{
		// 基本設定
		GcpProject: mustGetEnv("GCP_PROJECT"),

		// Firestore設定
		FirestoreProjectID: mustGetEnv("FIRESTORE_PROJECT_ID"),
		CollectionMentions: mustGetEnv("FS_COLLECTION_MENTIONS"),
		CollectionUsers:    mustGetEnv("FS_COLLECTION_USERS"),

		// Slack API設定
		SlackSigningSecret: slackSigningSecret,
		SlackBotToken:      slackBotToken,

		// GitLab API設定
		GitLabBaseURL:       getEnvDefault("GITLAB_BASE_URL", "https://gitlab.com"),
		GitLabPrivateToken:  gitlabPrivateToken,
		GitLabWebhookSecret: os.Getenv("GITLAB_WEBHOOK_SECRET"),

		// チャンネル許可リスト
		ChannelsOnly: splitList(os.Getenv("CHANNELS_ONLY")),

		// リアクション絵文字設定
		ReviewerReaction: getEnvDefault("REVIEWER_REACTION", "eyes"),
		ApprovedReaction: getEnvDefault("APPROVED_REACTION", "white_check_mark"),
		ClosedReaction:   getEnvDefault("CLOSED_REACTION", "no_entry"),

		// 機能フラグ
		UnfurlInChannel:            getEnvBool("UNFURL_IN_CHANNEL", true),
		UnfurlInComposer:           getEnvBool("UNFURL_IN_COMPOSER", true),
		AutoAssignAuthorAsAssignee: getEnvBool("AUTO_ASSIGN_AUTHOR_AS_ASSIGNEE", true),
		AssignReviewerOnReaction:   getEnvBool("ASSIGN_REVIEWER_ON_REACTION", true),
		UnassignReviewerOnReaction: getEnvBool("UNASSIGN_REVIEWER_ON_REACTION", true),
		WebhooksEnabled:            getEnvBool("WEBHOOKS_ENABLED", true),
		WebhookAddReactions:        getEnvBool("WEBHOOK_ADD_REACTIONS", true),
		WebhookUpdateUnfurls:       getEnvBool("WEBHOOK_UPDATE_UNFURLS", true),

		// 定期処理設定
		MentionRetention:      retention,
		HousekeepingInterval:  housekeepingInterval,
		UnfurlRefreshInterval: unfurlRefreshInterval,
	}

	return config, nil
}

// IsChannelAllowed はチャンネルが処理対象かを判定します。
// 許可リストが空の場合は全チャンネルが対象です
func (c *Config) IsChannelAllowed(channelID string) bool {
	if len(c.ChannelsOnly) == 0 {
		return true
	}
	for _, ch := range c.ChannelsOnly {
		if ch == channelID {
			return true
		}
	}
	return false
}

// GitLabAPIBaseURL は GitLab REST API v4 のベースURLを返します
func (c *Config) GitLabAPIBaseURL() string {
	return strings.TrimSuffix(c.GitLabBaseURL, "/") + "/api/v4"
}

// mustGetEnv は環境変数を取得し、存在しない場合はパニックします
func mustGetEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		panic(fmt.Sprintf("required environment variable not set: %s", key))
	}
	return value
}

// getEnvDefault は環境変数を取得し、未設定の場合はデフォルト値を返します
func getEnvDefault(key, def string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return def
}

// getEnvBool は真偽値の環境変数を取得します（未設定時はデフォルト値）
func getEnvBool(key string, def bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return def
	}
	return parsed
}

// getEnvDuration は期間形式の環境変数を取得します（未設定時はデフォルト値）
func getEnvDuration(key string, def time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return def, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s format: %v", key, err)
	}
	return parsed, nil
}

// splitList はカンマ区切りの環境変数値をスライスに変換します
func splitList(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	var result []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
