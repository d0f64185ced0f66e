package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"gitlab-mr-bot/project/service"

	"github.com/slack-go/slack"
	"go.uber.org/zap"
)

const (
	chatUnfurlURL = "https://slack.com/api/chat.unfurl"

	// アンファールに表示する GitLab ロゴ
	gitlabLogoURL = "https://about.gitlab.com/images/press/logo/png/gitlab-logo-500.png"
)

// SlackClient は service.SlackPort の Slack SDK 実装です
type SlackClient struct {
	cli        *slack.Client
	botToken   string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewSlackClient は Slack クライアントを初期化します
func NewSlackClient(botToken string, logger *zap.Logger) *SlackClient {
	return &SlackClient{
		cli:        slack.New(botToken),
		botToken:   botToken,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger.Named("slack"),
	}
}

// FetchUsername は Slack ユーザーIDからユーザー名を取得します
func (sc *SlackClient) FetchUsername(ctx context.Context, slackUserID string) (string, error) {
	user, err := sc.cli.GetUserInfoContext(ctx, slackUserID)
	if err != nil {
		return "", fmt.Errorf("slack: ユーザー取得失敗 (user=%s): %w", slackUserID, err)
	}
	if user.Name == "" {
		return "", fmt.Errorf("slack: ユーザー名が空です (user=%s)", slackUserID)
	}
	return user.Name, nil
}

// HasUnfurl は対象メッセージに指定リンクのアンファール添付が残っているかを判定します
func (sc *SlackClient) HasUnfurl(ctx context.Context, channelID, messageTS, link string) (bool, error) {
	// conversations.history で messageTS 時点の最新1件を取得
	resp, err := sc.cli.GetConversationHistoryContext(ctx, &slack.GetConversationHistoryParameters{
		ChannelID: channelID,
		Latest:    messageTS,
		Inclusive: true,
		Limit:     1,
	})
	if err != nil {
		return false, fmt.Errorf("slack: メッセージ取得失敗 (channel=%s, ts=%s): %w", channelID, messageTS, err)
	}

	if len(resp.Messages) == 0 {
		return false, nil
	}

	// アンファール添付はリンクURLを保持しているので照合します
	for _, attachment := range resp.Messages[0].Attachments {
		if attachment.FromURL == link || attachment.OriginalURL == link {
			return true, nil
		}
	}

	return false, nil
}

// PushUnfurl はチャンネル内メッセージへアンファールを適用します
func (sc *SlackClient) PushUnfurl(ctx context.Context, channelID, messageTS, link string, summary *service.UnfurlSummary) error {
	payload := map[string]interface{}{
		"channel": channelID,
		"ts":      messageTS,
		"unfurls": map[string]slack.Attachment{
			link: buildUnfurlAttachment(summary),
		},
	}
	return sc.postChatUnfurl(ctx, payload)
}

// PushComposerUnfurl はコンポーザーのプレビューへタイトルのみのアンファールを適用します
func (sc *SlackClient) PushComposerUnfurl(ctx context.Context, unfurlID, link, title string) error {
	titleBlock := slack.NewSectionBlock(
		slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("<%s|%s>", link, title), false, false),
		nil,
		slack.NewAccessory(slack.NewImageBlockElement(gitlabLogoURL, "GitLab logo")),
	)

	payload := map[string]interface{}{
		"source":    "composer",
		"unfurl_id": unfurlID,
		"unfurls": map[string]slack.Attachment{
			link: {
				Blocks: slack.Blocks{BlockSet: []slack.Block{titleBlock}},
			},
		},
	}
	return sc.postChatUnfurl(ctx, payload)
}

// postChatUnfurl は chat.unfurl を直接呼び出します。
// source/unfurl_id 指定付きの chat.unfurl は SDK が対応していないため、
// チャンネル向けと併せて素の HTTP リクエストで送信します
func (sc *SlackClient) postChatUnfurl(ctx context.Context, payload map[string]interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("slack: chat.unfurl ペイロード JSON 化失敗: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, chatUnfurlURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: chat.unfurl リクエスト作成失敗: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+sc.botToken)

	resp, err := sc.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("slack: chat.unfurl 送信失敗: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("slack: chat.unfurl レスポンス読み込み失敗: %w", err)
	}

	var result struct {
		OK    bool   `json:"ok"`
		Error string `json:"error,omitempty"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return fmt.Errorf("slack: chat.unfurl レスポンス解析失敗: %w", err)
	}
	if !result.OK {
		return fmt.Errorf("slack: chat.unfurl 失敗: %s", result.Error)
	}

	return nil
}

// PostBehaviourPrompt はデフォルト動作の問い合わせをエフェメラルで投稿します
func (sc *SlackClient) PostBehaviourPrompt(ctx context.Context, channelID, userID string, prompt *service.BehaviourPrompt) error {
	text, attachment := buildBehaviourPrompt(prompt)

	_, err := sc.cli.PostEphemeralContext(
		ctx,
		channelID,
		userID,
		slack.MsgOptionText(text, false),
		slack.MsgOptionAttachments(attachment),
	)
	if err != nil {
		return fmt.Errorf("slack: エフェメラル投稿失敗 (channel=%s, user=%s): %w", channelID, userID, err)
	}

	return nil
}

// AddReaction はメッセージへリアクションを追加します（付与済みなら冪等に成功）
func (sc *SlackClient) AddReaction(ctx context.Context, channelID, messageTS, reaction string) error {
	err := sc.cli.AddReactionContext(ctx, reaction, slack.NewRefToMessage(channelID, messageTS))
	if err != nil && err.Error() != "already_reacted" {
		return fmt.Errorf("slack: リアクション追加失敗 (channel=%s, ts=%s, name=%s): %w", channelID, messageTS, reaction, err)
	}
	return nil
}

// RemoveReaction はメッセージからリアクションを除去します（未付与なら冪等に成功）
func (sc *SlackClient) RemoveReaction(ctx context.Context, channelID, messageTS, reaction string) error {
	err := sc.cli.RemoveReactionContext(ctx, reaction, slack.NewRefToMessage(channelID, messageTS))
	if err != nil && err.Error() != "no_reaction" {
		return fmt.Errorf("slack: リアクション除去失敗 (channel=%s, ts=%s, name=%s): %w", channelID, messageTS, reaction, err)
	}
	return nil
}

// buildUnfurlAttachment はアンファール表示用の Block Kit 添付を組み立てます
func buildUnfurlAttachment(summary *service.UnfurlSummary) slack.Attachment {
	title := slack.NewSectionBlock(
		slack.NewTextBlockObject(slack.MarkdownType,
			fmt.Sprintf(":merge-request: *<%s|%s>*", summary.Link, summary.Title), false, false),
		nil,
		nil,
	)

	fields := []*slack.TextBlockObject{
		slack.NewTextBlockObject(slack.MarkdownType,
			fmt.Sprintf("*Assignee* :technologist:\n %s", summary.AssigneeText), false, false),
		slack.NewTextBlockObject(slack.MarkdownType,
			fmt.Sprintf("*Changes* :ocean:\n %s", summary.ChangesCount), false, false),
		slack.NewTextBlockObject(slack.MarkdownType,
			fmt.Sprintf("*Reviewers* :eyes:\n %s", summary.ReviewerText), false, false),
		slack.NewTextBlockObject(slack.MarkdownType,
			fmt.Sprintf("*Status* :vertical_traffic_light:\n %s", summary.StatusText), false, false),
	}

	details := slack.NewSectionBlock(
		nil,
		fields,
		slack.NewAccessory(slack.NewImageBlockElement(gitlabLogoURL, "GitLab logo")),
	)

	return slack.Attachment{
		Blocks: slack.Blocks{BlockSet: []slack.Block{title, details}},
	}
}

// buildBehaviourPrompt は自動アサイン後の問い合わせメッセージを組み立てます
func buildBehaviourPrompt(prompt *service.BehaviourPrompt) (string, slack.Attachment) {
	var text, callbackID, alwaysLabel, confirmText string

	if prompt.Kind == service.PromptReviewer {
		text = fmt.Sprintf("You have been automatically assigned as *Reviewer* to the Merge Request in this channel with your :%s: reaction.", prompt.Reaction)
		callbackID = "select_default_app_behaviour_reviewer"
		alwaysLabel = fmt.Sprintf("Assign me on :%s: reaction (always)", prompt.Reaction)
		confirmText = "Wouldn't you prefer to be assigned as reviewer automatically?"
	} else {
		text = "You have been automatically assigned as *Assignee* to the Merge Request that you shared in this channel because you are the author of the merge request."
		callbackID = "select_default_app_behaviour_assignee"
		alwaysLabel = "Assign me (always)"
		confirmText = "Are you sure to be *not* assigned as *Assignee* automatically if you share your own merge request link?"
	}

	attachment := slack.Attachment{
		Text:       "Would you like to change the default behaviour of this?",
		Fallback:   "You are unable to choose a default behaviour",
		CallbackID: callbackID,
		Color:      "#3AA3E3",
		Actions: []slack.AttachmentAction{
			{
				Name:  "default",
				Text:  alwaysLabel,
				Type:  "button",
				Style: "primary",
				Value: "auto",
			},
			{
				Name:  "default",
				Text:  "Do nothing (never assign me)",
				Type:  "button",
				Style: "danger",
				Value: "never",
				Confirm: &slack.ConfirmationField{
					Title:       "Are you sure?",
					Text:        confirmText,
					OkText:      "Yes",
					DismissText: "No",
				},
			},
			{
				Name:  "default",
				Text:  "Ask me later",
				Type:  "button",
				Value: "ask_later",
			},
		},
	}

	return text, attachment
}
