package service

import (
	"context"

	"gitlab-mr-bot/project/domain"
)

// SlackPort は Slack API 呼び出しのポートです
type SlackPort interface {
	// FetchUsername は Slack ユーザーIDからユーザー名を取得します
	FetchUsername(ctx context.Context, slackUserID string) (string, error)

	// HasUnfurl は対象メッセージに指定リンクのアンファール添付が
	// 残っているかを判定します（プラットフォームやユーザーにより除去され得ます）
	HasUnfurl(ctx context.Context, channelID, messageTS, link string) (bool, error)

	// PushUnfurl はチャンネル内メッセージへアンファールを適用します
	PushUnfurl(ctx context.Context, channelID, messageTS, link string, summary *UnfurlSummary) error

	// PushComposerUnfurl はコンポーザーのプレビューへタイトルのみの
	// アンファールを適用します（永続化されません）
	PushComposerUnfurl(ctx context.Context, unfurlID, link, title string) error

	// PostBehaviourPrompt はデフォルト動作の問い合わせをエフェメラルで投稿します
	PostBehaviourPrompt(ctx context.Context, channelID, userID string, prompt *BehaviourPrompt) error

	// AddReaction はメッセージへリアクションを追加します。
	// 既に付与済みの場合は何もせずに成功を返します（冪等）
	AddReaction(ctx context.Context, channelID, messageTS, reaction string) error

	// RemoveReaction はメッセージからリアクションを除去します。
	// 付与されていない場合は何もせずに成功を返します（冪等）
	RemoveReaction(ctx context.Context, channelID, messageTS, reaction string) error
}

// GitLabPort は GitLab API 呼び出しのポートです。
// 各操作は到達させたい最終状態に対して冪等です
type GitLabPort interface {
	// FetchMergeRequestDetails はマージリクエストのスナップショットを取得します。
	// 取得できない場合（未存在・一時障害）はエラーを返し、
	// 呼び出し側はその回の処理をスキップします
	FetchMergeRequestDetails(ctx context.Context, projectPath, mrID string) (*MergeRequestDetails, error)

	// FindProjectMemberByUsername はプロジェクトメンバーをユーザー名で検索します。
	// 該当メンバーがいない場合は (nil, nil) を返します
	FindProjectMemberByUsername(ctx context.Context, projectPath, username string) (*domain.GitLabUser, error)

	// AssignAsReviewer はユーザーをレビュアーに追加します。
	// 既にレビュアーの場合は何もせず (false, nil) を返します
	AssignAsReviewer(ctx context.Context, projectPath, mrID string, gitlabUserID int) (bool, error)

	// UnassignFromReviewers はユーザーをレビュアーから除外します。
	// レビュアーでない場合は何もせず (false, nil) を返します
	UnassignFromReviewers(ctx context.Context, projectPath, mrID string, gitlabUserID int) (bool, error)

	// AssignAsAssignee はユーザーをアサインに追加します。
	// 既にアサイン済みの場合は何もせず (false, nil) を返します。
	// 「アサインが空かつ投稿者がMR作者」という前提条件の判定は呼び出し側が行います
	AssignAsAssignee(ctx context.Context, projectPath, mrID string, gitlabUserID int) (bool, error)
}
