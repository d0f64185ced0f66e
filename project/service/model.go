package service

import "gitlab-mr-bot/project/domain"

// LinkSharedEvent は Slack の link_shared イベントを表します
type LinkSharedEvent struct {
	// ChannelID はリンクが共有されたチャンネルのID
	ChannelID string

	// UserID はリンクを投稿したユーザーID
	UserID string

	// MessageTS はリンクを含むメッセージのタイムスタンプ
	MessageTS string

	// UnfurlID は chat.unfurl のコンポーザー向け識別子
	UnfurlID string

	// Source はイベントの発生源（"composer" または "conversations_history"）
	Source string

	// Links は共有されたリンクのURL一覧
	Links []string

	// NowUnix はイベント発生時刻（Unix秒）
	NowUnix int64
}

// ReactionEvent は Slack の reaction_added / reaction_removed イベントを表します
type ReactionEvent struct {
	// UserID はリアクションしたユーザーID
	UserID string

	// Reaction は絵文字名（コロンなし）
	Reaction string

	// ChannelID は対象メッセージのチャンネルID
	ChannelID string

	// MessageTS は対象メッセージのタイムスタンプ
	MessageTS string
}

// MergeRequestWebhookEvent は GitLab の Merge Request Hook から抽出したイベントです
type MergeRequestWebhookEvent struct {
	// Action はマージリクエストのアクション
	// ("approved", "unapproved", "merge", "close", "reopen", "update")
	Action string

	// MergeRequestID はマージリクエストの IID（数値文字列）
	MergeRequestID string

	// ProjectPath は namespace/path 形式のプロジェクトパス
	ProjectPath string
}

// MergeRequestDetails は GitLab から取得したマージリクエストのスナップショットです
type MergeRequestDetails struct {
	Title               string
	State               string // "opened", "merged", "closed"
	DetailedMergeStatus string
	ChangesCount        string
	WebURL              string
	Author              domain.GitLabUser
	Reviewers           []domain.GitLabUser
	Assignees           []domain.GitLabUser
}

// ReviewerIDs はレビュアーの GitLab ユーザーID一覧を返します
func (d *MergeRequestDetails) ReviewerIDs() []int {
	ids := make([]int, 0, len(d.Reviewers))
	for _, r := range d.Reviewers {
		ids = append(ids, r.ID)
	}
	return ids
}

// AssigneeIDs はアサインされたユーザーの GitLab ユーザーID一覧を返します
func (d *MergeRequestDetails) AssigneeIDs() []int {
	ids := make([]int, 0, len(d.Assignees))
	for _, a := range d.Assignees {
		ids = append(ids, a.ID)
	}
	return ids
}

// UnfurlSummary はチャンネルに表示するアンファールの内容です
type UnfurlSummary struct {
	// Title はマージリクエストのタイトル
	Title string

	// Link はマージリクエストの Web URL
	Link string

	// StatusText は state と detailed_merge_status から導出した表示用ステータス
	StatusText string

	// AssigneeText はアサイン表示（なし / 1名 / "先頭 (+N)"）
	AssigneeText string

	// ReviewerText はレビュアー表示（なし / 1名 / "先頭 (+N)"）
	ReviewerText string

	// ChangesCount は変更ファイル数の表示文字列
	ChangesCount string
}

// BehaviourPromptKind はエフェメラルで問い合わせるデフォルト動作の種別です
type BehaviourPromptKind string

const (
	// PromptReviewer はリアクション時の自動レビュアー登録に関する問い合わせ
	PromptReviewer BehaviourPromptKind = "reviewer"

	// PromptAssignee はリンク共有時の自動アサインに関する問い合わせ
	PromptAssignee BehaviourPromptKind = "assignee"
)

// BehaviourPrompt は自動アサイン後にユーザーへ送るデフォルト動作の問い合わせです
type BehaviourPrompt struct {
	// Kind は問い合わせの種別
	Kind BehaviourPromptKind

	// Reaction は問い合わせ文に埋め込むトリガー絵文字名（レビュアー問い合わせのみ）
	Reaction string
}
