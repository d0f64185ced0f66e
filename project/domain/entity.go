package domain

import (
	"fmt"
	"strings"
)

// GitLabUser は GitLab 側のユーザー情報を表します
type GitLabUser struct {
	// ID は GitLab ユーザーの数値ID
	ID int

	// Name は表示名
	Name string

	// Username は GitLab のユーザー名
	Username string
}

// Slack メッセージ内で観測されたマージリクエストリンク1件の記録
type Mention struct {
	// CreatedAt はレコードの作成日時（Unix秒）
	CreatedAt int64

	// MergeRequestID はマージリクエストの IID（数値文字列）
	MergeRequestID string

	// MergeRequestLink はマージリクエストの正規 Web URL
	MergeRequestLink string

	// ProjectPath は namespace/path 形式のプロジェクトパス（大文字小文字を区別）
	ProjectPath string

	// MessageTS はリンクを含む Slack メッセージのタイムスタンプ。
	// チャンネル内で単調増加するためメッセージの識別子を兼ねます
	MessageTS string

	// ChannelID はリンクが投稿されたチャンネルのID
	ChannelID string

	// Unfurled はチャンネル内アンファールが一度でも適用されたかどうか
	Unfurled bool

	// UnfurlAddedAt は初回アンファール適用日時（Unix秒、未適用なら0）
	UnfurlAddedAt int64

	// UnfurlUpdatedAt は最終アンファール更新日時（Unix秒）
	UnfurlUpdatedAt int64
}

// Slack ユーザーと GitLab ユーザーの紐付けおよび自動アサイン設定
type AppUser struct {
	// SlackID は Slack ユーザーのID（一意）
	SlackID string

	// SlackUsername は Slack のユーザー名
	SlackUsername string

	// CreatedAt はレコードの作成日時（Unix秒）
	CreatedAt int64

	// GitLabUser は紐付いた GitLab ユーザー
	GitLabUser GitLabUser

	// AutoAssignAsReviewer はリアクション時の自動レビュアー登録設定。
	// nil は未回答を表します
	AutoAssignAsReviewer *bool

	// AutoAssignAsAssignee はリンク共有時の自動アサイン設定。
	// nil は未回答を表します
	AutoAssignAsAssignee *bool
}

// Validate は Mention の必須項目を検証します
func (m Mention) Validate() error {
	if strings.TrimSpace(m.MergeRequestID) == "" {
		return fmt.Errorf("%w: MergeRequestIDは必須項目です", ErrInvalid)
	}
	if strings.TrimSpace(m.MergeRequestLink) == "" {
		return fmt.Errorf("%w: MergeRequestLinkは必須項目です", ErrInvalid)
	}
	if strings.TrimSpace(m.ProjectPath) == "" {
		return fmt.Errorf("%w: ProjectPathは必須項目です", ErrInvalid)
	}
	if strings.TrimSpace(m.MessageTS) == "" {
		return fmt.Errorf("%w: MessageTSは必須項目です", ErrInvalid)
	}
	if strings.TrimSpace(m.ChannelID) == "" {
		return fmt.Errorf("%w: ChannelIDは必須項目です", ErrInvalid)
	}
	if m.CreatedAt <= 0 {
		return fmt.Errorf("%w: CreatedAtは0より大きい必要があります", ErrInvalid)
	}
	return nil
}

// Validate は AppUser の必須項目を検証します
func (u AppUser) Validate() error {
	if strings.TrimSpace(u.SlackID) == "" {
		return fmt.Errorf("%w: SlackIDは必須項目です", ErrInvalid)
	}
	if strings.TrimSpace(u.SlackUsername) == "" {
		return fmt.Errorf("%w: SlackUsernameは必須項目です", ErrInvalid)
	}
	if u.GitLabUser.ID <= 0 {
		return fmt.Errorf("%w: GitLabUser.IDは0より大きい必要があります", ErrInvalid)
	}
	if strings.TrimSpace(u.GitLabUser.Username) == "" {
		return fmt.Errorf("%w: GitLabUser.Usernameは必須項目です", ErrInvalid)
	}
	if u.CreatedAt <= 0 {
		return fmt.Errorf("%w: CreatedAtは0より大きい必要があります", ErrInvalid)
	}
	return nil
}
