package domain

import (
	"context"
)

// MentionRepository はマージリクエストメンションの永続化を担当します
type MentionRepository interface {
	// Create はメンションを新規作成します。
	// 同一の (MergeRequestLink, MessageTS) ペアが既に存在する場合は
	// domain.ErrDuplicateMention を返します
	// バリデーションエラー時は domain.ErrInvalid を返します
	Create(ctx context.Context, m *Mention) error

	// FindByMergeRequest は指定マージリクエストの全メンションを返します。
	// 順序は保証されません。該当なしの場合は空スライスを返します
	FindByMergeRequest(ctx context.Context, mrID, projectPath string) ([]*Mention, error)

	// FindByMessage はメッセージTSに対応するメンションを高々1件返します。
	// 存在しない場合は domain.ErrNotFound を返します
	FindByMessage(ctx context.Context, messageTS string) (*Mention, error)

	// FindAll は全メンションを返します（定期アンファール更新用）
	FindAll(ctx context.Context) ([]*Mention, error)

	// DeleteCreatedBefore は作成日時が cutoff より厳密に古いメンションを
	// 全て削除し、削除件数を返します。cutoff ちょうどのレコードは残ります
	DeleteCreatedBefore(ctx context.Context, cutoffUnix int64) (int, error)

	// MarkUnfurlApplied はアンファール適用結果を記録します。
	// 初回適用時は Unfurled フラグと UnfurlAddedAt を設定し、
	// 適用済みの場合は UnfurlUpdatedAt のみ更新します。
	// 対象レコードが存在しない場合は domain.ErrNotFound を返します
	MarkUnfurlApplied(ctx context.Context, m *Mention) error
}

// UserRepository は Slack ユーザーと GitLab ユーザーの紐付けの永続化を担当します
type UserRepository interface {
	// Find は指定された Slack ユーザーIDのレコードを取得します。
	// 存在しない場合は domain.ErrNotFound を返します
	Find(ctx context.Context, slackUserID string) (*AppUser, error)

	// Create はユーザーを新規作成します。
	// 同一 Slack ユーザーIDのレコードが既に存在する場合は
	// domain.ErrDuplicateUser を返します
	// バリデーションエラー時は domain.ErrInvalid を返します
	Create(ctx context.Context, u *AppUser) error

	// SetAutoAssignReviewer は自動レビュアー登録設定を更新します。
	// 対象レコードが存在しない場合は domain.ErrNotFound を返します
	SetAutoAssignReviewer(ctx context.Context, slackUserID string, value bool) error

	// SetAutoAssignAssignee は自動アサイン設定を更新します。
	// 対象レコードが存在しない場合は domain.ErrNotFound を返します
	SetAutoAssignAssignee(ctx context.Context, slackUserID string, value bool) error
}
