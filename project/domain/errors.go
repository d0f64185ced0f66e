package domain

import "errors"

// ドメインエラー定義
var (
	// ErrInvalid は不正な値が設定された場合のエラー
	ErrInvalid = errors.New("ドメイン: 不正な値です")

	// ErrNotFound は要求されたリソースが見つからない場合のエラー
	ErrNotFound = errors.New("ドメイン: リソースが見つかりません")

	// ErrDuplicateMention は同一の (リンク, メッセージTS) ペアが既に記録済みの場合のエラー。
	// Slack イベントの再配送で起こり得るため、呼び出し側は no-op として扱います
	ErrDuplicateMention = errors.New("ドメイン: メンションが既に存在します")

	// ErrDuplicateUser は同一 Slack ユーザーのレコードが既に存在する場合のエラー
	ErrDuplicateUser = errors.New("ドメイン: ユーザーが既に存在します")

	// ErrUnresolvedIdentity は Slack ユーザーに対応する GitLab メンバーが
	// 見つからない場合のエラー。対象イベントはリトライせずに中断します
	ErrUnresolvedIdentity = errors.New("ドメイン: GitLabユーザーを解決できません")
)
