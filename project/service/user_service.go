package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gitlab-mr-bot/project/domain"

	"go.uber.org/zap"
)

// UserService は Slack ユーザーと GitLab ユーザーの紐付けを管理するサービスです
type UserService interface {
	// EnsureUser は Slack ユーザーIDのレコードを取得し、存在しない場合は
	// GitLab プロジェクトメンバーをユーザー名で解決して遅延作成します。
	// 解決できない場合は domain.ErrUnresolvedIdentity を返し、
	// 呼び出し側は当該イベントをリトライせずに中断します
	EnsureUser(ctx context.Context, slackUserID, projectPath string) (*domain.AppUser, error)

	// SetReviewerPreference はリアクション時の自動レビュアー登録設定を保存します
	SetReviewerPreference(ctx context.Context, slackUserID string, value bool) error

	// SetAssigneePreference はリンク共有時の自動アサイン設定を保存します
	SetAssigneePreference(ctx context.Context, slackUserID string, value bool) error
}

// userService は UserService の実装です
type userService struct {
	users  domain.UserRepository
	sp     SlackPort
	gp     GitLabPort
	logger *zap.Logger
}

// NewUserService は UserService のインスタンスを作成します
func NewUserService(users domain.UserRepository, sp SlackPort, gp GitLabPort, logger *zap.Logger) UserService {
	return &userService{
		users:  users,
		sp:     sp,
		gp:     gp,
		logger: logger.Named("user_service"),
	}
}

// EnsureUser は既存レコードの取得、なければ遅延作成を行います
func (us *userService) EnsureUser(ctx context.Context, slackUserID, projectPath string) (*domain.AppUser, error) {
	user, err := us.users.Find(ctx, slackUserID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("EnsureUser: ユーザー取得失敗: %w", err)
	}

	// 未登録ユーザー: Slack ユーザー名で GitLab プロジェクトメンバーを解決
	username, err := us.sp.FetchUsername(ctx, slackUserID)
	if err != nil {
		return nil, fmt.Errorf("EnsureUser: Slackユーザー名取得失敗: %w", err)
	}

	gitlabUser, err := us.gp.FindProjectMemberByUsername(ctx, projectPath, username)
	if err != nil {
		return nil, fmt.Errorf("EnsureUser: GitLabメンバー検索失敗: %w", err)
	}
	if gitlabUser == nil {
		// 後続のイベントで手動連携されるまで作成できません
		return nil, fmt.Errorf("%w: slackUser=%s, username=%s", domain.ErrUnresolvedIdentity, slackUserID, username)
	}

	user = &domain.AppUser{
		SlackID:       slackUserID,
		SlackUsername: username,
		CreatedAt:     time.Now().Unix(),
		GitLabUser:    *gitlabUser,
	}

	if err := us.users.Create(ctx, user); err != nil {
		if errors.Is(err, domain.ErrDuplicateUser) {
			// 同時配送との競合。既存レコードを採用します
			us.logger.Debug("ユーザー作成が競合したため既存レコードを使用",
				zap.String("slackUser", slackUserID))
			return us.users.Find(ctx, slackUserID)
		}
		return nil, fmt.Errorf("EnsureUser: ユーザー作成失敗: %w", err)
	}

	us.logger.Info("ユーザーを作成しました",
		zap.String("slackUser", slackUserID),
		zap.String("slackUsername", username),
		zap.Int("gitlabUser", gitlabUser.ID))

	return user, nil
}

// SetReviewerPreference は自動レビュアー登録設定を保存します
func (us *userService) SetReviewerPreference(ctx context.Context, slackUserID string, value bool) error {
	if err := us.users.SetAutoAssignReviewer(ctx, slackUserID, value); err != nil {
		return fmt.Errorf("SetReviewerPreference: 設定保存失敗 (slackUser=%s): %w", slackUserID, err)
	}
	return nil
}

// SetAssigneePreference は自動アサイン設定を保存します
func (us *userService) SetAssigneePreference(ctx context.Context, slackUserID string, value bool) error {
	if err := us.users.SetAutoAssignAssignee(ctx, slackUserID, value); err != nil {
		return fmt.Errorf("SetAssigneePreference: 設定保存失敗 (slackUser=%s): %w", slackUserID, err)
	}
	return nil
}
