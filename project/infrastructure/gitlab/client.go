package gitlab

import (
	"context"
	"fmt"
	"strconv"

	"gitlab-mr-bot/project/domain"
	"gitlab-mr-bot/project/infrastructure/config"
	"gitlab-mr-bot/project/service"

	"github.com/pkg/errors"
	"github.com/xanzy/go-gitlab"
	"go.uber.org/zap"
)

// Client は service.GitLabPort の GitLab SDK 実装です
type Client struct {
	gitlab *gitlab.Client
	logger *zap.Logger
}

// NewClient は GitLab API クライアントを初期化します
func NewClient(cfg *config.Config, logger *zap.Logger) (*Client, error) {
	cli, err := gitlab.NewClient(cfg.GitLabPrivateToken, gitlab.WithBaseURL(cfg.GitLabAPIBaseURL()))
	if err != nil {
		return nil, errors.Wrap(err, "Failed to create gitlab client")
	}

	return &Client{
		gitlab: cli,
		logger: logger.Named("gitlab"),
	}, nil
}

// FetchMergeRequestDetails はマージリクエストのスナップショットを取得します
func (c *Client) FetchMergeRequestDetails(ctx context.Context, projectPath, mrID string) (*service.MergeRequestDetails, error) {
	iid, err := strconv.Atoi(mrID)
	if err != nil {
		return nil, fmt.Errorf("gitlab: マージリクエストIDが数値ではありません (id=%s): %w", mrID, err)
	}

	mr, resp, err := c.gitlab.MergeRequests.GetMergeRequest(projectPath, iid, &gitlab.GetMergeRequestsOptions{}, gitlab.WithContext(ctx))
	if err != nil {
		// 未存在と一時障害はログ上でのみ区別し、どちらも今回の処理をスキップさせます
		c.logger.Warn("マージリクエスト取得失敗",
			zap.String("project", projectPath),
			zap.Int("iid", iid),
			zap.Int("status", statusCode(resp)),
			zap.Error(err))
		return nil, fmt.Errorf("gitlab: マージリクエスト取得失敗 (project=%s, iid=%d): %w", projectPath, iid, err)
	}

	return toDetails(mr), nil
}

// FindProjectMemberByUsername はプロジェクトメンバーをユーザー名で検索します。
// 該当メンバーがいない場合は (nil, nil) を返します
func (c *Client) FindProjectMemberByUsername(ctx context.Context, projectPath, username string) (*domain.GitLabUser, error) {
	members, resp, err := c.gitlab.ProjectMembers.ListAllProjectMembers(projectPath, &gitlab.ListProjectMembersOptions{
		Query: gitlab.String(username),
	}, gitlab.WithContext(ctx))
	if err != nil {
		c.logger.Warn("プロジェクトメンバー検索失敗",
			zap.String("project", projectPath),
			zap.String("username", username),
			zap.Int("status", statusCode(resp)),
			zap.Error(err))
		return nil, fmt.Errorf("gitlab: プロジェクトメンバー検索失敗 (project=%s, username=%s): %w", projectPath, username, err)
	}

	if len(members) == 0 {
		c.logger.Warn("ユーザー名に一致するプロジェクトメンバーがいません",
			zap.String("project", projectPath),
			zap.String("username", username))
		return nil, nil
	}

	if len(members) > 1 {
		c.logger.Warn("ユーザー名に複数のプロジェクトメンバーが一致しました。先頭を使用します",
			zap.String("project", projectPath),
			zap.String("username", username),
			zap.Int("matches", len(members)))
	}

	member := members[0]
	return &domain.GitLabUser{
		ID:       member.ID,
		Name:     member.Name,
		Username: member.Username,
	}, nil
}

// AssignAsReviewer はユーザーをレビュアーに追加します。
// 既存のレビュアー一覧へ追加した全量でのセット置換なので部分適用は起きません
func (c *Client) AssignAsReviewer(ctx context.Context, projectPath, mrID string, gitlabUserID int) (bool, error) {
	details, err := c.FetchMergeRequestDetails(ctx, projectPath, mrID)
	if err != nil {
		return false, err
	}

	reviewerIDs := details.ReviewerIDs()
	if containsID(reviewerIDs, gitlabUserID) {
		c.logger.Debug("既にレビュアーのためスキップ",
			zap.String("project", projectPath),
			zap.String("mr", mrID),
			zap.Int("user", gitlabUserID))
		return false, nil
	}

	reviewerIDs = dedupeIDs(append(reviewerIDs, gitlabUserID))
	if err := c.updateReviewers(ctx, projectPath, mrID, reviewerIDs); err != nil {
		return false, err
	}

	return true, nil
}

// UnassignFromReviewers はユーザーをレビュアーから除外します
func (c *Client) UnassignFromReviewers(ctx context.Context, projectPath, mrID string, gitlabUserID int) (bool, error) {
	details, err := c.FetchMergeRequestDetails(ctx, projectPath, mrID)
	if err != nil {
		return false, err
	}

	reviewerIDs := details.ReviewerIDs()
	if !containsID(reviewerIDs, gitlabUserID) {
		c.logger.Debug("レビュアーではないためスキップ",
			zap.String("project", projectPath),
			zap.String("mr", mrID),
			zap.Int("user", gitlabUserID))
		return false, nil
	}

	remaining := make([]int, 0, len(reviewerIDs))
	for _, id := range reviewerIDs {
		if id != gitlabUserID {
			remaining = append(remaining, id)
		}
	}

	if err := c.updateReviewers(ctx, projectPath, mrID, dedupeIDs(remaining)); err != nil {
		return false, err
	}

	return true, nil
}

// AssignAsAssignee はユーザーをアサインに追加します
func (c *Client) AssignAsAssignee(ctx context.Context, projectPath, mrID string, gitlabUserID int) (bool, error) {
	details, err := c.FetchMergeRequestDetails(ctx, projectPath, mrID)
	if err != nil {
		return false, err
	}

	assigneeIDs := details.AssigneeIDs()
	if containsID(assigneeIDs, gitlabUserID) {
		c.logger.Debug("既にアサイン済みのためスキップ",
			zap.String("project", projectPath),
			zap.String("mr", mrID),
			zap.Int("user", gitlabUserID))
		return false, nil
	}

	assigneeIDs = dedupeIDs(append(assigneeIDs, gitlabUserID))

	iid, err := strconv.Atoi(mrID)
	if err != nil {
		return false, fmt.Errorf("gitlab: マージリクエストIDが数値ではありません (id=%s): %w", mrID, err)
	}

	_, resp, err := c.gitlab.MergeRequests.UpdateMergeRequest(projectPath, iid, &gitlab.UpdateMergeRequestOptions{
		AssigneeIDs: &assigneeIDs,
	}, gitlab.WithContext(ctx))
	if err != nil {
		c.logger.Warn("アサイン更新失敗",
			zap.String("project", projectPath),
			zap.Int("iid", iid),
			zap.Int("status", statusCode(resp)),
			zap.Error(err))
		return false, fmt.Errorf("gitlab: アサイン更新失敗 (project=%s, iid=%d): %w", projectPath, iid, err)
	}

	return true, nil
}

// updateReviewers はレビュアー一覧を全量置換で更新します
func (c *Client) updateReviewers(ctx context.Context, projectPath, mrID string, reviewerIDs []int) error {
	iid, err := strconv.Atoi(mrID)
	if err != nil {
		return fmt.Errorf("gitlab: マージリクエストIDが数値ではありません (id=%s): %w", mrID, err)
	}

	_, resp, err := c.gitlab.MergeRequests.UpdateMergeRequest(projectPath, iid, &gitlab.UpdateMergeRequestOptions{
		ReviewerIDs: &reviewerIDs,
	}, gitlab.WithContext(ctx))
	if err != nil {
		c.logger.Warn("レビュアー更新失敗",
			zap.String("project", projectPath),
			zap.Int("iid", iid),
			zap.Int("status", statusCode(resp)),
			zap.Error(err))
		return fmt.Errorf("gitlab: レビュアー更新失敗 (project=%s, iid=%d): %w", projectPath, iid, err)
	}

	return nil
}

// ===== ヘルパー関数 =====

// toDetails は SDK のレスポンスをサービス層のスナップショットへ変換します
func toDetails(mr *gitlab.MergeRequest) *service.MergeRequestDetails {
	details := &service.MergeRequestDetails{
		Title:               mr.Title,
		State:               mr.State,
		DetailedMergeStatus: mr.DetailedMergeStatus,
		ChangesCount:        mr.ChangesCount,
		WebURL:              mr.WebURL,
	}

	if mr.Author != nil {
		details.Author = domain.GitLabUser{
			ID:       mr.Author.ID,
			Name:     mr.Author.Name,
			Username: mr.Author.Username,
		}
	}

	for _, reviewer := range mr.Reviewers {
		details.Reviewers = append(details.Reviewers, domain.GitLabUser{
			ID:       reviewer.ID,
			Name:     reviewer.Name,
			Username: reviewer.Username,
		})
	}

	for _, assignee := range mr.Assignees {
		details.Assignees = append(details.Assignees, domain.GitLabUser{
			ID:       assignee.ID,
			Name:     assignee.Name,
			Username: assignee.Username,
		})
	}

	return details
}

// statusCode はレスポンスからHTTPステータスコードを安全に取り出します
func statusCode(resp *gitlab.Response) int {
	if resp == nil || resp.Response == nil {
		return 0
	}
	return resp.StatusCode
}

func containsID(ids []int, id int) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func dedupeIDs(ids []int) []int {
	seen := make(map[int]bool, len(ids))
	result := make([]int, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			result = append(result, id)
		}
	}
	return result
}
