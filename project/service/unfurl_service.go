package service

import (
	"context"
	"errors"
	"fmt"

	"gitlab-mr-bot/project/domain"

	"go.uber.org/zap"
)

// UnfurlService はメンション1件のアンファール表示を最新化するサービスです
type UnfurlService interface {
	// Refresh はメンションのアンファールを再計算して適用します。
	// 一度も適用されていないメンションはスキップします
	// （初回適用はリンク共有時のチャンネルアンファールでのみ行われます）
	Refresh(ctx context.Context, m *domain.Mention) error

	// PushAndRecord はスナップショットからアンファールを適用し、
	// 成功時に適用結果をメンションへ記録します
	PushAndRecord(ctx context.Context, m *domain.Mention, details *MergeRequestDetails) error
}

// unfurlService は UnfurlService の実装です
type unfurlService struct {
	mentions domain.MentionRepository
	sp       SlackPort
	gp       GitLabPort
	logger   *zap.Logger
}

// NewUnfurlService は UnfurlService のインスタンスを作成します
func NewUnfurlService(mentions domain.MentionRepository, sp SlackPort, gp GitLabPort, logger *zap.Logger) UnfurlService {
	return &unfurlService{
		mentions: mentions,
		sp:       sp,
		gp:       gp,
		logger:   logger.Named("unfurl_service"),
	}
}

// Refresh はメンションのアンファールを再計算して適用します
func (us *unfurlService) Refresh(ctx context.Context, m *domain.Mention) error {
	// 初回適用はチャンネルアンファール経由のオプトインでのみ行い、
	// 未適用のメンションは更新対象外とします
	if !m.Unfurled {
		us.logger.Debug("未適用メンションのため更新をスキップ",
			zap.String("link", m.MergeRequestLink),
			zap.String("ts", m.MessageTS))
		return nil
	}

	// アンファール添付が除去されていないか確認（除去済みなら静かにスキップ）
	present, err := us.sp.HasUnfurl(ctx, m.ChannelID, m.MessageTS, m.MergeRequestLink)
	if err != nil {
		return fmt.Errorf("Refresh: メッセージ確認失敗: %w", err)
	}
	if !present {
		us.logger.Debug("アンファール添付が見つからないため更新をスキップ",
			zap.String("link", m.MergeRequestLink),
			zap.String("ts", m.MessageTS))
		return nil
	}

	details, err := us.gp.FetchMergeRequestDetails(ctx, m.ProjectPath, m.MergeRequestID)
	if err != nil {
		// 取得できない場合はこの回の更新をスキップ（次回のイベントや定期更新で再試行）
		us.logger.Debug("マージリクエスト取得失敗のため更新をスキップ",
			zap.String("project", m.ProjectPath),
			zap.String("mr", m.MergeRequestID),
			zap.Error(err))
		return nil
	}

	return us.PushAndRecord(ctx, m, details)
}

// PushAndRecord はアンファールを適用し、成功時にタイムスタンプを記録します
func (us *unfurlService) PushAndRecord(ctx context.Context, m *domain.Mention, details *MergeRequestDetails) error {
	summary := BuildUnfurlSummary(m.MergeRequestLink, details)

	if err := us.sp.PushUnfurl(ctx, m.ChannelID, m.MessageTS, m.MergeRequestLink, summary); err != nil {
		return fmt.Errorf("PushAndRecord: アンファール適用失敗: %w", err)
	}

	if err := us.mentions.MarkUnfurlApplied(ctx, m); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// 適用中にメンションが削除された場合は記録のみ諦めます
			us.logger.Warn("適用記録対象のメンションが見つかりません",
				zap.String("link", m.MergeRequestLink),
				zap.String("ts", m.MessageTS))
			return nil
		}
		return fmt.Errorf("PushAndRecord: 適用記録失敗: %w", err)
	}

	return nil
}

// BuildUnfurlSummary はスナップショットから表示内容を組み立てます
func BuildUnfurlSummary(link string, details *MergeRequestDetails) *UnfurlSummary {
	return &UnfurlSummary{
		Title:        details.Title,
		Link:         link,
		StatusText:   HumanReadableStatus(details.State, details.DetailedMergeStatus),
		AssigneeText: assigneeText(details),
		ReviewerText: reviewerText(details),
		ChangesCount: details.ChangesCount,
	}
}

// HumanReadableStatus は state と detailed_merge_status から表示用ステータスを導出します。
// 終端状態（merged, closed）は detailed_merge_status より常に優先されます
func HumanReadableStatus(state, detailedMergeStatus string) string {
	if state == "merged" {
		return "Merged :tada:"
	}

	if state == "closed" {
		return "Closed (the changes were not merged) :octagonal_sign:"
	}

	switch detailedMergeStatus {
	case "conflict":
		return "Conflict - _Cannot be merged until conflicts resolved._"
	case "draft_status":
		return "Draft - _Cannot be merged until marked ready._"
	case "checking", "approvals_syncing":
		return "_GitLab is checking if merge request can be merged..._"
	case "mergeable":
		return "Ready to merge!"
	case "ci_still_running":
		return "_GitLab CI pipeline is still running..._"
	case "ci_must_pass":
		return "_Merge blocked: Pipeline must succeed._"
	case "not_approved":
		return "Requires approval!"
	case "requested_changes":
		return "_The change requests must be completed or resolved._"
	default:
		return detailedMergeStatus
	}
}

// assigneeText はアサイン表示（なし / 1名 / "先頭 (+N)"）を組み立てます
func assigneeText(details *MergeRequestDetails) string {
	switch len(details.Assignees) {
	case 0:
		return fmt.Sprintf(":exclamation: None - _the author (%s) of this merge request should set the responsible person(s) for e.g. developing the code, merging the MR._", details.Author.Username)
	case 1:
		return details.Assignees[0].Username
	default:
		return fmt.Sprintf("%s (+%d)", details.Assignees[0].Username, len(details.Assignees)-1)
	}
}

// reviewerText はレビュアー表示（なし / 1名 / "先頭 (+N)"）を組み立てます
func reviewerText(details *MergeRequestDetails) string {
	switch len(details.Reviewers) {
	case 0:
		return ":exclamation: None - _assign yourself with the :eyes: reaction to participate in giving peer review._"
	case 1:
		return details.Reviewers[0].Username
	default:
		return fmt.Sprintf("%s (+%d)", details.Reviewers[0].Username, len(details.Reviewers)-1)
	}
}
