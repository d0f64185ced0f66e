package service

import (
	"context"
	"errors"
	"fmt"

	"gitlab-mr-bot/project/domain"
	"gitlab-mr-bot/project/infrastructure/config"

	"go.uber.org/zap"
)

// MentionService はリンク共有・リアクション・Webhook の各イベントを
// 受け付けてメンションの状態を整合させるサービスです。
// 各ハンドラーは呼び出し間で状態を持たず、全ての状態はストアに置かれます
type MentionService interface {
	// OnLinkShared は link_shared イベント検知時に呼ばれます。
	// コンポーザー由来のイベントはプレビューのみ適用し、永続化しません
	OnLinkShared(ctx context.Context, ev *LinkSharedEvent) error

	// OnReactionAdded はトリガー絵文字のリアクション追加時に
	// リアクションしたユーザーをレビュアーへ登録します
	OnReactionAdded(ctx context.Context, ev *ReactionEvent) error

	// OnReactionRemoved はトリガー絵文字のリアクション除去時に
	// リアクションしたユーザーをレビュアーから除外します
	OnReactionRemoved(ctx context.Context, ev *ReactionEvent) error

	// OnMergeRequestWebhook は GitLab の Merge Request Hook を処理し、
	// 当該MRの全メンションへリアクション反映とアンファール更新を行います
	OnMergeRequestWebhook(ctx context.Context, ev *MergeRequestWebhookEvent) error

	// RefreshMentionByMessage はメッセージTSからメンションを特定して
	// アンファールを1回更新します（メッセージショートカット用）
	RefreshMentionByMessage(ctx context.Context, messageTS string) error
}

// mentionService は MentionService の実装です
type mentionService struct {
	cfg      *config.Config
	mentions domain.MentionRepository
	userSvc  UserService
	unfurls  UnfurlService
	sp       SlackPort
	gp       GitLabPort
	logger   *zap.Logger
}

// NewMentionService は MentionService のインスタンスを作成します
func NewMentionService(
	cfg *config.Config,
	mentions domain.MentionRepository,
	userSvc UserService,
	unfurls UnfurlService,
	sp SlackPort,
	gp GitLabPort,
	logger *zap.Logger,
) MentionService {
	return &mentionService{
		cfg:      cfg,
		mentions: mentions,
		userSvc:  userSvc,
		unfurls:  unfurls,
		sp:       sp,
		gp:       gp,
		logger:   logger.Named("mention_service"),
	}
}

// OnLinkShared はリンク共有イベントを処理します
func (ms *mentionService) OnLinkShared(ctx context.Context, ev *LinkSharedEvent) error {
	if ev.UnfurlID == "" {
		ms.logger.Debug("unfurl_id がないためリンク共有イベントをスキップ")
		return nil
	}

	if !ms.cfg.IsChannelAllowed(ev.ChannelID) {
		ms.logger.Debug("許可リスト外チャンネルのためリンク共有イベントをスキップ",
			zap.String("channel", ev.ChannelID))
		return nil
	}

	// 複数リンクはどのリンクの状態を追うべきか曖昧なため対象外とします
	if len(ev.Links) != 1 {
		ms.logger.Debug("リンクが1件ではないためリンク共有イベントをスキップ",
			zap.Int("links", len(ev.Links)))
		return nil
	}

	linkURL := ev.Links[0]
	link := domain.ParseMergeRequestLink(linkURL)
	if link == nil {
		// マージリクエスト以外のリンク
		return nil
	}

	if ev.Source == "composer" {
		return ms.unfurlInComposer(ctx, ev.UnfurlID, linkURL, link)
	}

	mention := &domain.Mention{
		CreatedAt:        ev.NowUnix,
		MergeRequestID:   link.ID,
		MergeRequestLink: linkURL,
		ProjectPath:      link.ProjectPath,
		MessageTS:        ev.MessageTS,
		ChannelID:        ev.ChannelID,
	}

	if err := ms.mentions.Create(ctx, mention); err != nil {
		if errors.Is(err, domain.ErrDuplicateMention) {
			// プラットフォームの再配送。記録済みのメンションを読み直して続行します
			// （適用済みフラグを引き継がないと初回適用の記録を上書きしてしまうため）
			ms.logger.Debug("メンションが記録済みのため既存レコードで続行",
				zap.String("link", linkURL),
				zap.String("ts", ev.MessageTS))
			existing, ferr := ms.mentions.FindByMessage(ctx, ev.MessageTS)
			if ferr != nil {
				return fmt.Errorf("OnLinkShared: 記録済みメンション取得失敗: %w", ferr)
			}
			mention = existing
		} else {
			return fmt.Errorf("OnLinkShared: メンション記録失敗: %w", err)
		}
	}

	user, err := ms.userSvc.EnsureUser(ctx, ev.UserID, link.ProjectPath)
	if err != nil {
		if errors.Is(err, domain.ErrUnresolvedIdentity) {
			// このイベントは中断。ユーザーは以降のイベントで連携されます
			ms.logger.Warn("GitLabユーザー未解決のためリンク共有イベントを中断",
				zap.String("slackUser", ev.UserID),
				zap.Error(err))
			return nil
		}
		return fmt.Errorf("OnLinkShared: ユーザー解決失敗: %w", err)
	}

	// 以降の2つの副作用は独立しており順序に意味はありません。
	// 失敗はログのみで、次のイベントや定期更新が再試行の機会になります
	details, err := ms.gp.FetchMergeRequestDetails(ctx, link.ProjectPath, link.ID)
	if err != nil {
		ms.logger.Warn("マージリクエスト取得失敗のため副作用をスキップ",
			zap.String("project", link.ProjectPath),
			zap.String("mr", link.ID),
			zap.Error(err))
		return nil
	}

	ms.autoAssignAuthorAsAssignee(ctx, ev, mention, user, details)

	if ms.cfg.UnfurlInChannel {
		// 初回のアンファール適用はこの経路のみで行われます
		if err := ms.unfurls.PushAndRecord(ctx, mention, details); err != nil {
			ms.logger.Error("チャンネルアンファール適用失敗",
				zap.String("link", linkURL),
				zap.String("ts", ev.MessageTS),
				zap.Error(err))
		}
	}

	return nil
}

// unfurlInComposer はコンポーザーのプレビューへタイトルのみ適用します（永続化なし）
func (ms *mentionService) unfurlInComposer(ctx context.Context, unfurlID, linkURL string, link *domain.MergeRequestLink) error {
	if !ms.cfg.UnfurlInComposer {
		return nil
	}

	details, err := ms.gp.FetchMergeRequestDetails(ctx, link.ProjectPath, link.ID)
	if err != nil {
		ms.logger.Debug("マージリクエスト取得失敗のためコンポーザープレビューをスキップ",
			zap.String("project", link.ProjectPath),
			zap.String("mr", link.ID),
			zap.Error(err))
		return nil
	}

	if err := ms.sp.PushComposerUnfurl(ctx, unfurlID, linkURL, details.Title); err != nil {
		ms.logger.Error("コンポーザープレビュー適用失敗",
			zap.String("link", linkURL),
			zap.Error(err))
	}
	return nil
}

// autoAssignAuthorAsAssignee はリンク投稿者がMR作者かつアサインが空の場合に
// 投稿者を自動アサインします。前提条件はここで全て判定します
func (ms *mentionService) autoAssignAuthorAsAssignee(ctx context.Context, ev *LinkSharedEvent, mention *domain.Mention, user *domain.AppUser, details *MergeRequestDetails) {
	if !ms.cfg.AutoAssignAuthorAsAssignee {
		return
	}

	// 明示的にオプトアウト済みのユーザーには何もしません
	if user.AutoAssignAsAssignee != nil && !*user.AutoAssignAsAssignee {
		return
	}

	if len(details.Assignees) != 0 {
		return
	}

	if details.Author.ID != user.GitLabUser.ID {
		return
	}

	changed, err := ms.gp.AssignAsAssignee(ctx, mention.ProjectPath, mention.MergeRequestID, user.GitLabUser.ID)
	if err != nil {
		ms.logger.Warn("自動アサイン失敗",
			zap.String("project", mention.ProjectPath),
			zap.String("mr", mention.MergeRequestID),
			zap.Int("user", user.GitLabUser.ID),
			zap.Error(err))
		return
	}

	// 一度も意思表示していないユーザーへは1回だけデフォルト動作を確認します
	if changed && user.AutoAssignAsAssignee == nil {
		prompt := &BehaviourPrompt{Kind: PromptAssignee}
		if err := ms.sp.PostBehaviourPrompt(ctx, ev.ChannelID, ev.UserID, prompt); err != nil {
			ms.logger.Error("自動アサイン問い合わせ投稿失敗",
				zap.String("slackUser", ev.UserID),
				zap.Error(err))
		}
	}
}

// OnReactionAdded はリアクション追加イベントを処理します
func (ms *mentionService) OnReactionAdded(ctx context.Context, ev *ReactionEvent) error {
	if !ms.cfg.AssignReviewerOnReaction {
		return nil
	}

	if ev.Reaction != ms.cfg.ReviewerReaction {
		return nil
	}

	if !ms.cfg.IsChannelAllowed(ev.ChannelID) {
		ms.logger.Debug("許可リスト外チャンネルのためリアクション追加をスキップ",
			zap.String("channel", ev.ChannelID))
		return nil
	}

	mention, user, err := ms.resolveReactionTarget(ctx, ev)
	if err != nil || mention == nil {
		return err
	}

	changed, err := ms.gp.AssignAsReviewer(ctx, mention.ProjectPath, mention.MergeRequestID, user.GitLabUser.ID)
	if err != nil {
		// 次のリアクションや定期更新が再試行の機会になります
		ms.logger.Warn("レビュアー登録失敗",
			zap.String("project", mention.ProjectPath),
			zap.String("mr", mention.MergeRequestID),
			zap.Int("user", user.GitLabUser.ID),
			zap.Error(err))
		return nil
	}

	// 一度も意思表示していないユーザーへは1回だけデフォルト動作を確認します
	if changed && user.AutoAssignAsReviewer == nil {
		prompt := &BehaviourPrompt{Kind: PromptReviewer, Reaction: ev.Reaction}
		if err := ms.sp.PostBehaviourPrompt(ctx, ev.ChannelID, ev.UserID, prompt); err != nil {
			ms.logger.Error("レビュアー問い合わせ投稿失敗",
				zap.String("slackUser", ev.UserID),
				zap.Error(err))
		}
	}

	return nil
}

// OnReactionRemoved はリアクション除去イベントを処理します
func (ms *mentionService) OnReactionRemoved(ctx context.Context, ev *ReactionEvent) error {
	if !ms.cfg.UnassignReviewerOnReaction {
		return nil
	}

	if ev.Reaction != ms.cfg.ReviewerReaction {
		return nil
	}

	if !ms.cfg.IsChannelAllowed(ev.ChannelID) {
		ms.logger.Debug("許可リスト外チャンネルのためリアクション除去をスキップ",
			zap.String("channel", ev.ChannelID))
		return nil
	}

	mention, user, err := ms.resolveReactionTarget(ctx, ev)
	if err != nil || mention == nil {
		return err
	}

	if _, err := ms.gp.UnassignFromReviewers(ctx, mention.ProjectPath, mention.MergeRequestID, user.GitLabUser.ID); err != nil {
		ms.logger.Warn("レビュアー除外失敗",
			zap.String("project", mention.ProjectPath),
			zap.String("mr", mention.MergeRequestID),
			zap.Int("user", user.GitLabUser.ID),
			zap.Error(err))
	}

	return nil
}

// resolveReactionTarget はリアクション対象のメンションとユーザーを解決します。
// 処理継続できない場合は (nil, nil, nil) を返し、呼び出し側はスキップします
func (ms *mentionService) resolveReactionTarget(ctx context.Context, ev *ReactionEvent) (*domain.Mention, *domain.AppUser, error) {
	mention, err := ms.mentions.FindByMessage(ctx, ev.MessageTS)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// 追跡していないメッセージへのリアクションには対象がありません
			ms.logger.Info("メンション未登録メッセージへのリアクションをスキップ",
				zap.String("ts", ev.MessageTS))
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("リアクション対象メンション取得失敗: %w", err)
	}

	user, err := ms.userSvc.EnsureUser(ctx, ev.UserID, mention.ProjectPath)
	if err != nil {
		if errors.Is(err, domain.ErrUnresolvedIdentity) {
			ms.logger.Warn("GitLabユーザー未解決のためリアクションイベントを中断",
				zap.String("slackUser", ev.UserID),
				zap.Error(err))
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("リアクションユーザー解決失敗: %w", err)
	}

	// 明示的にオプトアウト済みのユーザーのリアクションは無視します
	if user.AutoAssignAsReviewer != nil && !*user.AutoAssignAsReviewer {
		ms.logger.Debug("自動レビュアー登録をオプトアウト済みのユーザーのためスキップ",
			zap.String("slackUser", ev.UserID))
		return nil, nil, nil
	}

	return mention, user, nil
}

// OnMergeRequestWebhook は Merge Request Hook を処理します
func (ms *mentionService) OnMergeRequestWebhook(ctx context.Context, ev *MergeRequestWebhookEvent) error {
	mentions, err := ms.mentions.FindByMergeRequest(ctx, ev.MergeRequestID, ev.ProjectPath)
	if err != nil {
		return fmt.Errorf("OnMergeRequestWebhook: メンション検索失敗: %w", err)
	}

	if len(mentions) == 0 {
		ms.logger.Debug("どのメッセージでも言及されていないマージリクエストのためスキップ",
			zap.String("project", ev.ProjectPath),
			zap.String("mr", ev.MergeRequestID))
		return nil
	}

	for _, mention := range mentions {
		if !ms.cfg.IsChannelAllowed(mention.ChannelID) {
			ms.logger.Debug("許可リスト外チャンネルのメンションをスキップ",
				zap.String("channel", mention.ChannelID))
			continue
		}

		if ms.cfg.WebhookAddReactions {
			ms.applyWebhookReaction(ctx, ev.Action, mention)
		}

		// アクションの種類に関わらずアンファールを最新化します
		if ms.cfg.WebhookUpdateUnfurls {
			if err := ms.unfurls.Refresh(ctx, mention); err != nil {
				ms.logger.Error("Webhook契機のアンファール更新失敗",
					zap.String("link", mention.MergeRequestLink),
					zap.String("ts", mention.MessageTS),
					zap.Error(err))
			}
		}
	}

	return nil
}

// applyWebhookReaction はアクションに応じてメンション元メッセージの
// リアクションを追加・除去します。失敗はログのみです
func (ms *mentionService) applyWebhookReaction(ctx context.Context, action string, mention *domain.Mention) {
	var err error
	switch action {
	case "approved":
		err = ms.sp.AddReaction(ctx, mention.ChannelID, mention.MessageTS, ms.cfg.ApprovedReaction)
	case "unapproved":
		err = ms.sp.RemoveReaction(ctx, mention.ChannelID, mention.MessageTS, ms.cfg.ApprovedReaction)
	case "merge", "close":
		err = ms.sp.AddReaction(ctx, mention.ChannelID, mention.MessageTS, ms.cfg.ClosedReaction)
	case "reopen":
		err = ms.sp.RemoveReaction(ctx, mention.ChannelID, mention.MessageTS, ms.cfg.ClosedReaction)
	case "update":
		// 情報のみ。リアクション変更はありません
	default:
		ms.logger.Warn("未対応のマージリクエストアクション",
			zap.String("action", action))
	}

	if err != nil {
		ms.logger.Error("Webhook契機のリアクション反映失敗",
			zap.String("action", action),
			zap.String("channel", mention.ChannelID),
			zap.String("ts", mention.MessageTS),
			zap.Error(err))
	}
}

// RefreshMentionByMessage はメッセージショートカットからの更新要求を処理します
func (ms *mentionService) RefreshMentionByMessage(ctx context.Context, messageTS string) error {
	mention, err := ms.mentions.FindByMessage(ctx, messageTS)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			ms.logger.Debug("ショートカット対象のメンションが見つかりません",
				zap.String("ts", messageTS))
			return nil
		}
		return fmt.Errorf("RefreshMentionByMessage: メンション取得失敗: %w", err)
	}

	return ms.unfurls.Refresh(ctx, mention)
}
