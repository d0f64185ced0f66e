package jobs

import (
	"context"
	"time"

	"gitlab-mr-bot/project/domain"
	"gitlab-mr-bot/project/service"

	"go.uber.org/zap"
)

// HousekeepingJob は保持期限を過ぎたメンションを定期的に削除します
type HousekeepingJob struct {
	mentions  domain.MentionRepository
	retention time.Duration
	interval  time.Duration
	logger    *zap.Logger
}

// NewHousekeepingJob はハウスキーピングジョブを作成します
func NewHousekeepingJob(mentions domain.MentionRepository, retention, interval time.Duration, logger *zap.Logger) *HousekeepingJob {
	return &HousekeepingJob{
		mentions:  mentions,
		retention: retention,
		interval:  interval,
		logger:    logger.Named("housekeeping"),
	}
}

// Run はコンテキストがキャンセルされるまで定期的に削除を実行します
func (j *HousekeepingJob) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	// 起動直後に1回実行してから周期に入ります
	j.purge(ctx)

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("ハウスキーピングジョブを停止します")
			return
		case <-ticker.C:
			j.purge(ctx)
		}
	}
}

// purge は保持期限より前に作成されたメンションを削除します
func (j *HousekeepingJob) purge(ctx context.Context) {
	cutoff := time.Now().Add(-j.retention).Unix()

	deleted, err := j.mentions.DeleteCreatedBefore(ctx, cutoff)
	if err != nil {
		j.logger.Error("期限切れメンション削除失敗",
			zap.Int64("cutoff", cutoff),
			zap.Error(err))
		return
	}

	if deleted > 0 {
		j.logger.Info("期限切れメンションを削除しました",
			zap.Int("deleted", deleted),
			zap.Int64("cutoff", cutoff))
	}
}

// UnfurlRefreshJob は登録済みの全メンションのアンファールを定期的に最新化します
type UnfurlRefreshJob struct {
	mentions domain.MentionRepository
	unfurls  service.UnfurlService
	interval time.Duration
	logger   *zap.Logger
}

// NewUnfurlRefreshJob はアンファール更新ジョブを作成します
func NewUnfurlRefreshJob(mentions domain.MentionRepository, unfurls service.UnfurlService, interval time.Duration, logger *zap.Logger) *UnfurlRefreshJob {
	return &UnfurlRefreshJob{
		mentions: mentions,
		unfurls:  unfurls,
		interval: interval,
		logger:   logger.Named("unfurl_refresh"),
	}
}

// Run はコンテキストがキャンセルされるまで定期的に更新を実行します
func (j *UnfurlRefreshJob) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("アンファール更新ジョブを停止します")
			return
		case <-ticker.C:
			j.refreshAll(ctx)
		}
	}
}

// refreshAll は全メンションを順に更新します。
// 1件の失敗は記録するのみで残りの処理を続行します
func (j *UnfurlRefreshJob) refreshAll(ctx context.Context) {
	mentions, err := j.mentions.FindAll(ctx)
	if err != nil {
		j.logger.Error("メンション一覧取得失敗", zap.Error(err))
		return
	}

	j.logger.Debug("アンファール更新を開始します", zap.Int("mentions", len(mentions)))

	for _, mention := range mentions {
		if ctx.Err() != nil {
			return
		}

		if err := j.unfurls.Refresh(ctx, mention); err != nil {
			j.logger.Error("アンファール更新失敗",
				zap.String("link", mention.MergeRequestLink),
				zap.String("ts", mention.MessageTS),
				zap.Error(err))
		}
	}
}
