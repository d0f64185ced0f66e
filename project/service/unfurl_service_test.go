package service

import (
	"context"
	"errors"
	"testing"

	"gitlab-mr-bot/project/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHumanReadableStatus(t *testing.T) {
	tests := []struct {
		name     string
		state    string
		detailed string
		want     string
	}{
		{"マージ済みは詳細ステータスより優先", "merged", "conflict", "Merged :tada:"},
		{"クローズ済みは詳細ステータスより優先", "closed", "mergeable", "Closed (the changes were not merged) :octagonal_sign:"},
		{"コンフリクト", "opened", "conflict", "Conflict - _Cannot be merged until conflicts resolved._"},
		{"ドラフト", "opened", "draft_status", "Draft - _Cannot be merged until marked ready._"},
		{"チェック中", "opened", "checking", "_GitLab is checking if merge request can be merged..._"},
		{"承認同期中", "opened", "approvals_syncing", "_GitLab is checking if merge request can be merged..._"},
		{"マージ可能", "opened", "mergeable", "Ready to merge!"},
		{"CI実行中", "opened", "ci_still_running", "_GitLab CI pipeline is still running..._"},
		{"CI必須", "opened", "ci_must_pass", "_Merge blocked: Pipeline must succeed._"},
		{"承認待ち", "opened", "not_approved", "Requires approval!"},
		{"修正依頼あり", "opened", "requested_changes", "_The change requests must be completed or resolved._"},
		{"未知の詳細ステータスはそのまま表示", "opened", "jira_association_missing", "jira_association_missing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HumanReadableStatus(tt.state, tt.detailed))
		})
	}
}

func TestBuildUnfurlSummary(t *testing.T) {
	link := "https://gitlab.com/group/project/-/merge_requests/42"
	author := domain.GitLabUser{ID: 1, Username: "author"}

	t.Run("アサイン・レビュアーなし", func(t *testing.T) {
		details := &MergeRequestDetails{
			Title:               "Fix the bug",
			State:               "opened",
			DetailedMergeStatus: "mergeable",
			ChangesCount:        "3",
			Author:              author,
		}

		summary := BuildUnfurlSummary(link, details)
		assert.Equal(t, "Fix the bug", summary.Title)
		assert.Equal(t, link, summary.Link)
		assert.Equal(t, "Ready to merge!", summary.StatusText)
		assert.Equal(t, "3", summary.ChangesCount)
		assert.Contains(t, summary.AssigneeText, "None")
		assert.Contains(t, summary.AssigneeText, "author")
		assert.Contains(t, summary.ReviewerText, "None")
	})

	t.Run("1名ずつ", func(t *testing.T) {
		details := &MergeRequestDetails{
			Author:    author,
			Assignees: []domain.GitLabUser{{ID: 2, Username: "hanako"}},
			Reviewers: []domain.GitLabUser{{ID: 3, Username: "jiro"}},
		}

		summary := BuildUnfurlSummary(link, details)
		assert.Equal(t, "hanako", summary.AssigneeText)
		assert.Equal(t, "jiro", summary.ReviewerText)
	})

	t.Run("複数名は先頭と残数", func(t *testing.T) {
		details := &MergeRequestDetails{
			Author: author,
			Reviewers: []domain.GitLabUser{
				{ID: 3, Username: "jiro"},
				{ID: 4, Username: "saburo"},
				{ID: 5, Username: "shiro"},
			},
		}

		summary := BuildUnfurlSummary(link, details)
		assert.Equal(t, "jiro (+2)", summary.ReviewerText)
	})
}

func newUnfurlFixture(repo *fakeMentionRepo, sp *fakeSlackPort, gp *fakeGitLabPort) UnfurlService {
	return NewUnfurlService(repo, sp, gp, zap.NewNop())
}

func storedMention(repo *fakeMentionRepo, unfurled bool) *domain.Mention {
	m := &domain.Mention{
		CreatedAt:        1700000000,
		MergeRequestID:   "42",
		MergeRequestLink: "https://gitlab.com/group/project/-/merge_requests/42",
		ProjectPath:      "group/project",
		MessageTS:        "1700000000.000100",
		ChannelID:        "C01",
		Unfurled:         unfurled,
	}
	repo.mentions[mentionKey(m.MergeRequestLink, m.MessageTS)] = m
	return m
}

func TestUnfurlServiceRefresh(t *testing.T) {
	ctx := context.Background()

	details := &MergeRequestDetails{
		Title:               "Fix the bug",
		State:               "opened",
		DetailedMergeStatus: "mergeable",
		Author:              domain.GitLabUser{ID: 1, Username: "author"},
	}

	t.Run("未適用メンションは更新しない", func(t *testing.T) {
		repo := newFakeMentionRepo()
		sp := &fakeSlackPort{hasUnfurl: true}
		gp := &fakeGitLabPort{details: details}
		m := storedMention(repo, false)

		require.NoError(t, newUnfurlFixture(repo, sp, gp).Refresh(ctx, m))
		assert.Empty(t, sp.pushed)
		assert.Zero(t, gp.fetchCalls)
	})

	t.Run("添付が除去済みなら静かにスキップ", func(t *testing.T) {
		repo := newFakeMentionRepo()
		sp := &fakeSlackPort{hasUnfurl: false}
		gp := &fakeGitLabPort{details: details}
		m := storedMention(repo, true)

		require.NoError(t, newUnfurlFixture(repo, sp, gp).Refresh(ctx, m))
		assert.Empty(t, sp.pushed)
		assert.Zero(t, gp.fetchCalls)
	})

	t.Run("取得失敗はこの回をスキップしてエラーにしない", func(t *testing.T) {
		repo := newFakeMentionRepo()
		sp := &fakeSlackPort{hasUnfurl: true}
		gp := &fakeGitLabPort{detailsErr: errors.New("gitlab down")}
		m := storedMention(repo, true)

		require.NoError(t, newUnfurlFixture(repo, sp, gp).Refresh(ctx, m))
		assert.Empty(t, sp.pushed)
	})

	t.Run("適用と記録", func(t *testing.T) {
		repo := newFakeMentionRepo()
		sp := &fakeSlackPort{hasUnfurl: true}
		gp := &fakeGitLabPort{details: details}
		m := storedMention(repo, true)

		require.NoError(t, newUnfurlFixture(repo, sp, gp).Refresh(ctx, m))
		require.Len(t, sp.pushed, 1)
		assert.Equal(t, m.ChannelID, sp.pushed[0].channelID)
		assert.Equal(t, m.MergeRequestLink, sp.pushed[0].link)
		assert.Equal(t, "Ready to merge!", sp.pushed[0].summary.StatusText)
		assert.Len(t, repo.marked, 1)
	})
}

func TestUnfurlServicePushAndRecord(t *testing.T) {
	ctx := context.Background()

	details := &MergeRequestDetails{
		Title:  "Fix the bug",
		State:  "opened",
		Author: domain.GitLabUser{ID: 1, Username: "author"},
	}

	t.Run("適用中に削除されたメンションの記録失敗は許容する", func(t *testing.T) {
		repo := newFakeMentionRepo()
		sp := &fakeSlackPort{}
		gp := &fakeGitLabPort{}
		m := &domain.Mention{
			MergeRequestLink: "https://gitlab.com/group/project/-/merge_requests/42",
			MessageTS:        "1700000000.000100",
			ChannelID:        "C01",
		}

		require.NoError(t, newUnfurlFixture(repo, sp, gp).PushAndRecord(ctx, m, details))
		assert.Len(t, sp.pushed, 1)
	})

	t.Run("適用失敗はエラーを返す", func(t *testing.T) {
		repo := newFakeMentionRepo()
		sp := &fakeSlackPort{pushErr: errors.New("slack down")}
		gp := &fakeGitLabPort{}
		m := storedMention(repo, true)

		require.Error(t, newUnfurlFixture(repo, sp, gp).PushAndRecord(ctx, m, details))
		assert.Empty(t, repo.marked)
	})
}
