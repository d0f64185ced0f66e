package service

import (
	"context"
	"fmt"

	"gitlab-mr-bot/project/domain"
)

// ===== テスト用フェイク実装 =====

// fakeMentionRepo は domain.MentionRepository のインメモリ実装です
type fakeMentionRepo struct {
	mentions  map[string]*domain.Mention // key: link|ts
	createErr error
	findErr   error
	marked    []*domain.Mention
	markErr   error

	// 適用記録がどちらの分岐で書かれたかの回数
	addedAtWrites   int
	updatedAtWrites int
}

func newFakeMentionRepo() *fakeMentionRepo {
	return &fakeMentionRepo{mentions: map[string]*domain.Mention{}}
}

func mentionKey(link, ts string) string {
	return link + "|" + ts
}

func (r *fakeMentionRepo) Create(ctx context.Context, m *domain.Mention) error {
	if r.createErr != nil {
		return r.createErr
	}
	if err := m.Validate(); err != nil {
		return err
	}
	key := mentionKey(m.MergeRequestLink, m.MessageTS)
	if _, ok := r.mentions[key]; ok {
		return domain.ErrDuplicateMention
	}
	copied := *m
	r.mentions[key] = &copied
	return nil
}

func (r *fakeMentionRepo) FindByMergeRequest(ctx context.Context, mrID, projectPath string) ([]*domain.Mention, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	var result []*domain.Mention
	for _, m := range r.mentions {
		if m.MergeRequestID == mrID && m.ProjectPath == projectPath {
			result = append(result, m)
		}
	}
	return result, nil
}

func (r *fakeMentionRepo) FindByMessage(ctx context.Context, messageTS string) (*domain.Mention, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	for _, m := range r.mentions {
		if m.MessageTS == messageTS {
			return m, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *fakeMentionRepo) FindAll(ctx context.Context) ([]*domain.Mention, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	var result []*domain.Mention
	for _, m := range r.mentions {
		result = append(result, m)
	}
	return result, nil
}

func (r *fakeMentionRepo) DeleteCreatedBefore(ctx context.Context, cutoffUnix int64) (int, error) {
	deleted := 0
	for key, m := range r.mentions {
		if m.CreatedAt < cutoffUnix {
			delete(r.mentions, key)
			deleted++
		}
	}
	return deleted, nil
}

func (r *fakeMentionRepo) MarkUnfurlApplied(ctx context.Context, m *domain.Mention) error {
	if r.markErr != nil {
		return r.markErr
	}
	key := mentionKey(m.MergeRequestLink, m.MessageTS)
	stored, ok := r.mentions[key]
	if !ok {
		return domain.ErrNotFound
	}
	// 実リポジトリと同じく、渡されたエンティティの適用状態で分岐します
	if !m.Unfurled {
		stored.Unfurled = true
		stored.UnfurlAddedAt = 1700000100
		m.Unfurled = true
		m.UnfurlAddedAt = stored.UnfurlAddedAt
		r.addedAtWrites++
	} else {
		stored.UnfurlUpdatedAt = 1700000200
		m.UnfurlUpdatedAt = stored.UnfurlUpdatedAt
		r.updatedAtWrites++
	}
	r.marked = append(r.marked, m)
	return nil
}

// fakeUserRepo は domain.UserRepository のインメモリ実装です
type fakeUserRepo struct {
	users map[string]*domain.AppUser

	// failFindOnce は最初の Find を ErrNotFound にします（作成競合の再現用）
	failFindOnce bool
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: map[string]*domain.AppUser{}}
}

func (r *fakeUserRepo) Find(ctx context.Context, slackUserID string) (*domain.AppUser, error) {
	if r.failFindOnce {
		r.failFindOnce = false
		return nil, domain.ErrNotFound
	}
	u, ok := r.users[slackUserID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return u, nil
}

func (r *fakeUserRepo) Create(ctx context.Context, u *domain.AppUser) error {
	if err := u.Validate(); err != nil {
		return err
	}
	if _, ok := r.users[u.SlackID]; ok {
		return domain.ErrDuplicateUser
	}
	copied := *u
	r.users[u.SlackID] = &copied
	return nil
}

func (r *fakeUserRepo) SetAutoAssignReviewer(ctx context.Context, slackUserID string, value bool) error {
	u, ok := r.users[slackUserID]
	if !ok {
		return domain.ErrNotFound
	}
	u.AutoAssignAsReviewer = &value
	return nil
}

func (r *fakeUserRepo) SetAutoAssignAssignee(ctx context.Context, slackUserID string, value bool) error {
	u, ok := r.users[slackUserID]
	if !ok {
		return domain.ErrNotFound
	}
	u.AutoAssignAsAssignee = &value
	return nil
}

// ===== ポートのフェイク =====

type reactionCall struct {
	channelID string
	messageTS string
	reaction  string
}

type pushedUnfurl struct {
	channelID string
	messageTS string
	link      string
	summary   *UnfurlSummary
}

type composerUnfurl struct {
	unfurlID string
	link     string
	title    string
}

type postedPrompt struct {
	channelID string
	userID    string
	prompt    *BehaviourPrompt
}

// fakeSlackPort は SlackPort の記録付きフェイクです
type fakeSlackPort struct {
	username     string
	usernameErr  error
	hasUnfurl    bool
	hasUnfurlErr error
	pushErr      error

	pushed         []pushedUnfurl
	composerPushed []composerUnfurl
	prompts        []postedPrompt
	added          []reactionCall
	removed        []reactionCall
}

func (p *fakeSlackPort) FetchUsername(ctx context.Context, slackUserID string) (string, error) {
	if p.usernameErr != nil {
		return "", p.usernameErr
	}
	return p.username, nil
}

func (p *fakeSlackPort) HasUnfurl(ctx context.Context, channelID, messageTS, link string) (bool, error) {
	if p.hasUnfurlErr != nil {
		return false, p.hasUnfurlErr
	}
	return p.hasUnfurl, nil
}

func (p *fakeSlackPort) PushUnfurl(ctx context.Context, channelID, messageTS, link string, summary *UnfurlSummary) error {
	if p.pushErr != nil {
		return p.pushErr
	}
	p.pushed = append(p.pushed, pushedUnfurl{channelID, messageTS, link, summary})
	return nil
}

func (p *fakeSlackPort) PushComposerUnfurl(ctx context.Context, unfurlID, link, title string) error {
	p.composerPushed = append(p.composerPushed, composerUnfurl{unfurlID, link, title})
	return nil
}

func (p *fakeSlackPort) PostBehaviourPrompt(ctx context.Context, channelID, userID string, prompt *BehaviourPrompt) error {
	p.prompts = append(p.prompts, postedPrompt{channelID, userID, prompt})
	return nil
}

func (p *fakeSlackPort) AddReaction(ctx context.Context, channelID, messageTS, reaction string) error {
	p.added = append(p.added, reactionCall{channelID, messageTS, reaction})
	return nil
}

func (p *fakeSlackPort) RemoveReaction(ctx context.Context, channelID, messageTS, reaction string) error {
	p.removed = append(p.removed, reactionCall{channelID, messageTS, reaction})
	return nil
}

type assignCall struct {
	projectPath string
	mrID        string
	userID      int
}

// fakeGitLabPort は GitLabPort の記録付きフェイクです
type fakeGitLabPort struct {
	details    *MergeRequestDetails
	detailsErr error
	member     *domain.GitLabUser
	memberErr  error

	assignReviewerChanged bool
	assignReviewerErr     error
	unassignChanged       bool
	assignAssigneeChanged bool
	assignAssigneeErr     error

	fetchCalls          int
	assignReviewerCalls []assignCall
	unassignCalls       []assignCall
	assignAssigneeCalls []assignCall
}

func (p *fakeGitLabPort) FetchMergeRequestDetails(ctx context.Context, projectPath, mrID string) (*MergeRequestDetails, error) {
	p.fetchCalls++
	if p.detailsErr != nil {
		return nil, p.detailsErr
	}
	if p.details == nil {
		return nil, fmt.Errorf("fake: details not configured")
	}
	return p.details, nil
}

func (p *fakeGitLabPort) FindProjectMemberByUsername(ctx context.Context, projectPath, username string) (*domain.GitLabUser, error) {
	if p.memberErr != nil {
		return nil, p.memberErr
	}
	return p.member, nil
}

func (p *fakeGitLabPort) AssignAsReviewer(ctx context.Context, projectPath, mrID string, gitlabUserID int) (bool, error) {
	p.assignReviewerCalls = append(p.assignReviewerCalls, assignCall{projectPath, mrID, gitlabUserID})
	return p.assignReviewerChanged, p.assignReviewerErr
}

func (p *fakeGitLabPort) UnassignFromReviewers(ctx context.Context, projectPath, mrID string, gitlabUserID int) (bool, error) {
	p.unassignCalls = append(p.unassignCalls, assignCall{projectPath, mrID, gitlabUserID})
	return p.unassignChanged, nil
}

func (p *fakeGitLabPort) AssignAsAssignee(ctx context.Context, projectPath, mrID string, gitlabUserID int) (bool, error) {
	p.assignAssigneeCalls = append(p.assignAssigneeCalls, assignCall{projectPath, mrID, gitlabUserID})
	return p.assignAssigneeChanged, p.assignAssigneeErr
}
