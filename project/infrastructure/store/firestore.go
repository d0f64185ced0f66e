package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"gitlab-mr-bot/project/domain"
	"gitlab-mr-bot/project/infrastructure/config"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// isNotFound は Firestore の NotFound エラーを判定するヘルパー関数です
func isNotFound(err error) bool {
	st, ok := status.FromError(err)
	return ok && st.Code() == codes.NotFound
}

// isAlreadyExists は Firestore の AlreadyExists エラーを判定するヘルパー関数です
func isAlreadyExists(err error) bool {
	st, ok := status.FromError(err)
	return ok && st.Code() == codes.AlreadyExists
}

// mentionDoc は Firestore 保存用のメンションドキュメントです
type mentionDoc struct {
	CreatedAt        int64  `firestore:"created_at"`
	MergeRequestID   string `firestore:"merge_request_id"`
	MergeRequestLink string `firestore:"merge_request_link"`
	ProjectPath      string `firestore:"project_path"`
	MessageTS        string `firestore:"message_ts"`
	ChannelID        string `firestore:"channel_id"`
	Unfurled         bool   `firestore:"unfurled"`
	UnfurlAddedAt    int64  `firestore:"unfurl_added_at"`
	UnfurlUpdatedAt  int64  `firestore:"unfurl_updated_at"`
}

// userDoc は Firestore 保存用のユーザードキュメントです
type userDoc struct {
	SlackID              string `firestore:"slack_id"`
	SlackUsername        string `firestore:"slack_username"`
	CreatedAt            int64  `firestore:"created_at"`
	GitLabID             int    `firestore:"gitlab_id"`
	GitLabName           string `firestore:"gitlab_name"`
	GitLabUsername       string `firestore:"gitlab_username"`
	AutoAssignAsReviewer *bool  `firestore:"auto_assign_as_reviewer"`
	AutoAssignAsAssignee *bool  `firestore:"auto_assign_as_assignee"`
}

// FirestoreRepo は domain.MentionRepository と domain.UserRepository の Firestore 実装です
type FirestoreRepo struct {
	cli         *firestore.Client
	mentionsCol string
	usersCol    string
}

// NewFirestoreRepo は Firestore リポジトリを初期化します
func NewFirestoreRepo(ctx context.Context, cfg *config.Config) (*FirestoreRepo, error) {
	client, err := firestore.NewClient(ctx, cfg.FirestoreProjectID)
	if err != nil {
		return nil, fmt.Errorf("firestore: クライアント初期化失敗: %w", err)
	}

	return &FirestoreRepo{
		cli:         client,
		mentionsCol: cfg.CollectionMentions,
		usersCol:    cfg.CollectionUsers,
	}, nil
}

// ===== MentionRepository 実装 =====

// Create はメンションを新規作成します。
// (リンク, メッセージTS) ペアの一意性はドキュメントIDで担保します
func (repo *FirestoreRepo) Create(ctx context.Context, m *domain.Mention) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("firestore: Create検証失敗: %w", err)
	}

	docID := mentionDocID(m.MergeRequestLink, m.MessageTS)
	docRef := repo.cli.Collection(repo.mentionsCol).Doc(docID)

	if _, err := docRef.Create(ctx, toMentionDoc(m)); err != nil {
		if isAlreadyExists(err) {
			return domain.ErrDuplicateMention
		}
		return fmt.Errorf("firestore: メンション作成失敗 (docID=%s): %w", docID, err)
	}

	return nil
}

// FindByMergeRequest は指定マージリクエストの全メンションを返します
func (repo *FirestoreRepo) FindByMergeRequest(ctx context.Context, mrID, projectPath string) ([]*domain.Mention, error) {
	query := repo.cli.Collection(repo.mentionsCol).
		Where("merge_request_id", "==", mrID).
		Where("project_path", "==", projectPath)

	return collectMentions(query.Documents(ctx))
}

// FindByMessage はメッセージTSに対応するメンションを高々1件返します
func (repo *FirestoreRepo) FindByMessage(ctx context.Context, messageTS string) (*domain.Mention, error) {
	iter := repo.cli.Collection(repo.mentionsCol).
		Where("message_ts", "==", messageTS).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	snapshot, err := iter.Next()
	if err == iterator.Done {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("firestore: メンション検索失敗 (ts=%s): %w", messageTS, err)
	}

	var doc mentionDoc
	if err := snapshot.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("firestore: メンション構造体変換失敗: %w", err)
	}

	return fromMentionDoc(&doc), nil
}

// FindAll は全メンションを返します
func (repo *FirestoreRepo) FindAll(ctx context.Context) ([]*domain.Mention, error) {
	return collectMentions(repo.cli.Collection(repo.mentionsCol).Documents(ctx))
}

// DeleteCreatedBefore は作成日時が cutoff より厳密に古いメンションを削除します
func (repo *FirestoreRepo) DeleteCreatedBefore(ctx context.Context, cutoffUnix int64) (int, error) {
	iter := repo.cli.Collection(repo.mentionsCol).
		Where("created_at", "<", cutoffUnix).
		Documents(ctx)
	defer iter.Stop()

	deleted := 0
	for {
		snapshot, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return deleted, fmt.Errorf("firestore: 削除対象メンション列挙失敗: %w", err)
		}

		if _, err := snapshot.Ref.Delete(ctx); err != nil {
			return deleted, fmt.Errorf("firestore: メンション削除失敗 (docID=%s): %w", snapshot.Ref.ID, err)
		}
		deleted++
	}

	return deleted, nil
}

// MarkUnfurlApplied はアンファール適用結果を記録します。
// 初回適用時は Unfurled フラグと UnfurlAddedAt を設定し、
// 以降の適用では UnfurlUpdatedAt のみ更新します
func (repo *FirestoreRepo) MarkUnfurlApplied(ctx context.Context, m *domain.Mention) error {
	docID := mentionDocID(m.MergeRequestLink, m.MessageTS)
	docRef := repo.cli.Collection(repo.mentionsCol).Doc(docID)

	now := time.Now().Unix()
	var updates []firestore.Update
	if !m.Unfurled {
		updates = []firestore.Update{
			{Path: "unfurled", Value: true},
			{Path: "unfurl_added_at", Value: now},
		}
	} else {
		updates = []firestore.Update{
			{Path: "unfurl_updated_at", Value: now},
		}
	}

	if _, err := docRef.Update(ctx, updates); err != nil {
		if isNotFound(err) {
			// レコードが既に削除されている場合（呼び出し側でログのみ）
			return domain.ErrNotFound
		}
		return fmt.Errorf("firestore: アンファール適用記録失敗 (docID=%s): %w", docID, err)
	}

	// 呼び出し側が続けて参照できるようにエンティティ側も揃えます
	if !m.Unfurled {
		m.Unfurled = true
		m.UnfurlAddedAt = now
	} else {
		m.UnfurlUpdatedAt = now
	}

	return nil
}

// ===== UserRepository 実装 =====

// Find は指定された Slack ユーザーIDのレコードを取得します
func (repo *FirestoreRepo) Find(ctx context.Context, slackUserID string) (*domain.AppUser, error) {
	docRef := repo.cli.Collection(repo.usersCol).Doc(slackUserID)

	snapshot, err := docRef.Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("firestore: ユーザー取得失敗 (slackID=%s): %w", slackUserID, err)
	}

	var doc userDoc
	if err := snapshot.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("firestore: ユーザー構造体変換失敗: %w", err)
	}

	return fromUserDoc(&doc), nil
}

// Create はユーザーを新規作成します。
// Slack ユーザーIDの一意性はドキュメントIDで担保します
func (repo *FirestoreRepo) Create(ctx context.Context, u *domain.AppUser) error {
	if err := u.Validate(); err != nil {
		return fmt.Errorf("firestore: ユーザーCreate検証失敗: %w", err)
	}

	docRef := repo.cli.Collection(repo.usersCol).Doc(u.SlackID)

	if _, err := docRef.Create(ctx, toUserDoc(u)); err != nil {
		if isAlreadyExists(err) {
			return domain.ErrDuplicateUser
		}
		return fmt.Errorf("firestore: ユーザー作成失敗 (slackID=%s): %w", u.SlackID, err)
	}

	return nil
}

// SetAutoAssignReviewer は自動レビュアー登録設定を更新します
func (repo *FirestoreRepo) SetAutoAssignReviewer(ctx context.Context, slackUserID string, value bool) error {
	return repo.setUserField(ctx, slackUserID, "auto_assign_as_reviewer", value)
}

// SetAutoAssignAssignee は自動アサイン設定を更新します
func (repo *FirestoreRepo) SetAutoAssignAssignee(ctx context.Context, slackUserID string, value bool) error {
	return repo.setUserField(ctx, slackUserID, "auto_assign_as_assignee", value)
}

// setUserField はユーザードキュメントの単一フィールドを更新します
func (repo *FirestoreRepo) setUserField(ctx context.Context, slackUserID, path string, value bool) error {
	docRef := repo.cli.Collection(repo.usersCol).Doc(slackUserID)

	_, err := docRef.Update(ctx, []firestore.Update{
		{Path: path, Value: value},
	})
	if err != nil {
		if isNotFound(err) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("firestore: ユーザー設定更新失敗 (slackID=%s, path=%s): %w", slackUserID, path, err)
	}

	return nil
}

// Close は Firestore クライアントを閉じます
func (repo *FirestoreRepo) Close() error {
	if repo.cli != nil {
		return repo.cli.Close()
	}
	return nil
}

// ===== ヘルパー関数 =====

// mentionDocID は (リンク, メッセージTS) ペアから一意なドキュメントIDを生成します。
// リンクは '/' を含みドキュメントIDに使えないためハッシュ化します
func mentionDocID(link, messageTS string) string {
	sum := sha256.Sum256([]byte(link + "|" + messageTS))
	return hex.EncodeToString(sum[:])
}

// collectMentions はクエリ結果をエンティティのスライスへ変換します
func collectMentions(iter *firestore.DocumentIterator) ([]*domain.Mention, error) {
	defer iter.Stop()

	mentions := []*domain.Mention{}
	for {
		snapshot, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore: メンション列挙失敗: %w", err)
		}

		var doc mentionDoc
		if err := snapshot.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("firestore: メンション構造体変換失敗: %w", err)
		}
		mentions = append(mentions, fromMentionDoc(&doc))
	}

	return mentions, nil
}

func toMentionDoc(m *domain.Mention) *mentionDoc {
	return &mentionDoc{
		CreatedAt:        m.CreatedAt,
		MergeRequestID:   m.MergeRequestID,
		MergeRequestLink: m.MergeRequestLink,
		ProjectPath:      m.ProjectPath,
		MessageTS:        m.MessageTS,
		ChannelID:        m.ChannelID,
		Unfurled:         m.Unfurled,
		UnfurlAddedAt:    m.UnfurlAddedAt,
		UnfurlUpdatedAt:  m.UnfurlUpdatedAt,
	}
}

func fromMentionDoc(doc *mentionDoc) *domain.Mention {
	return &domain.Mention{
		CreatedAt:        doc.CreatedAt,
		MergeRequestID:   doc.MergeRequestID,
		MergeRequestLink: doc.MergeRequestLink,
		ProjectPath:      doc.ProjectPath,
		MessageTS:        doc.MessageTS,
		ChannelID:        doc.ChannelID,
		Unfurled:         doc.Unfurled,
		UnfurlAddedAt:    doc.UnfurlAddedAt,
		UnfurlUpdatedAt:  doc.UnfurlUpdatedAt,
	}
}

func toUserDoc(u *domain.AppUser) *userDoc {
	return &userDoc{
		SlackID:              u.SlackID,
		SlackUsername:        u.SlackUsername,
		CreatedAt:            u.CreatedAt,
		GitLabID:             u.GitLabUser.ID,
		GitLabName:           u.GitLabUser.Name,
		GitLabUsername:       u.GitLabUser.Username,
		AutoAssignAsReviewer: u.AutoAssignAsReviewer,
		AutoAssignAsAssignee: u.AutoAssignAsAssignee,
	}
}

func fromUserDoc(doc *userDoc) *domain.AppUser {
	return &domain.AppUser{
		SlackID:       doc.SlackID,
		SlackUsername: doc.SlackUsername,
		CreatedAt:     doc.CreatedAt,
		GitLabUser: domain.GitLabUser{
			ID:       doc.GitLabID,
			Name:     doc.GitLabName,
			Username: doc.GitLabUsername,
		},
		AutoAssignAsReviewer: doc.AutoAssignAsReviewer,
		AutoAssignAsAssignee: doc.AutoAssignAsAssignee,
	}
}
