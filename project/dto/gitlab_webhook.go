package dto

// MergeRequestHook は GitLab の Merge Request Hook ペイロードを表します
type MergeRequestHook struct {
	ObjectKind       string               `json:"object_kind"` // "merge_request"
	EventType        string               `json:"event_type"`
	ObjectAttributes MergeRequestHookAttr `json:"object_attributes"`
	Project          HookProject          `json:"project"`
	Changes          *HookChanges         `json:"changes,omitempty"`
}

// MergeRequestHookAttr はフック内のマージリクエスト属性です
type MergeRequestHookAttr struct {
	IID      int    `json:"iid"`
	AuthorID int    `json:"author_id"`
	Action   string `json:"action"` // "approved", "unapproved", "merge", "close", "reopen", "update"
	State    string `json:"state"`
}

// HookProject はフック内のプロジェクト情報です
type HookProject struct {
	PathWithNamespace string `json:"path_with_namespace"`
}

// HookChanges は update アクションで通知される変更差分です
type HookChanges struct {
	Reviewers *HookUserListChange `json:"reviewers,omitempty"`
	Assignees *HookUserListChange `json:"assignees,omitempty"`
}

// HookUserListChange はレビュアー・アサイン一覧の変更前後を表します
type HookUserListChange struct {
	Previous []HookUser `json:"previous"`
	Current  []HookUser `json:"current"`
}

// HookUser はフック内のユーザー情報です
type HookUser struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
}
