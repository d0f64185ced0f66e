package dto

// SlackEventRequest は Slack Events API のリクエスト全体を表します
type SlackEventRequest struct {
	Token     string     `json:"token"`
	TeamID    string     `json:"team_id"`
	APIAppID  string     `json:"api_app_id"`
	Event     SlackEvent `json:"event"`
	Type      string     `json:"type"` // "event_callback", "url_verification"
	EventID   string     `json:"event_id"`
	EventTime int64      `json:"event_time"`
	Challenge string     `json:"challenge,omitempty"` // URL検証時のみ
}

// SlackEvent は link_shared / reaction_added / reaction_removed を
// 表現する汎用構造体です
type SlackEvent struct {
	Type    string `json:"type"`              // "link_shared", "reaction_added", "reaction_removed"
	User    string `json:"user"`              // イベント発生者のユーザーID
	Channel string `json:"channel,omitempty"` // チャンネルID（link_shared）
	EventTS string `json:"event_ts,omitempty"`

	// link_shared イベント固有
	MessageTS string       `json:"message_ts,omitempty"`
	Links     []SharedLink `json:"links,omitempty"`
	Source    string       `json:"source,omitempty"`    // "composer" または "conversations_history"
	UnfurlID  string       `json:"unfurl_id,omitempty"` // chat.unfurl のコンポーザー向け識別子

	// reaction_added / reaction_removed イベント固有
	Reaction string        `json:"reaction,omitempty"` // 絵文字名（コロンなし）
	Item     *ReactionItem `json:"item,omitempty"`
}

// SharedLink は link_shared イベントで共有されたリンク1件を表します
type SharedLink struct {
	URL    string `json:"url"`
	Domain string `json:"domain"`
}

// ReactionItem はリアクションの対象メッセージを表します
type ReactionItem struct {
	Type      string `json:"type"` // "message"
	Channel   string `json:"channel"`
	Timestamp string `json:"ts"`
}
