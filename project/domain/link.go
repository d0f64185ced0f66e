package domain

import (
	"net/url"
	"regexp"
	"strings"
)

// MergeRequestLink はマージリクエスト Web URL から抽出した識別情報です
type MergeRequestLink struct {
	// ID はマージリクエストの IID（数値文字列）
	ID string

	// ProjectPath は namespace/path 形式のプロジェクトパス（末尾スラッシュ除去済み）
	ProjectPath string

	// ProjectPathEncoded は API パスセグメント用にエンコードしたプロジェクトパス
	// （'/' は '%2F' になります）
	ProjectPathEncoded string
}

// マージリクエスト Web URL の形式: <host>/<namespace/path>/-/merge_requests/<iid>
// プロジェクトパスは複数セグメントを含み得ます
var mergeRequestLinkPattern = regexp.MustCompile(`https?://(?:gitlab\.com/)?([^\s]+/[^\s]*?)-/merge_requests/(\d+)$`)

// ParseMergeRequestLink は URL 文字列からマージリクエストの識別情報を抽出します。
// マージリクエスト URL でない場合は nil を返します（エラーではありません）
func ParseMergeRequestLink(raw string) *MergeRequestLink {
	match := mergeRequestLinkPattern.FindStringSubmatch(raw)
	if match == nil {
		return nil
	}

	projectPath := strings.TrimSuffix(match[1], "/")
	if projectPath == "" {
		return nil
	}

	return &MergeRequestLink{
		ID:                 match[2],
		ProjectPath:        projectPath,
		ProjectPathEncoded: url.PathEscape(projectPath),
	}
}
