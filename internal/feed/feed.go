// Package feed 提供 RSS/Atom 订阅源的定时轮询、指纹去重和新条目通知。
package feed

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Entry 订阅源中的一个条目。除所属订阅源外，任何字段都可能缺失。
type Entry struct {
	GUID      string     `json:"guid,omitempty"`
	Title     string     `json:"title,omitempty"`
	Link      string     `json:"link,omitempty"`
	Summary   string     `json:"summary,omitempty"`
	Content   string     `json:"content,omitempty"`
	Published *time.Time `json:"published,omitempty"` // 源提供的发布时间，排序不可信
	FeedName  string     `json:"feed_name,omitempty"`
}

// Metadata 订阅源级别的元信息。
type Metadata struct {
	Title        string
	ETag         string
	LastModified string
}

// Conditional 条件请求标记，用于避免重复下载未变化的内容。
type Conditional struct {
	ETag         string `json:"etag,omitempty"`
	LastModified string `json:"last_modified,omitempty"`
}

// Fingerprint 计算条目的去重指纹。
// 优先使用源提供的 GUID；否则由链接、标题和发布时间派生；
// 若这些字段全部缺失，退化为对剩余内容散列。
// 指纹相同的两个条目视为同一逻辑条目，与其余字段的差异无关。
func (e Entry) Fingerprint() string {
	if e.GUID != "" {
		return e.GUID
	}
	var published string
	if e.Published != nil {
		published = e.Published.UTC().Format(time.RFC3339)
	}
	if e.Link != "" || e.Title != "" || published != "" {
		return hashFields(e.Link, e.Title, published)
	}
	return hashFields(e.Summary, e.Content)
}

func hashFields(fields ...string) string {
	h := sha256.New()
	for i, f := range fields {
		if i > 0 {
			h.Write([]byte{0})
		}
		h.Write([]byte(f))
	}
	return hex.EncodeToString(h.Sum(nil)[:16])
}
