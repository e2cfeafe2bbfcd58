// Package feed implements the current-item resolution and extraction
// pipeline for an infinite-scroll video feed: geometry-based current-item
// inference, multi-strategy field extraction, session-scoped deduplication,
// scroll/key advancing, and the checkpointing collection loop that ties
// them together.
package feed

import "time"

// Record is one observation of a feed item at the moment it was current.
// Every field is optional; a partially filled record is a normal outcome and
// an entirely empty one just means "try again next cycle".
type Record struct {
	Thumbnail       string     `json:"thumbnail,omitempty"`
	LikeCount       *int64     `json:"like_count,omitempty"`
	CommentCount    *int64     `json:"comment_count,omitempty"`
	AuthorHandle    string     `json:"author_handle,omitempty"`
	AuthorAvatarURL string     `json:"author_avatar_url,omitempty"`
	Title           string     `json:"title,omitempty"`
	Music           string     `json:"music,omitempty"`
	Permalink       string     `json:"permalink,omitempty"`
	CollectedAt     time.Time  `json:"collected_at"`
}

// Empty reports whether no field was recoverable.
func (r Record) Empty() bool {
	return r.Thumbnail == "" &&
		r.LikeCount == nil &&
		r.CommentCount == nil &&
		r.AuthorHandle == "" &&
		r.AuthorAvatarURL == "" &&
		r.Title == "" &&
		r.Music == "" &&
		r.Permalink == ""
}
