// Package cmd defines core data structures for issue-relay state tracking.
package cmd

import (
	"slices"
	"time"
)

// DefaultSeenLimit bounds SeenCommentIDs when no limit is configured
const DefaultSeenLimit = 500

// Checkpoint records announcement progress for a single issue
type Checkpoint struct {
	IssueAnnounced bool      `json:"issue_announced" yaml:"issue_announced"`
	LastCommentID  int64     `json:"last_comment_id" yaml:"last_comment_id"`
	SeenCommentIDs []int64   `json:"seen_comment_ids" yaml:"seen_comment_ids"` // oldest first
	LastFetchTime  time.Time `json:"last_fetch_time" yaml:"last_fetch_time"`
	IssueETag      string    `json:"issue_etag,omitempty" yaml:"issue_etag,omitempty"`
}

// NewCheckpoint returns the state of an issue nothing has been announced for
func NewCheckpoint() *Checkpoint {
	return &Checkpoint{SeenCommentIDs: []int64{}}
}

// HasSeen reports whether the comment ID is in the recently announced set
func (c *Checkpoint) HasSeen(id int64) bool {
	return slices.Contains(c.SeenCommentIDs, id)
}

// IsEligible reports whether a comment still needs to be announced
func (c *Checkpoint) IsEligible(id int64) bool {
	return id > c.LastCommentID && !c.HasSeen(id)
}

// MarkCommentAnnounced advances the high-water mark and records the ID,
// evicting the oldest entries once the seen set exceeds limit.
func (c *Checkpoint) MarkCommentAnnounced(id int64, limit int) {
	if id > c.LastCommentID {
		c.LastCommentID = id
	}
	if !c.HasSeen(id) {
		c.SeenCommentIDs = append(c.SeenCommentIDs, id)
	}
	if limit <= 0 {
		limit = DefaultSeenLimit
	}
	if over := len(c.SeenCommentIDs) - limit; over > 0 {
		c.SeenCommentIDs = slices.Clone(c.SeenCommentIDs[over:])
	}
}

// Clone returns a deep copy of the checkpoint
func (c *Checkpoint) Clone() *Checkpoint {
	clone := *c
	clone.SeenCommentIDs = slices.Clone(c.SeenCommentIDs)
	if clone.SeenCommentIDs == nil {
		clone.SeenCommentIDs = []int64{}
	}
	return &clone
}
