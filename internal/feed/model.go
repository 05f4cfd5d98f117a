package feed

import (
	"time"
)

const (
	maxBodyLength    = 500
	defaultFeedLimit = 50
	maxFeedLimit     = 100

	unknownUserID      = "unknown"
	unknownProfileName = "Unknown User"
)

// Tweet is a root post or a comment. Comments reference their parent by id only.
type Tweet struct {
	ID            uint      `gorm:"column:id;primaryKey;autoIncrement"`
	Body          string    `gorm:"column:body;type:text;not null"`
	Likes         int       `gorm:"column:likes;not null;default:0"`
	Replies       int       `gorm:"column:replies;not null;default:0"`
	Restacks      int       `gorm:"column:restacks;not null;default:0"`
	Saves         int       `gorm:"column:saves;not null;default:0"`
	IsComment     bool      `gorm:"column:is_comment;not null;default:false;index:idx_tweets_comment_created,priority:1"`
	ParentTweetID *uint     `gorm:"column:parent_tweet_id;index"`
	UserID        uint      `gorm:"column:user_id;not null;index"`
	CreatedAt     time.Time `gorm:"column:created_at;not null;index:idx_tweets_comment_created,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (Tweet) TableName() string {
	return "tweets"
}

// Author is the projection of a post's owner shown next to the post.
type Author struct {
	UserID      string
	ProfileName string
	ProfileURL  *string
}

// Post is a single tweet together with its author projection.
type Post struct {
	Tweet  Tweet
	Author Author
}

// Comment is a reply as listed under its parent. Author is nil when the owning user is gone.
type Comment struct {
	Tweet  Tweet
	Author *Author
}

// CreatePost is the payload for a new post or comment.
type CreatePost struct {
	Body          string
	IsComment     bool
	ParentTweetID *uint
}

// Page selects a window of the feed.
type Page struct {
	Offset int
	Limit  int
}

// NewPage clamps the requested window: offset is at least zero and limit falls in [1,100],
// with zero meaning the default of 50.
func NewPage(offset, limit int) Page {
	if offset < 0 {
		offset = 0
	}
	switch {
	case limit == 0:
		limit = defaultFeedLimit
	case limit < 1:
		limit = 1
	case limit > maxFeedLimit:
		limit = maxFeedLimit
	}
	return Page{Offset: offset, Limit: limit}
}
