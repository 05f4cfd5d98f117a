package flashcards

import (
	"time"
)

// Status is the study progress of one card for one user.
type Status string

const (
	StatusNew      Status = "new"
	StatusLearning Status = "learning"
	StatusReviewed Status = "reviewed"
)

// DefaultStudyLimit is the due-card batch size when the caller names none.
const DefaultStudyLimit = 10

const (
	maxDeckNameLength        = 200
	maxDeckDescriptionLength = 1000
)

// Deck groups cards owned by one user.
type Deck struct {
	ID          uint      `gorm:"column:id;primaryKey;autoIncrement"`
	UserID      uint      `gorm:"column:user_id;not null;index"`
	Name        string    `gorm:"column:name;size:200;not null"`
	Description *string   `gorm:"column:description;type:text"`
	CreatedAt   time.Time `gorm:"column:created_at;not null"`
	UpdatedAt   time.Time `gorm:"column:updated_at;not null;index"`
}

// TableName binds Deck to its table.
func (Deck) TableName() string {
	return "decks"
}

// Card is a front/back pair inside a deck.
type Card struct {
	ID        uint      `gorm:"column:id;primaryKey;autoIncrement"`
	DeckID    uint      `gorm:"column:deck_id;not null;index"`
	Front     string    `gorm:"column:front;type:text;not null"`
	Back      string    `gorm:"column:back;type:text;not null"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

// TableName binds Card to its table.
func (Card) TableName() string {
	return "cards"
}

// StudyQueue tracks the review history of a card for a user. A row exists only after the first review.
type StudyQueue struct {
	ID             uint      `gorm:"column:id;primaryKey;autoIncrement"`
	CardID         uint      `gorm:"column:card_id;not null;uniqueIndex:idx_study_queue_card_user,priority:1"`
	UserID         uint      `gorm:"column:user_id;not null;uniqueIndex:idx_study_queue_card_user,priority:2;index"`
	Status         Status    `gorm:"column:status;size:20;not null"`
	NextReviewAt   time.Time `gorm:"column:next_review_at;not null"`
	LastReviewedAt time.Time `gorm:"column:last_reviewed_at;not null"`
	ReviewCount    int       `gorm:"column:review_count;not null;default:0"`
}

// TableName binds StudyQueue to its table.
func (StudyQueue) TableName() string {
	return "study_queue"
}

// StatusCounts partitions a deck's cards by the caller's study status.
type StatusCounts struct {
	Total    int
	New      int
	Learning int
	Reviewed int
}

// DeckSummary is a deck together with the caller's status counts.
type DeckSummary struct {
	Deck   Deck
	Counts StatusCounts
}

// CardView is a card as seen by one user.
type CardView struct {
	Card  Card
	State ReviewState
}

// DeckInput carries deck fields. Nil fields are left unchanged on update.
type DeckInput struct {
	Name        *string
	Description *string
}

// CardInput carries card fields. Nil fields are left unchanged on update.
type CardInput struct {
	Front *string
	Back  *string
}

// ReviewResult is the scheduling outcome of one review.
type ReviewResult struct {
	CardID       uint
	Status       Status
	NextReviewAt time.Time
	ReviewCount  int
}
