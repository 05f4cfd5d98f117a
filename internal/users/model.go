package users

import (
	"strings"
	"time"
)

const maxUsernameLength = 50

// User is the local profile that owns posts and decks.
type User struct {
	ID         uint      `gorm:"column:id;primaryKey;autoIncrement"`
	Username   string    `gorm:"column:username;size:50;not null;uniqueIndex"`
	Bio        *string   `gorm:"column:bio;type:text"`
	ProfileURL *string   `gorm:"column:profile_url;size:500"`
	ExternalID *string   `gorm:"column:external_id;type:text;uniqueIndex"`
	CreatedAt  time.Time `gorm:"column:created_at;not null"`
}

// TableName exposes the table backing user profiles.
func (User) TableName() string {
	return "users"
}

func normalize(value string) string {
	return strings.TrimSpace(value)
}

func optionalString(value string) *string {
	trimmed := normalize(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
