// Package models contains data structures for the application's domain models.
package models

import (
	"time"
)

// Comment represents a comment on a post. Deleting the post removes its
// comments (cascade); deleting the owner only clears the owner reference.
type Comment struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Text      string    `gorm:"type:text;not null" json:"text"`
	OwnerID   *uint     `gorm:"index" json:"owner_id"`
	Owner     *User     `gorm:"foreignKey:OwnerID;constraint:OnDelete:SET NULL" json:"owner,omitempty"`
	PostID    uint      `gorm:"not null;index" json:"post_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OwnerName returns the owner's username, or the empty string when the
// owner account has been deleted.
func (c *Comment) OwnerName() string {
	if c.Owner == nil {
		return ""
	}
	return c.Owner.Username
}
