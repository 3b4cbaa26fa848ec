// Package models contains data structures for the application's domain models.
package models

import (
	"time"
)

// Post represents a post in the Ripple application. OwnerID is nullable:
// deleting the owning user clears the reference instead of removing the post.
type Post struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Text      string    `gorm:"type:text;not null" json:"text"`
	OwnerID   *uint     `gorm:"index" json:"owner_id"`
	Owner     *User     `gorm:"foreignKey:OwnerID;constraint:OnDelete:SET NULL" json:"owner,omitempty"`
	Comments  []Comment `gorm:"foreignKey:PostID;constraint:OnDelete:CASCADE" json:"comments,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OwnerName returns the owner's username, or the empty string when the
// owner account has been deleted.
func (p *Post) OwnerName() string {
	if p.Owner == nil {
		return ""
	}
	return p.Owner.Username
}
