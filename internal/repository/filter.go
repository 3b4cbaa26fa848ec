// Package repository provides data access layer implementations for the application.
package repository

import (
	"time"

	"gorm.io/gorm"
)

// DefaultPageSize is the fixed page size shared by the HTTP list endpoints
// and the live page-fetch jobs.
const DefaultPageSize = 25

// ListFilter narrows a post or comment listing. Zero values mean "no filter".
type ListFilter struct {
	TextContains  string
	OwnerID       *uint
	PostID        *uint
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	Page          int
	PageSize      int
}

// normalize clamps pagination to sane values.
func (f *ListFilter) normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize <= 0 {
		f.PageSize = DefaultPageSize
	}
}

// apply appends WHERE clauses for the populated filter fields.
func (f *ListFilter) apply(db *gorm.DB) *gorm.DB {
	if f.TextContains != "" {
		db = db.Where("text ILIKE ?", "%"+f.TextContains+"%")
	}
	if f.OwnerID != nil {
		db = db.Where("owner_id = ?", *f.OwnerID)
	}
	if f.PostID != nil {
		db = db.Where("post_id = ?", *f.PostID)
	}
	if f.CreatedAfter != nil {
		db = db.Where("created_at >= ?", *f.CreatedAfter)
	}
	if f.CreatedBefore != nil {
		db = db.Where("created_at <= ?", *f.CreatedBefore)
	}
	return db
}

// paginate appends ORDER BY / LIMIT / OFFSET. Listing order is always
// newest first; pages past the end simply come back empty.
func (f *ListFilter) paginate(db *gorm.DB) *gorm.DB {
	return db.
		Order("created_at DESC").
		Limit(f.PageSize).
		Offset((f.Page - 1) * f.PageSize)
}
