package entities

import (
	"errors"
	"time"
)

// Common errors
var (
	ErrNotFound          = errors.New("record not found")
	ErrMissingImage      = errors.New("an image file or image URL is required")
	ErrUnsupportedUpload = errors.New("unsupported image type")
	ErrUploadTooLarge    = errors.New("image exceeds the maximum upload size")
)

// Record is implemented by every entity kept in a record store.
type Record interface {
	RecordID() int
}

// Project is a portfolio entry shown on the landing page
type Project struct {
	ID             int     `json:"id"`
	Title          string  `json:"title"`
	Category       string  `json:"category"`
	Location       string  `json:"location"`
	Year           string  `json:"year"`
	Image          string  `json:"image"`
	Description    string  `json:"description"`
	SketchfabID    *string `json:"sketchfabId,omitempty"`
	SketchfabTitle *string `json:"sketchfabTitle,omitempty"`
}

// RecordID implements Record
func (p Project) RecordID() int { return p.ID }

// Article is a news/blog entry shown on the landing page
type Article struct {
	ID       int    `json:"id"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	Author   string `json:"author"`
	Category string `json:"category"`
	Date     string `json:"date"`
	ImageURL string `json:"imageUrl"`
}

// RecordID implements Record
func (a Article) RecordID() int { return a.ID }

// ContactSubmission is a validated and sanitized contact form entry
type ContactSubmission struct {
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Phone       string    `json:"phone,omitempty"`
	Message     string    `json:"message"`
	IP          string    `json:"ip"`
	UserAgent   string    `json:"userAgent"`
	SubmittedAt time.Time `json:"submittedAt"`
}
