package ports

import (
	"context"
	"mime/multipart"

	"github.com/arqon/siteapi/internal/domain/entities"
)

// Notifier delivers contact submissions by e-mail
type Notifier interface {
	Verify(ctx context.Context) error
	Notify(ctx context.Context, sub entities.ContactSubmission) (messageID string, err error)
	Confirm(ctx context.Context, sub entities.ContactSubmission) error
}

// ImageStore keeps uploaded images referenced by records
type ImageStore interface {
	Save(fh *multipart.FileHeader, subdir string) (url string, err error)
	RemoveAsync(url string)
}

// Request/Response Types

// Project related types
type CreateProjectRequest struct {
	Title          string  `json:"title" validate:"required,max=200"`
	Category       string  `json:"category" validate:"required,max=100"`
	Location       string  `json:"location" validate:"required,max=200"`
	Year           string  `json:"year" validate:"required,max=20"`
	Description    string  `json:"description" validate:"required,max=10000"`
	ImageURL       string  `json:"imageUrl" validate:"omitempty,max=2048"`
	SketchfabID    *string `json:"sketchfabId" validate:"omitempty,max=100"`
	SketchfabTitle *string `json:"sketchfabTitle" validate:"omitempty,max=200"`
}

type UpdateProjectRequest struct {
	Title          *string `json:"title" validate:"omitempty,max=200"`
	Category       *string `json:"category" validate:"omitempty,max=100"`
	Location       *string `json:"location" validate:"omitempty,max=200"`
	Year           *string `json:"year" validate:"omitempty,max=20"`
	Description    *string `json:"description" validate:"omitempty,max=10000"`
	ImageURL       *string `json:"imageUrl" validate:"omitempty,max=2048"`
	SketchfabID    *string `json:"sketchfabId" validate:"omitempty,max=100"`
	SketchfabTitle *string `json:"sketchfabTitle" validate:"omitempty,max=200"`
}

// Article related types
type CreateArticleRequest struct {
	Title    string `json:"title" validate:"required,max=200"`
	Content  string `json:"content" validate:"required,max=50000"`
	Author   string `json:"author" validate:"required,max=100"`
	Category string `json:"category" validate:"required,max=100"`
	Date     string `json:"date" validate:"omitempty,max=40"`
	ImageURL string `json:"imageUrl" validate:"omitempty,max=2048"`
}

type UpdateArticleRequest struct {
	Title    *string `json:"title" validate:"omitempty,max=200"`
	Content  *string `json:"content" validate:"omitempty,max=50000"`
	Author   *string `json:"author" validate:"omitempty,max=100"`
	Category *string `json:"category" validate:"omitempty,max=100"`
	Date     *string `json:"date" validate:"omitempty,max=40"`
	ImageURL *string `json:"imageUrl" validate:"omitempty,max=2048"`
}

// Contact related types
type ContactResult struct {
	MessageID string `json:"messageId"`
}
